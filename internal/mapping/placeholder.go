package mapping

import (
	"fmt"

	"github.com/dativo-io/cloak/internal/detect"
)

// Style selects how person and organization placeholders render. The
// bracketed default keeps placeholders unmistakable in downstream text;
// the realistic style draws from fixed name pools so redacted documents
// still read naturally.
type Style int

const (
	StyleBracketed Style = iota
	StyleRealistic
)

// realisticNames is the fixed pool used by StyleRealistic for person
// placeholders; exhausted pools fall back to "Person N".
var realisticNames = []string{
	"John Doe", "Jane Smith", "Bob Johnson", "Alice Williams",
	"Charlie Brown", "Diana Prince", "Edward Norton", "Fiona Green",
	"George Miller", "Helen Davis", "Ivan Petrov", "Julia Roberts",
	"Kevin White", "Laura Black", "Michael Grey", "Nancy Blue",
	"Oliver Stone", "Patricia Gold", "Quincy Silver", "Rachel Bronze",
}

// realisticCompanies is the StyleRealistic pool for organizations.
var realisticCompanies = []string{
	"Example Corp", "Acme Inc", "Sample LLC", "Demo Industries",
	"Test Company", "Placeholder Ltd", "Generic Solutions", "Standard Co",
	"Universal Enterprises", "Global Services", "Alpha Technologies",
	"Beta Systems", "Gamma Holdings", "Delta Partners", "Epsilon Group",
}

// renderPlaceholder produces the nth placeholder (1-based) for a type.
// Every template is deterministic in (type, n), which is what makes
// allocation replayable: identical input into a fresh store reproduces
// identical placeholders.
func renderPlaceholder(typ detect.PIIType, n int, style Style) string {
	switch typ {
	case detect.TypePerson:
		if style == StyleRealistic {
			if n <= len(realisticNames) {
				return realisticNames[n-1]
			}
			return fmt.Sprintf("Person %d", n)
		}
		return fmt.Sprintf("[Person%d]", n)
	case detect.TypeEmail:
		return fmt.Sprintf("person%d@example.com", n)
	case detect.TypePhone:
		return fmt.Sprintf("555-000-%04d", n)
	case detect.TypeHandle:
		return fmt.Sprintf("@user%d", n)
	case detect.TypeOrganization:
		if style == StyleRealistic {
			if n <= len(realisticCompanies) {
				return realisticCompanies[n-1]
			}
			return fmt.Sprintf("Company %d", n)
		}
		return fmt.Sprintf("[Company%d]", n)
	case detect.TypeProject:
		return fmt.Sprintf("Project Alpha %d", n)
	case detect.TypeTeam:
		return fmt.Sprintf("Team %d", n)
	case detect.TypeAddress:
		return fmt.Sprintf("[Address%d]", n)
	case detect.TypeSSN:
		// Digit-preserving tail: only the trailing group carries the counter.
		return fmt.Sprintf("XXX-XX-%04d", n)
	case detect.TypeCreditCard:
		return fmt.Sprintf("XXXX-XXXX-XXXX-%04d", n)
	case detect.TypeIP:
		return fmt.Sprintf("192.0.2.%d", n)
	case detect.TypeURL:
		return fmt.Sprintf("https://example.com/page%d", n)
	case detect.TypeDateOfBirth:
		return fmt.Sprintf("[Date%d]", n)
	default:
		return fmt.Sprintf("[REDACTED-%d]", n)
	}
}
