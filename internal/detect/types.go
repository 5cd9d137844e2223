// Package detect implements the multi-strategy PII detection layer:
// a fixed, priority-ordered set of detectors (learned patterns, built-in
// structured patterns, user-registered custom patterns, an optional
// statistical NER detector, and a heuristic name-list detector) whose
// raw matches are combined by a single fusion step into an ordered,
// non-overlapping match list.
package detect

import "context"

// PIIType identifies the category of a detected value. Placeholders are
// namespaced by type, so the type never has to be inferred to reverse one.
type PIIType string

// Supported PII types.
const (
	TypePerson       PIIType = "person"
	TypeEmail        PIIType = "email"
	TypePhone        PIIType = "phone"
	TypeOrganization PIIType = "organization"
	TypeProject      PIIType = "project"
	TypeTeam         PIIType = "team"
	TypeHandle       PIIType = "handle"
	TypeAddress      PIIType = "address"
	TypeSSN          PIIType = "ssn"
	TypeCreditCard   PIIType = "credit_card"
	TypeIP           PIIType = "ip"
	TypeURL          PIIType = "url"
	TypeDateOfBirth  PIIType = "date_of_birth"
	TypeCustom       PIIType = "custom"
)

const (
	// AutoRedactThreshold is the uniform confidence at or above which a
	// match is redacted without review, regardless of detector source.
	AutoRedactThreshold = 0.75

	// MinUncertainScore is the noise floor below which matches are
	// discarded instead of being queued for review.
	MinUncertainScore = 0.40

	// contextChars is the amount of surrounding text captured per match.
	contextChars = 50
)

// Match is a detected PII instance. Spans are byte offsets into the
// scanned text ([Start, End)). Matches are transient: they are discarded
// once routed to the allocator or resolved in review.
type Match struct {
	Text       string  `json:"text"`
	Type       PIIType `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Context    string  `json:"context,omitempty"`
}

// Detector is one detection strategy. Implementations must be pure over
// the text and their own state: same text, same output.
type Detector interface {
	Name() string
	Detect(ctx context.Context, text string) ([]Match, error)
}

// LearnedPattern is one cross-session exemplar consulted by the learned
// detector. Exact values match case-insensitively at confidence 1.0;
// regex entries match at confidence 0.90.
type LearnedPattern struct {
	Type  PIIType
	Value string
	Regex bool
}

// LearningSource feeds confirmed and rejected exemplars into the engine.
// It is injected at construction so tests can supply an isolated instance.
type LearningSource interface {
	// ConfirmedPatterns returns all patterns confirmed as PII.
	ConfirmedPatterns(ctx context.Context) ([]LearnedPattern, error)
	// SafeValues returns the lowercased values confirmed as not PII.
	SafeValues(ctx context.Context) (map[string]struct{}, error)
}

// extractContext returns the text surrounding [start, end) with ellipses
// marking truncation on either side.
func extractContext(text string, start, end int) string {
	ctxStart := start - contextChars
	if ctxStart < 0 {
		ctxStart = 0
	}
	ctxEnd := end + contextChars
	if ctxEnd > len(text) {
		ctxEnd = len(text)
	}

	snippet := text[ctxStart:ctxEnd]
	if ctxStart > 0 {
		snippet = "..." + snippet
	}
	if ctxEnd < len(text) {
		snippet = snippet + "..."
	}
	return snippet
}
