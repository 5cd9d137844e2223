package detect

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Heuristic confidences for capitalized-word pairs, depending on how many
// of the two words appear in the common-name lists. All three fall below
// AutoRedactThreshold, so heuristic hits always go through review.
const (
	nameConfidenceBoth = 0.70
	nameConfidenceOne  = 0.60
	nameConfidenceNone = 0.50
)

// capitalizedWord matches a single capitalized word in Latin or Cyrillic
// script (the original corpus includes Ukrainian documents).
var capitalizedWord = regexp.MustCompile(`[A-ZА-ЯҐЄІЇ][a-zа-яґєії']+`)

// nameDetector finds potential person names as pairs of consecutive
// capitalized words, scoring them against common first/last name lists.
// It runs at the lowest priority.
type nameDetector struct{}

func (d *nameDetector) Name() string { return "names" }

func (d *nameDetector) Detect(ctx context.Context, text string) ([]Match, error) {
	words := capitalizedWord.FindAllStringIndex(text, -1)

	var matches []Match
	var group [][]int

	flush := func() {
		matches = append(matches, pairsFromGroup(text, group)...)
		group = group[:0]
	}

	for _, w := range words {
		// Reject words glued to other letters or digits ("McDonald" is one
		// word; "X12Abc" is not a name fragment).
		if !cleanBoundaries(text, w[0], w[1]) {
			continue
		}
		if len(group) > 0 {
			prev := group[len(group)-1]
			if text[prev[1]:w[0]] != " " {
				flush()
			}
		}
		group = append(group, w)
	}
	flush()

	return matches, nil
}

// pairsFromGroup strips leading capitalized stopwords ("Contact John Doe"
// keeps "John Doe") and emits one candidate per remaining word pair.
func pairsFromGroup(text string, group [][]int) []Match {
	for len(group) > 0 {
		first := strings.ToLower(text[group[0][0]:group[0][1]])
		if !capitalizedStopwords[first] {
			break
		}
		group = group[1:]
	}

	var matches []Match
	for i := 0; i+1 < len(group); i += 2 {
		start, end := group[i][0], group[i+1][1]
		first := strings.ToLower(text[group[i][0]:group[i][1]])
		last := strings.ToLower(text[group[i+1][0]:group[i+1][1]])

		var conf float64
		switch {
		case commonFirstNames[first] && commonLastNames[last]:
			conf = nameConfidenceBoth
		case commonFirstNames[first] || commonLastNames[last]:
			conf = nameConfidenceOne
		default:
			conf = nameConfidenceNone
		}

		matches = append(matches, Match{
			Text:       text[start:end],
			Type:       TypePerson,
			Start:      start,
			End:        end,
			Confidence: conf,
			Source:     "names",
			Context:    extractContext(text, start, end),
		})
	}
	return matches
}

// cleanBoundaries reports whether the word at [start, end) is not embedded
// inside a larger alphanumeric token.
func cleanBoundaries(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// capitalizedStopwords are words that start sentences or label fields and
// are regularly mistaken for name parts when capitalized.
var capitalizedStopwords = toSet([]string{
	"contact", "dear", "hello", "hi", "best", "regards", "sincerely",
	"from", "to", "cc", "bcc", "date", "summary", "executive", "technical",
	"details", "confidential", "notes", "information", "members", "team",
	"project", "internal", "client", "employee", "corporate", "email",
	"phone", "address", "slack", "channel", "attention", "subject", "re",
})

var commonFirstNames = toSet([]string{
	"james", "john", "robert", "michael", "william", "david", "richard",
	"joseph", "thomas", "charles", "mary", "patricia", "jennifer", "linda",
	"elizabeth", "barbara", "susan", "jessica", "sarah", "karen", "nancy",
	"lisa", "betty", "margaret", "sandra", "ashley", "dorothy", "kimberly",
	"emily", "donna", "michelle", "daniel", "matthew", "anthony", "mark",
	"donald", "steven", "paul", "andrew", "joshua", "kenneth", "kevin",
	"brian", "george", "edward", "ronald", "timothy", "jason", "jeffrey",
	"ryan", "jacob", "gary", "nicholas", "eric", "jonathan", "stephen",
	"larry", "justin", "scott", "brandon", "benjamin", "samuel", "raymond",
	"gregory", "frank", "alexander", "patrick", "jack", "dennis", "jerry",
})

var commonLastNames = toSet([]string{
	"smith", "johnson", "williams", "brown", "jones", "garcia", "miller",
	"davis", "rodriguez", "martinez", "hernandez", "lopez", "gonzalez",
	"wilson", "anderson", "thomas", "taylor", "moore", "jackson", "martin",
	"lee", "perez", "thompson", "white", "harris", "sanchez", "clark",
	"ramirez", "lewis", "robinson", "walker", "young", "allen", "king",
	"wright", "scott", "torres", "nguyen", "hill", "flores", "green",
	"adams", "nelson", "baker", "hall", "rivera", "campbell", "mitchell",
	"carter", "roberts", "gomez", "phillips", "evans", "turner", "diaz",
})

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
