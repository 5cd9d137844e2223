package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/dativo-io/cloak/patterns"
)

const (
	// contextSimilarityFactor is the score boost applied when one of a
	// recognizer's context words appears near a match.
	contextSimilarityFactor = 0.35

	// contextWindowChars is how far before and after a match context
	// words are searched for.
	contextWindowChars = 100

	// maxBoostedScore caps context-boosted confidences below 1.0, which
	// stays reserved for user-confirmed values.
	maxBoostedScore = 0.99
)

// patternDetector runs the compiled structured recognizers (email, phone,
// SSN, credit card, IP, URL, date, handle) against text.
type patternDetector struct {
	recognizers []Recognizer
}

// builtinRecognizers returns the embedded default recognizer configs.
func builtinRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIBuiltinYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded recognizers: %w", err)
	}
	return rf.Recognizers, nil
}

func (d *patternDetector) Name() string { return "pattern" }

func (d *patternDetector) Detect(ctx context.Context, text string) ([]Match, error) {
	var matches []Match

	for _, rec := range d.recognizers {
		for _, span := range rec.Pattern.FindAllStringIndex(text, -1) {
			value := text[span[0]:span[1]]

			// Hard validation gate: Luhn checksum for credit cards.
			if rec.ValidateLuhn && !luhnValid(stripNonDigits(value)) {
				continue
			}

			// Boundary guard: Go's regexp has no lookbehind, so handle
			// recognizers check here that the match is not glued to an
			// email local part.
			if rec.GuardBoundary && span[0] > 0 && isLocalPartChar(text[span[0]-1]) {
				continue
			}

			matches = append(matches, Match{
				Text:       value,
				Type:       rec.Type,
				Start:      span[0],
				End:        span[1],
				Confidence: boostWithContext(text, span[0], rec.Score, rec.Context),
				Source:     d.Name(),
				Context:    extractContext(text, span[0], span[1]),
			})
		}
	}

	return matches, nil
}

// boostWithContext raises the base score by contextSimilarityFactor when
// any context word appears within contextWindowChars of the match.
func boostWithContext(text string, position int, base float64, contextWords []string) float64 {
	if len(contextWords) == 0 {
		return base
	}
	start := position - contextWindowChars
	if start < 0 {
		start = 0
	}
	end := position + contextWindowChars
	if end > len(text) {
		end = len(text)
	}
	window := strings.ToLower(text[start:end])

	for _, cw := range contextWords {
		if strings.Contains(window, strings.ToLower(cw)) {
			boosted := base + contextSimilarityFactor
			if boosted > maxBoostedScore {
				boosted = maxBoostedScore
			}
			return boosted
		}
	}
	return base
}

// luhnValid checks whether a digit string passes the Luhn algorithm (ISO/IEC 7812).
func luhnValid(number string) bool {
	n := len(number)
	if n < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// stripNonDigits removes all non-digit characters from s.
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// isLocalPartChar reports whether c may appear in an email local part.
func isLocalPartChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.' || c == '_' || c == '%' || c == '+' || c == '-':
		return true
	}
	return false
}
