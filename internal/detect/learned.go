package detect

import (
	"context"
	"fmt"
	"regexp"
	"sort"
)

// Confidence assigned to learned matches. Exact values were confirmed by
// a person, so they carry full confidence and override every other layer.
const (
	learnedExactConfidence = 1.0
	learnedRegexConfidence = 0.90
)

// learnedDetector matches exemplars from the learning store: exact values
// case-insensitively, stored custom patterns as regexes. It runs at the
// highest priority.
type learnedDetector struct {
	source LearningSource
}

func (d *learnedDetector) Name() string { return "learned" }

func (d *learnedDetector) Detect(ctx context.Context, text string) ([]Match, error) {
	learned, err := d.source.ConfirmedPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading learned patterns: %w", err)
	}

	// Sort for a deterministic match order regardless of storage order.
	sort.Slice(learned, func(i, j int) bool {
		if learned[i].Type != learned[j].Type {
			return learned[i].Type < learned[j].Type
		}
		return learned[i].Value < learned[j].Value
	})

	var matches []Match
	for _, lp := range learned {
		var re *regexp.Regexp
		var conf float64
		if lp.Regex {
			re, err = regexp.Compile(lp.Value)
			conf = learnedRegexConfidence
		} else {
			re, err = regexp.Compile(`(?i)` + regexp.QuoteMeta(lp.Value))
			conf = learnedExactConfidence
		}
		if err != nil {
			// One bad stored pattern must not disable the whole layer.
			continue
		}

		for _, span := range re.FindAllStringIndex(text, -1) {
			matches = append(matches, Match{
				Text:       text[span[0]:span[1]],
				Type:       lp.Type,
				Start:      span[0],
				End:        span[1],
				Confidence: conf,
				Source:     d.Name(),
				Context:    extractContext(text, span[0], span[1]),
			})
		}
	}

	return matches, nil
}
