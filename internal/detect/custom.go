package detect

import (
	"context"
	"fmt"
	"regexp"
)

// defaultCustomConfidence applies when a caller registers a pattern
// without an explicit confidence.
const defaultCustomConfidence = 0.90

type customPattern struct {
	re         *regexp.Regexp
	typ        PIIType
	confidence float64
}

// customDetector runs user-registered regex patterns. Registration happens
// before detection starts; the detector itself is read-only during a scan.
type customDetector struct {
	patterns []customPattern
}

func (d *customDetector) Name() string { return "custom" }

func (d *customDetector) add(pattern string, typ PIIType, confidence float64) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compiling custom pattern %q: %w", pattern, err)
	}
	if confidence <= 0 {
		confidence = defaultCustomConfidence
	}
	d.patterns = append(d.patterns, customPattern{re: re, typ: typ, confidence: confidence})
	return nil
}

func (d *customDetector) Detect(ctx context.Context, text string) ([]Match, error) {
	var matches []Match
	for _, p := range d.patterns {
		for _, span := range p.re.FindAllStringIndex(text, -1) {
			matches = append(matches, Match{
				Text:       text[span[0]:span[1]],
				Type:       p.typ,
				Start:      span[0],
				End:        span[1],
				Confidence: p.confidence,
				Source:     d.Name(),
				Context:    extractContext(text, span[0], span[1]),
			})
		}
	}
	return matches, nil
}
