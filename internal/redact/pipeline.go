// Package redact is the combined detect+fuse+allocate+record operation:
// text goes in, redacted text with applied matches, pending uncertain
// matches, and per-type stats come out. It is the single entry point for
// front ends and document-processor collaborators.
package redact

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/cloak/internal/detect"
	"github.com/dativo-io/cloak/internal/mapping"
	cloakotel "github.com/dativo-io/cloak/internal/otel"
)

var tracer = cloakotel.Tracer("github.com/dativo-io/cloak/internal/redact")

// ErrInvalidInput is returned for empty or blank text. Nothing is mutated.
var ErrInvalidInput = errors.New("invalid input: empty text")

// Stats counts applied redactions.
type Stats struct {
	TotalRedactions int                    `json:"total_redactions"`
	ByType          map[detect.PIIType]int `json:"by_type"`
}

// Result is the outcome of one redaction pass.
type Result struct {
	RedactedText string         `json:"redacted_text"`
	Applied      []detect.Match `json:"matches_applied"`
	Uncertain    []detect.Match `json:"uncertain_pending"`
	Stats        Stats          `json:"stats"`
}

// Pipeline binds a detection engine to one mapping store. The store is
// the single writer for placeholder allocation; a pipeline is therefore
// scoped to one document/session like its store.
type Pipeline struct {
	engine    *detect.Engine
	store     *mapping.Store
	redactAll bool
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithRedactUncertain applies matches below the auto threshold (but above
// the noise floor) instead of queueing them, for non-interactive runs.
func WithRedactUncertain() PipelineOption {
	return func(p *Pipeline) { p.redactAll = true }
}

// NewPipeline creates a redaction pipeline over an engine and a store.
func NewPipeline(engine *detect.Engine, store *mapping.Store, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{engine: engine, store: store}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Store returns the pipeline's mapping store.
func (p *Pipeline) Store() *mapping.Store { return p.store }

// Redact detects PII in text, replaces every match at or above the auto
// threshold with a consistent placeholder, and returns the remaining
// uncertain matches for review. Identical values always receive identical
// placeholders across the store's lifetime.
func (p *Pipeline) Redact(ctx context.Context, text string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "redact.text")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, ErrInvalidInput
	}

	matches, err := p.engine.Detect(ctx, text)
	if err != nil {
		return nil, err
	}

	var auto, uncertain []detect.Match
	for _, m := range matches {
		switch {
		case m.Confidence >= detect.AutoRedactThreshold:
			auto = append(auto, m)
		case m.Confidence >= detect.MinUncertainScore:
			if p.redactAll {
				auto = append(auto, m)
			} else {
				uncertain = append(uncertain, m)
			}
		}
	}

	redacted, stats, err := p.Apply(ctx, text, auto)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("redact.applied", stats.TotalRedactions),
		attribute.Int("redact.uncertain", len(uncertain)),
	)
	return &Result{
		RedactedText: redacted,
		Applied:      auto,
		Uncertain:    uncertain,
		Stats:        *stats,
	}, nil
}

// Apply substitutes the given matches in text, allocating (or reusing)
// placeholders through the pipeline's store. Matches are applied from the
// end of the text backwards so earlier spans stay valid. Callers use it
// to re-render text after review decisions add matches.
func (p *Pipeline) Apply(ctx context.Context, text string, matches []detect.Match) (string, *Stats, error) {
	stats := &Stats{ByType: make(map[detect.PIIType]int)}
	if len(matches) == 0 {
		return text, stats, nil
	}

	ordered := make([]detect.Match, len(matches))
	copy(ordered, matches)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	out := text
	for _, m := range ordered {
		if m.Start < 0 || m.End > len(out) || m.Start >= m.End {
			continue
		}
		placeholder, err := p.store.Allocate(m.Text, m.Type)
		if err != nil {
			return "", nil, err
		}
		out = out[:m.Start] + placeholder + out[m.End:]
		stats.TotalRedactions++
		stats.ByType[m.Type]++
	}
	return out, stats, nil
}
