package redact

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/cloak/internal/detect"
)

// Run is one extractable text run handed over by a document processor.
// The core never sees the container format; the opaque ID lets the
// processor put the redacted text back where it came from.
type Run struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// RunResult is a redacted run with the matches that were applied to it.
type RunResult struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Applied   []detect.Match `json:"matches_applied"`
	Uncertain []detect.Match `json:"uncertain_pending"`
}

// RedactRuns redacts a sequence of text runs against one shared store, so
// a value repeated across runs (or across documents sharing the store)
// keeps one placeholder. Empty runs pass through untouched. Aggregate
// stats cover all runs.
func (p *Pipeline) RedactRuns(ctx context.Context, runs []Run) ([]RunResult, *Stats, error) {
	ctx, span := tracer.Start(ctx, "redact.runs")
	defer span.End()

	total := &Stats{ByType: make(map[detect.PIIType]int)}
	results := make([]RunResult, 0, len(runs))

	for _, run := range runs {
		if run.Text == "" {
			results = append(results, RunResult{ID: run.ID})
			continue
		}

		res, err := p.Redact(ctx, run.Text)
		if err == ErrInvalidInput {
			// Whitespace-only runs are structure, not content.
			results = append(results, RunResult{ID: run.ID, Text: run.Text})
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		results = append(results, RunResult{
			ID:        run.ID,
			Text:      res.RedactedText,
			Applied:   res.Applied,
			Uncertain: res.Uncertain,
		})
		total.TotalRedactions += res.Stats.TotalRedactions
		for typ, n := range res.Stats.ByType {
			total.ByType[typ] += n
		}
	}

	span.SetAttributes(
		attribute.Int("redact.run_count", len(runs)),
		attribute.Int("redact.applied", total.TotalRedactions),
	)
	return results, total, nil
}
