package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	cloakotel "github.com/dativo-io/cloak/internal/otel"
)

var tracer = cloakotel.Tracer("github.com/dativo-io/cloak/internal/detect")

// Engine runs the detector stack in fixed priority order and fuses the
// raw matches into one ordered, non-overlapping list.
//
// Priority (highest first): learned patterns, built-in structured
// patterns, user-registered custom patterns, statistical NER (optional),
// heuristic name lists.
type Engine struct {
	detectors []Detector
	source    LearningSource
	custom    *customDetector
}

// Option configures an Engine via the functional options pattern.
type Option func(*engineConfig)

type engineConfig struct {
	source         LearningSource
	recognizerFile string
	enabledTypes   []PIIType
	disabledTypes  []PIIType
	ner            Detector
	customPatterns []customSpec
}

type customSpec struct {
	pattern    string
	typ        PIIType
	confidence float64
}

// WithLearningSource injects the cross-session learning store. Confirmed
// exemplars become the highest-priority detector; values learned safe are
// suppressed from every layer's output.
func WithLearningSource(src LearningSource) Option {
	return func(c *engineConfig) { c.source = src }
}

// WithRecognizerFile merges a recognizer YAML file over the embedded
// defaults (override by recognizer name). A missing file is a no-op.
func WithRecognizerFile(path string) Option {
	return func(c *engineConfig) { c.recognizerFile = path }
}

// WithEnabledTypes restricts the built-in recognizers to a type whitelist.
func WithEnabledTypes(types ...PIIType) Option {
	return func(c *engineConfig) { c.enabledTypes = types }
}

// WithDisabledTypes removes built-in recognizers by type.
func WithDisabledTypes(types ...PIIType) Option {
	return func(c *engineConfig) { c.disabledTypes = types }
}

// WithNER enables the optional statistical named-entity detector.
func WithNER(d Detector) Option {
	return func(c *engineConfig) { c.ner = d }
}

// WithCustomPattern registers a user regex up front. Pass confidence 0
// for the default (0.90).
func WithCustomPattern(pattern string, typ PIIType, confidence float64) Option {
	return func(c *engineConfig) {
		c.customPatterns = append(c.customPatterns, customSpec{pattern, typ, confidence})
	}
}

// NewEngine builds the detector stack. Without options it uses only the
// embedded recognizers plus the name-list heuristic.
func NewEngine(opts ...Option) (*Engine, error) {
	var cfg engineConfig
	for _, o := range opts {
		o(&cfg)
	}

	defaults, err := builtinRecognizers()
	if err != nil {
		return nil, err
	}

	var overrides []RecognizerConfig
	if cfg.recognizerFile != "" {
		rf, err := LoadRecognizerFile(cfg.recognizerFile)
		if err != nil {
			return nil, fmt.Errorf("loading recognizer overrides: %w", err)
		}
		if rf != nil {
			overrides = rf.Recognizers
		}
	}

	merged := MergeRecognizers(defaults, overrides)
	merged = FilterByTypes(merged, cfg.enabledTypes, cfg.disabledTypes)
	compiled, err := CompileRecognizers(merged)
	if err != nil {
		return nil, err
	}

	custom := &customDetector{}
	for _, cp := range cfg.customPatterns {
		if err := custom.add(cp.pattern, cp.typ, cp.confidence); err != nil {
			return nil, err
		}
	}

	e := &Engine{source: cfg.source, custom: custom}
	if cfg.source != nil {
		e.detectors = append(e.detectors, &learnedDetector{source: cfg.source})
	}
	e.detectors = append(e.detectors, &patternDetector{recognizers: compiled}, custom)
	if cfg.ner != nil {
		e.detectors = append(e.detectors, cfg.ner)
	}
	e.detectors = append(e.detectors, &nameDetector{})

	return e, nil
}

// MustNewEngine is like NewEngine but panics on error. Useful for
// zero-config startup where the embedded defaults are expected to compile.
func MustNewEngine(opts ...Option) *Engine {
	e, err := NewEngine(opts...)
	if err != nil {
		panic(fmt.Sprintf("detect.NewEngine: %v", err))
	}
	return e
}

// AddPattern registers a user regex after construction. Not safe to call
// concurrently with Detect.
func (e *Engine) AddPattern(pattern string, typ PIIType, confidence float64) error {
	return e.custom.add(pattern, typ, confidence)
}

// candidate is a raw match annotated with its detector's priority rank.
type candidate struct {
	Match
	rank int
}

// Detect scans text with every detector and returns the fused match list,
// ordered by span. A failing detector is logged and its contribution
// dropped for this call; the pipeline never aborts on one layer.
func (e *Engine) Detect(ctx context.Context, text string) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "detect.scan")
	defer span.End()

	var cands []candidate
	for rank, d := range e.detectors {
		ms, err := d.Detect(ctx, text)
		if err != nil {
			log.Warn().Err(err).
				Str("detector", d.Name()).
				Func(cloakotel.LogTraceFields(ctx)).
				Msg("detector failed, dropping its matches for this call")
			continue
		}
		for _, m := range ms {
			cands = append(cands, candidate{Match: m, rank: rank})
		}
	}

	cands = e.suppressSafe(ctx, cands)
	fused := fuse(cands)

	span.SetAttributes(
		attribute.Int("pii.candidate_count", len(cands)),
		attribute.Int("pii.match_count", len(fused)),
	)
	return fused, nil
}

// suppressSafe drops candidates whose value was confirmed as not PII.
func (e *Engine) suppressSafe(ctx context.Context, cands []candidate) []candidate {
	if e.source == nil || len(cands) == 0 {
		return cands
	}
	safe, err := e.source.SafeValues(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("loading safe values failed, skipping suppression")
		return cands
	}
	if len(safe) == 0 {
		return cands
	}

	kept := cands[:0]
	for _, c := range cands {
		if _, known := safe[strings.ToLower(c.Text)]; known {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// fuse resolves overlapping candidates by detector priority, then higher
// confidence, then longer span, and returns the survivors sorted by span.
// Disjoint matches from different detectors are all retained.
func fuse(cands []candidate) []Match {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Type < b.Type
	})

	var accepted []Match
	for _, c := range cands {
		overlaps := false
		for _, a := range accepted {
			if c.Start < a.End && a.Start < c.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, c.Match)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted
}
