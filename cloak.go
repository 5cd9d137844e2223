// Package cloak is the embedding surface for the reversible PII redaction
// engine: it wires operator configuration, logging, tracing, the learning
// store, the detector stack, and the session manager into one handle.
//
// Two usage modes are exposed. Document mode creates a password-protected
// mapping store that can be persisted and reopened later; session mode
// (via Sessions) keeps mappings in memory for interactive review flows.
package cloak

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/cloak/internal/config"
	"github.com/dativo-io/cloak/internal/detect"
	"github.com/dativo-io/cloak/internal/learn"
	"github.com/dativo-io/cloak/internal/mapping"
	cloakotel "github.com/dativo-io/cloak/internal/otel"
	"github.com/dativo-io/cloak/internal/redact"
	"github.com/dativo-io/cloak/internal/restore"
	"github.com/dativo-io/cloak/internal/review"
	"github.com/dativo-io/cloak/internal/session"
)

const serviceName = "cloak"

// Version is stamped by the release build.
var Version = "dev"

// Cloak owns the long-lived pieces shared by every document and session:
// one learning store, one detector engine, one session manager.
type Cloak struct {
	cfg          *config.Config
	engine       *detect.Engine
	learned      *learn.Store
	sessions     *session.Manager
	shutdownOTel func(context.Context) error
}

// Option configures New.
type Option func(*options)

type options struct {
	tracing    bool
	detectOpts []detect.Option
}

// WithTracing enables OpenTelemetry tracing with the stdout exporter.
func WithTracing() Option {
	return func(o *options) { o.tracing = true }
}

// WithDetectOptions forwards options to the detector engine (recognizer
// override files, type filters, custom patterns).
func WithDetectOptions(opts ...detect.Option) Option {
	return func(o *options) { o.detectOpts = append(o.detectOpts, opts...) }
}

// New loads operator configuration from the environment and config file,
// then builds the engine. Call Close when done.
func New(ctx context.Context, opts ...Option) (*Cloak, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, cfg, opts...)
}

// NewWithConfig builds the engine from an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Cloak, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	configureLogging(cfg)

	shutdown, err := cloakotel.Setup(serviceName, Version, o.tracing)
	if err != nil {
		return nil, err
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	learned, err := learn.NewStore(cfg.LearnedDBPath)
	if err != nil {
		return nil, err
	}

	engineOpts := append([]detect.Option{detect.WithLearningSource(learned)}, o.detectOpts...)
	if cfg.NEREnabled {
		ner := detect.NewNERDetector(cfg.NERBaseURL, cfg.NERAPIKey, cfg.NERModel)
		engineOpts = append(engineOpts, detect.WithNER(ner))
	}
	engine, err := detect.NewEngine(engineOpts...)
	if err != nil {
		_ = learned.Close()
		return nil, err
	}

	sessions := session.NewManager(engine, learned, cfg.SessionTTL)
	if err := sessions.Start(); err != nil {
		_ = learned.Close()
		return nil, err
	}

	log.Debug().
		Str("data_dir", cfg.DataDir).
		Bool("ner", cfg.NEREnabled).
		Msg("cloak initialized")

	return &Cloak{
		cfg:          cfg,
		engine:       engine,
		learned:      learned,
		sessions:     sessions,
		shutdownOTel: shutdown,
	}, nil
}

// configureLogging applies the operator's log level and format globally.
func configureLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// Engine exposes the detector stack, e.g. for registering custom patterns.
func (c *Cloak) Engine() *detect.Engine { return c.engine }

// Learning exposes the cross-session learning store.
func (c *Cloak) Learning() *learn.Store { return c.learned }

// Sessions exposes the ephemeral session manager.
func (c *Cloak) Sessions() *session.Manager { return c.sessions }

// Close releases every held resource. Live sessions are dropped.
func (c *Cloak) Close(ctx context.Context) error {
	c.sessions.Stop()
	return errors.Join(c.learned.Close(), c.shutdownOTel(ctx))
}

// Document is one persistable redaction unit: a pipeline bound to a
// password-protected mapping store.
type Document struct {
	pipeline *redact.Pipeline
	store    *mapping.Store
	learned  *learn.Store
}

// DocumentOption configures a Document.
type DocumentOption func(*documentOptions)

type documentOptions struct {
	storeOpts    []mapping.StoreOption
	pipelineOpts []redact.PipelineOption
}

// WithRealisticNames renders person and organization placeholders from
// fixed name pools instead of bracketed tags.
func WithRealisticNames() DocumentOption {
	return func(o *documentOptions) {
		o.storeOpts = append(o.storeOpts, mapping.WithRealisticNames())
	}
}

// WithRedactUncertain applies below-threshold matches instead of queueing
// them, for non-interactive batch runs.
func WithRedactUncertain() DocumentOption {
	return func(o *documentOptions) {
		o.pipelineOpts = append(o.pipelineOpts, redact.WithRedactUncertain())
	}
}

// NewDocument creates a document whose mapping can be saved under the given
// password. An empty password yields a memory-only document.
func (c *Cloak) NewDocument(password string, opts ...DocumentOption) *Document {
	var o documentOptions
	for _, opt := range opts {
		opt(&o)
	}
	store := mapping.NewStore(password, o.storeOpts...)
	return &Document{
		pipeline: redact.NewPipeline(c.engine, store, o.pipelineOpts...),
		store:    store,
		learned:  c.learned,
	}
}

// OpenDocument reopens a document from a saved mapping file, so further
// redaction continues the existing placeholder numbering and restoration
// covers previously issued placeholders.
func (c *Cloak) OpenDocument(ctx context.Context, path, password string, opts ...DocumentOption) (*Document, error) {
	var o documentOptions
	for _, opt := range opts {
		opt(&o)
	}
	store, err := mapping.LoadFromFile(ctx, path, password, o.storeOpts...)
	if err != nil {
		return nil, err
	}
	return &Document{
		pipeline: redact.NewPipeline(c.engine, store, o.pipelineOpts...),
		store:    store,
		learned:  c.learned,
	}, nil
}

// Redact runs detection and substitution over text.
func (d *Document) Redact(ctx context.Context, text string) (*redact.Result, error) {
	return d.pipeline.Redact(ctx, text)
}

// RedactRuns redacts a sequence of document text runs against the shared store.
func (d *Document) RedactRuns(ctx context.Context, runs []redact.Run) ([]redact.RunResult, *redact.Stats, error) {
	return d.pipeline.RedactRuns(ctx, runs)
}

// Restore substitutes placeholders in text back to their originals.
func (d *Document) Restore(text string) (string, int) {
	return restore.New(d.store).Restore(text)
}

// Review builds a decision queue over uncertain matches from a Redact call.
// Accepted matches allocate through this document's store and feed the
// learning store.
func (d *Document) Review(matches []detect.Match) *review.Queue {
	return review.NewQueue(matches, d.store, d.learned)
}

// Apply substitutes the given matches in text, for re-rendering after
// review decisions.
func (d *Document) Apply(ctx context.Context, text string, matches []detect.Match) (string, *redact.Stats, error) {
	return d.pipeline.Apply(ctx, text, matches)
}

// SaveMapping persists the document's mapping under its password.
func (d *Document) SaveMapping(ctx context.Context, path string) error {
	return d.store.SaveToFile(ctx, path)
}

// Mapping exposes the document's mapping store.
func (d *Document) Mapping() *mapping.Store { return d.store }
