// Package session manages ephemeral, password-less redaction sessions for
// interactive front ends: redact, review uncertain matches, restore, done.
// Session stores hold live mapping data in memory only, so every cleanup
// path (explicit destroy or idle expiry) purges the store instead of
// relying on at-rest encryption.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/cloak/internal/detect"
	"github.com/dativo-io/cloak/internal/mapping"
	cloakotel "github.com/dativo-io/cloak/internal/otel"
	"github.com/dativo-io/cloak/internal/redact"
	"github.com/dativo-io/cloak/internal/restore"
	"github.com/dativo-io/cloak/internal/review"
)

var tracer = cloakotel.Tracer("github.com/dativo-io/cloak/internal/session")

// ErrUnknownSession is returned when a caller references a session that
// does not exist or already expired. Nothing is mutated.
var ErrUnknownSession = errors.New("unknown session")

// DefaultTTL applies when the manager is constructed without one.
const DefaultTTL = time.Hour

// sweepInterval is how often expired sessions are purged.
const sweepInterval = "@every 1m"

// Session is one live redaction workflow.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	expiresAt    time.Time
	originalText string
	redactedText string
	applied      []detect.Match
	store        *mapping.Store
	pipeline     *redact.Pipeline
	queue        *review.Queue
}

// State is a caller-facing snapshot of a session.
type State struct {
	ID           string                `json:"session_id"`
	RedactedText string                `json:"redacted_text"`
	Applied      []detect.Match        `json:"matches_applied"`
	Pending      []review.IndexedMatch `json:"uncertain_pending"`
	Stats        redact.Stats          `json:"stats"`
}

// Manager owns all live sessions and their expiry.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	engine  *detect.Engine
	learner review.Learner
	ttl     time.Duration
	cron    *cron.Cron
}

// NewManager creates a session manager. learner may be nil to disable
// cross-session learning from review decisions.
func NewManager(engine *detect.Engine, learner review.Learner, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		sessions: make(map[string]*Session),
		engine:   engine,
		learner:  learner,
		ttl:      ttl,
	}
}

// Start launches the background expiry sweeper.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(sweepInterval, m.Sweep); err != nil {
		return err
	}
	c.Start()
	m.cron = c
	return nil
}

// Stop halts the sweeper. Live sessions stay valid until destroyed.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		m.cron.Stop()
		m.cron = nil
	}
}

// Redact creates a session over the given text: detects, auto-redacts,
// and queues uncertain matches for review.
func (m *Manager) Redact(ctx context.Context, text string) (*State, error) {
	ctx, span := tracer.Start(ctx, "session.redact")
	defer span.End()

	store := mapping.NewStore("") // session-only, purged on destroy
	pipeline := redact.NewPipeline(m.engine, store)

	res, err := pipeline.Redact(ctx, text)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:           uuid.New().String(),
		CreatedAt:    time.Now().UTC(),
		expiresAt:    time.Now().UTC().Add(m.ttl),
		originalText: text,
		redactedText: res.RedactedText,
		applied:      res.Applied,
		store:        store,
		pipeline:     pipeline,
		queue:        review.NewQueue(res.Uncertain, store, m.learner),
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	log.Info().
		Str("session_id", sess.ID).
		Int("redactions", res.Stats.TotalRedactions).
		Int("uncertain", len(res.Uncertain)).
		Func(cloakotel.LogTraceFields(ctx)).
		Msg("session created")

	return sess.state(res.Stats), nil
}

// Decide resolves an uncertain match in a session. A "yes" re-renders the
// session's redacted text from the original so the newly accepted span is
// substituted consistently with everything applied before it.
func (m *Manager) Decide(ctx context.Context, sessionID string, index int, decision review.Decision) (*State, *review.Resolution, error) {
	ctx, span := tracer.Start(ctx, "session.decide")
	defer span.End()

	sess, err := m.get(sessionID)
	if err != nil {
		return nil, nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	resolution, err := sess.queue.Decide(ctx, index, decision)
	if err != nil {
		return nil, nil, err
	}

	stats := redact.Stats{ByType: make(map[detect.PIIType]int)}
	if resolution != nil && resolution.Redacted {
		sess.applied = append(sess.applied, resolution.Match)
		redacted, st, err := sess.pipeline.Apply(ctx, sess.originalText, sess.applied)
		if err != nil {
			return nil, nil, err
		}
		sess.redactedText = redacted
		stats = *st
	} else {
		stats.TotalRedactions = len(sess.applied)
		for _, a := range sess.applied {
			stats.ByType[a.Type]++
		}
	}

	return sess.stateLocked(stats), resolution, nil
}

// Restore substitutes placeholders in text back to originals using the
// session's mapping. The mapping is frozen by the time front ends call
// this, so concurrent restores are safe.
func (m *Manager) Restore(ctx context.Context, sessionID, text string) (string, int, error) {
	_, span := tracer.Start(ctx, "session.restore")
	defer span.End()

	sess, err := m.get(sessionID)
	if err != nil {
		return "", 0, err
	}
	restored, count := restore.New(sess.store).Restore(text)
	return restored, count, nil
}

// Get returns a snapshot of a live session.
func (m *Manager) Get(sessionID string) (*State, error) {
	sess, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	stats := redact.Stats{ByType: make(map[detect.PIIType]int)}
	stats.TotalRedactions = len(sess.applied)
	for _, a := range sess.applied {
		stats.ByType[a.Type]++
	}
	return sess.stateLocked(stats), nil
}

// Destroy removes a session and purges its mapping data.
func (m *Manager) Destroy(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return ErrUnknownSession
	}
	sess.store.Destroy()
	log.Info().Str("session_id", sessionID).Msg("session destroyed")
	return nil
}

// Sweep destroys every expired session. Runs on the cron schedule and may
// be called directly.
func (m *Manager) Sweep() {
	now := time.Now().UTC()

	m.mu.Lock()
	var expired []*Session
	for id, sess := range m.sessions {
		sess.mu.Lock()
		if sess.expiresAt.Before(now) {
			expired = append(expired, sess)
			delete(m.sessions, id)
		}
		sess.mu.Unlock()
	}
	m.mu.Unlock()

	for _, sess := range expired {
		sess.store.Destroy()
		log.Info().Str("session_id", sess.ID).Msg("session expired")
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// get fetches a session and extends its idle expiry.
func (m *Manager) get(sessionID string) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrUnknownSession
	}

	sess.mu.Lock()
	sess.expiresAt = time.Now().UTC().Add(m.ttl)
	sess.mu.Unlock()
	return sess, nil
}

// state snapshots the session. Callers must not hold sess.mu.
func (s *Session) state(stats redact.Stats) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(stats)
}

// stateLocked snapshots the session with sess.mu held.
func (s *Session) stateLocked(stats redact.Stats) *State {
	applied := make([]detect.Match, len(s.applied))
	copy(applied, s.applied)
	return &State{
		ID:           s.ID,
		RedactedText: s.redactedText,
		Applied:      applied,
		Pending:      s.queue.Pending(),
		Stats:        stats,
	}
}
