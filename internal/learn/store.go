// Package learn is the cross-session learning store: a process/user-scoped
// table of confirmed and rejected PII exemplars, persisted in SQLite.
// It is constructed explicitly and injected into the detector layer
// (it satisfies detect.LearningSource), never reached through globals,
// so tests can supply an isolated instance per run. Its lifecycle is
// independent of any document's mapping store.
package learn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/cloak/internal/detect"
	cloakotel "github.com/dativo-io/cloak/internal/otel"
)

var tracer = cloakotel.Tracer("github.com/dativo-io/cloak/internal/learn")

// ErrEmptyValue is returned when learning an empty or blank value.
var ErrEmptyValue = errors.New("cannot learn an empty value")

const schema = `
CREATE TABLE IF NOT EXISTS learned_patterns (
    id TEXT PRIMARY KEY,
    pii_type TEXT NOT NULL,
    value TEXT NOT NULL,
    is_regex INTEGER NOT NULL DEFAULT 0,
    confirmed INTEGER NOT NULL,
    count INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE(pii_type, value, confirmed)
);

CREATE INDEX IF NOT EXISTS idx_learned_confirmed ON learned_patterns(confirmed);
CREATE INDEX IF NOT EXISTS idx_learned_value ON learned_patterns(value);
`

// Pattern is one learned exemplar as stored.
type Pattern struct {
	Type      detect.PIIType `json:"type"`
	Value     string         `json:"pattern_or_value"`
	Regex     bool           `json:"regex"`
	Confirmed bool           `json:"confirmed"`
	Count     int            `json:"count"`
}

// Store persists learned patterns in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the learning store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening learning database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LearnPII records that value is PII of the given type. The value is
// removed from the safe list if present; repeated confirmations bump the
// occurrence count.
func (s *Store) LearnPII(ctx context.Context, value string, typ detect.PIIType) error {
	ctx, span := tracer.Start(ctx, "learn.pii",
		trace.WithAttributes(attribute.String("pii.type", string(typ))))
	defer span.End()

	if strings.TrimSpace(value) == "" {
		return ErrEmptyValue
	}

	now := time.Now().UTC()
	if err := s.upsert(ctx, typ, value, false, true, now); err != nil {
		span.RecordError(err)
		return err
	}

	// A value cannot be both confirmed PII and confirmed safe.
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM learned_patterns WHERE confirmed = 0 AND value = ?`,
		strings.ToLower(value))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("clearing safe entry: %w", err)
	}
	return nil
}

// LearnSafe records that value is NOT PII; future exact sightings are
// suppressed from detection. Any confirmed entries for the value are
// removed.
func (s *Store) LearnSafe(ctx context.Context, value string, typ detect.PIIType) error {
	ctx, span := tracer.Start(ctx, "learn.safe",
		trace.WithAttributes(attribute.String("pii.type", string(typ))))
	defer span.End()

	if strings.TrimSpace(value) == "" {
		return ErrEmptyValue
	}

	now := time.Now().UTC()
	if err := s.upsert(ctx, typ, strings.ToLower(value), false, false, now); err != nil {
		span.RecordError(err)
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM learned_patterns WHERE confirmed = 1 AND is_regex = 0 AND lower(value) = ?`,
		strings.ToLower(value))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("clearing confirmed entry: %w", err)
	}
	return nil
}

// AddCustomPattern stores a user regex as a confirmed detection pattern.
func (s *Store) AddCustomPattern(ctx context.Context, pattern string, typ detect.PIIType) error {
	ctx, span := tracer.Start(ctx, "learn.add_custom_pattern",
		trace.WithAttributes(attribute.String("pii.type", string(typ))))
	defer span.End()

	if strings.TrimSpace(pattern) == "" {
		return ErrEmptyValue
	}
	return s.upsert(ctx, typ, pattern, true, true, time.Now().UTC())
}

// RemoveCustomPattern deletes a stored regex pattern.
func (s *Store) RemoveCustomPattern(ctx context.Context, pattern string, typ detect.PIIType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM learned_patterns WHERE is_regex = 1 AND pii_type = ? AND value = ?`,
		string(typ), pattern)
	if err != nil {
		return fmt.Errorf("removing custom pattern: %w", err)
	}
	return nil
}

// upsert inserts a pattern or bumps its count.
func (s *Store) upsert(ctx context.Context, typ detect.PIIType, value string, isRegex, confirmed bool, now time.Time) error {
	query := `
		INSERT INTO learned_patterns (id, pii_type, value, is_regex, confirmed, count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(pii_type, value, confirmed) DO UPDATE SET
			count = count + 1,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(), string(typ), value, isRegex, confirmed, now, now)
	if err != nil {
		return fmt.Errorf("storing learned pattern: %w", err)
	}
	return nil
}

// ConfirmedPatterns returns all confirmed exemplars (exact values and
// regexes). Implements detect.LearningSource.
func (s *Store) ConfirmedPatterns(ctx context.Context) ([]detect.LearnedPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pii_type, value, is_regex FROM learned_patterns
		 WHERE confirmed = 1 ORDER BY pii_type, value`)
	if err != nil {
		return nil, fmt.Errorf("querying confirmed patterns: %w", err)
	}
	defer rows.Close()

	var out []detect.LearnedPattern
	for rows.Next() {
		var typ, value string
		var isRegex bool
		if err := rows.Scan(&typ, &value, &isRegex); err != nil {
			return nil, fmt.Errorf("scanning pattern: %w", err)
		}
		out = append(out, detect.LearnedPattern{
			Type:  detect.PIIType(typ),
			Value: value,
			Regex: isRegex,
		})
	}
	return out, rows.Err()
}

// SafeValues returns the lowercased set of values confirmed as not PII.
// Implements detect.LearningSource.
func (s *Store) SafeValues(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM learned_patterns WHERE confirmed = 0`)
	if err != nil {
		return nil, fmt.Errorf("querying safe values: %w", err)
	}
	defer rows.Close()

	safe := make(map[string]struct{})
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scanning safe value: %w", err)
		}
		safe[strings.ToLower(value)] = struct{}{}
	}
	return safe, rows.Err()
}

// KnownPII reports whether value was confirmed as PII (exact entry,
// case-insensitive).
func (s *Store) KnownPII(ctx context.Context, value string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM learned_patterns
		 WHERE confirmed = 1 AND is_regex = 0 AND lower(value) = ?`,
		strings.ToLower(value)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying confirmed value: %w", err)
	}
	return n > 0, nil
}

// CustomPatterns returns the stored regex patterns.
func (s *Store) CustomPatterns(ctx context.Context) ([]Pattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pii_type, value, count FROM learned_patterns
		 WHERE is_regex = 1 ORDER BY pii_type, value`)
	if err != nil {
		return nil, fmt.Errorf("querying custom patterns: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		var p Pattern
		var typ string
		if err := rows.Scan(&typ, &p.Value, &p.Count); err != nil {
			return nil, fmt.Errorf("scanning custom pattern: %w", err)
		}
		p.Type = detect.PIIType(typ)
		p.Regex = true
		p.Confirmed = true
		out = append(out, p)
	}
	return out, rows.Err()
}

// IsKnownSafe reports whether value was confirmed as not PII.
func (s *Store) IsKnownSafe(ctx context.Context, value string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM learned_patterns WHERE confirmed = 0 AND value = ?`,
		strings.ToLower(value)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying safe value: %w", err)
	}
	return n > 0, nil
}

// Stats summarizes the stored exemplars.
type Stats struct {
	ConfirmedValues int                    `json:"confirmed_values"`
	SafeValues      int                    `json:"safe_values"`
	CustomPatterns  int                    `json:"custom_patterns"`
	ByType          map[detect.PIIType]int `json:"by_type"`
}

// Stats returns counts of learned data.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByType: make(map[detect.PIIType]int)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT pii_type, is_regex, confirmed, COUNT(*) FROM learned_patterns
		 GROUP BY pii_type, is_regex, confirmed`)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ string
		var isRegex, confirmed bool
		var n int
		if err := rows.Scan(&typ, &isRegex, &confirmed, &n); err != nil {
			return nil, fmt.Errorf("scanning stats: %w", err)
		}
		switch {
		case !confirmed:
			st.SafeValues += n
		case isRegex:
			st.CustomPatterns += n
			st.ByType[detect.PIIType(typ)] += n
		default:
			st.ConfirmedValues += n
			st.ByType[detect.PIIType(typ)] += n
		}
	}
	return st, rows.Err()
}

// Clear removes every learned pattern.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM learned_patterns`)
	if err != nil {
		return fmt.Errorf("clearing learned patterns: %w", err)
	}
	return nil
}

// all returns every stored pattern, confirmed and safe, for export.
func (s *Store) all(ctx context.Context) ([]Pattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pii_type, value, is_regex, confirmed, count FROM learned_patterns
		 ORDER BY pii_type, value, confirmed`)
	if err != nil {
		return nil, fmt.Errorf("querying patterns: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		var p Pattern
		var typ string
		if err := rows.Scan(&typ, &p.Value, &p.Regex, &p.Confirmed, &p.Count); err != nil {
			return nil, fmt.Errorf("scanning pattern: %w", err)
		}
		p.Type = detect.PIIType(typ)
		out = append(out, p)
	}
	return out, rows.Err()
}
