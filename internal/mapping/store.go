// Package mapping owns the per-document bijection between original PII
// values and synthetic placeholders: deterministic placeholder issuance
// over per-type counters, reverse lookup for restoration, and encrypted
// save/load so a store can be reopened in a different process or session.
//
// One Store instance corresponds to one document or session and assumes a
// single writer; reads of a stabilized store are safe concurrently.
package mapping

import (
	"errors"
	"strings"
	"sync"

	"github.com/dativo-io/cloak/internal/detect"
	cloakotel "github.com/dativo-io/cloak/internal/otel"
)

var tracer = cloakotel.Tracer("github.com/dativo-io/cloak/internal/mapping")

var (
	// ErrWrongPassword is returned when the supplied password fails the
	// stored verification hash. Decryption is never attempted in that case,
	// so the caller can safely re-prompt.
	ErrWrongPassword = errors.New("wrong password")

	// ErrCorruptStore is returned when authenticated decryption fails after
	// password verification succeeded. The file is damaged or tampered
	// with; there is no partial recovery.
	ErrCorruptStore = errors.New("mapping store corrupted")

	// ErrSessionOnlyStore is returned when saving a store created without a
	// password. Session stores hold live mapping data in memory only and
	// must be destroyed explicitly instead of persisted.
	ErrSessionOnlyStore = errors.New("store has no password and cannot be persisted")
)

// Restoration is one placeholder → original pair.
type Restoration struct {
	Placeholder string
	Original    string
}

// entry is one mapping record within a type partition.
type entry struct {
	Placeholder string
	Original    string
}

// Store is the placeholder mapping for one document or session.
type Store struct {
	mu       sync.RWMutex
	byType   map[detect.PIIType][]entry
	forward  map[string]string // "type:lower(original)" → placeholder
	reverse  map[string]string // placeholder → original
	order    []string          // placeholders in issuance order
	counters map[detect.PIIType]int
	password string
	style    Style
}

// StoreOption configures a Store at construction.
type StoreOption func(*Store)

// WithRealisticNames renders person and organization placeholders from
// fixed name pools instead of bracketed tags.
func WithRealisticNames() StoreOption {
	return func(s *Store) { s.style = StyleRealistic }
}

// NewStore creates a mapping store. A non-empty password enables
// SaveToFile; an empty password creates a session-only store whose data
// lives in memory until Destroy.
func NewStore(password string, opts ...StoreOption) *Store {
	s := &Store{
		byType:   make(map[detect.PIIType][]entry),
		forward:  make(map[string]string),
		reverse:  make(map[string]string),
		counters: make(map[detect.PIIType]int),
		password: password,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func lookupKey(typ detect.PIIType, original string) string {
	return string(typ) + ":" + strings.ToLower(original)
}

// Allocate returns the placeholder for (type, original), issuing a new one
// from the type's counter on first sighting. Issuance is deterministic
// given prior store state, and a placeholder never changes once issued.
func (s *Store) Allocate(original string, typ detect.PIIType) (string, error) {
	key := lookupKey(typ, original)

	s.mu.RLock()
	if ph, ok := s.forward[key]; ok {
		s.mu.RUnlock()
		return ph, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if ph, ok := s.forward[key]; ok {
		return ph, nil
	}

	s.counters[typ]++
	ph := renderPlaceholder(typ, s.counters[typ], s.style)
	s.insertLocked(original, ph, typ)
	return ph, nil
}

// Record stores an explicit (original, placeholder) pair, used when a
// caller supplies a custom placeholder. Recording an original that is
// already mapped returns its existing placeholder unchanged, preserving
// the bijection.
func (s *Store) Record(original, placeholder string, typ detect.PIIType) string {
	key := lookupKey(typ, original)

	s.mu.Lock()
	defer s.mu.Unlock()
	if ph, ok := s.forward[key]; ok {
		return ph
	}
	s.insertLocked(original, placeholder, typ)
	return placeholder
}

// insertLocked adds a new pair to all indexes. Caller holds the write lock.
func (s *Store) insertLocked(original, placeholder string, typ detect.PIIType) {
	s.byType[typ] = append(s.byType[typ], entry{Placeholder: placeholder, Original: original})
	s.forward[lookupKey(typ, original)] = placeholder
	s.reverse[placeholder] = original
	s.order = append(s.order, placeholder)
}

// Placeholder returns the existing placeholder for (type, original), if any.
func (s *Store) Placeholder(original string, typ detect.PIIType) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ph, ok := s.forward[lookupKey(typ, original)]
	return ph, ok
}

// Restore returns the original value behind a placeholder.
func (s *Store) Restore(placeholder string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	original, ok := s.reverse[placeholder]
	return original, ok
}

// Restorations returns every placeholder → original pair in issuance order.
func (s *Store) Restorations() []Restoration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Restoration, 0, len(s.order))
	for _, ph := range s.order {
		out = append(out, Restoration{Placeholder: ph, Original: s.reverse[ph]})
	}
	return out
}

// Stats summarizes the stored mappings.
type Stats struct {
	TotalMappings int                    `json:"total_mappings"`
	ByType        map[detect.PIIType]int `json:"by_type"`
}

// Stats returns mapping counts per type.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{ByType: make(map[detect.PIIType]int, len(s.byType))}
	for typ, entries := range s.byType {
		st.ByType[typ] = len(entries)
		st.TotalMappings += len(entries)
	}
	return st
}

// Len returns the number of stored mappings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Destroy purges all mapping data. Session stores substitute this
// explicit-purge discipline for the at-rest encryption of persisted
// stores, so cleanup paths must call it.
func (s *Store) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.forward {
		delete(s.forward, k)
	}
	for k := range s.reverse {
		delete(s.reverse, k)
	}
	for k := range s.byType {
		delete(s.byType, k)
	}
	for k := range s.counters {
		delete(s.counters, k)
	}
	s.order = nil
}
