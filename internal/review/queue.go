// Package review implements the uncertain-match workflow: a stateful queue
// over detections too weak to auto-redact, supporting out-of-order
// decisions with single resolution per index. A "yes" routes through the
// same allocator path as automatic redactions and records a confirmed
// exemplar; a "no" records a negative exemplar so the value stops
// resurfacing in future sessions.
package review

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dativo-io/cloak/internal/detect"
)

// ErrNoPendingMatch is returned when a decision references an index that
// does not exist or was already resolved. Decisions are single-shot: the
// second decision on an index reports this instead of double-allocating.
var ErrNoPendingMatch = errors.New("no pending match at index")

// Decision is a reviewer's verdict on an uncertain match.
type Decision int

const (
	DecisionYes Decision = iota
	DecisionNo
	DecisionSkip
)

// Allocator issues placeholders; a mapping.Store satisfies it.
type Allocator interface {
	Allocate(original string, typ detect.PIIType) (string, error)
}

// Learner records review outcomes; a learn.Store satisfies it. May be nil
// when no cross-session learning is wanted.
type Learner interface {
	LearnPII(ctx context.Context, value string, typ detect.PIIType) error
	LearnSafe(ctx context.Context, value string, typ detect.PIIType) error
}

// Resolution is the outcome of a yes/no decision.
type Resolution struct {
	Index       int
	Match       detect.Match
	Redacted    bool
	Placeholder string // set when Redacted
}

// IndexedMatch pairs a pending match with its stable queue index.
type IndexedMatch struct {
	Index int          `json:"index"`
	Match detect.Match `json:"match"`
}

type item struct {
	match    detect.Match
	resolved bool
}

// Queue holds uncertain matches awaiting decisions. Indices are stable
// for the queue's lifetime regardless of decision order.
type Queue struct {
	mu        sync.Mutex
	items     []item
	allocator Allocator
	learner   Learner
}

// NewQueue builds a queue over the given matches.
func NewQueue(matches []detect.Match, allocator Allocator, learner Learner) *Queue {
	items := make([]item, len(matches))
	for i, m := range matches {
		items[i] = item{match: m}
	}
	return &Queue{items: items, allocator: allocator, learner: learner}
}

// Next returns the first unresolved match and its index, or nil when
// nothing is pending.
func (q *Queue) Next() (int, *detect.Match) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if !q.items[i].resolved {
			m := q.items[i].match
			return i, &m
		}
	}
	return -1, nil
}

// Pending returns all unresolved matches with their stable indices.
func (q *Queue) Pending() []IndexedMatch {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []IndexedMatch
	for i := range q.items {
		if !q.items[i].resolved {
			out = append(out, IndexedMatch{Index: i, Match: q.items[i].match})
		}
	}
	return out
}

// Remaining returns the count of unresolved matches.
func (q *Queue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for i := range q.items {
		if !q.items[i].resolved {
			n++
		}
	}
	return n
}

// Decide resolves the match at index. Yes allocates a placeholder and
// records a confirmed exemplar; no records a negative exemplar and leaves
// the text unredacted; skip defers, keeping the match pending, and
// returns a nil Resolution. Re-deciding a resolved index returns
// ErrNoPendingMatch without mutating anything.
func (q *Queue) Decide(ctx context.Context, index int, decision Decision) (*Resolution, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.items) || q.items[index].resolved {
		return nil, ErrNoPendingMatch
	}
	m := q.items[index].match

	switch decision {
	case DecisionSkip:
		return nil, nil

	case DecisionYes:
		placeholder, err := q.allocator.Allocate(m.Text, m.Type)
		if err != nil {
			return nil, err
		}
		if q.learner != nil {
			if err := q.learner.LearnPII(ctx, m.Text, m.Type); err != nil {
				return nil, err
			}
		}
		q.items[index].resolved = true
		return &Resolution{Index: index, Match: m, Redacted: true, Placeholder: placeholder}, nil

	case DecisionNo:
		if q.learner != nil {
			if err := q.learner.LearnSafe(ctx, m.Text, m.Type); err != nil {
				return nil, err
			}
		}
		q.items[index].resolved = true
		return &Resolution{Index: index, Match: m, Redacted: false}, nil

	default:
		return nil, fmt.Errorf("unknown decision %d", decision)
	}
}
