package learn

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/cloak/internal/detect"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "learned.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLearnPII(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LearnPII(ctx, "Project Phoenix", detect.TypeProject))

	patterns, err := s.ConfirmedPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, detect.TypeProject, patterns[0].Type)
	assert.Equal(t, "Project Phoenix", patterns[0].Value)
	assert.False(t, patterns[0].Regex)

	// Repeat confirmations bump the count instead of duplicating.
	require.NoError(t, s.LearnPII(ctx, "Project Phoenix", detect.TypeProject))
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ConfirmedValues)
}

func TestLearnSafe(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LearnSafe(ctx, "Sprint Review", detect.TypeProject))

	safe, err := s.SafeValues(ctx)
	require.NoError(t, err)
	_, ok := safe["sprint review"]
	assert.True(t, ok)

	known, err := s.IsKnownSafe(ctx, "SPRINT REVIEW")
	require.NoError(t, err)
	assert.True(t, known)
}

func TestPIIAndSafeAreMutuallyExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LearnPII(ctx, "Atlas", detect.TypeProject))

	// Marking the value safe evicts the confirmed entry.
	require.NoError(t, s.LearnSafe(ctx, "Atlas", detect.TypeProject))
	patterns, err := s.ConfirmedPatterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, patterns)

	// And confirming it again evicts the safe entry.
	require.NoError(t, s.LearnPII(ctx, "Atlas", detect.TypeProject))
	known, err := s.IsKnownSafe(ctx, "Atlas")
	require.NoError(t, err)
	assert.False(t, known)

	patterns, err = s.ConfirmedPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
}

func TestKnownPII(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LearnPII(ctx, "Project Phoenix", detect.TypeProject))

	known, err := s.KnownPII(ctx, "project phoenix")
	require.NoError(t, err)
	assert.True(t, known)

	known, err = s.KnownPII(ctx, "something else")
	require.NoError(t, err)
	assert.False(t, known)
}

func TestLearnRejectsEmptyValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.LearnPII(ctx, "   ", detect.TypePerson), ErrEmptyValue)
	assert.ErrorIs(t, s.LearnSafe(ctx, "", detect.TypePerson), ErrEmptyValue)
	assert.ErrorIs(t, s.AddCustomPattern(ctx, "", detect.TypeCustom), ErrEmptyValue)
}

func TestCustomPatterns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddCustomPattern(ctx, `EMP-[0-9]{4}`, detect.TypeCustom))

	patterns, err := s.ConfirmedPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.True(t, patterns[0].Regex)
	assert.Equal(t, `EMP-[0-9]{4}`, patterns[0].Value)

	custom, err := s.CustomPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, custom, 1)
	assert.Equal(t, detect.TypeCustom, custom[0].Type)

	require.NoError(t, s.RemoveCustomPattern(ctx, `EMP-[0-9]{4}`, detect.TypeCustom))
	patterns, err = s.ConfirmedPatterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestStatsBreakdown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LearnPII(ctx, "Atlas", detect.TypeProject))
	require.NoError(t, s.LearnPII(ctx, "Olena Kovalchuk", detect.TypePerson))
	require.NoError(t, s.LearnSafe(ctx, "Sprint Review", detect.TypeProject))
	require.NoError(t, s.AddCustomPattern(ctx, `EMP-[0-9]{4}`, detect.TypeCustom))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.ConfirmedValues)
	assert.Equal(t, 1, st.SafeValues)
	assert.Equal(t, 1, st.CustomPatterns)
	assert.Equal(t, 1, st.ByType[detect.TypeProject])
	assert.Equal(t, 1, st.ByType[detect.TypePerson])
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LearnPII(ctx, "Atlas", detect.TypeProject))
	require.NoError(t, s.LearnSafe(ctx, "Sprint Review", detect.TypeProject))
	require.NoError(t, s.Clear(ctx))

	patterns, err := s.ConfirmedPatterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, patterns)

	safe, err := s.SafeValues(ctx)
	require.NoError(t, err)
	assert.Empty(t, safe)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "learned.db")

	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.LearnPII(ctx, "Atlas", detect.TypeProject))
	require.NoError(t, s.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	patterns, err := reopened.ConfirmedPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "Atlas", patterns[0].Value)
}
