package learn

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/cloak/internal/detect"
)

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "patterns.json")

	src := newTestStore(t)
	require.NoError(t, src.LearnPII(ctx, "Atlas", detect.TypeProject))
	require.NoError(t, src.LearnSafe(ctx, "Sprint Review", detect.TypeProject))
	require.NoError(t, src.AddCustomPattern(ctx, `EMP-[0-9]{4}`, detect.TypeCustom))
	require.NoError(t, src.ExportToFile(ctx, path))

	dst := newTestStore(t)
	require.NoError(t, dst.ImportFromFile(ctx, path, false))

	patterns, err := dst.ConfirmedPatterns(ctx)
	require.NoError(t, err)
	assert.Len(t, patterns, 2)

	known, err := dst.IsKnownSafe(ctx, "sprint review")
	require.NoError(t, err)
	assert.True(t, known)
}

func TestExportedFileIsVersioned(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "patterns.json")

	s := newTestStore(t)
	require.NoError(t, s.LearnPII(ctx, "Atlas", detect.TypeProject))
	require.NoError(t, s.ExportToFile(ctx, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var pf patternFile
	require.NoError(t, json.Unmarshal(data, &pf))
	assert.Equal(t, FileVersion, pf.Version)
	assert.NotEmpty(t, pf.ExportedAt)
	assert.Len(t, pf.Patterns, 1)
}

func TestImportOverwriteVsMerge(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "patterns.json")

	src := newTestStore(t)
	require.NoError(t, src.LearnPII(ctx, "Atlas", detect.TypeProject))
	require.NoError(t, src.ExportToFile(ctx, path))

	dst := newTestStore(t)
	require.NoError(t, dst.LearnPII(ctx, "Borealis", detect.TypeProject))

	// Merge keeps the resident entry.
	require.NoError(t, dst.ImportFromFile(ctx, path, true))
	patterns, err := dst.ConfirmedPatterns(ctx)
	require.NoError(t, err)
	assert.Len(t, patterns, 2)

	// Overwrite clears first.
	require.NoError(t, dst.ImportFromFile(ctx, path, false))
	patterns, err = dst.ConfirmedPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "Atlas", patterns[0].Value)
}

func TestImportRejectsInvalidFileWithoutMutation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
	}{
		{"not json", "definitely not json"},
		{"wrong version", `{"version": 99, "patterns": []}`},
		{"missing patterns", `{"version": 1}`},
		{"bad pattern entry", `{"version": 1, "patterns": [{"type": "project"}]}`},
		{"unknown field", `{"version": 1, "patterns": [], "extra": true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			require.NoError(t, s.LearnPII(ctx, "Atlas", detect.TypeProject))

			path := filepath.Join(t.TempDir(), "bad.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			// Even a non-merge import must leave the store untouched on a
			// validation failure.
			require.Error(t, s.ImportFromFile(ctx, path, false))

			patterns, err := s.ConfirmedPatterns(ctx)
			require.NoError(t, err)
			require.Len(t, patterns, 1)
			assert.Equal(t, "Atlas", patterns[0].Value)
		})
	}
}
