package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "learned.db"), cfg.LearnedDBPath)
	assert.False(t, cfg.NEREnabled)
	assert.Equal(t, DefaultNERBaseURL, cfg.NERBaseURL)
	assert.Equal(t, DefaultNERModel, cfg.NERModel)
	assert.Equal(t, time.Duration(DefaultSessionTTLMin)*time.Minute, cfg.SessionTTL)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLOAK_DATA_DIR", dir)
	t.Setenv("CLOAK_NER_ENABLED", "true")
	t.Setenv("CLOAK_NER_MODEL", "mistral")
	t.Setenv("CLOAK_SESSION_TTL_MINUTES", "5")
	t.Setenv("CLOAK_LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "learned.db"), cfg.LearnedDBPath)
	assert.True(t, cfg.NEREnabled)
	assert.Equal(t, "mistral", cfg.NERModel)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLearnedDBOverride(t *testing.T) {
	t.Setenv("CLOAK_LEARNED_DB", "/var/lib/cloak/learned.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/cloak/learned.db", cfg.LearnedDBPath)
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	cfg := &Config{DataDir: dir}

	require.NoError(t, cfg.EnsureDataDir())
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
