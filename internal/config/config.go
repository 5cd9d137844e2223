// Package config holds operator-level configuration for a cloak process.
//
// This is infrastructure config set by whoever embeds or deploys cloak,
// NOT per-document state. Per-document state (placeholder mappings) lives
// in encrypted mapping files owned by internal/mapping; cross-session
// learned patterns live in the SQLite store owned by internal/learn.
//
// Every key maps to an env var with the CLOAK_ prefix
// (e.g. "learned_db" → CLOAK_LEARNED_DB) and to a YAML field in
// cloak.config.yaml (e.g. learned_db: "...").
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Viper keys.
const (
	KeyDataDir       = "data_dir"
	KeyLearnedDB     = "learned_db"
	KeyNEREnabled    = "ner_enabled"
	KeyNERBaseURL    = "ner_base_url"
	KeyNERModel      = "ner_model"
	KeyNERAPIKey     = "ner_api_key"
	KeySessionTTLMin = "session_ttl_minutes"
	KeyLogLevel      = "log_level"
	KeyLogFormat     = "log_format"
)

// Defaults. The NER endpoint default targets a local Ollama instance
// exposing the OpenAI-compatible API; detection works without it.
const (
	DefaultNERBaseURL    = "http://localhost:11434/v1"
	DefaultNERModel      = "llama3.1"
	DefaultSessionTTLMin = 60
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
)

// Config holds resolved operator-level configuration for a cloak process.
type Config struct {
	DataDir       string        // Base directory for all state (~/.cloak)
	LearnedDBPath string        // SQLite file for the learning store
	NEREnabled    bool          // Whether the statistical NER detector runs
	NERBaseURL    string        // OpenAI-compatible endpoint for NER inference
	NERModel      string        // Model name for NER inference
	NERAPIKey     string        // API key for the NER endpoint (empty for local)
	SessionTTL    time.Duration // Idle lifetime of ephemeral sessions
	LogLevel      string
	LogFormat     string // "console" or "json"
}

// Load resolves configuration from (in precedence order) env vars,
// an optional cloak.config.yaml in the working directory or data dir,
// and built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLOAK")
	v.AutomaticEnv()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	defaultDataDir := filepath.Join(home, ".cloak")

	v.SetDefault(KeyDataDir, defaultDataDir)
	v.SetDefault(KeyNEREnabled, false)
	v.SetDefault(KeyNERBaseURL, DefaultNERBaseURL)
	v.SetDefault(KeyNERModel, DefaultNERModel)
	v.SetDefault(KeySessionTTLMin, DefaultSessionTTLMin)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)

	v.SetConfigName("cloak.config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(defaultDataDir)
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; anything else is an operator error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	dataDir := v.GetString(KeyDataDir)
	learnedDB := v.GetString(KeyLearnedDB)
	if learnedDB == "" {
		learnedDB = filepath.Join(dataDir, "learned.db")
	}

	return &Config{
		DataDir:       dataDir,
		LearnedDBPath: learnedDB,
		NEREnabled:    v.GetBool(KeyNEREnabled),
		NERBaseURL:    v.GetString(KeyNERBaseURL),
		NERModel:      v.GetString(KeyNERModel),
		NERAPIKey:     v.GetString(KeyNERAPIKey),
		SessionTTL:    time.Duration(v.GetInt(KeySessionTTLMin)) * time.Minute,
		LogLevel:      v.GetString(KeyLogLevel),
		LogFormat:     v.GetString(KeyLogFormat),
	}, nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}
