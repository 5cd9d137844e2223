package detect

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// RecognizerFile is the top-level YAML structure for a recognizer config
// file, both the embedded defaults and user override files.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig declares one structured-pattern recognizer.
type RecognizerConfig struct {
	Name          string          `yaml:"name"`
	Type          string          `yaml:"type"`
	Enabled       *bool           `yaml:"enabled,omitempty"`
	Patterns      []PatternConfig `yaml:"patterns,omitempty"`
	Context       []string        `yaml:"context,omitempty"`
	ValidateLuhn  bool            `yaml:"validate_luhn,omitempty"`
	GuardBoundary bool            `yaml:"guard_boundary,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name"`
	Regex string  `yaml:"regex"`
	Score float64 `yaml:"score"`
}

// isEnabled returns true if the recognizer is enabled (defaults to true when nil).
func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// Recognizer is a compiled, ready-to-use structured pattern.
type Recognizer struct {
	Name          string
	Type          PIIType
	Pattern       *regexp.Regexp
	Score         float64
	Context       []string
	ValidateLuhn  bool
	GuardBoundary bool
}

// ParseRecognizerFile parses recognizer YAML bytes into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing override file as a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// MergeRecognizers layers recognizer lists: later layers override earlier
// ones by matching on the recognizer Name field, new recognizers append.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, rc)
			}
		}
	}

	return merged
}

// FilterByTypes applies enabled/disabled type filters to a recognizer list.
// A non-empty enabled list acts as a whitelist, then disabled entries are
// removed.
func FilterByTypes(recognizers []RecognizerConfig, enabled, disabled []PIIType) []RecognizerConfig {
	result := recognizers

	if len(enabled) > 0 {
		allowed := make(map[string]bool, len(enabled))
		for _, t := range enabled {
			allowed[string(t)] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if allowed[r.Type] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	if len(disabled) > 0 {
		blocked := make(map[string]bool, len(disabled))
		for _, t := range disabled {
			blocked[string(t)] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if !blocked[r.Type] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	return result
}

// CompileRecognizers converts recognizer configs into the compiled
// []Recognizer slice used at detection time. Disabled recognizers are
// skipped; each regex pattern produces one Recognizer entry.
func CompileRecognizers(configs []RecognizerConfig) ([]Recognizer, error) {
	var compiled []Recognizer

	for _, rc := range configs {
		if !rc.isEnabled() {
			continue
		}
		for _, p := range rc.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rc.Name, err)
			}
			compiled = append(compiled, Recognizer{
				Name:          rc.Name,
				Type:          PIIType(rc.Type),
				Pattern:       re,
				Score:         p.Score,
				Context:       rc.Context,
				ValidateLuhn:  rc.ValidateLuhn,
				GuardBoundary: rc.GuardBoundary,
			})
		}
	}

	return compiled, nil
}
