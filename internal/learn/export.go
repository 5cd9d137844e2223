package learn

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// FileVersion is the learned-patterns file format version.
const FileVersion = 1

// patternFileSchema validates import files before anything is merged, so
// a malformed or hand-edited file can never half-apply.
const patternFileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "patterns"],
  "properties": {
    "version": {"type": "integer", "enum": [1]},
    "exported_at": {"type": "string"},
    "patterns": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "pattern_or_value", "confirmed"],
        "properties": {
          "type": {"type": "string", "minLength": 1},
          "pattern_or_value": {"type": "string", "minLength": 1},
          "regex": {"type": "boolean"},
          "confirmed": {"type": "boolean"},
          "count": {"type": "integer", "minimum": 0}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// patternFile is the on-disk learned-patterns format.
type patternFile struct {
	Version    int       `json:"version"`
	ExportedAt string    `json:"exported_at,omitempty"`
	Patterns   []Pattern `json:"patterns"`
}

// ExportToFile writes every learned pattern as versioned JSON.
func (s *Store) ExportToFile(ctx context.Context, path string) error {
	patterns, err := s.all(ctx)
	if err != nil {
		return err
	}
	if patterns == nil {
		patterns = []Pattern{}
	}

	pf := patternFile{
		Version:    FileVersion,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Patterns:   patterns,
	}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing learned patterns: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing learned patterns file: %w", err)
	}
	return nil
}

// ImportFromFile loads a learned-patterns file. With merge false the store
// is cleared first (whole-file overwrite); with merge true entries append
// onto existing ones, bumping counts for keys already present. The file is
// schema-validated before any mutation.
func (s *Store) ImportFromFile(ctx context.Context, path string, merge bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading learned patterns file: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(patternFileSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("validating learned patterns file: %w", err)
	}
	if !result.Valid() {
		var reasons []string
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return fmt.Errorf("invalid learned patterns file: %s", strings.Join(reasons, "; "))
	}

	var pf patternFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parsing learned patterns file: %w", err)
	}

	if !merge {
		if err := s.Clear(ctx); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	for _, p := range pf.Patterns {
		value := p.Value
		if !p.Confirmed {
			value = strings.ToLower(value)
		}
		if err := s.upsert(ctx, p.Type, value, p.Regex, p.Confirmed, now); err != nil {
			return err
		}
	}
	return nil
}
