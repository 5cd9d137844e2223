package detect

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRecognizerFileMissingIsNoop(t *testing.T) {
	rf, err := LoadRecognizerFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Nil(t, rf)
}

func TestParseRecognizerFileRejectsBadYAML(t *testing.T) {
	_, err := ParseRecognizerFile([]byte("recognizers: [not: valid: yaml"))
	assert.Error(t, err)
}

func TestMergeRecognizersOverridesByName(t *testing.T) {
	base := []RecognizerConfig{
		{Name: "EmailRecognizer", Type: "email"},
		{Name: "PhoneRecognizer", Type: "phone"},
	}
	disabled := false
	overrides := []RecognizerConfig{
		{Name: "EmailRecognizer", Type: "email", Enabled: &disabled},
		{Name: "BadgeRecognizer", Type: "custom"},
	}

	merged := MergeRecognizers(base, overrides)
	require.Len(t, merged, 3)
	assert.Equal(t, "EmailRecognizer", merged[0].Name)
	assert.False(t, merged[0].isEnabled())
	assert.Equal(t, "PhoneRecognizer", merged[1].Name)
	assert.Equal(t, "BadgeRecognizer", merged[2].Name)
}

func TestFilterByTypes(t *testing.T) {
	recognizers := []RecognizerConfig{
		{Name: "EmailRecognizer", Type: "email"},
		{Name: "PhoneRecognizer", Type: "phone"},
		{Name: "SSNRecognizer", Type: "ssn"},
	}

	whitelisted := FilterByTypes(recognizers, []PIIType{TypeEmail, TypeSSN}, nil)
	require.Len(t, whitelisted, 2)
	assert.Equal(t, "EmailRecognizer", whitelisted[0].Name)
	assert.Equal(t, "SSNRecognizer", whitelisted[1].Name)

	blocked := FilterByTypes(recognizers, nil, []PIIType{TypePhone})
	require.Len(t, blocked, 2)

	both := FilterByTypes(recognizers, []PIIType{TypeEmail, TypePhone}, []PIIType{TypePhone})
	require.Len(t, both, 1)
	assert.Equal(t, "EmailRecognizer", both[0].Name)
}

func TestCompileRecognizersSkipsDisabled(t *testing.T) {
	disabled := false
	configs := []RecognizerConfig{
		{
			Name: "A", Type: "email",
			Patterns: []PatternConfig{{Name: "p1", Regex: `a+`, Score: 0.5}},
		},
		{
			Name: "B", Type: "phone", Enabled: &disabled,
			Patterns: []PatternConfig{{Name: "p2", Regex: `b+`, Score: 0.5}},
		},
	}

	compiled, err := CompileRecognizers(configs)
	require.NoError(t, err)
	require.Len(t, compiled, 1)
	assert.Equal(t, "A", compiled[0].Name)
}

func TestCompileRecognizersRejectsBadRegex(t *testing.T) {
	_, err := CompileRecognizers([]RecognizerConfig{
		{
			Name: "Broken", Type: "custom",
			Patterns: []PatternConfig{{Name: "bad", Regex: `[unclosed`, Score: 0.5}},
		},
	})
	assert.Error(t, err)
}

func TestRecognizerFileOverridesEngine(t *testing.T) {
	override := `
recognizers:
  - name: EmailRecognizer
    type: email
    enabled: false
  - name: BadgeRecognizer
    type: custom
    patterns:
      - name: badge
        regex: 'BDG-[0-9]{5}'
        score: 0.95
`
	path := filepath.Join(t.TempDir(), "recognizers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(override), 0o600))

	engine, err := NewEngine(WithRecognizerFile(path))
	require.NoError(t, err)

	matches, err := engine.Detect(context.Background(),
		"badge BDG-00417 belongs to user@example.com")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, TypeCustom, matches[0].Type)
	assert.Equal(t, "BDG-00417", matches[0].Text)
}

func TestEngineTypeFilters(t *testing.T) {
	engine, err := NewEngine(WithDisabledTypes(TypePhone))
	require.NoError(t, err)

	matches, err := engine.Detect(context.Background(), "call 555-123-4567 or mail a@b.co")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, TypeEmail, matches[0].Type)
}
