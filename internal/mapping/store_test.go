package mapping

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/cloak/internal/detect"
)

func TestAllocateIsConsistentPerValue(t *testing.T) {
	s := NewStore("")

	first, err := s.Allocate("john@company.com", detect.TypeEmail)
	require.NoError(t, err)
	assert.Equal(t, "person1@example.com", first)

	// Same value, same placeholder, counter untouched.
	again, err := s.Allocate("john@company.com", detect.TypeEmail)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	// Lookup is case-insensitive on the original.
	upper, err := s.Allocate("JOHN@COMPANY.COM", detect.TypeEmail)
	require.NoError(t, err)
	assert.Equal(t, first, upper)

	second, err := s.Allocate("jane@company.com", detect.TypeEmail)
	require.NoError(t, err)
	assert.Equal(t, "person2@example.com", second)

	assert.Equal(t, 2, s.Len())
}

func TestCountersArePerType(t *testing.T) {
	s := NewStore("")

	tests := []struct {
		original string
		typ      detect.PIIType
		want     string
	}{
		{"John Doe", detect.TypePerson, "[Person1]"},
		{"john@company.com", detect.TypeEmail, "person1@example.com"},
		{"Jane Roe", detect.TypePerson, "[Person2]"},
		{"555-867-5309", detect.TypePhone, "555-000-0001"},
		{"123-45-6789", detect.TypeSSN, "XXX-XX-0001"},
		{"4111-1111-1111-1111", detect.TypeCreditCard, "XXXX-XXXX-XXXX-0001"},
		{"@jsmith", detect.TypeHandle, "@user1"},
		{"Initech", detect.TypeOrganization, "[Company1]"},
		{"Project Falcon", detect.TypeProject, "Project Alpha 1"},
		{"10.0.0.7", detect.TypeIP, "192.0.2.1"},
		{"https://x.io/a", detect.TypeURL, "https://example.com/page1"},
		{"1985-03-15", detect.TypeDateOfBirth, "[Date1]"},
		{"whatever", detect.TypeCustom, "[REDACTED-1]"},
	}

	for _, tt := range tests {
		got, err := s.Allocate(tt.original, tt.typ)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "type %s", tt.typ)
	}
}

func TestAllocationIsReplayable(t *testing.T) {
	inputs := []struct {
		original string
		typ      detect.PIIType
	}{
		{"a@x.io", detect.TypeEmail},
		{"b@x.io", detect.TypeEmail},
		{"John Doe", detect.TypePerson},
		{"c@x.io", detect.TypeEmail},
	}

	run := func() []string {
		s := NewStore("")
		var out []string
		for _, in := range inputs {
			ph, err := s.Allocate(in.original, in.typ)
			require.NoError(t, err)
			out = append(out, ph)
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestRealisticNamesStyle(t *testing.T) {
	s := NewStore("", WithRealisticNames())

	ph, err := s.Allocate("Olena Kovalchuk", detect.TypePerson)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", ph)

	org, err := s.Allocate("Initech", detect.TypeOrganization)
	require.NoError(t, err)
	assert.Equal(t, "Example Corp", org)

	// Pool exhaustion falls back to numbered placeholders.
	for i := 0; i < len(realisticNames)-1; i++ {
		_, err := s.Allocate(fmt.Sprintf("Person Number%d", i), detect.TypePerson)
		require.NoError(t, err)
	}
	overflow, err := s.Allocate("One TooMany", detect.TypePerson)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Person %d", len(realisticNames)+1), overflow)
}

func TestRecordKeepsBijection(t *testing.T) {
	s := NewStore("")

	ph := s.Record("Project Falcon", "[PROJ-X]", detect.TypeProject)
	assert.Equal(t, "[PROJ-X]", ph)

	// Re-recording the same original returns the existing placeholder.
	again := s.Record("Project Falcon", "[PROJ-Y]", detect.TypeProject)
	assert.Equal(t, "[PROJ-X]", again)

	original, ok := s.Restore("[PROJ-X]")
	require.True(t, ok)
	assert.Equal(t, "Project Falcon", original)
}

func TestRestorationsPreserveIssuanceOrder(t *testing.T) {
	s := NewStore("")

	_, err := s.Allocate("b@x.io", detect.TypeEmail)
	require.NoError(t, err)
	_, err = s.Allocate("John Doe", detect.TypePerson)
	require.NoError(t, err)
	_, err = s.Allocate("a@x.io", detect.TypeEmail)
	require.NoError(t, err)

	pairs := s.Restorations()
	require.Len(t, pairs, 3)
	assert.Equal(t, "person1@example.com", pairs[0].Placeholder)
	assert.Equal(t, "b@x.io", pairs[0].Original)
	assert.Equal(t, "[Person1]", pairs[1].Placeholder)
	assert.Equal(t, "person2@example.com", pairs[2].Placeholder)
}

func TestStats(t *testing.T) {
	s := NewStore("")
	_, _ = s.Allocate("a@x.io", detect.TypeEmail)
	_, _ = s.Allocate("b@x.io", detect.TypeEmail)
	_, _ = s.Allocate("John Doe", detect.TypePerson)

	st := s.Stats()
	assert.Equal(t, 3, st.TotalMappings)
	assert.Equal(t, 2, st.ByType[detect.TypeEmail])
	assert.Equal(t, 1, st.ByType[detect.TypePerson])
}

func TestDestroyPurgesEverything(t *testing.T) {
	s := NewStore("")
	_, err := s.Allocate("a@x.io", detect.TypeEmail)
	require.NoError(t, err)

	s.Destroy()

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Restorations())
	_, ok := s.Placeholder("a@x.io", detect.TypeEmail)
	assert.False(t, ok)
	_, ok = s.Restore("person1@example.com")
	assert.False(t, ok)
}
