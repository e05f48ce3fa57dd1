package telemetry

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var canonicalRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`)

// =============================================================================
// Timestamp parsing
// =============================================================================

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"iso zulu", "2024-03-01T08:15:30Z", "2024-03-01T08:15:30Z"},
		{"iso no zone", "2024-03-01T08:15:30", "2024-03-01T08:15:30Z"},
		{"iso long fraction", "2024-03-01T08:15:30.1234567Z", "2024-03-01T08:15:30Z"},
		{"iso short fraction", "2024-03-01T08:15:30.5", "2024-03-01T08:15:30Z"},
		{"space separated", "2024-03-01 08:15:30", "2024-03-01T08:15:30Z"},
		{"slash separated", "2024/03/01 08:15:30", "2024-03-01T08:15:30Z"},
		{"date only", "2024-03-01", "2024-03-01T00:00:00Z"},
		{"offset stripped not converted", "2024-03-01T08:15:30+03:00", "2024-03-01T08:15:30Z"},
		{"offset with fraction", "2024-03-01T08:15:30.250-05:00", "2024-03-01T08:15:30Z"},
		{"epoch seconds", float64(1709280930), "2024-03-01T08:15:30Z"},
		{"epoch millis", float64(1709280930000), "2024-03-01T08:15:30Z"},
		{"epoch int", 1709280930, "2024-03-01T08:15:30Z"},
		{"epoch string", "1709280930", "2024-03-01T08:15:30Z"},
		{"json number", json.Number("1709280930000"), "2024-03-01T08:15:30Z"},
		{"padded", "  2024-03-01T08:15:30Z  ", "2024-03-01T08:15:30Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			require.True(t, ok)
			assert.Equal(t, tt.want, FormatTimestamp(got))
			assert.Regexp(t, canonicalRe, FormatTimestamp(got))
		})
	}
}

func TestParseTimestamp_Unparseable(t *testing.T) {
	for _, input := range []any{nil, "", "yesterday", "03/01/2024", "2024-13-45", true, -5.0, []string{"x"}} {
		_, ok := ParseTimestamp(input)
		assert.False(t, ok, "%v", input)
	}
}

func TestParseTimestamp_JSONForm(t *testing.T) {
	ts, ok := ParseTimestamp("2024-03-01T08:15:30.999Z")
	require.True(t, ok)

	b, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-01T08:15:30Z"`, string(b))
}

func TestSyntheticTimestamp(t *testing.T) {
	ref := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)

	got := SyntheticTimestamp(ref, 3)

	assert.Equal(t, "2024-03-01T12:03:00Z", FormatTimestamp(got))
}

// =============================================================================
// Severity
// =============================================================================

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score int
		want  Level
	}{
		{0, LevelLow}, {29, LevelLow}, {30, LevelMedium}, {59, LevelMedium},
		{60, LevelHigh}, {79, LevelHigh}, {80, LevelCritical}, {100, LevelCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForScore(tt.score), "score %d", tt.score)
	}
}

func TestSeverityLevelMapping(t *testing.T) {
	assert.Equal(t, LevelLow, Severity(2).Level())
	assert.Equal(t, LevelMedium, Severity(5).Level())
	assert.Equal(t, LevelHigh, Severity(7).Level())
	assert.Equal(t, LevelCritical, Severity(9).Level())
	assert.Equal(t, LevelCritical, Severity(42).Level())

	for _, l := range []Level{LevelLow, LevelMedium, LevelHigh, LevelCritical} {
		assert.Equal(t, l, l.Severity().Level(), "round trip %s", l)
	}
	assert.True(t, LevelCritical.AtLeast(LevelHigh))
	assert.False(t, LevelMedium.AtLeast(LevelHigh))
	assert.Equal(t, Severity(6), Severity(3).Floor(6))
}

// =============================================================================
// Tags / raw / accessors
// =============================================================================

func TestTags_Dedup(t *testing.T) {
	tags := NewTags("simulated", "normalized", "windows")
	tags = tags.Add("windows", "authentication", "", "authentication")

	assert.Equal(t, Tags{"simulated", "normalized", "windows", "authentication"}, tags)
	assert.True(t, tags.Has("authentication"))
}

func TestTruncateRaw(t *testing.T) {
	record := map[string]any{
		"EventID":  4624,
		"Computer": "DC01",
		"Nested":   map[string]any{"a": 1},
		"Result":   []any{1, 2, 3, 4, 5},
	}
	for i := 0; i < 30; i++ {
		record[string(rune('a'+i%26))+string(rune('A'+i/26))] = i
	}

	out := TruncateRaw(record, RawKeyBudget)

	assert.Len(t, out, RawKeyBudget)
	assert.Equal(t, 4624, out["EventID"])
	assert.Len(t, out["Result"], 3)
	assert.NotContains(t, out, "Nested")
	assert.Nil(t, TruncateRaw(nil, RawKeyBudget))
}

func TestEventAccessors(t *testing.T) {
	e := Event{
		Device:  &Device{Hostname: "unknown"},
		Network: &Network{SrcIP: "1.2.3.4", SrcGeo: GeoFromCode("TR-IST")},
		Details: map[string]any{"operation_count": float64(25), "urls": []any{"a", "b"}},
	}

	assert.True(t, e.DeviceUnknown())
	assert.Equal(t, "TR", e.SrcCountry())
	assert.Equal(t, "IST, TR", e.SrcLocation())
	assert.Equal(t, 25, e.DetailInt("operation_count"))
	assert.Equal(t, "a;b", e.Detail("urls"))
	assert.True(t, e.AddIOCMatch(IOCMatch{Type: "ip", Value: "1.2.3.4", List: "malicious_ips"}))
	assert.False(t, e.AddIOCMatch(IOCMatch{Type: "ip", Value: "1.2.3.4", List: "malicious_ips"}))
	assert.Empty(t, (&Event{}).UserEmail())
}
