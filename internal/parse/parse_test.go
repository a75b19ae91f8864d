package parse

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var istanbul = time.FixedZone("UTC+3", 3*3600)

func TestBool(t *testing.T) {
	testCases := []struct {
		in   any
		want bool
	}{
		{true, true},
		{false, false},
		{json.Number("1"), true},
		{json.Number("0"), false},
		{"true", true},
		{"TRUE", true},
		{"false", false},
		{"yes", false},
		{nil, false},
		{map[string]any{}, false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, Bool(tc.in), "Bool(%#v)", tc.in)
	}
}

func TestIntAndFloat(t *testing.T) {
	n, ok := Int(json.Number("25"))
	assert.True(t, ok)
	assert.Equal(t, 25, n)

	n, ok = Int("12.9")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = Int("abc")
	assert.False(t, ok)

	f, ok := Float(json.Number("17.5"))
	assert.True(t, ok)
	assert.Equal(t, 17.5, f)

	_, ok = Float(nil)
	assert.False(t, ok)
}

func TestString(t *testing.T) {
	assert.Equal(t, "3", String(json.Number("3")))
	assert.Equal(t, "3", String(3.0))
	assert.Equal(t, "2.5", String(json.Number("2.5")))
	assert.Equal(t, "A1", String("A1"))
	assert.Equal(t, "", String(nil))
	assert.Equal(t, "true", String(true))
}

func TestLastSeen(t *testing.T) {
	got, err := LastSeen("2024-05-01 12:30:00", istanbul)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)))

	_, err = LastSeen("2024-05-01T12:30:00", istanbul)
	assert.Error(t, err)
	_, err = LastSeen("---", istanbul)
	assert.Error(t, err)
}

func TestTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 30, 0, 0, istanbul)

	testCases := []struct {
		name string
		in   any
	}{
		{"panel layout", "2024-05-01 12:30:00"},
		{"iso without zone", "2024-05-01T12:30:00"},
		{"rfc3339 utc", "2024-05-01T09:30:00Z"},
		{"dotted", "01.05.2024 12:30:00"},
		{"epoch seconds", json.Number("1714555800")},
		{"epoch millis", json.Number("1714555800000")},
		{"epoch as text", "1714555800"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Timestamp(tc.in, istanbul)
			require.True(t, ok)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}

	for _, bad := range []any{"", "yesterday", nil, true, json.Number("-5")} {
		_, ok := Timestamp(bad, istanbul)
		assert.False(t, ok, "Timestamp(%#v)", bad)
	}
}

func TestSortSlotIDs(t *testing.T) {
	ids := []string{"10", "b", "2", "a", "1", "02", "100"}
	SortSlotIDs(ids)
	assert.Equal(t, []string{"1", "02", "2", "10", "100", "a", "b"}, ids)
}

func TestValidKey(t *testing.T) {
	assert.NoError(t, ValidKey("ETM_001"))
	assert.NoError(t, ValidKey("3"))
	for _, bad := range []string{"", "a/b", "a.b", "a#", "$x", "[0]", "tab\tkey"} {
		assert.ErrorIs(t, ValidKey(bad), ErrInvalidKey, "ValidKey(%q)", bad)
	}
}
