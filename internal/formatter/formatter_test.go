package formatter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/askdb/internal/types"
)

var usersTable = types.Table{
	Name: "users",
	Columns: []types.Column{
		{Name: "id", Type: "integer"},
		{Name: "email", Type: "text"},
	},
}

func TestCompactSchema(t *testing.T) {
	assert.Equal(t, "users: id(integer), email(text)", CompactSchema(usersTable))
	assert.Equal(t, "", CompactSchema(types.Table{Name: "empty"}))
}

func TestCompactLine(t *testing.T) {
	described := usersTable
	described.Description = "  Registered customers "

	line := CompactLine(described)
	assert.True(t, strings.HasPrefix(line, "users:"))
	assert.Contains(t, line, "id(integer)")
	assert.Contains(t, line, "email(text)")
	assert.True(t, strings.HasSuffix(line, " -- Registered customers"))

	assert.Equal(t, CompactSchema(usersTable), CompactLine(usersTable))
	assert.Equal(t, "", CompactLine(types.Table{Name: "empty", Description: "x"}))
}

func TestEmbeddingText(t *testing.T) {
	compact := CompactSchema(usersTable)

	assert.Equal(t, compact, EmbeddingText(compact, ""))
	assert.Equal(t, compact+"\nRegistered customers", EmbeddingText(compact, "Registered customers"))
}

func TestContentHash(t *testing.T) {
	a := ContentHash("users: id(integer)")
	b := ContentHash("users: id(integer)")
	c := ContentHash("users: id(bigint)")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestFormatRowsTable(t *testing.T) {
	f := NewFormatter()

	out, err := f.FormatRows(
		[]string{"id", "email"},
		[][]interface{}{{int64(1), "a@example.com"}, {int64(2), nil}},
		FormatTable,
	)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "id")
	assert.Contains(t, lines[0], "email")
	assert.Contains(t, lines[2], "a@example.com")
	assert.Contains(t, lines[3], "NULL")
	assert.Equal(t, "(2 rows)", lines[4])
}

func TestFormatRowsJSON(t *testing.T) {
	out, err := NewFormatter().FormatRows(
		[]string{"id", "name"},
		[][]interface{}{{int64(7), []byte("widget")}},
		FormatJSON,
	)
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, float64(7), decoded[0]["id"])
	assert.Equal(t, "widget", decoded[0]["name"])
}

func TestFormatRowsCSV(t *testing.T) {
	out, err := NewFormatter().FormatRows(
		[]string{"id", "note"},
		[][]interface{}{{1, "has, comma"}},
		FormatCSV,
	)
	require.NoError(t, err)
	assert.Equal(t, "id,note\n1,\"has, comma\"\n", out)
}

func TestTruncate(t *testing.T) {
	f := &Formatter{MaxCellWidth: 5}
	assert.Equal(t, "abcd…", f.truncate("abcdefgh"))
	assert.Equal(t, "abc", f.truncate("abc"))

	f.MaxCellWidth = 0
	assert.Equal(t, "abcdefgh", f.truncate("abcdefgh"))
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": FormatTable, "JSON": FormatJSON, "csv": FormatCSV} {
		got, err := ParseOutputFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseOutputFormat("xml")
	assert.Error(t, err)
}

func TestHumanizeAge(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		then     time.Time
		expected string
	}{
		{time.Time{}, "never"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-1 * time.Minute), "1 minute ago"},
		{now.Add(-5 * time.Hour), "5 hours ago"},
		{now.Add(-3 * 24 * time.Hour), "3 days ago"},
		{now.Add(-65 * 24 * time.Hour), "2 months ago"},
		{now.Add(-800 * 24 * time.Hour), "2 years ago"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanizeAgeAt(tt.then, now))
		})
	}
}
