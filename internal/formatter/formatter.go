package formatter

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kyleking/askdb/internal/types"
)

// ColumnList renders columns as "name(type), name(type)"
func ColumnList(columns []types.Column) string {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, fmt.Sprintf("%s(%s)", col.Name, col.Type))
	}

	return strings.Join(parts, ", ")
}

// CompactSchema renders "<name>: col(type), ..." for a table. A table without
// columns renders as the empty string.
func CompactSchema(table types.Table) string {
	if len(table.Columns) == 0 {
		return ""
	}

	return table.Name + ": " + ColumnList(table.Columns)
}

// CompactLine is CompactSchema with " -- <description>" appended when set
func CompactLine(table types.Table) string {
	line := CompactSchema(table)
	if line == "" {
		return ""
	}

	if desc := strings.TrimSpace(table.Description); desc != "" {
		line += " -- " + desc
	}

	return line
}

// EmbeddingText is the text embedded for a table: its compact schema followed
// by the description on its own line, so questions phrased in business terms
// still land near the right table.
func EmbeddingText(compactSchema, description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return compactSchema
	}

	return compactSchema + "\n" + description
}

// ContentHash is the hex SHA-256 of a compact schema
func ContentHash(compactSchema string) string {
	sum := sha256.Sum256([]byte(compactSchema))
	return hex.EncodeToString(sum[:])
}

// OutputFormat represents the result output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
)

// ParseOutputFormat validates a user-supplied format name
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case FormatTable, "":
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown output format %q (must be table, json, or csv)", s)
	}
}

// Formatter renders query results
type Formatter struct {
	// MaxCellWidth truncates table cells; zero means unlimited
	MaxCellWidth int
}

// NewFormatter creates a new formatter instance
func NewFormatter() *Formatter {
	return &Formatter{MaxCellWidth: 60}
}

// FormatRows renders a result set in the requested format
func (f *Formatter) FormatRows(columns []string, rows [][]interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return f.formatJSON(columns, rows)
	case FormatCSV:
		return f.formatCSV(columns, rows)
	default:
		return f.formatTable(columns, rows), nil
	}
}

func (f *Formatter) formatTable(columns []string, rows [][]interface{}) string {
	var buf bytes.Buffer

	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(columns, "\t"))

	rule := make([]string, len(columns))
	for i, col := range columns {
		rule[i] = strings.Repeat("-", len(col))
	}

	_, _ = fmt.Fprintln(w, strings.Join(rule, "\t"))

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = f.truncate(FormatValue(v))
		}

		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}

	_ = w.Flush()

	noun := "rows"
	if len(rows) == 1 {
		noun = "row"
	}

	fmt.Fprintf(&buf, "(%d %s)\n", len(rows), noun)

	return buf.String()
}

func (f *Formatter) formatJSON(columns []string, rows [][]interface{}) (string, error) {
	records := make([]map[string]interface{}, 0, len(rows))

	for _, row := range rows {
		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if i < len(row) {
				record[col] = jsonValue(row[i])
			}
		}

		records = append(records, record)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode rows: %w", err)
	}

	return string(data) + "\n", nil
}

func (f *Formatter) formatCSV(columns []string, rows [][]interface{}) (string, error) {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return "", err
	}

	for _, row := range rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = FormatValue(v)
		}

		if err := w.Write(record); err != nil {
			return "", err
		}
	}

	w.Flush()

	return buf.String(), w.Error()
}

func (f *Formatter) truncate(s string) string {
	if f.MaxCellWidth <= 0 {
		return s
	}

	runes := []rune(s)
	if len(runes) <= f.MaxCellWidth {
		return s
	}

	return string(runes[:f.MaxCellWidth-1]) + "…"
}

// FormatValue renders a scanned database value for display
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case string:
		return strings.ReplaceAll(val, "\n", " ")
	default:
		return fmt.Sprint(val)
	}
}

func jsonValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}

	return v
}

// HumanizeAge converts a time to a human-readable age string
func HumanizeAge(t time.Time) string {
	return humanizeAgeAt(t, time.Now())
}

func humanizeAgeAt(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}

	d := now.Sub(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	}

	days := int(d.Hours() / 24)

	switch {
	case days < 30:
		return plural(days, "day") + " ago"
	case days < 365:
		return plural(days/30, "month") + " ago"
	default:
		return plural(days/365, "year") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}

	return fmt.Sprintf("%d %ss", n, unit)
}
