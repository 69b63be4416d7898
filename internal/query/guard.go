package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/llm"
	"github.com/kyleking/askdb/internal/monitor"
)

var (
	leadingFence  = regexp.MustCompile("(?i)^```(?:sql)?[ \t]*\n?")
	trailingFence = regexp.MustCompile("\\s*```\\s*$")
	selectKeyword = regexp.MustCompile(`(?i)\bSELECT\b`)
	selectPrefix  = regexp.MustCompile(`(?i)^\s*SELECT\b`)
	mutatingWord  = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|REPLACE|MERGE|GRANT|REVOKE)\b`)
)

type dangerousPattern struct {
	name string
	re   *regexp.Regexp
}

// Checked in order; the first hit is reported.
var dangerousPatterns = []dangerousPattern{
	{"stacked statement", regexp.MustCompile(`(?i);\s*(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|REPLACE|MERGE|GRANT|REVOKE|EXEC|EXECUTE)\b`)},
	{"file write", regexp.MustCompile(`(?i)\bINTO\s+(OUTFILE|DUMPFILE)\b`)},
	{"file read", regexp.MustCompile(`(?i)\bLOAD_FILE\s*\(`)},
	{"timing function", regexp.MustCompile(`(?i)\bBENCHMARK\s*\(`)},
	{"timing function", regexp.MustCompile(`(?i)\b(PG_)?SLEEP\s*\(`)},
	{"timing function", regexp.MustCompile(`(?i)\bWAITFOR\s+DELAY\b`)},
	{"trailing line comment", regexp.MustCompile(`(?m)--[^\n]*$`)},
	{"block comment", regexp.MustCompile(`/\*`)},
}

// IsErrorResponse reports whether the model declined with the error sentinel
func IsErrorResponse(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), llm.ErrorSentinel)
}

// ErrorMessage returns the reason following the error sentinel
func ErrorMessage(text string) string {
	idx := strings.Index(text, llm.ErrorSentinel)
	if idx < 0 {
		return "Unknown error"
	}

	rest := text[idx+len(llm.ErrorSentinel):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}

	if msg := strings.TrimSpace(rest); msg != "" {
		return msg
	}

	return "Unknown error"
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")

	return strings.TrimSpace(s)
}

// ExtractSQL pulls the statement out of a model response. Sentinel
// responses are returned unchanged.
func ExtractSQL(text string) string {
	if IsErrorResponse(text) {
		return text
	}

	s := stripFences(text)

	// Drop conversational preamble.
	if loc := selectKeyword.FindStringIndex(s); loc != nil {
		s = s[loc[0]:]
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ";")

	return strings.TrimSpace(s)
}

// IsSelectOnly reports whether sql is a SELECT with no mutating keyword
// anywhere in it
func IsSelectOnly(sql string) bool {
	s := stripFences(sql)

	return selectPrefix.MatchString(s) && !mutatingWord.MatchString(s)
}

// Guard validates generated SQL before it is executed
type Guard struct {
	selectOnly bool
	forbidden  []forbiddenTable
}

type forbiddenTable struct {
	name string
	re   *regexp.Regexp
}

// NewGuard builds a guard from configuration
func NewGuard(cfg config.GuardConfig) *Guard {
	g := &Guard{selectOnly: cfg.SelectOnly}

	for _, name := range cfg.ForbiddenTables {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		g.forbidden = append(g.forbidden, forbiddenTable{
			name: name,
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`),
		})
	}

	return g
}

// FindForbiddenTable returns the first configured forbidden table named
// anywhere in sql
func (g *Guard) FindForbiddenTable(sql string) (string, bool) {
	for _, t := range g.forbidden {
		if t.re.MatchString(sql) {
			return t.name, true
		}
	}

	return "", false
}

// ContainsForbiddenTables reports whether sql names any forbidden table
func (g *Guard) ContainsForbiddenTables(sql string) bool {
	_, found := g.FindForbiddenTable(sql)
	return found
}

// Validate returns an *errors.UnsafeQueryError for the first violation found,
// checking select-only, then forbidden tables, then dangerous patterns
func (g *Guard) Validate(sql string) error {
	err := g.check(sql)
	if err != nil {
		monitor.ObserveGuardRejection(string(err.Kind))
		return err
	}

	return nil
}

func (g *Guard) check(sql string) *errors.UnsafeQueryError {
	if g.selectOnly && !IsSelectOnly(sql) {
		return errors.NewUnsafeQueryError(sql, errors.ViolationNonSelect,
			"only read-only SELECT statements are allowed")
	}

	if name, found := g.FindForbiddenTable(sql); found {
		return errors.NewUnsafeQueryError(sql, errors.ViolationForbiddenTable,
			fmt.Sprintf("query references forbidden table %q", name))
	}

	for _, p := range dangerousPatterns {
		if p.re.MatchString(sql) {
			return errors.NewUnsafeQueryError(sql, errors.ViolationDangerousPattern,
				"query contains a "+p.name)
		}
	}

	return nil
}
