package llm

import (
	"fmt"
	"strings"
)

// ErrorSentinel prefixes a model reply that declines to write SQL
const ErrorSentinel = "-- ERROR:"

// PromptInput carries everything the SQL generation prompt needs
type PromptInput struct {
	Question string
	Schema   string // compact schema, one table per line
	Dialect  string // e.g. "PostgreSQL", empty for generic SQL
	RowLimit int
}

const systemTemplate = `You are an expert at converting natural language questions into %s queries.
Answer with exactly one read-only SELECT statement and nothing else: no explanation, no markdown.

Guidelines:
1. Only use tables and columns that appear in the schema
2. Never modify data or schema: no INSERT, UPDATE, DELETE, DROP, ALTER or CREATE
3. Do not use comments or multiple statements
4. Use JOINs, WHERE, GROUP BY and ORDER BY as needed
%s
If the question cannot be answered from the schema, reply with a single line:
%s <short reason>`

// BuildPrompts renders the system and user prompts for one question
func BuildPrompts(in PromptInput) (systemPrompt, userPrompt string) {
	dialect := in.Dialect
	if dialect == "" {
		dialect = "SQL"
	} else {
		dialect += " SQL"
	}

	limitRule := ""
	if in.RowLimit > 0 {
		limitRule = fmt.Sprintf("5. Unless the question asks for a count or aggregate, add LIMIT %d\n", in.RowLimit)
	}

	systemPrompt = fmt.Sprintf(systemTemplate, dialect, limitRule, ErrorSentinel)

	var sb strings.Builder
	sb.WriteString("Database schema (table: column(type), ... -- description):\n")
	sb.WriteString(strings.TrimSpace(in.Schema))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(strings.TrimSpace(in.Question))

	return systemPrompt, sb.String()
}
