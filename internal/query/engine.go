// Package query turns questions into validated SQL and optionally runs it.
package query

import (
	"context"
	"strings"
	"time"

	"github.com/kyleking/askdb/internal/database"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/llm"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/monitor"
	"github.com/kyleking/askdb/internal/schema"
)

// Ask outcomes, as recorded in metrics
const (
	OutcomeAnswered     = "answered"
	OutcomeGenerated    = "generated"
	OutcomeCannotAnswer = "cannot_answer"
	OutcomeRejected     = "rejected"
	OutcomeFailed       = "failed"
)

// SchemaSelector chooses the schema shown to the model
type SchemaSelector interface {
	Select(ctx context.Context, question string, explicitTables []string) (*schema.Selection, error)
}

// Runner executes validated SQL
type Runner interface {
	Query(ctx context.Context, sql string, limit int) (*database.Result, error)
}

// Options configures an Engine
type Options struct {
	// Runner may be nil, in which case every request behaves as a dry run
	Runner   Runner
	Dialect  string
	RowLimit int
	Logger   *logging.Logger
}

// Request is one question
type Request struct {
	Question string   `json:"question"`
	Tables   []string `json:"tables,omitempty"`
	DryRun   bool     `json:"dry_run,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// Answer is the outcome of a successful request
type Answer struct {
	Question     string           `json:"question"`
	SQL          string           `json:"sql"`
	Tables       []string         `json:"tables"`
	SchemaSource string           `json:"schema_source"`
	Executed     bool             `json:"executed"`
	Result       *database.Result `json:"result,omitempty"`
	Elapsed      time.Duration    `json:"elapsed"`
}

// Engine runs the ask pipeline: schema selection, completion, extraction,
// validation and optional execution
type Engine struct {
	schemas   SchemaSelector
	completer llm.Completer
	guard     *Guard
	opts      Options
	logger    *logging.Logger
}

// NewEngine creates an engine
func NewEngine(schemas SchemaSelector, completer llm.Completer, guard *Guard, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &Engine{
		schemas:   schemas,
		completer: completer,
		guard:     guard,
		opts:      opts,
		logger:    logger.WithField("component", "engine"),
	}
}

// Ask answers req. Rejections by the guard are returned as
// *errors.UnsafeQueryError; model refusals as ErrTypeCannotAnswer.
func (e *Engine) Ask(ctx context.Context, req Request) (*Answer, error) {
	answer, outcome, err := e.ask(ctx, req)
	monitor.ObserveAsk(outcome)

	return answer, err
}

func (e *Engine) ask(ctx context.Context, req Request) (*Answer, string, error) {
	start := time.Now()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, OutcomeFailed, errors.New(errors.ErrTypeValidation, "question must not be empty")
	}

	sel, err := e.schemas.Select(ctx, question, req.Tables)
	if err != nil {
		return nil, OutcomeFailed, errors.Wrap(err, errors.ErrTypeDatabase, "failed to load schema")
	}

	if sel.Schema == "" {
		return nil, OutcomeFailed, errors.New(errors.ErrTypeValidation, "no tables are visible to the model").
			WithSuggestion("check schema.tables and schema.exclude, or pass --tables")
	}

	log := e.logger.WithFields(map[string]interface{}{
		"schema_source": sel.Source,
		"tables":        len(sel.Tables),
	})

	system, user := llm.BuildPrompts(llm.PromptInput{
		Question: question,
		Schema:   sel.Schema,
		Dialect:  e.opts.Dialect,
		RowLimit: e.limit(req),
	})

	raw, err := e.completer.Complete(ctx, system, user)
	if err != nil {
		return nil, OutcomeFailed, err
	}

	if IsErrorResponse(raw) {
		msg := ErrorMessage(raw)
		log.WithField("reason", msg).Info("model declined to answer")

		return nil, OutcomeCannotAnswer, errors.New(errors.ErrTypeCannotAnswer, msg)
	}

	sql := ExtractSQL(raw)
	if sql == "" {
		return nil, OutcomeCannotAnswer, errors.New(errors.ErrTypeCannotAnswer, "model returned no SQL")
	}

	if err := e.guard.Validate(sql); err != nil {
		log.WithError(err).Warn("generated query rejected")
		return nil, OutcomeRejected, err
	}

	answer := &Answer{
		Question:     question,
		SQL:          sql,
		Tables:       sel.Tables,
		SchemaSource: sel.Source,
	}

	if req.DryRun || e.opts.Runner == nil {
		answer.Elapsed = time.Since(start)
		return answer, OutcomeGenerated, nil
	}

	result, err := e.opts.Runner.Query(ctx, sql, e.limit(req))
	if err != nil {
		return nil, OutcomeFailed, err
	}

	answer.Executed = true
	answer.Result = result
	answer.Elapsed = time.Since(start)

	log.WithField("rows", len(result.Rows)).Debug("question answered")

	return answer, OutcomeAnswered, nil
}

func (e *Engine) limit(req Request) int {
	if req.Limit > 0 {
		return req.Limit
	}

	return e.opts.RowLimit
}
