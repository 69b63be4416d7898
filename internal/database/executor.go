package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
)

// Result holds the rows of one executed query
type Result struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	Truncated bool            `json:"truncated"`
	Elapsed   time.Duration   `json:"elapsed"`
}

// Executor runs already validated SELECT statements
type Executor struct {
	db      *DB
	timeout time.Duration
	logger  *logging.Logger
}

// NewExecutor creates an executor; a zero timeout leaves deadlines to the caller
func NewExecutor(db *DB, timeout time.Duration, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &Executor{db: db, timeout: timeout, logger: logger.WithField("component", "executor")}
}

// readOnlyTx reports whether the driver honors sql.TxOptions.ReadOnly
func (e *Executor) readOnlyTx() bool {
	return e.db.driver == DriverPostgres || e.db.driver == DriverMySQL
}

// WrapLimit bounds a query to limit rows, plus one to detect truncation
func WrapLimit(query string, limit int) string {
	if limit <= 0 {
		return query
	}

	return fmt.Sprintf("SELECT * FROM (%s) AS askdb_result LIMIT %d", query, limit+1)
}

// Query runs query and returns at most limit rows (0 means unlimited)
func (e *Executor) Query(ctx context.Context, query string, limit int) (*Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()

	var opts *sql.TxOptions
	if e.readOnlyTx() {
		opts = &sql.TxOptions{ReadOnly: true}
	}

	tx, err := e.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, WrapLimit(query, limit))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "query failed")
	}

	result, err := collect(rows, limit)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to finish query")
	}

	result.Elapsed = time.Since(start)

	e.logger.WithFields(map[string]interface{}{
		"rows":      len(result.Rows),
		"truncated": result.Truncated,
		"elapsed":   result.Elapsed.String(),
	}).Debug("query executed")

	return result, nil
}

func collect(rows *sql.Rows, limit int) (*Result, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to read result columns")
	}

	result := &Result{Columns: columns}

	for rows.Next() {
		if limit > 0 && len(result.Rows) == limit {
			result.Truncated = true
			break
		}

		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan row")
		}

		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to read rows")
	}

	return result, nil
}
