package database

import (
	"context"
	"fmt"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/types"
)

// MetadataSource lists tables and their columns for one connection
type MetadataSource interface {
	ListTables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]types.Column, error)
	ConnectionID() string
}

// NewIntrospector returns the metadata source matching the handle's dialect
func NewIntrospector(db *DB) MetadataSource {
	switch db.driver {
	case DriverSQLite:
		return &sqliteIntrospector{db: db}
	case DriverMySQL:
		return &infoSchemaIntrospector{db: db, schemaExpr: "DATABASE()", placeholder: "?"}
	case DriverDuckDB:
		return &infoSchemaIntrospector{db: db, schemaExpr: "current_schema()", placeholder: "?"}
	default:
		return &infoSchemaIntrospector{db: db, schemaExpr: "current_schema()", placeholder: "$1"}
	}
}

// infoSchemaIntrospector reads information_schema, shared by PostgreSQL,
// MySQL and DuckDB
type infoSchemaIntrospector struct {
	db          *DB
	schemaExpr  string
	placeholder string
}

func (i *infoSchemaIntrospector) ConnectionID() string {
	return i.db.ConnectionID()
}

func (i *infoSchemaIntrospector) ListTables(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf(`
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = %s
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`, i.schemaExpr)

	return queryStrings(ctx, i.db, q)
}

func (i *infoSchemaIntrospector) Columns(ctx context.Context, table string) ([]types.Column, error) {
	q := fmt.Sprintf(`
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = %s
		  AND table_name = %s
		ORDER BY ordinal_position`, i.schemaExpr, i.placeholder)

	return queryColumns(ctx, i.db, table, q, table)
}

type sqliteIntrospector struct {
	db *DB
}

func (s *sqliteIntrospector) ConnectionID() string {
	return s.db.ConnectionID()
}

func (s *sqliteIntrospector) ListTables(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.db, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
}

func (s *sqliteIntrospector) Columns(ctx context.Context, table string) ([]types.Column, error) {
	return queryColumns(ctx, s.db, table, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
}

func queryStrings(ctx context.Context, db *DB, q string) ([]string, error) {
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to list tables")
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan table name")
		}

		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to list tables")
	}

	return names, nil
}

func queryColumns(ctx context.Context, db *DB, table, q string, args ...interface{}) ([]types.Column, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to inspect table %s", table)
	}
	defer rows.Close()

	var cols []types.Column

	for rows.Next() {
		var col types.Column
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to scan column of %s", table)
		}

		cols = append(cols, col)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to inspect table %s", table)
	}

	return cols, nil
}
