package testutil

import "github.com/kyleking/askdb/internal/types"

// TableOption is a functional option for configuring test tables
type TableOption func(*types.Table)

// WithColumn appends a column
func WithColumn(name, typ string) TableOption {
	return func(t *types.Table) {
		t.Columns = append(t.Columns, types.Column{Name: name, Type: typ})
	}
}

// WithDescription sets the table description
func WithDescription(desc string) TableOption {
	return func(t *types.Table) {
		t.Description = desc
	}
}

// NewTable builds a table; with no column options it gets an integer id
func NewTable(name string, opts ...TableOption) types.Table {
	t := types.Table{Name: name}

	for _, opt := range opts {
		opt(&t)
	}

	if len(t.Columns) == 0 {
		t.Columns = []types.Column{{Name: "id", Type: "integer"}}
	}

	return t
}

// SampleTables returns a small shop schema: users, orders, products
func SampleTables() []types.Table {
	return []types.Table{
		NewTable("users", WithColumn("id", "integer"), WithColumn("email", "text"), WithColumn("created_at", "timestamp")),
		NewTable("orders", WithColumn("id", "integer"), WithColumn("user_id", "integer"), WithColumn("total", "numeric")),
		NewTable("products", WithColumn("id", "integer"), WithColumn("name", "text"), WithColumn("price", "numeric")),
	}
}

// UnitVector returns the i-th standard basis vector of length dim
func UnitVector(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1

	return v
}

// ManyTables returns n tables named table_000, table_001, ...
func ManyTables(n int) []types.Table {
	tables := make([]types.Table, n)
	for i := range tables {
		tables[i] = NewTable(TableName(i))
	}

	return tables
}
