package types

// Column represents a single column as reported by the metadata source
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Table represents a table with its ordered columns and an optional description
type Table struct {
	Name        string   `json:"name"                  yaml:"name"`
	Columns     []Column `json:"columns"               yaml:"columns"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// ColumnNames returns the column names in ordinal order
func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		names = append(names, col.Name)
	}

	return names
}
