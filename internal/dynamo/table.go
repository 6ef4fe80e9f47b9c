package dynamo

import "fmt"

// Table is a named-column numeric table, the common currency between
// pipeline stages and the CSV writer.
type Table struct {
	Columns []string
	Rows    [][]float64
}

func NewTable(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Append adds a row. The row length must match the column count.
func (t *Table) Append(row ...float64) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("row of %d values for %d columns: %w", len(row), len(t.Columns), ErrDimensionMismatch)
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Index returns the position of name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column copies out a column by name.
func (t *Table) Column(name string) ([]float64, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("no column %q", name)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

func (t *Table) Len() int { return len(t.Rows) }
