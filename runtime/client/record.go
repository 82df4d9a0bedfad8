package client

import (
	"github.com/jmoiron/sqlx"
)

// Record is one result row. Its shape depends on the cursor mode that read
// it: plain records carry values only, named records carry ordered columns,
// and dict records also index their columns by name.
type Record struct {
	columns []string
	values  []any
	index   map[string]any
}

// NewRecord builds a record from columns and values. A nil columns slice
// gives a plain record.
func NewRecord(columns []string, values []any) Record {
	return Record{columns: columns, values: values}
}

// Columns returns the column names, or nil for plain records.
func (r Record) Columns() []string {
	return r.columns
}

// Values returns the row values in column order.
func (r Record) Values() []any {
	return r.values
}

// Len returns the number of values.
func (r Record) Len() int {
	return len(r.values)
}

// At returns the i-th value. It panics if i is out of range.
func (r Record) At(i int) any {
	return r.values[i]
}

// Get returns the value of the named column.
func (r Record) Get(name string) (any, bool) {
	if r.index != nil {
		v, ok := r.index[name]
		return v, ok
	}
	for i, col := range r.columns {
		if col == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a column to value map. Plain records return nil.
func (r Record) Map() map[string]any {
	if r.columns == nil {
		return nil
	}
	m := make(map[string]any, len(r.columns))
	for i, col := range r.columns {
		m[col] = r.values[i]
	}
	return m
}

// scanRecords reads every row in the shape of mode.
func scanRecords(rows *sqlx.Rows, mode Mode) ([]Record, error) {
	var columns []string
	if mode != ModePlain {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		columns = cols
	}

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows, mode, columns)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanRecord(rows *sqlx.Rows, mode Mode, columns []string) (Record, error) {
	switch mode {
	case ModeDict:
		m := make(map[string]any, len(columns))
		if err := rows.MapScan(m); err != nil {
			return Record{}, err
		}
		values := make([]any, len(columns))
		for i, col := range columns {
			values[i] = m[col]
		}
		return Record{columns: columns, values: values, index: m}, nil
	default:
		values, err := rows.SliceScan()
		if err != nil {
			return Record{}, err
		}
		return Record{columns: columns, values: values}, nil
	}
}
