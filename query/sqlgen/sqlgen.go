// Package sqlgen compiles filters and renders the fixed catalog of statement
// shapes used by the store.
//
// Every statement is rendered with "?" placeholders; callers rebind it for
// their dialect. Table, column, order-by and group-by names are written
// verbatim and must come from trusted code. Values are always bound, except
// in bulk inserts where each row is escaped with the dialect's quoting
// primitive.
package sqlgen

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultLimit caps selects that do not ask for a limit.
const DefaultLimit = 100

// Query represents a SQL query with arguments
type Query struct {
	SQL  string
	Args []any
}

// Values maps column names to the values written by inserts and updates.
type Values map[string]any

// Columns returns the column names in rendering order.
func (v Values) Columns() []string {
	cols := make([]string, 0, len(v))
	for col := range v {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

const (
	insertTemplate     = "insert into %s (%s) values (%s) returning *;"
	bulkInsertTemplate = "insert into %s (%s) values %s returning *;"
	updateTemplate     = "update %s set %s where (%s) returning *;"
	deleteTemplate     = "delete from %s where (%s);"
	countTemplate      = "select count(*) from %s;"
	countWhereTemplate = "select count(*) from %s where %s;"
)

// shape selects a select template. Each optional clause contributes one bit.
type shape uint8

const (
	withColumns shape = 1 << iota
	withWhere
	withGroupBy
	withOrderBy
)

// Select template arguments, by index:
// 1 columns, 2 table, 3 where, 4 group by, 5 order by, 6 limit, 7 offset.
var selectTemplates = [16]string{
	// plain
	"select * from %[2]s limit %[6]d offset %[7]d;",
	// columns
	"select %[1]s from %[2]s limit %[6]d offset %[7]d;",
	// where
	"select * from %[2]s where (%[3]s) limit %[6]d offset %[7]d;",
	// columns + where
	"select %[1]s from %[2]s where (%[3]s) limit %[6]d offset %[7]d;",
	// group by
	"select * from %[2]s group by %[4]s limit %[6]d offset %[7]d;",
	// columns + group by
	"select %[1]s from %[2]s group by %[4]s limit %[6]d offset %[7]d;",
	// where + group by
	"select * from %[2]s where (%[3]s) group by %[4]s limit %[6]d offset %[7]d;",
	// columns + where + group by
	"select %[1]s from %[2]s where (%[3]s) group by %[4]s limit %[6]d offset %[7]d;",
	// order by
	"select * from %[2]s order by %[5]s limit %[6]d offset %[7]d;",
	// columns + order by
	"select %[1]s from %[2]s order by %[5]s limit %[6]d offset %[7]d;",
	// where + order by
	"select * from %[2]s where (%[3]s) order by %[5]s limit %[6]d offset %[7]d;",
	// columns + where + order by
	"select %[1]s from %[2]s where (%[3]s) order by %[5]s limit %[6]d offset %[7]d;",
	// group by + order by
	"select * from %[2]s group by %[4]s order by %[5]s limit %[6]d offset %[7]d;",
	// columns + group by + order by
	"select %[1]s from %[2]s group by %[4]s order by %[5]s limit %[6]d offset %[7]d;",
	// where + group by + order by
	"select * from %[2]s where (%[3]s) group by %[4]s order by %[5]s limit %[6]d offset %[7]d;",
	// columns + where + group by + order by
	"select %[1]s from %[2]s where (%[3]s) group by %[4]s order by %[5]s limit %[6]d offset %[7]d;",
}

// SelectSpec holds the optional parts of a select.
type SelectSpec struct {
	Table   string
	Columns []string
	Where   Filter
	OrderBy string
	GroupBy string
	Limit   int
	Offset  int
}

// Select renders the select shape matching the clauses present in spec.
func Select(spec SelectSpec) (Query, error) {
	if spec.Table == "" {
		return Query{}, ErrEmptyTable
	}
	if spec.Limit < 0 || spec.Offset < 0 {
		return Query{}, fmt.Errorf("%w: limit %d, offset %d", ErrInvalidLimit, spec.Limit, spec.Offset)
	}

	var (
		s     shape
		cols  string
		where string
		args  []any
	)
	if len(spec.Columns) > 0 {
		s |= withColumns
		cols = strings.Join(spec.Columns, ", ")
	}
	if !spec.Where.IsEmpty() {
		var err error
		where, args, err = CompileWhere(spec.Where)
		if err != nil {
			return Query{}, err
		}
		s |= withWhere
	}
	if spec.GroupBy != "" {
		s |= withGroupBy
	}
	if spec.OrderBy != "" {
		s |= withOrderBy
	}

	sql := fmt.Sprintf(selectTemplates[s], cols, spec.Table, where, spec.GroupBy, spec.OrderBy, spec.Limit, spec.Offset)
	return Query{SQL: sql, Args: args}, nil
}

// Count renders a count, filtered when where is not empty.
func Count(table string, where Filter) (Query, error) {
	if table == "" {
		return Query{}, ErrEmptyTable
	}
	if where.IsEmpty() {
		return Query{SQL: fmt.Sprintf(countTemplate, table)}, nil
	}
	clause, args, err := CompileWhere(where)
	if err != nil {
		return Query{}, err
	}
	return Query{SQL: fmt.Sprintf(countWhereTemplate, table, clause), Args: args}, nil
}

// Insert renders a single-row insert returning the new row.
func Insert(table string, values Values) (Query, error) {
	if table == "" {
		return Query{}, ErrEmptyTable
	}
	if len(values) == 0 {
		return Query{}, ErrEmptyValues
	}

	cols := values.Columns()
	args := make([]any, len(cols))
	for i, col := range cols {
		args[i] = values[col]
	}
	sql := fmt.Sprintf(insertTemplate, table, strings.Join(cols, ", "), placeholders(len(cols)))
	return Query{SQL: sql, Args: args}, nil
}

// BulkInsert renders a multi-row insert. Columns come from the first row and
// every row must carry exactly the same set. Rows are escaped one at a time
// into literal value groups, so the returned query has no arguments.
func BulkInsert(d Dialect, table string, rows []Values) (Query, error) {
	if table == "" {
		return Query{}, ErrEmptyTable
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Query{}, ErrEmptyValues
	}

	cols := rows[0].Columns()
	group := "(" + placeholders(len(cols)) + ")"
	literals := make([]string, len(rows))
	for i, row := range rows {
		if !sameColumns(cols, row) {
			return Query{}, fmt.Errorf("%w: row %d has %v, want %v", ErrColumnMismatch, i, row.Columns(), cols)
		}
		vals := make([]any, len(cols))
		for j, col := range cols {
			vals[j] = row[col]
		}
		lit, err := d.Mogrify(group, vals...)
		if err != nil {
			return Query{}, fmt.Errorf("row %d: %w", i, err)
		}
		literals[i] = lit
	}

	sql := fmt.Sprintf(bulkInsertTemplate, table, strings.Join(cols, ", "), strings.Join(literals, ","))
	return Query{SQL: sql}, nil
}

// Update renders a filtered update returning the changed rows. An empty
// filter is rejected: unconditional updates are not expressible.
func Update(table string, values Values, where Filter) (Query, error) {
	if table == "" {
		return Query{}, ErrEmptyTable
	}
	if len(values) == 0 {
		return Query{}, ErrEmptyValues
	}
	if where.IsEmpty() {
		return Query{}, ErrFilterRequired
	}

	cols := values.Columns()
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols))
	for i, col := range cols {
		sets[i] = col + " = " + Placeholder
		args = append(args, values[col])
	}

	clause, whereArgs, err := CompileWhere(where)
	if err != nil {
		return Query{}, err
	}
	sql := fmt.Sprintf(updateTemplate, table, strings.Join(sets, ", "), clause)
	return Query{SQL: sql, Args: append(args, whereArgs...)}, nil
}

// Delete renders a filtered delete. An empty filter is rejected.
func Delete(table string, where Filter) (Query, error) {
	if table == "" {
		return Query{}, ErrEmptyTable
	}
	if where.IsEmpty() {
		return Query{}, ErrFilterRequired
	}
	clause, args, err := CompileWhere(where)
	if err != nil {
		return Query{}, err
	}
	return Query{SQL: fmt.Sprintf(deleteTemplate, table, clause), Args: args}, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat(Placeholder+", ", n), ", ")
}

func sameColumns(cols []string, row Values) bool {
	if len(row) != len(cols) {
		return false
	}
	for _, col := range cols {
		if _, ok := row[col]; !ok {
			return false
		}
	}
	return true
}
