package sqlgen

import (
	"fmt"
	"sort"
	"strings"
)

// Comparison operators understood by every supported database. Any other
// operator string is spliced into the statement verbatim, so callers must
// only pass operators from a closed set they control.
const (
	OpEq    = "="
	OpNe    = "!="
	OpLt    = "<"
	OpLte   = "<="
	OpGt    = ">"
	OpGte   = ">="
	OpLike  = "like"
	OpILike = "ilike"
)

// Placeholder is the bind variable emitted by the compiler. Dialects rebind it
// before execution.
const Placeholder = "?"

// Cond is a single comparison: the operator is trusted text, the value is
// always passed as a bound parameter.
type Cond struct {
	Op    string
	Value any
}

// Group is a set of column constraints combined with AND.
type Group map[string]Cond

// Filter is an OR-combination of groups.
type Filter []Group

// Eq returns an equality condition.
func Eq(v any) Cond { return Cond{Op: OpEq, Value: v} }

// Ne returns an inequality condition.
func Ne(v any) Cond { return Cond{Op: OpNe, Value: v} }

// Lt returns a less-than condition.
func Lt(v any) Cond { return Cond{Op: OpLt, Value: v} }

// Lte returns a less-than-or-equal condition.
func Lte(v any) Cond { return Cond{Op: OpLte, Value: v} }

// Gt returns a greater-than condition.
func Gt(v any) Cond { return Cond{Op: OpGt, Value: v} }

// Gte returns a greater-than-or-equal condition.
func Gte(v any) Cond { return Cond{Op: OpGte, Value: v} }

// Like returns a LIKE condition.
func Like(pattern string) Cond { return Cond{Op: OpLike, Value: pattern} }

// Where builds a single-group filter.
func Where(g Group) Filter { return Filter{g} }

// Or appends another group to the filter.
func (f Filter) Or(g Group) Filter { return append(f, g) }

// IsEmpty reports whether the filter has no groups.
func (f Filter) IsEmpty() bool { return len(f) == 0 }

// Columns returns the group's column names in rendering order.
func (g Group) Columns() []string {
	cols := make([]string, 0, len(g))
	for col := range g {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// CompileWhere renders the filter as
//
//	(c1 op1 ? and c2 op2 ?) or (c3 op3 ?)
//
// and returns the values in the order their placeholders appear. Group order
// follows the filter; columns inside a group are rendered sorted so the
// output is deterministic.
func CompileWhere(f Filter) (string, []any, error) {
	if f.IsEmpty() {
		return "", nil, ErrEmptyFilter
	}

	groups := make([]string, 0, len(f))
	var args []any

	for i, g := range f {
		if len(g) == 0 {
			return "", nil, fmt.Errorf("%w: group %d is empty", ErrInvalidFilter, i)
		}

		parts := make([]string, 0, len(g))
		for _, col := range g.Columns() {
			cond := g[col]
			if strings.TrimSpace(col) == "" {
				return "", nil, fmt.Errorf("%w: group %d has an empty column name", ErrInvalidFilter, i)
			}
			if strings.TrimSpace(cond.Op) == "" {
				return "", nil, fmt.Errorf("%w: column %q has no operator", ErrInvalidFilter, col)
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", col, cond.Op, Placeholder))
			args = append(args, cond.Value)
		}
		groups = append(groups, "("+strings.Join(parts, " and ")+")")
	}

	return strings.Join(groups, " or "), args, nil
}
