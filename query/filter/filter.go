// Package filter parses the textual filter syntax accepted by the cauldron
// CLI into sqlgen filters.
//
//	name = 'cip' and url != "cip.com" or type <= 3
//
// "and" binds tighter than "or", matching sqlgen.Filter: each run of
// and-joined conditions is one group, and groups are or-ed.
package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/satishbabariya/cauldron/query/sqlgen"
)

var (
	// ErrSyntax is returned when the input does not match the grammar.
	ErrSyntax = errors.New("filter syntax error")

	// ErrDuplicateColumn is returned when one group constrains a column twice.
	ErrDuplicateColumn = errors.New("column constrained twice in one group")
)

// FilterLexer defines the tokens of the filter syntax.
var FilterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `'(?:\\.|[^'\\])*'|"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `[-+]?\d+(?:\.\d+)?`},
	{Name: "Operator", Pattern: `<=|>=|<>|!=|&&|\|\||=|<|>`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.]*`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type expression struct {
	Groups []*andGroup `@@ ( ( "or" | "||" ) @@ )*`
}

type andGroup struct {
	Conds []*condition `@@ ( ( "and" | "&&" ) @@ )*`
}

type condition struct {
	Pos    lexer.Position
	Column string `@Ident`
	Op     string `@( Operator | "like" | "ilike" )`
	Value  *value `@@`
}

type assignment struct {
	Column string `@Ident "="`
	Value  *value `@@`
}

type value struct {
	String *string `  @String`
	Number *string `| @Number`
	True   bool    `| @"true"`
	False  bool    `| @"false"`
	Null   bool    `| @"null"`
	Word   *string `| @Ident`
}

var (
	exprParser = participle.MustBuild[expression](
		participle.Lexer(FilterLexer),
		participle.Elide("Whitespace"),
		participle.Unquote("String"),
		participle.CaseInsensitive("Ident"),
	)

	assignParser = participle.MustBuild[assignment](
		participle.Lexer(FilterLexer),
		participle.Elide("Whitespace"),
		participle.Unquote("String"),
		participle.CaseInsensitive("Ident"),
	)
)

// Parse converts a filter expression to a sqlgen.Filter. Blank input yields
// a nil filter.
func Parse(input string) (sqlgen.Filter, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}

	expr, err := exprParser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	f := make(sqlgen.Filter, 0, len(expr.Groups))
	for _, g := range expr.Groups {
		group := make(sqlgen.Group, len(g.Conds))
		for _, c := range g.Conds {
			if _, dup := group[c.Column]; dup {
				return nil, fmt.Errorf("%w: %s at %s", ErrDuplicateColumn, c.Column, c.Pos)
			}
			v, err := c.Value.resolve()
			if err != nil {
				return nil, err
			}
			group[c.Column] = sqlgen.Cond{Op: normalizeOp(c.Op), Value: v}
		}
		f = append(f, group)
	}
	return f, nil
}

// ParseAssignments converts "column=value" pairs to insert or update values.
func ParseAssignments(pairs []string) (sqlgen.Values, error) {
	values := make(sqlgen.Values, len(pairs))
	for _, pair := range pairs {
		a, err := assignParser.ParseString("", pair)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrSyntax, pair, err)
		}
		v, err := a.Value.resolve()
		if err != nil {
			return nil, err
		}
		values[a.Column] = v
	}
	return values, nil
}

func normalizeOp(op string) string {
	switch op = strings.ToLower(op); op {
	case "<>":
		return sqlgen.OpNe
	default:
		return op
	}
}

func (v *value) resolve() (any, error) {
	switch {
	case v.String != nil:
		return *v.String, nil
	case v.Number != nil:
		if strings.Contains(*v.Number, ".") {
			f, err := strconv.ParseFloat(*v.Number, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
			}
			return f, nil
		}
		n, err := strconv.ParseInt(*v.Number, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		return n, nil
	case v.True:
		return true, nil
	case v.False:
		return false, nil
	case v.Null:
		return nil, nil
	case v.Word != nil:
		return *v.Word, nil
	}
	return nil, fmt.Errorf("%w: missing value", ErrSyntax)
}
