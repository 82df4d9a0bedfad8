package sqlgen

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Literal renders v as an escaped SQL literal for the dialect.
func (d Dialect) Literal(v any) (string, error) {
	return d.literal(v, 0)
}

func (d Dialect) literal(v any, depth int) (string, error) {
	if depth > 8 {
		return "", fmt.Errorf("%w: %T nests too deeply", ErrUnsupportedValue, v)
	}

	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return d.quoteString(val), nil
	case []byte:
		if val == nil {
			return "NULL", nil
		}
		return d.quoteBytes(val), nil
	case bool:
		if val {
			return d.trueLit, nil
		}
		return d.falseLit, nil
	case time.Time:
		return d.quoteString(val.Format(d.timeLayout)), nil
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		return d.literal(dv, depth+1)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return "NULL", nil
		}
		return d.literal(rv.Elem().Interface(), depth+1)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), nil
	case reflect.String:
		return d.quoteString(rv.String()), nil
	case reflect.Bool:
		return d.literal(rv.Bool(), depth+1)
	}

	return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

// Mogrify replaces each "?" placeholder in query with the escaped literal of
// the matching argument. Dialects that bind with "$n" also accept numbered
// placeholders, which may repeat; the two styles cannot be mixed.
// Placeholders inside single-quoted strings are left alone.
func (d Dialect) Mogrify(query string, args ...any) (string, error) {
	var b strings.Builder
	b.Grow(len(query) + 16*len(args))

	numbered := d.BindType == sqlx.DOLLAR
	next, highest := 0, 0
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inString = !inString
			b.WriteByte(c)
		case c == '?' && !inString:
			if highest > 0 {
				return "", fmt.Errorf("%w: mixed ? and $n placeholders", ErrArgCount)
			}
			if next >= len(args) {
				return "", fmt.Errorf("%w: more placeholders than %d arguments", ErrArgCount, len(args))
			}
			lit, err := d.Literal(args[next])
			if err != nil {
				return "", fmt.Errorf("argument %d: %w", next, err)
			}
			b.WriteString(lit)
			next++
		case c == '$' && numbered && !inString && i+1 < len(query) && isDigit(query[i+1]):
			j := i + 1
			for j < len(query) && isDigit(query[j]) {
				j++
			}
			n, err := strconv.Atoi(query[i+1 : j])
			if err != nil || n == 0 || n > len(args) {
				return "", fmt.Errorf("%w: placeholder %s with %d arguments", ErrArgCount, query[i:j], len(args))
			}
			if next > 0 {
				return "", fmt.Errorf("%w: mixed ? and $n placeholders", ErrArgCount)
			}
			lit, err := d.Literal(args[n-1])
			if err != nil {
				return "", fmt.Errorf("argument %d: %w", n-1, err)
			}
			b.WriteString(lit)
			highest = max(highest, n)
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}

	if highest > 0 {
		if highest != len(args) {
			return "", fmt.Errorf("%w: highest placeholder $%d, %d arguments", ErrArgCount, highest, len(args))
		}
		return b.String(), nil
	}
	if next != len(args) {
		return "", fmt.Errorf("%w: %d placeholders, %d arguments", ErrArgCount, next, len(args))
	}
	return b.String(), nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
