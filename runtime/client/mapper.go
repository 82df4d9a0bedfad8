package client

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// ScanRecords maps named or dict records onto structs. Columns match a
// field's db tag, then its name, case-insensitively; unmatched columns are
// skipped.
func ScanRecords[T any](records []Record) ([]T, error) {
	results := make([]T, 0, len(records))
	for i, r := range records {
		v, err := ScanRecord[T](r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		results = append(results, v)
	}
	return results, nil
}

// ScanRecord maps one record onto a struct.
func ScanRecord[T any](r Record) (T, error) {
	var result T
	val := reflect.ValueOf(&result).Elem()
	if val.Kind() != reflect.Struct {
		return result, fmt.Errorf("cannot scan into %s: not a struct", val.Type())
	}
	if r.columns == nil {
		return result, fmt.Errorf("cannot scan a plain record into %s: no column names", val.Type())
	}

	typ := val.Type()
	for i, colName := range r.columns {
		field := findFieldByName(typ, colName)
		if field.Index == nil {
			continue
		}
		if err := assign(val.FieldByIndex(field.Index), r.values[i]); err != nil {
			return result, fmt.Errorf("column %s: %w", colName, err)
		}
	}
	return result, nil
}

// assign stores a scanned driver value in dst.
func assign(dst reflect.Value, v any) error {
	if dst.CanAddr() {
		if scanner, ok := dst.Addr().Interface().(sql.Scanner); ok {
			return scanner.Scan(v)
		}
	}
	if v == nil {
		dst.SetZero()
		return nil
	}

	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	src := reflect.ValueOf(v)
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case dst.Kind() == reflect.String:
		if b, ok := v.([]byte); ok {
			dst.SetString(string(b))
			return nil
		}
		if src.Kind() != reflect.String {
			return fmt.Errorf("cannot assign %T to %s", v, dst.Type())
		}
		dst.SetString(src.String())
	case src.Type().ConvertibleTo(dst.Type()) && isNumber(src.Kind()) && isNumber(dst.Kind()):
		dst.Set(src.Convert(dst.Type()))
	case dst.Kind() == reflect.Bool && isNumber(src.Kind()):
		// sqlite and mysql store booleans as integers
		dst.SetBool(src.Convert(reflect.TypeOf(int64(0))).Int() != 0)
	default:
		return fmt.Errorf("cannot assign %T to %s", v, dst.Type())
	}
	return nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// findFieldByName finds a struct field by database column name (db tag or field name)
func findFieldByName(typ reflect.Type, colName string) reflect.StructField {
	var byName reflect.StructField
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		dbTag := field.Tag.Get("db")
		if dbTag == "-" {
			continue
		}
		if name, _, _ := strings.Cut(dbTag, ","); name == colName {
			return field
		}
		if byName.Index == nil && dbTag == "" && strings.EqualFold(field.Name, colName) {
			byName = field
		}
	}
	return byName
}
