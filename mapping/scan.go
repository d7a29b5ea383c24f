package mapping

import (
	"database/sql"
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cast"

	"github.com/gaborage/go-sqlmapper/database/types"
)

var (
	scannerType = reflect.TypeFor[sql.Scanner]()
	timeType    = reflect.TypeFor[time.Time]()
)

// ScanRows materializes a result set. With a non-empty row mapping each row
// becomes a *T of the mapped type; otherwise a single-column result yields
// scalars and a multi-column result yields map[string]any. bounds skips and
// caps rows in memory. The caller closes rows.
func ScanRows(rows *sql.Rows, m *RowMapping, bounds types.RowBounds) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	for skipped := 0; skipped < bounds.Offset; skipped++ {
		if !rows.Next() {
			return []any{}, rows.Err()
		}
	}

	out := []any{}
	for len(out) < bounds.Limit && rows.Next() {
		var (
			value any
			err   error
		)
		switch {
		case !m.Empty():
			value, err = scanEntity(rows, columns, m)
		case len(columns) == 1:
			value, err = scanScalar(rows)
		default:
			value, err = scanMap(rows, columns)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

func scanEntity(rows *sql.Rows, columns []string, m *RowMapping) (any, error) {
	ptr := reflect.New(m.Type)
	elem := ptr.Elem()

	dest := make([]any, len(columns))
	for i, col := range columns {
		entry, ok := m.Lookup(col)
		if !ok {
			dest[i] = new(any)
			continue
		}
		dest[i] = &fieldScanner{field: elem.FieldByIndex(entry.Index), column: col}
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	return ptr.Interface(), nil
}

func scanScalar(rows *sql.Rows) (any, error) {
	var v any
	if err := rows.Scan(&v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func scanMap(rows *sql.Rows, columns []string) (any, error) {
	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = normalize(values[i])
	}
	return row, nil
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// fieldScanner assigns one column to one struct field. NULL leaves the
// field at its zero value.
type fieldScanner struct {
	field  reflect.Value
	column string
}

func (s *fieldScanner) Scan(src any) error {
	if err := Assign(s.field, src); err != nil {
		return fmt.Errorf("column %s: %w", s.column, err)
	}
	return nil
}

// Assign stores a driver value into dst, converting between the loose types
// drivers return (int64, float64, []byte, string, time.Time) and the field
// type. Pointer fields are allocated; NULL zeroes dst.
func Assign(dst reflect.Value, src any) error {
	if src == nil {
		dst.SetZero()
		return nil
	}

	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(src)
	}

	if dst.Kind() == reflect.Pointer {
		target := reflect.New(dst.Type().Elem())
		if err := Assign(target.Elem(), src); err != nil {
			return err
		}
		dst.Set(target)
		return nil
	}

	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}

	if b, ok := src.([]byte); ok {
		if dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() == reflect.Uint8 {
			dst.SetBytes(append([]byte(nil), b...))
			return nil
		}
		src = string(b)
	}

	var err error
	switch {
	case dst.Type() == timeType:
		var t time.Time
		if t, err = cast.ToTimeE(src); err == nil {
			dst.Set(reflect.ValueOf(t))
		}
	case dst.Kind() == reflect.String:
		var s string
		if s, err = cast.ToStringE(src); err == nil {
			dst.SetString(s)
		}
	case dst.Kind() == reflect.Bool:
		var b bool
		if b, err = cast.ToBoolE(src); err == nil {
			dst.SetBool(b)
		}
	case dst.CanInt():
		var n int64
		if n, err = cast.ToInt64E(src); err == nil {
			if dst.OverflowInt(n) {
				return fmt.Errorf("value %d overflows %s", n, dst.Type())
			}
			dst.SetInt(n)
		}
	case dst.CanUint():
		var n uint64
		if n, err = cast.ToUint64E(src); err == nil {
			if dst.OverflowUint(n) {
				return fmt.Errorf("value %d overflows %s", n, dst.Type())
			}
			dst.SetUint(n)
		}
	case dst.CanFloat():
		var f float64
		if f, err = cast.ToFloat64E(src); err == nil {
			dst.SetFloat(f)
		}
	default:
		sv = reflect.ValueOf(src)
		if !sv.Type().ConvertibleTo(dst.Type()) {
			return fmt.Errorf("cannot assign %T to %s", src, dst.Type())
		}
		dst.Set(sv.Convert(dst.Type()))
	}
	if err != nil {
		return fmt.Errorf("cannot assign %T to %s: %w", src, dst.Type(), err)
	}
	return nil
}
