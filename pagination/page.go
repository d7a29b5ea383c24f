// Package pagination provides page requests and results and the SQL
// rewriting behind physical pagination: count query derivation and the
// dialect-specific paged SELECT forms.
package pagination

import (
	"errors"
	"fmt"
	"reflect"
)

const (
	DefaultPageNo   = 1
	DefaultPageSize = 10
)

// ErrInvalidPageSize is returned for page sizes below one.
var ErrInvalidPageSize = errors.New("page size must be greater than zero")

// Request describes one page of a query. PageNo is one-based; values below
// one read from the first row.
type Request struct {
	PageNo     int  `json:"pageNo"`
	PageSize   int  `json:"pageSize"`
	CountTotal bool `json:"countTotal"`
}

// DefaultRequest returns the first page of ten rows with a total count.
func DefaultRequest() Request {
	return Request{PageNo: DefaultPageNo, PageSize: DefaultPageSize, CountTotal: true}
}

// Validate rejects page sizes below one.
func (r Request) Validate() error {
	if r.PageSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidPageSize, r.PageSize)
	}
	return nil
}

// Offset is the number of rows skipped: max(0, (PageNo-1)*PageSize).
func (r Request) Offset() int {
	offset := (r.PageNo - 1) * r.PageSize
	if offset < 0 {
		return 0
	}
	return offset
}

// Limit is the number of rows in a page.
func (r Request) Limit() int {
	return r.PageSize
}

// Pager is what the statement pipeline needs from a page result: the
// request, and a way to fill in rows and the total count.
type Pager interface {
	PageRequest() Request
	SetTotal(total int64)
	AppendRows(rows []any) error
}

// Page is a page request together with its rows and, once counted, the
// total number of rows. It is filled in place by one query execution.
type Page[T any] struct {
	Request
	Rows     []T    `json:"rows"`
	TotalNum *int64 `json:"totalNum,omitempty"`
}

// NewPage creates an empty page of T.
func NewPage[T any](pageNo, pageSize int, countTotal bool) *Page[T] {
	return &Page[T]{Request: Request{PageNo: pageNo, PageSize: pageSize, CountTotal: countTotal}}
}

// PageRequest implements Pager.
func (p *Page[T]) PageRequest() Request {
	return p.Request
}

// SetTotal implements Pager.
func (p *Page[T]) SetTotal(total int64) {
	p.TotalNum = &total
}

// AppendRows implements Pager. Rows must be T, or *T when T is not a
// pointer. Nothing is appended when any row has another type.
func (p *Page[T]) AppendRows(rows []any) error {
	converted, err := ConvertRows[T](rows)
	if err != nil {
		return err
	}
	p.Rows = append(p.Rows, converted...)
	return nil
}

// ConvertRows converts scanned rows to T using the rules of AppendRows.
func ConvertRows[T any](rows []any) ([]T, error) {
	converted := make([]T, 0, len(rows))
	for i, row := range rows {
		v, ok := convertRow[T](row)
		if !ok {
			var zero T
			return nil, fmt.Errorf("row %d: cannot use %T as %T", i, row, zero)
		}
		converted = append(converted, v)
	}
	return converted, nil
}

// Total returns the total number of rows, 0 when not counted.
func (p *Page[T]) Total() int64 {
	if p.TotalNum == nil {
		return 0
	}
	return *p.TotalNum
}

// TotalPage returns ceil(total / PageSize); 0 when nothing was counted.
func (p *Page[T]) TotalPage() int {
	total := p.Total()
	if total <= 0 || p.PageSize <= 0 {
		return 0
	}
	size := int64(p.PageSize)
	pages := total / size
	if total%size != 0 {
		pages++
	}
	return int(pages)
}

func convertRow[T any](row any) (T, bool) {
	if v, ok := row.(T); ok {
		return v, true
	}
	var zero T
	rv := reflect.ValueOf(row)
	if !rv.IsValid() {
		return zero, false
	}
	target := reflect.TypeFor[T]()
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Type().Elem() == target {
		return rv.Elem().Interface().(T), true
	}
	if target.Kind() != reflect.Interface && rv.Type().ConvertibleTo(target) && isNumeric(rv.Kind()) && isNumeric(target.Kind()) {
		return rv.Convert(target).Interface().(T), true
	}
	return zero, false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
