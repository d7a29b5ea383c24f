package session

import (
	"context"
	"fmt"
	"maps"

	"github.com/gaborage/go-sqlmapper/database/types"
	"github.com/gaborage/go-sqlmapper/pagination"
	"github.com/gaborage/go-sqlmapper/pipeline"
)

// List runs a row-returning statement and converts the rows to T.
func List[T any](ctx context.Context, s *Session, id string, param any) ([]T, error) {
	rows, err := s.Select(ctx, id, param)
	if err != nil {
		return nil, err
	}
	return pagination.ConvertRows[T](rows)
}

// One runs a statement expected to return a single row of type T.
func One[T any](ctx context.Context, s *Session, id string, param any) (T, error) {
	var zero T
	row, err := s.SelectOne(ctx, id, param)
	if err != nil {
		return zero, err
	}
	rows, err := pagination.ConvertRows[T]([]any{row})
	if err != nil {
		return zero, err
	}
	return rows[0], nil
}

// Paginate fills page with the rows of statement id. Extra parameters go
// next to the page in the statement's parameter map.
func Paginate[T any](ctx context.Context, s *Session, id string, page *pagination.Page[T], params map[string]any) (*pagination.Page[T], error) {
	var param any = page
	if len(params) > 0 {
		merged := maps.Clone(params)
		merged[pipeline.KeyPage] = page
		param = merged
	}

	out, err := s.Query(ctx, id, param, types.DefaultRowBounds())
	if err != nil {
		return nil, err
	}
	if filled, ok := out.(*pagination.Page[T]); !ok || filled != page {
		return nil, fmt.Errorf("%w: %s was not paginated, returned %T", ErrUnexpectedResult, id, out)
	}
	return page, nil
}
