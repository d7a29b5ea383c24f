package pipeline

import (
	"context"
	"fmt"

	"github.com/gaborage/go-sqlmapper/database/types"
	"github.com/gaborage/go-sqlmapper/internal/sqllex"
	"github.com/gaborage/go-sqlmapper/logger"
	"github.com/gaborage/go-sqlmapper/pagination"
)

// Pagination rewrites paged SELECT statements in the prepare phase. It
// drops the in-memory row bounds, runs the count query on the invocation's
// connection when the page asks for a total, and replaces the bound SQL
// with the dialect's paged form.
type Pagination struct {
	dialect string
	log     logger.Logger
}

// NewPagination creates the interceptor for dialect.
func NewPagination(dialect string, log logger.Logger) (*Pagination, error) {
	if err := pagination.CheckDialect(dialect); err != nil {
		return nil, err
	}
	return &Pagination{dialect: dialect, log: log}, nil
}

func (p *Pagination) Name() string { return "pagination" }

func (p *Pagination) Intercept(ctx context.Context, inv *Invocation, next Handler) (any, error) {
	if inv.Phase != PhasePrepare || inv.Bound == nil || !sqllex.IsSelect(inv.Bound.SQL) {
		return next(ctx, inv)
	}

	pager := inv.Unit.PendingPage()
	if pager == nil {
		if pager = FindPager(inv.Bound.Param); pager == nil {
			return next(ctx, inv)
		}
		inv.Unit.SetPendingPage(pager)
	}
	req := pager.PageRequest()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv.Bounds = types.DefaultRowBounds()

	if req.CountTotal {
		total, err := p.count(ctx, inv)
		if err != nil {
			return nil, err
		}
		inv.Unit.SetPendingTotal(total)
	}

	paged, err := pagination.Rewrite(p.dialect, inv.Bound.SQL, req.Offset(), req.Limit())
	if err != nil {
		return nil, err
	}
	inv.Bound.SQL = paged

	return next(ctx, inv)
}

func (p *Pagination) count(ctx context.Context, inv *Invocation) (int64, error) {
	countSQL, err := pagination.CountSQL(inv.Bound.SQL)
	if err != nil {
		return 0, err
	}
	p.log.Debug().Str("statement", inv.Statement.ID).Str("query", countSQL).Msg("Counting page total")

	var total int64
	if err := inv.Conn.QueryRowContext(ctx, countSQL, inv.Bound.Args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count query %q: %w", countSQL, err)
	}
	return total, nil
}

// PageResult completes a pending page in the results phase: the rows and
// the counted total are applied together and the page replaces the raw
// row list as the result.
type PageResult struct{}

// NewPageResult creates the interceptor.
func NewPageResult() *PageResult {
	return &PageResult{}
}

func (PageResult) Name() string { return "page-result" }

func (PageResult) Intercept(ctx context.Context, inv *Invocation, next Handler) (any, error) {
	result, err := next(ctx, inv)
	if err != nil || inv.Phase != PhaseResults {
		return result, err
	}

	pager := inv.Unit.PendingPage()
	if pager == nil {
		return result, nil
	}
	rows, ok := result.([]any)
	if !ok {
		return result, nil
	}

	if err := pager.AppendRows(rows); err != nil {
		return nil, err
	}
	if total, counted := inv.Unit.PendingTotal(); counted {
		pager.SetTotal(total)
	}
	inv.Unit.Reset()
	return pager, nil
}
