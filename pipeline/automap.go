package pipeline

import (
	"context"

	"github.com/gaborage/go-sqlmapper/database/types"
	"github.com/gaborage/go-sqlmapper/logger"
	"github.com/gaborage/go-sqlmapper/mapper"
)

// AutoMap applies mapper descriptors in the execute phase: it injects the
// entity type into the parameter, swaps in the synthesized row mapping and
// turns a page found in the parameter of a row-returning statement into
// row bounds plus a pending page on the unit.
type AutoMap struct {
	descriptors *mapper.Registry
	log         logger.Logger
}

// NewAutoMap creates the interceptor.
func NewAutoMap(descriptors *mapper.Registry, log logger.Logger) *AutoMap {
	return &AutoMap{descriptors: descriptors, log: log}
}

func (a *AutoMap) Name() string { return "automap" }

func (a *AutoMap) Intercept(ctx context.Context, inv *Invocation, next Handler) (any, error) {
	if inv.Phase != PhaseExecute {
		return next(ctx, inv)
	}

	d := a.descriptors.Descriptor(inv.Statement.ID)
	if d.FillEntity {
		inv.Param = FillEntity(inv.Param, d.Entity)
	}
	if d.FillResultMap {
		inv.ResultMaps = d.ResultMaps
	}

	if inv.Statement.Kind.ReturnsRows() && inv.Bounds.IsDefault() {
		if pager := FindPager(inv.Param); pager != nil {
			req := pager.PageRequest()
			if err := req.Validate(); err != nil {
				return nil, err
			}
			inv.Bounds = types.RowBounds{Offset: req.Offset(), Limit: req.Limit()}
			inv.Unit.SetPendingPage(pager)
			a.log.Debug().Str("statement", inv.Statement.ID).Str("unit", inv.Unit.ID()).
				Int("offset", req.Offset()).Int("limit", req.Limit()).Msg("Page request detected")
		}
	}

	return next(ctx, inv)
}
