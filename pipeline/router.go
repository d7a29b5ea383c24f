package pipeline

import (
	"context"
	"strings"

	"github.com/gaborage/go-sqlmapper/database/types"
)

// Functions whose result depends on the session that performed the last
// write. A SELECT calling them must run on the primary.
var sessionAffineFunctions = []string{"last_insert_id()", "row_count()"}

// Decide returns whether a statement may run on the replica: SELECTs may,
// unless their text mentions a session-affine function; everything else
// runs on the primary. The match is a plain substring test on the
// lower-cased text, so an alias or literal containing those names also
// routes to the primary.
func Decide(kind types.StatementKind, sql string) bool {
	if kind != types.KindSelect {
		return false
	}
	lower := strings.ToLower(sql)
	for _, fn := range sessionAffineFunctions {
		if strings.Contains(lower, fn) {
			return false
		}
	}
	return true
}

// Router publishes the routing decision of every statement to its unit in
// the prepare phase. It must precede interceptors that use the connection
// during preparation.
type Router struct{}

// NewRouter creates the interceptor.
func NewRouter() *Router {
	return &Router{}
}

func (Router) Name() string { return "router" }

func (Router) Intercept(ctx context.Context, inv *Invocation, next Handler) (any, error) {
	if inv.Phase == PhasePrepare && inv.Bound != nil {
		inv.Unit.SetPreferReplica(Decide(inv.Statement.Kind, inv.Bound.SQL))
	}
	return next(ctx, inv)
}
