// Package pipeline runs a mapped statement through an ordered chain of
// interceptors. Every statement passes three phases: PhaseExecute around
// the whole execution, PhasePrepare once its SQL is bound and a connection
// is attached, and PhaseResults once the raw result is available. The
// chain is fixed when the Pipeline is built.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gaborage/go-sqlmapper/database/types"
	"github.com/gaborage/go-sqlmapper/mapping"
	"github.com/gaborage/go-sqlmapper/pagination"
)

// Phase identifies the execution point an invocation is at.
type Phase int

const (
	PhaseExecute Phase = iota
	PhasePrepare
	PhaseResults
)

func (p Phase) String() string {
	switch p {
	case PhaseExecute:
		return "execute"
	case PhasePrepare:
		return "prepare"
	case PhaseResults:
		return "results"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// SQLSource binds a statement parameter to SQL text and positional arguments.
type SQLSource func(param any) (sql string, args []any, err error)

// MappedStatement is a registered statement.
type MappedStatement struct {
	ID        string
	Namespace string
	Kind      types.StatementKind
	Source    SQLSource
	// ResultMaps are the configured row mappings; automatic mapping may replace them per invocation
	ResultMaps []*mapping.RowMapping
}

// NamespaceOf returns the part of a statement id before its last dot.
func NamespaceOf(statementID string) string {
	if i := strings.LastIndexByte(statementID, '.'); i >= 0 {
		return statementID[:i]
	}
	return ""
}

// BoundSQL is the SQL text and arguments produced for one invocation.
type BoundSQL struct {
	SQL   string
	Args  []any
	Param any
}

// Invocation carries one statement execution through the chain. It is
// owned by a single unit of work.
type Invocation struct {
	Phase      Phase
	Unit       *Unit
	Statement  *MappedStatement
	Param      any
	Bounds     types.RowBounds
	ResultMaps []*mapping.RowMapping
	Bound      *BoundSQL
	Conn       types.Conn
	Result     any
}

// NewInvocation prepares stmt for execution with param within unit.
func NewInvocation(unit *Unit, stmt *MappedStatement, param any, bounds types.RowBounds) *Invocation {
	return &Invocation{
		Phase:      PhaseExecute,
		Unit:       unit,
		Statement:  stmt,
		Param:      param,
		Bounds:     bounds,
		ResultMaps: stmt.ResultMaps,
	}
}

// Handler continues an invocation.
type Handler func(ctx context.Context, inv *Invocation) (any, error)

// Interceptor is one named stage of the chain. Intercept must call next to
// continue, and should pass through invocations of phases it ignores.
type Interceptor interface {
	Name() string
	Intercept(ctx context.Context, inv *Invocation, next Handler) (any, error)
}

// Stages are the execution steps the pipeline delegates to its caller.
type Stages struct {
	// Connect returns the connection the statement runs on
	Connect func(ctx context.Context, inv *Invocation) (types.Conn, error)
	// Run executes inv.Bound on inv.Conn and returns the raw result
	Run func(ctx context.Context, inv *Invocation) (any, error)
}

// Pipeline is an immutable ordered interceptor chain.
type Pipeline struct {
	interceptors []Interceptor
}

// New builds a pipeline; interceptors run in the given order.
func New(interceptors ...Interceptor) *Pipeline {
	return &Pipeline{interceptors: append([]Interceptor(nil), interceptors...)}
}

// Names lists the interceptors in chain order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.interceptors))
	for i, ic := range p.interceptors {
		names[i] = ic.Name()
	}
	return names
}

// Run passes inv through every interceptor and then terminal.
func (p *Pipeline) Run(ctx context.Context, inv *Invocation, terminal Handler) (any, error) {
	h := terminal
	for i := len(p.interceptors) - 1; i >= 0; i-- {
		ic, next := p.interceptors[i], h
		h = func(ctx context.Context, inv *Invocation) (any, error) {
			return ic.Intercept(ctx, inv, next)
		}
	}
	return h(ctx, inv)
}

// Execute drives inv through all three phases: the execute phase wraps
// binding, connecting, the prepare phase, running the statement and the
// results phase.
func (p *Pipeline) Execute(ctx context.Context, inv *Invocation, stages Stages) (any, error) {
	if inv.Unit == nil {
		return nil, errors.New("pipeline: invocation without unit of work")
	}
	if inv.Statement == nil || inv.Statement.Source == nil {
		return nil, errors.New("pipeline: invocation without statement source")
	}

	inv.Phase = PhaseExecute
	return p.Run(ctx, inv, func(ctx context.Context, inv *Invocation) (any, error) {
		sql, args, err := inv.Statement.Source(inv.Param)
		if err != nil {
			return nil, fmt.Errorf("bind: %w", err)
		}
		inv.Bound = &BoundSQL{SQL: sql, Args: args, Param: inv.Param}

		conn, err := stages.Connect(ctx, inv)
		if err != nil {
			return nil, err
		}
		inv.Conn = conn

		inv.Phase = PhasePrepare
		if _, err := p.Run(ctx, inv, passthrough); err != nil {
			return nil, err
		}

		raw, err := stages.Run(ctx, inv)
		if err != nil {
			return nil, err
		}

		inv.Phase = PhaseResults
		inv.Result = raw
		return p.Run(ctx, inv, func(_ context.Context, inv *Invocation) (any, error) {
			return inv.Result, nil
		})
	})
}

func passthrough(context.Context, *Invocation) (any, error) {
	return nil, nil
}

// Raw returns a source that binds sql unchanged. Arguments come from the
// parameter: a []any is spread, a map contributes its "args" value (or the
// wrapped "param" value), a page or nil contributes nothing and any other
// value is the single argument.
func Raw(sql string) SQLSource {
	return func(param any) (string, []any, error) {
		return sql, Args(param), nil
	}
}

// Args extracts positional arguments from a statement parameter using the
// rules documented on Raw.
func Args(param any) []any {
	switch v := param.(type) {
	case nil:
		return nil
	case []any:
		return v
	case map[string]any:
		if args, ok := v[KeyArgs]; ok {
			return Args(args)
		}
		if wrapped, ok := v[KeyParam]; ok {
			return Args(wrapped)
		}
		return nil
	case reflect.Type:
		return nil
	}
	if _, ok := param.(pagination.Pager); ok {
		return nil
	}
	return []any{param}
}
