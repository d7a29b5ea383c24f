package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gaborage/go-sqlmapper/database/types"
	"github.com/gaborage/go-sqlmapper/datasource"
	"github.com/gaborage/go-sqlmapper/internal/tracking"
	"github.com/gaborage/go-sqlmapper/mapping"
	"github.com/gaborage/go-sqlmapper/pagination"
	"github.com/gaborage/go-sqlmapper/pipeline"
)

// Session runs statements within one unit of work. Outside a transaction
// every statement gets its own lazily routed connection; inside one, all
// statements share a connection pinned to the primary. A Session is not
// safe for concurrent use.
type Session struct {
	engine *Engine
	unit   *pipeline.Unit
	tx     *datasource.LazyConnection
	closed bool
}

// Unit returns the session's unit of work.
func (s *Session) Unit() *pipeline.Unit { return s.unit }

// InTransaction reports whether Begin has been called without a matching
// Commit or Rollback.
func (s *Session) InTransaction() bool { return s.tx != nil }

// Begin starts a transaction. The connection is acquired on the first
// statement.
func (s *Session) Begin() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx != nil {
		return ErrTxActive
	}
	conn, err := s.engine.ds.Conn(s.unit)
	if err != nil {
		return err
	}
	if err := conn.SetAutoCommit(false); err != nil {
		_ = conn.Close()
		return err
	}
	s.unit.Pin(true)
	s.tx = conn
	return nil
}

// Commit commits the transaction and releases its connection.
func (s *Session) Commit() error {
	return s.end((*datasource.LazyConnection).Commit)
}

// Rollback rolls the transaction back and releases its connection.
func (s *Session) Rollback() error {
	return s.end((*datasource.LazyConnection).Rollback)
}

func (s *Session) end(finish func(*datasource.LazyConnection) error) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return ErrNoTx
	}
	conn := s.tx
	s.tx = nil
	s.unit.Pin(false)

	err := finish(conn)
	return errors.Join(err, conn.Close())
}

// Close rolls back an open transaction. Further calls fail with
// ErrSessionClosed.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	var err error
	if s.tx != nil {
		err = s.Rollback()
	}
	s.closed = true
	return err
}

// Query runs a statement and returns whatever the chain produced: rows
// ([]any), a filled page, or the sql.Result of a write.
func (s *Session) Query(ctx context.Context, id string, param any, bounds types.RowBounds) (any, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	stmt, err := s.engine.Statement(id)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, stmt, param, bounds)
}

// Select runs a row-returning statement.
func (s *Session) Select(ctx context.Context, id string, param any) ([]any, error) {
	return s.SelectBounds(ctx, id, param, types.DefaultRowBounds())
}

// SelectBounds runs a row-returning statement, keeping only the rows
// inside bounds.
func (s *Session) SelectBounds(ctx context.Context, id string, param any, bounds types.RowBounds) ([]any, error) {
	out, err := s.Query(ctx, id, param, bounds)
	if err != nil {
		return nil, err
	}
	switch v := out.(type) {
	case []any:
		return v, nil
	case pagination.Pager:
		return nil, fmt.Errorf("%w: %s returned a page, use Paginate", ErrUnexpectedResult, id)
	default:
		return nil, fmt.Errorf("%w: %s returned %T", ErrUnexpectedResult, id, out)
	}
}

// SelectOne runs a statement expected to return at most one row. No row
// yields sql.ErrNoRows.
func (s *Session) SelectOne(ctx context.Context, id string, param any) (any, error) {
	rows, err := s.SelectBounds(ctx, id, param, types.RowBounds{Limit: 2})
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, sql.ErrNoRows
	case 1:
		return rows[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrTooManyRows, id)
	}
}

// Exec runs a write statement and returns the number of affected rows.
func (s *Session) Exec(ctx context.Context, id string, param any) (int64, error) {
	res, err := s.exec(ctx, id, param)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Insert runs an insert statement. When entity has a zero identifier and
// the driver reports the generated key, the key is stored back into it.
// Parameters that are not identified entities are inserted as is.
func (s *Session) Insert(ctx context.Context, id string, entity any) (int64, error) {
	isNew, err := s.engine.templates.IsNew(entity)
	assign := err == nil && isNew

	res, err := s.exec(ctx, id, entity)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if !assign {
		return affected, nil
	}

	generated, err := res.LastInsertId()
	if err != nil {
		s.engine.log.Debug().Err(err).Str("statement", id).Msg("Driver does not report generated keys")
		return affected, nil
	}
	if err := assignID(s.engine.metadata, entity, generated); err != nil {
		return affected, err
	}
	return affected, nil
}

func (s *Session) exec(ctx context.Context, id string, param any) (sql.Result, error) {
	out, err := s.Query(ctx, id, param, types.DefaultRowBounds())
	if err != nil {
		return nil, err
	}
	res, ok := out.(sql.Result)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T, not a write result", ErrUnexpectedResult, id, out)
	}
	return res, nil
}

func (s *Session) execute(ctx context.Context, stmt *pipeline.MappedStatement, param any, bounds types.RowBounds) (any, error) {
	inv := pipeline.NewInvocation(s.unit, stmt, param, bounds)
	start := time.Now()

	var (
		conn     *datasource.LazyConnection
		affected int64
	)
	stages := pipeline.Stages{
		Connect: func(_ context.Context, _ *pipeline.Invocation) (types.Conn, error) {
			if s.tx != nil {
				return s.tx, nil
			}
			c, err := s.engine.ds.Conn(s.unit)
			if err != nil {
				return nil, err
			}
			conn = c
			return c, nil
		},
		Run: func(ctx context.Context, inv *pipeline.Invocation) (any, error) {
			if inv.Statement.Kind.ReturnsRows() {
				return query(ctx, inv)
			}
			res, err := inv.Conn.ExecContext(ctx, inv.Bound.SQL, inv.Bound.Args...)
			if err != nil {
				return nil, err
			}
			if n, err := res.RowsAffected(); err == nil {
				affected = n
			}
			return res, nil
		},
	}

	out, err := s.engine.chain.Execute(ctx, inv, stages)
	s.unit.Reset()
	if conn != nil {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	op := &tracking.Operation{
		StatementID:  stmt.ID,
		Route:        types.RouteName(s.unit.PreferReplica()),
		Start:        start,
		RowsAffected: affected,
		Err:          err,
	}
	if inv.Bound != nil {
		op.Query = inv.Bound.SQL
		op.Args = inv.Bound.Args
	}
	tracking.Track(ctx, s.engine.tracking, op)

	if err != nil {
		return nil, &StatementError{StatementID: stmt.ID, SQL: op.Query, Err: err}
	}
	return out, nil
}

func query(ctx context.Context, inv *pipeline.Invocation) (any, error) {
	rows, err := inv.Conn.QueryContext(ctx, inv.Bound.SQL, inv.Bound.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var m *mapping.RowMapping
	if len(inv.ResultMaps) > 0 {
		m = inv.ResultMaps[0]
	}
	return mapping.ScanRows(rows, m, inv.Bounds)
}

func assignID(metadata *mapping.Registry, entity any, id int64) error {
	meta, err := metadata.Resolve(entity)
	if err != nil {
		return err
	}
	v, err := meta.Value(entity)
	if err != nil {
		return err
	}
	field := v.FieldByIndex(meta.ID.Index)
	if !field.CanSet() {
		return fmt.Errorf("cannot assign generated id to non-pointer %s", meta.Type)
	}
	return mapping.Assign(field, id)
}
