package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gaborage/go-sqlmapper/database/types"
	"github.com/gaborage/go-sqlmapper/logger"
)

type connState int

const (
	stateUnresolved connState = iota
	stateResolved
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateUnresolved:
		return "unresolved"
	case stateResolved:
		return "resolved"
	default:
		return "closed"
	}
}

var connSeq atomic.Uint64

// LazyConnection is a logical connection that acquires its physical
// connection on the first statement. Until then session settings are
// recorded locally; they are applied to the physical connection when it is
// acquired. The pool pair is fixed when the connection is created, so a
// datasource switch never moves a connection between pairs, and a replaced
// pair stays open until its lazy connections are closed.
//
// The primary or replica pool is chosen by asking the route source at
// resolution time.
type LazyConnection struct {
	id     uint64
	pair   *pair
	unbind func()
	route  types.RouteSource
	creds  *credentials
	log    logger.Logger

	mu         sync.Mutex
	state      connState
	autoCommit bool
	readOnly   bool
	isolation  sql.IsolationLevel
	replica    bool
	target     *physicalConn
}

var _ types.Conn = (*LazyConnection)(nil)

func newLazyConnection(p *pair, unbind func(), route types.RouteSource, creds *credentials, log logger.Logger) *LazyConnection {
	if route == nil {
		route = types.RoutePrimary
	}
	return &LazyConnection{
		id:         connSeq.Add(1),
		pair:       p,
		unbind:     unbind,
		route:      route,
		creds:      creds,
		log:        log,
		autoCommit: p.cfg.AutoCommit,
		isolation:  sql.LevelDefault,
	}
}

// resolve returns the physical connection, acquiring it on first use. A
// failed acquisition leaves the connection unresolved.
func (l *LazyConnection) resolve(ctx context.Context) (*physicalConn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case stateClosed:
		return nil, types.ErrConnClosed
	case stateResolved:
		return l.target, nil
	}

	replica := l.route.PreferReplica()
	conn, release, err := l.pair.acquire(ctx, replica, l.creds)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s connection: %w", types.RouteName(replica), err)
	}

	target := newPhysicalConn(conn, l.pair.cfg.AutoCommit, release)
	if err := l.apply(target); err != nil {
		_ = target.Close()
		return nil, err
	}

	l.target = target
	l.replica = replica
	l.state = stateResolved
	l.log.Debug().
		Uint64("conn", l.id).
		Str("route", types.RouteName(replica)).
		Str("datasource", l.pair.cfg.Name).
		Uint64("generation", l.pair.generation).
		Msg("Physical connection acquired")
	return target, nil
}

// apply copies the recorded settings: read-only, isolation, then
// autocommit when it differs from the pool default.
func (l *LazyConnection) apply(target *physicalConn) error {
	if l.readOnly {
		if err := target.SetReadOnly(true); err != nil {
			return err
		}
	}
	if l.isolation != sql.LevelDefault {
		if err := target.SetIsolation(l.isolation); err != nil {
			return err
		}
	}
	if l.autoCommit != target.AutoCommit() {
		if err := target.SetAutoCommit(l.autoCommit); err != nil {
			return err
		}
	}
	return nil
}

func (l *LazyConnection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	target, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return target.QueryContext(ctx, query, args...)
}

func (l *LazyConnection) QueryRowContext(ctx context.Context, query string, args ...any) types.Row {
	target, err := l.resolve(ctx)
	if err != nil {
		return types.NewErrRow(err)
	}
	return target.QueryRowContext(ctx, query, args...)
}

func (l *LazyConnection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	target, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return target.ExecContext(ctx, query, args...)
}

func (l *LazyConnection) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	target, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return target.PrepareContext(ctx, query)
}

func (l *LazyConnection) PingContext(ctx context.Context) error {
	target, err := l.resolve(ctx)
	if err != nil {
		return err
	}
	return target.PingContext(ctx)
}

func (l *LazyConnection) AutoCommit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.autoCommit
}

func (l *LazyConnection) SetAutoCommit(autoCommit bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case stateClosed:
		return types.ErrConnClosed
	case stateResolved:
		if err := l.target.SetAutoCommit(autoCommit); err != nil {
			return err
		}
	}
	l.autoCommit = autoCommit
	return nil
}

func (l *LazyConnection) ReadOnly() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readOnly
}

func (l *LazyConnection) SetReadOnly(readOnly bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case stateClosed:
		return types.ErrConnClosed
	case stateResolved:
		if err := l.target.SetReadOnly(readOnly); err != nil {
			return err
		}
	}
	l.readOnly = readOnly
	return nil
}

func (l *LazyConnection) Isolation() sql.IsolationLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isolation
}

func (l *LazyConnection) SetIsolation(level sql.IsolationLevel) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case stateClosed:
		return types.ErrConnClosed
	case stateResolved:
		if err := l.target.SetIsolation(level); err != nil {
			return err
		}
	}
	l.isolation = level
	return nil
}

// Warnings is nil while unresolved.
func (l *LazyConnection) Warnings() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case stateClosed:
		return types.ErrConnClosed
	case stateResolved:
		return l.target.Warnings()
	}
	return nil
}

func (l *LazyConnection) ClearWarnings() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case stateClosed:
		return types.ErrConnClosed
	case stateResolved:
		return l.target.ClearWarnings()
	}
	return nil
}

// Commit is a no-op until the connection is resolved and after it is closed.
func (l *LazyConnection) Commit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateResolved {
		return nil
	}
	return l.target.Commit()
}

// Rollback is a no-op until the connection is resolved and after it is closed.
func (l *LazyConnection) Rollback() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateResolved {
		return nil
	}
	return l.target.Rollback()
}

// Close releases the physical connection, if any. Closing twice is a no-op.
func (l *LazyConnection) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == stateClosed {
		return nil
	}
	var err error
	if l.state == stateResolved {
		err = l.target.Close()
		l.target = nil
	}
	l.state = stateClosed
	l.unbind()
	return err
}

func (l *LazyConnection) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == stateClosed
}

// Resolved reports whether a physical connection has been acquired.
func (l *LazyConnection) Resolved() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == stateResolved
}

// Replica reports whether the physical connection came from the replica
// pool. It is false while unresolved.
func (l *LazyConnection) Replica() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == stateResolved && l.replica
}

// Generation is the datasource generation the connection is bound to.
func (l *LazyConnection) Generation() uint64 {
	return l.pair.generation
}

// ID identifies the logical connection.
func (l *LazyConnection) ID() uint64 {
	return l.id
}

// Equal reports whether other is the same logical connection.
func (l *LazyConnection) Equal(other types.Conn) bool {
	o, ok := other.(*LazyConnection)
	return ok && o == l
}

func (l *LazyConnection) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprintf("LazyConnection#%d[%s %s]", l.id, l.pair.cfg.Name, l.state)
}
