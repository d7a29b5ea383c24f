package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gaborage/go-sqlmapper/database/types"
)

// physicalConn adapts a pooled *sql.Conn to types.Conn. With autocommit
// off, statements run inside a transaction begun on first use; Commit and
// Rollback end it and the next statement begins a new one.
type physicalConn struct {
	conn    *sql.Conn
	release func()

	autoCommit bool
	readOnly   bool
	isolation  sql.IsolationLevel
	tx         *sql.Tx
	closed     bool
}

func newPhysicalConn(conn *sql.Conn, autoCommit bool, release func()) *physicalConn {
	return &physicalConn{conn: conn, release: release, autoCommit: autoCommit, isolation: sql.LevelDefault}
}

// sqlQuerier is satisfied by both *sql.Conn and *sql.Tx.
type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func (p *physicalConn) querier(ctx context.Context) (sqlQuerier, error) {
	if p.closed {
		return nil, types.ErrConnClosed
	}
	if p.autoCommit {
		return p.conn, nil
	}
	if p.tx == nil {
		tx, err := p.conn.BeginTx(ctx, &sql.TxOptions{Isolation: p.isolation, ReadOnly: p.readOnly})
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		p.tx = tx
	}
	return p.tx, nil
}

func (p *physicalConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	q, err := p.querier(ctx)
	if err != nil {
		return nil, err
	}
	return q.QueryContext(ctx, query, args...)
}

func (p *physicalConn) QueryRowContext(ctx context.Context, query string, args ...any) types.Row {
	q, err := p.querier(ctx)
	if err != nil {
		return types.NewErrRow(err)
	}
	return types.NewRowFromSQL(q.QueryRowContext(ctx, query, args...))
}

func (p *physicalConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q, err := p.querier(ctx)
	if err != nil {
		return nil, err
	}
	return q.ExecContext(ctx, query, args...)
}

func (p *physicalConn) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	q, err := p.querier(ctx)
	if err != nil {
		return nil, err
	}
	return q.PrepareContext(ctx, query)
}

func (p *physicalConn) PingContext(ctx context.Context) error {
	if p.closed {
		return types.ErrConnClosed
	}
	return p.conn.PingContext(ctx)
}

func (p *physicalConn) AutoCommit() bool { return p.autoCommit }

// SetAutoCommit commits the open transaction when autocommit is switched on.
func (p *physicalConn) SetAutoCommit(autoCommit bool) error {
	if p.closed {
		return types.ErrConnClosed
	}
	if autoCommit && !p.autoCommit {
		if err := p.Commit(); err != nil {
			return err
		}
	}
	p.autoCommit = autoCommit
	return nil
}

func (p *physicalConn) ReadOnly() bool { return p.readOnly }

// SetReadOnly takes effect on the next transaction.
func (p *physicalConn) SetReadOnly(readOnly bool) error {
	if p.closed {
		return types.ErrConnClosed
	}
	p.readOnly = readOnly
	return nil
}

func (p *physicalConn) Isolation() sql.IsolationLevel { return p.isolation }

// SetIsolation takes effect on the next transaction.
func (p *physicalConn) SetIsolation(level sql.IsolationLevel) error {
	if p.closed {
		return types.ErrConnClosed
	}
	p.isolation = level
	return nil
}

// Warnings is always nil: database/sql drivers do not surface warnings.
func (p *physicalConn) Warnings() error {
	if p.closed {
		return types.ErrConnClosed
	}
	return nil
}

func (p *physicalConn) ClearWarnings() error {
	if p.closed {
		return types.ErrConnClosed
	}
	return nil
}

func (p *physicalConn) Commit() error {
	if p.closed {
		return types.ErrConnClosed
	}
	if p.tx == nil {
		return nil
	}
	tx := p.tx
	p.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *physicalConn) Rollback() error {
	if p.closed {
		return types.ErrConnClosed
	}
	if p.tx == nil {
		return nil
	}
	tx := p.tx
	p.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// Close rolls back an unfinished transaction and returns the connection
// to its pool.
func (p *physicalConn) Close() error {
	if p.closed {
		return nil
	}
	rollbackErr := p.Rollback()
	p.closed = true
	closeErr := p.conn.Close()
	if p.release != nil {
		p.release()
	}
	return errors.Join(rollbackErr, closeErr)
}

func (p *physicalConn) IsClosed() bool { return p.closed }
