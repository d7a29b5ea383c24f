// Package types contains the contracts shared by the pipeline, the
// datasource and the session packages. They live apart from those packages
// to avoid import cycles and to make them easy to fake in tests.
//
//revive:disable-next-line:var-naming // Package name "types" avoids circular imports.
package types

import (
	"context"
	"database/sql"
	"errors"
)

// Row represents a single result set row with basic scanning behaviour.
type Row interface {
	Scan(dest ...any) error
	Err() error
}

type sqlRowAdapter struct {
	row *sql.Row
}

// NewRowFromSQL wraps the provided *sql.Row in a Row.
// If row is nil, NewRowFromSQL returns nil.
func NewRowFromSQL(row *sql.Row) Row {
	if row == nil {
		return nil
	}
	return &sqlRowAdapter{row: row}
}

func (r *sqlRowAdapter) Scan(dest ...any) error {
	if r == nil || r.row == nil {
		return errors.New("sqlRowAdapter: underlying sql.Row is nil")
	}
	return r.row.Scan(dest...)
}

func (r *sqlRowAdapter) Err() error {
	if r == nil || r.row == nil {
		return errors.New("sqlRowAdapter: underlying sql.Row is nil")
	}
	return r.row.Err()
}

type errRow struct{ err error }

// NewErrRow returns a Row whose Scan and Err report err. It stands in for
// rows of statements that could not be sent to the database.
func NewErrRow(err error) Row {
	return errRow{err: err}
}

func (r errRow) Scan(...any) error { return r.err }
func (r errRow) Err() error        { return r.err }

// Querier is the statement execution half of Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	PingContext(ctx context.Context) error
}

// Conn is a logical database connection with JDBC-like session state:
// autocommit, read-only and isolation are properties of the connection
// rather than of individual transactions.
//
// With autocommit on, every statement commits on its own. With autocommit
// off, statements accumulate in an implicit transaction that Commit or
// Rollback ends.
type Conn interface {
	Querier

	AutoCommit() bool
	SetAutoCommit(autoCommit bool) error
	ReadOnly() bool
	SetReadOnly(readOnly bool) error
	Isolation() sql.IsolationLevel
	SetIsolation(level sql.IsolationLevel) error

	// Warnings returns pending driver warnings, nil when there are none.
	Warnings() error
	ClearWarnings() error

	Commit() error
	Rollback() error

	Close() error
	IsClosed() bool
}

// RouteSource exposes the routing decision a connection reads when it
// first needs a physical connection.
type RouteSource interface {
	PreferReplica() bool
}

// RouteFunc adapts a function to RouteSource.
type RouteFunc func() bool

// PreferReplica calls f.
func (f RouteFunc) PreferReplica() bool { return f() }

// Fixed routes.
var (
	RoutePrimary RouteSource = RouteFunc(func() bool { return false })
	RouteReplica RouteSource = RouteFunc(func() bool { return true })
)

// RouteName names a routing decision for logs and metrics.
func RouteName(preferReplica bool) string {
	if preferReplica {
		return "replica"
	}
	return "primary"
}
