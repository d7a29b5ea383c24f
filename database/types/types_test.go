package types

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatementKind(t *testing.T) {
	assert.Equal(t, "SELECT", KindSelect.String())
	assert.Equal(t, "UNKNOWN", StatementKind(42).String())
	assert.Equal(t, KindDelete, ParseStatementKind("delete"))
	assert.Equal(t, KindUnknown, ParseStatementKind("merge"))
	assert.True(t, KindSelect.ReturnsRows())
	assert.False(t, KindInsert.ReturnsRows())
}

func TestRowBounds(t *testing.T) {
	assert.True(t, DefaultRowBounds().IsDefault())
	assert.False(t, RowBounds{Offset: 10, Limit: 5}.IsDefault())
	assert.False(t, RowBounds{Offset: 0, Limit: 5}.IsDefault())
}

func TestRoutes(t *testing.T) {
	assert.False(t, RoutePrimary.PreferReplica())
	assert.True(t, RouteReplica.PreferReplica())
	assert.Equal(t, "replica", RouteName(true))
	assert.Equal(t, "primary", RouteName(false))
}

func TestErrRow(t *testing.T) {
	boom := errors.New("boom")
	row := NewErrRow(boom)
	assert.ErrorIs(t, row.Scan(), boom)
	assert.ErrorIs(t, row.Err(), boom)
	assert.Nil(t, NewRowFromSQL(nil))
}

func TestErrConnClosedWrapsConnDone(t *testing.T) {
	assert.ErrorIs(t, ErrConnClosed, sql.ErrConnDone)
	assert.Contains(t, ErrConnClosed.Error(), "connection is closed")
}
