//revive:disable-next-line:var-naming // Package name "types" avoids circular imports.
package types

import (
	"math"
	"strings"
)

// StatementKind classifies a mapped statement.
type StatementKind int

const (
	KindUnknown StatementKind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
	KindFlush
)

var kindNames = [...]string{"UNKNOWN", "SELECT", "INSERT", "UPDATE", "DELETE", "FLUSH"}

func (k StatementKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// ReturnsRows reports whether statements of this kind produce a result set.
func (k StatementKind) ReturnsRows() bool {
	return k == KindSelect
}

// ParseStatementKind maps a kind name (any case) to its StatementKind.
func ParseStatementKind(name string) StatementKind {
	for i, n := range kindNames {
		if strings.EqualFold(n, name) {
			return StatementKind(i)
		}
	}
	return KindUnknown
}

const (
	NoRowOffset = 0
	NoRowLimit  = math.MaxInt
)

// RowBounds is an in-memory offset/limit applied while reading a result set.
type RowBounds struct {
	Offset int
	Limit  int
}

// DefaultRowBounds returns bounds that neither skip nor cap rows.
func DefaultRowBounds() RowBounds {
	return RowBounds{Offset: NoRowOffset, Limit: NoRowLimit}
}

// IsDefault reports whether b is the no-op bounds value.
func (b RowBounds) IsDefault() bool {
	return b.Offset == NoRowOffset && b.Limit == NoRowLimit
}

// Dialect identifiers understood by the pagination rewriter and the CRUD templates.
type Dialect = string

const (
	MySQL      Dialect = "mysql"
	SQLite     Dialect = "sqlite"
	HSQLDB     Dialect = "hsqldb"
	Oracle     Dialect = "oracle"
	PostgreSQL Dialect = "postgresql"
)
