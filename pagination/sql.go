package pagination

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gaborage/go-sqlmapper/database/types"
	"github.com/gaborage/go-sqlmapper/internal/sqllex"
)

// ErrMissingFrom is returned when a count query cannot be derived because
// the statement has no FROM clause.
var ErrMissingFrom = errors.New("cannot derive count query: statement has no from clause")

// UnsupportedDialectError names a dialect the rewriter does not know.
type UnsupportedDialectError struct {
	Dialect string
}

func (e *UnsupportedDialectError) Error() string {
	return fmt.Sprintf("unsupported pagination dialect %q", e.Dialect)
}

// Dialects lists the supported dialect identifiers.
func Dialects() []string {
	return []string{types.MySQL, types.SQLite, types.HSQLDB, types.Oracle, types.PostgreSQL}
}

// CheckDialect returns an *UnsupportedDialectError for unknown dialects.
// Matching ignores case.
func CheckDialect(dialect string) error {
	for _, d := range Dialects() {
		if strings.EqualFold(d, dialect) {
			return nil
		}
	}
	return &UnsupportedDialectError{Dialect: dialect}
}

// CountSQL derives the total-count query of a SELECT: "select count(0) "
// followed by the text from the first "from" up to the first "order by"
// (or the end). Both keywords are matched ignoring case. The derivation is
// textual; a "from" inside a select-list subquery is taken as the clause.
func CountSQL(sql string) (string, error) {
	from := sqllex.IndexFold(sql, "from")
	if from < 0 {
		return "", ErrMissingFrom
	}
	end := len(sql)
	if orderBy := sqllex.IndexFold(sql, "order by"); orderBy > from {
		end = orderBy
	}
	return "select count(0) " + sql[from:end], nil
}

// Rewrite turns sql into the paged form of dialect, reading limit rows
// after skipping offset rows. The original text is kept verbatim.
//
//	mysql, sqlite   <sql> limit <offset>,<limit>
//	postgresql      <sql> limit <limit> offset <offset>
//	hsqldb          select limit <offset> <limit> <sql after its leading select>
//	oracle          SELECT * FROM (SELECT tmp.*, ROWNUM rn FROM (<sql>) tmp WHERE ROWNUM <= <offset+limit>) WHERE rn > <offset>
//
// For hsqldb the statement may start with whitespace and any casing of select.
func Rewrite(dialect, sql string, offset, limit int) (string, error) {
	o, l := strconv.Itoa(offset), strconv.Itoa(limit)

	switch strings.ToLower(dialect) {
	case types.MySQL, types.SQLite:
		return sql + " limit " + o + "," + l, nil
	case types.PostgreSQL:
		return sql + " limit " + l + " offset " + o, nil
	case types.HSQLDB:
		trimmed := sqllex.TrimLeading(sql)
		if !sqllex.IsSelect(trimmed) {
			return "", fmt.Errorf("hsqldb pagination requires a statement starting with select: %q", sql)
		}
		return "select limit " + o + " " + l + " " + trimmed[len("select"):], nil
	case types.Oracle:
		return "SELECT * FROM (SELECT tmp.*, ROWNUM rn FROM (" + sql + ") tmp WHERE ROWNUM <= " +
			strconv.Itoa(offset+limit) + ") WHERE rn > " + o, nil
	default:
		return "", &UnsupportedDialectError{Dialect: dialect}
	}
}
