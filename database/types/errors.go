//revive:disable-next-line:var-naming // Package name "types" avoids circular imports.
package types

import (
	"database/sql"
	"fmt"
)

// ErrConnClosed is returned by state-changing calls on a closed logical
// connection. It wraps sql.ErrConnDone.
var ErrConnClosed = fmt.Errorf("illegal operation: connection is closed: %w", sql.ErrConnDone)
