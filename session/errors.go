package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStatement is returned for statement ids that were never registered.
	ErrUnknownStatement = errors.New("unknown statement")
	// ErrDuplicateStatement is returned when a statement id is registered twice.
	ErrDuplicateStatement = errors.New("statement already registered")
	// ErrSessionClosed is returned by every operation on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrTxActive is returned by Begin while a transaction is open.
	ErrTxActive = errors.New("transaction already active")
	// ErrNoTx is returned by Commit and Rollback without an open transaction.
	ErrNoTx = errors.New("no active transaction")
	// ErrTooManyRows is returned by SelectOne when more than one row matches.
	ErrTooManyRows = errors.New("expected one row, got more")
	// ErrUnexpectedResult is returned when a statement result has an unexpected shape.
	ErrUnexpectedResult = errors.New("unexpected statement result")
)

// StatementError reports a failed statement together with its id and, when
// it was bound, the SQL text that ran.
type StatementError struct {
	StatementID string
	SQL         string
	Err         error
}

func (e *StatementError) Error() string {
	if e.SQL == "" {
		return fmt.Sprintf("statement %s: %v", e.StatementID, e.Err)
	}
	return fmt.Sprintf("statement %s (%s): %v", e.StatementID, e.SQL, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}
