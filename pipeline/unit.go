package pipeline

import (
	"github.com/google/uuid"

	"github.com/gaborage/go-sqlmapper/pagination"
)

// Unit is the state of one logical unit of work: the routing decision of
// the statement being executed and the page it is filling. A Unit belongs
// to one caller and must not be shared between concurrent executions.
type Unit struct {
	id            string
	preferReplica bool
	pinned        bool

	page     pagination.Pager
	total    int64
	hasTotal bool
}

// NewUnit starts a unit of work with a fresh id.
func NewUnit() *Unit {
	return &Unit{id: uuid.NewString()}
}

// ID identifies the unit in logs.
func (u *Unit) ID() string {
	return u.id
}

// PreferReplica reports whether the current statement may read from the
// replica. A pinned unit always uses the primary.
func (u *Unit) PreferReplica() bool {
	return u.preferReplica && !u.pinned
}

// SetPreferReplica overwrites the routing decision.
func (u *Unit) SetPreferReplica(preferReplica bool) {
	u.preferReplica = preferReplica
}

// Pin forces primary routing while pinned is true. Transactions pin
// their unit so every statement shares the primary connection.
func (u *Unit) Pin(pinned bool) {
	u.pinned = pinned
}

// Pinned reports whether the unit is pinned to the primary.
func (u *Unit) Pinned() bool {
	return u.pinned
}

// PendingPage returns the page being filled by the current statement.
func (u *Unit) PendingPage() pagination.Pager {
	return u.page
}

// SetPendingPage marks page as being filled by the current statement.
func (u *Unit) SetPendingPage(page pagination.Pager) {
	u.page = page
}

// PendingTotal returns the total counted for the pending page.
func (u *Unit) PendingTotal() (int64, bool) {
	return u.total, u.hasTotal
}

// SetPendingTotal records the counted total until the rows arrive.
func (u *Unit) SetPendingTotal(total int64) {
	u.total = total
	u.hasTotal = true
}

// Reset clears the per-statement markers. The routing decision is kept
// until the next statement overwrites it.
func (u *Unit) Reset() {
	u.page = nil
	u.total = 0
	u.hasTotal = false
}
