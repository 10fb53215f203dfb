package inventory

import (
	"context"
	"time"

	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// Repository defines storage operations for the inventory ledger.
// All mutating calls are expected to run inside a transaction opened by the
// service; GetItemForUpdate holds its row lock until that transaction ends.
type Repository interface {
	// GetItemForUpdate returns the item row under an exclusive row lock.
	// When createMissing is true the row is created lazily (zero quantities)
	// before locking; otherwise a missing pair yields a not-found error.
	GetItemForUpdate(ctx context.Context, productID, branchID id.ID, createMissing bool) (*Item, error)

	// GetItem returns the item without locking. A missing pair returns a
	// zero-quantity item so read paths need no special casing.
	GetItem(ctx context.Context, productID, branchID id.ID) (*Item, error)

	// UpdateQuantities persists on_hand/reserved for a locked item.
	UpdateQuantities(ctx context.Context, item *Item) error

	// InsertMovement appends one movement row.
	InsertMovement(ctx context.Context, m *Movement) error

	// MovementExists reports whether a movement with the given business
	// reference was already recorded for (ref, product, branch, type).
	MovementExists(ctx context.Context, ref string, productID, branchID id.ID, movementType MovementType) (bool, error)

	// ListMovements returns movement history, newest first.
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)

	// ListOpenReservations returns, per (ref, product, branch), the net
	// reserved quantity still outstanding for RESERVE movements created
	// before the given time. Used by the reservation-expiry sweep.
	ListOpenReservations(ctx context.Context, before time.Time) ([]OpenReservation, error)
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	ProductID *id.ID
	BranchID  *id.ID
	Types     []MovementType
	Ref       string
	FromDate  *time.Time
	ToDate    *time.Time
	Limit     int
	Offset    int
}

// OpenReservation is a reservation whose quantity has not been fully
// released yet.
type OpenReservation struct {
	Ref       string         `db:"ref"`
	ProductID id.ID          `db:"product_id"`
	BranchID  id.ID          `db:"branch_id"`
	Quantity  types.Quantity `db:"quantity"` // net reserved minus unreserved
	OldestAt  time.Time      `db:"oldest_at"`
}
