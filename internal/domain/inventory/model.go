// Package inventory provides the inventory ledger engine.
// Per (product, branch) quantities are mutated only through this package,
// under a row lock, with one signed movement row per state change.
package inventory

import (
	"time"

	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// MovementType classifies a stock movement.
type MovementType string

const (
	MovementOpening     MovementType = "OPENING"
	MovementReceive     MovementType = "RECEIVE"
	MovementIssue       MovementType = "ISSUE"
	MovementReserve     MovementType = "RESERVE"
	MovementUnreserve   MovementType = "UNRESERVE"
	MovementTransferOut MovementType = "TRANSFER_OUT"
	MovementTransferIn  MovementType = "TRANSFER_IN"
	MovementAdjust      MovementType = "ADJUST"
)

// Item is the quantity state for one (product, branch) pair.
// Created lazily on first movement, never deleted.
type Item struct {
	ID        id.ID          `db:"id" json:"id"`
	ProductID id.ID          `db:"product_id" json:"productId"`
	BranchID  id.ID          `db:"branch_id" json:"branchId"`
	OnHand    types.Quantity `db:"on_hand" json:"onHand"`
	Reserved  types.Quantity `db:"reserved" json:"reserved"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
}

// Available is the quantity free to be newly reserved or issued.
func (i *Item) Available() types.Quantity {
	return i.OnHand - i.Reserved
}

// Movement is an append-only signed quantity-change fact.
// Quantity is never zero.
type Movement struct {
	ID        id.ID          `db:"id" json:"id"`
	ProductID id.ID          `db:"product_id" json:"productId"`
	BranchID  id.ID          `db:"branch_id" json:"branchId"`
	Type      MovementType   `db:"type" json:"type"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	Ref       string         `db:"ref" json:"ref,omitempty"`
	Metadata  map[string]any `db:"metadata" json:"metadata,omitempty"`
	Actor     string         `db:"actor" json:"actor,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// NewMovement creates a movement row for an item.
func NewMovement(item *Item, movementType MovementType, quantity types.Quantity, ref, actor string) *Movement {
	return &Movement{
		ID:        id.New(),
		ProductID: item.ProductID,
		BranchID:  item.BranchID,
		Type:      movementType,
		Quantity:  quantity,
		Ref:       ref,
		Actor:     actor,
		CreatedAt: time.Now().UTC(),
	}
}

// OutcomeStatus tags an operation result: genuinely applied, or a benign
// replay detected through the business reference.
type OutcomeStatus string

const (
	OutcomeApplied        OutcomeStatus = "applied"
	OutcomeAlreadyApplied OutcomeStatus = "already_applied"
)

// Result is the outcome of a single-item operation.
type Result struct {
	Status OutcomeStatus `json:"status"`
	Item   Item          `json:"item"`
}

// TransferResult is the outcome of a transfer between two branches.
type TransferResult struct {
	Status OutcomeStatus `json:"status"`
	From   Item          `json:"from"`
	To     Item          `json:"to"`
}
