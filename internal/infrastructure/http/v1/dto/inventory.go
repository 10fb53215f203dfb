package dto

import (
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/inventory"
)

// MovementRequest is the body shared by the single-item stock operations
// (opening, receive, reserve, unreserve, issue).
type MovementRequest struct {
	ProductID id.ID          `json:"productId" binding:"required"`
	BranchID  id.ID          `json:"branchId" binding:"required"`
	Quantity  types.Quantity `json:"quantity"`
	Ref       string         `json:"ref,omitempty"`
}

// ToRequest maps to the domain request with the acting user attached.
func (r MovementRequest) ToRequest(actor string) inventory.Request {
	return inventory.Request{
		ProductID: r.ProductID,
		BranchID:  r.BranchID,
		Quantity:  r.Quantity,
		Ref:       r.Ref,
		Actor:     actor,
	}
}

// AdjustStockRequest applies a signed stock correction.
type AdjustStockRequest struct {
	MovementRequest
	Reason string `json:"reason,omitempty"`
}

// TransferStockRequest moves stock between branches.
type TransferStockRequest struct {
	ProductID    id.ID          `json:"productId" binding:"required"`
	FromBranchID id.ID          `json:"fromBranchId" binding:"required"`
	ToBranchID   id.ID          `json:"toBranchId" binding:"required"`
	Quantity     types.Quantity `json:"quantity"`
	Ref          string         `json:"ref,omitempty"`
}
