package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"retailcore/internal/core/id"
	"retailcore/internal/domain/inventory"
	"retailcore/internal/infrastructure/http/v1/dto"
)

// InventoryHandler handles HTTP requests for the inventory ledger.
type InventoryHandler struct {
	*BaseHandler
	service *inventory.Service
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(base *BaseHandler, service *inventory.Service) *InventoryHandler {
	return &InventoryHandler{BaseHandler: base, service: service}
}

// applyMovement is the shared bind-call-respond flow for single-item operations.
func (h *InventoryHandler) applyMovement(c *gin.Context, op func(context.Context, inventory.Request) (inventory.Result, error)) {
	var req dto.MovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := op(c.Request.Context(), req.ToRequest(h.Actor(c)))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, result)
}

// OpeningBalance handles POST /inventory/opening-balance
func (h *InventoryHandler) OpeningBalance(c *gin.Context) {
	h.applyMovement(c, h.service.OpeningBalance)
}

// Receive handles POST /inventory/receive
func (h *InventoryHandler) Receive(c *gin.Context) {
	h.applyMovement(c, h.service.Receive)
}

// Reserve handles POST /inventory/reserve
func (h *InventoryHandler) Reserve(c *gin.Context) {
	h.applyMovement(c, h.service.Reserve)
}

// Unreserve handles POST /inventory/unreserve
func (h *InventoryHandler) Unreserve(c *gin.Context) {
	h.applyMovement(c, h.service.Unreserve)
}

// Issue handles POST /inventory/issue
func (h *InventoryHandler) Issue(c *gin.Context) {
	h.applyMovement(c, h.service.Issue)
}

// Adjust handles POST /inventory/adjust
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req dto.AdjustStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.service.Adjust(c.Request.Context(), inventory.AdjustRequest{
		Request: req.ToRequest(h.Actor(c)),
		Reason:  req.Reason,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, result)
}

// Transfer handles POST /inventory/transfer
func (h *InventoryHandler) Transfer(c *gin.Context) {
	var req dto.TransferStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.service.Transfer(c.Request.Context(), inventory.TransferRequest{
		ProductID:    req.ProductID,
		FromBranchID: req.FromBranchID,
		ToBranchID:   req.ToBranchID,
		Quantity:     req.Quantity,
		Ref:          req.Ref,
		Actor:        h.Actor(c),
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, result)
}

// GetItem handles GET /inventory/items/:productId/:branchId
func (h *InventoryHandler) GetItem(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}
	branchID, ok := h.ParseIDParam(c, "branchId")
	if !ok {
		return
	}

	item, err := h.service.GetItem(c.Request.Context(), productID, branchID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, item)
}

// ListMovements handles GET /inventory/movements
func (h *InventoryHandler) ListMovements(c *gin.Context) {
	filter := inventory.MovementFilter{
		Ref:      c.Query("ref"),
		FromDate: h.ParseTimeQuery(c, "fromDate"),
		ToDate:   h.ParseTimeQuery(c, "toDate"),
		Limit:    h.ParseIntQuery(c, "limit", 100),
		Offset:   h.ParseIntQuery(c, "offset", 0),
	}

	if pStr := c.Query("productId"); pStr != "" {
		parsed, err := id.Parse(pStr)
		if err == nil {
			filter.ProductID = &parsed
		}
	}
	if bStr := c.Query("branchId"); bStr != "" {
		parsed, err := id.Parse(bStr)
		if err == nil {
			filter.BranchID = &parsed
		}
	}
	if tStr := c.Query("type"); tStr != "" {
		filter.Types = []inventory.MovementType{inventory.MovementType(tStr)}
	}

	movements, err := h.service.ListMovements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: movements, TotalCount: len(movements)})
}
