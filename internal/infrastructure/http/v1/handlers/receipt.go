package handlers

import (
	"github.com/gin-gonic/gin"

	"retailcore/internal/core/id"
	"retailcore/internal/domain/receipt"
	"retailcore/internal/infrastructure/http/v1/dto"
	"retailcore/internal/infrastructure/http/v1/middleware"
)

// ReceiptHandler handles HTTP requests for POS receipts.
type ReceiptHandler struct {
	*BaseHandler
	service *receipt.Service
}

// NewReceiptHandler creates a new receipt handler.
func NewReceiptHandler(base *BaseHandler, service *receipt.Service) *ReceiptHandler {
	return &ReceiptHandler{BaseHandler: base, service: service}
}

// Process handles POST /pos/receipts
func (h *ReceiptHandler) Process(c *gin.Context) {
	var req receipt.ProcessRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = middleware.IdempotencyKey(c)
	if req.CashierID == "" {
		req.CashierID = h.Actor(c)
	}

	rcp, err := h.service.Process(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, rcp)
}

// Void handles POST /pos/receipts/:id/void
func (h *ReceiptHandler) Void(c *gin.Context) {
	receiptID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	rcp, err := h.service.Void(c.Request.Context(), receiptID, h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, rcp)
}

// Get handles GET /pos/receipts/:id
func (h *ReceiptHandler) Get(c *gin.Context) {
	receiptID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	rcp, err := h.service.Get(c.Request.Context(), receiptID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, rcp)
}

// List handles GET /pos/receipts
func (h *ReceiptHandler) List(c *gin.Context) {
	filter := receipt.Filter{
		FromDate: h.ParseTimeQuery(c, "fromDate"),
		ToDate:   h.ParseTimeQuery(c, "toDate"),
		Limit:    h.ParseIntQuery(c, "limit", 100),
		Offset:   h.ParseIntQuery(c, "offset", 0),
	}
	if bStr := c.Query("branchId"); bStr != "" {
		parsed, err := id.Parse(bStr)
		if err == nil {
			filter.BranchID = &parsed
		}
	}
	if sStr := c.Query("status"); sStr != "" {
		status := receipt.Status(sStr)
		filter.Status = &status
	}

	receipts, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: receipts, TotalCount: len(receipts)})
}
