package handlers

import (
	"github.com/gin-gonic/gin"

	"retailcore/internal/core/id"
	"retailcore/internal/domain/telebirr"
	"retailcore/internal/infrastructure/http/v1/dto"
	"retailcore/internal/infrastructure/http/v1/middleware"
)

// TelebirrHandler handles HTTP requests for the Telebirr agent float workflow.
type TelebirrHandler struct {
	*BaseHandler
	service *telebirr.Service
}

// NewTelebirrHandler creates a new telebirr handler.
func NewTelebirrHandler(base *BaseHandler, service *telebirr.Service) *TelebirrHandler {
	return &TelebirrHandler{BaseHandler: base, service: service}
}

// Post handles POST /telebirr/transactions
func (h *TelebirrHandler) Post(c *gin.Context) {
	var req telebirr.PostRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = middleware.IdempotencyKey(c)
	req.Actor = h.Actor(c)

	txn, err := h.service.Post(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, txn)
}

// Void handles POST /telebirr/transactions/:id/void
func (h *TelebirrHandler) Void(c *gin.Context) {
	txID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	txn, err := h.service.Void(c.Request.Context(), txID, h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, txn)
}

// Get handles GET /telebirr/transactions/:id
func (h *TelebirrHandler) Get(c *gin.Context) {
	txID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	txn, err := h.service.GetTransaction(c.Request.Context(), txID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, txn)
}

// List handles GET /telebirr/transactions
func (h *TelebirrHandler) List(c *gin.Context) {
	filter := telebirr.Filter{
		FromDate: h.ParseTimeQuery(c, "fromDate"),
		ToDate:   h.ParseTimeQuery(c, "toDate"),
		Limit:    h.ParseIntQuery(c, "limit", 100),
		Offset:   h.ParseIntQuery(c, "offset", 0),
	}
	if aStr := c.Query("agentId"); aStr != "" {
		parsed, err := id.Parse(aStr)
		if err == nil {
			filter.AgentID = &parsed
		}
	}
	if tStr := c.Query("type"); tStr != "" {
		txType := telebirr.TransactionType(tStr)
		filter.Type = &txType
	}
	if sStr := c.Query("status"); sStr != "" {
		status := telebirr.TransactionStatus(sStr)
		filter.Status = &status
	}

	transactions, err := h.service.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: transactions, TotalCount: len(transactions)})
}

// CreateAgent handles POST /telebirr/agents
func (h *TelebirrHandler) CreateAgent(c *gin.Context) {
	var req dto.CreateAgentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	agent := req.ToAgent()
	if err := h.service.CreateAgent(c.Request.Context(), agent); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, agent.ID.String())
}

// SetAgentStatus handles PUT /telebirr/agents/:code/status
func (h *TelebirrHandler) SetAgentStatus(c *gin.Context) {
	var req dto.SetAgentStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.service.SetAgentStatus(c.Request.Context(), c.Param("code"), req.Status); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "agent status updated")
}

// ListAgents handles GET /telebirr/agents
func (h *TelebirrHandler) ListAgents(c *gin.Context) {
	agents, err := h.service.ListAgents(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: agents, TotalCount: len(agents)})
}

// AgentOutstanding handles GET /telebirr/agents/:code/outstanding
func (h *TelebirrHandler) AgentOutstanding(c *gin.Context) {
	code := c.Param("code")

	outstanding, err := h.service.AgentOutstanding(c.Request.Context(), code)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.AgentOutstandingResponse{
		AgentCode:   code,
		Outstanding: outstanding,
	})
}

// CreateBankAccount handles POST /telebirr/bank-accounts
func (h *TelebirrHandler) CreateBankAccount(c *gin.Context) {
	var req dto.CreateBankAccountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	account := req.ToBankAccount()
	if err := h.service.CreateBankAccount(c.Request.Context(), account); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, account.ID.String())
}
