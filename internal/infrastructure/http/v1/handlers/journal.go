package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"retailcore/internal/core/apperror"
	"retailcore/internal/domain/ledger"
	"retailcore/internal/infrastructure/http/v1/dto"
)

// JournalHandler handles HTTP requests for the general ledger.
type JournalHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewJournalHandler creates a new journal handler.
func NewJournalHandler(base *BaseHandler, service *ledger.Service) *JournalHandler {
	return &JournalHandler{BaseHandler: base, service: service}
}

// JournalSourceManual tags journals created directly through the API, as
// opposed to journals generated by the POS or Telebirr workflows.
const JournalSourceManual = "MANUAL"

// Create handles POST /ledger/journals
func (h *JournalHandler) Create(c *gin.Context) {
	var req dto.CreateJournalRequest
	if !h.BindJSON(c, &req) {
		return
	}

	j := ledger.NewJournal(req.Date, req.Currency, JournalSourceManual, req.Reference, req.Memo, h.Actor(c))
	lines := make([]ledger.Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, l.ToLine())
	}

	if err := h.service.CreateJournal(c.Request.Context(), j, lines); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, j.ID.String())
}

// AppendLines handles POST /ledger/journals/:id/lines
func (h *JournalHandler) AppendLines(c *gin.Context) {
	journalID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.AppendLinesRequest
	if !h.BindJSON(c, &req) {
		return
	}

	lines := make([]ledger.Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, l.ToLine())
	}

	if err := h.service.AppendLines(c.Request.Context(), journalID, lines); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "lines appended")
}

// Post handles POST /ledger/journals/:id/post
func (h *JournalHandler) Post(c *gin.Context) {
	journalID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	j, err := h.service.Post(c.Request.Context(), journalID, h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, j)
}

// Reverse handles POST /ledger/journals/:id/reverse
func (h *JournalHandler) Reverse(c *gin.Context) {
	journalID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.ReverseJournalRequest
	if !h.BindJSON(c, &req) {
		return
	}

	reversal, err := h.service.Reverse(c.Request.Context(), journalID, req.Memo, h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, reversal)
}

// Void handles POST /ledger/journals/:id/void
func (h *JournalHandler) Void(c *gin.Context) {
	journalID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.VoidJournalRequest
	if !h.BindJSON(c, &req) {
		return
	}

	j, err := h.service.Void(c.Request.Context(), journalID, req.Memo, h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, j)
}

// Get handles GET /ledger/journals/:id
func (h *JournalHandler) Get(c *gin.Context) {
	journalID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	j, err := h.service.GetJournal(c.Request.Context(), journalID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, j)
}

// List handles GET /ledger/journals
func (h *JournalHandler) List(c *gin.Context) {
	filter := ledger.JournalFilter{
		Source:   c.Query("source"),
		FromDate: h.ParseTimeQuery(c, "fromDate"),
		ToDate:   h.ParseTimeQuery(c, "toDate"),
		Limit:    h.ParseIntQuery(c, "limit", 100),
		Offset:   h.ParseIntQuery(c, "offset", 0),
	}
	if sStr := c.Query("status"); sStr != "" {
		status := ledger.JournalStatus(sStr)
		filter.Status = &status
	}

	journals, err := h.service.ListJournals(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: journals, TotalCount: len(journals)})
}

// TrialBalance handles GET /ledger/trial-balance
func (h *JournalHandler) TrialBalance(c *gin.Context) {
	asOf := time.Now().UTC()
	if t := h.ParseTimeQuery(c, "asOf"); t != nil {
		asOf = *t
	}

	rows, err := h.service.TrialBalance(c.Request.Context(), asOf)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: rows, TotalCount: len(rows)})
}

// SubledgerBalance handles GET /ledger/subledger-balance
func (h *JournalHandler) SubledgerBalance(c *gin.Context) {
	dimension := c.Query("dimension")
	value := c.Query("value")
	if dimension == "" || value == "" {
		h.Error(c, apperror.NewValidation("dimension and value are required"))
		return
	}

	balance, err := h.service.SubledgerBalance(c.Request.Context(), dimension, value)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.SubledgerBalanceResponse{
		Dimension: dimension,
		Value:     value,
		Balance:   balance,
	})
}

// CreateAccount handles POST /ledger/accounts
func (h *JournalHandler) CreateAccount(c *gin.Context) {
	var req dto.CreateAccountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	account := req.ToAccount()
	if err := h.service.CreateAccount(c.Request.Context(), account); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, account.ID.String())
}

// ListAccounts handles GET /ledger/accounts
func (h *JournalHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.service.ListAccounts(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: accounts, TotalCount: len(accounts)})
}
