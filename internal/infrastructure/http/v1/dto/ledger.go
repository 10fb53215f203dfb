package dto

import (
	"time"

	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/ledger"
)

// JournalLineRequest is one side of a double entry.
type JournalLineRequest struct {
	AccountID  id.ID             `json:"accountId" binding:"required"`
	Debit      types.Money       `json:"debit"`
	Credit     types.Money       `json:"credit"`
	Memo       string            `json:"memo,omitempty"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
}

// ToLine maps to a domain line. IDs and line numbers are assigned by the
// posting engine.
func (r JournalLineRequest) ToLine() ledger.Line {
	return ledger.Line{
		ID:         id.New(),
		AccountID:  r.AccountID,
		Debit:      r.Debit,
		Credit:     r.Credit,
		Memo:       r.Memo,
		Dimensions: ledger.Dimensions(r.Dimensions),
	}
}

// CreateJournalRequest creates a DRAFT journal with its initial lines.
type CreateJournalRequest struct {
	Date      time.Time            `json:"date" binding:"required"`
	Currency  string               `json:"currency" binding:"required"`
	Reference string               `json:"reference,omitempty"`
	Memo      string               `json:"memo,omitempty"`
	Lines     []JournalLineRequest `json:"lines" binding:"required"`
}

// AppendLinesRequest adds lines to an existing DRAFT journal.
type AppendLinesRequest struct {
	Lines []JournalLineRequest `json:"lines" binding:"required"`
}

// ReverseJournalRequest reverses a POSTED journal.
type ReverseJournalRequest struct {
	Memo string `json:"memo,omitempty"`
}

// VoidJournalRequest voids a journal.
type VoidJournalRequest struct {
	Memo string `json:"memo,omitempty"`
}

// CreateAccountRequest adds a chart-of-accounts node.
type CreateAccountRequest struct {
	Code          string `json:"code" binding:"required"`
	Name          string `json:"name" binding:"required"`
	Type          string `json:"type" binding:"required"`
	NormalBalance string `json:"normalBalance" binding:"required"`
	ParentID      *id.ID `json:"parentId,omitempty"`
	Postable      bool   `json:"postable"`
}

// ToAccount maps to the domain account.
func (r CreateAccountRequest) ToAccount() *ledger.Account {
	return &ledger.Account{
		Code:          r.Code,
		Name:          r.Name,
		Type:          ledger.AccountType(r.Type),
		NormalBalance: ledger.NormalBalance(r.NormalBalance),
		ParentID:      r.ParentID,
		Postable:      r.Postable,
		Status:        ledger.AccountActive,
	}
}

// SubledgerBalanceResponse reports one dimension value's posted balance.
type SubledgerBalanceResponse struct {
	Dimension string      `json:"dimension"`
	Value     string      `json:"value"`
	Balance   types.Money `json:"balance"`
}
