// Package ledger provides the double-entry general ledger posting engine.
package ledger

import (
	"time"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
)

// AccountType classifies a chart-of-accounts node.
type AccountType string

const (
	AccountAsset         AccountType = "ASSET"
	AccountLiability     AccountType = "LIABILITY"
	AccountEquity        AccountType = "EQUITY"
	AccountRevenue       AccountType = "REVENUE"
	AccountExpense       AccountType = "EXPENSE"
	AccountContraAsset   AccountType = "CONTRA_ASSET"
	AccountContraRevenue AccountType = "CONTRA_REVENUE"
	AccountContraExpense AccountType = "CONTRA_EXPENSE"
)

// NormalBalance is the side on which an account normally carries its balance.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountActive   AccountStatus = "ACTIVE"
	AccountArchived AccountStatus = "ARCHIVED"
)

// Account is a chart-of-accounts node. Accounts form a tree via ParentID;
// only postable, active leaves may receive journal lines.
type Account struct {
	ID            id.ID         `db:"id" json:"id"`
	Code          string        `db:"code" json:"code"`
	Name          string        `db:"name" json:"name"`
	Type          AccountType   `db:"type" json:"type"`
	NormalBalance NormalBalance `db:"normal_balance" json:"normalBalance"`
	ParentID      *id.ID        `db:"parent_id" json:"parentId,omitempty"`
	Postable      bool          `db:"postable" json:"postable"`
	Status        AccountStatus `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updatedAt"`
}

// CanReceiveLines checks the account may appear on a journal line.
func (a *Account) CanReceiveLines() error {
	if !a.Postable {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "Account is not postable").
			WithDetail("account_code", a.Code)
	}
	if a.Status != AccountActive {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "Account is not active").
			WithDetail("account_code", a.Code).
			WithDetail("status", string(a.Status))
	}
	return nil
}
