// Package telebirr implements the mobile-money agent settlement workflow:
// agent float movements posted to the GL with per-agent subledger
// dimensions, guarded by idempotency keys and business references.
package telebirr

import (
	"time"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// AgentStatus is the agent lifecycle state.
type AgentStatus string

const (
	AgentActive    AgentStatus = "ACTIVE"
	AgentSuspended AgentStatus = "SUSPENDED"
)

// Agent is a Telebirr float agent.
type Agent struct {
	ID        id.ID       `db:"id" json:"id"`
	Code      string      `db:"code" json:"code"`
	Name      string      `db:"name" json:"name"`
	Phone     string      `db:"phone" json:"phone"`
	Status    AgentStatus `db:"status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time   `db:"updated_at" json:"updatedAt"`
}

// CanTransact checks the agent may participate in new transactions.
func (a *Agent) CanTransact() error {
	if a.Status != AgentActive {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "Agent is not active").
			WithDetail("agent_code", a.Code).
			WithDetail("status", string(a.Status))
	}
	return nil
}

// BankAccountStatus is the bank account lifecycle state.
type BankAccountStatus string

const (
	BankAccountActive BankAccountStatus = "ACTIVE"
	BankAccountClosed BankAccountStatus = "CLOSED"
)

// BankAccount is a settlement bank account.
type BankAccount struct {
	ID            id.ID             `db:"id" json:"id"`
	Name          string            `db:"name" json:"name"`
	AccountNumber string            `db:"account_number" json:"accountNumber"`
	BankName      string            `db:"bank_name" json:"bankName"`
	GLAccountCode string            `db:"gl_account_code" json:"glAccountCode"`
	Status        BankAccountStatus `db:"status" json:"status"`
	CreatedAt     time.Time         `db:"created_at" json:"createdAt"`
}

// CanSettle checks the bank account may receive settlements.
func (b *BankAccount) CanSettle() error {
	if b.Status != BankAccountActive {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "Bank account is not active").
			WithDetail("account_number", b.AccountNumber).
			WithDetail("status", string(b.Status))
	}
	return nil
}

// TransactionType is a Telebirr transaction kind, keyed into the
// posting-rule table as "TELEBIRR_<type>".
type TransactionType string

const (
	TypeTopup      TransactionType = "TOPUP"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypeSettlement TransactionType = "SETTLEMENT"
	TypeCommission TransactionType = "COMMISSION"
)

// TransactionStatus is the transaction lifecycle state.
type TransactionStatus string

const (
	StatusPosted TransactionStatus = "POSTED"
	StatusVoided TransactionStatus = "VOIDED"
)

// Transaction is one posted Telebirr float movement.
type Transaction struct {
	ID            id.ID             `db:"id" json:"id"`
	Number        string            `db:"number" json:"number"`
	Type          TransactionType   `db:"type" json:"type"`
	AgentID       id.ID             `db:"agent_id" json:"agentId"`
	BankAccountID *id.ID            `db:"bank_account_id" json:"bankAccountId,omitempty"`
	Amount        types.Money       `db:"amount" json:"amount"`
	Reference     string            `db:"reference" json:"reference"`
	Memo          string            `db:"memo" json:"memo,omitempty"`
	Status        TransactionStatus `db:"status" json:"status"`
	JournalID     *id.ID            `db:"journal_id" json:"journalId,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"createdAt"`
	CreatedBy     string            `db:"created_by" json:"createdBy"`
	VoidedAt      *time.Time        `db:"voided_at" json:"voidedAt,omitempty"`
	VoidedBy      string            `db:"voided_by" json:"voidedBy,omitempty"`
}

// RuleType returns the posting-rule key for this transaction type.
func (t TransactionType) RuleType() string {
	return "TELEBIRR_" + string(t)
}
