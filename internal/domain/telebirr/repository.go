package telebirr

import (
	"context"
	"time"

	"retailcore/internal/core/id"
)

// Repository defines storage operations for agents, bank accounts and
// Telebirr transactions.
type Repository interface {
	// Agents

	CreateAgent(ctx context.Context, a *Agent) error
	GetAgent(ctx context.Context, agentID id.ID) (*Agent, error)
	GetAgentByCode(ctx context.Context, code string) (*Agent, error)
	UpdateAgentStatus(ctx context.Context, agentID id.ID, status AgentStatus) error
	ListAgents(ctx context.Context) ([]Agent, error)

	// Bank accounts

	CreateBankAccount(ctx context.Context, b *BankAccount) error
	GetBankAccount(ctx context.Context, accountID id.ID) (*BankAccount, error)

	// Transactions

	CreateTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, txID id.ID) (*Transaction, error)

	// GetTransactionByReference returns the transaction recorded for a
	// business reference, or nil. Reference-based dedup layer.
	GetTransactionByReference(ctx context.Context, reference string) (*Transaction, error)

	// GetTransactionForUpdate locks the transaction row, serializing voids.
	GetTransactionForUpdate(ctx context.Context, txID id.ID) (*Transaction, error)

	UpdateTransactionStatus(ctx context.Context, t *Transaction) error
	ListTransactions(ctx context.Context, filter Filter) ([]Transaction, error)
}

// Filter narrows transaction listings.
type Filter struct {
	AgentID  *id.ID
	Type     *TransactionType
	Status   *TransactionStatus
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}
