// Package telebirr_repo provides the PostgreSQL implementation of the
// Telebirr repository: agents, bank accounts and transactions.
package telebirr_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/telebirr"
	"retailcore/internal/infrastructure/storage/postgres"
)

const transactionsTable = "tlb_transactions"

var _ telebirr.Repository = (*Repo)(nil)

// Repo implements telebirr.Repository.
type Repo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// New creates the telebirr repository.
func New(txManager *postgres.TxManager) *Repo {
	return &Repo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateAgent inserts an agent.
func (r *Repo) CreateAgent(ctx context.Context, a *telebirr.Agent) error {
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO tlb_agents (id, code, name, phone, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Code, a.Name, a.Phone, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("create agent: %w", err))
	}
	return nil
}

// GetAgent loads an agent by id.
func (r *Repo) GetAgent(ctx context.Context, agentID id.ID) (*telebirr.Agent, error) {
	var a telebirr.Agent
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &a, `
		SELECT id, code, name, phone, status, created_at, updated_at
		FROM tlb_agents WHERE id = $1
	`, agentID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("agent", agentID.String())
		}
		return nil, apperror.NewDatabase(fmt.Errorf("get agent: %w", err))
	}
	return &a, nil
}

// GetAgentByCode loads an agent by code.
func (r *Repo) GetAgentByCode(ctx context.Context, code string) (*telebirr.Agent, error) {
	var a telebirr.Agent
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &a, `
		SELECT id, code, name, phone, status, created_at, updated_at
		FROM tlb_agents WHERE code = $1
	`, code)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("agent", code)
		}
		return nil, apperror.NewDatabase(fmt.Errorf("get agent by code: %w", err))
	}
	return &a, nil
}

// UpdateAgentStatus changes an agent's lifecycle state.
func (r *Repo) UpdateAgentStatus(ctx context.Context, agentID id.ID, status telebirr.AgentStatus) error {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE tlb_agents SET status = $1, updated_at = $2 WHERE id = $3
	`, status, time.Now().UTC(), agentID)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("update agent status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("agent", agentID.String())
	}
	return nil
}

// ListAgents returns all agents ordered by code.
func (r *Repo) ListAgents(ctx context.Context) ([]telebirr.Agent, error) {
	var agents []telebirr.Agent
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &agents, `
		SELECT id, code, name, phone, status, created_at, updated_at
		FROM tlb_agents ORDER BY code
	`)
	if err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("list agents: %w", err))
	}
	return agents, nil
}

// CreateBankAccount inserts a settlement bank account.
func (r *Repo) CreateBankAccount(ctx context.Context, b *telebirr.BankAccount) error {
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO tlb_bank_accounts (id, name, account_number, bank_name, gl_account_code, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.Name, b.AccountNumber, b.BankName, b.GLAccountCode, b.Status, b.CreatedAt)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("create bank account: %w", err))
	}
	return nil
}

// GetBankAccount loads a bank account by id.
func (r *Repo) GetBankAccount(ctx context.Context, accountID id.ID) (*telebirr.BankAccount, error) {
	var b telebirr.BankAccount
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &b, `
		SELECT id, name, account_number, bank_name, gl_account_code, status, created_at
		FROM tlb_bank_accounts WHERE id = $1
	`, accountID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("bank account", accountID.String())
		}
		return nil, apperror.NewDatabase(fmt.Errorf("get bank account: %w", err))
	}
	return &b, nil
}

const transactionColumns = `id, number, type, agent_id, bank_account_id, amount, reference, memo, status,
	journal_id, created_at, created_by, voided_at, voided_by`

// CreateTransaction inserts a transaction.
func (r *Repo) CreateTransaction(ctx context.Context, t *telebirr.Transaction) error {
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO tlb_transactions (id, number, type, agent_id, bank_account_id, amount, reference, memo, status,
			journal_id, created_at, created_by, voided_at, voided_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, t.ID, t.Number, t.Type, t.AgentID, t.BankAccountID, t.Amount, t.Reference, t.Memo, t.Status,
		t.JournalID, t.CreatedAt, t.CreatedBy, t.VoidedAt, t.VoidedBy)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("create transaction: %w", err))
	}
	return nil
}

// GetTransaction loads a transaction by id.
func (r *Repo) GetTransaction(ctx context.Context, txID id.ID) (*telebirr.Transaction, error) {
	var t telebirr.Transaction
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &t,
		`SELECT `+transactionColumns+` FROM tlb_transactions WHERE id = $1`, txID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("telebirr transaction", txID.String())
		}
		return nil, apperror.NewDatabase(fmt.Errorf("get transaction: %w", err))
	}
	return &t, nil
}

// GetTransactionByReference returns the transaction recorded for a
// business reference, or nil.
func (r *Repo) GetTransactionByReference(ctx context.Context, reference string) (*telebirr.Transaction, error) {
	var t telebirr.Transaction
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &t,
		`SELECT `+transactionColumns+` FROM tlb_transactions
		 WHERE reference = $1 ORDER BY created_at DESC LIMIT 1`, reference)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, apperror.NewDatabase(fmt.Errorf("get transaction by reference: %w", err))
	}
	return &t, nil
}

// GetTransactionForUpdate locks the transaction row.
func (r *Repo) GetTransactionForUpdate(ctx context.Context, txID id.ID) (*telebirr.Transaction, error) {
	var t telebirr.Transaction
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &t,
		`SELECT `+transactionColumns+` FROM tlb_transactions WHERE id = $1 FOR UPDATE`, txID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("telebirr transaction", txID.String())
		}
		return nil, apperror.NewDatabase(fmt.Errorf("lock transaction: %w", err))
	}
	return &t, nil
}

// UpdateTransactionStatus persists status and void info.
func (r *Repo) UpdateTransactionStatus(ctx context.Context, t *telebirr.Transaction) error {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE tlb_transactions
		SET status = $1, voided_at = $2, voided_by = $3
		WHERE id = $4
	`, t.Status, t.VoidedAt, t.VoidedBy, t.ID)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("update transaction status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("telebirr transaction", t.ID.String())
	}
	return nil
}

// ListTransactions returns transactions matching the filter, newest first.
func (r *Repo) ListTransactions(ctx context.Context, filter telebirr.Filter) ([]telebirr.Transaction, error) {
	q := r.builder.Select(
		"id", "number", "type", "agent_id", "bank_account_id", "amount", "reference", "memo", "status",
		"journal_id", "created_at", "created_by", "voided_at", "voided_by",
	).From(transactionsTable)

	if filter.AgentID != nil {
		q = q.Where(squirrel.Eq{"agent_id": *filter.AgentID})
	}
	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"type": *filter.Type})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}

	q = q.OrderBy("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var transactions []telebirr.Transaction
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &transactions, sql, args...); err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("select transactions: %w", err))
	}
	return transactions, nil
}
