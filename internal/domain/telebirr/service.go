package telebirr

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/security"
	"retailcore/internal/core/tx"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/audit"
	"retailcore/internal/domain/idempotency"
	"retailcore/internal/domain/ledger"
	"retailcore/pkg/logger"
	"retailcore/pkg/numerator"
)

// Scope is the idempotency scope for Telebirr transactions.
const Scope = "telebirr.transactions"

// JournalSource tags GL journals created by this workflow.
const JournalSource = "TELEBIRR"

// PostRequest posts one agent float movement.
type PostRequest struct {
	IdempotencyKey string          `json:"-"`
	Type           TransactionType `json:"type"`
	AgentID        id.ID           `json:"agentId"`
	BankAccountID  *id.ID          `json:"bankAccountId,omitempty"`
	Amount         types.Money     `json:"amount"`
	Reference      string          `json:"reference"`
	Memo           string          `json:"memo,omitempty"`
	Actor          string          `json:"-"`
}

// Service orchestrates Telebirr transaction posting: agent/bank-account
// resolution, GL journal posting keyed by the posting-rule table, and the
// transaction record, all in one atomic transaction. Two idempotency
// layers apply: the caller-supplied key via the guard, and the business
// reference via the journal/transaction reference lookup.
type Service struct {
	repo         Repository
	journals     *ledger.Service
	rules        *ledger.Rules
	guard        idempotency.Guard
	txManager    tx.Manager
	numerator    *numerator.Service
	auditor      audit.Sink
	capabilities security.Checker
}

// NewService creates the Telebirr orchestrator.
func NewService(
	repo Repository,
	journals *ledger.Service,
	rules *ledger.Rules,
	guard idempotency.Guard,
	txManager tx.Manager,
	numerator *numerator.Service,
	auditor audit.Sink,
	capabilities security.Checker,
) *Service {
	return &Service{
		repo:         repo,
		journals:     journals,
		rules:        rules,
		guard:        guard,
		txManager:    txManager,
		numerator:    numerator,
		auditor:      auditor,
		capabilities: capabilities,
	}
}

// Post records an agent float movement. A replayed idempotency key or an
// already-posted business reference returns the existing transaction
// without re-executing any side effect.
func (s *Service) Post(ctx context.Context, req PostRequest) (*Transaction, error) {
	if req.IdempotencyKey == "" {
		return nil, apperror.NewValidation("idempotency key is required")
	}
	if req.Reference == "" {
		return nil, apperror.NewValidation("transaction reference is required")
	}
	if !req.Amount.IsPositive() {
		return nil, apperror.NewValidation("transaction amount must be positive").
			WithDetail("amount", req.Amount.String())
	}

	requestHash := idempotency.HashRequest(req)
	replay, err := s.guard.Acquire(ctx, Scope, req.IdempotencyKey, requestHash)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		var cached Transaction
		if err := json.Unmarshal(replay.Result, &cached); err != nil {
			return nil, fmt.Errorf("decode cached transaction: %w", err)
		}
		if err := s.auditor.Record(ctx, audit.Entry{
			Event:      audit.EventIdempotentReplay,
			EntityType: "telebirr_transaction",
			EntityID:   cached.ID,
			Actor:      req.Actor,
			Metadata:   map[string]any{"scope": Scope, "idempotency_key": req.IdempotencyKey},
		}); err != nil {
			logger.Warn(ctx, "failed to audit idempotent replay", "error", err)
		}
		logger.Info(ctx, "telebirr transaction replayed from idempotency guard",
			"number", cached.Number, "idempotency_key", req.IdempotencyKey)
		return &cached, nil
	}

	txn, err := s.post(ctx, req)
	if err != nil {
		if failErr := s.guard.Fail(ctx, Scope, req.IdempotencyKey, errorResult(err)); failErr != nil {
			logger.Warn(ctx, "failed to mark idempotency key failed",
				"scope", Scope, "key", req.IdempotencyKey, "error", failErr)
		}
		s.auditor.RecordFailure(ctx, audit.Entry{
			Event:      audit.EventOperationFailed,
			EntityType: "telebirr_transaction",
			Actor:      req.Actor,
			Metadata: map[string]any{
				"scope":           Scope,
				"idempotency_key": req.IdempotencyKey,
				"type":            string(req.Type),
				"reference":       req.Reference,
				"error":           err.Error(),
			},
		})
		return nil, err
	}

	if err := s.guard.Complete(ctx, Scope, req.IdempotencyKey, txn); err != nil {
		logger.Warn(ctx, "failed to mark idempotency key succeeded",
			"scope", Scope, "key", req.IdempotencyKey, "error", err)
	}
	return txn, nil
}

func (s *Service) post(ctx context.Context, req PostRequest) (*Transaction, error) {
	rule, err := s.rules.Rule(req.Type.RuleType())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("TLB"), nil, now)
	if err != nil {
		return nil, fmt.Errorf("generate transaction number: %w", err)
	}

	var txn *Transaction
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		agent, err := s.repo.GetAgent(ctx, req.AgentID)
		if err != nil {
			return err
		}
		if err := agent.CanTransact(); err != nil {
			return err
		}
		if req.BankAccountID != nil {
			bank, err := s.repo.GetBankAccount(ctx, *req.BankAccountID)
			if err != nil {
				return err
			}
			if err := bank.CanSettle(); err != nil {
				return err
			}
		}

		// Business-reference dedup: an already-posted reference is a
		// benign replay, not an error.
		existing, err := s.repo.GetTransactionByReference(ctx, req.Reference)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == StatusPosted {
			txn = existing
			return nil
		}

		journal, err := s.postJournal(ctx, req, rule, agent, number, now)
		if err != nil {
			return err
		}

		txn = &Transaction{
			ID:            id.New(),
			Number:        number,
			Type:          req.Type,
			AgentID:       agent.ID,
			BankAccountID: req.BankAccountID,
			Amount:        req.Amount,
			Reference:     req.Reference,
			Memo:          req.Memo,
			Status:        StatusPosted,
			JournalID:     &journal.ID,
			CreatedAt:     now,
			CreatedBy:     req.Actor,
		}
		if err := s.repo.CreateTransaction(ctx, txn); err != nil {
			return err
		}

		return s.auditor.Record(ctx, audit.Entry{
			Event:      audit.EventTelebirrPosted,
			EntityType: "telebirr_transaction",
			EntityID:   txn.ID,
			Actor:      req.Actor,
			After:      txn,
			Metadata: map[string]any{
				"number":     txn.Number,
				"type":       string(txn.Type),
				"agent_code": agent.Code,
				"amount":     txn.Amount.String(),
				"journal_id": journal.ID.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "telebirr transaction posted",
		"number", txn.Number,
		"type", string(txn.Type),
		"amount", txn.Amount.String(),
	)
	return txn, nil
}

func (s *Service) postJournal(ctx context.Context, req PostRequest, rule ledger.PostingRule, agent *Agent, number string, now time.Time) (*ledger.Journal, error) {
	debitAccount, err := s.journals.AccountByCode(ctx, rule.DebitAccount)
	if err != nil {
		return nil, err
	}
	creditAccount, err := s.journals.AccountByCode(ctx, rule.CreditAccount)
	if err != nil {
		return nil, err
	}

	var debitDims, creditDims ledger.Dimensions
	if rule.DimensionTemplate != "" {
		dims := ledger.Dimensions{
			"entity": ledger.ExpandDimension(rule.DimensionTemplate, map[string]string{
				"agent_code": agent.Code,
			}),
		}
		if rule.TagsDebit() {
			debitDims = dims
		}
		if rule.TagsCredit() {
			creditDims = dims
		}
	}

	memo := fmt.Sprintf("Telebirr %s %s (%s)", req.Type, number, agent.Code)
	if req.Memo != "" {
		memo = req.Memo
	}
	lines := []ledger.Line{
		ledger.DebitLine(debitAccount.ID, req.Amount, memo, debitDims),
		ledger.CreditLine(creditAccount.ID, req.Amount, memo, creditDims),
	}

	journal := ledger.NewJournal(now, "ETB", JournalSource, req.Reference, memo, req.Actor)
	if err := s.journals.CreateJournal(ctx, journal, lines); err != nil {
		return nil, err
	}
	return s.journals.Post(ctx, journal.ID, req.Actor)
}

// Void cancels a POSTED transaction: the GL journal is reversed and the
// transaction marked VOIDED, in one transaction. Voiding twice fails.
func (s *Service) Void(ctx context.Context, txID id.ID, actor string) (*Transaction, error) {
	if !s.capabilities.HasCapability(ctx, security.CapabilityTelebirrVoid, id.Nil()) {
		return nil, apperror.NewForbidden("not allowed to void telebirr transactions")
	}

	var voided *Transaction
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		txn, err := s.repo.GetTransactionForUpdate(ctx, txID)
		if err != nil {
			return err
		}
		if txn.Status != StatusPosted {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule,
				fmt.Sprintf("Transaction is %s, only POSTED transactions can be voided", txn.Status)).
				WithDetail("number", txn.Number)
		}

		if txn.JournalID != nil {
			if _, err := s.journals.Void(ctx, *txn.JournalID, "void telebirr "+txn.Number, actor); err != nil {
				return err
			}
		}

		before := *txn
		now := time.Now().UTC()
		txn.Status = StatusVoided
		txn.VoidedAt = &now
		txn.VoidedBy = actor
		if err := s.repo.UpdateTransactionStatus(ctx, txn); err != nil {
			return err
		}

		if err := s.auditor.Record(ctx, audit.Entry{
			Event:      audit.EventTelebirrVoided,
			EntityType: "telebirr_transaction",
			EntityID:   txn.ID,
			Actor:      actor,
			Before:     before,
			After:      txn,
			Metadata:   map[string]any{"number": txn.Number},
		}); err != nil {
			return err
		}

		voided = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "telebirr transaction voided", "number", voided.Number, "actor", actor)
	return voided, nil
}

// AgentOutstanding rolls up the agent's posted subledger balance
// (Σdebit - Σcredit of lines carrying the agent dimension).
func (s *Service) AgentOutstanding(ctx context.Context, agentCode string) (types.Money, error) {
	agent, err := s.repo.GetAgentByCode(ctx, agentCode)
	if err != nil {
		return types.ZeroMoney(), err
	}
	return s.journals.SubledgerBalance(ctx, "entity", "AGENT:"+agent.Code)
}

// CreateAgent registers a new agent.
func (s *Service) CreateAgent(ctx context.Context, a *Agent) error {
	if a.Code == "" {
		return apperror.NewValidation("agent code is required")
	}
	if a.Name == "" {
		return apperror.NewValidation("agent name is required")
	}
	if existing, err := s.repo.GetAgentByCode(ctx, a.Code); err == nil && existing != nil {
		return apperror.NewDuplicate("agent", "code", a.Code)
	}
	if id.IsNil(a.ID) {
		a.ID = id.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = AgentActive
	}
	return s.repo.CreateAgent(ctx, a)
}

// SetAgentStatus changes an agent's lifecycle state, addressed by code.
func (s *Service) SetAgentStatus(ctx context.Context, agentCode string, status AgentStatus) error {
	if status != AgentActive && status != AgentSuspended {
		return apperror.NewValidation("unknown agent status").WithDetail("status", string(status))
	}
	agent, err := s.repo.GetAgentByCode(ctx, agentCode)
	if err != nil {
		return err
	}
	return s.repo.UpdateAgentStatus(ctx, agent.ID, status)
}

// ListAgents returns all agents.
func (s *Service) ListAgents(ctx context.Context) ([]Agent, error) {
	return s.repo.ListAgents(ctx)
}

// CreateBankAccount registers a settlement bank account.
func (s *Service) CreateBankAccount(ctx context.Context, b *BankAccount) error {
	if b.AccountNumber == "" {
		return apperror.NewValidation("bank account number is required")
	}
	if b.GLAccountCode == "" {
		return apperror.NewValidation("bank account GL account code is required")
	}
	if _, err := s.journals.AccountByCode(ctx, b.GLAccountCode); err != nil {
		return err
	}
	if id.IsNil(b.ID) {
		b.ID = id.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.Status == "" {
		b.Status = BankAccountActive
	}
	return s.repo.CreateBankAccount(ctx, b)
}

// GetTransaction loads a transaction.
func (s *Service) GetTransaction(ctx context.Context, txID id.ID) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, txID)
}

// ListTransactions returns transactions matching the filter.
func (s *Service) ListTransactions(ctx context.Context, filter Filter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

func errorResult(err error) map[string]any {
	result := map[string]any{"error": err.Error()}
	if appErr, ok := apperror.AsAppError(err); ok {
		result["code"] = appErr.Code
		result["message"] = appErr.Message
	}
	return result
}
