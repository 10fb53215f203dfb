package receipt

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
	"retailcore/internal/domain/inventory"
	"retailcore/internal/domain/ledger"
	"retailcore/pkg/logger"
	"retailcore/pkg/numerator"
)

// Scope is the idempotency scope for receipt processing.
const Scope = "pos.receipts"

// Posting-rule transaction types consumed by the receipt workflow.
const (
	RulePosSale     = "POS_SALE"
	RulePosTax      = "POS_TAX"
	RulePosDiscount = "POS_DISCOUNT"
)

// LineInput is one sold item in a process request.
type LineInput struct {
	ProductID id.ID          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	UnitPrice types.Money    `json:"unitPrice"`
}

// ProcessRequest creates and posts a receipt.
type ProcessRequest struct {
	IdempotencyKey string      `json:"-"`
	BranchID       id.ID       `json:"branchId"`
	CashierID      string      `json:"cashierId"`
	Tax            types.Money `json:"tax"`
	Discount       types.Money `json:"discount"`
	PaidTotal      types.Money `json:"paidTotal"`
	Lines          []LineInput `json:"lines"`
}

// Service orchestrates the POS receipt workflow: one atomic transaction
// spanning stock issue per line, sales journal posting and the receipt
// record, guarded by a caller-supplied idempotency key.
type Service struct {
	repo         Repository
	stock        *inventory.Service
	journals     *ledger.Service
	rules        *ledger.Rules
	guard        idempotency.Guard
	txManager    tx.Manager
	numerator    *numerator.Service
	auditor      audit.Sink
	capabilities security.Checker
}

// NewService creates the receipt orchestrator.
func NewService(
	repo Repository,
	stock *inventory.Service,
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
		stock:        stock,
		journals:     journals,
		rules:        rules,
		guard:        guard,
		txManager:    txManager,
		numerator:    numerator,
		auditor:      auditor,
		capabilities: capabilities,
	}
}

// Process executes a POS sale. A replayed idempotency key returns the
// previously produced receipt without re-executing any side effect.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (*Receipt, error) {
	if req.IdempotencyKey == "" {
		return nil, apperror.NewValidation("idempotency key is required")
	}

	requestHash := idempotency.HashRequest(req)
	replay, err := s.guard.Acquire(ctx, Scope, req.IdempotencyKey, requestHash)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		var cached Receipt
		if err := json.Unmarshal(replay.Result, &cached); err != nil {
			return nil, fmt.Errorf("decode cached receipt: %w", err)
		}
		if err := s.auditor.Record(ctx, audit.Entry{
			Event:      audit.EventIdempotentReplay,
			EntityType: "receipt",
			EntityID:   cached.ID,
			Actor:      req.CashierID,
			Metadata:   map[string]any{"scope": Scope, "idempotency_key": req.IdempotencyKey},
		}); err != nil {
			logger.Warn(ctx, "failed to audit idempotent replay", "error", err)
		}
		logger.Info(ctx, "receipt replayed from idempotency guard",
			"number", cached.Number, "idempotency_key", req.IdempotencyKey)
		return &cached, nil
	}

	rcp, err := s.process(ctx, req)
	if err != nil {
		if failErr := s.guard.Fail(ctx, Scope, req.IdempotencyKey, errorResult(err)); failErr != nil {
			logger.Warn(ctx, "failed to mark idempotency key failed",
				"scope", Scope, "key", req.IdempotencyKey, "error", failErr)
		}
		s.auditor.RecordFailure(ctx, audit.Entry{
			Event:      audit.EventOperationFailed,
			EntityType: "receipt",
			Actor:      req.CashierID,
			Metadata: map[string]any{
				"scope":           Scope,
				"idempotency_key": req.IdempotencyKey,
				"branch_id":       req.BranchID.String(),
				"error":           err.Error(),
			},
		})
		return nil, err
	}

	if err := s.guard.Complete(ctx, Scope, req.IdempotencyKey, rcp); err != nil {
		logger.Warn(ctx, "failed to mark idempotency key succeeded",
			"scope", Scope, "key", req.IdempotencyKey, "error", err)
	}
	return rcp, nil
}

func (s *Service) process(ctx context.Context, req ProcessRequest) (*Receipt, error) {
	rcp := &Receipt{
		ID:        id.New(),
		BranchID:  req.BranchID,
		Status:    StatusPosted,
		Tax:       req.Tax,
		Discount:  req.Discount,
		PaidTotal: req.PaidTotal,
		CashierID: req.CashierID,
		CreatedAt: time.Now().UTC(),
	}
	for i, in := range req.Lines {
		rcp.Lines = append(rcp.Lines, Line{
			ID:        id.New(),
			ReceiptID: rcp.ID,
			LineNo:    i + 1,
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
		})
	}
	rcp.ComputeTotals()
	if err := rcp.Validate(); err != nil {
		return nil, err
	}

	number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("RCP"), nil, rcp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("generate receipt number: %w", err)
	}
	rcp.Number = number

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, line := range rcp.Lines {
			if _, err := s.stock.Issue(ctx, inventory.Request{
				ProductID: line.ProductID,
				BranchID:  rcp.BranchID,
				Quantity:  line.Quantity,
				Ref:       fmt.Sprintf("receipt:%s:%d", rcp.Number, line.LineNo),
				Actor:     rcp.CashierID,
			}); err != nil {
				return err
			}
		}

		journal, err := s.postSaleJournal(ctx, rcp)
		if err != nil {
			return err
		}
		rcp.JournalID = &journal.ID

		if err := s.repo.Create(ctx, rcp); err != nil {
			return err
		}
		if err := s.repo.InsertLines(ctx, rcp.ID, rcp.Lines); err != nil {
			return err
		}

		return s.auditor.Record(ctx, audit.Entry{
			Event:      audit.EventReceiptProcessed,
			EntityType: "receipt",
			EntityID:   rcp.ID,
			Actor:      rcp.CashierID,
			After:      rcp,
			Metadata: map[string]any{
				"number":      rcp.Number,
				"branch_id":   rcp.BranchID.String(),
				"grand_total": rcp.GrandTotal.String(),
				"journal_id":  journal.ID.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "receipt processed",
		"number", rcp.Number,
		"branch_id", rcp.BranchID,
		"grand_total", rcp.GrandTotal.String(),
		"lines", len(rcp.Lines),
	)
	return rcp, nil
}

// postSaleJournal builds and posts the sales journal: debit cash for the
// grand total, credit sales for the subtotal, credit tax payable, debit
// discount expense. Account codes come from the posting-rule table.
func (s *Service) postSaleJournal(ctx context.Context, rcp *Receipt) (*ledger.Journal, error) {
	saleRule, err := s.rules.Rule(RulePosSale)
	if err != nil {
		return nil, err
	}

	cash, err := s.journals.AccountByCode(ctx, saleRule.DebitAccount)
	if err != nil {
		return nil, err
	}
	sales, err := s.journals.AccountByCode(ctx, saleRule.CreditAccount)
	if err != nil {
		return nil, err
	}

	dims := ledger.Dimensions{}
	if saleRule.DimensionTemplate != "" {
		dims["entity"] = ledger.ExpandDimension(saleRule.DimensionTemplate, map[string]string{
			"branch_id": rcp.BranchID.String(),
			"receipt":   rcp.Number,
		})
	}

	memo := "POS sale " + rcp.Number
	lines := []ledger.Line{
		ledger.DebitLine(cash.ID, rcp.GrandTotal, memo, dims),
		ledger.CreditLine(sales.ID, rcp.Subtotal, memo, dims),
	}

	if rcp.Tax.IsPositive() {
		taxRule, err := s.rules.Rule(RulePosTax)
		if err != nil {
			return nil, err
		}
		taxAccount, err := s.journals.AccountByCode(ctx, taxRule.CreditAccount)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ledger.CreditLine(taxAccount.ID, rcp.Tax, memo, dims))
	}
	if rcp.Discount.IsPositive() {
		discountRule, err := s.rules.Rule(RulePosDiscount)
		if err != nil {
			return nil, err
		}
		discountAccount, err := s.journals.AccountByCode(ctx, discountRule.DebitAccount)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ledger.DebitLine(discountAccount.ID, rcp.Discount, memo, dims))
	}

	journal := ledger.NewJournal(rcp.CreatedAt, "ETB", "POS", rcp.Number, memo, rcp.CashierID)
	if err := s.journals.CreateJournal(ctx, journal, lines); err != nil {
		return nil, err
	}
	return s.journals.Post(ctx, journal.ID, rcp.CashierID)
}

// Void reverses a POSTED receipt: stock is received back per line, the
// sales journal is reversed and the receipt is marked VOIDED, all in one
// transaction. Voiding a voided receipt fails.
func (s *Service) Void(ctx context.Context, receiptID id.ID, actor string) (*Receipt, error) {
	var voided *Receipt
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		rcp, err := s.repo.GetForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if !s.capabilities.HasCapability(ctx, security.CapabilityReceiptVoid, rcp.BranchID) {
			return apperror.NewForbidden("not allowed to void receipts at this branch")
		}
		if rcp.Status != StatusPosted {
			return apperror.NewBusinessRule(apperror.CodeReceiptState,
				fmt.Sprintf("Receipt is %s, only POSTED receipts can be voided", rcp.Status)).
				WithDetail("number", rcp.Number)
		}

		lines, err := s.repo.GetLines(ctx, receiptID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if _, err := s.stock.Receive(ctx, inventory.Request{
				ProductID: line.ProductID,
				BranchID:  rcp.BranchID,
				Quantity:  line.Quantity,
				Ref:       fmt.Sprintf("receipt-void:%s:%d", rcp.Number, line.LineNo),
				Actor:     actor,
			}); err != nil {
				return err
			}
		}

		if rcp.JournalID != nil {
			if _, err := s.journals.Reverse(ctx, *rcp.JournalID, "void receipt "+rcp.Number, actor); err != nil {
				return err
			}
		}

		before := *rcp
		now := time.Now().UTC()
		rcp.Status = StatusVoided
		rcp.VoidedAt = &now
		rcp.VoidedBy = actor
		if err := s.repo.UpdateStatus(ctx, rcp); err != nil {
			return err
		}

		if err := s.auditor.Record(ctx, audit.Entry{
			Event:      audit.EventReceiptVoided,
			EntityType: "receipt",
			EntityID:   rcp.ID,
			Actor:      actor,
			Before:     before,
			After:      rcp,
			Metadata:   map[string]any{"number": rcp.Number},
		}); err != nil {
			return err
		}

		rcp.Lines = lines
		voided = rcp
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "receipt voided", "number", voided.Number, "actor", actor)
	return voided, nil
}

// Get loads a receipt with its lines.
func (s *Service) Get(ctx context.Context, receiptID id.ID) (*Receipt, error) {
	rcp, err := s.repo.Get(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.GetLines(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	rcp.Lines = lines
	return rcp, nil
}

// List returns receipt headers.
func (s *Service) List(ctx context.Context, filter Filter) ([]Receipt, error) {
	return s.repo.List(ctx, filter)
}

func errorResult(err error) map[string]any {
	result := map[string]any{"error": err.Error()}
	if appErr, ok := apperror.AsAppError(err); ok {
		result["code"] = appErr.Code
		result["message"] = appErr.Message
	}
	return result
}
