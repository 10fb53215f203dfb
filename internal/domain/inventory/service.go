package inventory

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/security"
	"retailcore/internal/core/tx"
	"retailcore/internal/core/types"
	"retailcore/pkg/logger"
)

// Service is the inventory ledger engine.
// Every mutating operation runs in one transaction with the affected item
// row(s) locked for the duration, so concurrent mutators of the same
// (product, branch) pair are serialized by the storage layer.
type Service struct {
	repo         Repository
	txManager    tx.Manager
	capabilities security.Checker
}

// NewService creates the inventory ledger engine.
func NewService(repo Repository, txManager tx.Manager, capabilities security.Checker) *Service {
	return &Service{
		repo:         repo,
		txManager:    txManager,
		capabilities: capabilities,
	}
}

// Request carries the common parameters of a single-item operation.
type Request struct {
	ProductID id.ID
	BranchID  id.ID
	Quantity  types.Quantity
	Ref       string
	Actor     string

	// The reservation sweep releases under the original reservation ref,
	// which may already carry an UNRESERVE movement from a partial release.
	skipReplayCheck bool
}

// TransferRequest moves stock between two branches of the same product.
type TransferRequest struct {
	ProductID    id.ID
	FromBranchID id.ID
	ToBranchID   id.ID
	Quantity     types.Quantity
	Ref          string
	Actor        string
}

// AdjustRequest applies a signed correction, gated by a capability check.
type AdjustRequest struct {
	Request
	Reason string
}

// OpeningBalance seeds on-hand quantity for a (product, branch) pair.
// Intended to be called once per seed; there is no ref-based replay check.
func (s *Service) OpeningBalance(ctx context.Context, req Request) (Result, error) {
	if req.Quantity.IsNegative() {
		return Result{}, apperror.NewValidation("opening balance quantity cannot be negative")
	}

	var result Result
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		item, err := s.repo.GetItemForUpdate(ctx, req.ProductID, req.BranchID, true)
		if err != nil {
			return err
		}

		item.OnHand += req.Quantity
		if err := s.repo.UpdateQuantities(ctx, item); err != nil {
			return err
		}

		if !req.Quantity.IsZero() {
			if err := s.repo.InsertMovement(ctx, NewMovement(item, MovementOpening, req.Quantity, req.Ref, req.Actor)); err != nil {
				return err
			}
		}

		result = Result{Status: OutcomeApplied, Item: *item}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	logger.Info(ctx, "opening balance recorded",
		"product_id", req.ProductID,
		"branch_id", req.BranchID,
		"quantity", req.Quantity,
	)
	return result, nil
}

// Receive adds received stock to on-hand.
// A repeated (ref, product, branch, RECEIVE) is a benign replay.
func (s *Service) Receive(ctx context.Context, req Request) (Result, error) {
	if req.Quantity.IsNegative() {
		return Result{}, apperror.NewValidation("receive quantity cannot be negative")
	}

	return s.applyLocked(ctx, req, MovementReceive, func(item *Item) error {
		item.OnHand += req.Quantity
		return nil
	}, req.Quantity)
}

// Reserve earmarks available stock for a pending commitment.
func (s *Service) Reserve(ctx context.Context, req Request) (Result, error) {
	if !req.Quantity.IsPositive() {
		return Result{}, apperror.NewValidation("reserve quantity must be positive")
	}

	return s.applyLocked(ctx, req, MovementReserve, func(item *Item) error {
		if item.Available() < req.Quantity {
			return apperror.NewInsufficientStock(req.ProductID.String(), req.Quantity.Float64(), item.Available().Float64())
		}
		item.Reserved += req.Quantity
		return nil
	}, req.Quantity)
}

// Unreserve releases previously reserved stock.
func (s *Service) Unreserve(ctx context.Context, req Request) (Result, error) {
	if !req.Quantity.IsPositive() {
		return Result{}, apperror.NewValidation("unreserve quantity must be positive")
	}

	return s.applyLocked(ctx, req, MovementUnreserve, func(item *Item) error {
		if item.Reserved < req.Quantity {
			return apperror.NewInsufficientReserved(req.ProductID.String(), req.Quantity.Float64(), item.Reserved.Float64())
		}
		item.Reserved -= req.Quantity
		return nil
	}, req.Quantity.Neg())
}

// Issue removes stock from on-hand. Reserved is untouched: a caller issuing
// against a prior reservation must unreserve separately. The two operations
// are deliberately decoupled; there is no link between a specific
// reservation and a specific issue.
func (s *Service) Issue(ctx context.Context, req Request) (Result, error) {
	if !req.Quantity.IsPositive() {
		return Result{}, apperror.NewValidation("issue quantity must be positive")
	}

	return s.applyLocked(ctx, req, MovementIssue, func(item *Item) error {
		if item.Available() < req.Quantity {
			return apperror.NewInsufficientStock(req.ProductID.String(), req.Quantity.Float64(), item.Available().Float64())
		}
		item.OnHand -= req.Quantity
		return nil
	}, req.Quantity.Neg())
}

// Adjust applies a signed correction to on-hand. Requires the
// inventory.adjust capability for the branch.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (Result, error) {
	if req.Quantity.IsZero() {
		return Result{}, apperror.NewValidation("adjustment quantity cannot be zero")
	}
	if !s.capabilities.HasCapability(ctx, security.CapabilityInventoryAdjust, req.BranchID) {
		return Result{}, apperror.NewForbidden("inventory adjustment is not permitted").
			WithDetail("capability", security.CapabilityInventoryAdjust)
	}

	var result Result
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		item, err := s.repo.GetItemForUpdate(ctx, req.ProductID, req.BranchID, true)
		if err != nil {
			return err
		}

		if req.Ref != "" {
			exists, err := s.repo.MovementExists(ctx, req.Ref, req.ProductID, req.BranchID, MovementAdjust)
			if err != nil {
				return err
			}
			if exists {
				result = Result{Status: OutcomeAlreadyApplied, Item: *item}
				return nil
			}
		}

		newOnHand := item.OnHand + req.Quantity
		if newOnHand.IsNegative() {
			return apperror.NewBusinessRule(apperror.CodeInsufficientStock, "Adjustment would drive stock negative").
				WithDetail("product_id", req.ProductID.String()).
				WithDetail("on_hand", item.OnHand.Float64()).
				WithDetail("adjustment", req.Quantity.Float64())
		}
		if newOnHand < item.Reserved {
			return apperror.NewBusinessRule(apperror.CodeInsufficientStock, "Adjustment would drive stock below reserved quantity").
				WithDetail("product_id", req.ProductID.String()).
				WithDetail("reserved", item.Reserved.Float64())
		}

		item.OnHand = newOnHand
		if err := s.repo.UpdateQuantities(ctx, item); err != nil {
			return err
		}

		m := NewMovement(item, MovementAdjust, req.Quantity, req.Ref, req.Actor)
		if req.Reason != "" {
			m.Metadata = map[string]any{"reason": req.Reason}
		}
		if err := s.repo.InsertMovement(ctx, m); err != nil {
			return err
		}

		result = Result{Status: OutcomeApplied, Item: *item}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if result.Status == OutcomeApplied {
		logger.Info(ctx, "stock adjusted",
			"product_id", req.ProductID,
			"branch_id", req.BranchID,
			"quantity", req.Quantity,
			"reason", req.Reason,
		)
	}
	return result, nil
}

// Transfer moves stock between branches. Both item rows are locked in a
// deterministic order (sorted by product+branch key) so two opposite
// transfers between the same branch pair cannot deadlock.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if !req.Quantity.IsPositive() {
		return TransferResult{}, apperror.NewValidation("transfer quantity must be positive")
	}
	if req.FromBranchID == req.ToBranchID {
		return TransferResult{}, apperror.NewValidation("transfer source and destination branches must differ")
	}

	var result TransferResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		first, second := req.FromBranchID, req.ToBranchID
		if lockAfter(first, second) {
			first, second = second, first
		}

		firstItem, err := s.repo.GetItemForUpdate(ctx, req.ProductID, first, true)
		if err != nil {
			return err
		}
		secondItem, err := s.repo.GetItemForUpdate(ctx, req.ProductID, second, true)
		if err != nil {
			return err
		}

		src, dst := firstItem, secondItem
		if src.BranchID != req.FromBranchID {
			src, dst = secondItem, firstItem
		}

		if req.Ref != "" {
			outExists, err := s.repo.MovementExists(ctx, req.Ref, req.ProductID, req.FromBranchID, MovementTransferOut)
			if err != nil {
				return err
			}
			inExists, err := s.repo.MovementExists(ctx, req.Ref, req.ProductID, req.ToBranchID, MovementTransferIn)
			if err != nil {
				return err
			}
			if outExists && inExists {
				result = TransferResult{Status: OutcomeAlreadyApplied, From: *src, To: *dst}
				return nil
			}
		}

		if src.Available() < req.Quantity {
			return apperror.NewInsufficientStock(req.ProductID.String(), req.Quantity.Float64(), src.Available().Float64())
		}

		src.OnHand -= req.Quantity
		if err := s.repo.UpdateQuantities(ctx, src); err != nil {
			return err
		}
		if err := s.repo.InsertMovement(ctx, NewMovement(src, MovementTransferOut, req.Quantity.Neg(), req.Ref, req.Actor)); err != nil {
			return err
		}

		dst.OnHand += req.Quantity
		if err := s.repo.UpdateQuantities(ctx, dst); err != nil {
			return err
		}
		if err := s.repo.InsertMovement(ctx, NewMovement(dst, MovementTransferIn, req.Quantity, req.Ref, req.Actor)); err != nil {
			return err
		}

		result = TransferResult{Status: OutcomeApplied, From: *src, To: *dst}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}

	if result.Status == OutcomeApplied {
		logger.Info(ctx, "stock transferred",
			"product_id", req.ProductID,
			"from_branch", req.FromBranchID,
			"to_branch", req.ToBranchID,
			"quantity", req.Quantity,
		)
	}
	return result, nil
}

// GetItem returns the current state for a (product, branch) pair.
func (s *Service) GetItem(ctx context.Context, productID, branchID id.ID) (*Item, error) {
	return s.repo.GetItem(ctx, productID, branchID)
}

// ListMovements returns movement history.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// SweepReservations releases reservations whose RESERVE movement is older
// than maxAge and still not fully unreserved. Intended for a background
// job or CLI caller.
func (s *Service) SweepReservations(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	open, err := s.repo.ListOpenReservations(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, r := range open {
		if !r.Quantity.IsPositive() {
			continue
		}
		res, err := s.Unreserve(ctx, Request{
			ProductID:       r.ProductID,
			BranchID:        r.BranchID,
			Quantity:        r.Quantity,
			Ref:             r.Ref,
			Actor:           "system:reservation-sweep",
			skipReplayCheck: true,
		})
		if err != nil {
			// Keep sweeping; a single bad reservation must not stall the rest.
			logger.Error(ctx, "reservation sweep failed for ref",
				"ref", r.Ref,
				"product_id", r.ProductID,
				"error", err,
			)
			continue
		}
		if res.Status == OutcomeApplied {
			released++
		}
	}

	return released, nil
}

// applyLocked runs the shared lock → replay-check → mutate → movement
// sequence for single-item operations. movementQty is the signed quantity
// written to the movement row.
func (s *Service) applyLocked(ctx context.Context, req Request, movementType MovementType, mutate func(*Item) error, movementQty types.Quantity) (Result, error) {
	var result Result
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		item, err := s.repo.GetItemForUpdate(ctx, req.ProductID, req.BranchID, true)
		if err != nil {
			return err
		}

		if req.Ref != "" && !req.skipReplayCheck {
			exists, err := s.repo.MovementExists(ctx, req.Ref, req.ProductID, req.BranchID, movementType)
			if err != nil {
				return err
			}
			if exists {
				result = Result{Status: OutcomeAlreadyApplied, Item: *item}
				return nil
			}
		}

		if err := mutate(item); err != nil {
			return err
		}
		if err := s.repo.UpdateQuantities(ctx, item); err != nil {
			return err
		}

		if !movementQty.IsZero() {
			if err := s.repo.InsertMovement(ctx, NewMovement(item, movementType, movementQty, req.Ref, req.Actor)); err != nil {
				return err
			}
		}

		result = Result{Status: OutcomeApplied, Item: *item}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s %s@%s: %w", movementType, req.ProductID, req.BranchID, err)
	}
	return result, nil
}

// lockAfter reports whether branch a sorts after branch b in the global
// lock order.
func lockAfter(a, b id.ID) bool {
	return bytes.Compare(a[:], b[:]) > 0
}
