// Package inventory_repo provides the PostgreSQL implementation of the
// inventory ledger repository.
package inventory_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/inventory"
	"retailcore/internal/infrastructure/storage/postgres"
)

const movementsTable = "inv_movements"

var _ inventory.Repository = (*Repo)(nil)

// Repo implements inventory.Repository.
type Repo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// New creates the inventory repository.
func New(txManager *postgres.TxManager) *Repo {
	return &Repo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetItemForUpdate locks the (product, branch) row for the duration of
// the surrounding transaction. With createMissing the row is inserted
// lazily first; ON CONFLICT DO NOTHING keeps concurrent creators safe,
// the following locked select serializes them.
func (r *Repo) GetItemForUpdate(ctx context.Context, productID, branchID id.ID, createMissing bool) (*inventory.Item, error) {
	querier := r.txManager.GetQuerier(ctx)

	if createMissing {
		now := time.Now().UTC()
		_, err := querier.Exec(ctx, `
			INSERT INTO inv_items (id, product_id, branch_id, on_hand, reserved, created_at, updated_at)
			VALUES ($1, $2, $3, 0, 0, $4, $4)
			ON CONFLICT (product_id, branch_id) DO NOTHING
		`, id.New(), productID, branchID, now)
		if err != nil {
			return nil, apperror.NewDatabase(fmt.Errorf("create item: %w", err))
		}
	}

	var item inventory.Item
	err := pgxscan.Get(ctx, querier, &item, `
		SELECT id, product_id, branch_id, on_hand, reserved, created_at, updated_at
		FROM inv_items
		WHERE product_id = $1 AND branch_id = $2
		FOR UPDATE
	`, productID, branchID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("inventory item",
				fmt.Sprintf("%s@%s", productID, branchID))
		}
		return nil, apperror.NewDatabase(fmt.Errorf("lock item: %w", err))
	}

	return &item, nil
}

// GetItem returns the item without locking; a missing pair comes back as
// a zero-quantity item.
func (r *Repo) GetItem(ctx context.Context, productID, branchID id.ID) (*inventory.Item, error) {
	var item inventory.Item
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &item, `
		SELECT id, product_id, branch_id, on_hand, reserved, created_at, updated_at
		FROM inv_items
		WHERE product_id = $1 AND branch_id = $2
	`, productID, branchID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return &inventory.Item{
				ProductID: productID,
				BranchID:  branchID,
			}, nil
		}
		return nil, apperror.NewDatabase(fmt.Errorf("get item: %w", err))
	}

	return &item, nil
}

// UpdateQuantities persists on_hand/reserved for a locked item.
func (r *Repo) UpdateQuantities(ctx context.Context, item *inventory.Item) error {
	item.UpdatedAt = time.Now().UTC()
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE inv_items
		SET on_hand = $1, reserved = $2, updated_at = $3
		WHERE id = $4
	`, item.OnHand, item.Reserved, item.UpdatedAt, item.ID)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("update quantities: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("inventory item", item.ID.String())
	}
	return nil
}

// InsertMovement appends one movement row.
func (r *Repo) InsertMovement(ctx context.Context, m *inventory.Movement) error {
	var metadata []byte
	if m.Metadata != nil {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("marshal movement metadata: %w", err)
		}
		metadata = b
	}

	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO inv_movements (id, product_id, branch_id, type, quantity, ref, metadata, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.ProductID, m.BranchID, m.Type, m.Quantity, m.Ref, metadata, m.Actor, m.CreatedAt)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("insert movement: %w", err))
	}
	return nil
}

// MovementExists reports whether a movement with the given business
// reference was already recorded.
func (r *Repo) MovementExists(ctx context.Context, ref string, productID, branchID id.ID, movementType inventory.MovementType) (bool, error) {
	var exists bool
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM inv_movements
			WHERE ref = $1 AND product_id = $2 AND branch_id = $3 AND type = $4
		)
	`, ref, productID, branchID, movementType).Scan(&exists)
	if err != nil {
		return false, apperror.NewDatabase(fmt.Errorf("check movement ref: %w", err))
	}
	return exists, nil
}

// ListMovements returns movement history, newest first.
func (r *Repo) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	q := r.builder.Select(
		"id", "product_id", "branch_id", "type", "quantity",
		"ref", "metadata", "actor", "created_at",
	).From(movementsTable)

	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.BranchID != nil {
		q = q.Where(squirrel.Eq{"branch_id": *filter.BranchID})
	}
	if len(filter.Types) > 0 {
		q = q.Where(squirrel.Eq{"type": filter.Types})
	}
	if filter.Ref != "" {
		q = q.Where(squirrel.Eq{"ref": filter.Ref})
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

	var movements []inventory.Movement
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("select movements: %w", err))
	}

	return movements, nil
}

// ListOpenReservations returns, per (ref, product, branch), the net
// reserved quantity still outstanding for reservations older than the
// given time. RESERVE movements carry +qty, UNRESERVE -qty, so the net
// sum per ref is what remains held.
func (r *Repo) ListOpenReservations(ctx context.Context, before time.Time) ([]inventory.OpenReservation, error) {
	var reservations []inventory.OpenReservation
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &reservations, `
		SELECT ref, product_id, branch_id,
		       SUM(quantity) AS quantity,
		       MIN(created_at) AS oldest_at
		FROM inv_movements
		WHERE type IN ('RESERVE', 'UNRESERVE') AND ref <> ''
		GROUP BY ref, product_id, branch_id
		HAVING SUM(quantity) > 0 AND MIN(created_at) < $1
		ORDER BY oldest_at
	`, before)
	if err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("select open reservations: %w", err))
	}
	return reservations, nil
}
