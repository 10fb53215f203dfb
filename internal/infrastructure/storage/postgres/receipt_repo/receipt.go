// Package receipt_repo provides the PostgreSQL implementation of the
// receipt repository.
package receipt_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/receipt"
	"retailcore/internal/infrastructure/storage/postgres"
)

const (
	receiptsTable = "pos_receipts"
	linesTable    = "pos_receipt_lines"
)

var _ receipt.Repository = (*Repo)(nil)

// Repo implements receipt.Repository.
type Repo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	builder   squirrel.StatementBuilderType
}

// New creates the receipt repository.
func New(txManager *postgres.TxManager) *Repo {
	return &Repo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

const receiptColumns = `id, number, branch_id, status, subtotal, tax, discount, grand_total, paid_total,
	journal_id, cashier_id, created_at, voided_at, voided_by`

// Create inserts a receipt header.
func (r *Repo) Create(ctx context.Context, rcp *receipt.Receipt) error {
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO pos_receipts (id, number, branch_id, status, subtotal, tax, discount, grand_total, paid_total,
			journal_id, cashier_id, created_at, voided_at, voided_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rcp.ID, rcp.Number, rcp.BranchID, rcp.Status, rcp.Subtotal, rcp.Tax, rcp.Discount, rcp.GrandTotal,
		rcp.PaidTotal, rcp.JournalID, rcp.CashierID, rcp.CreatedAt, rcp.VoidedAt, rcp.VoidedBy)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("create receipt: %w", err))
	}
	return nil
}

// InsertLines bulk-inserts receipt lines.
func (r *Repo) InsertLines(ctx context.Context, receiptID id.ID, lines []receipt.Line) error {
	if len(lines) == 0 {
		return nil
	}

	columns := []string{"id", "receipt_id", "line_no", "product_id", "quantity", "unit_price", "line_total"}

	if tx := r.txManager.GetTx(ctx); tx != nil {
		rows := make([][]any, 0, len(lines))
		for _, l := range lines {
			rows = append(rows, []any{l.ID, receiptID, l.LineNo, l.ProductID, l.Quantity, l.UnitPrice, l.LineTotal})
		}
		if _, err := r.inserter.CopyFromSlice(ctx, linesTable, columns, rows); err != nil {
			return apperror.NewDatabase(fmt.Errorf("copy receipt lines: %w", err))
		}
		return nil
	}

	q := r.builder.Insert(linesTable).Columns(columns...)
	for _, l := range lines {
		q = q.Values(l.ID, receiptID, l.LineNo, l.ProductID, l.Quantity, l.UnitPrice, l.LineTotal)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase(fmt.Errorf("insert receipt lines: %w", err))
	}
	return nil
}

// Get loads a receipt header.
func (r *Repo) Get(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
	var rcp receipt.Receipt
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &rcp,
		`SELECT `+receiptColumns+` FROM pos_receipts WHERE id = $1`, receiptID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("receipt", receiptID.String())
		}
		return nil, apperror.NewDatabase(fmt.Errorf("get receipt: %w", err))
	}
	return &rcp, nil
}

// GetForUpdate locks the receipt row.
func (r *Repo) GetForUpdate(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
	var rcp receipt.Receipt
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &rcp,
		`SELECT `+receiptColumns+` FROM pos_receipts WHERE id = $1 FOR UPDATE`, receiptID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("receipt", receiptID.String())
		}
		return nil, apperror.NewDatabase(fmt.Errorf("lock receipt: %w", err))
	}
	return &rcp, nil
}

// GetByNumber loads a receipt by its document number.
func (r *Repo) GetByNumber(ctx context.Context, number string) (*receipt.Receipt, error) {
	var rcp receipt.Receipt
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &rcp,
		`SELECT `+receiptColumns+` FROM pos_receipts WHERE number = $1`, number)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("receipt", number)
		}
		return nil, apperror.NewDatabase(fmt.Errorf("get receipt by number: %w", err))
	}
	return &rcp, nil
}

// GetLines loads a receipt's lines in order.
func (r *Repo) GetLines(ctx context.Context, receiptID id.ID) ([]receipt.Line, error) {
	var lines []receipt.Line
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lines, `
		SELECT id, receipt_id, line_no, product_id, quantity, unit_price, line_total
		FROM pos_receipt_lines
		WHERE receipt_id = $1
		ORDER BY line_no
	`, receiptID)
	if err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("get receipt lines: %w", err))
	}
	return lines, nil
}

// UpdateStatus persists status and void info.
func (r *Repo) UpdateStatus(ctx context.Context, rcp *receipt.Receipt) error {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE pos_receipts
		SET status = $1, voided_at = $2, voided_by = $3
		WHERE id = $4
	`, rcp.Status, rcp.VoidedAt, rcp.VoidedBy, rcp.ID)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("update receipt status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("receipt", rcp.ID.String())
	}
	return nil
}

// List returns receipt headers matching the filter, newest first.
func (r *Repo) List(ctx context.Context, filter receipt.Filter) ([]receipt.Receipt, error) {
	q := r.builder.Select(
		"id", "number", "branch_id", "status", "subtotal", "tax", "discount", "grand_total", "paid_total",
		"journal_id", "cashier_id", "created_at", "voided_at", "voided_by",
	).From(receiptsTable)

	if filter.BranchID != nil {
		q = q.Where(squirrel.Eq{"branch_id": *filter.BranchID})
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

	var receipts []receipt.Receipt
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &receipts, sql, args...); err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("select receipts: %w", err))
	}
	return receipts, nil
}
