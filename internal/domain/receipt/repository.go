package receipt

import (
	"context"
	"time"

	"retailcore/internal/core/id"
)

// Repository defines storage operations for receipts.
type Repository interface {
	Create(ctx context.Context, r *Receipt) error
	InsertLines(ctx context.Context, receiptID id.ID, lines []Line) error
	Get(ctx context.Context, receiptID id.ID) (*Receipt, error)

	// GetForUpdate locks the receipt row, serializing void attempts.
	GetForUpdate(ctx context.Context, receiptID id.ID) (*Receipt, error)

	GetByNumber(ctx context.Context, number string) (*Receipt, error)
	GetLines(ctx context.Context, receiptID id.ID) ([]Line, error)
	UpdateStatus(ctx context.Context, r *Receipt) error
	List(ctx context.Context, filter Filter) ([]Receipt, error)
}

// Filter narrows receipt listings.
type Filter struct {
	BranchID *id.ID
	Status   *Status
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}
