// Package audit defines the audit trail contract consumed by the orchestrators.
// The postgres implementation lives in infrastructure/storage/postgres.
package audit

import (
	"context"

	"retailcore/internal/core/id"
)

// Well-known event names emitted by the core engines.
const (
	EventReceiptProcessed = "receipt.processed"
	EventReceiptVoided    = "receipt.voided"
	EventTelebirrPosted   = "telebirr.transaction.posted"
	EventTelebirrVoided   = "telebirr.transaction.voided"
	EventIdempotentReplay = "idempotency.replay"
	EventOperationFailed  = "operation.failed"
	EventJournalPosted    = "journal.posted"
	EventJournalReversed  = "journal.reversed"
	EventStockAdjusted    = "inventory.adjusted"
)

// Entry is one immutable audit fact.
type Entry struct {
	Event      string
	EntityType string
	EntityID   id.ID
	Actor      string
	Before     any
	After      any
	Metadata   map[string]any
}

// Sink records audit entries.
//
// Record joins the caller's transaction: if the business transaction rolls
// back, so does the audit row. RecordFailure writes through its own
// connection so a failure event survives the rollback it describes; it is
// best-effort and never returns an error to the caller.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
	RecordFailure(ctx context.Context, entry Entry)
}

// Nop discards all entries. Test fixture only.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error  { return nil }
func (Nop) RecordFailure(context.Context, Entry) {}
