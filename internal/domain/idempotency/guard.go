// Package idempotency defines the generic exactly-once guard used by the
// transaction orchestrators. A guarded operation is identified by
// (scope, key): scope names the operation family ("pos.receipts",
// "telebirr.transactions"), key is the caller-supplied business key.
package idempotency

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a guarded operation.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Record is a stored guard entry.
type Record struct {
	Scope       string    `db:"scope"`
	Key         string    `db:"key"`
	Status      Status    `db:"status"`
	RequestHash string    `db:"request_hash"`
	Result      []byte    `db:"result"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	LockedUntil time.Time `db:"locked_until"`
	ExpiresAt   time.Time `db:"expires_at"`
}

// Replay is the stored outcome of a previously finished operation,
// returned to the caller instead of re-executing.
type Replay struct {
	Status Status
	Result json.RawMessage
}

// Guard serializes and deduplicates operations by (scope, key).
//
// Acquire returns (nil, nil) when the caller holds the key and must run
// the operation, (*Replay, nil) when a finished outcome exists, and an
// error when the key is actively locked by another in-flight request or
// the request hash does not match the stored one.
//
// Complete and Fail record the outcome; both run on the guard's own
// connection so a failed business transaction cannot roll the verdict back.
type Guard interface {
	Acquire(ctx context.Context, scope, key, requestHash string) (*Replay, error)
	Complete(ctx context.Context, scope, key string, result any) error
	Fail(ctx context.Context, scope, key string, result any) error
}

// Nop is a guard that always lets the operation run. Test fixture.
type Nop struct{}

func (Nop) Acquire(ctx context.Context, scope, key, requestHash string) (*Replay, error) {
	return nil, nil
}
func (Nop) Complete(ctx context.Context, scope, key string, result any) error { return nil }
func (Nop) Fail(ctx context.Context, scope, key string, result any) error     { return nil }
