package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"retailcore/internal/core/apperror"
	"retailcore/internal/domain/idempotency"
)

var _ idempotency.Guard = (*IdempotencyStore)(nil)

// IdempotencyStore implements the idempotency guard on sys_idempotency.
// All writes go through the pool, never the caller's transaction: the
// PENDING lock must be visible to concurrent requests before the business
// transaction commits, and the final verdict must survive its rollback.
type IdempotencyStore struct {
	pool    *pgxpool.Pool
	lockTTL time.Duration
	ttl     time.Duration
}

// NewIdempotencyStore creates the guard. lockTTL bounds how long a
// PENDING record blocks duplicates (crashed holders are reclaimed after
// it); ttl is the retention period for finished records.
func NewIdempotencyStore(pool *Pool, lockTTL, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		pool:    pool.Pool,
		lockTTL: lockTTL,
		ttl:     ttl,
	}
}

// Acquire attempts to take the (scope, key) lock.
// The PENDING insert is atomic against the unique (scope, key) index, so
// two concurrent requests with the same key can never both proceed.
func (s *IdempotencyStore) Acquire(ctx context.Context, scope, key, requestHash string) (*idempotency.Replay, error) {
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO sys_idempotency (scope, key, status, request_hash, created_at, updated_at, locked_until, expires_at)
		VALUES ($1, $2, $3, $4, $5, $5, $6, $7)
		ON CONFLICT (scope, key) DO NOTHING
	`, scope, key, idempotency.StatusPending, requestHash, now, now.Add(s.lockTTL), now.Add(s.ttl))
	if err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("acquire idempotency key: %w", err))
	}
	if tag.RowsAffected() == 1 {
		return nil, nil
	}

	var record idempotency.Record
	err = s.pool.QueryRow(ctx, `
		SELECT scope, key, status, request_hash, result, created_at, updated_at, locked_until, expires_at
		FROM sys_idempotency
		WHERE scope = $1 AND key = $2
	`, scope, key).Scan(
		&record.Scope, &record.Key, &record.Status, &record.RequestHash,
		&record.Result, &record.CreatedAt, &record.UpdatedAt, &record.LockedUntil, &record.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Record expired between insert attempt and select; retry once.
			return s.Acquire(ctx, scope, key, requestHash)
		}
		return nil, apperror.NewDatabase(fmt.Errorf("load idempotency record: %w", err))
	}

	if requestHash != "" && record.RequestHash != "" && record.RequestHash != requestHash {
		return nil, apperror.NewConflict("idempotency key reused with a different request").
			WithDetail("scope", scope).
			WithDetail("idempotency_key", key)
	}

	switch record.Status {
	case idempotency.StatusSucceeded:
		return &idempotency.Replay{
			Status: idempotency.StatusSucceeded,
			Result: json.RawMessage(record.Result),
		}, nil

	case idempotency.StatusPending:
		if record.LockedUntil.After(now) {
			return nil, apperror.NewIdempotencyConflict(scope, key)
		}
		return s.reclaim(ctx, scope, key, requestHash, idempotency.StatusPending, record.UpdatedAt)

	case idempotency.StatusFailed:
		// Failed operations may be retried with the same key.
		return s.reclaim(ctx, scope, key, requestHash, idempotency.StatusFailed, record.UpdatedAt)
	}

	return nil, apperror.NewDatabase(fmt.Errorf("unexpected idempotency status %q", record.Status))
}

// reclaim takes over an expired PENDING or a FAILED record. The guarded
// UPDATE makes the takeover race-safe: only one of several concurrent
// reclaimers sees RowsAffected = 1.
func (s *IdempotencyStore) reclaim(ctx context.Context, scope, key, requestHash string, fromStatus idempotency.Status, seenUpdatedAt time.Time) (*idempotency.Replay, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1, request_hash = $2, result = NULL, updated_at = $3, locked_until = $4, expires_at = $5
		WHERE scope = $6 AND key = $7 AND status = $8 AND updated_at = $9
	`, idempotency.StatusPending, requestHash, now, now.Add(s.lockTTL), now.Add(s.ttl),
		scope, key, fromStatus, seenUpdatedAt)
	if err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("reclaim idempotency key: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return nil, apperror.NewIdempotencyConflict(scope, key)
	}
	return nil, nil
}

// Complete marks the operation SUCCEEDED with its result snapshot.
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key string, result any) error {
	return s.finish(ctx, scope, key, idempotency.StatusSucceeded, result)
}

// Fail marks the operation FAILED so the key may be retried.
func (s *IdempotencyStore) Fail(ctx context.Context, scope, key string, result any) error {
	return s.finish(ctx, scope, key, idempotency.StatusFailed, result)
}

func (s *IdempotencyStore) finish(ctx context.Context, scope, key string, status idempotency.Status, result any) error {
	var resultBytes []byte
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal idempotency result: %w", err)
		}
		resultBytes = b
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1, result = $2, updated_at = $3
		WHERE scope = $4 AND key = $5
	`, status, resultBytes, time.Now().UTC(), scope, key)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("finish idempotency key: %w", err))
	}
	return nil
}

// CleanupExpired removes finished records past their retention period.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sys_idempotency WHERE expires_at < $1
	`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
