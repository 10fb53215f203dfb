package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/compress/zstd"

	appctx "retailcore/internal/core/context"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/audit"
	"retailcore/pkg/logger"
)

var _ audit.Sink = (*AuditService)(nil)

// CompressionAlgo specifies the compression algorithm used for payloads.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditRow is one stored audit entry.
type AuditRow struct {
	ID                id.ID           `db:"id"`
	Event             string          `db:"event"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	Actor             string          `db:"actor"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	Metadata          json.RawMessage `db:"metadata"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditService writes the audit trail to sys_audit.
//
// Record goes through the TxManager querier, so it commits and rolls back
// with the business transaction. RecordFailure writes through the pool on
// a fresh connection: the failure event must survive the rollback of the
// transaction it describes.
type AuditService struct {
	txManager         *TxManager
	pool              *pgxpool.Pool
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditService creates the audit sink.
func NewAuditService(txManager *TxManager, pool *Pool) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		pool:              pool.Pool,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Record writes an audit entry within the caller's transaction.
func (s *AuditService) Record(ctx context.Context, entry audit.Entry) error {
	row, err := s.buildRow(ctx, entry)
	if err != nil {
		return err
	}
	return s.insert(ctx, s.txManager.GetQuerier(ctx), row)
}

// RecordFailure writes an audit entry on its own connection, outside any
// transaction in the context. Best-effort: errors are logged, not returned.
func (s *AuditService) RecordFailure(ctx context.Context, entry audit.Entry) {
	row, err := s.buildRow(ctx, entry)
	if err != nil {
		logger.Error(ctx, "failed to build failure audit entry", "event", entry.Event, "error", err)
		return
	}
	if err := s.insert(ctx, s.pool, row); err != nil {
		logger.Error(ctx, "failed to record failure audit entry", "event", entry.Event, "error", err)
	}
}

func (s *AuditService) buildRow(ctx context.Context, entry audit.Entry) (*AuditRow, error) {
	actor := entry.Actor
	if actor == "" {
		if user := appctx.GetUser(ctx); user != nil {
			actor = user.UserID
		}
	}

	changes, err := json.Marshal(map[string]any{
		"before": entry.Before,
		"after":  entry.After,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal audit changes: %w", err)
	}

	var metadata json.RawMessage
	if entry.Metadata != nil {
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal audit metadata: %w", err)
		}
	}

	row := &AuditRow{
		ID:              id.New(),
		Event:           entry.Event,
		EntityType:      entry.EntityType,
		EntityID:        entry.EntityID,
		Actor:           actor,
		Changes:         changes,
		CompressionAlgo: CompressionNone,
		Metadata:        metadata,
		CreatedAt:       time.Now().UTC(),
	}

	if len(row.Changes) > s.compressThreshold {
		row.ChangesCompressed = s.encoder.EncodeAll(row.Changes, nil)
		row.Changes = nil
		row.CompressionAlgo = CompressionZstd
	}

	return row, nil
}

func (s *AuditService) insert(ctx context.Context, querier Querier, row *AuditRow) error {
	_, err := querier.Exec(ctx, `
		INSERT INTO sys_audit (
			id, event, entity_type, entity_id, actor,
			changes, changes_compressed, compression_algo, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		row.ID, row.Event, row.EntityType, row.EntityID, row.Actor,
		row.Changes, row.ChangesCompressed, row.CompressionAlgo,
		row.Metadata, row.CreatedAt,
	)
	return err
}

// GetEntityHistory retrieves audit history for an entity, newest first.
func (s *AuditService) GetEntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]AuditRow, error) {
	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, `
		SELECT id, event, entity_type, entity_id, actor,
			   changes, changes_compressed, compression_algo, metadata, created_at
		FROM sys_audit
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []AuditRow
	for rows.Next() {
		var e AuditRow
		err := rows.Scan(
			&e.ID, &e.Event, &e.EntityType, &e.EntityID, &e.Actor,
			&e.Changes, &e.ChangesCompressed, &e.CompressionAlgo, &e.Metadata,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if e.CompressionAlgo == CompressionZstd && len(e.ChangesCompressed) > 0 {
			decompressed, err := s.decoder.DecodeAll(e.ChangesCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress changes: %w", err)
			}
			e.Changes = decompressed
			e.ChangesCompressed = nil
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
