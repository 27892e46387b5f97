// Package history is the History Store: the durable, per-(notification,
// channel) delivery attempt log that drives retry scheduling, audit, and
// read receipts.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notifyengine/internal/model"
	"notifyengine/pkg/metrics"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const insertQuery = `
	INSERT INTO delivery_records (
		notification_id, user_id, kind, source_id, channel, priority,
		title, body, data, status, provider_tag, provider_msg_id,
		retry_count, last_attempt_at, next_attempt_at, error_text,
		correlation_id, idempotency_key, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW())
	RETURNING id, created_at
`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting Insert run
// either standalone or as part of a caller-managed transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Insert creates a new delivery record and returns its assigned id.
func (s *Store) Insert(ctx context.Context, rec *model.DeliveryRecord) (int64, error) {
	return s.insert(ctx, s.db, rec)
}

// InsertInTx creates a new delivery record within tx, for callers (the
// Router) that must write the record and its accompanying audit event
// atomically.
func (s *Store) InsertInTx(ctx context.Context, tx pgx.Tx, rec *model.DeliveryRecord) (int64, error) {
	return s.insert(ctx, tx, rec)
}

func (s *Store) insert(ctx context.Context, q querier, rec *model.DeliveryRecord) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "delivery_records", time.Since(start)) }()

	dataJSON, err := json.Marshal(rec.Data)
	if err != nil {
		return 0, fmt.Errorf("history: marshal data: %w", err)
	}

	var id int64
	err = q.QueryRow(ctx, insertQuery,
		rec.NotificationID, rec.UserID, rec.Kind, rec.SourceID, rec.Channel, rec.Priority,
		rec.Title, rec.Body, dataJSON, rec.Status, rec.ProviderTag, rec.ProviderMsgID,
		rec.RetryCount, rec.LastAttemptAt, rec.NextAttemptAt, rec.ErrorText,
		rec.CorrelationID, rec.IdempotencyKey,
	).Scan(&id, &rec.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("history: insert: %w", err)
	}

	return id, nil
}

const recordColumns = `id, notification_id, user_id, kind, source_id, channel, priority,
		title, body, data, status, provider_tag, provider_msg_id,
		retry_count, last_attempt_at, next_attempt_at, error_text,
		created_at, sent_at, delivered_at, read_at, correlation_id, idempotency_key`

func scanRecord(row pgx.Row) (*model.DeliveryRecord, error) {
	var rec model.DeliveryRecord
	var dataJSON []byte
	err := row.Scan(
		&rec.ID, &rec.NotificationID, &rec.UserID, &rec.Kind, &rec.SourceID, &rec.Channel, &rec.Priority,
		&rec.Title, &rec.Body, &dataJSON, &rec.Status, &rec.ProviderTag, &rec.ProviderMsgID,
		&rec.RetryCount, &rec.LastAttemptAt, &rec.NextAttemptAt, &rec.ErrorText,
		&rec.CreatedAt, &rec.SentAt, &rec.DeliveredAt, &rec.ReadAt, &rec.CorrelationID, &rec.IdempotencyKey,
	)
	if err != nil {
		return nil, err
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &rec.Data); err != nil {
			return nil, fmt.Errorf("history: unmarshal data: %w", err)
		}
	}
	return &rec, nil
}

// GetByID fetches a single delivery record.
func (s *Store) GetByID(ctx context.Context, id int64) (*model.DeliveryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM delivery_records WHERE id = $1`
	rec, err := scanRecord(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("history: record %d not found", id)
		}
		return nil, fmt.Errorf("history: get by id: %w", err)
	}
	return rec, nil
}

// DueForRetry returns up to limit records with status=retrying whose
// next_attempt_at has elapsed, ordered oldest-due-first, for the Retry
// Engine's per-tick scan.
func (s *Store) DueForRetry(ctx context.Context, limit int) ([]*model.DeliveryRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM delivery_records
		WHERE status = $1 AND next_attempt_at <= NOW()
		ORDER BY next_attempt_at ASC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, model.StatusRetrying, limit)
	if err != nil {
		return nil, fmt.Errorf("history: due for retry: %w", err)
	}
	defer rows.Close()

	var out []*model.DeliveryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a record's status and timestamps.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status model.DeliveryStatus, providerMsgID, errorText string) error {
	now := time.Now()
	query := `
		UPDATE delivery_records
		SET status = $1, provider_msg_id = COALESCE(NULLIF($2, ''), provider_msg_id), error_text = $3,
			last_attempt_at = $4,
			sent_at = CASE WHEN $1 IN ($5, $6) THEN COALESCE(sent_at, $4) ELSE sent_at END,
			delivered_at = CASE WHEN $1 = $6 THEN COALESCE(delivered_at, $4) ELSE delivered_at END
		WHERE id = $7
	`
	_, err := s.db.Exec(ctx, query, status, providerMsgID, errorText, now,
		model.StatusSent, model.StatusDelivered, id)
	if err != nil {
		return fmt.Errorf("history: update status: %w", err)
	}
	return nil
}

// MarkRead records a user reading a delivered notification.
func (s *Store) MarkRead(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `UPDATE delivery_records SET read_at = NOW() WHERE id = $1 AND read_at IS NULL`, id)
	return err
}

// ScheduleRetry sets retry_count to retryCount and next_attempt_at to
// nextAttemptAt, keeping status=retrying.
func (s *Store) ScheduleRetry(ctx context.Context, id int64, retryCount int, nextAttemptAt time.Time, errorText string) error {
	query := `
		UPDATE delivery_records
		SET status = $1, retry_count = $2, next_attempt_at = $3, error_text = $4, last_attempt_at = NOW()
		WHERE id = $5
	`
	_, err := s.db.Exec(ctx, query, model.StatusRetrying, retryCount, nextAttemptAt, errorText, id)
	if err != nil {
		return fmt.Errorf("history: schedule retry: %w", err)
	}
	return nil
}

// ResetForManualRetry resets a record to retry immediately, allowed only
// from failed or retrying states.
func (s *Store) ResetForManualRetry(ctx context.Context, id int64) error {
	query := `
		UPDATE delivery_records
		SET status = $1, retry_count = 0, next_attempt_at = NOW(), last_attempt_at = NULL
		WHERE id = $2 AND status IN ($1, $3)
	`
	tag, err := s.db.Exec(ctx, query, model.StatusRetrying, id, model.StatusFailed)
	if err != nil {
		return fmt.Errorf("history: reset for manual retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("history: record %d not in failed/retrying state", id)
	}
	return nil
}
