// Package dlqstore is the DLQ Store: durable storage of permanently-failed
// deliveries (and unroutable ingress messages) awaiting human review.
package dlqstore

import (
	"context"
	"encoding/json"
	"fmt"

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

// Insert writes a new DLQ record.
func (s *Store) Insert(ctx context.Context, rec *model.DLQRecord) (int64, error) {
	metrics.IncrementDLQWrite(string(rec.Channel), rec.FailureReason)

	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return 0, fmt.Errorf("dlqstore: marshal payload: %w", err)
	}
	historyJSON, err := json.Marshal(rec.FailureHistory)
	if err != nil {
		return 0, fmt.Errorf("dlqstore: marshal failure history: %w", err)
	}

	if rec.ReviewState == "" {
		rec.ReviewState = model.DLQPendingReview
	}

	query := `
		INSERT INTO dlq_records (
			delivery_record_id, user_id, kind, source_id, channel, priority,
			payload, failure_reason, attempt_count, failure_history, review_state,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	var id int64
	err = s.db.QueryRow(ctx, query,
		rec.DeliveryRecordID, rec.UserID, rec.Kind, rec.SourceID, rec.Channel, rec.Priority,
		payloadJSON, rec.FailureReason, rec.AttemptCount, historyJSON, rec.ReviewState,
	).Scan(&id, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("dlqstore: insert: %w", err)
	}

	return id, nil
}

const dlqColumns = `id, delivery_record_id, user_id, kind, source_id, channel, priority,
		payload, failure_reason, attempt_count, failure_history, review_state,
		resolver_id, resolution_notes, created_at, updated_at`

func scanRecord(row pgx.Row) (*model.DLQRecord, error) {
	var rec model.DLQRecord
	var payloadJSON, historyJSON []byte
	err := row.Scan(
		&rec.ID, &rec.DeliveryRecordID, &rec.UserID, &rec.Kind, &rec.SourceID, &rec.Channel, &rec.Priority,
		&payloadJSON, &rec.FailureReason, &rec.AttemptCount, &historyJSON, &rec.ReviewState,
		&rec.ResolverID, &rec.ResolutionNotes, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payloadJSON) > 0 {
		_ = json.Unmarshal(payloadJSON, &rec.Payload)
	}
	if len(historyJSON) > 0 {
		_ = json.Unmarshal(historyJSON, &rec.FailureHistory)
	}
	return &rec, nil
}

// ListByState returns DLQ records in the given review state, newest first.
func (s *Store) ListByState(ctx context.Context, state model.DLQReviewState, limit int) ([]*model.DLQRecord, error) {
	query := `SELECT ` + dlqColumns + ` FROM dlq_records WHERE review_state = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.db.Query(ctx, query, state, limit)
	if err != nil {
		return nil, fmt.Errorf("dlqstore: list by state: %w", err)
	}
	defer rows.Close()

	var out []*model.DLQRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("dlqstore: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Resolve marks a DLQ record resolved or abandoned by an admin/operator.
func (s *Store) Resolve(ctx context.Context, id int64, state model.DLQReviewState, resolverID, notes string) error {
	query := `
		UPDATE dlq_records
		SET review_state = $1, resolver_id = $2, resolution_notes = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := s.db.Exec(ctx, query, state, resolverID, notes, id)
	if err != nil {
		return fmt.Errorf("dlqstore: resolve: %w", err)
	}
	return nil
}
