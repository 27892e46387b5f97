// Package audit is the egress publisher for the six notification audit
// events. It rides the transactional outbox: every Enqueue call must run
// inside the same database transaction as the Delivery Record write it
// accompanies, so a crash between the two can never happen.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"notifyengine/internal/model"
	"notifyengine/pkg/outbox"
)

// Kind is one of the six closed audit event kinds.
type Kind string

const (
	KindSent           Kind = "notification.sent"
	KindDelivered      Kind = "notification.delivered"
	KindFailed         Kind = "notification.failed"
	KindRead           Kind = "notification.read"
	KindRetryScheduled Kind = "notification.retry.scheduled"
	KindDLQMoved       Kind = "notification.dlq.moved"
)

const eventVersion = "1"

// payload is the minimal body every audit event carries: notification id,
// user id, channel, and a timestamp. DLQ-moved and retry-scheduled events
// add the reason via ErrorText.
type payload struct {
	NotificationID string    `json:"notification_id"`
	UserID         int64     `json:"user_id"`
	Kind           string    `json:"kind"`
	Channel        string    `json:"channel,omitempty"`
	Status         string    `json:"status,omitempty"`
	ProviderMsgID  string    `json:"provider_msg_id,omitempty"`
	ErrorText      string    `json:"error_text,omitempty"`
	RetryCount     int       `json:"retry_count,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher enqueues audit events into the outbox, tagging each with the
// configured topic and source service name for the dispatcher's headers.
type Publisher struct {
	repo          *outbox.Repository
	topic         string
	sourceService string
}

func NewPublisher(repo *outbox.Repository, topic, sourceService string) *Publisher {
	return &Publisher{repo: repo, topic: topic, sourceService: sourceService}
}

// EnqueueDelivery records a terminal per-channel outcome (sent, delivered,
// failed, or a rate_limited skip recorded as failed) for a Delivery Record.
func (p *Publisher) EnqueueDelivery(ctx context.Context, tx pgx.Tx, kind Kind, rec *model.DeliveryRecord) error {
	return p.enqueue(ctx, tx, kind, rec.UserID, payload{
		NotificationID: rec.NotificationID,
		UserID:         rec.UserID,
		Kind:           rec.Kind,
		Channel:        string(rec.Channel),
		Status:         string(rec.Status),
		ProviderMsgID:  rec.ProviderMsgID,
		ErrorText:      rec.ErrorText,
		Timestamp:      time.Now(),
	})
}

// EnqueueRead records a user reading a delivered notification.
func (p *Publisher) EnqueueRead(ctx context.Context, tx pgx.Tx, rec *model.DeliveryRecord) error {
	return p.enqueue(ctx, tx, KindRead, rec.UserID, payload{
		NotificationID: rec.NotificationID,
		UserID:         rec.UserID,
		Kind:           rec.Kind,
		Channel:        string(rec.Channel),
		Timestamp:      time.Now(),
	})
}

// EnqueueRetryScheduled records the Retry Engine scheduling another attempt.
func (p *Publisher) EnqueueRetryScheduled(ctx context.Context, tx pgx.Tx, rec *model.DeliveryRecord, retryCount int) error {
	return p.enqueue(ctx, tx, KindRetryScheduled, rec.UserID, payload{
		NotificationID: rec.NotificationID,
		UserID:         rec.UserID,
		Kind:           rec.Kind,
		Channel:        string(rec.Channel),
		ErrorText:      rec.ErrorText,
		RetryCount:     retryCount,
		Timestamp:      time.Now(),
	})
}

// EnqueueDLQMoved records a delivery or ingress message moving to the DLQ.
func (p *Publisher) EnqueueDLQMoved(ctx context.Context, tx pgx.Tx, rec *model.DLQRecord) error {
	return p.enqueue(ctx, tx, KindDLQMoved, rec.UserID, payload{
		NotificationID: fmt.Sprintf("dlq:%d", rec.ID),
		UserID:         rec.UserID,
		Kind:           rec.Kind,
		Channel:        string(rec.Channel),
		ErrorText:      rec.FailureReason,
		RetryCount:     rec.AttemptCount,
		Timestamp:      time.Now(),
	})
}

func (p *Publisher) enqueue(ctx context.Context, tx pgx.Tx, kind Kind, userID int64, body payload) error {
	partitionKey := fmt.Sprintf("%d", userID)
	return outbox.InsertTaggedEventInTx(ctx, tx, p.repo, "notification", nil, p.topic,
		string(kind), eventVersion, partitionKey, "gzip", body)
}
