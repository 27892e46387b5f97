package model

import (
	"fmt"
	"time"
)

// Channel identifies a delivery medium.
type Channel string

const (
	ChannelSocket Channel = "socket"
	ChannelSMS    Channel = "sms"
	ChannelEmail  Channel = "email"
	ChannelPush   Channel = "push"
)

// Priority ranks how aggressively a notification should be delivered.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// DeliveryStatus is the lifecycle state of a single (notification, channel)
// delivery attempt.
type DeliveryStatus string

const (
	StatusPending         DeliveryStatus = "pending"
	StatusSent            DeliveryStatus = "sent"
	StatusDelivered       DeliveryStatus = "delivered"
	StatusFailed          DeliveryStatus = "failed"
	StatusRetrying        DeliveryStatus = "retrying"
	StatusRateLimited     DeliveryStatus = "rate_limited"
	StatusQueuedForDigest DeliveryStatus = "queued_for_digest"

	// StatusSkipped marks a channel attempt that never reached a provider
	// because a precondition was unmet (unverified phone/email, no
	// registered device) or no adapter is configured for the channel. It is
	// never retried and never counted as a provider failure; StatusFailed is
	// reserved for an adapter actually invoked and refusing or erroring.
	StatusSkipped DeliveryStatus = "skipped"
)

// NotificationRequest is the ephemeral input handed to Router.Route.
type NotificationRequest struct {
	UserID        int64
	Kind          string
	SourceID      string // upstream business id used for dedup; "" means "none"
	Title         string
	Body          string
	Data          map[string]any
	Priority      Priority // optional; "" defers to the kind's catalog default
	CorrelationID string
}

// EffectivePriority resolves the request priority, falling back to def when unset.
func (r NotificationRequest) EffectivePriority(def Priority) Priority {
	if r.Priority == "" {
		return def
	}
	return r.Priority
}

// ChannelOutcome reports what happened when a single channel was attempted
// or explicitly skipped.
type ChannelOutcome struct {
	Channel          Channel
	Status           DeliveryStatus
	ProviderMsgID    string
	Error            string
	Skipped          bool
	SkipReason       string
	DeliveryRecordID int64
}

// RouteResult is returned by Router.Route.
type RouteResult struct {
	NotificationID string
	DuplicateOf    string
	Duplicate      bool
	Queued         bool
	DigestQueued   bool
	Outcomes       []ChannelOutcome
}

// DeliveryRecord is the durable per-(notification, channel) attempt log entry.
type DeliveryRecord struct {
	ID             int64
	NotificationID string
	UserID         int64
	Kind           string
	SourceID       string
	Channel        Channel
	Priority       Priority
	Title          string
	Body           string
	Data           map[string]any
	Status         DeliveryStatus
	ProviderTag    string
	ProviderMsgID  string
	RetryCount     int
	LastAttemptAt  *time.Time
	NextAttemptAt  *time.Time
	ErrorText      string
	CreatedAt      time.Time
	SentAt         *time.Time
	DeliveredAt    *time.Time
	ReadAt         *time.Time
	CorrelationID  string
	IdempotencyKey string
}

// IdempotencyKey builds the unique (user, kind, source-id, channel) key.
func IdempotencyKey(userID int64, kind, sourceID string, channel Channel) string {
	if sourceID == "" {
		sourceID = "none"
	}
	return fmt.Sprintf("%d:%s:%s:%s", userID, kind, sourceID, channel)
}
