// Package retryengine is the Retry Engine: a cron-scheduled scanner that
// re-routes delivery records sitting in state retrying whose next-attempt
// time has elapsed, and the ManualRetry admin operation that forces one
// record through the same path synchronously.
package retryengine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"notifyengine/internal/model"
	"notifyengine/pkg/metrics"
)

// defaultSchedule is the retry backoff ladder: 1s, 5s, 30s, 5min, 1h. Index
// i is the delay applied after the (i+1)th attempt.
var defaultSchedule = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
	5 * time.Minute,
	1 * time.Hour,
}

const defaultMaxAttempts = 5
const defaultBatchSize = 100

// historyStore is the subset of history.Store the Retry Engine needs, kept
// as an interface so tests can exercise retryOne/scanTick against a fake
// rather than a live Postgres pool.
type historyStore interface {
	DueForRetry(ctx context.Context, limit int) ([]*model.DeliveryRecord, error)
	UpdateStatus(ctx context.Context, id int64, status model.DeliveryStatus, providerMsgID, errorText string) error
	ScheduleRetry(ctx context.Context, id int64, retryCount int, nextAttemptAt time.Time, errorText string) error
	ResetForManualRetry(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.DeliveryRecord, error)
}

// dlqInserter mirrors router.dlqInserter: the one DLQ method the Retry
// Engine needs, as an interface for the same fake-friendly reason.
type dlqInserter interface {
	Insert(ctx context.Context, rec *model.DLQRecord) (int64, error)
}

// routeRetrier is the one Router method the Retry Engine needs.
type routeRetrier interface {
	RetryDelivery(ctx context.Context, req model.NotificationRequest, priority model.Priority, channel model.Channel) (model.ChannelOutcome, error)
}

type Config struct {
	History      historyStore
	DLQ          dlqInserter
	Router       routeRetrier
	Logger       *zap.Logger
	ScanInterval string // cron spec, e.g. "@every 30s"
	BatchSize    int
	MaxAttempts  int
	Schedule     []time.Duration
}

// Engine runs the periodic retry scan on a cron schedule.
type Engine struct {
	history     historyStore
	dlq         dlqInserter
	router      routeRetrier
	logger      *zap.Logger
	cron        *cron.Cron
	scanSpec    string
	batchSize   int
	maxAttempts int
	schedule    []time.Duration
}

func New(cfg Config) *Engine {
	scanSpec := cfg.ScanInterval
	if scanSpec == "" {
		scanSpec = "@every 30s"
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	schedule := cfg.Schedule
	if len(schedule) == 0 {
		schedule = defaultSchedule
	}

	return &Engine{
		history:     cfg.History,
		dlq:         cfg.DLQ,
		router:      cfg.Router,
		logger:      cfg.Logger,
		cron:        cron.New(),
		scanSpec:    scanSpec,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		schedule:    schedule,
	}
}

// Start registers the scan tick and starts the cron scheduler. Call Stop to
// shut it down gracefully.
func (e *Engine) Start(ctx context.Context) error {
	_, err := e.cron.AddFunc(e.scanSpec, func() { e.scanTick(ctx) })
	if err != nil {
		return fmt.Errorf("retryengine: register scan schedule: %w", err)
	}
	e.cron.Start()
	return nil
}

func (e *Engine) Stop() {
	e.cron.Stop()
}

func (e *Engine) scanTick(ctx context.Context) {
	due, err := e.history.DueForRetry(ctx, e.batchSize)
	if err != nil {
		e.logger.Error("retryengine: scan for due records", zap.Error(err))
		return
	}
	for _, rec := range due {
		e.retryOne(ctx, rec)
	}
}

// retryOne rebuilds a NotificationRequest from rec and re-drives the
// provider send for the single channel the record already targets, via
// Router.RetryDelivery. It must never go through the full Route pipeline:
// Route's dedup gate would register (or already has registered) this exact
// (user, kind, sourceID) key on the first attempt, and every catalog dedup
// window outlives most of the backoff schedule below, so a full Route call
// here would dedup-skip itself on nearly every retry instead of actually
// re-invoking the adapter.
func (e *Engine) retryOne(ctx context.Context, rec *model.DeliveryRecord) {
	req := model.NotificationRequest{
		UserID:        rec.UserID,
		Kind:          rec.Kind,
		SourceID:      rec.SourceID,
		Title:         rec.Title,
		Body:          rec.Body,
		Data:          rec.Data,
		Priority:      rec.Priority,
		CorrelationID: rec.CorrelationID,
	}

	outcome, err := e.router.RetryDelivery(ctx, req, rec.Priority, rec.Channel)
	if err != nil {
		e.logger.Error("retryengine: retry delivery failed", zap.Int64("record_id", rec.ID), zap.Error(err))
		return
	}

	if outcome.Status == model.StatusSent || outcome.Status == model.StatusDelivered {
		if err := e.history.UpdateStatus(ctx, rec.ID, outcome.Status, outcome.ProviderMsgID, ""); err != nil {
			e.logger.Error("retryengine: mark sent", zap.Int64("record_id", rec.ID), zap.Error(err))
		}
		return
	}

	// A precondition that now fails (e.g. a phone/email that was verified at
	// first attempt and has since been removed) is a policy refusal, not a
	// transient provider failure: it will not resolve itself on the next
	// backoff step, so it terminates here instead of re-entering the retry
	// schedule.
	if outcome.Skipped {
		if err := e.history.UpdateStatus(ctx, rec.ID, model.StatusSkipped, "", outcome.SkipReason); err != nil {
			e.logger.Error("retryengine: mark skipped", zap.Int64("record_id", rec.ID), zap.Error(err))
		}
		return
	}

	e.scheduleNextOrFail(ctx, rec)
}

func (e *Engine) scheduleNextOrFail(ctx context.Context, rec *model.DeliveryRecord) {
	newCount := rec.RetryCount + 1

	if newCount >= e.maxAttempts {
		_, err := e.dlq.Insert(ctx, &model.DLQRecord{
			DeliveryRecordID: &rec.ID,
			UserID:           rec.UserID,
			Kind:             rec.Kind,
			SourceID:         rec.SourceID,
			Channel:          rec.Channel,
			Priority:         rec.Priority,
			Payload:          rec.Data,
			FailureReason:    "max retry attempts exceeded",
			AttemptCount:     newCount,
			ReviewState:      model.DLQPendingReview,
		})
		if err != nil {
			e.logger.Error("retryengine: write DLQ record at max attempts", zap.Int64("record_id", rec.ID), zap.Error(err))
			return
		}
		if err := e.history.UpdateStatus(ctx, rec.ID, model.StatusFailed, "", "max retry attempts exceeded"); err != nil {
			e.logger.Error("retryengine: mark failed", zap.Int64("record_id", rec.ID), zap.Error(err))
		}
		return
	}

	delayIdx := newCount - 1
	if delayIdx >= len(e.schedule) {
		delayIdx = len(e.schedule) - 1
	}
	nextAttemptAt := time.Now().Add(e.schedule[delayIdx])

	if err := e.history.ScheduleRetry(ctx, rec.ID, newCount, nextAttemptAt, rec.ErrorText); err != nil {
		e.logger.Error("retryengine: schedule next retry", zap.Int64("record_id", rec.ID), zap.Error(err))
		return
	}
	metrics.IncrementRetryScheduled(string(rec.Channel))
}

// ManualRetry resets a record to retry immediately and re-invokes the
// retry path once, synchronously. Allowed only from failed/retrying states.
func (e *Engine) ManualRetry(ctx context.Context, deliveryRecordID int64) (bool, error) {
	if err := e.history.ResetForManualRetry(ctx, deliveryRecordID); err != nil {
		return false, fmt.Errorf("retryengine: manual retry reset: %w", err)
	}

	rec, err := e.history.GetByID(ctx, deliveryRecordID)
	if err != nil {
		return false, fmt.Errorf("retryengine: manual retry load record: %w", err)
	}

	e.retryOne(ctx, rec)
	return true, nil
}
