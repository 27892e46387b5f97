// Package router implements the Router, the single entrypoint that turns a
// NotificationRequest into per-channel delivery attempts: dedup gate,
// preference resolution, quiet-hours gate, and bounded concurrent fan-out
// across the selected channels, with every terminal outcome persisted
// alongside its audit event in one transaction.
package router

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"notifyengine/internal/audit"
	"notifyengine/internal/catalog"
	"notifyengine/internal/dedupstore"
	"notifyengine/internal/history"
	"notifyengine/internal/model"
	"notifyengine/internal/preferences"
	"notifyengine/internal/providers"
	"notifyengine/internal/ratebudget"
	"notifyengine/internal/digestqueue"
	"notifyengine/pkg/metrics"
)

// defaultFanoutPoolSize bounds how many channels a single Route call attempts
// concurrently; a notification rarely targets more than four channels, so
// this is generous headroom rather than a meaningful throttle.
const defaultFanoutPoolSize = 4

// Router ties together every store and adapter the Route algorithm needs.
type Router struct {
	db          *pgxpool.Pool
	history     *history.Store
	dlq         dlqInserter
	prefs       *preferences.Cache
	prefStore   *preferences.Store
	dedup       *dedupstore.Store
	budget      *ratebudget.Store
	digest      *digestqueue.Queue
	audit       *audit.Publisher
	adapters    map[model.Channel]providers.Adapter
	logger      *zap.Logger
	fanoutPoolSize int
}

// dlqInserter is the subset of dlqstore.Store the Router needs; kept as an
// interface so tests can substitute a fake.
type dlqInserter interface {
	Insert(ctx context.Context, rec *model.DLQRecord) (int64, error)
}

type Config struct {
	DB             *pgxpool.Pool
	History        *history.Store
	DLQ            dlqInserter
	Preferences    *preferences.Cache
	PreferenceStore *preferences.Store
	Dedup          *dedupstore.Store
	Budget         *ratebudget.Store
	Digest         *digestqueue.Queue
	Audit          *audit.Publisher
	Adapters       map[model.Channel]providers.Adapter
	Logger         *zap.Logger
	FanoutPoolSize int
}

func New(cfg Config) *Router {
	poolSize := cfg.FanoutPoolSize
	if poolSize <= 0 {
		poolSize = defaultFanoutPoolSize
	}
	return &Router{
		db:             cfg.DB,
		history:        cfg.History,
		dlq:            cfg.DLQ,
		prefs:          cfg.Preferences,
		prefStore:      cfg.PreferenceStore,
		dedup:          cfg.Dedup,
		budget:         cfg.Budget,
		digest:         cfg.Digest,
		audit:          cfg.Audit,
		adapters:       cfg.Adapters,
		logger:         cfg.Logger,
		fanoutPoolSize: poolSize,
	}
}

func newNotificationID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Route runs the full routing algorithm for a single request.
func (r *Router) Route(ctx context.Context, req model.NotificationRequest) (model.RouteResult, error) {
	notificationID := newNotificationID()
	result := model.RouteResult{NotificationID: notificationID}

	cfg, known := catalog.Lookup(req.Kind)
	if !known {
		r.logger.Warn("routing unrecognized kind", zap.String("kind", req.Kind))
		cfg = model.EventKindConfig{
			Kind:            req.Kind,
			DefaultChannels: []model.Channel{model.ChannelSocket},
			DefaultPriority: model.PriorityMedium,
			DedupWindow:     5 * time.Minute,
		}
	}

	priority := req.EffectivePriority(cfg.DefaultPriority)

	// Step 2: dedup gate.
	dedupResult, err := r.dedup.CheckAndRegister(ctx, req.UserID, req.Kind, req.SourceID, notificationID, cfg.DedupWindow)
	if err != nil {
		return result, fmt.Errorf("router: dedup check: %w", err)
	}
	if dedupResult.Duplicate {
		result.Duplicate = true
		result.DuplicateOf = dedupResult.OriginalNotificationID
		result.Outcomes = []model.ChannelOutcome{{
			Skipped:    true,
			SkipReason: "duplicate of " + dedupResult.OriginalNotificationID,
		}}
		metrics.IncrementRouteDecision("none", "duplicate")
		return result, nil
	}

	// Step 3: load preferences.
	prefs, err := r.prefs.Get(ctx, req.UserID)
	if err != nil {
		return result, fmt.Errorf("router: load preferences: %w", err)
	}
	if prefs.DoNotContact {
		result.Outcomes = []model.ChannelOutcome{{
			Skipped:    true,
			SkipReason: "user is on do-not-contact: " + prefs.DoNotContactReason,
		}}
		metrics.IncrementRouteDecision("none", "do_not_contact")
		return result, nil
	}

	// Step 4: resolve channel set.
	channels := resolveChannels(cfg, prefs, req.Kind, priority)
	if len(channels) == 0 {
		result.Outcomes = []model.ChannelOutcome{{Skipped: true, SkipReason: "no eligible channels"}}
		metrics.IncrementRouteDecision("none", "no_channels")
		return result, nil
	}

	// Step 5: quiet-hours gate.
	if priority != model.PriorityCritical && inQuietHours(prefs.QuietHours, time.Now()) && !bypassesQuietHours(cfg, prefs, req.Kind) {
		if cfg.DigestEligible && prefs.Digest.Enabled {
			rec := &model.DeliveryRecord{
				NotificationID: notificationID,
				UserID:         req.UserID,
				Kind:           req.Kind,
				SourceID:       req.SourceID,
				Channel:        model.ChannelEmail, // digests always go out by email regardless of the original channel set
				Priority:       priority,
				Title:          req.Title,
				Body:           req.Body,
				Data:           req.Data,
				Status:         model.StatusQueuedForDigest,
				CorrelationID:  req.CorrelationID,
				IdempotencyKey: model.IdempotencyKey(req.UserID, req.Kind, req.SourceID, model.ChannelEmail),
			}
			recordID, err := r.history.Insert(ctx, rec)
			if err != nil {
				return result, fmt.Errorf("router: insert queued-for-digest record: %w", err)
			}

			entry := model.DigestEntry{
				NotificationID:   notificationID,
				DeliveryRecordID: recordID,
				Kind:             req.Kind,
				Title:            req.Title,
				Body:             req.Body,
				Data:             req.Data,
				CreatedAt:        time.Now(),
			}
			freq := model.DigestFrequency(prefs.Digest.Frequency)
			if freq == "" {
				freq = model.DigestDaily
			}
			if err := r.digest.Append(ctx, req.UserID, freq, entry); err != nil {
				return result, fmt.Errorf("router: append digest: %w", err)
			}
			result.DigestQueued = true
			metrics.IncrementRouteDecision("none", "digest_queued")
			return result, nil
		}
		result.Queued = true
		metrics.IncrementRouteDecision("none", "quiet_hours_deferred")
		return result, nil
	}

	// Step 6: per-channel concurrent attempt.
	result.Outcomes = r.attemptChannels(ctx, notificationID, req, prefs, channels, priority)
	return result, nil
}

// resolveChannels intersects the per-kind override (or catalog default) with
// the user's globally-enabled channels, forcing socket for critical
// priority when nothing else survives the intersection.
func resolveChannels(cfg model.EventKindConfig, prefs *model.UserPreferences, kind string, priority model.Priority) []model.Channel {
	candidates := cfg.DefaultChannels
	if override, ok := prefs.KindOverrides[kind]; ok {
		if !override.Enabled {
			return nil
		}
		if len(override.Channels) > 0 {
			candidates = override.Channels
		}
	}

	var selected []model.Channel
	for _, c := range candidates {
		if prefs.IsChannelEnabled(c) {
			selected = append(selected, c)
		}
	}

	if len(selected) == 0 && priority == model.PriorityCritical && prefs.IsChannelEnabled(model.ChannelSocket) {
		selected = []model.Channel{model.ChannelSocket}
	}
	return selected
}

// bypassesQuietHours reports whether the kind's global bypass flag or the
// user's per-kind override permits delivery during quiet hours.
func bypassesQuietHours(cfg model.EventKindConfig, prefs *model.UserPreferences, kind string) bool {
	if cfg.BypassQuietHours {
		return true
	}
	if override, ok := prefs.KindOverrides[kind]; ok && override.BypassQuietHoursSet {
		return override.BypassQuietHours
	}
	return false
}

// inQuietHours reports whether now, projected into the user's configured
// timezone, falls inside the configured quiet-hours window. A window that
// wraps midnight (start > end) is handled explicitly.
func inQuietHours(qh model.QuietHours, now time.Time) bool {
	if !qh.Enabled {
		return false
	}
	loc, err := time.LoadLocation(qh.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	minutes := local.Hour()*60 + local.Minute()
	start := qh.StartHour*60 + qh.StartMinute
	end := qh.EndHour*60 + qh.EndMinute

	if start == end {
		return false
	}
	if start < end {
		return minutes >= start && minutes < end
	}
	// Window wraps midnight, e.g. 22:00-06:00.
	return minutes >= start || minutes < end
}

// attemptChannels runs step 6 for each selected channel, bounded by the
// Router's fan-out pool size, and returns one ChannelOutcome per channel.
func (r *Router) attemptChannels(ctx context.Context, notificationID string, req model.NotificationRequest, prefs *model.UserPreferences, channels []model.Channel, priority model.Priority) []model.ChannelOutcome {
	outcomes := make([]model.ChannelOutcome, len(channels))
	sem := make(chan struct{}, r.fanoutPoolSize)
	var wg sync.WaitGroup

	for i, ch := range channels {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, ch model.Channel) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = r.attemptChannel(ctx, notificationID, req, prefs, ch, priority)
		}(i, ch)
	}
	wg.Wait()
	return outcomes
}

func (r *Router) attemptChannel(ctx context.Context, notificationID string, req model.NotificationRequest, prefs *model.UserPreferences, channel model.Channel, priority model.Priority) model.ChannelOutcome {
	outcome := r.computeChannelOutcome(ctx, req, prefs, channel, priority)
	if outcome.Skipped {
		return r.recordSkip(ctx, notificationID, req, priority, channel, outcome)
	}
	return r.persistOutcome(ctx, notificationID, req, priority, channel, outcome)
}

// computeChannelOutcome runs steps 6a-6c (preconditions, rate budget,
// provider adapter invocation) for a single channel without persisting
// anything, so it can be shared by the first-attempt fan-out above (which
// persists via recordSkip/persistOutcome) and RetryDelivery below (which
// persists by updating the existing Delivery Record instead of inserting a
// new one).
func (r *Router) computeChannelOutcome(ctx context.Context, req model.NotificationRequest, prefs *model.UserPreferences, channel model.Channel, priority model.Priority) model.ChannelOutcome {
	outcome := model.ChannelOutcome{Channel: channel}

	// Step 6a: preconditions, checked before budget is ever consumed.
	sendInput := providers.SendInput{
		UserID:   req.UserID,
		Kind:     req.Kind,
		Priority: priority,
		Title:    req.Title,
		Body:     req.Body,
		Data:     req.Data,
		Devices:  prefs.Devices,
	}

	switch channel {
	case model.ChannelSMS:
		if prefs.PhoneVerifiedAt == nil {
			outcome.Skipped, outcome.SkipReason = true, "phone not verified"
			return outcome
		}
		phone, err := r.prefStore.DecryptPhone(prefs)
		if err != nil || phone == "" {
			outcome.Skipped, outcome.SkipReason = true, "phone not available"
			return outcome
		}
		sendInput.Phone = phone
	case model.ChannelEmail:
		if prefs.EmailVerifiedAt == nil {
			outcome.Skipped, outcome.SkipReason = true, "email not verified"
			return outcome
		}
		email, err := r.prefStore.DecryptEmail(prefs)
		if err != nil || email == "" {
			outcome.Skipped, outcome.SkipReason = true, "email not available"
			return outcome
		}
		sendInput.Email = email
	case model.ChannelPush:
		if len(prefs.Devices) == 0 {
			outcome.Skipped, outcome.SkipReason = true, "no registered devices"
			return outcome
		}
	}

	// Step 6b: rate budget.
	limits := ratebudget.DefaultLimits(channel)
	if override, ok := prefs.BudgetOverrides[channel]; ok {
		limits = ratebudget.Limits{HourlyCap: override.HourlyCap, DailyCap: override.DailyCap}
	}
	budgetOutcome, err := r.budget.ConsumeBudget(ctx, req.UserID, channel, limits)
	if err != nil {
		r.logger.Warn("rate budget check failed", zap.Error(err))
	}
	if !budgetOutcome.Allowed {
		outcome.Status = model.StatusRateLimited
		return outcome
	}

	// Step 6c: invoke the provider adapter.
	adapter, ok := r.adapters[channel]
	if !ok {
		outcome.Skipped, outcome.SkipReason = true, "no adapter configured"
		return outcome
	}

	providerOutcome := adapter.Send(ctx, sendInput)
	outcome.Status = providerOutcome.Status
	outcome.ProviderMsgID = providerOutcome.ProviderMsgID
	outcome.Error = providerOutcome.Error
	return outcome
}

// RetryDelivery re-invokes the provider adapter for a channel an earlier
// Route call already accepted and persisted a Delivery Record for. It
// deliberately skips the dedup gate, channel resolution, and quiet-hours/
// digest decisions that only apply to the original routing decision: dedup
// answers "is this the same event as one already accepted," not "was this
// specific delivery attempt already tried," so re-registering it on every
// backoff step would make the Retry Engine dedup-skip itself instead of
// re-driving the send. The caller (Retry Engine) owns persisting the
// result against the existing record.
func (r *Router) RetryDelivery(ctx context.Context, req model.NotificationRequest, priority model.Priority, channel model.Channel) (model.ChannelOutcome, error) {
	prefs, err := r.prefs.Get(ctx, req.UserID)
	if err != nil {
		return model.ChannelOutcome{Channel: channel}, fmt.Errorf("router: load preferences for retry: %w", err)
	}
	return r.computeChannelOutcome(ctx, req, prefs, channel, priority), nil
}

// recordSkip persists a skipped-with-no-attempt outcome (precondition
// failure or missing adapter) as a Delivery Record with status skipped, so
// skip reasons are queryable the same way as attempted outcomes without
// being counted alongside real provider failures — a policy refusal never
// reached an adapter, so it is not an error.
func (r *Router) recordSkip(ctx context.Context, notificationID string, req model.NotificationRequest, priority model.Priority, channel model.Channel, outcome model.ChannelOutcome) model.ChannelOutcome {
	outcome.Status = model.StatusSkipped
	outcome.Error = outcome.SkipReason
	return r.persistOutcome(ctx, notificationID, req, priority, channel, outcome)
}

// persistOutcome writes the Delivery Record and its audit event in one
// transaction, per the [AMBIENT] audit egress note in the Router design:
// a crash between the two writes must never be possible.
func (r *Router) persistOutcome(ctx context.Context, notificationID string, req model.NotificationRequest, priority model.Priority, channel model.Channel, outcome model.ChannelOutcome) model.ChannelOutcome {
	rec := &model.DeliveryRecord{
		NotificationID: notificationID,
		UserID:         req.UserID,
		Kind:           req.Kind,
		SourceID:       req.SourceID,
		Channel:        channel,
		Priority:       priority,
		Title:          req.Title,
		Body:           req.Body,
		Data:           req.Data,
		Status:         outcome.Status,
		ProviderMsgID:  outcome.ProviderMsgID,
		ErrorText:      outcome.Error,
		CorrelationID:  req.CorrelationID,
		IdempotencyKey: model.IdempotencyKey(req.UserID, req.Kind, req.SourceID, channel),
	}
	now := time.Now()
	rec.LastAttemptAt = &now
	if outcome.Status == model.StatusFailed {
		// A failed first attempt is stored as retrying and due at once, so
		// the Retry Engine's next scan picks it up.
		rec.Status = model.StatusRetrying
		rec.NextAttemptAt = &now
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.Error("router: begin tx for delivery record", zap.Error(err))
		return outcome
	}
	defer tx.Rollback(ctx)

	id, err := r.history.InsertInTx(ctx, tx, rec)
	if err != nil {
		r.logger.Error("router: insert delivery record", zap.Error(err))
		return outcome
	}
	outcome.DeliveryRecordID = id
	rec.ID = id

	auditKind := audit.KindFailed
	switch outcome.Status {
	case model.StatusSent:
		auditKind = audit.KindSent
	case model.StatusDelivered:
		auditKind = audit.KindDelivered
	}
	if err := r.audit.EnqueueDelivery(ctx, tx, auditKind, rec); err != nil {
		r.logger.Error("router: enqueue audit event", zap.Error(err))
		return outcome
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("router: commit delivery record tx", zap.Error(err))
		return outcome
	}

	metrics.IncrementRouteDecision(string(channel), string(outcome.Status))
	return outcome
}
