// Package digestengine is the Digest Engine: a cron-scheduled scanner that
// fires hourly/daily/weekly batched email summaries for users who deferred
// notifications into the digest queue, and the ForceDigest admin operation
// that fires one user's digest synchronously.
package digestengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"notifyengine/internal/digestqueue"
	"notifyengine/internal/history"
	"notifyengine/internal/model"
	"notifyengine/internal/preferences"
	"notifyengine/internal/providers"
	"notifyengine/pkg/metrics"
)

// hourlyGrace bounds how late past the top of the hour a tick may still
// treat itself as "this hour's" firing, per the 60s-tick design note.
const hourlyGrace = 5 * time.Minute

type Config struct {
	Queue   *digestqueue.Queue
	Prefs   *preferences.Store
	History *history.Store
	Email   providers.Adapter
	Logger  *zap.Logger
	TickSpec string // cron spec, e.g. "@every 60s"
}

type Engine struct {
	queue   *digestqueue.Queue
	prefs   *preferences.Store
	history *history.Store
	email   providers.Adapter
	logger  *zap.Logger
	cron    *cron.Cron
	tickSpec string
}

func New(cfg Config) *Engine {
	tickSpec := cfg.TickSpec
	if tickSpec == "" {
		tickSpec = "@every 60s"
	}
	return &Engine{
		queue:    cfg.Queue,
		prefs:    cfg.Prefs,
		history:  cfg.History,
		email:    cfg.Email,
		logger:   cfg.Logger,
		cron:     cron.New(),
		tickSpec: tickSpec,
	}
}

func (e *Engine) Start(ctx context.Context) error {
	_, err := e.cron.AddFunc(e.tickSpec, func() { e.tick(ctx) })
	if err != nil {
		return fmt.Errorf("digestengine: register tick schedule: %w", err)
	}
	e.cron.Start()
	return nil
}

func (e *Engine) Stop() {
	e.cron.Stop()
}

func (e *Engine) tick(ctx context.Context) {
	now := time.Now()

	e.fireFrequency(ctx, model.DigestHourly, now, func(_ model.UserPreferences, local time.Time) bool {
		return local.Minute() <= int(hourlyGrace.Minutes())
	})

	e.fireFrequency(ctx, model.DigestDaily, now, func(p model.UserPreferences, local time.Time) bool {
		return local.Hour() == p.Digest.Hour
	})

	e.fireFrequency(ctx, model.DigestWeekly, now, func(p model.UserPreferences, local time.Time) bool {
		return local.Weekday() == time.Monday && local.Hour() == p.Digest.Hour
	})
}

// fireFrequency enumerates users with a pending queue for frequency and, for
// each whose firing predicate matches in their own timezone, sends the
// digest.
func (e *Engine) fireFrequency(ctx context.Context, frequency model.DigestFrequency, now time.Time, shouldFire func(model.UserPreferences, time.Time) bool) {
	userIDs, err := e.queue.UsersWithPending(ctx, frequency)
	if err != nil {
		e.logger.Error("digestengine: list users with pending digest", zap.String("frequency", string(frequency)), zap.Error(err))
		return
	}

	for _, userID := range userIDs {
		prefs, err := e.prefs.Get(ctx, userID)
		if err != nil {
			e.logger.Warn("digestengine: load preferences", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		if !prefs.Digest.Enabled {
			continue
		}

		loc, err := time.LoadLocation(prefs.QuietHours.Timezone)
		if err != nil {
			loc = time.UTC
		}
		if !shouldFire(*prefs, now.In(loc)) {
			continue
		}

		e.sendDigest(ctx, userID, frequency, prefs)
	}
}

// sendDigest drains the user's queue, sends the summary, and only on a
// sent outcome clears the queue and marks the referenced records delivered.
// A failed send leaves the queue intact for the next tick.
func (e *Engine) sendDigest(ctx context.Context, userID int64, frequency model.DigestFrequency, prefs *model.UserPreferences) {
	entries, err := e.queue.Drain(ctx, userID, frequency)
	if err != nil {
		e.logger.Error("digestengine: drain queue", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}

	email, err := e.prefs.DecryptEmail(prefs)
	if err != nil || email == "" {
		e.logger.Warn("digestengine: no usable email, leaving queue intact", zap.Int64("user_id", userID))
		return
	}

	title, body := composeDigest(frequency, entries)
	outcome := e.email.Send(ctx, providers.SendInput{
		UserID: userID,
		Kind:   "digest_summary",
		Title:  title,
		Body:   body,
		Email:  email,
	})

	metrics.IncrementDigestRun(string(frequency), string(outcome.Status))

	if outcome.Status != model.StatusSent && outcome.Status != model.StatusDelivered {
		e.logger.Warn("digestengine: send failed, leaving queue intact",
			zap.Int64("user_id", userID), zap.String("error", outcome.Error))
		return
	}

	if err := e.queue.Clear(ctx, userID, frequency); err != nil {
		e.logger.Error("digestengine: clear queue after send", zap.Int64("user_id", userID), zap.Error(err))
	}
	for _, entry := range entries {
		if entry.DeliveryRecordID == 0 {
			continue
		}
		if err := e.history.UpdateStatus(ctx, entry.DeliveryRecordID, model.StatusDelivered, outcome.ProviderMsgID, ""); err != nil {
			e.logger.Error("digestengine: mark record delivered",
				zap.Int64("record_id", entry.DeliveryRecordID), zap.Error(err))
		}
	}
}

// composeDigest builds the digest email's subject and body: a header naming
// the period, followed by each entry's title/body/timestamp.
func composeDigest(frequency model.DigestFrequency, entries []model.DigestEntry) (title, body string) {
	title = fmt.Sprintf("Your %s summary (%d notifications)", frequency, len(entries))

	var b strings.Builder
	fmt.Fprintf(&b, "Here is your %s summary:\n\n", frequency)
	for _, e := range entries {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", e.CreatedAt.Format(time.RFC3339), e.Title, e.Body)
	}
	return title, b.String()
}

// ForceDigest fires one user's digest for frequency immediately, regardless
// of the cron schedule, backing the admin ForceDigest operation.
func (e *Engine) ForceDigest(ctx context.Context, userID int64, frequency model.DigestFrequency) (bool, error) {
	prefs, err := e.prefs.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("digestengine: force digest load preferences: %w", err)
	}
	e.sendDigest(ctx, userID, frequency, prefs)
	return true, nil
}
