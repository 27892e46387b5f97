package retryengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notifyengine/internal/model"
)

func TestDefaultScheduleHasFiveSteps(t *testing.T) {
	require.Len(t, defaultSchedule, 5)
}

func TestDefaultMaxAttemptsMatchesScheduleLength(t *testing.T) {
	require.Equal(t, len(defaultSchedule), defaultMaxAttempts)
}

type fakeHistory struct {
	records        map[int64]*model.DeliveryRecord
	updateCalls    int
	scheduleCalls  int
	lastStatus     model.DeliveryStatus
	lastRetryCount int
}

func newFakeHistory(rec *model.DeliveryRecord) *fakeHistory {
	return &fakeHistory{records: map[int64]*model.DeliveryRecord{rec.ID: rec}}
}

func (f *fakeHistory) DueForRetry(ctx context.Context, limit int) ([]*model.DeliveryRecord, error) {
	var out []*model.DeliveryRecord
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeHistory) UpdateStatus(ctx context.Context, id int64, status model.DeliveryStatus, providerMsgID, errorText string) error {
	f.updateCalls++
	f.lastStatus = status
	f.records[id].Status = status
	return nil
}

func (f *fakeHistory) ScheduleRetry(ctx context.Context, id int64, retryCount int, nextAttemptAt time.Time, errorText string) error {
	f.scheduleCalls++
	f.lastRetryCount = retryCount
	f.records[id].RetryCount = retryCount
	f.records[id].Status = model.StatusRetrying
	return nil
}

func (f *fakeHistory) ResetForManualRetry(ctx context.Context, id int64) error {
	f.records[id].Status = model.StatusRetrying
	f.records[id].RetryCount = 0
	return nil
}

func (f *fakeHistory) GetByID(ctx context.Context, id int64) (*model.DeliveryRecord, error) {
	return f.records[id], nil
}

type fakeDLQ struct {
	inserted []*model.DLQRecord
}

func (f *fakeDLQ) Insert(ctx context.Context, rec *model.DLQRecord) (int64, error) {
	f.inserted = append(f.inserted, rec)
	return int64(len(f.inserted)), nil
}

type fakeRouter struct {
	outcome model.ChannelOutcome
	err     error
	calls   int
}

func (f *fakeRouter) RetryDelivery(ctx context.Context, req model.NotificationRequest, priority model.Priority, channel model.Channel) (model.ChannelOutcome, error) {
	f.calls++
	return f.outcome, f.err
}

func newEngine(h *fakeHistory, d *fakeDLQ, r *fakeRouter) *Engine {
	return New(Config{History: h, DLQ: d, Router: r, Logger: zap.NewNop()})
}

func TestRetryOneBypassesRouteAndCallsRetryDeliveryDirectly(t *testing.T) {
	rec := &model.DeliveryRecord{ID: 1, UserID: 7, Kind: "transfer_completed", Channel: model.ChannelSMS, RetryCount: 0}
	h := newFakeHistory(rec)
	d := &fakeDLQ{}
	r := &fakeRouter{outcome: model.ChannelOutcome{Channel: model.ChannelSMS, Status: model.StatusSent, ProviderMsgID: "msg-1"}}
	e := newEngine(h, d, r)

	e.retryOne(context.Background(), rec)

	require.Equal(t, 1, r.calls, "expected exactly one direct RetryDelivery call, bypassing Route/dedup")
	require.Equal(t, 1, h.updateCalls)
	require.Equal(t, model.StatusSent, h.lastStatus)
	require.Equal(t, 0, h.scheduleCalls)
}

func TestRetryOneSchedulesNextAttemptOnFailure(t *testing.T) {
	rec := &model.DeliveryRecord{ID: 1, UserID: 7, Kind: "transfer_completed", Channel: model.ChannelSMS, RetryCount: 1}
	h := newFakeHistory(rec)
	d := &fakeDLQ{}
	r := &fakeRouter{outcome: model.ChannelOutcome{Channel: model.ChannelSMS, Status: model.StatusFailed, Error: "provider down"}}
	e := newEngine(h, d, r)

	e.retryOne(context.Background(), rec)

	require.Equal(t, 1, h.scheduleCalls)
	require.Equal(t, 2, h.lastRetryCount)
	require.Empty(t, d.inserted, "should not yet reach the DLQ before max attempts")
}

func TestRetryOneMovesToDLQAtMaxAttempts(t *testing.T) {
	rec := &model.DeliveryRecord{ID: 1, UserID: 7, Kind: "transfer_completed", Channel: model.ChannelSMS, RetryCount: defaultMaxAttempts - 1}
	h := newFakeHistory(rec)
	d := &fakeDLQ{}
	r := &fakeRouter{outcome: model.ChannelOutcome{Channel: model.ChannelSMS, Status: model.StatusFailed, Error: "provider down"}}
	e := newEngine(h, d, r)

	e.retryOne(context.Background(), rec)

	require.Len(t, d.inserted, 1)
	require.Equal(t, model.StatusFailed, h.lastStatus)
}

func TestRetryOneTerminatesAsSkippedWithoutSchedulingAnotherAttempt(t *testing.T) {
	rec := &model.DeliveryRecord{ID: 1, UserID: 7, Kind: "transfer_completed", Channel: model.ChannelSMS, RetryCount: 1}
	h := newFakeHistory(rec)
	d := &fakeDLQ{}
	r := &fakeRouter{outcome: model.ChannelOutcome{Channel: model.ChannelSMS, Skipped: true, SkipReason: "phone not verified"}}
	e := newEngine(h, d, r)

	e.retryOne(context.Background(), rec)

	require.Equal(t, 1, h.updateCalls)
	require.Equal(t, model.StatusSkipped, h.lastStatus)
	require.Equal(t, 0, h.scheduleCalls, "a policy refusal must not re-enter the backoff schedule")
	require.Empty(t, d.inserted)
}

func TestScanTickProcessesEveryDueRecord(t *testing.T) {
	rec := &model.DeliveryRecord{ID: 1, UserID: 7, Kind: "login_failed", Channel: model.ChannelEmail, RetryCount: 0}
	h := newFakeHistory(rec)
	d := &fakeDLQ{}
	r := &fakeRouter{outcome: model.ChannelOutcome{Channel: model.ChannelEmail, Status: model.StatusSent}}
	e := newEngine(h, d, r)

	e.scanTick(context.Background())

	require.Equal(t, 1, r.calls)
}
