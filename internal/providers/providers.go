// Package providers holds the four channel adapters (socket, SMS, email,
// push). Every adapter shares a uniform Send contract: Send has no error
// return, and every failure, including an invalid input such as a malformed
// phone number, comes back as an Outcome with a populated Error field.
package providers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"notifyengine/internal/model"
	"notifyengine/pkg/circuitbreaker"
	"notifyengine/pkg/metrics"
)

// Outcome is what an Adapter.Send call reports.
type Outcome struct {
	Status        model.DeliveryStatus
	ProviderMsgID string
	Error         string
}

// SendInput is the normalized request an Adapter receives. The Router
// resolves preferences (contact fields, devices) before calling Send, so
// adapters never touch the Preferences Store directly.
type SendInput struct {
	UserID   int64
	Kind     string
	Priority model.Priority
	Title    string
	Body     string
	Data     map[string]any

	Phone   string   // decrypted; SMS adapter only
	Email   string   // decrypted; Email adapter only
	Devices []model.Device // Push adapter only
}

// Adapter is the contract every channel implements.
type Adapter interface {
	Channel() model.Channel
	Send(ctx context.Context, in SendInput) Outcome
}

// breakered wraps an Adapter's Send with a circuit breaker: an open breaker
// short-circuits to a failed Outcome without attempting the call, so a
// degraded downstream provider cannot starve the bounded fan-out pool.
type breakered struct {
	inner  Adapter
	cb     *circuitbreaker.CircuitBreaker
	logger *zap.Logger
}

// WithCircuitBreaker wraps inner with the given breaker configuration.
func WithCircuitBreaker(inner Adapter, cfg circuitbreaker.Config, logger *zap.Logger) Adapter {
	return &breakered{inner: inner, cb: circuitbreaker.NewCircuitBreaker(cfg), logger: logger}
}

func (b *breakered) Channel() model.Channel { return b.inner.Channel() }

func (b *breakered) Send(ctx context.Context, in SendInput) Outcome {
	start := time.Now()
	var out Outcome

	err := b.cb.Execute(func() error {
		out = b.inner.Send(ctx, in)
		if out.Status == model.StatusFailed {
			return errFailed
		}
		return nil
	})

	status := string(out.Status)
	if err == circuitbreaker.ErrCircuitBreakerOpen {
		out = Outcome{Status: model.StatusFailed, Error: "circuit open"}
		status = "circuit_open"
		b.logger.Warn("provider circuit open, short-circuiting send",
			zap.String("channel", string(b.Channel())),
			zap.Int64("user_id", in.UserID),
		)
	}

	metrics.RecordProviderCallLatency(string(b.Channel()), status, time.Since(start))
	return out
}

var errFailed = &adapterFailedError{}

type adapterFailedError struct{}

func (*adapterFailedError) Error() string { return "adapter reported failure" }
