package providers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notifyengine/internal/model"
)

const pushTTL = time.Hour

// PushResult is one device's outcome from a multicast push send.
type PushResult struct {
	DeviceID string
	Success  bool
	Error    string
}

// PushAdapter multicasts to every registered device for a user. The send
// counts as sent if at least one device accepts it. Per-device failures are
// logged with the device ID but are not returned in the Outcome, and
// PushAdapter does not touch the Preferences Store itself.
type PushAdapter struct {
	logger  *zap.Logger
	enabled bool
	send    func(ctx context.Context, token, platform, title, body string, data map[string]any, priority string, ttl time.Duration, silent bool) (string, error)
}

func NewPushAdapter(enabled bool, logger *zap.Logger, send func(ctx context.Context, token, platform, title, body string, data map[string]any, priority string, ttl time.Duration, silent bool) (string, error)) *PushAdapter {
	return &PushAdapter{logger: logger, enabled: enabled, send: send}
}

func (a *PushAdapter) Channel() model.Channel { return model.ChannelPush }

// platformPriority maps internal priority to the platform-native priority
// token: "high"/10 for critical notifications, "normal"/5 otherwise.
func platformPriority(p model.Priority) string {
	if p == model.PriorityCritical {
		return "high"
	}
	return "normal"
}

// isSilent reports whether data carries a silent-data marker, in which case
// the push should deliver as a background data message with no visible
// alert.
func isSilent(data map[string]any) bool {
	v, ok := data["silent"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (a *PushAdapter) Send(ctx context.Context, in SendInput) Outcome {
	if !a.enabled {
		return Outcome{Status: model.StatusFailed, Error: "channel not enabled"}
	}
	if len(in.Devices) == 0 {
		return Outcome{Status: model.StatusFailed, Error: "no registered devices"}
	}

	priority := platformPriority(in.Priority)
	silent := isSilent(in.Data)

	var lastMsgID string
	var successes int
	var lastErr string

	for _, d := range in.Devices {
		msgID, err := a.send(ctx, d.Token, d.Platform, in.Title, in.Body, in.Data, priority, pushTTL, silent)
		if err != nil {
			lastErr = err.Error()
			tokenSuffix := d.Token
			if len(tokenSuffix) > 4 {
				tokenSuffix = tokenSuffix[len(tokenSuffix)-4:]
			}
			a.logger.Warn("push send failed for device",
				zap.Int64("user_id", in.UserID), zap.String("device_id", d.DeviceID),
				zap.String("token_suffix", tokenSuffix), zap.Error(err))
			continue
		}
		successes++
		lastMsgID = msgID
	}

	if successes == 0 {
		return Outcome{Status: model.StatusFailed, Error: fmt.Sprintf("all devices failed, last error: %s", lastErr)}
	}
	return Outcome{Status: model.StatusSent, ProviderMsgID: lastMsgID}
}
