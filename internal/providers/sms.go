package providers

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"notifyengine/internal/model"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

const (
	smsMaxLength       = 160
	smsUnsubscribeText = " Reply STOP to opt out."
)

// SMSAdapter sends short text messages through a third-party SMS gateway.
// ComposeBody enforces the 160-char budget including the unsubscribe suffix.
type SMSAdapter struct {
	logger  *zap.Logger
	enabled bool
	send    func(ctx context.Context, phone, body string, highPriority bool) (string, error)
}

// NewSMSAdapter builds an adapter around send, the actual provider call
// (injected so tests can substitute a fake without a network dependency).
func NewSMSAdapter(enabled bool, logger *zap.Logger, send func(ctx context.Context, phone, body string, highPriority bool) (string, error)) *SMSAdapter {
	return &SMSAdapter{logger: logger, enabled: enabled, send: send}
}

func (a *SMSAdapter) Channel() model.Channel { return model.ChannelSMS }

// ComposeBody truncates title+body to fit the 160-char SMS budget once the
// unsubscribe suffix is appended, ending in "…" when truncation occurs.
func ComposeBody(title, body string) string {
	full := body
	if title != "" {
		full = title + ": " + body
	}

	budget := smsMaxLength - len(smsUnsubscribeText)
	if len(full) <= budget {
		return full + smsUnsubscribeText
	}

	if budget <= len("…") {
		return smsUnsubscribeText
	}
	truncated := full[:budget-len("…")] + "…"
	return truncated + smsUnsubscribeText
}

func (a *SMSAdapter) Send(ctx context.Context, in SendInput) Outcome {
	if !a.enabled {
		return Outcome{Status: model.StatusFailed, Error: "channel not enabled"}
	}

	if !e164Pattern.MatchString(in.Phone) {
		return Outcome{Status: model.StatusFailed, Error: "phone number is not valid E.164"}
	}

	body := ComposeBody(in.Title, in.Body)
	highPriority := in.Priority == model.PriorityCritical

	msgID, err := a.send(ctx, in.Phone, body, highPriority)
	if err != nil {
		a.logger.Warn("sms send failed", zap.Int64("user_id", in.UserID), zap.Error(err))
		return Outcome{Status: model.StatusFailed, Error: fmt.Sprintf("sms provider: %v", err)}
	}

	return Outcome{Status: model.StatusSent, ProviderMsgID: msgID}
}
