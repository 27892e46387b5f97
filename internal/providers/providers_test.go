package providers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notifyengine/internal/model"
)

func TestComposeBodyAppendsUnsubscribeWhenShort(t *testing.T) {
	got := ComposeBody("Alert", "short body")
	require.Equal(t, "Alert: short body Reply STOP to opt out.", got)
}

func TestComposeBodyTruncatesLongBody(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	got := ComposeBody("", string(long))
	require.LessOrEqual(t, len(got), smsMaxLength)
	require.True(t, strings.HasSuffix(got, smsUnsubscribeText))
}

func TestSMSAdapterRejectsInvalidPhone(t *testing.T) {
	a := NewSMSAdapter(true, zap.NewNop(), func(ctx context.Context, phone, body string, highPriority bool) (string, error) {
		t.Fatal("send should not be called for an invalid phone")
		return "", nil
	})
	out := a.Send(context.Background(), SendInput{Phone: "not-a-phone"})
	require.Equal(t, model.StatusFailed, out.Status)
}

func TestSMSAdapterDisabledShortCircuits(t *testing.T) {
	a := NewSMSAdapter(false, zap.NewNop(), func(ctx context.Context, phone, body string, highPriority bool) (string, error) {
		t.Fatal("send should not be called when disabled")
		return "", nil
	})
	out := a.Send(context.Background(), SendInput{Phone: "+15551234567"})
	require.Equal(t, model.StatusFailed, out.Status)
	require.Equal(t, "channel not enabled", out.Error)
}

func TestSMSAdapterSendSuccess(t *testing.T) {
	a := NewSMSAdapter(true, zap.NewNop(), func(ctx context.Context, phone, body string, highPriority bool) (string, error) {
		return "provider-msg-1", nil
	})
	out := a.Send(context.Background(), SendInput{Phone: "+15551234567", Title: "Hi", Body: "there"})
	require.Equal(t, model.StatusSent, out.Status)
	require.Equal(t, "provider-msg-1", out.ProviderMsgID)
}

func TestSMSAdapterSendFailurePropagates(t *testing.T) {
	a := NewSMSAdapter(true, zap.NewNop(), func(ctx context.Context, phone, body string, highPriority bool) (string, error) {
		return "", errors.New("gateway down")
	})
	out := a.Send(context.Background(), SendInput{Phone: "+15551234567"})
	require.Equal(t, model.StatusFailed, out.Status)
}

func TestComposeUsesSecurityTemplateForFraud(t *testing.T) {
	subject, html, text := Compose("fraud_detected", "Suspicious activity", "We noticed something odd.")
	require.Equal(t, "[Security Alert] Suspicious activity", subject)
	require.Contains(t, html, "border-left:4px solid #c00")
	require.Contains(t, text, "SECURITY ALERT")
}

func TestComposeFallsBackForUnknownKind(t *testing.T) {
	subject, html, text := Compose("something_unregistered", "Title", "Body")
	require.Equal(t, "Title", subject)
	require.Equal(t, "<p>Body</p>", html)
	require.Equal(t, "Body", text)
}

func TestEmailAdapterRejectsInvalidAddress(t *testing.T) {
	a := NewEmailAdapter(true, false, zap.NewNop(), func(ctx context.Context, to, subject, html, text string, tracking bool) (string, error) {
		t.Fatal("send should not be called for an invalid address")
		return "", nil
	})
	out := a.Send(context.Background(), SendInput{Email: "not-an-email"})
	require.Equal(t, model.StatusFailed, out.Status)
}

func TestEmailAdapterSendSuccess(t *testing.T) {
	var gotTracking bool
	a := NewEmailAdapter(true, true, zap.NewNop(), func(ctx context.Context, to, subject, html, text string, tracking bool) (string, error) {
		gotTracking = tracking
		return "msg-2", nil
	})
	out := a.Send(context.Background(), SendInput{Email: "user@example.com", Kind: "password_changed", Title: "Password changed", Body: "just now"})
	require.Equal(t, model.StatusSent, out.Status)
	require.Equal(t, "msg-2", out.ProviderMsgID)
	require.True(t, gotTracking, "expected tracking to be forwarded from adapter config")
}

func TestPushAdapterFailsWithNoDevices(t *testing.T) {
	a := NewPushAdapter(true, zap.NewNop(), func(ctx context.Context, token, platform, title, body string, data map[string]any, priority string, ttl time.Duration, silent bool) (string, error) {
		t.Fatal("send should not be called with no devices")
		return "", nil
	})
	out := a.Send(context.Background(), SendInput{})
	require.Equal(t, model.StatusFailed, out.Status)
	require.Equal(t, "no registered devices", out.Error)
}

func TestPushAdapterSucceedsIfAnyDeviceSucceeds(t *testing.T) {
	calls := 0
	a := NewPushAdapter(true, zap.NewNop(), func(ctx context.Context, token, platform, title, body string, data map[string]any, priority string, ttl time.Duration, silent bool) (string, error) {
		calls++
		if token == "bad" {
			return "", errors.New("invalid token")
		}
		return "push-msg", nil
	})
	out := a.Send(context.Background(), SendInput{
		Devices: []model.Device{{DeviceID: "d1", Token: "bad"}, {DeviceID: "d2", Token: "good"}},
	})
	require.Equal(t, model.StatusSent, out.Status)
	require.Equal(t, "push-msg", out.ProviderMsgID)
	require.Equal(t, 2, calls, "expected both devices attempted")
}

func TestPushAdapterFailsWhenAllDevicesFail(t *testing.T) {
	a := NewPushAdapter(true, zap.NewNop(), func(ctx context.Context, token, platform, title, body string, data map[string]any, priority string, ttl time.Duration, silent bool) (string, error) {
		return "", errors.New("invalid token")
	})
	out := a.Send(context.Background(), SendInput{
		Devices: []model.Device{{DeviceID: "d1", Token: "bad"}},
	})
	require.Equal(t, model.StatusFailed, out.Status)
}

func TestPlatformPriorityMapsCritical(t *testing.T) {
	require.Equal(t, "high", platformPriority(model.PriorityCritical))
	require.Equal(t, "normal", platformPriority(model.PriorityMedium))
}

func TestIsSilentReadsDataMarker(t *testing.T) {
	require.True(t, isSilent(map[string]any{"silent": true}))
	require.False(t, isSilent(map[string]any{}))
	require.False(t, isSilent(map[string]any{"silent": "yes"}))
}
