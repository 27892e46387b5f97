package ratebudget

import (
	"testing"

	"github.com/stretchr/testify/require"

	"notifyengine/internal/model"
)

func TestHourKeyIncludesChannelAndUser(t *testing.T) {
	require.Equal(t, "ratelimit:sms:hour:42", hourKey(42, model.ChannelSMS))
}

func TestDayKeyIncludesChannelAndUser(t *testing.T) {
	require.Equal(t, "ratelimit:push:day:42", dayKey(42, model.ChannelPush))
}

func TestDefaultLimitsSocketIsUnbudgeted(t *testing.T) {
	got := DefaultLimits(model.ChannelSocket)
	require.Zero(t, got.HourlyCap)
	require.Zero(t, got.DailyCap)
}

func TestDefaultLimitsVaryByChannel(t *testing.T) {
	sms := DefaultLimits(model.ChannelSMS)
	email := DefaultLimits(model.ChannelEmail)
	push := DefaultLimits(model.ChannelPush)

	require.NotZero(t, sms.HourlyCap)
	require.NotZero(t, sms.DailyCap)
	require.Greater(t, email.DailyCap, sms.DailyCap)
	require.Greater(t, push.DailyCap, email.DailyCap)
}
