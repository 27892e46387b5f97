package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"notifyengine/internal/model"
)

func TestResolveChannelsUsesKindOverride(t *testing.T) {
	cfg := model.EventKindConfig{DefaultChannels: []model.Channel{model.ChannelSocket, model.ChannelEmail}}
	prefs := &model.UserPreferences{
		KindOverrides: map[string]model.KindOverride{
			"login_failed": {Enabled: true, Channels: []model.Channel{model.ChannelSMS}},
		},
	}
	got := resolveChannels(cfg, prefs, "login_failed", model.PriorityMedium)
	require.Equal(t, []model.Channel{model.ChannelSMS}, got)
}

func TestResolveChannelsDisabledOverrideSkipsAll(t *testing.T) {
	cfg := model.EventKindConfig{DefaultChannels: []model.Channel{model.ChannelSocket}}
	prefs := &model.UserPreferences{
		KindOverrides: map[string]model.KindOverride{"login_failed": {Enabled: false}},
	}
	got := resolveChannels(cfg, prefs, "login_failed", model.PriorityMedium)
	require.Empty(t, got)
}

func TestResolveChannelsForcesSocketForCritical(t *testing.T) {
	cfg := model.EventKindConfig{DefaultChannels: []model.Channel{model.ChannelEmail}}
	prefs := &model.UserPreferences{
		ChannelEnabled: map[model.Channel]bool{model.ChannelEmail: false, model.ChannelSocket: true},
	}
	got := resolveChannels(cfg, prefs, "fraud_detected", model.PriorityCritical)
	require.Equal(t, []model.Channel{model.ChannelSocket}, got)
}

func TestResolveChannelsNoForceWhenSocketDisabled(t *testing.T) {
	cfg := model.EventKindConfig{DefaultChannels: []model.Channel{model.ChannelEmail}}
	prefs := &model.UserPreferences{
		ChannelEnabled: map[model.Channel]bool{model.ChannelEmail: false, model.ChannelSocket: false},
	}
	got := resolveChannels(cfg, prefs, "fraud_detected", model.PriorityCritical)
	require.Empty(t, got)
}

func TestInQuietHoursSimpleWindow(t *testing.T) {
	qh := model.QuietHours{Enabled: true, StartHour: 22, EndHour: 6, Timezone: "UTC"}
	late := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	early := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	midday := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)

	require.True(t, inQuietHours(qh, late), "expected 23:00 to be within a 22:00-06:00 window")
	require.True(t, inQuietHours(qh, early), "expected 03:00 to be within a 22:00-06:00 window")
	require.False(t, inQuietHours(qh, midday), "expected 13:00 to be outside a 22:00-06:00 window")
}

func TestInQuietHoursDisabled(t *testing.T) {
	qh := model.QuietHours{Enabled: false, StartHour: 22, EndHour: 6, Timezone: "UTC"}
	now := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	require.False(t, inQuietHours(qh, now), "expected disabled quiet hours to never match")
}

func TestBypassesQuietHoursPerKindOverrideWins(t *testing.T) {
	cfg := model.EventKindConfig{BypassQuietHours: false}
	prefs := &model.UserPreferences{
		KindOverrides: map[string]model.KindOverride{
			"statement_ready": {BypassQuietHoursSet: true, BypassQuietHours: true},
		},
	}
	require.True(t, bypassesQuietHours(cfg, prefs, "statement_ready"), "expected per-kind override to grant bypass")
}

func TestBypassesQuietHoursCatalogDefault(t *testing.T) {
	cfg := model.EventKindConfig{BypassQuietHours: true}
	prefs := &model.UserPreferences{}
	require.True(t, bypassesQuietHours(cfg, prefs, "fraud_detected"), "expected catalog-level bypass to apply when no override is set")
}
