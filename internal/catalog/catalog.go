// Package catalog holds the static, process-wide Event Kind Catalog: the
// closed set of notification kinds the service knows how to route, along
// with each kind's default channel set, default priority, and dedup/quiet
// hours/digest policy flags.
package catalog

import (
	"time"

	"notifyengine/internal/model"
)

var kinds = map[string]model.EventKindConfig{
	"transfer_completed": {
		Kind:             "transfer_completed",
		DefaultChannels:  []model.Channel{model.ChannelSocket, model.ChannelPush},
		DefaultPriority:  model.PriorityMedium,
		BypassQuietHours: false,
		DigestEligible:   true,
		DedupWindow:      5 * time.Minute,
	},
	"transfer_failed": {
		Kind:             "transfer_failed",
		DefaultChannels:  []model.Channel{model.ChannelSocket, model.ChannelPush, model.ChannelEmail},
		DefaultPriority:  model.PriorityHigh,
		BypassQuietHours: false,
		DigestEligible:   true,
		DedupWindow:      5 * time.Minute,
	},
	"large_withdrawal": {
		Kind:             "large_withdrawal",
		DefaultChannels:  []model.Channel{model.ChannelSocket, model.ChannelSMS, model.ChannelPush},
		DefaultPriority:  model.PriorityHigh,
		BypassQuietHours: true,
		DigestEligible:   false,
		DedupWindow:      10 * time.Minute,
	},
	"login_failed": {
		Kind:             "login_failed",
		DefaultChannels:  []model.Channel{model.ChannelEmail},
		DefaultPriority:  model.PriorityMedium,
		BypassQuietHours: false,
		DigestEligible:   true,
		DedupWindow:      15 * time.Minute,
	},
	"login_new_device": {
		Kind:             "login_new_device",
		DefaultChannels:  []model.Channel{model.ChannelEmail, model.ChannelPush},
		DefaultPriority:  model.PriorityMedium,
		BypassQuietHours: false,
		DigestEligible:   true,
		DedupWindow:      1 * time.Hour,
	},
	"password_changed": {
		Kind:             "password_changed",
		DefaultChannels:  []model.Channel{model.ChannelEmail, model.ChannelSMS},
		DefaultPriority:  model.PriorityHigh,
		BypassQuietHours: true,
		DigestEligible:   false,
		DedupWindow:      1 * time.Hour,
	},
	"fraud_detected": {
		Kind:             "fraud_detected",
		DefaultChannels:  []model.Channel{model.ChannelSocket, model.ChannelSMS, model.ChannelPush, model.ChannelEmail},
		DefaultPriority:  model.PriorityCritical,
		BypassQuietHours: true,
		DigestEligible:   false,
		DedupWindow:      30 * time.Minute,
	},
	"account_locked": {
		Kind:             "account_locked",
		DefaultChannels:  []model.Channel{model.ChannelSMS, model.ChannelEmail},
		DefaultPriority:  model.PriorityCritical,
		BypassQuietHours: true,
		DigestEligible:   false,
		DedupWindow:      30 * time.Minute,
	},
	"account_unlocked": {
		Kind:             "account_unlocked",
		DefaultChannels:  []model.Channel{model.ChannelEmail},
		DefaultPriority:  model.PriorityMedium,
		BypassQuietHours: false,
		DigestEligible:   true,
		DedupWindow:      5 * time.Minute,
	},
	"kyc_verification_needed": {
		Kind:             "kyc_verification_needed",
		DefaultChannels:  []model.Channel{model.ChannelEmail, model.ChannelPush},
		DefaultPriority:  model.PriorityMedium,
		BypassQuietHours: false,
		DigestEligible:   true,
		DedupWindow:      24 * time.Hour,
	},
	"statement_ready": {
		Kind:             "statement_ready",
		DefaultChannels:  []model.Channel{model.ChannelEmail},
		DefaultPriority:  model.PriorityLow,
		BypassQuietHours: false,
		DigestEligible:   true,
		DedupWindow:      24 * time.Hour,
	},
}

// Lookup returns the configuration record for kind and whether it is known.
func Lookup(kind string) (model.EventKindConfig, bool) {
	cfg, ok := kinds[kind]
	return cfg, ok
}

// All returns every registered kind's configuration. The returned slice is a
// fresh copy; mutating it does not affect the catalog.
func All() []model.EventKindConfig {
	out := make([]model.EventKindConfig, 0, len(kinds))
	for _, cfg := range kinds {
		out = append(out, cfg)
	}
	return out
}
