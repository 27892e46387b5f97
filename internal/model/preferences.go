package model

import "time"

// Device is a registered push-notification target for a user.
type Device struct {
	DeviceID string
	Token    string
	Platform string // "ios", "android", "web"
	LastSeen time.Time
}

// KindOverride is a per-event-kind preference override.
type KindOverride struct {
	Enabled             bool
	Channels            []Channel
	BypassQuietHours    bool
	BypassQuietHoursSet bool // distinguishes "override says no" from "not set"
}

// QuietHours is a per-user recurring daily deferral window.
type QuietHours struct {
	Enabled        bool
	StartHour      int // 0-23, local to Timezone
	StartMinute    int
	EndHour        int
	EndMinute      int
	Timezone       string // IANA zone name, e.g. "America/Sao_Paulo"
	CriticalBypass bool
}

// BudgetCaps is a per-channel hourly/daily override.
type BudgetCaps struct {
	HourlyCap int
	DailyCap  int
}

// DigestSettings controls per-user digest batching.
type DigestSettings struct {
	Enabled   bool
	Frequency string // "hourly", "daily", "weekly"
	Hour      int    // for daily/weekly: hour of day, local to Timezone
}

// UserPreferences is the per-user preference document. Phone and email are
// stored as ciphertext (base64 AES-256-GCM) at rest; plaintext values only
// exist transiently in memory after decryption.
type UserPreferences struct {
	UserID int64

	ChannelEnabled map[Channel]bool

	PhoneCiphertext string
	PhoneVerifiedAt *time.Time
	EmailCiphertext string
	EmailVerifiedAt *time.Time

	Devices []Device

	KindOverrides map[string]KindOverride

	QuietHours QuietHours

	BudgetOverrides map[Channel]BudgetCaps

	Digest DigestSettings

	DoNotContact       bool
	DoNotContactReason string
	ReactivateAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MaxDevices caps the registered device list; oldest entries evict on overflow.
const MaxDevices = 10

// AddDevice registers or refreshes a device, evicting the oldest by LastSeen
// when the cap is exceeded.
func (p *UserPreferences) AddDevice(d Device) {
	for i, existing := range p.Devices {
		if existing.DeviceID == d.DeviceID {
			p.Devices[i] = d
			return
		}
	}
	p.Devices = append(p.Devices, d)
	if len(p.Devices) <= MaxDevices {
		return
	}
	oldest := 0
	for i := 1; i < len(p.Devices); i++ {
		if p.Devices[i].LastSeen.Before(p.Devices[oldest].LastSeen) {
			oldest = i
		}
	}
	p.Devices = append(p.Devices[:oldest], p.Devices[oldest+1:]...)
}

// IsChannelEnabled reports whether a channel is enabled globally for the
// user, ignoring any do-not-contact override (caller applies that separately).
func (p *UserPreferences) IsChannelEnabled(c Channel) bool {
	if p.ChannelEnabled == nil {
		return true // default-on when unset
	}
	enabled, ok := p.ChannelEnabled[c]
	if !ok {
		return true
	}
	return enabled
}
