package model

import "time"

// EventKindConfig is the static, process-wide configuration record for one
// event kind in the catalog.
type EventKindConfig struct {
	Kind              string
	DefaultChannels   []Channel
	DefaultPriority   Priority
	BypassQuietHours  bool
	DigestEligible    bool
	DedupWindow       time.Duration
}
