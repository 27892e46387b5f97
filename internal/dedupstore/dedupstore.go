// Package dedupstore implements the atomic "first-seen wins" dedup gate
// described by the Router's step 2: for a given (user, kind, source-id),
// the first caller within the dedup window registers the notification id;
// every subsequent caller within the window is told who got there first.
package dedupstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// checkAndRegisterScript performs the read-or-set in a single round trip:
// if the key is absent, SET it with the given value and TTL and report
// "registered"; if present, return the existing value. This generalizes the
// SETNX-based dedup primitive to also return the winning value on a miss,
// which a plain SETNX cannot do atomically.
const checkAndRegisterScript = `
local existing = redis.call("GET", KEYS[1])
if existing then
  return existing
end
redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
return false
`

// Store is a Redis-backed Dedup Store. Store unavailability fails open: a
// Redis error is treated as "not duplicate" so the Router is never blocked
// on liveness by a degraded dedup backend.
type Store struct {
	rdb    *redis.Client
	logger *zap.Logger
	script *redis.Script
}

func New(rdb *redis.Client, logger *zap.Logger) *Store {
	return &Store{
		rdb:    rdb,
		logger: logger,
		script: redis.NewScript(checkAndRegisterScript),
	}
}

func key(userID int64, kind, sourceID string) string {
	if sourceID == "" {
		sourceID = "none"
	}
	return fmt.Sprintf("dedup:%d:%s:%s", userID, kind, sourceID)
}

// Result is the outcome of CheckAndRegister.
type Result struct {
	Duplicate              bool
	OriginalNotificationID string
	FirstSeenAt            time.Time
}

// encodeEntry packs the dedup entry value as "first notification id +
// first-seen timestamp", per the Dedup Entry shape: notificationID and the
// seen time joined by "|", with the time stored as unix nanoseconds so it
// round-trips exactly through decodeEntry.
func encodeEntry(notificationID string, seenAt time.Time) string {
	return notificationID + "|" + strconv.FormatInt(seenAt.UnixNano(), 10)
}

// decodeEntry parses a value written by encodeEntry. Entries written before
// this format existed (bare notification id, no "|") decode with a zero
// FirstSeenAt rather than failing.
func decodeEntry(v string) (notificationID string, firstSeenAt time.Time) {
	id, ts, ok := strings.Cut(v, "|")
	if !ok {
		return v, time.Time{}
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return id, time.Time{}
	}
	return id, time.Unix(0, nanos)
}

// CheckAndRegister atomically checks whether (userID, kind, sourceID) has
// already been registered within its window; if not, it registers
// notificationID with the given TTL. A sourceID of "" ("none") means "do not
// deduplicate beyond kind+user in this window" in the sense that the spec
// still dedupes on that combined key — callers that want no deduplication
// at all should vary sourceID per call (e.g. to the notification id itself).
func (s *Store) CheckAndRegister(ctx context.Context, userID int64, kind, sourceID, notificationID string, window time.Duration) (Result, error) {
	k := key(userID, kind, sourceID)
	ttlSeconds := int64(window.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	now := time.Now()

	res, err := s.script.Run(ctx, s.rdb, []string{k}, encodeEntry(notificationID, now), ttlSeconds).Result()
	if err != nil {
		s.logger.Warn("dedup store unavailable, failing open",
			zap.Int64("user_id", userID),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return Result{Duplicate: false}, nil
	}

	switch v := res.(type) {
	case nil:
		// Script returned false (Lua boolean false maps to nil): registered successfully.
		return Result{Duplicate: false, OriginalNotificationID: notificationID, FirstSeenAt: now}, nil
	case string:
		id, seenAt := decodeEntry(v)
		return Result{Duplicate: true, OriginalNotificationID: id, FirstSeenAt: seenAt}, nil
	default:
		return Result{Duplicate: false}, nil
	}
}
