// Package ratebudget implements the Rate Budget Store: an atomic
// per-(user, channel) hourly+daily counter pair that the Router consumes
// before invoking a provider adapter. The socket channel has no budget and
// never calls this package.
package ratebudget

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"notifyengine/internal/model"
)

// consumeScript checks both the hourly and daily counters against their
// caps and, only if both pass, increments both and (re)asserts their TTLs
// in one round trip. Two independent GET-then-INCR calls would race under
// concurrent Router invocations for the same user; this script closes that
// window.
const consumeScript = `
local hourKey = KEYS[1]
local dayKey = KEYS[2]
local hourCap = tonumber(ARGV[1])
local dayCap = tonumber(ARGV[2])
local hourTTL = tonumber(ARGV[3])
local dayTTL = tonumber(ARGV[4])

local hourCount = tonumber(redis.call("GET", hourKey) or "0")
local dayCount = tonumber(redis.call("GET", dayKey) or "0")

if hourCount >= hourCap or dayCount >= dayCap then
  return {0, hourCount, dayCount}
end

local newHour = redis.call("INCR", hourKey)
if newHour == 1 then
  redis.call("EXPIRE", hourKey, hourTTL)
end
local newDay = redis.call("INCR", dayKey)
if newDay == 1 then
  redis.call("EXPIRE", dayKey, dayTTL)
end

return {1, newHour, newDay}
`

// Limits is the effective cap pair for a (user, channel).
type Limits struct {
	HourlyCap int
	DailyCap  int
}

// DefaultLimits returns the service-wide default caps per channel.
func DefaultLimits(channel model.Channel) Limits {
	switch channel {
	case model.ChannelSMS:
		return Limits{HourlyCap: 10, DailyCap: 50}
	case model.ChannelEmail:
		return Limits{HourlyCap: 20, DailyCap: 100}
	case model.ChannelPush:
		return Limits{HourlyCap: 30, DailyCap: 200}
	default:
		return Limits{HourlyCap: 0, DailyCap: 0} // socket is unbudgeted
	}
}

// Outcome is the result of ConsumeBudget.
type Outcome struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store is a Redis-backed Rate Budget Store. Unavailability fails open.
type Store struct {
	rdb    *redis.Client
	logger *zap.Logger
	script *redis.Script
}

func New(rdb *redis.Client, logger *zap.Logger) *Store {
	return &Store{
		rdb:    rdb,
		logger: logger,
		script: redis.NewScript(consumeScript),
	}
}

func hourKey(userID int64, channel model.Channel) string {
	return fmt.Sprintf("ratelimit:%s:hour:%d", channel, userID)
}

func dayKey(userID int64, channel model.Channel) string {
	return fmt.Sprintf("ratelimit:%s:day:%d", channel, userID)
}

// ConsumeBudget atomically checks both windows against limits and, if both
// pass, consumes one unit from each. The socket channel always returns
// Allowed without touching Redis.
func (s *Store) ConsumeBudget(ctx context.Context, userID int64, channel model.Channel, limits Limits) (Outcome, error) {
	if channel == model.ChannelSocket {
		return Outcome{Allowed: true}, nil
	}

	now := time.Now()
	nextHour := now.Truncate(time.Hour).Add(time.Hour)

	res, err := s.script.Run(ctx, s.rdb,
		[]string{hourKey(userID, channel), dayKey(userID, channel)},
		limits.HourlyCap, limits.DailyCap,
		int(time.Hour.Seconds()), int((24 * time.Hour).Seconds()),
	).Result()

	if err != nil {
		s.logger.Warn("rate budget store unavailable, failing open",
			zap.Int64("user_id", userID),
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
		return Outcome{Allowed: true}, nil
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return Outcome{Allowed: true}, nil
	}

	allowed, _ := vals[0].(int64)
	hourCount, _ := vals[1].(int64)

	if allowed == 0 {
		return Outcome{Allowed: false, Remaining: 0, ResetAt: nextHour}, nil
	}

	remaining := limits.HourlyCap - int(hourCount)
	if remaining < 0 {
		remaining = 0
	}
	return Outcome{Allowed: true, Remaining: remaining, ResetAt: nextHour}, nil
}

// Reset clears both the hourly and daily counters for (userID, channel),
// backing the ResetBudget admin operation.
func (s *Store) Reset(ctx context.Context, userID int64, channel model.Channel) error {
	return s.rdb.Del(ctx, hourKey(userID, channel), dayKey(userID, channel)).Err()
}
