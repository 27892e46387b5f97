// Package digestqueue implements the per-(user, frequency) ordered digest
// list: notifications deferred by quiet hours or user preference accumulate
// here until the Digest Engine drains and sends them.
package digestqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"notifyengine/internal/model"
)

// TTL bounds orphan retention: an entry nobody ever drains expires after a
// week rather than accumulating forever.
const TTL = 7 * 24 * time.Hour

// Queue is a Redis-backed ordered list store for digest entries.
type Queue struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func listKey(userID int64, frequency model.DigestFrequency) string {
	return fmt.Sprintf("digest:%s:%d", frequency, userID)
}

// Append adds entry to the tail of the user's digest list for frequency and
// refreshes the list's TTL.
func (q *Queue) Append(ctx context.Context, userID int64, frequency model.DigestFrequency, entry model.DigestEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("digestqueue: marshal entry: %w", err)
	}

	key := listKey(userID, frequency)
	pipe := q.rdb.Pipeline()
	pipe.RPush(ctx, key, raw)
	pipe.Expire(ctx, key, TTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Drain returns every entry currently queued for (userID, frequency)
// without removing any. The list is deleted only by the caller, via Clear,
// once the drained entries have been successfully sent — draining and
// clearing are split so a failed send can leave the queue intact.
func (q *Queue) Drain(ctx context.Context, userID int64, frequency model.DigestFrequency) ([]model.DigestEntry, error) {
	key := listKey(userID, frequency)
	raws, err := q.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("digestqueue: lrange: %w", err)
	}

	entries := make([]model.DigestEntry, 0, len(raws))
	for _, raw := range raws {
		var entry model.DigestEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue // skip a corrupt entry rather than failing the whole digest
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Clear removes the user's digest list for frequency entirely. Call only
// after a successful digest send.
func (q *Queue) Clear(ctx context.Context, userID int64, frequency model.DigestFrequency) error {
	return q.rdb.Del(ctx, listKey(userID, frequency)).Err()
}

// UsersWithPending scans for user ids that currently have a non-empty
// digest list for frequency, by matching the key pattern. SCAN is used
// instead of KEYS to avoid blocking Redis on large keyspaces.
func (q *Queue) UsersWithPending(ctx context.Context, frequency model.DigestFrequency) ([]int64, error) {
	pattern := fmt.Sprintf("digest:%s:*", frequency)
	var userIDs []int64
	var cursor uint64
	for {
		keys, next, err := q.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("digestqueue: scan: %w", err)
		}
		for _, k := range keys {
			parts := strings.Split(k, ":")
			if len(parts) != 3 {
				continue
			}
			userID, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil {
				continue
			}
			userIDs = append(userIDs, userID)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return userIDs, nil
}
