package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// loadedMarker is stored in every cached set so an empty sheet is still a
// cache hit.
const loadedMarker = "\x00loaded"

// addIfCached only extends a set that a full read populated; adding to a
// missing key would make a partial set look complete.
var addIfCached = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("SADD", KEYS[1], unpack(ARGV))
end
return -1
`)

// ColumnCache keeps each sheet's identifier column in a Redis set.
type ColumnCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewColumnCache returns a cache with the given TTL (10 minutes when <= 0).
func NewColumnCache(rdb *redis.Client, ttl time.Duration) *ColumnCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ColumnCache{rdb: rdb, ttl: ttl}
}

func (c *ColumnCache) key(spreadsheetID string) string {
	return "sheets:ids:" + spreadsheetID
}

// Get returns the cached ids and whether the sheet was cached at all.
func (c *ColumnCache) Get(ctx context.Context, spreadsheetID string) (map[string]struct{}, bool, error) {
	members, err := c.rdb.SMembers(ctx, c.key(spreadsheetID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("column cache get: %w", err)
	}
	if len(members) == 0 {
		return nil, false, nil
	}
	ids := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m != loadedMarker {
			ids[m] = struct{}{}
		}
	}
	return ids, true, nil
}

// Set replaces the cached column for a sheet.
func (c *ColumnCache) Set(ctx context.Context, spreadsheetID string, ids []string) error {
	key := c.key(spreadsheetID)
	members := make([]any, 0, len(ids)+1)
	members = append(members, loadedMarker)
	for _, id := range ids {
		members = append(members, id)
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.SAdd(ctx, key, members...)
		p.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("column cache set: %w", err)
	}
	return nil
}

// Add records freshly appended ids, but only if the sheet is cached.
func (c *ColumnCache) Add(ctx context.Context, spreadsheetID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	err := addIfCached.Run(ctx, c.rdb, []string{c.key(spreadsheetID)}, args...).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("column cache add: %w", err)
	}
	return nil
}

// Invalidate drops a sheet's cached column.
func (c *ColumnCache) Invalidate(ctx context.Context, spreadsheetID string) error {
	return c.rdb.Del(ctx, c.key(spreadsheetID)).Err()
}
