package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"courtq/pkg/logger"
	"courtq/pkg/model"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "courtq:slot-status:"
	genPrefix = "courtq:slot-status-gen:"

	// genTTL outlives any entry so a generation is never forgotten while an
	// entry written under it can still be served.
	genTTL = 24 * time.Hour
)

// SlotStatusCache holds short-lived slot status projections. Misses and
// backend errors are indistinguishable to callers.
//
// Every key carries a generation that Invalidate bumps. Lookup reports the
// generation observed before the caller reads the store, and Set drops the
// write when the generation has moved since, so a projection read before a
// concurrent change is never cached after that change's invalidation.
type SlotStatusCache interface {
	// Lookup returns the cached projection unless it is missing or stale at
	// now, together with the current generation of key.
	Lookup(ctx context.Context, key model.SlotKey, now time.Time) (*model.SlotStatus, int64, bool)
	Set(ctx context.Context, key model.SlotKey, status *model.SlotStatus, gen int64, now time.Time)
	Invalidate(ctx context.Context, key model.SlotKey)
}

func cacheKey(key model.SlotKey) string {
	return keyPrefix + key.String()
}

func genKey(key model.SlotKey) string {
	return genPrefix + key.String()
}

// entryTTL caps ttl at the holder's remaining window. Zero means the entry
// must not be written.
func entryTTL(status *model.SlotStatus, ttl time.Duration, now time.Time) time.Duration {
	if status.HolderExpiresAt != nil {
		if remaining := status.HolderExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl < time.Millisecond {
		return 0
	}
	return ttl
}

// setScript writes the entry only while the generation still matches.
var setScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2])
if not gen then
	gen = "0"
end
if gen ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1`)

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewSlotStatusCache returns a Redis backed cache, or a no-op cache when
// client is nil or ttl is not positive.
func NewSlotStatusCache(client *redis.Client, ttl time.Duration, log *logger.Logger) SlotStatusCache {
	if client == nil || ttl <= 0 {
		return Noop{}
	}
	return &redisCache{client: client, ttl: ttl, log: log}
}

func (c *redisCache) Lookup(ctx context.Context, key model.SlotKey, now time.Time) (*model.SlotStatus, int64, bool) {
	values, err := c.client.MGet(ctx, cacheKey(key), genKey(key)).Result()
	if err != nil {
		c.log.Warn("slot status cache read failed", "slot_key", key.String(), "error", err)
		return nil, -1, false
	}

	gen, err := parseGen(values[1])
	if err != nil {
		c.log.Warn("slot status generation corrupt", "slot_key", key.String(), "error", err)
		return nil, -1, false
	}

	raw, ok := values[0].(string)
	if !ok {
		return nil, gen, false
	}
	var status model.SlotStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		c.log.Warn("slot status cache entry corrupt", "slot_key", key.String(), "error", err)
		return nil, gen, false
	}
	if status.StaleAt(now) {
		return nil, gen, false
	}
	return &status, gen, true
}

func parseGen(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func (c *redisCache) Set(ctx context.Context, key model.SlotKey, status *model.SlotStatus, gen int64, now time.Time) {
	if gen < 0 {
		return
	}
	ttl := entryTTL(status, c.ttl, now)
	if ttl == 0 {
		return
	}
	raw, err := json.Marshal(status)
	if err != nil {
		return
	}
	keys := []string{cacheKey(key), genKey(key)}
	if err := setScript.Run(ctx, c.client, keys, strconv.FormatInt(gen, 10), raw, ttl.Milliseconds()).Err(); err != nil {
		c.log.Warn("slot status cache write failed", "slot_key", key.String(), "error", err)
	}
}

func (c *redisCache) Invalidate(ctx context.Context, key model.SlotKey) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(key))
		pipe.Expire(ctx, genKey(key), genTTL)
		pipe.Del(ctx, cacheKey(key))
		return nil
	})
	if err != nil {
		c.log.Warn("slot status cache invalidation failed", "slot_key", key.String(), "error", err)
	}
}

type Noop struct{}

func (Noop) Lookup(context.Context, model.SlotKey, time.Time) (*model.SlotStatus, int64, bool) {
	return nil, 0, false
}

func (Noop) Set(context.Context, model.SlotKey, *model.SlotStatus, int64, time.Time) {}
func (Noop) Invalidate(context.Context, model.SlotKey) {}
