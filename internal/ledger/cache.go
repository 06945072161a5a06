package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// AvailabilityCache caches availability snapshots in Redis with a short TTL.
// Concurrent misses for the same part collapse into one loader call.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewAvailabilityCache instantiates the cache helper.
func NewAvailabilityCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl, logger: logger}
}

func availabilityKey(partID int64) string {
	return fmt.Sprintf("ledger:availability:%d", partID)
}

// Fetch loads a cached snapshot or populates it using the loader. Cache
// failures degrade to a direct load.
func (c *AvailabilityCache) Fetch(ctx context.Context, partID int64, loader func(context.Context) (Availability, error)) (Availability, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := availabilityKey(partID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var avail Availability
		if err := json.Unmarshal(raw, &avail); err == nil {
			return avail, nil
		}
		// Corrupt entry; fall through and rebuild.
		_ = c.client.Del(ctx, key).Err()
	} else if err != redis.Nil && c.logger != nil {
		c.logger.Warn("availability cache read", slog.Any("error", err))
	}

	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		avail, err := loader(ctx)
		if err != nil {
			return Availability{}, err
		}
		if data, err := json.Marshal(avail); err == nil {
			if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil && c.logger != nil {
				c.logger.Warn("availability cache write", slog.Any("error", err))
			}
		}
		return avail, nil
	})
	select {
	case <-ctx.Done():
		return Availability{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return Availability{}, res.Err
		}
		return res.Val.(Availability), nil
	}
}

// Invalidate drops cached snapshots for the given parts. Called after every
// committed ledger mutation so readers never see committed stock as free.
func (c *AvailabilityCache) Invalidate(ctx context.Context, partIDs ...int64) {
	if c == nil || c.client == nil || len(partIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(partIDs))
	for _, id := range partIDs {
		keys = append(keys, availabilityKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil && c.logger != nil {
		c.logger.Warn("availability cache invalidate", slog.Any("error", err))
	}
}
