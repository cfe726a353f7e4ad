package tracker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pearmediallc/creative-library-analytics/internal/models"
)

const cacheKeyPrefix = "analytics:revenue:"

// RevenueCache caches per-key tracker lookups in Redis so closely
// spaced correlation runs do not burn the provider's rate budget twice
// for the same key. All methods are nil-receiver safe; a nil cache
// simply never hits.
type RevenueCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRevenueCache creates a revenue lookup cache. Returns nil when the
// client is missing or the TTL is zero, which disables caching.
func NewRevenueCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RevenueCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &RevenueCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached record for a key, if present and decodable.
func (c *RevenueCache) Get(ctx context.Context, key string) (*models.RevenueRecord, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("revenue cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var rec models.RevenueRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.logger.Warn("revenue cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, cacheKeyPrefix+key)
		return nil, false
	}
	return &rec, true
}

// Set stores a fetched record. Cache failures are logged, never fatal.
func (c *RevenueCache) Set(ctx context.Context, key string, rec *models.RevenueRecord) {
	if c == nil || rec == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("revenue cache set failed", zap.String("key", key), zap.Error(err))
	}
}
