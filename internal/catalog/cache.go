package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockdesk/stockdesk/internal/shared"
)

// LowStockCache memoises the low-stock listing between stock writes.
type LowStockCache interface {
	Get(ctx context.Context) ([]Product, bool)
	Set(ctx context.Context, products []Product)
	Invalidate(ctx context.Context)
}

// RedisLowStockCache stores the listing as JSON in redis. Cache failures
// degrade to a miss.
type RedisLowStockCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLowStockCache constructs the cache.
func NewRedisLowStockCache(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisLowStockCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLowStockCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisLowStockCache) Get(ctx context.Context) ([]Product, bool) {
	raw, err := c.client.Get(ctx, shared.LowStockCacheKey()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("low-stock cache get", slog.Any("error", err))
		}
		return nil, false
	}
	var products []Product
	if err := json.Unmarshal(raw, &products); err != nil {
		c.logger.Warn("low-stock cache decode", slog.Any("error", err))
		return nil, false
	}
	return products, true
}

func (c *RedisLowStockCache) Set(ctx context.Context, products []Product) {
	raw, err := json.Marshal(products)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, shared.LowStockCacheKey(), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("low-stock cache set", slog.Any("error", err))
	}
}

func (c *RedisLowStockCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, shared.LowStockCacheKey()).Err(); err != nil {
		c.logger.Warn("low-stock cache invalidate", slog.Any("error", err))
	}
}
