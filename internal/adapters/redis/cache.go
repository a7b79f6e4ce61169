package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/observability"
	"github.com/robertarktes/showtime-booking/internal/schedule"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// LayoutCache serves screen layouts from Redis and delegates everything else
// to the wrapped store. Redis failures degrade to the store.
type LayoutCache struct {
	schedule.Store
	cache  *Cache
	ttl    time.Duration
	logger observability.Logger
}

func NewLayoutCache(next schedule.Store, cache *Cache, ttl time.Duration, logger observability.Logger) *LayoutCache {
	return &LayoutCache{Store: next, cache: cache, ttl: ttl, logger: logger}
}

func layoutKey(screenID uuid.UUID) string {
	return "layout:" + screenID.String()
}

func (c *LayoutCache) GetScreenLayout(ctx context.Context, screenID uuid.UUID) (domain.SeatLayout, error) {
	key := layoutKey(screenID)
	raw, err := c.cache.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var layout domain.SeatLayout
		if err := json.Unmarshal(raw, &layout); err == nil {
			return layout, nil
		}
		c.logger.WithField("screen_id", screenID).Warn("dropping undecodable cached layout")
	case err != redis.Nil:
		c.logger.WithError(err).Warn("layout cache read failed")
	}

	layout, err := c.Store.GetScreenLayout(ctx, screenID)
	if err != nil {
		return domain.SeatLayout{}, err
	}
	if data, err := json.Marshal(layout); err == nil {
		if err := c.cache.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.WithError(err).Warn("layout cache write failed")
		}
	}
	return layout, nil
}
