package replenish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// noneMarker caches a computed "no recommendation" so a healthy position does
// not recompute on every read.
const noneMarker = "none"

// Cache stores computed recommendations in Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs Cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(productID, locationID int64) string {
	return fmt.Sprintf("replenish:reco:%d:%d", productID, locationID)
}

// Get returns the cached recommendation. The second result reports a cache
// hit; a hit with a nil recommendation means the position is healthy.
func (c *Cache) Get(ctx context.Context, productID, locationID int64) (*Recommendation, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, cacheKey(productID, locationID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if raw == noneMarker {
		return nil, true, nil
	}
	var reco Recommendation
	if err := json.Unmarshal([]byte(raw), &reco); err != nil {
		return nil, false, err
	}
	return &reco, true, nil
}

// Set stores the computed result, including the healthy no-recommendation case.
func (c *Cache) Set(ctx context.Context, productID, locationID int64, reco *Recommendation) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload := noneMarker
	if reco != nil {
		raw, err := json.Marshal(reco)
		if err != nil {
			return err
		}
		payload = string(raw)
	}
	return c.client.Set(ctx, cacheKey(productID, locationID), payload, c.ttl).Err()
}

// Invalidate drops the cached result for one position.
func (c *Cache) Invalidate(ctx context.Context, productID, locationID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(productID, locationID)).Err()
}
