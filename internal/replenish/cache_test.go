package replenish

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, ttl)
}

func TestCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t, time.Hour)
	ctx := context.Background()

	_, hit, err := cache.Get(ctx, 1, 1)
	require.NoError(t, err)
	require.False(t, hit)

	reco := &Recommendation{
		ProductID:      1,
		LocationID:     1,
		OnHand:         40,
		AvgDailyDemand: decimal.NewFromInt(10),
		SafetyStock:    30,
		ReorderPoint:   100,
		OrderQuantity:  120,
		Priority:       PriorityMedium,
		ComputedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, cache.Set(ctx, 1, 1, reco))

	got, hit, err := cache.Get(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, reco.ReorderPoint, got.ReorderPoint)
	require.Equal(t, reco.Priority, got.Priority)
	require.True(t, reco.AvgDailyDemand.Equal(got.AvgDailyDemand))
}

func TestCacheStoresHealthyPositions(t *testing.T) {
	cache := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 2, 1, nil))

	got, hit, err := cache.Get(ctx, 2, 1)
	require.NoError(t, err)
	require.True(t, hit)
	require.Nil(t, got)
}

func TestCacheInvalidate(t *testing.T) {
	cache := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 3, 1, nil))
	require.NoError(t, cache.Invalidate(ctx, 3, 1))

	_, hit, err := cache.Get(ctx, 3, 1)
	require.NoError(t, err)
	require.False(t, hit)
}
