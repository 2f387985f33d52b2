package replenish

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakePlannerRepo struct {
	demand      int64
	onHand      int64
	avgCost     decimal.Decimal
	policy      *Policy
	pairs       []Pair
	demandCalls atomic.Int64
}

func (f *fakePlannerRepo) DemandTotal(ctx context.Context, productID, locationID int64, since time.Time) (int64, error) {
	f.demandCalls.Add(1)
	return f.demand, nil
}

func (f *fakePlannerRepo) GetBalance(ctx context.Context, productID, locationID int64) (int64, decimal.Decimal, error) {
	return f.onHand, f.avgCost, nil
}

func (f *fakePlannerRepo) GetPolicy(ctx context.Context, productID, locationID int64) (Policy, bool, error) {
	if f.policy != nil {
		return *f.policy, true, nil
	}
	return Policy{}, false, nil
}

func (f *fakePlannerRepo) StockedPairs(ctx context.Context) ([]Pair, error) {
	return f.pairs, nil
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]*Recommendation
	hits    map[string]bool
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*Recommendation), hits: make(map[string]bool)}
}

func (c *mapCache) Get(ctx context.Context, productID, locationID int64) (*Recommendation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(productID, locationID)
	return c.entries[key], c.hits[key], nil
}

func (c *mapCache) Set(ctx context.Context, productID, locationID int64, reco *Recommendation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(productID, locationID)
	c.entries[key] = reco
	c.hits[key] = true
	return nil
}

func defaultParams() Params {
	return Params{
		SafetyDays:      3,
		LeadTimeDays:    7,
		LookbackDays:    90,
		OrderingCost:    decimal.NewFromInt(25),
		HoldingCostRate: decimal.RequireFromString("0.2"),
	}
}

func TestComputeReorderPoint(t *testing.T) {
	// 900 units over 90 days is 10 a day. Safety 30, reorder point 100.
	repo := &fakePlannerRepo{demand: 900, onHand: 40, avgCost: decimal.NewFromInt(5)}
	svc := NewService(repo, nil, defaultParams())

	reco, err := svc.Compute(context.Background(), 1, 1)
	require.NoError(t, err)
	require.NotNil(t, reco)
	require.Equal(t, int64(30), reco.SafetyStock)
	require.Equal(t, int64(100), reco.ReorderPoint)
	require.Equal(t, PriorityMedium, reco.Priority)
	require.Positive(t, reco.OrderQuantity)
}

func TestComputeHealthyPositionReturnsNil(t *testing.T) {
	repo := &fakePlannerRepo{demand: 900, onHand: 150, avgCost: decimal.NewFromInt(5)}
	svc := NewService(repo, nil, defaultParams())

	reco, err := svc.Compute(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Nil(t, reco)
}

func TestComputePriorityBands(t *testing.T) {
	repo := &fakePlannerRepo{demand: 900, avgCost: decimal.NewFromInt(5)}
	svc := NewService(repo, nil, defaultParams())
	ctx := context.Background()

	// Safety 30, reorder point 100: HIGH only on a stockout, MEDIUM up to
	// the midpoint at 65, LOW above.
	repo.onHand = 0
	reco, err := svc.Compute(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, PriorityHigh, reco.Priority)

	repo.onHand = 20
	reco, err = svc.Compute(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, PriorityMedium, reco.Priority)

	repo.onHand = 90
	reco, err = svc.Compute(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, PriorityLow, reco.Priority)
}

func TestComputePolicyOverrides(t *testing.T) {
	repo := &fakePlannerRepo{
		demand:  900,
		onHand:  40,
		avgCost: decimal.NewFromInt(5),
		policy:  &Policy{SafetyDays: 6, LeadTimeDays: 14, MinOrderQty: 500},
	}
	svc := NewService(repo, nil, defaultParams())

	reco, err := svc.Compute(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(60), reco.SafetyStock)
	require.Equal(t, int64(200), reco.ReorderPoint)
	require.Equal(t, int64(500), reco.OrderQuantity)
}

func TestComputeZeroCostFallsBackToReorderPoint(t *testing.T) {
	// No carrying cost on record, so EOQ is undefined. Order at least up to
	// the reorder point.
	repo := &fakePlannerRepo{demand: 900, onHand: 40, avgCost: decimal.Zero}
	svc := NewService(repo, nil, defaultParams())

	reco, err := svc.Compute(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(100), reco.OrderQuantity)
}

func TestComputeNoDemandNoRecommendation(t *testing.T) {
	repo := &fakePlannerRepo{demand: 0, onHand: 0, avgCost: decimal.NewFromInt(5)}
	svc := NewService(repo, nil, defaultParams())

	reco, err := svc.Compute(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Nil(t, reco)
}

func TestRecommendServesFromCache(t *testing.T) {
	repo := &fakePlannerRepo{demand: 900, onHand: 40, avgCost: decimal.NewFromInt(5)}
	cache := newMapCache()
	svc := NewService(repo, cache, defaultParams())
	ctx := context.Background()

	first, err := svc.Recommend(ctx, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, int64(1), repo.demandCalls.Load())

	second, err := svc.Recommend(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, first.ReorderPoint, second.ReorderPoint)
	require.Equal(t, int64(1), repo.demandCalls.Load())
}

func TestRefreshAllWarmsCache(t *testing.T) {
	repo := &fakePlannerRepo{
		demand:  900,
		onHand:  40,
		avgCost: decimal.NewFromInt(5),
		pairs:   []Pair{{1, 1}, {2, 1}, {3, 2}},
	}
	cache := newMapCache()
	svc := NewService(repo, cache, defaultParams())

	refreshed, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), refreshed)
	for _, pair := range repo.pairs {
		require.True(t, cache.hits[cacheKey(pair.ProductID, pair.LocationID)])
	}
}
