package replenish

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// RepositoryPort abstracts the read side the planner works from.
type RepositoryPort interface {
	DemandTotal(ctx context.Context, productID, locationID int64, since time.Time) (int64, error)
	GetBalance(ctx context.Context, productID, locationID int64) (int64, decimal.Decimal, error)
	GetPolicy(ctx context.Context, productID, locationID int64) (Policy, bool, error)
	StockedPairs(ctx context.Context) ([]Pair, error)
}

// CachePort abstracts the recommendation cache.
type CachePort interface {
	Get(ctx context.Context, productID, locationID int64) (*Recommendation, bool, error)
	Set(ctx context.Context, productID, locationID int64, reco *Recommendation) error
}

// Service computes purchase recommendations from recent sales demand.
type Service struct {
	repo   RepositoryPort
	cache  CachePort
	params Params
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache CachePort, params Params) *Service {
	return &Service{repo: repo, cache: cache, params: params}
}

// Recommend returns the recommendation for one position, serving from cache
// when fresh. A nil recommendation with no error means the position is healthy.
func (s *Service) Recommend(ctx context.Context, productID, locationID int64) (*Recommendation, error) {
	if productID == 0 || locationID == 0 {
		return nil, errors.New("replenish: product and location required")
	}
	if s.cache != nil {
		if reco, hit, err := s.cache.Get(ctx, productID, locationID); err == nil && hit {
			return reco, nil
		}
	}
	reco, err := s.Compute(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, productID, locationID, reco)
	}
	return reco, nil
}

// Compute derives the recommendation from demand history, skipping the cache.
func (s *Service) Compute(ctx context.Context, productID, locationID int64) (*Recommendation, error) {
	safetyDays := s.params.SafetyDays
	leadTimeDays := s.params.LeadTimeDays
	var minOrderQty int64
	policy, found, err := s.repo.GetPolicy(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}
	if found {
		if policy.SafetyDays > 0 {
			safetyDays = policy.SafetyDays
		}
		if policy.LeadTimeDays > 0 {
			leadTimeDays = policy.LeadTimeDays
		}
		minOrderQty = policy.MinOrderQty
	}

	since := time.Now().UTC().AddDate(0, 0, -s.params.LookbackDays)
	demand, err := s.repo.DemandTotal(ctx, productID, locationID, since)
	if err != nil {
		return nil, err
	}
	onHand, avgCost, err := s.repo.GetBalance(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}

	avgDaily := decimal.NewFromInt(demand).Div(decimal.NewFromInt(int64(s.params.LookbackDays)))
	safetyStock := avgDaily.Mul(decimal.NewFromInt(int64(safetyDays))).Ceil().IntPart()
	reorderPoint := avgDaily.Mul(decimal.NewFromInt(int64(leadTimeDays))).Ceil().IntPart() + safetyStock

	if onHand > reorderPoint {
		return nil, nil
	}

	orderQty := s.economicOrderQty(avgDaily, avgCost, reorderPoint)
	if shortfall := reorderPoint - onHand; shortfall > orderQty {
		orderQty = shortfall
	}
	if minOrderQty > orderQty {
		orderQty = minOrderQty
	}
	if orderQty <= 0 {
		return nil, nil
	}

	return &Recommendation{
		ProductID:      productID,
		LocationID:     locationID,
		OnHand:         onHand,
		AvgDailyDemand: avgDaily,
		SafetyStock:    safetyStock,
		ReorderPoint:   reorderPoint,
		OrderQuantity:  orderQty,
		Priority:       priorityFor(onHand, safetyStock, reorderPoint),
		ComputedAt:     time.Now().UTC(),
	}, nil
}

// RefreshAll recomputes every stocked position and warms the cache. Positions
// fan out over a bounded worker group; the first failure stops the sweep.
func (s *Service) RefreshAll(ctx context.Context) (int64, error) {
	pairs, err := s.repo.StockedPairs(ctx)
	if err != nil {
		return 0, err
	}
	var refreshed atomic.Int64
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for _, pair := range pairs {
		group.Go(func() error {
			reco, err := s.Compute(ctx, pair.ProductID, pair.LocationID)
			if err != nil {
				return err
			}
			if s.cache != nil {
				if err := s.cache.Set(ctx, pair.ProductID, pair.LocationID, reco); err != nil {
					return err
				}
			}
			refreshed.Add(1)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return refreshed.Load(), err
	}
	return refreshed.Load(), nil
}

// economicOrderQty sizes the order by EOQ. Positions with no carrying cost on
// record fall back to ordering up to the reorder point.
func (s *Service) economicOrderQty(avgDaily, avgCost decimal.Decimal, reorderPoint int64) int64 {
	holdingCost := avgCost.Mul(s.params.HoldingCostRate)
	if !holdingCost.IsPositive() || !avgDaily.IsPositive() {
		return reorderPoint
	}
	annualDemand, _ := avgDaily.Mul(decimal.NewFromInt(365)).Float64()
	orderingCost, _ := s.params.OrderingCost.Float64()
	holding, _ := holdingCost.Float64()
	return int64(math.Ceil(math.Sqrt(2 * annualDemand * orderingCost / holding)))
}

// priorityFor bands positions already at or below the reorder point. HIGH is
// reserved for a stockout; MEDIUM covers the lower half up to the midpoint
// between safety stock and the reorder point.
func priorityFor(onHand, safetyStock, reorderPoint int64) Priority {
	if onHand <= 0 {
		return PriorityHigh
	}
	if onHand <= safetyStock+(reorderPoint-safetyStock)/2 {
		return PriorityMedium
	}
	return PriorityLow
}
