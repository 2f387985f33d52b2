package valuation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/lots"
)

// RepositoryPort abstracts the read side the engine prices from.
type RepositoryPort interface {
	GetBalance(ctx context.Context, productID, locationID int64) (BalanceSnapshot, error)
	RemainingLots(ctx context.Context, productID int64) ([]lots.Lot, error)
	ReceiptTotals(ctx context.Context, productID, locationID int64) (int64, decimal.Decimal, error)
}

// Service prices on-hand stock. It recomputes from the movement log and the
// lot registry rather than trusting the running average on the balance row.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Value prices the on-hand quantity of a product at a location.
func (s *Service) Value(ctx context.Context, productID, locationID int64, method CostMethod) (Valuation, error) {
	if productID == 0 || locationID == 0 {
		return Valuation{}, errors.New("valuation: product and location required")
	}
	if method == "" {
		method = MethodWeightedAverage
	}
	if !method.Known() {
		return Valuation{}, fmt.Errorf("%w: %q", ErrUnknownCostingMethod, method)
	}

	snapshot, err := s.repo.GetBalance(ctx, productID, locationID)
	if err != nil {
		return Valuation{}, err
	}
	result := Valuation{
		ProductID:  productID,
		LocationID: locationID,
		Method:     method,
		OnHand:     snapshot.OnHand,
		UnitCost:   decimal.Zero,
		Value:      decimal.Zero,
		ComputedAt: time.Now().UTC(),
	}
	if snapshot.OnHand <= 0 {
		return result, nil
	}

	switch method {
	case MethodWeightedAverage:
		result.UnitCost, err = s.weightedAverage(ctx, productID, locationID, snapshot)
		if err != nil {
			return Valuation{}, err
		}
		result.Value = result.UnitCost.Mul(decimal.NewFromInt(snapshot.OnHand))
	case MethodFIFO:
		result.Value, err = s.fifoValue(ctx, productID, snapshot)
		if err != nil {
			return Valuation{}, err
		}
		result.UnitCost = result.Value.Div(decimal.NewFromInt(snapshot.OnHand))
	}
	return result, nil
}

// weightedAverage prices at total receipt value over total receipt quantity.
// Products with no receipts on record fall back to the balance average, which
// covers opening balances loaded by adjustment.
func (s *Service) weightedAverage(ctx context.Context, productID, locationID int64, snapshot BalanceSnapshot) (decimal.Decimal, error) {
	qty, value, err := s.repo.ReceiptTotals(ctx, productID, locationID)
	if err != nil {
		return decimal.Zero, err
	}
	if qty <= 0 {
		return snapshot.AvgCost, nil
	}
	return value.Div(decimal.NewFromInt(qty)), nil
}

// fifoValue walks remaining lots oldest first until the on-hand quantity is
// covered. Quantity not backed by any lot prices at the balance average.
func (s *Service) fifoValue(ctx context.Context, productID int64, snapshot BalanceSnapshot) (decimal.Decimal, error) {
	remaining, err := s.repo.RemainingLots(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	value := decimal.Zero
	uncovered := snapshot.OnHand
	for _, lot := range remaining {
		if uncovered == 0 {
			break
		}
		take := lot.RemainingQty
		if take > uncovered {
			take = uncovered
		}
		value = value.Add(lot.UnitCost.Mul(decimal.NewFromInt(take)))
		uncovered -= take
	}
	if uncovered > 0 {
		value = value.Add(snapshot.AvgCost.Mul(decimal.NewFromInt(uncovered)))
	}
	return value, nil
}
