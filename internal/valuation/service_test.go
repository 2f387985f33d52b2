package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian/internal/lots"
)

type fakeReadSide struct {
	snapshot    BalanceSnapshot
	lots        []lots.Lot
	receiptQty  int64
	receiptCost decimal.Decimal
}

func (f *fakeReadSide) GetBalance(ctx context.Context, productID, locationID int64) (BalanceSnapshot, error) {
	return f.snapshot, nil
}

func (f *fakeReadSide) RemainingLots(ctx context.Context, productID int64) ([]lots.Lot, error) {
	return f.lots, nil
}

func (f *fakeReadSide) ReceiptTotals(ctx context.Context, productID, locationID int64) (int64, decimal.Decimal, error) {
	return f.receiptQty, f.receiptCost, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestWeightedAverageAfterSale(t *testing.T) {
	// Receive 100 at 2.00, sell 30: the remaining 70 are worth 140.00.
	repo := &fakeReadSide{
		snapshot:    BalanceSnapshot{OnHand: 70, AvgCost: dec("2.00")},
		receiptQty:  100,
		receiptCost: dec("200.00"),
	}
	svc := NewService(repo)

	result, err := svc.Value(context.Background(), 1, 1, MethodWeightedAverage)
	require.NoError(t, err)
	require.True(t, result.Value.Equal(dec("140.00")), "value %s", result.Value)
	require.True(t, result.UnitCost.Equal(dec("2.00")))
}

func TestWeightedAverageWithoutReceipts(t *testing.T) {
	repo := &fakeReadSide{snapshot: BalanceSnapshot{OnHand: 10, AvgCost: dec("3.50")}}
	svc := NewService(repo)

	result, err := svc.Value(context.Background(), 1, 1, MethodWeightedAverage)
	require.NoError(t, err)
	require.True(t, result.Value.Equal(dec("35.00")), "value %s", result.Value)
}

func TestWeightedAverageMatchesMaintainedCostForReceiptsOnly(t *testing.T) {
	// Receive 10 at 100 and 10 at 120 with no sales in between. The moving
	// average on the balance row and the receipt recomputation agree.
	repo := &fakeReadSide{
		snapshot:    BalanceSnapshot{OnHand: 20, AvgCost: dec("110")},
		receiptQty:  20,
		receiptCost: dec("2200"),
	}
	svc := NewService(repo)

	result, err := svc.Value(context.Background(), 1, 1, MethodWeightedAverage)
	require.NoError(t, err)
	require.True(t, result.UnitCost.Equal(repo.snapshot.AvgCost), "unit cost %s", result.UnitCost)
	require.True(t, result.Value.Equal(dec("2200")), "value %s", result.Value)
}

func TestFIFOWalksOldestLotsFirst(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeReadSide{
		snapshot: BalanceSnapshot{OnHand: 25, AvgCost: dec("1.50")},
		lots: []lots.Lot{
			{LotNumber: "A", RemainingQty: 10, UnitCost: dec("1.00"), CreatedAt: now.Add(-48 * time.Hour)},
			{LotNumber: "B", RemainingQty: 20, UnitCost: dec("2.00"), CreatedAt: now.Add(-24 * time.Hour)},
		},
	}
	svc := NewService(repo)

	// 10 at 1.00 and 15 at 2.00.
	result, err := svc.Value(context.Background(), 1, 1, MethodFIFO)
	require.NoError(t, err)
	require.True(t, result.Value.Equal(dec("40.00")), "value %s", result.Value)
	require.True(t, result.UnitCost.Equal(dec("1.60")))
}

func TestFIFOUncoveredQuantityUsesAverage(t *testing.T) {
	repo := &fakeReadSide{
		snapshot: BalanceSnapshot{OnHand: 12, AvgCost: dec("3.00")},
		lots: []lots.Lot{
			{LotNumber: "A", RemainingQty: 10, UnitCost: dec("2.00")},
		},
	}
	svc := NewService(repo)

	// 10 at 2.00 from the lot, 2 at 3.00 from the average.
	result, err := svc.Value(context.Background(), 1, 1, MethodFIFO)
	require.NoError(t, err)
	require.True(t, result.Value.Equal(dec("26.00")), "value %s", result.Value)
}

func TestValueZeroStockAndBadMethod(t *testing.T) {
	svc := NewService(&fakeReadSide{})

	result, err := svc.Value(context.Background(), 1, 1, MethodFIFO)
	require.NoError(t, err)
	require.True(t, result.Value.IsZero())

	_, err = svc.Value(context.Background(), 1, 1, "LIFO")
	require.ErrorIs(t, err, ErrUnknownCostingMethod)
}
