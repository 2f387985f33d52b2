package transfer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian/internal/ledger"
	"github.com/meridian-pos/meridian/internal/lots"
)

type memoryStore struct {
	balances     map[string]ledger.Balance
	movements    []ledger.Movement
	lots         map[int64]lots.Lot
	lotLocations map[string]int64
	serials      map[int64]int64
	orders       map[int64]Order
	nextOrderID  int64
	nextLineID   int64
	nextMoveID   int64
	balanceErr   error
}

type memoryTx struct {
	store *memoryStore
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		balances:     make(map[string]ledger.Balance),
		lots:         make(map[int64]lots.Lot),
		lotLocations: make(map[string]int64),
		serials:      make(map[int64]int64),
		orders:       make(map[int64]Order),
	}
}

func balanceKey(productID, locationID int64) string {
	return fmt.Sprintf("%d:%d", productID, locationID)
}

func lotLocationKey(lotID, locationID int64) string {
	return fmt.Sprintf("%d:%d", lotID, locationID)
}

func (s *memoryStore) seedBalance(productID, locationID, onHand int64, avgCost string) {
	cost, err := decimal.NewFromString(avgCost)
	if err != nil {
		panic(err)
	}
	s.balances[balanceKey(productID, locationID)] = ledger.Balance{
		ProductID:  productID,
		LocationID: locationID,
		OnHand:     onHand,
		AvgCost:    cost,
	}
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{store: s})
}

func (s *memoryStore) GetOnHand(ctx context.Context, productID, locationID int64) (int64, error) {
	return s.balances[balanceKey(productID, locationID)].OnHand, nil
}

func (s *memoryStore) GetOrder(ctx context.Context, id int64) (Order, error) {
	if order, ok := s.orders[id]; ok {
		return order, nil
	}
	return Order{}, ErrOrderNotFound
}

func (s *memoryStore) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	var result []Order
	for id := s.nextOrderID; id >= 1; id-- {
		order, ok := s.orders[id]
		if !ok {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, order)
	}
	return result, nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, productID, locationID int64) (ledger.Balance, error) {
	if tx.store.balanceErr != nil {
		return ledger.Balance{}, tx.store.balanceErr
	}
	if bal, ok := tx.store.balances[balanceKey(productID, locationID)]; ok {
		return bal, nil
	}
	return ledger.Balance{ProductID: productID, LocationID: locationID}, ledger.ErrBalanceNotFound
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, balance ledger.Balance) error {
	tx.store.balances[balanceKey(balance.ProductID, balance.LocationID)] = balance
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m ledger.Movement) (int64, error) {
	tx.store.nextMoveID++
	m.ID = tx.store.nextMoveID
	tx.store.movements = append(tx.store.movements, m)
	return m.ID, nil
}

func (tx *memoryTx) InsertLot(ctx context.Context, lot lots.Lot) (int64, error) {
	return 0, fmt.Errorf("not used in transfers")
}

func (tx *memoryTx) ConsumeLot(ctx context.Context, lotID, qty int64) error {
	lot, ok := tx.store.lots[lotID]
	if !ok {
		return lots.ErrLotNotFound
	}
	if lot.RemainingQty < qty {
		return lots.ErrLotDepleted
	}
	lot.RemainingQty -= qty
	tx.store.lots[lotID] = lot
	return nil
}

func (tx *memoryTx) CreditLot(ctx context.Context, lotID, qty int64) error {
	lot, ok := tx.store.lots[lotID]
	if !ok {
		return lots.ErrLotNotFound
	}
	lot.RemainingQty += qty
	tx.store.lots[lotID] = lot
	return nil
}

func (tx *memoryTx) InsertOrder(ctx context.Context, order Order) (int64, error) {
	tx.store.nextOrderID++
	order.ID = tx.store.nextOrderID
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt
	tx.store.orders[order.ID] = order
	return order.ID, nil
}

func (tx *memoryTx) InsertLines(ctx context.Context, orderID int64, lines []Line) error {
	order := tx.store.orders[orderID]
	for _, line := range lines {
		tx.store.nextLineID++
		line.ID = tx.store.nextLineID
		order.Lines = append(order.Lines, line)
	}
	tx.store.orders[orderID] = order
	return nil
}

func (tx *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	if order, ok := tx.store.orders[id]; ok {
		return order, nil
	}
	return Order{}, ErrOrderNotFound
}

func (tx *memoryTx) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	order, ok := tx.store.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	tx.store.orders[id] = order
	return nil
}

func (tx *memoryTx) UpsertLotLocation(ctx context.Context, lotID, locationID, delta int64) error {
	tx.store.lotLocations[lotLocationKey(lotID, locationID)] += delta
	return nil
}

func (tx *memoryTx) RehomeSerial(ctx context.Context, serialID, locationID int64) error {
	if _, ok := tx.store.serials[serialID]; !ok {
		return lots.ErrSerialNotFound
	}
	tx.store.serials[serialID] = locationID
	return nil
}

func TestRequestRejectsBadInput(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Request(ctx, RequestInput{FromLocationID: 1, ToLocationID: 1, Lines: []LineInput{{ProductID: 1, Qty: 5}}})
	require.ErrorIs(t, err, ErrTransferValidation)

	_, err = svc.Request(ctx, RequestInput{FromLocationID: 1, ToLocationID: 2})
	require.ErrorIs(t, err, ErrTransferValidation)

	_, err = svc.Request(ctx, RequestInput{FromLocationID: 1, ToLocationID: 2, Lines: []LineInput{{ProductID: 1, Qty: 5}}})
	require.ErrorIs(t, err, ErrTransferValidation)
}

func TestCommitMovesStockBothSides(t *testing.T) {
	store := newMemoryStore()
	store.seedBalance(1, 1, 50, "2.00")
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	order, err := svc.Request(ctx, RequestInput{FromLocationID: 1, ToLocationID: 2, Lines: []LineInput{{ProductID: 1, Qty: 30}}})
	require.NoError(t, err)
	require.Equal(t, OrderPending, order.Status)

	order, err = svc.Commit(ctx, order.ID, 0)
	require.NoError(t, err)
	require.Equal(t, OrderCommitted, order.Status)

	from := store.balances[balanceKey(1, 1)]
	to := store.balances[balanceKey(1, 2)]
	require.Equal(t, int64(20), from.OnHand)
	require.Equal(t, int64(30), to.OnHand)
	require.True(t, to.AvgCost.Equal(decimal.RequireFromString("2.00")), "destination cost %s", to.AvgCost)

	require.Len(t, store.movements, 2)
	require.Equal(t, ledger.ReasonTransferOut, store.movements[0].Reason)
	require.Equal(t, ledger.ReasonTransferIn, store.movements[1].Reason)
	require.Equal(t, order.Code, store.movements[0].RefID)
	require.Equal(t, order.Code, store.movements[1].RefID)
}

func TestCommitShortfallKeepsOrderPending(t *testing.T) {
	store := newMemoryStore()
	store.seedBalance(1, 1, 50, "2.00")
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	order, err := svc.Request(ctx, RequestInput{FromLocationID: 1, ToLocationID: 2, Lines: []LineInput{{ProductID: 1, Qty: 50}}})
	require.NoError(t, err)

	// A sale lands between request and commit.
	store.seedBalance(1, 1, 10, "2.00")

	_, err = svc.Commit(ctx, order.ID, 0)
	require.ErrorIs(t, err, ErrTransferValidation)

	got, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderPending, got.Status)
	require.Equal(t, int64(10), store.balances[balanceKey(1, 1)].OnHand)
	require.Zero(t, store.balances[balanceKey(1, 2)].OnHand)
}

func TestCancelThenCommit(t *testing.T) {
	store := newMemoryStore()
	store.seedBalance(1, 1, 50, "2.00")
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	order, err := svc.Request(ctx, RequestInput{FromLocationID: 1, ToLocationID: 2, Lines: []LineInput{{ProductID: 1, Qty: 5}}})
	require.NoError(t, err)

	order, err = svc.Cancel(ctx, order.ID, 0)
	require.NoError(t, err)
	require.Equal(t, OrderCancelled, order.Status)

	_, err = svc.Commit(ctx, order.ID, 0)
	require.ErrorIs(t, err, ErrInvalidTransferState)

	_, err = svc.Cancel(ctx, order.ID, 0)
	require.ErrorIs(t, err, ErrInvalidTransferState)
}

func TestCommitRehomesLotsAndSerials(t *testing.T) {
	store := newMemoryStore()
	store.seedBalance(1, 1, 30, "4.00")
	store.lots[7] = lots.Lot{ID: 7, ProductID: 1, RemainingQty: 30, Status: lots.LotActive}
	store.lotLocations[lotLocationKey(7, 1)] = 30
	store.serials[91] = 1
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	lotID := int64(7)
	order, err := svc.Request(ctx, RequestInput{
		FromLocationID: 1,
		ToLocationID:   2,
		Lines:          []LineInput{{ProductID: 1, Qty: 10, LotID: &lotID, SerialIDs: []int64{91}}},
	})
	require.NoError(t, err)

	_, err = svc.Commit(ctx, order.ID, 0)
	require.NoError(t, err)

	// Global remaining is untouched; only the per-location split moves.
	require.Equal(t, int64(30), store.lots[7].RemainingQty)
	require.Equal(t, int64(20), store.lotLocations[lotLocationKey(7, 1)])
	require.Equal(t, int64(10), store.lotLocations[lotLocationKey(7, 2)])
	require.Equal(t, int64(2), store.serials[91])
}

func TestCommitStorageFailureSurfaces(t *testing.T) {
	store := newMemoryStore()
	store.seedBalance(1, 1, 50, "2.00")
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	order, err := svc.Request(ctx, RequestInput{FromLocationID: 1, ToLocationID: 2, Lines: []LineInput{{ProductID: 1, Qty: 10}}})
	require.NoError(t, err)

	errBoom := errors.New("connection reset")
	store.balanceErr = errBoom

	_, err = svc.Commit(ctx, order.ID, 0)
	require.ErrorIs(t, err, errBoom)
	require.NotErrorIs(t, err, ErrTransferValidation)

	store.balanceErr = nil
	got, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderPending, got.Status)
	require.Empty(t, store.movements)
}

func TestCommitUnknownSerialFailsValidation(t *testing.T) {
	store := newMemoryStore()
	store.seedBalance(1, 1, 30, "4.00")
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	order, err := svc.Request(ctx, RequestInput{
		FromLocationID: 1,
		ToLocationID:   2,
		Lines:          []LineInput{{ProductID: 1, Qty: 1, SerialIDs: []int64{404}}},
	})
	require.NoError(t, err)

	_, err = svc.Commit(ctx, order.ID, 0)
	require.ErrorIs(t, err, ErrTransferValidation)
}
