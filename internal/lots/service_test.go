package lots

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRegistry struct {
	lots          map[int64]Lot
	serials       map[int64]SerialUnit
	lotLocations  map[int64][]LotLocation
	lotNumbers    map[string]bool
	serialNumbers map[string]bool
	nextLotID     int64
	nextSerialID  int64
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{
		lots:          make(map[int64]Lot),
		serials:       make(map[int64]SerialUnit),
		lotLocations:  make(map[int64][]LotLocation),
		lotNumbers:    make(map[string]bool),
		serialNumbers: make(map[string]bool),
	}
}

func (r *memoryRegistry) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	key := fmt.Sprintf("%d:%s", lot.ProductID, lot.LotNumber)
	if r.lotNumbers[key] {
		return 0, ErrDuplicateLot
	}
	r.nextLotID++
	lot.ID = r.nextLotID
	lot.CreatedAt = time.Now().UTC()
	r.lots[lot.ID] = lot
	r.lotNumbers[key] = true
	return lot.ID, nil
}

func (r *memoryRegistry) GetLot(ctx context.Context, id int64) (Lot, error) {
	if lot, ok := r.lots[id]; ok {
		return lot, nil
	}
	return Lot{}, ErrLotNotFound
}

func (r *memoryRegistry) ListLots(ctx context.Context, productID int64) ([]Lot, error) {
	var result []Lot
	for id := int64(1); id <= r.nextLotID; id++ {
		if lot, ok := r.lots[id]; ok && lot.ProductID == productID {
			result = append(result, lot)
		}
	}
	return result, nil
}

func (r *memoryRegistry) ListExpiring(ctx context.Context, cutoff time.Time) ([]Lot, error) {
	var result []Lot
	for id := int64(1); id <= r.nextLotID; id++ {
		lot, ok := r.lots[id]
		if !ok || lot.Status != LotActive || lot.RemainingQty == 0 || lot.ExpiresAt == nil {
			continue
		}
		if lot.ExpiresAt.Before(cutoff) {
			result = append(result, lot)
		}
	}
	return result, nil
}

func (r *memoryRegistry) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	var affected int64
	for id, lot := range r.lots {
		if lot.Status == LotActive && lot.ExpiresAt != nil && lot.ExpiresAt.Before(now) {
			lot.Status = LotExpired
			r.lots[id] = lot
			affected++
		}
	}
	return affected, nil
}

func (r *memoryRegistry) ListLotLocations(ctx context.Context, lotID int64) ([]LotLocation, error) {
	return r.lotLocations[lotID], nil
}

func (r *memoryRegistry) InsertSerial(ctx context.Context, unit SerialUnit) (int64, error) {
	key := fmt.Sprintf("%d:%s", unit.ProductID, unit.SerialNumber)
	if r.serialNumbers[key] {
		return 0, ErrDuplicateSerial
	}
	r.nextSerialID++
	unit.ID = r.nextSerialID
	unit.UpdatedAt = time.Now().UTC()
	r.serials[unit.ID] = unit
	r.serialNumbers[key] = true
	return unit.ID, nil
}

func (r *memoryRegistry) GetSerial(ctx context.Context, id int64) (SerialUnit, error) {
	if unit, ok := r.serials[id]; ok {
		return unit, nil
	}
	return SerialUnit{}, ErrSerialNotFound
}

func (r *memoryRegistry) UpdateSerial(ctx context.Context, id int64, status SerialStatus, locationID *int64) error {
	unit, ok := r.serials[id]
	if !ok {
		return ErrSerialNotFound
	}
	unit.Status = status
	if locationID != nil {
		unit.LocationID = *locationID
	}
	unit.UpdatedAt = time.Now().UTC()
	r.serials[id] = unit
	return nil
}

func (r *memoryRegistry) ListSerials(ctx context.Context, productID, locationID int64) ([]SerialUnit, error) {
	var result []SerialUnit
	for id := int64(1); id <= r.nextSerialID; id++ {
		unit, ok := r.serials[id]
		if !ok || unit.ProductID != productID {
			continue
		}
		if locationID != 0 && unit.LocationID != locationID {
			continue
		}
		result = append(result, unit)
	}
	return result, nil
}

func timePtr(t time.Time) *time.Time { return &t }

func TestCreateLotRejectsDuplicates(t *testing.T) {
	svc := NewService(newMemoryRegistry(), nil)
	ctx := context.Background()

	lot, err := svc.CreateLot(ctx, CreateLotInput{ProductID: 1, LotNumber: "LOT-1", Quantity: 20, UnitCost: decimal.NewFromInt(3)}, 0)
	require.NoError(t, err)
	require.Equal(t, int64(20), lot.RemainingQty)
	require.Equal(t, LotActive, lot.Status)

	_, err = svc.CreateLot(ctx, CreateLotInput{ProductID: 1, LotNumber: "LOT-1", Quantity: 5}, 0)
	require.ErrorIs(t, err, ErrDuplicateLot)

	lot, err = svc.CreateLot(ctx, CreateLotInput{ProductID: 2, LotNumber: "LOT-1", Quantity: 5}, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), lot.ID)
}

func TestExpiringLots(t *testing.T) {
	repo := newMemoryRegistry()
	svc := NewService(repo, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := svc.CreateLot(ctx, CreateLotInput{ProductID: 1, LotNumber: "SOON", Quantity: 10, ExpiresAt: timePtr(now.Add(5 * 24 * time.Hour))}, 0)
	require.NoError(t, err)
	_, err = svc.CreateLot(ctx, CreateLotInput{ProductID: 1, LotNumber: "LATER", Quantity: 10, ExpiresAt: timePtr(now.Add(90 * 24 * time.Hour))}, 0)
	require.NoError(t, err)
	_, err = svc.CreateLot(ctx, CreateLotInput{ProductID: 1, LotNumber: "NEVER", Quantity: 10}, 0)
	require.NoError(t, err)

	expiring, err := svc.ExpiringLots(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	require.Equal(t, "SOON", expiring[0].LotNumber)
}

func TestMarkExpired(t *testing.T) {
	repo := newMemoryRegistry()
	svc := NewService(repo, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := svc.CreateLot(ctx, CreateLotInput{ProductID: 1, LotNumber: "PAST", Quantity: 10, ExpiresAt: timePtr(now.Add(-24 * time.Hour))}, 0)
	require.NoError(t, err)
	_, err = svc.CreateLot(ctx, CreateLotInput{ProductID: 1, LotNumber: "FUTURE", Quantity: 10, ExpiresAt: timePtr(now.Add(24 * time.Hour))}, 0)
	require.NoError(t, err)

	affected, err := svc.MarkExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	lot, err := svc.GetLot(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, LotExpired, lot.Status)
}

func TestTrackSerial(t *testing.T) {
	svc := NewService(newMemoryRegistry(), nil)
	ctx := context.Background()

	unit, err := svc.TrackSerial(ctx, TrackSerialInput{ProductID: 1, SerialNumber: "SN-1", LocationID: 2}, 0)
	require.NoError(t, err)
	require.Equal(t, SerialInStock, unit.Status)

	_, err = svc.TrackSerial(ctx, TrackSerialInput{ProductID: 1, SerialNumber: "SN-1", LocationID: 2}, 0)
	require.ErrorIs(t, err, ErrDuplicateSerial)

	_, err = svc.TrackSerial(ctx, TrackSerialInput{ProductID: 1, SerialNumber: "SN-2", LocationID: 2, Status: "LOST"}, 0)
	require.ErrorIs(t, err, ErrInvalidSerialStatus)
}

func TestSerialLifecycle(t *testing.T) {
	svc := NewService(newMemoryRegistry(), nil)
	ctx := context.Background()

	unit, err := svc.TrackSerial(ctx, TrackSerialInput{ProductID: 1, SerialNumber: "SN-1", LocationID: 2}, 0)
	require.NoError(t, err)

	unit, err = svc.UpdateSerialStatus(ctx, unit.ID, SerialSold, nil, 0)
	require.NoError(t, err)
	require.Equal(t, SerialSold, unit.Status)

	_, err = svc.UpdateSerialStatus(ctx, unit.ID, SerialReserved, nil, 0)
	require.ErrorIs(t, err, ErrInvalidSerialStatus)

	newLoc := int64(5)
	unit, err = svc.UpdateSerialStatus(ctx, unit.ID, SerialReturned, &newLoc, 0)
	require.NoError(t, err)
	require.Equal(t, SerialReturned, unit.Status)
	require.Equal(t, int64(5), unit.LocationID)
}
