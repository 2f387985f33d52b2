package lots

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/meridian-pos/meridian/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	InsertLot(ctx context.Context, lot Lot) (int64, error)
	GetLot(ctx context.Context, id int64) (Lot, error)
	ListLots(ctx context.Context, productID int64) ([]Lot, error)
	ListExpiring(ctx context.Context, cutoff time.Time) ([]Lot, error)
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	ListLotLocations(ctx context.Context, lotID int64) ([]LotLocation, error)
	InsertSerial(ctx context.Context, unit SerialUnit) (int64, error)
	GetSerial(ctx context.Context, id int64) (SerialUnit, error)
	UpdateSerial(ctx context.Context, id int64, status SerialStatus, locationID *int64) error
	ListSerials(ctx context.Context, productID, locationID int64) ([]SerialUnit, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the lot and serial registry.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// serialTransitions lists the reachable states from each lifecycle state.
var serialTransitions = map[SerialStatus][]SerialStatus{
	SerialInStock:   {SerialReserved, SerialSold, SerialDefective},
	SerialReserved:  {SerialInStock, SerialSold},
	SerialSold:      {SerialReturned},
	SerialReturned:  {SerialInStock, SerialDefective},
	SerialDefective: {},
}

func transitionAllowed(from, to SerialStatus) bool {
	for _, next := range serialTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateLot registers a batch outside the receiving flow, for backfills and
// opening balances.
func (s *Service) CreateLot(ctx context.Context, input CreateLotInput, actorID int64) (Lot, error) {
	if input.ProductID == 0 || input.LotNumber == "" {
		return Lot{}, errors.New("lots: product and lot number required")
	}
	if input.Quantity <= 0 {
		return Lot{}, errors.New("lots: quantity must be positive")
	}
	lot := Lot{
		ProductID:      input.ProductID,
		LotNumber:      input.LotNumber,
		InitialQty:     input.Quantity,
		RemainingQty:   input.Quantity,
		UnitCost:       input.UnitCost,
		ManufacturedAt: input.ManufacturedAt,
		ExpiresAt:      input.ExpiresAt,
		Status:         LotActive,
	}
	id, err := s.repo.InsertLot(ctx, lot)
	if err != nil {
		return Lot{}, err
	}
	lot.ID = id
	s.record(ctx, actorID, "lots:create", "lot", id, map[string]any{
		"product_id": input.ProductID,
		"lot_number": input.LotNumber,
		"quantity":   input.Quantity,
	})
	return lot, nil
}

// GetLot fetches a lot by id.
func (s *Service) GetLot(ctx context.Context, id int64) (Lot, error) {
	return s.repo.GetLot(ctx, id)
}

// ListLots returns the lots for a product, oldest first.
func (s *Service) ListLots(ctx context.Context, productID int64) ([]Lot, error) {
	if productID == 0 {
		return nil, errors.New("lots: product required")
	}
	return s.repo.ListLots(ctx, productID)
}

// LotLocations reports where a lot's quantity currently sits.
func (s *Service) LotLocations(ctx context.Context, lotID int64) ([]LotLocation, error) {
	if _, err := s.repo.GetLot(ctx, lotID); err != nil {
		return nil, err
	}
	return s.repo.ListLotLocations(ctx, lotID)
}

// ExpiringLots returns active lots expiring within the window.
func (s *Service) ExpiringLots(ctx context.Context, within time.Duration) ([]Lot, error) {
	if within <= 0 {
		return nil, errors.New("lots: window must be positive")
	}
	return s.repo.ListExpiring(ctx, time.Now().UTC().Add(within))
}

// MarkExpired flips active lots past their expiry date to EXPIRED. Expired
// quantity stays on hand until an adjustment or count removes it.
func (s *Service) MarkExpired(ctx context.Context) (int64, error) {
	return s.repo.MarkExpired(ctx, time.Now().UTC())
}

// TrackSerial registers an individually tracked unit.
func (s *Service) TrackSerial(ctx context.Context, input TrackSerialInput, actorID int64) (SerialUnit, error) {
	if input.ProductID == 0 || input.SerialNumber == "" || input.LocationID == 0 {
		return SerialUnit{}, errors.New("lots: product, serial number and location required")
	}
	status := input.Status
	if status == "" {
		status = SerialInStock
	}
	if !status.Known() {
		return SerialUnit{}, fmt.Errorf("%w: %q", ErrInvalidSerialStatus, status)
	}
	unit := SerialUnit{
		ProductID:    input.ProductID,
		SerialNumber: input.SerialNumber,
		LotNumber:    input.LotNumber,
		LocationID:   input.LocationID,
		Status:       status,
	}
	id, err := s.repo.InsertSerial(ctx, unit)
	if err != nil {
		return SerialUnit{}, err
	}
	unit.ID = id
	s.record(ctx, actorID, "lots:track_serial", "serial_unit", id, map[string]any{
		"product_id":    input.ProductID,
		"serial_number": input.SerialNumber,
		"location_id":   input.LocationID,
	})
	return unit, nil
}

// UpdateSerialStatus moves a serial unit through its lifecycle, optionally
// re-homing it to a new location in the same write.
func (s *Service) UpdateSerialStatus(ctx context.Context, id int64, status SerialStatus, locationID *int64, actorID int64) (SerialUnit, error) {
	if !status.Known() {
		return SerialUnit{}, fmt.Errorf("%w: %q", ErrInvalidSerialStatus, status)
	}
	unit, err := s.repo.GetSerial(ctx, id)
	if err != nil {
		return SerialUnit{}, err
	}
	if unit.Status != status && !transitionAllowed(unit.Status, status) {
		return SerialUnit{}, fmt.Errorf("%w: %s cannot move to %s", ErrInvalidSerialStatus, unit.Status, status)
	}
	if err := s.repo.UpdateSerial(ctx, id, status, locationID); err != nil {
		return SerialUnit{}, err
	}
	unit.Status = status
	if locationID != nil {
		unit.LocationID = *locationID
	}
	s.record(ctx, actorID, "lots:serial_status", "serial_unit", id, map[string]any{
		"status":      string(status),
		"location_id": unit.LocationID,
	})
	return unit, nil
}

// ListSerials returns serial units for a product, optionally narrowed to one
// location.
func (s *Service) ListSerials(ctx context.Context, productID, locationID int64) ([]SerialUnit, error) {
	if productID == 0 {
		return nil, errors.New("lots: product required")
	}
	return s.repo.ListSerials(ctx, productID, locationID)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}
