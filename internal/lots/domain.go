package lots

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LotStatus tracks the lifecycle of a batch.
type LotStatus string

const (
	// LotActive has remaining quantity available for consumption.
	LotActive LotStatus = "ACTIVE"
	// LotDepleted has no remaining quantity.
	LotDepleted LotStatus = "DEPLETED"
	// LotExpired passed its expiry date with quantity remaining.
	LotExpired LotStatus = "EXPIRED"
)

// SerialStatus tracks the lifecycle of an individually tracked unit.
type SerialStatus string

const (
	SerialInStock   SerialStatus = "IN_STOCK"
	SerialReserved  SerialStatus = "RESERVED"
	SerialSold      SerialStatus = "SOLD"
	SerialDefective SerialStatus = "DEFECTIVE"
	SerialReturned  SerialStatus = "RETURNED"
)

// Known reports whether the serial status is part of the taxonomy.
func (s SerialStatus) Known() bool {
	switch s {
	case SerialInStock, SerialReserved, SerialSold, SerialDefective, SerialReturned:
		return true
	}
	return false
}

// Lot is a fungible batch of units received together, sharing cost and expiry.
type Lot struct {
	ID             int64
	ProductID      int64
	LotNumber      string
	InitialQty     int64
	RemainingQty   int64
	UnitCost       decimal.Decimal
	ManufacturedAt *time.Time
	ExpiresAt      *time.Time
	Status         LotStatus
	CreatedAt      time.Time
}

// ExpiresWithin reports whether the lot expires inside the threshold.
func (l Lot) ExpiresWithin(now time.Time, threshold time.Duration) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return l.ExpiresAt.Before(now.Add(threshold))
}

// SerialUnit is an individually tracked unit with its own lifecycle state.
// Its location must always agree with the balance it contributes to.
type SerialUnit struct {
	ID           int64
	ProductID    int64
	SerialNumber string
	LotNumber    string
	LocationID   int64
	Status       SerialStatus
	UpdatedAt    time.Time
}

// LotLocation records how much of a lot sits at a location, written when
// transfers re-home batch quantity.
type LotLocation struct {
	LotID      int64
	LocationID int64
	Qty        int64
}

// CreateLotInput describes a new batch.
type CreateLotInput struct {
	ProductID      int64
	LotNumber      string
	Quantity       int64
	UnitCost       decimal.Decimal
	ManufacturedAt *time.Time
	ExpiresAt      *time.Time
}

// TrackSerialInput registers a serial unit.
type TrackSerialInput struct {
	ProductID    int64
	SerialNumber string
	LotNumber    string
	LocationID   int64
	Status       SerialStatus
}

// ErrLotDepleted is returned when consumption exceeds remaining quantity.
var ErrLotDepleted = errors.New("lots: insufficient remaining quantity")

// ErrDuplicateLot indicates the lot number already exists for the product.
var ErrDuplicateLot = errors.New("lots: lot number already tracked")

// ErrDuplicateSerial indicates the serial is already tracked for the product.
var ErrDuplicateSerial = errors.New("lots: serial number already tracked")

// ErrLotOvercredit indicates a re-credit that would exceed the initial quantity.
var ErrLotOvercredit = errors.New("lots: credit exceeds initial quantity")

// ErrLotNotFound indicates a missing lot row.
var ErrLotNotFound = errors.New("lots: lot not found")

// ErrSerialNotFound indicates a missing serial row.
var ErrSerialNotFound = errors.New("lots: serial not found")

// ErrInvalidSerialStatus indicates an unknown lifecycle state.
var ErrInvalidSerialStatus = errors.New("lots: invalid serial status")
