package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ReasonCode enumerates the causes of a stock movement.
type ReasonCode string

const (
	// ReasonSale is a checkout deduction.
	ReasonSale ReasonCode = "SALE"
	// ReasonReturn credits stock back from returns processing.
	ReasonReturn ReasonCode = "RETURN"
	// ReasonReceipt is inbound stock from a purchase receipt.
	ReasonReceipt ReasonCode = "RECEIPT"
	// ReasonAdjustment is a manual correction.
	ReasonAdjustment ReasonCode = "ADJUSTMENT"
	// ReasonTransferOut is the source side of a location transfer.
	ReasonTransferOut ReasonCode = "TRANSFER_OUT"
	// ReasonTransferIn is the destination side of a location transfer.
	ReasonTransferIn ReasonCode = "TRANSFER_IN"
	// ReasonCountCorrection reconciles a physical count.
	ReasonCountCorrection ReasonCode = "COUNT_CORRECTION"
)

// Known reports whether the reason code is part of the taxonomy.
func (r ReasonCode) Known() bool {
	switch r {
	case ReasonSale, ReasonReturn, ReasonReceipt, ReasonAdjustment,
		ReasonTransferOut, ReasonTransferIn, ReasonCountCorrection:
		return true
	}
	return false
}

// Balance summarises on-hand stock per (product, location). It is derived
// state: every change is mirrored by exactly one Movement.
type Balance struct {
	ProductID  int64
	LocationID int64
	OnHand     int64
	Reserved   int64
	AvgCost    decimal.Decimal
	UpdatedAt  time.Time
}

// Movement is one immutable entry in the stock ledger. Created once, never
// updated or deleted.
type Movement struct {
	ID         int64
	ProductID  int64
	LocationID int64
	Delta      int64
	Reason     ReasonCode
	RefType    string
	RefID      string
	UnitCost   decimal.Decimal
	LotID      *int64
	CreatedBy  int64
	CreatedAt  time.Time
}

// MovementInput describes a requested quantity change.
type MovementInput struct {
	ProductID  int64
	LocationID int64
	Delta      int64
	Reason     ReasonCode
	RefType    string
	RefID      string
	UnitCost   decimal.Decimal
	LotID      *int64
	// AllowNegative permits an ADJUSTMENT to record a shortfall below zero.
	AllowNegative bool
	ActorID       int64
}

// ReceiveInput describes an inbound purchase receipt, optionally opening a lot.
type ReceiveInput struct {
	ProductID      int64
	LocationID     int64
	Quantity       int64
	UnitCost       decimal.Decimal
	LotNumber      string
	ManufacturedAt *time.Time
	ExpiresAt      *time.Time
	RefID          string
	ActorID        int64
}

// CountLine is one row of a physical count at a location.
type CountLine struct {
	ProductID int64
	Counted   int64
	Notes     string
}

// MovementFilter narrows the movement log listing.
type MovementFilter struct {
	ProductID  int64
	LocationID int64
	From       time.Time
	To         time.Time
	Page       int
	PerPage    int
}

// ErrInsufficientStock is returned when a decrement exceeds on-hand quantity.
var ErrInsufficientStock = errors.New("ledger: insufficient stock")

// ErrInvalidReason indicates a missing required field for the reason code.
var ErrInvalidReason = errors.New("ledger: invalid reason")

// ErrInvalidQuantity indicates a zero delta or non-positive quantity.
var ErrInvalidQuantity = errors.New("ledger: quantity must be non zero")
