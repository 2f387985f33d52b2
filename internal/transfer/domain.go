package transfer

import (
	"errors"
	"time"
)

// OrderStatus tracks the transfer lifecycle.
type OrderStatus string

const (
	// OrderPending is requested but not yet executed. Stock has not moved.
	OrderPending OrderStatus = "PENDING"
	// OrderCommitted executed atomically. Stock has moved.
	OrderCommitted OrderStatus = "COMMITTED"
	// OrderCancelled was withdrawn before execution.
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order moves stock between two locations. Until commit it is only intent.
type Order struct {
	ID             int64
	Code           string
	FromLocationID int64
	ToLocationID   int64
	Status         OrderStatus
	Notes          string
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []Line
}

// Line is one product position on a transfer order. LotID pins the moved
// quantity to a batch; SerialIDs re-home individually tracked units.
type Line struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Qty       int64
	LotID     *int64
	SerialIDs []int64
}

// RequestInput describes a new transfer order.
type RequestInput struct {
	FromLocationID int64
	ToLocationID   int64
	Notes          string
	Lines          []LineInput
	ActorID        int64
}

// LineInput is one requested line.
type LineInput struct {
	ProductID int64
	Qty       int64
	LotID     *int64
	SerialIDs []int64
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status     OrderStatus
	LocationID int64
	Limit      int
}

// ErrTransferValidation indicates the order cannot execute as requested. The
// order stays PENDING.
var ErrTransferValidation = errors.New("transfer: validation failed")

// ErrInvalidTransferState indicates a lifecycle operation against an order
// that already left PENDING.
var ErrInvalidTransferState = errors.New("transfer: order is not pending")

// ErrOrderNotFound indicates a missing order.
var ErrOrderNotFound = errors.New("transfer: order not found")
