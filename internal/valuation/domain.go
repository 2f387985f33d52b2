package valuation

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// CostMethod selects how on-hand stock is priced.
type CostMethod string

const (
	// MethodWeightedAverage prices stock at the receipt-weighted average cost.
	MethodWeightedAverage CostMethod = "WEIGHTED_AVERAGE"
	// MethodFIFO prices stock by walking remaining lots oldest first.
	MethodFIFO CostMethod = "FIFO"
)

// Known reports whether the method is supported.
func (m CostMethod) Known() bool {
	return m == MethodWeightedAverage || m == MethodFIFO
}

// Valuation prices the on-hand quantity of one product at one location.
type Valuation struct {
	ProductID  int64
	LocationID int64
	Method     CostMethod
	OnHand     int64
	UnitCost   decimal.Decimal
	Value      decimal.Decimal
	ComputedAt time.Time
}

// ErrUnknownCostingMethod indicates an unsupported cost method.
var ErrUnknownCostingMethod = errors.New("valuation: unknown costing method")
