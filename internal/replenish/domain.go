package replenish

import (
	"time"

	"github.com/shopspring/decimal"
)

// Priority ranks how urgently a recommendation should be acted on.
type Priority string

const (
	// PriorityHigh means on-hand already fell to or below safety stock.
	PriorityHigh Priority = "HIGH"
	// PriorityMedium means on-hand sits in the lower half of the reorder band.
	PriorityMedium Priority = "MEDIUM"
	// PriorityLow means on-hand is near the reorder point.
	PriorityLow Priority = "LOW"
)

// Recommendation is a suggested purchase for one product at one location.
type Recommendation struct {
	ProductID      int64           `json:"product_id"`
	LocationID     int64           `json:"location_id"`
	OnHand         int64           `json:"on_hand"`
	AvgDailyDemand decimal.Decimal `json:"avg_daily_demand"`
	SafetyStock    int64           `json:"safety_stock"`
	ReorderPoint   int64           `json:"reorder_point"`
	OrderQuantity  int64           `json:"order_quantity"`
	Priority       Priority        `json:"priority"`
	ComputedAt     time.Time       `json:"computed_at"`
}

// Policy overrides the planner defaults for one product at one location.
type Policy struct {
	ProductID    int64
	LocationID   int64
	SafetyDays   int
	LeadTimeDays int
	MinOrderQty  int64
}

// Pair identifies a stocked product position for the refresh sweep.
type Pair struct {
	ProductID  int64
	LocationID int64
}

// Params carries the planner defaults, overridable per position by Policy.
type Params struct {
	SafetyDays      int
	LeadTimeDays    int
	LookbackDays    int
	OrderingCost    decimal.Decimal
	HoldingCostRate decimal.Decimal
	CacheTTL        time.Duration
}
