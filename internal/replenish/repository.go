package replenish

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads demand history, balances and planner policies.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DemandTotal sums units sold since the cutoff. Returns are deliberately not
// netted out; demand measures what left the shelf.
func (r *Repository) DemandTotal(ctx context.Context, productID, locationID int64, since time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(-SUM(delta), 0) FROM stock_movements
WHERE product_id=$1 AND location_id=$2 AND reason='SALE' AND created_at >= $3`,
		productID, locationID, since).Scan(&total)
	return total, err
}

// GetBalance reads the on-hand snapshot. A missing row reports zero.
func (r *Repository) GetBalance(ctx context.Context, productID, locationID int64) (int64, decimal.Decimal, error) {
	var onHand int64
	var avgCost decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT on_hand, avg_cost FROM stock_balances
WHERE product_id=$1 AND location_id=$2`, productID, locationID).Scan(&onHand, &avgCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, decimal.Zero, nil
		}
		return 0, decimal.Zero, err
	}
	return onHand, avgCost, nil
}

// GetPolicy reads the per-position override, reporting whether one exists.
func (r *Repository) GetPolicy(ctx context.Context, productID, locationID int64) (Policy, bool, error) {
	var policy Policy
	err := r.pool.QueryRow(ctx, `SELECT product_id, location_id, safety_days, lead_time_days, min_order_qty
FROM replenish_policies WHERE product_id=$1 AND location_id=$2`, productID, locationID).
		Scan(&policy.ProductID, &policy.LocationID, &policy.SafetyDays, &policy.LeadTimeDays, &policy.MinOrderQty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, false, nil
		}
		return Policy{}, false, err
	}
	return policy, true, nil
}

// StockedPairs lists every position with stock on hand for the refresh sweep.
func (r *Repository) StockedPairs(ctx context.Context) ([]Pair, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, location_id FROM stock_balances
WHERE on_hand > 0 ORDER BY product_id, location_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pairs []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.ProductID, &p.LocationID); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}
