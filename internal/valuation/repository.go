package valuation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/lots"
)

// Repository reads the ledger and lot registry. Valuation never writes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// BalanceSnapshot is the priced quantity input to a valuation.
type BalanceSnapshot struct {
	OnHand  int64
	AvgCost decimal.Decimal
}

// GetBalance reads the on-hand snapshot. A missing row reports zero.
func (r *Repository) GetBalance(ctx context.Context, productID, locationID int64) (BalanceSnapshot, error) {
	var snap BalanceSnapshot
	err := r.pool.QueryRow(ctx, `SELECT on_hand, avg_cost FROM stock_balances
WHERE product_id=$1 AND location_id=$2`, productID, locationID).Scan(&snap.OnHand, &snap.AvgCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BalanceSnapshot{AvgCost: decimal.Zero}, nil
		}
		return BalanceSnapshot{}, err
	}
	return snap, nil
}

// RemainingLots returns lots with quantity left, oldest receipt first. Ties on
// created_at break on lot_number so replays price identically.
func (r *Repository) RemainingLots(ctx context.Context, productID int64) ([]lots.Lot, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, lot_number, initial_qty, remaining_qty, unit_cost, manufactured_at, expires_at, status, created_at
FROM lots WHERE product_id=$1 AND remaining_qty > 0
ORDER BY created_at ASC, lot_number ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []lots.Lot
	for rows.Next() {
		var lot lots.Lot
		if err := rows.Scan(&lot.ID, &lot.ProductID, &lot.LotNumber, &lot.InitialQty, &lot.RemainingQty,
			&lot.UnitCost, &lot.ManufacturedAt, &lot.ExpiresAt, &lot.Status, &lot.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, lot)
	}
	return result, rows.Err()
}

// ReceiptTotals aggregates received quantity and value from the movement log.
func (r *Repository) ReceiptTotals(ctx context.Context, productID, locationID int64) (int64, decimal.Decimal, error) {
	var qty int64
	var value decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(delta), 0), COALESCE(SUM(delta * unit_cost), 0)
FROM stock_movements
WHERE product_id=$1 AND location_id=$2 AND reason='RECEIPT'`, productID, locationID).Scan(&qty, &value)
	if err != nil {
		return 0, decimal.Zero, err
	}
	return qty, value, nil
}
