package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian/internal/lots"
	"github.com/meridian-pos/meridian/internal/platform/db"
)

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations the posting path uses.
// Balance mutation and movement append always share one transaction.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, productID, locationID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	InsertLot(ctx context.Context, lot lots.Lot) (int64, error)
	ConsumeLot(ctx context.Context, lotID, qty int64) error
	CreditLot(ctx context.Context, lotID, qty int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an already open transaction so other modules can post
// movements atomically with their own writes.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// ErrBalanceNotFound indicates a missing balance row.
var ErrBalanceNotFound = errors.New("ledger: balance not found")

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetBalance reads a balance row. A product with no row reports zero
// quantities, not an error.
func (r *Repository) GetBalance(ctx context.Context, productID, locationID int64) (Balance, error) {
	var bal Balance
	err := r.pool.QueryRow(ctx, `SELECT product_id, location_id, on_hand, reserved, avg_cost, updated_at
FROM stock_balances WHERE product_id=$1 AND location_id=$2`, productID, locationID).
		Scan(&bal.ProductID, &bal.LocationID, &bal.OnHand, &bal.Reserved, &bal.AvgCost, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ProductID: productID, LocationID: locationID}, nil
		}
		return Balance{}, err
	}
	return bal, nil
}

// CountMovements reports how many movements match the filter, for pagination.
func (r *Repository) CountMovements(ctx context.Context, filter MovementFilter) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements
WHERE product_id=$1 AND location_id=$2 AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')`,
		filter.ProductID, filter.LocationID, nullTime(filter.From), nullTime(filter.To)).Scan(&total)
	return total, err
}

// ListMovements returns one page of the movement log for a (product, location)
// pair in chronological order. Page and PerPage must be normalised by the
// caller.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	offset := (filter.Page - 1) * filter.PerPage
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, location_id, delta, reason, ref_type, ref_id, unit_cost, lot_id, created_by, created_at
FROM stock_movements
WHERE product_id=$1 AND location_id=$2 AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY created_at ASC, id ASC
LIMIT $5 OFFSET $6`, filter.ProductID, filter.LocationID, nullTime(filter.From), nullTime(filter.To), filter.PerPage, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var refID *string
		if err := rows.Scan(&m.ID, &m.ProductID, &m.LocationID, &m.Delta, &m.Reason, &m.RefType, &refID, &m.UnitCost, &m.LotID, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		if refID != nil {
			m.RefID = *refID
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, productID, locationID int64) (Balance, error) {
	var bal Balance
	err := r.tx.QueryRow(ctx, `SELECT product_id, location_id, on_hand, reserved, avg_cost, updated_at
FROM stock_balances WHERE product_id=$1 AND location_id=$2 FOR UPDATE`, productID, locationID).
		Scan(&bal.ProductID, &bal.LocationID, &bal.OnHand, &bal.Reserved, &bal.AvgCost, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ProductID: productID, LocationID: locationID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (product_id, location_id, on_hand, reserved, avg_cost, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (product_id, location_id) DO UPDATE SET on_hand=EXCLUDED.on_hand, reserved=EXCLUDED.reserved, avg_cost=EXCLUDED.avg_cost, updated_at=NOW()`,
		balance.ProductID, balance.LocationID, balance.OnHand, balance.Reserved, balance.AvgCost)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, location_id, delta, reason, ref_type, ref_id, unit_cost, lot_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		m.ProductID, m.LocationID, m.Delta, string(m.Reason), m.RefType, nullString(m.RefID), m.UnitCost, m.LotID, nullInt(m.CreatedBy), m.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLot(ctx context.Context, lot lots.Lot) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO lots (product_id, lot_number, initial_qty, remaining_qty, unit_cost, manufactured_at, expires_at, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		lot.ProductID, lot.LotNumber, lot.InitialQty, lot.RemainingQty, lot.UnitCost, lot.ManufacturedAt, lot.ExpiresAt, string(lot.Status)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, lots.ErrDuplicateLot
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) ConsumeLot(ctx context.Context, lotID, qty int64) error {
	var remaining int64
	err := r.tx.QueryRow(ctx, `SELECT remaining_qty FROM lots WHERE id=$1 FOR UPDATE`, lotID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lots.ErrLotNotFound
		}
		return err
	}
	if remaining < qty {
		return lots.ErrLotDepleted
	}
	_, err = r.tx.Exec(ctx, `UPDATE lots SET remaining_qty = remaining_qty - $2,
status = CASE WHEN remaining_qty - $2 <= 0 THEN 'DEPLETED' ELSE status END
WHERE id=$1`, lotID, qty)
	return err
}

func (r *txRepository) CreditLot(ctx context.Context, lotID, qty int64) error {
	var initial, remaining int64
	err := r.tx.QueryRow(ctx, `SELECT initial_qty, remaining_qty FROM lots WHERE id=$1 FOR UPDATE`, lotID).Scan(&initial, &remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lots.ErrLotNotFound
		}
		return err
	}
	if remaining+qty > initial {
		return lots.ErrLotOvercredit
	}
	_, err = r.tx.Exec(ctx, `UPDATE lots SET remaining_qty = remaining_qty + $2,
status = CASE WHEN status = 'DEPLETED' AND $2 > 0 THEN 'ACTIVE' ELSE status END
WHERE id=$1`, lotID, qty)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
