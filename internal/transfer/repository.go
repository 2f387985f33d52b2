package transfer

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian/internal/ledger"
	"github.com/meridian-pos/meridian/internal/lots"
	"github.com/meridian-pos/meridian/internal/platform/db"
)

// Repository persists transfer orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository embeds the ledger posting operations so order execution and
// stock movements commit or roll back together.
type TxRepository interface {
	ledger.TxRepository
	InsertOrder(ctx context.Context, order Order) (int64, error)
	InsertLines(ctx context.Context, orderID int64, lines []Line) error
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	UpsertLotLocation(ctx context.Context, lotID, locationID, delta int64) error
	RehomeSerial(ctx context.Context, serialID, locationID int64) error
}

type txRepository struct {
	ledger.TxRepository
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("transfer repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: ledger.NewTxRepository(tx), tx: tx})
	})
}

// GetOnHand reads the unlocked on-hand quantity for the request-time check.
func (r *Repository) GetOnHand(ctx context.Context, productID, locationID int64) (int64, error) {
	var onHand int64
	err := r.pool.QueryRow(ctx, `SELECT on_hand FROM stock_balances WHERE product_id=$1 AND location_id=$2`,
		productID, locationID).Scan(&onHand)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return onHand, nil
}

const orderColumns = `id, code, from_location_id, to_location_id, status, notes, created_by, created_at, updated_at`

// GetOrder fetches an order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM transfer_orders WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	order.Lines, err = r.loadLines(ctx, r.pool, id)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// ListOrders returns orders newest first.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM transfer_orders
WHERE ($1 = '' OR status = $1)
  AND ($2 = 0 OR from_location_id = $2 OR to_location_id = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3`, string(filter.Status), filter.LocationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) loadLines(ctx context.Context, q queryer, orderID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, qty, lot_id, serial_ids
FROM transfer_lines WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

func (r *txRepository) InsertOrder(ctx context.Context, order Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transfer_orders (code, from_location_id, to_location_id, status, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id`,
		order.Code, order.FromLocationID, order.ToLocationID, string(order.Status), order.Notes, nullInt(order.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLines(ctx context.Context, orderID int64, lines []Line) error {
	for _, line := range lines {
		_, err := r.tx.Exec(ctx, `INSERT INTO transfer_lines (order_id, product_id, qty, lot_id, serial_ids)
VALUES ($1,$2,$3,$4,$5)`, orderID, line.ProductID, line.Qty, line.LotID, line.SerialIDs)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	order, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM transfer_orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, order_id, product_id, qty, lot_id, serial_ids
FROM transfer_lines WHERE order_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	order.Lines, err = collectLines(rows)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (r *txRepository) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transfer_orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *txRepository) UpsertLotLocation(ctx context.Context, lotID, locationID, delta int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO lot_locations (lot_id, location_id, qty)
VALUES ($1,$2,$3)
ON CONFLICT (lot_id, location_id) DO UPDATE SET qty = lot_locations.qty + EXCLUDED.qty`,
		lotID, locationID, delta)
	return err
}

func (r *txRepository) RehomeSerial(ctx context.Context, serialID, locationID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE serial_units SET location_id=$2, updated_at=NOW() WHERE id=$1`, serialID, locationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lots.ErrSerialNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var order Order
	var notes, createdBy any
	err := row.Scan(&order.ID, &order.Code, &order.FromLocationID, &order.ToLocationID,
		&order.Status, &notes, &createdBy, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if s, ok := notes.(string); ok {
		order.Notes = s
	}
	if n, ok := createdBy.(int64); ok {
		order.CreatedBy = n
	}
	return order, nil
}

func collectLines(rows pgx.Rows) ([]Line, error) {
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Qty, &line.LotID, &line.SerialIDs); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
