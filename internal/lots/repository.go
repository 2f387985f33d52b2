package lots

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the lot and serial registry in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const lotColumns = `id, product_id, lot_number, initial_qty, remaining_qty, unit_cost, manufactured_at, expires_at, status, created_at`

func scanLot(row pgx.Row) (Lot, error) {
	var lot Lot
	err := row.Scan(&lot.ID, &lot.ProductID, &lot.LotNumber, &lot.InitialQty, &lot.RemainingQty,
		&lot.UnitCost, &lot.ManufacturedAt, &lot.ExpiresAt, &lot.Status, &lot.CreatedAt)
	return lot, err
}

// InsertLot registers a batch. Duplicate lot numbers per product map to
// ErrDuplicateLot.
func (r *Repository) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO lots (product_id, lot_number, initial_qty, remaining_qty, unit_cost, manufactured_at, expires_at, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		lot.ProductID, lot.LotNumber, lot.InitialQty, lot.RemainingQty, lot.UnitCost,
		lot.ManufacturedAt, lot.ExpiresAt, string(lot.Status)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateLot
		}
		return 0, err
	}
	return id, nil
}

// GetLot fetches a lot by id.
func (r *Repository) GetLot(ctx context.Context, id int64) (Lot, error) {
	lot, err := scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lot{}, ErrLotNotFound
		}
		return Lot{}, err
	}
	return lot, nil
}

// ListLots returns all lots for a product, oldest receipt first. The order is
// stable across replays because ties on created_at break on lot_number.
func (r *Repository) ListLots(ctx context.Context, productID int64) ([]Lot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+` FROM lots
WHERE product_id=$1 ORDER BY created_at ASC, lot_number ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

// ListExpiring returns active lots with remaining quantity whose expiry falls
// before the cutoff.
func (r *Repository) ListExpiring(ctx context.Context, cutoff time.Time) ([]Lot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+` FROM lots
WHERE status='ACTIVE' AND remaining_qty > 0 AND expires_at IS NOT NULL AND expires_at < $1
ORDER BY expires_at ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

// MarkExpired flips active lots past their expiry date to EXPIRED and reports
// how many rows changed.
func (r *Repository) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE lots SET status='EXPIRED'
WHERE status='ACTIVE' AND expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListLotLocations reports where a lot's quantity currently sits.
func (r *Repository) ListLotLocations(ctx context.Context, lotID int64) ([]LotLocation, error) {
	rows, err := r.pool.Query(ctx, `SELECT lot_id, location_id, qty FROM lot_locations
WHERE lot_id=$1 AND qty > 0 ORDER BY location_id ASC`, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []LotLocation
	for rows.Next() {
		var loc LotLocation
		if err := rows.Scan(&loc.LotID, &loc.LocationID, &loc.Qty); err != nil {
			return nil, err
		}
		result = append(result, loc)
	}
	return result, rows.Err()
}

const serialColumns = `id, product_id, serial_number, lot_number, location_id, status, updated_at`

// InsertSerial registers a serial unit. Duplicate serial numbers per product
// map to ErrDuplicateSerial.
func (r *Repository) InsertSerial(ctx context.Context, unit SerialUnit) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO serial_units (product_id, serial_number, lot_number, location_id, status, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
		unit.ProductID, unit.SerialNumber, nullString(unit.LotNumber), unit.LocationID, string(unit.Status)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateSerial
		}
		return 0, err
	}
	return id, nil
}

// GetSerial fetches a serial unit by id.
func (r *Repository) GetSerial(ctx context.Context, id int64) (SerialUnit, error) {
	var unit SerialUnit
	var lotNumber *string
	err := r.pool.QueryRow(ctx, `SELECT `+serialColumns+` FROM serial_units WHERE id=$1`, id).
		Scan(&unit.ID, &unit.ProductID, &unit.SerialNumber, &lotNumber, &unit.LocationID, &unit.Status, &unit.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SerialUnit{}, ErrSerialNotFound
		}
		return SerialUnit{}, err
	}
	if lotNumber != nil {
		unit.LotNumber = *lotNumber
	}
	return unit, nil
}

// UpdateSerial writes a new lifecycle state, optionally re-homing the unit.
func (r *Repository) UpdateSerial(ctx context.Context, id int64, status SerialStatus, locationID *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE serial_units
SET status=$2, location_id=COALESCE($3, location_id), updated_at=NOW()
WHERE id=$1`, id, string(status), locationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSerialNotFound
	}
	return nil
}

// ListSerials returns serial units for a product, optionally narrowed to one
// location.
func (r *Repository) ListSerials(ctx context.Context, productID, locationID int64) ([]SerialUnit, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+serialColumns+` FROM serial_units
WHERE product_id=$1 AND ($2 = 0 OR location_id=$2)
ORDER BY serial_number ASC`, productID, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []SerialUnit
	for rows.Next() {
		var unit SerialUnit
		var lotNumber *string
		if err := rows.Scan(&unit.ID, &unit.ProductID, &unit.SerialNumber, &lotNumber, &unit.LocationID, &unit.Status, &unit.UpdatedAt); err != nil {
			return nil, err
		}
		if lotNumber != nil {
			unit.LotNumber = *lotNumber
		}
		result = append(result, unit)
	}
	return result, rows.Err()
}

func collectLots(rows pgx.Rows) ([]Lot, error) {
	var result []Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, lot)
	}
	return result, rows.Err()
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
