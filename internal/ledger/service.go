package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/lots"
	"github.com/meridian-pos/meridian/internal/observability"
	"github.com/meridian-pos/meridian/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, productID, locationID int64) (Balance, error)
	CountMovements(ctx context.Context, filter MovementFilter) (int, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the single entry point for quantity changes. Reporting code
// reads balances and movements; it never writes them.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     *observability.Metrics
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, metrics: metrics}
}

// Apply posts one movement against an open transaction. Every balance write
// in the engine funnels through here, so on-hand always equals the sum of
// movement deltas for the pair.
func Apply(ctx context.Context, tx TxRepository, input MovementInput) (Movement, error) {
	if input.ProductID == 0 || input.LocationID == 0 {
		return Movement{}, errors.New("ledger: product and location required")
	}
	if input.Delta == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if !input.Reason.Known() {
		return Movement{}, fmt.Errorf("%w: unknown reason %q", ErrInvalidReason, input.Reason)
	}
	if input.Reason == ReasonReceipt && !input.UnitCost.IsPositive() {
		return Movement{}, fmt.Errorf("%w: unit cost required for RECEIPT", ErrInvalidReason)
	}

	balance, err := tx.GetBalanceForUpdate(ctx, input.ProductID, input.LocationID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Movement{}, err
	}

	newQty := balance.OnHand + input.Delta
	if newQty < 0 && !(input.Reason == ReasonAdjustment && input.AllowNegative) {
		return Movement{}, ErrInsufficientStock
	}

	unitCost := input.UnitCost
	newAvg := balance.AvgCost
	if input.Delta > 0 {
		if unitCost.IsZero() {
			unitCost = balance.AvgCost
		}
		if newQty != 0 {
			total := balance.AvgCost.Mul(decimal.NewFromInt(balance.OnHand)).
				Add(unitCost.Mul(decimal.NewFromInt(input.Delta)))
			newAvg = total.Div(decimal.NewFromInt(newQty))
		}
	} else {
		unitCost = balance.AvgCost
		if newQty <= 0 {
			newAvg = decimal.Zero
		}
	}

	// Lot remaining tracks global stock across locations. Transfers re-home
	// quantity without consuming it, so they only tag the movement.
	if input.LotID != nil && input.Reason != ReasonTransferOut && input.Reason != ReasonTransferIn {
		switch {
		case input.Delta < 0:
			if err := tx.ConsumeLot(ctx, *input.LotID, -input.Delta); err != nil {
				return Movement{}, err
			}
		case input.Reason == ReasonReturn:
			if err := tx.CreditLot(ctx, *input.LotID, input.Delta); err != nil {
				return Movement{}, err
			}
		}
	}

	movement := Movement{
		ProductID:  input.ProductID,
		LocationID: input.LocationID,
		Delta:      input.Delta,
		Reason:     input.Reason,
		RefType:    input.RefType,
		RefID:      input.RefID,
		UnitCost:   unitCost,
		LotID:      input.LotID,
		CreatedBy:  input.ActorID,
		CreatedAt:  time.Now().UTC(),
	}
	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	movement.ID = id

	balance.ProductID = input.ProductID
	balance.LocationID = input.LocationID
	balance.OnHand = newQty
	balance.AvgCost = newAvg
	if balance.Reserved > newQty {
		balance.Reserved = max(newQty, 0)
	}
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return Movement{}, err
	}
	return movement, nil
}

// ApplyMovement posts a single movement in its own transaction. Callers with
// a reference id get duplicate-post protection through the idempotency store.
func (s *Service) ApplyMovement(ctx context.Context, input MovementInput) (Movement, error) {
	if input.RefID != "" {
		if _, err := uuid.Parse(input.RefID); err != nil {
			return Movement{}, fmt.Errorf("ledger: invalid ref id: %w", err)
		}
	}
	key := idempotencyKey(input)
	return s.post(ctx, key, func(ctx context.Context, tx TxRepository) (Movement, error) {
		return Apply(ctx, tx, input)
	})
}

// ReceiveStock posts a RECEIPT and, when a lot number is supplied, opens the
// lot in the same transaction so provenance can never outrun the ledger.
func (s *Service) ReceiveStock(ctx context.Context, input ReceiveInput) (Movement, error) {
	if input.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if !input.UnitCost.IsPositive() {
		return Movement{}, fmt.Errorf("%w: unit cost required for RECEIPT", ErrInvalidReason)
	}
	if input.RefID != "" {
		if _, err := uuid.Parse(input.RefID); err != nil {
			return Movement{}, fmt.Errorf("ledger: invalid ref id: %w", err)
		}
	}
	movementInput := MovementInput{
		ProductID:  input.ProductID,
		LocationID: input.LocationID,
		Delta:      input.Quantity,
		Reason:     ReasonReceipt,
		RefType:    "RECEIPT",
		RefID:      input.RefID,
		UnitCost:   input.UnitCost,
		ActorID:    input.ActorID,
	}
	key := idempotencyKey(movementInput)
	return s.post(ctx, key, func(ctx context.Context, tx TxRepository) (Movement, error) {
		if input.LotNumber != "" {
			lotID, err := tx.InsertLot(ctx, lots.Lot{
				ProductID:      input.ProductID,
				LotNumber:      input.LotNumber,
				InitialQty:     input.Quantity,
				RemainingQty:   input.Quantity,
				UnitCost:       input.UnitCost,
				ManufacturedAt: input.ManufacturedAt,
				ExpiresAt:      input.ExpiresAt,
				Status:         lots.LotActive,
			})
			if err != nil {
				return Movement{}, err
			}
			movementInput.LotID = &lotID
		}
		return Apply(ctx, tx, movementInput)
	})
}

// RecordCount reconciles a physical count at a location. All corrections
// apply in one transaction; products matching the ledger are skipped.
func (s *Service) RecordCount(ctx context.Context, locationID int64, refID string, counts []CountLine, actorID int64) ([]Movement, error) {
	if locationID == 0 {
		return nil, errors.New("ledger: location required")
	}
	if len(counts) == 0 {
		return nil, errors.New("ledger: count lines required")
	}
	for _, line := range counts {
		if line.Counted < 0 {
			return nil, ErrInvalidQuantity
		}
	}
	if refID == "" {
		refID = uuid.NewString()
	} else if _, err := uuid.Parse(refID); err != nil {
		return nil, fmt.Errorf("ledger: invalid ref id: %w", err)
	}

	var movements []Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range counts {
			balance, err := tx.GetBalanceForUpdate(ctx, line.ProductID, locationID)
			if err != nil && !errors.Is(err, ErrBalanceNotFound) {
				return err
			}
			delta := line.Counted - balance.OnHand
			if delta == 0 {
				continue
			}
			movement, err := Apply(ctx, tx, MovementInput{
				ProductID:  line.ProductID,
				LocationID: locationID,
				Delta:      delta,
				Reason:     ReasonCountCorrection,
				RefType:    "COUNT",
				RefID:      refID,
				ActorID:    actorID,
			})
			if err != nil {
				return err
			}
			movements = append(movements, movement)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, movement := range movements {
		s.observe(ctx, movement)
	}
	return movements, nil
}

// GetBalance reads a balance; a missing row reports zero quantities.
func (s *Service) GetBalance(ctx context.Context, productID, locationID int64) (Balance, error) {
	if productID == 0 || locationID == 0 {
		return Balance{}, errors.New("ledger: product and location required")
	}
	return s.repo.GetBalance(ctx, productID, locationID)
}

// GetMovements lists one page of the movement log for reporting.
func (s *Service) GetMovements(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	if filter.ProductID == 0 || filter.LocationID == 0 {
		return nil, shared.Pagination{}, errors.New("ledger: product and location required")
	}
	total, err := s.repo.CountMovements(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pagination := shared.NewPagination(filter.Page, filter.PerPage, total)
	filter.Page = pagination.Page
	filter.PerPage = pagination.PerPage
	movements, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return movements, pagination, nil
}

func (s *Service) post(ctx context.Context, key string, fn func(context.Context, TxRepository) (Movement, error)) (Movement, error) {
	insertedKey := false
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
			return Movement{}, err
		}
		insertedKey = true
	}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		movement = m
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Movement{}, err
	}
	s.observe(ctx, movement)
	return movement, nil
}

func (s *Service) observe(ctx context.Context, movement Movement) {
	s.metrics.ObserveMovement(string(movement.Reason))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  movement.CreatedBy,
			Action:   fmt.Sprintf("ledger:%s", movement.Reason),
			Entity:   "stock_movement",
			EntityID: strconv.FormatInt(movement.ID, 10),
			Meta: map[string]any{
				"product_id":  movement.ProductID,
				"location_id": movement.LocationID,
				"delta":       movement.Delta,
				"ref_id":      movement.RefID,
			},
		})
	}
}

func idempotencyKey(input MovementInput) string {
	if input.RefID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%d:%d", input.Reason, input.RefID, input.ProductID, input.LocationID)
}
