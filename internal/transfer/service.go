package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/meridian-pos/meridian/internal/ledger"
	"github.com/meridian-pos/meridian/internal/lots"
	"github.com/meridian-pos/meridian/internal/observability"
	"github.com/meridian-pos/meridian/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOnHand(ctx context.Context, productID, locationID int64) (int64, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inter-location stock transfers.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics *observability.Metrics
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics}
}

// Request records a transfer order in PENDING state. Availability is checked
// without locks; the authoritative check happens at commit.
func (s *Service) Request(ctx context.Context, input RequestInput) (Order, error) {
	if input.FromLocationID == 0 || input.ToLocationID == 0 {
		return Order{}, fmt.Errorf("%w: source and destination required", ErrTransferValidation)
	}
	if input.FromLocationID == input.ToLocationID {
		return Order{}, fmt.Errorf("%w: source and destination must differ", ErrTransferValidation)
	}
	if len(input.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: at least one line required", ErrTransferValidation)
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.Qty <= 0 {
			return Order{}, fmt.Errorf("%w: every line needs a product and positive quantity", ErrTransferValidation)
		}
		onHand, err := s.repo.GetOnHand(ctx, line.ProductID, input.FromLocationID)
		if err != nil {
			return Order{}, err
		}
		if onHand < line.Qty {
			return Order{}, fmt.Errorf("%w: product %d has %d on hand at location %d, requested %d",
				ErrTransferValidation, line.ProductID, onHand, input.FromLocationID, line.Qty)
		}
	}

	order := Order{
		Code:           uuid.NewString(),
		FromLocationID: input.FromLocationID,
		ToLocationID:   input.ToLocationID,
		Status:         OrderPending,
		Notes:          input.Notes,
		CreatedBy:      input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		lines := make([]Line, 0, len(input.Lines))
		for _, line := range input.Lines {
			lines = append(lines, Line{
				OrderID:   id,
				ProductID: line.ProductID,
				Qty:       line.Qty,
				LotID:     line.LotID,
				SerialIDs: line.SerialIDs,
			})
		}
		if err := tx.InsertLines(ctx, id, lines); err != nil {
			return err
		}
		order.Lines = lines
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, input.ActorID, "transfer:request", order.ID, map[string]any{
		"code": order.Code,
		"from": order.FromLocationID,
		"to":   order.ToLocationID,
	})
	return order, nil
}

// Commit executes a pending order atomically. Either every line moves or the
// order stays PENDING untouched.
func (s *Service) Commit(ctx context.Context, orderID, actorID int64) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderPending {
			return fmt.Errorf("%w: order %d is %s", ErrInvalidTransferState, orderID, order.Status)
		}

		if err := lockBalances(ctx, tx, order); err != nil {
			return err
		}

		for _, line := range order.Lines {
			out, err := ledger.Apply(ctx, tx, ledger.MovementInput{
				ProductID:  line.ProductID,
				LocationID: order.FromLocationID,
				Delta:      -line.Qty,
				Reason:     ledger.ReasonTransferOut,
				RefType:    "TRANSFER",
				RefID:      order.Code,
				LotID:      line.LotID,
				ActorID:    actorID,
			})
			if err != nil {
				return wrapCommitError(err)
			}
			// Value follows the stock: the destination receives at the
			// source's outbound cost.
			if _, err := ledger.Apply(ctx, tx, ledger.MovementInput{
				ProductID:  line.ProductID,
				LocationID: order.ToLocationID,
				Delta:      line.Qty,
				Reason:     ledger.ReasonTransferIn,
				RefType:    "TRANSFER",
				RefID:      order.Code,
				UnitCost:   out.UnitCost,
				LotID:      line.LotID,
				ActorID:    actorID,
			}); err != nil {
				return wrapCommitError(err)
			}
			if line.LotID != nil {
				if err := tx.UpsertLotLocation(ctx, *line.LotID, order.FromLocationID, -line.Qty); err != nil {
					return err
				}
				if err := tx.UpsertLotLocation(ctx, *line.LotID, order.ToLocationID, line.Qty); err != nil {
					return err
				}
			}
			for _, serialID := range line.SerialIDs {
				if err := tx.RehomeSerial(ctx, serialID, order.ToLocationID); err != nil {
					return wrapCommitError(err)
				}
			}
		}
		return tx.UpdateOrderStatus(ctx, orderID, OrderCommitted)
	})
	if err != nil {
		return Order{}, err
	}
	order.Status = OrderCommitted
	for range order.Lines {
		s.metrics.ObserveMovement(string(ledger.ReasonTransferOut))
		s.metrics.ObserveMovement(string(ledger.ReasonTransferIn))
	}
	s.record(ctx, actorID, "transfer:commit", order.ID, map[string]any{
		"code": order.Code,
		"from": order.FromLocationID,
		"to":   order.ToLocationID,
	})
	return order, nil
}

// Cancel withdraws a pending order.
func (s *Service) Cancel(ctx context.Context, orderID, actorID int64) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderPending {
			return fmt.Errorf("%w: order %d is %s", ErrInvalidTransferState, orderID, order.Status)
		}
		return tx.UpdateOrderStatus(ctx, orderID, OrderCancelled)
	})
	if err != nil {
		return Order{}, err
	}
	order.Status = OrderCancelled
	s.record(ctx, actorID, "transfer:cancel", order.ID, map[string]any{"code": order.Code})
	return order, nil
}

// GetOrder fetches an order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns orders newest first.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	return s.repo.ListOrders(ctx, filter)
}

// lockBalances acquires row locks on every affected balance in ascending
// (location, product) order so concurrent opposing transfers cannot deadlock.
func lockBalances(ctx context.Context, tx TxRepository, order Order) error {
	type pair struct{ locationID, productID int64 }
	seen := make(map[pair]bool)
	var pairs []pair
	for _, line := range order.Lines {
		for _, locationID := range []int64{order.FromLocationID, order.ToLocationID} {
			p := pair{locationID, line.ProductID}
			if !seen[p] {
				seen[p] = true
				pairs = append(pairs, p)
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].locationID != pairs[j].locationID {
			return pairs[i].locationID < pairs[j].locationID
		}
		return pairs[i].productID < pairs[j].productID
	})
	for _, p := range pairs {
		// Missing rows cannot be locked; the destination side is often new.
		if _, err := tx.GetBalanceForUpdate(ctx, p.productID, p.locationID); err != nil &&
			!errors.Is(err, ledger.ErrBalanceNotFound) {
			return err
		}
	}
	return nil
}

func wrapCommitError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, lots.ErrLotDepleted),
		errors.Is(err, lots.ErrLotNotFound),
		errors.Is(err, lots.ErrSerialNotFound):
		return fmt.Errorf("%w: %s", ErrTransferValidation, err)
	}
	return err
}

func (s *Service) record(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "transfer_order",
		EntityID: strconv.FormatInt(orderID, 10),
		Meta:     meta,
	})
}
