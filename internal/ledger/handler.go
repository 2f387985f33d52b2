package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/lots"
	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handleApplyMovement)
	r.Get("/movements", h.handleListMovements)
	r.Post("/receipts", h.handleReceive)
	r.Post("/counts", h.handleCount)
	r.Get("/balances", h.handleGetBalance)
}

type movementRequest struct {
	ProductID     int64  `json:"product_id" validate:"required"`
	LocationID    int64  `json:"location_id" validate:"required"`
	Delta         int64  `json:"delta" validate:"required"`
	Reason        string `json:"reason" validate:"required"`
	RefType       string `json:"ref_type"`
	RefID         string `json:"ref_id" validate:"omitempty,uuid4"`
	UnitCost      string `json:"unit_cost"`
	LotID         *int64 `json:"lot_id"`
	AllowNegative bool   `json:"allow_negative"`
}

type receiveRequest struct {
	ProductID      int64      `json:"product_id" validate:"required"`
	LocationID     int64      `json:"location_id" validate:"required"`
	Quantity       int64      `json:"quantity" validate:"required,gt=0"`
	UnitCost       string     `json:"unit_cost" validate:"required"`
	LotNumber      string     `json:"lot_number"`
	ManufacturedAt *time.Time `json:"manufactured_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	RefID          string     `json:"ref_id" validate:"omitempty,uuid4"`
}

type countRequest struct {
	LocationID int64              `json:"location_id" validate:"required"`
	RefID      string             `json:"ref_id" validate:"omitempty,uuid4"`
	Counts     []countLineRequest `json:"counts" validate:"required,min=1,dive"`
}

type countLineRequest struct {
	ProductID int64  `json:"product_id" validate:"required"`
	Counted   int64  `json:"counted" validate:"gte=0"`
	Notes     string `json:"notes"`
}

type movementResponse struct {
	ID         int64  `json:"id"`
	ProductID  int64  `json:"product_id"`
	LocationID int64  `json:"location_id"`
	Delta      int64  `json:"delta"`
	Reason     string `json:"reason"`
	RefType    string `json:"ref_type,omitempty"`
	RefID      string `json:"ref_id,omitempty"`
	UnitCost   string `json:"unit_cost"`
	LotID      *int64 `json:"lot_id,omitempty"`
	CreatedBy  int64  `json:"created_by,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type balanceResponse struct {
	ProductID  int64  `json:"product_id"`
	LocationID int64  `json:"location_id"`
	OnHand     int64  `json:"on_hand"`
	Reserved   int64  `json:"reserved"`
	AvgCost    string `json:"avg_cost"`
}

func (h *Handler) handleApplyMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	unitCost, err := parseCost(req.UnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be a decimal number")
		return
	}
	movement, err := h.service.ApplyMovement(r.Context(), MovementInput{
		ProductID:     req.ProductID,
		LocationID:    req.LocationID,
		Delta:         req.Delta,
		Reason:        ReasonCode(req.Reason),
		RefType:       req.RefType,
		RefID:         req.RefID,
		UnitCost:      unitCost,
		LotID:         req.LotID,
		AllowNegative: req.AllowNegative,
		ActorID:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	unitCost, err := parseCost(req.UnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be a decimal number")
		return
	}
	movement, err := h.service.ReceiveStock(r.Context(), ReceiveInput{
		ProductID:      req.ProductID,
		LocationID:     req.LocationID,
		Quantity:       req.Quantity,
		UnitCost:       unitCost,
		LotNumber:      req.LotNumber,
		ManufacturedAt: req.ManufacturedAt,
		ExpiresAt:      req.ExpiresAt,
		RefID:          req.RefID,
		ActorID:        shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]CountLine, 0, len(req.Counts))
	for _, line := range req.Counts {
		lines = append(lines, CountLine{ProductID: line.ProductID, Counted: line.Counted, Notes: line.Notes})
	}
	movements, err := h.service.RecordCount(r.Context(), req.LocationID, req.RefID, lines, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"movements": out})
}

func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	productID := queryInt(r, "product_id")
	locationID := queryInt(r, "location_id")
	if productID == 0 || locationID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id and location_id are required")
		return
	}
	balance, err := h.service.GetBalance(r.Context(), productID, locationID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{
		ProductID:  balance.ProductID,
		LocationID: balance.LocationID,
		OnHand:     balance.OnHand,
		Reserved:   balance.Reserved,
		AvgCost:    balance.AvgCost.String(),
	})
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	filter := MovementFilter{
		ProductID:  queryInt(r, "product_id"),
		LocationID: queryInt(r, "location_id"),
		Page:       int(queryInt(r, "page")),
		PerPage:    int(queryInt(r, "per_page")),
	}
	if filter.ProductID == 0 || filter.LocationID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id and location_id are required")
		return
	}
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	movements, pagination, err := h.service.GetMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out, "pagination": pagination})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidReason), errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, lots.ErrDuplicateLot):
		httpx.Problem(w, http.StatusConflict, "Duplicate Lot", err.Error())
	case errors.Is(err, lots.ErrLotDepleted), errors.Is(err, lots.ErrLotOvercredit):
		httpx.Problem(w, http.StatusConflict, "Lot Quantity Exceeded", err.Error())
	case errors.Is(err, lots.ErrLotNotFound):
		httpx.Problem(w, http.StatusNotFound, "Lot Not Found", err.Error())
	default:
		h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:         m.ID,
		ProductID:  m.ProductID,
		LocationID: m.LocationID,
		Delta:      m.Delta,
		Reason:     string(m.Reason),
		RefType:    m.RefType,
		RefID:      m.RefID,
		UnitCost:   m.UnitCost.String(),
		LotID:      m.LotID,
		CreatedBy:  m.CreatedBy,
		CreatedAt:  m.CreatedAt.Format(time.RFC3339),
	}
}

func parseCost(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func queryInt(r *http.Request, name string) int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return value
}
