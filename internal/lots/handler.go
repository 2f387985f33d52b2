package lots

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Handler wires HTTP endpoints for the lot and serial registry.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the lots handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreateLot)
	r.Get("/", h.handleListLots)
	r.Get("/expiring", h.handleExpiring)
	r.Get("/{lotID}", h.handleGetLot)
	r.Get("/{lotID}/locations", h.handleLotLocations)
	r.Post("/serials", h.handleTrackSerial)
	r.Get("/serials", h.handleListSerials)
	r.Patch("/serials/{serialID}", h.handleUpdateSerial)
}

type createLotRequest struct {
	ProductID      int64      `json:"product_id" validate:"required"`
	LotNumber      string     `json:"lot_number" validate:"required"`
	Quantity       int64      `json:"quantity" validate:"required,gt=0"`
	UnitCost       string     `json:"unit_cost"`
	ManufacturedAt *time.Time `json:"manufactured_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

type trackSerialRequest struct {
	ProductID    int64  `json:"product_id" validate:"required"`
	SerialNumber string `json:"serial_number" validate:"required"`
	LotNumber    string `json:"lot_number"`
	LocationID   int64  `json:"location_id" validate:"required"`
	Status       string `json:"status"`
}

type updateSerialRequest struct {
	Status     string `json:"status" validate:"required"`
	LocationID *int64 `json:"location_id"`
}

type lotResponse struct {
	ID             int64      `json:"id"`
	ProductID      int64      `json:"product_id"`
	LotNumber      string     `json:"lot_number"`
	InitialQty     int64      `json:"initial_qty"`
	RemainingQty   int64      `json:"remaining_qty"`
	UnitCost       string     `json:"unit_cost"`
	ManufacturedAt *time.Time `json:"manufactured_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      string     `json:"created_at"`
}

type serialResponse struct {
	ID           int64  `json:"id"`
	ProductID    int64  `json:"product_id"`
	SerialNumber string `json:"serial_number"`
	LotNumber    string `json:"lot_number,omitempty"`
	LocationID   int64  `json:"location_id"`
	Status       string `json:"status"`
	UpdatedAt    string `json:"updated_at"`
}

func (h *Handler) handleCreateLot(w http.ResponseWriter, r *http.Request) {
	var req createLotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	unitCost := decimal.Zero
	if req.UnitCost != "" {
		parsed, err := decimal.NewFromString(req.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be a decimal number")
			return
		}
		unitCost = parsed
	}
	lot, err := h.service.CreateLot(r.Context(), CreateLotInput{
		ProductID:      req.ProductID,
		LotNumber:      req.LotNumber,
		Quantity:       req.Quantity,
		UnitCost:       unitCost,
		ManufacturedAt: req.ManufacturedAt,
		ExpiresAt:      req.ExpiresAt,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toLotResponse(lot))
}

func (h *Handler) handleListLots(w http.ResponseWriter, r *http.Request) {
	productID := queryInt(r, "product_id")
	if productID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id is required")
		return
	}
	result, err := h.service.ListLots(r.Context(), productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]lotResponse, 0, len(result))
	for _, lot := range result {
		out = append(out, toLotResponse(lot))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lots": out})
}

func (h *Handler) handleExpiring(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "within_days")
	if days <= 0 {
		days = 30
	}
	result, err := h.service.ExpiringLots(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]lotResponse, 0, len(result))
	for _, lot := range result {
		out = append(out, toLotResponse(lot))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lots": out})
}

func (h *Handler) handleGetLot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "lotID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "lot id must be numeric")
		return
	}
	lot, err := h.service.GetLot(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLotResponse(lot))
}

func (h *Handler) handleLotLocations(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "lotID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "lot id must be numeric")
		return
	}
	locations, err := h.service.LotLocations(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"locations": locations})
}

func (h *Handler) handleTrackSerial(w http.ResponseWriter, r *http.Request) {
	var req trackSerialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	unit, err := h.service.TrackSerial(r.Context(), TrackSerialInput{
		ProductID:    req.ProductID,
		SerialNumber: req.SerialNumber,
		LotNumber:    req.LotNumber,
		LocationID:   req.LocationID,
		Status:       SerialStatus(req.Status),
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSerialResponse(unit))
}

func (h *Handler) handleListSerials(w http.ResponseWriter, r *http.Request) {
	productID := queryInt(r, "product_id")
	if productID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id is required")
		return
	}
	result, err := h.service.ListSerials(r.Context(), productID, queryInt(r, "location_id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]serialResponse, 0, len(result))
	for _, unit := range result {
		out = append(out, toSerialResponse(unit))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"serials": out})
}

func (h *Handler) handleUpdateSerial(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "serialID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "serial id must be numeric")
		return
	}
	var req updateSerialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	unit, err := h.service.UpdateSerialStatus(r.Context(), id, SerialStatus(req.Status), req.LocationID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSerialResponse(unit))
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrDuplicateLot), errors.Is(err, ErrDuplicateSerial):
		httpx.Problem(w, http.StatusConflict, "Already Tracked", err.Error())
	case errors.Is(err, ErrLotNotFound), errors.Is(err, ErrSerialNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidSerialStatus):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Status", err.Error())
	default:
		h.logger.Error("lots request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toLotResponse(lot Lot) lotResponse {
	return lotResponse{
		ID:             lot.ID,
		ProductID:      lot.ProductID,
		LotNumber:      lot.LotNumber,
		InitialQty:     lot.InitialQty,
		RemainingQty:   lot.RemainingQty,
		UnitCost:       lot.UnitCost.String(),
		ManufacturedAt: lot.ManufacturedAt,
		ExpiresAt:      lot.ExpiresAt,
		Status:         string(lot.Status),
		CreatedAt:      lot.CreatedAt.Format(time.RFC3339),
	}
}

func toSerialResponse(unit SerialUnit) serialResponse {
	return serialResponse{
		ID:           unit.ID,
		ProductID:    unit.ProductID,
		SerialNumber: unit.SerialNumber,
		LotNumber:    unit.LotNumber,
		LocationID:   unit.LocationID,
		Status:       string(unit.Status),
		UpdatedAt:    unit.UpdatedAt.Format(time.RFC3339),
	}
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
