package transfer

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Handler wires HTTP endpoints for transfer orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the transfer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleRequest)
	r.Get("/", h.handleList)
	r.Get("/{orderID}", h.handleGet)
	r.Post("/{orderID}/commit", h.handleCommit)
	r.Post("/{orderID}/cancel", h.handleCancel)
}

type requestOrderRequest struct {
	FromLocationID int64              `json:"from_location_id" validate:"required"`
	ToLocationID   int64              `json:"to_location_id" validate:"required"`
	Notes          string             `json:"notes"`
	Lines          []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type orderLineRequest struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Qty       int64   `json:"qty" validate:"required,gt=0"`
	LotID     *int64  `json:"lot_id"`
	SerialIDs []int64 `json:"serial_ids"`
}

type orderResponse struct {
	ID             int64               `json:"id"`
	Code           string              `json:"code"`
	FromLocationID int64               `json:"from_location_id"`
	ToLocationID   int64               `json:"to_location_id"`
	Status         string              `json:"status"`
	Notes          string              `json:"notes,omitempty"`
	CreatedAt      string              `json:"created_at"`
	UpdatedAt      string              `json:"updated_at"`
	Lines          []orderLineResponse `json:"lines,omitempty"`
}

type orderLineResponse struct {
	ID        int64   `json:"id"`
	ProductID int64   `json:"product_id"`
	Qty       int64   `json:"qty"`
	LotID     *int64  `json:"lot_id,omitempty"`
	SerialIDs []int64 `json:"serial_ids,omitempty"`
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req requestOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, LineInput{ProductID: line.ProductID, Qty: line.Qty, LotID: line.LotID, SerialIDs: line.SerialIDs})
	}
	order, err := h.service.Request(r.Context(), RequestInput{
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		Notes:          req.Notes,
		Lines:          lines,
		ActorID:        shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: OrderStatus(q.Get("status"))}
	if raw := q.Get("location_id"); raw != "" {
		filter.LocationID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw := q.Get("limit"); raw != "" {
		limit, _ := strconv.Atoi(raw)
		filter.Limit = limit
	}
	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderResponse(order))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "order id must be numeric")
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "order id must be numeric")
		return
	}
	order, err := h.service.Commit(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "order id must be numeric")
		return
	}
	order, err := h.service.Cancel(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrTransferValidation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Transfer Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidTransferState):
		httpx.Problem(w, http.StatusConflict, "Invalid Order State", err.Error())
	case errors.Is(err, ErrOrderNotFound):
		httpx.Problem(w, http.StatusNotFound, "Order Not Found", err.Error())
	default:
		h.logger.Error("transfer request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toOrderResponse(order Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineResponse{
			ID:        line.ID,
			ProductID: line.ProductID,
			Qty:       line.Qty,
			LotID:     line.LotID,
			SerialIDs: line.SerialIDs,
		})
	}
	return orderResponse{
		ID:             order.ID,
		Code:           order.Code,
		FromLocationID: order.FromLocationID,
		ToLocationID:   order.ToLocationID,
		Status:         string(order.Status),
		Notes:          order.Notes,
		CreatedAt:      order.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      order.UpdatedAt.Format(time.RFC3339),
		Lines:          lines,
	}
}
