package valuation

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stock valuation.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the valuation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers valuation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleValue)
}

type valuationResponse struct {
	ProductID  int64  `json:"product_id"`
	LocationID int64  `json:"location_id"`
	Method     string `json:"method"`
	OnHand     int64  `json:"on_hand"`
	UnitCost   string `json:"unit_cost"`
	Value      string `json:"value"`
	ComputedAt string `json:"computed_at"`
}

func (h *Handler) handleValue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	locationID, _ := strconv.ParseInt(q.Get("location_id"), 10, 64)
	if productID == 0 || locationID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id and location_id are required")
		return
	}
	result, err := h.service.Value(r.Context(), productID, locationID, CostMethod(q.Get("method")))
	if err != nil {
		if errors.Is(err, ErrUnknownCostingMethod) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("valuation request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, valuationResponse{
		ProductID:  result.ProductID,
		LocationID: result.LocationID,
		Method:     string(result.Method),
		OnHand:     result.OnHand,
		UnitCost:   result.UnitCost.String(),
		Value:      result.Value.String(),
		ComputedAt: result.ComputedAt.Format(time.RFC3339),
	})
}
