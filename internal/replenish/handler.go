package replenish

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the replenishment planner.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the replenishment handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers planner routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/recommendations", h.handleRecommend)
	r.Post("/refresh", h.handleRefresh)
}

func (h *Handler) handleRecommend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	locationID, _ := strconv.ParseInt(q.Get("location_id"), 10, 64)
	if productID == 0 || locationID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id and location_id are required")
		return
	}
	reco, err := h.service.Recommend(r.Context(), productID, locationID)
	if err != nil {
		h.logger.Error("recommendation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"recommendation": reco})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshed, err := h.service.RefreshAll(r.Context())
	if err != nil {
		h.logger.Error("refresh sweep failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"refreshed": refreshed})
}
