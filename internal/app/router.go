package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-pos/meridian/internal/ledger"
	"github.com/meridian-pos/meridian/internal/lots"
	"github.com/meridian-pos/meridian/internal/observability"
	"github.com/meridian-pos/meridian/internal/replenish"
	"github.com/meridian-pos/meridian/internal/transfer"
	"github.com/meridian-pos/meridian/internal/valuation"
	"github.com/meridian-pos/meridian/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Metrics          *observability.Metrics
	LedgerHandler    *ledger.Handler
	LotsHandler      *lots.Handler
	TransferHandler  *transfer.Handler
	ValuationHandler *valuation.Handler
	ReplenishHandler *replenish.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/stock", params.LedgerHandler.MountRoutes)
	r.Route("/lots", params.LotsHandler.MountRoutes)
	r.Route("/transfers", params.TransferHandler.MountRoutes)
	if params.ValuationHandler != nil {
		r.Route("/valuation", params.ValuationHandler.MountRoutes)
	}
	if params.ReplenishHandler != nil {
		r.Route("/replenishment", params.ReplenishHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
