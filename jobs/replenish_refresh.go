package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-pos/meridian/internal/jobs"
	"github.com/meridian-pos/meridian/internal/replenish"
)

// NewReplenishRefreshHandler recomputes recommendations for every stocked
// position. Runs nightly so the morning ordering pass reads warm results.
func NewReplenishRefreshHandler(logger *slog.Logger, metrics *jobmetrics.Metrics, planner *replenish.Service) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskReplenishRefresh)
		start := time.Now()
		refreshed, err := planner.RefreshAll(ctx)
		if err != nil {
			logger.Error("replenish refresh failed",
				slog.Int64("refreshed", refreshed),
				slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("replenish refresh complete",
			slog.Int64("refreshed", refreshed),
			slog.Duration("took", time.Since(start)))
		return tracker.End(nil)
	}
}
