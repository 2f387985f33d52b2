package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-pos/meridian/internal/jobs"
	"github.com/meridian-pos/meridian/internal/shared"
)

// NewIdempotencyCleanupHandler prunes movement keys older than retention.
func NewIdempotencyCleanupHandler(logger *slog.Logger, metrics *jobmetrics.Metrics, store *shared.IdempotencyStore, retention time.Duration) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskIdempotencyCleanup)
		if err := store.Cleanup(ctx, retention); err != nil {
			logger.Error("idempotency cleanup failed", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("idempotency cleanup complete", slog.Duration("retention", retention))
		return tracker.End(nil)
	}
}
