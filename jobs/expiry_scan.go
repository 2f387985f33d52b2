package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-pos/meridian/internal/jobs"
	"github.com/meridian-pos/meridian/internal/lots"
)

// expiryWarningWindow is how far ahead the scan reports approaching expiries.
const expiryWarningWindow = 30 * 24 * time.Hour

// NewLotExpiryScanHandler marks overdue lots EXPIRED and logs lots expiring
// soon. Expired quantity stays on hand until someone posts an adjustment.
func NewLotExpiryScanHandler(logger *slog.Logger, metrics *jobmetrics.Metrics, registry *lots.Service) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskLotExpiryScan)
		expired, err := registry.MarkExpired(ctx)
		if err != nil {
			logger.Error("lot expiry scan failed", slog.Any("error", err))
			return tracker.End(err)
		}
		expiring, err := registry.ExpiringLots(ctx, expiryWarningWindow)
		if err != nil {
			logger.Error("lot expiry lookahead failed", slog.Any("error", err))
			return tracker.End(err)
		}
		for _, lot := range expiring {
			logger.Warn("lot approaching expiry",
				slog.Int64("lot_id", lot.ID),
				slog.Int64("product_id", lot.ProductID),
				slog.String("lot_number", lot.LotNumber),
				slog.Int64("remaining_qty", lot.RemainingQty),
				slog.Time("expires_at", *lot.ExpiresAt))
		}
		logger.Info("lot expiry scan complete",
			slog.Int64("expired", expired),
			slog.Int("expiring_soon", len(expiring)))
		return tracker.End(nil)
	}
}
