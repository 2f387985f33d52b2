package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReplenishRefresh recomputes purchase recommendations for every
	// stocked position and warms the cache.
	TaskReplenishRefresh = "replenish:refresh"
	// TaskLotExpiryScan flips lots past their expiry date to EXPIRED and
	// reports lots approaching it.
	TaskLotExpiryScan = "lots:expiry_scan"
	// TaskIdempotencyCleanup prunes idempotency keys past retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ScheduledPayload carries scheduling metadata shared by the cron tasks.
type ScheduledPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

func newScheduledTask(taskType string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

// NewReplenishRefreshTask constructs the recommendation refresh task.
func NewReplenishRefreshTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskReplenishRefresh, at)
}

// NewLotExpiryScanTask constructs the expiry scan task.
func NewLotExpiryScanTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskLotExpiryScan, at)
}

// NewIdempotencyCleanupTask constructs the key retention task.
func NewIdempotencyCleanupTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskIdempotencyCleanup, at)
}
