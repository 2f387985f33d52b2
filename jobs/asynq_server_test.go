package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	types []string
}

func (e *recordingEnqueuer) Enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error) {
	e.types = append(e.types, task.Type())
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func TestEnqueueReplenishRefresh(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	handler := NewHandler(nil, enqueuer, slog.Default())
	router := chi.NewRouter()
	router.Route("/jobs", handler.MountRoutes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/replenish-refresh", nil))

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, []string{TaskReplenishRefresh}, enqueuer.types)
	require.Contains(t, rr.Body.String(), `"task_id":"task-1"`)
}

func TestEnqueueWithoutClientUnavailable(t *testing.T) {
	handler := NewHandler(nil, nil, slog.Default())
	router := chi.NewRouter()
	router.Route("/jobs", handler.MountRoutes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/replenish-refresh", nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
