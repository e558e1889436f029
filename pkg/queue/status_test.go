package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/queue"
)

func TestStatusHandler(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	for _, name := range queue.Names() {
		require.NoError(t, q.Enqueue(ctx, newJob(t, name, nil), 0))
	}
	require.NoError(t, q.Enqueue(ctx, newJob(t, queue.Webhooks, nil), time.Hour))
	job, err := q.Reserve(ctx, queue.Payments)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, *job))

	rec := httptest.NewRecorder()
	queue.StatusHandler(logging.Discard(), q, queue.Names()...)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.EqualValues(t, 3, out["pending"])
	require.EqualValues(t, 0, out["processing"])
	require.EqualValues(t, 1, out["completed"])
	require.EqualValues(t, 0, out["failed"])
	require.Equal(t, "running", out["worker_status"])
	require.NotEmpty(t, out["timestamp"])
}

type brokenStats struct{ queue.Queue }

func (brokenStats) Stats(context.Context, queue.Name) (queue.Stats, error) {
	return queue.Stats{}, errors.New("redis down")
}

func TestStatusHandler_BackendError(t *testing.T) {
	rec := httptest.NewRecorder()
	queue.StatusHandler(logging.Discard(), brokenStats{queue.NewMemory()}, queue.Names()...)(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "error", out["worker_status"])
	require.EqualValues(t, 0, out["pending"])
}
