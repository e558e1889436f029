package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	merchantdomain "github.com/dmehra2102/payment-gateway/internal/merchant/domain"
	merchantmemory "github.com/dmehra2102/payment-gateway/internal/merchant/infrastructure/memory"
	"github.com/dmehra2102/payment-gateway/internal/webhook/application"
	"github.com/dmehra2102/payment-gateway/internal/webhook/domain"
	"github.com/dmehra2102/payment-gateway/internal/webhook/infrastructure/memory"
	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/queue"
)

const (
	merchantID = "550e8400-e29b-41d4-a716-446655440000"
	secret     = "whsec_test_abc123"
)

type delivery struct {
	body        []byte
	signature   string
	contentType string
}

// receiver is a merchant endpoint answering with a fixed status.
type receiver struct {
	mu     sync.Mutex
	status int
	got    []delivery
}

func (rc *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rc.mu.Lock()
	rc.got = append(rc.got, delivery{body: body, signature: r.Header.Get(domain.SignatureHeader), contentType: r.Header.Get("Content-Type")})
	status := rc.status
	rc.mu.Unlock()
	w.WriteHeader(status)
	_, _ = w.Write([]byte("ack"))
}

func (rc *receiver) deliveries() []delivery {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]delivery(nil), rc.got...)
}

type fixture struct {
	logs       *memory.Repository
	merchants  *merchantmemory.Repository
	queue      *queue.Memory
	notifier   *application.Notifier
	dispatcher *application.Dispatcher
	service    *application.Service
	now        time.Time
}

func newFixture(t *testing.T, webhookURL string, timeout time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		logs:      memory.NewRepository(),
		merchants: merchantmemory.NewRepository(),
		queue:     queue.NewMemory(),
		now:       time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.queue.SetClock(func() time.Time { return f.now })

	require.NoError(t, f.merchants.Create(context.Background(), merchantdomain.Merchant{
		ID:            merchantID,
		Email:         "test@example.com",
		WebhookURL:    webhookURL,
		WebhookSecret: secret,
		Active:        true,
	}))

	log := logging.Discard()
	f.notifier = application.NewNotifier(log, f.logs, f.queue)
	f.dispatcher = application.NewDispatcher(log, f.logs, f.merchants, f.queue, nil, application.DispatcherConfig{
		Policy:  domain.Policy{Schedule: domain.ProductionSchedule, MaxAttempts: domain.DefaultMaxAttempts},
		Timeout: timeout,
	})
	f.dispatcher.SetClock(func() time.Time { return f.now })
	f.service = application.NewService(log, f.logs, f.queue)
	return f
}

func (f *fixture) notify(t *testing.T) domain.Log {
	t.Helper()
	data := map[string]any{"payment": map[string]any{"id": "pay_0123456789abcdef", "status": "success"}}
	require.NoError(t, f.notifier.Notify(context.Background(), merchantID, "payment.success", data))
	logs := f.logs.Logs()
	return logs[len(logs)-1]
}

// deliverNext runs the next due webhook job through the dispatcher.
func (f *fixture) deliverNext(t *testing.T) queue.Result {
	t.Helper()
	ctx := context.Background()
	job, err := f.queue.Reserve(ctx, queue.Webhooks)
	require.NoError(t, err)
	require.NotNil(t, job, "no webhook job due")
	res, err := f.dispatcher.Handle(ctx, *job)
	require.NoError(t, err)
	require.NoError(t, f.queue.Ack(ctx, *job))
	return res
}

func (f *fixture) stored(t *testing.T, id string) domain.Log {
	t.Helper()
	l, err := f.logs.Get(context.Background(), id)
	require.NoError(t, err)
	return l
}

func TestNotifier_CreatesLogAndSchedulesDelivery(t *testing.T) {
	f := newFixture(t, "", 0)
	l := f.notify(t)

	require.Equal(t, merchantID, l.MerchantID)
	require.Equal(t, "payment.success", l.Event)
	require.Equal(t, domain.StatusPending, l.Status)
	require.Zero(t, l.Attempts)

	var env struct {
		Event     string         `json:"event"`
		Timestamp int64          `json:"timestamp"`
		Data      map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(l.Payload, &env))
	require.Equal(t, "payment.success", env.Event)
	require.NotZero(t, env.Timestamp)
	require.Contains(t, env.Data, "payment")

	jobs := f.queue.Jobs(queue.Webhooks)
	require.Len(t, jobs, 1)
	require.Equal(t, application.JobDeliver, jobs[0].Type)
	var in application.DeliverJob
	require.NoError(t, jobs[0].Decode(&in))
	require.Equal(t, l.ID, in.LogID)
}

func TestDispatcher_DeliversSignedPayload(t *testing.T) {
	rc := &receiver{status: http.StatusOK}
	srv := httptest.NewServer(rc)
	t.Cleanup(srv.Close)

	f := newFixture(t, srv.URL, time.Second)
	l := f.notify(t)

	require.Equal(t, queue.Completed, f.deliverNext(t))

	got := rc.deliveries()
	require.Len(t, got, 1)
	require.Equal(t, "application/json", got[0].contentType)
	require.Equal(t, domain.Sign(secret, got[0].body), got[0].signature)
	require.JSONEq(t, string(l.Payload), string(got[0].body))

	stored := f.stored(t, l.ID)
	require.Equal(t, domain.StatusSuccess, stored.Status)
	require.Equal(t, 1, stored.Attempts)
	require.Equal(t, http.StatusOK, *stored.ResponseCode)
	require.Equal(t, "ack", *stored.ResponseBody)
	require.NotNil(t, stored.LastAttemptAt)
	require.Nil(t, stored.NextRetryAt)
	require.Empty(t, f.queue.Jobs(queue.Webhooks), "no further attempt after success")
}

func TestDispatcher_BacksOffThenFails(t *testing.T) {
	rc := &receiver{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rc)
	t.Cleanup(srv.Close)

	f := newFixture(t, srv.URL, time.Second)
	l := f.notify(t)

	for attempt := 1; attempt < domain.DefaultMaxAttempts; attempt++ {
		f.deliverNext(t)

		stored := f.stored(t, l.ID)
		require.Equal(t, domain.StatusPending, stored.Status)
		require.Equal(t, attempt, stored.Attempts)
		require.Equal(t, http.StatusInternalServerError, *stored.ResponseCode)

		delay := domain.ProductionSchedule.Delay(attempt + 1)
		sched := f.queue.Scheduled(queue.Webhooks)
		require.Len(t, sched, 1)
		for _, at := range sched {
			require.Equal(t, f.now.Add(delay), at)
		}

		// Not due yet.
		job, err := f.queue.Reserve(context.Background(), queue.Webhooks)
		require.NoError(t, err)
		require.Nil(t, job)
		f.now = f.now.Add(delay)
	}

	f.deliverNext(t)
	stored := f.stored(t, l.ID)
	require.Equal(t, domain.StatusFailed, stored.Status)
	require.Equal(t, domain.DefaultMaxAttempts, stored.Attempts)
	require.Empty(t, f.queue.Jobs(queue.Webhooks))
	require.Len(t, rc.deliveries(), domain.DefaultMaxAttempts)
}

func TestDispatcher_TimeoutIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	f := newFixture(t, srv.URL, 50*time.Millisecond)
	l := f.notify(t)
	f.deliverNext(t)

	stored := f.stored(t, l.ID)
	require.Equal(t, domain.StatusPending, stored.Status)
	require.Equal(t, 1, stored.Attempts)
	require.Nil(t, stored.ResponseCode)
	require.NotEmpty(t, *stored.ResponseBody)
	require.Len(t, f.queue.Jobs(queue.Webhooks), 1)
}

func TestDispatcher_NoEndpointSucceedsWithoutRequest(t *testing.T) {
	f := newFixture(t, "", 0)
	l := f.notify(t)

	require.Equal(t, queue.Completed, f.deliverNext(t))

	stored := f.stored(t, l.ID)
	require.Equal(t, domain.StatusSuccess, stored.Status)
	require.Equal(t, 1, stored.Attempts)
	require.Nil(t, stored.ResponseCode)
	require.Empty(t, f.queue.Jobs(queue.Webhooks))
}

func TestDispatcher_Skips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "", 0)

	deliver := func(logID string) queue.Result {
		job, err := queue.NewJob(ctx, queue.Webhooks, application.JobDeliver, application.DeliverJob{LogID: logID})
		require.NoError(t, err)
		res, err := f.dispatcher.Handle(ctx, job)
		require.NoError(t, err)
		return res
	}

	require.Equal(t, queue.Skipped, deliver("missing"))

	for _, status := range []domain.Status{domain.StatusSuccess, domain.StatusFailed} {
		l := domain.NewLog(merchantID, "payment.failed", json.RawMessage(`{}`), f.now)
		l.Status = status
		require.NoError(t, f.logs.Create(ctx, l))
		require.Equal(t, queue.Skipped, deliver(l.ID), string(status))
		require.Equal(t, status, f.stored(t, l.ID).Status)
	}

	orphan := domain.NewLog("no-such-merchant", "payment.success", json.RawMessage(`{}`), f.now)
	require.NoError(t, f.logs.Create(ctx, orphan))
	require.Equal(t, queue.Skipped, deliver(orphan.ID))
	require.Equal(t, domain.StatusPending, f.stored(t, orphan.ID).Status)
}

func TestDispatcher_CancelledAttemptNotCounted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	f := newFixture(t, srv.URL, time.Second)
	l := f.notify(t)

	job, err := f.queue.Reserve(context.Background(), queue.Webhooks)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.dispatcher.Handle(ctx, *job)
	require.ErrorIs(t, err, context.Canceled)

	stored := f.stored(t, l.ID)
	require.Equal(t, domain.StatusPending, stored.Status)
	require.Zero(t, stored.Attempts)
}

// flakyQueue rejects the next Enqueue once armed.
type flakyQueue struct {
	*queue.Memory
	fail bool
}

func (q *flakyQueue) Enqueue(ctx context.Context, job queue.Job, delay time.Duration) error {
	if q.fail {
		q.fail = false
		return errors.New("queue unavailable")
	}
	return q.Memory.Enqueue(ctx, job, delay)
}

func TestDispatcher_RedeliveryHonoursBackoff(t *testing.T) {
	rc := &receiver{status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(rc)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	f := newFixture(t, srv.URL, time.Second)
	l := f.notify(t)

	flaky := &flakyQueue{Memory: f.queue, fail: true}
	dispatcher := application.NewDispatcher(logging.Discard(), f.logs, f.merchants, flaky, nil, application.DispatcherConfig{
		Policy:  domain.Policy{Schedule: domain.ProductionSchedule, MaxAttempts: domain.DefaultMaxAttempts},
		Timeout: time.Second,
	})
	dispatcher.SetClock(func() time.Time { return f.now })

	job, err := f.queue.Reserve(ctx, queue.Webhooks)
	require.NoError(t, err)
	require.NotNil(t, job)
	_, err = dispatcher.Handle(ctx, *job)
	require.Error(t, err)

	stored := f.stored(t, l.ID)
	require.Equal(t, 1, stored.Attempts)
	retryAt := f.now.Add(domain.ProductionSchedule.Delay(2))
	require.True(t, retryAt.Equal(*stored.NextRetryAt))
	require.Empty(t, f.queue.Jobs(queue.Webhooks))

	// The worker pool redelivers the failed job shortly after.
	f.now = f.now.Add(time.Second)
	res, err := dispatcher.Handle(ctx, *job)
	require.NoError(t, err)
	require.Equal(t, queue.Skipped, res)
	require.NoError(t, f.queue.Ack(ctx, *job))
	require.Len(t, rc.deliveries(), 1)
	require.Equal(t, 1, f.stored(t, l.ID).Attempts)

	sched := f.queue.Scheduled(queue.Webhooks)
	require.Len(t, sched, 1)
	for _, at := range sched {
		require.Equal(t, retryAt, at)
	}

	f.now = retryAt
	f.deliverNext(t)
	require.Len(t, rc.deliveries(), 2)
	require.Equal(t, 2, f.stored(t, l.ID).Attempts)
}
