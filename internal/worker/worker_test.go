package worker_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	merchantdomain "github.com/dmehra2102/payment-gateway/internal/merchant/domain"
	merchantmemory "github.com/dmehra2102/payment-gateway/internal/merchant/infrastructure/memory"
	paymentapp "github.com/dmehra2102/payment-gateway/internal/payment/application"
	paymentdomain "github.com/dmehra2102/payment-gateway/internal/payment/domain"
	paymentmemory "github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/memory"
	webhookapp "github.com/dmehra2102/payment-gateway/internal/webhook/application"
	webhookdomain "github.com/dmehra2102/payment-gateway/internal/webhook/domain"
	webhookmemory "github.com/dmehra2102/payment-gateway/internal/webhook/infrastructure/memory"
	"github.com/dmehra2102/payment-gateway/internal/worker"
	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/queue"
)

const (
	merchantID = "550e8400-e29b-41d4-a716-446655440000"
	secret     = "whsec_test_abc123"
)

func TestPaymentToWebhookEndToEnd(t *testing.T) {
	var (
		hits     atomic.Int32
		verified atomic.Bool
		event    atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		hits.Add(1)
		verified.Store(webhookdomain.Verify(secret, body, r.Header.Get(webhookdomain.SignatureHeader)))
		var env struct {
			Event string `json:"event"`
		}
		_ = json.Unmarshal(body, &env)
		event.Store(env.Event)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	log := logging.Discard()
	merchants := merchantmemory.NewRepository()
	require.NoError(t, merchants.Create(ctx, merchantdomain.Merchant{
		ID: merchantID, Email: "test@example.com", WebhookURL: srv.URL, WebhookSecret: secret, Active: true,
	}))
	payments := paymentmemory.NewRepository()
	webhooks := webhookmemory.NewRepository()
	q := queue.NewMemory()

	w := worker.New(log, worker.Deps{
		Payments:  payments,
		Webhooks:  webhooks,
		Merchants: merchants,
		Queue:     q,
	}, worker.Config{
		Pool:       queue.PoolConfig{Concurrency: 2, PollInterval: 10 * time.Millisecond},
		Settlement: paymentapp.SettlementConfig{TestMode: true, TestDelay: 10 * time.Millisecond, TestSuccess: true},
		Webhook:    webhookapp.DispatcherConfig{Policy: webhookdomain.Policy{Schedule: webhookdomain.TestSchedule}, Timeout: time.Second},
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	svc := paymentapp.NewService(log, payments, q, paymentapp.NewGuard(log, payments, nil, 24*time.Hour))
	order, err := svc.CreateOrder(ctx, merchantID, paymentapp.CreateOrderInput{Amount: 50000, Currency: "INR"})
	require.NoError(t, err)
	body, err := svc.CreatePayment(ctx, merchantID, "", paymentapp.CreatePaymentInput{OrderID: order.ID, Method: "upi", VPA: "user@bank"})
	require.NoError(t, err)
	var created paymentapp.PaymentView
	require.NoError(t, json.Unmarshal(body, &created))
	require.Equal(t, "pending", created.Status)

	require.Eventually(t, func() bool {
		logs := webhooks.Logs()
		return len(logs) == 1 && logs[0].Status == webhookdomain.StatusSuccess
	}, 5*time.Second, 10*time.Millisecond)

	p, err := payments.FindPayment(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.StatusSuccess, p.Status)

	logs := webhooks.Logs()
	require.Len(t, logs, 1)
	require.Equal(t, "payment.success", logs[0].Event)
	require.Equal(t, 1, logs[0].Attempts)
	require.Equal(t, int32(1), hits.Load())
	require.True(t, verified.Load())
	require.Equal(t, "payment.success", event.Load())

	require.Eventually(t, func() bool {
		s, err := queue.Aggregate(ctx, q, queue.Names()...)
		return err == nil && s.Completed == 2 && s.Pending() == 0 && s.Active == 0
	}, time.Second, 10*time.Millisecond)
}

type stubRunner struct{ err error }

func (s stubRunner) Run(ctx context.Context) error {
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return nil
}

func TestRun_FailingRunnerStopsOthers(t *testing.T) {
	w := worker.New(logging.Discard(), worker.Deps{
		Payments:  paymentmemory.NewRepository(),
		Webhooks:  webhookmemory.NewRepository(),
		Merchants: merchantmemory.NewRepository(),
		Queue:     queue.NewMemory(),
	}, worker.Config{Pool: queue.PoolConfig{PollInterval: 10 * time.Millisecond}})
	w.Add("idle", stubRunner{})
	w.Add("broken", stubRunner{err: io.ErrUnexpectedEOF})

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
