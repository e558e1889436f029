//go:build integration

package intergration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	merchantapp "github.com/dmehra2102/payment-gateway/internal/merchant/application"
	merchantdomain "github.com/dmehra2102/payment-gateway/internal/merchant/domain"
	merchantpg "github.com/dmehra2102/payment-gateway/internal/merchant/infrastructure/postgres"
	paymentapp "github.com/dmehra2102/payment-gateway/internal/payment/application"
	paymentdomain "github.com/dmehra2102/payment-gateway/internal/payment/domain"
	paymentkafka "github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/kafka"
	paymentpg "github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/payment-gateway/internal/platform"
	webhookapp "github.com/dmehra2102/payment-gateway/internal/webhook/application"
	webhookdomain "github.com/dmehra2102/payment-gateway/internal/webhook/domain"
	webhookpg "github.com/dmehra2102/payment-gateway/internal/webhook/infrastructure/postgres"
	"github.com/dmehra2102/payment-gateway/internal/worker"
	"github.com/dmehra2102/payment-gateway/pkg/idempotency"
	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/outbox"
	"github.com/dmehra2102/payment-gateway/pkg/queue"
)

const (
	merchantID = "550e8400-e29b-41d4-a716-446655440000"
	secret     = "whsec_test_abc123"
	topic      = "gateway.events"
)

func TestPaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	env, err := Setup(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { env.Teardown(context.Background()) })

	received := make(chan []byte, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if webhookdomain.Verify(secret, body, r.Header.Get(webhookdomain.SignatureHeader)) {
			received <- body
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(hook.Close)

	log := logging.Discard()
	pool, err := platform.OpenPostgres(ctx, env.PGURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, platform.Migrate(ctx, pool))
	require.NoError(t, platform.Migrate(ctx, pool), "migrations are repeatable")

	rdb, err := platform.OpenRedis(ctx, env.RedisAddr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	merchantRepo := merchantpg.NewRepository(log, pool)
	merchants := merchantapp.NewService(log, merchantRepo)
	_, err = merchants.Seed(ctx, merchantdomain.Merchant{
		ID: merchantID, Name: "Test Merchant", Email: "test@example.com",
		APIKey: "key_test_abc123", APISecret: "secret_test_xyz789", WebhookSecret: secret,
	})
	require.NoError(t, err)
	_, err = merchants.SetWebhookURL(ctx, merchantID, hook.URL)
	require.NoError(t, err)

	q := queue.NewRedis(rdb, "it", time.Minute)
	payments := paymentpg.NewRepository(log, pool)
	webhooks := webhookpg.NewRepository(log, pool)

	writer := paymentkafka.NewWriter(env.KAddr)
	t.Cleanup(func() { _ = writer.Close() })

	w := worker.New(log, worker.Deps{Payments: payments, Webhooks: webhooks, Merchants: merchantRepo, Queue: q}, worker.Config{
		Pool:       queue.PoolConfig{Concurrency: 2, PollInterval: 20 * time.Millisecond},
		Settlement: paymentapp.SettlementConfig{TestMode: true, TestDelay: 50 * time.Millisecond, TestSuccess: true},
		Webhook:    webhookapp.DispatcherConfig{Policy: webhookdomain.Policy{Schedule: webhookdomain.TestSchedule}, Timeout: 5 * time.Second},
	})
	w.Add("outbox-relay", outbox.NewRelay(log, outbox.NewPostgresStore(log, pool), outbox.NewDispatcher(log, writer, outbox.SingleTopic(topic)), "it-relay"))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	guard := paymentapp.NewGuard(log, payments, idempotency.NewStore(rdb, 30*time.Second), 24*time.Hour)
	svc := paymentapp.NewService(log, payments, q, guard)

	order, err := svc.CreateOrder(ctx, merchantID, paymentapp.CreateOrderInput{Amount: 50000, Currency: "INR"})
	require.NoError(t, err)
	in := paymentapp.CreatePaymentInput{OrderID: order.ID, Method: "upi", VPA: "user@bank"}
	first, err := svc.CreatePayment(ctx, merchantID, "it-key-1", in)
	require.NoError(t, err)
	again, err := svc.CreatePayment(ctx, merchantID, "it-key-1", in)
	require.NoError(t, err)
	require.Equal(t, string(first), string(again), "replay is byte-identical")

	var created paymentapp.PaymentView
	require.NoError(t, json.Unmarshal(first, &created))

	select {
	case body := <-received:
		var envelope webhookdomain.Envelope
		require.NoError(t, json.Unmarshal(body, &envelope))
		require.Equal(t, "payment.success", envelope.Event)
	case <-time.After(30 * time.Second):
		t.Fatal("webhook not delivered")
	}

	p, err := payments.FindPayment(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.StatusSuccess, p.Status)

	require.Eventually(t, func() bool {
		logs, total, err := webhooks.List(ctx, merchantID, 10, 0)
		return err == nil && total == 1 &&
			logs[0].Status == webhookdomain.StatusSuccess && logs[0].Attempts == 1
	}, 10*time.Second, 100*time.Millisecond)

	reader := kafka.NewReader(kafka.ReaderConfig{Brokers: env.KAddr, Topic: topic, Partition: 0, MinBytes: 1, MaxBytes: 1 << 20})
	t.Cleanup(func() { _ = reader.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	seen := map[string]bool{}
	for !seen["payment.created"] || !seen["payment.success"] {
		msg, err := reader.ReadMessage(readCtx)
		require.NoError(t, err)
		if string(msg.Key) != created.ID {
			continue
		}
		for _, h := range msg.Headers {
			if h.Key == "event_type" {
				seen[string(h.Value)] = true
			}
		}
	}
}
