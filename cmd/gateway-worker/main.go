package main

import (
	"context"
	"os"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/config"
	merchantpg "github.com/dmehra2102/payment-gateway/internal/merchant/infrastructure/postgres"
	paymentapp "github.com/dmehra2102/payment-gateway/internal/payment/application"
	paymentkafka "github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/kafka"
	paymentpg "github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/payment-gateway/internal/platform"
	webhookapp "github.com/dmehra2102/payment-gateway/internal/webhook/application"
	webhookdomain "github.com/dmehra2102/payment-gateway/internal/webhook/domain"
	webhookpg "github.com/dmehra2102/payment-gateway/internal/webhook/infrastructure/postgres"
	"github.com/dmehra2102/payment-gateway/internal/worker"
	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/outbox"
	"github.com/dmehra2102/payment-gateway/pkg/queue"
	"github.com/dmehra2102/payment-gateway/pkg/shutdown"
	"github.com/dmehra2102/payment-gateway/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New().Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.NewWith(os.Stdout, cfg.Log.Level, cfg.Log.Format).With("service", "gateway-worker")

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	tp, err := tracing.Init(ctx, "gateway-worker", cfg.OTelEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		_ = shutdown.Drain(5*time.Second, tp.Shutdown)
	}()

	pool, err := platform.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres unavailable", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := platform.Migrate(ctx, pool); err != nil {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}

	rdb, err := platform.OpenRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Error("redis unavailable", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	p := cfg.Processing
	w := worker.New(log, worker.Deps{
		Payments:  paymentpg.NewRepository(log, pool),
		Webhooks:  webhookpg.NewRepository(log, pool),
		Merchants: merchantpg.NewRepository(log, pool),
		Queue:     queue.NewRedis(rdb, "gateway", cfg.Worker.Lease),
	}, worker.Config{
		Pool: queue.PoolConfig{
			Concurrency:  cfg.Worker.Concurrency,
			PollInterval: cfg.Worker.PollInterval,
			MaxAttempts:  cfg.Worker.MaxAttempts,
		},
		Settlement: paymentapp.SettlementConfig{
			TestMode:        p.TestMode,
			TestDelay:       p.TestDelay,
			TestSuccess:     p.TestSuccess,
			DelayMin:        p.DelayMin,
			DelayMax:        p.DelayMax,
			RefundDelayMin:  p.RefundDelayMin,
			RefundDelayMax:  p.RefundDelayMax,
			UPISuccessRate:  p.UPISuccessRate,
			CardSuccessRate: p.CardSuccessRate,
		},
		Webhook: webhookapp.DispatcherConfig{
			Policy: webhookdomain.Policy{
				Schedule:    webhookdomain.ScheduleFor(cfg.Webhook.TestIntervals),
				MaxAttempts: cfg.Webhook.MaxAttempts,
			},
			Timeout: cfg.Webhook.Timeout,
		},
	})

	// Lifecycle event stream
	if cfg.KafkaAddr != "" {
		writer := paymentkafka.NewWriter([]string{cfg.KafkaAddr})
		defer writer.Close()
		route := outbox.SingleTopic(cfg.EventsTopic)
		if cfg.EventsPerAggregate {
			route = outbox.TopicPerAggregate(cfg.EventsTopic)
		}
		dispatch := outbox.NewDispatcher(log, writer, route)
		w.Add("outbox-relay", outbox.NewRelay(log, outbox.NewPostgresStore(log, pool), dispatch, hostRelayID()))
	} else {
		log.Warn("KAFKA_ADDR empty, lifecycle events stay in the outbox")
	}

	log.Info("worker starting", "test_mode", p.TestMode, "webhook_test_intervals", cfg.Webhook.TestIntervals)
	if err := w.Run(ctx); err != nil {
		log.Error("worker failed", "err", err)
		os.Exit(1)
	}
	log.Info("gateway-worker shutdown complete")
}

func hostRelayID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "gateway-worker"
	}
	return "gateway-worker-" + host
}
