package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmehra2102/payment-gateway/internal/config"
	merchantapp "github.com/dmehra2102/payment-gateway/internal/merchant/application"
	merchantdomain "github.com/dmehra2102/payment-gateway/internal/merchant/domain"
	merchanthttp "github.com/dmehra2102/payment-gateway/internal/merchant/infrastructure/http"
	merchantpg "github.com/dmehra2102/payment-gateway/internal/merchant/infrastructure/postgres"
	paymentapp "github.com/dmehra2102/payment-gateway/internal/payment/application"
	paymenthttp "github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/http"
	paymentpg "github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/payment-gateway/internal/platform"
	webhookapp "github.com/dmehra2102/payment-gateway/internal/webhook/application"
	webhookhttp "github.com/dmehra2102/payment-gateway/internal/webhook/infrastructure/http"
	webhookpg "github.com/dmehra2102/payment-gateway/internal/webhook/infrastructure/postgres"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
	"github.com/dmehra2102/payment-gateway/pkg/idempotency"
	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/queue"
	"github.com/dmehra2102/payment-gateway/pkg/ratelimit"
	"github.com/dmehra2102/payment-gateway/pkg/shutdown"
	"github.com/dmehra2102/payment-gateway/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New().Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.NewWith(os.Stdout, cfg.Log.Level, cfg.Log.Format).With("service", "gateway-api")

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	tp, err := tracing.Init(ctx, "gateway-api", cfg.OTelEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		_ = shutdown.Drain(5*time.Second, tp.Shutdown)
	}()

	// Postgres
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

	// Redis: job queues and idempotency locks
	rdb, err := platform.OpenRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Error("redis unavailable", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()
	q := queue.NewRedis(rdb, "gateway", cfg.Worker.Lease)

	// Merchants
	merchants := merchantapp.NewService(log, merchantpg.NewRepository(log, pool))
	tm := cfg.TestMerchant
	if _, err := merchants.Seed(ctx, merchantdomain.Merchant{
		ID:            tm.ID,
		Name:          tm.Name,
		Email:         tm.Email,
		APIKey:        tm.APIKey,
		APISecret:     tm.APISecret,
		WebhookSecret: tm.WebhookSecret,
	}); err != nil {
		log.Error("seed test merchant failed", "err", err)
		os.Exit(1)
	}
	merchantHandler := merchanthttp.NewHandler(log, merchants)

	// Payments
	paymentRepo := paymentpg.NewRepository(log, pool)
	guard := paymentapp.NewGuard(log, paymentRepo, idempotency.NewStore(rdb, 30*time.Second), cfg.IdempotencyTTL)
	paymentHandler := paymenthttp.NewHandler(log, paymentapp.NewService(log, paymentRepo, q, guard))

	// Webhook logs
	webhookHandler := webhookhttp.NewHandler(log, webhookapp.NewService(log, webhookpg.NewRepository(log, pool), q))

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	// Callers are throttled per address up front, and per merchant once the
	// API key has been verified.
	throttle := func(key ratelimit.KeyFunc) func(http.Handler) http.Handler {
		limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)
		go sweep(ctx, limiter)
		return limiter.Middleware(key, apperr.WriteRateLimited)
	}
	if cfg.RateLimit.RPS > 0 {
		r.Use(throttle(ratelimit.ByClientIP))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/test", func(r chi.Router) {
			merchantHandler.TestRoutes(r, cfg.TestMerchant.Email)
			r.Get("/jobs/status", queue.StatusHandler(log, q, queue.Names()...))
		})
		paymentHandler.PublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(merchantHandler.Authenticate)
			if cfg.RateLimit.RPS > 0 {
				r.Use(throttle(merchanthttp.RateLimitKey))
			}
			merchantHandler.Routes(r)
			paymentHandler.Routes(r)
			webhookHandler.Routes(r)
		})
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	if err := shutdown.Drain(10*time.Second, srv.Shutdown); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	log.Info("gateway-api shutdown complete")
}

func sweep(ctx context.Context, l *ratelimit.Limiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}
