// Package worker assembles the queue pools that run payment settlement,
// refund settlement and webhook delivery.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	paymentapp "github.com/dmehra2102/payment-gateway/internal/payment/application"
	webhookapp "github.com/dmehra2102/payment-gateway/internal/webhook/application"
	"github.com/dmehra2102/payment-gateway/pkg/queue"
)

type Config struct {
	Pool       queue.PoolConfig
	Settlement paymentapp.SettlementConfig
	Webhook    webhookapp.DispatcherConfig
}

type Deps struct {
	Payments  paymentapp.Repository
	Webhooks  webhookapp.Repository
	Merchants webhookapp.Merchants
	Queue     queue.Queue
	// HTTPClient is used for webhook delivery; nil builds one from the
	// configured timeout.
	HTTPClient *http.Client
}

// Runner is anything with a blocking run loop, like a queue pool or the
// outbox relay.
type Runner interface {
	Run(ctx context.Context) error
}

type Worker struct {
	log     *slog.Logger
	runners map[string]Runner
}

func New(log *slog.Logger, d Deps, cfg Config) *Worker {
	notifier := webhookapp.NewNotifier(log, d.Webhooks, d.Queue)
	sim := paymentapp.NewSimulator(cfg.Settlement)

	w := &Worker{log: log, runners: make(map[string]Runner)}
	w.pool(d.Queue, queue.Payments, paymentapp.NewPaymentProcessor(log, d.Payments, sim, notifier), cfg.Pool)
	w.pool(d.Queue, queue.Refunds, paymentapp.NewRefundProcessor(log, d.Payments, sim, notifier), cfg.Pool)
	w.pool(d.Queue, queue.Webhooks, webhookapp.NewDispatcher(log, d.Webhooks, d.Merchants, d.Queue, d.HTTPClient, cfg.Webhook), cfg.Pool)
	return w
}

func (w *Worker) pool(q queue.Queue, name queue.Name, h queue.Handler, cfg queue.PoolConfig) {
	w.runners[string(name)] = queue.NewPool(w.log, q, name, h, cfg)
}

// Add registers an extra loop to run alongside the pools.
func (w *Worker) Add(name string, r Runner) {
	w.runners[name] = r
}

// Run starts every runner and blocks until all of them returned. A runner
// failing cancels the others.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for name, r := range w.runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.log.Error("runner stopped", "runner", name, "err", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				cancel()
			}
		}()
	}
	wg.Wait()
	w.log.Info("worker stopped")
	return errors.Join(errs...)
}
