package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
	"github.com/dmehra2102/payment-gateway/pkg/queue"
)

// PaymentProcessor settles pending payments from the payments queue. Jobs for
// missing or already settled payments are skipped, so redelivery is harmless.
type PaymentProcessor struct {
	log      *slog.Logger
	repo     Repository
	sim      *Simulator
	notifier Notifier
	now      func() time.Time
}

func NewPaymentProcessor(log *slog.Logger, repo Repository, sim *Simulator, notifier Notifier) *PaymentProcessor {
	return &PaymentProcessor{
		log:      log.With("component", "payment-processor"),
		repo:     repo,
		sim:      sim,
		notifier: notifier,
		now:      time.Now,
	}
}

func (p *PaymentProcessor) Handle(ctx context.Context, job queue.Job) (queue.Result, error) {
	var in PaymentJob
	if err := job.Decode(&in); err != nil {
		return queue.Completed, err
	}
	log := p.log.With("payment_id", in.PaymentID)

	pay, err := p.repo.FindPayment(ctx, in.PaymentID)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("payment not found, skipping")
		return queue.Skipped, nil
	}
	if err != nil {
		return queue.Completed, err
	}
	if pay.Terminal() {
		log.Debug("payment already settled, skipping", "status", string(pay.Status))
		return queue.Skipped, nil
	}

	if err := sleep(ctx, p.sim.PaymentDelay()); err != nil {
		return queue.Completed, err
	}

	// Past the delay the outcome is decided; finish it even if the worker
	// is shutting down.
	ctx = context.WithoutCancel(ctx)

	settled, err := pay.Settle(p.sim.Succeeds(pay.Method()), p.now())
	if err != nil {
		return queue.Skipped, nil
	}
	ok, err := p.repo.SettlePayment(ctx, settled)
	if err != nil {
		return queue.Completed, err
	}
	if !ok {
		log.Info("payment settled concurrently, skipping")
		return queue.Skipped, nil
	}
	log.Info("payment settled", "status", string(settled.Status), "method", string(settled.Method()))

	data := map[string]any{"payment": settled.Snapshot()}
	if err := p.notifier.Notify(ctx, settled.MerchantID, settled.Event(), data); err != nil {
		log.Error("payment webhook not scheduled", "err", err)
		return queue.Completed, err
	}
	return queue.Completed, nil
}

// RefundProcessor settles pending refunds from the refunds queue. There is no
// failed refund state: a refund that cannot be written is left pending and
// its job retried by the queue.
type RefundProcessor struct {
	log      *slog.Logger
	repo     Repository
	sim      *Simulator
	notifier Notifier
	now      func() time.Time
}

func NewRefundProcessor(log *slog.Logger, repo Repository, sim *Simulator, notifier Notifier) *RefundProcessor {
	return &RefundProcessor{
		log:      log.With("component", "refund-processor"),
		repo:     repo,
		sim:      sim,
		notifier: notifier,
		now:      time.Now,
	}
}

func (p *RefundProcessor) Handle(ctx context.Context, job queue.Job) (queue.Result, error) {
	var in RefundJob
	if err := job.Decode(&in); err != nil {
		return queue.Completed, err
	}
	log := p.log.With("refund_id", in.RefundID)

	refund, err := p.repo.FindRefund(ctx, in.RefundID)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("refund not found, skipping")
		return queue.Skipped, nil
	}
	if err != nil {
		return queue.Completed, err
	}

	if refund.Status == domain.RefundProcessed {
		log.Debug("refund already processed, skipping")
		return queue.Skipped, nil
	}

	if err := sleep(ctx, p.sim.RefundDelay()); err != nil {
		return queue.Completed, err
	}
	ctx = context.WithoutCancel(ctx)

	processed, _ := refund.Process(p.now())
	ok, err := p.repo.ProcessRefund(ctx, processed)
	if err != nil {
		return queue.Completed, err
	}
	if !ok {
		log.Info("refund processed concurrently, skipping")
		return queue.Skipped, nil
	}
	log.Info("refund processed", "amount", processed.Amount)

	data := map[string]any{"refund": processed.Snapshot()}
	if err := p.notifier.Notify(ctx, processed.MerchantID, domain.EventRefundProcessed, data); err != nil {
		log.Error("refund webhook not scheduled", "err", err)
		return queue.Completed, err
	}
	return queue.Completed, nil
}
