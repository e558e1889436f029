package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/webhook/domain"
	"github.com/dmehra2102/payment-gateway/pkg/queue"
)

const JobDeliver = "deliver"

type DeliverJob struct {
	LogID string `json:"log_id"`
}

// Notifier records a webhook log for an event and schedules its first
// delivery attempt.
type Notifier struct {
	log   *slog.Logger
	repo  Repository
	queue queue.Queue
	now   func() time.Time
}

func NewNotifier(log *slog.Logger, repo Repository, q queue.Queue) *Notifier {
	return &Notifier{log: log, repo: repo, queue: q, now: time.Now}
}

func (n *Notifier) Notify(ctx context.Context, merchantID, event string, data any) error {
	payload, err := json.Marshal(domain.NewEnvelope(event, data, n.now()))
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}

	l := domain.NewLog(merchantID, event, payload, n.now())
	if err := n.repo.Create(ctx, l); err != nil {
		return fmt.Errorf("create webhook log: %w", err)
	}
	if err := enqueue(ctx, n.queue, l.ID, 0); err != nil {
		return err
	}
	n.log.Debug("webhook scheduled", "log_id", l.ID, "event", event, "merchant_id", merchantID)
	return nil
}

func enqueue(ctx context.Context, q queue.Queue, logID string, delay time.Duration) error {
	job, err := queue.NewJob(ctx, queue.Webhooks, JobDeliver, DeliverJob{LogID: logID})
	if err != nil {
		return err
	}
	if err := q.Enqueue(ctx, job, delay); err != nil {
		return fmt.Errorf("enqueue webhook %s: %w", logID, err)
	}
	return nil
}
