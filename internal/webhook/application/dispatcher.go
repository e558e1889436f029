package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/payment-gateway/internal/webhook/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
	"github.com/dmehra2102/payment-gateway/pkg/queue"
)

const (
	DefaultTimeout  = 5 * time.Second
	maxResponseBody = 4 << 10
)

type DispatcherConfig struct {
	Policy  domain.Policy
	Timeout time.Duration
}

// Dispatcher drains the webhooks queue. Each job makes at most one POST and
// schedules the next attempt itself; queue-level retries only cover storage
// errors.
type Dispatcher struct {
	log       *slog.Logger
	repo      Repository
	merchants Merchants
	queue     queue.Queue
	client    *http.Client
	policy    domain.Policy
	timeout   time.Duration
	tracer    trace.Tracer
	now       func() time.Time
}

func NewDispatcher(log *slog.Logger, repo Repository, merchants Merchants, q queue.Queue, client *http.Client, cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Dispatcher{
		log:       log.With("component", "webhook-dispatcher"),
		repo:      repo,
		merchants: merchants,
		queue:     q,
		client:    client,
		policy:    cfg.Policy,
		timeout:   cfg.Timeout,
		tracer:    otel.Tracer("webhook-dispatcher"),
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

func (d *Dispatcher) Handle(ctx context.Context, job queue.Job) (queue.Result, error) {
	var in DeliverJob
	if err := job.Decode(&in); err != nil {
		return queue.Completed, err
	}
	log := d.log.With("log_id", in.LogID)

	l, err := d.repo.Get(ctx, in.LogID)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("webhook log not found, skipping")
		return queue.Skipped, nil
	}
	if err != nil {
		return queue.Completed, err
	}
	if !l.Deliverable() {
		log.Debug("webhook log not pending, skipping", "status", string(l.Status))
		return queue.Skipped, nil
	}
	if l.NextRetryAt != nil {
		// A redelivered job must not shortcut the backoff recorded with the log.
		if wait := l.NextRetryAt.Sub(d.now()); wait > 0 {
			log.Debug("webhook attempt not due, deferring", "retry_in", wait.String())
			if err := enqueue(ctx, d.queue, l.ID, wait); err != nil {
				return queue.Completed, err
			}
			return queue.Skipped, nil
		}
	}

	m, err := d.merchants.Get(ctx, l.MerchantID)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("merchant not found, skipping", "merchant_id", l.MerchantID)
		return queue.Skipped, nil
	}
	if err != nil {
		return queue.Completed, err
	}

	if !m.HasWebhook() {
		return d.save(ctx, log, l, l.SkipDelivery(d.now()), 0, false)
	}

	var body bytes.Buffer
	if err := json.Compact(&body, l.Payload); err != nil {
		return queue.Completed, fmt.Errorf("compact webhook payload %s: %w", l.ID, err)
	}
	resp := d.post(ctx, m.WebhookURL, m.WebhookSecret, body.Bytes())
	if ctx.Err() != nil {
		// Interrupted by shutdown; the attempt is not counted.
		return queue.Completed, ctx.Err()
	}

	next, delay, retry := l.Record(resp, d.policy, d.now())
	return d.save(context.WithoutCancel(ctx), log, l, next, delay, retry)
}

func (d *Dispatcher) save(ctx context.Context, log *slog.Logger, prev, next domain.Log, delay time.Duration, retry bool) (queue.Result, error) {
	ok, err := d.repo.Save(ctx, next, prev.Status, prev.Attempts)
	if err != nil {
		return queue.Completed, err
	}
	if !ok {
		log.Info("webhook log changed concurrently, skipping")
		return queue.Skipped, nil
	}

	attrs := []any{"status", string(next.Status), "attempts", next.Attempts}
	if next.ResponseCode != nil {
		attrs = append(attrs, "response_code", *next.ResponseCode)
	}
	switch next.Status {
	case domain.StatusSuccess:
		log.Info("webhook delivered", attrs...)
	case domain.StatusFailed:
		log.Error("webhook delivery exhausted", attrs...)
	default:
		log.Warn("webhook delivery failed", append(attrs, "retry_in", delay.String())...)
	}

	if retry {
		if err := enqueue(ctx, d.queue, next.ID, delay); err != nil {
			return queue.Completed, err
		}
	}
	return queue.Completed, nil
}

func (d *Dispatcher) post(ctx context.Context, url, secret string, body []byte) domain.Response {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	ctx, span := d.tracer.Start(ctx, "webhook.post", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.Response{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(domain.SignatureHeader, domain.Sign(secret, body))
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	res, err := d.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return domain.Response{Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		d.log.Debug("webhook response body truncated", "err", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	return domain.Response{Code: res.StatusCode, Body: string(data)}
}
