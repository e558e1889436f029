package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/payment-gateway/pkg/tracing"
)

type PoolConfig struct {
	Concurrency  int
	PollInterval time.Duration
	// MaxAttempts bounds how often a job whose handler returned an error is
	// delivered before it is counted as failed.
	MaxAttempts int
	// RetryDelay is multiplied by the attempt number.
	RetryDelay time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// Pool drains one queue with a fixed number of goroutines.
type Pool struct {
	log     *slog.Logger
	q       Queue
	name    Name
	handler Handler
	cfg     PoolConfig
	tracer  trace.Tracer
}

func NewPool(log *slog.Logger, q Queue, name Name, handler Handler, cfg PoolConfig) *Pool {
	return &Pool{
		log:     log.With("queue", string(name)),
		q:       q,
		name:    name,
		handler: handler,
		cfg:     cfg.withDefaults(),
		tracer:  otel.Tracer("queue-pool"),
	}
}

func (p *Pool) Name() Name { return p.name }

// Run blocks until ctx is cancelled and every in-flight job has been settled.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("pool starting", "concurrency", p.cfg.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}
	wg.Wait()

	p.log.Info("pool stopped")
	return nil
}

func (p *Pool) loop(ctx context.Context) {
	t := time.NewTicker(p.cfg.PollInterval)
	defer t.Stop()

	for {
		for p.next(ctx) {
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// next processes one job. It reports false when the queue is idle or the
// pool is stopping.
func (p *Pool) next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	job, err := p.q.Reserve(ctx, p.name)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error("reserve failed", "err", err)
		}
		return false
	}
	if job == nil {
		return false
	}
	p.process(ctx, *job)
	return true
}

func (p *Pool) process(ctx context.Context, job Job) {
	jobCtx := tracing.Extract(ctx, job.Headers)
	jobCtx, span := p.tracer.Start(jobCtx, fmt.Sprintf("%s.%s", p.name, job.Type),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.Int("job.attempt", job.Attempt),
		))
	defer span.End()

	log := p.log.With("job_id", job.ID, "type", job.Type, "attempt", job.Attempt)
	res, err := p.invoke(jobCtx, job)

	// Settling the job must outlive a shutdown that interrupted the handler.
	settleCtx := context.WithoutCancel(ctx)

	switch {
	case err == nil:
		if ackErr := p.q.Ack(settleCtx, job); ackErr != nil {
			log.Error("ack failed", "err", ackErr)
		}
		log.Debug("job finished", "result", res.String())

	case ctx.Err() != nil:
		if rErr := p.q.Retry(settleCtx, job, 0); rErr != nil {
			log.Error("requeue on shutdown failed", "err", rErr)
		}
		log.Info("job interrupted by shutdown, requeued")

	case job.Attempt < p.cfg.MaxAttempts:
		span.RecordError(err)
		delay := p.cfg.RetryDelay * time.Duration(job.Attempt)
		next := job
		next.Attempt++
		if rErr := p.q.Retry(settleCtx, next, delay); rErr != nil {
			log.Error("retry schedule failed", "err", rErr)
		}
		log.Warn("job failed, retrying", "err", err, "delay", delay.String())

	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if fErr := p.q.Fail(settleCtx, job); fErr != nil {
			log.Error("fail bookkeeping failed", "err", fErr)
		}
		log.Error("job failed permanently", "err", err)
	}
}

func (p *Pool) invoke(ctx context.Context, job Job) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler.Handle(ctx, job)
}
