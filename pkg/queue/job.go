// Package queue provides the durable work queues drained by the gateway
// workers. Delivery is at-least-once: handlers must tolerate redelivery.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/payment-gateway/pkg/tracing"
)

type Name string

const (
	Payments Name = "payments"
	Webhooks Name = "webhooks"
	Refunds  Name = "refunds"
)

// Names lists every queue the gateway runs.
func Names() []Name {
	return []Name{Payments, Webhooks, Refunds}
}

type Job struct {
	ID         string            `json:"id"`
	Queue      Name              `json:"queue"`
	Type       string            `json:"type"`
	Payload    json.RawMessage   `json:"payload"`
	Headers    map[string]string `json:"headers,omitempty"`
	Attempt    int               `json:"attempt"`
	EnqueuedAt time.Time         `json:"enqueued_at"`

	// raw is the encoded form held by the backend while the job is active.
	raw string
}

// NewJob builds a first-attempt job and captures the caller's trace context
// in its headers.
func NewJob(ctx context.Context, name Name, typ string, payload any) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("encode %s job payload: %w", name, err)
	}
	return Job{
		ID:         uuid.NewString(),
		Queue:      name,
		Type:       typ,
		Payload:    data,
		Headers:    tracing.Inject(ctx, nil),
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s job %s: %w", j.Queue, j.ID, err)
	}
	return nil
}

// Result tells the pool whether a handler did work or found nothing to do.
// Both are successful outcomes and acknowledge the job.
type Result int

const (
	Completed Result = iota
	// Skipped marks a job whose target was missing or already past the state
	// the job was meant to act on.
	Skipped
)

func (r Result) String() string {
	if r == Skipped {
		return "skipped"
	}
	return "completed"
}

type Handler interface {
	Handle(ctx context.Context, job Job) (Result, error)
}

type HandlerFunc func(ctx context.Context, job Job) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, job Job) (Result, error) {
	return f(ctx, job)
}
