package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// DefaultMaxAttempts bounds automatic delivery; after it the log is failed
// until an operator re-arms it.
const DefaultMaxAttempts = 5

// Log is the audit record of one notifiable event. It is created once and
// mutated in place by every delivery attempt.
type Log struct {
	ID            string
	MerchantID    string
	Event         string
	Payload       json.RawMessage
	Status        Status
	Attempts      int
	LastAttemptAt *time.Time
	NextRetryAt   *time.Time
	ResponseCode  *int
	ResponseBody  *string
	CreatedAt     time.Time
}

func NewLog(merchantID, event string, payload json.RawMessage, now time.Time) Log {
	return Log{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		Event:      event,
		Payload:    payload,
		Status:     StatusPending,
		CreatedAt:  now.UTC(),
	}
}

// Deliverable reports whether a delivery job should act on the log.
func (l Log) Deliverable() bool {
	return l.Status == StatusPending
}

// Response is what came back from one POST. Err is set when no response was
// received at all (timeout, refused connection).
type Response struct {
	Code int
	Body string
	Err  error
}

func (r Response) OK() bool {
	return r.Err == nil && r.Code >= 200 && r.Code < 300
}

// Policy decides what happens after a failed attempt.
type Policy struct {
	Schedule    Schedule
	MaxAttempts int
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Record applies the outcome of an attempt. When the log stays pending it
// returns retry=true and the delay before the next attempt.
func (l Log) Record(resp Response, p Policy, now time.Time) (next Log, delay time.Duration, retry bool) {
	now = now.UTC()
	next = l
	next.Attempts++
	next.LastAttemptAt = &now
	next.NextRetryAt = nil

	if resp.Err != nil {
		msg := resp.Err.Error()
		next.ResponseCode = nil
		next.ResponseBody = &msg
	} else {
		code, body := resp.Code, resp.Body
		next.ResponseCode = &code
		next.ResponseBody = &body
	}

	switch {
	case resp.OK():
		next.Status = StatusSuccess
		return next, 0, false
	case next.Attempts >= p.maxAttempts():
		next.Status = StatusFailed
		return next, 0, false
	}

	next.Status = StatusPending
	delay = p.Schedule.Delay(next.Attempts + 1)
	at := now.Add(delay)
	next.NextRetryAt = &at
	return next, delay, true
}

// SkipDelivery marks the log delivered without a request; used when the
// merchant has no endpoint configured.
func (l Log) SkipDelivery(now time.Time) Log {
	now = now.UTC()
	l.Attempts++
	l.LastAttemptAt = &now
	l.NextRetryAt = nil
	l.Status = StatusSuccess
	return l
}

// Rearm resets the log for another round of automatic delivery.
func (l Log) Rearm() Log {
	l.Status = StatusPending
	l.Attempts = 0
	l.NextRetryAt = nil
	return l
}
