package queue

import (
	"context"
	"time"
)

type Queue interface {
	// Enqueue makes job deliverable once delay has elapsed; delay <= 0 means now.
	Enqueue(ctx context.Context, job Job, delay time.Duration) error
	// Reserve hands out the next due job, or nil when none is due.
	Reserve(ctx context.Context, name Name) (*Job, error)
	Ack(ctx context.Context, job Job) error
	// Retry returns an active job to the queue, deliverable after delay.
	Retry(ctx context.Context, job Job, delay time.Duration) error
	// Fail drops an active job and counts it as failed.
	Fail(ctx context.Context, job Job) error
	Stats(ctx context.Context, name Name) (Stats, error)
}

type Stats struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Pending counts jobs not yet handed to a worker, scheduled ones included.
func (s Stats) Pending() int64 {
	return s.Waiting + s.Delayed
}

func (s Stats) Add(o Stats) Stats {
	return Stats{
		Waiting:   s.Waiting + o.Waiting,
		Delayed:   s.Delayed + o.Delayed,
		Active:    s.Active + o.Active,
		Completed: s.Completed + o.Completed,
		Failed:    s.Failed + o.Failed,
	}
}

// Aggregate sums the counters of the named queues.
func Aggregate(ctx context.Context, q Queue, names ...Name) (Stats, error) {
	var total Stats
	for _, name := range names {
		s, err := q.Stats(ctx, name)
		if err != nil {
			return Stats{}, err
		}
		total = total.Add(s)
	}
	return total, nil
}
