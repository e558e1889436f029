package queue

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Queue. It has no leases: a job stays active until
// acknowledged, retried or failed.
type Memory struct {
	mu     sync.Mutex
	now    func() time.Time
	queues map[Name]*memQueue
}

type memQueue struct {
	ready     []scheduled
	active    map[string]Job
	completed int64
	failed    int64
}

type scheduled struct {
	job Job
	at  time.Time
}

func NewMemory() *Memory {
	return &Memory{
		now:    time.Now,
		queues: make(map[Name]*memQueue),
	}
}

func (m *Memory) queue(name Name) *memQueue {
	q, ok := m.queues[name]
	if !ok {
		q = &memQueue{active: make(map[string]Job)}
		m.queues[name] = q
	}
	return q
}

func (m *Memory) Enqueue(_ context.Context, job Job, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue(job.Queue)
	q.ready = append(q.ready, scheduled{job: job, at: m.now().Add(max(delay, 0))})
	return nil
}

func (m *Memory) Reserve(_ context.Context, name Name) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue(name)
	now := m.now()
	pick := -1
	for i, s := range q.ready {
		if s.at.After(now) {
			continue
		}
		if pick < 0 || s.at.Before(q.ready[pick].at) {
			pick = i
		}
	}
	if pick < 0 {
		return nil, nil
	}

	job := q.ready[pick].job
	q.ready = append(q.ready[:pick], q.ready[pick+1:]...)
	q.active[job.ID] = job
	return &job, nil
}

func (m *Memory) Ack(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue(job.Queue)
	delete(q.active, job.ID)
	q.completed++
	return nil
}

func (m *Memory) Retry(_ context.Context, job Job, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue(job.Queue)
	delete(q.active, job.ID)
	q.ready = append(q.ready, scheduled{job: job, at: m.now().Add(max(delay, 0))})
	return nil
}

func (m *Memory) Fail(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue(job.Queue)
	delete(q.active, job.ID)
	q.failed++
	return nil
}

func (m *Memory) Stats(_ context.Context, name Name) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue(name)
	now := m.now()
	s := Stats{
		Active:    int64(len(q.active)),
		Completed: q.completed,
		Failed:    q.failed,
	}
	for _, r := range q.ready {
		if r.at.After(now) {
			s.Delayed++
		} else {
			s.Waiting++
		}
	}
	return s, nil
}

// Scheduled returns the queued jobs of name with their delivery instants.
// Tests use it to assert on backoff.
func (m *Memory) Scheduled(name Name) map[string]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]time.Time)
	for _, s := range m.queue(name).ready {
		out[s.job.ID] = s.at
	}
	return out
}

// Jobs returns a copy of the queued (not active) jobs of name.
func (m *Memory) Jobs(name Name) []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue(name)
	out := make([]Job, 0, len(q.ready))
	for _, s := range q.ready {
		out = append(out, s.job)
	}
	return out
}

// SetClock replaces the time source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
