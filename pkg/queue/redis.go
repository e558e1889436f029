package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// reserveScript promotes due delayed jobs, reclaims jobs whose lease expired,
// then moves the oldest waiting job into the active set under a fresh lease.
var reserveScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', '0', ARGV[2])
for _, job in ipairs(due) do
  redis.call('ZREM', KEYS[2], job)
  redis.call('LPUSH', KEYS[1], job)
end
local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[1], 'LIMIT', '0', ARGV[2])
for _, job in ipairs(expired) do
  redis.call('ZREM', KEYS[3], job)
  redis.call('RPUSH', KEYS[1], job)
end
local job = redis.call('RPOP', KEYS[1])
if not job then
  return false
end
redis.call('ZADD', KEYS[3], ARGV[3], job)
return job
`)

// Redis stores each queue as a wait list, a delayed sorted set scored by
// due time, an active sorted set scored by lease deadline, and two counters.
type Redis struct {
	rdb    *redis.Client
	prefix string
	lease  time.Duration
	batch  int
	now    func() time.Time
}

func NewRedis(rdb *redis.Client, prefix string, lease time.Duration) *Redis {
	if prefix == "" {
		prefix = "gateway:queue"
	}
	if lease <= 0 {
		lease = time.Minute
	}
	return &Redis{rdb: rdb, prefix: prefix, lease: lease, batch: 100, now: time.Now}
}

func (r *Redis) key(name Name, part string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, name, part)
}

func (r *Redis) Enqueue(ctx context.Context, job Job, delay time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if delay <= 0 {
		return r.rdb.LPush(ctx, r.key(job.Queue, "wait"), data).Err()
	}
	due := r.now().Add(delay).UnixMilli()
	return r.rdb.ZAdd(ctx, r.key(job.Queue, "delayed"), redis.Z{Score: float64(due), Member: data}).Err()
}

func (r *Redis) Reserve(ctx context.Context, name Name) (*Job, error) {
	keys := []string{r.key(name, "wait"), r.key(name, "delayed"), r.key(name, "active")}
	now := r.now()
	raw, err := reserveScript.Run(ctx, r.rdb, keys,
		now.UnixMilli(), r.batch, now.Add(r.lease).UnixMilli()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reserve %s: %w", name, err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// Unreadable entries would be redelivered forever; park them as failed.
		_, _ = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.ZRem(ctx, r.key(name, "active"), raw)
			p.Incr(ctx, r.key(name, "failed"))
			return nil
		})
		return nil, fmt.Errorf("decode %s job: %w", name, err)
	}
	job.raw = raw
	return &job, nil
}

func (r *Redis) Ack(ctx context.Context, job Job) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, r.key(job.Queue, "active"), job.raw)
		p.Incr(ctx, r.key(job.Queue, "completed"))
		return nil
	})
	return err
}

func (r *Redis) Retry(ctx context.Context, job Job, delay time.Duration) error {
	raw := job.raw
	job.raw = ""
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	due := r.now().Add(max(delay, 0)).UnixMilli()
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, r.key(job.Queue, "active"), raw)
		p.ZAdd(ctx, r.key(job.Queue, "delayed"), redis.Z{Score: float64(due), Member: data})
		return nil
	})
	return err
}

func (r *Redis) Fail(ctx context.Context, job Job) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, r.key(job.Queue, "active"), job.raw)
		p.Incr(ctx, r.key(job.Queue, "failed"))
		return nil
	})
	return err
}

func (r *Redis) Stats(ctx context.Context, name Name) (Stats, error) {
	var (
		wait, delayed, active *redis.IntCmd
		completed, failed     *redis.StringCmd
	)
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		wait = p.LLen(ctx, r.key(name, "wait"))
		delayed = p.ZCard(ctx, r.key(name, "delayed"))
		active = p.ZCard(ctx, r.key(name, "active"))
		completed = p.Get(ctx, r.key(name, "completed"))
		failed = p.Get(ctx, r.key(name, "failed"))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, fmt.Errorf("stats %s: %w", name, err)
	}

	return Stats{
		Waiting:   wait.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: counter(completed),
		Failed:    counter(failed),
	}, nil
}

func counter(cmd *redis.StringCmd) int64 {
	n, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return n
}
