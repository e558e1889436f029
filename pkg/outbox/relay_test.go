package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/outbox"
)

type fakeStore struct {
	mu     sync.Mutex
	events map[int64]*outbox.Event
	order  []int64
}

func newFakeStore(events ...outbox.Event) *fakeStore {
	s := &fakeStore{events: map[int64]*outbox.Event{}}
	for i := range events {
		e := events[i]
		e.Status = outbox.StatusPending
		s.events[e.ID] = &e
		s.order = append(s.order, e.ID)
	}
	return s
}

func (s *fakeStore) LockBatch(_ context.Context, _ string, batchSize int, _ time.Duration) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.Event
	for _, id := range s.order {
		e := s.events[id]
		if e.Status != outbox.StatusPending || len(out) == batchSize {
			continue
		}
		e.Status = outbox.StatusInProgress
		out = append(out, *e)
	}
	return out, nil
}

func (s *fakeStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.events[id].Status = outbox.StatusSent
	}
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64, errMsg string, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.events[id]
	e.RetryCount++
	e.LastError = &errMsg
	if e.RetryCount >= maxRetries {
		e.Status = outbox.StatusFailed
	} else {
		e.Status = outbox.StatusPending
	}
	return nil
}

func (s *fakeStore) status(id int64) outbox.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[id].Status
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	fail map[string]bool
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if p.fail[string(m.Key)] {
			return errors.New("broker unavailable")
		}
		p.msgs = append(p.msgs, m)
	}
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestRelay_FlushPublishesAndMarksSent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(
		outbox.Event{ID: 1, AggregateType: "payment", AggregateID: "pay_1", Type: "payment.created", Payload: []byte(`{}`)},
		outbox.Event{ID: 2, AggregateType: "payment", AggregateID: "pay_1", Type: "payment.success", Payload: []byte(`{}`), Traceparent: "00-abc-def-01"},
	)
	producer := &fakeProducer{}
	relay := outbox.NewRelay(logging.Discard(), store, outbox.NewDispatcher(logging.Discard(), producer, outbox.SingleTopic("gateway.events")), "relay-1")

	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, outbox.StatusSent, store.status(1))
	require.Equal(t, outbox.StatusSent, store.status(2))

	require.Len(t, producer.msgs, 2)
	require.Equal(t, "gateway.events", producer.msgs[0].Topic)
	require.Equal(t, "pay_1", string(producer.msgs[0].Key))
	require.Equal(t, "payment.created", header(producer.msgs[0], "event_type"))
	require.Equal(t, "00-abc-def-01", header(producer.msgs[1], "traceparent"))
	require.Equal(t, "payment", header(producer.msgs[0], "aggregate_type"))
	require.Equal(t, "1", header(producer.msgs[0], "event_id"))
	require.Equal(t, "2", header(producer.msgs[1], "event_id"))

	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRelay_FailedPublishRetriedThenParked(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(
		outbox.Event{ID: 1, AggregateID: "rfnd_bad", Type: "refund.created", Payload: []byte(`{}`)},
		outbox.Event{ID: 2, AggregateID: "rfnd_ok", Type: "refund.created", Payload: []byte(`{}`)},
	)
	producer := &fakeProducer{fail: map[string]bool{"rfnd_bad": true}}
	relay := outbox.NewRelay(logging.Discard(), store, outbox.NewDispatcher(logging.Discard(), producer, outbox.SingleTopic("t")), "relay-1")

	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, outbox.StatusPending, store.status(1))
	require.Equal(t, outbox.StatusSent, store.status(2))

	for i := 1; i < outbox.DefaultMaxRetries; i++ {
		_, err := relay.Flush(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, outbox.StatusFailed, store.status(1))

	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestDispatcher_RoutesAndHeaders(t *testing.T) {
	ctx := context.Background()
	producer := &fakeProducer{}
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := outbox.NewDispatcher(logging.Discard(), producer, outbox.TopicPerAggregate("gateway.events"))

	require.NoError(t, d.Dispatch(ctx, outbox.Event{
		ID: 7, AggregateType: "refund", AggregateID: "rfnd_1", Type: "refund.processed",
		Payload: []byte(`{}`), CreatedAt: created,
		Headers: map[string]string{"event_type": "spoofed", "merchant_id": "m1"},
	}))
	require.NoError(t, d.Dispatch(ctx, outbox.Event{ID: 8, AggregateID: "x", Type: "misc", Payload: []byte(`{}`)}))

	require.Len(t, producer.msgs, 2)
	refund := producer.msgs[0]
	require.Equal(t, "gateway.events.refund", refund.Topic)
	require.Equal(t, created, refund.Time)
	require.Equal(t, "refund.processed", header(refund, "event_type"))
	require.Equal(t, "refund", header(refund, "aggregate_type"))
	require.Equal(t, "rfnd_1", header(refund, "aggregate_id"))
	require.Equal(t, "7", header(refund, "event_id"))
	require.Equal(t, "m1", header(refund, "merchant_id"))
	require.Empty(t, header(refund, "traceparent"))

	require.Equal(t, "gateway.events", producer.msgs[1].Topic)
	require.Empty(t, header(producer.msgs[1], "aggregate_type"))
}
