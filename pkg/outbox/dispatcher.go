package outbox

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// Reserved headers set on every published event. Event.Headers cannot
// override them.
const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
	HeaderAggregateID   = "aggregate_id"
	HeaderTraceparent   = "traceparent"
	HeaderContentType   = "content-type"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Router picks the topic an event is published to.
type Router func(Event) string

// SingleTopic sends every event to topic.
func SingleTopic(topic string) Router {
	return func(Event) string { return topic }
}

// TopicPerAggregate sends events to "<base>.<aggregate type>", such as
// gateway.events.refund. Events without an aggregate type go to base.
func TopicPerAggregate(base string) Router {
	return func(e Event) string {
		if e.AggregateType == "" {
			return base
		}
		return base + "." + e.AggregateType
	}
}

type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	route    Router
}

func NewDispatcher(log *slog.Logger, producer Producer, route Router) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, route: route}
}

// Dispatch publishes event keyed by its aggregate id, so every event of one
// payment or refund lands on the same partition.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	msg := kafka.Message{
		Topic:   d.route(event),
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers(event),
		Time:    event.CreatedAt,
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		d.log.Error("outbox dispatch failed", "event_id", event.ID, "topic", msg.Topic, "err", err)
		return err
	}
	d.log.Debug("outbox dispatched", "event_id", event.ID, "type", event.Type, "topic", msg.Topic)
	return nil
}

func headers(event Event) []kafka.Header {
	set := maps.Clone(event.Headers)
	if set == nil {
		set = make(map[string]string, 6)
	}
	set[HeaderEventID] = strconv.FormatInt(event.ID, 10)
	set[HeaderEventType] = event.Type
	set[HeaderAggregateID] = event.AggregateID
	set[HeaderContentType] = "application/json"
	if event.AggregateType != "" {
		set[HeaderAggregateType] = event.AggregateType
	}
	if event.Traceparent != "" {
		set[HeaderTraceparent] = event.Traceparent
	} else {
		delete(set, HeaderTraceparent)
	}

	out := make([]kafka.Header, 0, len(set))
	for _, k := range slices.Sorted(maps.Keys(set)) {
		out = append(out, kafka.Header{Key: k, Value: []byte(set[k])})
	}
	return out
}
