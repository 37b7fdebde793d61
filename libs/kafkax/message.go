package kafkax

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
)

// Header keys set on every message the outbox publisher writes.
const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
)

// Envelope is one domain event ready for Kafka. Key keeps every event of an
// aggregate on the same partition, so consumers see them in order.
type Envelope struct {
	Topic         string
	Key           string
	EventID       string
	EventType     string
	AggregateType string
	Payload       []byte
}

// NewMessage builds the Kafka message for env and carries the span in ctx
// as W3C trace headers.
func NewMessage(ctx context.Context, env Envelope) kafka.Message {
	headers := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(env.EventID)},
		{Key: HeaderEventType, Value: []byte(env.EventType)},
	}
	if env.AggregateType != "" {
		headers = append(headers, kafka.Header{Key: HeaderAggregateType, Value: []byte(env.AggregateType)})
	}
	return kafka.Message{
		Topic:   env.Topic,
		Key:     []byte(env.Key),
		Value:   env.Payload,
		Headers: InjectTraceHeaders(ctx, headers),
	}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Topic builds "<prefix>.<name>.v1", e.g. scheduling.appointment.booked.v1.
func Topic(prefix, name string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return name + ".v1"
	}
	return prefix + "." + name + ".v1"
}
