// Package notify fans scheduling events out to connected dashboards. Events
// are hints: a subscriber that misses one refetches and loses nothing.
package notify

import (
	"context"
	"log/slog"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/events"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/metrics"
)

// Sink receives events from the dispatcher.
type Sink interface {
	Deliver(ctx context.Context, evt events.Event) error
}

// Broadcaster decouples request handlers from delivery. Publish never
// blocks; when the queue is full the event is dropped and counted.
type Broadcaster struct {
	queue   chan events.Event
	sinks   []Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewBroadcaster(queueSize int, m *metrics.Metrics, logger *slog.Logger, sinks ...Sink) *Broadcaster {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Broadcaster{
		queue:   make(chan events.Event, queueSize),
		sinks:   sinks,
		metrics: m,
		logger:  logger,
	}
}

func (b *Broadcaster) Publish(evt events.Event) {
	select {
	case b.queue <- evt:
		b.metrics.ObserveEventPublished(string(evt.Name))
	default:
		b.metrics.ObserveEventDropped()
		b.logger.Warn("event queue full; dropping event", "event_id", evt.ID, "name", evt.Name)
	}
}

// Run delivers queued events to every sink until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-b.queue:
			for _, s := range b.sinks {
				if err := s.Deliver(ctx, evt); err != nil {
					b.logger.Warn("event delivery failed", "event_id", evt.ID, "name", evt.Name, "err", err)
				}
			}
		}
	}
}
