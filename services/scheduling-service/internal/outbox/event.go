package outbox

import (
	"encoding/json"
	"fmt"

	"github.com/fureverhome/pawbook/libs/kafkax"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/events"
)

// Event is the envelope written to the outbox table. The Kafka topic is the
// EventType.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// FromDomain wraps a scheduling event for the outbox; topics look like
// scheduling.appointment.booked.v1.
func FromDomain(topicPrefix string, e events.Event) (Event, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", e.Name, err)
	}
	return Event{
		EventID:       e.ID,
		AggregateType: e.AggregateType(),
		AggregateID:   e.AggregateID(),
		EventType:     kafkax.Topic(topicPrefix, e.TopicSuffix()),
		Payload:       payload,
	}, nil
}
