// Package events defines the single event schema shared by websocket
// subscribers, the Redis relay and the Kafka outbox.
package events

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

type Name string

const (
	AppointmentBooked    Name = "appointmentBooked"
	AppointmentConfirmed Name = "appointmentConfirmed"
	AppointmentCompleted Name = "appointmentCompleted"
	AppointmentCancelled Name = "appointmentCancelled"
	AppointmentUpdated   Name = "appointmentUpdated"
	AvailabilityChanged  Name = "availabilityChanged"
)

// Event is a cache-invalidation hint. Consumers that miss one resynchronize
// by querying; nothing relies on delivery for correctness.
type Event struct {
	ID             string          `json:"id"`
	Name           Name            `json:"name"`
	AppointmentID  string          `json:"appointment_id,omitempty"`
	ProfessionalID string          `json:"professional_id"`
	RequesterID    string          `json:"requester_id,omitempty"`
	Status         model.Status    `json:"status,omitempty"`
	Date           string          `json:"date,omitempty"`
	Time           string          `json:"time,omitempty"`
	Initiator      model.Initiator `json:"initiator,omitempty"`
	From           string          `json:"from,omitempty"`
	To             string          `json:"to,omitempty"`
	Available      *bool           `json:"available,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func ForAppointment(name Name, a model.Appointment, at time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		Name:           name,
		AppointmentID:  a.ID,
		ProfessionalID: a.ProfessionalID,
		RequesterID:    a.RequesterID,
		Status:         a.Status,
		Date:           a.Date.String(),
		Time:           a.Time.String(),
		OccurredAt:     at.UTC(),
	}
}

func Cancelled(a model.Appointment, by model.Initiator, at time.Time) Event {
	e := ForAppointment(AppointmentCancelled, a, at)
	e.Initiator = by
	return e
}

func AvailabilityChangedFor(professionalID string, from, to model.Date, available bool, at time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		Name:           AvailabilityChanged,
		ProfessionalID: professionalID,
		From:           from.String(),
		To:             to.String(),
		Available:      &available,
		OccurredAt:     at.UTC(),
	}
}

func ProfessionalChannel(id string) string { return "professional:" + id }

func RequesterChannel(id string) string { return "requester:" + id }

// Channels lists the logical channels the event is delivered on.
func (e Event) Channels() []string {
	chans := []string{ProfessionalChannel(e.ProfessionalID)}
	if e.RequesterID != "" {
		chans = append(chans, RequesterChannel(e.RequesterID))
	}
	return chans
}

// TopicSuffix maps the event name onto a dotted Kafka topic segment, e.g.
// appointmentBooked -> appointment.booked.
func (e Event) TopicSuffix() string {
	var b strings.Builder
	for i, r := range string(e.Name) {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// AggregateID is the outbox partition key: the appointment when there is one,
// otherwise the professional.
func (e Event) AggregateID() string {
	if e.AppointmentID != "" {
		return e.AppointmentID
	}
	return e.ProfessionalID
}

func (e Event) AggregateType() string {
	if e.AppointmentID != "" {
		return "appointment"
	}
	return "professional"
}
