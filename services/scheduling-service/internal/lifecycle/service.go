package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	otelx "github.com/fureverhome/pawbook/libs/otel"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/events"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/metrics"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

type Store interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, expected model.Status, appt model.Appointment, evt events.Event) error
}

// Invalidator drops cached month views after a slot is released.
type Invalidator interface {
	Invalidate(ctx context.Context, professionalID string, from, to model.Date)
}

type Publisher interface {
	Publish(evt events.Event)
}

type UpdateRequest struct {
	AppointmentID string              `json:"-"`
	Status        model.Status        `json:"status"`
	Reason        string              `json:"reason,omitempty"`
	Notes         string              `json:"notes,omitempty"`
	Pet           model.PetDescriptor `json:"pet,omitempty"`
}

type Service struct {
	store   Store
	cache   Invalidator
	pub     Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store Store, cache Invalidator, pub Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, pub: pub, metrics: m, logger: logger, now: time.Now}
}

// UpdateStatus applies one transition. The write is a compare-and-swap on
// the status that was read; after losing a race the appointment is re-read
// and the request re-validated once.
func (s *Service) UpdateStatus(ctx context.Context, actor model.Actor, req UpdateRequest) (model.Appointment, error) {
	ctx, span := otelx.Tracer("scheduling/lifecycle").Start(ctx, "UpdateStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment_id", req.AppointmentID),
		attribute.String("status", string(req.Status)),
	)

	appt, err := s.updateStatus(ctx, actor, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	}
	return appt, err
}

func (s *Service) updateStatus(ctx context.Context, actor model.Actor, req UpdateRequest) (model.Appointment, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	req.Notes = strings.TrimSpace(req.Notes)
	if !req.Status.Valid() {
		return model.Appointment{}, apperr.Invalid("status", fmt.Sprintf("unknown status %q", req.Status))
	}

	for attempt := 0; ; attempt++ {
		cur, err := s.store.GetAppointment(ctx, req.AppointmentID)
		if err != nil {
			return model.Appointment{}, err
		}
		next, evt, noop, err := s.plan(actor, cur, req)
		if err != nil {
			s.metrics.ObserveTransition(string(cur.Status), string(req.Status), string(apperr.KindOf(err)))
			return model.Appointment{}, err
		}
		if noop {
			return cur, nil
		}

		err = s.store.UpdateAppointment(ctx, cur.Status, next, evt)
		if errors.Is(err, apperr.ErrConcurrentUpdate) && attempt == 0 {
			s.logger.Info("status update lost a race; retrying", "appointment_id", cur.ID)
			continue
		}
		if err != nil {
			s.metrics.ObserveTransition(string(cur.Status), string(req.Status), "error")
			return model.Appointment{}, fmt.Errorf("update appointment %s: %w", cur.ID, err)
		}

		if cur.Status.HoldsReservation() && !next.Status.HoldsReservation() {
			s.cache.Invalidate(ctx, next.ProfessionalID, next.Date, next.Date)
		}
		s.pub.Publish(evt)
		s.metrics.ObserveTransition(string(cur.Status), string(next.Status), "ok")
		s.logger.Info("appointment status changed",
			"appointment_id", next.ID,
			"from", cur.Status,
			"to", next.Status,
			"actor_id", actor.ID,
		)
		return next, nil
	}
}

func (s *Service) plan(actor model.Actor, cur model.Appointment, req UpdateRequest) (model.Appointment, events.Event, bool, error) {
	initiator, err := authorize(actor, cur, req.Status)
	if err != nil {
		return model.Appointment{}, events.Event{}, false, err
	}
	if cur.Status == model.StatusCancelled && req.Status == model.StatusCancelled {
		return cur, events.Event{}, true, nil
	}
	if err := Transition(cur.Status, req.Status); err != nil {
		return model.Appointment{}, events.Event{}, false, err
	}

	at := s.now().UTC()
	next := cur
	next.Status = req.Status
	next.UpdatedAt = at

	var evt events.Event
	switch req.Status {
	case model.StatusConfirmed:
		next.Pet = cur.Pet.Merge(req.Pet)
		if !next.Pet.Complete() {
			return model.Appointment{}, events.Event{}, false, apperr.Invalid("pet", "name and type are required before confirming")
		}
		evt = events.ForAppointment(events.AppointmentConfirmed, next, at)
	case model.StatusCompleted:
		next.CompletionNotes = req.Notes
		evt = events.ForAppointment(events.AppointmentCompleted, next, at)
	case model.StatusCancelled:
		if initiator == model.InitiatorProfessional && req.Reason == "" {
			return model.Appointment{}, events.Event{}, false, apperr.Invalid("reason", "required when the professional cancels")
		}
		next.CancellationReason = req.Reason
		next.CancelledBy = initiator
		evt = events.Cancelled(next, initiator, at)
	case model.StatusNotAvailable:
		next.CancellationReason = req.Reason
		next.CancelledBy = initiator
		evt = events.ForAppointment(events.AppointmentUpdated, next, at)
	}
	return next, evt, false, nil
}

// authorize allows the owning professional every transition and the
// requester only cancellation.
func authorize(actor model.Actor, cur model.Appointment, to model.Status) (model.Initiator, error) {
	switch {
	case !actor.Valid():
		return "", apperr.Forbidden("update appointment", "unknown caller")
	case actor.Owns(cur.ProfessionalID):
		return model.InitiatorProfessional, nil
	case actor.ID == cur.RequesterID:
		if to != model.StatusCancelled {
			return "", apperr.Forbidden("set status "+string(to), "only the professional may do this")
		}
		return model.InitiatorRequester, nil
	default:
		return "", apperr.Forbidden("update appointment", "not a participant")
	}
}

// UpdatePetDetails fills in free-text pet fields on a live appointment.
func (s *Service) UpdatePetDetails(ctx context.Context, actor model.Actor, appointmentID string, pet model.PetDescriptor) (model.Appointment, error) {
	for attempt := 0; ; attempt++ {
		cur, err := s.store.GetAppointment(ctx, appointmentID)
		if err != nil {
			return model.Appointment{}, err
		}
		if !actor.Valid() || (!actor.Owns(cur.ProfessionalID) && actor.ID != cur.RequesterID) {
			return model.Appointment{}, apperr.Forbidden("update pet details", "not a participant")
		}
		if cur.Status.Terminal() {
			return model.Appointment{}, &apperr.StateError{Current: string(cur.Status), Requested: string(cur.Status)}
		}
		next := cur
		next.Pet = cur.Pet.Merge(pet)
		if next.Pet == cur.Pet {
			return cur, nil
		}
		next.UpdatedAt = s.now().UTC()
		evt := events.ForAppointment(events.AppointmentUpdated, next, next.UpdatedAt)

		err = s.store.UpdateAppointment(ctx, cur.Status, next, evt)
		if errors.Is(err, apperr.ErrConcurrentUpdate) && attempt == 0 {
			continue
		}
		if err != nil {
			return model.Appointment{}, fmt.Errorf("update appointment %s: %w", cur.ID, err)
		}
		s.pub.Publish(evt)
		return next, nil
	}
}
