// Package booking turns a requester's slot choice into a pending appointment.
// The store's atomic check-and-reserve is the final word on conflicts; the
// checks here only produce precise errors for the common cases.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	otelx "github.com/fureverhome/pawbook/libs/otel"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/availability"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/events"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/metrics"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/slots"
)

const (
	maxReasonLen = 500
	maxNotesLen  = 2000
)

// Store is the write side the coordinator needs.
type Store interface {
	CreateAppointment(ctx context.Context, appt model.Appointment, evt events.Event) error
}

// Publisher must not block.
type Publisher interface {
	Publish(evt events.Event)
}

type BookingRequest struct {
	ProfessionalID string              `json:"professional_id"`
	Date           model.Date          `json:"date"`
	Time           model.TimeOfDay     `json:"time"`
	Pet            model.PetDescriptor `json:"pet"`
	Reason         string              `json:"reason,omitempty"`
	Notes          string              `json:"notes,omitempty"`
}

type Coordinator struct {
	store   Store
	avail   *availability.Service
	pub     Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	loc     *time.Location
	now     func() time.Time
	newID   func() string
}

type Option func(*Coordinator)

// WithLocation sets the zone "today" is computed in.
func WithLocation(loc *time.Location) Option {
	return func(c *Coordinator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

func NewCoordinator(store Store, avail *availability.Service, pub Publisher, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		avail:   avail,
		pub:     pub,
		metrics: m,
		logger:  logger,
		loc:     time.UTC,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BookAppointment creates a pending appointment for actor and reserves the
// slot. Losing a race surfaces as *apperr.SlotTakenError.
func (c *Coordinator) BookAppointment(ctx context.Context, actor model.Actor, req BookingRequest) (model.Appointment, error) {
	ctx, span := otelx.Tracer("scheduling/booking").Start(ctx, "BookAppointment")
	defer span.End()
	span.SetAttributes(
		attribute.String("professional_id", req.ProfessionalID),
		attribute.String("date", req.Date.String()),
		attribute.String("time", req.Time.String()),
	)

	appt, err := c.book(ctx, actor, req)
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	c.metrics.ObserveBooking(outcome)
	return appt, err
}

func (c *Coordinator) book(ctx context.Context, actor model.Actor, req BookingRequest) (model.Appointment, error) {
	req.Pet = trimPet(req.Pet)
	req.Reason = strings.TrimSpace(req.Reason)
	req.Notes = strings.TrimSpace(req.Notes)
	if err := validate(actor, req); err != nil {
		return model.Appointment{}, err
	}

	now := c.now().In(c.loc)
	today := model.DateOf(now)
	if req.Date.Before(today) {
		return model.Appointment{}, &apperr.PastDateError{Date: req.Date.String()}
	}
	if req.Date == today && req.Time.Minutes() <= now.Hour()*60+now.Minute() {
		return model.Appointment{}, &apperr.PastDateError{Date: req.Date.String(), Time: req.Time.String()}
	}

	day, err := c.avail.Day(ctx, req.ProfessionalID, req.Date)
	if err != nil {
		return model.Appointment{}, wrapStore("read availability", err)
	}
	if day.Unavailable || day.FullyBooked() {
		return model.Appointment{}, &apperr.DayUnavailableError{
			ProfessionalID: req.ProfessionalID,
			Date:           req.Date.String(),
			FullyBooked:    !day.Unavailable,
		}
	}
	if !slots.Contains(day.Potential, req.Time) {
		return model.Appointment{}, apperr.Invalid("time", fmt.Sprintf("%s is not a bookable slot on %s", req.Time, req.Date))
	}
	if !slots.Contains(day.Available, req.Time) {
		return model.Appointment{}, &apperr.SlotTakenError{ProfessionalID: req.ProfessionalID, Date: req.Date.String(), Time: req.Time.String()}
	}

	at := c.now().UTC()
	appt := model.Appointment{
		ID:               c.newID(),
		ProfessionalID:   req.ProfessionalID,
		ProfessionalType: day.Professional.Role,
		Date:             req.Date,
		Time:             req.Time,
		DurationMinutes:  day.Professional.ConsultationMinutes,
		RequesterID:      actor.ID,
		Pet:              req.Pet,
		Reason:           req.Reason,
		Notes:            req.Notes,
		Status:           model.StatusPending,
		CreatedAt:        at,
		UpdatedAt:        at,
	}
	evt := events.ForAppointment(events.AppointmentBooked, appt, at)
	if err := c.store.CreateAppointment(ctx, appt, evt); err != nil {
		return model.Appointment{}, wrapStore("create appointment", err)
	}

	c.avail.Invalidate(ctx, appt.ProfessionalID, appt.Date, appt.Date)
	c.pub.Publish(evt)
	c.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"professional_id", appt.ProfessionalID,
		"requester_id", appt.RequesterID,
		"date", appt.Date.String(),
		"time", appt.Time.String(),
	)
	return appt, nil
}

func validate(actor model.Actor, req BookingRequest) error {
	if !actor.Valid() {
		return apperr.Forbidden("book appointment", "unknown caller")
	}
	if actor.Owns(req.ProfessionalID) {
		return apperr.Forbidden("book appointment", "professionals cannot book their own calendar")
	}
	switch {
	case strings.TrimSpace(req.ProfessionalID) == "":
		return apperr.Invalid("professional_id", "required")
	case req.Date.IsZero():
		return apperr.Invalid("date", "required")
	case req.Time < 0 || req.Time.Minutes() >= model.MinutesPerDay:
		return apperr.Invalid("time", "must be between 00:00 and 23:59")
	case req.Pet.IsEmpty():
		return apperr.Invalid("pet", "choose one of your pets or describe the pet")
	case !req.Pet.IsPlatformPet() && req.Pet.Name == "":
		return apperr.Invalid("pet.name", "required when the pet is not listed")
	case len(req.Reason) > maxReasonLen:
		return apperr.Invalid("reason", fmt.Sprintf("must be at most %d characters", maxReasonLen))
	case len(req.Notes) > maxNotesLen:
		return apperr.Invalid("notes", fmt.Sprintf("must be at most %d characters", maxNotesLen))
	}
	return nil
}

func trimPet(p model.PetDescriptor) model.PetDescriptor {
	return model.PetDescriptor{
		PetID: strings.TrimSpace(p.PetID),
		Name:  strings.TrimSpace(p.Name),
		Type:  strings.TrimSpace(p.Type),
		Age:   strings.TrimSpace(p.Age),
	}
}

// wrapStore keeps domain errors as they are and labels everything else.
func wrapStore(op string, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
