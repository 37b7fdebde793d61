// Package storage holds the scheduling store backends. Both backends make the
// slot reservation and the appointment write one atomic step, so the store is
// the final authority on double booking.
package storage

import (
	"context"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/events"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

// Store is implemented by MemoryStore and PostgresStore.
type Store interface {
	GetProfessional(ctx context.Context, id string) (model.Professional, error)
	UpsertProfessional(ctx context.Context, p model.Professional) (model.Professional, error)

	ReservedSlots(ctx context.Context, professionalID string, date model.Date) ([]model.TimeOfDay, error)
	ReservedSlotsBetween(ctx context.Context, professionalID string, from, to model.Date) (map[model.Date][]model.TimeOfDay, error)

	IsUnavailable(ctx context.Context, professionalID string, date model.Date) (bool, error)
	UnavailableDates(ctx context.Context, professionalID string, from, to model.Date) ([]model.Date, error)
	// SetUnavailable and ClearUnavailable return how many dates changed and
	// record evt only when that number is positive.
	SetUnavailable(ctx context.Context, professionalID string, from, to model.Date, evt events.Event) (int, error)
	ClearUnavailable(ctx context.Context, professionalID string, from, to model.Date, evt events.Event) (int, error)

	// CreateAppointment reserves the slot and stores appt in one step. It
	// fails with SlotTakenError or DayUnavailableError when the check loses.
	CreateAppointment(ctx context.Context, appt model.Appointment, evt events.Event) error
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	// UpdateAppointment writes appt if the stored status still equals
	// expected, otherwise it returns apperr.ErrConcurrentUpdate.
	UpdateAppointment(ctx context.Context, expected model.Status, appt model.Appointment, evt events.Event) error
	ListAppointments(ctx context.Context, filter model.AppointmentFilter) ([]model.Appointment, error)
}
