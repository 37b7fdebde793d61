// Package wizard drives a requester through picking a date, a time and the
// pet details before submitting a booking. It keeps no authority of its own:
// slot lists are a snapshot and the submit result decides.
package wizard

import (
	"context"
	"errors"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/booking"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/slots"
)

type Step string

const (
	StepSelectDate     Step = "selectDate"
	StepChooseTime     Step = "chooseTime"
	StepConfirmDetails Step = "confirmDetails"
	StepSubmitted      Step = "submitted"
)

type Backend interface {
	GetAvailableSlots(ctx context.Context, professionalID string, date model.Date) ([]model.TimeOfDay, error)
	BookAppointment(ctx context.Context, actor model.Actor, req booking.BookingRequest) (model.Appointment, error)
}

type Wizard struct {
	backend        Backend
	actor          model.Actor
	professionalID string

	step   Step
	date   model.Date
	slots  []model.TimeOfDay
	time   model.TimeOfDay
	pet    model.PetDescriptor
	reason string
	notes  string
	result model.Appointment
}

func New(backend Backend, actor model.Actor, professionalID string) *Wizard {
	return &Wizard{backend: backend, actor: actor, professionalID: professionalID, step: StepSelectDate}
}

func (w *Wizard) Step() Step { return w.step }
func (w *Wizard) Date() model.Date { return w.date }
func (w *Wizard) Slots() []model.TimeOfDay { return append([]model.TimeOfDay(nil), w.slots...) }
func (w *Wizard) Time() model.TimeOfDay { return w.time }
func (w *Wizard) Appointment() model.Appointment { return w.result }

func (w *Wizard) expect(step Step, action string) error {
	if w.step != step {
		return &apperr.StateError{Current: string(w.step), Requested: action}
	}
	return nil
}

// SelectDate loads the free slots of date and moves on to choosing a time.
// A date without free slots keeps the wizard where it is.
func (w *Wizard) SelectDate(ctx context.Context, date model.Date) error {
	if err := w.expect(StepSelectDate, "selectDate"); err != nil {
		return err
	}
	free, err := w.backend.GetAvailableSlots(ctx, w.professionalID, date)
	if err != nil {
		return err
	}
	if len(free) == 0 {
		return &apperr.DayUnavailableError{ProfessionalID: w.professionalID, Date: date.String()}
	}
	w.date, w.slots = date, free
	w.step = StepChooseTime
	return nil
}

func (w *Wizard) ChooseTime(t model.TimeOfDay) error {
	if err := w.expect(StepChooseTime, "chooseTime"); err != nil {
		return err
	}
	if !slots.Contains(w.slots, t) {
		return apperr.Invalid("time", t.String()+" is not offered on "+w.date.String())
	}
	w.time = t
	w.step = StepConfirmDetails
	return nil
}

// SetDetails records the pet and visit details; it may be called repeatedly
// before Submit.
func (w *Wizard) SetDetails(pet model.PetDescriptor, reason, notes string) error {
	if err := w.expect(StepConfirmDetails, "setDetails"); err != nil {
		return err
	}
	w.pet, w.reason, w.notes = pet, reason, notes
	return nil
}

// Submit books the chosen slot. Losing the slot sends the wizard back to
// time selection with fresh slots; losing the day sends it back to date
// selection. Other failures leave the wizard on the confirm step.
func (w *Wizard) Submit(ctx context.Context) (model.Appointment, error) {
	if err := w.expect(StepConfirmDetails, "submit"); err != nil {
		return model.Appointment{}, err
	}
	appt, err := w.backend.BookAppointment(ctx, w.actor, booking.BookingRequest{
		ProfessionalID: w.professionalID,
		Date:           w.date,
		Time:           w.time,
		Pet:            w.pet,
		Reason:         w.reason,
		Notes:          w.notes,
	})
	var (
		taken       *apperr.SlotTakenError
		unavailable *apperr.DayUnavailableError
	)
	switch {
	case err == nil:
		w.result = appt
		w.step = StepSubmitted
		return appt, nil
	case errors.As(err, &taken):
		free, ferr := w.backend.GetAvailableSlots(ctx, w.professionalID, w.date)
		if ferr != nil || len(free) == 0 {
			w.toSelectDate()
			return model.Appointment{}, err
		}
		w.slots = free
		w.step = StepChooseTime
	case errors.As(err, &unavailable):
		w.toSelectDate()
	}
	return model.Appointment{}, err
}

// Back returns to the previous step. It is a no-op on the first step and
// after submission.
func (w *Wizard) Back() {
	switch w.step {
	case StepChooseTime:
		w.toSelectDate()
	case StepConfirmDetails:
		w.step = StepChooseTime
	}
}

func (w *Wizard) toSelectDate() {
	w.step = StepSelectDate
	w.date = model.Date{}
	w.slots = nil
}
