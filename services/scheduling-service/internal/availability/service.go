// Package availability answers which slots a professional can still take on
// a given day, and serves month views for calendar rendering.
package availability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/metrics"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/slots"
)

// Source is the read side of a scheduling store.
type Source interface {
	GetProfessional(ctx context.Context, id string) (model.Professional, error)
	ReservedSlots(ctx context.Context, professionalID string, date model.Date) ([]model.TimeOfDay, error)
	ReservedSlotsBetween(ctx context.Context, professionalID string, from, to model.Date) (map[model.Date][]model.TimeOfDay, error)
	IsUnavailable(ctx context.Context, professionalID string, date model.Date) (bool, error)
}

// Day is one consistent read of a professional's day.
type Day struct {
	Professional model.Professional
	Date         model.Date
	Potential    []model.TimeOfDay
	Reserved     []model.TimeOfDay
	Available    []model.TimeOfDay
	Unavailable  bool
}

// FullyBooked is true when the template opens the day and every potential
// slot is reserved. An unavailable day is not fully booked unless its
// reservations also cover the template.
func (d Day) FullyBooked() bool {
	return len(d.Potential) > 0 && len(slots.Subtract(d.Potential, d.Reserved)) == 0
}

type Service struct {
	src     Source
	cache   MonthCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(src Source, cache MonthCache, m *metrics.Metrics, logger *slog.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{src: src, cache: cache, metrics: m, logger: logger}
}

// PotentialSlots generates the template slots for date. A malformed template
// is logged and treated as a closed day.
func (s *Service) PotentialSlots(p model.Professional, date model.Date) []model.TimeOfDay {
	out, err := slots.GeneratePotentialSlots(date, p.OpeningHours, p.ConsultationMinutes)
	if err != nil {
		var fe *slots.FormatError
		if errors.As(err, &fe) {
			s.metrics.ObserveSlotFormatError()
			s.logger.Warn("opening hours could not be parsed; day treated as closed",
				"professional_id", p.ID, "date", date.String(), "err", err)
			return nil
		}
		s.logger.Error("slot generation failed", "professional_id", p.ID, "err", err)
		return nil
	}
	return out
}

// Day reads the template, reservations and unavailability for one date.
func (s *Service) Day(ctx context.Context, professionalID string, date model.Date) (Day, error) {
	p, err := s.src.GetProfessional(ctx, professionalID)
	if err != nil {
		return Day{}, err
	}
	day := Day{Professional: p, Date: date}

	unavailable, err := s.src.IsUnavailable(ctx, professionalID, date)
	if err != nil {
		return Day{}, err
	}
	reserved, err := s.src.ReservedSlots(ctx, professionalID, date)
	if err != nil {
		return Day{}, err
	}
	day.Potential = s.PotentialSlots(p, date)
	day.Reserved = reserved
	day.Unavailable = unavailable
	if unavailable {
		day.Available = []model.TimeOfDay{}
		return day, nil
	}
	day.Available = slots.Subtract(day.Potential, reserved)
	return day, nil
}

// GetAvailableSlots is the potential slots minus reserved ones, or nothing
// when the date is marked unavailable.
func (s *Service) GetAvailableSlots(ctx context.Context, professionalID string, date model.Date) ([]model.TimeOfDay, error) {
	day, err := s.Day(ctx, professionalID, date)
	if err != nil {
		return nil, err
	}
	return day.Available, nil
}

func (s *Service) IsDayFullyBooked(ctx context.Context, professionalID string, date model.Date) (bool, error) {
	day, err := s.Day(ctx, professionalID, date)
	if err != nil {
		return false, err
	}
	return day.FullyBooked(), nil
}

// GetReservedSlotsForMonth serves calendar views through the month cache.
// Cache failures fall back to the store.
func (s *Service) GetReservedSlotsForMonth(ctx context.Context, professionalID string, year int, month time.Month) (MonthReservations, error) {
	if _, err := s.src.GetProfessional(ctx, professionalID); err != nil {
		return nil, err
	}
	cached, ok, err := s.cache.Get(ctx, professionalID, year, month)
	switch {
	case err != nil:
		s.metrics.ObserveMonthCache("error")
		s.logger.Warn("month cache read failed", "professional_id", professionalID, "err", err)
	case ok:
		s.metrics.ObserveMonthCache("hit")
		return cached, nil
	default:
		s.metrics.ObserveMonthCache("miss")
	}

	from, to := model.MonthRange(year, month)
	data, err := s.src.ReservedSlotsBetween(ctx, professionalID, from, to)
	if err != nil {
		return nil, err
	}
	out := MonthReservations(data)
	if out == nil {
		out = MonthReservations{}
	}
	if err := s.cache.Set(ctx, professionalID, year, month, out); err != nil {
		s.logger.Warn("month cache write failed", "professional_id", professionalID, "err", err)
	}
	return out, nil
}

// Invalidate drops cached month views touching [from, to]. Failures are
// logged; entries expire on their own.
func (s *Service) Invalidate(ctx context.Context, professionalID string, from, to model.Date) {
	first, _ := model.MonthRange(from.Year, from.Month)
	for m := first; !m.After(to); m = model.DateOf(m.Time().AddDate(0, 1, 0)) {
		if err := s.cache.Invalidate(ctx, professionalID, m.Year, m.Month); err != nil {
			s.logger.Warn("month cache invalidate failed", "professional_id", professionalID, "month", m.String()[:7], "err", err)
		}
	}
}
