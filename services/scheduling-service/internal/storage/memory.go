package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/availability"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/events"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

// MemoryStore keeps everything in process. A single mutex serializes writes,
// which makes check-and-reserve atomic. Events are not persisted; the
// broadcaster is the only consumer in this mode.
type MemoryStore struct {
	mu            sync.RWMutex
	professionals map[string]model.Professional
	appointments  map[string]model.Appointment
	index         *availability.Index
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		professionals: map[string]model.Professional{},
		appointments:  map[string]model.Appointment{},
		index:         availability.NewIndex(),
		now:           time.Now,
	}
}

func (s *MemoryStore) GetProfessional(_ context.Context, id string) (model.Professional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.professionals[id]
	if !ok {
		return model.Professional{}, apperr.NotFound("professional", id)
	}
	return p, nil
}

func (s *MemoryStore) UpsertProfessional(_ context.Context, p model.Professional) (model.Professional, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = s.now().UTC()
	s.professionals[p.ID] = p
	return p, nil
}

func (s *MemoryStore) ReservedSlots(_ context.Context, professionalID string, date model.Date) ([]model.TimeOfDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Reserved(professionalID, date), nil
}

func (s *MemoryStore) ReservedSlotsBetween(_ context.Context, professionalID string, from, to model.Date) (map[model.Date][]model.TimeOfDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.ReservedBetween(professionalID, from, to), nil
}

func (s *MemoryStore) IsUnavailable(_ context.Context, professionalID string, date model.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.IsUnavailable(professionalID, date), nil
}

func (s *MemoryStore) UnavailableDates(_ context.Context, professionalID string, from, to model.Date) ([]model.Date, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.UnavailableBetween(professionalID, from, to), nil
}

func (s *MemoryStore) SetUnavailable(_ context.Context, professionalID string, from, to model.Date, _ events.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for d := from; !d.After(to); d = d.AddDays(1) {
		if s.index.SetUnavailable(professionalID, d) {
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStore) ClearUnavailable(_ context.Context, professionalID string, from, to model.Date, _ events.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for d := from; !d.After(to); d = d.AddDays(1) {
		if s.index.ClearUnavailable(professionalID, d) {
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStore) CreateAppointment(_ context.Context, appt model.Appointment, _ events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index.IsUnavailable(appt.ProfessionalID, appt.Date) {
		return &apperr.DayUnavailableError{ProfessionalID: appt.ProfessionalID, Date: appt.Date.String()}
	}
	if appt.Status.HoldsReservation() && !s.index.AddReservation(appt.ProfessionalID, appt.Date, appt.Time, appt.ID) {
		return &apperr.SlotTakenError{ProfessionalID: appt.ProfessionalID, Date: appt.Date.String(), Time: appt.Time.String()}
	}
	s.appointments[appt.ID] = appt
	return nil
}

func (s *MemoryStore) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, apperr.NotFound("appointment", id)
	}
	return a, nil
}

func (s *MemoryStore) UpdateAppointment(_ context.Context, expected model.Status, appt model.Appointment, _ events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.appointments[appt.ID]
	if !ok {
		return apperr.NotFound("appointment", appt.ID)
	}
	if cur.Status != expected {
		return apperr.ErrConcurrentUpdate
	}
	if cur.Status.HoldsReservation() && !appt.Status.HoldsReservation() {
		s.index.RemoveReservation(cur.ProfessionalID, cur.Date, cur.Time, cur.ID)
	}
	s.appointments[appt.ID] = appt
	return nil
}

func (s *MemoryStore) ListAppointments(_ context.Context, filter model.AppointmentFilter) ([]model.Appointment, error) {
	s.mu.RLock()
	out := make([]model.Appointment, 0)
	for _, a := range s.appointments {
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sortAppointments(out)
	if limit := filter.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortAppointments(list []model.Appointment) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID < b.ID
	})
}
