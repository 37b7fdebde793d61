package availability

import (
	"sort"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

type dayKey struct {
	professionalID string
	date           model.Date
}

// Index is the typed reservation and unavailability index for one process.
// Each reserved slot remembers the appointment holding it. Index is not safe
// for concurrent use; the owning store serializes access.
type Index struct {
	reserved    map[dayKey]map[model.TimeOfDay]string
	unavailable map[string]map[model.Date]struct{}
}

func NewIndex() *Index {
	return &Index{
		reserved:    map[dayKey]map[model.TimeOfDay]string{},
		unavailable: map[string]map[model.Date]struct{}{},
	}
}

// AddReservation binds the slot to appointmentID. It returns false, leaving
// the index untouched, when another appointment already holds the slot.
func (ix *Index) AddReservation(professionalID string, date model.Date, t model.TimeOfDay, appointmentID string) bool {
	k := dayKey{professionalID, date}
	day := ix.reserved[k]
	if day == nil {
		day = map[model.TimeOfDay]string{}
		ix.reserved[k] = day
	}
	if holder, ok := day[t]; ok && holder != appointmentID {
		return false
	}
	day[t] = appointmentID
	return true
}

// RemoveReservation frees the slot if appointmentID holds it.
func (ix *Index) RemoveReservation(professionalID string, date model.Date, t model.TimeOfDay, appointmentID string) bool {
	k := dayKey{professionalID, date}
	day := ix.reserved[k]
	if day == nil || day[t] != appointmentID {
		return false
	}
	delete(day, t)
	if len(day) == 0 {
		delete(ix.reserved, k)
	}
	return true
}

func (ix *Index) Holder(professionalID string, date model.Date, t model.TimeOfDay) (string, bool) {
	id, ok := ix.reserved[dayKey{professionalID, date}][t]
	return id, ok
}

// Reserved returns the reserved slot times of one day in ascending order.
func (ix *Index) Reserved(professionalID string, date model.Date) []model.TimeOfDay {
	day := ix.reserved[dayKey{professionalID, date}]
	out := make([]model.TimeOfDay, 0, len(day))
	for t := range day {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ReservedBetween returns reserved slots per date for the inclusive range.
// Dates without reservations are omitted.
func (ix *Index) ReservedBetween(professionalID string, from, to model.Date) map[model.Date][]model.TimeOfDay {
	out := map[model.Date][]model.TimeOfDay{}
	for d := from; !d.After(to); d = d.AddDays(1) {
		if r := ix.Reserved(professionalID, d); len(r) > 0 {
			out[d] = r
		}
	}
	return out
}

// SetUnavailable reports whether the date was newly marked.
func (ix *Index) SetUnavailable(professionalID string, date model.Date) bool {
	dates := ix.unavailable[professionalID]
	if dates == nil {
		dates = map[model.Date]struct{}{}
		ix.unavailable[professionalID] = dates
	}
	if _, ok := dates[date]; ok {
		return false
	}
	dates[date] = struct{}{}
	return true
}

// ClearUnavailable reports whether a mark was removed.
func (ix *Index) ClearUnavailable(professionalID string, date model.Date) bool {
	dates := ix.unavailable[professionalID]
	if _, ok := dates[date]; !ok {
		return false
	}
	delete(dates, date)
	if len(dates) == 0 {
		delete(ix.unavailable, professionalID)
	}
	return true
}

func (ix *Index) IsUnavailable(professionalID string, date model.Date) bool {
	_, ok := ix.unavailable[professionalID][date]
	return ok
}

// UnavailableBetween lists marked dates in the inclusive range, ascending.
func (ix *Index) UnavailableBetween(professionalID string, from, to model.Date) []model.Date {
	var out []model.Date
	for d := range ix.unavailable[professionalID] {
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
