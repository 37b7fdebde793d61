// Package slots turns a weekly opening-hours template into the candidate
// appointment start times for one day.
package slots

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

// FormatError reports an owner-entered schedule value that could not be
// parsed. It is informational: the day simply has no slots.
type FormatError struct {
	Weekday string
	Field   string
	Value   string
	Err     error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed %s %s %q: %v", e.Weekday, e.Field, e.Value, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

type window struct {
	start, end int
}

// Start is a slot start relative to the day whose template produced it.
// NextDay marks starts past midnight of an overnight window.
type Start struct {
	Time    model.TimeOfDay
	NextDay bool
}

// GeneratePotentialSlots returns the ascending slot start times that fall on
// date: those of date's own template before midnight, plus the after-midnight
// tail of the previous day's overnight window. A time opened by both
// templates appears once. The result depends only on its inputs.
//
// A malformed template for date yields no slots and a *FormatError. A
// malformed previous day only loses its tail; it reports on its own date.
func GeneratePotentialSlots(date model.Date, hours model.OpeningHours, durationMinutes int) ([]model.TimeOfDay, error) {
	own, err := ForSchedule(hours.For(date.Weekday()), durationMinutes)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Weekday = date.Weekday().String()
		}
		return nil, err
	}
	prev, prevErr := ForSchedule(hours.For(date.AddDays(-1).Weekday()), durationMinutes)

	var out []model.TimeOfDay
	seen := map[model.TimeOfDay]struct{}{}
	add := func(t model.TimeOfDay) {
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if prevErr == nil {
		for _, st := range prev {
			if st.NextDay {
				add(st.Time)
			}
		}
	}
	for _, st := range own {
		if !st.NextDay {
			add(st.Time)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ForSchedule generates slots for a single day schedule. Each window yields
// start, start+d, start+2d, ... while the slot still ends inside the window.
// A window whose end is not after its start runs past midnight; its starts
// from midnight on are flagged NextDay. Starts are ordered and unique.
func ForSchedule(sched model.DaySchedule, durationMinutes int) ([]Start, error) {
	if durationMinutes <= 0 {
		return nil, nil
	}

	var windows []window
	switch sched.Session {
	case model.SessionClosed, "":
		return nil, nil
	case model.SessionSingle:
		w, err := parseWindow(sched.Start1, sched.End1, "1")
		if err != nil {
			return nil, err
		}
		windows = []window{w}
	case model.SessionDouble:
		w1, err := parseWindow(sched.Start1, sched.End1, "1")
		if err != nil {
			return nil, err
		}
		w2, err := parseWindow(sched.Start2, sched.End2, "2")
		if err != nil {
			return nil, err
		}
		windows = []window{w1, w2}
	default:
		return nil, &FormatError{Field: "session", Value: string(sched.Session), Err: fmt.Errorf("unknown session type")}
	}

	seen := map[int]struct{}{}
	var minutes []int
	for _, w := range windows {
		for m := w.start; m+durationMinutes <= w.end; m += durationMinutes {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			minutes = append(minutes, m)
		}
	}
	sort.Ints(minutes)

	out := make([]Start, 0, len(minutes))
	for _, m := range minutes {
		out = append(out, Start{
			Time:    model.TimeOfDay(m % model.MinutesPerDay),
			NextDay: m >= model.MinutesPerDay,
		})
	}
	return out, nil
}

func parseWindow(start, end, n string) (window, error) {
	s, err := model.ParseWindowBound(start)
	if err != nil {
		return window{}, &FormatError{Field: "start" + n, Value: start, Err: err}
	}
	e, err := model.ParseWindowBound(end)
	if err != nil {
		return window{}, &FormatError{Field: "end" + n, Value: end, Err: err}
	}
	if s >= model.MinutesPerDay {
		return window{}, &FormatError{Field: "start" + n, Value: start, Err: fmt.Errorf("start must be before 24:00")}
	}
	if e <= s {
		e += model.MinutesPerDay
	}
	return window{start: s, end: e}, nil
}

// Contains reports whether t is one of slots.
func Contains(slots []model.TimeOfDay, t model.TimeOfDay) bool {
	for _, s := range slots {
		if s == t {
			return true
		}
	}
	return false
}

// Subtract returns the slots of potential not present in reserved, keeping
// potential's order.
func Subtract(potential, reserved []model.TimeOfDay) []model.TimeOfDay {
	if len(reserved) == 0 {
		return append([]model.TimeOfDay(nil), potential...)
	}
	taken := make(map[model.TimeOfDay]struct{}, len(reserved))
	for _, r := range reserved {
		taken[r] = struct{}{}
	}
	out := make([]model.TimeOfDay, 0, len(potential))
	for _, p := range potential {
		if _, ok := taken[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}
