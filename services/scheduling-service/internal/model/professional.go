package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
)

type Role string

const (
	RoleVet     Role = "vet"
	RoleTrainer Role = "trainer"
)

func (r Role) Valid() bool { return r == RoleVet || r == RoleTrainer }

type SessionType string

const (
	SessionClosed SessionType = "closed"
	SessionSingle SessionType = "single"
	SessionDouble SessionType = "double"
)

// DaySchedule keeps owner-entered "HH:MM" strings as typed; slot generation
// is where malformed values are detected.
type DaySchedule struct {
	Session SessionType `json:"session"`
	Start1  string      `json:"start1,omitempty"`
	End1    string      `json:"end1,omitempty"`
	Start2  string      `json:"start2,omitempty"`
	End2    string      `json:"end2,omitempty"`
}

// OpeningHours is the weekly template. Missing weekdays are closed.
type OpeningHours map[time.Weekday]DaySchedule

func (h OpeningHours) For(day time.Weekday) DaySchedule {
	if s, ok := h[day]; ok && s.Session != "" {
		return s
	}
	return DaySchedule{Session: SessionClosed}
}

func (h OpeningHours) MarshalJSON() ([]byte, error) {
	out := make(map[string]DaySchedule, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		out[strings.ToLower(day.String())] = h.For(day)
	}
	return json.Marshal(out)
}

func (h *OpeningHours) UnmarshalJSON(b []byte) error {
	var raw map[string]DaySchedule
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := OpeningHours{}
	for name, sched := range raw {
		day, ok := weekdayByName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return fmt.Errorf("unknown weekday %q", name)
		}
		out[day] = sched
	}
	*h = out
	return nil
}

var weekdayByName = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

const (
	MinConsultationMinutes = 5
	MaxConsultationMinutes = 480
)

type Professional struct {
	ID                  string       `json:"id"`
	Role                Role         `json:"role"`
	DisplayName         string       `json:"display_name,omitempty"`
	OpeningHours        OpeningHours `json:"opening_hours"`
	ConsultationMinutes int          `json:"consultation_minutes"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Validate is applied when a professional saves their template. Rows written
// before validation existed may still be malformed.
func (p Professional) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return apperr.Invalid("id", "required")
	}
	if !p.Role.Valid() {
		return apperr.Invalid("role", "must be vet or trainer")
	}
	if p.ConsultationMinutes < MinConsultationMinutes || p.ConsultationMinutes > MaxConsultationMinutes {
		return apperr.Invalid("consultation_minutes", fmt.Sprintf("must be between %d and %d", MinConsultationMinutes, MaxConsultationMinutes))
	}
	for day, sched := range p.OpeningHours {
		if err := sched.validate(); err != nil {
			return apperr.Invalid("opening_hours."+strings.ToLower(day.String()), err.Error())
		}
	}
	return p.OpeningHours.validateOvernight()
}

// span is a half-open minute range measured from its day's midnight.
type span struct{ start, end int }

func (a span) overlaps(b span) bool { return a.start < b.end && b.start < a.end }

func (s DaySchedule) validate() error {
	_, err := s.spans()
	return err
}

func (s DaySchedule) spans() ([]span, error) {
	parse := func(start, end, n string) (span, error) {
		st, err := ParseWindowBound(start)
		if err != nil {
			return span{}, fmt.Errorf("start%s: %w", n, err)
		}
		if st >= MinutesPerDay {
			return span{}, fmt.Errorf("start%s must be before 24:00", n)
		}
		en, err := ParseWindowBound(end)
		if err != nil {
			return span{}, fmt.Errorf("end%s: %w", n, err)
		}
		if en <= st {
			en += MinutesPerDay
		}
		return span{st, en}, nil
	}
	switch s.Session {
	case SessionClosed, "":
		return nil, nil
	case SessionSingle:
		w, err := parse(s.Start1, s.End1, "1")
		if err != nil {
			return nil, err
		}
		return []span{w}, nil
	case SessionDouble:
		w1, err := parse(s.Start1, s.End1, "1")
		if err != nil {
			return nil, err
		}
		w2, err := parse(s.Start2, s.End2, "2")
		if err != nil {
			return nil, err
		}
		return []span{w1, w2}, nil
	default:
		return nil, fmt.Errorf("unknown session type %q", s.Session)
	}
}

// validateOvernight rejects a window running past midnight into time the
// following day's own windows already open.
func (h OpeningHours) validateOvernight() error {
	for day := time.Sunday; day <= time.Saturday; day++ {
		cur, _ := h.For(day).spans()
		next := (day + 1) % 7
		following, _ := h.For(next).spans()
		for _, w := range cur {
			if w.end <= MinutesPerDay {
				continue
			}
			tail := span{0, w.end - MinutesPerDay}
			for _, f := range following {
				if tail.overlaps(f) {
					return apperr.Invalid("opening_hours."+strings.ToLower(day.String()),
						fmt.Sprintf("window past midnight overlaps %s opening hours", strings.ToLower(next.String())))
				}
			}
		}
	}
	return nil
}
