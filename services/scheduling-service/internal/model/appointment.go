package model

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusConfirmed    Status = "confirmed"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
	StatusNotAvailable Status = "notAvailable"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNotAvailable:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNotAvailable
}

// HoldsReservation reports whether an appointment in this status occupies its
// slot. Completed visits keep the slot so history cannot be double booked.
func (s Status) HoldsReservation() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusCompleted
}

// ReservingStatuses lists statuses that occupy a slot, for storage filters.
func ReservingStatuses() []Status {
	return []Status{StatusPending, StatusConfirmed, StatusCompleted}
}

type Initiator string

const (
	InitiatorRequester    Initiator = "requester"
	InitiatorProfessional Initiator = "professional"
)

// PetDescriptor references a pet listed on the platform or describes one in
// free text.
type PetDescriptor struct {
	PetID string `json:"pet_id,omitempty"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
	Age   string `json:"age,omitempty"`
}

func (p PetDescriptor) IsPlatformPet() bool { return strings.TrimSpace(p.PetID) != "" }

func (p PetDescriptor) IsEmpty() bool {
	return strings.TrimSpace(p.PetID) == "" && strings.TrimSpace(p.Name) == "" && strings.TrimSpace(p.Type) == ""
}

// Complete is required before a professional may confirm.
func (p PetDescriptor) Complete() bool {
	if p.IsPlatformPet() {
		return true
	}
	return strings.TrimSpace(p.Name) != "" && strings.TrimSpace(p.Type) != ""
}

// Merge fills blank free-text fields from patch.
func (p PetDescriptor) Merge(patch PetDescriptor) PetDescriptor {
	if strings.TrimSpace(patch.Name) != "" {
		p.Name = strings.TrimSpace(patch.Name)
	}
	if strings.TrimSpace(patch.Type) != "" {
		p.Type = strings.TrimSpace(patch.Type)
	}
	if strings.TrimSpace(patch.Age) != "" {
		p.Age = strings.TrimSpace(patch.Age)
	}
	return p
}

type Appointment struct {
	ID                 string        `json:"id"`
	ProfessionalID     string        `json:"professional_id"`
	ProfessionalType   Role          `json:"professional_type"`
	Date               Date          `json:"date"`
	Time               TimeOfDay     `json:"time"`
	DurationMinutes    int           `json:"duration_minutes"`
	RequesterID        string        `json:"requester_id"`
	Pet                PetDescriptor `json:"pet"`
	Reason             string        `json:"reason,omitempty"`
	Notes              string        `json:"notes,omitempty"`
	Status             Status        `json:"status"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
	CancelledBy        Initiator     `json:"cancelled_by,omitempty"`
	CompletionNotes    string        `json:"completion_notes,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

type AppointmentFilter struct {
	ProfessionalID string
	RequesterID    string
	Statuses       []Status
	From           Date
	To             Date
	Limit          int
}

const DefaultListLimit = 100

func (f AppointmentFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return DefaultListLimit
	}
	return f.Limit
}

// Matches applies the filter to one appointment; storage backends without a
// query planner use it directly.
func (f AppointmentFilter) Matches(a Appointment) bool {
	if f.ProfessionalID != "" && a.ProfessionalID != f.ProfessionalID {
		return false
	}
	if f.RequesterID != "" && a.RequesterID != f.RequesterID {
		return false
	}
	if !f.From.IsZero() && a.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.Date.After(f.To) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if a.Status == s {
			return true
		}
	}
	return false
}
