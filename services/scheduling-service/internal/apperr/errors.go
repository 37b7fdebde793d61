// Package apperr defines the error kinds the scheduling core returns. Every
// kind is a struct type so callers can match it with errors.As and read the
// fields that explain the failure.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation     Kind = "validation"
	KindPastDate       Kind = "past_date"
	KindDayUnavailable Kind = "day_unavailable"
	KindSlotTaken      Kind = "slot_taken"
	KindState          Kind = "invalid_state"
	KindNotFound       Kind = "not_found"
	KindAuthorization  Kind = "forbidden"
	KindInternal       Kind = "internal"
)

// ErrConcurrentUpdate is returned by stores when a compare-and-swap on an
// appointment's status lost to another writer.
var ErrConcurrentUpdate = errors.New("appointment was modified concurrently")

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type PastDateError struct {
	Date string
	Time string
}

func (e *PastDateError) Error() string {
	if e.Time != "" {
		return fmt.Sprintf("%s %s is in the past", e.Date, e.Time)
	}
	return fmt.Sprintf("%s is in the past", e.Date)
}

type DayUnavailableError struct {
	ProfessionalID string
	Date           string
	FullyBooked    bool
}

func (e *DayUnavailableError) Error() string {
	if e.FullyBooked {
		return fmt.Sprintf("%s is fully booked", e.Date)
	}
	return fmt.Sprintf("%s is marked unavailable", e.Date)
}

// SlotTakenError is an expected race outcome: refetch availability and retry.
type SlotTakenError struct {
	ProfessionalID string
	Date           string
	Time           string
}

func (e *SlotTakenError) Error() string {
	return fmt.Sprintf("slot %s %s is no longer available", e.Date, e.Time)
}

type StateError struct {
	Current   string
	Requested string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot move appointment from %s to %s", e.Current, e.Requested)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

type AuthorizationError struct {
	Action string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not allowed to %s: %s", e.Action, e.Reason)
}

func Forbidden(action, reason string) error {
	return &AuthorizationError{Action: action, Reason: reason}
}

// KindOf classifies err; unknown errors are internal.
func KindOf(err error) Kind {
	var (
		validation  *ValidationError
		pastDate    *PastDateError
		unavailable *DayUnavailableError
		slotTaken   *SlotTakenError
		state       *StateError
		notFound    *NotFoundError
		authz       *AuthorizationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &pastDate):
		return KindPastDate
	case errors.As(err, &unavailable):
		return KindDayUnavailable
	case errors.As(err, &slotTaken):
		return KindSlotTaken
	case errors.As(err, &state):
		return KindState
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &authz):
		return KindAuthorization
	default:
		return KindInternal
	}
}
