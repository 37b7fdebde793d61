// Package unavailability lets a professional block out whole dates. Blocking
// a date hides its slots without touching existing appointments.
package unavailability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/events"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/metrics"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

// MaxRangeDays bounds one SetRange call.
const MaxRangeDays = 366

type Store interface {
	GetProfessional(ctx context.Context, id string) (model.Professional, error)
	UnavailableDates(ctx context.Context, professionalID string, from, to model.Date) ([]model.Date, error)
	SetUnavailable(ctx context.Context, professionalID string, from, to model.Date, evt events.Event) (int, error)
	ClearUnavailable(ctx context.Context, professionalID string, from, to model.Date, evt events.Event) (int, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, professionalID string, from, to model.Date)
}

type Publisher interface {
	Publish(evt events.Event)
}

type Result struct {
	Changed int `json:"changed"`
}

type Manager struct {
	store   Store
	cache   Invalidator
	pub     Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewManager(store Store, cache Invalidator, pub Publisher, m *metrics.Metrics, logger *slog.Logger) *Manager {
	return &Manager{store: store, cache: cache, pub: pub, metrics: m, logger: logger, now: time.Now}
}

// SetRange marks every date in [start, end] unavailable, or available again
// when markAvailable is set. Dates already in the requested state are left
// alone, so repeating a call changes nothing and emits nothing.
func (m *Manager) SetRange(ctx context.Context, actor model.Actor, professionalID string, start, end model.Date, markAvailable bool) (Result, error) {
	if err := m.authorize(actor, professionalID); err != nil {
		return Result{}, err
	}
	if err := validateRange(start, end); err != nil {
		return Result{}, err
	}
	if _, err := m.store.GetProfessional(ctx, professionalID); err != nil {
		return Result{}, err
	}

	evt := events.AvailabilityChangedFor(professionalID, start, end, markAvailable, m.now())
	var (
		changed int
		err     error
		action  = "mark_unavailable"
	)
	if markAvailable {
		action = "mark_available"
		changed, err = m.store.ClearUnavailable(ctx, professionalID, start, end, evt)
	} else {
		changed, err = m.store.SetUnavailable(ctx, professionalID, start, end, evt)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%s %s..%s: %w", action, start, end, err)
	}
	if changed == 0 {
		return Result{}, nil
	}

	m.cache.Invalidate(ctx, professionalID, start, end)
	m.pub.Publish(evt)
	m.metrics.ObserveUnavailability(action, changed)
	m.logger.Info("availability changed",
		"professional_id", professionalID,
		"from", start.String(),
		"to", end.String(),
		"available", markAvailable,
		"changed", changed,
	)
	return Result{Changed: changed}, nil
}

// List returns the unavailable dates in [from, to]. Anyone may read it;
// booking clients grey out these dates.
func (m *Manager) List(ctx context.Context, professionalID string, from, to model.Date) ([]model.Date, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	if _, err := m.store.GetProfessional(ctx, professionalID); err != nil {
		return nil, err
	}
	return m.store.UnavailableDates(ctx, professionalID, from, to)
}

func (m *Manager) authorize(actor model.Actor, professionalID string) error {
	if !actor.Owns(professionalID) {
		return apperr.Forbidden("change availability", "only the professional may edit their calendar")
	}
	return nil
}

func validateRange(start, end model.Date) error {
	switch {
	case start.IsZero():
		return apperr.Invalid("start_date", "required")
	case end.IsZero():
		return apperr.Invalid("end_date", "required")
	case start.After(end):
		return apperr.Invalid("end_date", "must not be before start_date")
	case start.DaysUntil(end) >= MaxRangeDays:
		return apperr.Invalid("end_date", fmt.Sprintf("range must span at most %d days", MaxRangeDays))
	}
	return nil
}
