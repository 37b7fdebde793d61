// Package lifecycle moves appointments between statuses.
package lifecycle

import (
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

var edges = map[model.Status][]model.Status{
	model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled, model.StatusNotAvailable},
	model.StatusConfirmed: {model.StatusCompleted, model.StatusCancelled, model.StatusNotAvailable},
}

// Transition reports whether current may move to requested. Terminal
// statuses have no outgoing edges; the cancelled to cancelled no-op is
// handled by the caller.
func Transition(current, requested model.Status) error {
	for _, next := range edges[current] {
		if next == requested {
			return nil
		}
	}
	return &apperr.StateError{Current: string(current), Requested: string(requested)}
}

// Allowed lists the statuses reachable from current.
func Allowed(current model.Status) []model.Status {
	return append([]model.Status(nil), edges[current]...)
}
