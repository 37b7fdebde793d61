package handlers

import (
	"errors"
	"net/http"

	"github.com/fureverhome/pawbook/libs/auth"
	"github.com/fureverhome/pawbook/libs/httpx"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:     http.StatusBadRequest,
	apperr.KindPastDate:       http.StatusUnprocessableEntity,
	apperr.KindDayUnavailable: http.StatusConflict,
	apperr.KindSlotTaken:      http.StatusConflict,
	apperr.KindState:          http.StatusConflict,
	apperr.KindNotFound:       http.StatusNotFound,
	apperr.KindAuthorization:  http.StatusForbidden,
}

// writeErr maps domain errors onto status codes. Anything unclassified is
// logged and reported as a generic 500.
func (a *API) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperr.ErrConcurrentUpdate) {
		httpx.WriteError(w, r, http.StatusConflict, "conflict", "appointment changed concurrently; reload and retry")
		return
	}
	kind := apperr.KindOf(err)
	if status, ok := kindStatus[kind]; ok {
		httpx.WriteError(w, r, status, string(kind), err.Error())
		return
	}
	a.d.Logger.Error("request failed",
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"err", err,
	)
	httpx.WriteError(w, r, http.StatusInternalServerError, string(apperr.KindInternal), "internal error")
}

func (a *API) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	httpx.WriteError(w, r, http.StatusBadRequest, string(apperr.KindValidation), msg)
}

// actor turns the verified token into the core's caller identity.
func (a *API) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthenticated", "missing credentials")
		return model.Actor{}, false
	}
	actor := model.Actor{ID: p.Subject, Role: model.ActorRole(p.Role)}
	if !actor.Valid() {
		httpx.WriteError(w, r, http.StatusForbidden, string(apperr.KindAuthorization), "role not allowed to use scheduling")
		return model.Actor{}, false
	}
	return actor, true
}
