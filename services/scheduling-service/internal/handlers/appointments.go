package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fureverhome/pawbook/libs/httpx"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/booking"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/lifecycle"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

func (a *API) createAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req booking.BookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.badRequest(w, r, "invalid json body: "+err.Error())
		return
	}
	appt, err := a.d.Booking.BookAppointment(r.Context(), actor, req)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/appointments/"+appt.ID)
	httpx.WriteJSON(w, http.StatusCreated, appt)
}

type listResponse struct {
	Appointments []model.Appointment `json:"appointments"`
}

// listAppointments scopes results to the caller: professionals may list
// their own calendar, everyone else only sees what they requested.
func (a *API) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := model.AppointmentFilter{
		ProfessionalID: strings.TrimSpace(q.Get("professional_id")),
		RequesterID:    strings.TrimSpace(q.Get("requester_id")),
	}
	if !actor.Owns(filter.ProfessionalID) {
		if filter.RequesterID != "" && filter.RequesterID != actor.ID {
			a.writeErr(w, r, apperr.Forbidden("list appointments", "can only list your own appointments"))
			return
		}
		filter.RequesterID = actor.ID
	}
	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			st := model.Status(strings.TrimSpace(s))
			if !st.Valid() {
				a.badRequest(w, r, "unknown status "+string(st))
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	var err error
	if raw := q.Get("from"); raw != "" {
		if filter.From, err = model.ParseDate(raw); err != nil {
			a.badRequest(w, r, "from must be YYYY-MM-DD")
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if filter.To, err = model.ParseDate(raw); err != nil {
			a.badRequest(w, r, "to must be YYYY-MM-DD")
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil {
			a.badRequest(w, r, "limit must be a number")
			return
		}
	}

	list, err := a.d.Store.ListAppointments(r.Context(), filter)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Appointments: list})
}

func (a *API) getAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	appt, err := a.d.Store.GetAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	if !actor.Owns(appt.ProfessionalID) && actor.ID != appt.RequesterID {
		a.writeErr(w, r, apperr.Forbidden("view appointment", "not a participant"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (a *API) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req lifecycle.UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.badRequest(w, r, "invalid json body: "+err.Error())
		return
	}
	req.AppointmentID = chi.URLParam(r, "id")
	appt, err := a.d.Lifecycle.UpdateStatus(r.Context(), actor, req)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (a *API) updatePet(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var pet model.PetDescriptor
	if err := httpx.DecodeJSON(r, &pet); err != nil {
		a.badRequest(w, r, "invalid json body: "+err.Error())
		return
	}
	appt, err := a.d.Lifecycle.UpdatePetDetails(r.Context(), actor, chi.URLParam(r, "id"), pet)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (a *API) websocket(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	a.d.WS.Handle(w, r, actor)
}
