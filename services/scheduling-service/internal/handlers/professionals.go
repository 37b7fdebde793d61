package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fureverhome/pawbook/libs/httpx"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/availability"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

func (a *API) getProfessional(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	p, err := a.d.Store.GetProfessional(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

type openingHoursRequest struct {
	DisplayName         string             `json:"display_name"`
	ConsultationMinutes int                `json:"consultation_minutes"`
	OpeningHours        model.OpeningHours `json:"opening_hours"`
}

func (a *API) putOpeningHours(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !actor.Owns(id) {
		a.writeErr(w, r, apperr.Forbidden("edit opening hours", "only the professional may edit their template"))
		return
	}
	var req openingHoursRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.badRequest(w, r, "invalid json body: "+err.Error())
		return
	}
	p := model.Professional{
		ID:                  id,
		Role:                actor.ProfessionalRole(),
		DisplayName:         req.DisplayName,
		OpeningHours:        req.OpeningHours,
		ConsultationMinutes: req.ConsultationMinutes,
	}
	if err := p.Validate(); err != nil {
		a.writeErr(w, r, err)
		return
	}
	saved, err := a.d.Store.UpsertProfessional(r.Context(), p)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.d.Logger.Info("opening hours saved", "professional_id", id, "consultation_minutes", saved.ConsultationMinutes)
	httpx.WriteJSON(w, http.StatusOK, saved)
}

type slotsResponse struct {
	ProfessionalID string            `json:"professional_id"`
	Date           model.Date        `json:"date"`
	Available      []model.TimeOfDay `json:"available"`
	FullyBooked    bool              `json:"fully_booked"`
	Unavailable    bool              `json:"unavailable"`
}

func (a *API) getSlots(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		a.badRequest(w, r, "date must be YYYY-MM-DD")
		return
	}
	id := chi.URLParam(r, "id")
	day, err := a.d.Availability.Day(r.Context(), id, date)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{
		ProfessionalID: id,
		Date:           date,
		Available:      day.Available,
		FullyBooked:    day.FullyBooked(),
		Unavailable:    day.Unavailable,
	})
}

type reservedMonthResponse struct {
	ProfessionalID string                         `json:"professional_id"`
	Year           int                            `json:"year"`
	Month          int                            `json:"month"`
	Reserved       availability.MonthReservations `json:"reserved"`
}

func (a *API) getReservedMonth(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil || year < 2000 || year > 9999 {
		a.badRequest(w, r, "year must be a four digit year")
		return
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil || month < 1 || month > 12 {
		a.badRequest(w, r, "month must be 1-12")
		return
	}
	id := chi.URLParam(r, "id")
	reserved, err := a.d.Availability.GetReservedSlotsForMonth(r.Context(), id, year, time.Month(month))
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reservedMonthResponse{ProfessionalID: id, Year: year, Month: month, Reserved: reserved})
}

type unavailableResponse struct {
	ProfessionalID string       `json:"professional_id"`
	Dates          []model.Date `json:"dates"`
}

func (a *API) listUnavailable(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	from, to, ok := a.dateRange(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	dates, err := a.d.Unavailability.List(r.Context(), id, from, to)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, unavailableResponse{ProfessionalID: id, Dates: dates})
}

type setUnavailableRequest struct {
	StartDate model.Date `json:"start_date"`
	EndDate   model.Date `json:"end_date"`
	// Available clears the range instead of blocking it.
	Available bool `json:"available"`
}

func (a *API) setUnavailable(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req setUnavailableRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.badRequest(w, r, "invalid json body: "+err.Error())
		return
	}
	res, err := a.d.Unavailability.SetRange(r.Context(), actor, chi.URLParam(r, "id"), req.StartDate, req.EndDate, req.Available)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// dateRange reads from/to query parameters; to defaults to from+30 days.
func (a *API) dateRange(w http.ResponseWriter, r *http.Request) (model.Date, model.Date, bool) {
	q := r.URL.Query()
	from, err := model.ParseDate(q.Get("from"))
	if err != nil {
		a.badRequest(w, r, "from must be YYYY-MM-DD")
		return model.Date{}, model.Date{}, false
	}
	to := from.AddDays(30)
	if raw := q.Get("to"); raw != "" {
		if to, err = model.ParseDate(raw); err != nil {
			a.badRequest(w, r, "to must be YYYY-MM-DD")
			return model.Date{}, model.Date{}, false
		}
	}
	return from, to, true
}
