package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fureverhome/pawbook/libs/auth"
	"github.com/fureverhome/pawbook/libs/httpx"
	"github.com/fureverhome/pawbook/libs/runtime"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/availability"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/booking"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/lifecycle"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/metrics"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/notify"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/unavailability"
)

// Reader is the store surface the read endpoints use directly.
type Reader interface {
	GetProfessional(ctx context.Context, id string) (model.Professional, error)
	UpsertProfessional(ctx context.Context, p model.Professional) (model.Professional, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, filter model.AppointmentFilter) ([]model.Appointment, error)
}

type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Verifier       *auth.Verifier
	Store          Reader
	Availability   *availability.Service
	Booking        *booking.Coordinator
	Lifecycle      *lifecycle.Service
	Unavailability *unavailability.Manager
	WS             *notify.WSServer
	ReadyChecks    []runtime.ReadyCheck
	CORSOrigins    []string
	// BookingLimiter guards appointment creation; nil disables it.
	BookingLimiter httpx.Middleware
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

type API struct {
	d Deps
}

func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 10 * time.Second
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 1 << 20
	}
	api := &API{d: d}

	r := chi.NewRouter()
	r.Use(
		httpx.WithRequestID,
		httpx.WithRecover(d.Logger),
		httpx.WithAccessLog(d.Logger, d.Metrics),
		httpx.WithCORS(httpx.DefaultCORSPolicy(d.CORSOrigins)),
	)
	runtime.MountHealth(r, d.ReadyChecks...)
	r.Handle("/metrics", metrics.Handler(d.Gatherer))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.Verifier))
		r.Get("/ws", api.websocket)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			auth.Middleware(d.Verifier),
			httpx.WithBodyLimit(d.MaxBodyBytes),
			httpx.WithTimeout(d.RequestTimeout),
		)

		r.Route("/professionals/{id}", func(r chi.Router) {
			r.Get("/", api.getProfessional)
			r.Put("/opening-hours", api.putOpeningHours)
			r.Get("/slots", api.getSlots)
			r.Get("/reserved", api.getReservedMonth)
			r.Get("/unavailable", api.listUnavailable)
			r.Put("/unavailable", api.setUnavailable)
		})

		r.Route("/appointments", func(r chi.Router) {
			if d.BookingLimiter != nil {
				r.With(d.BookingLimiter).Post("/", api.createAppointment)
			} else {
				r.Post("/", api.createAppointment)
			}
			r.Get("/", api.listAppointments)
			r.Get("/{id}", api.getAppointment)
			r.Patch("/{id}/status", api.updateStatus)
			r.Patch("/{id}/pet", api.updatePet)
		})
	})
	return r
}
