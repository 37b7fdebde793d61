package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fureverhome/pawbook/libs/auth"
	"github.com/fureverhome/pawbook/libs/httpx"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/availability"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/booking"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/events"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/lifecycle"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/metrics"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/notify"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/storage"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/unavailability"
)

const secret = "handlers-test-secret"

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

type failingReader struct {
	*storage.MemoryStore
}

func (failingReader) GetAppointment(context.Context, string) (model.Appointment, error) {
	return model.Appointment{}, errors.New("connection reset by peer")
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	store   *storage.MemoryStore
}

func newServer(t *testing.T, reader func(*storage.MemoryStore) Reader) testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := storage.NewMemoryStore()
	avail := availability.NewService(store, nil, m, logger)
	clock := func() time.Time { return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC) }
	verifier, err := auth.NewVerifier(secret)
	require.NoError(t, err)

	var r Reader = store
	if reader != nil {
		r = reader(store)
	}
	h := NewRouter(Deps{
		Logger:         logger,
		Metrics:        m,
		Gatherer:       reg,
		Verifier:       verifier,
		Store:          r,
		Availability:   avail,
		Booking:        booking.NewCoordinator(store, avail, nopPublisher{}, m, logger, booking.WithClock(clock)),
		Lifecycle:      lifecycle.NewService(store, avail, nopPublisher{}, m, logger),
		Unavailability: unavailability.NewManager(store, avail, nopPublisher{}, m, logger),
		WS:             notify.NewWSServer(notify.NewHub(m), logger, notify.WSConfig{}),
		BookingLimiter: httpx.NewRateLimiter(5, time.Minute, auth.SubjectKey).Middleware(),
	})
	return testServer{t: t, handler: h, store: store}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Principal{Subject: sub, Role: role}, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s testServer) do(method, path, tok string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s testServer) seedVet(vetTok string) {
	s.t.Helper()
	rec := s.do(http.MethodPut, "/api/v1/professionals/vet-1/opening-hours", vetTok, map[string]any{
		"display_name":         "Dr. Paws",
		"consultation_minutes": 30,
		"opening_hours": map[string]any{
			"monday": map[string]string{"session": "single", "start1": "09:00", "end1": "10:00"},
		},
	})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	s := newServer(t, nil)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/readyz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/metrics", "", nil).Code)
}

func TestAuthRequired(t *testing.T) {
	s := newServer(t, nil)
	rec := s.do(http.MethodGet, "/api/v1/professionals/vet-1/slots?date=2026-03-02", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/professionals/vet-1/slots?date=2026-03-02", token(t, "admin-1", "admin"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBookingFlowOverHTTP(t *testing.T) {
	s := newServer(t, nil)
	vetTok := token(t, "vet-1", "vet")
	ownerTok := token(t, "owner-1", "owner")
	s.seedVet(vetTok)

	rec := s.do(http.MethodGet, "/api/v1/professionals/vet-1/slots?date=2026-03-02", ownerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slotsBody := decodeBody[slotsResponse](t, rec)
	assert.Equal(t, []model.TimeOfDay{9 * 60, 9*60 + 30}, slotsBody.Available)
	assert.False(t, slotsBody.FullyBooked)

	book := map[string]any{
		"professional_id": "vet-1",
		"date":            "2026-03-02",
		"time":            "09:00",
		"pet":             map[string]string{"name": "Rex", "type": "dog"},
	}
	rec = s.do(http.MethodPost, "/api/v1/appointments", ownerTok, book)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decodeBody[model.Appointment](t, rec)
	assert.Equal(t, model.StatusPending, appt.Status)
	assert.Equal(t, "/api/v1/appointments/"+appt.ID, rec.Header().Get("Location"))

	rec = s.do(http.MethodPost, "/api/v1/appointments", token(t, "owner-2", "owner"), book)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_taken", decodeBody[httpx.ErrorBody](t, rec).Code)

	rec = s.do(http.MethodGet, "/api/v1/professionals/vet-1/slots?date=2026-03-02", ownerTok, nil)
	assert.Equal(t, []model.TimeOfDay{9*60 + 30}, decodeBody[slotsResponse](t, rec).Available)

	rec = s.do(http.MethodPatch, "/api/v1/appointments/"+appt.ID+"/status", vetTok, map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPatch, "/api/v1/appointments/"+appt.ID+"/status", vetTok, map[string]string{"status": "cancelled", "reason": "emergency"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.StatusCancelled, decodeBody[model.Appointment](t, rec).Status)

	rec = s.do(http.MethodGet, "/api/v1/professionals/vet-1/slots?date=2026-03-02", ownerTok, nil)
	assert.Equal(t, []model.TimeOfDay{9 * 60, 9*60 + 30}, decodeBody[slotsResponse](t, rec).Available)

	rec = s.do(http.MethodPatch, "/api/v1/appointments/"+appt.ID+"/status", vetTok, map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decodeBody[httpx.ErrorBody](t, rec).Code)
}

func TestBookingErrorsOverHTTP(t *testing.T) {
	s := newServer(t, nil)
	vetTok := token(t, "vet-1", "vet")
	ownerTok := token(t, "owner-1", "owner")
	s.seedVet(vetTok)

	past := map[string]any{"professional_id": "vet-1", "date": "2026-02-23", "time": "09:00", "pet": map[string]string{"name": "Rex"}}
	rec := s.do(http.MethodPost, "/api/v1/appointments", ownerTok, past)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	bad := map[string]any{"professional_id": "vet-1", "date": "March 2", "time": "09:00"}
	rec = s.do(http.MethodPost, "/api/v1/appointments", ownerTok, bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	unknownField := map[string]any{"professional_id": "vet-1", "date": "2026-03-02", "time": "09:00", "slot": 3}
	rec = s.do(http.MethodPost, "/api/v1/appointments", ownerTok, unknownField)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ghost := map[string]any{"professional_id": "ghost", "date": "2026-03-02", "time": "09:00", "pet": map[string]string{"name": "Rex"}}
	rec = s.do(http.MethodPost, "/api/v1/appointments", ownerTok, ghost)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookingIsRateLimited(t *testing.T) {
	s := newServer(t, nil)
	ownerTok := token(t, "owner-1", "owner")
	body := map[string]any{"professional_id": "ghost", "date": "2026-03-02", "time": "09:00", "pet": map[string]string{"name": "Rex"}}
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/v1/appointments", ownerTok, body).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/api/v1/appointments", ownerTok, body).Code)
}

func TestUnavailableRangeOverHTTP(t *testing.T) {
	s := newServer(t, nil)
	vetTok := token(t, "vet-1", "vet")
	ownerTok := token(t, "owner-1", "owner")
	s.seedVet(vetTok)

	rng := map[string]any{"start_date": "2026-03-02", "end_date": "2026-03-02"}
	rec := s.do(http.MethodPut, "/api/v1/professionals/vet-1/unavailable", ownerTok, rng)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPut, "/api/v1/professionals/vet-1/unavailable", vetTok, rng)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeBody[unavailability.Result](t, rec).Changed)

	rec = s.do(http.MethodGet, "/api/v1/professionals/vet-1/slots?date=2026-03-02", ownerTok, nil)
	day := decodeBody[slotsResponse](t, rec)
	assert.Empty(t, day.Available)
	assert.True(t, day.Unavailable)

	rec = s.do(http.MethodPost, "/api/v1/appointments", ownerTok, map[string]any{
		"professional_id": "vet-1", "date": "2026-03-02", "time": "09:00", "pet": map[string]string{"name": "Rex"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "day_unavailable", decodeBody[httpx.ErrorBody](t, rec).Code)

	rec = s.do(http.MethodGet, "/api/v1/professionals/vet-1/unavailable?from=2026-03-01&to=2026-03-31", ownerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []model.Date{model.NewDate(2026, time.March, 2)}, decodeBody[unavailableResponse](t, rec).Dates)
}

func TestReservedMonthOverHTTP(t *testing.T) {
	s := newServer(t, nil)
	vetTok := token(t, "vet-1", "vet")
	ownerTok := token(t, "owner-1", "owner")
	s.seedVet(vetTok)
	rec := s.do(http.MethodPost, "/api/v1/appointments", ownerTok, map[string]any{
		"professional_id": "vet-1", "date": "2026-03-02", "time": "09:30", "pet": map[string]string{"name": "Rex"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/professionals/vet-1/reserved?year=2026&month=3", ownerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[reservedMonthResponse](t, rec)
	assert.Equal(t, []model.TimeOfDay{9*60 + 30}, body.Reserved[model.NewDate(2026, time.March, 2)])

	rec = s.do(http.MethodGet, "/api/v1/professionals/vet-1/reserved?year=2026&month=13", ownerTok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAppointmentVisibility(t *testing.T) {
	s := newServer(t, nil)
	vetTok := token(t, "vet-1", "vet")
	ownerTok := token(t, "owner-1", "owner")
	otherTok := token(t, "owner-2", "owner")
	s.seedVet(vetTok)
	rec := s.do(http.MethodPost, "/api/v1/appointments", ownerTok, map[string]any{
		"professional_id": "vet-1", "date": "2026-03-02", "time": "09:00", "pet": map[string]string{"name": "Rex"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decodeBody[model.Appointment](t, rec)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/appointments/"+appt.ID, vetTok, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/appointments/"+appt.ID, ownerTok, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/v1/appointments/"+appt.ID, otherTok, nil).Code)

	rec = s.do(http.MethodGet, "/api/v1/appointments?professional_id=vet-1", vetTok, nil)
	assert.Len(t, decodeBody[listResponse](t, rec).Appointments, 1)
	rec = s.do(http.MethodGet, "/api/v1/appointments?professional_id=vet-1", otherTok, nil)
	assert.Empty(t, decodeBody[listResponse](t, rec).Appointments)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/v1/appointments?requester_id=owner-1", otherTok, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/appointments?status=archived", ownerTok, nil).Code)

	rec = s.do(http.MethodPatch, "/api/v1/appointments/"+appt.ID+"/pet", ownerTok, map[string]string{"type": "dog"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "dog", decodeBody[model.Appointment](t, rec).Pet.Type)
}

func TestOpeningHoursValidation(t *testing.T) {
	s := newServer(t, nil)
	rec := s.do(http.MethodPut, "/api/v1/professionals/vet-1/opening-hours", token(t, "vet-1", "vet"), map[string]any{
		"consultation_minutes": 2,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/api/v1/professionals/vet-1/opening-hours", token(t, "vet-2", "vet"), map[string]any{
		"consultation_minutes": 30,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPut, "/api/v1/professionals/vet-1/opening-hours", token(t, "vet-1", "vet"), map[string]any{
		"consultation_minutes": 30,
		"opening_hours": map[string]any{
			"monday": map[string]string{"session": "single", "start1": "24:00", "end1": "02:00"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoreFailureIsGenericInternalError(t *testing.T) {
	s := newServer(t, func(m *storage.MemoryStore) Reader { return failingReader{m} })
	rec := s.do(http.MethodGet, "/api/v1/appointments/anything", token(t, "owner-1", "owner"), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[httpx.ErrorBody](t, rec)
	assert.Equal(t, "internal error", body.Error)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}
