package storage

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/events"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

const apptID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock, nil, "scheduling"), mock
}

func TestPostgresGetProfessionalDecodesHours(t *testing.T) {
	s, mock := newMockStore(t)
	updated := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, role, display_name, opening_hours").
		WithArgs("vet-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "role", "display_name", "opening_hours", "consultation_minutes", "updated_at"}).
			AddRow("vet-1", "vet", "Dr. Paws", []byte(`{"monday":{"session":"single","start1":"09:00","end1":"10:00"}}`), 30, updated))

	p, err := s.GetProfessional(context.Background(), "vet-1")
	require.NoError(t, err)
	assert.Equal(t, model.RoleVet, p.Role)
	assert.Equal(t, 30, p.ConsultationMinutes)
	assert.Equal(t, model.SessionSingle, p.OpeningHours.For(time.Monday).Session)
	assert.Equal(t, model.SessionClosed, p.OpeningHours.For(time.Sunday).Session)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetProfessionalNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, role").WithArgs("ghost").WillReturnError(pgx.ErrNoRows)

	_, err := s.GetProfessional(context.Background(), "ghost")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestPostgresCreateAppointmentMapsUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM professionals").WithArgs("vet-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("vet-1"))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("vet-1", monday.Time()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: ActiveSlotConstraint})
	mock.ExpectRollback()

	appt := pending(apptID, 9*60)
	err := s.CreateAppointment(context.Background(), appt, events.ForAppointment(events.AppointmentBooked, appt, time.Now()))
	var st *apperr.SlotTakenError
	require.ErrorAs(t, err, &st)
	assert.Equal(t, "09:00", st.Time)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateAppointmentRejectsUnavailableDay(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM professionals").WithArgs("vet-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("vet-1"))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("vet-1", monday.Time()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := s.CreateAppointment(context.Background(), pending(apptID, 9*60), events.Event{})
	assert.Equal(t, apperr.KindDayUnavailable, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateAppointmentWritesOutbox(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM professionals").WithArgs("vet-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("vet-1"))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("vet-1", monday.Time()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO appointments").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg(), "appointment", apptID, "scheduling.appointment.booked.v1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	appt := pending(apptID, 9*60)
	require.NoError(t, s.CreateAppointment(context.Background(), appt, events.ForAppointment(events.AppointmentBooked, appt, time.Now())))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateAppointmentLostRace(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	appt := pending(apptID, 9*60)
	appt.Status = model.StatusConfirmed
	err := s.UpdateAppointment(context.Background(), model.StatusPending, appt, events.Event{})
	assert.ErrorIs(t, err, apperr.ErrConcurrentUpdate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetUnavailableNoChangeSkipsOutbox(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM professionals").WithArgs("vet-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("vet-1"))
	mock.ExpectExec("INSERT INTO unavailable_dates").
		WithArgs("vet-1", monday.Time(), monday.Time()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := s.SetUnavailable(context.Background(), "vet-1", monday, monday, events.Event{})
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReservedSlotsBetweenGroupsByDay(t *testing.T) {
	s, mock := newMockStore(t)
	tuesday := monday.AddDays(1)
	mock.ExpectQuery("SELECT appt_date, slot_minute").
		WithArgs("vet-1", monday.Time(), tuesday.Time(), []string{"pending", "confirmed", "completed"}).
		WillReturnRows(pgxmock.NewRows([]string{"appt_date", "slot_minute"}).
			AddRow(monday.Time(), 540).
			AddRow(monday.Time(), 570).
			AddRow(tuesday.Time(), 600))

	got, err := s.ReservedSlotsBetween(context.Background(), "vet-1", monday, tuesday)
	require.NoError(t, err)
	assert.Equal(t, []model.TimeOfDay{540, 570}, got[monday])
	assert.Equal(t, []model.TimeOfDay{600}, got[tuesday])
}

func TestPostgresGetAppointmentRejectsMalformedID(t *testing.T) {
	s, mock := newMockStore(t)
	_, err := s.GetAppointment(context.Background(), "not-a-uuid")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
