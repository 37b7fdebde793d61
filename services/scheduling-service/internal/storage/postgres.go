package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fureverhome/pawbook/libs/db"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/events"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/outbox"
)

// ActiveSlotConstraint is the partial unique index over reserving statuses.
const ActiveSlotConstraint = "appointments_active_slot_uq"

// PostgresStore persists scheduling state and writes outbox rows in the same
// transaction as each change.
type PostgresStore struct {
	conn        db.Conn
	outbox      *outbox.Repository
	topicPrefix string
	now         func() time.Time
}

func NewPostgresStore(conn db.Conn, repo *outbox.Repository, topicPrefix string) *PostgresStore {
	if repo == nil {
		repo = outbox.NewRepository()
	}
	return &PostgresStore{conn: conn, outbox: repo, topicPrefix: topicPrefix, now: time.Now}
}

func (s *PostgresStore) GetProfessional(ctx context.Context, id string) (model.Professional, error) {
	var (
		p     model.Professional
		role  string
		hours []byte
	)
	err := s.conn.QueryRow(ctx, `
		SELECT id, role, display_name, opening_hours, consultation_minutes, updated_at
		FROM professionals
		WHERE id = $1
	`, id).Scan(&p.ID, &role, &p.DisplayName, &hours, &p.ConsultationMinutes, &p.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return model.Professional{}, apperr.NotFound("professional", id)
		}
		return model.Professional{}, err
	}
	p.Role = model.Role(role)
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &p.OpeningHours); err != nil {
			return model.Professional{}, fmt.Errorf("decode opening hours for %s: %w", id, err)
		}
	}
	return p, nil
}

func (s *PostgresStore) UpsertProfessional(ctx context.Context, p model.Professional) (model.Professional, error) {
	hours, err := json.Marshal(p.OpeningHours)
	if err != nil {
		return model.Professional{}, err
	}
	p.UpdatedAt = s.now().UTC()
	_, err = s.conn.Exec(ctx, `
		INSERT INTO professionals (id, role, display_name, opening_hours, consultation_minutes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET role = EXCLUDED.role,
		    display_name = EXCLUDED.display_name,
		    opening_hours = EXCLUDED.opening_hours,
		    consultation_minutes = EXCLUDED.consultation_minutes,
		    updated_at = EXCLUDED.updated_at
	`, p.ID, string(p.Role), p.DisplayName, hours, p.ConsultationMinutes, p.UpdatedAt)
	if err != nil {
		return model.Professional{}, err
	}
	return p, nil
}

func reservingStatusStrings() []string {
	out := make([]string, 0, 3)
	for _, st := range model.ReservingStatuses() {
		out = append(out, string(st))
	}
	return out
}

func (s *PostgresStore) ReservedSlots(ctx context.Context, professionalID string, date model.Date) ([]model.TimeOfDay, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT slot_minute
		FROM appointments
		WHERE professional_id = $1 AND appt_date = $2 AND status = ANY($3)
		ORDER BY slot_minute
	`, professionalID, date.Time(), reservingStatusStrings())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TimeOfDay{}
	for rows.Next() {
		var m int
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, model.TimeOfDay(m))
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReservedSlotsBetween(ctx context.Context, professionalID string, from, to model.Date) (map[model.Date][]model.TimeOfDay, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT appt_date, slot_minute
		FROM appointments
		WHERE professional_id = $1 AND appt_date BETWEEN $2 AND $3 AND status = ANY($4)
		ORDER BY appt_date, slot_minute
	`, professionalID, from.Time(), to.Time(), reservingStatusStrings())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[model.Date][]model.TimeOfDay{}
	for rows.Next() {
		var (
			day time.Time
			m   int
		)
		if err := rows.Scan(&day, &m); err != nil {
			return nil, err
		}
		d := model.DateOf(day)
		out[d] = append(out[d], model.TimeOfDay(m))
	}
	return out, rows.Err()
}

func (s *PostgresStore) IsUnavailable(ctx context.Context, professionalID string, date model.Date) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM unavailable_dates WHERE professional_id = $1 AND day = $2)
	`, professionalID, date.Time()).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) UnavailableDates(ctx context.Context, professionalID string, from, to model.Date) ([]model.Date, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT day
		FROM unavailable_dates
		WHERE professional_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day
	`, professionalID, from.Time(), to.Time())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Date{}
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		out = append(out, model.DateOf(day))
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetUnavailable(ctx context.Context, professionalID string, from, to model.Date, evt events.Event) (int, error) {
	return s.changeUnavailable(ctx, professionalID, evt, `
		INSERT INTO unavailable_dates (professional_id, day)
		SELECT $1, d::date FROM generate_series($2::date, $3::date, interval '1 day') AS d
		ON CONFLICT DO NOTHING
	`, professionalID, from.Time(), to.Time())
}

func (s *PostgresStore) ClearUnavailable(ctx context.Context, professionalID string, from, to model.Date, evt events.Event) (int, error) {
	return s.changeUnavailable(ctx, professionalID, evt, `
		DELETE FROM unavailable_dates
		WHERE professional_id = $1 AND day BETWEEN $2 AND $3
	`, professionalID, from.Time(), to.Time())
}

// changeUnavailable locks the professional row so bookings on the same
// calendar wait for the range change to commit.
func (s *PostgresStore) changeUnavailable(ctx context.Context, professionalID string, evt events.Event, sql string, args ...any) (int, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockProfessional(ctx, tx, professionalID, "FOR UPDATE"); err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	changed := int(tag.RowsAffected())
	if changed > 0 {
		if err := s.insertEvent(ctx, tx, evt); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return changed, nil
}

func lockProfessional(ctx context.Context, tx pgx.Tx, professionalID, lock string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM professionals WHERE id = $1 `+lock, professionalID).Scan(&id)
	if db.IsNotFound(err) {
		return apperr.NotFound("professional", professionalID)
	}
	return err
}

func (s *PostgresStore) insertEvent(ctx context.Context, tx pgx.Tx, evt events.Event) error {
	rec, err := outbox.FromDomain(s.topicPrefix, evt)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, rec)
}

func (s *PostgresStore) CreateAppointment(ctx context.Context, appt model.Appointment, evt events.Event) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockProfessional(ctx, tx, appt.ProfessionalID, "FOR SHARE"); err != nil {
		return err
	}
	var unavailable bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM unavailable_dates WHERE professional_id = $1 AND day = $2)
	`, appt.ProfessionalID, appt.Date.Time()).Scan(&unavailable); err != nil {
		return err
	}
	if unavailable {
		return &apperr.DayUnavailableError{ProfessionalID: appt.ProfessionalID, Date: appt.Date.String()}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (
			id, professional_id, professional_type, appt_date, slot_minute, duration_minutes,
			requester_id, pet_id, pet_name, pet_type, pet_age, reason, notes, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, appt.ID, appt.ProfessionalID, string(appt.ProfessionalType), appt.Date.Time(), int(appt.Time), appt.DurationMinutes,
		appt.RequesterID, appt.Pet.PetID, appt.Pet.Name, appt.Pet.Type, appt.Pet.Age, appt.Reason, appt.Notes, string(appt.Status),
		appt.CreatedAt, appt.UpdatedAt)
	if err != nil {
		if db.IsConflict(err) && db.ConstraintName(err) == ActiveSlotConstraint {
			return &apperr.SlotTakenError{ProfessionalID: appt.ProfessionalID, Date: appt.Date.String(), Time: appt.Time.String()}
		}
		return err
	}
	if err := s.insertEvent(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const appointmentColumns = `id::text, professional_id, professional_type, appt_date, slot_minute, duration_minutes,
	requester_id, pet_id, pet_name, pet_type, pet_age, reason, notes, status,
	cancellation_reason, cancelled_by, completion_notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var profType, status, cancelled string
	var day time.Time
	var minute int
	err := row.Scan(&a.ID, &a.ProfessionalID, &profType, &day, &minute, &a.DurationMinutes,
		&a.RequesterID, &a.Pet.PetID, &a.Pet.Name, &a.Pet.Type, &a.Pet.Age, &a.Reason, &a.Notes, &status,
		&a.CancellationReason, &cancelled, &a.CompletionNotes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	a.ProfessionalType = model.Role(profType)
	a.Date = model.DateOf(day)
	a.Time = model.TimeOfDay(minute)
	a.Status = model.Status(status)
	a.CancelledBy = model.Initiator(cancelled)
	return a, nil
}

func (s *PostgresStore) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, apperr.NotFound("appointment", id)
	}
	a, err := scanAppointment(s.conn.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return model.Appointment{}, apperr.NotFound("appointment", id)
		}
		return model.Appointment{}, err
	}
	return a, nil
}

func (s *PostgresStore) UpdateAppointment(ctx context.Context, expected model.Status, appt model.Appointment, evt events.Event) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3,
		    pet_name = $4,
		    pet_type = $5,
		    pet_age = $6,
		    cancellation_reason = $7,
		    cancelled_by = $8,
		    completion_notes = $9,
		    updated_at = $10
		WHERE id = $1 AND status = $2
	`, appt.ID, string(expected), string(appt.Status), appt.Pet.Name, appt.Pet.Type, appt.Pet.Age,
		appt.CancellationReason, string(appt.CancelledBy), appt.CompletionNotes, appt.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrConcurrentUpdate
	}
	if err := s.insertEvent(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListAppointments(ctx context.Context, filter model.AppointmentFilter) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.ProfessionalID != "" {
		add("professional_id = $%d", filter.ProfessionalID)
	}
	if filter.RequesterID != "" {
		add("requester_id = $%d", filter.RequesterID)
	}
	if !filter.From.IsZero() {
		add("appt_date >= $%d", filter.From.Time())
	}
	if !filter.To.IsZero() {
		add("appt_date <= $%d", filter.To.Time())
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		add("status = ANY($%d)", statuses)
	}

	q := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.EffectiveLimit())
	q += fmt.Sprintf(` ORDER BY appt_date, slot_minute, id LIMIT $%d`, len(args))

	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
