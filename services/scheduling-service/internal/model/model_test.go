package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2026, time.March, 2), d)
	assert.Equal(t, time.Monday, d.Weekday())
	assert.Equal(t, "2026-03-02", d.String())

	_, err = ParseDate("2026-02-30")
	assert.Error(t, err)
	_, err = ParseDate("02/03/2026")
	assert.Error(t, err)
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2026, time.February, 27)
	assert.Equal(t, NewDate(2026, time.March, 1), d.AddDays(2))
	assert.Equal(t, 2, d.DaysUntil(d.AddDays(2)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))

	first, last := MonthRange(2024, time.February)
	assert.Equal(t, NewDate(2024, time.February, 1), first)
	assert.Equal(t, NewDate(2024, time.February, 29), last)
}

func TestDateOfIgnoresClockOffset(t *testing.T) {
	loc := time.FixedZone("UTC-10", -10*3600)
	late := time.Date(2026, 3, 2, 23, 30, 0, 0, loc)
	assert.Equal(t, NewDate(2026, time.March, 2), DateOf(late))
	assert.Equal(t, NewDate(2026, time.March, 3), DateOf(late.UTC()))
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(570), tod)
	assert.Equal(t, "09:30", tod.String())

	tod, err = ParseTimeOfDay("7:05")
	require.NoError(t, err)
	assert.Equal(t, "07:05", tod.String())

	for _, bad := range []string{"", "9", "09:60", "25:00", "24:00", "ab:cd", "09-30", "+9:00", "09:5"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}

	end, err := ParseWindowBound("24:00")
	require.NoError(t, err)
	assert.Equal(t, MinutesPerDay, end)
}

func TestTimeOfDayStringWraps(t *testing.T) {
	assert.Equal(t, "00:30", TimeOfDay(MinutesPerDay+30).String())
}

func TestJSONShapes(t *testing.T) {
	appt := Appointment{ID: "a1", Date: NewDate(2026, time.March, 2), Time: TimeOfDay(540), Status: StatusPending}
	b, err := json.Marshal(appt)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"date":"2026-03-02"`)
	assert.Contains(t, string(b), `"time":"09:00"`)

	var back Appointment
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, appt.Date, back.Date)
	assert.Equal(t, appt.Time, back.Time)
}

func TestOpeningHoursJSON(t *testing.T) {
	var hours OpeningHours
	require.NoError(t, json.Unmarshal([]byte(`{"Monday":{"session":"single","start1":"09:00","end1":"12:00"}}`), &hours))
	assert.Equal(t, SessionSingle, hours.For(time.Monday).Session)
	assert.Equal(t, SessionClosed, hours.For(time.Tuesday).Session)

	b, err := json.Marshal(hours)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"monday":{"session":"single"`)
	assert.Contains(t, string(b), `"sunday":{"session":"closed"}`)

	assert.Error(t, json.Unmarshal([]byte(`{"funday":{"session":"closed"}}`), &hours))
}

func TestProfessionalValidate(t *testing.T) {
	p := Professional{
		ID:                  "vet-1",
		Role:                RoleVet,
		ConsultationMinutes: 30,
		OpeningHours: OpeningHours{
			time.Monday: {Session: SessionDouble, Start1: "09:00", End1: "12:00", Start2: "14:00", End2: "17:00"},
		},
	}
	require.NoError(t, p.Validate())

	p.ConsultationMinutes = 2
	assert.Error(t, p.Validate())

	p.ConsultationMinutes = 30
	p.OpeningHours[time.Friday] = DaySchedule{Session: SessionSingle, Start1: "9am", End1: "5pm"}
	assert.Error(t, p.Validate())
}

func TestProfessionalValidateRejectsStartAtEndOfDay(t *testing.T) {
	p := Professional{ID: "vet-1", Role: RoleVet, ConsultationMinutes: 30, OpeningHours: OpeningHours{
		time.Monday: {Session: SessionSingle, Start1: "24:00", End1: "02:00"},
	}}
	err := p.Validate()
	var ve *apperr.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "opening_hours.monday", ve.Field)

	p.OpeningHours[time.Monday] = DaySchedule{Session: SessionDouble, Start1: "09:00", End1: "12:00", Start2: "24:00", End2: "24:00"}
	assert.Error(t, p.Validate())

	p.OpeningHours[time.Monday] = DaySchedule{Session: SessionSingle, Start1: "20:00", End1: "24:00"}
	assert.NoError(t, p.Validate())
}

func TestProfessionalValidateOvernightOverlap(t *testing.T) {
	p := Professional{ID: "vet-1", Role: RoleVet, ConsultationMinutes: 60, OpeningHours: OpeningHours{
		time.Sunday: {Session: SessionSingle, Start1: "22:00", End1: "02:00"},
		time.Monday: {Session: SessionSingle, Start1: "00:00", End1: "02:00"},
	}}
	err := p.Validate()
	var ve *apperr.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "opening_hours.sunday", ve.Field)

	p.OpeningHours[time.Monday] = DaySchedule{Session: SessionSingle, Start1: "02:00", End1: "06:00"}
	assert.NoError(t, p.Validate(), "tail ending where the next window starts")

	p.OpeningHours = OpeningHours{
		time.Saturday: {Session: SessionSingle, Start1: "23:00", End1: "01:00"},
		time.Sunday:   {Session: SessionDouble, Start1: "00:30", End1: "03:00", Start2: "09:00", End2: "12:00"},
	}
	assert.Error(t, p.Validate(), "saturday wraps into sunday")
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusCompleted.HoldsReservation())
	assert.False(t, StatusCancelled.HoldsReservation())
	assert.False(t, StatusNotAvailable.HoldsReservation())
	assert.True(t, StatusNotAvailable.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
	assert.False(t, Status("archived").Valid())
}

func TestPetDescriptor(t *testing.T) {
	assert.True(t, PetDescriptor{PetID: "pet-7"}.Complete())
	assert.False(t, PetDescriptor{Name: "Rex"}.Complete())
	merged := PetDescriptor{Name: "Rex"}.Merge(PetDescriptor{Type: " dog ", Age: "3"})
	assert.True(t, merged.Complete())
	assert.Equal(t, "dog", merged.Type)
	assert.True(t, PetDescriptor{}.IsEmpty())
}

func TestAppointmentFilterMatches(t *testing.T) {
	a := Appointment{ProfessionalID: "vet-1", RequesterID: "owner-1", Date: NewDate(2026, time.March, 2), Status: StatusConfirmed}
	assert.True(t, AppointmentFilter{ProfessionalID: "vet-1"}.Matches(a))
	assert.False(t, AppointmentFilter{RequesterID: "owner-2"}.Matches(a))
	assert.False(t, AppointmentFilter{Statuses: []Status{StatusPending}}.Matches(a))
	assert.False(t, AppointmentFilter{From: NewDate(2026, time.March, 3)}.Matches(a))
	assert.Equal(t, DefaultListLimit, AppointmentFilter{Limit: 10000}.EffectiveLimit())
}

func TestActor(t *testing.T) {
	vet := Actor{ID: "vet-1", Role: ActorVet}
	assert.True(t, vet.Owns("vet-1"))
	assert.False(t, Actor{ID: "vet-1", Role: ActorOwner}.Owns("vet-1"))
	assert.Equal(t, RoleTrainer, Actor{ID: "t", Role: ActorTrainer}.ProfessionalRole())
	assert.False(t, Actor{Role: ActorOwner}.Valid())
}
