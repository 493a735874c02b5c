package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/teleconsult-scheduling/internal/config"
)

func TestGenerateSlots(t *testing.T) {
	day := time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC)
	rule := AvailabilityRule{StartTime: NewClockTime(9, 0), EndTime: NewClockTime(10, 0), Active: true}

	t.Run("step includes buffer", func(t *testing.T) {
		slots := GenerateSlots(rule, 40*time.Minute, day, nil, referenceNow)
		assert.Equal(t, []Slot{
			{Time: "09:00", Available: true},
			{Time: "09:40", Available: true},
		}, slots)
	})

	t.Run("window end is exclusive", func(t *testing.T) {
		r := rule
		r.EndTime = NewClockTime(10, 20)
		slots := GenerateSlots(r, 40*time.Minute, day, nil, referenceNow)
		require.Len(t, slots, 2)
		assert.Equal(t, "09:40", slots[1].Time)
	})

	t.Run("occupied slot is unavailable", func(t *testing.T) {
		slots := GenerateSlots(rule, 40*time.Minute, day, map[string]struct{}{"09:40": {}}, referenceNow)
		assert.True(t, slots[0].Available)
		assert.False(t, slots[1].Available)
	})

	t.Run("non positive step yields nothing", func(t *testing.T) {
		assert.Empty(t, GenerateSlots(rule, 0, day, nil, referenceNow))
		assert.Empty(t, GenerateSlots(rule, 30*time.Second, day, nil, referenceNow))
	})

	t.Run("window shorter than a step yields its start", func(t *testing.T) {
		r := AvailabilityRule{StartTime: NewClockTime(9, 0), EndTime: NewClockTime(9, 10)}
		slots := GenerateSlots(r, 40*time.Minute, day, nil, referenceNow)
		assert.Equal(t, []Slot{{Time: "09:00", Available: true}}, slots)
	})
}

func TestAvailability_FreeDay(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.Availability(context.Background(), f.practitioner.ID, nextTuesday)
	require.NoError(t, err)

	assert.Equal(t, f.practitioner.ID, got.Practitioner.ID)
	assert.Empty(t, got.Message)
	assert.Equal(t, []Slot{
		{Time: "09:00", Available: true},
		{Time: "09:40", Available: true},
	}, got.Slots)
}

func TestAvailability_OccupiedSlot(t *testing.T) {
	f := newFixture(t)
	f.book(t, nextTuesday, "09:00")

	got, err := f.svc.Availability(context.Background(), f.practitioner.ID, nextTuesday)
	require.NoError(t, err)

	assert.Equal(t, []Slot{
		{Time: "09:00", Available: false},
		{Time: "09:40", Available: true},
	}, got.Slots)
}

func TestAvailability_CancelledAppointmentFreesSlot(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, nextTuesday, "09:40")

	_, err := f.svc.Cancel(context.Background(), appt.ID, f.patientActor())
	require.NoError(t, err)

	got, err := f.svc.Availability(context.Background(), f.practitioner.ID, nextTuesday)
	require.NoError(t, err)
	assert.True(t, got.Slots[1].Available)
}

func TestAvailability_Today(t *testing.T) {
	f := newFixture(t)
	f.repo.AddRule(AvailabilityRule{
		PractitionerID: f.practitioner.ID,
		DayOfWeek:      int(time.Thursday),
		StartTime:      NewClockTime(8, 0),
		EndTime:        NewClockTime(10, 0),
		Active:         true,
	})

	got, err := f.svc.Availability(context.Background(), f.practitioner.ID, "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, []Slot{
		{Time: "08:00", Available: false},
		{Time: "08:40", Available: true},
		{Time: "09:20", Available: true},
	}, got.Slots)

	// A slot starting exactly now is already gone.
	f.clock.Set(time.Date(2026, time.October, 15, 8, 40, 0, 0, time.UTC))
	got, err = f.svc.Availability(context.Background(), f.practitioner.ID, "2026-10-15")
	require.NoError(t, err)
	assert.False(t, got.Slots[1].Available)
	assert.True(t, got.Slots[2].Available)
}

func TestAvailability_PastDateIsFullyUnavailable(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.Availability(context.Background(), f.practitioner.ID, "2026-10-13")
	require.NoError(t, err)
	require.Len(t, got.Slots, 2)
	for _, s := range got.Slots {
		assert.False(t, s.Available, s.Time)
	}
}

func TestAvailability_NoRuleForWeekday(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.Availability(context.Background(), f.practitioner.ID, "2026-10-21")
	require.NoError(t, err)
	assert.Empty(t, got.Slots)
	assert.Equal(t, NoAttendanceMessage, got.Message)
}

func TestAvailability_OnlyFirstActiveRuleCounts(t *testing.T) {
	f := newFixture(t)
	f.repo.AddRule(AvailabilityRule{
		PractitionerID: f.practitioner.ID,
		DayOfWeek:      int(time.Tuesday),
		StartTime:      NewClockTime(14, 0),
		EndTime:        NewClockTime(16, 0),
		Active:         true,
	})

	got, err := f.svc.Availability(context.Background(), f.practitioner.ID, nextTuesday)
	require.NoError(t, err)
	require.Len(t, got.Slots, 2)
	assert.Equal(t, "09:00", got.Slots[0].Time)
	assert.Equal(t, "09:40", got.Slots[1].Time)
}

func TestAvailability_InactiveRuleSkipped(t *testing.T) {
	f := newFixture(t)
	other := Practitioner{ID: uuid.New(), Name: "Dr. Caio Lima", ConsultationMinutes: 20, Verified: true}
	f.repo.AddPractitioner(other)
	f.repo.AddRule(AvailabilityRule{
		PractitionerID: other.ID,
		DayOfWeek:      int(time.Tuesday),
		StartTime:      NewClockTime(8, 0),
		EndTime:        NewClockTime(12, 0),
		Active:         false,
	})
	f.repo.AddRule(AvailabilityRule{
		PractitionerID: other.ID,
		DayOfWeek:      int(time.Tuesday),
		StartTime:      NewClockTime(13, 0),
		EndTime:        NewClockTime(14, 0),
		Active:         true,
	})

	got, err := f.svc.Availability(context.Background(), other.ID, nextTuesday)
	require.NoError(t, err)
	assert.Equal(t, []Slot{
		{Time: "13:00", Available: true},
		{Time: "13:20", Available: true},
		{Time: "13:40", Available: true},
	}, got.Slots)
}

func TestAvailability_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Availability(context.Background(), uuid.New(), nextTuesday)
	assert.ErrorIs(t, err, ErrPractitionerNotFound)

	for _, date := range []string{"", "20/10/2026", "2026-13-01"} {
		_, err := f.svc.Availability(context.Background(), f.practitioner.ID, date)
		assert.ErrorIs(t, err, ErrInvalidInput, date)
	}
}

func TestAvailability_ClinicTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	// 09:00 in São Paulo is 12:00 UTC; the slot label follows the clinic zone.
	day := time.Date(2026, time.October, 20, 0, 0, 0, 0, loc)
	rule := AvailabilityRule{StartTime: NewClockTime(9, 0), EndTime: NewClockTime(9, 30)}
	now := time.Date(2026, time.October, 20, 11, 59, 0, 0, time.UTC)

	slots := GenerateSlots(rule, 30*time.Minute, day, nil, now)
	assert.Equal(t, []Slot{{Time: "09:00", Available: true}}, slots)

	slots = GenerateSlots(rule, 30*time.Minute, day, nil, now.Add(time.Minute))
	assert.Equal(t, []Slot{{Time: "09:00", Available: false}}, slots)
}

func TestParseClockTime(t *testing.T) {
	c, err := ParseClockTime("09:40")
	require.NoError(t, err)
	assert.Equal(t, NewClockTime(9, 40), c)
	assert.Equal(t, "09:40", c.String())

	c, err = ParseClockTime("14:05:59")
	require.NoError(t, err)
	assert.Equal(t, "14:05", c.String())

	for _, bad := range []string{"", "9h", "25:00", "12:61"} {
		_, err := ParseClockTime(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}

func TestGenerateSlots_SkipsDaylightSavingGap(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Clocks jump from 02:00 to 03:00 on 2027-03-14.
	day := time.Date(2027, time.March, 14, 0, 0, 0, 0, loc)
	rule := AvailabilityRule{StartTime: NewClockTime(1, 0), EndTime: NewClockTime(4, 0)}

	slots := GenerateSlots(rule, 30*time.Minute, day, nil, referenceNow)
	assert.Equal(t, []Slot{
		{Time: "01:00", Available: true},
		{Time: "01:30", Available: true},
		{Time: "03:00", Available: true},
		{Time: "03:30", Available: true},
	}, slots)

	_, ok := NewClockTime(2, 30).Resolve(day)
	assert.False(t, ok)
	at, ok := NewClockTime(3, 0).Resolve(day)
	assert.True(t, ok)
	assert.Equal(t, 3, at.Hour())
}

func TestAvailability_DaylightSavingGapIsNotBookable(t *testing.T) {
	f := newFixture(t, withConfig(func(c *config.Config) { c.ClinicTimezone = "America/New_York" }))
	f.repo.AddRule(AvailabilityRule{
		PractitionerID: f.practitioner.ID,
		DayOfWeek:      int(time.Sunday),
		StartTime:      NewClockTime(1, 0),
		EndTime:        NewClockTime(4, 0),
		Active:         true,
	})

	_, err := f.svc.Book(context.Background(), BookingRequest{
		PractitionerID: f.practitioner.ID,
		PatientID:      f.patient.ID,
		Date:           "2027-03-14",
		Time:           "02:20",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	f.book(t, "2027-03-14", "01:40")

	got, err := f.svc.Availability(context.Background(), f.practitioner.ID, "2027-03-14")
	require.NoError(t, err)
	assert.Equal(t, []Slot{
		{Time: "01:00", Available: true},
		{Time: "01:40", Available: false},
		{Time: "03:00", Available: true},
		{Time: "03:40", Available: true},
	}, got.Slots)
}
