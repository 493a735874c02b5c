package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusAwaitingPayment AppointmentStatus = "awaiting_payment"
	StatusConfirmed       AppointmentStatus = "confirmed"
	StatusInProgress      AppointmentStatus = "in_progress"
	StatusCompleted       AppointmentStatus = "completed"
	StatusCancelled       AppointmentStatus = "cancelled"
	StatusNoShow          AppointmentStatus = "no_show"
)

// OccupyingStatuses reserve a slot. The partial unique index in the schema
// uses the same list.
var OccupyingStatuses = []AppointmentStatus{
	StatusAwaitingPayment,
	StatusConfirmed,
	StatusInProgress,
}

// Occupies reports whether an appointment in this status holds its slot.
func (s AppointmentStatus) Occupies() bool {
	for _, o := range OccupyingStatuses {
		if s == o {
			return true
		}
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type AppointmentType string

const (
	TypeFirstVisit AppointmentType = "first_visit"
	TypeFollowUp   AppointmentType = "follow_up"
	TypeUrgent     AppointmentType = "urgent"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case TypeFirstVisit, TypeFollowUp, TypeUrgent:
		return true
	}
	return false
}

// ClockTime is a time of day in minutes after midnight.
type ClockTime int

func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime accepts "HH:MM" (a trailing ":SS" is ignored).
func ParseClockTime(s string) (ClockTime, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewClockTime(t.Hour(), t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidInput, s)
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On places the time of day on the calendar date of day, in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, day.Location())
}

// Resolve is On plus whether the wall-clock time exists on that date. Times
// skipped by a daylight-saving jump are normalized by time.Date and report
// false.
func (c ClockTime) Resolve(day time.Time) (time.Time, bool) {
	at := c.On(day)
	return at, at.Hour() == c.Hour() && at.Minute() == c.Minute()
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Practitioner struct {
	ID                  uuid.UUID
	Name                string
	Specialty           string
	ConsultationMinutes int
	BufferMinutes       int
	Verified            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SlotStep is the distance between consecutive slot starts.
func (p Practitioner) SlotStep() time.Duration {
	return time.Duration(p.ConsultationMinutes+p.BufferMinutes) * time.Minute
}

// AvailabilityRule is a weekly recurring window. DayOfWeek follows
// time.Weekday (0 = Sunday).
type AvailabilityRule struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	DayOfWeek      int
	StartTime      ClockTime
	EndTime        ClockTime
	Active         bool
	CreatedAt      time.Time
}

type Appointment struct {
	ID                  uuid.UUID
	PractitionerID      uuid.UUID
	PatientID           uuid.UUID
	ScheduledAt         time.Time
	DurationMinutes     int
	Type                AppointmentType
	Reason              *string
	Status              AppointmentStatus
	SessionID           *string
	PractitionerPresent bool
	PatientPresent      bool
	StartedAt           *time.Time
	EndedAt             *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Patient      *Patient
	Practitioner *Practitioner
}
