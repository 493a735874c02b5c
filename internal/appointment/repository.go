package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")

	// ErrSlotConflict is returned by CreateAppointment when another appointment
	// already occupies the same practitioner and start time.
	ErrSlotConflict = errors.New("slot is no longer available")
)

// ListFilter narrows appointment listings. Zero ids are ignored.
type ListFilter struct {
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	Limit          int
	Offset         int
}

// SessionStart carries the values written when the practitioner opens the room.
// SessionID and StartedAt only apply when the row has none yet.
type SessionStart struct {
	SessionID string
	StartedAt time.Time
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	SetPractitionerVerified(ctx context.Context, id uuid.UUID, verified bool) (*Practitioner, error)

	// Weekly availability, in insertion order
	ListAvailabilityRules(ctx context.Context, practitionerID uuid.UUID) ([]AvailabilityRule, error)
	ListActiveRulesForDay(ctx context.Context, practitionerID uuid.UUID, dayOfWeek int) ([]AvailabilityRule, error)
	ReplaceAvailabilityRules(ctx context.Context, practitionerID uuid.UUID, rules []AvailabilityRule) ([]AvailabilityRule, error)

	// For availability and conflict checks
	ListOccupyingBetween(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Appointment, error)
	FindOccupyingAt(ctx context.Context, practitionerID uuid.UUID, at time.Time) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error)

	// Creation and updates. Guarded updates return ErrAppointmentNotFound when
	// the row is missing or not in one of the from statuses.
	CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error)
	StartSession(ctx context.Context, id uuid.UUID, start SessionStart) (*Appointment, error)
	MarkPatientPresent(ctx context.Context, id uuid.UUID) (*Appointment, error)
	EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time) (*Appointment, error)

	// Expiry worker
	FindStaleAwaitingPayment(ctx context.Context, createdBefore time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
