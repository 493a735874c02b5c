package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/teleconsult-scheduling/internal/redis"
)

type BookingRequest struct {
	PractitionerID uuid.UUID
	// PatientID comes from the authenticated caller, never from the body.
	PatientID uuid.UUID
	Date      string
	Time      string
	Type      AppointmentType
	Reason    string
}

type BookingResult struct {
	Appointment      Appointment
	PractitionerName string
	Specialty        string
}

func (r BookingRequest) validate() error {
	var missing []string
	if r.PractitionerID == uuid.Nil {
		missing = append(missing, "practitionerId")
	}
	if r.PatientID == uuid.Nil {
		missing = append(missing, "patientId")
	}
	if r.Date == "" {
		missing = append(missing, "date")
	}
	if r.Time == "" {
		missing = append(missing, "time")
	}
	if len(missing) > 0 {
		return invalidInput("missing required fields: %s", strings.Join(missing, ", "))
	}
	if r.Type != "" && !r.Type.Valid() {
		return invalidInput("unknown appointment type %q", r.Type)
	}
	return nil
}

// SlotKey identifies one practitioner start time for locking.
func SlotKey(practitionerID uuid.UUID, at time.Time) string {
	return practitionerID.String() + ":" + at.UTC().Format(time.RFC3339)
}

// Book reserves a slot for the patient in awaiting_payment. The Redis lock
// narrows the check-then-insert window and the partial unique index on
// (practitioner_id, scheduled_at) closes it; both surface as a conflict.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = TypeFirstVisit
	}

	practitioner, err := s.repo.GetPractitionerByID(ctx, req.PractitionerID)
	if err != nil {
		if errors.Is(err, ErrPractitionerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load practitioner: %w", err)
	}
	if !practitioner.Verified {
		return nil, ErrPractitionerNotVerified
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	day, err := s.parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	tod, err := ParseClockTime(req.Time)
	if err != nil {
		return nil, err
	}
	scheduledAt, exists := tod.Resolve(day)
	if !exists {
		return nil, invalidInput("%s %s does not exist in %s", req.Date, tod, s.loc)
	}
	if !scheduledAt.After(s.now()) {
		return nil, invalidInput("%s %s is in the past", req.Date, tod)
	}

	var reason *string
	if r := strings.TrimSpace(req.Reason); r != "" {
		reason = &r
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, SlotKey(practitioner.ID, scheduledAt), func(lockCtx context.Context) error {
		existing, err := s.repo.FindOccupyingAt(lockCtx, practitioner.ID, scheduledAt)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check occupied slot: %w", err)
		}
		if existing != nil {
			return ErrSlotConflict
		}

		sessionID := uuid.NewString()
		appt, err := s.repo.CreateAppointment(lockCtx, Appointment{
			ID:              uuid.New(),
			PractitionerID:  practitioner.ID,
			PatientID:       req.PatientID,
			ScheduledAt:     scheduledAt,
			DurationMinutes: practitioner.ConsultationMinutes,
			Type:            req.Type,
			Reason:          reason,
			Status:          StatusAwaitingPayment,
			SessionID:       &sessionID,
		})
		if err != nil {
			if errors.Is(err, ErrSlotConflict) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"practitioner_id": practitioner.ID.String(),
			"patient_id":      req.PatientID.String(),
			"scheduled_at":    scheduledAt,
			"type":            string(req.Type),
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return &BookingResult{
		Appointment:      *created,
		PractitionerName: practitioner.Name,
		Specialty:        practitioner.Specialty,
	}, nil
}
