package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/teleconsult-scheduling/internal/config"
	redisclient "github.com/hackgods/teleconsult-scheduling/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
	EventAppointmentReleased  = "APPOINTMENT_RELEASED"
	EventSessionStarted       = "SESSION_STARTED"
	EventPatientJoined        = "PATIENT_JOINED"
	EventSessionEnded         = "SESSION_ENDED"
)

type Role string

const (
	RolePatient      Role = "patient"
	RolePractitioner Role = "practitioner"
	RoleAdmin        Role = "admin"
)

// Actor is the authenticated caller. ID is the patient or practitioner id
// for those roles.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	presence *PresenceNotifier

	loc            *time.Location
	now            func() time.Time
	sessionBaseURL string
	joinWait       time.Duration
	paymentTTL     time.Duration
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPresence enables presence events and long-polling joins.
func WithPresence(n *PresenceNotifier) Option {
	return func(s *Service) { s.presence = n }
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:           repo,
		locker:         locker,
		loc:            cfg.Location(),
		now:            time.Now,
		sessionBaseURL: cfg.SessionBaseURL,
		joinWait:       cfg.JoinWait,
		paymentTTL:     cfg.PaymentTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the clinic zone used for calendar dates.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Presence returns the notifier, or nil when presence events are disabled.
func (s *Service) Presence() *PresenceNotifier {
	return s.presence
}

// ConfirmPayment moves an awaiting_payment appointment to confirmed. Payment
// itself is settled elsewhere; this is the hook that records it.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusAwaitingPayment {
		return nil, ErrInvalidStatusTransition
	}
	return s.transition(ctx, appt, []AppointmentStatus{StatusAwaitingPayment}, StatusConfirmed, EventAppointmentConfirmed, nil)
}

// Cancel releases the slot. Either participant or an admin may cancel any
// appointment that has not finished.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.loadForParticipant(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, ErrInvalidStatusTransition
	}
	return s.transition(ctx, appt, OccupyingStatuses, StatusCancelled, EventAppointmentCancelled, map[string]any{
		"by": string(actor.Role),
	})
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	var appt *Appointment
	var err error
	if actor.Role == RoleAdmin {
		appt, err = s.loadAppointment(ctx, id)
	} else {
		appt, err = s.loadForPractitioner(ctx, id, actor)
	}
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, ErrInvalidStatusTransition
	}
	return s.transition(ctx, appt, OccupyingStatuses, StatusNoShow, EventAppointmentNoShow, nil)
}

func (s *Service) transition(ctx context.Context, appt *Appointment, from []AppointmentStatus, to AppointmentStatus, event string, payload map[string]any) (*Appointment, error) {
	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, from, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// row changed between load and update
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	if payload == nil {
		payload = map[string]any{}
	}
	payload["from"] = string(appt.Status)
	s.logEvent(ctx, updated.ID, event, payload)
	s.publish(ctx, PresenceStatusChanged, updated)

	return updated, nil
}

// ReleaseStaleAwaitingPayment cancels awaiting_payment appointments older
// than the configured TTL. It does nothing when the TTL is zero.
func (s *Service) ReleaseStaleAwaitingPayment(ctx context.Context) (int, error) {
	if s.paymentTTL <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-s.paymentTTL)
	stale, err := s.repo.FindStaleAwaitingPayment(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale awaiting_payment appointments: %w", err)
	}

	released := 0
	for _, appt := range stale {
		updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, []AppointmentStatus{StatusAwaitingPayment}, StatusCancelled)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				zerolog.Ctx(ctx).Error().Err(err).Stringer("appointment_id", appt.ID).Msg("failed to release appointment")
			}
			continue
		}
		released++
		s.logEvent(ctx, appt.ID, EventAppointmentReleased, map[string]any{
			"reason":     "payment_timeout",
			"created_at": appt.CreatedAt,
		})
		s.publish(ctx, PresenceStatusChanged, updated)
	}

	return released, nil
}

// GetAppointment retrieves a fully hydrated appointment visible to actor.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*AppointmentDetail, error) {
	appt, err := s.loadForParticipant(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, *appt)
}

func (s *Service) hydrate(ctx context.Context, appt Appointment) (*AppointmentDetail, error) {
	detail := &AppointmentDetail{Appointment: appt}

	practitioner, err := s.repo.GetPractitionerByID(ctx, appt.PractitionerID)
	if err != nil {
		return nil, fmt.Errorf("load practitioner: %w", err)
	}
	detail.Practitioner = practitioner

	patient, err := s.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	detail.Patient = patient

	return detail, nil
}

// ListAppointments lists the caller's own appointments. Admins may filter by
// either party.
func (s *Service) ListAppointments(ctx context.Context, actor Actor, filter ListFilter) ([]Appointment, error) {
	switch actor.Role {
	case RolePatient:
		filter.PatientID = actor.ID
		filter.PractitionerID = uuid.Nil
	case RolePractitioner:
		filter.PractitionerID = actor.ID
		filter.PatientID = uuid.Nil
	case RoleAdmin:
	default:
		return nil, ErrForbidden
	}

	if filter.Limit <= 0 {
		filter.Limit = 20 // default
	}
	if filter.Limit > 100 {
		filter.Limit = 100 // max
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	appointments, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

func (s *Service) VerifyPractitioner(ctx context.Context, id uuid.UUID, actor Actor) (*Practitioner, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	p, err := s.repo.SetPractitionerVerified(ctx, id, true)
	if err != nil {
		if errors.Is(err, ErrPractitionerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("verify practitioner: %w", err)
	}
	return p, nil
}

func (s *Service) loadAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

// Ownership is a foreign-key match, never the role alone.

func (s *Service) loadForPractitioner(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	if actor.Role != RolePractitioner {
		return nil, ErrForbidden
	}
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PractitionerID != actor.ID {
		return nil, ErrForbidden
	}
	return appt, nil
}

func (s *Service) loadForPatient(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	if actor.Role != RolePatient {
		return nil, ErrForbidden
	}
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != actor.ID {
		return nil, ErrForbidden
	}
	return appt, nil
}

func (s *Service) loadForParticipant(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.Role == RoleAdmin:
	case actor.Role == RolePatient && appt.PatientID == actor.ID:
	case actor.Role == RolePractitioner && appt.PractitionerID == actor.ID:
	default:
		return nil, ErrForbidden
	}
	return appt, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	logger := zerolog.Ctx(ctx)

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		logger.Error().Err(err).
			Str("event_type", eventType).
			Stringer("appointment_id", appointmentID).
			Msg("failed to insert event log")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, appt *Appointment) {
	if s.presence == nil {
		return
	}
	ev := PresenceEvent{
		Type:                eventType,
		AppointmentID:       appt.ID,
		Status:              appt.Status,
		PractitionerPresent: appt.PractitionerPresent,
		PatientPresent:      appt.PatientPresent,
		SessionID:           appt.SessionID,
		At:                  s.now(),
	}
	if err := s.presence.Publish(ctx, ev); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("event_type", eventType).
			Stringer("appointment_id", appt.ID).
			Msg("failed to publish presence event")
	}
}
