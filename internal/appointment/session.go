package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type SessionTicket struct {
	SessionID string
	JoinLink  string
}

type JoinResult struct {
	Waiting             bool
	SessionID           string
	PractitionerPresent bool
}

type SessionStatus struct {
	Status              AppointmentStatus
	PractitionerPresent bool
	PatientPresent      bool
	SessionID           *string
}

// Start opens the room. Calling it again while in progress returns the same
// session id.
func (s *Service) Start(ctx context.Context, id uuid.UUID, actor Actor) (*SessionTicket, error) {
	appt, err := s.loadForPractitioner(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusConfirmed && appt.Status != StatusInProgress {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.StartSession(ctx, id, SessionStart{
		SessionID: uuid.NewString(),
		StartedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("start session: %w", err)
	}

	if appt.Status != StatusInProgress {
		s.logEvent(ctx, id, EventSessionStarted, map[string]any{"session_id": *updated.SessionID})
	}
	s.publish(ctx, PresencePractitionerJoined, updated)

	return &SessionTicket{
		SessionID: *updated.SessionID,
		JoinLink:  s.joinLink(*updated.SessionID),
	}, nil
}

// Join lets the patient in once the practitioner is present. Before that it
// reports waiting without touching the appointment, optionally after
// waiting up to the configured JoinWait for the practitioner to arrive.
func (s *Service) Join(ctx context.Context, id uuid.UUID, actor Actor) (*JoinResult, error) {
	appt, err := s.loadForPatient(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, ErrInvalidStatusTransition
	}

	if !appt.PractitionerPresent && s.joinWait > 0 && s.presence != nil {
		appt, err = s.waitForPractitioner(ctx, appt)
		if err != nil {
			return nil, err
		}
		if appt.Status.Terminal() {
			return nil, ErrInvalidStatusTransition
		}
	}
	if !appt.PractitionerPresent {
		return &JoinResult{Waiting: true}, nil
	}

	updated, err := s.repo.MarkPatientPresent(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("mark patient present: %w", err)
		}
		// The room closed in between.
		current, err := s.loadAppointment(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status.Terminal() {
			return nil, ErrInvalidStatusTransition
		}
		return &JoinResult{Waiting: true}, nil
	}

	if !appt.PatientPresent {
		s.logEvent(ctx, id, EventPatientJoined, map[string]any{})
		s.publish(ctx, PresencePatientJoined, updated)
	}

	return &JoinResult{
		SessionID:           *updated.SessionID,
		PractitionerPresent: true,
	}, nil
}

// waitForPractitioner subscribes before re-reading so an arrival between the
// first read and the subscription is not missed.
func (s *Service) waitForPractitioner(ctx context.Context, appt *Appointment) (*Appointment, error) {
	events, cancel, err := s.presence.Subscribe(ctx, appt.ID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Stringer("appointment_id", appt.ID).Msg("presence subscribe failed, not waiting")
		return appt, nil
	}
	defer cancel()

	current, err := s.loadAppointment(ctx, appt.ID)
	if err != nil {
		return nil, err
	}
	if current.PractitionerPresent || current.Status.Terminal() {
		return current, nil
	}

	timer := time.NewTimer(s.joinWait)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return current, nil
			}
			if ev.PractitionerPresent || ev.Status.Terminal() {
				return s.loadAppointment(ctx, appt.ID)
			}
		case <-timer.C:
			return current, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// End closes the session and completes the appointment.
func (s *Service) End(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.loadForPractitioner(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusInProgress {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.EndSession(ctx, id, s.now())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("end session: %w", err)
	}

	payload := map[string]any{}
	if updated.StartedAt != nil && updated.EndedAt != nil {
		payload["duration_seconds"] = int(updated.EndedAt.Sub(*updated.StartedAt).Seconds())
	}
	s.logEvent(ctx, id, EventSessionEnded, payload)
	s.publish(ctx, PresenceSessionEnded, updated)

	return updated, nil
}

func (s *Service) SessionStatus(ctx context.Context, id uuid.UUID, actor Actor) (*SessionStatus, error) {
	appt, err := s.loadForParticipant(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return &SessionStatus{
		Status:              appt.Status,
		PractitionerPresent: appt.PractitionerPresent,
		PatientPresent:      appt.PatientPresent,
		SessionID:           appt.SessionID,
	}, nil
}

// AuthorizeWatch checks that actor may follow the appointment's presence
// stream.
func (s *Service) AuthorizeWatch(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.loadForParticipant(ctx, id, actor)
}

func (s *Service) joinLink(sessionID string) string {
	return s.sessionBaseURL + "/" + sessionID
}
