package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/teleconsult-scheduling/internal/appointment"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

type PractitionerSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
	Duration  int       `json:"duration"`
}

type AvailabilityResponse struct {
	Date         string              `json:"date"`
	Slots        []appointment.Slot  `json:"slots"`
	Practitioner PractitionerSummary `json:"practitioner"`
	Message      string              `json:"message,omitempty"`
}

type CreateAppointmentRequest struct {
	PractitionerID string `json:"practitionerId"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Type           string `json:"type"`
	Reason         string `json:"reason"`
}

type BookedAppointment struct {
	ID               uuid.UUID `json:"id"`
	DateTime         string    `json:"dateTime"`
	PractitionerName string    `json:"practitionerName"`
	Specialty        string    `json:"specialty"`
	Status           string    `json:"status"`
}

type CreateAppointmentResponse struct {
	Appointment BookedAppointment `json:"appointment"`
}

type PersonRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type AppointmentResponse struct {
	ID                  uuid.UUID  `json:"id"`
	PractitionerID      uuid.UUID  `json:"practitionerId"`
	PatientID           uuid.UUID  `json:"patientId"`
	DateTime            string     `json:"dateTime"`
	DurationMinutes     int        `json:"durationMinutes"`
	Type                string     `json:"type"`
	Reason              *string    `json:"reason,omitempty"`
	Status              string     `json:"status"`
	SessionID           *string    `json:"sessionId,omitempty"`
	PractitionerPresent bool       `json:"practitionerPresent"`
	PatientPresent      bool       `json:"patientPresent"`
	StartedAt           *time.Time `json:"startedAt,omitempty"`
	EndedAt             *time.Time `json:"endedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`

	Practitioner *PractitionerSummary `json:"practitioner,omitempty"`
	Patient      *PersonRef           `json:"patient,omitempty"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

type SessionStartResponse struct {
	SessionID string `json:"sessionId"`
	JoinLink  string `json:"joinLink"`
}

type JoinResponse struct {
	Waiting             bool   `json:"waiting,omitempty"`
	SessionID           string `json:"sessionId,omitempty"`
	PractitionerPresent bool   `json:"practitionerPresent,omitempty"`
}

type EndResponse struct {
	Success bool `json:"success"`
}

type SessionStatusResponse struct {
	Status              string  `json:"status"`
	PractitionerPresent bool    `json:"practitionerPresent"`
	PatientPresent      bool    `json:"patientPresent"`
	SessionID           *string `json:"sessionId"`
}

type AvailabilityRuleDTO struct {
	ID        uuid.UUID `json:"id"`
	DayOfWeek int       `json:"dayOfWeek"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
	Active    *bool     `json:"active,omitempty"`
}

type AvailabilityRulesRequest struct {
	Rules []AvailabilityRuleDTO `json:"rules"`
}

type AvailabilityRulesResponse struct {
	PractitionerID uuid.UUID             `json:"practitionerId"`
	Rules          []AvailabilityRuleDTO `json:"rules"`
}

type PractitionerResponse struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	Specialty           string    `json:"specialty"`
	ConsultationMinutes int       `json:"consultationMinutes"`
	BufferMinutes       int       `json:"bufferMinutes"`
	Verified            bool      `json:"verified"`
}

func practitionerSummary(p appointment.Practitioner) PractitionerSummary {
	return PractitionerSummary{
		ID:        p.ID,
		Name:      p.Name,
		Specialty: p.Specialty,
		Duration:  p.ConsultationMinutes,
	}
}

func toAppointmentResponse(a appointment.Appointment, loc *time.Location) AppointmentResponse {
	return AppointmentResponse{
		ID:                  a.ID,
		PractitionerID:      a.PractitionerID,
		PatientID:           a.PatientID,
		DateTime:            a.ScheduledAt.In(loc).Format(time.RFC3339),
		DurationMinutes:     a.DurationMinutes,
		Type:                string(a.Type),
		Reason:              a.Reason,
		Status:              string(a.Status),
		SessionID:           a.SessionID,
		PractitionerPresent: a.PractitionerPresent,
		PatientPresent:      a.PatientPresent,
		StartedAt:           a.StartedAt,
		EndedAt:             a.EndedAt,
		CreatedAt:           a.CreatedAt,
	}
}

func toDetailResponse(d appointment.AppointmentDetail, loc *time.Location) AppointmentResponse {
	resp := toAppointmentResponse(d.Appointment, loc)
	if d.Practitioner != nil {
		s := practitionerSummary(*d.Practitioner)
		resp.Practitioner = &s
	}
	if d.Patient != nil {
		resp.Patient = &PersonRef{ID: d.Patient.ID, Name: d.Patient.Name}
	}
	return resp
}

func toRuleDTO(r appointment.AvailabilityRule) AvailabilityRuleDTO {
	active := r.Active
	return AvailabilityRuleDTO{
		ID:        r.ID,
		DayOfWeek: r.DayOfWeek,
		StartTime: r.StartTime.String(),
		EndTime:   r.EndTime.String(),
		Active:    &active,
	}
}

func toPractitionerResponse(p appointment.Practitioner) PractitionerResponse {
	return PractitionerResponse{
		ID:                  p.ID,
		Name:                p.Name,
		Specialty:           p.Specialty,
		ConsultationMinutes: p.ConsultationMinutes,
		BufferMinutes:       p.BufferMinutes,
		Verified:            p.Verified,
	}
}
