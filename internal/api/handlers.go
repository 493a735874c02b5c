package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/teleconsult-scheduling/internal/appointment"
	"github.com/hackgods/teleconsult-scheduling/internal/auth"
)

// actorFrom reads the caller installed by the auth middleware.
func actorFrom(r *http.Request) (appointment.Actor, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return appointment.Actor{}, false
	}
	return appointment.Actor{ID: p.Subject, Role: appointment.Role(p.Role)}, true
}

func requireActor(w http.ResponseWriter, r *http.Request) (appointment.Actor, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Token de acesso ausente")
	}
	return actor, ok
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeInvalidInput(w, name+" deve ser um UUID válido")
		return uuid.Nil, false
	}
	return id, true
}

func availabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		practitionerID, err := uuid.Parse(q.Get("practitionerId"))
		if err != nil {
			writeInvalidInput(w, "practitionerId deve ser um UUID válido")
			return
		}

		result, err := svc.Availability(r.Context(), practitionerID, q.Get("date"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			Date:         result.Date.Format("2006-01-02"),
			Slots:        result.Slots,
			Practitioner: practitionerSummary(result.Practitioner),
			Message:      result.Message,
		})
	}
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		if actor.Role != appointment.RolePatient {
			writeError(w, http.StatusForbidden, codeForbidden, "Apenas pacientes podem agendar consultas")
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalidInput(w, "Corpo da requisição não é um JSON válido")
			return
		}

		var practitionerID uuid.UUID
		if req.PractitionerID != "" {
			id, err := uuid.Parse(req.PractitionerID)
			if err != nil {
				writeInvalidInput(w, "practitionerId deve ser um UUID válido")
				return
			}
			practitionerID = id
		}

		res, err := svc.Book(r.Context(), appointment.BookingRequest{
			PractitionerID: practitionerID,
			PatientID:      actor.ID,
			Date:           req.Date,
			Time:           req.Time,
			Type:           appointment.AppointmentType(req.Type),
			Reason:         req.Reason,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreateAppointmentResponse{
			Appointment: BookedAppointment{
				ID:               res.Appointment.ID,
				DateTime:         res.Appointment.ScheduledAt.In(svc.Location()).Format(time.RFC3339),
				PractitionerName: res.PractitionerName,
				Specialty:        res.Specialty,
				Status:           string(res.Appointment.Status),
			},
		})
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		var filter appointment.ListFilter

		for _, p := range []struct {
			name string
			dst  *int
		}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
			if raw := q.Get(p.name); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n < 0 {
					writeInvalidInput(w, p.name+" deve ser um inteiro não negativo")
					return
				}
				*p.dst = n
			}
		}
		for _, p := range []struct {
			name string
			dst  *uuid.UUID
		}{{"patientId", &filter.PatientID}, {"practitionerId", &filter.PractitionerID}} {
			if raw := q.Get(p.name); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					writeInvalidInput(w, p.name+" deve ser um UUID válido")
					return
				}
				*p.dst = id
			}
		}

		appts, err := svc.ListAppointments(r.Context(), actor, filter)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := AppointmentListResponse{
			Appointments: make([]AppointmentResponse, 0, len(appts)),
		}
		for _, a := range appts {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(a, svc.Location()))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDetailResponse(*detail, svc.Location()))
	}
}

// transitionHandler serves the status-change endpoints that take no body.
func transitionHandler(svc *appointment.Service, apply func(context.Context, uuid.UUID, appointment.Actor) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := apply(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt, svc.Location()))
	}
}
