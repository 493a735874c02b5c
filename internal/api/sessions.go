package api

import (
	"net/http"

	"github.com/hackgods/teleconsult-scheduling/internal/appointment"
)

func startSessionHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		ticket, err := svc.Start(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SessionStartResponse{
			SessionID: ticket.SessionID,
			JoinLink:  ticket.JoinLink,
		})
	}
}

func joinSessionHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		res, err := svc.Join(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if res.Waiting {
			writeJSON(w, http.StatusOK, JoinResponse{Waiting: true})
			return
		}
		writeJSON(w, http.StatusOK, JoinResponse{
			SessionID:           res.SessionID,
			PractitionerPresent: res.PractitionerPresent,
		})
	}
}

func endSessionHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		if _, err := svc.End(r.Context(), id, actor); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, EndResponse{Success: true})
	}
}

func sessionStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		status, err := svc.SessionStatus(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SessionStatusResponse{
			Status:              string(status.Status),
			PractitionerPresent: status.PractitionerPresent,
			PatientPresent:      status.PatientPresent,
			SessionID:           status.SessionID,
		})
	}
}
