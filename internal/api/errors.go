package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/teleconsult-scheduling/internal/appointment"
)

const (
	codeInvalidInput    = "invalid_input"
	codeForbidden       = "forbidden"
	codeInternal        = "internal_error"
	codeUnavailable     = "unavailable"
	msgInternal         = "Erro interno. Tente novamente mais tarde."
	msgInvalidInput     = "Dados inválidos"
	msgForbidden        = "Você não tem permissão para esta operação"
	msgPresenceDisabled = "Eventos em tempo real indisponíveis"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{appointment.ErrInvalidInput, http.StatusBadRequest, codeInvalidInput, msgInvalidInput},
	{appointment.ErrForbidden, http.StatusForbidden, codeForbidden, msgForbidden},
	{appointment.ErrPractitionerNotFound, http.StatusNotFound, "practitioner_not_found", "Profissional não encontrado"},
	{appointment.ErrPatientNotFound, http.StatusNotFound, "patient_not_found", "Paciente não encontrado"},
	{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found", "Consulta não encontrada"},
	{appointment.ErrSlotConflict, http.StatusConflict, "slot_unavailable", "Horário não está mais disponível"},
	{appointment.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked", "Horário sendo reservado por outra pessoa. Tente novamente em instantes."},
	{appointment.ErrPractitionerNotVerified, http.StatusConflict, "practitioner_not_verified", "Profissional ainda não verificado para novos agendamentos"},
	{appointment.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition", "Operação não permitida no status atual da consulta"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeInvalidInput(w http.ResponseWriter, details string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   msgInvalidInput,
		Code:    codeInvalidInput,
		Details: details,
	})
}

// writeServiceError maps a service error onto the HTTP taxonomy. Error text
// from the domain stays in the logs; clients only see the mapped message.
// Anything unrecognised is logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		zerolog.Ctx(r.Context()).Debug().Err(err).Str("code", m.code).Msg("request rejected")
		writeError(w, m.status, m.code, m.message)
		return
	}

	zerolog.Ctx(r.Context()).Error().Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request failed")
	writeError(w, http.StatusInternalServerError, codeInternal, msgInternal)
}
