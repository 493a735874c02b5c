package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/teleconsult-scheduling/internal/appointment"
)

func listRulesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		rules, err := svc.ListAvailabilityRules(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rulesResponse(id, rules))
	}
}

func replaceRulesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req AvailabilityRulesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalidInput(w, "Corpo da requisição não é um JSON válido")
			return
		}

		rules := make([]appointment.AvailabilityRule, 0, len(req.Rules))
		for i, dto := range req.Rules {
			start, err := appointment.ParseClockTime(dto.StartTime)
			if err != nil {
				writeInvalidInput(w, fmt.Sprintf("regra %d: horário deve estar no formato HH:MM", i))
				return
			}
			end, err := appointment.ParseClockTime(dto.EndTime)
			if err != nil {
				writeInvalidInput(w, fmt.Sprintf("regra %d: horário deve estar no formato HH:MM", i))
				return
			}
			active := true
			if dto.Active != nil {
				active = *dto.Active
			}
			rules = append(rules, appointment.AvailabilityRule{
				DayOfWeek: dto.DayOfWeek,
				StartTime: start,
				EndTime:   end,
				Active:    active,
			})
		}

		saved, err := svc.SetAvailabilityRules(r.Context(), id, actor, rules)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rulesResponse(id, saved))
	}
}

func rulesResponse(practitionerID uuid.UUID, rules []appointment.AvailabilityRule) AvailabilityRulesResponse {
	resp := AvailabilityRulesResponse{
		PractitionerID: practitionerID,
		Rules:          make([]AvailabilityRuleDTO, 0, len(rules)),
	}
	for _, rule := range rules {
		resp.Rules = append(resp.Rules, toRuleDTO(rule))
	}
	return resp
}

func verifyPractitionerHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		p, err := svc.VerifyPractitioner(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPractitionerResponse(*p))
	}
}
