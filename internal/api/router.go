package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/hackgods/teleconsult-scheduling/internal/appointment"
	"github.com/hackgods/teleconsult-scheduling/internal/auth"
)

type RouterConfig struct {
	Service     *appointment.Service
	Verifier    *auth.Verifier
	Logger      zerolog.Logger
	Checks      []Check
	CORSOrigins []string
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler)
	}

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service

	r.Group(func(r chi.Router) {
		r.Use(cfg.Verifier.Middleware(false))

		r.Get("/availability", availabilityHandler(svc))

		r.Post("/appointments", createAppointmentHandler(svc))
		r.Get("/appointments", listAppointmentsHandler(svc))
		r.Get("/appointments/{id}", getAppointmentHandler(svc))
		r.Post("/appointments/{id}/confirm", transitionHandler(svc, svc.ConfirmPayment))
		r.Post("/appointments/{id}/cancel", transitionHandler(svc, svc.Cancel))
		r.Post("/appointments/{id}/no-show", transitionHandler(svc, svc.MarkNoShow))

		r.Post("/sessions/{id}/start", startSessionHandler(svc))
		r.Post("/sessions/{id}/join", joinSessionHandler(svc))
		r.Post("/sessions/{id}/end", endSessionHandler(svc))
		r.Get("/sessions/{id}/status", sessionStatusHandler(svc))

		r.Get("/practitioners/{id}/availability", listRulesHandler(svc))
		r.Put("/practitioners/{id}/availability", replaceRulesHandler(svc))
		r.Post("/practitioners/{id}/verify", verifyPractitionerHandler(svc))
	})

	// Browsers cannot set headers on a WebSocket handshake.
	r.With(cfg.Verifier.Middleware(true)).
		Get("/sessions/{id}/events", sessionEventsHandler(svc, newUpgrader(cfg.CORSOrigins)))

	return r
}
