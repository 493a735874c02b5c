package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hackgods/teleconsult-scheduling/internal/appointment"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10

	// eventSnapshot is the first frame on every stream.
	eventSnapshot = "snapshot"
)

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
}

// originChecker allows any origin when none are configured.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// sessionEventsHandler streams presence events for one appointment until the
// session ends or the client goes away.
func sessionEventsHandler(svc *appointment.Service, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		presence := svc.Presence()
		if presence == nil {
			writeError(w, http.StatusServiceUnavailable, codeUnavailable, msgPresenceDisabled)
			return
		}
		if _, err := svc.AuthorizeWatch(r.Context(), id, actor); err != nil {
			writeServiceError(w, r, err)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		events, unsubscribe, err := presence.Subscribe(ctx, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		defer unsubscribe()

		// Read state after subscribing so no change falls between the two.
		status, err := svc.SessionStatus(ctx, id, actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		logger := zerolog.Ctx(r.Context())

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		snapshot := appointment.PresenceEvent{
			Type:                eventSnapshot,
			AppointmentID:       id,
			Status:              status.Status,
			PractitionerPresent: status.PractitionerPresent,
			PatientPresent:      status.PatientPresent,
			SessionID:           status.SessionID,
			At:                  time.Now(),
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(snapshot); err != nil {
			return
		}

		go func() {
			defer cancel()
			conn.SetReadLimit(512)
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(wsPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
				if ev.Status.Terminal() {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Status)),
						time.Now().Add(wsWriteWait))
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}
