package appointment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/teleconsult-scheduling/internal/redis"
)

const (
	PresencePractitionerJoined = "practitioner_joined"
	PresencePatientJoined      = "patient_joined"
	PresenceSessionEnded       = "session_ended"
	PresenceStatusChanged      = "status_changed"
)

// PresenceEvent is published on the appointment's channel whenever presence
// flags or status change. Waiting patients use it to stop polling early.
type PresenceEvent struct {
	Type                string            `json:"type"`
	AppointmentID       uuid.UUID         `json:"appointmentId"`
	Status              AppointmentStatus `json:"status"`
	PractitionerPresent bool              `json:"practitionerPresent"`
	PatientPresent      bool              `json:"patientPresent"`
	SessionID           *string           `json:"sessionId,omitempty"`
	At                  time.Time         `json:"at"`
}

func presenceChannel(appointmentID uuid.UUID) string {
	return "appointment:" + appointmentID.String()
}

// PresenceNotifier encodes presence events onto a Broadcaster.
type PresenceNotifier struct {
	bus redisclient.Broadcaster
}

func NewPresenceNotifier(bus redisclient.Broadcaster) *PresenceNotifier {
	return &PresenceNotifier{bus: bus}
}

func (n *PresenceNotifier) Publish(ctx context.Context, ev PresenceEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal presence event: %w", err)
	}
	return n.bus.Publish(ctx, presenceChannel(ev.AppointmentID), data)
}

// Subscribe streams decoded events for one appointment. Undecodable payloads
// are skipped.
func (n *PresenceNotifier) Subscribe(ctx context.Context, appointmentID uuid.UUID) (<-chan PresenceEvent, func(), error) {
	raw, cancel, err := n.bus.Subscribe(ctx, presenceChannel(appointmentID))
	if err != nil {
		return nil, nil, err
	}

	out := make(chan PresenceEvent, 8)
	go func() {
		defer close(out)
		for payload := range raw {
			var ev PresenceEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}

// LocalBroadcaster is an in-process Broadcaster for single-replica deployments
// and tests.
type LocalBroadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewLocalBroadcaster() *LocalBroadcaster {
	return &LocalBroadcaster{subs: make(map[string]map[chan []byte]struct{})}
}

func (b *LocalBroadcaster) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (b *LocalBroadcaster) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 8)

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[channel], ch)
			if len(b.subs[channel]) == 0 {
				delete(b.subs, channel)
			}
			b.mu.Unlock()
			close(ch)
			close(done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return ch, cancel, nil
}

// Subscribers reports how many subscriptions a channel has.
func (b *LocalBroadcaster) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}
