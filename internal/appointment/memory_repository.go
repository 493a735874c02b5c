package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a Repository held in process memory. It enforces the
// same occupied-slot uniqueness and guarded updates as the Postgres schema.
type MemoryRepository struct {
	mu            sync.RWMutex
	now           func() time.Time
	patients      map[uuid.UUID]Patient
	practitioners map[uuid.UUID]Practitioner
	rules         []AvailabilityRule // insertion order
	appointments  map[uuid.UUID]Appointment
	events        []EventLog
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository uses now for created_at/updated_at stamps; nil means
// time.Now.
func NewMemoryRepository(now func() time.Time) *MemoryRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository{
		now:           now,
		patients:      make(map[uuid.UUID]Patient),
		practitioners: make(map[uuid.UUID]Practitioner),
		appointments:  make(map[uuid.UUID]Appointment),
	}
}

func (m *MemoryRepository) AddPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

func (m *MemoryRepository) AddPractitioner(p Practitioner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.practitioners[p.ID] = p
}

func (m *MemoryRepository) AddRule(r AvailabilityRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.rules = append(m.rules, r)
}

// PutAppointment stores a as-is, bypassing every guard.
func (m *MemoryRepository) PutAppointment(a Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[a.ID] = a
}

func (m *MemoryRepository) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EventLog, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) GetPractitionerByID(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) SetPractitionerVerified(_ context.Context, id uuid.UUID, verified bool) (*Practitioner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	p.Verified = verified
	p.UpdatedAt = m.now()
	m.practitioners[id] = p
	return &p, nil
}

func (m *MemoryRepository) ListAvailabilityRules(_ context.Context, practitionerID uuid.UUID) ([]AvailabilityRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AvailabilityRule
	for _, r := range m.rules {
		if r.PractitionerID == practitionerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListActiveRulesForDay(_ context.Context, practitionerID uuid.UUID, dayOfWeek int) ([]AvailabilityRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AvailabilityRule
	for _, r := range m.rules {
		if r.PractitionerID == practitionerID && r.DayOfWeek == dayOfWeek && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryRepository) ReplaceAvailabilityRules(_ context.Context, practitionerID uuid.UUID, rules []AvailabilityRule) ([]AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.rules[:0:0]
	for _, r := range m.rules {
		if r.PractitionerID != practitionerID {
			kept = append(kept, r)
		}
	}
	saved := make([]AvailabilityRule, 0, len(rules))
	for _, r := range rules {
		r.PractitionerID = practitionerID
		r.CreatedAt = m.now()
		kept = append(kept, r)
		saved = append(saved, r)
	}
	m.rules = kept
	return saved, nil
}

func (m *MemoryRepository) ListOccupyingBetween(_ context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.PractitionerID == practitionerID && a.Status.Occupies() &&
			!a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *MemoryRepository) FindOccupyingAt(_ context.Context, practitionerID uuid.UUID, at time.Time) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.occupyingAt(practitionerID, at); ok {
		return &a, nil
	}
	return nil, ErrAppointmentNotFound
}

func (m *MemoryRepository) occupyingAt(practitionerID uuid.UUID, at time.Time) (Appointment, bool) {
	for _, a := range m.appointments {
		if a.PractitionerID == practitionerID && a.ScheduledAt.Equal(at) && a.Status.Occupies() {
			return a, true
		}
	}
	return Appointment{}, false
}

func (m *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) ListAppointments(_ context.Context, filter ListFilter) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Appointment
	for _, a := range m.appointments {
		if filter.PatientID != uuid.Nil && a.PatientID != filter.PatientID {
			continue
		}
		if filter.PractitionerID != uuid.Nil && a.PractitionerID != filter.PractitionerID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })

	if filter.Offset >= len(out) {
		return []Appointment{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryRepository) CreateAppointment(_ context.Context, appt Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if appt.Status.Occupies() {
		if _, taken := m.occupyingAt(appt.PractitionerID, appt.ScheduledAt); taken {
			return nil, ErrSlotConflict
		}
	}
	now := m.now()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	m.appointments[appt.ID] = appt
	return &appt, nil
}

// update applies fn to the appointment when guard accepts it.
func (m *MemoryRepository) update(id uuid.UUID, guard func(Appointment) bool, fn func(*Appointment)) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || !guard(a) {
		return nil, ErrAppointmentNotFound
	}
	fn(&a)
	a.UpdatedAt = m.now()
	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	return m.update(id, func(a Appointment) bool {
		for _, f := range from {
			if a.Status == f {
				return true
			}
		}
		return false
	}, func(a *Appointment) {
		a.Status = to
		if to.Terminal() {
			a.PractitionerPresent = false
			a.PatientPresent = false
		}
	})
}

func (m *MemoryRepository) StartSession(_ context.Context, id uuid.UUID, start SessionStart) (*Appointment, error) {
	return m.update(id, func(a Appointment) bool {
		return a.Status == StatusConfirmed || a.Status == StatusInProgress
	}, func(a *Appointment) {
		a.Status = StatusInProgress
		a.PractitionerPresent = true
		if a.SessionID == nil {
			sid := start.SessionID
			a.SessionID = &sid
		}
		if a.StartedAt == nil {
			at := start.StartedAt
			a.StartedAt = &at
		}
	})
}

func (m *MemoryRepository) MarkPatientPresent(_ context.Context, id uuid.UUID) (*Appointment, error) {
	return m.update(id, func(a Appointment) bool {
		return a.PractitionerPresent && a.Status == StatusInProgress
	}, func(a *Appointment) {
		a.PatientPresent = true
	})
}

func (m *MemoryRepository) EndSession(_ context.Context, id uuid.UUID, endedAt time.Time) (*Appointment, error) {
	return m.update(id, func(a Appointment) bool {
		return a.Status == StatusInProgress
	}, func(a *Appointment) {
		a.Status = StatusCompleted
		a.PractitionerPresent = false
		a.PatientPresent = false
		if a.StartedAt != nil && endedAt.Before(*a.StartedAt) {
			endedAt = *a.StartedAt
		}
		a.EndedAt = &endedAt
	})
}

func (m *MemoryRepository) FindStaleAwaitingPayment(_ context.Context, createdBefore time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.Status == StatusAwaitingPayment && a.CreatedAt.Before(createdBefore) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = m.now()
	}
	m.events = append(m.events, ev)
	return nil
}
