package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/teleconsult-scheduling/internal/config"
	redisclient "github.com/hackgods/teleconsult-scheduling/internal/redis"
)

// Thursday 2026-10-15 08:30 UTC.
var referenceNow = time.Date(2026, time.October, 15, 8, 30, 0, 0, time.UTC)

const nextTuesday = "2026-10-20"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type passthroughLocker struct{}

func (passthroughLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithSlotLock(context.Context, string, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type fixture struct {
	repo         *MemoryRepository
	svc          *Service
	clock        *testClock
	bus          *LocalBroadcaster
	practitioner Practitioner
	patient      Patient
}

type fixtureOption func(*config.Config, *[]Option)

func withConfig(mut func(*config.Config)) fixtureOption {
	return func(cfg *config.Config, _ *[]Option) { mut(cfg) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	return newFixtureWithLocker(t, passthroughLocker{}, opts...)
}

func newFixtureWithLocker(t *testing.T, locker redisclient.Locker, opts ...fixtureOption) *fixture {
	t.Helper()

	clock := &testClock{t: referenceNow}
	repo := NewMemoryRepository(clock.Now)
	bus := NewLocalBroadcaster()

	cfg := config.Config{
		ClinicTimezone: "UTC",
		SessionBaseURL: "https://meet.test/room",
	}
	svcOpts := []Option{WithClock(clock.Now), WithPresence(NewPresenceNotifier(bus))}
	for _, opt := range opts {
		opt(&cfg, &svcOpts)
	}

	practitioner := Practitioner{
		ID:                  uuid.New(),
		Name:                "Dra. Helena Prado",
		Specialty:           "Cardiologia",
		ConsultationMinutes: 30,
		BufferMinutes:       10,
		Verified:            true,
	}
	patient := Patient{ID: uuid.New(), Name: "João Silva"}

	repo.AddPractitioner(practitioner)
	repo.AddPatient(patient)
	repo.AddRule(AvailabilityRule{
		PractitionerID: practitioner.ID,
		DayOfWeek:      int(time.Tuesday),
		StartTime:      NewClockTime(9, 0),
		EndTime:        NewClockTime(10, 0),
		Active:         true,
	})

	return &fixture{
		repo:         repo,
		svc:          NewService(repo, locker, cfg, svcOpts...),
		clock:        clock,
		bus:          bus,
		practitioner: practitioner,
		patient:      patient,
	}
}

func (f *fixture) patientActor() Actor {
	return Actor{ID: f.patient.ID, Role: RolePatient}
}

func (f *fixture) practitionerActor() Actor {
	return Actor{ID: f.practitioner.ID, Role: RolePractitioner}
}

var adminActor = Actor{ID: uuid.New(), Role: RoleAdmin}

func (f *fixture) book(t *testing.T, date, at string) *Appointment {
	t.Helper()
	res, err := f.svc.Book(context.Background(), BookingRequest{
		PractitionerID: f.practitioner.ID,
		PatientID:      f.patient.ID,
		Date:           date,
		Time:           at,
		Type:           TypeFirstVisit,
	})
	if err != nil {
		t.Fatalf("book %s %s: %v", date, at, err)
	}
	return &res.Appointment
}

// confirmed books and pays an appointment on nextTuesday at 09:00.
func (f *fixture) confirmed(t *testing.T) *Appointment {
	t.Helper()
	appt := f.book(t, nextTuesday, "09:00")
	updated, err := f.svc.ConfirmPayment(context.Background(), appt.ID, adminActor)
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	return updated
}

func eventTypes(events []EventLog) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.EventType
	}
	return out
}
