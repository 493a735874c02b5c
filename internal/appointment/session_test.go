package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/teleconsult-scheduling/internal/config"
)

func TestJoin_BeforeStartWaitsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	appt := f.confirmed(t)
	before, err := f.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)

	res, err := f.svc.Join(context.Background(), appt.ID, f.patientActor())
	require.NoError(t, err)
	assert.True(t, res.Waiting)
	assert.Empty(t, res.SessionID)

	after, err := f.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NotContains(t, eventTypes(f.repo.Events()), EventPatientJoined)
}

func TestStart_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	appt := f.confirmed(t)

	first, err := f.svc.Start(context.Background(), appt.ID, f.practitionerActor())
	require.NoError(t, err)
	assert.Equal(t, "https://meet.test/room/"+first.SessionID, first.JoinLink)

	f.clock.Advance(5 * time.Minute)
	second, err := f.svc.Start(context.Background(), appt.ID, f.practitionerActor())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stored, err := f.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, stored.Status)
	assert.True(t, stored.PractitionerPresent)
	require.NotNil(t, stored.StartedAt)
	assert.Equal(t, referenceNow, *stored.StartedAt)

	started := 0
	for _, ev := range f.repo.Events() {
		if ev.EventType == EventSessionStarted {
			started++
		}
	}
	assert.Equal(t, 1, started)
}

func TestStart_Rejections(t *testing.T) {
	f := newFixture(t)
	awaiting := f.book(t, nextTuesday, "09:40")
	appt := f.confirmed(t)

	_, err := f.svc.Start(context.Background(), awaiting.ID, f.practitionerActor())
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = f.svc.Start(context.Background(), appt.ID, Actor{ID: uuid.New(), Role: RolePractitioner})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Start(context.Background(), appt.ID, f.patientActor())
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Start(context.Background(), uuid.New(), f.practitionerActor())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestJoin_AfterStart(t *testing.T) {
	f := newFixture(t)
	appt := f.confirmed(t)

	ticket, err := f.svc.Start(context.Background(), appt.ID, f.practitionerActor())
	require.NoError(t, err)

	res, err := f.svc.Join(context.Background(), appt.ID, f.patientActor())
	require.NoError(t, err)
	assert.False(t, res.Waiting)
	assert.True(t, res.PractitionerPresent)
	assert.Equal(t, ticket.SessionID, res.SessionID)

	status, err := f.svc.SessionStatus(context.Background(), appt.ID, f.practitionerActor())
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, status.Status)
	assert.True(t, status.PatientPresent)

	// Joining again does not log twice.
	_, err = f.svc.Join(context.Background(), appt.ID, f.patientActor())
	require.NoError(t, err)
	joined := 0
	for _, ev := range f.repo.Events() {
		if ev.EventType == EventPatientJoined {
			joined++
		}
	}
	assert.Equal(t, 1, joined)
}

func TestJoin_Rejections(t *testing.T) {
	f := newFixture(t)
	appt := f.confirmed(t)

	_, err := f.svc.Join(context.Background(), appt.ID, f.practitionerActor())
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Join(context.Background(), appt.ID, Actor{ID: uuid.New(), Role: RolePatient})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Cancel(context.Background(), appt.ID, adminActor)
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), appt.ID, f.patientActor())
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestEnd_CompletesSession(t *testing.T) {
	f := newFixture(t)
	appt := f.confirmed(t)

	_, err := f.svc.Start(context.Background(), appt.ID, f.practitionerActor())
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), appt.ID, f.patientActor())
	require.NoError(t, err)

	f.clock.Advance(27 * time.Minute)
	ended, err := f.svc.End(context.Background(), appt.ID, f.practitionerActor())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, ended.Status)
	assert.False(t, ended.PractitionerPresent)
	assert.False(t, ended.PatientPresent)
	require.NotNil(t, ended.StartedAt)
	require.NotNil(t, ended.EndedAt)
	assert.False(t, ended.EndedAt.Before(*ended.StartedAt))
	assert.Equal(t, 27*time.Minute, ended.EndedAt.Sub(*ended.StartedAt))

	assert.Equal(t, []string{
		EventAppointmentCreated,
		EventAppointmentConfirmed,
		EventSessionStarted,
		EventPatientJoined,
		EventSessionEnded,
	}, eventTypes(f.repo.Events()))

	_, err = f.svc.End(context.Background(), appt.ID, f.practitionerActor())
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	_, err = f.svc.Start(context.Background(), appt.ID, f.practitionerActor())
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestEnd_ClampsToStart(t *testing.T) {
	f := newFixture(t)
	appt := f.confirmed(t)

	_, err := f.svc.Start(context.Background(), appt.ID, f.practitionerActor())
	require.NoError(t, err)

	// Clock skew between replicas.
	f.clock.Advance(-time.Minute)
	ended, err := f.svc.End(context.Background(), appt.ID, f.practitionerActor())
	require.NoError(t, err)
	assert.Equal(t, *ended.StartedAt, *ended.EndedAt)
}

func TestEnd_RequiresInProgress(t *testing.T) {
	f := newFixture(t)
	appt := f.confirmed(t)

	_, err := f.svc.End(context.Background(), appt.ID, f.practitionerActor())
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestSessionStatus_Access(t *testing.T) {
	f := newFixture(t)
	appt := f.confirmed(t)

	for _, actor := range []Actor{f.patientActor(), f.practitionerActor(), adminActor} {
		status, err := f.svc.SessionStatus(context.Background(), appt.ID, actor)
		require.NoError(t, err, actor.Role)
		assert.Equal(t, StatusConfirmed, status.Status)
	}

	_, err := f.svc.SessionStatus(context.Background(), appt.ID, Actor{ID: uuid.New(), Role: RolePatient})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.SessionStatus(context.Background(), uuid.New(), adminActor)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestJoin_LongPollReturnsWhenPractitionerArrives(t *testing.T) {
	f := newFixture(t, withConfig(func(c *config.Config) { c.JoinWait = 5 * time.Second }))
	appt := f.confirmed(t)

	type outcome struct {
		res *JoinResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.svc.Join(context.Background(), appt.ID, f.patientActor())
		done <- outcome{res, err}
	}()

	channel := presenceChannel(appt.ID)
	require.Eventually(t, func() bool { return f.bus.Subscribers(channel) > 0 }, 2*time.Second, 5*time.Millisecond)

	ticket, err := f.svc.Start(context.Background(), appt.ID, f.practitionerActor())
	require.NoError(t, err)

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.False(t, out.res.Waiting)
		assert.Equal(t, ticket.SessionID, out.res.SessionID)
	case <-time.After(3 * time.Second):
		t.Fatal("join did not return after the practitioner started the session")
	}

	assert.Eventually(t, func() bool { return f.bus.Subscribers(channel) == 0 }, time.Second, 5*time.Millisecond)
}

func TestJoin_LongPollTimesOut(t *testing.T) {
	f := newFixture(t, withConfig(func(c *config.Config) { c.JoinWait = 30 * time.Millisecond }))
	appt := f.confirmed(t)

	start := time.Now()
	res, err := f.svc.Join(context.Background(), appt.ID, f.patientActor())
	require.NoError(t, err)
	assert.True(t, res.Waiting)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestJoin_LongPollHonoursContext(t *testing.T) {
	f := newFixture(t, withConfig(func(c *config.Config) { c.JoinWait = time.Minute }))
	appt := f.confirmed(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.svc.Join(ctx, appt.ID, f.patientActor())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTerminalTransition_ClearsPresence(t *testing.T) {
	for _, tc := range []struct {
		name  string
		apply func(f *fixture, id uuid.UUID) (*Appointment, error)
		want  AppointmentStatus
	}{
		{"cancel", func(f *fixture, id uuid.UUID) (*Appointment, error) {
			return f.svc.Cancel(context.Background(), id, f.practitionerActor())
		}, StatusCancelled},
		{"no-show", func(f *fixture, id uuid.UUID) (*Appointment, error) {
			return f.svc.MarkNoShow(context.Background(), id, adminActor)
		}, StatusNoShow},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			appt := f.confirmed(t)

			_, err := f.svc.Start(context.Background(), appt.ID, f.practitionerActor())
			require.NoError(t, err)
			joined, err := f.svc.Join(context.Background(), appt.ID, f.patientActor())
			require.NoError(t, err)
			require.False(t, joined.Waiting)

			updated, err := tc.apply(f, appt.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, updated.Status)

			status, err := f.svc.SessionStatus(context.Background(), appt.ID, f.patientActor())
			require.NoError(t, err)
			assert.Equal(t, tc.want, status.Status)
			assert.False(t, status.PractitionerPresent)
			assert.False(t, status.PatientPresent)
		})
	}
}
