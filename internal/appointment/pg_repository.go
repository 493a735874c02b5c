package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation        = "23505"
	occupiedSlotConstraint = "appointments_practitioner_slot_occupied"
)

const appointmentColumns = `id, practitioner_id, patient_id, scheduled_at, duration_minutes, type, reason,
	status, session_id, practitioner_present, patient_present, started_at, ended_at, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Specialty,
		&p.ConsultationMinutes,
		&p.BufferMinutes,
		&p.Verified,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanRule(row pgx.Row) (*AvailabilityRule, error) {
	var r AvailabilityRule
	var start, end pgtype.Time

	err := row.Scan(
		&r.ID,
		&r.PractitionerID,
		&r.DayOfWeek,
		&start,
		&end,
		&r.Active,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.StartTime = clockFromPg(start)
	r.EndTime = clockFromPg(end)
	return &r, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&a.PatientID,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&a.Type,
		&a.Reason,
		&a.Status,
		&a.SessionID,
		&a.PractitionerPresent,
		&a.PatientPresent,
		&a.StartedAt,
		&a.EndedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func collectRules(rows pgx.Rows) ([]AvailabilityRule, error) {
	defer rows.Close()

	var result []AvailabilityRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func clockFromPg(t pgtype.Time) ClockTime {
	if !t.Valid {
		return 0
	}
	return ClockTime(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func clockToPg(c ClockTime) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Minute/time.Microsecond), Valid: true}
}

func statusStrings(statuses []AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func isOccupiedSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == uniqueViolation &&
		pgErr.ConstraintName == occupiedSlotConstraint
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, consultation_minutes, buffer_minutes, verified, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id)
	return scanPractitioner(row)
}

func (r *PgRepository) SetPractitionerVerified(ctx context.Context, id uuid.UUID, verified bool) (*Practitioner, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE practitioners
		SET verified = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, name, specialty, consultation_minutes, buffer_minutes, verified, created_at, updated_at
	`, id, verified)
	return scanPractitioner(row)
}

func (r *PgRepository) ListAvailabilityRules(ctx context.Context, practitionerID uuid.UUID) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, practitioner_id, day_of_week, start_time, end_time, active, created_at
		FROM availability_rules
		WHERE practitioner_id = $1
		ORDER BY created_at, seq
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	return collectRules(rows)
}

func (r *PgRepository) ListActiveRulesForDay(ctx context.Context, practitionerID uuid.UUID, dayOfWeek int) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, practitioner_id, day_of_week, start_time, end_time, active, created_at
		FROM availability_rules
		WHERE practitioner_id = $1
		  AND day_of_week = $2
		  AND active
		ORDER BY created_at, seq
	`, practitionerID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	return collectRules(rows)
}

func (r *PgRepository) ReplaceAvailabilityRules(ctx context.Context, practitionerID uuid.UUID, rules []AvailabilityRule) ([]AvailabilityRule, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM availability_rules WHERE practitioner_id = $1`, practitionerID); err != nil {
		return nil, fmt.Errorf("delete availability rules: %w", err)
	}

	for _, rule := range rules {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_rules (id, practitioner_id, day_of_week, start_time, end_time, active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
		`, rule.ID, practitionerID, rule.DayOfWeek, clockToPg(rule.StartTime), clockToPg(rule.EndTime), rule.Active)
		if err != nil {
			return nil, fmt.Errorf("insert availability rule: %w", err)
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT id, practitioner_id, day_of_week, start_time, end_time, active, created_at
		FROM availability_rules
		WHERE practitioner_id = $1
		ORDER BY created_at, seq
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	saved, err := collectRules(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *PgRepository) ListOccupyingBetween(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		  AND status = ANY($4)
		ORDER BY scheduled_at
	`, practitionerID, from, to, statusStrings(OccupyingStatuses))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindOccupyingAt(ctx context.Context, practitionerID uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND scheduled_at = $2
		  AND status = ANY($3)
		LIMIT 1
	`, practitionerID, at, statusStrings(OccupyingStatuses))
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::uuid IS NULL OR patient_id = $1)
		  AND ($2::uuid IS NULL OR practitioner_id = $2)
		ORDER BY scheduled_at DESC
		LIMIT $3 OFFSET $4
	`, nullableUUID(filter.PatientID), nullableUUID(filter.PractitionerID), filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, practitioner_id, patient_id, scheduled_at, duration_minutes, type, reason,
			status, session_id, practitioner_present, patient_present, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, false, now(), now())
		RETURNING `+appointmentColumns,
		appt.ID, appt.PractitionerID, appt.PatientID, appt.ScheduledAt, appt.DurationMinutes,
		appt.Type, appt.Reason, appt.Status, appt.SessionID)

	created, err := scanAppointment(row)
	if err != nil {
		if isOccupiedSlotViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    practitioner_present = practitioner_present AND NOT $4,
		    patient_present = patient_present AND NOT $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns,
		id, to, statusStrings(from), to.Terminal())

	return scanAppointment(row)
}

func (r *PgRepository) StartSession(ctx context.Context, id uuid.UUID, start SessionStart) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'in_progress',
		    practitioner_present = true,
		    session_id = COALESCE(session_id, $2),
		    started_at = COALESCE(started_at, $3),
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('confirmed', 'in_progress')
		RETURNING `+appointmentColumns,
		id, start.SessionID, start.StartedAt)

	return scanAppointment(row)
}

func (r *PgRepository) MarkPatientPresent(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET patient_present = true,
		    updated_at = now()
		WHERE id = $1
		  AND practitioner_present
		  AND status = 'in_progress'
		RETURNING `+appointmentColumns,
		id)

	return scanAppointment(row)
}

func (r *PgRepository) EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    practitioner_present = false,
		    patient_present = false,
		    ended_at = GREATEST($2::timestamptz, started_at),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'in_progress'
		RETURNING `+appointmentColumns,
		id, endedAt)

	return scanAppointment(row)
}

func (r *PgRepository) FindStaleAwaitingPayment(ctx context.Context, createdBefore time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'awaiting_payment'
		  AND created_at < $1
	`, createdBefore)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
