package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/policy"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/service"
)

const appointmentColumns = `id, status, practitioner_id, organization_id, COALESCE(patient_id, ''),
	start_time, end_time, duration_minutes, created_at, accepted_at`

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

var _ service.Store = (*AppointmentRepository)(nil)

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", id, apperr.ErrNotFound)
	}
	return appt, err
}

func (r *AppointmentRepository) ActiveIntervals(ctx context.Context, practitionerID string, from, to time.Time) ([]availability.Interval, error) {
	return activeIntervals(ctx, r.pool, practitionerID, from, to)
}

// InsertSlot writes a new window after re-checking overlaps under the
// practitioner's advisory lock. The exclusion constraint backs the re-check.
func (r *AppointmentRepository) InsertSlot(ctx context.Context, appt model.Appointment) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := lockPractitioner(ctx, tx, appt.Practitioner); err != nil {
			return err
		}
		if err := recheck(ctx, tx, appt.Practitioner, appt.StartTime, appt.EndTime, ""); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, status, practitioner_id, organization_id, start_time, end_time, duration_minutes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, appt.ID, appt.Status, appt.Practitioner, appt.Organization,
			appt.StartTime, appt.EndTime, appt.DurationMinutes, appt.CreatedAt)
		return mapWriteErr(err)
	})
}

// MoveWindow changes the time window of a row still in status expected.
func (r *AppointmentRepository) MoveWindow(ctx context.Context, id string, expected model.Status, start, end time.Time, durationMinutes int) (model.Appointment, error) {
	var out model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var practitioner string
		err := tx.QueryRow(ctx, `SELECT practitioner_id FROM appointments WHERE id = $1`, id).Scan(&practitioner)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.ErrStale
		}
		if err != nil {
			return err
		}
		if err := lockPractitioner(ctx, tx, practitioner); err != nil {
			return err
		}
		if err := recheck(ctx, tx, practitioner, start, end, id); err != nil {
			return err
		}

		out, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET start_time = $3,
				end_time = $4,
				duration_minutes = $5,
				updated_at = now()
			WHERE id = $1 AND status = $2
			RETURNING `+appointmentColumns,
			id, expected, start, end, durationMinutes))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.ErrStale
		}
		return mapWriteErr(err)
	})
	return out, err
}

func (r *AppointmentRepository) DeleteSlot(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1 AND status = 'available'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrStale
	}
	return nil
}

// Claim assigns patientID to a slot that is still available and unclaimed.
func (r *AppointmentRepository) Claim(ctx context.Context, id, patientID string, at time.Time) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'scheduled',
			patient_id = $2,
			accepted_at = $3,
			updated_at = now()
		WHERE id = $1 AND status = 'available' AND patient_id IS NULL
		RETURNING `+appointmentColumns,
		id, patientID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, apperr.ErrStale
	}
	return appt, err
}

func (r *AppointmentRepository) Transition(ctx context.Context, id string, from, to model.Status) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns,
		id, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, apperr.ErrStale
	}
	return appt, err
}

var listColumns = map[policy.Field]string{
	policy.FieldPractitioner: "practitioner_id",
	policy.FieldPatient:      "patient_id",
	policy.FieldOrganization: "organization_id",
}

func (r *AppointmentRepository) List(ctx context.Context, f service.ListFilter) ([]model.Appointment, error) {
	column, ok := listColumns[f.Field]
	if !ok {
		return nil, fmt.Errorf("unsupported list field %q", f.Field)
	}
	var from *time.Time
	if !f.From.IsZero() {
		from = &f.From
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+column+` = $1
			AND status = $2
			AND ($3::timestamptz IS NULL OR start_time > $3)
		ORDER BY start_time ASC
	`, f.Value, f.Status, from)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.Status,
		&appt.Practitioner,
		&appt.Organization,
		&appt.Patient,
		&appt.StartTime,
		&appt.EndTime,
		&appt.DurationMinutes,
		&appt.CreatedAt,
		&appt.AcceptedAt,
	)
	return appt, err
}
