package storage

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/availability"
)

// querier is satisfied by both *db.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func activeIntervals(ctx context.Context, q querier, practitionerID string, from, to time.Time) ([]availability.Interval, error) {
	rows, err := q.Query(ctx, `
		SELECT id, start_time, end_time
		FROM appointments
		WHERE practitioner_id = $1
			AND status IN ('available', 'scheduled')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (availability.Interval, error) {
		var iv availability.Interval
		err := row.Scan(&iv.ID, &iv.Start, &iv.End)
		return iv, err
	})
}

// lockPractitioner serializes interval writes of one practitioner until the
// transaction ends.
func lockPractitioner(ctx context.Context, tx pgx.Tx, practitionerID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(practitionerID))
	return err
}

func lockKey(practitionerID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("appointments:" + practitionerID))
	return int64(h.Sum64())
}

func recheck(ctx context.Context, tx pgx.Tx, practitionerID string, start, end time.Time, excludeID string) error {
	busy, err := activeIntervals(ctx, tx, practitionerID, start, end)
	if err != nil {
		return err
	}
	if _, hit := availability.FirstOverlap(start, end, busy, excludeID); hit {
		return apperr.ErrConflict
	}
	return nil
}

const (
	codeExclusionViolation = "23P01"
	codeUniqueViolation    = "23505"
	codeCheckViolation     = "23514"
)

// mapWriteErr turns constraint violations into domain errors.
func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeExclusionViolation:
		return apperr.ErrConflict
	case codeUniqueViolation:
		return apperr.New(apperr.KindConflict, "appointment already exists")
	case codeCheckViolation:
		return apperr.Newf(apperr.KindValidation, "appointment violates %s", pgErr.ConstraintName)
	}
	return err
}
