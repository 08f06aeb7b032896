package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
)

// DirectoryRepository reads practitioner and patient profiles.
type DirectoryRepository struct {
	pool *db.Pool
}

func NewDirectoryRepository(pool *db.Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

func (r *DirectoryRepository) PractitionerOrganization(ctx context.Context, practitionerID string) (string, error) {
	var org string
	err := r.pool.QueryRow(ctx, `
		SELECT organization_id
		FROM practitioners
		WHERE id = $1
	`, practitionerID).Scan(&org)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("practitioner %s: %w", practitionerID, apperr.ErrNotFound)
	}
	return org, err
}

func (r *DirectoryRepository) Patient(ctx context.Context, patientID string) (model.Patient, error) {
	p := model.Patient{ID: patientID}
	err := r.pool.QueryRow(ctx, `
		SELECT organization_id, COALESCE(practitioner_id, '')
		FROM patients
		WHERE id = $1
	`, patientID).Scan(&p.Organization, &p.Practitioner)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Patient{}, fmt.Errorf("patient %s: %w", patientID, apperr.ErrNotFound)
	}
	if err != nil {
		return model.Patient{}, err
	}
	return p, nil
}

// UpsertPractitioner and UpsertPatient are used by seeding and tests; the
// profile CRUD owns these rows in production.
func (r *DirectoryRepository) UpsertPractitioner(ctx context.Context, id, organizationID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO practitioners (id, organization_id)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET organization_id = EXCLUDED.organization_id
	`, id, organizationID)
	return err
}

func (r *DirectoryRepository) UpsertPatient(ctx context.Context, p model.Patient) error {
	var practitioner *string
	if p.Practitioner != "" {
		practitioner = &p.Practitioner
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, organization_id, practitioner_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET organization_id = EXCLUDED.organization_id,
			practitioner_id = EXCLUDED.practitioner_id
	`, p.ID, p.Organization, practitioner)
	return err
}
