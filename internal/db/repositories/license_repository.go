// license_repository.go implements LicenseRepository, providing database queries for license
// plans and per-tenant license state, including the sweeps used by the expiry job.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/community-hub/backend/internal/db/models"
)

// LicenseRepository handles database operations for licenses
type LicenseRepository struct {
	db *sqlx.DB
}

// NewLicenseRepository creates a new LicenseRepository
func NewLicenseRepository(db *sqlx.DB) *LicenseRepository {
	return &LicenseRepository{db: db}
}

// ============================================================================
// Plans
// ============================================================================

// ListPlans returns every license plan ordered by price
func (r *LicenseRepository) ListPlans(ctx context.Context) ([]*models.License, error) {
	plans := make([]*models.License, 0)
	query := `SELECT id, name, description, max_members, price_cents, features, created_at FROM licenses ORDER BY price_cents, name`
	if err := r.db.SelectContext(ctx, &plans, query); err != nil {
		return nil, fmt.Errorf("failed to list license plans: %w", err)
	}
	return plans, nil
}

// GetPlan retrieves a plan by ID
func (r *LicenseRepository) GetPlan(ctx context.Context, id string) (*models.License, error) {
	return r.getPlan(ctx, `id = $1`, id)
}

// GetPlanByName retrieves a plan by its unique name
func (r *LicenseRepository) GetPlanByName(ctx context.Context, name string) (*models.License, error) {
	return r.getPlan(ctx, `name = $1`, name)
}

func (r *LicenseRepository) getPlan(ctx context.Context, where string, arg any) (*models.License, error) {
	var l models.License
	query := `SELECT id, name, description, max_members, price_cents, features, created_at FROM licenses WHERE ` + where
	err := r.db.GetContext(ctx, &l, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license plan: %w", err)
	}
	return &l, nil
}

// CreatePlan inserts a new plan
func (r *LicenseRepository) CreatePlan(ctx context.Context, l *models.License) error {
	l.ID = uuid.New().String()
	l.CreatedAt = time.Now()
	query := `INSERT INTO licenses (id, name, description, max_members, price_cents, features, created_at)
			  VALUES (:id, :name, :description, :max_members, :price_cents, :features, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, l); err != nil {
		return fmt.Errorf("failed to create license plan: %w", err)
	}
	return nil
}

// ============================================================================
// Tenant licenses
// ============================================================================

const orgLicenseSelect = `
	SELECT ol.id, ol.organization_id, ol.license_id, ol.status, ol.starts_at, ol.ends_at,
	       ol.expiry_warned_at, ol.created_at, ol.updated_at, l.name AS license_name, l.features
	FROM organization_licenses ol
	JOIN licenses l ON l.id = ol.license_id
`

// GetCurrentForOrganization returns the most recent license record of a tenant, or nil
func (r *LicenseRepository) GetCurrentForOrganization(ctx context.Context, orgID string) (*models.OrganizationLicense, error) {
	var ol models.OrganizationLicense
	query := orgLicenseSelect + ` WHERE ol.organization_id = $1 ORDER BY ol.created_at DESC LIMIT 1`
	err := r.db.GetContext(ctx, &ol, query, orgID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization license: %w", err)
	}
	return &ol, nil
}

// Assign gives a tenant a new license record. Previous trial/active records are cancelled.
func (r *LicenseRepository) Assign(ctx context.Context, ol *models.OrganizationLicense) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		UPDATE organization_licenses SET status = 'cancelled', updated_at = NOW()
		WHERE organization_id = $1 AND status IN ('trial', 'active')`, ol.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to cancel previous license: %w", err)
	}

	ol.ID = uuid.New().String()
	ol.CreatedAt = time.Now()
	ol.UpdatedAt = ol.CreatedAt
	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_licenses (id, organization_id, license_id, status, starts_at, ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ol.ID, ol.OrganizationID, ol.LicenseID, ol.Status, ol.StartsAt, ol.EndsAt, ol.CreatedAt, ol.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to assign license: %w", err)
	}

	return tx.Commit()
}

// ExpireLapsed marks every trial/active license whose ends_at is before now as expired
// and returns the affected records.
func (r *LicenseRepository) ExpireLapsed(ctx context.Context, now time.Time) ([]*models.OrganizationLicense, error) {
	expired := make([]*models.OrganizationLicense, 0)
	query := `
		WITH lapsed AS (
			UPDATE organization_licenses SET status = 'expired', updated_at = NOW()
			WHERE status IN ('trial', 'active') AND ends_at IS NOT NULL AND ends_at < $1
			RETURNING *
		)
		SELECT ol.id, ol.organization_id, ol.license_id, ol.status, ol.starts_at, ol.ends_at,
		       ol.expiry_warned_at, ol.created_at, ol.updated_at, l.name AS license_name, l.features
		FROM lapsed ol JOIN licenses l ON l.id = ol.license_id
	`
	if err := r.db.SelectContext(ctx, &expired, query, now); err != nil {
		return nil, fmt.Errorf("failed to expire licenses: %w", err)
	}
	return expired, nil
}

// ListExpiringUnwarned returns trial/active licenses ending before cutoff for which no
// expiry warning has been sent yet.
func (r *LicenseRepository) ListExpiringUnwarned(ctx context.Context, cutoff time.Time) ([]*models.OrganizationLicense, error) {
	list := make([]*models.OrganizationLicense, 0)
	query := orgLicenseSelect + `
		WHERE ol.status IN ('trial', 'active') AND ol.ends_at IS NOT NULL
		  AND ol.ends_at < $1 AND ol.expiry_warned_at IS NULL
		ORDER BY ol.ends_at`
	if err := r.db.SelectContext(ctx, &list, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list expiring licenses: %w", err)
	}
	return list, nil
}

// MarkWarned records that the expiry warning for a license has been sent
func (r *LicenseRepository) MarkWarned(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE organization_licenses SET expiry_warned_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark license warned: %w", err)
	}
	return nil
}
