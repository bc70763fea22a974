// organization_repository.go implements OrganizationRepository, providing database queries
// for tenant lookup, registration, branding and status changes.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/community-hub/backend/internal/db/models"
)

const organizationColumns = `id, slug, name, description, logo_url, primary_color, secondary_color, status, is_public, created_at, updated_at`

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func scanOrganization(row rowScanner) (*models.Organization, error) {
	org := &models.Organization{}
	err := row.Scan(
		&org.ID,
		&org.Slug,
		&org.Name,
		&org.Description,
		&org.LogoURL,
		&org.PrimaryColor,
		&org.SecondaryColor,
		&org.Status,
		&org.IsPublic,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return org, nil
}

// GetBySlug retrieves an organization by its slug
func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE slug = $1`
	org, err := scanOrganization(r.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	org, err := scanOrganization(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// Registration carries everything created when a tenant registers
type Registration struct {
	Organization *models.Organization
	OwnerID      string
	LicenseID    string
	TrialEndsAt  *time.Time
}

// Register creates the organization, its owner membership, a trial license and default
// settings in a single transaction.
func (r *OrganizationRepository) Register(ctx context.Context, reg *Registration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	org := reg.Organization
	org.ID = uuid.New().String()
	org.CreatedAt = time.Now()
	org.UpdatedAt = org.CreatedAt
	if org.Status == "" {
		org.Status = models.OrganizationStatusActive
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organizations (id, slug, name, description, logo_url, primary_color, secondary_color, status, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		org.ID, org.Slug, org.Name, org.Description, org.LogoURL, org.PrimaryColor, org.SecondaryColor,
		org.Status, org.IsPublic, org.CreatedAt, org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_memberships (organization_id, user_id, role, status, created_at, updated_at)
		VALUES ($1, $2, 'owner', 'active', NOW(), NOW())`,
		org.ID, reg.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to create owner membership: %w", err)
	}

	if reg.LicenseID != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO organization_licenses (organization_id, license_id, status, starts_at, ends_at)
			VALUES ($1, $2, 'trial', NOW(), $3)`,
			org.ID, reg.LicenseID, reg.TrialEndsAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create trial license: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO tenant_settings (organization_id) VALUES ($1)`, org.ID)
	if err != nil {
		return fmt.Errorf("failed to create tenant settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registration: %w", err)
	}
	return nil
}

// UpdateBranding updates the tenant's display and branding fields
func (r *OrganizationRepository) UpdateBranding(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = time.Now()
	query := `
		UPDATE organizations
		SET name = $2, description = $3, logo_url = $4, primary_color = $5, secondary_color = $6, is_public = $7, updated_at = $8
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		org.ID, org.Name, org.Description, org.LogoURL, org.PrimaryColor, org.SecondaryColor, org.IsPublic, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return requireAffected(res)
}

// UpdateStatus transitions the tenant status (e.g. active <-> suspended)
func (r *OrganizationRepository) UpdateStatus(ctx context.Context, id string, status models.OrganizationStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update organization status: %w", err)
	}
	return requireAffected(res)
}

// List returns organizations with pagination, optionally filtered by status
func (r *OrganizationRepository) List(ctx context.Context, status string, limit, offset int) ([]*models.Organization, int, error) {
	where := ""
	args := []any{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count organizations: %w", err)
	}

	query := `SELECT ` + organizationColumns + ` FROM organizations` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]*models.Organization, 0)
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, total, rows.Err()
}
