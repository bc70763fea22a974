// settings_repository.go implements SettingsRepository for per-tenant settings and
// platform-wide key/value settings.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/community-hub/backend/internal/db/models"
)

// SettingsRepository handles tenant and platform settings
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new SettingsRepository
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetTenantSettings returns the settings row of a tenant, or nil
func (r *SettingsRepository) GetTenantSettings(ctx context.Context, orgID string) (*models.TenantSettings, error) {
	var s models.TenantSettings
	query := `SELECT organization_id, allow_public_applications, require_approval, welcome_message, timezone, updated_at
			  FROM tenant_settings WHERE organization_id = $1`
	err := r.db.GetContext(ctx, &s, query, orgID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant settings: %w", err)
	}
	return &s, nil
}

// UpsertTenantSettings writes the settings row of a tenant
func (r *SettingsRepository) UpsertTenantSettings(ctx context.Context, s *models.TenantSettings) error {
	query := `
		INSERT INTO tenant_settings (organization_id, allow_public_applications, require_approval, welcome_message, timezone, updated_at)
		VALUES (:organization_id, :allow_public_applications, :require_approval, :welcome_message, :timezone, NOW())
		ON CONFLICT (organization_id) DO UPDATE SET
			allow_public_applications = EXCLUDED.allow_public_applications,
			require_approval = EXCLUDED.require_approval,
			welcome_message = EXCLUDED.welcome_message,
			timezone = EXCLUDED.timezone,
			updated_at = NOW()
	`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("failed to save tenant settings: %w", err)
	}
	return nil
}

// ListPlatformSettings returns all platform settings ordered by key
func (r *SettingsRepository) ListPlatformSettings(ctx context.Context) ([]*models.PlatformSetting, error) {
	settings := make([]*models.PlatformSetting, 0)
	if err := r.db.SelectContext(ctx, &settings,
		`SELECT key, value, updated_by, updated_at FROM platform_settings ORDER BY key`); err != nil {
		return nil, fmt.Errorf("failed to list platform settings: %w", err)
	}
	return settings, nil
}

// GetPlatformSetting returns one platform setting, or nil
func (r *SettingsRepository) GetPlatformSetting(ctx context.Context, key string) (*models.PlatformSetting, error) {
	var s models.PlatformSetting
	err := r.db.GetContext(ctx, &s, `SELECT key, value, updated_by, updated_at FROM platform_settings WHERE key = $1`, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get platform setting: %w", err)
	}
	return &s, nil
}

// SetPlatformSetting stores value under key
func (r *SettingsRepository) SetPlatformSetting(ctx context.Context, key string, value json.RawMessage, updatedBy *string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO platform_settings (key, value, updated_by, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = NOW()`,
		key, []byte(value), updatedBy)
	if err != nil {
		return fmt.Errorf("failed to set platform setting: %w", err)
	}
	return nil
}
