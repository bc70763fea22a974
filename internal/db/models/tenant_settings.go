package models

import (
	"encoding/json"
	"time"
)

// TenantSettings holds per-tenant onboarding settings
type TenantSettings struct {
	OrganizationID          string    `db:"organization_id" json:"organization_id"`
	AllowPublicApplications bool      `db:"allow_public_applications" json:"allow_public_applications"`
	RequireApproval         bool      `db:"require_approval" json:"require_approval"`
	WelcomeMessage          *string   `db:"welcome_message" json:"welcome_message,omitempty"`
	Timezone                string    `db:"timezone" json:"timezone"`
	UpdatedAt               time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultTenantSettings returns the settings a newly registered tenant starts with.
func DefaultTenantSettings(orgID string) *TenantSettings {
	return &TenantSettings{
		OrganizationID:  orgID,
		RequireApproval: true,
		Timezone:        "UTC",
	}
}

// PlatformSetting is a platform-wide key/value setting managed by super admins
type PlatformSetting struct {
	Key       string          `db:"key" json:"key"`
	Value     json.RawMessage `db:"value" json:"value"`
	UpdatedBy *string         `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
