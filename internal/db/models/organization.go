// Package models - organization.go defines the Organization model representing a tenant
// with a unique URL slug, branding fields and a lifecycle status.
package models

import "time"

// OrganizationStatus is the lifecycle status of a tenant.
type OrganizationStatus string

const (
	OrganizationStatusActive    OrganizationStatus = "active"
	OrganizationStatusSuspended OrganizationStatus = "suspended"
	OrganizationStatusPending   OrganizationStatus = "pending"
)

// Organization represents a tenant on the hub
type Organization struct {
	ID             string             `json:"id"`
	Slug           string             `json:"slug"` // URL-safe, unique
	Name           string             `json:"name"`
	Description    *string            `json:"description,omitempty"`
	LogoURL        *string            `json:"logo_url,omitempty"`
	PrimaryColor   *string            `json:"primary_color,omitempty"`
	SecondaryColor *string            `json:"secondary_color,omitempty"`
	Status         OrganizationStatus `json:"status"`
	IsPublic       bool               `json:"is_public"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// PubliclyVisible reports whether the tenant may be resolved on public routes.
func (o *Organization) PubliclyVisible() bool {
	return o != nil && o.Status == OrganizationStatusActive && o.IsPublic
}
