// Package models - license.go defines license plans and per-tenant license state.
package models

import (
	"time"

	"github.com/lib/pq"
)

// LicenseStatus is the state of a tenant's subscription.
type LicenseStatus string

const (
	LicenseStatusTrial     LicenseStatus = "trial"
	LicenseStatusActive    LicenseStatus = "active"
	LicenseStatusExpired   LicenseStatus = "expired"
	LicenseStatusCancelled LicenseStatus = "cancelled"
)

// License is a plan that can be assigned to tenants
type License struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Description *string        `db:"description" json:"description,omitempty"`
	MaxMembers  *int           `db:"max_members" json:"max_members,omitempty"`
	PriceCents  int            `db:"price_cents" json:"price_cents"`
	Features    pq.StringArray `db:"features" json:"features"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// HasFeature reports whether the plan includes the named feature.
func (l *License) HasFeature(name string) bool {
	if l == nil {
		return false
	}
	for _, f := range l.Features {
		if f == name {
			return true
		}
	}
	return false
}

// OrganizationLicense is the license state of one tenant
type OrganizationLicense struct {
	ID             string        `db:"id" json:"id"`
	OrganizationID string        `db:"organization_id" json:"organization_id"`
	LicenseID      string        `db:"license_id" json:"license_id"`
	Status         LicenseStatus `db:"status" json:"status"`
	StartsAt       time.Time     `db:"starts_at" json:"starts_at"`
	EndsAt         *time.Time    `db:"ends_at" json:"ends_at,omitempty"`
	ExpiryWarnedAt *time.Time    `db:"expiry_warned_at" json:"-"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`

	// Joined from licenses
	LicenseName string         `db:"license_name" json:"license_name"`
	Features    pq.StringArray `db:"features" json:"features"`
}

// IsActiveAt reports whether the license grants access at t: status trial or active
// and either open-ended or not yet past ends_at.
func (l *OrganizationLicense) IsActiveAt(t time.Time) bool {
	if l == nil {
		return false
	}
	if l.Status != LicenseStatusTrial && l.Status != LicenseStatusActive {
		return false
	}
	if t.Before(l.StartsAt) {
		return false
	}
	return l.EndsAt == nil || t.Before(*l.EndsAt)
}

// HasFeature reports whether the tenant's plan includes the named feature.
func (l *OrganizationLicense) HasFeature(name string) bool {
	if l == nil {
		return false
	}
	for _, f := range l.Features {
		if f == name {
			return true
		}
	}
	return false
}
