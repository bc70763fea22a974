// Package models - profile.go defines the Profile model: the hub-side record of an
// authenticated identity, carrying the platform-wide role.
package models

import "time"

// PlatformRole is the platform-wide role stored on a profile.
type PlatformRole string

const (
	PlatformRoleUser       PlatformRole = "user"
	PlatformRoleSuperAdmin PlatformRole = "super_admin"
)

// Valid reports whether r is a known platform role.
func (r PlatformRole) Valid() bool {
	return r == PlatformRoleUser || r == PlatformRoleSuperAdmin
}

// Profile represents an account on the hub
type Profile struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	FullName     string       `json:"full_name"`
	AvatarURL    *string      `json:"avatar_url,omitempty"`
	PasswordHash *string      `json:"-"`
	OIDCSub      *string      `json:"-"`
	PlatformRole PlatformRole `json:"platform_role"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IsSuperAdmin reports whether the profile carries the super_admin platform role.
func (p *Profile) IsSuperAdmin() bool {
	return p != nil && p.PlatformRole == PlatformRoleSuperAdmin
}
