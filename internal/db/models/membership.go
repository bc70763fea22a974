// Package models - membership.go defines the join between a profile and a tenant,
// with the tenant-scoped role and membership status.
package models

import "time"

// Role is a tenant role, or one of the synthetic roles public and super_admin
// that take part in effective role resolution.
type Role string

const (
	RolePublic     Role = "public"
	RoleMember     Role = "member"
	RoleEmployee   Role = "employee"
	RoleSupervisor Role = "supervisor"
	RoleLeader     Role = "leader"
	RoleAdmin      Role = "admin"
	RoleOwner      Role = "owner"
	RoleSuperAdmin Role = "super_admin"
)

// TenantRoles lists the roles a membership may carry.
var TenantRoles = []Role{RoleMember, RoleEmployee, RoleSupervisor, RoleLeader, RoleAdmin, RoleOwner}

// IsTenantRole reports whether r may be stored on a membership.
func IsTenantRole(r Role) bool {
	for _, tr := range TenantRoles {
		if r == tr {
			return true
		}
	}
	return false
}

// MembershipStatus is the status of a membership.
type MembershipStatus string

const (
	MembershipStatusActive   MembershipStatus = "active"
	MembershipStatusInactive MembershipStatus = "inactive"
	MembershipStatusPending  MembershipStatus = "pending"
)

// Membership represents a profile's membership in an organization
type Membership struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	UserID         string           `json:"user_id"`
	Role           Role             `json:"role"`
	Status         MembershipStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// IsActive reports whether the membership is active.
func (m *Membership) IsActive() bool {
	return m != nil && m.Status == MembershipStatusActive
}

// MemberWithProfile is a membership joined with profile details for member lists
type MemberWithProfile struct {
	Membership
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// UserMembership is a membership joined with its organization, for "my tenants" views
type UserMembership struct {
	Membership
	OrganizationSlug string `json:"organization_slug"`
	OrganizationName string `json:"organization_name"`
}
