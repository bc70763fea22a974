// Package auth - roles.go derives a single effective role from a platform role and a set
// of tenant memberships. It is a pure function of its inputs and the only place the role
// priority order is defined.
package auth

import (
	"github.com/community-hub/backend/internal/db/models"
)

// rolePriority is the fixed total order used by ResolveEffectiveRole.
// supervisor and leader share a rank; see lessRole for the tie-break.
var rolePriority = map[models.Role]int{
	models.RolePublic:     0,
	models.RoleMember:     1,
	models.RoleEmployee:   2,
	models.RoleSupervisor: 3,
	models.RoleLeader:     3,
	models.RoleAdmin:      4,
	models.RoleOwner:      5,
	models.RoleSuperAdmin: 6,
}

// RolePriority returns the rank of r. Unknown roles rank below public.
func RolePriority(r models.Role) int {
	if p, ok := rolePriority[r]; ok {
		return p
	}
	return -1
}

// outranks reports whether a should be chosen over b. Higher priority wins; equal
// priorities are decided by the lexically smaller role name, so leader beats supervisor.
func outranks(a, b models.Role) bool {
	pa, pb := RolePriority(a), RolePriority(b)
	if pa != pb {
		return pa > pb
	}
	return a < b
}

// SelectActiveMembership returns the active membership that determines the effective
// role, or nil when none is active. Among equally ranked memberships the first in
// query order is kept, so the result is deterministic for a given input order.
func SelectActiveMembership(memberships []*models.Membership) *models.Membership {
	var best *models.Membership
	for _, m := range memberships {
		if !m.IsActive() {
			continue
		}
		if best == nil || outranks(m.Role, best.Role) {
			best = m
		}
	}
	return best
}

// ResolveEffectiveRole computes the effective role. A super_admin platform role wins
// without looking at memberships. Otherwise the best active membership role is returned,
// or "" when the identity has no active membership.
func ResolveEffectiveRole(platformRole models.PlatformRole, memberships []*models.Membership) models.Role {
	if platformRole == models.PlatformRoleSuperAdmin {
		return models.RoleSuperAdmin
	}
	if m := SelectActiveMembership(memberships); m != nil {
		return m.Role
	}
	return ""
}

// HasAnyRole reports whether role is one of roles.
func HasAnyRole(role models.Role, roles ...models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
