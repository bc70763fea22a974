// Package guard evaluates route authorization. A Guard is a predicate over the session
// snapshot and, for tenant-scoped guards, the tenant snapshot. RequireSuperAdmin also
// carries a verifier that reads the authoritative platform role once per mount when the
// cached role does not grant access.
//
// A guard never denies while state it depends on is still loading; it reports Pending
// instead so callers can answer with a retry rather than a redirect.
package guard

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/community-hub/backend/internal/auth"
	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/session"
	"github.com/community-hub/backend/internal/telemetry"
	"github.com/community-hub/backend/internal/tenant"
)

// Outcome is the state of a guard evaluation
type Outcome int

const (
	Pending Outcome = iota
	Verifying
	Allow
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Verifying:
		return "verifying"
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// State is what a predicate sees. Tenant is nil for guards that do not need a tenant.
type State struct {
	Session session.Snapshot
	Tenant  *tenant.Snapshot
}

// Predicate decides access for a fully loaded state
type Predicate func(State) bool

// PlatformRoleReader reads the authoritative platform role of a profile
type PlatformRoleReader interface {
	GetPlatformRole(ctx context.Context, id string) (models.PlatformRole, error)
}

// SessionSource is the session store a guard reads
type SessionSource interface {
	Wait(ctx context.Context) session.Snapshot
	Refresh(ctx context.Context) session.Snapshot
}

// TenantLoader resolves the tenant snapshot for the request as seen by snap's identity
type TenantLoader func(ctx context.Context, snap session.Snapshot) *tenant.Snapshot

// Guard is one authorization rule
type Guard struct {
	name        string
	predicate   Predicate
	needsTenant bool
	verifier    PlatformRoleReader
}

// Name identifies the guard in metrics and logs
func (g *Guard) Name() string {
	return g.name
}

// NeedsTenant reports whether the guard evaluates tenant state
func (g *Guard) NeedsTenant() bool {
	return g.needsTenant
}

// RequireAuth allows any authenticated identity
func RequireAuth() *Guard {
	return &Guard{
		name: "require_auth",
		predicate: func(st State) bool {
			return st.Session.Authenticated()
		},
	}
}

// RequireRole allows identities whose effective role is one of roles. Roles other than
// super_admin also need an active organization.
func RequireRole(roles ...models.Role) *Guard {
	return &Guard{
		name: "require_role",
		predicate: func(st State) bool {
			role := st.Session.Role
			if role == "" || !auth.HasAnyRole(role, roles...) {
				return false
			}
			return role == models.RoleSuperAdmin || st.Session.OrganizationID != ""
		},
	}
}

// RequireTenantRole allows super admins, and members of the request's tenant whose
// active membership carries one of roles.
func RequireTenantRole(roles ...models.Role) *Guard {
	return &Guard{
		name:        "require_tenant_role",
		needsTenant: true,
		predicate: func(st State) bool {
			if st.Session.IsSuperAdmin() {
				return true
			}
			if st.Tenant == nil || st.Tenant.NotFound {
				return false
			}
			m := st.Tenant.Membership
			return m.IsActive() && auth.HasAnyRole(m.Role, roles...)
		},
	}
}

// RequireSuperAdmin allows identities whose platform role is super_admin. When the
// cached role says otherwise, verifier is consulted once per mount.
func RequireSuperAdmin(verifier PlatformRoleReader) *Guard {
	return &Guard{
		name: "require_super_admin",
		predicate: func(st State) bool {
			return st.Session.IsSuperAdmin()
		},
		verifier: verifier,
	}
}

// Evaluate applies the predicate to st without fetching anything
func (g *Guard) Evaluate(st State) Outcome {
	if st.Session.Loading {
		return Pending
	}
	if g.needsTenant && !st.Session.IsSuperAdmin() && st.Session.Authenticated() {
		if st.Tenant == nil || st.Tenant.Loading {
			return Pending
		}
	}
	if g.predicate(st) {
		return Allow
	}
	return Deny
}

// Mount is one evaluation of a guard for a request. It remembers whether verification
// already ran so repeated Decide calls never verify twice.
type Mount struct {
	guard    *Guard
	state    Outcome
	verified bool
}

// Mount starts a new evaluation
func (g *Guard) Mount() *Mount {
	return &Mount{guard: g, state: Pending}
}

// State returns the outcome of the last step reached
func (m *Mount) State() Outcome {
	return m.state
}

// Decide waits for the session (bounded by ctx), loads the tenant when the guard needs
// one, and returns Allow, Deny or Pending.
func (m *Mount) Decide(ctx context.Context, sessions SessionSource, loadTenant TenantLoader) Outcome {
	out := m.decide(ctx, sessions, loadTenant)
	m.state = out
	telemetry.GuardDecisionsTotal.WithLabelValues(m.guard.name, out.String()).Inc()
	return out
}

func (m *Mount) decide(ctx context.Context, sessions SessionSource, loadTenant TenantLoader) Outcome {
	g := m.guard
	st := State{Session: sessions.Wait(ctx)}
	if st.Session.Loading {
		return Pending
	}

	if g.needsTenant && st.Session.Authenticated() && !st.Session.IsSuperAdmin() && loadTenant != nil {
		st.Tenant = loadTenant(ctx, st.Session)
	}

	out := g.Evaluate(st)
	if out != Deny || g.verifier == nil || m.verified || !st.Session.Authenticated() {
		return out
	}

	m.verified = true
	m.state = Verifying
	role, err := g.verifier.GetPlatformRole(ctx, st.Session.User.ID)
	if err != nil {
		telemetry.SuperAdminVerificationsTotal.WithLabelValues("error").Inc()
		slog.Warn("super admin verification failed", "user_id", st.Session.User.ID, "error", err)
		return Deny
	}
	if role != models.PlatformRoleSuperAdmin {
		telemetry.SuperAdminVerificationsTotal.WithLabelValues("rejected").Inc()
		return Deny
	}
	telemetry.SuperAdminVerificationsTotal.WithLabelValues("confirmed").Inc()

	refreshed := sessions.Refresh(ctx)
	if refreshed.Loading || refreshed.Generation <= st.Session.Generation {
		return Pending
	}
	st.Session = refreshed
	return g.Evaluate(st)
}

// LoginRedirect builds the login URL that returns to path after sign-in
func LoginRedirect(loginPath, path string) string {
	if path == "" {
		return loginPath
	}
	return loginPath + "?redirect=" + url.QueryEscape(path)
}
