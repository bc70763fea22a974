package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/session"
	"github.com/community-hub/backend/internal/tenant"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeSessions struct {
	snap      session.Snapshot
	refreshed session.Snapshot
	refreshes int
}

func (f *fakeSessions) Wait(context.Context) session.Snapshot { return f.snap }

func (f *fakeSessions) Refresh(context.Context) session.Snapshot {
	f.refreshes++
	f.snap = f.refreshed
	return f.refreshed
}

type fakeVerifier struct {
	role  models.PlatformRole
	err   error
	calls int
}

func (f *fakeVerifier) GetPlatformRole(context.Context, string) (models.PlatformRole, error) {
	f.calls++
	return f.role, f.err
}

func signedIn(role models.Role, platform models.PlatformRole, orgID string) session.Snapshot {
	return session.Snapshot{
		User:           &session.User{ID: "u1", Email: "u1@example.com"},
		Role:           role,
		PlatformRole:   platform,
		OrganizationID: orgID,
		Generation:     1,
	}
}

func tenantWith(role models.Role, status models.MembershipStatus) TenantLoader {
	return func(context.Context, session.Snapshot) *tenant.Snapshot {
		return &tenant.Snapshot{
			Tenant:     &models.Organization{ID: "org-1", Slug: "acme"},
			Membership: &models.Membership{OrganizationID: "org-1", UserID: "u1", Role: role, Status: status},
		}
	}
}

func decide(g *Guard, snap session.Snapshot, load TenantLoader) Outcome {
	return g.Mount().Decide(context.Background(), &fakeSessions{snap: snap}, load)
}

// ---------------------------------------------------------------------------
// Predicates
// ---------------------------------------------------------------------------

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name string
		snap session.Snapshot
		want Outcome
	}{
		{"loading", session.Snapshot{Loading: true}, Pending},
		{"anonymous", session.Snapshot{}, Deny},
		{"signed in without role", signedIn("", models.PlatformRoleUser, ""), Allow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decide(RequireAuth(), tt.snap, nil); got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []models.Role
		snap  session.Snapshot
		want  Outcome
	}{
		{"loading never denies", []models.Role{models.RoleMember}, session.Snapshot{Loading: true}, Pending},
		{"no effective role", []models.Role{models.RoleMember}, signedIn("", models.PlatformRoleUser, ""), Deny},
		{"anonymous", []models.Role{models.RoleMember}, session.Snapshot{}, Deny},
		{"role in set", []models.Role{models.RoleAdmin, models.RoleOwner}, signedIn(models.RoleOwner, models.PlatformRoleUser, "org-1"), Allow},
		{"role not in set", []models.Role{models.RoleAdmin}, signedIn(models.RoleMember, models.PlatformRoleUser, "org-1"), Deny},
		{"admin without organization", []models.Role{models.RoleAdmin}, signedIn(models.RoleAdmin, models.PlatformRoleUser, ""), Deny},
		{"super admin without organization", []models.Role{models.RoleSuperAdmin}, signedIn(models.RoleSuperAdmin, models.PlatformRoleSuperAdmin, ""), Allow},
		{"super admin not listed", []models.Role{models.RoleAdmin}, signedIn(models.RoleSuperAdmin, models.PlatformRoleSuperAdmin, ""), Deny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decide(RequireRole(tt.roles...), tt.snap, nil); got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequireTenantRole(t *testing.T) {
	admin := []models.Role{models.RoleAdmin, models.RoleOwner}
	notFound := func(context.Context, session.Snapshot) *tenant.Snapshot { return &tenant.Snapshot{NotFound: true} }
	loading := func(context.Context, session.Snapshot) *tenant.Snapshot { return &tenant.Snapshot{Loading: true} }

	tests := []struct {
		name string
		snap session.Snapshot
		load TenantLoader
		want Outcome
	}{
		{"session loading", session.Snapshot{Loading: true}, tenantWith(models.RoleAdmin, models.MembershipStatusActive), Pending},
		{"tenant loading", signedIn(models.RoleAdmin, models.PlatformRoleUser, "org-1"), loading, Pending},
		{"anonymous", session.Snapshot{}, tenantWith(models.RoleAdmin, models.MembershipStatusActive), Deny},
		{"active admin", signedIn(models.RoleAdmin, models.PlatformRoleUser, "org-1"), tenantWith(models.RoleAdmin, models.MembershipStatusActive), Allow},
		{"pending admin", signedIn("", models.PlatformRoleUser, ""), tenantWith(models.RoleAdmin, models.MembershipStatusPending), Deny},
		{"active member", signedIn(models.RoleMember, models.PlatformRoleUser, "org-1"), tenantWith(models.RoleMember, models.MembershipStatusActive), Deny},
		{"tenant not found", signedIn(models.RoleAdmin, models.PlatformRoleUser, "org-1"), notFound, Deny},
		{"super admin bypasses membership", signedIn(models.RoleSuperAdmin, models.PlatformRoleSuperAdmin, ""), notFound, Allow},
		{"super admin while tenant loading", signedIn(models.RoleSuperAdmin, models.PlatformRoleSuperAdmin, ""), loading, Allow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decide(RequireTenantRole(admin...), tt.snap, tt.load); got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// RequireSuperAdmin verification
// ---------------------------------------------------------------------------

func TestRequireSuperAdmin_CachedRoleSkipsVerification(t *testing.T) {
	v := &fakeVerifier{}
	src := &fakeSessions{snap: signedIn(models.RoleSuperAdmin, models.PlatformRoleSuperAdmin, "")}

	if got := RequireSuperAdmin(v).Mount().Decide(context.Background(), src, nil); got != Allow {
		t.Errorf("Decide() = %v, want allow", got)
	}
	if v.calls != 0 {
		t.Errorf("verifier calls = %d, want 0", v.calls)
	}
}

func TestRequireSuperAdmin_VerifiesOnceThenRefreshes(t *testing.T) {
	v := &fakeVerifier{role: models.PlatformRoleSuperAdmin}
	elevated := signedIn(models.RoleSuperAdmin, models.PlatformRoleSuperAdmin, "")
	elevated.Generation = 2
	src := &fakeSessions{snap: signedIn("", models.PlatformRoleUser, ""), refreshed: elevated}

	m := RequireSuperAdmin(v).Mount()
	if got := m.Decide(context.Background(), src, nil); got != Allow {
		t.Fatalf("Decide() = %v, want allow", got)
	}
	if got := m.Decide(context.Background(), src, nil); got != Allow {
		t.Errorf("second Decide() = %v, want allow", got)
	}
	if v.calls != 1 {
		t.Errorf("verifier calls = %d, want 1", v.calls)
	}
	if src.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", src.refreshes)
	}
}

func TestRequireSuperAdmin_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		verifier *fakeVerifier
	}{
		{"authoritative role is user", &fakeVerifier{role: models.PlatformRoleUser}},
		{"verification errors", &fakeVerifier{err: errors.New("timeout")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSessions{snap: signedIn(models.RoleOwner, models.PlatformRoleUser, "org-1")}
			m := RequireSuperAdmin(tt.verifier).Mount()

			if got := m.Decide(context.Background(), src, nil); got != Deny {
				t.Errorf("Decide() = %v, want deny", got)
			}
			if got := m.Decide(context.Background(), src, nil); got != Deny {
				t.Errorf("second Decide() = %v, want deny", got)
			}
			if tt.verifier.calls != 1 {
				t.Errorf("verifier calls = %d, want 1", tt.verifier.calls)
			}
			if src.refreshes != 0 {
				t.Errorf("refreshes = %d, want 0", src.refreshes)
			}
		})
	}
}

func TestRequireSuperAdmin_AnonymousIsNotVerified(t *testing.T) {
	v := &fakeVerifier{role: models.PlatformRoleSuperAdmin}
	if got := decide(RequireSuperAdmin(v), session.Snapshot{}, nil); got != Deny {
		t.Errorf("Decide() = %v, want deny", got)
	}
	if v.calls != 0 {
		t.Errorf("verifier calls = %d, want 0", v.calls)
	}
}

func TestRequireSuperAdmin_RefreshStillLoading(t *testing.T) {
	v := &fakeVerifier{role: models.PlatformRoleSuperAdmin}
	stale := signedIn("", models.PlatformRoleUser, "")
	src := &fakeSessions{snap: stale, refreshed: stale}

	if got := RequireSuperAdmin(v).Mount().Decide(context.Background(), src, nil); got != Pending {
		t.Errorf("Decide() = %v, want pending when refresh did not complete", got)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestMountState(t *testing.T) {
	m := RequireAuth().Mount()
	if m.State() != Pending {
		t.Errorf("initial State() = %v, want pending", m.State())
	}
	m.Decide(context.Background(), &fakeSessions{snap: signedIn("", models.PlatformRoleUser, "")}, nil)
	if m.State() != Allow {
		t.Errorf("State() = %v, want allow", m.State())
	}
}

func TestLoginRedirect(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", "/login"},
		{"/admin", "/login?redirect=%2Fadmin"},
		{"/t/acme/admin?tab=members", "/login?redirect=%2Ft%2Facme%2Fadmin%3Ftab%3Dmembers"},
	}
	for _, tt := range tests {
		if got := LoginRedirect("/login", tt.path); got != tt.want {
			t.Errorf("LoginRedirect(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{Pending: "pending", Verifying: "verifying", Allow: "allow", Deny: "deny", Outcome(9): "unknown"} {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", o, got, want)
		}
	}
}

// The end-to-end example: an owner reaches the org admin area but not the super admin area.
func TestOwnerScenario(t *testing.T) {
	owner := signedIn(models.RoleOwner, models.PlatformRoleUser, "org-1")

	if got := decide(RequireRole(models.RoleAdmin, models.RoleOwner), owner, nil); got != Allow {
		t.Errorf("admin area Decide() = %v, want allow", got)
	}
	v := &fakeVerifier{role: models.PlatformRoleUser}
	if got := decide(RequireSuperAdmin(v), owner, nil); got != Deny {
		t.Errorf("super admin area Decide() = %v, want deny", got)
	}
}
