package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/auth"
	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/session"
	"github.com/community-hub/backend/internal/tenant"
)

// hubFixture backs both the session manager and the tenant provider with in-memory data
type hubFixture struct {
	bus *auth.MemoryBus

	mu          sync.Mutex
	sessions    map[string]*auth.Session
	profiles    map[string]*models.Profile
	memberships map[string][]*models.Membership
	orgs        map[string]*models.Organization
	licenses    map[string]*models.OrganizationLicense
}

func newHubFixture() *hubFixture {
	f := &hubFixture{
		bus:         auth.NewMemoryBus(),
		sessions:    map[string]*auth.Session{},
		profiles:    map[string]*models.Profile{},
		memberships: map[string][]*models.Membership{},
		orgs:        map[string]*models.Organization{},
		licenses:    map[string]*models.OrganizationLicense{},
	}
	f.addOrg("org-acme", "acme", true, models.LicenseStatusActive)
	f.addOrg("org-lapsed", "lapsed", true, models.LicenseStatusExpired)
	f.addOrg("org-hidden", "hidden", false, models.LicenseStatusTrial)
	return f
}

func (f *hubFixture) addOrg(id, slug string, public bool, license models.LicenseStatus) {
	f.orgs[id] = &models.Organization{ID: id, Slug: slug, Name: slug, Status: models.OrganizationStatusActive, IsPublic: public}
	f.licenses[id] = &models.OrganizationLicense{OrganizationID: id, Status: license, StartsAt: time.Now().Add(-time.Hour)}
}

// addUser registers a signed-in user reachable through token
func (f *hubFixture) addUser(token, id string, platform models.PlatformRole, ms ...*models.Membership) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[token] = &auth.Session{ID: "sid-" + id, UserID: id, Email: id + "@example.com"}
	f.profiles[id] = &models.Profile{ID: id, Email: id + "@example.com", FullName: id, PlatformRole: platform}
	f.memberships[id] = ms
}

func member(orgID, userID string, role models.Role) *models.Membership {
	return &models.Membership{OrganizationID: orgID, UserID: userID, Role: role, Status: models.MembershipStatusActive}
}

func (f *hubFixture) GetCurrentSession(_ context.Context, token string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[token], nil
}

func (f *hubFixture) SignOut(context.Context, string) error { return nil }

func (f *hubFixture) CheckAccessToken(token string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions[token] == nil {
		return time.Time{}, auth.ErrInvalidToken
	}
	return time.Time{}, nil
}

func (f *hubFixture) OnAuthStateChange(fn func(auth.AuthEvent)) func() { return f.bus.Subscribe(fn) }

func (f *hubFixture) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles[id], nil
}

func (f *hubFixture) GetPlatformRole(_ context.Context, id string) (models.PlatformRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.profiles[id]; p != nil {
		return p.PlatformRole, nil
	}
	return models.PlatformRoleUser, nil
}

func (f *hubFixture) ListByUser(_ context.Context, userID string) ([]*models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memberships[userID], nil
}

func (f *hubFixture) Get(_ context.Context, orgID, userID string) (*models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.memberships[userID] {
		if m.OrganizationID == orgID {
			return m, nil
		}
	}
	return nil, nil
}

func (f *hubFixture) GetBySlug(_ context.Context, slug string) (*models.Organization, error) {
	for _, o := range f.orgs {
		if o.Slug == slug {
			return o, nil
		}
	}
	return nil, nil
}

func (f *hubFixture) GetByID(_ context.Context, id string) (*models.Organization, error) {
	return f.orgs[id], nil
}

func (f *hubFixture) GetCurrentForOrganization(_ context.Context, orgID string) (*models.OrganizationLicense, error) {
	return f.licenses[orgID], nil
}

func (f *hubFixture) GetTenantSettings(context.Context, string) (*models.TenantSettings, error) {
	return nil, nil
}

func (f *hubFixture) manager(t *testing.T) *session.Manager {
	t.Helper()
	m := session.NewManager(session.Dependencies{Auth: f, Profiles: f, Memberships: f}, session.Config{ResolveTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		m.Stop()
	})
	return m
}

func (f *hubFixture) tenants() *tenant.Provider {
	return tenant.NewProvider(f, f, f, f)
}

// serve sends method path with an optional bearer token
func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func serveWithCookie(r *gin.Engine, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	req.AddCookie(cookie)
	r.ServeHTTP(w, req)
	return w
}
