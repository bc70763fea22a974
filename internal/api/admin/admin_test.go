package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/db/repositories"
	"github.com/community-hub/backend/internal/middleware"
	"github.com/community-hub/backend/internal/tenant"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeStats struct{ orgID string }

func (f *fakeStats) GetDashboardStats(_ context.Context, orgID string) (*repositories.DashboardStats, error) {
	f.orgID = orgID
	return &repositories.DashboardStats{ActiveMembers: 12, PendingMembers: 2}, nil
}

type fakeTenants struct {
	orgs         map[string]*models.Organization
	listedStatus string
	listedLimit  int
}

func (f *fakeTenants) List(_ context.Context, status string, limit, _ int) ([]*models.Organization, int, error) {
	f.listedStatus, f.listedLimit = status, limit
	out := make([]*models.Organization, 0)
	for _, o := range f.orgs {
		out = append(out, o)
	}
	return out, len(out), nil
}

func (f *fakeTenants) GetByID(_ context.Context, id string) (*models.Organization, error) {
	return f.orgs[id], nil
}

func (f *fakeTenants) UpdateStatus(_ context.Context, id string, status models.OrganizationStatus) error {
	o := f.orgs[id]
	if o == nil {
		return repositories.ErrNotFound
	}
	o.Status = status
	return nil
}

type fakeLicenses struct {
	plans    map[string]*models.License
	assigned *models.OrganizationLicense
}

func (f *fakeLicenses) ListPlans(context.Context) ([]*models.License, error) {
	out := make([]*models.License, 0)
	for _, p := range f.plans {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeLicenses) GetPlan(_ context.Context, id string) (*models.License, error) {
	return f.plans[id], nil
}

func (f *fakeLicenses) CreatePlan(_ context.Context, l *models.License) error {
	l.ID = "plan-new"
	f.plans[l.ID] = l
	return nil
}

func (f *fakeLicenses) GetCurrentForOrganization(context.Context, string) (*models.OrganizationLicense, error) {
	return f.assigned, nil
}

func (f *fakeLicenses) Assign(_ context.Context, ol *models.OrganizationLicense) error {
	ol.ID = "ol-1"
	f.assigned = ol
	return nil
}

type fakeProfiles struct {
	profiles map[string]*models.Profile
}

func (f *fakeProfiles) ListProfiles(context.Context, string, int, int) ([]*models.Profile, error) {
	out := make([]*models.Profile, 0)
	for _, p := range f.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProfiles) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	p := f.profiles[id]
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) SetPlatformRole(_ context.Context, id string, role models.PlatformRole) error {
	f.profiles[id].PlatformRole = role
	return nil
}

func (f *fakeProfiles) CountSuperAdmins(context.Context) (int, error) {
	n := 0
	for _, p := range f.profiles {
		if p.IsSuperAdmin() {
			n++
		}
	}
	return n, nil
}

type fakeUsers struct{ notified []string }

func (f *fakeUsers) NotifyUserUpdated(_ context.Context, id string) { f.notified = append(f.notified, id) }

type fakeSettings struct {
	stored map[string]json.RawMessage
	by     string
}

func (f *fakeSettings) ListPlatformSettings(context.Context) ([]*models.PlatformSetting, error) {
	out := make([]*models.PlatformSetting, 0)
	for k, v := range f.stored {
		out = append(out, &models.PlatformSetting{Key: k, Value: v})
	}
	return out, nil
}

func (f *fakeSettings) SetPlatformSetting(_ context.Context, key string, value json.RawMessage, by *string) error {
	f.stored[key] = value
	f.by = *by
	return nil
}

type fakeAudit struct{ filters repositories.AuditFilters }

func (f *fakeAudit) ListAuditLogs(_ context.Context, filters repositories.AuditFilters, _, _ int) ([]*models.AuditLog, int, error) {
	f.filters = filters
	return []*models.AuditLog{{ID: "a1", Action: "PUT /api/v1/platform/settings/:key"}}, 1, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func asUser(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, id)
		c.Next()
	}
}

func serve(mw gin.HandlerFunc, method, route, target string, h gin.HandlerFunc, body any) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(mw)
	r.Handle(method, route, h)
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Dashboard
// ---------------------------------------------------------------------------

func TestDashboard_UsesResolvedTenant(t *testing.T) {
	stats := &fakeStats{}
	withTenant := func(c *gin.Context) {
		c.Set(middleware.TenantKey, &tenant.Snapshot{Tenant: &models.Organization{ID: "org-7", Slug: "acme"}})
		c.Next()
	}
	w := serve(withTenant, http.MethodGet, "/admin/dashboard", "/admin/dashboard", NewDashboardHandler(stats).Dashboard(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if stats.orgID != "org-7" {
		t.Errorf("stats for %q, want org-7", stats.orgID)
	}
	if !strings.Contains(w.Body.String(), `"active_members":12`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Tenants and licenses
// ---------------------------------------------------------------------------

func newTenantHandlers() (*TenantHandlers, *fakeTenants, *fakeLicenses) {
	tenants := &fakeTenants{orgs: map[string]*models.Organization{
		"org-1": {ID: "org-1", Slug: "acme", Status: models.OrganizationStatusActive},
	}}
	licenses := &fakeLicenses{plans: map[string]*models.License{
		"plan-1": {ID: "plan-1", Name: "starter", Features: []string{"events"}},
	}}
	return NewTenantHandlers(tenants, licenses), tenants, licenses
}

func TestListTenants(t *testing.T) {
	h, tenants, _ := newTenantHandlers()
	w := serve(asUser("sa"), http.MethodGet, "/tenants", "/tenants?status=active&per_page=500", h.ListTenants(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if tenants.listedStatus != "active" || tenants.listedLimit != 20 {
		t.Errorf("List(status=%q, limit=%d)", tenants.listedStatus, tenants.listedLimit)
	}

	w = serve(asUser("sa"), http.MethodGet, "/tenants", "/tenants?status=deleted", h.ListTenants(), nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad filter status = %d, want 400", w.Code)
	}
}

func TestUpdateTenantStatus(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		status     string
		wantStatus int
	}{
		{"suspend", "org-1", "suspended", http.StatusOK},
		{"unknown status", "org-1", "deleted", http.StatusBadRequest},
		{"unknown tenant", "org-9", "suspended", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTenantHandlers()
			w := serve(asUser("sa"), http.MethodPut, "/tenants/:id/status", "/tenants/"+tt.id+"/status", h.UpdateTenantStatus(),
				map[string]any{"status": tt.status})
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestAssignLicense(t *testing.T) {
	future := time.Now().Add(30 * 24 * time.Hour)
	tests := []struct {
		name       string
		tenantID   string
		body       map[string]any
		wantStatus int
	}{
		{"active", "org-1", map[string]any{"license_id": "plan-1", "ends_at": future}, http.StatusCreated},
		{"unknown plan", "org-1", map[string]any{"license_id": "plan-9"}, http.StatusBadRequest},
		{"unknown tenant", "org-9", map[string]any{"license_id": "plan-1"}, http.StatusNotFound},
		{"past end", "org-1", map[string]any{"license_id": "plan-1", "ends_at": time.Now().Add(-time.Hour)}, http.StatusBadRequest},
		{"expired status", "org-1", map[string]any{"license_id": "plan-1", "status": "expired"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, licenses := newTenantHandlers()
			w := serve(asUser("sa"), http.MethodPost, "/tenants/:id/license", "/tenants/"+tt.tenantID+"/license", h.AssignLicense(), tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusCreated {
				ol := licenses.assigned
				if ol.Status != models.LicenseStatusActive || ol.OrganizationID != "org-1" || !ol.IsActiveAt(time.Now().Add(time.Second)) {
					t.Errorf("assigned = %+v", ol)
				}
			}
		})
	}
}

func TestCreatePlan(t *testing.T) {
	h, _, licenses := newTenantHandlers()
	w := serve(asUser("sa"), http.MethodPost, "/plans", "/plans", h.CreatePlan(), map[string]any{"name": "pro", "price_cents": 900})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if p := licenses.plans["plan-new"]; p == nil || p.Features == nil {
		t.Errorf("plan = %+v, want empty feature list", p)
	}
	w = serve(asUser("sa"), http.MethodPost, "/plans", "/plans", h.CreatePlan(), map[string]any{"name": "bad", "price_cents": -1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative price status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Super admin management
// ---------------------------------------------------------------------------

func TestSuperAdminRoles(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		caller      string
		target      string
		superAdmins []string
		wantStatus  int
		wantRole    models.PlatformRole
		wantNotify  bool
	}{
		{"grant", http.MethodPost, "sa1", "u2", []string{"sa1"}, http.StatusOK, models.PlatformRoleSuperAdmin, true},
		{"grant unknown", http.MethodPost, "sa1", "nobody", []string{"sa1"}, http.StatusNotFound, "", false},
		{"revoke other", http.MethodDelete, "sa1", "u2", []string{"sa1", "u2"}, http.StatusOK, models.PlatformRoleUser, true},
		{"revoke self", http.MethodDelete, "sa1", "sa1", []string{"sa1", "u2"}, http.StatusConflict, models.PlatformRoleSuperAdmin, false},
		{"revoke last", http.MethodDelete, "sa1", "u2", []string{"u2"}, http.StatusConflict, models.PlatformRoleSuperAdmin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := &fakeProfiles{profiles: map[string]*models.Profile{
				"sa1": {ID: "sa1", PlatformRole: models.PlatformRoleUser},
				"u2":  {ID: "u2", PlatformRole: models.PlatformRoleUser},
			}}
			for _, id := range tt.superAdmins {
				profiles.profiles[id].PlatformRole = models.PlatformRoleSuperAdmin
			}
			users := &fakeUsers{}
			h := NewUserHandlers(profiles, users)
			handler := h.GrantSuperAdmin()
			if tt.method == http.MethodDelete {
				handler = h.RevokeSuperAdmin()
			}

			w := serve(asUser(tt.caller), tt.method, "/users/:id/super-admin", "/users/"+tt.target+"/super-admin", handler, nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if p := profiles.profiles[tt.target]; p != nil && p.PlatformRole != tt.wantRole {
				t.Errorf("role = %q, want %q", p.PlatformRole, tt.wantRole)
			}
			if got := len(users.notified) == 1; got != tt.wantNotify {
				t.Errorf("notified = %v, want notify %v", users.notified, tt.wantNotify)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Settings and audit
// ---------------------------------------------------------------------------

func TestPlatformSettings(t *testing.T) {
	store := &fakeSettings{stored: map[string]json.RawMessage{
		"setup_token_hash": json.RawMessage(`"abc"`),
		"support_email":    json.RawMessage(`"help@example.com"`),
	}}
	h := NewSettingsHandlers(store)

	w := serve(asUser("sa1"), http.MethodGet, "/settings", "/settings", h.ListSettings(), nil)
	if strings.Contains(w.Body.String(), "setup_token_hash") || !strings.Contains(w.Body.String(), "support_email") {
		t.Errorf("body = %s, want reserved keys hidden", w.Body.String())
	}

	w = serve(asUser("sa1"), http.MethodPut, "/settings/:key", "/settings/max_tenants", h.PutSetting(), map[string]any{"value": 50})
	if w.Code != http.StatusOK || string(store.stored["max_tenants"]) != "50" || store.by != "sa1" {
		t.Errorf("status = %d stored = %s by = %q", w.Code, store.stored["max_tenants"], store.by)
	}

	w = serve(asUser("sa1"), http.MethodPut, "/settings/:key", "/settings/setup_completed", h.PutSetting(), map[string]any{"value": false})
	if w.Code != http.StatusForbidden {
		t.Errorf("reserved key status = %d, want 403", w.Code)
	}
}

func TestListAuditLogs_Filters(t *testing.T) {
	logs := &fakeAudit{}
	h := NewAuditHandlers(logs)

	w := serve(asUser("sa1"), http.MethodGet, "/audit", "/audit?organization_id=org-1&start_date=2026-01-01T00:00:00Z", h.ListAuditLogs(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if logs.filters.OrganizationID == nil || *logs.filters.OrganizationID != "org-1" {
		t.Errorf("OrganizationID filter = %v", logs.filters.OrganizationID)
	}
	if logs.filters.StartDate == nil || logs.filters.StartDate.Year() != 2026 {
		t.Errorf("StartDate filter = %v", logs.filters.StartDate)
	}
	if logs.filters.UserID != nil {
		t.Errorf("UserID filter = %v, want nil", logs.filters.UserID)
	}

	w = serve(asUser("sa1"), http.MethodGet, "/audit", "/audit?end_date=yesterday", h.ListAuditLogs(), nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", w.Code)
	}
}
