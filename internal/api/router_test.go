package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/api/account"
	"github.com/community-hub/backend/internal/api/admin"
	"github.com/community-hub/backend/internal/api/content"
	"github.com/community-hub/backend/internal/api/notifications"
	"github.com/community-hub/backend/internal/api/setup"
	"github.com/community-hub/backend/internal/api/tenants"
	"github.com/community-hub/backend/internal/auth"
	"github.com/community-hub/backend/internal/config"
	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/middleware"
	"github.com/community-hub/backend/internal/session"
	"github.com/community-hub/backend/internal/storage"
	"github.com/community-hub/backend/internal/tenant"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// minimal storage.Storage mock for readiness tests
// ---------------------------------------------------------------------------

type readinessMockStorage struct{ existsErr error }

func (m *readinessMockStorage) Put(_ context.Context, _ string, _ io.Reader, _ string) (*storage.Object, error) {
	return nil, nil
}
func (m *readinessMockStorage) Open(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, storage.ErrNotFound
}
func (m *readinessMockStorage) Remove(_ context.Context, _ string) error { return nil }
func (m *readinessMockStorage) Exists(_ context.Context, _ string) (bool, error) {
	return false, m.existsErr
}
func (m *readinessMockStorage) SignedURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", nil
}

// ---------------------------------------------------------------------------
// healthCheckHandler
// ---------------------------------------------------------------------------

func newHealthDB(t *testing.T, pingOK bool) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if pingOK {
		mock.ExpectPing()
	} else {
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	}
	return db
}

func TestHealthCheckHandler_Healthy(t *testing.T) {
	db := newHealthDB(t, true)

	r := gin.New()
	r.GET("/health", healthCheckHandler(db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestHealthCheckHandler_Unhealthy(t *testing.T) {
	db := newHealthDB(t, false)

	r := gin.New()
	r.GET("/health", healthCheckHandler(db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", body["status"])
	}
}

// ---------------------------------------------------------------------------
// readinessHandler
// ---------------------------------------------------------------------------

func TestReadinessHandler_Ready(t *testing.T) {
	db := newHealthDB(t, true)

	r := gin.New()
	r.GET("/ready", readinessHandler(db, &readinessMockStorage{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["ready"] != true {
		t.Errorf("ready = %v, want true", body["ready"])
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	db := newHealthDB(t, false)

	r := gin.New()
	r.GET("/ready", readinessHandler(db, &readinessMockStorage{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["ready"] != false {
		t.Errorf("ready = %v, want false", body["ready"])
	}
}

// ---------------------------------------------------------------------------
// versionHandler
// ---------------------------------------------------------------------------

func TestVersionHandler(t *testing.T) {
	r := gin.New()
	r.GET("/version", versionHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["version"] == nil {
		t.Error("response missing 'version'")
	}
	if body["api_version"] == nil {
		t.Error("response missing 'api_version'")
	}
}

// ---------------------------------------------------------------------------
// LoggerMiddleware
// ---------------------------------------------------------------------------

func TestLoggerMiddleware_JSONFormat(t *testing.T) {
	cfg := &config.Config{}
	cfg.Logging.Format = "json"

	r := gin.New()
	r.Use(LoggerMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestLoggerMiddleware_TextFormat(t *testing.T) {
	cfg := &config.Config{}
	cfg.Logging.Format = "text"

	r := gin.New()
	r.Use(LoggerMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// ---------------------------------------------------------------------------
// CORSMiddleware
// ---------------------------------------------------------------------------

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"https://example.com"}

	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "https://example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want https://example.com",
			w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}

	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anything.com")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCORSMiddleware_DisallowedOrigin(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"https://allowed.com"}

	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.com")
	r.ServeHTTP(w, req)

	// Request passes through but no CORS header set
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("expected no Access-Control-Allow-Origin header for disallowed origin")
	}
}

func TestCORSMiddleware_PreflightOptions(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}

	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.OPTIONS("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	r.ServeHTTP(w, req)

	// OPTIONS should be aborted with 204
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204 for OPTIONS preflight", w.Code)
	}
}

func TestCORSMiddleware_WildcardNoOriginHeader(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}

	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	// No Origin header set → origin is empty, wildcard allows it → Access-Control-Allow-Origin: *
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestReadinessHandler_StorageNotReady(t *testing.T) {
	db := newHealthDB(t, true)

	r := gin.New()
	r.GET("/ready", readinessHandler(db, &readinessMockStorage{existsErr: io.ErrUnexpectedEOF}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Checks["database"] != "healthy" || body.Checks["storage"] != "unhealthy" {
		t.Errorf("checks = %v, want healthy database and unhealthy storage", body.Checks)
	}
}

func TestCORSMiddleware_ConfiguredMethods(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}
	cfg.Security.CORS.AllowedMethods = []string{"GET", "POST"}

	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST" {
		t.Errorf("Access-Control-Allow-Methods = %q, want %q", got, "GET, POST")
	}
}

// ---------------------------------------------------------------------------
// route wiring
// ---------------------------------------------------------------------------

// hub backs sessions, tenants and the platform directory with in-memory data
type hub struct {
	bus *auth.MemoryBus

	mu          sync.Mutex
	sessions    map[string]*auth.Session
	profiles    map[string]*models.Profile
	memberships map[string][]*models.Membership
	orgs        []*models.Organization
}

func newHub() *hub {
	h := &hub{
		bus:         auth.NewMemoryBus(),
		sessions:    map[string]*auth.Session{},
		profiles:    map[string]*models.Profile{},
		memberships: map[string][]*models.Membership{},
		orgs: []*models.Organization{
			{ID: "org-acme", Slug: "acme", Name: "Acme", Status: models.OrganizationStatusActive, IsPublic: true},
			{ID: "org-hidden", Slug: "hidden", Name: "Hidden", Status: models.OrganizationStatusActive},
		},
	}
	h.addUser("tok-owner", "owner", models.PlatformRoleUser, models.RoleOwner)
	h.addUser("tok-member", "member", models.PlatformRoleUser, models.RoleMember)
	h.addUser("tok-root", "root", models.PlatformRoleSuperAdmin, "")
	return h
}

// addUser registers a user reachable through token, with an active acme membership
// when role is set
func (h *hub) addUser(token, id string, platform models.PlatformRole, role models.Role) {
	h.sessions[token] = &auth.Session{ID: "sid-" + id, UserID: id, Email: id + "@example.com"}
	h.profiles[id] = &models.Profile{ID: id, Email: id + "@example.com", FullName: id, PlatformRole: platform}
	if role != "" {
		h.memberships[id] = []*models.Membership{{
			OrganizationID: "org-acme", UserID: id, Role: role, Status: models.MembershipStatusActive,
		}}
	}
}

func (h *hub) GetCurrentSession(_ context.Context, token string) (*auth.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[token], nil
}

func (h *hub) SignOut(context.Context, string) error { return nil }

func (h *hub) CheckAccessToken(token string) (time.Time, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[token] == nil {
		return time.Time{}, auth.ErrInvalidToken
	}
	return time.Time{}, nil
}

func (h *hub) OnAuthStateChange(fn func(auth.AuthEvent)) func() { return h.bus.Subscribe(fn) }

func (h *hub) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.profiles[id], nil
}

func (h *hub) GetPlatformRole(_ context.Context, id string) (models.PlatformRole, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p := h.profiles[id]; p != nil {
		return p.PlatformRole, nil
	}
	return models.PlatformRoleUser, nil
}

func (h *hub) ListByUser(_ context.Context, userID string) ([]*models.Membership, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.memberships[userID], nil
}

func (h *hub) Get(_ context.Context, orgID, userID string) (*models.Membership, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.memberships[userID] {
		if m.OrganizationID == orgID {
			return m, nil
		}
	}
	return nil, nil
}

func (h *hub) GetBySlug(_ context.Context, slug string) (*models.Organization, error) {
	for _, o := range h.orgs {
		if o.Slug == slug {
			return o, nil
		}
	}
	return nil, nil
}

func (h *hub) GetByID(_ context.Context, id string) (*models.Organization, error) {
	for _, o := range h.orgs {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, nil
}

func (h *hub) List(_ context.Context, _ string, _, _ int) ([]*models.Organization, int, error) {
	return h.orgs, len(h.orgs), nil
}

func (h *hub) UpdateStatus(context.Context, string, models.OrganizationStatus) error { return nil }

func (h *hub) GetCurrentForOrganization(_ context.Context, orgID string) (*models.OrganizationLicense, error) {
	return &models.OrganizationLicense{OrganizationID: orgID, Status: models.LicenseStatusActive, StartsAt: time.Now().Add(-time.Hour)}, nil
}

func (h *hub) GetTenantSettings(context.Context, string) (*models.TenantSettings, error) {
	return nil, nil
}

type fakeSetup struct{ completed bool }

func (f *fakeSetup) IsSetupCompleted(context.Context) (bool, error)    { return f.completed, nil }
func (f *fakeSetup) GetSetupTokenHash(context.Context) (string, error) { return "", nil }
func (f *fakeSetup) PromoteSuperAdmin(context.Context, string) (*models.Profile, error) {
	return nil, nil
}

// newTestRouter mounts the full /api/v1 route table over h
func newTestRouter(t *testing.T, h *hub) *gin.Engine {
	t.Helper()
	mgr := session.NewManager(session.Dependencies{Auth: h, Profiles: h, Memberships: h}, session.Config{ResolveTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Start(ctx)
	t.Cleanup(func() {
		cancel()
		mgr.Stop()
	})

	provider := tenant.NewProvider(h, h, h, h)
	cfg := &config.Config{}
	svc := &fakeSetup{}
	rs := &routeSet{
		guardCfg:       middleware.GuardConfig{LoginPath: "/login", WaitTimeout: time.Second, Tenants: provider},
		tenantProvider: provider,
		tenantWait:     time.Second,
		fileHeaders:    middleware.SecurityHeadersMiddleware(middleware.FileSecurityHeadersConfig(cfg.Security)),

		account:       account.NewHandlers(&cfg.Auth, nil, mgr, nil, nil),
		tenants:       tenants.NewHandlers(cfg, tenants.Deps{}),
		content:       content.NewHandlers(&cfg.Storage, nil, &readinessMockStorage{}, nil),
		notifications: notifications.NewHandlers(nil),
		dashboard:     admin.NewDashboardHandler(nil),
		platform: platformHandlers{
			tenants:  admin.NewTenantHandlers(h, nil),
			users:    admin.NewUserHandlers(nil, nil),
			settings: admin.NewSettingsHandlers(nil),
			audit:    admin.NewAuditHandlers(nil),
		},
		setup:         setup.NewHandlers(svc),
		setupStore:    svc,
		platformRoles: h,
	}

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.Use(middleware.SessionMiddleware(mgr, middleware.SessionConfig{WaitTimeout: time.Second}))
	rs.register(v1)
	return r
}

func TestRoutes_GuardedAreas(t *testing.T) {
	r := newTestRouter(t, newHub())

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"setup status is public", http.MethodGet, "/api/v1/setup/status", "", http.StatusOK},
		{"session is public", http.MethodGet, "/api/v1/session", "", http.StatusOK},
		{"public tenant", http.MethodGet, "/api/v1/public/tenants/acme", "", http.StatusOK},
		{"non public tenant is hidden", http.MethodGet, "/api/v1/public/tenants/hidden", "", http.StatusNotFound},
		{"apply needs a session", http.MethodPost, "/api/v1/public/tenants/acme/apply", "", http.StatusUnauthorized},
		{"notifications need a session", http.MethodGet, "/api/v1/notifications", "", http.StatusUnauthorized},

		{"tenant area anonymous", http.MethodGet, "/api/v1/t/acme", "", http.StatusUnauthorized},
		{"tenant area member", http.MethodGet, "/api/v1/t/acme", "tok-member", http.StatusOK},
		{"tenant area super admin", http.MethodGet, "/api/v1/t/acme", "tok-root", http.StatusOK},
		{"tenant admin member", http.MethodGet, "/api/v1/t/acme/admin/license", "tok-member", http.StatusUnauthorized},
		{"tenant admin owner", http.MethodGet, "/api/v1/t/acme/admin/license", "tok-owner", http.StatusOK},
		{"unknown tenant owner", http.MethodGet, "/api/v1/t/nope/admin/license", "tok-owner", http.StatusUnauthorized},
		{"unknown tenant super admin", http.MethodGet, "/api/v1/t/nope/admin/license", "tok-root", http.StatusNotFound},

		{"platform anonymous", http.MethodGet, "/api/v1/platform/tenants", "", http.StatusUnauthorized},
		{"platform owner", http.MethodGet, "/api/v1/platform/tenants", "tok-owner", http.StatusUnauthorized},
		{"platform super admin", http.MethodGet, "/api/v1/platform/tenants", "tok-root", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("%s %s = %d, want %d (body %s)", tt.method, tt.path, w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRoutes_DeniedAPIRequestCarriesLoginRedirect(t *testing.T) {
	r := newTestRouter(t, newHub())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/platform/tenants", nil))

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if want := "/login?redirect=%2Fapi%2Fv1%2Fplatform%2Ftenants"; body["redirect"] != want {
		t.Errorf("redirect = %q, want %q", body["redirect"], want)
	}
}

func TestRoutes_DownloadUsesFileHeaders(t *testing.T) {
	r := gin.New()
	cfg := &config.Config{}
	r.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security)))
	r.GET("/file", middleware.SecurityHeadersMiddleware(middleware.FileSecurityHeadersConfig(cfg.Security)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/file", nil))

	if got := w.Header().Get("Cross-Origin-Resource-Policy"); got != "cross-origin" {
		t.Errorf("Cross-Origin-Resource-Policy = %q, want cross-origin", got)
	}
}
