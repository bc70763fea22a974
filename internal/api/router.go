// Package api wires together all HTTP routes for the community hub backend.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated probes.
//   - /api/v1/auth, /api/v1/session and /api/v1/setup are reachable without a session.
//     Setup mutations carry their own one-time token check instead.
//   - /api/v1/public/tenants/:slug only resolves active public tenants.
//   - /api/v1/t/:slug is the tenant area. Every route there is behind RequireTenantRole,
//     with staff and admin sub-groups narrowing the role set.
//   - /api/v1/admin is the org admin area of the caller's active organization.
//   - /api/v1/platform is the super admin area behind RequireSuperAdmin.
//
// Session resolution runs for every /api/v1 request before any guard, so a guard and
// the handler behind it always see the same snapshot.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/community-hub/backend/internal/api/account"
	"github.com/community-hub/backend/internal/api/admin"
	"github.com/community-hub/backend/internal/api/content"
	"github.com/community-hub/backend/internal/api/notifications"
	"github.com/community-hub/backend/internal/api/setup"
	"github.com/community-hub/backend/internal/api/tenants"
	"github.com/community-hub/backend/internal/audit"
	"github.com/community-hub/backend/internal/auth"
	"github.com/community-hub/backend/internal/auth/oidc"
	"github.com/community-hub/backend/internal/config"
	"github.com/community-hub/backend/internal/db"
	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/db/repositories"
	"github.com/community-hub/backend/internal/guard"
	"github.com/community-hub/backend/internal/jobs"
	"github.com/community-hub/backend/internal/middleware"
	"github.com/community-hub/backend/internal/services"
	"github.com/community-hub/backend/internal/session"
	"github.com/community-hub/backend/internal/storage"
	"github.com/community-hub/backend/internal/tenant"

	// Import storage backends to register them
	_ "github.com/community-hub/backend/internal/storage/local"
	_ "github.com/community-hub/backend/internal/storage/s3"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	sessions     *session.Manager
	licenseJob   *jobs.LicenseExpiryJob
	eventBus     auth.EventBus
	shipper      *audit.MultiShipper
	redisClient  redis.UniversalClient
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.licenseJob != nil {
		bg.licenseJob.Stop()
	}
	if bg.sessions != nil {
		bg.sessions.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.eventBus != nil {
		if err := bg.eventBus.Close(); err != nil {
			slog.Warn("failed to close auth event bus", "error", err)
		}
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, sqlDB *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}
	ctx := context.Background()

	// Initialize storage backend
	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)

	// Initialize repositories
	xdb := db.Wrap(sqlDB)
	profileRepo := repositories.NewProfileRepository(sqlDB)
	membershipRepo := repositories.NewMembershipRepository(sqlDB)
	orgRepo := repositories.NewOrganizationRepository(sqlDB)
	auditRepo := repositories.NewAuditRepository(sqlDB)
	licenseRepo := repositories.NewLicenseRepository(xdb)
	settingsRepo := repositories.NewSettingsRepository(xdb)
	contentRepo := repositories.NewContentRepository(xdb)
	invitationRepo := repositories.NewInvitationRepository(xdb)
	notificationRepo := repositories.NewNotificationRepository(xdb)

	// Redis carries auth events, revocations and rate limits across replicas. Without
	// it each process keeps its own in-memory copies.
	var (
		bus         auth.EventBus
		revocations auth.RevocationList
	)
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bg.redisClient = client
		redisBus, err := auth.NewRedisBus(ctx, client, cfg.Redis.EventsChannel)
		if err != nil {
			log.Fatalf("Failed to subscribe to auth events: %v", err)
		}
		bus = redisBus
		revocations = auth.NewRedisRevocationList(client, cfg.Redis.KeyPrefix)
		slog.Info("using redis for auth events and revocations", "addr", cfg.Redis.Addr)
	} else {
		bus = auth.NewMemoryBus()
		revocations = auth.NewMemoryRevocationList()
	}
	bg.eventBus = bus

	authService := auth.NewService(profileRepo, bus, revocations, auth.ServiceConfig{
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
	})

	// Session stores live for the process; idle ones are evicted by the manager
	sessions := session.NewManager(session.Dependencies{
		Auth:        authService,
		Profiles:    profileRepo,
		Memberships: membershipRepo,
	}, session.Config{
		ResolveTimeout:  cfg.Session.ResolveTimeout,
		IdleTTL:         cfg.Session.IdleTTL,
		CleanupInterval: cfg.Session.CleanupInterval,
	})
	go sessions.Start(ctx)
	bg.sessions = sessions

	tenantProvider := tenant.NewProvider(orgRepo, membershipRepo, licenseRepo, settingsRepo)

	// Outbound mail is optional. The nil check keeps a nil *SMTPMailer out of the interface.
	var mailer services.Mailer
	if cfg.Notifications.EmailEnabled {
		if m := services.NewSMTPMailer(cfg.Notifications.SMTP); m != nil {
			mailer = m
		}
	}
	notifier := services.NewNotifier(notificationRepo, membershipRepo, profileRepo, mailer)

	// License expiry job
	licenseJob := jobs.NewLicenseExpiryJob(licenseRepo, orgRepo, notifier, &cfg.Notifications)
	go licenseJob.Start(ctx)
	bg.licenseJob = licenseJob

	// Audit logging
	var auditShipper audit.Shipper
	if cfg.Audit.Enabled {
		multi, err := audit.NewMultiShipper(cfg.Audit.Shippers)
		if err != nil {
			slog.Error("failed to initialize audit shippers", "error", err)
		} else if multi.Len() > 0 {
			auditShipper = multi
			bg.shipper = multi
		}
	}
	auditRecorder := audit.NewRecorder(auditRepo, auditShipper)

	setupService := services.NewSetupService(settingsRepo, profileRepo, authService)

	var oidcProvider account.OIDCProvider
	if cfg.Auth.OIDC.Enabled {
		p, err := oidc.NewProvider(ctx, &cfg.Auth.OIDC)
		if err != nil {
			slog.Error("OIDC provider unavailable, OIDC sign-in disabled", "error", err)
		} else {
			oidcProvider = p
		}
	}

	// Rate limiters
	newLimiter := func(rlCfg middleware.RateLimitConfig) middleware.Limiter {
		if bg.redisClient != nil {
			return middleware.NewRedisLimiter(bg.redisClient, cfg.Redis.KeyPrefix, rlCfg)
		}
		rl := middleware.NewRateLimiter(rlCfg)
		bg.rateLimiters = append(bg.rateLimiters, rl)
		return rl
	}
	var generalLimit, authLimit gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled {
		generalLimit = middleware.RateLimitMiddleware(newLimiter(middleware.DefaultRateLimitConfig(cfg.Security.RateLimiting)))
		authLimit = middleware.RateLimitMiddleware(newLimiter(middleware.AuthRateLimitConfig(cfg.Security.RateLimiting)))
	}

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security)))
	if generalLimit != nil {
		router.Use(generalLimit)
	}

	// Probes
	router.GET("/health", healthCheckHandler(sqlDB))
	router.GET("/ready", readinessHandler(sqlDB, storageBackend))
	router.GET("/version", versionHandler())

	routes := &routeSet{
		guardCfg: middleware.GuardConfig{
			LoginPath:   cfg.Auth.LoginPath,
			WaitTimeout: cfg.Session.ResolveTimeout,
			Tenants:     tenantProvider,
		},
		tenantProvider: tenantProvider,
		tenantWait:     cfg.Session.ResolveTimeout,
		authLimit:      authLimit,
		fileHeaders:    middleware.SecurityHeadersMiddleware(middleware.FileSecurityHeadersConfig(cfg.Security)),

		account: account.NewHandlers(&cfg.Auth, authService, sessions, membershipRepo, oidcProvider),
		tenants: tenants.NewHandlers(cfg, tenants.Deps{
			Organizations: orgRepo,
			Memberships:   membershipRepo,
			Plans:         licenseRepo,
			Settings:      settingsRepo,
			Invitations:   invitationRepo,
			Users:         authService,
			Notices:       notifier,
			Mailer:        mailer,
		}),
		content:       content.NewHandlers(&cfg.Storage, contentRepo, storageBackend, notifier),
		notifications: notifications.NewHandlers(notificationRepo),
		dashboard:     admin.NewDashboardHandler(contentRepo),
		platform: platformHandlers{
			tenants:  admin.NewTenantHandlers(orgRepo, licenseRepo),
			users:    admin.NewUserHandlers(profileRepo, authService),
			settings: admin.NewSettingsHandlers(settingsRepo),
			audit:    admin.NewAuditHandlers(auditRepo),
		},
		setup:         setup.NewHandlers(setupService),
		setupStore:    setupService,
		platformRoles: profileRepo,
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.SessionMiddleware(sessions, middleware.SessionConfig{
		CookieName:  cfg.Auth.CookieName,
		WaitTimeout: cfg.Session.ResolveTimeout,
	}))
	if cfg.Audit.Enabled {
		v1.Use(middleware.AuditMiddleware(auditRecorder, &cfg.Audit))
	}
	routes.register(v1)

	return router, bg
}

// platformHandlers groups the super admin handlers
type platformHandlers struct {
	tenants  *admin.TenantHandlers
	users    *admin.UserHandlers
	settings *admin.SettingsHandlers
	audit    *admin.AuditHandlers
}

// routeSet holds everything route registration needs, so it can run against any
// handler wiring.
type routeSet struct {
	guardCfg       middleware.GuardConfig
	tenantProvider *tenant.Provider
	tenantWait     time.Duration
	authLimit      gin.HandlerFunc
	fileHeaders    gin.HandlerFunc

	account       *account.Handlers
	tenants       *tenants.Handlers
	content       *content.Handlers
	notifications *notifications.Handlers
	dashboard     *admin.DashboardHandler
	platform      platformHandlers
	setup         *setup.Handlers
	setupStore    middleware.SetupStore
	platformRoles guard.PlatformRoleReader
}

func (rs *routeSet) guard(g *guard.Guard) gin.HandlerFunc {
	return middleware.RequireGuard(g, rs.guardCfg)
}

func (rs *routeSet) tenant(public bool) gin.HandlerFunc {
	return middleware.TenantMiddleware(rs.tenantProvider, middleware.TenantConfig{Public: public, WaitTimeout: rs.tenantWait})
}

// register mounts all /api/v1 routes on v1
func (rs *routeSet) register(v1 *gin.RouterGroup) {
	requireAuth := rs.guard(guard.RequireAuth())
	licensed := middleware.RequireActiveLicense()

	// First-run setup
	setupGroup := v1.Group("/setup")
	{
		setupGroup.GET("/status", rs.setup.GetSetupStatus)
		setupGroup.POST("/validate-token", middleware.SetupTokenMiddleware(rs.setupStore), rs.setup.ValidateToken)
		setupGroup.POST("/super-admin", middleware.SetupTokenMiddleware(rs.setupStore), rs.setup.PromoteSuperAdmin)
	}

	// Authentication
	authGroup := v1.Group("/auth")
	if rs.authLimit != nil {
		authGroup.Use(rs.authLimit)
	}
	{
		authGroup.POST("/signup", rs.account.SignUp())
		authGroup.POST("/signin", rs.account.SignIn())
		authGroup.POST("/refresh", rs.account.Refresh())
		authGroup.POST("/signout", rs.account.SignOut())
		authGroup.GET("/oidc/login", rs.account.OIDCLogin())
		authGroup.GET("/oidc/callback", rs.account.OIDCCallback())
	}
	v1.GET("/session", rs.account.Session())

	// Signed-in, not tenant scoped
	me := v1.Group("")
	me.Use(requireAuth)
	{
		me.GET("/me/memberships", rs.account.MyMemberships())
		me.POST("/tenants", rs.tenants.Register())
		me.POST("/invitations/accept", rs.tenants.AcceptInvitation())

		me.GET("/notifications", rs.notifications.List())
		me.GET("/notifications/unread-count", rs.notifications.UnreadCount())
		me.POST("/notifications/read-all", rs.notifications.MarkAllRead())
		me.POST("/notifications/:id/read", rs.notifications.MarkRead())
	}

	// Public tenant pages. The guard runs before tenant resolution on apply.
	public := v1.Group("/public/tenants/:slug")
	{
		public.GET("", rs.tenant(true), rs.tenants.PublicTenant())
		public.POST("/apply", requireAuth, rs.tenant(true), rs.tenants.Apply())
	}

	// Tenant area
	t := v1.Group("/t/:slug")

	member := t.Group("")
	member.Use(rs.guard(guard.RequireTenantRole(models.TenantRoles...)), rs.tenant(false))
	{
		member.GET("", rs.tenants.PublicTenant())

		member.GET("/announcements", rs.content.ListAnnouncements())
		member.GET("/posts", rs.content.ListPosts())
		member.POST("/posts", licensed, rs.content.CreatePost())
		member.DELETE("/posts/:id", rs.content.DeletePost())

		member.GET("/events", rs.content.ListEvents())
		member.GET("/events/:id", rs.content.GetEvent())
		member.POST("/events/:id/rsvp", licensed, rs.content.RSVP())

		member.GET("/programs", rs.content.ListPrograms())
		member.GET("/programs/:id", rs.content.GetProgram())
		member.POST("/programs/:id/enroll", licensed, rs.content.Enroll())

		member.GET("/folders", rs.content.ListFolders())
		member.GET("/resources", rs.content.ListResources())
		member.GET("/resources/:id/download", rs.fileHeaders, rs.content.DownloadResource())
	}

	staff := t.Group("")
	staff.Use(rs.guard(guard.RequireTenantRole(content.StaffRoles...)), rs.tenant(false))
	{
		staff.POST("/announcements", licensed, rs.content.CreateAnnouncement())
		staff.DELETE("/announcements/:id", rs.content.DeleteAnnouncement())

		staff.POST("/events", licensed, rs.content.CreateEvent())
		staff.GET("/events/:id/rsvps", rs.content.ListRSVPs())

		staff.POST("/programs", licensed, rs.content.CreateProgram())
		staff.PUT("/programs/:id/status", rs.content.SetProgramStatus())
		staff.GET("/programs/:id/enrollments", rs.content.ListEnrollments())
		staff.POST("/programs/:id/enrollments/:user_id/complete", rs.content.CompleteEnrollment())

		staff.POST("/folders", licensed, rs.content.CreateFolder())
		staff.POST("/resources", licensed, rs.content.UploadResource())
		staff.DELETE("/resources/:id", rs.content.DeleteResource())
	}

	tenantAdmin := t.Group("/admin")
	tenantAdmin.Use(rs.guard(guard.RequireTenantRole(models.RoleAdmin, models.RoleOwner)), rs.tenant(false))
	{
		tenantAdmin.GET("/license", rs.tenants.License())
		tenantAdmin.PUT("/branding", licensed, rs.tenants.UpdateBranding())
		tenantAdmin.GET("/settings", rs.tenants.GetSettings())
		tenantAdmin.PUT("/settings", licensed, rs.tenants.UpdateSettings())

		tenantAdmin.GET("/members", rs.tenants.ListMembers())
		tenantAdmin.PUT("/members/:user_id", rs.tenants.UpdateMember())

		tenantAdmin.GET("/invitations", rs.tenants.ListInvitations())
		tenantAdmin.POST("/invitations", licensed, rs.tenants.CreateInvitation())
		tenantAdmin.DELETE("/invitations/:id", rs.tenants.RevokeInvitation())
	}

	// Org admin area of the active organization
	orgAdmin := v1.Group("/admin")
	orgAdmin.Use(rs.guard(guard.RequireRole(models.RoleAdmin, models.RoleOwner)), rs.tenant(false))
	{
		orgAdmin.GET("/dashboard", rs.dashboard.Dashboard())
	}

	// Super admin area
	platform := v1.Group("/platform")
	platform.Use(rs.guard(guard.RequireSuperAdmin(rs.platformRoles)))
	{
		platform.GET("/tenants", rs.platform.tenants.ListTenants())
		platform.GET("/tenants/:id", rs.platform.tenants.GetTenant())
		platform.PUT("/tenants/:id/status", rs.platform.tenants.UpdateTenantStatus())
		platform.POST("/tenants/:id/license", rs.platform.tenants.AssignLicense())

		platform.GET("/plans", rs.platform.tenants.ListPlans())
		platform.POST("/plans", rs.platform.tenants.CreatePlan())

		platform.GET("/users", rs.platform.users.ListUsers())
		platform.POST("/users/:id/super-admin", rs.platform.users.GrantSuperAdmin())
		platform.DELETE("/users/:id/super-admin", rs.platform.users.RevokeSuperAdmin())

		platform.GET("/settings", rs.platform.settings.ListSettings())
		platform.PUT("/settings/:key", rs.platform.settings.PutSetting())

		platform.GET("/audit-logs", rs.platform.audit.ListAuditLogs())
	}
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(sqlDB *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a readiness gate fails when resource uploads and downloads would error.
func readinessHandler(sqlDB *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// A known-absent key exercises credentials and connectivity without writing
		if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// Version is the build version reported by /version; set with -ldflags at build time
var Version = "0.1.0"

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest emits one slog record per request. The output format (json or text) is
// chosen by the global handler installed in telemetry.SetupLogger.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	attrs := []slog.Attr{
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	}
	if userID := middleware.GetUserID(c); userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}

	level := slog.LevelInfo
	if c.Writer.Status() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
