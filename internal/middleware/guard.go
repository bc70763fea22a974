package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/guard"
	"github.com/community-hub/backend/internal/session"
	"github.com/community-hub/backend/internal/tenant"
)

// GuardConfig is shared by all guarded routes
type GuardConfig struct {
	LoginPath   string
	WaitTimeout time.Duration
	Tenants     *tenant.Provider
}

// RequireGuard lets the request through only when g allows it. Denials redirect
// browser routes to the login page and answer API routes with 401 plus the same
// redirect target; pending state answers 503 so the client retries instead of being
// sent to login early.
func RequireGuard(g *guard.Guard, cfg GuardConfig) gin.HandlerFunc {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Second
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.WaitTimeout)
		defer cancel()

		src := sessionSource(c)
		var load guard.TenantLoader
		if g.NeedsTenant() && cfg.Tenants != nil {
			load = func(ctx context.Context, snap session.Snapshot) *tenant.Snapshot {
				return resolveTenant(ctx, c, cfg.Tenants, snap, false)
			}
		}

		switch g.Mount().Decide(ctx, src, load) {
		case guard.Allow:
			// the super admin path may have refreshed the store
			if s, ok := src.(*session.Store); ok {
				setSession(c, s.Snapshot())
			}
			c.Next()
		case guard.Pending:
			respondPending(c)
		default:
			respondDenied(c, cfg.LoginPath)
		}
	}
}

func respondPending(c *gin.Context) {
	c.Header("Retry-After", "1")
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
		"error": "authorization state is still loading",
	})
}

func respondDenied(c *gin.Context, loginPath string) {
	target := guard.LoginRedirect(loginPath, c.Request.URL.RequestURI())
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":    "authentication required",
			"redirect": target,
		})
		return
	}
	c.Redirect(http.StatusFound, target)
	c.Abort()
}
