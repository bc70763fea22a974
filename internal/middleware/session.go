// Package middleware provides the Gin middleware of the hub: session resolution, route
// guards, tenant resolution and license gating, rate limiting, security headers,
// request ids, metrics and audit logging.
//
// Ordering is set up in internal/api/router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → Security → RateLimit → Session → Guard → Tenant → License → Audit → Handler
//
// Session resolution runs for every API request, so guards and handlers read the same
// snapshot for the whole request.
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/auth"
	"github.com/community-hub/backend/internal/session"
)

// SessionConfig controls how a request's session is located and how long the
// middleware waits for an initializing store.
type SessionConfig struct {
	CookieName  string
	WaitTimeout time.Duration
}

// SessionMiddleware attaches the session store for the request's token and waits,
// bounded by WaitTimeout, for its first resolution. A store still loading after the
// wait is left for the guards to report as pending.
func SessionMiddleware(manager *session.Manager, cfg SessionConfig) gin.HandlerFunc {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Second
	}
	return func(c *gin.Context) {
		token := requestToken(c, cfg.CookieName)
		store := manager.Get(token)
		if store == nil {
			c.Set(SessionKey, session.Snapshot{})
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.WaitTimeout)
		snap := store.Wait(ctx)
		cancel()

		c.Set(SessionStoreKey, store)
		c.Set(AccessTokenKey, token)
		setSession(c, snap)
		c.Next()
	}
}

func setSession(c *gin.Context, snap session.Snapshot) {
	c.Set(SessionKey, snap)
	if snap.Authenticated() {
		c.Set(UserIDKey, snap.User.ID)
	}
	if snap.OrganizationID != "" {
		c.Set(OrgIDKey, snap.OrganizationID)
	}
}

// requestToken reads the bearer token, falling back to the session cookie
func requestToken(c *gin.Context, cookieName string) string {
	if token, err := auth.ExtractBearerToken(c.GetHeader("Authorization")); err == nil {
		return token
	}
	if cookieName == "" {
		return ""
	}
	token, err := c.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return token
}
