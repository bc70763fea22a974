package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/session"
	"github.com/community-hub/backend/internal/tenant"
)

// TenantParam is the route parameter carrying the tenant slug
const TenantParam = "slug"

// TenantConfig controls tenant resolution for a route group
type TenantConfig struct {
	// Public routes only resolve active public tenants
	Public      bool
	WaitTimeout time.Duration
}

// TenantMiddleware resolves the tenant named by the :slug parameter, or the session's
// active organization on routes without one. An unresolvable tenant answers 404.
// A tenant already resolved by a guard is reused.
func TenantMiddleware(provider *tenant.Provider, cfg TenantConfig) gin.HandlerFunc {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Second
	}
	return func(c *gin.Context) {
		ts := GetTenant(c)
		if ts == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.WaitTimeout)
			ts = resolveTenant(ctx, c, provider, GetSession(c), cfg.Public)
			cancel()
		}

		switch {
		case ts.Loading:
			respondPending(c)
		case ts.NotFound:
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		default:
			c.Set(OrgIDKey, ts.Tenant.ID)
			c.Next()
		}
	}
}

// resolveTenant refreshes the tenant context for the request and stores it on c
func resolveTenant(ctx context.Context, c *gin.Context, provider *tenant.Provider, snap session.Snapshot, public bool) *tenant.Snapshot {
	key := tenant.Key{Slug: c.Param(TenantParam)}
	if key.Slug == "" {
		key.OrganizationID = snap.OrganizationID
	}
	userID := ""
	if snap.Authenticated() {
		userID = snap.User.ID
	}

	ts := provider.Context(key, userID, public).Refresh(ctx)
	if !ts.Loading {
		c.Set(TenantKey, ts)
	}
	return ts
}

// RequireActiveLicense gates tenant mutations. A tenant that is not active (suspended or
// pending) is refused with 403; a license that is not trial/active or has lapsed is
// refused with 402. Super admins are not gated.
func RequireActiveLicense() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetSession(c).IsSuperAdmin() {
			c.Next()
			return
		}
		ts := GetTenant(c)
		if ts != nil && ts.Tenant != nil && ts.Tenant.Status != models.OrganizationStatusActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "tenant not active", "status": ts.Tenant.Status})
			return
		}
		if ts == nil || !ts.LicenseActive(time.Now()) {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "license inactive"})
			return
		}
		c.Next()
	}
}
