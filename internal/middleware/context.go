package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/guard"
	"github.com/community-hub/backend/internal/session"
	"github.com/community-hub/backend/internal/tenant"
)

// Context keys set by the middleware in this package
const (
	SessionKey      = "session"
	SessionStoreKey = "session_store"
	AccessTokenKey  = "access_token"
	TenantKey       = "tenant"
	UserIDKey       = "user_id"
	OrgIDKey        = "organization_id"
)

// GetSession returns the session snapshot resolved for the request. Requests that did
// not pass through SessionMiddleware read as anonymous.
func GetSession(c *gin.Context) session.Snapshot {
	if v, ok := c.Get(SessionKey); ok {
		if snap, ok := v.(session.Snapshot); ok {
			return snap
		}
	}
	return session.Snapshot{}
}

// GetUserID returns the authenticated user id, or "" when anonymous
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetAccessToken returns the raw token the request authenticated with
func GetAccessToken(c *gin.Context) string {
	return c.GetString(AccessTokenKey)
}

// GetTenant returns the resolved tenant snapshot, or nil when none was resolved
func GetTenant(c *gin.Context) *tenant.Snapshot {
	if v, ok := c.Get(TenantKey); ok {
		if ts, ok := v.(*tenant.Snapshot); ok {
			return ts
		}
	}
	return nil
}

// sessionSource returns the store behind the request, or a fixed anonymous source
func sessionSource(c *gin.Context) guard.SessionSource {
	if v, ok := c.Get(SessionStoreKey); ok {
		if s, ok := v.(*session.Store); ok {
			return s
		}
	}
	return anonymousSource{}
}

type anonymousSource struct{}

func (anonymousSource) Wait(context.Context) session.Snapshot { return session.Snapshot{} }
func (anonymousSource) Refresh(context.Context) session.Snapshot { return session.Snapshot{} }
