// audit.go provides Gin middleware that records write operations to the audit log,
// with optional shipping to external audit destinations.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/audit"
	"github.com/community-hub/backend/internal/config"
)

// AuditRecorder accepts audit entries
type AuditRecorder interface {
	Record(entry *audit.LogEntry)
}

// AuditMiddleware records requests after they complete. Without a config only
// successful writes are recorded.
func AuditMiddleware(recorder AuditRecorder, auditCfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if !shouldAudit(c.Request.Method, c.Writer.Status(), auditCfg) {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		params := make(map[string]string, len(c.Params))
		for _, p := range c.Params {
			params[p.Key] = p.Value
		}
		action, resourceType, resourceID := audit.Classify(c.Request.Method, route, params)

		orgID := c.GetString(OrgIDKey)
		if orgID == "" {
			if t := GetTenant(c); t != nil && t.Tenant != nil {
				orgID = t.Tenant.ID
			}
		}

		metadata := map[string]interface{}{
			"status_code": c.Writer.Status(),
			"path":        c.Request.URL.Path,
		}
		if slug := params[TenantParam]; slug != "" {
			metadata["tenant_slug"] = slug
		}

		recorder.Record(&audit.LogEntry{
			Timestamp:      time.Now(),
			Action:         action,
			UserID:         GetUserID(c),
			OrganizationID: orgID,
			ResourceType:   resourceType,
			ResourceID:     resourceID,
			IPAddress:      c.ClientIP(),
			StatusCode:     c.Writer.Status(),
			Metadata:       metadata,
		})
	}
}

func shouldAudit(method string, status int, cfg *config.AuditConfig) bool {
	if method == http.MethodOptions || method == http.MethodHead {
		return false
	}
	isRead := method == http.MethodGet
	isFailed := status >= 400

	if cfg == nil {
		return !isRead && !isFailed
	}
	if !cfg.Enabled {
		return false
	}
	if isRead && !cfg.LogReadOperations {
		return false
	}
	if isFailed && !cfg.LogFailedRequests {
		return false
	}
	return true
}
