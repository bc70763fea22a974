package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/db/repositories"
)

// AuditReader queries the audit log
type AuditReader interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
}

// AuditHandlers serves audit log queries
type AuditHandlers struct {
	logs AuditReader
}

// NewAuditHandlers creates the audit log handlers
func NewAuditHandlers(logs AuditReader) *AuditHandlers {
	return &AuditHandlers{logs: logs}
}

// @Summary      List audit logs
// @Description  Filtered, paginated audit log. Dates are RFC 3339. Super admin only.
// @Tags         Platform
// @Produce      json
// @Param        user_id          query  string  false  "Actor"
// @Param        organization_id  query  string  false  "Tenant"
// @Param        action           query  string  false  "e.g. POST /api/v1/t/:slug/announcements"
// @Param        resource_type    query  string  false  "e.g. announcement"
// @Param        start_date       query  string  false  "RFC 3339"
// @Param        end_date         query  string  false  "RFC 3339"
// @Success      200  {object}  map[string]interface{}  "logs, pagination"
// @Router       /api/v1/platform/audit-logs [get]
// ListAuditLogs lists audit entries
// GET /api/v1/platform/audit-logs
func (h *AuditHandlers) ListAuditLogs() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		var f repositories.AuditFilters
		f.UserID = optional(c, "user_id")
		f.OrganizationID = optional(c, "organization_id")
		f.Action = optional(c, "action")
		f.ResourceType = optional(c, "resource_type")
		for param, dst := range map[string]**time.Time{"start_date": &f.StartDate, "end_date": &f.EndDate} {
			v := c.Query(param)
			if v == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param + ", want RFC 3339"})
				return
			}
			*dst = &t
		}

		logs, total, err := h.logs.ListAuditLogs(c.Request.Context(), f, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit logs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

func optional(c *gin.Context, param string) *string {
	if v := c.Query(param); v != "" {
		return &v
	}
	return nil
}
