// Package admin serves the tenant admin dashboard and the platform administration
// endpoints reserved for super admins.
package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/db/repositories"
	"github.com/community-hub/backend/internal/middleware"
)

// StatsReader counts a tenant's members and content
type StatsReader interface {
	GetDashboardStats(ctx context.Context, orgID string) (*repositories.DashboardStats, error)
}

// DashboardHandler serves the admin dashboard of the caller's active organization
type DashboardHandler struct {
	stats StatsReader
}

// NewDashboardHandler creates a dashboard handler
func NewDashboardHandler(stats StatsReader) *DashboardHandler {
	return &DashboardHandler{stats: stats}
}

// @Summary      Admin dashboard
// @Description  Member and content counts for the active organization. Requires the admin or owner role.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "tenant, stats"
// @Failure      401  {object}  map[string]interface{}  "Authentication required"
// @Router       /api/v1/admin/dashboard [get]
// Dashboard returns the dashboard statistics
// GET /api/v1/admin/dashboard
func (h *DashboardHandler) Dashboard() gin.HandlerFunc {
	return func(c *gin.Context) {
		ts := middleware.GetTenant(c)
		stats, err := h.stats.GetDashboardStats(c.Request.Context(), ts.Tenant.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load dashboard statistics",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"tenant":  ts.Tenant,
			"license": ts.License,
			"stats":   stats,
		})
	}
}

// pagination reads ?page= and ?per_page= (default 20, max 100)
func pagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage, (page - 1) * perPage
}
