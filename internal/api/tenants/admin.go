package tenants

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/middleware"
)

// License returns the tenant's current license and whether it grants access now
// GET /api/v1/t/:slug/admin/license
func (h *Handlers) License() gin.HandlerFunc {
	return func(c *gin.Context) {
		ts := middleware.GetTenant(c)
		c.JSON(http.StatusOK, gin.H{
			"license": ts.License,
			"active":  ts.LicenseActive(time.Now()),
		})
	}
}

type brandingRequest struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	LogoURL        *string `json:"logo_url"`
	PrimaryColor   *string `json:"primary_color"`
	SecondaryColor *string `json:"secondary_color"`
	IsPublic       *bool   `json:"is_public"`
}

// UpdateBranding changes the tenant's display fields. Omitted fields are kept.
// PUT /api/v1/t/:slug/admin/branding
func (h *Handlers) UpdateBranding() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req brandingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		org := *middleware.GetTenant(c).Tenant
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
				return
			}
			org.Name = name
		}
		if req.Description != nil {
			org.Description = req.Description
		}
		if req.LogoURL != nil {
			org.LogoURL = req.LogoURL
		}
		if req.PrimaryColor != nil {
			org.PrimaryColor = req.PrimaryColor
		}
		if req.SecondaryColor != nil {
			org.SecondaryColor = req.SecondaryColor
		}
		if req.IsPublic != nil {
			org.IsPublic = *req.IsPublic
		}

		if err := h.Organizations.UpdateBranding(c.Request.Context(), &org); err != nil {
			if isNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update branding"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenant": org})
	}
}

// GetSettings returns the tenant settings
// GET /api/v1/t/:slug/admin/settings
func (h *Handlers) GetSettings() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"settings": middleware.GetTenant(c).Settings})
	}
}

type settingsRequest struct {
	AllowPublicApplications *bool   `json:"allow_public_applications"`
	RequireApproval         *bool   `json:"require_approval"`
	WelcomeMessage          *string `json:"welcome_message"`
	Timezone                *string `json:"timezone"`
}

// UpdateSettings changes the tenant settings. Omitted fields are kept.
// PUT /api/v1/t/:slug/admin/settings
func (h *Handlers) UpdateSettings() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req settingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		ts := middleware.GetTenant(c)
		s := *ts.Settings
		s.OrganizationID = ts.Tenant.ID
		if req.AllowPublicApplications != nil {
			s.AllowPublicApplications = *req.AllowPublicApplications
		}
		if req.RequireApproval != nil {
			s.RequireApproval = *req.RequireApproval
		}
		if req.WelcomeMessage != nil {
			s.WelcomeMessage = req.WelcomeMessage
		}
		if req.Timezone != nil {
			if _, err := time.LoadLocation(*req.Timezone); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown timezone"})
				return
			}
			s.Timezone = *req.Timezone
		}

		if err := h.Settings.UpsertTenantSettings(c.Request.Context(), &s); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"settings": s})
	}
}

// ListMembers lists the tenant's memberships, optionally filtered by ?status=
// GET /api/v1/t/:slug/admin/members
func (h *Handlers) ListMembers() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		switch models.MembershipStatus(status) {
		case "", models.MembershipStatusActive, models.MembershipStatusInactive, models.MembershipStatusPending:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}

		members, err := h.Memberships.ListByOrganization(c.Request.Context(), middleware.GetTenant(c).Tenant.ID, status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list members"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": members})
	}
}

type updateMemberRequest struct {
	Role   *models.Role             `json:"role"`
	Status *models.MembershipStatus `json:"status"`
}

// UpdateMember changes a member's role or status. Approving a pending application
// notifies the applicant. The last active owner cannot be demoted or deactivated.
// PUT /api/v1/t/:slug/admin/members/:user_id
func (h *Handlers) UpdateMember() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateMemberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		ctx := c.Request.Context()
		ts := middleware.GetTenant(c)
		userID := c.Param("user_id")

		current, err := h.Memberships.Get(ctx, ts.Tenant.ID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load membership"})
			return
		}
		if current == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "membership not found"})
			return
		}

		role, status := current.Role, current.Status
		if req.Role != nil {
			if !models.IsTenantRole(*req.Role) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
				return
			}
			role = *req.Role
		}
		if req.Status != nil {
			switch *req.Status {
			case models.MembershipStatusActive, models.MembershipStatusInactive, models.MembershipStatusPending:
				status = *req.Status
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
				return
			}
		}

		// Only owners may grant or take away ownership
		if (role == models.RoleOwner) != (current.Role == models.RoleOwner) && !h.callerIsOwner(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "only owners can change ownership"})
			return
		}

		losingOwner := current.IsActive() && current.Role == models.RoleOwner &&
			(role != models.RoleOwner || status != models.MembershipStatusActive)
		if losingOwner {
			owners, err := h.Memberships.CountActiveWithRole(ctx, ts.Tenant.ID, models.RoleOwner)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count owners"})
				return
			}
			if owners <= 1 {
				c.JSON(http.StatusConflict, gin.H{"error": "a tenant must keep at least one active owner"})
				return
			}
		}

		if err := h.Memberships.Update(ctx, ts.Tenant.ID, userID, role, status); err != nil {
			if isNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "membership not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update membership"})
			return
		}

		if current.Status == models.MembershipStatusPending && status == models.MembershipStatusActive {
			if err := h.Notices.MembershipApproved(ctx, ts.Tenant, userID); err != nil {
				slog.Warn("membership approval notification failed", "user_id", userID, "error", err)
			}
		}
		h.Users.NotifyUserUpdated(ctx, userID)

		updated := *current
		updated.Role, updated.Status = role, status
		c.JSON(http.StatusOK, gin.H{"membership": updated})
	}
}

// callerIsOwner reports whether the caller owns the tenant or is a super admin
func (h *Handlers) callerIsOwner(c *gin.Context) bool {
	if middleware.GetSession(c).IsSuperAdmin() {
		return true
	}
	m := middleware.GetTenant(c).Membership
	return m.IsActive() && m.Role == models.RoleOwner
}
