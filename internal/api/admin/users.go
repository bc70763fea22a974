package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/middleware"
)

// ProfileDirectory reads profiles and manages their platform role
type ProfileDirectory interface {
	ListProfiles(ctx context.Context, search string, limit, offset int) ([]*models.Profile, error)
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	SetPlatformRole(ctx context.Context, id string, role models.PlatformRole) error
	CountSuperAdmins(ctx context.Context) (int, error)
}

// UserNotifier tells live sessions that a user's authorization data changed
type UserNotifier interface {
	NotifyUserUpdated(ctx context.Context, userID string)
}

// UserHandlers serves platform user management
type UserHandlers struct {
	profiles ProfileDirectory
	users    UserNotifier
}

// NewUserHandlers creates the platform user handlers
func NewUserHandlers(profiles ProfileDirectory, users UserNotifier) *UserHandlers {
	return &UserHandlers{profiles: profiles, users: users}
}

// ListUsers lists profiles, optionally filtered by ?search= on email or name
// GET /api/v1/platform/users?search=&page=1&per_page=20
func (h *UserHandlers) ListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)
		profiles, err := h.profiles.ListProfiles(c.Request.Context(), strings.TrimSpace(c.Query("search")), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"users": profiles,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
			},
		})
	}
}

// GrantSuperAdmin gives a profile the super_admin platform role
// POST /api/v1/platform/users/:id/super-admin
func (h *UserHandlers) GrantSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		p, err := h.profiles.GetProfile(ctx, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}
		if p == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		if p.IsSuperAdmin() {
			c.JSON(http.StatusOK, gin.H{"user": p})
			return
		}
		if err := h.setRole(ctx, p.ID, models.PlatformRoleSuperAdmin); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update platform role"})
			return
		}
		p.PlatformRole = models.PlatformRoleSuperAdmin
		c.JSON(http.StatusOK, gin.H{"user": p})
	}
}

// RevokeSuperAdmin returns a super admin to the user platform role. Super admins
// cannot revoke themselves and the last super admin cannot be revoked.
// DELETE /api/v1/platform/users/:id/super-admin
func (h *UserHandlers) RevokeSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")
		if id == middleware.GetUserID(c) {
			c.JSON(http.StatusConflict, gin.H{"error": "cannot revoke your own super admin role"})
			return
		}

		p, err := h.profiles.GetProfile(ctx, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}
		if p == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		if !p.IsSuperAdmin() {
			c.JSON(http.StatusOK, gin.H{"user": p})
			return
		}

		n, err := h.profiles.CountSuperAdmins(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count super admins"})
			return
		}
		if n <= 1 {
			c.JSON(http.StatusConflict, gin.H{"error": "the platform must keep at least one super admin"})
			return
		}

		if err := h.setRole(ctx, p.ID, models.PlatformRoleUser); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update platform role"})
			return
		}
		p.PlatformRole = models.PlatformRoleUser
		c.JSON(http.StatusOK, gin.H{"user": p})
	}
}

func (h *UserHandlers) setRole(ctx context.Context, id string, role models.PlatformRole) error {
	if err := h.profiles.SetPlatformRole(ctx, id, role); err != nil {
		return err
	}
	h.users.NotifyUserUpdated(ctx, id)
	return nil
}
