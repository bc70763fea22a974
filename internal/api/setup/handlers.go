// Package setup implements the first-run setup endpoints. They authenticate with the
// setup token printed at startup (not a session) and are permanently disabled once the
// first super admin exists.
package setup

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/services"
)

// Service is the setup state machine
type Service interface {
	IsSetupCompleted(ctx context.Context) (bool, error)
	PromoteSuperAdmin(ctx context.Context, email string) (*models.Profile, error)
}

// Handlers holds the setup endpoint dependencies
type Handlers struct {
	svc Service
}

// NewHandlers creates the setup handlers
func NewHandlers(svc Service) *Handlers {
	return &Handlers{svc: svc}
}

// @Summary      Get setup status
// @Description  Reports whether first-run setup has completed. No authentication required.
// @Tags         Setup
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "setup_completed"
// @Router       /api/v1/setup/status [get]
func (h *Handlers) GetSetupStatus(c *gin.Context) {
	done, err := h.svc.IsSetupCompleted(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get setup status"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"setup_completed": done})
}

// @Summary      Validate setup token
// @Description  Succeeds when the SetupToken authorization header is valid and setup is pending.
// @Tags         Setup
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "valid"
// @Failure      401  {object}  map[string]interface{}  "Invalid setup token"
// @Failure      403  {object}  map[string]interface{}  "Setup already completed"
// @Router       /api/v1/setup/validate-token [post]
func (h *Handlers) ValidateToken(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

type superAdminRequest struct {
	Email string `json:"email" binding:"required"`
}

// @Summary      Promote the first super admin
// @Description  Grants super_admin to the already signed-up account with the given email and completes setup.
// @Tags         Setup
// @Accept       json
// @Produce      json
// @Param        body  body  superAdminRequest  true  "Account email"
// @Success      200  {object}  map[string]interface{}  "user"
// @Failure      404  {object}  map[string]interface{}  "No account with that email"
// @Failure      409  {object}  map[string]interface{}  "Setup already completed"
// @Router       /api/v1/setup/super-admin [post]
func (h *Handlers) PromoteSuperAdmin(c *gin.Context) {
	var req superAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	p, err := h.svc.PromoteSuperAdmin(c.Request.Context(), req.Email)
	switch {
	case errors.Is(err, services.ErrSetupCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": "Setup has already been completed"})
		return
	case errors.Is(err, services.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no account with that email; sign up first"})
		return
	case err != nil:
		slog.Error("setup: failed to promote super admin", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to promote super admin"})
		return
	}

	slog.Info("setup completed", "super_admin", p.Email)
	c.JSON(http.StatusOK, gin.H{
		"message": "Setup completed. Sign in to reach the platform admin area.",
		"user":    p,
	})
}
