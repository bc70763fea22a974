package tenants

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/auth"
	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/middleware"
)

const (
	invitationTokenPrefix = "hubinv_"
	defaultInvitationTTL  = 7 * 24 * time.Hour
)

// ListInvitations lists the tenant's invitations
// GET /api/v1/t/:slug/admin/invitations
func (h *Handlers) ListInvitations() gin.HandlerFunc {
	return func(c *gin.Context) {
		invs, err := h.Invitations.ListByOrganization(c.Request.Context(), middleware.GetTenant(c).Tenant.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list invitations"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"invitations": invs})
	}
}

type createInvitationRequest struct {
	Email string      `json:"email" binding:"required"`
	Role  models.Role `json:"role"`
}

// CreateInvitation invites an email address into the tenant. The raw token is returned
// once and, when mail is configured, sent to the invitee; only its digest is stored.
// POST /api/v1/t/:slug/admin/invitations
func (h *Handlers) CreateInvitation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createInvitationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
			return
		}
		addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
			return
		}
		if req.Role == "" {
			req.Role = models.RoleMember
		}
		if !models.IsTenantRole(req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		if req.Role == models.RoleOwner && !h.callerIsOwner(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "only owners can invite owners"})
			return
		}

		token, digest, err := auth.GenerateSecretToken(invitationTokenPrefix)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate invitation token"})
			return
		}
		ttl := h.cfg.Tenancy.InvitationTTL
		if ttl <= 0 {
			ttl = defaultInvitationTTL
		}

		ts := middleware.GetTenant(c)
		inv := &models.Invitation{
			OrganizationID: ts.Tenant.ID,
			Email:          strings.ToLower(addr.Address),
			Role:           req.Role,
			TokenHash:      digest,
			InvitedBy:      middleware.GetUserID(c),
			ExpiresAt:      time.Now().Add(ttl),
		}
		ctx := c.Request.Context()
		if err := h.Invitations.Create(ctx, inv); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invitation"})
			return
		}

		emailed := false
		if h.Mailer != nil {
			link := fmt.Sprintf("%s/invitations/accept?token=%s", strings.TrimRight(h.cfg.Server.GetPublicURL(), "/"), token)
			body := fmt.Sprintf("You have been invited to join %s as %s.\n\nAccept the invitation: %s\n\nThe link expires on %s.\n",
				ts.Tenant.Name, inv.Role, link, inv.ExpiresAt.UTC().Format(time.RFC1123))
			if err := h.Mailer.Send(ctx, []string{inv.Email}, "Invitation to "+ts.Tenant.Name, body); err != nil {
				slog.Warn("invitation email failed", "invitation_id", inv.ID, "error", err)
			} else {
				emailed = true
			}
		}

		c.JSON(http.StatusCreated, gin.H{
			"invitation": inv,
			"token":      token,
			"emailed":    emailed,
		})
	}
}

// RevokeInvitation withdraws a pending invitation
// DELETE /api/v1/t/:slug/admin/invitations/:id
func (h *Handlers) RevokeInvitation() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.Invitations.Revoke(c.Request.Context(), middleware.GetTenant(c).Tenant.ID, c.Param("id"))
		if err != nil {
			if isNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "invitation not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke invitation"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type acceptInvitationRequest struct {
	Token string `json:"token" binding:"required"`
}

// AcceptInvitation redeems an invitation token for the signed-in user, whose email
// must match the invited address.
// POST /api/v1/invitations/accept
func (h *Handlers) AcceptInvitation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req acceptInvitationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
			return
		}

		ctx := c.Request.Context()
		inv, err := h.Invitations.GetByTokenHash(ctx, auth.DigestToken(req.Token))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load invitation"})
			return
		}
		if inv == nil || inv.Status != models.InvitationPending {
			c.JSON(http.StatusNotFound, gin.H{"error": "invitation not found"})
			return
		}
		if inv.IsExpired() {
			c.JSON(http.StatusGone, gin.H{"error": "invitation expired"})
			return
		}

		snap := middleware.GetSession(c)
		if !strings.EqualFold(snap.User.Email, inv.Email) {
			c.JSON(http.StatusForbidden, gin.H{"error": "invitation was issued to a different email"})
			return
		}

		m, err := h.Invitations.Accept(ctx, inv, snap.User.ID)
		if err != nil {
			if isNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "invitation not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept invitation"})
			return
		}
		h.Users.NotifyUserUpdated(ctx, snap.User.ID)
		c.JSON(http.StatusOK, gin.H{"membership": m})
	}
}
