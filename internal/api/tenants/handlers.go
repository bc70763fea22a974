// Package tenants implements tenant registration, the public tenant page, membership
// applications and approval, tenant administration and invitations.
package tenants

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/config"
	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/db/repositories"
	"github.com/community-hub/backend/internal/middleware"
	"github.com/community-hub/backend/internal/services"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// OrganizationStore reads and writes tenants
type OrganizationStore interface {
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
	Register(ctx context.Context, reg *repositories.Registration) error
	UpdateBranding(ctx context.Context, org *models.Organization) error
}

// MembershipStore reads and writes memberships
type MembershipStore interface {
	Get(ctx context.Context, orgID, userID string) (*models.Membership, error)
	ListByOrganization(ctx context.Context, orgID, status string) ([]*models.MemberWithProfile, error)
	Upsert(ctx context.Context, m *models.Membership) error
	Update(ctx context.Context, orgID, userID string, role models.Role, status models.MembershipStatus) error
	CountActiveWithRole(ctx context.Context, orgID string, role models.Role) (int, error)
}

// PlanLookup finds license plans by name
type PlanLookup interface {
	GetPlanByName(ctx context.Context, name string) (*models.License, error)
}

// SettingsStore writes tenant settings
type SettingsStore interface {
	UpsertTenantSettings(ctx context.Context, s *models.TenantSettings) error
}

// InvitationStore persists invitations
type InvitationStore interface {
	Create(ctx context.Context, inv *models.Invitation) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Invitation, error)
	ListByOrganization(ctx context.Context, orgID string) ([]*models.Invitation, error)
	Revoke(ctx context.Context, orgID, id string) error
	Accept(ctx context.Context, inv *models.Invitation, userID string) (*models.Membership, error)
}

// UserNotifier tells live sessions that a user's memberships changed
type UserNotifier interface {
	NotifyUserUpdated(ctx context.Context, userID string)
}

// MembershipNotices notifies users about their membership
type MembershipNotices interface {
	MembershipApproved(ctx context.Context, org *models.Organization, userID string) error
}

// Deps are the collaborators of the tenant handlers
type Deps struct {
	Organizations OrganizationStore
	Memberships   MembershipStore
	Plans         PlanLookup
	Settings      SettingsStore
	Invitations   InvitationStore
	Users         UserNotifier
	Notices       MembershipNotices
	// Mailer is optional; without it invitation tokens are only returned to the caller
	Mailer services.Mailer
}

// Handlers serves the tenant endpoints
type Handlers struct {
	cfg *config.Config
	Deps
}

// NewHandlers creates the tenant handlers
func NewHandlers(cfg *config.Config, deps Deps) *Handlers {
	return &Handlers{cfg: cfg, Deps: deps}
}

// PublicTenant returns the public view of a tenant resolved by TenantMiddleware
// GET /api/v1/public/tenants/:slug
func (h *Handlers) PublicTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		ts := middleware.GetTenant(c)
		c.JSON(http.StatusOK, gin.H{
			"tenant": ts.Tenant,
			"settings": gin.H{
				"allow_public_applications": ts.Settings.AllowPublicApplications,
				"welcome_message":           ts.Settings.WelcomeMessage,
			},
			"membership": ts.Membership,
		})
	}
}

type registerRequest struct {
	Slug        string  `json:"slug" binding:"required"`
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
	IsPublic    bool    `json:"is_public"`
}

// Register creates a tenant owned by the caller, on a trial of the default plan
// POST /api/v1/tenants
func (h *Handlers) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "slug and name are required"})
			return
		}
		req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
		if !slugPattern.MatchString(req.Slug) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "slug must be 3-63 lowercase letters, digits or hyphens"})
			return
		}

		ctx := c.Request.Context()
		existing, err := h.Organizations.GetBySlug(ctx, req.Slug)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check slug"})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "slug already taken"})
			return
		}

		reg := &repositories.Registration{
			Organization: &models.Organization{
				Slug:        req.Slug,
				Name:        strings.TrimSpace(req.Name),
				Description: req.Description,
				IsPublic:    req.IsPublic,
				Status:      models.OrganizationStatusActive,
			},
			OwnerID: middleware.GetUserID(c),
		}
		if name := h.cfg.Tenancy.DefaultPlan; name != "" {
			plan, err := h.Plans.GetPlanByName(ctx, name)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load default plan"})
				return
			}
			if plan != nil {
				reg.LicenseID = plan.ID
				if h.cfg.Tenancy.TrialDays > 0 {
					ends := time.Now().AddDate(0, 0, h.cfg.Tenancy.TrialDays)
					reg.TrialEndsAt = &ends
				}
			} else {
				slog.Warn("default plan not found; tenant registered without license", "plan", name)
			}
		}

		if err := h.Organizations.Register(ctx, reg); err != nil {
			slog.Error("tenant registration failed", "slug", req.Slug, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register tenant"})
			return
		}
		h.Users.NotifyUserUpdated(ctx, reg.OwnerID)
		c.JSON(http.StatusCreated, gin.H{"tenant": reg.Organization})
	}
}

// Apply asks to join a public tenant. The membership starts pending unless the tenant
// admits applicants without approval.
// POST /api/v1/public/tenants/:slug/apply
func (h *Handlers) Apply() gin.HandlerFunc {
	return func(c *gin.Context) {
		ts := middleware.GetTenant(c)
		if !ts.Settings.AllowPublicApplications {
			c.JSON(http.StatusForbidden, gin.H{"error": "this tenant does not accept applications"})
			return
		}
		if ts.Membership != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "already a member or applicant", "membership": ts.Membership})
			return
		}

		m := &models.Membership{
			OrganizationID: ts.Tenant.ID,
			UserID:         middleware.GetUserID(c),
			Role:           models.RoleMember,
			Status:         models.MembershipStatusPending,
		}
		if !ts.Settings.RequireApproval {
			m.Status = models.MembershipStatusActive
		}
		ctx := c.Request.Context()
		if err := h.Memberships.Upsert(ctx, m); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit application"})
			return
		}
		if m.IsActive() {
			h.Users.NotifyUserUpdated(ctx, m.UserID)
		}
		c.JSON(http.StatusCreated, gin.H{"membership": m})
	}
}

// isNotFound reports a write that matched nothing
func isNotFound(err error) bool {
	return errors.Is(err, repositories.ErrNotFound)
}
