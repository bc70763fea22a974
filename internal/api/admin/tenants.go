package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/db/repositories"
)

// TenantDirectory lists and updates tenants across the platform
type TenantDirectory interface {
	List(ctx context.Context, status string, limit, offset int) ([]*models.Organization, int, error)
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	UpdateStatus(ctx context.Context, id string, status models.OrganizationStatus) error
}

// LicenseCatalog manages plans and tenant licenses
type LicenseCatalog interface {
	ListPlans(ctx context.Context) ([]*models.License, error)
	GetPlan(ctx context.Context, id string) (*models.License, error)
	CreatePlan(ctx context.Context, l *models.License) error
	GetCurrentForOrganization(ctx context.Context, orgID string) (*models.OrganizationLicense, error)
	Assign(ctx context.Context, ol *models.OrganizationLicense) error
}

// TenantHandlers serves platform tenant and license management
type TenantHandlers struct {
	tenants  TenantDirectory
	licenses LicenseCatalog
}

// NewTenantHandlers creates the platform tenant handlers
func NewTenantHandlers(tenants TenantDirectory, licenses LicenseCatalog) *TenantHandlers {
	return &TenantHandlers{tenants: tenants, licenses: licenses}
}

// @Summary      List tenants
// @Description  Paginated list of all tenants, optionally filtered by status. Super admin only.
// @Tags         Platform
// @Produce      json
// @Param        status    query  string  false  "active, suspended or pending"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        per_page  query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "tenants, pagination"
// @Router       /api/v1/platform/tenants [get]
// ListTenants lists tenants
// GET /api/v1/platform/tenants?status=&page=1&per_page=20
func (h *TenantHandlers) ListTenants() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)
		status := c.Query("status")
		if status != "" && !validOrgStatus(models.OrganizationStatus(status)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}

		tenants, total, err := h.tenants.List(c.Request.Context(), status, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tenants"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"tenants": tenants,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// GetTenant returns one tenant with its current license
// GET /api/v1/platform/tenants/:id
func (h *TenantHandlers) GetTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		org, err := h.tenants.GetByID(ctx, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load tenant"})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			return
		}
		license, err := h.licenses.GetCurrentForOrganization(ctx, org.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load license"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenant": org, "license": license})
	}
}

type tenantStatusRequest struct {
	Status models.OrganizationStatus `json:"status" binding:"required"`
}

// UpdateTenantStatus suspends or reactivates a tenant
// PUT /api/v1/platform/tenants/:id/status
func (h *TenantHandlers) UpdateTenantStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tenantStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil || !validOrgStatus(req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active, suspended or pending"})
			return
		}
		if err := h.tenants.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update tenant status"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
	}
}

func validOrgStatus(s models.OrganizationStatus) bool {
	switch s {
	case models.OrganizationStatusActive, models.OrganizationStatusSuspended, models.OrganizationStatusPending:
		return true
	}
	return false
}

// ListPlans lists license plans
// GET /api/v1/platform/plans
func (h *TenantHandlers) ListPlans() gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := h.licenses.ListPlans(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list plans"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"plans": plans})
	}
}

type planRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description *string  `json:"description"`
	MaxMembers  *int     `json:"max_members"`
	PriceCents  int      `json:"price_cents"`
	Features    []string `json:"features"`
}

// CreatePlan adds a license plan
// POST /api/v1/platform/plans
func (h *TenantHandlers) CreatePlan() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req planRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}
		if req.PriceCents < 0 || (req.MaxMembers != nil && *req.MaxMembers <= 0) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "price and member limit must be positive"})
			return
		}
		plan := &models.License{
			Name:        req.Name,
			Description: req.Description,
			MaxMembers:  req.MaxMembers,
			PriceCents:  req.PriceCents,
			Features:    req.Features,
		}
		if plan.Features == nil {
			plan.Features = []string{}
		}
		if err := h.licenses.CreatePlan(c.Request.Context(), plan); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create plan"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"plan": plan})
	}
}

type assignLicenseRequest struct {
	LicenseID string               `json:"license_id" binding:"required"`
	Status    models.LicenseStatus `json:"status"`
	EndsAt    *time.Time           `json:"ends_at"`
}

// AssignLicense gives a tenant a new license, cancelling the current one
// POST /api/v1/platform/tenants/:id/license
func (h *TenantHandlers) AssignLicense() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req assignLicenseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "license_id is required"})
			return
		}
		if req.Status == "" {
			req.Status = models.LicenseStatusActive
		}
		if req.Status != models.LicenseStatusActive && req.Status != models.LicenseStatusTrial {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be trial or active"})
			return
		}
		now := time.Now()
		if req.EndsAt != nil && !req.EndsAt.After(now) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ends_at must be in the future"})
			return
		}

		ctx := c.Request.Context()
		org, err := h.tenants.GetByID(ctx, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load tenant"})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			return
		}
		plan, err := h.licenses.GetPlan(ctx, req.LicenseID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load plan"})
			return
		}
		if plan == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown plan"})
			return
		}

		ol := &models.OrganizationLicense{
			OrganizationID: org.ID,
			LicenseID:      plan.ID,
			Status:         req.Status,
			StartsAt:       now,
			EndsAt:         req.EndsAt,
			LicenseName:    plan.Name,
			Features:       plan.Features,
		}
		if err := h.licenses.Assign(ctx, ol); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign license"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"license": ol})
	}
}
