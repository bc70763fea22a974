// Package content serves the tenant-scoped content areas: announcements, the member
// feed, events with RSVPs, programs with enrollments, and shared resources.
package content

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/auth"
	"github.com/community-hub/backend/internal/config"
	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/db/repositories"
	"github.com/community-hub/backend/internal/middleware"
	"github.com/community-hub/backend/internal/storage"
)

// StaffRoles may manage tenant content
var StaffRoles = []models.Role{models.RoleSupervisor, models.RoleLeader, models.RoleAdmin, models.RoleOwner}

// Store is the content persistence used by the handlers
type Store interface {
	ListAnnouncements(ctx context.Context, orgID string, limit, offset int) ([]*models.Announcement, error)
	CreateAnnouncement(ctx context.Context, a *models.Announcement) error
	DeleteAnnouncement(ctx context.Context, orgID, id string) error

	ListPosts(ctx context.Context, orgID string, limit, offset int) ([]*models.Post, error)
	CreatePost(ctx context.Context, p *models.Post) error
	GetPost(ctx context.Context, orgID, id string) (*models.Post, error)
	DeletePost(ctx context.Context, orgID, id string) error

	ListUpcomingEvents(ctx context.Context, orgID string, since time.Time, limit int) ([]*models.Event, error)
	GetEvent(ctx context.Context, orgID, id string) (*models.Event, error)
	CreateEvent(ctx context.Context, e *models.Event) error
	UpsertRSVP(ctx context.Context, rsvp *models.RSVP) error
	ListRSVPs(ctx context.Context, eventID string) ([]*models.RSVP, error)

	ListPrograms(ctx context.Context, orgID string, includeDrafts bool) ([]*models.Program, error)
	GetProgram(ctx context.Context, orgID, id string) (*models.Program, error)
	CreateProgram(ctx context.Context, p *models.Program) error
	SetProgramStatus(ctx context.Context, orgID, id, status string) error
	Enroll(ctx context.Context, programID, userID string) (*models.Enrollment, error)
	CompleteEnrollment(ctx context.Context, programID, userID string) error
	ListEnrollments(ctx context.Context, programID string) ([]*models.Enrollment, error)

	ListFolders(ctx context.Context, orgID string) ([]*models.ResourceFolder, error)
	CreateFolder(ctx context.Context, f *models.ResourceFolder) error
	ListResources(ctx context.Context, orgID string, folderID *string) ([]*models.Resource, error)
	GetResource(ctx context.Context, orgID, id string) (*models.Resource, error)
	CreateResource(ctx context.Context, res *models.Resource) error
	DeleteResource(ctx context.Context, orgID, id string) error
}

// AnnouncementNotifier fans an announcement out to the tenant's members
type AnnouncementNotifier interface {
	AnnouncementPublished(ctx context.Context, org *models.Organization, a *models.Announcement) (int, error)
}

// Handlers serves the content endpoints
type Handlers struct {
	store    Store
	files    storage.Storage
	notifier AnnouncementNotifier
	maxBytes int64
}

// NewHandlers creates the content handlers
func NewHandlers(cfg *config.StorageConfig, store Store, files storage.Storage, notifier AnnouncementNotifier) *Handlers {
	maxMB := cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 25
	}
	return &Handlers{store: store, files: files, notifier: notifier, maxBytes: maxMB << 20}
}

// page reads ?limit= and ?offset=, defaulting to 20 and capping at 100
func page(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// isStaff reports whether the caller may manage content in the resolved tenant
func isStaff(c *gin.Context) bool {
	if middleware.GetSession(c).IsSuperAdmin() {
		return true
	}
	m := middleware.GetTenant(c).Membership
	return m.IsActive() && auth.HasAnyRole(m.Role, StaffRoles...)
}

func orgID(c *gin.Context) string {
	return middleware.GetTenant(c).Tenant.ID
}

func isNotFound(err error) bool {
	return errors.Is(err, repositories.ErrNotFound)
}

// ============================================================================
// Announcements
// ============================================================================

// ListAnnouncements returns the tenant's announcements, pinned first
// GET /api/v1/t/:slug/announcements
func (h *Handlers) ListAnnouncements() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := page(c)
		list, err := h.store.ListAnnouncements(c.Request.Context(), orgID(c), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list announcements"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"announcements": list})
	}
}

type announcementRequest struct {
	Title  string `json:"title" binding:"required"`
	Body   string `json:"body" binding:"required"`
	Pinned bool   `json:"pinned"`
}

// CreateAnnouncement publishes an announcement and notifies the tenant's members
// POST /api/v1/t/:slug/announcements
func (h *Handlers) CreateAnnouncement() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req announcementRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title and body are required"})
			return
		}

		ctx := c.Request.Context()
		ts := middleware.GetTenant(c)
		a := &models.Announcement{
			OrganizationID: ts.Tenant.ID,
			AuthorID:       middleware.GetUserID(c),
			Title:          strings.TrimSpace(req.Title),
			Body:           req.Body,
			Pinned:         req.Pinned,
		}
		if err := h.store.CreateAnnouncement(ctx, a); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create announcement"})
			return
		}

		notified, err := h.notifier.AnnouncementPublished(ctx, ts.Tenant, a)
		if err != nil {
			slog.Warn("announcement notification failed", "announcement_id", a.ID, "error", err)
		}
		c.JSON(http.StatusCreated, gin.H{"announcement": a, "notified": notified})
	}
}

// DeleteAnnouncement removes an announcement
// DELETE /api/v1/t/:slug/announcements/:id
func (h *Handlers) DeleteAnnouncement() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.store.DeleteAnnouncement(c.Request.Context(), orgID(c), c.Param("id")); err != nil {
			if isNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "announcement not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete announcement"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ============================================================================
// Posts
// ============================================================================

// ListPosts returns the member feed
// GET /api/v1/t/:slug/posts
func (h *Handlers) ListPosts() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := page(c)
		list, err := h.store.ListPosts(c.Request.Context(), orgID(c), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list posts"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"posts": list})
	}
}

type postRequest struct {
	Body string `json:"body" binding:"required"`
}

// CreatePost adds a post to the feed
// POST /api/v1/t/:slug/posts
func (h *Handlers) CreatePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req postRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Body) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body is required"})
			return
		}
		p := &models.Post{OrganizationID: orgID(c), AuthorID: middleware.GetUserID(c), Body: req.Body}
		if err := h.store.CreatePost(c.Request.Context(), p); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create post"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"post": p})
	}
}

// DeletePost removes a post. Authors may remove their own posts; staff may remove any.
// DELETE /api/v1/t/:slug/posts/:id
func (h *Handlers) DeletePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		p, err := h.store.GetPost(ctx, orgID(c), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load post"})
			return
		}
		if p == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		if p.AuthorID != middleware.GetUserID(c) && !isStaff(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "only the author or staff can delete this post"})
			return
		}
		if err := h.store.DeletePost(ctx, p.OrganizationID, p.ID); err != nil && !isNotFound(err) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete post"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
