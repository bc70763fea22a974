package content

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/middleware"
)

// ListPrograms returns published programs; staff also see drafts and archived ones
// GET /api/v1/t/:slug/programs
func (h *Handlers) ListPrograms() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.store.ListPrograms(c.Request.Context(), orgID(c), isStaff(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list programs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"programs": list})
	}
}

// GetProgram returns one program. Unpublished programs are hidden from non-staff.
// GET /api/v1/t/:slug/programs/:id
func (h *Handlers) GetProgram() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := h.loadProgram(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"program": p})
	}
}

// loadProgram fetches the :id program visible to the caller, answering on failure
func (h *Handlers) loadProgram(c *gin.Context) (*models.Program, bool) {
	p, err := h.store.GetProgram(c.Request.Context(), orgID(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load program"})
		return nil, false
	}
	if p == nil || (p.Status != models.ProgramPublished && !isStaff(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "program not found"})
		return nil, false
	}
	return p, true
}

type programRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
}

// CreateProgram adds a program, as a draft unless a status is given
// POST /api/v1/t/:slug/programs
func (h *Handlers) CreateProgram() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req programRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		}
		if req.Status != "" && !validProgramStatus(req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		p := &models.Program{
			OrganizationID: orgID(c),
			Title:          strings.TrimSpace(req.Title),
			Description:    req.Description,
			Status:         req.Status,
			CreatedBy:      middleware.GetUserID(c),
		}
		if err := h.store.CreateProgram(c.Request.Context(), p); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create program"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"program": p})
	}
}

type programStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetProgramStatus publishes, archives or returns a program to draft
// PUT /api/v1/t/:slug/programs/:id/status
func (h *Handlers) SetProgramStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req programStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil || !validProgramStatus(req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be draft, published or archived"})
			return
		}
		if err := h.store.SetProgramStatus(c.Request.Context(), orgID(c), c.Param("id"), req.Status); err != nil {
			if isNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "program not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update program"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
	}
}

func validProgramStatus(s string) bool {
	return s == models.ProgramDraft || s == models.ProgramPublished || s == models.ProgramArchived
}

// Enroll enrolls the caller in a published program
// POST /api/v1/t/:slug/programs/:id/enroll
func (h *Handlers) Enroll() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := h.loadProgram(c)
		if !ok {
			return
		}
		if p.Status != models.ProgramPublished {
			c.JSON(http.StatusConflict, gin.H{"error": "program is not open for enrollment"})
			return
		}
		e, err := h.store.Enroll(c.Request.Context(), p.ID, middleware.GetUserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enroll"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"enrollment": e})
	}
}

// ListEnrollments returns a program's enrollments
// GET /api/v1/t/:slug/programs/:id/enrollments
func (h *Handlers) ListEnrollments() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := h.loadProgram(c)
		if !ok {
			return
		}
		list, err := h.store.ListEnrollments(c.Request.Context(), p.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list enrollments"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"enrollments": list})
	}
}

// CompleteEnrollment marks a member's enrollment completed
// POST /api/v1/t/:slug/programs/:id/enrollments/:user_id/complete
func (h *Handlers) CompleteEnrollment() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := h.loadProgram(c)
		if !ok {
			return
		}
		if err := h.store.CompleteEnrollment(c.Request.Context(), p.ID, c.Param("user_id")); err != nil {
			if isNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "enrollment not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete enrollment"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
