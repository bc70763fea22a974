package content

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/middleware"
)

// ListEvents returns upcoming events
// GET /api/v1/t/:slug/events
func (h *Handlers) ListEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := page(c)
		list, err := h.store.ListUpcomingEvents(c.Request.Context(), orgID(c), time.Now(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list events"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": list})
	}
}

// GetEvent returns one event
// GET /api/v1/t/:slug/events/:id
func (h *Handlers) GetEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := h.store.GetEvent(c.Request.Context(), orgID(c), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load event"})
			return
		}
		if e == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"event": e})
	}
}

type eventRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	StartsAt    time.Time  `json:"starts_at" binding:"required"`
	EndsAt      *time.Time `json:"ends_at"`
	Capacity    *int       `json:"capacity"`
}

// CreateEvent schedules an event
// POST /api/v1/t/:slug/events
func (h *Handlers) CreateEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req eventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title and starts_at are required"})
			return
		}
		if req.EndsAt != nil && !req.EndsAt.After(req.StartsAt) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ends_at must be after starts_at"})
			return
		}
		if req.Capacity != nil && *req.Capacity <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "capacity must be positive"})
			return
		}

		e := &models.Event{
			OrganizationID: orgID(c),
			Title:          strings.TrimSpace(req.Title),
			Description:    req.Description,
			Location:       req.Location,
			StartsAt:       req.StartsAt,
			EndsAt:         req.EndsAt,
			Capacity:       req.Capacity,
			CreatedBy:      middleware.GetUserID(c),
		}
		if err := h.store.CreateEvent(c.Request.Context(), e); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create event"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"event": e})
	}
}

type rsvpRequest struct {
	Status string `json:"status" binding:"required"`
}

// RSVP records the caller's response. A full event refuses new "going" responses.
// PUT /api/v1/t/:slug/events/:id/rsvp
func (h *Handlers) RSVP() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rsvpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
			return
		}
		switch req.Status {
		case models.RSVPGoing, models.RSVPMaybe, models.RSVPDeclined:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be going, maybe or declined"})
			return
		}

		ctx := c.Request.Context()
		e, err := h.store.GetEvent(ctx, orgID(c), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load event"})
			return
		}
		if e == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}

		userID := middleware.GetUserID(c)
		if req.Status == models.RSVPGoing && e.Capacity != nil && e.GoingCount >= *e.Capacity {
			rsvps, err := h.store.ListRSVPs(ctx, e.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load responses"})
				return
			}
			if !alreadyGoing(rsvps, userID) {
				c.JSON(http.StatusConflict, gin.H{"error": "event is full"})
				return
			}
		}

		rsvp := &models.RSVP{EventID: e.ID, UserID: userID, Status: req.Status}
		if err := h.store.UpsertRSVP(ctx, rsvp); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save response"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rsvp": rsvp})
	}
}

func alreadyGoing(rsvps []*models.RSVP, userID string) bool {
	for _, r := range rsvps {
		if r.UserID == userID && r.Status == models.RSVPGoing {
			return true
		}
	}
	return false
}

// ListRSVPs returns all responses to an event with per-status counts
// GET /api/v1/t/:slug/events/:id/rsvps
func (h *Handlers) ListRSVPs() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		e, err := h.store.GetEvent(ctx, orgID(c), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load event"})
			return
		}
		if e == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		rsvps, err := h.store.ListRSVPs(ctx, e.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list responses"})
			return
		}
		counts := map[string]int{}
		for _, r := range rsvps {
			counts[r.Status]++
		}
		c.JSON(http.StatusOK, gin.H{"rsvps": rsvps, "counts": counts, "capacity": e.Capacity})
	}
}
