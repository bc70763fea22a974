// Package notifications serves the signed-in user's in-app notifications.
package notifications

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/db/repositories"
	"github.com/community-hub/backend/internal/middleware"
)

// Store reads and updates a user's notifications
type Store interface {
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// Handlers serves the notification endpoints
type Handlers struct {
	store Store
}

// NewHandlers creates the notification handlers
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// List returns the caller's notifications, newest first. ?unread=true limits the list
// to unread ones.
// GET /api/v1/notifications
func (h *Handlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit <= 0 || limit > 100 {
			limit = 20
		}
		offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if err != nil || offset < 0 {
			offset = 0
		}
		unreadOnly := c.Query("unread") == "true"

		userID := middleware.GetUserID(c)
		list, err := h.store.ListForUser(c.Request.Context(), userID, unreadOnly, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"notifications": list,
			"pagination":    gin.H{"limit": limit, "offset": offset},
		})
	}
}

// UnreadCount returns the number of unread notifications
// GET /api/v1/notifications/unread-count
func (h *Handlers) UnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := h.store.CountUnread(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"unread": n})
	}
}

// MarkRead marks one notification read
// POST /api/v1/notifications/:id/read
func (h *Handlers) MarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.store.MarkRead(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "notification not found or already read"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// MarkAllRead marks every unread notification read
// POST /api/v1/notifications/read-all
func (h *Handlers) MarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := h.store.MarkAllRead(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": n})
	}
}
