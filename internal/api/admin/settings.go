package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/middleware"
	"github.com/community-hub/backend/internal/services"
)

// PlatformSettingsStore reads and writes platform settings
type PlatformSettingsStore interface {
	ListPlatformSettings(ctx context.Context) ([]*models.PlatformSetting, error)
	SetPlatformSetting(ctx context.Context, key string, value json.RawMessage, updatedBy *string) error
}

// reservedSettings are managed by first-run setup and never exposed
var reservedSettings = map[string]bool{
	services.SettingSetupCompleted: true,
	services.SettingSetupTokenHash: true,
}

// SettingsHandlers serves platform settings
type SettingsHandlers struct {
	settings PlatformSettingsStore
}

// NewSettingsHandlers creates the platform settings handlers
func NewSettingsHandlers(settings PlatformSettingsStore) *SettingsHandlers {
	return &SettingsHandlers{settings: settings}
}

// ListSettings returns all platform settings except the setup bookkeeping keys
// GET /api/v1/platform/settings
func (h *SettingsHandlers) ListSettings() gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := h.settings.ListPlatformSettings(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list settings"})
			return
		}
		visible := make([]*models.PlatformSetting, 0, len(all))
		for _, s := range all {
			if !reservedSettings[s.Key] {
				visible = append(visible, s)
			}
		}
		c.JSON(http.StatusOK, gin.H{"settings": visible})
	}
}

type settingRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
}

// PutSetting stores a JSON value under :key
// PUT /api/v1/platform/settings/:key
func (h *SettingsHandlers) PutSetting() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		if reservedSettings[key] {
			c.JSON(http.StatusForbidden, gin.H{"error": "setting is managed by setup"})
			return
		}
		var req settingRequest
		if err := c.ShouldBindJSON(&req); err != nil || !json.Valid(req.Value) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "value must be valid JSON"})
			return
		}
		userID := middleware.GetUserID(c)
		if err := h.settings.SetPlatformSetting(c.Request.Context(), key, req.Value, &userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save setting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
	}
}
