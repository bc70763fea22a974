package content

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/middleware"
	"github.com/community-hub/backend/internal/storage"
)

const downloadURLTTL = 15 * time.Minute

// ListFolders returns the tenant's resource folders
// GET /api/v1/t/:slug/folders
func (h *Handlers) ListFolders() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.store.ListFolders(c.Request.Context(), orgID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list folders"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"folders": list})
	}
}

type folderRequest struct {
	Name     string  `json:"name" binding:"required"`
	ParentID *string `json:"parent_id"`
}

// CreateFolder adds a resource folder, optionally nested under parent_id
// POST /api/v1/t/:slug/folders
func (h *Handlers) CreateFolder() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req folderRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}
		if req.ParentID != nil {
			ok, err := h.folderExists(c, *req.ParentID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load folders"})
				return
			}
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "parent folder not found"})
				return
			}
		}
		f := &models.ResourceFolder{OrganizationID: orgID(c), ParentID: req.ParentID, Name: strings.TrimSpace(req.Name)}
		if err := h.store.CreateFolder(c.Request.Context(), f); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create folder"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"folder": f})
	}
}

// folderExists reports whether id names a folder of the resolved tenant
func (h *Handlers) folderExists(c *gin.Context, id string) (bool, error) {
	folders, err := h.store.ListFolders(c.Request.Context(), orgID(c))
	if err != nil {
		return false, err
	}
	for _, f := range folders {
		if f.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// ListResources returns the tenant's resources, optionally within ?folder_id=
// GET /api/v1/t/:slug/resources
func (h *Handlers) ListResources() gin.HandlerFunc {
	return func(c *gin.Context) {
		var folderID *string
		if id := c.Query("folder_id"); id != "" {
			folderID = &id
		}
		list, err := h.store.ListResources(c.Request.Context(), orgID(c), folderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list resources"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"resources": list})
	}
}

// UploadResource stores a multipart "file" and records it as a tenant resource.
// Form fields: title (defaults to the file name) and folder_id.
// POST /api/v1/t/:slug/resources
func (h *Handlers) UploadResource() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)

		header, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d MB", h.maxBytes>>20)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if header.Size > h.maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d MB", h.maxBytes>>20)})
			return
		}

		var folderID *string
		if id := c.PostForm("folder_id"); id != "" {
			ok, err := h.folderExists(c, id)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load folders"})
				return
			}
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "folder not found"})
				return
			}
			folderID = &id
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		title := strings.TrimSpace(c.PostForm("title"))
		if title == "" {
			title = header.Filename
		}

		src, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
			return
		}
		defer src.Close()

		ctx := c.Request.Context()
		res := &models.Resource{
			ID:             uuid.New().String(),
			OrganizationID: orgID(c),
			FolderID:       folderID,
			Title:          title,
			ContentType:    contentType,
			UploadedBy:     middleware.GetUserID(c),
		}
		key := storage.ResourceKey(res.OrganizationID, res.ID, header.Filename)
		obj, err := h.files.Put(ctx, key, src, contentType)
		if err != nil {
			slog.Error("resource upload failed", "key", key, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
			return
		}
		res.StoragePath = obj.Key
		res.SizeBytes = obj.Size
		res.Checksum = obj.Checksum

		if err := h.store.CreateResource(ctx, res); err != nil {
			if rmErr := h.files.Remove(ctx, obj.Key); rmErr != nil {
				slog.Warn("failed to remove orphaned upload", "key", obj.Key, "error", rmErr)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save resource"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"resource": res})
	}
}

// DownloadResource redirects to a signed URL when the backend offers one and streams
// the file otherwise.
// GET /api/v1/t/:slug/resources/:id/download
func (h *Handlers) DownloadResource() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		res, err := h.store.GetResource(ctx, orgID(c), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load resource"})
			return
		}
		if res == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
			return
		}

		url, err := h.files.SignedURL(ctx, res.StoragePath, downloadURLTTL)
		if err != nil {
			slog.Error("failed to sign download url", "key", res.StoragePath, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare download"})
			return
		}
		if url != "" {
			c.Redirect(http.StatusFound, url)
			return
		}

		rc, err := h.files.Open(ctx, res.StoragePath)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "file missing from storage"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open file"})
			return
		}
		defer rc.Close()

		name := res.StoragePath[strings.LastIndex(res.StoragePath, "/")+1:]
		c.DataFromReader(http.StatusOK, res.SizeBytes, res.ContentType, rc, map[string]string{
			"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
		})
	}
}

// DeleteResource removes a resource and its stored file
// DELETE /api/v1/t/:slug/resources/:id
func (h *Handlers) DeleteResource() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		res, err := h.store.GetResource(ctx, orgID(c), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load resource"})
			return
		}
		if res == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
			return
		}
		if err := h.store.DeleteResource(ctx, res.OrganizationID, res.ID); err != nil && !isNotFound(err) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete resource"})
			return
		}
		if err := h.files.Remove(ctx, res.StoragePath); err != nil {
			slog.Warn("failed to remove resource file", "key", res.StoragePath, "error", err)
		}
		c.Status(http.StatusNoContent)
	}
}
