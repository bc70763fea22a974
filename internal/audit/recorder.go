package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/safego"
)

// Store persists audit records
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Recorder writes audit records to the store and the shipper without blocking the caller
type Recorder struct {
	store   Store
	shipper Shipper
	timeout time.Duration
}

// NewRecorder creates a recorder. shipper may be nil.
func NewRecorder(store Store, shipper Shipper) *Recorder {
	return &Recorder{store: store, shipper: shipper, timeout: 5 * time.Second}
}

// Record persists and ships entry in the background
func (r *Recorder) Record(entry *LogEntry) {
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.write(ctx, entry)
	})
}

func (r *Recorder) write(ctx context.Context, entry *LogEntry) {
	if r.store != nil {
		if err := r.store.CreateAuditLog(ctx, toModel(entry)); err != nil {
			slog.Error("failed to create audit log", "action", entry.Action, "error", err)
		}
	}
	if r.shipper != nil {
		if err := r.shipper.Ship(ctx, entry); err != nil {
			slog.Warn("failed to ship audit log", "action", entry.Action, "error", err)
		}
	}
}

func toModel(e *LogEntry) *models.AuditLog {
	log := &models.AuditLog{
		Action:    e.Action,
		Metadata:  e.Metadata,
		CreatedAt: e.Timestamp,
	}
	if e.UserID != "" {
		log.UserID = &e.UserID
	}
	if e.OrganizationID != "" {
		log.OrganizationID = &e.OrganizationID
	}
	if e.ResourceType != "" {
		log.ResourceType = &e.ResourceType
	}
	if e.ResourceID != "" {
		log.ResourceID = &e.ResourceID
	}
	if e.IPAddress != "" {
		log.IPAddress = &e.IPAddress
	}
	return log
}

// resourceSegments maps route collection segments to resource types, checked in order
var resourceSegments = []struct {
	segment  string
	resource string
}{
	{"announcements", "announcement"},
	{"posts", "post"},
	{"events", "event"},
	{"programs", "program"},
	{"folders", "resource_folder"},
	{"resources", "resource"},
	{"invitations", "invitation"},
	{"applications", "membership"},
	{"members", "membership"},
	{"branding", "tenant"},
	{"settings", "settings"},
	{"licenses", "license"},
	{"super-admins", "profile"},
	{"notifications", "notification"},
	{"tenants", "tenant"},
}

// Classify derives action, resource type and resource id from a request. path is the
// matched route template (e.g. /api/v1/t/:slug/announcements/:id) and params holds the
// route parameter values.
func Classify(method, route string, params map[string]string) (action, resourceType, resourceID string) {
	segments := strings.Split(strings.Trim(route, "/"), "/")

	for _, rs := range resourceSegments {
		for i, seg := range segments {
			if seg != rs.segment {
				continue
			}
			resourceType = rs.resource
			if i+1 < len(segments) && strings.HasPrefix(segments[i+1], ":") {
				resourceID = params[strings.TrimPrefix(segments[i+1], ":")]
			}
			return resourceType + "." + verb(method, segments[len(segments)-1]), resourceType, resourceID
		}
	}
	return method + " " + route, "", ""
}

func verb(method, last string) string {
	if !strings.HasPrefix(last, ":") {
		switch last {
		case "rsvp", "enroll", "complete", "approve", "accept", "revoke", "status", "read", "read-all":
			return strings.ReplaceAll(last, "-", "_")
		}
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
