// Package models - audit_log.go defines the AuditLog model for recording mutating actions,
// capturing actor, tenant, action, affected resource, client IP, and arbitrary metadata.
package models

import "time"

// AuditLog represents an audit log entry for tracking user actions
type AuditLog struct {
	ID             string                 `json:"id"`
	UserID         *string                `json:"user_id,omitempty"` // Nullable for system actions
	OrganizationID *string                `json:"organization_id,omitempty"`
	Action         string                 `json:"action"`                  // "announcement.create", "member.update"
	ResourceType   *string                `json:"resource_type,omitempty"` // "announcement", "member", "tenant"
	ResourceID     *string                `json:"resource_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	IPAddress      *string                `json:"ip_address,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}
