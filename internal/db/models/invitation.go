package models

import "time"

// Invitation statuses
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationRevoked  = "revoked"
)

// Invitation invites an email address into a tenant with a given role
type Invitation struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	Email          string     `db:"email" json:"email"`
	Role           Role       `db:"role" json:"role"`
	TokenHash      string     `db:"token_hash" json:"-"`
	InvitedBy      string     `db:"invited_by" json:"invited_by"`
	Status         string     `db:"status" json:"status"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	AcceptedAt     *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// IsExpired returns true if the invitation can no longer be accepted because of its age.
func (i *Invitation) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

// Notification is an in-app notification for one user
type Notification struct {
	ID             string     `db:"id" json:"id"`
	UserID         string     `db:"user_id" json:"user_id"`
	OrganizationID *string    `db:"organization_id" json:"organization_id,omitempty"`
	Type           string     `db:"type" json:"type"`
	Title          string     `db:"title" json:"title"`
	Body           string     `db:"body" json:"body"`
	Link           *string    `db:"link" json:"link,omitempty"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
