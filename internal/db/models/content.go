// Package models - content.go defines tenant-scoped content: announcements, posts,
// events with RSVPs, programs with enrollments, and resources with folders.
package models

import "time"

// Announcement is a tenant-wide message from staff
type Announcement struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	AuthorID       string    `db:"author_id" json:"author_id"`
	Title          string    `db:"title" json:"title"`
	Body           string    `db:"body" json:"body"`
	Pinned         bool      `db:"pinned" json:"pinned"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Post is a member-authored post on the tenant feed
type Post struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	AuthorID       string    `db:"author_id" json:"author_id"`
	Body           string    `db:"body" json:"body"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Event is a scheduled tenant session
type Event struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	Title          string     `db:"title" json:"title"`
	Description    *string    `db:"description" json:"description,omitempty"`
	Location       *string    `db:"location" json:"location,omitempty"`
	StartsAt       time.Time  `db:"starts_at" json:"starts_at"`
	EndsAt         *time.Time `db:"ends_at" json:"ends_at,omitempty"`
	Capacity       *int       `db:"capacity" json:"capacity,omitempty"`
	CreatedBy      string     `db:"created_by" json:"created_by"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	GoingCount     int        `db:"going_count" json:"going_count"`
}

// RSVP statuses
const (
	RSVPGoing    = "going"
	RSVPMaybe    = "maybe"
	RSVPDeclined = "declined"
)

// RSVP is a member's response to an event
type RSVP struct {
	EventID   string    `db:"session_id" json:"event_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Program statuses
const (
	ProgramDraft     = "draft"
	ProgramPublished = "published"
	ProgramArchived  = "archived"
)

// Program is a structured learning or activity program
type Program struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Title          string    `db:"title" json:"title"`
	Description    *string   `db:"description" json:"description,omitempty"`
	Status         string    `db:"status" json:"status"`
	CreatedBy      string    `db:"created_by" json:"created_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Enrollment is a member's enrollment in a program
type Enrollment struct {
	ProgramID   string     `db:"program_id" json:"program_id"`
	UserID      string     `db:"user_id" json:"user_id"`
	Status      string     `db:"status" json:"status"`
	EnrolledAt  time.Time  `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// ResourceFolder groups tenant resources
type ResourceFolder struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	ParentID       *string   `db:"parent_id" json:"parent_id,omitempty"`
	Name           string    `db:"name" json:"name"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Resource is an uploaded file shared with a tenant
type Resource struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	FolderID       *string   `db:"folder_id" json:"folder_id,omitempty"`
	Title          string    `db:"title" json:"title"`
	StoragePath    string    `db:"storage_path" json:"-"`
	ContentType    string    `db:"content_type" json:"content_type"`
	SizeBytes      int64     `db:"size_bytes" json:"size_bytes"`
	Checksum       string    `db:"checksum" json:"checksum"`
	UploadedBy     string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
