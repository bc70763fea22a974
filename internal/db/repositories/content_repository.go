// content_repository.go implements ContentRepository, providing database queries for
// tenant-scoped content: announcements, posts, events with RSVPs, programs with
// enrollments, and resources with folders. Every query is scoped by organization_id.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/community-hub/backend/internal/db/models"
)

// ContentRepository handles database operations for tenant content
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository creates a new ContentRepository
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// ============================================================================
// Announcements
// ============================================================================

// ListAnnouncements returns the tenant's announcements, pinned first
func (r *ContentRepository) ListAnnouncements(ctx context.Context, orgID string, limit, offset int) ([]*models.Announcement, error) {
	list := make([]*models.Announcement, 0)
	query := `SELECT id, organization_id, author_id, title, body, pinned, created_at
			  FROM announcements WHERE organization_id = $1
			  ORDER BY pinned DESC, created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &list, query, orgID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	return list, nil
}

// CreateAnnouncement inserts an announcement
func (r *ContentRepository) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now()
	query := `INSERT INTO announcements (id, organization_id, author_id, title, body, pinned, created_at)
			  VALUES (:id, :organization_id, :author_id, :title, :body, :pinned, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("failed to create announcement: %w", err)
	}
	return nil
}

// DeleteAnnouncement removes an announcement of the tenant
func (r *ContentRepository) DeleteAnnouncement(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM announcements WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("failed to delete announcement: %w", err)
	}
	return requireAffected(res)
}

// ============================================================================
// Posts
// ============================================================================

// ListPosts returns the tenant feed, newest first
func (r *ContentRepository) ListPosts(ctx context.Context, orgID string, limit, offset int) ([]*models.Post, error) {
	list := make([]*models.Post, 0)
	query := `SELECT id, organization_id, author_id, body, created_at, updated_at
			  FROM tenant_posts WHERE organization_id = $1
			  ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &list, query, orgID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return list, nil
}

// CreatePost inserts a post
func (r *ContentRepository) CreatePost(ctx context.Context, p *models.Post) error {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	query := `INSERT INTO tenant_posts (id, organization_id, author_id, body, created_at, updated_at)
			  VALUES (:id, :organization_id, :author_id, :body, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// GetPost returns a post of the tenant, or nil
func (r *ContentRepository) GetPost(ctx context.Context, orgID, id string) (*models.Post, error) {
	var p models.Post
	err := r.db.GetContext(ctx, &p, `SELECT id, organization_id, author_id, body, created_at, updated_at
		FROM tenant_posts WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &p, nil
}

// DeletePost removes a post of the tenant
func (r *ContentRepository) DeletePost(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tenant_posts WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return requireAffected(res)
}

// ============================================================================
// Events (stored in the sessions table)
// ============================================================================

const eventSelect = `
	SELECT s.id, s.organization_id, s.title, s.description, s.location, s.starts_at, s.ends_at,
	       s.capacity, s.created_by, s.created_at,
	       (SELECT COUNT(*) FROM session_rsvps r WHERE r.session_id = s.id AND r.status = 'going') AS going_count
	FROM sessions s
`

// ListUpcomingEvents returns events of the tenant starting after since
func (r *ContentRepository) ListUpcomingEvents(ctx context.Context, orgID string, since time.Time, limit int) ([]*models.Event, error) {
	list := make([]*models.Event, 0)
	query := eventSelect + ` WHERE s.organization_id = $1 AND s.starts_at >= $2 ORDER BY s.starts_at LIMIT $3`
	if err := r.db.SelectContext(ctx, &list, query, orgID, since, limit); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return list, nil
}

// GetEvent returns one event of the tenant, or nil
func (r *ContentRepository) GetEvent(ctx context.Context, orgID, id string) (*models.Event, error) {
	var e models.Event
	err := r.db.GetContext(ctx, &e, eventSelect+` WHERE s.organization_id = $1 AND s.id = $2`, orgID, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &e, nil
}

// CreateEvent inserts an event
func (r *ContentRepository) CreateEvent(ctx context.Context, e *models.Event) error {
	e.ID = uuid.New().String()
	e.CreatedAt = time.Now()
	query := `INSERT INTO sessions (id, organization_id, title, description, location, starts_at, ends_at, capacity, created_by, created_at)
			  VALUES (:id, :organization_id, :title, :description, :location, :starts_at, :ends_at, :capacity, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// UpsertRSVP records a member's response to an event
func (r *ContentRepository) UpsertRSVP(ctx context.Context, rsvp *models.RSVP) error {
	rsvp.CreatedAt = time.Now()
	query := `INSERT INTO session_rsvps (session_id, user_id, status, created_at)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (session_id, user_id) DO UPDATE SET status = EXCLUDED.status`
	if _, err := r.db.ExecContext(ctx, query, rsvp.EventID, rsvp.UserID, rsvp.Status, rsvp.CreatedAt); err != nil {
		return fmt.Errorf("failed to save rsvp: %w", err)
	}
	return nil
}

// ListRSVPs returns all responses for an event
func (r *ContentRepository) ListRSVPs(ctx context.Context, eventID string) ([]*models.RSVP, error) {
	list := make([]*models.RSVP, 0)
	if err := r.db.SelectContext(ctx, &list,
		`SELECT session_id, user_id, status, created_at FROM session_rsvps WHERE session_id = $1 ORDER BY created_at`, eventID); err != nil {
		return nil, fmt.Errorf("failed to list rsvps: %w", err)
	}
	return list, nil
}

// ============================================================================
// Programs
// ============================================================================

// ListPrograms returns the tenant's programs; drafts only when includeDrafts is set
func (r *ContentRepository) ListPrograms(ctx context.Context, orgID string, includeDrafts bool) ([]*models.Program, error) {
	list := make([]*models.Program, 0)
	query := `SELECT id, organization_id, title, description, status, created_by, created_at
			  FROM programs WHERE organization_id = $1`
	if !includeDrafts {
		query += ` AND status = 'published'`
	}
	query += ` ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &list, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	return list, nil
}

// GetProgram returns one program of the tenant, or nil
func (r *ContentRepository) GetProgram(ctx context.Context, orgID, id string) (*models.Program, error) {
	var p models.Program
	err := r.db.GetContext(ctx, &p, `SELECT id, organization_id, title, description, status, created_by, created_at
		FROM programs WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get program: %w", err)
	}
	return &p, nil
}

// CreateProgram inserts a program
func (r *ContentRepository) CreateProgram(ctx context.Context, p *models.Program) error {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now()
	if p.Status == "" {
		p.Status = models.ProgramDraft
	}
	query := `INSERT INTO programs (id, organization_id, title, description, status, created_by, created_at)
			  VALUES (:id, :organization_id, :title, :description, :status, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("failed to create program: %w", err)
	}
	return nil
}

// SetProgramStatus changes the status of a program
func (r *ContentRepository) SetProgramStatus(ctx context.Context, orgID, id, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE programs SET status = $3 WHERE organization_id = $1 AND id = $2`, orgID, id, status)
	if err != nil {
		return fmt.Errorf("failed to update program: %w", err)
	}
	return requireAffected(res)
}

// Enroll enrolls a user in a program; enrolling twice is a no-op
func (r *ContentRepository) Enroll(ctx context.Context, programID, userID string) (*models.Enrollment, error) {
	var e models.Enrollment
	query := `
		INSERT INTO program_enrollments (program_id, user_id, status, enrolled_at)
		VALUES ($1, $2, 'enrolled', NOW())
		ON CONFLICT (program_id, user_id) DO UPDATE SET status = program_enrollments.status
		RETURNING program_id, user_id, status, enrolled_at, completed_at
	`
	if err := r.db.GetContext(ctx, &e, query, programID, userID); err != nil {
		return nil, fmt.Errorf("failed to enroll: %w", err)
	}
	return &e, nil
}

// CompleteEnrollment marks a user's enrollment completed
func (r *ContentRepository) CompleteEnrollment(ctx context.Context, programID, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE program_enrollments SET status = 'completed', completed_at = NOW()
		WHERE program_id = $1 AND user_id = $2`, programID, userID)
	if err != nil {
		return fmt.Errorf("failed to complete enrollment: %w", err)
	}
	return requireAffected(res)
}

// ListEnrollments returns the enrollments of a program
func (r *ContentRepository) ListEnrollments(ctx context.Context, programID string) ([]*models.Enrollment, error) {
	list := make([]*models.Enrollment, 0)
	if err := r.db.SelectContext(ctx, &list, `
		SELECT program_id, user_id, status, enrolled_at, completed_at
		FROM program_enrollments WHERE program_id = $1 ORDER BY enrolled_at`, programID); err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return list, nil
}

// ============================================================================
// Resources
// ============================================================================

// ListFolders returns all resource folders of the tenant
func (r *ContentRepository) ListFolders(ctx context.Context, orgID string) ([]*models.ResourceFolder, error) {
	list := make([]*models.ResourceFolder, 0)
	if err := r.db.SelectContext(ctx, &list, `
		SELECT id, organization_id, parent_id, name, created_at
		FROM resource_folders WHERE organization_id = $1 ORDER BY name`, orgID); err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return list, nil
}

// CreateFolder inserts a folder
func (r *ContentRepository) CreateFolder(ctx context.Context, f *models.ResourceFolder) error {
	f.ID = uuid.New().String()
	f.CreatedAt = time.Now()
	query := `INSERT INTO resource_folders (id, organization_id, parent_id, name, created_at)
			  VALUES (:id, :organization_id, :parent_id, :name, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, f); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return nil
}

// ListResources returns the tenant's resources, optionally within one folder
func (r *ContentRepository) ListResources(ctx context.Context, orgID string, folderID *string) ([]*models.Resource, error) {
	list := make([]*models.Resource, 0)
	query := `SELECT id, organization_id, folder_id, title, storage_path, content_type, size_bytes, checksum, uploaded_by, created_at
			  FROM tenant_resources WHERE organization_id = $1`
	args := []any{orgID}
	if folderID != nil {
		query += ` AND folder_id = $2`
		args = append(args, *folderID)
	}
	query += ` ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return list, nil
}

// GetResource returns one resource of the tenant, or nil
func (r *ContentRepository) GetResource(ctx context.Context, orgID, id string) (*models.Resource, error) {
	var res models.Resource
	err := r.db.GetContext(ctx, &res, `
		SELECT id, organization_id, folder_id, title, storage_path, content_type, size_bytes, checksum, uploaded_by, created_at
		FROM tenant_resources WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return &res, nil
}

// CreateResource inserts resource metadata; the caller has already stored the file.
// The ID may be preassigned so the storage path can embed it.
func (r *ContentRepository) CreateResource(ctx context.Context, res *models.Resource) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	res.CreatedAt = time.Now()
	query := `INSERT INTO tenant_resources (id, organization_id, folder_id, title, storage_path, content_type, size_bytes, checksum, uploaded_by, created_at)
			  VALUES (:id, :organization_id, :folder_id, :title, :storage_path, :content_type, :size_bytes, :checksum, :uploaded_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, res); err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

// DeleteResource removes resource metadata
func (r *ContentRepository) DeleteResource(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tenant_resources WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return requireAffected(res)
}

// ============================================================================
// Dashboard
// ============================================================================

// DashboardStats summarizes one tenant for its admin dashboard
type DashboardStats struct {
	ActiveMembers      int `db:"active_members" json:"active_members"`
	PendingMembers     int `db:"pending_members" json:"pending_members"`
	Announcements      int `db:"announcements" json:"announcements"`
	Posts              int `db:"posts" json:"posts"`
	UpcomingEvents     int `db:"upcoming_events" json:"upcoming_events"`
	PublishedPrograms  int `db:"published_programs" json:"published_programs"`
	Resources          int `db:"resources" json:"resources"`
	PendingInvitations int `db:"pending_invitations" json:"pending_invitations"`
}

// GetDashboardStats counts the tenant's members and content
func (r *ContentRepository) GetDashboardStats(ctx context.Context, orgID string) (*DashboardStats, error) {
	var s DashboardStats
	query := `
		SELECT
			(SELECT COUNT(*) FROM organization_memberships WHERE organization_id = $1 AND status = 'active')  AS active_members,
			(SELECT COUNT(*) FROM organization_memberships WHERE organization_id = $1 AND status = 'pending') AS pending_members,
			(SELECT COUNT(*) FROM announcements WHERE organization_id = $1)                                  AS announcements,
			(SELECT COUNT(*) FROM tenant_posts WHERE organization_id = $1)                                   AS posts,
			(SELECT COUNT(*) FROM sessions WHERE organization_id = $1 AND starts_at >= NOW())                AS upcoming_events,
			(SELECT COUNT(*) FROM programs WHERE organization_id = $1 AND status = 'published')              AS published_programs,
			(SELECT COUNT(*) FROM tenant_resources WHERE organization_id = $1)                               AS resources,
			(SELECT COUNT(*) FROM invitations WHERE organization_id = $1 AND status = 'pending')             AS pending_invitations
	`
	if err := r.db.GetContext(ctx, &s, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to get dashboard stats: %w", err)
	}
	return &s, nil
}
