// membership_repository.go implements MembershipRepository, providing database queries for
// organization memberships: per-user listing in query order, per-tenant member management,
// and the recipient lookups used by notification fan-out.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/community-hub/backend/internal/db/models"
)

const membershipColumns = `id, organization_id, user_id, role, status, created_at, updated_at`

// MembershipRepository handles organization membership database operations
type MembershipRepository struct {
	db *sql.DB
}

// NewMembershipRepository creates a new MembershipRepository
func NewMembershipRepository(db *sql.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

func scanMembership(row rowScanner, extra ...any) (*models.Membership, error) {
	m := &models.Membership{}
	dest := append([]any{&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return m, nil
}

// ListByUser returns every membership of a user, in insertion order.
func (r *MembershipRepository) ListByUser(ctx context.Context, userID string) ([]*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM organization_memberships WHERE user_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]*models.Membership, 0)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// ListUserMemberships returns a user's memberships joined with organization slug and name
func (r *MembershipRepository) ListUserMemberships(ctx context.Context, userID string) ([]*models.UserMembership, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.status, m.created_at, m.updated_at, o.slug, o.name
		FROM organization_memberships m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1
		ORDER BY m.created_at, m.id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user memberships: %w", err)
	}
	defer rows.Close()

	result := make([]*models.UserMembership, 0)
	for rows.Next() {
		um := &models.UserMembership{}
		m, err := scanMembership(rows, &um.OrganizationSlug, &um.OrganizationName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		um.Membership = *m
		result = append(result, um)
	}
	return result, rows.Err()
}

// Get returns the membership of userID in orgID, or nil
func (r *MembershipRepository) Get(ctx context.Context, orgID, userID string) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM organization_memberships WHERE organization_id = $1 AND user_id = $2`
	m, err := scanMembership(r.db.QueryRowContext(ctx, query, orgID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// ListByOrganization returns the tenant's members with profile details, optionally filtered by status
func (r *MembershipRepository) ListByOrganization(ctx context.Context, orgID, status string) ([]*models.MemberWithProfile, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.status, m.created_at, m.updated_at, p.email, p.full_name
		FROM organization_memberships m
		JOIN profiles p ON p.id = m.user_id
		WHERE m.organization_id = $1
	`
	args := []any{orgID}
	if status != "" {
		query += ` AND m.status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY m.created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]*models.MemberWithProfile, 0)
	for rows.Next() {
		mp := &models.MemberWithProfile{}
		m, err := scanMembership(rows, &mp.Email, &mp.FullName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		mp.Membership = *m
		members = append(members, mp)
	}
	return members, rows.Err()
}

// Upsert creates the membership or, if one exists, overwrites its role and status
func (r *MembershipRepository) Upsert(ctx context.Context, m *models.Membership) error {
	query := `
		INSERT INTO organization_memberships (organization_id, user_id, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (organization_id, user_id)
		DO UPDATE SET role = EXCLUDED.role, status = EXCLUDED.status, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, m.OrganizationID, m.UserID, m.Role, m.Status).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}
	return nil
}

// Update changes role and status of an existing membership
func (r *MembershipRepository) Update(ctx context.Context, orgID, userID string, role models.Role, status models.MembershipStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE organization_memberships SET role = $3, status = $4, updated_at = NOW()
		WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID, role, status)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	return requireAffected(res)
}

// CountActiveWithRole counts active memberships of the tenant holding role
func (r *MembershipRepository) CountActiveWithRole(ctx context.Context, orgID string, role models.Role) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM organization_memberships
		WHERE organization_id = $1 AND role = $2 AND status = 'active'`, orgID, role).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count memberships: %w", err)
	}
	return n, nil
}

// ListActiveUserIDs returns the user IDs of active members. When roles is non-empty
// only members holding one of those roles are returned.
func (r *MembershipRepository) ListActiveUserIDs(ctx context.Context, orgID string, roles ...models.Role) ([]string, error) {
	query := `SELECT user_id FROM organization_memberships WHERE organization_id = $1 AND status = 'active'`
	args := []any{orgID}
	if len(roles) > 0 {
		names := make([]string, len(roles))
		for i, role := range roles {
			names[i] = string(role)
		}
		query += ` AND role = ANY($2)`
		args = append(args, pq.Array(names))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list member ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
