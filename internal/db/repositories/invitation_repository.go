// invitation_repository.go implements InvitationRepository, providing database queries for
// tenant invitations. Tokens are never stored; only their SHA-256 digest is.
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

const invitationColumns = `id, organization_id, email, role, token_hash, invited_by, status, expires_at, accepted_at, created_at`

// InvitationRepository handles invitation database operations
type InvitationRepository struct {
	db *sqlx.DB
}

// NewInvitationRepository creates a new InvitationRepository
func NewInvitationRepository(db *sqlx.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create inserts a pending invitation
func (r *InvitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	inv.ID = uuid.New().String()
	inv.CreatedAt = time.Now()
	inv.Status = models.InvitationPending
	query := `INSERT INTO invitations (` + invitationColumns + `)
			  VALUES (:id, :organization_id, :email, :role, :token_hash, :invited_by, :status, :expires_at, :accepted_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, inv); err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetByTokenHash returns the invitation matching a token digest, or nil
func (r *InvitationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Invitation, error) {
	var inv models.Invitation
	err := r.db.GetContext(ctx, &inv, `SELECT `+invitationColumns+` FROM invitations WHERE token_hash = $1`, tokenHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}

// ListByOrganization returns the tenant's invitations, newest first
func (r *InvitationRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.Invitation, error) {
	list := make([]*models.Invitation, 0)
	if err := r.db.SelectContext(ctx, &list,
		`SELECT `+invitationColumns+` FROM invitations WHERE organization_id = $1 ORDER BY created_at DESC`, orgID); err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return list, nil
}

// Revoke marks a pending invitation of the tenant revoked
func (r *InvitationRepository) Revoke(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE invitations SET status = 'revoked'
		WHERE organization_id = $1 AND id = $2 AND status = 'pending'`, orgID, id)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	return requireAffected(res)
}

// Accept marks the invitation accepted and creates or reactivates the membership with the
// invited role, atomically.
func (r *InvitationRepository) Accept(ctx context.Context, inv *models.Invitation, userID string) (*models.Membership, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE invitations SET status = 'accepted', accepted_at = NOW()
		WHERE id = $1 AND status = 'pending'`, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to accept invitation: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}

	m := &models.Membership{
		OrganizationID: inv.OrganizationID,
		UserID:         userID,
		Role:           inv.Role,
		Status:         models.MembershipStatusActive,
	}
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO organization_memberships (organization_id, user_id, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', NOW(), NOW())
		ON CONFLICT (organization_id, user_id)
		DO UPDATE SET role = EXCLUDED.role, status = 'active', updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		m.OrganizationID, m.UserID, m.Role).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invitation: %w", err)
	}
	return m, nil
}
