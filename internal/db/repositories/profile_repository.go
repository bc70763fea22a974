// Package repositories implements the data access layer for the hub.
// Each repository type encapsulates all database queries for one entity; handlers
// and the authorization core never issue SQL directly.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/community-hub/backend/internal/db/models"
)

// ErrNotFound is returned by updates that matched no row.
var ErrNotFound = errors.New("not found")

const profileColumns = `id, email, full_name, avatar_url, password_hash, oidc_sub, platform_role, created_at, updated_at`

// ProfileRepository handles profile database operations
type ProfileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	p := &models.Profile{}
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.FullName,
		&p.AvatarURL,
		&p.PasswordHash,
		&p.OIDCSub,
		&p.PlatformRole,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProfileRepository) getOne(ctx context.Context, where string, arg any) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE ` + where
	p, err := scanProfile(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// CreateProfile creates a new profile. Email is stored lower-cased.
func (r *ProfileRepository) CreateProfile(ctx context.Context, p *models.Profile) error {
	p.ID = uuid.New().String()
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	if p.PlatformRole == "" {
		p.PlatformRole = models.PlatformRoleUser
	}

	query := `
		INSERT INTO profiles (id, email, full_name, avatar_url, password_hash, oidc_sub, platform_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Email,
		p.FullName,
		p.AvatarURL,
		p.PasswordHash,
		p.OIDCSub,
		p.PlatformRole,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetProfile retrieves a profile by ID
func (r *ProfileRepository) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetProfileByEmail retrieves a profile by email (case-insensitive)
func (r *ProfileRepository) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return r.getOne(ctx, "email = $1", strings.ToLower(strings.TrimSpace(email)))
}

// GetProfileByOIDCSub retrieves a profile by OIDC subject identifier
func (r *ProfileRepository) GetProfileByOIDCSub(ctx context.Context, sub string) (*models.Profile, error) {
	return r.getOne(ctx, "oidc_sub = $1", sub)
}

// GetPlatformRole reads only the platform_role column. It is the authoritative
// read used to verify a possibly stale cached role. A missing profile yields "".
func (r *ProfileRepository) GetPlatformRole(ctx context.Context, id string) (models.PlatformRole, error) {
	var role models.PlatformRole
	err := r.db.QueryRowContext(ctx, `SELECT platform_role FROM profiles WHERE id = $1`, id).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get platform role: %w", err)
	}
	return role, nil
}

// UpdateProfile updates the editable profile fields
func (r *ProfileRepository) UpdateProfile(ctx context.Context, p *models.Profile) error {
	p.UpdatedAt = time.Now()
	query := `UPDATE profiles SET full_name = $2, avatar_url = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, p.ID, p.FullName, p.AvatarURL, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return requireAffected(res)
}

// LinkOIDCSubject stores the OIDC subject on an existing profile
func (r *ProfileRepository) LinkOIDCSubject(ctx context.Context, id, sub string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET oidc_sub = $2, updated_at = NOW() WHERE id = $1`, id, sub)
	if err != nil {
		return fmt.Errorf("failed to link oidc subject: %w", err)
	}
	return requireAffected(res)
}

// SetPlatformRole changes the platform role of a profile
func (r *ProfileRepository) SetPlatformRole(ctx context.Context, id string, role models.PlatformRole) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET platform_role = $2, updated_at = NOW() WHERE id = $1`, id, role)
	if err != nil {
		return fmt.Errorf("failed to set platform role: %w", err)
	}
	return requireAffected(res)
}

// CountSuperAdmins returns the number of profiles holding the super_admin platform role
func (r *ProfileRepository) CountSuperAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profiles WHERE platform_role = 'super_admin'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count super admins: %w", err)
	}
	return n, nil
}

// ListProfiles returns profiles with pagination, optionally filtered by an email/name search
func (r *ProfileRepository) ListProfiles(ctx context.Context, search string, limit, offset int) ([]*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles`
	args := []any{}
	if search != "" {
		query += ` WHERE email ILIKE $1 OR full_name ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += fmt.Sprintf(` ORDER BY created_at LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]*models.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
