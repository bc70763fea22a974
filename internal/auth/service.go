// Package auth - service.go implements the auth collaborator consumed by session stores:
// sign-up, sign-in, session lookup, refresh, sign-out and the auth-state change stream.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/community-hub/backend/internal/db/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidEmail       = errors.New("a valid email is required")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// ProfileStore is the subset of the profile repository used by the service
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error)
	GetProfileByOIDCSub(ctx context.Context, sub string) (*models.Profile, error)
	LinkOIDCSubject(ctx context.Context, id, sub string) error
}

// Session is an authenticated session as handed to clients
type Session struct {
	ID           string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ProfileData carries the optional profile fields supplied at sign-up
type ProfileData struct {
	FullName  string
	AvatarURL *string
}

// ServiceConfig holds token lifetimes
type ServiceConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Service is the auth collaborator
type Service struct {
	profiles    ProfileStore
	bus         EventBus
	revocations RevocationList
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

// NewService creates an auth service
func NewService(profiles ProfileStore, bus EventBus, revocations RevocationList, cfg ServiceConfig) *Service {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = time.Hour
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	return &Service{
		profiles:    profiles,
		bus:         bus,
		revocations: revocations,
		accessTTL:   cfg.AccessTokenTTL,
		refreshTTL:  cfg.RefreshTokenTTL,
	}
}

// SignUp creates an identity with the user platform role
func (s *Service) SignUp(ctx context.Context, email, password string, data ProfileData) (*models.Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	existing, err := s.profiles.GetProfileByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	fullName := strings.TrimSpace(data.FullName)
	if fullName == "" {
		fullName = email
	}
	p := &models.Profile{
		Email:        email,
		FullName:     fullName,
		AvatarURL:    data.AvatarURL,
		PasswordHash: &hash,
		PlatformRole: models.PlatformRoleUser,
	}
	if err := s.profiles.CreateProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SignIn checks credentials and issues a new session
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	p, err := s.profiles.GetProfileByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if p == nil || p.PasswordHash == nil || !CheckHash(password, *p.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.IssueSession(ctx, p)
}

// SignInWithOIDC finds the profile for a verified external identity, linking by email
// or creating one when needed, and issues a session.
func (s *Service) SignInWithOIDC(ctx context.Context, sub, email, name string) (*Session, error) {
	p, err := s.profiles.GetProfileByOIDCSub(ctx, sub)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p, err = s.profiles.GetProfileByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if p != nil {
			if err := s.profiles.LinkOIDCSubject(ctx, p.ID, sub); err != nil {
				return nil, err
			}
		} else {
			p = &models.Profile{Email: email, FullName: name, OIDCSub: &sub, PlatformRole: models.PlatformRoleUser}
			if err := s.profiles.CreateProfile(ctx, p); err != nil {
				return nil, err
			}
		}
	}
	return s.IssueSession(ctx, p)
}

// IssueSession creates access and refresh tokens for p and publishes SIGNED_IN
func (s *Service) IssueSession(ctx context.Context, p *models.Profile) (*Session, error) {
	sess := &Session{ID: uuid.New().String(), UserID: p.ID, Email: p.Email}

	var err error
	sess.AccessToken, err = GenerateToken(p.ID, p.Email, sess.ID, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	sess.RefreshToken, err = GenerateToken(p.ID, p.Email, sess.ID, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	sess.ExpiresAt = time.Now().Add(s.accessTTL)

	s.publish(ctx, AuthEvent{Type: EventSignedIn, UserID: p.ID, SessionID: sess.ID})
	return sess, nil
}

// GetCurrentSession returns the session behind an access token. Invalid, expired and
// revoked tokens yield nil without error; an error means the lookup itself failed.
func (s *Service) GetCurrentSession(ctx context.Context, accessToken string) (*Session, error) {
	if accessToken == "" {
		return nil, nil
	}
	claims, err := ValidateTokenOfType(accessToken, TokenTypeAccess)
	if err != nil {
		return nil, nil
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, nil
	}
	return &Session{
		ID:        claims.SessionID,
		UserID:    claims.UserID,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// CheckAccessToken verifies the signature, type and expiry of an access token without
// consulting the revocation list, and returns when it expires.
func (s *Service) CheckAccessToken(accessToken string) (time.Time, error) {
	claims, err := ValidateTokenOfType(accessToken, TokenTypeAccess)
	if err != nil {
		return time.Time{}, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// RefreshSession issues a new access token for the session behind refreshToken
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := ValidateTokenOfType(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}

	access, err := GenerateToken(claims.UserID, claims.Email, claims.SessionID, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	s.publish(ctx, AuthEvent{Type: EventTokenRefreshed, UserID: claims.UserID, SessionID: claims.SessionID})
	return &Session{
		ID:           claims.SessionID,
		UserID:       claims.UserID,
		Email:        claims.Email,
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(s.accessTTL),
	}, nil
}

// SignOut revokes the session behind accessToken and publishes SIGNED_OUT.
// Signing out an already invalid token is a no-op.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	claims, err := ValidateJWT(accessToken)
	if err != nil {
		return nil
	}
	if err := s.revocations.Revoke(ctx, claims.SessionID, s.refreshTTL); err != nil {
		return err
	}
	s.publish(ctx, AuthEvent{Type: EventSignedOut, UserID: claims.UserID, SessionID: claims.SessionID})
	return nil
}

// OnAuthStateChange subscribes fn to auth events and returns the unsubscribe func
func (s *Service) OnAuthStateChange(fn func(AuthEvent)) func() {
	return s.bus.Subscribe(fn)
}

// NotifyUserUpdated tells live sessions of userID that their role inputs changed
func (s *Service) NotifyUserUpdated(ctx context.Context, userID string) {
	s.publish(ctx, AuthEvent{Type: EventUserUpdated, UserID: userID})
}

func (s *Service) publish(ctx context.Context, ev AuthEvent) {
	ev.At = time.Now()
	if err := s.bus.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish auth event", "type", ev.Type, "user_id", ev.UserID, "error", err)
	}
}
