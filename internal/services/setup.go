package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/community-hub/backend/internal/auth"
	"github.com/community-hub/backend/internal/db/models"
)

// Platform setting keys used by first-run setup
const (
	SettingSetupCompleted = "setup_completed"
	SettingSetupTokenHash = "setup_token_hash"
)

var (
	// ErrSetupCompleted is returned once the first super admin exists
	ErrSetupCompleted = errors.New("setup already completed")
	// ErrProfileNotFound is returned when the profile to promote does not exist
	ErrProfileNotFound = errors.New("profile not found")
)

// PlatformSettings reads and writes platform settings
type PlatformSettings interface {
	GetPlatformSetting(ctx context.Context, key string) (*models.PlatformSetting, error)
	SetPlatformSetting(ctx context.Context, key string, value json.RawMessage, updatedBy *string) error
}

// SetupProfiles is the profile access first-run setup needs
type SetupProfiles interface {
	GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error)
	SetPlatformRole(ctx context.Context, id string, role models.PlatformRole) error
}

// UserNotifier announces that a user's authorization data changed
type UserNotifier interface {
	NotifyUserUpdated(ctx context.Context, userID string)
}

// SetupService guards the one-time promotion of the first super admin
type SetupService struct {
	settings PlatformSettings
	profiles SetupProfiles
	notifier UserNotifier
}

// NewSetupService creates a setup service. notifier may be nil.
func NewSetupService(settings PlatformSettings, profiles SetupProfiles, notifier UserNotifier) *SetupService {
	return &SetupService{settings: settings, profiles: profiles, notifier: notifier}
}

// IsSetupCompleted reports whether setup already ran
func (s *SetupService) IsSetupCompleted(ctx context.Context) (bool, error) {
	setting, err := s.settings.GetPlatformSetting(ctx, SettingSetupCompleted)
	if err != nil {
		return false, fmt.Errorf("failed to check setup status: %w", err)
	}
	if setting == nil {
		return false, nil
	}
	var done bool
	if err := json.Unmarshal(setting.Value, &done); err != nil {
		return false, fmt.Errorf("failed to decode setup status: %w", err)
	}
	return done, nil
}

// GetSetupTokenHash returns the stored bcrypt hash of the setup token, or ""
func (s *SetupService) GetSetupTokenHash(ctx context.Context) (string, error) {
	setting, err := s.settings.GetPlatformSetting(ctx, SettingSetupTokenHash)
	if err != nil {
		return "", fmt.Errorf("failed to get setup token hash: %w", err)
	}
	if setting == nil {
		return "", nil
	}
	var hash string
	if err := json.Unmarshal(setting.Value, &hash); err != nil {
		return "", fmt.Errorf("failed to decode setup token hash: %w", err)
	}
	return hash, nil
}

// EnsureSetupToken generates and stores a setup token when setup is pending and none
// exists yet. The raw token is returned only when it was generated by this call.
func (s *SetupService) EnsureSetupToken(ctx context.Context) (string, error) {
	done, err := s.IsSetupCompleted(ctx)
	if err != nil || done {
		return "", err
	}
	existing, err := s.GetSetupTokenHash(ctx)
	if err != nil || existing != "" {
		return "", err
	}

	token, hash, err := auth.GenerateSetupToken()
	if err != nil {
		return "", err
	}
	value, _ := json.Marshal(hash)
	if err := s.settings.SetPlatformSetting(ctx, SettingSetupTokenHash, value, nil); err != nil {
		return "", fmt.Errorf("failed to store setup token hash: %w", err)
	}
	return token, nil
}

// PromoteSuperAdmin grants super_admin to the profile registered under email, marks
// setup complete and clears the token hash.
func (s *SetupService) PromoteSuperAdmin(ctx context.Context, email string) (*models.Profile, error) {
	done, err := s.IsSetupCompleted(ctx)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, ErrSetupCompleted
	}

	p, err := s.profiles.GetProfileByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	if err := s.profiles.SetPlatformRole(ctx, p.ID, models.PlatformRoleSuperAdmin); err != nil {
		return nil, err
	}
	p.PlatformRole = models.PlatformRoleSuperAdmin

	if err := s.settings.SetPlatformSetting(ctx, SettingSetupCompleted, json.RawMessage(`true`), &p.ID); err != nil {
		return nil, fmt.Errorf("failed to mark setup completed: %w", err)
	}
	if err := s.settings.SetPlatformSetting(ctx, SettingSetupTokenHash, json.RawMessage(`""`), &p.ID); err != nil {
		return nil, fmt.Errorf("failed to clear setup token: %w", err)
	}
	if s.notifier != nil {
		s.notifier.NotifyUserUpdated(ctx, p.ID)
	}
	return p, nil
}
