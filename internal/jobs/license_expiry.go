// license_expiry.go implements the LicenseExpiryJob, which periodically moves lapsed
// trial/active tenant licenses to expired and warns tenant staff ahead of expiry. Warning
// state is persisted (expiry_warned_at) so each license is warned at most once, even
// across restarts.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/community-hub/backend/internal/config"
	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/telemetry"
)

// LicenseStore is the license access the job needs
type LicenseStore interface {
	ExpireLapsed(ctx context.Context, now time.Time) ([]*models.OrganizationLicense, error)
	ListExpiringUnwarned(ctx context.Context, cutoff time.Time) ([]*models.OrganizationLicense, error)
	MarkWarned(ctx context.Context, id string) error
}

// OrganizationLookup loads a tenant by id
type OrganizationLookup interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
}

// LicenseNotices delivers license notices to tenant staff
type LicenseNotices interface {
	LicenseExpiring(ctx context.Context, org *models.Organization, endsAt time.Time) error
	LicenseExpired(ctx context.Context, org *models.Organization) error
}

// LicenseExpiryJob expires lapsed licenses and sends expiry warnings
type LicenseExpiryJob struct {
	licenses    LicenseStore
	orgs        OrganizationLookup
	notices     LicenseNotices
	interval    time.Duration
	warningDays int
	stopChan    chan struct{}
	now         func() time.Time
}

// NewLicenseExpiryJob creates the job from the notifications config
func NewLicenseExpiryJob(licenses LicenseStore, orgs OrganizationLookup, notices LicenseNotices, cfg *config.NotificationsConfig) *LicenseExpiryJob {
	interval := cfg.LicenseCheckInterval
	if interval <= 0 {
		interval = time.Hour
	}
	days := cfg.LicenseExpiryWarningDays
	if days <= 0 {
		days = 7
	}
	return &LicenseExpiryJob{
		licenses:    licenses,
		orgs:        orgs,
		notices:     notices,
		interval:    interval,
		warningDays: days,
		stopChan:    make(chan struct{}),
		now:         time.Now,
	}
}

// Start runs a check immediately and then on every interval until ctx is cancelled or
// Stop is called.
func (j *LicenseExpiryJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("license expiry job started", "interval", j.interval, "warning_days", j.warningDays)
	j.runCheck(ctx)

	for {
		select {
		case <-ticker.C:
			j.runCheck(ctx)
		case <-j.stopChan:
			slog.Info("license expiry job stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the loop to exit
func (j *LicenseExpiryJob) Stop() {
	close(j.stopChan)
}

func (j *LicenseExpiryJob) runCheck(ctx context.Context) {
	now := j.now()

	expired, err := j.licenses.ExpireLapsed(ctx, now)
	if err != nil {
		slog.Error("license expiry job: failed to expire licenses", "error", err)
	}
	for _, l := range expired {
		telemetry.LicensesExpiredTotal.Inc()
		org := j.organization(ctx, l.OrganizationID)
		if org == nil {
			continue
		}
		if err := j.notices.LicenseExpired(ctx, org); err != nil {
			slog.Warn("license expiry job: failed to notify expiry", "organization_id", org.ID, "error", err)
		}
	}
	if len(expired) > 0 {
		slog.Info("license expiry job: licenses expired", "count", len(expired))
	}

	cutoff := now.Add(time.Duration(j.warningDays) * 24 * time.Hour)
	expiring, err := j.licenses.ListExpiringUnwarned(ctx, cutoff)
	if err != nil {
		slog.Error("license expiry job: failed to list expiring licenses", "error", err)
		return
	}
	for _, l := range expiring {
		org := j.organization(ctx, l.OrganizationID)
		if org == nil || l.EndsAt == nil {
			continue
		}
		if err := j.notices.LicenseExpiring(ctx, org, *l.EndsAt); err != nil {
			slog.Warn("license expiry job: failed to send warning", "organization_id", org.ID, "error", err)
			continue
		}
		if err := j.licenses.MarkWarned(ctx, l.ID); err != nil {
			slog.Error("license expiry job: failed to mark warned", "license_id", l.ID, "error", err)
		}
	}
}

func (j *LicenseExpiryJob) organization(ctx context.Context, id string) *models.Organization {
	org, err := j.orgs.GetByID(ctx, id)
	if err != nil {
		slog.Warn("license expiry job: failed to load organization", "organization_id", id, "error", err)
		return nil
	}
	return org
}
