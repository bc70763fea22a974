// Package tenant resolves the tenant a request operates on, together with the caller's
// membership in it, the tenant license and the tenant settings.
package tenant

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/telemetry"
)

// OrganizationReader loads tenants
type OrganizationReader interface {
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
	GetByID(ctx context.Context, id string) (*models.Organization, error)
}

// MembershipGetter loads one membership
type MembershipGetter interface {
	Get(ctx context.Context, orgID, userID string) (*models.Membership, error)
}

// LicenseReader loads the current license of a tenant
type LicenseReader interface {
	GetCurrentForOrganization(ctx context.Context, orgID string) (*models.OrganizationLicense, error)
}

// SettingsReader loads tenant settings
type SettingsReader interface {
	GetTenantSettings(ctx context.Context, orgID string) (*models.TenantSettings, error)
}

// Key selects a tenant by slug or, when Slug is empty, by organization id
type Key struct {
	Slug           string
	OrganizationID string
}

func (k Key) empty() bool {
	return k.Slug == "" && k.OrganizationID == ""
}

// Snapshot is one consistent view of a tenant context. NotFound is set when the
// tenant does not exist, or is not visible on a public route; it is a state, not an error.
type Snapshot struct {
	Loading    bool                        `json:"loading"`
	NotFound   bool                        `json:"not_found"`
	Tenant     *models.Organization        `json:"tenant"`
	Membership *models.Membership          `json:"membership"`
	License    *models.OrganizationLicense `json:"license"`
	Settings   *models.TenantSettings      `json:"settings"`
}

// LicenseActive reports whether the tenant license grants access at t
func (s *Snapshot) LicenseActive(t time.Time) bool {
	return s.License.IsActiveAt(t)
}

// Provider builds tenant contexts from its readers
type Provider struct {
	orgs        OrganizationReader
	memberships MembershipGetter
	licenses    LicenseReader
	settings    SettingsReader
}

// NewProvider creates a tenant context provider
func NewProvider(orgs OrganizationReader, memberships MembershipGetter, licenses LicenseReader, settings SettingsReader) *Provider {
	return &Provider{orgs: orgs, memberships: memberships, licenses: licenses, settings: settings}
}

// Context returns an unresolved context for key as seen by userID (empty when anonymous).
// public marks public routes, where only active public tenants are visible.
func (p *Provider) Context(key Key, userID string, public bool) *Context {
	c := &Context{provider: p, key: key, userID: userID, public: public}
	c.snap.Store(&Snapshot{Loading: true})
	return c
}

// Context is the tenant state for one key and caller. Readers always see a complete
// snapshot; Refresh swaps in a new one only once all of its pieces are fetched.
type Context struct {
	provider *Provider
	key      Key
	userID   string
	public   bool

	snap atomic.Pointer[Snapshot]
}

// Snapshot returns the current view
func (c *Context) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Refresh re-fetches tenant, membership, license and settings. When ctx ends before
// the fetch completes the previous snapshot is kept and returned.
func (c *Context) Refresh(ctx context.Context) *Snapshot {
	next, ok := c.provider.fetch(ctx, c.key, c.userID, c.public)
	if !ok {
		return c.snap.Load()
	}
	c.snap.Store(next)
	return next
}

// fetch resolves the tenant first, then the caller-scoped pieces concurrently. Failures
// other than ctx expiry resolve to absent data. ok is false when ctx expired.
func (p *Provider) fetch(ctx context.Context, key Key, userID string, public bool) (*Snapshot, bool) {
	if key.empty() {
		telemetry.TenantResolutionsTotal.WithLabelValues("not_found").Inc()
		return &Snapshot{NotFound: true}, true
	}

	var (
		org *models.Organization
		err error
	)
	if key.Slug != "" {
		org, err = p.orgs.GetBySlug(ctx, key.Slug)
	} else {
		org, err = p.orgs.GetByID(ctx, key.OrganizationID)
	}
	if ctx.Err() != nil {
		return nil, false
	}
	if err != nil {
		telemetry.TenantResolutionsTotal.WithLabelValues("error").Inc()
		slog.Warn("tenant fetch failed", "slug", key.Slug, "organization_id", key.OrganizationID, "error", err)
		return &Snapshot{NotFound: true}, true
	}
	if org == nil || (public && !org.PubliclyVisible()) {
		telemetry.TenantResolutionsTotal.WithLabelValues("not_found").Inc()
		return &Snapshot{NotFound: true}, true
	}

	snap := &Snapshot{Tenant: org}
	var g errgroup.Group
	if userID != "" {
		g.Go(func() error {
			m, err := p.memberships.Get(ctx, org.ID, userID)
			if err != nil {
				slog.Warn("tenant membership fetch failed", "slug", org.Slug, "user_id", userID, "error", err)
				return nil
			}
			snap.Membership = m
			return nil
		})
	}
	g.Go(func() error {
		l, err := p.licenses.GetCurrentForOrganization(ctx, org.ID)
		if err != nil {
			slog.Warn("tenant license fetch failed", "slug", org.Slug, "error", err)
			return nil
		}
		snap.License = l
		return nil
	})
	g.Go(func() error {
		s, err := p.settings.GetTenantSettings(ctx, org.ID)
		if err != nil {
			slog.Warn("tenant settings fetch failed", "slug", org.Slug, "error", err)
			return nil
		}
		snap.Settings = s
		return nil
	})
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil, false
	}
	if snap.Settings == nil {
		snap.Settings = models.DefaultTenantSettings(org.ID)
	}

	telemetry.TenantResolutionsTotal.WithLabelValues("found").Inc()
	return snap, true
}
