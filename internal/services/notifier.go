package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/telemetry"
)

// Notification types
const (
	NotificationAnnouncement    = "announcement"
	NotificationLicenseExpiring = "license_expiring"
	NotificationLicenseExpired  = "license_expired"
	NotificationMembership      = "membership"
)

// NotificationStore persists in-app notifications
type NotificationStore interface {
	CreateBatch(ctx context.Context, notifications []*models.Notification) error
}

// MemberDirectory lists tenant members and their contact details
type MemberDirectory interface {
	ListActiveUserIDs(ctx context.Context, orgID string, roles ...models.Role) ([]string, error)
}

// ProfileLookup loads a profile by id
type ProfileLookup interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
}

// Notifier fans tenant events out to members as in-app notifications and, for license
// events, optional email.
type Notifier struct {
	store    NotificationStore
	members  MemberDirectory
	profiles ProfileLookup
	mailer   Mailer
}

// NewNotifier creates a notifier. mailer may be nil to disable email.
func NewNotifier(store NotificationStore, members MemberDirectory, profiles ProfileLookup, mailer Mailer) *Notifier {
	return &Notifier{store: store, members: members, profiles: profiles, mailer: mailer}
}

// AnnouncementPublished notifies every active member except the author
func (n *Notifier) AnnouncementPublished(ctx context.Context, org *models.Organization, a *models.Announcement) (int, error) {
	ids, err := n.members.ListActiveUserIDs(ctx, org.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list announcement recipients: %w", err)
	}
	link := fmt.Sprintf("/t/%s/announcements/%s", org.Slug, a.ID)

	batch := make([]*models.Notification, 0, len(ids))
	for _, id := range ids {
		if id == a.AuthorID {
			continue
		}
		batch = append(batch, n.notification(id, org.ID, NotificationAnnouncement, a.Title, excerpt(a.Body, 200), &link))
	}
	if err := n.save(ctx, NotificationAnnouncement, batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// MembershipApproved tells an applicant they were admitted
func (n *Notifier) MembershipApproved(ctx context.Context, org *models.Organization, userID string) error {
	link := "/t/" + org.Slug
	return n.save(ctx, NotificationMembership, []*models.Notification{
		n.notification(userID, org.ID, NotificationMembership, "Welcome to "+org.Name, "Your membership was approved.", &link),
	})
}

// LicenseExpiring warns the tenant's owners and admins that the license ends at endsAt
func (n *Notifier) LicenseExpiring(ctx context.Context, org *models.Organization, endsAt time.Time) error {
	title := fmt.Sprintf("%s license expires soon", org.Name)
	body := fmt.Sprintf("The license of %s ends on %s. Renew it to keep admin features available.",
		org.Name, endsAt.UTC().Format("2006-01-02"))
	return n.notifyStaff(ctx, org, NotificationLicenseExpiring, title, body)
}

// LicenseExpired tells the tenant's owners and admins that the license lapsed
func (n *Notifier) LicenseExpired(ctx context.Context, org *models.Organization) error {
	title := fmt.Sprintf("%s license expired", org.Name)
	body := fmt.Sprintf("The license of %s has expired. Content stays readable, but creating content, invitations and branding changes are disabled until it is renewed.", org.Name)
	return n.notifyStaff(ctx, org, NotificationLicenseExpired, title, body)
}

func (n *Notifier) notifyStaff(ctx context.Context, org *models.Organization, kind, title, body string) error {
	ids, err := n.members.ListActiveUserIDs(ctx, org.ID, models.RoleOwner, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to list tenant staff: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	link := "/t/" + org.Slug + "/admin/license"

	batch := make([]*models.Notification, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, n.notification(id, org.ID, kind, title, body, &link))
	}
	if err := n.save(ctx, kind, batch); err != nil {
		return err
	}

	if n.mailer == nil || n.profiles == nil {
		return nil
	}
	emails := make([]string, 0, len(ids))
	for _, id := range ids {
		p, err := n.profiles.GetProfile(ctx, id)
		if err != nil || p == nil || p.Email == "" {
			continue
		}
		emails = append(emails, p.Email)
	}
	if err := n.mailer.Send(ctx, emails, title, body+"\n\n-- Community Hub"); err != nil {
		slog.Warn("failed to email license notice", "organization_id", org.ID, "type", kind, "error", err)
		return nil
	}
	telemetry.LicenseExpiryEmailsSentTotal.Inc()
	return nil
}

func (n *Notifier) save(ctx context.Context, kind string, batch []*models.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	if err := n.store.CreateBatch(ctx, batch); err != nil {
		return err
	}
	telemetry.NotificationsCreatedTotal.WithLabelValues(kind).Add(float64(len(batch)))
	return nil
}

func (n *Notifier) notification(userID, orgID, kind, title, body string, link *string) *models.Notification {
	return &models.Notification{
		UserID:         userID,
		OrganizationID: &orgID,
		Type:           kind,
		Title:          title,
		Body:           body,
		Link:           link,
		CreatedAt:      time.Now(),
	}
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
