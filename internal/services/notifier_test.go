package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/community-hub/backend/internal/config"
	"github.com/community-hub/backend/internal/db/models"
)

type captureStore struct {
	batches [][]*models.Notification
	err     error
}

func (s *captureStore) CreateBatch(_ context.Context, ns []*models.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, ns)
	return nil
}

type fakeDirectory struct {
	members map[models.Role][]string
}

func (d *fakeDirectory) ListActiveUserIDs(_ context.Context, _ string, roles ...models.Role) ([]string, error) {
	if len(roles) == 0 {
		var all []string
		for _, ids := range d.members {
			all = append(all, ids...)
		}
		return all, nil
	}
	var ids []string
	for _, r := range roles {
		ids = append(ids, d.members[r]...)
	}
	return ids, nil
}

type fakeLookup map[string]*models.Profile

func (f fakeLookup) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	return f[id], nil
}

type captureMailer struct {
	to      []string
	subject string
	err     error
}

func (m *captureMailer) Send(_ context.Context, to []string, subject, _ string) error {
	m.to, m.subject = to, subject
	return m.err
}

var acme = &models.Organization{ID: "org-1", Slug: "acme", Name: "Acme"}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{members: map[models.Role][]string{
		models.RoleOwner:  {"owner"},
		models.RoleAdmin:  {"admin"},
		models.RoleMember: {"m1", "m2"},
	}}
}

func TestNotifier_AnnouncementSkipsAuthor(t *testing.T) {
	store := &captureStore{}
	n := NewNotifier(store, newDirectory(), nil, nil)

	sent, err := n.AnnouncementPublished(context.Background(), acme, &models.Announcement{
		ID: "a-1", AuthorID: "admin", Title: "Hello", Body: strings.Repeat("x", 300),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	require.Len(t, store.batches, 1)
	for _, notif := range store.batches[0] {
		assert.NotEqual(t, "admin", notif.UserID)
		assert.Equal(t, NotificationAnnouncement, notif.Type)
		assert.Equal(t, "/t/acme/announcements/a-1", *notif.Link)
		assert.Len(t, notif.Body, 203)
	}
}

func TestNotifier_LicenseExpiringEmailsStaff(t *testing.T) {
	store := &captureStore{}
	mailer := &captureMailer{}
	profiles := fakeLookup{
		"owner": {ID: "owner", Email: "owner@example.com"},
		"admin": {ID: "admin", Email: "admin@example.com"},
	}
	n := NewNotifier(store, newDirectory(), profiles, mailer)

	err := n.LicenseExpiring(context.Background(), acme, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 2)
	assert.ElementsMatch(t, []string{"owner@example.com", "admin@example.com"}, mailer.to)
	assert.Contains(t, store.batches[0][0].Body, "2026-11-01")
}

func TestNotifier_MailFailureIsNotFatal(t *testing.T) {
	mailer := &captureMailer{err: errors.New("smtp down")}
	n := NewNotifier(&captureStore{}, newDirectory(), fakeLookup{"owner": {Email: "o@example.com"}}, mailer)

	assert.NoError(t, n.LicenseExpired(context.Background(), acme))
}

func TestNotifier_StoreFailure(t *testing.T) {
	n := NewNotifier(&captureStore{err: errors.New("db down")}, newDirectory(), nil, nil)
	assert.Error(t, n.LicenseExpired(context.Background(), acme))
}

func TestComposeMessage(t *testing.T) {
	msg := string(composeMessage("hub@example.com", []string{"a@example.com", "b@example.com"}, "Sub\r\nBcc: x", "line1\nline2"))

	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Subject: SubBcc: x\r\n")
	assert.Contains(t, msg, "line1\r\nline2\r\n")
}

func TestNewSMTPMailer(t *testing.T) {
	assert.Nil(t, NewSMTPMailer(smtpConfig("")))
	m := NewSMTPMailer(smtpConfig("mail.example.com"))
	require.NotNil(t, m)
	assert.Equal(t, 587, m.cfg.Port)
}

func smtpConfig(host string) config.SMTPConfig {
	return config.SMTPConfig{Host: host, From: "hub@example.com"}
}
