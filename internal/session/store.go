// Package session holds the per-token session stores. A Store owns the identity behind
// one access token together with the derived platform role, effective role and active
// organization, and re-resolves them whenever the auth collaborator reports a change
// for that identity.
//
// Resolution passes run on a single goroutine per store. Every request for a pass bumps
// a generation counter; a pass only commits its result if no newer pass was requested
// and the store is still open, so overlapping sign-in/sign-out events cannot leave an
// older result in place.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/community-hub/backend/internal/auth"
	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/safego"
	"github.com/community-hub/backend/internal/telemetry"
)

// AuthCollaborator is the part of the auth service a store consumes
type AuthCollaborator interface {
	GetCurrentSession(ctx context.Context, accessToken string) (*auth.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	OnAuthStateChange(fn func(auth.AuthEvent)) func()
	CheckAccessToken(accessToken string) (time.Time, error)
}

// ProfileReader loads the profile behind an identity
type ProfileReader interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
}

// MembershipReader lists all memberships of an identity in query order
type MembershipReader interface {
	ListByUser(ctx context.Context, userID string) ([]*models.Membership, error)
}

// Dependencies are the collaborators shared by all stores of a manager
type Dependencies struct {
	Auth        AuthCollaborator
	Profiles    ProfileReader
	Memberships MembershipReader
}

// User is the identity exposed by a snapshot
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
}

// Snapshot is an immutable view of a store. Role is empty when the identity has no
// effective role.
type Snapshot struct {
	Loading        bool                `json:"loading"`
	User           *User               `json:"user"`
	Role           models.Role         `json:"role"`
	PlatformRole   models.PlatformRole `json:"platform_role"`
	OrganizationID string              `json:"organization_id"`
	ProfileName    string              `json:"profile_name"`
	ExpiresAt      time.Time           `json:"expires_at"`
	Generation     uint64              `json:"-"`
}

// Authenticated reports whether the snapshot carries an identity
func (s Snapshot) Authenticated() bool {
	return s.User != nil
}

// IsSuperAdmin reports whether the cached platform role is super_admin
func (s Snapshot) IsSuperAdmin() bool {
	return s.PlatformRole == models.PlatformRoleSuperAdmin
}

// Store owns the session state behind one access token
type Store struct {
	token   string
	deps    Dependencies
	timeout time.Duration

	// requested is bumped for every requested pass; a pass commits only while its
	// generation is still the latest.
	requested atomic.Uint64
	wake      chan struct{}

	mu        sync.RWMutex
	snap      Snapshot
	committed uint64
	changed   chan struct{}
	closed    bool

	lastUsed    atomic.Int64
	expiresAt   atomic.Int64
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	done        chan struct{}
}

// NewStore creates a store in the loading state and starts its first resolution pass.
// timeout bounds every pass.
func NewStore(token string, deps Dependencies, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		token:   token,
		deps:    deps,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
		snap:    Snapshot{Loading: true},
		changed: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.touch()

	s.unsubscribe = deps.Auth.OnAuthStateChange(s.onAuthEvent)
	s.request()
	safego.Go(s.run)
	return s
}

// Snapshot returns the current state without waiting
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	return s.visible(snap, time.Now())
}

// Wait blocks until the first resolution pass has committed or ctx is done, and returns
// the state at that point. A snapshot with Loading set means ctx ran out first.
func (s *Store) Wait(ctx context.Context) Snapshot {
	s.touch()
	return s.waitFor(ctx, 1)
}

// Refresh requests a new resolution pass and waits for it, or for ctx, to finish.
func (s *Store) Refresh(ctx context.Context) Snapshot {
	s.touch()
	return s.waitFor(ctx, s.request())
}

// SignOut revokes the session behind the store's token and re-resolves, which leaves
// the store without an identity.
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.deps.Auth.SignOut(ctx, s.token); err != nil {
		return err
	}
	s.Refresh(ctx)
	return nil
}

// Close stops the store. In-flight fetches are cancelled and their results discarded.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.changed)
	s.mu.Unlock()

	s.unsubscribe()
	s.cancel()
	<-s.done
}

// LastUsed returns when the store was last read through Wait or Refresh
func (s *Store) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Store) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// request records that a pass is wanted and returns its generation
func (s *Store) request() uint64 {
	gen := s.requested.Add(1)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return gen
}

func (s *Store) waitFor(ctx context.Context, gen uint64) Snapshot {
	for {
		s.mu.RLock()
		snap, committed, changed, closed := s.snap, s.committed, s.changed, s.closed
		s.mu.RUnlock()

		if committed >= gen || closed {
			return s.visible(snap, time.Now())
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return s.visible(snap, time.Now())
		}
	}
}

// SetExpiry records when the store's access token stops being valid. A zero time means
// no known expiry.
func (s *Store) SetExpiry(t time.Time) {
	if t.IsZero() {
		return
	}
	s.expiresAt.Store(t.UnixNano())
}

// Expired reports whether the store's access token has expired at now
func (s *Store) Expired(now time.Time) bool {
	exp := s.expiresAt.Load()
	return exp != 0 && now.UnixNano() >= exp
}

// visible hides the identity of snap once the access token has expired
func (s *Store) visible(snap Snapshot, now time.Time) Snapshot {
	if snap.Authenticated() && s.Expired(now) {
		return Snapshot{Generation: snap.Generation}
	}
	return snap
}

func (s *Store) onAuthEvent(ev auth.AuthEvent) {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	if snap.User == nil {
		return
	}
	if ev.UserID == snap.User.ID || (ev.SessionID != "" && ev.SessionID == snap.User.SessionID) {
		s.request()
	}
}

func (s *Store) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
			s.pass()
		}
	}
}

// pass runs one resolution and commits it if it is still the latest
func (s *Store) pass() {
	if s.ctx.Err() != nil {
		return
	}
	gen := s.requested.Load()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	next, outcome := s.resolve(ctx)
	next.Generation = gen

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.requested.Load() {
		telemetry.SessionStalePassesTotal.Inc()
		return
	}
	s.snap = next
	s.committed = gen
	s.SetExpiry(next.ExpiresAt)
	close(s.changed)
	s.changed = make(chan struct{})
	telemetry.SessionResolutionsTotal.WithLabelValues(outcome).Inc()
}

// resolve fetches the session, then profile and memberships concurrently, and derives
// the roles. Fetch failures fall back to no access.
func (s *Store) resolve(ctx context.Context) (Snapshot, string) {
	sess, err := s.deps.Auth.GetCurrentSession(ctx, s.token)
	if err != nil {
		telemetry.SessionFetchFailuresTotal.WithLabelValues("session").Inc()
		slog.Warn("session fetch failed, treating as signed out", "error", err)
		return Snapshot{}, "degraded"
	}
	if sess == nil {
		return Snapshot{}, "anonymous"
	}

	var (
		profile     *models.Profile
		memberships []*models.Membership
		profileErr  error
		memberErr   error
		g           errgroup.Group
	)
	g.Go(func() error {
		profile, profileErr = s.deps.Profiles.GetProfile(ctx, sess.UserID)
		return nil
	})
	g.Go(func() error {
		memberships, memberErr = s.deps.Memberships.ListByUser(ctx, sess.UserID)
		return nil
	})
	_ = g.Wait()

	outcome := "resolved"
	platformRole := models.PlatformRoleUser
	profileName := sess.Email
	if profileErr != nil {
		outcome = "degraded"
		telemetry.SessionFetchFailuresTotal.WithLabelValues("profile").Inc()
		slog.Warn("profile fetch failed during session resolution", "user_id", sess.UserID, "error", profileErr)
	} else if profile != nil {
		if profile.PlatformRole.Valid() {
			platformRole = profile.PlatformRole
		}
		if profile.FullName != "" {
			profileName = profile.FullName
		}
	}
	if memberErr != nil {
		outcome = "degraded"
		memberships = nil
		telemetry.SessionFetchFailuresTotal.WithLabelValues("memberships").Inc()
		slog.Warn("membership fetch failed during session resolution", "user_id", sess.UserID, "error", memberErr)
	}

	snap := Snapshot{
		User:         &User{ID: sess.UserID, Email: sess.Email, SessionID: sess.ID},
		Role:         auth.ResolveEffectiveRole(platformRole, memberships),
		PlatformRole: platformRole,
		ProfileName:  profileName,
		ExpiresAt:    sess.ExpiresAt,
	}
	if active := auth.SelectActiveMembership(memberships); active != nil {
		snap.OrganizationID = active.OrganizationID
	}
	return snap, outcome
}
