package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/community-hub/backend/internal/auth"
	"github.com/community-hub/backend/internal/telemetry"
)

// Config controls store lifetimes
type Config struct {
	ResolveTimeout  time.Duration
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

// Manager is the process-wide registry of stores, keyed by the digest of their token.
// Stores that have not been read for IdleTTL are closed by the cleanup loop.
type Manager struct {
	deps Dependencies
	cfg  Config

	mu     sync.Mutex
	stores map[string]*Store

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager
func NewManager(deps Dependencies, cfg Config) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	return &Manager{
		deps:     deps,
		cfg:      cfg,
		stores:   make(map[string]*Store),
		stopChan: make(chan struct{}),
	}
}

// Get returns the store for token, creating it on first use. Tokens that fail the
// signature, type or expiry check have no store and yield nil, as does an empty token.
// A store whose token has expired since it was created is closed and removed.
func (m *Manager) Get(token string) *Store {
	if token == "" {
		return nil
	}
	key := auth.DigestToken(token)
	now := time.Now()

	m.mu.Lock()
	if s, ok := m.stores[key]; ok {
		if !s.Expired(now) {
			s.touch()
			m.mu.Unlock()
			return s
		}
		delete(m.stores, key)
		telemetry.ActiveSessions.Set(float64(len(m.stores)))
		m.mu.Unlock()
		s.Close()
		return nil
	}
	m.mu.Unlock()

	expiresAt, err := m.deps.Auth.CheckAccessToken(token)
	if err != nil || (!expiresAt.IsZero() && !now.Before(expiresAt)) {
		telemetry.SessionTokensRejectedTotal.Inc()
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stores[key]; ok {
		s.touch()
		return s
	}
	s := NewStore(token, m.deps, m.cfg.ResolveTimeout)
	s.SetExpiry(expiresAt)
	m.stores[key] = s
	telemetry.ActiveSessions.Set(float64(len(m.stores)))
	return s
}

// Forget closes and removes the store for token, if any
func (m *Manager) Forget(token string) {
	key := auth.DigestToken(token)
	m.mu.Lock()
	s, ok := m.stores[key]
	delete(m.stores, key)
	telemetry.ActiveSessions.Set(float64(len(m.stores)))
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Len returns the number of live stores
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// Start runs the idle eviction loop until ctx is cancelled or Stop is called.
// All remaining stores are closed on exit.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	defer m.closeAll()

	for {
		select {
		case <-ticker.C:
			if n := m.evictIdle(time.Now()); n > 0 {
				slog.Debug("evicted idle session stores", "count", n)
			}
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the eviction loop
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// evictIdle closes stores unused since now minus the idle TTL, and stores whose token
// has expired, and returns how many
func (m *Manager) evictIdle(now time.Time) int {
	cutoff := now.Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var idle []*Store
	for key, s := range m.stores {
		if s.LastUsed().Before(cutoff) || s.Expired(now) {
			idle = append(idle, s)
			delete(m.stores, key)
		}
	}
	telemetry.ActiveSessions.Set(float64(len(m.stores)))
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	return len(idle)
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	stores := m.stores
	m.stores = make(map[string]*Store)
	telemetry.ActiveSessions.Set(0)
	m.mu.Unlock()

	for _, s := range stores {
		s.Close()
	}
}
