// Package account implements the sign-up, sign-in, token refresh, sign-out and OIDC
// endpoints, plus the caller's session snapshot and membership list.
package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/auth"
	"github.com/community-hub/backend/internal/auth/oidc"
	"github.com/community-hub/backend/internal/config"
	"github.com/community-hub/backend/internal/db/models"
	"github.com/community-hub/backend/internal/middleware"
)

// Authenticator is the auth service surface used by the handlers
type Authenticator interface {
	SignUp(ctx context.Context, email, password string, data auth.ProfileData) (*models.Profile, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignInWithOIDC(ctx context.Context, sub, email, name string) (*auth.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// OIDCProvider runs the authorization code flow
type OIDCProvider interface {
	GetAuthURL(state, nonce string) string
	Authenticate(ctx context.Context, code, nonce string) (*oidc.Identity, error)
}

// SessionRegistry drops the server-side store of a signed-out token
type SessionRegistry interface {
	Forget(token string)
}

// MembershipLister lists the caller's memberships with their tenants
type MembershipLister interface {
	ListUserMemberships(ctx context.Context, userID string) ([]*models.UserMembership, error)
}

const oidcStateTTL = 10 * time.Minute

// oidcState is a pending OIDC login
type oidcState struct {
	nonce     string
	redirect  string
	createdAt time.Time
}

// Handlers serves the account endpoints
type Handlers struct {
	cfg         *config.AuthConfig
	auth        Authenticator
	sessions    SessionRegistry
	memberships MembershipLister
	oidc        OIDCProvider

	mu     sync.Mutex
	states map[string]oidcState
}

// NewHandlers creates the account handlers. provider may be nil when OIDC is disabled.
func NewHandlers(cfg *config.AuthConfig, authn Authenticator, sessions SessionRegistry, memberships MembershipLister, provider OIDCProvider) *Handlers {
	return &Handlers{
		cfg:         cfg,
		auth:        authn,
		sessions:    sessions,
		memberships: memberships,
		oidc:        provider,
		states:      make(map[string]oidcState),
	}
}

type signUpRequest struct {
	Email     string  `json:"email" binding:"required"`
	Password  string  `json:"password" binding:"required"`
	FullName  string  `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
}

// SignUp creates an account
// POST /api/v1/auth/signup
func (h *Handlers) SignUp() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.cfg.AllowPublicSignup {
			c.JSON(http.StatusForbidden, gin.H{"error": "public sign-up is disabled"})
			return
		}
		var req signUpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}

		p, err := h.auth.SignUp(c.Request.Context(), req.Email, req.Password, auth.ProfileData{
			FullName:  req.FullName,
			AvatarURL: req.AvatarURL,
		})
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case err != nil:
			slog.Error("sign-up failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"profile": p})
	}
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignIn exchanges credentials for a session and sets the session cookie
// POST /api/v1/auth/signin
func (h *Handlers) SignIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signInRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}

		sess, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			slog.Error("sign-in failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in"})
			return
		}
		h.setCookie(c, sess.AccessToken)
		c.JSON(http.StatusOK, sess)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh issues a new access token
// POST /api/v1/auth/refresh
func (h *Handlers) Refresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
			return
		}
		sess, err := h.auth.RefreshSession(c.Request.Context(), req.RefreshToken)
		if errors.Is(err, auth.ErrInvalidToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			slog.Error("token refresh failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh session"})
			return
		}
		h.setCookie(c, sess.AccessToken)
		c.JSON(http.StatusOK, sess)
	}
}

// SignOut revokes the request's session. Signing out without a session succeeds.
// POST /api/v1/auth/signout
func (h *Handlers) SignOut() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := middleware.GetAccessToken(c)
		if token != "" {
			if err := h.auth.SignOut(c.Request.Context(), token); err != nil {
				slog.Error("sign-out failed", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign out"})
				return
			}
			h.sessions.Forget(token)
		}
		h.clearCookie(c)
		c.JSON(http.StatusOK, gin.H{"message": "signed out"})
	}
}

// Session returns the caller's session snapshot; anonymous callers get an empty one
// GET /api/v1/session
func (h *Handlers) Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, middleware.GetSession(c))
	}
}

// MyMemberships lists the caller's memberships across tenants
// GET /api/v1/me/memberships
func (h *Handlers) MyMemberships() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.memberships.ListUserMemberships(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list memberships"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"memberships": list})
	}
}

// OIDCLogin redirects to the identity provider
// GET /api/v1/auth/oidc/login?redirect=/path
func (h *Handlers) OIDCLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.oidc == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "OIDC sign-in is not configured"})
			return
		}
		state, err1 := randomString()
		nonce, err2 := randomString()
		if err1 != nil || err2 != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate state"})
			return
		}

		h.mu.Lock()
		h.pruneStates(time.Now())
		h.states[state] = oidcState{nonce: nonce, redirect: safeRedirect(c.Query("redirect")), createdAt: time.Now()}
		h.mu.Unlock()

		c.Redirect(http.StatusFound, h.oidc.GetAuthURL(state, nonce))
	}
}

// OIDCCallback completes the code flow, signs the identity in and returns to the
// path the login started from.
// GET /api/v1/auth/oidc/callback?code=...&state=...
func (h *Handlers) OIDCCallback() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.oidc == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "OIDC sign-in is not configured"})
			return
		}
		h.mu.Lock()
		st, ok := h.states[c.Query("state")]
		delete(h.states, c.Query("state"))
		h.mu.Unlock()
		if !ok || time.Since(st.createdAt) > oidcStateTTL {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired state"})
			return
		}
		code := c.Query("code")
		if code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
			return
		}

		ctx := c.Request.Context()
		id, err := h.oidc.Authenticate(ctx, code, st.nonce)
		if err != nil {
			slog.Warn("oidc authentication failed", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
			return
		}
		sess, err := h.auth.SignInWithOIDC(ctx, id.Subject, id.Email, id.Name)
		if err != nil {
			slog.Error("oidc sign-in failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in"})
			return
		}
		h.setCookie(c, sess.AccessToken)
		c.Redirect(http.StatusFound, st.redirect)
	}
}

func (h *Handlers) pruneStates(now time.Time) {
	for k, st := range h.states {
		if now.Sub(st.createdAt) > oidcStateTTL {
			delete(h.states, k)
		}
	}
}

func (h *Handlers) setCookie(c *gin.Context, token string) {
	if h.cfg.CookieName == "" || token == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, token, int(h.cfg.AccessTokenTTL.Seconds()), "/", "", h.cfg.CookieSecure, true)
}

func (h *Handlers) clearCookie(c *gin.Context) {
	if h.cfg.CookieName == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, "", -1, "/", "", h.cfg.CookieSecure, true)
}

// safeRedirect keeps post-login redirects on this site
func safeRedirect(path string) string {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.Contains(path, `\`) {
		return "/"
	}
	return path
}

func randomString() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
