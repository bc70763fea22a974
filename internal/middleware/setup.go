// setup.go authenticates first-run setup requests. Setup endpoints use their own scheme
// ("Authorization: SetupToken <token>") and stop accepting requests once setup completes.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/auth"
)

// SetupTokenContextKey is set when a request authenticated with the setup token
const SetupTokenContextKey = "is_setup_request"

const (
	setupMaxAttempts = 5
	setupRateWindow  = time.Minute
)

// SetupStore reports setup state and the stored setup token hash
type SetupStore interface {
	IsSetupCompleted(ctx context.Context) (bool, error)
	GetSetupTokenHash(ctx context.Context) (string, error)
}

// setupAttempts is a sliding window of attempts per client IP, checked before any
// bcrypt work is done.
type setupAttempts struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func (a *setupAttempts) allow(ip string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := now.Add(-setupRateWindow)
	recent := a.attempts[ip][:0]
	for _, t := range a.attempts[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= setupMaxAttempts {
		a.attempts[ip] = recent
		return false
	}
	a.attempts[ip] = append(recent, now)
	return true
}

// SetupTokenMiddleware admits requests carrying the valid setup token while setup is pending
func SetupTokenMiddleware(store SetupStore) gin.HandlerFunc {
	limiter := &setupAttempts{attempts: make(map[string][]time.Time)}

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		completed, err := store.IsSetupCompleted(ctx)
		if err != nil {
			slog.Error("setup middleware: failed to check setup status", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to check setup status"})
			return
		}
		if completed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Setup has already been completed"})
			return
		}

		clientIP := c.ClientIP()
		if !limiter.allow(clientIP, time.Now()) {
			slog.Warn("setup middleware: rate limit exceeded", "ip", clientIP)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many setup token attempts. Try again in one minute."})
			return
		}

		scheme, rawToken, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		rawToken = strings.TrimSpace(rawToken)
		if !ok || !strings.EqualFold(scheme, "SetupToken") || rawToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Use: Authorization: SetupToken <token>"})
			return
		}

		storedHash, err := store.GetSetupTokenHash(ctx)
		if err != nil {
			slog.Error("setup middleware: failed to get token hash", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate setup token"})
			return
		}
		if storedHash == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "No setup token has been generated. Restart the server to generate one."})
			return
		}
		if !auth.CheckHash(rawToken, storedHash) {
			slog.Warn("setup middleware: invalid setup token", "ip", clientIP)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid setup token"})
			return
		}

		c.Set(SetupTokenContextKey, true)
		c.Next()
	}
}
