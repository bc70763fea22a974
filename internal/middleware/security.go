// security.go provides Gin middleware that sets protective HTTP response headers.
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/config"
)

// SecurityHeadersConfig holds configuration for security headers
type SecurityHeadersConfig struct {
	// EnableHSTS enables HTTP Strict Transport Security
	EnableHSTS bool
	// HSTSMaxAge is the max-age value for HSTS in seconds
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool
	// FrameOptionsValue is the X-Frame-Options value (DENY, SAMEORIGIN); empty omits it
	FrameOptionsValue        string
	EnableContentTypeOptions bool
	ContentSecurityPolicy    string
	ReferrerPolicy           string
	PermissionsPolicy        string
	// ResourcePolicy is the Cross-Origin-Resource-Policy value. Uploaded tenant assets
	// (logos, resource files) are embedded by other origins and use cross-origin.
	ResourcePolicy string
}

// APISecurityHeadersConfig returns headers for JSON endpoints. HSTS is only sent when
// the server terminates TLS itself.
func APISecurityHeadersConfig(cfg config.SecurityConfig) SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:               cfg.TLS.Enabled,
		HSTSMaxAge:               31536000,
		HSTSIncludeSubdomains:    true,
		FrameOptionsValue:        "DENY",
		EnableContentTypeOptions: true,
		ContentSecurityPolicy:    "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:           "no-referrer",
		ResourcePolicy:           "same-origin",
	}
}

// FileSecurityHeadersConfig returns headers for served uploads
func FileSecurityHeadersConfig(cfg config.SecurityConfig) SecurityHeadersConfig {
	h := APISecurityHeadersConfig(cfg)
	h.ContentSecurityPolicy = "default-src 'none'; img-src 'self'; style-src 'unsafe-inline'; sandbox"
	h.ResourcePolicy = "cross-origin"
	return h
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware(h SecurityHeadersConfig) gin.HandlerFunc {
	hsts := ""
	if h.EnableHSTS {
		hsts = "max-age=" + strconv.Itoa(h.HSTSMaxAge)
		if h.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		if h.HSTSPreload {
			hsts += "; preload"
		}
	}

	return func(c *gin.Context) {
		if hsts != "" {
			c.Header("Strict-Transport-Security", hsts)
		}
		if h.FrameOptionsValue != "" {
			c.Header("X-Frame-Options", h.FrameOptionsValue)
		}
		if h.EnableContentTypeOptions {
			c.Header("X-Content-Type-Options", "nosniff")
		}
		if h.ContentSecurityPolicy != "" {
			c.Header("Content-Security-Policy", h.ContentSecurityPolicy)
		}
		if h.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", h.ReferrerPolicy)
		}
		if h.PermissionsPolicy != "" {
			c.Header("Permissions-Policy", h.PermissionsPolicy)
		}
		if h.ResourcePolicy != "" {
			c.Header("Cross-Origin-Resource-Policy", h.ResourcePolicy)
		}
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")

		c.Next()
	}
}
