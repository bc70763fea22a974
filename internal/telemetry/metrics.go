// Package telemetry provides application-level observability for the community hub.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served
// on the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<HUB_TELEMETRY_METRICS_PORT>/metrics
//
// Default port: 9090. It is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Session resolution outcomes and discarded stale passes
//   - Guard decisions and super-admin verifications
//   - Notification fan-out and license expiry counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/t/:slug/posts)
// rather than the raw request URL so tenant slugs and ids never become label values.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Session metrics, recorded by internal/session.
//
// SessionResolutionsTotal counts committed resolution passes by outcome:
// "anonymous", "resolved", or "degraded" (a profile or membership fetch failed and the
// pass fell back to no access). A rising degraded rate means users are being denied
// because of backend errors rather than missing rights.
//
// SessionFetchFailuresTotal counts failed fetches by source {session, profile, memberships}.
//
// SessionStalePassesTotal counts resolution passes whose results were discarded because
// a newer pass started or the store was closed first.
//
// Example PromQL queries:
//   - Degraded share:  rate(session_resolutions_total{outcome="degraded"}[5m]) / rate(session_resolutions_total[5m])
var (
	SessionResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_resolutions_total",
			Help: "Total number of committed session resolution passes, by outcome.",
		},
		[]string{"outcome"},
	)

	SessionFetchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_fetch_failures_total",
			Help: "Total number of failed fetches during session resolution, by source.",
		},
		[]string{"source"},
	)

	SessionStalePassesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_stale_passes_total",
			Help: "Total number of session resolution passes discarded as stale.",
		},
	)

	SessionTokensRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_tokens_rejected_total",
			Help: "Total number of request tokens refused a session store because they were malformed or expired.",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_session_stores",
			Help: "Current number of session stores held by the session manager.",
		},
	)
)

// Guard metrics, recorded by internal/guard.
//
// GuardDecisionsTotal has labels {guard, outcome} where outcome is one of
// "allow", "deny", or "pending" (state still loading when the request gave up waiting).
//
// SuperAdminVerificationsTotal counts direct platform role reads by result:
// "confirmed", "rejected", or "error".
var (
	GuardDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_decisions_total",
			Help: "Total number of route guard decisions, by guard and outcome.",
		},
		[]string{"guard", "outcome"},
	)

	SuperAdminVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "superadmin_verifications_total",
			Help: "Total number of direct platform role verifications, by result.",
		},
		[]string{"result"},
	)
)

// Tenant metrics.
//
// TenantResolutionsTotal counts tenant context refreshes by outcome {found, not_found, error}.
var TenantResolutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tenant_resolutions_total",
		Help: "Total number of tenant context refreshes, by outcome.",
	},
	[]string{"outcome"},
)

// Background work metrics.
//
// NotificationsCreatedTotal has label {type}, e.g. "announcement" or "license_expiry".
// LicensesExpiredTotal is incremented once per license moved to expired by the expiry job.
// LicenseExpiryEmailsSentTotal counts license notice emails successfully delivered.
var (
	NotificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of in-app notifications created, by type.",
		},
		[]string{"type"},
	)

	LicensesExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "licenses_expired_total",
			Help: "Total number of tenant licenses marked expired.",
		},
	)

	LicenseExpiryEmailsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "license_expiry_emails_sent_total",
			Help: "Total number of license expiry warning emails successfully sent.",
		},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples sql.DB pool statistics every 30 seconds until ctx is
// cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
