package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by class (tenant|platform)
	// and result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classpad_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"class", "result"},
	)

	// TokenVerifications counts token verification outcomes
	// (ok|expired|invalid|format).
	TokenVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classpad_token_verifications_total",
			Help: "Total number of token verifications",
		},
		[]string{"class", "result"},
	)

	// GuardDecisions counts authorization guard evaluations and their outcome
	// (allow|deny).
	GuardDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classpad_guard_decisions_total",
			Help: "Total number of authorization guard decisions",
		},
		[]string{"guard", "result"},
	)

	// CrossTenantReads counts platform-operator requests that crossed a school
	// boundary.
	CrossTenantReads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classpad_cross_tenant_reads_total",
			Help: "Number of platform operator requests touching tenant data",
		},
	)

	// SessionStoreErrors counts failed session-store operations, by operation.
	// These never surface to callers, so the counter is the only signal.
	SessionStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classpad_session_store_errors_total",
			Help: "Total number of swallowed session store failures",
		},
		[]string{"operation"},
	)

	// ActiveSessions tracks sessions currently held in the registry.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "classpad_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency is the request latency histogram.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classpad_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
