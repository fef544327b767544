// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Check outcomes.
const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeFlagged  = "flagged"
)

var (
	EntitlementChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_checks_total",
			Help: "Entitlement checks evaluated, by check and outcome",
		},
		[]string{"check", "outcome"},
	)

	EntitlementRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_rejections_total",
			Help: "Requests rejected by an entitlement check, by code",
		},
		[]string{"code"},
	)

	EntitlementCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entitlement_check_duration_seconds",
			Help:    "Duration of entitlement checks in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"check"},
	)

	UsageIncrements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_increments_total",
			Help: "Usage counter increments persisted, by resource",
		},
		[]string{"resource"},
	)

	UsageIncrementFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_increment_failures_total",
			Help: "Usage increments that failed to persist and were dropped",
		},
		[]string{"resource"},
	)

	SubscriptionExpirations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_expirations_total",
			Help: "Subscriptions lazily moved to expired, by reason",
		},
		[]string{"reason"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served",
		},
	)
)
