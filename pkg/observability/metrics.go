package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the auth bridge
type Metrics struct {
	// Validation metrics
	ValidationsTotal   *prometheus.CounterVec
	ValidationDuration prometheus.Histogram

	// Throttle metrics
	ThrottleCoalescedTotal prometheus.Counter

	// Bridge metrics
	BridgeMessagesTotal *prometheus.CounterVec
	NoncesRegistered    prometheus.Counter

	// Config metrics
	ConfigBuildsTotal      *prometheus.CounterVec
	RemoteStoreErrorsTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		ValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagingauth_validations_total",
				Help: "Total number of session validation attempts by outcome",
			},
			[]string{"outcome"},
		),
		ValidationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stagingauth_validation_duration_seconds",
				Help:    "Session validation round-trip duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		ThrottleCoalescedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stagingauth_throttle_coalesced_total",
				Help: "Callers served a shared throttled result instead of a fresh call",
			},
		),
		BridgeMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagingauth_bridge_messages_total",
				Help: "Cross-origin messages handled by result",
			},
			[]string{"result"},
		),
		NoncesRegistered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stagingauth_nonces_registered_total",
				Help: "Nonces accepted into the registry",
			},
		),
		ConfigBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagingauth_config_builds_total",
				Help: "Configuration snapshot builds by outcome",
			},
			[]string{"outcome"},
		),
		RemoteStoreErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stagingauth_remote_store_errors_total",
				Help: "Remote feature-store fetch failures (degraded to lower tiers)",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.ValidationsTotal,
		m.ValidationDuration,
		m.ThrottleCoalescedTotal,
		m.BridgeMessagesTotal,
		m.NoncesRegistered,
		m.ConfigBuildsTotal,
		m.RemoteStoreErrorsTotal,
	)

	return m
}

// Handler returns the HTTP handler serving the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Validation outcome label values
const (
	OutcomeAuthorized   = "authorized"
	OutcomeUnauthorized = "unauthorized"
	OutcomeRateLimited  = "rate_limited"
	OutcomeForbidden    = "forbidden"
	OutcomeNetworkError = "network_error"
	OutcomeInvalid      = "invalid_response"
	OutcomeFailed       = "failed"
)

// Bridge result label values
const (
	BridgeUntrustedOrigin = "untrusted_origin"
	BridgeNonceRegistered = "nonce_registered"
	BridgeNonceRejected   = "nonce_rejected"
	BridgeStatusReplied   = "status_replied"
	BridgeIgnored         = "ignored"
	BridgeDisabled        = "disabled"
)
