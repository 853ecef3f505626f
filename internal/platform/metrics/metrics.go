// Package metrics holds the Prometheus metrics for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ChallengesIssued  *prometheus.CounterVec
	CeremonyOutcomes  *prometheus.CounterVec
	HeartbeatOutcomes *prometheus.CounterVec
	GrantOutcomes     *prometheus.CounterVec
	RateLimitDenied   *prometheus.CounterVec

	AuditQueueDepth    prometheus.Gauge
	AuditEventsDropped prometheus.Counter
	AuditCircuitOpen   prometheus.Gauge
	StoreCallDuration  *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		ChallengesIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civitas_challenges_issued_total",
			Help: "Challenges issued, by ceremony kind.",
		}, []string{"kind"}),
		CeremonyOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civitas_ceremony_verifications_total",
			Help: "Ceremony verification outcomes, by kind and result.",
		}, []string{"kind", "result"}),
		HeartbeatOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civitas_heartbeat_checks_total",
			Help: "Heartbeat check outcomes.",
		}, []string{"result"}),
		GrantOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civitas_genesis_grants_total",
			Help: "Genesis grant outcomes.",
		}, []string{"result"}),
		RateLimitDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civitas_rate_limit_denied_total",
			Help: "Requests denied by the rate limiter, by endpoint class.",
		}, []string{"class"}),
		AuditQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "civitas_audit_queue_depth",
			Help: "Events waiting in the offline audit queue.",
		}),
		AuditEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civitas_audit_events_dropped_total",
			Help: "Audit events dropped because the offline queue was full.",
		}),
		AuditCircuitOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "civitas_audit_circuit_open",
			Help: "1 when the audit delivery circuit is open.",
		}),
		StoreCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "civitas_identity_store_call_duration_ms",
			Help:    "Latency of identity store adapter calls in milliseconds.",
			Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"op"}),
	}
}
