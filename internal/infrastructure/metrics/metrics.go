package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteRequests tracks outbound calls to the Corolair backend
	RemoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_remote_requests_total",
		Help: "Total number of outbound requests to the Corolair service",
	}, []string{"endpoint", "outcome"})

	// RemoteRequestDuration tracks outbound call latency
	RemoteRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bridge_remote_request_duration_seconds",
		Help:    "Histogram of outbound request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// RegistrationRetries counts stale-credential repair attempts
	RegistrationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_registration_retries_total",
		Help: "Total number of register retries triggered by a stale credential",
	})

	// PrivacyOperations tracks privacy proxy operations and their outcome
	PrivacyOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_privacy_operations_total",
		Help: "Total number of privacy proxy operations",
	}, []string{"op", "outcome"})

	// DBConnectionsActive tracks open host database connections
	DBConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_db_connections_active",
		Help: "Number of active host database connections",
	})
)
