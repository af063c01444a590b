// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	// Pipeline metrics
	TransactionsSubmitted prometheus.Counter
	StatusTransitions     *prometheus.CounterVec
	PolicyDecisions       *prometheus.CounterVec
	ExecuteRetries        prometheus.Counter

	// Queue metrics
	HoldsCreated   *prometheus.CounterVec
	SweepReleased  prometheus.Counter
	SweepExpired   prometheus.Counter
	PendingHolds   prometheus.Gauge

	// Oracle metrics
	PriceCacheHits   prometheus.Counter
	PriceCacheMisses prometheus.Counter
	PriceSourceFails *prometheus.CounterVec

	// Keystore metrics
	KeyDecryptions prometheus.Counter
}

// NewMetrics creates a Metrics instance with all metrics registered on a
// private registry.
func NewMetrics(namespace string) (*Metrics, *prometheus.Registry) {
	if namespace == "" {
		namespace = "walletd"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		TransactionsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_submitted_total",
			Help:      "Transactions accepted into the pipeline.",
		}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Transaction status transitions.",
		}, []string{"to"}),
		PolicyDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_decisions_total",
			Help:      "Policy engine decisions by resulting tier or denial.",
		}, []string{"outcome"}),
		ExecuteRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execute_retries_total",
			Help:      "Transient-error retries during Execute.",
		}),
		HoldsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_created_total",
			Help:      "DELAY/APPROVAL holds created.",
		}, []string{"tier"}),
		SweepReleased: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_released_total",
			Help:      "Delayed transactions released by the sweep.",
		}),
		SweepExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_expired_total",
			Help:      "Approvals expired by the sweep.",
		}),
		PendingHolds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_holds",
			Help:      "Current PENDING holds.",
		}),
		PriceCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_cache_hits_total",
			Help:      "Price lookups served from cache.",
		}),
		PriceCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_cache_misses_total",
			Help:      "Price lookups that went upstream.",
		}),
		PriceSourceFails: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_source_failures_total",
			Help:      "Upstream price source failures.",
		}, []string{"source"}),
		KeyDecryptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_decryptions_total",
			Help:      "Private key decryptions for signing.",
		}),
	}
	return m, reg
}

// Handler returns the /metrics HTTP handler for the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
