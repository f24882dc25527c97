// Package metrics holds the Prometheus collectors of the consent SDK.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	FetchAttempts   *prometheus.CounterVec
	FetchResults    *prometheus.CounterVec
	PendingDepth    *prometheus.GaugeVec
	ReplayedTotal   *prometheus.CounterVec
	StorageFailures *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses a private registry,
// which keeps repeated construction in tests from panicking on duplicates.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		FetchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consentkeeper_fetch_attempts_total",
			Help: "HTTP attempts made by the fetcher, by method and attempt outcome",
		}, []string{"method", "outcome"}),
		FetchResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consentkeeper_fetch_results_total",
			Help: "Logical requests completed by the fetcher, by final result kind",
		}, []string{"method", "result"}),
		PendingDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "consentkeeper_pending_operations",
			Help: "Operations waiting in the durable pending queue",
		}, []string{"kind"}),
		ReplayedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consentkeeper_pending_replayed_total",
			Help: "Pending operations replayed, by kind and result",
		}, []string{"kind", "result"}),
		StorageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consentkeeper_storage_failures_total",
			Help: "Storage channel operations that failed",
		}, []string{"channel", "op"}),
	}
}

func (m *Metrics) Attempt(method, outcome string) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) Result(method, result string) {
	if m == nil {
		return
	}
	m.FetchResults.WithLabelValues(method, result).Inc()
}

func (m *Metrics) SetPending(kind string, n int) {
	if m == nil {
		return
	}
	m.PendingDepth.WithLabelValues(kind).Set(float64(n))
}

func (m *Metrics) Replayed(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "delivered"
	}
	m.ReplayedTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) StorageFailure(channel, op string) {
	if m == nil {
		return
	}
	m.StorageFailures.WithLabelValues(channel, op).Inc()
}
