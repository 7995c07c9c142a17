// Package metrics exposes Prometheus instrumentation for the delegation
// engine: write/read throughput, lease contention, event delivery
// failures, and resolver behavior.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector registered by the engine.
type Metrics struct {
	delegationChanges  *prometheus.CounterVec
	groupFailures      *prometheus.CounterVec
	leaseFailures      prometheus.Counter
	eventPushFailures  prometheus.Counter
	policyWriteSeconds prometheus.Histogram
	rulesRead          prometheus.Counter
	resolverErrors     prometheus.Counter

	registry *prometheus.Registry
}

// New creates a registry with all engine collectors plus the standard Go
// and process collectors.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		delegationChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegation_changes_total",
			Help:      "Delegation change rows written, by change type",
		}, []string{"type"}),
		groupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_group_failures_total",
			Help:      "Failed policy path groups, by failure kind",
		}, []string{"kind"}),
		leaseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lease_acquisition_failures_total",
			Help:      "Lease acquisitions lost to contention",
		}),
		eventPushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_push_failures_total",
			Help:      "Delegation change events that failed to publish",
		}),
		policyWriteSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "policy_write_duration_seconds",
			Help:      "End-to-end duration of one policy path group write",
			Buckets:   prometheus.DefBuckets,
		}),
		rulesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_read_total",
			Help:      "Flattened rules returned by the information point",
		}),
		resolverErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_errors_total",
			Help:      "Attribute resolutions aborted by a leaf failure",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.delegationChanges,
		m.groupFailures,
		m.leaseFailures,
		m.eventPushFailures,
		m.policyWriteSeconds,
		m.rulesRead,
		m.resolverErrors,
	)
	return m
}

// RecordChange counts one written ledger row.
func (m *Metrics) RecordChange(changeType string) {
	if m == nil {
		return
	}
	m.delegationChanges.WithLabelValues(changeType).Inc()
}

// RecordGroupFailure counts one failed path group.
func (m *Metrics) RecordGroupFailure(kind string) {
	if m == nil {
		return
	}
	m.groupFailures.WithLabelValues(kind).Inc()
}

// RecordLeaseFailure counts one lost lease acquisition.
func (m *Metrics) RecordLeaseFailure() {
	if m == nil {
		return
	}
	m.leaseFailures.Inc()
}

// RecordEventPushFailure counts one dropped event.
func (m *Metrics) RecordEventPushFailure() {
	if m == nil {
		return
	}
	m.eventPushFailures.Inc()
}

// ObserveWriteDuration records one path group write duration.
func (m *Metrics) ObserveWriteDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.policyWriteSeconds.Observe(d.Seconds())
}

// RecordResolverError counts one aborted attribute resolution.
func (m *Metrics) RecordResolverError() {
	if m == nil {
		return
	}
	m.resolverErrors.Inc()
}

// RecordRulesRead counts flattened rules served.
func (m *Metrics) RecordRulesRead(count int) {
	if m == nil {
		return
	}
	m.rulesRead.Add(float64(count))
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
