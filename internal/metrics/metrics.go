package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	pollRuns       *prometheus.CounterVec // total polls
	pollDuration   prometheus.Histogram   // time to poll
	addressChanges *prometheus.CounterVec // detected local address changes
	observations   *prometheus.CounterVec // per interface observation results
	dnsOperations  *prometheus.CounterVec // dns operations
	dnsRequests    *prometheus.CounterVec // dns provider requests
	stateRequests  *prometheus.CounterVec // badgerdb requests
}

// Public interface for metrics operations. A nil *Metrics records nothing.
func (m *Metrics) IncPollRun(status string) {
	if m == nil || !isValidPollStatus(status) {
		return
	}
	m.pollRuns.WithLabelValues(status).Inc()
}

func (m *Metrics) SetPollDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncAddressChange(family string) {
	if m == nil || family == "" {
		return
	}
	m.addressChanges.WithLabelValues(family).Inc()
}

func (m *Metrics) IncObservation(family string, success bool) {
	if m == nil || family == "" {
		return
	}
	status := boolToResult(success)
	m.observations.WithLabelValues(family, status).Inc()
}

func (m *Metrics) IncDNSOperation(operation, recordType string) {
	if m == nil || !isValidOperation(operation) || !isValidRecordType(recordType) {
		return
	}
	m.dnsOperations.WithLabelValues(operation, recordType).Inc()
}

func (m *Metrics) IncDNSRequest(operation string, success bool) {
	if m == nil || !isValidOperation(operation) {
		return
	}
	status := boolToResult(success)
	m.dnsRequests.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) IncStateRequest(operation string, success bool) {
	if m == nil || !isValidOperation(operation) {
		return
	}
	status := boolToResult(success)
	m.stateRequests.WithLabelValues(operation, status).Inc()
}

// Validation helpers
func boolToResult(b bool) string {
	if b {
		return "success"
	}
	return "failure"
}

func isValidPollStatus(status string) bool {
	switch status {
	case "unchanged", "success", "failure":
		return true
	}
	return false
}

func isValidOperation(op string) bool {
	switch op {
	case "create", "read", "update", "delete", "skip":
		return true
	}
	return false
}

func isValidRecordType(rt string) bool {
	switch rt {
	case "A", "AAAA":
		return true
	}
	return false
}

func New(register bool) *Metrics {
	registry := prometheus.NewRegistry()
	namespace := "dh_dyn_update"

	m := &Metrics{
		registry: registry,

		pollRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_runs_total",
			Help:      "Total number of polling runs by outcome",
		}, []string{"status"}),

		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of polling runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		addressChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "address_changes_total",
			Help:      "Total local address changes detected",
		}, []string{"family"}),

		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Total interface address observations",
		}, []string{"family", "status"}),

		dnsOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_operations_total",
			Help:      "Total DNS operations planned by reconciliation",
		}, []string{"operation", "type"}),

		dnsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_requests_total",
			Help:      "Total DNS provider requests",
		}, []string{"operation", "status"}),

		stateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_requests_total",
			Help:      "Total address state store requests",
		}, []string{"operation", "status"}),
	}

	if register {
		registry.MustRegister(
			m.pollRuns,
			m.pollDuration,
			m.addressChanges,
			m.observations,
			m.dnsOperations,
			m.dnsRequests,
			m.stateRequests,
		)
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
