package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the prometheus registry for the intake agent. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests   *prometheus.CounterVec
	apiDuration   *prometheus.HistogramVec
	apiErrors     *prometheus.CounterVec
	remoteCalls   *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	remoteRetries *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec
	syncRuns      *prometheus.CounterVec
	syncedTickets prometheus.Counter
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_api_requests_total",
			Help: "Local API requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_api_request_duration_seconds",
			Help:    "Local API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		apiErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_api_errors_total",
			Help: "Local API errors by route, method and error code.",
		}, []string{"path", "method", "code"}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_remote_calls_total",
			Help: "Calls to the ticket service by operation and outcome.",
		}, []string{"op", "outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_remote_call_duration_seconds",
			Help:    "Ticket service call latency including retries.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"op"}),
		remoteRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_remote_retries_total",
			Help: "Read retries issued by the transport layer.",
		}, []string{"op"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "intake_queue_depth",
			Help: "Entries held in the durable local queue.",
		}, []string{"namespace"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_sync_runs_total",
			Help: "Queue synchronizer runs by trigger and result.",
		}, []string{"trigger", "result"}),
		syncedTickets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_synced_tickets_total",
			Help: "Queued tickets successfully submitted to the ticket service.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiDuration, m.apiErrors,
		m.remoteCalls, m.remoteLatency, m.remoteRetries,
		m.queueDepth, m.syncRuns, m.syncedTickets,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.apiErrors.WithLabelValues(path, method, code).Inc()
}

// RecordRemoteCall records one logical ticket service call.
func (m *Metrics) RecordRemoteCall(op, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(op, outcome).Inc()
	m.remoteLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRetry counts a transport level retry.
func (m *Metrics) RecordRetry(op string) {
	if m == nil {
		return
	}
	m.remoteRetries.WithLabelValues(op).Inc()
}

// SetQueueDepth publishes the size of a queue namespace.
func (m *Metrics) SetQueueDepth(namespace string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(namespace).Set(float64(depth))
}

// RecordSync records a synchronizer run.
func (m *Metrics) RecordSync(trigger, result string, synced int) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(trigger, result).Inc()
	if synced > 0 {
		m.syncedTickets.Add(float64(synced))
	}
}
