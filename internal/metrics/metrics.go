// Package metrics holds the Prometheus collectors of the registry service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricRegistrationsTotal  = "face_registry_registrations_total"
	MetricRecognitionsTotal   = "face_registry_recognitions_total"
	MetricMatchDistance       = "face_registry_match_distance"
	MetricTokensIssuedTotal   = "face_registry_tokens_issued_total"
	MetricAuditFailuresTotal  = "face_registry_audit_write_failures_total"
	MetricHTTPRequestsTotal   = "http_requests_total"
	MetricHTTPRequestDuration = "http_request_duration_seconds"
)

// Registration results.
const (
	ResultCreated       = "created"
	ResultDuplicateFace = "duplicate_face"
	ResultRejected      = "rejected"
	ResultError         = "error"
)

// Metrics contains the service collectors. All methods are safe for
// concurrent use and tolerate a nil receiver, so tests can skip them.
type Metrics struct {
	registrations       *prometheus.CounterVec
	recognitions        *prometheus.CounterVec
	matchDistance       prometheus.Histogram
	tokensIssued        prometheus.Counter
	auditFailures       prometheus.Counter
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRegistrationsTotal,
				Help: "Total number of registration attempts by result",
			},
			[]string{"result"},
		),
		recognitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRecognitionsTotal,
				Help: "Total number of recognition attempts by outcome",
			},
			[]string{"outcome"},
		),
		matchDistance: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricMatchDistance,
				Help:    "Cosine distance between a probe face and its nearest registered face",
				Buckets: []float64{0.1, 0.2, 0.3, 0.37, 0.45, 0.6, 0.8, 1.0, 1.5, 2.0},
			},
		),
		tokensIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricTokensIssuedTotal,
				Help: "Total number of session tokens issued",
			},
		),
		auditFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricAuditFailuresTotal,
				Help: "Total number of audit records that could not be written",
			},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricHTTPRequestsTotal,
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPRequestDuration,
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
			},
			[]string{"method", "route", "status"},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns every collector, for registration and tests.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.registrations,
		m.recognitions,
		m.matchDistance,
		m.tokensIssued,
		m.auditFailures,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	}
}

// IncRegistration counts a registration attempt.
func (m *Metrics) IncRegistration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

// ObserveRecognition counts a recognition attempt. The distance is only
// recorded when a candidate was compared.
func (m *Metrics) ObserveRecognition(outcome string, distance float64, compared bool) {
	if m == nil {
		return
	}
	m.recognitions.WithLabelValues(outcome).Inc()
	if compared {
		m.matchDistance.Observe(distance)
	}
}

// IncTokensIssued counts an issued token.
func (m *Metrics) IncTokensIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

// IncAuditFailures counts a lost audit record.
func (m *Metrics) IncAuditFailures() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// ObserveHTTPRequest records one served request.
// route is the chi route pattern, not the raw path, to keep cardinality bounded.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.httpRequestsTotal.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(seconds)
}
