// Package metrics holds the Prometheus collectors for the relay.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a dedicated registry so tests and multiple instances never
// collide on the default one.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	UpstreamCalls    *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec

	Acquisitions        *prometheus.CounterVec
	AcquisitionDuration prometheus.Histogram

	Events *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "relay_http_requests_total", Help: "Inbound HTTP requests by method, route and status."},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "relay_http_request_duration_seconds", Help: "Inbound HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
			[]string{"method", "route"},
		),
		UpstreamCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "relay_upstream_calls_total", Help: "Partner API calls by operation and status class."},
			[]string{"operation", "class"},
		),
		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "relay_upstream_call_duration_seconds", Help: "Partner API call duration in seconds.", Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15}},
			[]string{"operation"},
		),
		Acquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "relay_credential_acquisitions_total", Help: "Credential acquisitions by trigger and result."},
			[]string{"trigger", "result"},
		),
		AcquisitionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "relay_credential_acquisition_duration_seconds", Help: "Credential acquisition duration in seconds.", Buckets: prometheus.DefBuckets},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "relay_order_events_total", Help: "Order events emitted by platform."},
			[]string{"platform"},
		),
	}

	m.Registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.UpstreamCalls,
		m.UpstreamDuration,
		m.Acquisitions,
		m.AcquisitionDuration,
		m.Events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveHTTP records one inbound request
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveUpstream records one partner call. Calls that never got a
// response are counted in the "error" class.
func (m *Metrics) ObserveUpstream(operation string, status int, err error, elapsed time.Duration) {
	m.UpstreamCalls.WithLabelValues(operation, StatusClass(status, err)).Inc()
	m.UpstreamDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveAcquisition records one credential exchange
func (m *Metrics) ObserveAcquisition(trigger string, err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.Acquisitions.WithLabelValues(trigger, result).Inc()
	m.AcquisitionDuration.Observe(elapsed.Seconds())
}

// ObserveEvent counts an emitted order event
func (m *Metrics) ObserveEvent(platform string) {
	if platform == "" {
		platform = "unknown"
	}
	m.Events.WithLabelValues(platform).Inc()
}

// StatusClass buckets a status code as "2xx", "4xx" and so on
func StatusClass(status int, err error) string {
	if err != nil || status < 100 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
