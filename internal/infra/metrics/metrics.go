// Package metrics exposes Prometheus collectors for the auth service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"athlo/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "athlo"

// Metrics owns a private registry so tests can build independent instances.
type Metrics struct {
	registry *prometheus.Registry

	authOutcomes  *prometheus.CounterVec
	httpInFlight  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
}

// New registers the service collectors together with the Go and process collectors.
func New(cfg *config.Config) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_operations_total",
			Help:      "Authentication operations by outcome.",
		}, []string{"operation", "outcome"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.authOutcomes,
		m.httpInFlight,
		m.httpRequests,
		m.httpDurations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "build_info",
			Help:        "Build information.",
			ConstLabels: prometheus.Labels{"version": cfg.Env.Version, "env": cfg.Env.Env},
		}, func() float64 { return 1 }))
	}

	return m
}

// ObserveOutcome implements service.AuthMetrics.
func (m *Metrics) ObserveOutcome(operation, outcome string) {
	m.authOutcomes.WithLabelValues(operation, outcome).Inc()
}

// RequestStarted marks one request in flight and returns the function that
// records its completion.
func (m *Metrics) RequestStarted() func(method, route string, status int) {
	start := time.Now()
	m.httpInFlight.Inc()

	return func(method, route string, status int) {
		code := strconv.Itoa(status)
		m.httpDurations.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(method, route, code).Inc()
		m.httpInFlight.Dec()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
