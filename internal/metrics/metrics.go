package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus metrics for the proxy
type Metrics struct {
	// HTTP API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// Upstream Klaviyo call metrics
	UpstreamCallsTotal          *prometheus.CounterVec
	UpstreamCallDurationSeconds *prometheus.HistogramVec

	// Account store gauge
	AccountsTotal prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "klaviyo_proxy_api_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "klaviyo_proxy_api_request_duration_seconds",
				Help:    "HTTP API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "klaviyo_proxy_api_errors_total",
				Help: "Total number of HTTP API error responses",
			},
			[]string{"error_type"},
		),
		UpstreamCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "klaviyo_proxy_upstream_calls_total",
				Help: "Total number of calls to the Klaviyo API",
			},
			[]string{"operation", "status"},
		),
		UpstreamCallDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "klaviyo_proxy_upstream_call_duration_seconds",
				Help:    "Klaviyo API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		AccountsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "klaviyo_proxy_accounts_total",
				Help: "Number of accounts in the store",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UpstreamCallsTotal,
		m.UpstreamCallDurationSeconds,
		m.AccountsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the Prometheus registry for this instance
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
