// Package metrics exposes routing, gateway and webhook counters to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "payroute"

type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	routingDecisions *prometheus.CounterVec
	routingErrors    *prometheus.CounterVec
	gatewayCalls     *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	webhooks         *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	jobRuns          *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		gatherer: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
		}, []string{"method", "path"}),
		routingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "routing_decisions_total",
			Help: "Gateway selections by chosen gateway and availability fallback.",
		}, []string{"gateway", "fallback"}),
		routingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "routing_errors_total",
			Help: "Routing failures by reason.",
		}, []string{"reason"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "gateway_calls_total",
			Help: "Gateway calls by kind and outcome.",
		}, []string{"gateway", "kind", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "gateway_call_duration_seconds",
			Help:    "Gateway call latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"gateway", "kind"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "webhooks_total",
			Help: "Inbound webhooks by gateway and outcome.",
		}, []string{"gateway", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transaction_transitions_total",
			Help: "Persisted transaction status transitions.",
		}, []string{"from", "to"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "job_runs_total",
			Help: "Background job ticks by result.",
		}, []string{"job", "result"}),
	}
	reg.MustRegister(
		m.httpRequests, m.httpDuration,
		m.routingDecisions, m.routingErrors,
		m.gatewayCalls, m.gatewayLatency,
		m.webhooks, m.transitions, m.jobRuns,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			return
		}
		m.httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveRouting(gateway string, fallback bool) {
	if m == nil {
		return
	}
	m.routingDecisions.WithLabelValues(gateway, strconv.FormatBool(fallback)).Inc()
}

func (m *Metrics) ObserveRoutingError(reason string) {
	if m == nil {
		return
	}
	m.routingErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveGatewayCall(gateway, kind, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(gateway, kind, outcome).Inc()
	m.gatewayLatency.WithLabelValues(gateway, kind).Observe(latency.Seconds())
}

func (m *Metrics) ObserveWebhook(gateway, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(gateway, outcome).Inc()
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveJob(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}
