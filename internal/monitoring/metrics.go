// Package monitoring - metrics.go exports operational metrics.
//
// DESIGN: Metrics is the interface the orchestrator and gateway record into:
//   - Noop:  discards everything (tests, CLI one-shots)
//   - Prom:  Prometheus counters/histograms plus in-memory totals for /v1/stats
//
// Prom registers on the Registerer it is given, so tests use a private
// prometheus.NewRegistry() instead of the global one.
package monitoring

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records compression and HTTP activity.
type Metrics interface {
	ObserveCompression(backend, outcome string, ratioPercent float64, passes int, duration time.Duration)
	IncPass(backend string)
	IncBackendFailure(backend, reason string)
	ObserveRequest(method, route, status string, duration time.Duration)
}

// Compression outcomes.
const (
	OutcomeConverged  = "converged"
	OutcomeBestEffort = "best_effort"
	OutcomeInvalid    = "invalid"
	OutcomeExhausted  = "exhausted"
	OutcomeCancelled  = "cancelled"
)

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) ObserveCompression(string, string, float64, int, time.Duration) {}
func (Noop) IncPass(string)                                               {}
func (Noop) IncBackendFailure(string, string)                             {}
func (Noop) ObserveRequest(string, string, string, time.Duration)         {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	compressions    *prometheus.CounterVec
	passes          *prometheus.CounterVec
	backendFailures *prometheus.CounterVec
	ratio           *prometheus.HistogramVec
	duration        *prometheus.HistogramVec
	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec

	totalCompressions atomic.Int64
	totalSucceeded    atomic.Int64
	totalPasses       atomic.Int64
	totalFailures     atomic.Int64
	totalRequests     atomic.Int64
}

var _ Metrics = (*Prom)(nil)

// NewProm creates and registers the collectors. A nil Registerer means
// prometheus.DefaultRegisterer.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prom{
		compressions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compressions_total",
			Help:      "Compression runs by backend and outcome",
		}, []string{"backend", "outcome"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Convergence passes executed by backend",
		}, []string{"backend"}),
		backendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_failures_total",
			Help:      "Backend failures by backend and reason",
		}, []string{"backend", "reason"}),
		ratio: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compression_ratio_percent",
			Help:      "Size reduction achieved per successful run",
			Buckets:   []float64{10, 25, 50, 75, 90, 95, 99},
		}, []string{"backend"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compression_duration_seconds",
			Help:      "Wall time of a compression run",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"backend", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(p.compressions, p.passes, p.backendFailures, p.ratio, p.duration, p.requests, p.latency)
	return p
}

// ObserveCompression records one finished run. backend is empty when no
// backend produced a result.
func (p *Prom) ObserveCompression(backend, outcome string, ratioPercent float64, passes int, duration time.Duration) {
	if backend == "" {
		backend = "none"
	}
	p.compressions.WithLabelValues(backend, outcome).Inc()
	p.duration.WithLabelValues(backend, outcome).Observe(duration.Seconds())
	p.totalCompressions.Add(1)
	if outcome == OutcomeConverged || outcome == OutcomeBestEffort {
		p.ratio.WithLabelValues(backend).Observe(ratioPercent)
		p.totalSucceeded.Add(1)
	}
}

// IncPass records one backend invocation inside the convergence loop.
func (p *Prom) IncPass(backend string) {
	p.passes.WithLabelValues(backend).Inc()
	p.totalPasses.Add(1)
}

// IncBackendFailure records a backend dropped from the fallback chain.
func (p *Prom) IncBackendFailure(backend, reason string) {
	p.backendFailures.WithLabelValues(backend, reason).Inc()
	p.totalFailures.Add(1)
}

// ObserveRequest records one HTTP request.
func (p *Prom) ObserveRequest(method, route, status string, duration time.Duration) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.latency.WithLabelValues(method, route).Observe(duration.Seconds())
	p.totalRequests.Add(1)
}

// Stats returns in-process totals.
func (p *Prom) Stats() map[string]int64 {
	return map[string]int64{
		"compressions":     p.totalCompressions.Load(),
		"succeeded":        p.totalSucceeded.Load(),
		"passes":           p.totalPasses.Load(),
		"backend_failures": p.totalFailures.Load(),
		"requests":         p.totalRequests.Load(),
	}
}

// Handler returns an HTTP handler for /metrics. A nil Gatherer means
// prometheus.DefaultGatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
