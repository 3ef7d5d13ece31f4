package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Decision captures counters for the decision engine.
type Decision interface {
	IncRun(outcome string)
	ObserveRunDuration(seconds float64)
	IncFileBlocked(code string)
	IncApprovalRecorded(role string)
}

// Gateway captures request metrics for the HTTP surface.
type Gateway interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Decision without emitting anything.
type Noop struct{}

func (Noop) IncRun(string)              {}
func (Noop) ObserveRunDuration(float64) {}
func (Noop) IncFileBlocked(string)      {}
func (Noop) IncApprovalRecorded(string) {}

// NoopGateway implements Gateway without emitting anything.
type NoopGateway struct{}

func (NoopGateway) ObserveRequest(string, string, string, float64) {}

// Prom implements Decision backed by Prometheus collectors.
type Prom struct {
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	blocked     *prometheus.CounterVec
	approvals   *prometheus.CounterVec
	once        sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_runs_total",
			Help:      "Decision runs by outcome",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_run_duration_seconds",
			Help:      "Decision run duration",
			Buckets:   prometheus.DefBuckets,
		}),
		blocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_blocked_total",
			Help:      "Changed files that contributed a blocking reason, by code",
		}, []string{"code"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_recorded_total",
			Help:      "Approvals recorded by role",
		}, []string{"role"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.runs, p.runDuration, p.blocked, p.approvals)
	})
}

func (p *Prom) IncRun(outcome string) {
	p.runs.WithLabelValues(outcome).Inc()
}

func (p *Prom) ObserveRunDuration(seconds float64) {
	p.runDuration.Observe(seconds)
}

func (p *Prom) IncFileBlocked(code string) {
	p.blocked.WithLabelValues(code).Inc()
}

func (p *Prom) IncApprovalRecorded(role string) {
	p.approvals.WithLabelValues(role).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// --- Gateway metrics ---

type gatewayProm struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	once     sync.Once
}

// NewGatewayProm constructs a Gateway with counters/histograms.
func NewGatewayProm(namespace string) Gateway {
	g := &gatewayProm{
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
	g.once.Do(func() {
		prometheus.MustRegister(g.requests, g.latency)
	})
	return g
}

func (g *gatewayProm) ObserveRequest(method, route, status string, durationSeconds float64) {
	g.requests.WithLabelValues(method, route, status).Inc()
	g.latency.WithLabelValues(method, route).Observe(durationSeconds)
}
