package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Re-rank outcomes
const (
	RerankApplied   = "applied"
	RerankDiscarded = "discarded"
	RerankFailed    = "failed"
)

// Collector bundles the Prometheus metrics of the planner
type Collector struct {
	gatherer prometheus.Gatherer

	ProviderRequests  *prometheus.CounterVec
	ProviderDurations *prometheus.HistogramVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDurations     *prometheus.HistogramVec
	Reranks           *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	HazardReports     prometheus.Gauge
}

// NewCollector registers metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	providerRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saferoute_provider_requests_total",
		Help: "Requests to external providers, labeled by provider and outcome.",
	}, []string{"provider", "outcome"}), "saferoute_provider_requests_total")
	if err != nil {
		return nil, err
	}

	providerDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saferoute_provider_request_duration_seconds",
		Help:    "External provider latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider"}), "saferoute_provider_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saferoute_http_requests_total",
		Help: "Handled API requests, labeled by route and status code.",
	}, []string{"route", "code"}), "saferoute_http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saferoute_http_request_duration_seconds",
		Help:    "API latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route"}), "saferoute_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	reranks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saferoute_reranks_total",
		Help: "Hazard-triggered re-ranks, labeled by result (applied, discarded, failed).",
	}, []string{"result"}), "saferoute_reranks_total")
	if err != nil {
		return nil, err
	}

	sessions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "saferoute_active_sessions",
		Help: "Route search sessions currently held by the planner.",
	}), "saferoute_active_sessions")
	if err != nil {
		return nil, err
	}

	reports, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "saferoute_hazard_reports",
		Help: "Reports in the most recent hazard snapshot.",
	}), "saferoute_hazard_reports")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		ProviderRequests:  providerRequests,
		ProviderDurations: providerDurations,
		HTTPRequests:      httpRequests,
		HTTPDurations:     httpDurations,
		Reranks:           reranks,
		ActiveSessions:    sessions,
		HazardReports:     reports,
	}, nil
}

// ObserveProviderRequest records one external provider call
func (c *Collector) ObserveProviderRequest(provider, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	c.ProviderDurations.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveRerank records the result of a hazard-triggered re-rank
func (c *Collector) ObserveRerank(result string) {
	if c == nil {
		return
	}
	c.Reranks.WithLabelValues(result).Inc()
}

// SetActiveSessions records the planner's session count
func (c *Collector) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.ActiveSessions.Set(float64(n))
}

// SetHazardReports records the size of the latest snapshot
func (c *Collector) SetHazardReports(n int) {
	if c == nil {
		return
	}
	c.HazardReports.Set(float64(n))
}

// Middleware records request counts and latency under a fixed route label
func (c *Collector) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if c == nil {
				return
			}
			c.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			c.HTTPDurations.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
