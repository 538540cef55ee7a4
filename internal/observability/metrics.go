package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/tilesmart/tiles-admin/internal/jobs"
)

const unmatchedRoute = "unmatched"

// Metrics owns the process registry. Dashboard and worker binaries each create
// one and hand Registerer to the components that record their own series.
type Metrics struct {
	registry *prometheus.Registry
	http     httpCollectors
	jobs     *jobmetrics.Metrics
}

type httpCollectors struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	written  *prometheus.CounterVec
	inFlight prometheus.Gauge
}

func newHTTPCollectors() httpCollectors {
	return httpCollectors{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiles_http_requests_total",
			Help: "Dashboard requests by route pattern and status code.",
		}, []string{"route", "code"}),
		// Report pages wait on the backend, so the buckets reach past the 20s client timeout.
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tiles_http_request_duration_seconds",
			Help:    "Dashboard request latency by route pattern.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"route"}),
		written: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiles_http_response_bytes_total",
			Help: "Bytes written to dashboard clients by route pattern.",
		}, []string{"route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tiles_http_requests_in_flight",
			Help: "Dashboard requests currently being served.",
		}),
	}
}

func (c httpCollectors) all() []prometheus.Collector {
	return []prometheus.Collector{c.requests, c.latency, c.written, c.inFlight}
}

// NewMetrics builds a registry with the HTTP, export job and runtime collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpc := newHTTPCollectors()
	registry.MustRegister(httpc.all()...)
	return &Metrics{
		registry: registry,
		http:     httpc,
		jobs:     jobmetrics.NewMetrics(registry),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records status, latency and response size per chi route
// pattern. It must run inside the router so the pattern is resolved.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.http.inFlight.Inc()
		defer m.http.inFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routeOf(r)
		m.http.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.http.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.http.written.WithLabelValues(route).Add(float64(ww.BytesWritten()))
	})
}

// Registerer is where components register their own collectors. A nil
// Metrics hands out a throwaway registry.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// Jobs returns the export job collectors sharing this registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// routeOf keeps label cardinality bounded: raw paths carry report names and
// record ids, patterns do not.
func routeOf(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}
