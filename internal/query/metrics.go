package query

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes query bindings: cache efficiency, backend latency and
// results dropped because newer parameters superseded them.
type Metrics struct {
	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	superseded *prometheus.CounterVec
	fetches    *prometheus.HistogramVec
}

// NewMetrics registers the query collectors. Collectors that are already
// registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiles_query_cache_hits_total",
			Help: "Report payloads served from the query cache.",
		}, []string{"report"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiles_query_cache_miss_total",
			Help: "Report payloads fetched from the backend after a cache miss.",
		}, []string{"report"}),
		superseded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiles_query_superseded_total",
			Help: "Fetch results discarded because newer parameters were bound.",
		}, []string{"report"}),
		fetches: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tiles_query_fetch_duration_seconds",
			Help:    "Backend fetch latency per report.",
			Buckets: prometheus.DefBuckets,
		}, []string{"report", "outcome"}),
	}
	if err := register(reg, &m.hits); err != nil {
		return nil, err
	}
	if err := register(reg, &m.misses); err != nil {
		return nil, err
	}
	if err := register(reg, &m.superseded); err != nil {
		return nil, err
	}
	if err := register(reg, &m.fetches); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector *C) error {
	if err := reg.Register(*collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				*collector = existing
				return nil
			}
		}
		return err
	}
	return nil
}

func (m *Metrics) hit(report string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(report).Inc()
}

func (m *Metrics) miss(report string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(report).Inc()
}

func (m *Metrics) dropped(report string) {
	if m == nil {
		return
	}
	m.superseded.WithLabelValues(report).Inc()
}

func (m *Metrics) observe(report string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.fetches.WithLabelValues(report, outcome).Observe(time.Since(start).Seconds())
}
