// Package jobmetrics instruments background PDF exports.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of one export attempt.
const (
	OutcomeDone   = "done"
	OutcomeRetry  = "retry"
	OutcomeFailed = "failed"
)

// Metrics holds the export collectors.
type Metrics struct {
	attempts *prometheus.CounterVec
	render   *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

// NewMetrics registers the export collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiles_export_attempts_total",
			Help: "Background export attempts by report and outcome.",
		}, []string{"report", "outcome"}),
		render: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tiles_export_render_seconds",
			Help:    "Time spent rendering a background export.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"report"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiles_export_bytes_total",
			Help: "Bytes of finished export files.",
		}, []string{"report"}),
	}
	registerer.MustRegister(m.attempts, m.render, m.bytes)
	return m
}

// Attempt times one render of report. A nil Metrics yields a no-op attempt.
func (m *Metrics) Attempt(report string) *Attempt {
	return &Attempt{metrics: m, report: report, start: time.Now()}
}

// Attempt records the outcome of a single export run.
type Attempt struct {
	metrics *Metrics
	report  string
	start   time.Time
}

// Done records a finished file of n bytes.
func (a *Attempt) Done(n int) {
	if a.metrics == nil {
		return
	}
	a.observe(OutcomeDone)
	if n > 0 {
		a.metrics.bytes.WithLabelValues(a.report).Add(float64(n))
	}
}

// Failed records a failed run and returns err. final marks the run after
// which the queue gives up.
func (a *Attempt) Failed(err error, final bool) error {
	if a.metrics == nil {
		return err
	}
	if final {
		a.observe(OutcomeFailed)
	} else {
		a.observe(OutcomeRetry)
	}
	return err
}

func (a *Attempt) observe(outcome string) {
	a.metrics.attempts.WithLabelValues(a.report, outcome).Inc()
	a.metrics.render.WithLabelValues(a.report).Observe(time.Since(a.start).Seconds())
}
