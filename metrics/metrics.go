// Package metrics defines the Prometheus collectors for backend pipe
// operations and editor publishes.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Backend API
	PipeOperations *prometheus.CounterVec

	// Publish coordinator
	PublishPaths    *prometheus.CounterVec
	PublishDeletes  *prometheus.CounterVec
	PublishDuration prometheus.Histogram
}

// New creates unregistered collectors.
func New() *Metrics {
	return &Metrics{
		PipeOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipegraph",
				Subsystem: "api",
				Name:      "pipe_operations_total",
				Help:      "Pipe operations served by the backend API",
			},
			[]string{"op", "status"},
		),
		PublishPaths: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipegraph",
				Subsystem: "publish",
				Name:      "paths_total",
				Help:      "Decomposed paths processed by publish, by outcome (created, updated, failed)",
			},
			[]string{"outcome"},
		),
		PublishDeletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipegraph",
				Subsystem: "publish",
				Name:      "deletes_total",
				Help:      "Pending pipe deletions issued by publish, by outcome (deleted, failed)",
			},
			[]string{"outcome"},
		),
		PublishDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "pipegraph",
				Subsystem: "publish",
				Name:      "duration_seconds",
				Help:      "Wall time of a full publish",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// Register registers every collector with reg. Collectors that are already
// registered are not an error.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.PipeOperations, m.PublishPaths, m.PublishDeletes, m.PublishDuration} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// PipeOp counts one backend API pipe operation.
func (m *Metrics) PipeOp(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PipeOperations.WithLabelValues(op, status).Inc()
}

// Path counts one published path outcome.
func (m *Metrics) Path(outcome string) {
	if m == nil {
		return
	}
	m.PublishPaths.WithLabelValues(outcome).Inc()
}

// Delete counts one pending deletion outcome.
func (m *Metrics) Delete(outcome string) {
	if m == nil {
		return
	}
	m.PublishDeletes.WithLabelValues(outcome).Inc()
}

// ObservePublish records the duration of a publish in seconds.
func (m *Metrics) ObservePublish(seconds float64) {
	if m == nil {
		return
	}
	m.PublishDuration.Observe(seconds)
}
