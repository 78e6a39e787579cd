// Package metrics exposes pipeline observability counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	FramesRemoved prometheus.Counter
}

// New creates and registers the pipeline collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Wall-clock duration of completed pipeline stages.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_stage_failures_total",
			Help: "Stage executions that returned an error to the scheduler.",
		}, []string{"stage"}),
		FramesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_frames_removed_total",
			Help: "Frames marked redundant by the similarity walk.",
		}),
	}

	registry.MustRegister(m.StageDuration, m.StageFailures, m.FramesRemoved)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
