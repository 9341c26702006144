// Package metrics exposes the Prometheus counters/histograms this process
// emits: pipeline command latency and retries, and bus publish/DLQ volume.
// Grounded on cuemby-warren/pkg/metrics's package-level-vars-plus-init
// shape. Observability is a named out-of-scope transport detail (spec §1),
// but the counters themselves are ambient plumbing, not a feature.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "angzarr_commands_total",
			Help: "Total commands processed by the aggregate pipeline, by domain and outcome",
		},
		[]string{"domain", "outcome"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "angzarr_command_duration_seconds",
			Help:    "Aggregate pipeline command execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"domain"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "angzarr_retries_total",
			Help: "Total retry attempts, by component",
		},
		[]string{"component"},
	)

	MergeConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "angzarr_merge_conflicts_total",
			Help: "Total sequence conflicts encountered, by domain and resolution",
		},
		[]string{"domain", "resolution"},
	)

	BusPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "angzarr_bus_publish_total",
			Help: "Total EventBooks published, by domain",
		},
		[]string{"domain"},
	)

	DLQTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "angzarr_dlq_total",
			Help: "Total dead letters routed, by domain and source component",
		},
		[]string{"domain", "source_component"},
	)

	ProjectorLagSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "angzarr_projector_lag_seconds",
			Help: "Age in seconds of the last event a projector processed, measured when it advanced its position, by handler",
		},
		[]string{"handler"},
	)
)

func init() {
	prometheus.MustRegister(
		CommandsTotal,
		CommandDuration,
		RetriesTotal,
		MergeConflictsTotal,
		BusPublishTotal,
		DLQTotal,
		ProjectorLagSeconds,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an in-flight operation for later histogram observation.
type Timer struct{ start time.Time }

func NewTimer() *Timer { return &Timer{start: time.Now()} }

func (t *Timer) ObserveDurationVec(h prometheus.ObserverVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
