package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	insertsTotal *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	cacheTotal   *prometheus.CounterVec
	deletedTotal prometheus.Counter
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		insertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airview_insight_inserts_total",
				Help: "Insights submitted for insertion, by result",
			},
			[]string{"result"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airview_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		cacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airview_insight_cache_lookups_total",
				Help: "Insight query cache lookups, by outcome",
			},
			[]string{"outcome"},
		),
		deletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "airview_insight_retention_runs_total",
				Help: "Delete-before operations executed",
			},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "airview_operation_duration_seconds",
				Help:    "Duration of insight operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(r.insertsTotal, r.errorsTotal, r.cacheTotal, r.deletedTotal, r.latency)
	return r
}

// RecordInsert records one insert attempt; ok=false means it was skipped.
func (r *Recorder) RecordInsert(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.insertsTotal.WithLabelValues(result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordCache records a cache hit or miss.
func (r *Recorder) RecordCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheTotal.WithLabelValues(outcome).Inc()
}

// RecordDelete records a delete-before run.
func (r *Recorder) RecordDelete() {
	r.deletedTotal.Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
