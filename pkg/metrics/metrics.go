package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the dataset adapter and the evaluator do during a run.
// Nothing is served over HTTP. Call WriteTextfile at the end of a run to
// hand the values to a node_exporter textfile collector.
type Metrics struct {
	FramesParsed       prometheus.Counter
	ObjectsKept        prometheus.Counter
	ObjectsDropped     *prometheus.CounterVec // label "reason"
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	DetectionsWritten  prometheus.Counter
	EvaluationRuns     prometheus.Counter
	ClassAP            *prometheus.GaugeVec // label "class"
	MeanAP             prometheus.Gauge
	LastEvaluationTime prometheus.Gauge

	registry *prometheus.Registry
}

// Reasons for dropping a ground truth object
const (
	DropOutsideImage = "outside_image"
	DropUnknownClass = "unknown_class"
)

// New creates a new Metrics instance with its own registry
func New() *Metrics {
	m := &Metrics{
		FramesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kittimot_frames_parsed_total",
			Help: "Frames whose annotation files were parsed",
		}),
		ObjectsKept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kittimot_objects_kept_total",
			Help: "Ground truth objects stored in frame records",
		}),
		ObjectsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kittimot_objects_dropped_total",
			Help: "Ground truth objects that were skipped",
		}, []string{"reason"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kittimot_cache_hits_total",
			Help: "Cached artifacts that were reused",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kittimot_cache_misses_total",
			Help: "Cached artifacts that had to be rebuilt",
		}),
		DetectionsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kittimot_detections_written_total",
			Help: "Lines written to result files",
		}),
		EvaluationRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kittimot_evaluation_runs_total",
			Help: "Completed AP evaluations",
		}),
		ClassAP: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kittimot_class_average_precision",
			Help: "Average precision of the last evaluation, per class",
		}, []string{"class"}),
		MeanAP: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kittimot_mean_average_precision",
			Help: "Mean average precision of the last evaluation",
		}),
		LastEvaluationTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kittimot_last_evaluation_timestamp_seconds",
			Help: "Unix time at which the last evaluation finished",
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.FramesParsed,
		m.ObjectsKept,
		m.ObjectsDropped,
		m.CacheHits,
		m.CacheMisses,
		m.DetectionsWritten,
		m.EvaluationRuns,
		m.ClassAP,
		m.MeanAP,
		m.LastEvaluationTime,
	)
	return m
}

// Registry returns the registry that holds all of our collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics in the Prometheus text format.
// The file is written to a temporary file first, and then renamed.
func (m *Metrics) WriteTextfile(filename string) error {
	if err := prometheus.WriteToTextfile(filename, m.registry); err != nil {
		return fmt.Errorf("Failed to write metrics to %v: %w", filename, err)
	}
	return nil
}
