package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the pipeline's prometheus instruments.
type Metrics struct {
	files    *prometheus.CounterVec
	records  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the pipeline instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		files: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "degendigest",
			Subsystem: "pipeline",
			Name:      "files_total",
			Help:      "Blobs processed, by source and result.",
		}, []string{"source", "result"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "degendigest",
			Subsystem: "pipeline",
			Name:      "records_total",
			Help:      "Records processed, by source and outcome.",
		}, []string{"source", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "degendigest",
			Subsystem: "pipeline",
			Name:      "source_duration_seconds",
			Help:      "Wall time to migrate one source.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"source"}),
	}
}

func (m *Metrics) observeFile(src string, fr fileReport, failed bool) {
	result := "ok"
	if failed {
		result = "failed"
	}
	m.files.WithLabelValues(src, result).Inc()
	m.records.WithLabelValues(src, "written").Add(float64(fr.written))
	m.records.WithLabelValues(src, "skipped").Add(float64(fr.skipped))
	m.records.WithLabelValues(src, "failed").Add(float64(fr.failed))
	m.records.WithLabelValues(src, "duplicate").Add(float64(fr.duplicates))
}
