package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcomes
const (
	OutcomeAccepted  = "accepted"
	OutcomeInvalid   = "invalid"
	OutcomeDuplicate = "duplicate"
	OutcomeQueueFull = "queue_full"
)

// MintMetrics records mint queue activity
type MintMetrics struct {
	submitted  *prometheus.CounterVec
	finished   *prometheus.CounterVec
	queueDepth prometheus.Gauge
	duration   prometheus.Histogram
}

var (
	mintMetricsOnce sync.Once
	mintRegistry    *MintMetrics
)

// Mint returns the lazily registered mint metrics
func Mint() *MintMetrics {
	mintMetricsOnce.Do(func() {
		mintRegistry = &MintMetrics{
			submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "jobs",
				Name:      "submitted_total",
				Help:      "Mint submissions segmented by synchronous outcome.",
			}, []string{"outcome"}),
			finished: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "jobs",
				Name:      "finished_total",
				Help:      "Mint jobs that reached a terminal state.",
			}, []string{"state"}),
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "mintgate",
				Name:      "queue_depth",
				Help:      "Jobs waiting in the mint queue.",
			}),
			duration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "mintgate",
				Subsystem: "job",
				Name:      "duration_seconds",
				Help:      "Time from dequeue to terminal state.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			}),
		}
		prometheus.MustRegister(
			mintRegistry.submitted,
			mintRegistry.finished,
			mintRegistry.queueDepth,
			mintRegistry.duration,
		)
	})
	return mintRegistry
}

// RecordSubmission counts a submission outcome
func (m *MintMetrics) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(outcome).Inc()
}

// RecordFinished counts a terminal job and its processing time
func (m *MintMetrics) RecordFinished(state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(state).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// SetQueueDepth reports the number of waiting jobs
func (m *MintMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
