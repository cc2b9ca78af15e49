package observer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver exports submission events as Prometheus metrics and keeps
// a small in-process summary.
type MetricsObserver struct {
	selections  *prometheus.CounterVec   // by kind and result
	submissions *prometheus.CounterVec   // by outcome
	duration    *prometheus.HistogramVec // by outcome
	inFlight    prometheus.Gauge

	mu                  sync.RWMutex
	totalSubmissions    int64
	succeeded           int64
	failed              int64
	discarded           int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates the observer and registers its collectors on registry.
func NewMetricsObserver(registry prometheus.Registerer) (*MetricsObserver, error) {
	o := &MetricsObserver{
		selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "truthvision_selections_total",
				Help: "Media selections by media kind and result (accepted, rejected)",
			},
			[]string{"kind", "result"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "truthvision_submissions_total",
				Help: "Settled analysis submissions by outcome (succeeded, failed, discarded)",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "truthvision_submission_duration_seconds",
				Help:    "Time from submit to settle by outcome",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "truthvision_submissions_in_flight",
			Help: "Analysis requests currently awaiting a response",
		}),
	}

	if registry != nil {
		for _, c := range []prometheus.Collector{o.selections, o.submissions, o.duration, o.inFlight} {
			if err := registry.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register submission metrics: %w", err)
			}
		}
	}
	return o, nil
}

// OnEvent handles submission events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event SubmissionEvent) {
	switch event.EventType {
	case MediaSelected:
		o.selections.WithLabelValues(event.MediaKind, "accepted").Inc()
	case SelectionRejected:
		o.selections.WithLabelValues(event.ErrorKind, "rejected").Inc()
	case SubmissionStarted:
		o.inFlight.Inc()
		o.mu.Lock()
		o.totalSubmissions++
		o.mu.Unlock()
	case SubmissionSucceeded, SubmissionFailed, SubmissionDiscarded:
		outcome := outcomeOf(event.EventType)
		o.inFlight.Dec()
		o.submissions.WithLabelValues(outcome).Inc()
		o.duration.WithLabelValues(outcome).Observe(event.Duration.Seconds())

		o.mu.Lock()
		switch event.EventType {
		case SubmissionSucceeded:
			o.succeeded++
			o.totalProcessingTime += event.Duration
		case SubmissionFailed:
			o.failed++
		default:
			o.discarded++
		}
		o.mu.Unlock()
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.succeeded > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.succeeded)
	}

	return map[string]interface{}{
		"total_submissions":     o.totalSubmissions,
		"succeeded_submissions": o.succeeded,
		"failed_submissions":    o.failed,
		"discarded_submissions": o.discarded,
		"total_processing_time": o.totalProcessingTime,
		"avg_processing_time":   avgProcessingTime,
	}
}

func outcomeOf(t EventType) string {
	switch t {
	case SubmissionSucceeded:
		return "succeeded"
	case SubmissionFailed:
		return "failed"
	default:
		return "discarded"
	}
}
