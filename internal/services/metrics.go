package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueueStats supplies live queue depths for gauge collection
type QueueStats interface {
	GeneralSize() int
	GeneralPending() int
	VoiceSize() int
	VoicePending() int
}

// Metrics holds all custom Prometheus metrics for the orchestrator
type Metrics struct {
	EventsQueued    *prometheus.CounterVec
	EventsProcessed *prometheus.CounterVec
	EventsFailed    *prometheus.CounterVec
	EventLatency    prometheus.Histogram
}

// InitMetrics initializes the Prometheus counters and histograms. Queue
// depth gauges need a live scheduler, so they are registered separately via
// RegisterQueueGauges once the scheduler exists.
func InitMetrics() *Metrics {
	metrics := &Metrics{
		EventsQueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_events_queued_total",
			Help: "Total number of events accepted, by use case",
		}, []string{"use_case"}),

		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_events_processed_total",
			Help: "Total number of events completed successfully, by use case",
		}, []string{"use_case"}),

		EventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_events_failed_total",
			Help: "Total number of events that reached error status, by use case",
		}, []string{"use_case"}),

		EventLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_event_duration_seconds",
			Help:    "Event processing latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}, // up to 2 minutes for LLM responses
		}),
	}

	return metrics
}

// RegisterQueueGauges registers live queue depth gauges against the stats
// source so scrapes always see current values.
func (m *Metrics) RegisterQueueGauges(stats QueueStats) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "orchestrator_general_queue_size",
			Help: "Tasks waiting in the general queue",
		},
		func() float64 { return float64(stats.GeneralSize()) },
	))
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "orchestrator_general_queue_pending",
			Help: "Tasks in flight on the general queue",
		},
		func() float64 { return float64(stats.GeneralPending()) },
	))
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "orchestrator_voice_queue_size",
			Help: "Tasks waiting in the voice queue",
		},
		func() float64 { return float64(stats.VoiceSize()) },
	))
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "orchestrator_voice_queue_pending",
			Help: "Tasks in flight on the voice queue",
		},
		func() float64 { return float64(stats.VoicePending()) },
	))
}

// RecordEventQueued records an accepted event
func (m *Metrics) RecordEventQueued(useCase string) {
	m.EventsQueued.WithLabelValues(useCase).Inc()
}

// RecordEventProcessed records a completed event and its latency
func (m *Metrics) RecordEventProcessed(useCase string, seconds float64) {
	m.EventsProcessed.WithLabelValues(useCase).Inc()
	m.EventLatency.Observe(seconds)
}

// RecordEventFailed records a failed event
func (m *Metrics) RecordEventFailed(useCase string) {
	m.EventsFailed.WithLabelValues(useCase).Inc()
}
