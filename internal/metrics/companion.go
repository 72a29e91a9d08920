// Package metrics defines the Prometheus collectors exported by the companion.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "companion"

// Detection loop metrics.
var (
	DetectionPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_passes_total",
			Help:      "Detection passes by outcome",
		},
		[]string{"result"}, // known, unknown, no_face, not_ready, error
	)

	DetectionTicksSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_ticks_skipped_total",
			Help:      "Ticks skipped because the previous detection pass was still running",
		},
	)

	DetectionPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_pass_duration_seconds",
			Help:      "Duration of a detection pass in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
)

// Encounter metrics.
var (
	EncounterLogErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encounter_log_errors_total",
			Help:      "Unknown-person encounters that could not be persisted",
		},
	)

	PeopleSavedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "people_saved_total",
			Help:      "Save-new-person attempts by status",
		},
		[]string{"status"},
	)
)

// Enrichment metrics.
var (
	EnrichmentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_requests_total",
			Help:      "Description service requests by provider and status",
		},
		[]string{"provider", "status"}, // ok, empty, timeout, error
	)

	EnrichmentRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_request_duration_seconds",
			Help:      "Description service request duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"provider"},
	)
)

// Speech metrics.
var (
	SpeechRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_requests_total",
			Help:      "Speak requests by outcome",
		},
		[]string{"result"}, // started, deduplicated, disabled, empty, preempted, failed
	)
)

// Reminder metrics.
var (
	RemindersFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_fired_total",
			Help:      "Task reminders spoken by kind",
		},
		[]string{"kind"}, // due, upcoming, manual
	)

	ReminderMemoSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reminder_memo_size",
			Help:      "Number of tasks currently memoed as reminded",
		},
	)
)

func init() {
	prometheus.MustRegister(
		DetectionPassesTotal,
		DetectionTicksSkippedTotal,
		DetectionPassDuration,
		EncounterLogErrorsTotal,
		PeopleSavedTotal,
		EnrichmentRequestsTotal,
		EnrichmentRequestDuration,
		SpeechRequestsTotal,
		RemindersFiredTotal,
		ReminderMemoSize,
	)
}
