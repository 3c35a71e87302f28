package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Monitor metrics
var (
	ActiveMonitors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailagent_active_monitors",
			Help: "Number of users with an active monitoring task",
		},
	)

	MonitorTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailagent_monitor_transitions_total",
			Help: "Monitor start/stop/restart transitions",
		},
		[]string{"transition"},
	)
)

// Pipeline metrics
var (
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailagent_pipeline_runs_total",
			Help: "Pipeline runs by result (processed, inactive, error)",
		},
		[]string{"result"},
	)

	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailagent_pipeline_run_duration_seconds",
			Help:    "Duration of pipeline runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EmailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailagent_emails_processed_total",
			Help: "Per-message processing outcomes (skipped, decided, error)",
		},
		[]string{"outcome"},
	)

	ActionsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailagent_actions_total",
			Help: "Dispatched actions by kind and terminal status",
		},
		[]string{"action", "status"},
	)

	ClassificationConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailagent_classification_confidence",
			Help:    "Classifier confidence by proposed action",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"action"},
	)
)

// Notification metrics
var (
	PushTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailagent_push_triggers_total",
			Help: "Gmail push notifications by result (triggered, duplicate, unknown_user, inactive)",
		},
		[]string{"result"},
	)
)
