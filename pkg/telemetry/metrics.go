package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Engine ──────────────────────────────────────────────────────────────────

	EngineSubscriptionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "upkeep",
		Subsystem: "engine",
		Name:      "subscriptions_created_total",
		Help:      "Total subscriptions created, labelled by frequency.",
	}, []string{"frequency"})

	EngineInstancesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "upkeep",
		Subsystem: "engine",
		Name:      "instances_generated_total",
		Help:      "Total service instances generated, labelled by frequency.",
	}, []string{"frequency"})

	EngineInstancesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "upkeep",
		Subsystem: "engine",
		Name:      "instances_finished_total",
		Help:      "Instances reaching a terminal state, labelled by status.",
	}, []string{"status"})

	// ─── Sweep ───────────────────────────────────────────────────────────────────

	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "upkeep",
		Subsystem: "sweep",
		Name:      "runs_total",
		Help:      "Total sweep passes executed.",
	})

	SweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "upkeep",
		Subsystem: "sweep",
		Name:      "duration_seconds",
		Help:      "Wall time of a full sweep pass.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	})

	SweepItemFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "upkeep",
		Subsystem: "sweep",
		Name:      "item_failures_total",
		Help:      "Per-subscription or per-instance failures logged during sweeps.",
	})

	// ─── Notifications ───────────────────────────────────────────────────────────

	NotifyPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "upkeep",
		Subsystem: "notify",
		Name:      "events_published_total",
		Help:      "Notification events handed to the dispatcher, labelled by type.",
	}, []string{"type"})

	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "upkeep",
		Subsystem: "notify",
		Name:      "failures_total",
		Help:      "Notification dispatches that failed after all retries.",
	})
)
