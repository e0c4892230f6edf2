// Package metrics provides Prometheus metrics for the ladder service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts entity state changes by entity type and action
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ladder",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Total number of state transitions by entity and action",
		},
		[]string{"entity", "action"},
	)

	// RejectionsTotal counts business-rule refusals by operation and reason
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ladder",
			Subsystem: "workflow",
			Name:      "rejections_total",
			Help:      "Total number of operations refused by a business rule",
		},
		[]string{"operation", "reason"},
	)

	// ExpirationsFired tracks scheduler firings by task kind and result
	ExpirationsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ladder",
			Subsystem: "scheduler",
			Name:      "tasks_fired_total",
			Help:      "Total number of delayed tasks fired by kind and result",
		},
		[]string{"kind", "result"},
	)

	// TasksArmed tracks how many delayed tasks were (re-)armed in memory
	TasksArmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ladder",
			Subsystem: "scheduler",
			Name:      "tasks_armed_total",
			Help:      "Total number of delayed tasks armed by source",
		},
		[]string{"source"},
	)

	// NotificationFailures counts outbound messages the notifier could not deliver
	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ladder",
			Subsystem: "notifier",
			Name:      "failures_total",
			Help:      "Total number of failed outbound notifications",
		},
		[]string{"kind"},
	)

	// EventsIngested counts inbound events by outcome (processed, duplicate, failed)
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ladder",
			Subsystem: "router",
			Name:      "events_total",
			Help:      "Total number of inbound events by outcome",
		},
		[]string{"outcome"},
	)

	// RankingRecalcDuration tracks full standings recomputation time
	RankingRecalcDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ladder",
			Subsystem: "ranking",
			Name:      "recalculate_duration_seconds",
			Help:      "Duration of full ranking recalculations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// RankCacheLookups counts cache hits and misses for rank positions
	RankCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ladder",
			Subsystem: "ranking",
			Name:      "cache_lookups_total",
			Help:      "Total number of rank cache lookups by result",
		},
		[]string{"result"},
	)

	// ExportsTotal counts report exports by status
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ladder",
			Subsystem: "export",
			Name:      "runs_total",
			Help:      "Total number of report exports by status",
		},
		[]string{"status"},
	)
)
