// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "telegive_bot"

var (
	ServiceCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_calls_total",
			Help:      "Outbound calls to sibling services by outcome.",
		},
		[]string{"service", "outcome"}, // outcome: success, http_error, timeout, connection_error, error
	)

	ServiceCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "service_call_duration_seconds",
			Help:      "Duration of outbound calls to sibling services.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	TelegramCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_calls_total",
			Help:      "Telegram Bot API calls by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	WebhookUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_updates_total",
			Help:      "Inbound webhook updates by final status.",
		},
		[]string{"status"}, // processed, error, ignored, not_found
	)

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched chat commands.",
		},
		[]string{"command"},
	)

	TasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Background tasks processed by type and final status.",
		},
		[]string{"task_type", "status"},
	)

	PollerIterationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poller_iteration_duration_seconds",
			Help:      "Duration of one background poller iteration.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	AuditRecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_dropped_total",
			Help:      "Audit log records that could not be written.",
		},
		[]string{"kind", "reason"}, // reason: queue_full, write_error
	)

	ActiveBots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_bots",
			Help:      "Active bot registrations seen by the last health check.",
		},
	)
)
