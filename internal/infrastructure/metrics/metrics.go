// Package metrics holds the Prometheus collectors for the billing core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mediz"

var (
	// WebhookRequestsTotal counts provider webhook requests by event type and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total provider webhook requests by provider, event type and HTTP status.",
	}, []string{"provider", "event_type", "status"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Provider webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "event_type"})

	// ReconcileOutcomes counts reconciler results, including benign skips.
	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "reconcile_outcomes_total",
		Help:      "Subscription events by provider and reconciliation outcome.",
	}, []string{"provider", "outcome"})

	// PeriodCorrections counts period-end rewrites.
	PeriodCorrections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "period_corrections_total",
		Help:      "Subscription period ends rewritten to match plan rules, by trigger.",
	}, []string{"trigger"})

	// DriftSweepRows counts rows visited by the drift sweep by result.
	DriftSweepRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "drift_sweep_rows_total",
		Help:      "Subscriptions visited by the period drift sweep, by result (scanned/corrected/failed).",
	}, []string{"result"})

	// PremiumUsers is the last computed premium user count.
	PremiumUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "premium_users",
		Help:      "Distinct users with an entitling subscription at last computation.",
	})
)

// Trigger values for PeriodCorrections.
const (
	TriggerAdmin = "admin"
	TriggerSweep = "sweep"
)
