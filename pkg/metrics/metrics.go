package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all engine metrics
type Metrics struct {
	// Scheduling
	AlertsScheduled     prometheus.Counter
	SchedulePassLatency prometheus.Histogram

	// Dispatch
	DispatchAttempts    *prometheus.CounterVec // channel, outcome
	DispatchPassLatency prometheus.Histogram
	AlertsClaimed       prometheus.Counter
	SendDuration        *prometheus.HistogramVec // channel
	ThrottledSends      *prometheus.CounterVec   // channel

	// Lifecycle
	Transitions     *prometheus.CounterVec // action
	DuplicateEvents prometheus.Counter

	// Escalation
	EscalationsFired prometheus.Counter
}

// NewMetrics creates and registers all engine metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		AlertsScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_scheduled_total",
			Help:      "Total number of alert instances created by the scheduler",
		}),
		SchedulePassLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "schedule_pass_duration_seconds",
			Help:      "Time spent per scheduler pass",
			Buckets:   prometheus.DefBuckets,
		}),
		DispatchAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_attempts_total",
			Help:      "Total delivery attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
		DispatchPassLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_pass_duration_seconds",
			Help:      "Time spent per dispatcher pass",
			Buckets:   prometheus.DefBuckets,
		}),
		AlertsClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_claimed_total",
			Help:      "Total due alerts claimed for dispatch",
		}),
		SendDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Duration of channel adapter calls",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"channel"}),
		ThrottledSends: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_sends_total",
			Help:      "Sends deferred by the per-organization rate limit",
		}, []string{"channel"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_transitions_total",
			Help:      "Applied alert state transitions by action",
		}, []string{"action"}),
		DuplicateEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_events_total",
			Help:      "Webhook events absorbed as idempotent no-ops",
		}),
		EscalationsFired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_fired_total",
			Help:      "Escalation passes that created secondary alerts",
		}),
	}
}
