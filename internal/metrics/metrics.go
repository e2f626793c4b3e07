// Package metrics provides Prometheus metrics for leetstreak
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leetstreak"

// ─── Source ────────────────────────────────────────────────────────────────

// SourceFetches counts submission source calls by result (ok, error)
var SourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "source_fetches_total",
	Help:      "Total submission source fetches.",
}, []string{"result"})

// SourceLatency tracks submission source call duration in seconds
var SourceLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "source_fetch_duration_seconds",
	Help:      "Submission source fetch duration in seconds.",
	Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
})

// ─── Tracking ──────────────────────────────────────────────────────────────

// StreakEvaluations counts streak evaluations by outcome
var StreakEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "streak_evaluations_total",
	Help:      "Total streak evaluations.",
}, []string{"outcome"})

// SolvesAnnounced counts announced submissions by kind (new, resubmission)
var SolvesAnnounced = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "solves_announced_total",
	Help:      "Total submissions announced.",
}, []string{"kind"})

// WeeklyRollovers counts week rollovers
var WeeklyRollovers = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "weekly_rollovers_total",
	Help:      "Total week rollovers.",
})

// UsersRegistered tracks the number of registered users
var UsersRegistered = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "users_registered",
	Help:      "Number of registered users.",
})

// UserErrors counts per-user failures by operation
var UserErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "user_errors_total",
	Help:      "Total per-user operation failures.",
}, []string{"operation"})

// ─── Notifications ─────────────────────────────────────────────────────────

// NotificationsSent counts delivered notifications by target kind
var NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "notifications_sent_total",
	Help:      "Total notifications delivered.",
}, []string{"target"})

// NotificationsRetried counts delivery retries by reason (rate_limited, error)
var NotificationsRetried = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "notifications_retried_total",
	Help:      "Total notification delivery retries.",
}, []string{"reason"})

// NotificationsDropped counts notifications given up on
var NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "notifications_dropped_total",
	Help:      "Total notifications dropped after exhausting retries.",
})

// NotificationQueueDepth tracks messages waiting in the gate
var NotificationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "notification_queue_depth",
	Help:      "Notifications waiting to be delivered.",
})

// ─── Jobs ──────────────────────────────────────────────────────────────────

// JobRuns counts scheduled job runs by job and result
var JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "job_runs_total",
	Help:      "Total job runs.",
}, []string{"job", "result"})

// JobSkips counts triggers skipped because the job was still running
var JobSkips = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "job_skips_total",
	Help:      "Total job triggers skipped while a previous run was active.",
}, []string{"job"})

// JobDuration tracks job run duration in seconds
var JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "job_duration_seconds",
	Help:      "Job run duration in seconds.",
	Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
}, []string{"job"})

// ─── Events ────────────────────────────────────────────────────────────────

// RegistrationEvents counts consumed registration events by action and result
var RegistrationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "registration_events_total",
	Help:      "Total registration events consumed.",
}, []string{"action", "result"})

// LiveClients tracks connected WebSocket clients
var LiveClients = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "live_clients",
	Help:      "Connected live feed clients.",
})

// ResultLabel maps an error to the "ok" / "error" label pair
func ResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
