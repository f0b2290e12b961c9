package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	clockActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timeclock",
			Name:      "clock_actions_total",
			Help:      "Count of clock actions by action and result.",
		},
		[]string{"action", "result"},
	)

	ruleViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timeclock",
			Name:      "rule_violations_total",
			Help:      "Count of rejected actions by rule code.",
		},
		[]string{"code"},
	)

	conflictRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "timeclock",
			Name:      "conflict_retries_total",
			Help:      "Count of evaluate-then-write cycles retried after a write conflict.",
		},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "timeclock",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the per-user lock.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timeclock",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by route pattern and status code.",
		},
		[]string{"route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "timeclock",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(clockActions, ruleViolations, conflictRetries, lockWait, httpRequests, httpDuration)
	})
}

func IncClockAction(action, result string) {
	clockActions.WithLabelValues(action, result).Inc()
}

func IncRuleViolation(code string) {
	ruleViolations.WithLabelValues(code).Inc()
}

func IncConflictRetry() {
	conflictRetries.Inc()
}

func ObserveLockWait(d time.Duration) {
	lockWait.Observe(d.Seconds())
}

func ObserveHTTPRequest(route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
