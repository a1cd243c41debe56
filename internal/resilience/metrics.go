package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	retryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_attempts_total",
			Help: "Attempts made through the retry executor, by outcome",
		},
		[]string{"operation", "outcome"},
	)
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"breaker"},
	)
	breakerRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_breaker_rejected_total",
			Help: "Calls refused because the circuit was open",
		},
		[]string{"breaker"},
	)
)

func init() {
	prometheus.MustRegister(retryAttempts)
	prometheus.MustRegister(breakerState)
	prometheus.MustRegister(breakerRejected)
}
