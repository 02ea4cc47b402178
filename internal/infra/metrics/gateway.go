package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		gatewayAttempts,
		gatewayLatency,
	)
}

var (
	gatewayAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_attempts_total",
			Help: "Individual gateway charge attempts by outcome (ok/declined/transient).",
		},
		[]string{"provider", "outcome"},
	)

	gatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_attempt_seconds",
			Help:    "Latency of individual gateway charge attempts.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

func IncGatewayAttempt(provider, outcome string) {
	gatewayAttempts.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func ObserveGatewayLatency(provider string, seconds float64) {
	gatewayLatency.WithLabelValues(norm(provider)).Observe(seconds)
}
