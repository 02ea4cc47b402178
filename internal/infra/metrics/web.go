package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		httpRequests,
		rateLimited,
	)
}

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status class.",
		},
		[]string{"route", "status"},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_rate_limited_total",
			Help: "Checkout requests rejected by the per-payer rate limit.",
		},
	)
)

func IncHTTPRequest(route, status string) {
	httpRequests.WithLabelValues(route, norm(status)).Inc()
}

func IncRateLimited() {
	rateLimited.Inc()
}
