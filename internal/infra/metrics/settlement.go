package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		entitlementsGranted,
		orphanedPayments,
		doubleChargedPayments,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment intents by terminal outcome (succeeded/failed) or replay.",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Total monetary value of successful payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	entitlementsGranted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_granted_total",
			Help: "Entitlement records created, labeled by subject kind and tier (free/paid).",
		},
		[]string{"kind", "tier"},
	)

	orphanedPayments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "payments_orphaned_succeeded",
			Help: "Succeeded payments whose entitlement grant is still owed (reconciler scan).",
		},
	)

	doubleChargedPayments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "payments_double_charged",
			Help: "Succeeded payments duplicating an earlier one for the same payer and subject; refund candidates (reconciler scan).",
		},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncEntitlementGranted(kind, tier string) {
	entitlementsGranted.WithLabelValues(norm(kind), norm(tier)).Inc()
}

func SetOrphanedPayments(n int) {
	orphanedPayments.Set(float64(n))
}

func SetDoubleChargedPayments(n int) {
	doubleChargedPayments.Set(float64(n))
}
