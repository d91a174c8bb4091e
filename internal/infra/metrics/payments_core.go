package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ordersTotal,
		grantsTotal,
		revenueTotal,
	)
}

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_orders_total",
			Help: "Provider orders by outcome (created/failed).",
		},
		[]string{"outcome"},
	)

	grantsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_grants_total",
			Help: "Entitlement grants by provider kind (local_order/remote_receipt).",
		},
		[]string{"provider"},
	)

	revenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_revenue_total",
			Help: "Total monetary value of granted entitlements, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncOrder(outcome string) {
	ordersTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncGrant(provider string) {
	grantsTotal.WithLabelValues(norm(provider)).Inc()
}

func AddRevenue(currency string, amount int64) {
	revenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}
