package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		verifyRequests,
		verifyDuration,
	)
}

var (
	// Count of verify calls grouped by protocol, result and bounded reason.
	// protocol: local|remote
	// result: ok|fail
	// reason (fail only): bad_input|signature_invalid|unknown_order|product_mismatch|
	//                     authority_rejected|authority_unavailable|unsupported_format|
	//                     entry_error|grant_error|unknown
	verifyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verify_requests_total",
			Help: "Count of payment verification attempts by protocol, result and reason.",
		},
		[]string{"protocol", "result", "reason"},
	)

	verifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of payment verification in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"protocol", "result"},
	)
)

func ObserveVerify(protocol, result, reason string, d time.Duration) {
	verifyRequests.WithLabelValues(norm(protocol), norm(result), norm(reason)).Inc()
	verifyDuration.WithLabelValues(norm(protocol), norm(result)).Observe(d.Seconds())
}
