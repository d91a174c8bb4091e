package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(keyCacheOps)
}

var keyCacheOps = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "signing_key_cache_ops_total",
		Help: "Signing-key cache operations by result (hit/miss/refresh/error).",
	},
	[]string{"result"},
)

func IncKeyCache(result string) {
	keyCacheOps.WithLabelValues(norm(result)).Inc()
}
