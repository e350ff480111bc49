package delivery

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sendgate",
		Subsystem: "delivery",
		Name:      "attempts_total",
		Help:      "Provider delivery attempts by provider and outcome.",
	}, []string{"provider", "outcome"})

	deliveryFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sendgate",
		Subsystem: "delivery",
		Name:      "fallbacks_total",
		Help:      "Fallback attempts by failed primary and chosen fallback.",
	}, []string{"primary", "fallback"})

	deliveryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sendgate",
		Subsystem: "delivery",
		Name:      "attempt_latency_seconds",
		Help:      "Single provider attempt latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"provider"})
)

func init() {
	prometheus.MustRegister(deliveryAttempts, deliveryFallbacks, deliveryLatency)
}
