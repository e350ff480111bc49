package ratelimit

import "github.com/prometheus/client_golang/prometheus"

var (
	rlAdmits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sendgate",
		Subsystem: "ratelimit",
		Name:      "admits_total",
		Help:      "Total requests admitted by the rate limiter.",
	})

	rlDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sendgate",
		Subsystem: "ratelimit",
		Name:      "denials_total",
		Help:      "Total requests denied, by scope and window.",
	}, []string{"scope", "window"}) // scope: "global" or a service type

	rlBackendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sendgate",
		Subsystem: "ratelimit",
		Name:      "backend_errors_total",
		Help:      "Total counter backend failures during admission (fail-closed denials).",
	})
)

func init() {
	prometheus.MustRegister(rlAdmits, rlDenials, rlBackendErrors)
}
