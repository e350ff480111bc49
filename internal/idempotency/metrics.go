package idempotency

import "github.com/prometheus/client_golang/prometheus"

var (
	idemBegins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sendgate",
		Subsystem: "idempotency",
		Name:      "begins_total",
		Help:      "Begin outcomes: acquired, locked, replayed.",
	}, []string{"outcome"})

	idemCompletes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sendgate",
		Subsystem: "idempotency",
		Name:      "completes_total",
		Help:      "Complete outcomes: committed, lock_expired, already_completed.",
	}, []string{"outcome"})

	idemBackendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sendgate",
		Subsystem: "idempotency",
		Name:      "backend_errors_total",
		Help:      "Total lock store failures (fail-closed).",
	})
)

func init() {
	prometheus.MustRegister(idemBegins, idemCompletes, idemBackendErrors)
}
