package send

import "github.com/prometheus/client_golang/prometheus"

var (
	sendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sendgate",
		Subsystem: "send",
		Name:      "requests_total",
		Help:      "Send pipeline runs, by service and result code.",
	}, []string{"service", "result"})

	replaysTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sendgate",
		Subsystem: "send",
		Name:      "idempotent_replays_total",
		Help:      "Responses served from the idempotency cache, by service.",
	}, []string{"service"})

	sendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sendgate",
		Subsystem: "send",
		Name:      "duration_seconds",
		Help:      "End-to-end pipeline latency, by service.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service"})
)

func init() {
	prometheus.MustRegister(sendsTotal, replaysTotal, sendDuration)
}
