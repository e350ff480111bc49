package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	dispatchEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sendgate",
		Subsystem: "dispatch",
		Name:      "enqueued_total",
		Help:      "Events accepted into the dispatch queue, by type.",
	}, []string{"event_type"})

	dispatchDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sendgate",
		Subsystem: "dispatch",
		Name:      "dropped_total",
		Help:      "Events dropped because the dispatch queue was full.",
	}, []string{"event_type"})

	dispatchQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sendgate",
		Subsystem: "dispatch",
		Name:      "queue_depth",
		Help:      "Events currently waiting in the dispatch queue.",
	})

	sinkFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sendgate",
		Subsystem: "dispatch",
		Name:      "sink_failures_total",
		Help:      "Sink deliveries that failed after retries, by sink and event type.",
	}, []string{"sink", "event_type"})

	sinkLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sendgate",
		Subsystem: "dispatch",
		Name:      "sink_latency_seconds",
		Help:      "Sink delivery latency, by sink.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(dispatchEnqueued, dispatchDropped, dispatchQueueDepth, sinkFailures, sinkLatency)
}
