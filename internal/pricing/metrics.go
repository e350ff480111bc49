package pricing

import "github.com/prometheus/client_golang/prometheus"

var quotesComputed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sendgate",
	Subsystem: "pricing",
	Name:      "quotes_total",
	Help:      "Quotes computed, by service and cost source.",
}, []string{"service", "source"})

func init() {
	prometheus.MustRegister(quotesComputed)
}
