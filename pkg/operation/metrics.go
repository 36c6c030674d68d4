package operation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adu_operation_retries_total",
		Help: "Number of retries scheduled by agent operations.",
	}, []string{"operation", "class"})

	cancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adu_operation_cancellations_total",
		Help: "Number of agent operations cancelled.",
	}, []string{"operation"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adu_operation_failures_total",
		Help: "Number of agent operations that ran out of retries.",
	}, []string{"operation"})
)
