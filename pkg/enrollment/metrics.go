package enrollment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var enrolledGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "adu_enrollment_enrolled",
	Help: "1 when the service reported the device enrolled, 0 otherwise.",
})
