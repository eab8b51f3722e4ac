// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProvisionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_requests_total",
			Help: "Total number of provisioning requests by outcome",
		},
		[]string{"outcome"},
	)

	ProvisionStepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_step_failures_total",
			Help: "Total number of workflow step failures",
		},
		[]string{"step", "error_code"},
	)

	ProvisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "provision_duration_seconds",
			Help: "Duration of the full provisioning workflow in seconds",
		},
		[]string{"outcome"},
	)

	ProvisionInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "provision_in_flight",
			Help: "Number of provisioning requests currently being processed",
		},
	)
)
