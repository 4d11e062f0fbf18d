package middleware

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/2beens/blogposts/internal/telemetry/metrics"
)

func newTestMetrics() (*metrics.Manager, *prometheus.Registry) {
	return metrics.NewTestManagerAndRegistry()
}
