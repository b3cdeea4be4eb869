// Package metrics exposes the gateway's per-provider health as
// Prometheus gauges, mirroring the same response_time/error_rate data
// the §6 health report returns over HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aiprovidergw/gateway/internal/provider"
)

var (
	ResponseTimeSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "provider",
			Name:      "response_time_seconds",
			Help:      "Most recent observed response time for a provider.",
		},
		[]string{"provider"},
	)

	ErrorRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "provider",
			Name:      "error_rate",
			Help:      "Exponential moving average of a provider's error rate.",
		},
		[]string{"provider"},
	)

	Healthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "provider",
			Name:      "healthy",
			Help:      "1 if the provider's last recorded outcome was a success, 0 otherwise.",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(ResponseTimeSeconds, ErrorRate, Healthy)
}

// boolToFloat renders a health flag the way a gauge needs it.
func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Observe records one provider's dynamic health row onto the package's
// gauges. Called after every registry health update so /metrics always
// reflects the same numbers the health endpoint reports.
func Observe(id provider.ID, responseTimeSeconds, errorRate float64, healthy bool) {
	ResponseTimeSeconds.WithLabelValues(string(id)).Set(responseTimeSeconds)
	ErrorRate.WithLabelValues(string(id)).Set(errorRate)
	Healthy.WithLabelValues(string(id)).Set(boolToFloat(healthy))
}
