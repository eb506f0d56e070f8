// Package metrics registers the process-wide Prometheus collectors used by
// the AdminServer's /metrics endpoint (SPEC_FULL §4.10).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BrowsersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "driver_browsers_active",
		Help: "Number of browsers currently owned by this driver.",
	})

	TabsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "driver_tabs_active",
		Help: "Number of tabs currently active, labeled by tab type.",
	}, []string{"tab_type"})

	TabClosedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "driver_tab_closed_total",
		Help: "Total tabs closed, labeled by close reason.",
	}, []string{"reason"})

	FrontierQueueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "driver_frontier_queue_length",
		Help: "Current frontier queue length, labeled by autoid.",
	}, []string{"autoid"})

	BehaviorDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "driver_behavior_duration_seconds",
		Help:    "Wall-clock duration of behavior runs.",
		Buckets: prometheus.DefBuckets,
	})

	ExitCode = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "driver_exit_code",
		Help: "Process exit code, set once at process exit.",
	})
)

// Registry is the process-wide collector registry. All collectors above are
// registered on it once, in this package's init.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		BrowsersActive,
		TabsActive,
		TabClosedTotal,
		FrontierQueueLength,
		BehaviorDuration,
		ExitCode,
	)
}
