package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quarrydb/quarry/internal/stats"
)

// engineMetrics are the engine's own operational counters, separate
// from the workload statistics it aggregates.
type engineMetrics struct {
	cyclesTotal   prometheus.Counter
	flushFailures prometheus.Counter
	liveWorkers   prometheus.GaugeFunc
}

func newEngineMetrics(registry *stats.Registry, reg prometheus.Registerer) *engineMetrics {
	m := &engineMetrics{
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "aggregator",
			Name:      "cycles_total",
			Help:      "Completed aggregation cycles.",
		}),
		flushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "aggregator",
			Name:      "flush_failures_total",
			Help:      "Intervals whose sink transaction aborted.",
		}),
		liveWorkers: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "quarry",
			Subsystem: "aggregator",
			Name:      "live_workers",
			Help:      "Currently registered worker contexts.",
		}, func() float64 { return float64(registry.LiveWorkers()) }),
	}
	if reg != nil {
		reg.MustRegister(m.cyclesTotal, m.flushFailures, m.liveWorkers)
	}
	return m
}
