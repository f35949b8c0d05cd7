package dwdma

import (
	"github.com/rcrowley/go-metrics"
)

type engineMetrics struct {
	acquire       metrics.Counter
	exhausted     metrics.Counter
	completions   metrics.Counter
	dropped       metrics.Counter
	drainComplete metrics.Counter
	drainTimeout  metrics.Counter
	busy          metrics.Gauge
}

//newEngineMetrics registers the engine counters in r. A nil r uses metrics.DefaultRegistry.
func newEngineMetrics(r metrics.Registry) *engineMetrics {
	return &engineMetrics{
		acquire:       metrics.GetOrRegisterCounter("dwdma.acquire", r),
		exhausted:     metrics.GetOrRegisterCounter("dwdma.acquire.exhausted", r),
		completions:   metrics.GetOrRegisterCounter("dwdma.completions", r),
		dropped:       metrics.GetOrRegisterCounter("dwdma.completions.dropped", r),
		drainComplete: metrics.GetOrRegisterCounter("dwdma.drain.complete", r),
		drainTimeout:  metrics.GetOrRegisterCounter("dwdma.drain.timeout", r),
		busy:          metrics.GetOrRegisterGauge("dwdma.channels.busy", r),
	}
}
