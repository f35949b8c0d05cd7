package main

import (
	"net/http"
	"runtime"

	mp "github.com/nbrownus/go-metrics-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/DerLukas15/dwdma"
)

// startStats exports the engine counters of metrics.DefaultRegistry to prometheus.
// Nothing is started when stats.listen is empty.
func startStats(l *logrus.Logger, c *dwdma.Config, buildVersion string) error {
	if c.Stats.Listen == "" {
		return nil
	}

	pr := prometheus.NewRegistry()
	pClient := mp.NewPrometheusProvider(metrics.DefaultRegistry, c.Stats.Namespace, c.Stats.Subsystem, pr, c.Stats.Interval)
	go pClient.UpdatePrometheusMetrics()

	// Export our version information as labels on a static gauge
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: c.Stats.Namespace,
		Subsystem: c.Stats.Subsystem,
		Name:      "info",
		Help:      "Version information for the dwdmactl binary",
		ConstLabels: prometheus.Labels{
			"version":   buildVersion,
			"goversion": runtime.Version(),
		},
	})
	pr.MustRegister(g)
	g.Set(1)

	go func() {
		l.Infof("Prometheus stats listening on %s at %s", c.Stats.Listen, c.Stats.Path)
		mux := http.NewServeMux()
		mux.Handle(c.Stats.Path, promhttp.HandlerFor(pr, promhttp.HandlerOpts{ErrorLog: l}))
		if err := http.ListenAndServe(c.Stats.Listen, mux); err != nil {
			l.WithError(err).Error("Prometheus stats listener stopped")
		}
	}()

	return nil
}
