package echoapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/mashovsend/core/run"
)

const metricsNamespace = "mashovsend"

// Metrics counts portal logins, runs and per-record outcomes on its own registry.
type Metrics struct {
	registry *prometheus.Registry
	logins   *prometheus.CounterVec
	runs     *prometheus.CounterVec
	outcomes *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "portal_logins_total",
			Help:      "Portal login attempts by result.",
		}, []string{"result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Finished runs by mode and whether they were stopped early.",
		}, []string{"mode", "stopped"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outcomes_total",
			Help:      "Record outcomes by status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.logins,
		m.runs,
		m.outcomes,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) login(err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) outcome(o run.Outcome) {
	m.outcomes.WithLabelValues(string(o.Status)).Inc()
}

func (m *Metrics) finished(s run.Summary, dryRun bool) {
	mode := "live"
	if dryRun {
		mode = "dry_run"
	}
	stopped := "false"
	if s.Stopped {
		stopped = "true"
	}
	m.runs.WithLabelValues(mode, stopped).Inc()
}
