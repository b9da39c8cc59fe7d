// Package telemetry records paneling run metrics in a private Prometheus
// registry and writes them to a textfile that node_exporter style collectors
// can pick up.
package telemetry

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/split"
)

const namespace = "paneler"

// Metrics holds the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	panelsCreated   prometheus.Counter
	panelRecords    *prometheus.GaugeVec
	panelDeviation  *prometheus.GaugeVec
	remainderFilled prometheus.Counter
	shortDraws      prometheus.Counter
	constrainedCats prometheus.Gauge
	splitDeviation  *prometheus.GaugeVec
	setsWritten     prometheus.Counter
	stageDuration   *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		panelsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "panels_created_total",
			Help: "Panels drawn from the master pool.",
		}),
		panelRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "panel_records",
			Help: "Records in each panel.",
		}, []string{"panel"}),
		panelDeviation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "panel_max_deviation",
			Help: "Largest absolute gap between achieved and adjusted share per panel.",
		}, []string{"panel"}),
		remainderFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "remainder_filled_records_total",
			Help: "Records added by the unstratified remainder fill.",
		}),
		shortDraws: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "insufficient_draws_total",
			Help: "Panels that could not reach the requested size.",
		}),
		constrainedCats: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "constrained_categories",
			Help: "Categories whose ideal target exceeded availability.",
		}),
		splitDeviation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "split_max_deviation",
			Help: "Largest spread of a category share across the sets of a panel.",
		}, []string{"panel"}),
		setsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "split_sets_total",
			Help: "Split sets produced.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "stage_duration_seconds",
			Help:    "Wall time per pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage"}),
	}
	m.registry.MustRegister(
		m.panelsCreated, m.panelRecords, m.panelDeviation, m.remainderFilled,
		m.shortDraws, m.constrainedCats, m.splitDeviation, m.setsWritten, m.stageDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePanels records a CreatePanels result.
func (m *Metrics) ObservePanels(result allocation.Result) {
	if m == nil {
		return
	}
	constrained := 0
	for _, e := range result.Report.Entries {
		if e.Constrained() {
			constrained++
		}
	}
	m.constrainedCats.Set(float64(constrained))
	for _, st := range result.Stats {
		label := strconv.Itoa(st.Panel)
		m.panelsCreated.Inc()
		m.panelRecords.WithLabelValues(label).Set(float64(st.Size))
		m.panelDeviation.WithLabelValues(label).Set(st.MaxDeviation)
		m.remainderFilled.Add(float64(st.Remainder))
		if st.Warning != nil {
			m.shortDraws.Inc()
		}
	}
}

// ObserveSplits records split stats.
func (m *Metrics) ObserveSplits(stats []split.Stats) {
	if m == nil {
		return
	}
	for _, st := range stats {
		m.splitDeviation.WithLabelValues(strconv.Itoa(st.Panel)).Set(st.MaxDeviation)
		m.setsWritten.Add(float64(st.NumSets))
	}
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// WriteFile writes the registry in the Prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("telemetry: write %s: %w", path, err)
	}
	return nil
}
