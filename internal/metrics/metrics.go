package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "cklmerge"

// Metrics holds the counters for one process. Each instance owns its
// registry so that tests and concurrent runs never share state.
type Metrics struct {
	registry *prometheus.Registry

	// OperationsTotal counts orchestrator operations by mode and status
	OperationsTotal *prometheus.CounterVec

	// OperationDuration tracks how long an operation took
	OperationDuration *prometheus.HistogramVec

	// RecordsScanned counts VULN records seen by mode
	RecordsScanned *prometheus.CounterVec

	// RecordsUpdated counts VULN records whose COMMENTS were rewritten
	RecordsUpdated *prometheus.CounterVec

	// RowsSkipped counts CSV rows dropped during ingestion
	RowsSkipped prometheus.Counter

	// IdentifiersUnmatched counts CSV identifiers with no checklist record
	IdentifiersUnmatched prometheus.Counter
}

// New creates and registers the metric set on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of checklist operations by mode and status",
			},
			[]string{"mode", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Checklist operation duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"mode"},
		),
		RecordsScanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_scanned_total",
				Help:      "Total number of VULN records scanned",
			},
			[]string{"mode"},
		),
		RecordsUpdated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_updated_total",
				Help:      "Total number of VULN records whose comments were rewritten",
			},
			[]string{"mode"},
		),
		RowsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "csv_rows_skipped_total",
				Help:      "Total number of malformed CSV rows skipped",
			},
		),
		IdentifiersUnmatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "identifiers_unmatched_total",
				Help:      "Total number of CSV identifiers that matched no checklist record",
			},
		),
	}

	m.registry.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.RecordsScanned,
		m.RecordsUpdated,
		m.RowsSkipped,
		m.IdentifiersUnmatched,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values to path in the Prometheus text
// format, for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Snapshot returns counter and gauge values keyed by metric name with sorted
// label pairs, e.g. `cklmerge_records_updated_total{mode="merge"}`.
// Histograms are reported by their sample count.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			out[seriesName(mf.GetName(), metric)] = sampleValue(metric)
		}
	}
	return out, nil
}

func seriesName(name string, m *dto.Metric) string {
	labels := m.GetLabel()
	if len(labels) == 0 {
		return name
	}
	pairs := make([]string, 0, len(labels))
	for _, lp := range labels {
		pairs = append(pairs, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Histogram != nil:
		return float64(m.Histogram.GetSampleCount())
	default:
		return 0
	}
}
