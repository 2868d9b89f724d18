package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ArchiveMetrics tracks the invoice partition lifecycle.
type ArchiveMetrics struct {
	partitions   *prometheus.GaugeVec
	records      *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
	rowsMoved    prometheus.Counter
	runDuration  *prometheus.HistogramVec
	operationErr *prometheus.CounterVec
}

var (
	archiveMetricsOnce sync.Once
	archiveMetrics     *ArchiveMetrics
)

// Archive returns the singleton partition lifecycle metrics.
func Archive() *ArchiveMetrics {
	return ArchiveWithConfig(Config{})
}

func ArchiveWithConfig(cfg Config) *ArchiveMetrics {
	archiveMetricsOnce.Do(func() {
		archiveMetrics = newArchiveMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return archiveMetrics
}

// ResetArchiveMetricsForTest resets the archive metrics singleton for tests.
func ResetArchiveMetricsForTest() {
	archiveMetricsOnce = sync.Once{}
	archiveMetrics = nil
}

// NewArchiveMetricsForRegistry builds metrics on a caller-owned registry.
func NewArchiveMetricsForRegistry(registerer prometheus.Registerer) *ArchiveMetrics {
	return newArchiveMetrics(registerer, Config{Environment: "test"})
}

func newArchiveMetrics(registerer prometheus.Registerer, cfg Config) *ArchiveMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	partitions := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "scholara_invoice_partitions",
		Help:        "Quarterly invoice partitions by derived status.",
		ConstLabels: labels,
	}, []string{"status"})
	records := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "scholara_invoice_partition_records",
		Help:        "Invoice rows held in live partitions by derived status.",
		ConstLabels: labels,
	}, []string{"status"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "scholara_invoice_partition_transitions_total",
		Help:        "Lifecycle actions applied to invoice partitions.",
		ConstLabels: labels,
	}, []string{"action"})
	rowsMoved := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "scholara_invoice_archive_rows_moved_total",
		Help:        "Settled invoice rows moved into archive tables.",
		ConstLabels: labels,
	})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "scholara_invoice_archive_operation_duration_seconds",
		Help:        "Duration of partition lifecycle operations.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800, 3600},
		ConstLabels: labels,
	}, []string{"operation"})
	operationErr := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "scholara_invoice_archive_operation_errors_total",
		Help:        "Failed partition lifecycle operations by reason.",
		ConstLabels: labels,
	}, []string{"operation", "reason"})

	registerer.MustRegister(partitions, records, transitions, rowsMoved, runDuration, operationErr)

	return &ArchiveMetrics{
		partitions:   partitions,
		records:      records,
		transitions:  transitions,
		rowsMoved:    rowsMoved,
		runDuration:  runDuration,
		operationErr: operationErr,
	}
}

// SetPartitionCounts publishes the latest partition and record counts for one status.
func (m *ArchiveMetrics) SetPartitionCounts(status string, partitions int, records int64) {
	if m == nil {
		return
	}
	m.partitions.WithLabelValues(status).Set(float64(partitions))
	m.records.WithLabelValues(status).Set(float64(records))
}

func (m *ArchiveMetrics) IncTransition(action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action).Inc()
}

func (m *ArchiveMetrics) AddRowsMoved(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.rowsMoved.Add(float64(count))
}

func (m *ArchiveMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.operationErr.WithLabelValues(operation, ClassifySchedulerJobReason(err)).Inc()
	}
}
