package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// AnalyticsMetrics tracks the grading analytics pipeline.
type AnalyticsMetrics struct {
	queueDepth   prometheus.Gauge
	enqueued     *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	processed    *prometheus.CounterVec
	deadLetters  prometheus.Gauge
	breakerState prometheus.Gauge
}

var (
	analyticsMetricsOnce sync.Once
	analyticsMetrics     *AnalyticsMetrics
)

// Analytics returns the singleton analytics pipeline metrics.
func Analytics() *AnalyticsMetrics {
	return AnalyticsWithConfig(Config{})
}

func AnalyticsWithConfig(cfg Config) *AnalyticsMetrics {
	analyticsMetricsOnce.Do(func() {
		analyticsMetrics = newAnalyticsMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return analyticsMetrics
}

// ResetAnalyticsMetricsForTest resets the analytics metrics singleton for tests.
func ResetAnalyticsMetricsForTest() {
	analyticsMetricsOnce = sync.Once{}
	analyticsMetrics = nil
}

// NewAnalyticsMetricsForRegistry builds metrics on a caller-owned registry.
func NewAnalyticsMetricsForRegistry(registerer prometheus.Registerer) *AnalyticsMetrics {
	return newAnalyticsMetrics(registerer, Config{Environment: "test"})
}

func newAnalyticsMetrics(registerer prometheus.Registerer, cfg Config) *AnalyticsMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "scholara_analytics_queue_depth",
		Help:        "Analytics updates waiting for the consumer.",
		ConstLabels: labels,
	})
	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "scholara_analytics_enqueued_total",
		Help:        "Analytics updates accepted into the queue.",
		ConstLabels: labels,
	}, []string{"update_type"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "scholara_analytics_dropped_total",
		Help:        "Analytics updates rejected before processing.",
		ConstLabels: labels,
	}, []string{"update_type", "reason"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "scholara_analytics_processed_total",
		Help:        "Analytics updates handled by the consumer.",
		ConstLabels: labels,
	}, []string{"update_type", "outcome"})
	deadLetters := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "scholara_analytics_dead_letters",
		Help:        "Analytics updates currently held in the dead-letter list.",
		ConstLabels: labels,
	})
	breakerState := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "scholara_analytics_rollup_breaker_state",
		Help:        "Rollup circuit breaker state: 0 closed, 1 half-open, 2 open.",
		ConstLabels: labels,
	})

	registerer.MustRegister(queueDepth, enqueued, dropped, processed, deadLetters, breakerState)

	return &AnalyticsMetrics{
		queueDepth:   queueDepth,
		enqueued:     enqueued,
		dropped:      dropped,
		processed:    processed,
		deadLetters:  deadLetters,
		breakerState: breakerState,
	}
}

func (m *AnalyticsMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *AnalyticsMetrics) IncEnqueued(updateType string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(updateType).Inc()
}

func (m *AnalyticsMetrics) IncDropped(updateType, reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(updateType, reason).Inc()
}

func (m *AnalyticsMetrics) IncProcessed(updateType, outcome string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(updateType, outcome).Inc()
}

func (m *AnalyticsMetrics) SetDeadLetters(count int) {
	if m == nil {
		return
	}
	m.deadLetters.Set(float64(count))
}

func (m *AnalyticsMetrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.breakerState.Set(float64(state))
}
