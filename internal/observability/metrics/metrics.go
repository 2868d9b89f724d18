package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level OTLP instruments.
type Metrics struct {
	gradingEvents        metric.Int64Counter
	analyticsUpdates     metric.Int64Counter
	partitionTransitions metric.Int64Counter
	partitionsCreated    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "scholara"
	}
	meter := provider.Meter(name)

	gradingEvents, err := meter.Int64Counter("scholara_grading_events_total")
	if err != nil {
		return nil, err
	}
	analyticsUpdates, err := meter.Int64Counter("scholara_analytics_updates_total")
	if err != nil {
		return nil, err
	}
	partitionTransitions, err := meter.Int64Counter("scholara_invoice_partition_transitions_total")
	if err != nil {
		return nil, err
	}
	partitionsCreated, err := meter.Int64Counter("scholara_invoice_partitions_created_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gradingEvents:        gradingEvents,
		analyticsUpdates:     analyticsUpdates,
		partitionTransitions: partitionTransitions,
		partitionsCreated:    partitionsCreated,
	}, nil
}

// RecordGradingEvent counts ingested grading events by outcome.
func (m *Metrics) RecordGradingEvent(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.gradingEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAnalyticsUpdate counts processed analytics updates by type.
func (m *Metrics) RecordAnalyticsUpdate(ctx context.Context, updateType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("update_type", strings.TrimSpace(updateType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.analyticsUpdates.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPartitionTransition counts lifecycle actions applied to invoice partitions.
func (m *Metrics) RecordPartitionTransition(ctx context.Context, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.partitionTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPartitionsCreated counts newly created quarterly partitions.
func (m *Metrics) RecordPartitionsCreated(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.partitionsCreated.Add(ctx, int64(count))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"update_type": {},
	"outcome":     {},
	"action":      {},
	"job":         {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
// Student and class identifiers are never allowed.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
