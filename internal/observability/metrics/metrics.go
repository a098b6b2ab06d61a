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

// Metrics exposes application-level instruments for the billing pipeline.
type Metrics struct {
	checkouts        metric.Int64Counter
	paymentEvents    metric.Int64Counter
	invoicesIssued   metric.Int64Counter
	renewals         metric.Int64Counter
	cartsExpired     metric.Int64Counter
	trialsPromoted   metric.Int64Counter
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
		name = "stocker"
	}
	meter := provider.Meter(name)

	checkouts, err := meter.Int64Counter("stocker_checkouts_total")
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("stocker_payment_events_total")
	if err != nil {
		return nil, err
	}
	invoicesIssued, err := meter.Int64Counter("stocker_invoices_issued_total")
	if err != nil {
		return nil, err
	}
	renewals, err := meter.Int64Counter("stocker_subscription_renewals_total")
	if err != nil {
		return nil, err
	}
	cartsExpired, err := meter.Int64Counter("stocker_carts_expired_total")
	if err != nil {
		return nil, err
	}
	trialsPromoted, err := meter.Int64Counter("stocker_trials_promoted_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		checkouts:      checkouts,
		paymentEvents:  paymentEvents,
		invoicesIssued: invoicesIssued,
		renewals:       renewals,
		cartsExpired:   cartsExpired,
		trialsPromoted: trialsPromoted,
	}, nil
}

// RecordCheckout increments checkout counts per billing cycle.
func (m *Metrics) RecordCheckout(ctx context.Context, billingCycle string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("billing_cycle", strings.TrimSpace(billingCycle)))
	m.checkouts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent increments payment event counts.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoiceIssued increments issued invoice counts.
func (m *Metrics) RecordInvoiceIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.invoicesIssued.Add(ctx, 1)
}

// RecordRenewals adds renewed subscription counts.
func (m *Metrics) RecordRenewals(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.renewals.Add(ctx, int64(count))
}

// RecordCartsExpired adds expired cart counts.
func (m *Metrics) RecordCartsExpired(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.cartsExpired.Add(ctx, int64(count))
}

// RecordTrialsPromoted adds trial promotion counts.
func (m *Metrics) RecordTrialsPromoted(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.trialsPromoted.Add(ctx, int64(count))
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
	"tenant_id":     {},
	"endpoint":      {},
	"status_code":   {},
	"billing_cycle": {},
	"provider":      {},
	"event_type":    {},
	"reason":        {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
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
