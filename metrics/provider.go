package metrics

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/isdmx/execbox/config"
	"github.com/isdmx/execbox/logger"
)

// Provider owns the SDK meter provider exporting the service's metrics.
// When metrics are disabled it hands out the global (no-op) meter.
type Provider struct {
	logger *zap.Logger
	mp     *sdkmetric.MeterProvider
}

// NewProvider builds the meter provider described by the metrics section of
// cfg and installs it globally.
func NewProvider(cfg *config.Config, log *zap.Logger) (*Provider, error) {
	return newProvider(context.Background(), cfg, log, os.Stderr)
}

func newProvider(ctx context.Context, cfg *config.Config, log *zap.Logger, stdout io.Writer) (*Provider, error) {
	p := &Provider{logger: logger.Component(log, "metrics")}

	mc := cfg.Metrics
	if !mc.Enabled {
		p.logger.Debug("metrics export disabled")
		return p, nil
	}

	exporter, err := newExporter(ctx, mc, stdout)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", "execbox")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build metrics resource: %w", err)
	}

	p.mp = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.GetMetricsInterval()),
		)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(p.mp)

	p.logger.Info("metrics export enabled",
		zap.String("exporter", mc.Exporter),
		zap.Duration("interval", cfg.GetMetricsInterval()),
		zap.String("otlp_endpoint", mc.OTLPEndpoint),
	)

	return p, nil
}

func newExporter(ctx context.Context, mc config.MetricsConfig, stdout io.Writer) (sdkmetric.Exporter, error) {
	switch mc.Exporter {
	case config.MetricsExporterOTLP:
		var opts []otlpmetrichttp.Option
		if mc.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(mc.OTLPEndpoint))
		}
		if mc.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exp, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		return exp, nil
	case config.MetricsExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(stdout))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unsupported metrics exporter: %s", mc.Exporter)
	}
}

// Meter returns the meter instruments are created on.
func (p *Provider) Meter() metric.Meter {
	if p == nil || p.mp == nil {
		return otel.Meter(InstrumentationName)
	}
	return p.mp.Meter(InstrumentationName)
}

// Shutdown flushes pending metrics and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.mp == nil {
		return nil
	}
	p.logger.Info("flushing metrics")
	return p.mp.Shutdown(ctx)
}

// Register flushes the provider when the fx application stops.
func Register(lc fx.Lifecycle, p *Provider) {
	lc.Append(fx.Hook{OnStop: p.Shutdown})
}
