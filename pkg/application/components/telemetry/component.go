package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

// TelemetryComponent installs the global otel tracer and meter providers.
type TelemetryComponent struct {
	*core.BaseComponent
	cfg      *Config
	tp       *sdktrace.TracerProvider
	mp       *sdkmetric.MeterProvider
	out      io.WriteCloser
	shutdown []func(context.Context) error
}

func NewTelemetryComponent(cfg *Config) *TelemetryComponent {
	return &TelemetryComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_TELEMETRY, consts.COMPONENT_LOGGING),
		cfg:           cfg,
	}
}

func (tc *TelemetryComponent) Start(ctx context.Context) error {
	if err := tc.BaseComponent.Start(ctx); err != nil {
		return err
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(tc.cfg.ServiceName)),
	)
	if err != nil {
		return fmt.Errorf("telemetry resource: %w", err)
	}
	if err := tc.initTracing(ctx, res); err != nil {
		return err
	}
	if err := tc.initMetrics(ctx, res); err != nil {
		return err
	}

	otel.SetTracerProvider(tc.tp)
	otel.SetMeterProvider(tc.mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logging.Info(ctx, "telemetry component started",
		zap.String("exporter", string(tc.cfg.Exporter)),
		zap.Float64("sample_ratio", tc.cfg.SampleRatio),
		zap.String("service_name", tc.cfg.ServiceName))
	return nil
}

func (tc *TelemetryComponent) grpcDialOptions() []grpc.DialOption {
	return []grpc.DialOption{grpc.WithUserAgent(tc.cfg.ServiceName)}
}

func (tc *TelemetryComponent) initTracing(ctx context.Context, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.cfg.SampleRatio))),
		sdktrace.WithResource(res),
	}
	switch tc.cfg.Exporter {
	case ExporterStdout:
		w, err := tc.writer()
		if err != nil {
			return err
		}
		sopts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
		if tc.cfg.StdoutPretty {
			sopts = append(sopts, stdouttrace.WithPrettyPrint())
		}
		exp, err := stdouttrace.New(sopts...)
		if err != nil {
			return fmt.Errorf("stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case ExporterOTLP:
		eopts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(tc.cfg.OTLP.Endpoint),
			otlptracegrpc.WithTimeout(tc.cfg.OTLP.Timeout),
			otlptracegrpc.WithDialOption(tc.grpcDialOptions()...),
		}
		if tc.cfg.OTLP.Insecure {
			eopts = append(eopts, otlptracegrpc.WithInsecure())
		} else {
			eopts = append(eopts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
		}
		exp, err := otlptracegrpc.New(ctx, eopts...)
		if err != nil {
			return fmt.Errorf("otlp trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	tc.tp = sdktrace.NewTracerProvider(opts...)
	tc.shutdown = append(tc.shutdown, tc.tp.Shutdown)
	return nil
}

func (tc *TelemetryComponent) initMetrics(ctx context.Context, res *resource.Resource) error {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	var exp sdkmetric.Exporter
	switch tc.cfg.Exporter {
	case ExporterStdout:
		w, err := tc.writer()
		if err != nil {
			return err
		}
		if exp, err = stdoutmetric.New(stdoutmetric.WithWriter(w)); err != nil {
			return fmt.Errorf("stdout metric exporter: %w", err)
		}
	case ExporterOTLP:
		eopts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(tc.cfg.OTLP.Endpoint),
			otlpmetricgrpc.WithTimeout(tc.cfg.OTLP.Timeout),
			otlpmetricgrpc.WithDialOption(tc.grpcDialOptions()...),
		}
		if tc.cfg.OTLP.Insecure {
			eopts = append(eopts, otlpmetricgrpc.WithInsecure())
		} else {
			eopts = append(eopts, otlpmetricgrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
		}
		var err error
		if exp, err = otlpmetricgrpc.New(ctx, eopts...); err != nil {
			return fmt.Errorf("otlp metric exporter: %w", err)
		}
	}
	if exp != nil {
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(tc.cfg.MetricInterval))))
	}
	tc.mp = sdkmetric.NewMeterProvider(opts...)
	tc.shutdown = append(tc.shutdown, tc.mp.Shutdown)
	return nil
}

// writer is shared by the stdout trace and metric exporters.
func (tc *TelemetryComponent) writer() (io.Writer, error) {
	if tc.cfg.StdoutFile == "" {
		return os.Stdout, nil
	}
	if tc.out != nil {
		return tc.out, nil
	}
	f, err := os.OpenFile(tc.cfg.StdoutFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open telemetry output: %w", err)
	}
	tc.out = f
	return f, nil
}

func (tc *TelemetryComponent) Stop(ctx context.Context) error {
	defer func() { _ = tc.BaseComponent.Stop(ctx) }()
	var errs []error
	for i := len(tc.shutdown) - 1; i >= 0; i-- {
		if err := tc.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	tc.shutdown = nil
	if tc.out != nil {
		errs = append(errs, tc.out.Close())
		tc.out = nil
	}
	return errors.Join(errs...)
}
