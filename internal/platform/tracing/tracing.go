// Package tracing installs the OpenTelemetry tracer provider and exports
// spans over OTLP when a collector endpoint is configured.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"medblock/internal/platform/config"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"

	httpTracesPath = "/v1/traces"
)

// Shutdown flushes pending spans and stops the exporter.
type Shutdown func(ctx context.Context) error

// Setup sets the global propagator and, when cfg.Endpoint is set, the global
// tracer provider. Without an endpoint spans stay on the no-op provider and
// the returned Shutdown does nothing.
func Setup(ctx context.Context, cfg config.TracingConfig, logger *slog.Logger) (Shutdown, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.Endpoint == "" {
		logger.Info("tracing disabled", "reason", "OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func(context.Context) error { return nil }, nil
	}

	tp, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)

	logger.Info("tracing configured",
		"otlp_protocol", protocolOf(cfg),
		"otlp_endpoint", cfg.Endpoint,
		"sampler", cfg.Sampler,
		"sampler_arg", cfg.SamplerArg,
		"service", cfg.ServiceName,
	)
	return tp.Shutdown, nil
}

// NewProvider builds a batching tracer provider that exports to cfg.Endpoint.
func NewProvider(ctx context.Context, cfg config.TracingConfig) (*sdktrace.TracerProvider, error) {
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
	)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.Sampler, cfg.SamplerArg)),
	), nil
}

func newExporter(ctx context.Context, cfg config.TracingConfig) (*otlptrace.Exporter, error) {
	switch protocolOf(cfg) {
	case ProtocolGRPC:
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(cfg.Endpoint))
	case ProtocolHTTP:
		endpoint, err := httpTracesURL(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", cfg.Protocol)
}

func protocolOf(cfg config.TracingConfig) string {
	if cfg.Protocol == "" {
		return ProtocolGRPC
	}
	return cfg.Protocol
}

// httpTracesURL treats a bare collector URL as the OTLP base endpoint and
// appends the traces path, matching how the SDK reads the environment.
func httpTracesURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse OTLP endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("OTLP endpoint %q must be an absolute URL", endpoint)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = httpTracesPath
	}
	return u.String(), nil
}

// Sampler maps the OTEL_TRACES_SAMPLER names onto SDK samplers. Unknown
// names fall back to parent-based always-on.
func Sampler(name string, arg float64) sdktrace.Sampler {
	switch name {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(arg)
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(arg))
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}
