// Package tracing wires the otel trace provider behind the tracing section
// of the hive config. Disabled tracing costs nothing: callers get a no-op
// tracer and never branch on the setting themselves.
package tracing

import (
	"context"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hivectl/hive/internal/config"
)

const serviceName = "hive-manager"

// Provider owns the tracer provider lifecycle. Shutdown flushes pending
// spans; call it on the way out.
type Provider struct {
	sdk    *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider builds a provider from the config. hiveDir anchors the default
// trace file when the file exporter is selected without a path.
func NewProvider(cfg config.TracingConfig, hiveDir string) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(serviceName)}, nil
	}

	exporter, err := newExporter(cfg, hiveDir)
	if err != nil {
		return nil, err
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 1.0
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	sdk := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(sdk)
	return &Provider{sdk: sdk, tracer: sdk.Tracer(serviceName)}, nil
}

func newExporter(cfg config.TracingConfig, hiveDir string) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "none", "":
		// Spans still correlate internally, nothing leaves the process.
		return nil, nil
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "file":
		path := cfg.FilePath
		if path == "" {
			path = filepath.Join(hiveDir, "traces", "traces.jsonl")
		}
		return newFileExporter(path)
	case "otlp":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		return otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}

// Tracer returns the span factory. Safe to use when tracing is disabled.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}
