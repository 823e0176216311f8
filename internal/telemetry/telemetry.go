// Package telemetry wires OpenTelemetry tracing and metrics for the
// engine's store layer.
//
// Telemetry is off by default. When off, the global providers are no-ops
// and WrapUnitOfWork returns the unit of work unchanged.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/pCruvinel/Minervav2-sub003"

// Options configures Init.
type Options struct {
	Enabled     bool
	ServiceName string
	Version     string
	// Stdout exports spans and metrics as JSON to Writer (stderr when nil).
	Stdout bool
	Writer io.Writer
	// MetricInterval is the stdout metric export period. Default 30s.
	MetricInterval time.Duration
}

// Provider holds the tracer and meter providers in use.
type Provider struct {
	enabled   bool
	tracers   trace.TracerProvider
	meters    metric.MeterProvider
	shutdowns []func(context.Context) error
}

// Init installs the global providers described by opts.
func Init(ctx context.Context, opts Options) (*Provider, error) {
	if !opts.Enabled {
		p := &Provider{tracers: tracenoop.NewTracerProvider(), meters: metricnoop.NewMeterProvider()}
		otel.SetTracerProvider(p.tracers)
		otel.SetMeterProvider(p.meters)
		return p, nil
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "minerva"
	}
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	if opts.MetricInterval <= 0 {
		opts.MetricInterval = 30 * time.Second
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
			semconv.ServiceVersionKey.String(opts.Version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if opts.Stdout {
		texp, err := stdouttrace.New(stdouttrace.WithWriter(opts.Writer))
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(texp))

		mexp, err := stdoutmetric.New(stdoutmetric.WithWriter(opts.Writer))
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(mexp, sdkmetric.WithInterval(opts.MetricInterval)),
		))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	mp := sdkmetric.NewMeterProvider(mpOpts...)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return &Provider{
		enabled:   true,
		tracers:   tp,
		meters:    mp,
		shutdowns: []func(context.Context) error{tp.Shutdown, mp.Shutdown},
	}, nil
}

// NewProvider wraps explicit providers. Tests use it with in-memory
// recorders.
func NewProvider(tp trace.TracerProvider, mp metric.MeterProvider) *Provider {
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	return &Provider{enabled: true, tracers: tp, meters: mp}
}

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool { return p != nil && p.enabled }

// Tracer returns a tracer named name, or the module scope when empty.
func (p *Provider) Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return p.tracers.Tracer(name)
}

// Meter returns a meter named name, or the module scope when empty.
func (p *Provider) Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return p.meters.Meter(name)
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, fn := range p.shutdowns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdowns = nil
	return errors.Join(errs...)
}
