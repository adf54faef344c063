package otel

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/agoda-com/opentelemetry-go/otelslog"
	logsOtel "github.com/agoda-com/opentelemetry-logs-go"
	"github.com/agoda-com/opentelemetry-logs-go/exporters/otlp/otlplogs"
	logsSdk "github.com/agoda-com/opentelemetry-logs-go/sdk/logs"
	runtimeMetrics "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.4.0"

	"ely.by/changeskin/internal/version"
)

// Options selects the exported signals. Exporters read their endpoints
// from the standard OTEL_* environment variables
type Options struct {
	// Instance distinguishes the processes of one network, usually the name of the server
	Instance string
	Logs     bool
	LogLevel slog.Level
	Traces   bool
	Metrics  bool
}

// SetupOTelSDK installs the global providers for the enabled signals.
// Meters and tracers obtained through GetMeter and GetTracer before the setup keep working,
// since the global providers delegate to the installed ones
func SetupOTelSDK(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	// Each registered cleanup is invoked once, the errors are joined
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}

		shutdownFuncs = nil

		return err
	}

	handleErr := func(inErr error) {
		err = errors.Join(inErr, shutdown(ctx))
	}

	otel.SetTextMapPropagator(newPropagator())

	res, err := newResource(ctx, opts.Instance)
	if err != nil {
		handleErr(err)
		return
	}

	if opts.Logs {
		var logsProvider *logsSdk.LoggerProvider
		logsProvider, err = newLoggerProvider(ctx, res)
		if err != nil {
			handleErr(err)
			return
		}

		shutdownFuncs = append(shutdownFuncs, logsProvider.Shutdown)
		logsOtel.SetLoggerProvider(logsProvider)

		slog.SetDefault(slog.New(otelslog.NewOtelHandler(logsProvider, &otelslog.HandlerOptions{Level: opts.LogLevel})))
	}

	if opts.Traces {
		var tracerProvider *trace.TracerProvider
		tracerProvider, err = newTraceProvider(ctx, res)
		if err != nil {
			handleErr(err)
			return
		}

		shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
		otel.SetTracerProvider(tracerProvider)
	}

	if opts.Metrics {
		var meterProvider *metric.MeterProvider
		meterProvider, err = newMeterProvider(ctx, res)
		if err != nil {
			handleErr(err)
			return
		}

		shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
		otel.SetMeterProvider(meterProvider)

		err = runtimeMetrics.Start(runtimeMetrics.WithMinimumReadMemStatsInterval(time.Second))
		if err != nil {
			handleErr(err)
			return
		}
	}

	return
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func newResource(ctx context.Context, instance string) (*resource.Resource, error) {
	attributes := []attribute.KeyValue{
		semconv.ServiceNameKey.String("changeskin"),
		semconv.ServiceVersionKey.String(version.Version()),
	}
	if instance != "" {
		attributes = append(attributes, semconv.ServiceInstanceIDKey.String(instance))
	}

	return resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithOS(),
		resource.WithContainer(),
		resource.WithHost(),
		resource.WithAttributes(attributes...),
	)
}

func newLoggerProvider(ctx context.Context, res *resource.Resource) (*logsSdk.LoggerProvider, error) {
	exporter, err := otlplogs.NewExporter(ctx)
	if err != nil {
		return nil, err
	}

	loggerProvider := logsSdk.NewLoggerProvider(
		logsSdk.WithBatcher(exporter),
		logsSdk.WithResource(res),
	)

	return loggerProvider, nil
}

func newTraceProvider(ctx context.Context, res *resource.Resource) (*trace.TracerProvider, error) {
	traceExporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	traceProvider := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(traceExporter),
	)

	return traceProvider, nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource) (*metric.MeterProvider, error) {
	metricExporter, err := otlpmetrichttp.New(ctx)
	if err != nil {
		return nil, err
	}

	meterProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
	)

	return meterProvider, nil
}
