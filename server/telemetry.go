package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	sloglogrus "github.com/samber/slog-logrus/v2"
	slogmulti "github.com/samber/slog-multi"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	logglobal "go.opentelemetry.io/otel/log/global"
	logsdk "go.opentelemetry.io/otel/sdk/log"
	meticsdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

const serviceName = "autobuild"

func setEnvIfNotSet(key, value string) {
	if _, ok := os.LookupEnv(key); !ok {
		os.Setenv(key, value)
	}
}

type telemetry struct {
	metricProvider *meticsdk.MeterProvider
	traceProvider  *tracesdk.TracerProvider
	logsProvider   *logsdk.LoggerProvider
}

// setupTelemetry always serves prometheus on /metrics. OTLP export is
// configured with the standard OTEL_*_EXPORTER variables.
func setupTelemetry(ctx context.Context) (*telemetry, error) {
	// otlp to localhost is the otel default, a bare server exports nothing unless asked
	setEnvIfNotSet("OTEL_TRACES_EXPORTER", "none")
	setEnvIfNotSet("OTEL_LOGS_EXPORTER", "none")
	setEnvIfNotSet("OTEL_METRICS_EXPORTER", "none")

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build otel resource: %w", err)
	}

	promExporter, err := prometheus.New(prometheus.WithNamespace(serviceName))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}
	metricExporter, err := autoexport.NewMetricReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metric exporter: %w", err)
	}

	t := &telemetry{}
	t.metricProvider = meticsdk.NewMeterProvider(
		meticsdk.WithResource(res),
		meticsdk.WithReader(promExporter),
		meticsdk.WithReader(metricExporter),
	)
	otel.SetMeterProvider(t.metricProvider)

	spanExporter, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize trace exporter: %w", err)
	}
	t.traceProvider = tracesdk.NewTracerProvider(tracesdk.WithResource(res), tracesdk.WithBatcher(spanExporter))
	otel.SetTracerProvider(t.traceProvider)

	logsExporter, err := autoexport.NewLogExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize log exporter: %w", err)
	}
	t.logsProvider = logsdk.NewLoggerProvider(
		logsdk.WithResource(res),
		logsdk.WithProcessor(logsdk.NewBatchProcessor(logsExporter)),
	)
	logglobal.SetLoggerProvider(t.logsProvider)

	slog.SetDefault(slog.New(slogmulti.Fanout(
		sloglogrus.Option{Level: slog.LevelDebug, Logger: logrus.StandardLogger()}.NewLogrusHandler(),
		otelslog.NewHandler(serviceName),
	)))

	return t, nil
}

func (t *telemetry) shutdown(ctx context.Context) error {
	return errors.Join(
		t.metricProvider.Shutdown(ctx),
		t.traceProvider.Shutdown(ctx),
		t.logsProvider.Shutdown(ctx),
	)
}
