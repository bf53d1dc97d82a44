// Package telemetry exports search progress as Prometheus metrics and sets up
// OpenTelemetry tracing for the service and the CLI.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"rearrange/search"
)

var (
	// stepsTotal counts successor moves taken by problem
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rearrange_search_steps_total",
		Help: "Total local search moves by problem",
	}, []string{"problem"})

	restartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rearrange_search_restarts_total",
		Help: "Total random restarts by problem",
	}, []string{"problem"})

	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rearrange_searches_total",
		Help: "Total finished searches by problem and stop reason",
	}, []string{"problem", "reason"})

	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rearrange_search_duration_seconds",
		Help:    "Search duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4.4min
	}, []string{"problem"})

	// bestValue holds the leading element of the last accepted value
	bestValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rearrange_search_value",
		Help: "Leading element of the current value by problem",
	}, []string{"problem"})
)

// Observer records search progress into the package collectors. The zero
// value is ready to use and safe for concurrent searches.
type Observer struct{}

var _ search.Observer = Observer{}

func (Observer) Step(name string, v search.Tuple) {
	stepsTotal.WithLabelValues(name).Inc()
	if len(v) > 0 {
		bestValue.WithLabelValues(name).Set(v[0])
	}
}

func (Observer) Restart(name string) {
	restartsTotal.WithLabelValues(name).Inc()
}

func (Observer) Done(name string, s search.Summary) {
	searchesTotal.WithLabelValues(name, s.Reason.String()).Inc()
	searchDuration.WithLabelValues(name).Observe(s.Elapsed.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	// Writer receives pretty-printed spans. Nil disables tracing.
	Writer io.Writer
}

// InitTracing installs a global TracerProvider exporting to cfg.Writer. The
// returned shutdown flushes pending spans and must be called on exit. With
// no writer, the global no-op provider stays in place.
func InitTracing(ctx context.Context, cfg TracingConfig) (shutdown func(context.Context) error, err error) {
	if cfg.Writer == nil {
		return func(context.Context) error { return nil }, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
