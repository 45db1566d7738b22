package telemetry

import (
	"context"
	"errors"
	"net/http"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const serviceNamespace = "storefront"

func newResource(serviceName, serviceVersion string) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
		semconv.ServiceNamespace(serviceNamespace),
	)
}

func InitTracerProvider(ctx context.Context, serviceName, serviceVersion string) (func(context.Context) error, error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(newResource(serviceName, serviceVersion)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// Providers bundles what a binary needs from telemetry: the /metrics handler
// and a shutdown hook flushing both providers.
type Providers struct {
	MetricsHandler http.Handler
	shutdown       []func(context.Context) error
}

func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

// Setup installs the global tracer and meter providers and starts Go runtime metrics.
func Setup(ctx context.Context, serviceName, serviceVersion string) (*Providers, error) {
	shutdownTracer, err := InitTracerProvider(ctx, serviceName, serviceVersion)
	if err != nil {
		return nil, err
	}

	metricsHandler, shutdownMeter, err := InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		_ = shutdownTracer(ctx)
		return nil, err
	}

	if err := StartRuntimeMetrics(); err != nil {
		_ = shutdownMeter(ctx)
		_ = shutdownTracer(ctx)
		return nil, err
	}

	return &Providers{
		MetricsHandler: metricsHandler,
		shutdown:       []func(context.Context) error{shutdownMeter, shutdownTracer},
	}, nil
}

// WithHTTPRoute wraps an http.HandlerFunc to add the http.route attribute
// to the current span using the request's Pattern.
func WithHTTPRoute(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Pattern != "" {
			span := oteltrace.SpanFromContext(r.Context())
			span.SetAttributes(semconv.HTTPRoute(r.Pattern))
		}
		h(w, r)
	}
}

// SpanName names server spans after the matched route pattern.
func SpanName(_ string, r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.Method + " " + r.URL.Path
}
