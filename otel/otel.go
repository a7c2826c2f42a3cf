// Package otel provides the [OpenTelemetry] tracing pipeline of
// scriptroute. The spans of the requests are created by the server
// package, through the global tracer provider set by Init.
//
// [OpenTelemetry]: https://opentelemetry.io/
package otel

import (
	"context"
	"os"
	"sync"

	"github.com/bombsimon/logrusr/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// DebugExporter is the value of OTEL_TRACES_EXPORTER that writes the
// spans to the debug log.
const DebugExporter = "scriptroute-debug"

var log = logrus.WithField("package", "otel")

// logged at startup, OTEL_EXPORTER_OTLP_HEADERS may contain secrets
var envVars = []string{
	"OTEL_TRACES_EXPORTER",
	"OTEL_EXPORTER_OTLP_PROTOCOL",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_RESOURCE_ATTRIBUTES",
	"OTEL_PROPAGATORS",
	"OTEL_BSP_MAX_QUEUE_SIZE",
	"OTEL_BSP_MAX_EXPORT_BATCH_SIZE",
	"OTEL_BSP_SCHEDULE_DELAY",
	"OTEL_BSP_EXPORT_TIMEOUT",
}

// Options of the OpenTelemetry pipeline.
type Options struct {

	// When set, the pipeline was initialized by the embedding
	// application, and Init does nothing.
	Initialized bool `yaml:"initialized"`

	// Sets the service.name resource attribute, unless
	// OTEL_RESOURCE_ATTRIBUTES sets it.
	ServiceName string `yaml:"service-name"`
}

type writerFunc func([]byte) (int, error)

func (wf writerFunc) Write(p []byte) (int, error) { return wf(p) }

// registering an exporter name twice panics
var registerDebugExporter sync.Once

// like the console exporter, but writes to the debug log
func newDebugExporter(context.Context) (trace.SpanExporter, error) {
	return stdouttrace.New(stdouttrace.WithWriter(writerFunc(func(p []byte) (int, error) {
		log.Debugf("span: %s", p)
		return len(p), nil
	})))
}

func newResource(o *Options) (*resource.Resource, error) {
	env := resource.Environment()
	if o.ServiceName == "" {
		return env, nil
	}

	return resource.Merge(
		resource.NewSchemaless(attribute.String("service.name", o.ServiceName)),
		env,
	)
}

// Init sets the global tracer provider and text map propagator, based on
// the OTEL_* environment variables, see [autoexport] and [autoprop]. When
// err is nil, shutdown needs to be called to flush the pending spans. The
// spans are exported in batches.
//
// [autoexport]: https://pkg.go.dev/go.opentelemetry.io/contrib/exporters/autoexport
// [autoprop]: https://pkg.go.dev/go.opentelemetry.io/contrib/propagators/autoprop
func Init(ctx context.Context, o *Options) (shutdown func(context.Context) error, err error) {
	if o.Initialized {
		log.Debug("OpenTelemetry pipeline initialized externally")
		return func(context.Context) error { return nil }, nil
	}

	for _, name := range envVars {
		log.Debugf("%s: %s", name, os.Getenv(name))
	}

	registerDebugExporter.Do(func() {
		autoexport.RegisterSpanExporter(DebugExporter, newDebugExporter)
	})

	exporter, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return nil, err
	}

	res, err := newResource(o)
	if err != nil {
		return nil, err
	}

	provider := trace.NewTracerProvider(trace.WithBatcher(exporter), trace.WithResource(res))

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(autoprop.NewTextMapPropagator())
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) { log.Error(err) }))
	otel.SetLogger(logrusr.New(log))
	return provider.Shutdown, nil
}
