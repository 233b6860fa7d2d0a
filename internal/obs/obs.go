// Package obs is the thin observability indirection this tree uses instead
// of calling go.opentelemetry.io/otel directly at every call site, the same
// posture the teacher codebase takes with its own observability package
// (GetTracer wraps otel.Tracer; pkg/observability/recorder.go's
// PrometheusMetrics wraps otel Meter instruments behind named Record
// methods). Metrics here are otel Int64Counter/Float64Histogram instruments
// backed by an otel/exporters/prometheus Reader, the missing half of the
// teacher's own recorder.go (which builds instruments but, in the retrieved
// snapshot, has no caller wiring a MeterProvider for them) — this package
// supplies that wiring once, behind GetGlobalMetrics/NewMetrics.
package obs

import (
	"context"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Span and attribute name constants, mirroring the teacher's
// observability.Span*/Attr* constants but scoped to the workflow runtime and
// tool registry rather than hector's agent/LLM/RAG surface.
const (
	SpanWorkflowDispatch = "runtime.workflow_dispatch"
	SpanWorkflowResume   = "runtime.workflow_resume"
	SpanWorkflowCancel   = "runtime.workflow_cancel"
	SpanToolExecution    = "toolregistry.tool_execution"

	AttrPluginID  = "workflow.plugin_id"
	AttrTaskID    = "task.id"
	AttrToolName  = "tool.name"
	AttrErrorType = "error.type"
)

// GetTracer returns a named tracer off the global TracerProvider, exactly
// the way observability.GetTracer does: GetTracer itself installs no
// provider, so until SetupTracing (or the embedding program) installs one
// this degenerates to otel's no-op tracer.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// SetupTracing installs a process-wide TracerProvider exporting to stdout,
// the trimmed analogue of the teacher's observability.NewTracer — this core
// ships one exporter rather than the teacher's otlp/jaeger/zipkin selection,
// since nothing in this tree's deployment surface needs a collector. Returns
// a shutdown func the caller defers; enabled=false returns a no-op shutdown
// and leaves the global no-op TracerProvider in place.
func SetupTracing(ctx context.Context, serviceName string, enabled bool) (func(context.Context) error, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// Metrics collects workflow-dispatch and tool-execution measurements, the
// runtime-scoped analogue of the teacher's much larger PrometheusMetrics
// (agent/LLM/RAG/session/HTTP surface trimmed to what this tree actually
// executes). Instruments are otel Meter API handles — recorder.go's own
// pattern — read out through an otel/exporters/prometheus Reader so a
// standard promhttp.Handler can still scrape them.
type Metrics struct {
	workflowDispatches otelmetric.Int64Counter
	workflowDuration   otelmetric.Float64Histogram
	workflowErrors     otelmetric.Int64Counter

	toolCalls        otelmetric.Int64Counter
	toolCallDuration otelmetric.Float64Histogram
	toolErrors       otelmetric.Int64Counter
}

// NewMetrics builds a Metrics instance whose instruments are read by reg
// (pass a fresh prometheus.NewRegistry() to scrape in isolation, or nil to
// register against the default global registry via
// otelprom.New's default registerer). Panics only on otel SDK
// misconfiguration, which cannot happen with the fixed options this
// function passes.
func NewMetrics(reg *promclient.Registry) *Metrics {
	var exporterOpts []otelprom.Option
	if reg != nil {
		exporterOpts = append(exporterOpts, otelprom.WithRegisterer(reg))
	}
	exporter, err := otelprom.New(exporterOpts...)
	if err != nil {
		panic(err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("agentcore.obs")

	m := &Metrics{}
	m.workflowDispatches, err = meter.Int64Counter(
		"agentcore_workflow_dispatches_total", otelmetric.WithDescription("Workflow dispatch attempts."))
	if err != nil {
		panic(err)
	}
	m.workflowDuration, err = meter.Float64Histogram(
		"agentcore_workflow_duration_seconds", otelmetric.WithDescription("Workflow execution duration."))
	if err != nil {
		panic(err)
	}
	m.workflowErrors, err = meter.Int64Counter(
		"agentcore_workflow_errors_total", otelmetric.WithDescription("Workflow execution errors."))
	if err != nil {
		panic(err)
	}
	m.toolCalls, err = meter.Int64Counter(
		"agentcore_tool_calls_total", otelmetric.WithDescription("Tool invocations."))
	if err != nil {
		panic(err)
	}
	m.toolCallDuration, err = meter.Float64Histogram(
		"agentcore_tool_call_duration_seconds", otelmetric.WithDescription("Tool call duration."))
	if err != nil {
		panic(err)
	}
	m.toolErrors, err = meter.Int64Counter(
		"agentcore_tool_errors_total", otelmetric.WithDescription("Tool call errors."))
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) RecordWorkflowDispatch(pluginID, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := otelmetric.WithAttributes(attribute.String("plugin_id", pluginID), attribute.String("outcome", outcome))
	m.workflowDispatches.Add(ctx, 1, attrs)
	m.workflowDuration.Record(ctx, d.Seconds(), otelmetric.WithAttributes(attribute.String("plugin_id", pluginID)))
}

func (m *Metrics) RecordWorkflowError(pluginID, errType string) {
	if m == nil {
		return
	}
	m.workflowErrors.Add(context.Background(), 1, otelmetric.WithAttributes(
		attribute.String("plugin_id", pluginID), attribute.String(AttrErrorType, errType)))
}

func (m *Metrics) RecordToolCall(toolName, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.toolCalls.Add(ctx, 1, otelmetric.WithAttributes(attribute.String(AttrToolName, toolName), attribute.String("outcome", outcome)))
	m.toolCallDuration.Record(ctx, d.Seconds(), otelmetric.WithAttributes(attribute.String(AttrToolName, toolName)))
}

func (m *Metrics) RecordToolError(toolName, errType string) {
	if m == nil {
		return
	}
	m.toolErrors.Add(context.Background(), 1, otelmetric.WithAttributes(
		attribute.String(AttrToolName, toolName), attribute.String(AttrErrorType, errType)))
}

var (
	globalOnce    sync.Once
	globalMetrics *Metrics
)

// GetGlobalMetrics returns a process-wide Metrics instance registered
// against the default Prometheus registry, created lazily on first use —
// mirroring observability.GetGlobalMetrics()'s singleton posture.
func GetGlobalMetrics() *Metrics {
	globalOnce.Do(func() {
		globalMetrics = NewMetrics(nil)
	})
	return globalMetrics
}
