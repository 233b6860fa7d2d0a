package toolregistry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentcore/agentcore/agenterr"
	"github.com/agentcore/agentcore/internal/obs"
)

// Registry aggregates workflow-dispatch tools and external ToolSource tools
// into one name-keyed set (§4.3), grounded on hector's
// pkg/tools/registry.go ToolRegistry: RegisterSource/DiscoverAllTools'
// duplicate-detection-via-slog.Warn posture, generalized here into a hard
// configuration error at Validate time rather than a silent skip, because
// §4.3 calls a duplicate tool name "a configuration error detected at
// startup" rather than a runtime warning.
type Registry struct {
	mu      sync.RWMutex
	plugins []WorkflowPlugin
	sources []ToolSource
	static  map[string]Tool // discovered once per source at RegisterSource time

	tracer  trace.Tracer
	metrics *obs.Metrics
}

func New() *Registry {
	return &Registry{
		static:  make(map[string]Tool),
		tracer:  obs.GetTracer("agentcore.toolregistry"),
		metrics: obs.GetGlobalMetrics(),
	}
}

// RegisterWorkflowPlugins supplies the set of plugins the registry exposes
// dispatch_workflow_<id> tools for. Called once at wiring time with the
// Workflow Runtime's current plugin list.
func (r *Registry) RegisterWorkflowPlugins(plugins []WorkflowPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = append([]WorkflowPlugin(nil), plugins...)
}

// RegisterSource discovers source's tools immediately and caches them;
// §4.3's external tools are a fixed set per process, not re-polled per
// request.
func (r *Registry) RegisterSource(ctx context.Context, source ToolSource) error {
	tools, err := source.Tools(ctx)
	if err != nil {
		return agenterr.InvalidRequest("ToolRegistry", "RegisterSource",
			fmt.Sprintf("failed to discover tools from source %q", source.Name()), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
	for _, t := range tools {
		if !ValidName(t.Name) {
			return agenterr.InvalidRequest("ToolRegistry", "RegisterSource",
				fmt.Sprintf("tool %q from source %q does not match the server__tool naming contract", t.Name, source.Name()), nil)
		}
		if _, exists := r.static[t.Name]; exists {
			return agenterr.InvalidRequest("ToolRegistry", "RegisterSource",
				fmt.Sprintf("tool name %q is already registered (duplicate across sources)", t.Name), nil)
		}
		r.static[t.Name] = t
	}
	return nil
}

// Validate re-checks the full aggregate set (static sources plus the
// dispatch_workflow_ names implied by the registered plugins) for name
// collisions, so a plugin id that happens to collide with an external tool
// name is caught at startup rather than silently shadowing one of them.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]string, len(r.static)+len(r.plugins))
	for name := range r.static {
		seen[name] = "external tool source"
	}
	for _, p := range r.plugins {
		name := DispatchPrefix + Canonicalize(p.ID())
		if owner, exists := seen[name]; exists {
			return agenterr.InvalidRequest("ToolRegistry", "Validate",
				fmt.Sprintf("tool name %q collides with %s", name, owner), nil)
		}
		seen[name] = fmt.Sprintf("workflow plugin %q", p.ID())
	}
	return nil
}

// Snapshot builds the read-only tool set for one request (§4.3 "a read-only
// Map<name, Tool> snapshot per request"), binding the dispatch tools'
// Execute closures to this request's contextID and dispatcher.
func (r *Registry) Snapshot(contextID string, dispatcher WorkflowDispatcher) map[string]Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Tool, len(r.static)+len(r.plugins))
	for name, t := range r.static {
		out[name] = t
	}
	for _, p := range r.plugins {
		name := DispatchPrefix + Canonicalize(p.ID())
		out[name] = r.dispatchTool(name, p, contextID, dispatcher)
	}
	return out
}

func (r *Registry) dispatchTool(name string, p WorkflowPlugin, contextID string, dispatcher WorkflowDispatcher) Tool {
	pluginID := p.ID()
	return Tool{
		Name:        name,
		Description: p.Description(),
		InputSchema: p.InputSchema(),
		Execute: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			dw, err := dispatcher.DispatchWorkflow(ctx, pluginID, args, contextID)
			if err != nil {
				return ToolResult{}, err
			}
			return ToolResult{Value: dw, DispatchedWorkflow: &dw}, nil
		},
	}
}

// ExecuteTool looks up and runs a single tool by name, wrapping the call in
// a trace span and recording metrics, mirroring hector's
// pkg/tools/registry.go ExecuteTool instrumentation.
func (r *Registry) ExecuteTool(ctx context.Context, snapshot map[string]Tool, name string, args map[string]any) (ToolResult, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, obs.SpanToolExecution,
		trace.WithAttributes(attribute.String(obs.AttrToolName, name)))
	defer span.End()

	t, ok := snapshot[name]
	if !ok {
		err := agenterr.InvalidRequest("ToolRegistry", "ExecuteTool", fmt.Sprintf("no such tool %q", name), nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool not found")
		r.metrics.RecordToolCall(name, "not_found", time.Since(start))
		r.metrics.RecordToolError(name, "not_found")
		return ToolResult{}, err
	}
	if t.Execute == nil {
		err := agenterr.InvalidRequest("ToolRegistry", "ExecuteTool", fmt.Sprintf("tool %q has no executor", name), nil)
		span.SetStatus(codes.Error, "not executable")
		r.metrics.RecordToolCall(name, "not_executable", time.Since(start))
		r.metrics.RecordToolError(name, "not_executable")
		return ToolResult{}, err
	}

	result, err := t.Execute(ctx, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.RecordToolCall(name, "error", time.Since(start))
		r.metrics.RecordToolError(name, "execution_error")
	} else {
		span.SetStatus(codes.Ok, "")
		r.metrics.RecordToolCall(name, "success", time.Since(start))
	}
	return result, err
}

// List returns the names currently exposed for contextID, sorted, for
// diagnostics.
func (r *Registry) List(contextID string, dispatcher WorkflowDispatcher) []string {
	snap := r.Snapshot(contextID, dispatcher)
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
