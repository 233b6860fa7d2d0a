package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentcore/agentcore/agenterr"
	"github.com/agentcore/agentcore/internal/obs"
	"github.com/agentcore/agentcore/internal/registry"
	"github.com/agentcore/agentcore/internal/schemautil"
	"github.com/agentcore/agentcore/task"
	"github.com/agentcore/agentcore/taskstate"
)

// DefaultDispatchResponseTimeout is the bound on how long Dispatch drives a
// plugin's generator before returning control to a dispatching tool call
// (§4.2 "Dispatch response contract").
const DefaultDispatchResponseTimeout = 500 * time.Millisecond

// Runtime is the Workflow Runtime (§4.2): a plugin registry plus
// dispatch/resume/cancel of the stateful generator each dispatch spawns.
type Runtime struct {
	plugins *registry.BaseRegistry[Plugin]
	tasks   *task.Store

	dispatchResponseTimeout time.Duration

	tracer  trace.Tracer
	metrics *obs.Metrics

	mu         sync.Mutex
	executions map[string]*Execution // taskID -> live execution
}

// Option configures a Runtime at construction.
type Option func(*Runtime)

// WithDispatchResponseTimeout overrides DefaultDispatchResponseTimeout.
func WithDispatchResponseTimeout(d time.Duration) Option {
	return func(r *Runtime) { r.dispatchResponseTimeout = d }
}

// WithMetrics attaches a metrics sink other than obs.GetGlobalMetrics().
func WithMetrics(m *obs.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// New builds a Runtime backed by the given task store.
func New(tasks *task.Store, opts ...Option) *Runtime {
	r := &Runtime{
		plugins:                 registry.NewBaseRegistry[Plugin](),
		tasks:                   tasks,
		dispatchResponseTimeout: DefaultDispatchResponseTimeout,
		tracer:                  obs.GetTracer("agentcore.runtime"),
		metrics:                 obs.GetGlobalMetrics(),
		executions:              make(map[string]*Execution),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a plugin to the registry. Re-registering the same ID with a
// different Version is rejected, since in-flight executions may be relying
// on the previously registered behavior; re-registering an identical
// version is a no-op.
func (r *Runtime) Register(p Plugin) error {
	if existing, ok := r.plugins.Get(p.ID()); ok {
		if existing.Version() != p.Version() {
			return agenterr.Workflow("Runtime.Register", p.ID(),
				fmt.Sprintf("plugin %q already registered at version %s, cannot re-register at %s",
					p.ID(), existing.Version(), p.Version()), nil)
		}
		return nil
	}
	return r.plugins.Register(p.ID(), p)
}

// Plugins lists the registered plugins.
func (r *Runtime) Plugins() []Plugin { return r.plugins.List() }

// Lookup returns a registered plugin by ID.
func (r *Runtime) Lookup(pluginID string) (Plugin, bool) {
	p, ok := r.plugins.Get(pluginID)
	if !ok {
		return nil, false
	}
	return p, true
}

// Dispatch validates parameters against the plugin's input schema, creates
// a new task record (under ec.TaskID, or a generated id when that is
// empty), and starts the plugin's generator on its own
// goroutine together with a pump goroutine that drives it. It returns
// immediately with the live Execution handle; the generator keeps running
// concurrently with the caller.
func (r *Runtime) Dispatch(ctx context.Context, pluginID string, ec ExecutionContext) (*Execution, error) {
	plugin, ok := r.Lookup(pluginID)
	if !ok {
		return nil, agenterr.PluginNotFound("Runtime.Dispatch", pluginID, "no such workflow plugin", nil)
	}

	if errs := schemautil.Validate(plugin.InputSchema(), ec.Parameters); len(errs) > 0 {
		return nil, agenterr.SchemaValidation("Runtime.Dispatch", pluginID,
			fmt.Sprintf("parameters do not satisfy %s's input schema: %v", pluginID, errs), nil)
	}

	rec := r.tasks.Create(ec.TaskID, ec.ContextID)
	ec.TaskID = rec.ID

	runCtx, cancel := context.WithCancelCause(context.Background())

	exec := &Execution{
		TaskID:   rec.ID,
		PluginID: pluginID,
		record:   rec,
		yieldOut: make(chan Yield),
		inputIn:  make(chan any, 1),
		firstCh:  make(chan firstResult, 1),
		events:   make(chan EventOut, 8),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	r.mu.Lock()
	r.executions[rec.ID] = exec
	r.mu.Unlock()

	go r.runPlugin(runCtx, plugin, ec, exec)
	go r.pump(plugin, exec)

	return exec, nil
}

// runPlugin drives the plugin's generator to completion on its own
// goroutine, translating yield()/resume() into channel traffic the pump
// goroutine consumes (§9's goroutine-plus-channels realization of a
// bidirectional generator).
func (r *Runtime) runPlugin(ctx context.Context, plugin Plugin, ec ExecutionContext, exec *Execution) {
	yield := func(y Yield) { exec.yieldOut <- y }
	resume := func() any { return <-exec.inputIn }

	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = agenterr.Workflow("Plugin.Execute", plugin.ID(), fmt.Sprintf("plugin panicked: %v", rec), nil)
			}
		}()
		result, err = plugin.Execute(ctx, ec, yield, resume)
	}()

	// Set before closing yieldOut: the close happens-before pump's range
	// loop observes the channel closed, so pump is guaranteed to see these
	// writes once it falls out of the loop.
	exec.finalResult, exec.finalErr = result, err
	close(exec.yieldOut)
}

// pump reads every yield the generator produces, applies the matching
// taskstate transition, translates it into an EventOut for handlers
// downstream, and taps the first outcome into firstCh for dispatch-response
// callers. It exits once yieldOut is closed, at which point it finalizes
// the Execution with the generator's return value/error.
func (r *Runtime) pump(plugin Plugin, exec *Execution) {
	ctx, span := r.tracer.Start(context.Background(), obs.SpanWorkflowDispatch,
		trace.WithAttributes(
			attribute.String(obs.AttrPluginID, exec.PluginID),
			attribute.String(obs.AttrTaskID, exec.TaskID),
		))
	defer span.End()
	start := time.Now()

	first := true
	tapFirst := func(y Yield, ended bool, err error) {
		if !first {
			return
		}
		first = false
		select {
		case exec.firstCh <- firstResult{yield: y, ended: ended, err: err}:
		default:
		}
	}

	outcome := "completed"
	for y := range exec.yieldOut {
		tapFirst(y, false, nil)
		ev := r.applyYield(exec, y)
		exec.events <- ev
		if ev.Kind == "rejected" {
			outcome = "rejected"
		}
	}

	result, err := exec.finalResult, exec.finalErr
	tapFirst(nil, true, err)

	r.mu.Lock()
	delete(r.executions, exec.TaskID)
	r.mu.Unlock()

	if err != nil {
		outcome = "failed"
		taskErr := &task.TaskError{Message: err.Error(), Code: "workflow_error"}
		exec.record.SetError(taskErr)
		_ = exec.record.Transition(taskstate.Failed, time.Now())
		exec.events <- EventOut{Kind: "failed", Err: taskErr}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.RecordWorkflowError(exec.PluginID, "execution")
	} else if ctx.Err() == nil && exec.record.Status().State != taskstate.Canceled && exec.record.Status().State != taskstate.Rejected {
		exec.record.SetResult(result)
		_ = exec.record.Transition(taskstate.Completed, time.Now())
		exec.events <- EventOut{Kind: "completed", Result: result}
		span.SetStatus(codes.Ok, "completed")
	}

	close(exec.events)
	exec.finish(result, err)
	r.metrics.RecordWorkflowDispatch(exec.PluginID, outcome, time.Since(start))
}

// applyYield performs the one state transition (if any) implied by y and
// returns the translated EventOut, per §4.2's "every yield updates the task
// record before it reaches any subscriber" ordering guarantee.
func (r *Runtime) applyYield(exec *Execution, y Yield) EventOut {
	now := time.Now()

	// A task transitions to working on its first applied yield regardless
	// of that yield's tag (§4.2 Dispatch contract), so a plugin that pauses
	// immediately (InterruptedYield as its very first yield) still takes
	// the Submitted->Working edge before the tag-specific transition below
	// — Submitted->InputRequired/AuthRequired is not itself a valid edge.
	if exec.record.Status().State == taskstate.Submitted {
		_ = exec.record.Transition(taskstate.Working, now)
	}

	switch v := y.(type) {
	case StatusUpdateYield:
		return EventOut{Kind: "status-update", StatusMessage: v.Message}

	case ArtifactYield:
		ay := v
		return EventOut{Kind: "artifact", Artifact: &ay}

	case InterruptedYield:
		pr := task.PauseInputRequired
		target := taskstate.InputRequired
		if v.Reason == PauseAuthRequired {
			pr = task.PauseAuthRequired
			target = taskstate.AuthRequired
		}
		exec.record.SetPause(&task.PauseInfo{Reason: pr, InputSchema: v.InputSchema})
		_ = exec.record.Transition(target, now)
		return EventOut{Kind: "paused", PauseReason: v.Reason, PausePrompt: v.PromptText, PauseSchema: v.InputSchema}

	case RejectYield:
		_ = exec.record.Transition(taskstate.Rejected, now)
		taskErr := &task.TaskError{Message: v.Reason, Code: "rejected"}
		exec.record.SetError(taskErr)
		return EventOut{Kind: "rejected", Err: taskErr}

	case DispatchResponseYield:
		return EventOut{Kind: "dispatch-response", Artifact: &ArtifactYield{Parts: v.Parts}}

	default:
		return EventOut{Kind: "status-update", StatusMessage: fmt.Sprintf("unrecognized yield %T", y)}
	}
}

// FirstYield blocks until the plugin's first yield, its terminal return, or
// ctx/timeout elapses — whichever comes first — implementing the
// dispatch-response contract for callers that dispatched a workflow from
// within an LLM tool call.
func (r *Runtime) FirstYield(ctx context.Context, exec *Execution) (Yield, bool, error) {
	timeout := r.dispatchResponseTimeout
	if timeout <= 0 {
		timeout = DefaultDispatchResponseTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case fr := <-exec.firstCh:
		return fr.yield, fr.ended, fr.err
	case <-tctx.Done():
		return nil, false, nil
	}
}

// ResumeWorkflow validates input against the paused execution's stored
// schema and, on success, delivers it to the generator via resume().
// Validation failure leaves the task paused and returns the violations.
func (r *Runtime) ResumeWorkflow(taskID string, input map[string]any) (bool, []schemautil.ValidationError, error) {
	r.mu.Lock()
	exec, ok := r.executions[taskID]
	r.mu.Unlock()
	if !ok {
		return false, nil, agenterr.InvalidRequest("Runtime.ResumeWorkflow", taskID, "no live execution for this task", nil)
	}

	pause := exec.GetPauseInfo()
	if pause == nil {
		return false, nil, agenterr.InvalidTransition("Runtime.ResumeWorkflow", taskID, "task is not currently paused", nil)
	}

	if errs := schemautil.Validate(pause.InputSchema, input); len(errs) > 0 {
		return false, errs, nil
	}

	exec.record.ClearPause()
	if err := exec.record.Transition(taskstate.Working, time.Now()); err != nil {
		return false, nil, err
	}

	select {
	case exec.inputIn <- input:
	default:
		return false, nil, agenterr.Workflow("Runtime.ResumeWorkflow", taskID, "plugin is not awaiting input", nil)
	}
	return true, nil, nil
}

// CancelExecution cooperatively cancels a live execution. It is a no-op
// (returns false) if the task has no live execution or is already terminal.
func (r *Runtime) CancelExecution(taskID string) bool {
	r.mu.Lock()
	exec, ok := r.executions[taskID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	_, span := r.tracer.Start(context.Background(), obs.SpanWorkflowCancel,
		trace.WithAttributes(attribute.String(obs.AttrTaskID, taskID)))
	defer span.End()

	if exec.record.Status().State.IsTerminal() {
		return false
	}

	exec.cancel(agenterr.Cancelled("Runtime.CancelExecution", taskID, "cancelled by caller", nil))
	_ = exec.record.Transition(taskstate.Canceled, time.Now())
	exec.record.ClearPause()
	span.SetStatus(codes.Ok, "cancelled")
	return true
}

// GetTaskState reports the current state of a task known to this runtime's
// task store, whether or not it still has a live execution.
func (r *Runtime) GetTaskState(taskID string) (taskstate.State, bool) {
	rec := r.tasks.Get(taskID)
	if rec == nil {
		return taskstate.Unknown, false
	}
	return rec.Status().State, true
}

// GetPauseInfo returns the stored pause info for taskID, or nil if the task
// is unknown or not currently paused. Exposed so the Workflow Handler can
// re-surface the pause's input schema on a failed resume attempt without
// reaching into the task store directly.
func (r *Runtime) GetPauseInfo(taskID string) *task.PauseInfo {
	rec := r.tasks.Get(taskID)
	if rec == nil {
		return nil
	}
	return rec.GetPause()
}
