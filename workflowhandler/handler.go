// Package workflowhandler implements the Workflow Handler (§4.5): the thin
// layer between the Workflow Runtime and its two callers (a dispatching LLM
// tool call, and an inbound resume/cancel message), responsible for wiring
// each dispatched execution to its own child Event Bus.
package workflowhandler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/agentcore/agentcore/agenterr"
	"github.com/agentcore/agentcore/eventbus"
	"github.com/agentcore/agentcore/internal/obs"
	"github.com/agentcore/agentcore/internal/registry"
	"github.com/agentcore/agentcore/internal/schemautil"
	"github.com/agentcore/agentcore/runtime"
	"github.com/agentcore/agentcore/toolregistry"
)

// Handler wraps a Runtime for the executor: dispatch, resume, and cancel of
// child workflow tasks, plus the background pump that routes each
// dispatched execution's yields onto its own Event Bus.
type Handler struct {
	runtime *runtime.Runtime
	buses   *eventbus.Manager
	tracer  trace.Tracer

	// cancels is shared with aihandler.Handler: it holds the
	// context.CancelFunc of any plain AI-turn task currently streaming, so
	// CancelTask can abort it even though such a task was never registered
	// with runtime.Runtime (§5/§8 scenario 6).
	cancels *registry.BaseRegistry[context.CancelFunc]
}

func New(rt *runtime.Runtime, buses *eventbus.Manager, cancels *registry.BaseRegistry[context.CancelFunc]) *Handler {
	return &Handler{
		runtime: rt,
		buses:   buses,
		cancels: cancels,
		tracer:  obs.GetTracer("agentcore.workflowhandler"),
	}
}

// DispatchWorkflow implements toolregistry.WorkflowDispatcher: it dispatches
// pluginID under the parent's contextId (§4.5 "Tasks created here reuse the
// parent contextId"), wires a background pump to the new task's own Event
// Bus, and returns the dispatch-response contract's first-yield result to
// the calling tool execution.
func (h *Handler) DispatchWorkflow(ctx context.Context, pluginID string, args map[string]any, contextID string) (toolregistry.DispatchedWorkflow, error) {
	ctx, span := h.tracer.Start(ctx, obs.SpanWorkflowDispatch,
		trace.WithAttributes(attribute.String(obs.AttrPluginID, pluginID)))
	defer span.End()

	exec, err := h.runtime.Dispatch(ctx, pluginID, runtime.ExecutionContext{
		ContextID:  contextID,
		Parameters: args,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return toolregistry.DispatchedWorkflow{}, err
	}
	span.SetAttributes(attribute.String(obs.AttrTaskID, exec.TaskID))

	bus := h.buses.GetOrCreate(exec.TaskID)
	bus.Publish(eventbus.TaskEvent{
		ID:        exec.TaskID,
		ContextID: contextID,
		Status:    eventbus.Status{State: "submitted", Timestamp: time.Now()},
	})

	h.pump(exec, bus, contextID)

	y, ended, firstErr := h.runtime.FirstYield(ctx, exec)
	dw := toolregistry.DispatchedWorkflow{TaskID: exec.TaskID, Metadata: map[string]any{"pluginId": pluginID}}
	if firstErr != nil {
		return dw, firstErr
	}
	if ended {
		return dw, nil
	}
	if drY, ok := y.(runtime.DispatchResponseYield); ok {
		dw.Parts = convertParts(drY.Parts)
	}
	return dw, nil
}

// pump supervises the single goroutine that forwards exec's EventOut stream
// onto bus, converted to eventbus.Event values, until the execution reaches
// a terminal state. An errgroup.Group supervises it (rather than a bare `go
// func()`) so a panic in the translation loop is recovered into a
// agenterr.Workflow error instead of crashing the process, and the bus is
// guaranteed to be finished and released exactly once regardless of outcome.
func (h *Handler) pump(exec *runtime.Execution, bus *eventbus.Bus, contextID string) {
	var eg errgroup.Group
	eg.Go(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = agenterr.Workflow("WorkflowHandler.pump", exec.PluginID, fmt.Sprintf("pump panicked: %v", rec), nil)
			}
		}()
		for ev := range exec.Events() {
			bus.Publish(translate(exec.TaskID, contextID, ev))
		}
		return nil
	})

	go func() {
		if err := eg.Wait(); err != nil {
			bus.Publish(eventbus.StatusUpdateEvent{
				TaskID: exec.TaskID, ContextID: contextID,
				Status: eventbus.Status{State: "failed", Message: &eventbus.Message{
					Role: "agent", Parts: []eventbus.Part{eventbus.TextPart(err.Error())},
				}},
				Final: true,
			})
		}
		h.buses.Release(exec.TaskID)
	}()
}

func translate(taskID, contextID string, ev runtime.EventOut) eventbus.Event {
	switch ev.Kind {
	case "status-update":
		return eventbus.StatusUpdateEvent{
			TaskID: taskID, ContextID: contextID,
			Status: eventbus.Status{State: "working", Message: &eventbus.Message{
				Role: "agent", Parts: []eventbus.Part{eventbus.TextPart(ev.StatusMessage)},
			}},
		}
	case "artifact", "dispatch-response":
		return eventbus.ArtifactUpdateEvent{
			TaskID: taskID, ContextID: contextID,
			Artifact: eventbus.Artifact{
				ArtifactID:  ev.Artifact.ArtifactID,
				Name:        ev.Artifact.Name,
				Description: ev.Artifact.Description,
				Parts:       convertParts(ev.Artifact.Parts),
				Metadata:    ev.Artifact.Metadata,
			},
			Append:    ev.Artifact.Append,
			LastChunk: ev.Artifact.LastChunk,
		}
	case "paused":
		msg := &eventbus.Message{Role: "agent", Parts: []eventbus.Part{eventbus.TextPart(ev.PausePrompt)}}
		state := "input-required"
		if ev.PauseReason == runtime.PauseAuthRequired {
			state = "auth-required"
		}
		return eventbus.StatusUpdateEvent{
			TaskID: taskID, ContextID: contextID,
			Status: eventbus.Status{State: state, Message: msg},
		}
	case "rejected", "failed":
		msg := "workflow failed"
		if ev.Err != nil {
			msg = ev.Err.Message
		}
		return eventbus.StatusUpdateEvent{
			TaskID: taskID, ContextID: contextID,
			Status: eventbus.Status{State: ev.Kind, Message: &eventbus.Message{
				Role: "agent", Parts: []eventbus.Part{eventbus.TextPart(msg)},
			}},
			Final: true,
		}
	case "completed":
		return eventbus.StatusUpdateEvent{
			TaskID: taskID, ContextID: contextID,
			Status: eventbus.Status{State: "completed"},
			Final:  true,
		}
	default:
		return eventbus.StatusUpdateEvent{
			TaskID: taskID, ContextID: contextID,
			Status: eventbus.Status{State: "working", Message: &eventbus.Message{
				Role: "agent", Parts: []eventbus.Part{eventbus.TextPart(fmt.Sprintf("unrecognized runtime event %q", ev.Kind))},
			}},
		}
	}
}

func convertParts(parts []runtime.ArtifactPart) []eventbus.Part {
	out := make([]eventbus.Part, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case "data":
			out = append(out, eventbus.DataPart(p.Data, p.MimeType))
		case "binary":
			out = append(out, eventbus.DataPart(p.Binary, p.MimeType))
		default:
			out = append(out, eventbus.TextPart(p.Text))
		}
	}
	return out
}

// ResumeWorkflow builds the resume input value (data part preferred, else
// text, per §4.5), delivers it to the paused execution, and on validation
// failure publishes a status-update re-surfacing the pause's input schema
// while leaving the task paused — it does not fall back to a fresh AI turn
// itself; that decision belongs to the Message Handler (§4.7 step 3).
func (h *Handler) ResumeWorkflow(ctx context.Context, taskID, contextID, textContent string, data map[string]any) error {
	_, span := h.tracer.Start(ctx, obs.SpanWorkflowResume, trace.WithAttributes(attribute.String(obs.AttrTaskID, taskID)))
	defer span.End()

	var input map[string]any
	if data != nil {
		input = data
	} else {
		input = map[string]any{"text": textContent}
	}

	ok, errs, err := h.runtime.ResumeWorkflow(taskID, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if ok {
		span.SetStatus(codes.Ok, "resumed")
		return nil
	}

	pause := h.runtime.GetPauseInfo(taskID)
	var schemaNote string
	if pause != nil && pause.InputSchema != nil {
		schemaNote = " (expected input matching the task's schema)"
	}
	bus := h.buses.Lookup(taskID)
	if bus != nil {
		parts := []eventbus.Part{eventbus.TextPart("resume input was invalid: " + joinValidationErrors(errs) + schemaNote)}
		if pause != nil && pause.InputSchema != nil {
			parts = append(parts, eventbus.DataPart(pause.InputSchema, "application/schema+json"))
		}
		bus.Publish(eventbus.StatusUpdateEvent{
			TaskID: taskID, ContextID: contextID,
			Status: eventbus.Status{State: "input-required", Message: &eventbus.Message{
				Role:  "agent",
				Parts: parts,
			}},
		})
	}
	return agenterr.SchemaValidation("WorkflowHandler.ResumeWorkflow", taskID, "resume input failed validation", nil)
}

func joinValidationErrors(errs []schemautil.ValidationError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Path + ": " + e.Message
	}
	return strings.Join(parts, "; ")
}

// CancelTask cancels the live execution (if any), then publishes a final
// canceled status-update on the task's Event Bus (when one exists) and
// finishes that bus. A plain AI-turn task has no
// runtime.Execution, so its stream is instead aborted through the shared
// cancels registry, which aihandler.Handler.NewTurn populates for the
// duration of the stream.
func (h *Handler) CancelTask(taskID string) bool {
	ok := h.runtime.CancelExecution(taskID)
	if h.cancels != nil {
		if cancel, found := h.cancels.Get(taskID); found {
			cancel()
			ok = true
		}
	}
	if bus := h.buses.Lookup(taskID); bus != nil {
		bus.Publish(eventbus.StatusUpdateEvent{
			TaskID: taskID,
			Status: eventbus.Status{State: "canceled"},
			Final:  true,
		})
		bus.Finish()
	}
	return ok
}
