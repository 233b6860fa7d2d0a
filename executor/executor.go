// Package executor implements the Agent Executor (§4.8): the single
// a2asrv.AgentExecutor entrypoint that ensures a Context exists, extracts
// message parts, delegates to the Message Handler, and pumps the task's
// Event Bus onto the A2A event queue via the toA2A translation boundary.
//
// Grounded directly on hector's v2/server.Executor: the same
// Execute(ctx, reqCtx, queue)/Cancel(ctx, reqCtx, queue) shape, the same
// "emit TaskStateSubmitted via a2a.NewStatusUpdateEvent(reqCtx, ...) before
// any other event" ordering, and the same compile-time
// `var _ a2asrv.AgentExecutor` assertion.
package executor

import (
	"context"
	"fmt"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/agentcore/agentcore/eventbus"
	"github.com/agentcore/agentcore/internal/obs"
	"github.com/agentcore/agentcore/msghandler"
	"github.com/agentcore/agentcore/session"
	"github.com/agentcore/agentcore/workflowhandler"
)

// Executor implements a2asrv.AgentExecutor, bridging this core's internal
// Event Bus protocol to the A2A wire protocol.
type Executor struct {
	buses     *eventbus.Manager
	sessions  *session.Manager
	messages  *msghandler.Handler
	workflows *workflowhandler.Handler
}

func New(buses *eventbus.Manager, sessions *session.Manager, messages *msghandler.Handler, workflows *workflowhandler.Handler) *Executor {
	return &Executor{buses: buses, sessions: sessions, messages: messages, workflows: workflows}
}

var _ a2asrv.AgentExecutor = (*Executor)(nil)

// Execute implements a2asrv.AgentExecutor: ensure a Context exists for
// reqCtx's contextId, extract the inbound message's parts, delegate
// classification/routing to the Message Handler, and stream every event the
// task's Event Bus produces onto queue until the bus finishes.
func (e *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	msg := reqCtx.Message
	if msg == nil {
		return fmt.Errorf("agentcore executor: message not provided")
	}

	taskID := string(msg.TaskID)
	contextID := msg.ContextID
	e.sessions.GetOrCreate(contextID)

	bus := e.buses.GetOrCreate(taskID)
	sub, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	defer e.buses.Release(taskID)

	if reqCtx.StoredTask == nil {
		event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateSubmitted, nil)
		if err := queue.Write(ctx, event); err != nil {
			return err
		}
	}

	parts := fromA2AParts(msg.Parts)
	go func() {
		if err := e.messages.Handle(ctx, taskID, contextID, parts, bus); err != nil {
			tracer := obs.GetTracer("agentcore.executor")
			_, span := tracer.Start(ctx, "executor.handle_error")
			span.RecordError(err)
			span.End()
		}
	}()

	return e.pump(ctx, taskID, contextID, sub, queue)
}

// Cancel implements a2asrv.AgentExecutor: delegate to the Workflow Handler
// (which also aborts a plain AI-turn task through the shared cancels
// registry) and emit the canceled terminal event.
func (e *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	if msg := reqCtx.Message; msg != nil {
		e.workflows.CancelTask(string(msg.TaskID))
	}
	event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCanceled, nil)
	event.Final = true
	return queue.Write(ctx, event)
}

// pump forwards every event on sub to queue, translated via toA2A, until it
// observes the eventbus.Finished sentinel or sub is closed.
func (e *Executor) pump(ctx context.Context, taskID, contextID string, sub <-chan eventbus.Event, queue eventqueue.Queue) error {
	for ev := range sub {
		if ev == eventbus.Finished {
			return nil
		}
		a2aEvent, ok := toA2A(taskID, contextID, ev)
		if !ok {
			continue
		}
		if err := queue.Write(ctx, a2aEvent); err != nil {
			return err
		}
	}
	return nil
}
