package msghandler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/aihandler"
	"github.com/agentcore/agentcore/eventbus"
	"github.com/agentcore/agentcore/internal/registry"
	"github.com/agentcore/agentcore/runtime"
	"github.com/agentcore/agentcore/session"
	"github.com/agentcore/agentcore/streamproc"
	"github.com/agentcore/agentcore/task"
	"github.com/agentcore/agentcore/taskstate"
	"github.com/agentcore/agentcore/toolregistry"
	"github.com/agentcore/agentcore/workflowhandler"
)

type fakeTaskStater struct {
	state map[string]taskstate.State
}

func (f *fakeTaskStater) GetTaskState(taskID string) (taskstate.State, bool) {
	s, ok := f.state[taskID]
	return s, ok
}

type stubLLM struct{}

func (stubLLM) Stream(ctx context.Context, req aihandler.Request) streamproc.TokenStream {
	return func(yield func(streamproc.Chunk, error) bool) {
		yield(streamproc.Chunk{Kind: streamproc.ChunkTextDelta, Text: "fresh turn"}, nil)
		yield(streamproc.Chunk{Kind: streamproc.ChunkTextEnd}, nil)
	}
}

func drainAll(t *testing.T, ch <-chan eventbus.Event, timeout time.Duration) []eventbus.Event {
	t.Helper()
	var out []eventbus.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			if ev == eventbus.Finished {
				return out
			}
			out = append(out, ev)
		case <-time.After(timeout):
			return out
		}
	}
}

func newHandlerDeps(t *testing.T) (*Handler, *fakeTaskStater, *workflowhandler.Handler, *runtime.Runtime) {
	t.Helper()
	tasks := task.New()
	buses := eventbus.NewManager(16)
	rt := runtime.New(tasks, runtime.WithDispatchResponseTimeout(100*time.Millisecond))
	cancels := registry.NewBaseRegistry[context.CancelFunc]()
	workflows := workflowhandler.New(rt, buses, cancels)

	sessions := session.NewManager(time.Hour)
	tools := toolregistry.New()
	ai, err := aihandler.New(stubLLM{}, sessions, tools, workflows, cancels, aihandler.Config{})
	require.NoError(t, err)

	stater := &fakeTaskStater{state: map[string]taskstate.State{}}
	return New(stater, workflows, ai), stater, workflows, rt
}

func TestHandleUnknownTaskFallsThroughToFreshTurn(t *testing.T) {
	h, _, _, _ := newHandlerDeps(t)
	bus := eventbus.NewBus(16)
	ch, unsub := bus.Subscribe()
	defer unsub()

	err := h.Handle(context.Background(), "task1", "ctx1", []eventbus.Part{eventbus.TextPart("hi")}, bus)
	require.NoError(t, err)

	events := drainAll(t, ch, time.Second)
	require.NotEmpty(t, events)
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Kind())
	}
	assert.Contains(t, kinds, "task")
}

func TestHandleRejectsMessageToTerminalTask(t *testing.T) {
	h, stater, _, _ := newHandlerDeps(t)
	stater.state["task1"] = taskstate.Completed
	bus := eventbus.NewBus(16)
	ch, unsub := bus.Subscribe()
	defer unsub()

	err := h.Handle(context.Background(), "task1", "ctx1", []eventbus.Part{eventbus.TextPart("hi")}, bus)
	require.Error(t, err)

	events := drainAll(t, ch, time.Second)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	su, ok := last.(eventbus.StatusUpdateEvent)
	require.True(t, ok)
	assert.True(t, su.Final)
	assert.Equal(t, "completed", su.Status.State)
	assert.True(t, bus.IsFinished())
}

func TestHandleRoutesPausedTaskToResume(t *testing.T) {
	h, stater, workflows, rt := newHandlerDeps(t)

	var resumedInput any
	require.NoError(t, rt.Register(&scriptedPausePlugin{
		id: "pausing",
		run: func(ctx context.Context, ec runtime.ExecutionContext, yield func(runtime.Yield), resume func() any) (any, error) {
			yield(runtime.InterruptedYield{Reason: runtime.PauseInputRequired})
			resumedInput = resume()
			return resumedInput, nil
		},
	}))

	dw, err := workflows.DispatchWorkflow(context.Background(), "pausing", nil, "ctx1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, ok := rt.GetTaskState(dw.TaskID)
		return ok && state == taskstate.InputRequired
	}, time.Second, 5*time.Millisecond)

	stater.state[dw.TaskID] = taskstate.InputRequired
	bus := eventbus.NewBus(16)

	err = h.Handle(context.Background(), dw.TaskID, "ctx1", []eventbus.Part{eventbus.DataPart(map[string]any{"answer": "42"}, "")}, bus)
	assert.NoError(t, err)

	require.Eventually(t, func() bool {
		return resumedInput != nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]any{"answer": "42"}, resumedInput)
}

func TestHandleWorkingHeuristicFallsBackToFreshTurnOnFailedResume(t *testing.T) {
	h, stater, _, _ := newHandlerDeps(t)
	stater.state["task1"] = taskstate.Working
	bus := eventbus.NewBus(16)
	ch, unsub := bus.Subscribe()
	defer unsub()

	// No live execution for task1, so the attempted resume fails and Handle
	// falls through to a fresh AI turn rather than propagating an error.
	err := h.Handle(context.Background(), "task1", "ctx1", []eventbus.Part{eventbus.DataPart(map[string]any{"x": 1}, "")}, bus)
	require.NoError(t, err)

	events := drainAll(t, ch, time.Second)
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Kind())
	}
	assert.Contains(t, kinds, "task")
}

func TestExtractPartsPrefersTextAndDataWithLegacyFallback(t *testing.T) {
	text, data := ExtractParts([]eventbus.Part{
		eventbus.TextPart("hello"),
		eventbus.DataPart(map[string]any{"k": "v"}, ""),
	})
	assert.Equal(t, "hello", text)
	assert.Equal(t, map[string]any{"k": "v"}, data)

	text, data = ExtractParts([]eventbus.Part{
		eventbus.DataPart(map[string]any{"content": "legacy text"}, ""),
	})
	assert.Equal(t, "legacy text", text)
	assert.Equal(t, map[string]any{"content": "legacy text"}, data)
}

type scriptedPausePlugin struct {
	id string
	run func(ctx context.Context, ec runtime.ExecutionContext, yield func(runtime.Yield), resume func() any) (any, error)
}

func (p *scriptedPausePlugin) ID() string          { return p.id }
func (p *scriptedPausePlugin) Name() string        { return p.id }
func (p *scriptedPausePlugin) Version() string     { return "v1" }
func (p *scriptedPausePlugin) Description() string { return "scripted" }
func (p *scriptedPausePlugin) InputSchema() map[string]any {
	return nil
}
func (p *scriptedPausePlugin) Execute(ctx context.Context, ec runtime.ExecutionContext, yield func(runtime.Yield), resume func() any) (any, error) {
	return p.run(ctx, ec, yield, resume)
}
