package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/task"
	"github.com/agentcore/agentcore/taskstate"
)

// fakePlugin is a minimal runtime.Plugin whose behavior is scripted by a
// closure, so each test can script exactly the yield/resume sequence it
// needs without a real generator implementation.
type fakePlugin struct {
	id, version string
	schema      map[string]any
	run         func(ctx context.Context, ec ExecutionContext, yield func(Yield), resume func() any) (any, error)
}

func (p *fakePlugin) ID() string                    { return p.id }
func (p *fakePlugin) Name() string                  { return p.id }
func (p *fakePlugin) Version() string                { return p.version }
func (p *fakePlugin) Description() string           { return "fake plugin for tests" }
func (p *fakePlugin) InputSchema() map[string]any   { return p.schema }
func (p *fakePlugin) Execute(ctx context.Context, ec ExecutionContext, yield func(Yield), resume func() any) (any, error) {
	return p.run(ctx, ec, yield, resume)
}

func newTestRuntime() (*Runtime, *task.Store) {
	tasks := task.New()
	return New(tasks, WithDispatchResponseTimeout(100*time.Millisecond)), tasks
}

func TestDispatchUnknownPluginFails(t *testing.T) {
	rt, _ := newTestRuntime()
	_, err := rt.Dispatch(context.Background(), "nope", ExecutionContext{})
	require.Error(t, err)
}

func TestDispatchRejectsBadParameters(t *testing.T) {
	rt, _ := newTestRuntime()
	p := &fakePlugin{
		id: "p1", version: "v1",
		schema: map[string]any{
			"type":     "object",
			"required": []any{"query"},
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
		},
		run: func(ctx context.Context, ec ExecutionContext, yield func(Yield), resume func() any) (any, error) {
			return "done", nil
		},
	}
	require.NoError(t, rt.Register(p))

	_, err := rt.Dispatch(context.Background(), "p1", ExecutionContext{Parameters: map[string]any{}})
	require.Error(t, err)
}

func TestRegisterRejectsVersionMismatchButAllowsSameVersion(t *testing.T) {
	rt, _ := newTestRuntime()
	p1 := &fakePlugin{id: "p1", version: "v1", run: func(context.Context, ExecutionContext, func(Yield), func() any) (any, error) { return nil, nil }}
	require.NoError(t, rt.Register(p1))
	require.NoError(t, rt.Register(p1)) // same version: no-op

	p2 := &fakePlugin{id: "p1", version: "v2", run: p1.run}
	require.Error(t, rt.Register(p2))
}

func TestDispatchRunsToCompletionAndEmitsEvents(t *testing.T) {
	rt, _ := newTestRuntime()
	p := &fakePlugin{
		id: "echo", version: "v1",
		run: func(ctx context.Context, ec ExecutionContext, yield func(Yield), resume func() any) (any, error) {
			yield(StatusUpdateYield{Message: "working on it"})
			yield(ArtifactYield{Name: "result", Parts: []ArtifactPart{{Kind: "text", Text: "hi"}}})
			return "final", nil
		},
	}
	require.NoError(t, rt.Register(p))

	exec, err := rt.Dispatch(context.Background(), "echo", ExecutionContext{ContextID: "ctx1"})
	require.NoError(t, err)

	var kinds []string
	for ev := range exec.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []string{"status-update", "artifact", "completed"}, kinds)

	result, err := exec.WaitForCompletion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "final", result)

	state, ok := rt.GetTaskState(exec.TaskID)
	require.True(t, ok)
	assert.True(t, state.IsTerminal())
}

func TestDispatchResponseContractReturnsFirstYieldBeforeCompletion(t *testing.T) {
	rt, _ := newTestRuntime()
	release := make(chan struct{})
	p := &fakePlugin{
		id: "slow", version: "v1",
		run: func(ctx context.Context, ec ExecutionContext, yield func(Yield), resume func() any) (any, error) {
			yield(DispatchResponseYield{Parts: []ArtifactPart{{Kind: "text", Text: "ack"}}})
			<-release
			return "done", nil
		},
	}
	require.NoError(t, rt.Register(p))

	exec, err := rt.Dispatch(context.Background(), "slow", ExecutionContext{})
	require.NoError(t, err)

	y, ended, err := rt.FirstYield(context.Background(), exec)
	require.NoError(t, err)
	require.False(t, ended)
	dr, ok := y.(DispatchResponseYield)
	require.True(t, ok)
	assert.Equal(t, "ack", dr.Parts[0].Text)

	close(release)
	_, _ = exec.WaitForCompletion(context.Background())
}

func TestFirstYieldTimesOutWhenPluginNeverYields(t *testing.T) {
	rt, _ := newTestRuntime()
	release := make(chan struct{})
	p := &fakePlugin{
		id: "silent", version: "v1",
		run: func(ctx context.Context, ec ExecutionContext, yield func(Yield), resume func() any) (any, error) {
			<-release
			return "done", nil
		},
	}
	require.NoError(t, rt.Register(p))

	exec, err := rt.Dispatch(context.Background(), "silent", ExecutionContext{})
	require.NoError(t, err)

	start := time.Now()
	y, ended, err := rt.FirstYield(context.Background(), exec)
	elapsed := time.Since(start)

	assert.Nil(t, y)
	assert.False(t, ended)
	assert.NoError(t, err)
	assert.Less(t, elapsed, time.Second)

	close(release)
	_, _ = exec.WaitForCompletion(context.Background())
}

func TestPauseAndResumeRoundTrip(t *testing.T) {
	rt, _ := newTestRuntime()
	resumedWith := make(chan any, 1)
	p := &fakePlugin{
		id: "pausing", version: "v1",
		run: func(ctx context.Context, ec ExecutionContext, yield func(Yield), resume func() any) (any, error) {
			yield(InterruptedYield{
				Reason:      PauseInputRequired,
				InputSchema: map[string]any{"type": "object", "required": []any{"answer"}, "properties": map[string]any{"answer": map[string]any{"type": "string"}}},
			})
			in := resume()
			resumedWith <- in
			return in, nil
		},
	}
	require.NoError(t, rt.Register(p))

	exec, err := rt.Dispatch(context.Background(), "pausing", ExecutionContext{})
	require.NoError(t, err)

	// Drain the paused event so the pump's buffered events channel doesn't
	// block the plugin goroutine's next resume() call.
	go func() {
		for range exec.Events() {
		}
	}()

	require.Eventually(t, func() bool {
		state, _ := rt.GetTaskState(exec.TaskID)
		return state == taskstate.InputRequired
	}, time.Second, 5*time.Millisecond)

	ok, errs, err := rt.ResumeWorkflow(exec.TaskID, map[string]any{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotEmpty(t, errs)

	ok, errs, err = rt.ResumeWorkflow(exec.TaskID, map[string]any{"answer": "42"})
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.True(t, ok)

	select {
	case got := <-resumedWith:
		assert.Equal(t, map[string]any{"answer": "42"}, got)
	case <-time.After(time.Second):
		t.Fatal("plugin never observed resume input")
	}
}

func TestRejectYieldTransitionsToRejected(t *testing.T) {
	rt, _ := newTestRuntime()
	p := &fakePlugin{
		id: "rejector", version: "v1",
		run: func(ctx context.Context, ec ExecutionContext, yield func(Yield), resume func() any) (any, error) {
			yield(RejectYield{Reason: "not applicable"})
			return nil, nil
		},
	}
	require.NoError(t, rt.Register(p))

	exec, err := rt.Dispatch(context.Background(), "rejector", ExecutionContext{})
	require.NoError(t, err)

	var kinds []string
	for ev := range exec.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, "rejected")

	state, ok := rt.GetTaskState(exec.TaskID)
	require.True(t, ok)
	assert.Equal(t, taskstate.Rejected, state)
}

func TestCancelExecutionStopsAPausedTask(t *testing.T) {
	rt, _ := newTestRuntime()
	p := &fakePlugin{
		id: "cancelme", version: "v1",
		run: func(ctx context.Context, ec ExecutionContext, yield func(Yield), resume func() any) (any, error) {
			yield(InterruptedYield{Reason: PauseInputRequired})
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	require.NoError(t, rt.Register(p))

	exec, err := rt.Dispatch(context.Background(), "cancelme", ExecutionContext{})
	require.NoError(t, err)
	go func() {
		for range exec.Events() {
		}
	}()

	require.Eventually(t, func() bool {
		state, _ := rt.GetTaskState(exec.TaskID)
		return state == taskstate.InputRequired
	}, time.Second, 5*time.Millisecond)

	assert.True(t, rt.CancelExecution(exec.TaskID))
	assert.False(t, rt.CancelExecution(exec.TaskID), "cancelling an already-terminal task is a no-op")

	state, ok := rt.GetTaskState(exec.TaskID)
	require.True(t, ok)
	assert.Equal(t, taskstate.Canceled, state)
}

func TestWorkflowErrorTransitionsToFailed(t *testing.T) {
	rt, _ := newTestRuntime()
	p := &fakePlugin{
		id: "boom", version: "v1",
		run: func(ctx context.Context, ec ExecutionContext, yield func(Yield), resume func() any) (any, error) {
			return nil, assertError("boom")
		},
	}
	require.NoError(t, rt.Register(p))

	exec, err := rt.Dispatch(context.Background(), "boom", ExecutionContext{})
	require.NoError(t, err)

	var kinds []string
	for ev := range exec.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, "failed")

	state, ok := rt.GetTaskState(exec.TaskID)
	require.True(t, ok)
	assert.Equal(t, taskstate.Failed, state)
}

type assertError string

func (e assertError) Error() string { return string(e) }
