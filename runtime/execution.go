package runtime

import (
	"context"
	"sync"

	"github.com/agentcore/agentcore/task"
)

// EventOut is the runtime's translation of a yield (or terminal outcome)
// into something a handler can turn into a protocol event, without the
// runtime itself depending on the event-bus wire shapes (§4.2 "Yield
// handling").
type EventOut struct {
	Kind string // "status-update" | "artifact" | "dispatch-response" | "paused" | "rejected" | "completed" | "failed"

	StatusMessage string
	Artifact      *ArtifactYield

	PauseReason PauseReason
	PausePrompt string
	PauseSchema map[string]any

	Result any
	Err    *task.TaskError
}

// Execution is the live handle for a dispatched plugin (§3
// "WorkflowExecution").
type Execution struct {
	TaskID   string
	PluginID string

	record *task.Record

	yieldOut chan Yield
	inputIn  chan any
	firstCh  chan firstResult
	events   chan EventOut
	done     chan struct{}

	cancel context.CancelCauseFunc

	// finalResult/finalErr are written once by the plugin goroutine before
	// it closes yieldOut, and read once by the pump goroutine after it
	// observes yieldOut closed; the channel close supplies the
	// happens-before edge, so no separate lock guards them.
	finalResult any
	finalErr    error

	mu     sync.Mutex
	result any
	err    error
}

type firstResult struct {
	yield Yield
	ended bool
	err   error
}

// Events returns the stream of translated yields/terminal outcomes for
// this execution. The channel is closed once the generator has returned.
// A generator that returns an error ends the stream with failed; one that
// returns normally ends it with completed, unless the task was already
// rejected or cancelled, in which case no completed value is sent. No
// separate canceled value is ever sent.
func (e *Execution) Events() <-chan EventOut { return e.events }

// GetPauseInfo returns the execution's current pause info, or nil if the
// task is not currently paused.
func (e *Execution) GetPauseInfo() *task.PauseInfo { return e.record.GetPause() }

// WaitForCompletion blocks until the execution reaches a terminal state or
// ctx is cancelled, returning the generator's result/error.
func (e *Execution) WaitForCompletion(ctx context.Context) (any, error) {
	select {
	case <-e.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.result, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Execution) finish(result any, err error) {
	e.mu.Lock()
	e.result = result
	e.err = err
	e.mu.Unlock()
	close(e.done)
}
