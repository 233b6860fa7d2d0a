// Package msghandler implements the Message Handler (§4.7): per-inbound-
// message classification (terminal rejection, resume routing, fresh-turn
// fallback) and the part-extraction convention the Agent Executor and AI
// Handler share.
package msghandler

import (
	"context"

	"github.com/agentcore/agentcore/agenterr"
	"github.com/agentcore/agentcore/aihandler"
	"github.com/agentcore/agentcore/eventbus"
	"github.com/agentcore/agentcore/taskstate"
	"github.com/agentcore/agentcore/workflowhandler"
)

// TaskStater is the subset of the Workflow Runtime this package needs, kept
// as an interface so tests can fake task-state lookups without a full
// Runtime.
type TaskStater interface {
	GetTaskState(taskID string) (taskstate.State, bool)
}

// Handler classifies and routes one inbound message.
type Handler struct {
	tasks     TaskStater
	workflows *workflowhandler.Handler
	ai        *aihandler.Handler
}

func New(tasks TaskStater, workflows *workflowhandler.Handler, ai *aihandler.Handler) *Handler {
	return &Handler{tasks: tasks, workflows: workflows, ai: ai}
}

// Handle implements §4.7's four-step classification for one inbound
// message. bus is the task's Event Bus (already acquired by the caller);
// Handle does not acquire or release it.
func (h *Handler) Handle(ctx context.Context, taskID, contextID string, parts []eventbus.Part, bus *eventbus.Bus) error {
	text, data := ExtractParts(parts)

	state, known := h.tasks.GetTaskState(taskID)
	if known {
		if state.IsTerminal() {
			bus.Publish(eventbus.StatusUpdateEvent{
				TaskID: taskID, ContextID: contextID,
				Status: eventbus.Status{State: string(state)},
				Final:  true,
			})
			bus.Finish()
			return agenterr.InvalidRequest("MessageHandler.Handle", taskID, "task is already in a terminal state", nil)
		}

		isPausedResume := state.IsPaused()
		isWorkingResumeHeuristic := state == taskstate.Working && text == "" && data != nil

		if isPausedResume {
			return h.workflows.ResumeWorkflow(ctx, taskID, contextID, text, data)
		}
		if isWorkingResumeHeuristic {
			if err := h.workflows.ResumeWorkflow(ctx, taskID, contextID, text, data); err == nil {
				return nil
			}
			// Fall through to a fresh AI turn per §4.7 step 3's documented
			// fallback: a "working" resume attempt that fails is treated as
			// an ordinary new message, not an error.
		}
	}

	h.ai.NewTurn(ctx, taskID, contextID, parts, bus)
	return nil
}

// ExtractParts implements §4.7's part-extraction convention: the first text
// part for content, the first data part for data, falling back to a legacy
// flat "content" field carried as a data part's Data map.
func ExtractParts(parts []eventbus.Part) (text string, data map[string]any) {
	for _, p := range parts {
		if p.Kind == "text" && text == "" {
			text = p.Text
		}
		if p.Kind == "data" && data == nil {
			if m, ok := p.Data.(map[string]any); ok {
				data = m
			}
		}
	}
	if text == "" && data != nil {
		if legacy, ok := data["content"].(string); ok {
			text = legacy
		}
	}
	return text, data
}
