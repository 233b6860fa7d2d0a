package executor

import (
	"github.com/a2aproject/a2a-go/a2a"

	"github.com/agentcore/agentcore/eventbus"
)

// toA2A is the §6 translation boundary: every internal eventbus.Event is
// converted to its wire-level a2a.Event counterpart here, and nowhere else.
// The bool return is false for event kinds this executor does not forward
// (the task event, whose submitted state is instead covered by
// the explicit a2a.NewStatusUpdateEvent call in Execute, per hector's own
// "emit TaskStateSubmitted before runner invocation" ordering).
func toA2A(taskID, contextID string, ev eventbus.Event) (a2a.Event, bool) {
	switch v := ev.(type) {
	case eventbus.TaskEvent:
		return nil, false

	case eventbus.StatusUpdateEvent:
		return &a2a.TaskStatusUpdateEvent{
			TaskID:    a2a.TaskID(taskID),
			ContextID: contextID,
			Status: a2a.TaskStatus{
				State:     toWireState(v.Status.State),
				Message:   toA2AMessage(v.Status.Message),
				Timestamp: v.Status.Timestamp,
			},
			Final: v.Final,
		}, true

	case eventbus.ArtifactUpdateEvent:
		return &a2a.TaskArtifactUpdateEvent{
			TaskID:    a2a.TaskID(taskID),
			ContextID: contextID,
			Artifact: a2a.Artifact{
				ArtifactID:  v.Artifact.ArtifactID,
				Name:        v.Artifact.Name,
				Description: v.Artifact.Description,
				Parts:       toA2AParts(v.Artifact.Parts),
				Metadata:    v.Artifact.Metadata,
			},
			Append:    v.Append,
			LastChunk: v.LastChunk,
		}, true

	case eventbus.MessageEvent:
		m := eventbus.Message(v)
		return toA2AMessage(&m), true

	default:
		return nil, false
	}
}

// toWireState maps this core's wire-facing state strings (as published by
// the handlers) onto a2a.TaskState. Handlers publish
// state using the same string values taskstate.State uses, so this is a
// straight string-to-enum lookup rather than a second state machine.
func toWireState(s string) a2a.TaskState {
	switch s {
	case "submitted":
		return a2a.TaskStateSubmitted
	case "working":
		return a2a.TaskStateWorking
	case "input-required":
		return a2a.TaskStateInputRequired
	case "auth-required":
		return a2a.TaskStateAuthRequired
	case "completed":
		return a2a.TaskStateCompleted
	case "failed":
		return a2a.TaskStateFailed
	case "canceled":
		return a2a.TaskStateCanceled
	case "rejected":
		return a2a.TaskStateRejected
	default:
		return a2a.TaskStateUnknown
	}
}

func toA2AMessage(m *eventbus.Message) *a2a.Message {
	if m == nil {
		return nil
	}
	role := a2a.MessageRoleAgent
	if m.Role == "user" {
		role = a2a.MessageRoleUser
	}
	msg := a2a.NewMessage(role, toA2AParts(m.Parts)...)
	if len(m.ReferenceTaskIDs) > 0 {
		if msg.Metadata == nil {
			msg.Metadata = make(map[string]any)
		}
		msg.Metadata["referenceTaskIds"] = m.ReferenceTaskIDs
	}
	return msg
}

func toA2AParts(parts []eventbus.Part) []a2a.Part {
	out := make([]a2a.Part, 0, len(parts))
	for _, p := range parts {
		if p.Kind == "data" {
			data, _ := p.Data.(map[string]any)
			if data == nil {
				data = map[string]any{"value": p.Data}
			}
			out = append(out, a2a.DataPart{Data: data})
			continue
		}
		out = append(out, a2a.TextPart{Text: p.Text})
	}
	return out
}

// fromA2AParts converts an inbound a2a.Message's parts into this core's
// internal eventbus.Part shape, the mirror of toA2AParts.
func fromA2AParts(parts []a2a.Part) []eventbus.Part {
	out := make([]eventbus.Part, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case a2a.TextPart:
			out = append(out, eventbus.TextPart(v.Text))
		case a2a.DataPart:
			out = append(out, eventbus.DataPart(map[string]any(v.Data), ""))
		}
	}
	return out
}
