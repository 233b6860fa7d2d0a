package streamproc

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentcore/agentcore/eventbus"
	"github.com/agentcore/agentcore/toolregistry"
)

// Processor is the Stream Processor (§4.4): stateless across calls, it
// holds only the per-stream ring-buffer state for the duration of one
// Process call.
type Processor struct{}

func New() *Processor { return &Processor{} }

// Result is what a completed stream produced for the post-stream assistant
// message (§4.6 step 5): reasoning first, then text, per the ordering
// invariant §4.4/§9 mandate.
type Result struct {
	Parts  []eventbus.Part
	Failed bool
}

type ringTrack struct {
	artifactID string
	index      int
	pending    *eventbus.Part
	accum      string
}

func (t *ringTrack) offer(bus *eventbus.Bus, taskID, contextID string, delta string) {
	t.accum += delta
	if t.pending != nil {
		bus.Publish(eventbus.ArtifactUpdateEvent{
			TaskID: taskID, ContextID: contextID,
			Artifact: eventbus.Artifact{ArtifactID: t.artifactID, Name: t.artifactID, Parts: []eventbus.Part{*t.pending}},
			Append:   t.index > 0,
		})
		t.index++
	}
	p := eventbus.TextPart(delta)
	t.pending = &p
}

func (t *ringTrack) flush(bus *eventbus.Bus, taskID, contextID string) {
	if t.pending == nil {
		return
	}
	bus.Publish(eventbus.ArtifactUpdateEvent{
		TaskID: taskID, ContextID: contextID,
		Artifact:  eventbus.Artifact{ArtifactID: t.artifactID, Name: t.artifactID, Parts: []eventbus.Part{*t.pending}},
		Append:    t.index > 0,
		LastChunk: true,
	})
	t.pending = nil
	t.index++
}

// Process drives stream to completion, publishing artifact-update and
// status-update events on bus as chunks arrive, and returns the assembled
// assistant message (if any). It always terminates the bus (Finish). When
// ctx was already cancelled out from under it by a concurrent cancellation,
// it publishes no final status-update first, since the canceller owns the
// terminal event (§5 "Cancellation").
func (p *Processor) Process(ctx context.Context, taskID, contextID string, bus *eventbus.Bus, stream TokenStream) Result {
	text := &ringTrack{artifactID: "text-response"}
	reasoning := &ringTrack{artifactID: "reasoning"}

	// toolArtifact maps a tool-call id to the artifact id its tool-call
	// event was published under, so the matching tool-result reuses it.
	toolArtifact := make(map[string]string)
	suppressed := make(map[string]bool)

	var streamErr error

	for chunk, err := range stream {
		if err != nil {
			streamErr = err
			break
		}
		if ctx.Err() != nil {
			break
		}

		switch chunk.Kind {
		case ChunkTextDelta:
			text.offer(bus, taskID, contextID, chunk.Text)

		case ChunkTextEnd:
			text.flush(bus, taskID, contextID)

		case ChunkReasoningDelta:
			reasoning.offer(bus, taskID, contextID, chunk.Text)

		case ChunkReasoningEnd:
			reasoning.flush(bus, taskID, contextID)

		case ChunkToolCall:
			artifactID := uuid.NewString()
			toolArtifact[chunk.ToolCallID] = artifactID
			if toolregistry.IsDispatchTool(chunk.ToolName) {
				suppressed[chunk.ToolCallID] = true
				continue
			}
			bus.Publish(eventbus.ArtifactUpdateEvent{
				TaskID: taskID, ContextID: contextID,
				Artifact: eventbus.Artifact{
					ArtifactID: artifactID,
					Name:       "tool-call",
					Parts: []eventbus.Part{eventbus.DataPart(map[string]any{
						"name": chunk.ToolName,
						"args": chunk.ToolArgs,
					}, "")},
				},
			})

		case ChunkToolResult:
			p.handleToolResult(bus, taskID, contextID, chunk, toolArtifact, suppressed)

		default:
			// ChunkReasoningStart, ChunkToolInputDelta/End, ChunkOther carry
			// no independent protocol event and are ignored here
			// (reasoning-start has nothing to do — the first delta
			// implicitly starts the track).
		}
	}

	text.flush(bus, taskID, contextID)
	reasoning.flush(bus, taskID, contextID)

	cancelledElsewhere := ctx.Err() != nil
	if !cancelledElsewhere {
		if streamErr != nil {
			bus.Publish(eventbus.StatusUpdateEvent{
				TaskID: taskID, ContextID: contextID,
				Status: eventbus.Status{State: "failed", Message: &eventbus.Message{
					Role:  "agent",
					Parts: []eventbus.Part{eventbus.TextPart(streamErr.Error())},
				}},
				Final: true,
			})
		} else {
			bus.Publish(eventbus.StatusUpdateEvent{
				TaskID: taskID, ContextID: contextID,
				Status: eventbus.Status{State: "completed"},
				Final:  true,
			})
		}
	}
	bus.Finish()

	var parts []eventbus.Part
	if reasoning.accum != "" {
		parts = append(parts, eventbus.TextPart(reasoning.accum))
	}
	if text.accum != "" {
		parts = append(parts, eventbus.TextPart(text.accum))
	}
	return Result{Parts: parts, Failed: streamErr != nil}
}

func (p *Processor) handleToolResult(bus *eventbus.Bus, taskID, contextID string, chunk Chunk, toolArtifact map[string]string, suppressed map[string]bool) {
	artifactID, ok := toolArtifact[chunk.ToolCallID]
	if !ok {
		artifactID = uuid.NewString()
	}

	if !suppressed[chunk.ToolCallID] {
		bus.Publish(eventbus.ArtifactUpdateEvent{
			TaskID: taskID, ContextID: contextID,
			Artifact: eventbus.Artifact{
				ArtifactID: artifactID,
				Name:       "tool-result",
				Parts:      []eventbus.Part{eventbus.DataPart(chunk.ToolResultValue, "")},
			},
			Append: true,
		})
	}

	dw, ok := chunk.ToolResultValue.(toolregistry.DispatchedWorkflow)
	if !ok {
		if ptr, ok := chunk.ToolResultValue.(*toolregistry.DispatchedWorkflow); ok && ptr != nil {
			dw = *ptr
			ok = true
		}
	}
	if !ok {
		return
	}

	msgParts := []eventbus.Part{eventbus.TextPart(fmt.Sprintf("Dispatched workflow as task %s.", dw.TaskID))}
	for _, part := range dw.Parts {
		msgParts = append(msgParts, toEventbusPart(part))
	}
	bus.Publish(eventbus.StatusUpdateEvent{
		TaskID: taskID, ContextID: contextID,
		Status: eventbus.Status{
			State: "working",
			Message: &eventbus.Message{
				Role:             "agent",
				Parts:            msgParts,
				ReferenceTaskIDs: []string{dw.TaskID},
			},
		},
	})
}

func toEventbusPart(p toolregistry.Part) eventbus.Part {
	if p.Kind == "data" {
		return eventbus.DataPart(p.Data, p.MimeType)
	}
	return eventbus.TextPart(p.Text)
}
