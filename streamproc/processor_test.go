package streamproc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/eventbus"
	"github.com/agentcore/agentcore/toolregistry"
)

// collect drains bus asynchronously and returns a function that, once the
// bus finishes, yields every event published before the terminal sentinel.
func collect(bus *eventbus.Bus) func() []eventbus.Event {
	ch, unsub := bus.Subscribe()
	var out []eventbus.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			if ev == eventbus.Finished {
				return
			}
			out = append(out, ev)
		}
	}()
	return func() []eventbus.Event {
		unsub()
		<-done
		return out
	}
}

func stream(chunks ...Chunk) TokenStream {
	return func(yield func(Chunk, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func artifactEvents(events []eventbus.Event) []eventbus.ArtifactUpdateEvent {
	var out []eventbus.ArtifactUpdateEvent
	for _, ev := range events {
		if au, ok := ev.(eventbus.ArtifactUpdateEvent); ok {
			out = append(out, au)
		}
	}
	return out
}

func TestProcessCoalescesTextDeltasThroughRingBuffer(t *testing.T) {
	p := New()
	bus := eventbus.NewBus(32)
	ch, unsub := bus.Subscribe()
	defer unsub()

	result := p.Process(context.Background(), "t1", "c1", bus,
		stream(
			Chunk{Kind: ChunkTextDelta, Text: "hel"},
			Chunk{Kind: ChunkTextDelta, Text: "lo "},
			Chunk{Kind: ChunkTextDelta, Text: "world"},
			Chunk{Kind: ChunkTextEnd},
		))

	require.False(t, result.Failed)
	require.Len(t, result.Parts, 1)
	assert.Equal(t, "hello world", result.Parts[0].Text)

	var artifacts []eventbus.ArtifactUpdateEvent
	draining := true
	for draining {
		select {
		case ev := <-ch:
			if au, ok := ev.(eventbus.ArtifactUpdateEvent); ok {
				artifacts = append(artifacts, au)
			}
			if ev == eventbus.Finished {
				draining = false
			}
		default:
			draining = false
		}
	}

	// Ring buffer of size 1: each delta but the last is published one step
	// behind, so the three deltas plus the flush at text-end produce exactly
	// two non-final artifact publishes and one LastChunk publish.
	require.Len(t, artifacts, 3)
	assert.Equal(t, "hel", artifacts[0].Artifact.Parts[0].Text)
	assert.False(t, artifacts[0].Append)
	assert.Equal(t, "lo ", artifacts[1].Artifact.Parts[0].Text)
	assert.True(t, artifacts[1].Append)
	assert.Equal(t, "world", artifacts[2].Artifact.Parts[0].Text)
	assert.True(t, artifacts[2].Append)
	assert.True(t, artifacts[2].LastChunk)
}

func TestProcessOrdersReasoningBeforeTextInResult(t *testing.T) {
	p := New()
	bus := eventbus.NewBus(32)

	result := p.Process(context.Background(), "t1", "c1", bus,
		stream(
			Chunk{Kind: ChunkReasoningDelta, Text: "thinking..."},
			Chunk{Kind: ChunkReasoningEnd},
			Chunk{Kind: ChunkTextDelta, Text: "answer"},
			Chunk{Kind: ChunkTextEnd},
		))

	require.Len(t, result.Parts, 2)
	assert.Equal(t, "thinking...", result.Parts[0].Text)
	assert.Equal(t, "answer", result.Parts[1].Text)
}

func TestProcessSuppressesArtifactForDispatchTool(t *testing.T) {
	p := New()
	bus := eventbus.NewBus(32)
	wait := collect(bus)

	_ = p.Process(context.Background(), "t1", "c1", bus,
		stream(
			Chunk{Kind: ChunkToolCall, ToolCallID: "call1", ToolName: "dispatch_workflow_greeter", ToolArgs: map[string]any{}},
			Chunk{Kind: ChunkToolResult, ToolCallID: "call1", ToolName: "dispatch_workflow_greeter", ToolResultValue: toolregistry.DispatchedWorkflow{TaskID: "task2"}},
		))
	events := wait()

	for _, au := range artifactEvents(events) {
		assert.NotEqual(t, "tool-call", au.Artifact.Name)
		assert.NotEqual(t, "tool-result", au.Artifact.Name)
	}

	var sawDispatchStatus bool
	for _, ev := range events {
		if su, ok := ev.(eventbus.StatusUpdateEvent); ok && su.Status.Message != nil {
			sawDispatchStatus = true
			require.Equal(t, []string{"task2"}, su.Status.Message.ReferenceTaskIDs)
		}
	}
	assert.True(t, sawDispatchStatus)
}

func TestProcessPublishesToolCallAndResultArtifactsForOrdinaryTools(t *testing.T) {
	p := New()
	bus := eventbus.NewBus(32)
	wait := collect(bus)

	_ = p.Process(context.Background(), "t1", "c1", bus,
		stream(
			Chunk{Kind: ChunkToolCall, ToolCallID: "call1", ToolName: "search", ToolArgs: map[string]any{"q": "go"}},
			Chunk{Kind: ChunkToolResult, ToolCallID: "call1", ToolName: "search", ToolResultValue: map[string]any{"ok": true}},
		))
	events := wait()

	artifacts := artifactEvents(events)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "tool-call", artifacts[0].Artifact.Name)
	assert.Equal(t, "tool-result", artifacts[1].Artifact.Name)
	assert.Equal(t, artifacts[0].Artifact.ArtifactID, artifacts[1].Artifact.ArtifactID)
	assert.True(t, artifacts[1].Append)
}

func TestProcessReportsFailedOnStreamError(t *testing.T) {
	p := New()
	bus := eventbus.NewBus(32)
	wait := collect(bus)

	boom := assertErr("boom")
	result := p.Process(context.Background(), "t1", "c1", bus,
		func(yield func(Chunk, error) bool) {
			yield(Chunk{Kind: ChunkTextDelta, Text: "partial"}, nil)
			yield(Chunk{}, boom)
		})
	events := wait()

	assert.True(t, result.Failed)

	var last eventbus.StatusUpdateEvent
	var found bool
	for _, ev := range events {
		if su, ok := ev.(eventbus.StatusUpdateEvent); ok {
			last = su
			found = true
		}
	}
	require.True(t, found)
	assert.Equal(t, "failed", last.Status.State)
	assert.True(t, last.Final)
}

func TestProcessFinishesTheBus(t *testing.T) {
	p := New()
	bus := eventbus.NewBus(32)
	_ = p.Process(context.Background(), "t1", "c1", bus, stream(Chunk{Kind: ChunkTextEnd}))
	assert.True(t, bus.IsFinished())
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
