// Package streamproc implements the Stream Processor (§4.4): it consumes an
// LLM token stream and translates it into the protocol-level event stream
// (artifacts, status updates), coalescing deltas through a ring buffer of
// size 1 so every chunk but the last is forwarded before the terminator.
//
// Grounded on hector's v2/model/aggregator.go StreamingAggregator: its
// ProcessTextDelta/ProcessThinkingDelta already return iter.Seq2[*Response,
// error] per call (the Go 1.23 range-over-func idiom this package's
// TokenStream type reuses), and its Close/createAggregatedResponse assembly
// (thinking assembled separately from text parts) is the direct model for
// assembling the post-stream assistant message with reasoning first.
package streamproc

import "iter"

// ChunkKind enumerates the token-stream chunk types §4.4 names, plus
// "other" for provider-specific chunks this processor ignores.
type ChunkKind string

const (
	ChunkTextDelta      ChunkKind = "text-delta"
	ChunkTextEnd        ChunkKind = "text-end"
	ChunkReasoningStart ChunkKind = "reasoning-start"
	ChunkReasoningDelta ChunkKind = "reasoning-delta"
	ChunkReasoningEnd   ChunkKind = "reasoning-end"
	ChunkToolCall       ChunkKind = "tool-call"
	ChunkToolInputDelta ChunkKind = "tool-input-delta"
	ChunkToolInputEnd   ChunkKind = "tool-input-end"
	ChunkToolResult     ChunkKind = "tool-result"
	ChunkOther          ChunkKind = "other"
)

// Chunk is one unit of an LLM token stream.
type Chunk struct {
	Kind ChunkKind

	// Text carries a text-delta or reasoning-delta's incremental content.
	Text string

	// ToolCallID correlates a tool-call with its later tool-result.
	ToolCallID string
	ToolName   string
	ToolArgs   map[string]any

	// ToolInputDelta is a raw JSON fragment of a tool call's arguments as
	// they stream in, before ToolInputEnd/ToolArgs is final.
	ToolInputDelta string

	// ToolResultValue is the decoded result of executing ToolCallID's tool.
	// A toolregistry.DispatchedWorkflow value (or a non-nil pointer to one)
	// here is the "result indicates a dispatched workflow" case of §4.4.
	ToolResultValue any
}

// TokenStream is an LLM provider's token stream, modeled as a Go 1.23
// range-over-func sequence yielding (chunk, error) pairs — the same shape
// hector's own per-delta processing methods return. A non-nil error ends
// the sequence (§7 "StreamError"); reaching the end of iteration with no
// error is normal completion.
type TokenStream iter.Seq2[Chunk, error]
