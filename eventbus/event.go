// Package eventbus implements the per-task Event Bus (ordered,
// multi-subscriber publish/subscribe of protocol events) and the Event Bus
// Manager that creates and reference-counts buses keyed by task id.
package eventbus

import "time"

// Event is the tagged-sum protocol event contract of §6. Field names follow
// the spec exactly; Kind identifies the concrete variant for a type switch,
// matching the "tagged sums, not an inheritance hierarchy" guidance.
type Event interface {
	Kind() string
}

// Part is either a text or a data part, per §6.
type Part struct {
	Kind     string // "text" or "data"
	Text     string
	Data     any
	MimeType string
}

func TextPart(text string) Part { return Part{Kind: "text", Text: text} }

func DataPart(data any, mimeType string) Part {
	return Part{Kind: "data", Data: data, MimeType: mimeType}
}

// Status mirrors a2a.TaskStatus in the internal event shapes.
type Status struct {
	State     string
	Message   *Message
	Timestamp time.Time
}

// Message is the protocol-level message shape (§6 "message"), also reused
// as the optional Status.Message (e.g. a pause prompt).
type Message struct {
	MessageID        string
	ContextID        string
	Role             string // "user", "agent", "assistant"
	Parts            []Part
	ReferenceTaskIDs []string
}

// Artifact carries ordered parts; streaming artifacts of the same id may
// arrive in chunks (Append/LastChunk).
type Artifact struct {
	ArtifactID  string
	Name        string
	Description string
	Parts       []Part
	Metadata    map[string]any
}

// TaskEvent is published exactly once per task, before any status-update.
type TaskEvent struct {
	ID        string
	ContextID string
	Status    Status
}

func (TaskEvent) Kind() string { return "task" }

// StatusUpdateEvent reports a state transition or progress note.
type StatusUpdateEvent struct {
	TaskID    string
	ContextID string
	Status    Status
	Final     bool
}

func (StatusUpdateEvent) Kind() string { return "status-update" }

// ArtifactUpdateEvent carries a structured artifact, possibly one chunk of
// a streamed sequence.
type ArtifactUpdateEvent struct {
	TaskID    string
	ContextID string
	Artifact  Artifact
	Append    bool
	LastChunk bool
}

func (ArtifactUpdateEvent) Kind() string { return "artifact-update" }

// MessageEvent carries a standalone protocol message (§6 "message").
type MessageEvent Message

func (MessageEvent) Kind() string { return "message" }
