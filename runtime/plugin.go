// Package runtime implements the Workflow Runtime: plugin registry,
// dispatch/resume/cancel of stateful generator-style plugins, and the
// dispatch-response timeout policy for workflows launched from within an
// LLM tool call.
package runtime

import "context"

// Plugin is a registered workflow unit (§3 "Workflow Plugin"). Execute is
// the generator: it runs on its own goroutine and communicates with the
// runtime exclusively through yield and resume, never by returning
// partial results out-of-band.
type Plugin interface {
	ID() string
	Name() string
	Version() string
	Description() string

	// InputSchema returns a JSON-schema-equivalent object shape (see
	// internal/schemautil), or nil if this plugin accepts any parameters.
	InputSchema() map[string]any

	// Execute runs the plugin to completion. yield sends a WorkflowYield to
	// the runtime and blocks until the runtime has consumed it — this is
	// the "generator emits a value and waits" half of the bidirectional
	// protocol. resume must be called only after an InterruptedYield and
	// blocks until the runtime delivers the validated resume input — this
	// is the "generator receives a value back" half. ctx is cancelled
	// cooperatively when the execution is cancelled; Execute should check
	// ctx.Err() between yields and at resume points.
	Execute(ctx context.Context, ec ExecutionContext, yield func(Yield), resume func() any) (result any, err error)
}

// ExecutionContext is the per-dispatch input to a plugin's Execute.
type ExecutionContext struct {
	ContextID  string
	TaskID     string
	Parameters map[string]any
	Metadata   map[string]any
}

// Yield is the tagged sum of §3 "WorkflowYield". Dispatch on the concrete
// type via a type switch, per §9's "tagged sums, not an inheritance
// hierarchy" guidance.
type Yield interface {
	isYield()
}

// StatusUpdateYield is a free-form progress message.
type StatusUpdateYield struct {
	Message string
}

func (StatusUpdateYield) isYield() {}

// ArtifactPart mirrors eventbus.Part without importing eventbus, so the
// plugin-facing API has no dependency on the event-bus wire shapes.
type ArtifactPart struct {
	Kind     string // "text", "binary", or "data"
	Text     string
	Binary   []byte
	Data     any
	MimeType string
}

// ArtifactYield publishes a structured artifact, possibly one chunk of a
// streamed sequence (Append/LastChunk).
type ArtifactYield struct {
	ArtifactID  string
	Name        string
	Description string
	Parts       []ArtifactPart
	Metadata    map[string]any
	Append      bool
	LastChunk   bool
}

func (ArtifactYield) isYield() {}

// PauseReason identifies why an InterruptedYield is pausing the task.
type PauseReason string

const (
	PauseInputRequired PauseReason = "input-required"
	PauseAuthRequired  PauseReason = "auth-required"
)

// InterruptedYield requests a pause; the generator will receive the
// validated input back from resume() after ResumeWorkflow succeeds.
type InterruptedYield struct {
	Reason      PauseReason
	PromptText  string
	InputSchema map[string]any
}

func (InterruptedYield) isYield() {}

// RejectYield is a terminal self-rejection.
type RejectYield struct {
	Reason string
}

func (RejectYield) isYield() {}

// DispatchResponseYield is the value returned synchronously to the
// dispatching LLM tool call (§4.2 "Dispatch response contract").
type DispatchResponseYield struct {
	Parts []ArtifactPart
}

func (DispatchResponseYield) isYield() {}
