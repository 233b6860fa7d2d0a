// Package toolregistry implements the Tool Registry (§4.3): it aggregates
// workflow-dispatch tools (one per registered workflow plugin) and external
// tools discovered from a ToolSource (an MCP client, in internal/mcpsource)
// into a single name-keyed set exposed to the LLM, enforcing the tool
// naming contract of §6.
package toolregistry

import "context"

// Tool is the LLM-invocable function contract of §3 "Tool". Execute is nil
// for a tool whose invocation the caller handles out-of-band (none of this
// registry's tools currently do that, but the field stays optional to match
// hector's own Tool shape, where some entries are descriptor-only).
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Execute     func(ctx context.Context, args map[string]any) (ToolResult, error)
}

// ToolResult is the outcome of executing a Tool. Value carries whatever the
// tool produced; DispatchedWorkflow is non-nil exactly when this result
// came from a dispatch_workflow_* tool, letting the Stream Processor (§4.4)
// recognize it without depending on this package's tool-construction logic.
type ToolResult struct {
	Value              any
	DispatchedWorkflow *DispatchedWorkflow
}

// DispatchedWorkflow is the {taskId, metadata} shape §4.4 refers to as "the
// result indicates a dispatched workflow", plus any dispatch-response parts
// the child's first yield returned synchronously (§4.2).
type DispatchedWorkflow struct {
	TaskID   string
	Metadata map[string]any
	Parts    []Part
}

// Part mirrors eventbus.Part. Kept as a distinct type (rather than an
// import) so toolregistry has no dependency on the eventbus wire package;
// the consuming packages (streamproc, workflowhandler) convert at the call site.
type Part struct {
	Kind     string // "text" or "data"
	Text     string
	Data     any
	MimeType string
}

// ToolSource is an external collaborator providing tools discovered out of
// process (§1 "MCP transport clients... consumed via interfaces"). The
// registry depends only on this interface; internal/mcpsource implements it
// over github.com/mark3labs/mcp-go.
type ToolSource interface {
	// Name identifies the source for conflict-reporting and tool-name
	// namespacing (§4.3 "server namespace").
	Name() string
	// Tools returns the source's current tool set. Called once at
	// registration time; the registry does not re-poll.
	Tools(ctx context.Context) ([]Tool, error)
}

// WorkflowDispatcher is the Workflow Handler's dispatch entrypoint (§4.5),
// depended on here only through this interface so toolregistry never
// imports the workflowhandler package.
type WorkflowDispatcher interface {
	DispatchWorkflow(ctx context.Context, pluginID string, args map[string]any, contextID string) (DispatchedWorkflow, error)
}

// WorkflowPlugin is the subset of runtime.Plugin the registry needs to
// build a dispatch_workflow_* tool, kept as an interface so toolregistry
// does not need to import the runtime package's full Plugin surface.
type WorkflowPlugin interface {
	ID() string
	Description() string
	InputSchema() map[string]any
}
