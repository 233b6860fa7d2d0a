// Package aihandler implements the AI Handler (§4.6): composing an LLM
// request from a Context's truncated history and the Tool Registry's
// per-request snapshot, driving the provider's token stream through tool
// execution and the Stream Processor, and folding the resulting assistant
// message back into the Context's history.
package aihandler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentcore/agentcore/eventbus"
	"github.com/agentcore/agentcore/internal/obs"
	"github.com/agentcore/agentcore/internal/registry"
	"github.com/agentcore/agentcore/session"
	"github.com/agentcore/agentcore/streamproc"
	"github.com/agentcore/agentcore/toolregistry"
)

// Request is the outbound LLM request the request-processor pipeline
// builds, modeled on hector's v2/model.Request trimmed to this core's
// needs (no output-schema/generate-config slots — those belong to the
// agent-manifest concerns §1 marks out of scope).
type Request struct {
	History      []session.Message
	SystemPrompt string
	Tools        map[string]toolregistry.Tool
}

// LLMClient is the boundary to a concrete streaming LLM provider. A
// reference implementation over google.golang.org/genai lives in
// internal/llmstream.
type LLMClient interface {
	Stream(ctx context.Context, req Request) streamproc.TokenStream
}

// RequestProcessor transforms req in place before it is sent, the same
// shape as hector's v2/agent/llmagent.RequestProcessor, trimmed to a
// two-stage pipeline (history truncation, tool injection) per §4.6.
type RequestProcessor func(req *Request) error

// Handler drives the new-turn flow of §4.6.
type Handler struct {
	llm       LLMClient
	sessions  *session.Manager
	tools     *toolregistry.Registry
	dispatch  toolregistry.WorkflowDispatcher
	processor *streamproc.Processor
	budget    *session.Budget
	cancels   *registry.BaseRegistry[context.CancelFunc]

	systemPrompt string
	maxHistory   int

	tracer trace.Tracer
}

// Config configures a Handler.
type Config struct {
	SystemPrompt     string
	MaxHistoryTokens int // 0 disables truncation
	TokenBudgetModel string
}

// cancels is the registry of live task-id → context.CancelFunc entries
// NewTurn populates, the mechanism §4.6 step 3's "cancellation signal bound
// to the task" and §5/§8 scenario 6's "cancelTask aborts the stream at the
// next chunk boundary" rely on. Shared with workflowhandler.Handler, whose
// CancelTask invokes the same entry for a plain AI-turn task (a workflow
// dispatch instead cancels through runtime.Runtime's own
// context.WithCancelCause plumbing).
func New(llm LLMClient, sessions *session.Manager, tools *toolregistry.Registry, dispatch toolregistry.WorkflowDispatcher, cancels *registry.BaseRegistry[context.CancelFunc], cfg Config) (*Handler, error) {
	h := &Handler{
		llm:          llm,
		sessions:     sessions,
		tools:        tools,
		dispatch:     dispatch,
		processor:    streamproc.New(),
		cancels:      cancels,
		systemPrompt: cfg.SystemPrompt,
		maxHistory:   cfg.MaxHistoryTokens,
		tracer:       obs.GetTracer("agentcore.aihandler"),
	}
	if h.maxHistory > 0 {
		model := cfg.TokenBudgetModel
		if model == "" {
			model = "gpt-4"
		}
		budget, err := session.NewBudget(model)
		if err != nil {
			return nil, err
		}
		h.budget = budget
	}
	return h, nil
}

// NewTurn implements §4.6's six steps for one inbound user message. It
// returns once the stream has finished; callers that want fire-and-forget
// behavior relative to their own request (§4.6 "returns before the stream
// finishes") should invoke it on its own goroutine.
func (h *Handler) NewTurn(ctx context.Context, taskID, contextID string, userParts []eventbus.Part, bus *eventbus.Bus) {
	ctx, span := h.tracer.Start(ctx, "aihandler.new_turn", trace.WithAttributes(attribute.String(obs.AttrTaskID, taskID)))
	defer span.End()

	ctxObj := h.sessions.GetOrCreate(contextID)
	ctxObj.AddTask(taskID)
	ctxObj.AppendHistory(session.Message{Role: "user", Content: textOf(userParts), Parts: toSessionParts(userParts)})

	bus.Publish(eventbus.TaskEvent{ID: taskID, ContextID: contextID, Status: eventbus.Status{State: "submitted", Timestamp: time.Now()}})
	bus.Publish(eventbus.StatusUpdateEvent{TaskID: taskID, ContextID: contextID, Status: eventbus.Status{State: "working"}})

	snapshot := h.tools.Snapshot(contextID, h.dispatch)

	req := Request{SystemPrompt: h.systemPrompt, Tools: snapshot, History: ctxObj.Snapshot()}
	for _, p := range h.pipeline() {
		if err := p(&req); err != nil {
			bus.Publish(eventbus.StatusUpdateEvent{
				TaskID: taskID, ContextID: contextID,
				Status: eventbus.Status{State: "failed", Message: &eventbus.Message{
					Role: "agent", Parts: []eventbus.Part{eventbus.TextPart(err.Error())},
				}},
				Final: true,
			})
			bus.Finish()
			return
		}
	}

	// §4.6 step 3: bind a per-task cancellation signal to the request
	// context so cancelTask (workflowhandler.Handler.CancelTask) can abort
	// the stream at the next chunk boundary (§5/§8 scenario 6).
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if h.cancels != nil {
		h.cancels.Put(taskID, cancel)
		defer h.cancels.Remove(taskID)
	}

	raw := h.llm.Stream(ctx, req)
	stream := h.withToolExecution(ctx, snapshot, raw)

	result := h.processor.Process(ctx, taskID, contextID, bus, stream)

	// A canceled task must not gain an assistant message in its history
	// (§8 scenario 6): ctx.Err() != nil means cancelTask fired mid-stream.
	if !result.Failed && len(result.Parts) > 0 && ctx.Err() == nil && h.sessions.Exists(contextID) {
		ctxObj.AppendHistory(session.Message{Role: "agent", Content: textOfEventbus(result.Parts), Parts: fromEventbusParts(result.Parts)})
	}
}

// pipeline builds the fixed request-processor chain of §4.6: truncated
// history first (so later stages see the final history slice), then tool
// injection. Mirrors hector's DefaultRequestProcessors() ordering
// (Instruction/Tools/Contents) trimmed to what this core actually composes.
func (h *Handler) pipeline() []RequestProcessor {
	return []RequestProcessor{h.historyProcessor, h.toolsProcessor}
}

func (h *Handler) historyProcessor(req *Request) error {
	if h.budget == nil || h.maxHistory <= 0 {
		return nil
	}
	req.History = h.budget.FitWithinLimit(req.History, h.maxHistory)
	return nil
}

func (h *Handler) toolsProcessor(req *Request) error {
	// Tools are already attached by NewTurn's snapshot; this stage exists
	// as its own pipeline member (rather than folded into NewTurn) so a
	// caller building a custom pipeline can reorder or replace it, the same
	// flexibility hector's Pipeline.Add/PrependRequestProcessor gives.
	return nil
}

// withToolExecution wraps in so that every tool-call chunk is followed,
// before the next chunk is forwarded, by the corresponding tool-result
// chunk — the place where this core actually executes a tool, as opposed
// to streamproc, which only ever publishes already-resolved results.
func (h *Handler) withToolExecution(ctx context.Context, snapshot map[string]toolregistry.Tool, in streamproc.TokenStream) streamproc.TokenStream {
	return func(yield func(streamproc.Chunk, error) bool) {
		for chunk, err := range in {
			if err != nil {
				yield(chunk, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
			if chunk.Kind != streamproc.ChunkToolCall {
				continue
			}

			result, terr := h.tools.ExecuteTool(ctx, snapshot, chunk.ToolName, chunk.ToolArgs)
			resultChunk := streamproc.Chunk{Kind: streamproc.ChunkToolResult, ToolCallID: chunk.ToolCallID, ToolName: chunk.ToolName}
			switch {
			case terr != nil:
				resultChunk.ToolResultValue = map[string]any{"error": terr.Error()}
			case result.DispatchedWorkflow != nil:
				resultChunk.ToolResultValue = *result.DispatchedWorkflow
			default:
				resultChunk.ToolResultValue = result.Value
			}
			if !yield(resultChunk, nil) {
				return
			}
		}
	}
}

func textOf(parts []eventbus.Part) string {
	for _, p := range parts {
		if p.Kind == "text" {
			return p.Text
		}
	}
	return ""
}

func textOfEventbus(parts []eventbus.Part) string { return textOf(parts) }

func toSessionParts(parts []eventbus.Part) []session.Part {
	out := make([]session.Part, len(parts))
	for i, p := range parts {
		out[i] = session.Part{Kind: p.Kind, Text: p.Text, Data: p.Data, MimeType: p.MimeType}
	}
	return out
}

func fromEventbusParts(parts []eventbus.Part) []session.Part { return toSessionParts(parts) }
