// Package llmstream provides a reference aihandler.LLMClient binding over
// google.golang.org/genai (Gemini), grounded on hector's
// pkg/model/gemini/gemini.go generateStream/processStreamChunk. Unlike that
// file, this adapter does not itself run a StreamingAggregator — the
// ring-buffer-of-1 coalescing it used to do now lives in streamproc.Processor
// (§4.4), so this adapter's only job is to turn genai's own chunks into the
// plain, uncoalesced streamproc.Chunk vocabulary.
package llmstream

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/agentcore/agentcore/aihandler"
	"github.com/agentcore/agentcore/streamproc"
	"github.com/agentcore/agentcore/toolregistry"
)

// Config configures a genai-backed LLMClient.
type Config struct {
	APIKey string
	Model  string
}

// Client implements aihandler.LLMClient over the Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llmstream: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("llmstream: failed to create genai client: %w", err)
	}
	return &Client{client: c, model: model}, nil
}

var _ aihandler.LLMClient = (*Client)(nil)

// Stream implements aihandler.LLMClient.
func (c *Client) Stream(ctx context.Context, req aihandler.Request) streamproc.TokenStream {
	contents, systemInstruction := buildContents(req)
	config := buildConfig(systemInstruction, req.Tools)

	return func(yield func(streamproc.Chunk, error) bool) {
		sawReasoning := false
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, config) {
			if err != nil {
				yield(streamproc.Chunk{}, fmt.Errorf("llmstream: gemini streaming error: %w", err))
				return
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				if part.Text != "" {
					kind := streamproc.ChunkTextDelta
					if part.Thought {
						kind = streamproc.ChunkReasoningDelta
						sawReasoning = true
					}
					if !yield(streamproc.Chunk{Kind: kind, Text: part.Text}, nil) {
						return
					}
				}
				if part.FunctionCall != nil {
					id := part.FunctionCall.ID
					if id == "" {
						id = part.FunctionCall.Name
					}
					if !yield(streamproc.Chunk{
						Kind:       streamproc.ChunkToolCall,
						ToolCallID: id,
						ToolName:   part.FunctionCall.Name,
						ToolArgs:   part.FunctionCall.Args,
					}, nil) {
						return
					}
				}
			}
		}
		if sawReasoning {
			if !yield(streamproc.Chunk{Kind: streamproc.ChunkReasoningEnd}, nil) {
				return
			}
		}
		yield(streamproc.Chunk{Kind: streamproc.ChunkTextEnd}, nil)
	}
}

func buildContents(req aihandler.Request) ([]*genai.Content, *genai.Content) {
	var system *genai.Content
	if req.SystemPrompt != "" {
		system = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}, Role: "user"}
	}

	contents := make([]*genai.Content, 0, len(req.History))
	for _, msg := range req.History {
		role := "user"
		if msg.Role == "agent" {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: msg.Content}}})
	}
	return contents, system
}

func buildConfig(system *genai.Content, tools map[string]toolregistry.Tool) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if len(tools) == 0 {
		return cfg
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for name, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        name,
			Description: t.Description,
			Parameters:  schemaToGenai(t.InputSchema),
		})
	}
	cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	return cfg
}

// schemaToGenai projects the internal JSON-schema-equivalent object shape
// (internal/schemautil's output) into genai's own Schema type. Only the
// object/properties/required shape this core ever generates is handled;
// genai's richer schema dialect (enums, nested arrays of objects, etc.) is
// unused here since Tool Registry schemas never need more than that.
func schemaToGenai(schema map[string]any) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	s := &genai.Schema{Type: genai.TypeObject}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if pm, ok := raw.(map[string]any); ok {
				s.Properties[name] = propSchema(pm)
			}
		}
	}
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	return s
}

func propSchema(m map[string]any) *genai.Schema {
	s := &genai.Schema{}
	switch m["type"] {
	case "string":
		s.Type = genai.TypeString
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
	case "object":
		s.Type = genai.TypeObject
	default:
		s.Type = genai.TypeString
	}
	if desc, ok := m["description"].(string); ok {
		s.Description = desc
	}
	return s
}
