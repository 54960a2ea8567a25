// Package tool provides the tool registry and executor for model-invoked
// operations. Each tool declares a typed, validated input; dispatch never
// branches on untyped payloads.
package tool

import (
	"context"

	"github.com/craftpad-ai/artifact-platform/internal/llm"
)

// Input is a tool's decoded input payload. Every tool declares its own
// concrete input type and validates it before the handler runs.
type Input interface {
	Validate() error
}

// Scope carries the request-scoped identifiers a tool handler may need when
// writing side effects.
type Scope struct {
	TenantID       string
	ConversationID string
}

// Handler executes a tool against its decoded, validated input.
type Handler func(ctx context.Context, scope Scope, input Input) (any, error)

// Tool describes one registered operation.
type Tool struct {
	Name        string
	Description string

	// ReadOnly marks pure inspection tools eligible for the chat-mode
	// allow-list.
	ReadOnly bool

	// InputSchema is the JSON schema advertised to the model provider.
	InputSchema map[string]any

	// NewInput returns a fresh pointer to the tool's input type for decoding.
	NewInput func() Input

	Handler Handler
}

// Def converts the tool into the adapter manifest entry.
func (t *Tool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
}
