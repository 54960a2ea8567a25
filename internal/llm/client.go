// Package llm provides provider-neutral streaming access to language models.
//
// A turn is consumed as a pull-based stream of typed events rather than
// nested callbacks: the caller iterates Recv with ordinary control flow and
// cancels through the context it supplied when opening the stream.
package llm

import (
	"context"
	"encoding/json"
)

// ChatMessage represents a chat message sent to the provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDef describes one tool offered to the model for a turn.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// TurnRequest is a streaming completion request for one conversation turn.
type TurnRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	Tools       []ToolDef
	MaxTokens   int
	Temperature float64
}

// EventKind identifies a variant of the adapter event stream.
type EventKind string

const (
	// EventTextDelta carries one fragment of assistant text.
	EventTextDelta EventKind = "text_delta"
	// EventToolCallStart signals the model has begun emitting a tool call.
	EventToolCallStart EventKind = "tool_call_start"
	// EventToolCallReady signals the tool call's input payload is complete.
	EventToolCallReady EventKind = "tool_call_ready"
	// EventTurnEnd is the final event of a turn, before Recv returns io.EOF.
	EventTurnEnd EventKind = "turn_end"
)

// ToolCall identifies one model-initiated tool invocation.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// TurnEnd carries end-of-turn accounting.
type TurnEnd struct {
	StopReason string
	TokensIn   int
	TokensOut  int
}

// Event is one unit of the adapter stream. Exactly one payload field is set,
// selected by Kind.
type Event struct {
	Kind     EventKind
	Text     string
	ToolCall *ToolCall
	End      *TurnEnd
}

// TurnStream yields adapter events in provider emission order.
type TurnStream interface {
	// Recv returns the next event. After the turn-end event it returns
	// io.EOF. Any other error is terminal for the stream.
	Recv() (Event, error)

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// Client is the interface for LLM providers.
type Client interface {
	// StreamTurn opens a streaming completion for one turn.
	StreamTurn(ctx context.Context, req *TurnRequest) (TurnStream, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return NewAnthropicClient(apiKey)
	}
}
