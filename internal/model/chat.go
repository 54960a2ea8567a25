package model

// ChatRequest is one turn's client request to the stream orchestrator.
type ChatRequest struct {
	// Message is required and must be non-empty after trimming.
	Message string `json:"message"`

	// ConversationID is optional; absence triggers conversation creation.
	ConversationID string `json:"conversationId,omitempty"`

	// Mode defaults to chat, the more restrictive mode.
	Mode string `json:"mode,omitempty"`

	// Optional overrides, consumed only when present.
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	AllowedTools []string `json:"allowedTools,omitempty"`
	Model        string   `json:"model,omitempty"`
}
