package model

import (
	"time"
)

// StreamEventType identifies a variant of the normalized client-facing event
// protocol. Clients must tolerate unknown types.
type StreamEventType string

const (
	StreamEventModeStatus    StreamEventType = "mode_status"
	StreamEventProgress      StreamEventType = "progress"
	StreamEventTextDelta     StreamEventType = "text_delta"
	StreamEventToolExecution StreamEventType = "tool_execution"
	StreamEventError         StreamEventType = "error"
	StreamEventComplete      StreamEventType = "complete"
)

// Stage names for progress events.
const (
	StageConnecting = "connecting"
	StageStreaming  = "streaming"
	StageFinalizing = "finalizing"
)

// ToolExecutionStatus is the sub-status of a tool_execution event.
type ToolExecutionStatus string

const (
	ToolStatusStarting  ToolExecutionStatus = "starting"
	ToolStatusExecuting ToolExecutionStatus = "executing"
	ToolStatusCompleted ToolExecutionStatus = "completed"
	ToolStatusError     ToolExecutionStatus = "error"
)

// TextDelta carries one text fragment. Clients reassemble purely by append
// order, so each delta must be emitted exactly once in arrival order.
type TextDelta struct {
	Text string `json:"text"`
}

// StreamEvent is the tagged union emitted from the orchestrator to the client.
// Only the fields relevant to Type are populated; everything else is omitted
// from the wire encoding.
type StreamEvent struct {
	Type StreamEventType `json:"type"`
	Mode Mode            `json:"mode,omitempty"`

	// mode_status
	ToolsAvailable *int       `json:"tools_available,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`

	// progress
	Stage string `json:"stage,omitempty"`

	// text_delta
	Delta *TextDelta `json:"delta,omitempty"`

	// tool_execution
	Tool   string              `json:"tool,omitempty"`
	Status ToolExecutionStatus `json:"status,omitempty"`
	Result any                 `json:"result,omitempty"`

	// error (also the error field of tool_execution)
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`

	// complete
	ToolsExecuted *int `json:"tools_executed,omitempty"`
	MessageLength *int `json:"message_length,omitempty"`
}

// ModeStatusEvent announces the active mode and how many tools it exposes.
func ModeStatusEvent(mode Mode, toolsAvailable int) StreamEvent {
	now := time.Now()
	return StreamEvent{
		Type:           StreamEventModeStatus,
		Mode:           mode,
		ToolsAvailable: &toolsAvailable,
		Timestamp:      &now,
	}
}

// ProgressEvent reports an orchestration stage transition.
func ProgressEvent(stage string, mode Mode) StreamEvent {
	return StreamEvent{Type: StreamEventProgress, Stage: stage, Mode: mode}
}

// TextDeltaEvent wraps one streamed text fragment.
func TextDeltaEvent(text string, mode Mode) StreamEvent {
	return StreamEvent{Type: StreamEventTextDelta, Delta: &TextDelta{Text: text}, Mode: mode}
}

// ToolExecutionEvent reports a tool invocation status change.
func ToolExecutionEvent(tool string, status ToolExecutionStatus, mode Mode) StreamEvent {
	return StreamEvent{Type: StreamEventToolExecution, Tool: tool, Status: status, Mode: mode}
}

// ErrorEvent carries a curated user-facing error with an optional remedy.
func ErrorEvent(message, suggestion string, mode Mode) StreamEvent {
	return StreamEvent{Type: StreamEventError, Error: message, Suggestion: suggestion, Mode: mode}
}

// CompleteEvent is the terminal success event with aggregate counters.
func CompleteEvent(mode Mode, toolsExecuted, messageLength int) StreamEvent {
	return StreamEvent{
		Type:          StreamEventComplete,
		Mode:          mode,
		ToolsExecuted: &toolsExecuted,
		MessageLength: &messageLength,
	}
}
