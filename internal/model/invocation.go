package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// InvocationStatus is the lifecycle state of an in-flight tool invocation.
// Transitions are monotonic: pending -> executing -> (completed | error).
type InvocationStatus string

const (
	InvocationPending   InvocationStatus = "pending"
	InvocationExecuting InvocationStatus = "executing"
	InvocationCompleted InvocationStatus = "completed"
	InvocationError     InvocationStatus = "error"
)

// ToolInvocation tracks one model-initiated tool call for the duration of a
// stream. It is never persisted as-is; a summary lands in message metadata.
type ToolInvocation struct {
	ID        string           `json:"id"`
	Tool      string           `json:"tool"`
	Input     json.RawMessage  `json:"input,omitempty"`
	Status    InvocationStatus `json:"status"`
	Result    any              `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   *time.Time       `json:"ended_at,omitempty"`
}

// Transition advances the invocation status, enforcing monotonicity.
func (ti *ToolInvocation) Transition(next InvocationStatus) error {
	valid := false
	switch ti.Status {
	case InvocationPending:
		valid = next == InvocationExecuting
	case InvocationExecuting:
		valid = next == InvocationCompleted || next == InvocationError
	}
	if !valid {
		return fmt.Errorf("invalid invocation transition %s -> %s", ti.Status, next)
	}
	ti.Status = next
	if next == InvocationCompleted || next == InvocationError {
		now := time.Now()
		ti.EndedAt = &now
	}
	return nil
}
