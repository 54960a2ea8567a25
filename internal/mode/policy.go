// Package mode enforces per-mode tool capability restrictions.
//
// Chat mode is read-only: only a fixed allow-list of pure inspection tools is
// permitted. Agent mode permits every registered tool. The policy holds no
// mutable state and is safe to share across concurrent streams.
package mode

import (
	"fmt"

	"github.com/craftpad-ai/artifact-platform/internal/model"
)

// Denial is a user-displayable explanation for a blocked tool call.
type Denial struct {
	Reason     string `json:"reason"`
	Suggestion string `json:"suggestion"`
}

// Policy decides whether a tool may run under a given mode.
type Policy struct {
	readOnly map[string]struct{}
}

// NewPolicy builds a policy. readOnlyTools is the fixed set of pure
// inspection tools permitted in chat mode.
func NewPolicy(readOnlyTools []string) *Policy {
	ro := make(map[string]struct{}, len(readOnlyTools))
	for _, name := range readOnlyTools {
		ro[name] = struct{}{}
	}
	return &Policy{readOnly: ro}
}

// IsAllowed reports whether the named tool may run under m.
//
// The model cannot be trusted to self-censor, so the orchestrator calls this
// before every dispatch, including tool calls surfaced mid-stream.
func (p *Policy) IsAllowed(tool string, m model.Mode) bool {
	if m == model.ModeAgent {
		return true
	}
	_, ok := p.readOnly[tool]
	return ok
}

// ExplainDenial produces the stable user-facing reason and remedy for a
// blocked tool call. Denial is a regular decision, not an error.
func (p *Policy) ExplainDenial(tool string, m model.Mode) Denial {
	return Denial{
		Reason:     fmt.Sprintf("Tool %q is not allowed in %s mode", tool, m),
		Suggestion: "Switch to agent mode to let the assistant modify artifacts",
	}
}

// Allowed filters a list of tool names down to those permitted under m,
// preserving order. It is used to build the adapter tool manifest.
func (p *Policy) Allowed(tools []string, m model.Mode) []string {
	if m == model.ModeAgent {
		return tools
	}
	out := make([]string, 0, len(tools))
	for _, name := range tools {
		if p.IsAllowed(name, m) {
			out = append(out, name)
		}
	}
	return out
}
