package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// ResultKind tags an execution outcome.
type ResultKind string

const (
	ResultOK              ResultKind = "ok"
	ResultValidationError ResultKind = "validation_error"
	ResultUnknownTool     ResultKind = "unknown_tool"
	ResultExecutionError  ResultKind = "execution_error"
)

// Result is the tagged outcome of a tool execution. The executor never lets
// an error escape its boundary; callers branch on Kind.
type Result struct {
	Kind    ResultKind `json:"kind"`
	Payload any        `json:"payload,omitempty"`
	Err     string     `json:"error,omitempty"`
}

// OK reports whether the execution succeeded.
func (r Result) OK() bool {
	return r.Kind == ResultOK
}

func errorResult(kind ResultKind, format string, args ...any) Result {
	return Result{Kind: kind, Err: fmt.Sprintf(format, args...)}
}

// Executor dispatches named tool invocations against the registry.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute runs the named tool against a raw JSON input. The input is decoded
// into the tool's declared type and validated before the handler runs. A
// handler panic is collapsed to an execution error rather than crossing the
// boundary.
func (e *Executor) Execute(ctx context.Context, scope Scope, name string, rawInput json.RawMessage) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = errorResult(ResultExecutionError, "tool %s panicked: %v", name, r)
		}
	}()

	t := e.registry.Get(name)
	if t == nil {
		return errorResult(ResultUnknownTool, "unknown tool: %s", name)
	}

	input := t.NewInput()
	if len(rawInput) > 0 {
		dec := json.NewDecoder(bytes.NewReader(rawInput))
		if err := dec.Decode(input); err != nil {
			return errorResult(ResultValidationError, "invalid input for %s: %v", name, err)
		}
	}
	if err := input.Validate(); err != nil {
		return errorResult(ResultValidationError, "invalid input for %s: %v", name, err)
	}

	payload, err := t.Handler(ctx, scope, input)
	if err != nil {
		return errorResult(ResultExecutionError, "%s failed: %v", name, err)
	}

	return Result{Kind: ResultOK, Payload: payload}
}
