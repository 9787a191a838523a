package domain

import "context"

// Tool is the capability contract every tool satisfies. Tools are
// stateless, registered once at startup, and own no conversation state.
//
// Execute receives an untyped input map (extracted from model text, not
// built by a schema-aware caller). The registry validates and coerces it
// against Parameters() before Execute runs; a tool may additionally decode
// it into its own typed input struct.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a JSON Schema object describing the tool input:
	// {"type":"object","properties":{...},"required":[...]}.
	Parameters() map[string]any
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
}

// ToolCall is a tool invocation request extracted from model output.
// It is not validated against any schema until dispatch.
type ToolCall struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult is the outcome of dispatching one tool call: either an
// output payload or an error message, never both.
type ToolResult struct {
	ToolName string         `json:"tool_name"`
	Output   map[string]any `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Failed reports whether the result is a failure.
func (r ToolResult) Failed() bool { return r.Error != "" }

// Success builds a successful tool result.
func Success(toolName string, output map[string]any) ToolResult {
	return ToolResult{ToolName: toolName, Output: output}
}

// Failure builds a failed tool result.
func Failure(toolName, message string) ToolResult {
	return ToolResult{ToolName: toolName, Error: message}
}

// ParamInfo describes one tool parameter for API consumers.
type ParamInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolInfo is the catalogue entry exposed on the /tools endpoint and
// rendered into the system prompt. Metadata only, no behavior.
type ToolInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []ParamInfo `json:"parameters"`
}
