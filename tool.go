package guardrail

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is the contract for a deterministic, LLM-routable instrument.
// It is provider-agnostic (no knowledge of Anthropic, OpenAI, etc.).
type Tool interface {
	Name() string
	Description() string
	// InputSchema returns the JSON Schema the arguments must satisfy.
	InputSchema() map[string]any
	// OutputSchema returns the JSON Schema of the result.
	OutputSchema() map[string]any
	// Execute validates argsJSON, runs the tool and returns the JSON result.
	Execute(ctx context.Context, argsJSON []byte) ([]byte, error)
}

// ToolMetadata is implemented by tools created with NewTool.
// Registry uses Timeout() to override its default execution timeout when set.
type ToolMetadata interface {
	Timeout() time.Duration
}

// ToolSpec is the immutable, exportable description of a registered tool.
type ToolSpec struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"input_schema"`
	OutputSchema map[string]any `json:"output_schema"`
}

// SpecOf describes t as a ToolSpec.
func SpecOf(t Tool) ToolSpec {
	return ToolSpec{
		Name:         t.Name(),
		Description:  t.Description(),
		InputSchema:  t.InputSchema(),
		OutputSchema: t.OutputSchema(),
	}
}

// ToolCall is a single execution request.
type ToolCall struct {
	ID       string
	ToolName string
	Args     json.RawMessage // JSON payload of arguments
}

// CallResult is the outcome of Registry.Execute.
type CallResult struct {
	CallID   string
	ToolName string
	Result   json.RawMessage
	Error    error
}
