package guardrail

import (
	"errors"
	"strings"
)

// ToolName identifies one of the fixed deterministic tools a route may select.
// The set is closed: anything that is not calculator or search collapses to ToolNone.
type ToolName string

const (
	ToolCalculator ToolName = "calculator"
	ToolSearch     ToolName = "search"
	ToolNone       ToolName = "none"
)

// ParseToolName maps a raw tag (trimmed, case-insensitive) onto the closed set.
// Unrecognized tags become ToolNone; it never fails.
func ParseToolName(s string) ToolName {
	switch n := ToolName(strings.ToLower(strings.TrimSpace(s))); n {
	case ToolCalculator, ToolSearch:
		return n
	default:
		return ToolNone
	}
}

// Valid reports whether n is one of the three declared tool names.
func (n ToolName) Valid() bool {
	return n == ToolCalculator || n == ToolSearch || n == ToolNone
}

// Citation is a source/snippet pair backing an answer.
type Citation struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// ToolRoute is the strict shape of a routing decision as emitted by the model.
type ToolRoute struct {
	Tool      ToolName `json:"tool" jsonschema:"enum=calculator,enum=search,enum=none"`
	ToolInput string   `json:"tool_input"`
}

// ToolAnswer is the strict shape of the final answer of the tool-aware flow.
type ToolAnswer struct {
	Answer      string         `json:"answer"`
	ToolUsed    ToolName       `json:"tool_used" jsonschema:"enum=calculator,enum=search,enum=none"`
	ToolResults map[string]any `json:"tool_results" jsonschema:"nullable"`
	Citations   []Citation     `json:"citations"`
}

var errNoneWithResults = errors.New("tool_used is none but tool_results or citations are set")

// Validate implements Validatable: an answer that used no tool carries no tool data.
func (a ToolAnswer) Validate() error {
	if a.ToolUsed == ToolNone && (a.ToolResults != nil || len(a.Citations) > 0) {
		return errNoneWithResults
	}
	return nil
}

// ToolResult is the outcome of executing a RouteDecision. ToolUsed == ToolNone
// implies ToolResults is nil and Citations is empty.
type ToolResult struct {
	ToolUsed    ToolName       `json:"tool_used"`
	ToolResults map[string]any `json:"tool_results"`
	Citations   []Citation     `json:"citations"`
}

// noToolResult is the canonical result for ToolNone.
func noToolResult() ToolResult {
	return ToolResult{ToolUsed: ToolNone, Citations: []Citation{}}
}
