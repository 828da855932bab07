package guardrail

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	v, err := ParseJSON(`{"a": 1.50, "b": [true, null]}`)
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, json.Number("1.50"), m["a"], "numbers keep their textual form")
	assert.Equal(t, []any{true, nil}, m["b"])
}

func TestParseJSON_Errors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
		line   int
		column int
	}{
		{"empty", "", "invalid JSON: expecting value (line 1, column 1)", 1, 1},
		{"bad value", `{"a": }`, "", 1, 7},
		{"second line", "{\n  \"a\": x\n}", "", 2, 8},
		{"trailing data", `{"a": 1} {"b": 2}`, "invalid JSON: extra data after top-level value (line 1, column 10)", 1, 10},
		{"trailing garbage", "{\"a\": 1}\n\n  x", "invalid JSON: extra data after top-level value (line 3, column 3)", 3, 3},
		{"trailing close brace", `{"a": 1}}`, "", 1, 9},
		{"prose", `Sure! Here is the JSON: {"a": 1}`, "", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON(tt.raw)
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, KindParse, ve.Kind)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, ve.Reason, "invalid JSON: ")
			if tt.reason != "" {
				assert.Equal(t, tt.reason, ve.Reason)
			}
			assert.Equal(t, tt.line, ve.Line)
			assert.Equal(t, tt.column, ve.Column)
		})
	}
}

const validAnswer = `{"answer":"4","tool_used":"calculator","tool_results":{"result":4},"citations":[]}`

func TestValidateToolAnswer(t *testing.T) {
	a, err := ValidateToolAnswer(validAnswer)
	require.NoError(t, err)
	assert.Equal(t, "4", a.Answer)
	assert.Equal(t, ToolCalculator, a.ToolUsed)
	assert.Equal(t, map[string]any{"result": 4.0}, a.ToolResults)
	assert.Equal(t, []Citation{}, a.Citations)

	b, err := ValidateToolAnswer(validAnswer)
	require.NoError(t, err)
	assert.Equal(t, a, b, "validation is deterministic")
}

func TestValidateToolAnswer_Search(t *testing.T) {
	a, err := ValidateToolAnswer(`{
		"answer": "CPI and PCE",
		"tool_used": "search",
		"tool_results": {"results": [{"snippet": "s", "source": "local:macro-001"}]},
		"citations": [{"source": "local:macro-001", "snippet": "s"}]
	}`)
	require.NoError(t, err)
	require.Len(t, a.Citations, 1)
	assert.Equal(t, "local:macro-001", a.Citations[0].Source)
}

func TestValidateToolAnswer_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"extra field", `{"answer":"4","tool_used":"none","tool_results":null,"citations":[],"confidence":1}`},
		{"missing field", `{"answer":"4","tool_used":"none","tool_results":null}`},
		{"numeric answer", `{"answer":4,"tool_used":"none","tool_results":null,"citations":[]}`},
		{"unknown tool", `{"answer":"4","tool_used":"weather","tool_results":null,"citations":[]}`},
		{"results not object", `{"answer":"4","tool_used":"calculator","tool_results":"4","citations":[]}`},
		{"citation extra field", `{"answer":"4","tool_used":"search","tool_results":{},"citations":[{"source":"s","snippet":"x","url":"u"}]}`},
		{"none with results", `{"answer":"4","tool_used":"none","tool_results":{"result":4},"citations":[]}`},
		{"none with citations", `{"answer":"4","tool_used":"none","tool_results":null,"citations":[{"source":"s","snippet":"x"}]}`},
		{"array", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateToolAnswer(tt.raw)
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, KindSchema, ve.Kind)
			assert.Contains(t, ve.Error(), "schema validation failed for tool_answer")
		})
	}
}

func TestValidateToolRoute(t *testing.T) {
	r, err := ValidateToolRoute(`{"tool":"search","tool_input":"llm healthcare"}`)
	require.NoError(t, err)
	assert.Equal(t, ToolRoute{Tool: ToolSearch, ToolInput: "llm healthcare"}, r)

	_, err = ValidateToolRoute(`{"tool":"Calculator","tool_input":"2+2"}`)
	require.Error(t, err, "strict validation does not normalize case")

	_, err = ValidateToolRoute(`{"tool":"calculator","tool_input":4}`)
	require.Error(t, err, "numbers are not coerced to text")
}

func TestShape_ValidateValue(t *testing.T) {
	s, err := ToolRouteShape()
	require.NoError(t, err)
	r, err := s.ValidateValue(map[string]any{"tool": "none", "tool_input": ""})
	require.NoError(t, err)
	assert.Equal(t, ToolNone, r.Tool)

	_, err = s.ValidateValue(map[string]any{"tool": "none"})
	require.Error(t, err)

	_, err = s.ValidateValue(func() {})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestValidatable_NotImplemented(t *testing.T) {
	type Args struct {
		Low  int `json:"low"`
		High int `json:"high"`
	}
	args := &Args{Low: 10, High: 5}
	// Args does not implement Validatable; validateCustom should no-op
	err := validateCustom(args)
	assert.NoError(t, err)
}

// validatableArgs implements Validatable for tests.
type validatableArgs struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

func (a validatableArgs) Validate() error {
	if a.Low > a.High {
		return errors.New("low must be <= high")
	}
	return nil
}

func TestValidatable_Implemented(t *testing.T) {
	tool, err := NewTool("validatable_tool", "desc", func(_ context.Context, _ validatableArgs) (struct{ Ok bool }, error) {
		return struct{ Ok bool }{Ok: true}, nil
	})
	require.NoError(t, err)
	res, err := tool.Execute(context.Background(), []byte(`{"low":1,"high":10}`))
	require.NoError(t, err)
	require.NotNil(t, res)
	// Invalid: low > high, Validatable.Validate returns error
	res, err = tool.Execute(context.Background(), []byte(`{"low":10,"high":5}`))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, IsClientError(err))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "low must be <= high")
}

// pointerValidatableArgs implements Validatable with pointer receiver only.
type pointerValidatableArgs struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (a *pointerValidatableArgs) Validate() error {
	if a.Min > a.Max {
		return errors.New("min must be <= max")
	}
	return nil
}

func TestValidatable_PointerReceiver(t *testing.T) {
	s, err := NewShape[pointerValidatableArgs]()
	require.NoError(t, err)
	v, err := s.Validate(`{"min":1,"max":10}`)
	require.NoError(t, err)
	assert.Equal(t, 10, v.Max)
	_, err = s.Validate(`{"min":10,"max":5}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

// TestValidatable_PointerT ensures Shape[*T] runs Validatable when T is a pointer type.
func TestValidatable_PointerT(t *testing.T) {
	s, err := NewShape[*pointerValidatableArgs]()
	require.NoError(t, err)
	v, err := s.Validate(`{"min":1,"max":10}`)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 1, v.Min)
	_, err = s.Validate(`{"min":10,"max":5}`)
	require.Error(t, err)
}

// countValidatable counts Validate() calls.
type countValidatable struct {
	X int `json:"x"`
}

var layer2ValidateCallCount int

func (c countValidatable) Validate() error {
	layer2ValidateCallCount++
	return nil
}

func TestValidatable_NotCalledTwice(t *testing.T) {
	layer2ValidateCallCount = 0
	defer func() { layer2ValidateCallCount = 0 }()
	s, err := NewShape[countValidatable]()
	require.NoError(t, err)
	_, err = s.Validate(`{"x": 1}`)
	require.NoError(t, err)
	assert.Equal(t, 1, layer2ValidateCallCount, "Validate() must be called exactly once")
}
