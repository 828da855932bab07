// Package testutil provides test helpers for guardrail (MockTool, scripted models).
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/skosovsky/guardrail"
)

// MockTool is a configurable Tool implementation for tests.
type MockTool struct {
	NameVal   string
	DescVal   string
	InputVal  map[string]any
	OutputVal map[string]any
	ExecuteFn func(ctx context.Context, args []byte) ([]byte, error)
}

// Name returns the tool name.
func (m *MockTool) Name() string {
	if m.NameVal != "" {
		return m.NameVal
	}
	return "mock"
}

// Description returns the tool description.
func (m *MockTool) Description() string {
	return m.DescVal
}

// InputSchema returns the input schema (or empty map).
func (m *MockTool) InputSchema() map[string]any {
	if m.InputVal != nil {
		return m.InputVal
	}
	return map[string]any{}
}

// OutputSchema returns the output schema (or empty map).
func (m *MockTool) OutputSchema() map[string]any {
	if m.OutputVal != nil {
		return m.OutputVal
	}
	return map[string]any{}
}

// Execute runs ExecuteFn if set, otherwise returns an empty JSON object.
func (m *MockTool) Execute(ctx context.Context, args []byte) ([]byte, error) {
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, args)
	}
	return []byte(`{}`), nil
}

// Ensure MockTool implements Tool.
var _ guardrail.Tool = (*MockTool)(nil)

// ErrScriptExhausted is returned when a scripted collaborator is called more often
// than it has replies.
var ErrScriptExhausted = errors.New("testutil: script exhausted")

// Reply is one scripted response: Text, or Err when set.
type Reply struct {
	Text string
	Err  error
}

// Script hands out replies in order and records every call. Safe for concurrent use.
type Script struct {
	mu      sync.Mutex
	replies []Reply
	calls   []any
}

// NewScript returns a Script replying with texts in order.
func NewScript(texts ...string) *Script {
	s := &Script{}
	for _, t := range texts {
		s.replies = append(s.replies, Reply{Text: t})
	}
	return s
}

// Add appends replies.
func (s *Script) Add(replies ...Reply) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
	return s
}

func (s *Script) next(call any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	if len(s.replies) == 0 {
		return "", ErrScriptExhausted
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.Text, r.Err
}

// Calls returns the number of calls so far.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Prompts returns the prompts passed to Model, in call order.
func (s *Script) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if p, ok := c.(string); ok {
			out = append(out, p)
		}
	}
	return out
}

// Inputs returns the inputs passed to Invoke, in call order.
func (s *Script) Inputs() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, c := range s.calls {
		if in, ok := c.(map[string]any); ok {
			out = append(out, in)
		}
	}
	return out
}

// Invoke returns the script as a guardrail.InvokeFunc.
func (s *Script) Invoke() guardrail.InvokeFunc {
	return func(_ context.Context, inputs map[string]any) (string, error) {
		return s.next(inputs)
	}
}

// Model returns the script as a guardrail.ModelFunc.
func (s *Script) Model() guardrail.ModelFunc {
	return func(_ context.Context, prompt string) (string, error) {
		return s.next(prompt)
	}
}

// MemorySink is an in-memory guardrail.Sink. Err, when set, fails every append.
type MemorySink struct {
	mu      sync.Mutex
	records []guardrail.AuditRecord
	Err     error
}

// Append implements guardrail.Sink.
func (m *MemorySink) Append(_ context.Context, rec guardrail.AuditRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.records = append(m.records, rec)
	return "memory", nil
}

// Records returns a copy of the appended records.
func (m *MemorySink) Records() []guardrail.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]guardrail.AuditRecord(nil), m.records...)
}

var _ guardrail.Sink = (*MemorySink)(nil)
