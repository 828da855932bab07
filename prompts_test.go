package guardrail

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrompt_Metadata(t *testing.T) {
	text := "PROMPT TITLE: Summarizer\n\nINTENT\nSummarize the input.\nKeep it short.\n\nINPUT\n{{.input}} and {{ .style }} then {{.input}}\n\nOutput JSON only.\n"
	p, err := NewPrompt("summarize_v2", "v2", text)
	require.NoError(t, err)
	assert.Equal(t, PromptMetadata{
		ID:          "summarize_v2",
		Version:     "v2",
		Title:       "Summarizer",
		Description: "Summarize the input.\nKeep it short.",
		Variables:   []string{"input", "style"},
		OutputType:  OutputJSON,
	}, p.Metadata)
	assert.Equal(t, text, p.Text)
	assert.Equal(t, LogContext{Prompt: "summarize_v2", PromptVersion: "v2"}, p.LogContext())

	out, err := p.Render(map[string]any{"input": "a", "style": "b"})
	require.NoError(t, err)
	assert.Contains(t, out, "a and b then a")
	_, err = p.Render(map[string]any{"input": "a"})
	require.Error(t, err)
}

func TestNewPrompt_Fallbacks(t *testing.T) {
	p, err := NewPrompt("free_form_chat", "v1", "Hello {{.name}}")
	require.NoError(t, err)
	assert.Equal(t, "Free Form Chat", p.Metadata.Title)
	assert.Equal(t, "No description provided.", p.Metadata.Description)
	assert.Equal(t, OutputText, p.Metadata.OutputType)
	assert.Equal(t, []string{"name"}, p.Metadata.Variables)

	p, err = NewPrompt("static", "v1", "no variables")
	require.NoError(t, err)
	assert.Equal(t, []string{}, p.Metadata.Variables)
}

func TestNewPrompt_Errors(t *testing.T) {
	_, err := NewPrompt("", "v1", "x")
	require.Error(t, err)
	_, err = NewPrompt("id", " ", "x")
	require.Error(t, err)
	_, err = NewPrompt("id", "v1", "{{.x")
	require.Error(t, err)
}

func TestDefaultPromptRegistry(t *testing.T) {
	r, err := DefaultPromptRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{PromptOutputRepair, PromptToolAnswer, PromptToolRouter}, r.IDs())

	router, err := r.Get(PromptToolRouter)
	require.NoError(t, err)
	assert.Equal(t, "Tool Router", router.Metadata.Title)
	assert.Equal(t, []string{"tools", "input"}, router.Metadata.Variables)
	assert.Equal(t, OutputJSON, router.Metadata.OutputType)
	assert.Equal(t, "Decide whether one deterministic tool is needed to answer the user question.", router.Metadata.Description)

	answer, err := r.Get(PromptToolAnswer)
	require.NoError(t, err)
	assert.Equal(t, []string{"input", "tool_output", "format_instructions"}, answer.Metadata.Variables)
	assert.Equal(t, OutputJSON, answer.Metadata.OutputType)

	repair, err := r.Get(PromptOutputRepair)
	require.NoError(t, err)
	assert.Equal(t, []string{"raw_output", "error", "format_instructions"}, repair.Metadata.Variables)

	for _, m := range r.Metadata() {
		assert.Equal(t, DefaultPromptVersion, m.Version, m.ID)
	}
}

func TestPromptRegistry_GetHas(t *testing.T) {
	r := NewPromptRegistry()
	assert.False(t, r.Has("greet"))
	_, err := r.Get("greet")
	require.ErrorIs(t, err, ErrPromptNotFound)
	assert.Contains(t, err.Error(), "greet")

	_, err = r.Register("greet", "v1", "hi {{.name}}")
	require.NoError(t, err)
	assert.True(t, r.Has("greet"))

	_, err = r.Register("greet", "v2", "hello {{.name}}")
	require.NoError(t, err)
	p, err := r.Get("greet")
	require.NoError(t, err)
	assert.Equal(t, "v2", p.Metadata.Version, "re-registering replaces the prompt")
	assert.Equal(t, []string{"greet"}, r.IDs())

	_, err = r.Register("broken", "v1", "{{.name")
	require.Error(t, err)
	assert.False(t, r.Has("broken"))
}

func TestPromptRegistry_Concurrent(t *testing.T) {
	r := NewPromptRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			_, err := r.Register(id, "v1", "x")
			assert.NoError(t, err)
			assert.True(t, r.Has(id))
			_ = r.Metadata()
		}()
	}
	wg.Wait()
	assert.Len(t, r.IDs(), 8)
}
