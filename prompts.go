package guardrail

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// Prompt ids of the tool-aware flow.
const (
	PromptToolRouter   = "tool_router"
	PromptToolAnswer   = "tool_answer"
	PromptOutputRepair = "output_repair"
)

// ErrPromptNotFound is returned by PromptRegistry.Get for an unknown id.
var ErrPromptNotFound = errors.New("unknown prompt id")

var (
	promptTitleRe = regexp.MustCompile(`(?m)^PROMPT TITLE:\s*(.+)$`)
	promptVarRe   = regexp.MustCompile(`{{\s*\.([A-Za-z0-9_]+)\s*}}`)
)

// Output types a prompt can ask for.
const (
	OutputJSON = "json"
	OutputText = "text"
)

// PromptMetadata describes a registered prompt.
type PromptMetadata struct {
	ID          string   `json:"id"`
	Version     string   `json:"version"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Variables   []string `json:"input_variables"`
	OutputType  string   `json:"expected_output_type"`
}

// Prompt is a named, versioned template.
type Prompt struct {
	Metadata PromptMetadata
	Text     string
	render   RenderFunc
}

// NewPrompt parses text as a template and derives its metadata: the title from
// the "PROMPT TITLE:" line, the description from the INTENT section, the input
// variables in first-use order and the expected output type.
func NewPrompt(id, version, text string) (*Prompt, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("guardrail: prompt id cannot be empty")
	}
	if strings.TrimSpace(version) == "" {
		return nil, fmt.Errorf("guardrail: prompt %s: version cannot be empty", id)
	}
	render, err := TemplateRenderer(id, text)
	if err != nil {
		return nil, err
	}
	return &Prompt{
		Metadata: PromptMetadata{
			ID:          id,
			Version:     version,
			Title:       promptTitle(id, text),
			Description: promptDescription(text),
			Variables:   promptVariables(text),
			OutputType:  promptOutputType(text),
		},
		Text:   text,
		render: render,
	}, nil
}

// Render executes the template with vars. Missing variables are an error.
func (p *Prompt) Render(vars map[string]any) (string, error) {
	return p.render(vars)
}

// LogContext identifies the prompt in audit records. Model fields are left empty.
func (p *Prompt) LogContext() LogContext {
	return LogContext{Prompt: p.Metadata.ID, PromptVersion: p.Metadata.Version}
}

func promptTitle(id, text string) string {
	if m := promptTitleRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// promptDescription returns the lines under the INTENT header up to the next
// all-caps header line.
func promptDescription(text string) string {
	lines := strings.Split(text, "\n")
	start := slices.IndexFunc(lines, func(l string) bool { return strings.TrimSpace(l) == "INTENT" })
	if start < 0 {
		return "No description provided."
	}
	var body []string
	for _, l := range lines[start+1:] {
		s := strings.TrimSpace(l)
		if s != "" && s == strings.ToUpper(s) {
			break
		}
		body = append(body, l)
	}
	if d := strings.TrimSpace(strings.Join(body, "\n")); d != "" {
		return d
	}
	return "No description provided."
}

func promptVariables(text string) []string {
	vars := []string{}
	for _, m := range promptVarRe.FindAllStringSubmatch(text, -1) {
		if !slices.Contains(vars, m[1]) {
			vars = append(vars, m[1])
		}
	}
	return vars
}

func promptOutputType(text string) string {
	if strings.Contains(text, "REQUIRED JSON SCHEMA") || strings.Contains(text, "Output JSON only") {
		return OutputJSON
	}
	return OutputText
}

// PromptRegistry holds prompts by id. Safe for concurrent use.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]*Prompt
}

// NewPromptRegistry returns an empty registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{prompts: make(map[string]*Prompt)}
}

// DefaultPromptRegistry holds the flow's router, answer and repair prompts at
// DefaultPromptVersion.
func DefaultPromptRegistry() (*PromptRegistry, error) {
	r := NewPromptRegistry()
	for _, p := range []struct{ id, text string }{
		{PromptToolRouter, DefaultRoutePrompt},
		{PromptToolAnswer, DefaultAnswerPrompt},
		{PromptOutputRepair, DefaultRepairPrompt},
	} {
		if _, err := r.Register(p.id, DefaultPromptVersion, p.text); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register parses text and stores it under id, replacing any previous prompt
// with that id.
func (r *PromptRegistry) Register(id, version, text string) (*Prompt, error) {
	p, err := NewPrompt(id, version, text)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[id] = p
	return p, nil
}

// Get returns the prompt registered under id.
func (r *PromptRegistry) Get(id string) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPromptNotFound, id)
	}
	return p, nil
}

// Has reports whether id is registered.
func (r *PromptRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.prompts[id]
	return ok
}

// IDs returns the registered ids, sorted.
func (r *PromptRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.prompts))
	for id := range r.prompts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Metadata returns the metadata of every prompt, sorted by id.
func (r *PromptRegistry) Metadata() []PromptMetadata {
	ids := r.IDs()
	out := make([]PromptMetadata, 0, len(ids))
	for _, id := range ids {
		if p, err := r.Get(id); err == nil {
			out = append(out, p.Metadata)
		}
	}
	return out
}
