package guardrail

import (
	"context"
	"fmt"
	"strings"
	"text/template"
)

// ModelFunc is a single blocking completion call: prompt text in, model text out.
type ModelFunc func(ctx context.Context, prompt string) (string, error)

// RenderFunc turns invocation inputs into prompt text.
type RenderFunc func(vars map[string]any) (string, error)

// Chain composes a prompt renderer and a model into an InvokeFunc.
func Chain(render RenderFunc, model ModelFunc) InvokeFunc {
	return func(ctx context.Context, inputs map[string]any) (string, error) {
		prompt, err := render(inputs)
		if err != nil {
			return "", fmt.Errorf("render prompt: %w", err)
		}
		return model(ctx, prompt)
	}
}

// TemplateRenderer parses text as a text/template and renders it with the inputs
// as dot. Referencing an input that was not supplied is an error.
func TemplateRenderer(name, text string) (RenderFunc, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	return func(vars map[string]any) (string, error) {
		var b strings.Builder
		if err := tmpl.Execute(&b, vars); err != nil {
			return "", err
		}
		return b.String(), nil
	}, nil
}
