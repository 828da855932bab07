package guardrail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Default prompts of the tool-aware flow, rendered with TemplateRenderer.
const (
	DefaultRoutePrompt = `PROMPT TITLE: Tool Router

INTENT
Decide whether one deterministic tool is needed to answer the user question.

AVAILABLE TOOLS
{{.tools}}

RULES
- Use "calculator" for arithmetic; tool_input is the expression.
- Use "search" for facts from the local knowledge base; tool_input is the query.
- Otherwise use "none" with an empty tool_input.
- Output JSON only: {"tool": "calculator" | "search" | "none", "tool_input": "..."}

USER QUESTION
{{.input}}
`

	DefaultAnswerPrompt = `PROMPT TITLE: Tool Answer

INTENT
Answer the user question using only the tool output below when a tool was used.

USER QUESTION
{{.input}}

TOOL OUTPUT
{{.tool_output}}

FORMAT
Output JSON only, matching this schema.
{{.format_instructions}}
`

	DefaultRepairPrompt = `PROMPT TITLE: Output Repair

INTENT
Your previous output was rejected. Return a corrected version that fixes the error.

PREVIOUS OUTPUT
{{.raw_output}}

VALIDATION ERROR
{{.error}}

FORMAT
Output JSON only, matching this schema.
{{.format_instructions}}
`
)

// DefaultPromptVersion is the version DefaultPromptRegistry registers the default prompts at.
const DefaultPromptVersion = "v1"

// FlowResult is everything the tool-aware flow produced for one question.
type FlowResult struct {
	Route  RouteDecision
	Tool   ToolResult
	Answer ToolAnswer
}

// Flow is the tool-aware question answering flow: route -> execute tool -> answer
// with schema validation and repair. Prompts may be replaced after NewFlow.
type Flow struct {
	Model        ModelFunc
	Router       *Router
	RoutePrompt  RenderFunc
	AnswerPrompt RenderFunc
	RepairPrompt RenderFunc
	Config       RetryConfig
	Sink         Sink
	LogContext   LogContext
	Logger       *slog.Logger
}

// NewFlow builds a Flow with the prompts of DefaultPromptRegistry and DefaultRetryConfig.
func NewFlow(model ModelFunc, router *Router) (*Flow, error) {
	prompts, err := DefaultPromptRegistry()
	if err != nil {
		return nil, err
	}
	return NewFlowWithPrompts(model, router, prompts)
}

// NewFlowWithPrompts builds a Flow from the PromptToolRouter, PromptToolAnswer and
// PromptOutputRepair prompts of prompts. Audit records name the answer prompt
// and its version.
func NewFlowWithPrompts(model ModelFunc, router *Router, prompts *PromptRegistry) (*Flow, error) {
	if model == nil {
		return nil, errors.New("guardrail: flow needs a model")
	}
	if router == nil {
		return nil, errors.New("guardrail: flow needs a router")
	}
	if prompts == nil {
		return nil, errors.New("guardrail: flow needs a prompt registry")
	}
	route, err := prompts.Get(PromptToolRouter)
	if err != nil {
		return nil, err
	}
	answer, err := prompts.Get(PromptToolAnswer)
	if err != nil {
		return nil, err
	}
	repair, err := prompts.Get(PromptOutputRepair)
	if err != nil {
		return nil, err
	}
	return &Flow{
		Model:        model,
		Router:       router,
		RoutePrompt:  route.Render,
		AnswerPrompt: answer.Render,
		RepairPrompt: repair.Render,
		Config:       DefaultRetryConfig(),
		LogContext:   answer.LogContext(),
		Logger:       slog.Default(),
	}, nil
}

// Ask routes question to a tool, executes it and produces a validated ToolAnswer.
// The routing step is never retried: NormalizeRouteJSON absorbs malformed output.
func (f *Flow) Ask(ctx context.Context, question string) (FlowResult, error) {
	var res FlowResult
	shape, err := ToolAnswerShape()
	if err != nil {
		return res, err
	}
	tools, err := json.Marshal(f.Router.Registry().Specs())
	if err != nil {
		return res, fmt.Errorf("marshal tool specs: %w", err)
	}

	routeText, err := Chain(f.RoutePrompt, f.Model)(ctx, map[string]any{
		"input": question,
		"tools": string(tools),
	})
	if err != nil {
		return res, fmt.Errorf("route: %w", err)
	}
	res.Route = NormalizeRouteJSON(routeText)
	res.Tool = f.Router.Execute(ctx, res.Route)
	f.logger().InfoContext(ctx, "tool routed", "tool", res.Route.Tool, "tool_input", res.Route.ToolInput)

	toolOutput, err := json.Marshal(res.Tool)
	if err != nil {
		return res, fmt.Errorf("marshal tool output: %w", err)
	}
	instructions := shape.FormatInstructions()
	opts := []RunOption{
		WithRepair(Chain(f.RepairPrompt, f.Model)),
		WithRepairContext(map[string]any{"format_instructions": instructions}),
		WithConfig(f.Config),
		WithLogContext(f.LogContext),
		WithLogger(f.logger()),
	}
	if f.Sink != nil {
		opts = append(opts, WithSink(f.Sink))
	}
	res.Answer, err = Run(ctx, Chain(f.AnswerPrompt, f.Model), map[string]any{
		"input":               question,
		"tool_output":         string(toolOutput),
		"format_instructions": instructions,
	}, shape.Validate, opts...)
	return res, err
}

func (f *Flow) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}
