// Package guardrail makes LLM output reliable enough to consume programmatically.
//
// # Overview
//
// Models return text. This package turns that text into typed, validated Go values
// or a clear, audited failure: parse → validate (against the same JSON Schema shown
// to the model in the format instructions) → repair with the error message → audit.
//
// Pipeline: question → route prompt → NormalizeRouteJSON → Router.Execute (calculator
// or search through a Registry) → answer prompt → Run[ToolAnswer] (validate, repair)
// → one AuditRecord per run.
//
// # Key concepts
//
//   - Single Source of Truth: struct tags drive the JSON Schema in FormatInstructions
//     and the validation of model output (Shape).
//   - Lenient routing: any routing value normalizes to a safe RouteDecision, never an error.
//   - Bounded repair: Run validates at most MaxRetries+1 times and writes exactly one
//     audit record, success or failure.
//   - Tool failures are data: Router.Execute reports {"error": ...} instead of failing.
//
// # Example
//
//	reg, err := guardrail.NewBuiltinRegistry()
//	if err != nil { ... }
//	flow, err := guardrail.NewFlow(model, guardrail.NewRouter(reg, nil))
//	if err != nil { ... }
//	res, err := flow.Ask(ctx, "What is 15% of 80?")
//	fmt.Println(res.Answer.Answer)
package guardrail
