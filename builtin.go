package guardrail

import (
	"context"

	"github.com/skosovsky/guardrail/toolkits/calculator"
	"github.com/skosovsky/guardrail/toolkits/search"
)

// NewCalculatorTool wraps calculator.Calculate as a Tool ({expression} -> {result}).
func NewCalculatorTool(opts ...ToolOption) (Tool, error) {
	return NewTool(calculator.Name, calculator.Description,
		func(_ context.Context, args calculator.Args) (calculator.Output, error) {
			v, err := calculator.Calculate(args.Expression)
			if err != nil {
				return calculator.Output{}, err
			}
			return calculator.Output{Result: v}, nil
		}, opts...)
}

// NewSearchTool wraps search.Search as a Tool ({query} -> {results: [{snippet, source}]}).
func NewSearchTool(opts ...ToolOption) (Tool, error) {
	return NewTool(search.Name, search.Description,
		func(_ context.Context, args search.Args) (search.Output, error) {
			return search.Output{Results: search.Search(args.Query)}, nil
		}, opts...)
}

// NewBuiltinRegistry returns a Registry holding exactly the calculator and search tools.
func NewBuiltinRegistry(opts ...RegistryOption) (*Registry, error) {
	calc, err := NewCalculatorTool()
	if err != nil {
		return nil, err
	}
	srch, err := NewSearchTool()
	if err != nil {
		return nil, err
	}
	reg := NewRegistry(opts...)
	reg.Register(calc)
	reg.Register(srch)
	return reg, nil
}
