// Package calculator evaluates plain arithmetic expressions deterministically.
//
// Supported: numbers, parentheses, + - * / ** and unary minus/plus, plus the
// percent conveniences "N%" (N/100) and "N% of M" ((N/100) * M). Anything else,
// identifiers, calls, strings, comparisons, is rejected rather than evaluated.
package calculator

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// Name and Description identify the tool when it is registered.
const (
	Name        = "calculator"
	Description = "Deterministic arithmetic evaluator for math expressions."
)

var (
	ErrEmptyExpression   = errors.New("expression cannot be empty")
	ErrInvalidExpression = errors.New("invalid expression")
	ErrDivisionByZero    = errors.New("division by zero")
)

// The expr lexer reads // and /* as comments and ^ as power; none of them is
// arithmetic this calculator accepts.
var rejectedTokens = []string{"//", "/*", "^"}

var (
	percentOf = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s*of\s*`)
	percent   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
)

// Args is the tool input.
type Args struct {
	Expression string `json:"expression" jsonschema_description:"Arithmetic expression such as 2+2 or 15% of 80"`
}

// Output is the tool result.
type Output struct {
	Result float64 `json:"result"`
}

// Calculate evaluates expression. Failures wrap ErrEmptyExpression, ErrInvalidExpression
// or ErrDivisionByZero.
func Calculate(expression string) (float64, error) {
	if strings.TrimSpace(expression) == "" {
		return 0, ErrEmptyExpression
	}
	for _, tok := range rejectedTokens {
		if strings.Contains(expression, tok) {
			return 0, fmt.Errorf("%w: %s: unsupported operator %s", ErrInvalidExpression, expression, tok)
		}
	}
	tree, err := parser.Parse(normalize(expression))
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidExpression, expression)
	}
	v, err := eval(tree.Node)
	if err != nil {
		if errors.Is(err, ErrDivisionByZero) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidExpression, expression, err)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s: result is not a finite number", ErrInvalidExpression, expression)
	}
	return v, nil
}

// normalize lower-cases the input and rewrites the percent conveniences into arithmetic.
func normalize(expression string) string {
	s := strings.ToLower(strings.TrimSpace(expression))
	s = percentOf.ReplaceAllString(s, "($1/100) * ")
	return percent.ReplaceAllString(s, "($1/100)")
}

func eval(node ast.Node) (float64, error) {
	switch n := node.(type) {
	case *ast.IntegerNode:
		return float64(n.Value), nil
	case *ast.FloatNode:
		return n.Value, nil
	case *ast.UnaryNode:
		x, err := eval(n.Node)
		if err != nil {
			return 0, err
		}
		switch n.Operator {
		case "-":
			return -x, nil
		case "+":
			return x, nil
		}
		return 0, fmt.Errorf("unsupported operator: %s", n.Operator)
	case *ast.BinaryNode:
		l, err := eval(n.Left)
		if err != nil {
			return 0, err
		}
		r, err := eval(n.Right)
		if err != nil {
			return 0, err
		}
		switch n.Operator {
		case "+":
			return l + r, nil
		case "-":
			return l - r, nil
		case "*":
			return l * r, nil
		case "/":
			if r == 0 {
				return 0, ErrDivisionByZero
			}
			return l / r, nil
		case "**":
			return math.Pow(l, r), nil
		}
		return 0, fmt.Errorf("unsupported operator: %s", n.Operator)
	}
	return 0, fmt.Errorf("unsupported expression node: %T", node)
}
