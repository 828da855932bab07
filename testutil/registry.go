package testutil

import (
	"time"

	"github.com/skosovsky/guardrail"
)

// NewTestRegistry returns a Registry with long timeout and panic recovery enabled,
// suitable for tests.
func NewTestRegistry(tools ...guardrail.Tool) *guardrail.Registry {
	reg := guardrail.NewRegistry(
		guardrail.WithDefaultTimeout(30*time.Second),
		guardrail.WithRecoverPanics(true),
	)
	for _, t := range tools {
		reg.Register(t)
	}
	return reg
}

// NewTestRouter returns a Router over the builtin calculator and search tools.
func NewTestRouter() (*guardrail.Router, error) {
	reg, err := guardrail.NewBuiltinRegistry(guardrail.WithDefaultTimeout(30 * time.Second))
	if err != nil {
		return nil, err
	}
	return guardrail.NewRouter(reg, nil), nil
}
