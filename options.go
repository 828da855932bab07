package guardrail

import (
	"context"
	"time"
)

// toolOptions hold optional tool settings.
type toolOptions struct {
	timeout time.Duration
}

// ToolOption configures a tool (e.g. WithTimeout).
type ToolOption func(*toolOptions)

// WithTimeout sets a per-tool timeout; Registry uses it instead of its default.
func WithTimeout(d time.Duration) ToolOption {
	return func(o *toolOptions) {
		o.timeout = d
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	timeout       time.Duration
	recoverPanics bool
	onBefore      func(context.Context, ToolCall)
	onAfter       func(context.Context, ToolCall, CallResult, time.Duration)
}

// WithDefaultTimeout sets the default execution timeout for tools.
func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(o *registryOptions) {
		o.timeout = d
	}
}

// WithRecoverPanics enables panic recovery in Execute (returns SystemError).
func WithRecoverPanics(enable bool) RegistryOption {
	return func(o *registryOptions) {
		o.recoverPanics = enable
	}
}

// WithOnBeforeExecute sets a hook called before each tool execution.
func WithOnBeforeExecute(fn func(context.Context, ToolCall)) RegistryOption {
	return func(o *registryOptions) {
		o.onBefore = fn
	}
}

// WithOnAfterExecute sets a hook called after each tool execution.
func WithOnAfterExecute(fn func(context.Context, ToolCall, CallResult, time.Duration)) RegistryOption {
	return func(o *registryOptions) {
		o.onAfter = fn
	}
}
