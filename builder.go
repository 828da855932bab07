package guardrail

import (
	"context"
	"encoding/json"
	"maps"
	"time"
)

// tool is the internal implementation of Tool built by NewTool.
type tool struct {
	name         string
	description  string
	inputSchema  map[string]any
	outputSchema map[string]any
	execute      func(context.Context, []byte) ([]byte, error)
	opts         toolOptions
}

// NewTool builds a Tool from a typed deterministic function. Input and output shapes
// are reflected from T and R. Execute validates the arguments against the input
// shape (ClientError on failure), runs fn and marshals its result.
// Errors returned by fn become ToolExecutionError unless they already are ClientErrors.
func NewTool[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T) (R, error),
	opts ...ToolOption,
) (Tool, error) {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	in, err := NewShape[T]()
	if err != nil {
		return nil, err
	}
	out, err := NewShape[R]()
	if err != nil {
		return nil, err
	}
	execute := func(ctx context.Context, argsJSON []byte) ([]byte, error) {
		args, err := in.Validate(string(argsJSON))
		if err != nil {
			return nil, &ClientError{Reason: err.Error(), Err: err}
		}
		res, err := fn(ctx, args)
		if err != nil {
			return nil, wrapHandlerError(name, err)
		}
		b, err := json.Marshal(res)
		if err != nil {
			return nil, &SystemError{Err: err}
		}
		return b, nil
	}
	return &tool{
		name:         name,
		description:  description,
		inputSchema:  in.Schema(),
		outputSchema: out.Schema(),
		execute:      execute,
		opts:         o,
	}, nil
}

func (t *tool) Name() string        { return t.name }
func (t *tool) Description() string { return t.description }

// InputSchema returns a shallow copy of the input JSON Schema.
// Nested maps are shared; callers must not mutate them.
func (t *tool) InputSchema() map[string]any { return maps.Clone(t.inputSchema) }

// OutputSchema returns a shallow copy of the output JSON Schema.
func (t *tool) OutputSchema() map[string]any { return maps.Clone(t.outputSchema) }

func (t *tool) Execute(ctx context.Context, argsJSON []byte) ([]byte, error) {
	return t.execute(ctx, argsJSON)
}

func (t *tool) Timeout() time.Duration { return t.opts.timeout }

// wrapHandlerError passes through ClientError; wraps other errors as ToolExecutionError.
func wrapHandlerError(name string, err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) {
		return err
	}
	return &ToolExecutionError{Tool: name, Err: err}
}

var (
	_ Tool         = (*tool)(nil)
	_ ToolMetadata = (*tool)(nil)
)
