package guardrail

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Registry holds tools and executes them with timeout and optional panic recovery.
// It is built once at startup and read concurrently afterwards.
type Registry struct {
	tools       map[string]Tool // wrapped with middlewares, used by Execute
	rawTools    map[string]Tool // unwrapped, used by Use() to re-apply middlewares from scratch
	opts        registryOptions
	mu          sync.RWMutex
	middlewares []Middleware
}

// NewRegistry creates a Registry with the given options.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		timeout:       5 * time.Second,
		recoverPanics: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		tools:    make(map[string]Tool),
		rawTools: make(map[string]Tool),
		opts:     o,
	}
}

// Register adds a tool. Stored middlewares (see Use) are applied to the tool before registration.
// If a tool with the same name already exists, it is replaced.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	r.rawTools[name] = t
	r.tools[name] = wrapTool(t, r.middlewares)
}

// GetAllTools returns all registered tools sorted by name for deterministic order.
func (r *Registry) GetAllTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// GetTool returns the tool with the given name (after middlewares are applied), or (nil, false) if not found.
func (r *Registry) GetTool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the ToolSpec of every registered tool, sorted by name.
func (r *Registry) Specs() []ToolSpec {
	tools := r.GetAllTools()
	specs := make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, SpecOf(t))
	}
	return specs
}

// Execute runs one tool call. Errors are reported in CallResult.Error, never panicked.
// The after-execution hook (WithOnAfterExecute) is always invoked via defer.
func (r *Registry) Execute(ctx context.Context, call ToolCall) (res CallResult) {
	res.CallID = call.ID
	res.ToolName = call.ToolName

	tool, ok := r.GetTool(call.ToolName)
	if !ok {
		res.Error = fmt.Errorf("%w: %s", ErrToolNotFound, call.ToolName)
		return res
	}

	timeout := r.opts.timeout
	if tm, ok := tool.(ToolMetadata); ok && tm.Timeout() > 0 {
		timeout = tm.Timeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	// Recover defer is registered after onAfter so it runs first on panic and sets res.Error before the hook runs.
	defer func() {
		if r.opts.onAfter != nil {
			r.opts.onAfter(ctx, call, res, time.Since(start))
		}
	}()
	if r.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				res.Result = nil
				res.Error = &SystemError{Err: &panicError{p: p}}
			}
		}()
	}

	if r.opts.onBefore != nil {
		r.opts.onBefore(ctx, call)
	}

	out, err := tool.Execute(ctx, call.Args)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s: %w", ErrTimeout, call.ToolName, err)
		}
		res.Error = err
		return res
	}
	res.Result = out
	return res
}

// panicError wraps a recovered panic value for SystemError.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
