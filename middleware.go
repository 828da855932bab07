package guardrail

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Middleware wraps a Tool with cross-cutting behavior. Panic recovery and
// timeouts are Registry options, not middlewares.
type Middleware func(Tool) Tool

// WithLogging logs every tool call. Input the tool rejected (ClientError,
// ToolExecutionError) is logged at Warn since it goes back to the model as an
// error payload; anything else is an Error.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Tool) Tool {
		return &loggingTool{toolBase: toolBase{next: next}, logger: logger}
	}
}

// toolBase forwards Tool and ToolMetadata to the wrapped tool.
type toolBase struct{ next Tool }

func (b *toolBase) Name() string                 { return b.next.Name() }
func (b *toolBase) Description() string          { return b.next.Description() }
func (b *toolBase) InputSchema() map[string]any  { return b.next.InputSchema() }
func (b *toolBase) OutputSchema() map[string]any { return b.next.OutputSchema() }

func (b *toolBase) Timeout() time.Duration {
	if tm, ok := b.next.(ToolMetadata); ok {
		return tm.Timeout()
	}
	return 0
}

type loggingTool struct {
	toolBase
	logger *slog.Logger
}

func (m *loggingTool) Execute(ctx context.Context, args []byte) ([]byte, error) {
	log := m.logger.With("tool", m.next.Name())
	log.DebugContext(ctx, "tool start", "args_bytes", len(args))
	start := time.Now()
	res, err := m.next.Execute(ctx, args)
	dur := time.Since(start)
	switch {
	case err == nil:
		log.InfoContext(ctx, "tool end", "duration", dur, "result_bytes", len(res))
		return res, nil
	case isRejectedInput(err):
		log.WarnContext(ctx, "tool rejected input", "duration", dur, "error", err)
	default:
		log.ErrorContext(ctx, "tool error", "duration", dur, "error", err)
	}
	return nil, err
}

func isRejectedInput(err error) bool {
	var te *ToolExecutionError
	return IsClientError(err) || errors.As(err, &te)
}

// Use replaces the middleware chain and rewraps every registered tool from its
// raw form; the first middleware is outermost. Tools registered later are
// wrapped too.
func (r *Registry) Use(middlewares ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = middlewares
	for name, raw := range r.rawTools {
		r.tools[name] = wrapTool(raw, middlewares)
	}
}

func wrapTool(t Tool, middlewares []Middleware) Tool {
	for i := len(middlewares) - 1; i >= 0; i-- {
		t = middlewares[i](t)
	}
	return t
}
