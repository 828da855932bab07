package guardrail

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// InvokeFunc is a blocking call to the generation collaborator. Errors it returns
// are transport/availability failures and propagate out of Run unchanged.
type InvokeFunc func(ctx context.Context, inputs map[string]any) (string, error)

// ValidateFunc accepts raw model text and returns the typed value, or a validation
// failure whose message is fed to the repair step.
type ValidateFunc[T any] func(raw string) (T, error)

// RetryConfig bounds one orchestrated run.
type RetryConfig struct {
	// MaxRetries is the number of repair attempts after the first validation (>= 0).
	MaxRetries int `json:"max_retries"`
	// LogDir is where the default FileSink writes audit records.
	LogDir string `json:"log_dir"`
	// AttemptTimeout, when positive, bounds each invoke/repair call.
	AttemptTimeout time.Duration `json:"attempt_timeout"`
}

// DefaultRetryConfig returns MaxRetries 2 and LogDir "results/logs".
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, LogDir: "results/logs"}
}

// LogContext identifies the prompt and model of a run in its audit record.
type LogContext struct {
	Prompt        string
	PromptVersion string
	Model         string
	Temperature   *float64
}

// Repair input keys. Repair context entries are merged over them.
const (
	RepairKeyRawOutput = "raw_output"
	RepairKeyError     = "error"
)

// RunOption configures Run.
type RunOption func(*runOptions)

type runOptions struct {
	repair        InvokeFunc
	repairContext map[string]any
	config        RetryConfig
	logContext    LogContext
	sink          Sink
	logger        *slog.Logger
}

// WithRepair enables the repair step. Without it the first validation failure ends the run.
func WithRepair(fn InvokeFunc) RunOption {
	return func(o *runOptions) {
		o.repair = fn
	}
}

// WithRepairContext adds extra inputs to every repair call.
func WithRepairContext(ctx map[string]any) RunOption {
	return func(o *runOptions) {
		o.repairContext = maps.Clone(ctx)
	}
}

// WithConfig replaces DefaultRetryConfig.
func WithConfig(cfg RetryConfig) RunOption {
	return func(o *runOptions) {
		o.config = cfg
	}
}

// WithLogContext sets the prompt/model identification recorded in the audit record.
func WithLogContext(lc LogContext) RunOption {
	return func(o *runOptions) {
		o.logContext = lc
	}
}

// WithSink overrides the audit sink (default: FileSink at RetryConfig.LogDir).
func WithSink(s Sink) RunOption {
	return func(o *runOptions) {
		o.sink = s
	}
}

// WithLogger sets the structured logger (default slog.Default()).
func WithLogger(l *slog.Logger) RunOption {
	return func(o *runOptions) {
		o.logger = l
	}
}

var errNegativeRetries = errors.New("guardrail: max retries must be non-negative")

// Run drives invoke -> validate -> (repair -> validate)* for at most
// cfg.MaxRetries+1 validations and writes exactly one audit record at loop exit.
//
// invoke is called exactly once. Each failed validation appends its message to the
// run's error list; the repair step receives {raw_output, error} merged with the
// repair context and its text is validated next. When no repair step is configured,
// or the budget is spent, Run records the failure and returns *RetryExhaustedError
// (unwrapping to the last validation error). Errors from invoke or repair are
// returned as-is without an audit record; audit write failures are returned as
// *AuditWriteError even when validation succeeded.
func Run[T any](ctx context.Context, invoke InvokeFunc, inputs map[string]any, validate ValidateFunc[T], opts ...RunOption) (T, error) {
	var zero T
	o := runOptions{config: DefaultRetryConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.config.MaxRetries < 0 {
		return zero, errNegativeRetries
	}
	if validate == nil {
		return zero, errors.New("guardrail: nil validate function")
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.sink == nil {
		o.sink = NewFileSink(o.config.LogDir)
	}
	runID := uuid.NewString()
	log := o.logger.With("run_id", runID, "prompt", o.logContext.Prompt)

	raw, err := o.call(ctx, invoke, inputs)
	if err != nil {
		return zero, err
	}

	var errs []string
	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		value, verr := validate(raw)
		if verr == nil {
			loc, err := o.record(ctx, runID, attempt+1, raw, errs, value, true)
			if err != nil {
				log.ErrorContext(ctx, "audit write failed", "error", err)
				return zero, err
			}
			log.InfoContext(ctx, "run succeeded", "attempts", attempt+1, "audit", loc)
			return value, nil
		}
		errs = append(errs, verr.Error())
		log.WarnContext(ctx, "validation failed", "attempt", attempt+1, "error", verr)

		if o.repair == nil || attempt == o.config.MaxRetries {
			loc, err := o.record(ctx, runID, attempt+1, raw, errs, raw, false)
			if err != nil {
				log.ErrorContext(ctx, "audit write failed", "error", err)
				return zero, err
			}
			log.ErrorContext(ctx, "retry exhausted", "attempts", attempt+1, "audit", loc)
			return zero, &RetryExhaustedError{Attempts: attempt + 1, Errors: slices.Clone(errs), Last: verr}
		}

		repairInputs := map[string]any{
			RepairKeyRawOutput: raw,
			RepairKeyError:     verr.Error(),
		}
		maps.Copy(repairInputs, o.repairContext)
		raw, err = o.call(ctx, o.repair, repairInputs)
		if err != nil {
			return zero, err
		}
	}
	// The loop always returns: its last iteration has attempt == MaxRetries.
	panic("guardrail: retry loop exited without a result")
}

// call invokes fn, bounded by AttemptTimeout when set.
func (o *runOptions) call(ctx context.Context, fn InvokeFunc, inputs map[string]any) (string, error) {
	if fn == nil {
		return "", errors.New("guardrail: nil invoke function")
	}
	if o.config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.AttemptTimeout)
		defer cancel()
	}
	return fn(ctx, inputs)
}

func (o *runOptions) record(ctx context.Context, runID string, attempts int, raw string, errs []string, final any, success bool) (string, error) {
	rec := AuditRecord{
		RunID:         runID,
		CreatedAt:     time.Now().UTC(),
		Prompt:        o.logContext.Prompt,
		PromptVersion: o.logContext.PromptVersion,
		Model:         o.logContext.Model,
		Temperature:   o.logContext.Temperature,
		Attempts:      attempts,
		RawOutput:     raw,
		Errors:        append([]string{}, errs...),
		Final:         final,
		Success:       success,
	}
	loc, err := o.sink.Append(ctx, rec)
	if err != nil {
		var awe *AuditWriteError
		if !errors.As(err, &awe) {
			err = &AuditWriteError{Err: err}
		}
		return "", err
	}
	return loc, nil
}
