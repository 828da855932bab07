package guardrail

import (
	"errors"
	"fmt"
)

// Sentinel errors for guardrail. Use errors.Is to check.
var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrTimeout        = errors.New("tool execution timeout")
	ErrValidation     = errors.New("validation failed")
	ErrRetryExhausted = errors.New("retry budget exhausted")
	ErrAuditWrite     = errors.New("audit write failed")
)

// ValidationKind distinguishes why a model output was rejected.
type ValidationKind string

const (
	// KindParse means the raw text is not well-formed JSON.
	KindParse ValidationKind = "parse"
	// KindSchema means the JSON does not conform to the declared shape.
	KindSchema ValidationKind = "schema"
)

// ValidationError is the uniform "validation failed" error of the schema validator.
// Reason is the descriptive message handed back to the model in the repair step.
// Line and Column are set for parse failures when the decoder reports a position.
type ValidationError struct {
	Kind   ValidationKind
	Reason string
	Line   int
	Column int
	Err    error
}

func (e *ValidationError) Error() string { return e.Reason }

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidationError returns true if err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ClientError is an error that should be sent back to the LLM for self-correction
// (e.g. invalid JSON tool arguments, schema violation, bad enum value).
// Err optionally wraps a sentinel (e.g. ErrValidation) for errors.Is/errors.As.
type ClientError struct {
	Reason string
	Err    error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid tool input: %s", e.Reason)
}

func (e *ClientError) Unwrap() error { return e.Err }

// SystemError represents an internal failure (panic, marshal failure).
// The LLM should not see the underlying error message.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return "internal system error during tool execution"
}

func (e *SystemError) Unwrap() error { return e.Err }

// ToolExecutionError is a deterministic tool rejecting its input (e.g. a malformed
// arithmetic expression). The router turns it into an error payload, never a failure.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string { return e.Err.Error() }

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// RetryExhaustedError is returned by Run when no attempt produced a valid output.
// Errors holds every validation message in attempt order; Last is the final failure.
type RetryExhaustedError struct {
	Attempts int
	Errors   []string
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// AuditWriteError means an audit record could not be persisted. It is fatal for the run.
type AuditWriteError struct {
	Path string
	Err  error
}

func (e *AuditWriteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("audit write failed: %v", e.Err)
	}
	return fmt.Sprintf("audit write failed: %s: %v", e.Path, e.Err)
}

func (e *AuditWriteError) Is(target error) bool { return target == ErrAuditWrite }

func (e *AuditWriteError) Unwrap() error { return e.Err }

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsSystemError returns true if err is or wraps a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}
