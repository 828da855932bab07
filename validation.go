package guardrail

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
)

// Validatable is implemented by shape types that carry cross-field rules.
// Called after schema validation and unmarshaling.
type Validatable interface {
	Validate() error
}

// ParseJSON decodes raw as exactly one JSON value, preserving number precision.
// Malformed input yields a *ValidationError of KindParse whose message names the
// decode error and its line/column.
func ParseJSON(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, newParseError(raw, err)
	}
	end := int(dec.InputOffset())
	if _, err := dec.Token(); err != io.EOF {
		rest := raw[end:]
		off := end + len(rest) - len(strings.TrimLeft(rest, " \t\r\n"))
		return nil, parseErrorAt(raw, off+1, "extra data after top-level value", err)
	}
	return v, nil
}

func newParseError(raw string, err error) *ValidationError {
	var syn *json.SyntaxError
	switch {
	case errors.As(err, &syn):
		return parseErrorAt(raw, int(syn.Offset), syn.Error(), err)
	case errors.Is(err, io.EOF):
		return parseErrorAt(raw, len(raw), "expecting value", err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return parseErrorAt(raw, len(raw), "unexpected end of JSON input", err)
	default:
		return &ValidationError{Kind: KindParse, Reason: "invalid JSON: " + err.Error(), Err: err}
	}
}

// parseErrorAt reports msg at byte offset off of raw as a 1-based line/column.
func parseErrorAt(raw string, off int, msg string, err error) *ValidationError {
	off = min(max(off, 0), len(raw))
	line, col := 1, 1
	for i := 0; i < off; i++ {
		if raw[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	// Offset counts the offending byte; point the column at it.
	if off > 0 && raw[off-1] != '\n' {
		col--
	}
	return &ValidationError{
		Kind:   KindParse,
		Reason: fmt.Sprintf("invalid JSON: %s (line %d, column %d)", msg, line, col),
		Line:   line,
		Column: col,
		Err:    err,
	}
}

// Validate parses raw and validates it against the shape, returning the typed value.
// Unknown fields, missing fields, wrong types and enum violations are all rejected;
// nothing is coerced.
func (s *Shape[T]) Validate(raw string) (T, error) {
	var zero T
	v, err := ParseJSON(raw)
	if err != nil {
		return zero, err
	}
	return s.decode(v, []byte(raw))
}

// ValidateValue validates an already-decoded value (e.g. map[string]any) against the shape.
func (s *Shape[T]) ValidateValue(v any) (T, error) {
	var zero T
	data, err := json.Marshal(v)
	if err != nil {
		return zero, &ValidationError{Kind: KindParse, Reason: "invalid JSON: " + err.Error(), Err: err}
	}
	return s.Validate(string(data))
}

func (s *Shape[T]) decode(v any, data []byte) (T, error) {
	var zero T
	if err := s.compiled.Validate(v); err != nil {
		return zero, &ValidationError{
			Kind:   KindSchema,
			Reason: fmt.Sprintf("schema validation failed for %s: %v", s.name, err),
			Err:    err,
		}
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, &ValidationError{
			Kind:   KindSchema,
			Reason: fmt.Sprintf("schema validation failed for %s: %v", s.name, err),
			Err:    err,
		}
	}
	if err := runLayer2Validation(out); err != nil {
		return zero, &ValidationError{
			Kind:   KindSchema,
			Reason: fmt.Sprintf("schema validation failed for %s: %v", s.name, err),
			Err:    err,
		}
	}
	return out, nil
}

// validateCustom runs Layer 2 (Validatable) if v implements it.
func validateCustom(v any) error {
	if val, ok := v.(Validatable); ok {
		return val.Validate()
	}
	return nil
}

// runLayer2Validation runs Validatable.Validate() on args; if args does not implement Validatable,
// it tries &args for value types (pointer receiver). Never calls Validate twice for the same receiver.
func runLayer2Validation[T any](args T) error {
	if err := validateCustom(any(args)); err != nil {
		return err
	}
	if _, ok := any(args).(Validatable); ok {
		return nil
	}
	typ := reflect.TypeOf(args)
	if typ == nil || typ.Kind() == reflect.Pointer {
		return nil
	}
	return validateCustom(any(&args))
}

var (
	routeShape  = sync.OnceValues(NewShape[ToolRoute])
	answerShape = sync.OnceValues(NewShape[ToolAnswer])
)

// ToolRouteShape returns the process-wide shape for ToolRoute.
func ToolRouteShape() (*Shape[ToolRoute], error) { return routeShape() }

// ToolAnswerShape returns the process-wide shape for ToolAnswer.
func ToolAnswerShape() (*Shape[ToolAnswer], error) { return answerShape() }

// ValidateToolRoute validates raw model output as a ToolRoute.
func ValidateToolRoute(raw string) (ToolRoute, error) {
	s, err := routeShape()
	if err != nil {
		return ToolRoute{}, err
	}
	return s.Validate(raw)
}

// ValidateToolAnswer validates raw model output as a ToolAnswer.
func ValidateToolAnswer(raw string) (ToolAnswer, error) {
	s, err := answerShape()
	if err != nil {
		return ToolAnswer{}, err
	}
	return s.Validate(raw)
}
