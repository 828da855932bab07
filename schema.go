package guardrail

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"unicode"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Shape is a strict structural contract for T: a JSON Schema reflected from T's
// fields with additionalProperties: false on every object and every field required.
// The same schema drives the format instructions shown to the model and the
// validation of what the model sends back.
type Shape[T any] struct {
	name      string
	schemaMap map[string]any
	compiled  *jsonschema.Schema
}

// NewShape reflects and compiles the shape of T. It is called once per type,
// typically at startup; the returned Shape is safe for concurrent use.
func NewShape[T any]() (*Shape[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	name := shapeName(typ)
	schemaMap, compiled, err := generateSchema(typ, name)
	if err != nil {
		return nil, fmt.Errorf("shape %s: %w", name, err)
	}
	return &Shape[T]{name: name, schemaMap: schemaMap, compiled: compiled}, nil
}

// Name returns the snake_case name of the shape (derived from T).
func (s *Shape[T]) Name() string { return s.name }

// Schema returns a shallow copy of the JSON Schema (top-level keys only).
// Nested maps are shared; callers must not mutate them.
func (s *Shape[T]) Schema() map[string]any {
	return maps.Clone(s.schemaMap)
}

// FormatInstructions renders human-readable instructions that embed the schema,
// suitable for a generation prompt.
func (s *Shape[T]) FormatInstructions() string {
	schema := maps.Clone(s.schemaMap)
	delete(schema, "$schema")
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		// schemaMap came from json.Unmarshal, so it always marshals.
		panic(err)
	}
	var b strings.Builder
	b.WriteString("Respond with a single JSON object that conforms to the JSON schema below.\n")
	b.WriteString("Every property is required, no other properties are allowed, and values must have exactly the declared types.\n")
	b.WriteString("Do not wrap the JSON in markdown or add any text before or after it.\n\n")
	b.WriteString("```json\n")
	b.Write(data)
	b.WriteString("\n```")
	return b.String()
}

// generateSchema reflects typ into a JSON Schema map and compiles it into a validator.
func generateSchema(typ reflect.Type, name string) (map[string]any, *jsonschema.Schema, error) {
	r := &invopop.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	schema := r.ReflectFromType(typ)
	if schema == nil {
		return nil, nil, errNilSchema
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, err
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, nil, err
	}
	applyStrictMode(schemaMap)
	stripSchemaIDs(schemaMap)
	compiled, err := compileRawSchema("mem://guardrail/"+name+".json", schemaMap)
	if err != nil {
		return nil, nil, err
	}
	return schemaMap, compiled, nil
}

// walkSchema recursively visits every map node in the schema tree.
func walkSchema(schemaMap map[string]any, visit func(map[string]any)) {
	if schemaMap == nil {
		return
	}
	visit(schemaMap)
	for _, val := range schemaMap {
		switch v := val.(type) {
		case map[string]any:
			walkSchema(v, visit)
		case []any:
			for _, item := range v {
				if m2, ok := item.(map[string]any); ok {
					walkSchema(m2, visit)
				}
			}
		}
	}
}

// applyStrictMode sets additionalProperties: false for every object in the schema
// and marks all of its properties required.
func applyStrictMode(schemaMap map[string]any) {
	walkSchema(schemaMap, func(n map[string]any) {
		props, ok := n["properties"].(map[string]any)
		if !ok {
			return
		}
		n["additionalProperties"] = false
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		required := make([]any, len(keys))
		for i, k := range keys {
			required[i] = k
		}
		if len(required) > 0 {
			n["required"] = required
		}
	})
}

// stripSchemaIDs removes id and $id from schema so resolution does not depend on them.
func stripSchemaIDs(schemaMap map[string]any) {
	walkSchema(schemaMap, func(n map[string]any) {
		delete(n, "id")
		delete(n, "$id")
	})
}

var errNilSchema = errors.New("schema reflection returned nil")

// compileRawSchema compiles a raw JSON Schema map into a validator. The map is not mutated.
func compileRawSchema(url string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// shapeName turns a Go type name into a URL-safe snake_case identifier.
func shapeName(typ reflect.Type) string {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	var b strings.Builder
	for i, r := range typ.Name() {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "shape"
	}
	return b.String()
}
