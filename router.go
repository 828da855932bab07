package guardrail

import (
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/skosovsky/guardrail/toolkits/calculator"
	"github.com/skosovsky/guardrail/toolkits/search"
)

// RouteDecision is a normalized, safe tool selection. Tool is always one of the
// three ToolName values and ToolInput is empty whenever Tool is ToolNone.
type RouteDecision struct {
	Tool      ToolName `json:"tool"`
	ToolInput string   `json:"tool_input"`
}

// NormalizeRoute turns an arbitrary, possibly malformed routing value into a
// RouteDecision. Only key-value objects are considered: ToolRoute, RouteDecision
// and any map whose keys are strings (map[any]any from YAML included). Everything
// else routes to ToolNone. It never fails.
func NormalizeRoute(raw any) RouteDecision {
	var obj any
	switch raw.(type) {
	case ToolRoute, *ToolRoute, RouteDecision, *RouteDecision:
		obj = raw
	default:
		if reflect.ValueOf(raw).Kind() != reflect.Map {
			return RouteDecision{Tool: ToolNone}
		}
		obj = stringKeyed(raw)
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return RouteDecision{Tool: ToolNone}
	}
	return normalizeObject(gjson.ParseBytes(data))
}

// stringKeyed rebuilds maps and slices with string keys so they marshal as JSON.
// Entries whose key is not a string are dropped.
func stringKeyed(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		for it := rv.MapRange(); it.Next(); {
			k := it.Key()
			if k.Kind() == reflect.Interface {
				k = k.Elem()
			}
			if k.Kind() != reflect.String {
				continue
			}
			out[k.String()] = stringKeyed(it.Value().Interface())
		}
		return out
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = stringKeyed(rv.Index(i).Interface())
		}
		return out
	default:
		return v
	}
}

// NormalizeRouteJSON is NormalizeRoute for untrusted model text. Prose or markdown
// fences around a single JSON object are tolerated; anything that is not an object
// routes to ToolNone.
func NormalizeRouteJSON(raw string) RouteDecision {
	doc := strings.TrimSpace(raw)
	if !gjson.Valid(doc) {
		start, end := strings.IndexByte(doc, '{'), strings.LastIndexByte(doc, '}')
		if start < 0 || end <= start || !gjson.Valid(doc[start:end+1]) {
			return RouteDecision{Tool: ToolNone}
		}
		doc = doc[start : end+1]
	}
	return normalizeObject(gjson.Parse(doc))
}

func normalizeObject(obj gjson.Result) RouteDecision {
	if !obj.IsObject() {
		return RouteDecision{Tool: ToolNone}
	}
	tool := ParseToolName(obj.Get("tool").String())
	if tool == ToolNone {
		return RouteDecision{Tool: ToolNone}
	}
	// String() renders numbers, booleans and nested JSON in their textual form.
	return RouteDecision{Tool: tool, ToolInput: obj.Get("tool_input").String()}
}

// Router executes normalized routes against a Registry holding the builtin tools.
type Router struct {
	registry *Registry
	logger   *slog.Logger
}

// NewRouter returns a Router over reg. A nil logger falls back to slog.Default().
func NewRouter(reg *Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{registry: reg, logger: logger}
}

// Registry returns the registry the router executes against.
func (r *Router) Registry() *Registry { return r.registry }

// Execute runs the selected tool. Tool failures (bad expression, missing tool,
// timeout) are reported as {"error": message} in ToolResults; Execute never fails.
func (r *Router) Execute(ctx context.Context, route RouteDecision) ToolResult {
	switch ParseToolName(string(route.Tool)) {
	case ToolCalculator:
		var out calculator.Output
		res, ok := r.call(ctx, calculator.Name, calculator.Args{Expression: route.ToolInput}, &out)
		if !ok {
			return ToolResult{ToolUsed: ToolCalculator, ToolResults: res, Citations: []Citation{}}
		}
		return ToolResult{
			ToolUsed:    ToolCalculator,
			ToolResults: map[string]any{"result": out.Result},
			Citations:   []Citation{},
		}
	case ToolSearch:
		var out search.Output
		res, ok := r.call(ctx, search.Name, search.Args{Query: route.ToolInput}, &out)
		if !ok {
			return ToolResult{ToolUsed: ToolSearch, ToolResults: res, Citations: []Citation{}}
		}
		results := make([]any, 0, len(out.Results))
		citations := make([]Citation, 0, len(out.Results))
		for _, hit := range out.Results {
			results = append(results, map[string]any{"snippet": hit.Snippet, "source": hit.Source})
			citations = append(citations, Citation{Source: hit.Source, Snippet: hit.Snippet})
		}
		return ToolResult{
			ToolUsed:    ToolSearch,
			ToolResults: map[string]any{"results": results},
			Citations:   citations,
		}
	default:
		return noToolResult()
	}
}

// call executes tool name with args and decodes the result into out. On failure it
// returns the error payload and false.
func (r *Router) call(ctx context.Context, name string, args, out any) (map[string]any, bool) {
	data, err := json.Marshal(args)
	if err != nil {
		return errorPayload(err), false
	}
	res := r.registry.Execute(ctx, ToolCall{ID: uuid.NewString(), ToolName: name, Args: data})
	if res.Error != nil {
		r.logger.WarnContext(ctx, "tool execution failed", "tool", name, "call_id", res.CallID, "error", res.Error)
		return errorPayload(res.Error), false
	}
	if err := json.Unmarshal(res.Result, out); err != nil {
		return errorPayload(&SystemError{Err: err}), false
	}
	return nil, true
}

func errorPayload(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}
