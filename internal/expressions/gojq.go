package expressions

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rendis/fieldflow/pkg/schema"
)

// GoJQEngine implements the Engine interface using GoJQ. Scripts in the jq
// dialect receive the answer context as the input object: `.age >= 18`.
// Thread-safe: compiled *Code objects are cached and reused across goroutines.
type GoJQEngine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewGoJQEngine creates a new GoJQ script engine.
func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{
		cache: make(map[string]*gojq.Code),
	}
}

// Name returns the engine identifier.
func (e *GoJQEngine) Name() string {
	return "jq"
}

// Evaluate compiles (or retrieves from cache) a jq script and evaluates it
// against the answer context. jq programs can produce multiple outputs: a
// single output is returned directly, multiple outputs are collected into
// []any. Integer context values are normalized to float64 to match jq's
// number handling.
func (e *GoJQEngine) Evaluate(ctx context.Context, script string, data map[string]any) (any, error) {
	if script == "" {
		return nil, schema.NewError(schema.ErrCodeEvaluation, "empty jq script")
	}

	code, err := e.getOrCompile(script)
	if err != nil {
		return nil, err
	}

	input, _ := normalizeForJQ(data).(map[string]any)
	if input == nil {
		input = map[string]any{}
	}

	iter := code.RunWithContext(ctx, input)

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
				"jq evaluation failed for %q: %s", script, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"script": script})
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// getOrCompile returns a cached compiled code or compiles and caches a new one.
func (e *GoJQEngine) getOrCompile(script string) (*gojq.Code, error) {
	e.mu.RLock()
	if code, ok := e.cache[script]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if code, ok := e.cache[script]; ok {
		return code, nil
	}

	query, err := gojq.Parse(script)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
			"jq parse error in %q: %s", script, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"script": script})
	}

	code, err := gojq.Compile(query,
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
			"jq compile error in %q: %s", script, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"script": script})
	}

	e.cache[script] = code
	return code, nil
}

// normalizeForJQ converts Go native types to jq-compatible types.
// jq uses float64 for all numbers.
func normalizeForJQ(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalizeForJQ(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalizeForJQ(v)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

var _ Engine = (*GoJQEngine)(nil)
