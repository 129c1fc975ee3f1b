package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rendis/fieldflow/pkg/schema"
)

// CELEngine implements the Engine interface using Google's Common Expression
// Language. CEL requires declared variables, so the answer context is exposed
// under a single `answers` map: scripts in the cel dialect read
// `answers.age >= 18` rather than the flat `age >= 18` of the expr dialect.
// Thread-safe: compiled programs are cached and reused across goroutines.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a new CEL script engine with a sandboxed environment
// exposing one top-level variable:
//   - answers: map(string, dyn), answer values keyed by question shortName
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("answers", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate compiles (or retrieves from cache) a CEL script and evaluates it
// against the provided answer context.
func (e *CELEngine) Evaluate(ctx context.Context, script string, data map[string]any) (any, error) {
	if script == "" {
		return nil, schema.NewError(schema.ErrCodeEvaluation, "empty CEL script")
	}

	prg, err := e.getOrCompile(script)
	if err != nil {
		return nil, err
	}

	if data == nil {
		data = map[string]any{}
	}

	out, _, err := prg.Eval(map[string]any{"answers": data})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
			"CEL evaluation failed for %q: %s", script, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"script": script})
	}

	return out.Value(), nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (e *CELEngine) getOrCompile(script string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[script]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[script]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(script)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
			"CEL compile error in %q: %s", script, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"script": script})
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
			"CEL program error for %q: %s", script, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"script": script})
	}

	e.cache[script] = prg
	return prg, nil
}

var _ Engine = (*CELEngine)(nil)
