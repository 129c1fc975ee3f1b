package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/fieldflow/pkg/schema"
)

// ExprEngine implements the Engine interface using expr-lang/expr. It is the
// default survey dialect: answers are exposed as top-level variables by
// shortName, so authors write `age >= 18` or `consent == 1`.
// Thread-safe: compiled *vm.Program objects are cached and reused.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates a new Expr script engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{
		cache: make(map[string]*vm.Program),
	}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate compiles (or retrieves from cache) an Expr script and evaluates it
// against the provided answer context. All context keys are available as
// top-level variables; unanswered questions appear as nil, so scripts must
// tolerate undefined variables.
func (e *ExprEngine) Evaluate(ctx context.Context, script string, data map[string]any) (any, error) {
	if script == "" {
		return nil, schema.NewError(schema.ErrCodeEvaluation, "empty expr script")
	}

	prg, err := e.getOrCompile(script)
	if err != nil {
		return nil, err
	}

	env := data
	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
			"expr evaluation failed for %q: %s", script, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"script": script})
	}

	return out, nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
// Programs are compiled against an untyped environment because the answer set
// changes between evaluations.
func (e *ExprEngine) getOrCompile(script string) (*vm.Program, error) {
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

	prg, err := expr.Compile(script,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
			"expr compile error in %q: %s", script, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"script": script})
	}

	e.cache[script] = prg
	return prg, nil
}

var _ Engine = (*ExprEngine)(nil)
