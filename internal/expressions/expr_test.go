package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/fieldflow/pkg/schema"
)

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.NotNil(t, e)
	assert.Equal(t, "expr", e.Name())
}

func TestExprEngine_ImplementsEngine(t *testing.T) {
	var _ Engine = (*ExprEngine)(nil)
}

func TestExpr_AnswerComparison(t *testing.T) {
	e := NewExprEngine()

	t.Run("numeric threshold", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), "age >= 18", map[string]any{"age": 21.0})
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("option index equality", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), "consent == 1", map[string]any{"consent": 1})
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("combined condition", func(t *testing.T) {
		data := map[string]any{"age": 30.0, "smoker": 0}
		out, err := e.Evaluate(context.Background(), "age >= 18 && smoker == 0", data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})
}

func TestExpr_UndefinedVariableIsNil(t *testing.T) {
	e := NewExprEngine()

	// Unanswered questions are absent from the context; scripts must not crash.
	out, err := e.Evaluate(context.Background(), "missing == nil", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExpr_StringResult(t *testing.T) {
	e := NewExprEngine()

	out, err := e.Evaluate(context.Background(), `age < 18 ? "skip" : ""`, map[string]any{"age": 12.0})
	require.NoError(t, err)
	assert.Equal(t, "skip", out)
}

func TestExpr_EmptyScript(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)
	ferr, ok := err.(*schema.FieldflowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeEvaluation, ferr.Code)
}

func TestExpr_CompileError(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "age >=", map[string]any{})
	require.Error(t, err)
	ferr, ok := err.(*schema.FieldflowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeEvaluation, ferr.Code)
}

func TestExpr_CacheReuse(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "x + 1", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Len(t, e.cache, 1)

	_, err = e.Evaluate(context.Background(), "x + 1", map[string]any{"x": 2})
	require.NoError(t, err)
	assert.Len(t, e.cache, 1)
}

func TestExpr_ConcurrentEvaluation(t *testing.T) {
	e := NewExprEngine()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			out, err := e.Evaluate(context.Background(), "x * 2", map[string]any{"x": n})
			assert.NoError(t, err)
			assert.Equal(t, n*2, out)
		}(i)
	}
	wg.Wait()
}
