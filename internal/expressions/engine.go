package expressions

import (
	"context"
	"fmt"

	"github.com/rendis/fieldflow/pkg/schema"
)

// Engine evaluates survey scripts against the answer context.
// Three implementations: Expr (default dialect), CEL, and GoJQ. The session
// engine treats all of them as black boxes: it builds the context, hands it
// over, and applies its own truthiness coercion to whatever comes back.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, script string, data map[string]any) (any, error)
}

// ForDialect returns the engine matching the survey's script dialect.
// An empty dialect selects Expr.
func ForDialect(dialect schema.ScriptDialect) (Engine, error) {
	switch dialect {
	case schema.DialectExpr, "":
		return NewExprEngine(), nil
	case schema.DialectCEL:
		return NewCELEngine()
	case schema.DialectJQ:
		return NewGoJQEngine(), nil
	default:
		return nil, fmt.Errorf("unknown script dialect %q", dialect)
	}
}
