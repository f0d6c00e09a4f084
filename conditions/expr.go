package conditions

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEvaluator evaluates raw boolean expressions against the workflow
// data using expr-lang/expr. Compiled programs are cached per expression,
// so a definition's conditions are compiled once no matter how many
// instances run it.
type ExprEvaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// NewExprEvaluator creates an ExprEvaluator with an empty program cache.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate compiles (or fetches) the expression and runs it against the
// data map. The expression must yield a boolean. Workflow data grows as
// nodes execute, so programs compile with undefined variables allowed and
// unknown names resolve at run time.
func (e *ExprEvaluator) Evaluate(expression string, data map[string]interface{}) (bool, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()

	if !ok {
		e.mu.Lock()
		if program, ok = e.cache[expression]; !ok {
			var err error
			program, err = expr.Compile(expression,
				expr.Env(map[string]interface{}{}),
				expr.AllowUndefinedVariables(),
			)
			if err != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("compile expression '%s': %w", expression, err)
			}
			e.cache[expression] = program
		}
		e.mu.Unlock()
	}

	result, err := expr.Run(program, data)
	if err != nil {
		return false, fmt.Errorf("run expression '%s': %w", expression, err)
	}

	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression '%s' did not evaluate to a boolean, got %T", expression, result)
	}
	return b, nil
}
