package conditions

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/signflow-io/signflow/types"
)

// Evaluator decides whether a node's conditions admit its action against
// the current workflow data.
type Evaluator interface {
	Evaluate(conditions []types.WorkflowCondition, data map[string]interface{}) (bool, error)
}

// DefaultEvaluator evaluates structured field/operator/value conditions
// and delegates raw expression conditions to an ExprEvaluator.
type DefaultEvaluator struct {
	expr *ExprEvaluator
}

// NewDefaultEvaluator creates an evaluator with a fresh expression cache.
func NewDefaultEvaluator() *DefaultEvaluator {
	return &DefaultEvaluator{expr: NewExprEvaluator()}
}

// Evaluate folds the condition list left to right. Each condition's
// logical_operator links the running result to the NEXT condition; the
// fold starts from true joined by "and", and "or" is never short-circuited
// so every condition is evaluated.
func (e *DefaultEvaluator) Evaluate(conds []types.WorkflowCondition, data map[string]interface{}) (bool, error) {
	result := true
	join := types.LogicalAnd
	for _, cond := range conds {
		cr, err := e.evaluateOne(cond, data)
		if err != nil {
			return false, err
		}
		if join == types.LogicalOr {
			result = result || cr
		} else {
			result = result && cr
		}
		join = cond.LogicalOperator
	}
	return result, nil
}

func (e *DefaultEvaluator) evaluateOne(cond types.WorkflowCondition, data map[string]interface{}) (bool, error) {
	if cond.Expression != "" {
		return e.expr.Evaluate(cond.Expression, data)
	}

	value, found := Resolve(data, cond.Field)

	switch cond.Operator {
	case types.OpExists:
		return found, nil
	case types.OpNotExists:
		return !found, nil
	case types.OpEquals:
		return looseEqual(value, cond.Value), nil
	case types.OpNotEquals:
		return !looseEqual(value, cond.Value), nil
	case types.OpContains:
		return strings.Contains(stringify(value), stringify(cond.Value)), nil
	case types.OpGreaterThan, types.OpLessThan, types.OpGreaterThanEquals, types.OpLessThanEquals:
		return compareNumeric(value, cond.Value, cond.Operator), nil
	case types.OpIn:
		return collectionContains(cond.Value, value)
	case types.OpNotIn:
		ok, err := collectionContains(cond.Value, value)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("unknown condition operator: %s", cond.Operator)
	}
}

// Resolve walks a dotted path through nested maps. A missing key or a
// non-map intermediate yields found=false, never an error.
func Resolve(data map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	var current interface{} = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// looseEqual compares two values by their string form, so 85 and 85.0
// and "85" all agree.
func looseEqual(a, b interface{}) bool {
	return stringify(a) == stringify(b)
}

func stringify(v interface{}) string {
	return fmt.Sprintf("%v", v)
}

// compareNumeric coerces both sides to float64 and applies the operator.
// Either side failing coercion makes the comparison false.
func compareNumeric(a, b interface{}, op types.Operator) bool {
	af, ok := toFloat64(a)
	if !ok {
		return false
	}
	bf, ok := toFloat64(b)
	if !ok {
		return false
	}
	switch op {
	case types.OpGreaterThan:
		return af > bf
	case types.OpLessThan:
		return af < bf
	case types.OpGreaterThanEquals:
		return af >= bf
	case types.OpLessThanEquals:
		return af <= bf
	}
	return false
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// collectionContains reports whether the collection holds an element
// loosely equal to the value. A non-collection errors rather than
// silently mismatching.
func collectionContains(collection, value interface{}) (bool, error) {
	rv := reflect.ValueOf(collection)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false, fmt.Errorf("membership test requires a collection, got %T", collection)
	}
	for i := 0; i < rv.Len(); i++ {
		if looseEqual(rv.Index(i).Interface(), value) {
			return true, nil
		}
	}
	return false, nil
}
