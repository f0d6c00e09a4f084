package integrations

import (
	"context"
	"fmt"

	"github.com/signflow-io/signflow/conditions"
)

// RuleComplianceChecker is a ComplianceChecker driven by named boolean
// expressions over the document data. Each registered standard maps to an
// expression; a standard passes when its expression evaluates to true.
type RuleComplianceChecker struct {
	rules map[string]string
	eval  *conditions.ExprEvaluator
}

// NewRuleComplianceChecker creates a checker from standard-name to
// expression pairs, e.g. {"esign_act": "signatures_collected > 0"}.
func NewRuleComplianceChecker(rules map[string]string) *RuleComplianceChecker {
	return &RuleComplianceChecker{
		rules: rules,
		eval:  conditions.NewExprEvaluator(),
	}
}

// Check evaluates the requested standards against the document data.
// Unknown standards and expression failures count as violations rather
// than aborting the check. The score is the passing percentage.
func (c *RuleComplianceChecker) Check(ctx context.Context, documentData map[string]interface{}, standards []string) (ComplianceResult, error) {
	select {
	case <-ctx.Done():
		return ComplianceResult{}, ctx.Err()
	default:
	}

	if len(standards) == 0 {
		return ComplianceResult{Compliant: true, Score: 100, Details: []string{}}, nil
	}

	details := make([]string, 0)
	passed := 0
	for _, standard := range standards {
		expression, ok := c.rules[standard]
		if !ok {
			details = append(details, fmt.Sprintf("unknown standard: %s", standard))
			continue
		}
		result, err := c.eval.Evaluate(expression, documentData)
		if err != nil {
			details = append(details, fmt.Sprintf("standard %s could not be evaluated: %v", standard, err))
			continue
		}
		if !result {
			details = append(details, fmt.Sprintf("standard %s not satisfied", standard))
			continue
		}
		passed++
	}

	return ComplianceResult{
		Compliant: passed == len(standards),
		Score:     float64(passed) / float64(len(standards)) * 100,
		Details:   details,
	}, nil
}
