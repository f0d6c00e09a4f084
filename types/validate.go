package types

import "fmt"

// ValidationResult is the outcome of a structural check over a node set.
// IsValid is false exactly when Errors is non-empty.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// ValidateNodes checks a node set for duplicate IDs and for next_nodes
// references that point outside the set. All problems are collected, not
// just the first.
func ValidateNodes(nodes []WorkflowNode) ValidationResult {
	var errs []string

	ids := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if _, ok := ids[n.ID]; ok {
			errs = append(errs, fmt.Sprintf("Duplicate node ID: %s", n.ID))
			continue
		}
		ids[n.ID] = struct{}{}
	}

	for _, n := range nodes {
		for _, next := range n.NextNodes {
			if _, ok := ids[next]; !ok {
				errs = append(errs, fmt.Sprintf("Node %s references non-existent node: %s", n.ID, next))
			}
		}
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}
