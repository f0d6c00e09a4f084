package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestValidateNodes tests the structural checks over a node set.
func TestValidateNodes(t *testing.T) {
	// Helper function to create a minimal node
	node := func(id string, next ...string) WorkflowNode {
		return WorkflowNode{
			ID:        id,
			Type:      NodeTypeValidation,
			Action:    WorkflowAction{Type: ActionUpdateStatus},
			NextNodes: next,
		}
	}

	tests := []struct {
		name       string
		nodes      []WorkflowNode
		wantValid  bool
		wantErrors []string
	}{
		{
			name:      "Valid linear graph",
			nodes:     []WorkflowNode{node("start", "end"), node("end")},
			wantValid: true,
		},
		{
			name:      "Empty node set",
			nodes:     nil,
			wantValid: true,
		},
		{
			name:       "Duplicate node ID",
			nodes:      []WorkflowNode{node("start"), node("start")},
			wantValid:  false,
			wantErrors: []string{"Duplicate node ID: start"},
		},
		{
			name:       "Dangling next reference",
			nodes:      []WorkflowNode{node("start", "missing")},
			wantValid:  false,
			wantErrors: []string{"Node start references non-existent node: missing"},
		},
		{
			name: "All errors collected",
			nodes: []WorkflowNode{
				node("a", "ghost"),
				node("a"),
				node("b", "phantom"),
			},
			wantValid: false,
			wantErrors: []string{
				"Duplicate node ID: a",
				"Node a references non-existent node: ghost",
				"Node b references non-existent node: phantom",
			},
		},
		{
			name:      "Cycles pass structural validation",
			nodes:     []WorkflowNode{node("loop", "loop")},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateNodes(tt.nodes)
			assert.Equal(t, tt.wantValid, result.IsValid)
			assert.ElementsMatch(t, tt.wantErrors, result.Errors)
			// IsValid must agree with the error list
			assert.Equal(t, len(result.Errors) == 0, result.IsValid)
		})
	}
}

// TestStatusTerminal tests the lifecycle terminal classification.
func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "status %s should be terminal", s)
	}
	open := []Status{StatusDraft, StatusActive, StatusPaused}
	for _, s := range open {
		assert.False(t, s.Terminal(), "status %s should not be terminal", s)
	}
}

// TestDefinitionNode tests node lookup by ID.
func TestDefinitionNode(t *testing.T) {
	def := Definition{
		StartNode: "start",
		Nodes: []WorkflowNode{
			{ID: "start", Type: NodeTypeStart},
			{ID: "review", Type: NodeTypeHumanReview},
		},
	}

	n, ok := def.Node("review")
	assert.True(t, ok)
	assert.Equal(t, NodeTypeHumanReview, n.Type)

	_, ok = def.Node("missing")
	assert.False(t, ok)
}
