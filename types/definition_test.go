package types

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonDefinition = `{
  "name": "contract-signing",
  "start_node": "start",
  "nodes": [
    {
      "id": "start",
      "type": "start",
      "action": {"type": "update_status", "parameters": {"status": "started"}},
      "next_nodes": ["analyze"]
    },
    {
      "id": "analyze",
      "type": "document_analysis",
      "action": {"type": "analyze_document", "async": true},
      "conditions": [
        {"field": "document_id", "operator": "exists"}
      ]
    }
  ]
}`

const yamlDefinition = `
name: contract-signing
start_node: start
nodes:
  - id: start
    type: start
    action:
      type: update_status
      parameters:
        status: started
    next_nodes: [analyze]
  - id: analyze
    type: document_analysis
    action:
      type: analyze_document
      async: true
    conditions:
      - field: document_id
        operator: exists
`

// TestParseDefinition tests decoding definitions from both codecs.
func TestParseDefinition(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "JSON", input: jsonDefinition},
		{name: "YAML", input: yamlDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := ParseDefinition([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, "contract-signing", def.Name)
			assert.Equal(t, "start", def.StartNode)
			require.Len(t, def.Nodes, 2)

			start := def.Nodes[0]
			assert.Equal(t, NodeTypeStart, start.Type)
			assert.Equal(t, ActionUpdateStatus, start.Action.Type)
			assert.Equal(t, "started", start.Action.Parameters["status"])
			assert.Equal(t, []string{"analyze"}, start.NextNodes)

			analyze := def.Nodes[1]
			assert.Equal(t, ActionAnalyzeDocument, analyze.Action.Type)
			assert.True(t, analyze.Action.Async)
			require.Len(t, analyze.Conditions, 1)
			assert.Equal(t, OpExists, analyze.Conditions[0].Operator)

			assert.True(t, def.Validate().IsValid)
		})
	}

	t.Run("Empty input", func(t *testing.T) {
		_, err := ParseDefinition([]byte("   "))
		assert.Error(t, err)
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		_, err := ParseDefinition([]byte(`{"name": `))
		assert.Error(t, err)
	})
}

// TestLoadDefinition tests extension-based codec selection.
func TestLoadDefinition(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "flow.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(jsonDefinition), 0o644))
	yamlPath := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlDefinition), 0o644))

	for _, path := range []string{jsonPath, yamlPath} {
		def, err := LoadDefinition(path)
		require.NoError(t, err)
		assert.Equal(t, "contract-signing", def.Name)
		assert.Len(t, def.Nodes, 2)
	}

	_, err := LoadDefinition(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

// TestMarshalDefinition tests the canonical storage encoding round trip.
func TestMarshalDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(yamlDefinition))
	require.NoError(t, err)
	def.ID = "wf-1"

	out, err := MarshalDefinition(def)
	require.NoError(t, err)

	again, err := ParseDefinition(out)
	require.NoError(t, err)
	assert.Equal(t, def.ID, again.ID)
	assert.Equal(t, def.StartNode, again.StartNode)
	assert.Len(t, again.Nodes, len(def.Nodes))
}
