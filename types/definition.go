package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseDefinition decodes a workflow definition from JSON or YAML bytes.
// JSON input is detected by a leading brace, everything else is parsed
// as YAML.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return def, fmt.Errorf("empty definition")
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &def); err != nil {
			return def, fmt.Errorf("parse definition json: %w", err)
		}
		return def, nil
	}
	if err := yaml.Unmarshal(trimmed, &def); err != nil {
		return def, fmt.Errorf("parse definition yaml: %w", err)
	}
	return def, nil
}

// LoadDefinition reads a definition file, choosing the codec from the
// file extension (.json, .yaml, .yml).
func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read definition file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var def Definition
		if err := json.Unmarshal(data, &def); err != nil {
			return Definition{}, fmt.Errorf("parse definition json: %w", err)
		}
		return def, nil
	case ".yaml", ".yml":
		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			return Definition{}, fmt.Errorf("parse definition yaml: %w", err)
		}
		return def, nil
	default:
		return ParseDefinition(data)
	}
}

// MarshalDefinition encodes a definition as indented JSON, the canonical
// storage form.
func MarshalDefinition(def Definition) ([]byte, error) {
	out, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}
	return out, nil
}
