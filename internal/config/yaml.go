package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON turns a config file into JSON so both formats go through Decode.
// .json files pass through, anything else is read as YAML unless it starts with '{'.
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return data, nil
	case ".yaml", ".yml":
	default:
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
			return data, nil
		}
	}

	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	if root == nil {
		return []byte("{}"), nil
	}
	root = stringKeys(root)
	if _, ok := root.(map[string]any); !ok {
		return nil, fmt.Errorf("invalid config: top level must be a mapping, got %T", root)
	}
	return json.Marshal(root)
}

// stringKeys rewrites nested maps so json.Marshal accepts them. Non-string
// keys (e.g. a bare `1:`) keep their printed form.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = stringKeys(e)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = stringKeys(e)
		}
		return out
	case []any:
		for i, e := range x {
			x[i] = stringKeys(e)
		}
		return x
	}
	return v
}
