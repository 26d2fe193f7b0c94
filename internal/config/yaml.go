package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON funnels a YAML config file into JSON bytes. The bot's strict decoder
// (unknown fields and trailing tokens rejected) only speaks JSON, so both
// accepted formats end up on that one code path. Anything not named .yaml or
// .yml passes through untouched and the strict decoder judges it as JSON.
func toJSON(path string, data []byte) (jsonBytes []byte, format string, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, "json", nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}
	out, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return out, "yaml", nil
}

// stringifyKeys rewrites map[any]any keys to strings, recursively. YAML
// allows non-string keys; json.Marshal does not.
func stringifyKeys(in any) any {
	switch node := in.(type) {
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, v := range node {
			out[fmt.Sprint(k)] = stringifyKeys(v)
		}
		return out
	case map[string]any:
		for k, v := range node {
			node[k] = stringifyKeys(v)
		}
		return node
	case []any:
		for i := range node {
			node[i] = stringifyKeys(node[i])
		}
		return node
	default:
		return in
	}
}
