package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

type fileFormat string

const (
	formatJSON fileFormat = "json"
	formatYAML fileFormat = "yaml"
)

func formatOf(path string) fileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

// toJSON turns a YAML document into JSON so both formats share the strict
// decoder. JSON input is returned unchanged. An empty YAML file becomes "{}".
func toJSON(path string, data []byte) ([]byte, fileFormat, error) {
	f := formatOf(path)
	if f == formatJSON {
		return data, f, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("{}"), f, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, f, fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, f, fmt.Errorf("yaml to json: %w", err)
	}
	return out, f, nil
}

// stringKeys rewrites map keys as strings; encoding/json rejects map[any]any.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = stringKeys(val)
		}
		return m
	case map[string]any:
		for k, val := range x {
			x[k] = stringKeys(val)
		}
		return x
	case []any:
		for i, val := range x {
			x[i] = stringKeys(val)
		}
		return x
	}
	return v
}
