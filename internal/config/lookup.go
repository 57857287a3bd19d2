package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LookupFile reads the YAML file name under the API data directory and
// returns the value at the dot-delimited path, e.g. "api_config.base_url".
func (s Settings) LookupFile(name, path string) (string, error) {
	file := filepath.Join(s.APIDataDir, name)
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading config file: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parsing %s: %w", file, err)
	}
	v, err := Lookup(doc, path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if v == nil {
		return "", fmt.Errorf("%s: value at %q is empty", name, path)
	}
	out := fmt.Sprint(v)
	if out == "" {
		return "", fmt.Errorf("%s: value at %q is empty", name, path)
	}
	return out, nil
}

// Lookup walks a decoded YAML document. Numeric segments index sequences.
func Lookup(doc any, path string) (any, error) {
	v := doc
	for _, key := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, fmt.Errorf("path %q not found, key %q missing", path, key)
			}
			v = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("path %q not found, bad index %q", path, key)
			}
			v = node[i]
		default:
			return nil, fmt.Errorf("path %q not found, %q is not a mapping", path, key)
		}
	}
	return v, nil
}
