// Package config loads, validates and expands test bed configurations.
//
// A raw config holds shared keys plus a list of test beds. Expand turns it into
// one self-contained ExpandedConfig per test bed, which is the unit handed to a
// runner.
package config

import (
	"fmt"
)

// RawConfig is a decoded configuration blob.
type RawConfig map[string]any

// Clone returns a deep copy of the config.
func (c RawConfig) Clone() RawConfig {
	if c == nil {
		return nil
	}
	return RawConfig(cloneMap(c))
}

// TestBedNames lists the names of the configured test beds in order. Entries
// without a string name are skipped.
func (c RawConfig) TestBedNames() []string {
	beds, _ := asList(c[KeyTestBed])
	var names []string
	for _, b := range beds {
		bed, ok := asMap(b)
		if !ok {
			continue
		}
		if name, ok := bed[KeyTestBedName].(string); ok {
			names = append(names, name)
		}
	}
	return names
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case RawConfig:
		return RawConfig(cloneMap(t))
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneMap(t[i])
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// asMap accepts the object shapes produced by the JSON, YAML and TOML decoders.
func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case RawConfig:
		return t, true
	default:
		return nil, false
	}
}

// asList accepts the list shapes produced by the JSON, YAML and TOML decoders.
func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out, true
	default:
		return nil, false
	}
}

// toStringList accepts a single string or a list of strings.
func toStringList(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil, fmt.Errorf("empty path")
		}
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("entry #%d must be a non-empty string, found %T", i, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a string or a list of strings, found %T", v)
	}
}
