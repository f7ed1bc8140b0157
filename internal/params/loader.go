package params

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/parameters.base.yaml
var defaultsFS embed.FS

type document struct {
	Parameters map[string]any `yaml:"parameters"`
}

// LoadDefault parses the embedded base catalog shipped with the binary.
func LoadDefault() (*MapCatalog, error) {
	data, err := defaultsFS.ReadFile("defaults/parameters.base.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded catalog: %w", err)
	}
	return Parse(data)
}

// LoadFile parses a catalog from a YAML file on disk.
func LoadFile(path string) (*MapCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse flattens a nested parameter document into dotted-key records. A node
// carrying a "value" field is a leaf record; everything else is a namespace.
func Parse(data []byte) (*MapCatalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCatalog, err)
	}
	if doc.Parameters == nil {
		return nil, fmt.Errorf("%w: missing top-level parameters map", ErrMalformedCatalog)
	}

	records := make(map[string]Record)
	if err := flatten("", doc.Parameters, records); err != nil {
		return nil, err
	}
	return New(records), nil
}

func flatten(prefix string, node map[string]any, out map[string]Record) error {
	for name, child := range node {
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		m, ok := asStringMap(child)
		if !ok {
			return fmt.Errorf("%w: node %q is not a mapping", ErrMalformedCatalog, key)
		}

		if _, leaf := m["value"]; leaf {
			rec, err := leafRecord(key, m)
			if err != nil {
				return err
			}
			out[key] = rec
			continue
		}

		if err := flatten(key, m, out); err != nil {
			return err
		}
	}
	return nil
}

func leafRecord(key string, node map[string]any) (Record, error) {
	value, err := toFloat(node["value"])
	if err != nil {
		return Record{}, fmt.Errorf("%w: %q value: %v", ErrMalformedCatalog, key, err)
	}
	return Record{
		Key:         key,
		Value:       value,
		Units:       toString(node["units"]),
		Definition:  toString(node["definition"]),
		Description: toString(node["description"]),
		Reference:   toString(node["reference"]),
		SourceType:  SourceType(toString(node["source_type"])),
		SourceID:    toString(node["source_id"]),
		Notes:       toString(node["notes"]),
		Layer:       "base",
	}, nil
}

func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not numeric: %T", v)
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
