package backend

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Dimension is a name/value tag attached to every record of a flush.
type Dimension struct {
	Name  string
	Value string
}

// OrderedMap is a string map that remembers insertion order. It is used for
// dimension configuration, where the order of the YAML mapping is kept.
type OrderedMap struct {
	keys   []string
	values map[string]string
}

// NewOrderedMap builds an OrderedMap from alternating key/value arguments.
// A trailing key without a value is stored with an empty value.
func NewOrderedMap(kv ...string) OrderedMap {
	var m OrderedMap

	for i := 0; i < len(kv); i += 2 {
		value := ""
		if i+1 < len(kv) {
			value = kv[i+1]
		}

		m.Set(kv[i], value)
	}

	return m
}

// Set stores value under key. Overwriting a key keeps its original position.
func (m *OrderedMap) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string, 4)
	}

	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}

	m.values[key] = value
}

// Get returns the value stored under key.
func (m OrderedMap) Get(key string) (string, bool) {
	v, ok := m.values[key]

	return v, ok
}

// Keys returns the keys in insertion order.
func (m OrderedMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)

	return out
}

// Len returns the number of entries.
func (m OrderedMap) Len() int {
	return len(m.keys)
}

// UnmarshalYAML decodes a YAML mapping while keeping key order.
// Null values decode to the empty string.
func (m *OrderedMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping, got %s", node.Line, nodeKindName(node.Kind))
	}

	*m = OrderedMap{}

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]

		if valueNode.Kind != yaml.ScalarNode {
			return fmt.Errorf(
				"line %d: value for %q must be a scalar",
				valueNode.Line, keyNode.Value,
			)
		}

		value := valueNode.Value
		if valueNode.Tag == "!!null" {
			value = ""
		}

		m.Set(keyNode.Value, value)
	}

	return nil
}

// MarshalYAML encodes the map as a YAML mapping in insertion order.
func (m OrderedMap) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	for _, k := range m.keys {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: m.values[k]},
		)
	}

	return node, nil
}

func nodeKindName(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "mapping"
	}
}

// NormalizeDimensions converts a dimension map into an ordered list,
// dropping entries with an empty value.
func NormalizeDimensions(m OrderedMap) []Dimension {
	out := make([]Dimension, 0, m.Len())

	for _, k := range m.keys {
		v := m.values[k]
		if v == "" {
			continue
		}

		out = append(out, Dimension{Name: k, Value: v})
	}

	return out
}
