package spec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Object is an ordered JSON object. Example values and raw schema nodes use it
// so that serialization keeps the key order of the source document.
type Object []Member

type Member struct {
	Key   string
	Value any
}

// Get returns the value stored under key.
func (o Object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Keys returns the member keys in order.
func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, m := range o {
		keys[i] = m.Key
	}
	return keys
}

// Set replaces the value of an existing key or appends a new member.
func (o Object) Set(key string, value any) Object {
	for i, m := range o {
		if m.Key == key {
			o[i].Value = value
			return o
		}
	}
	return append(o, Member{Key: key, Value: value})
}

// MarshalJSON writes members in order. A nil Object encodes as {}.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(m.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", m.Key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML emits a mapping node with members in order.
func (o Object) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, m := range o {
		var val yaml.Node
		if err := val.Encode(m.Value); err != nil {
			return nil, fmt.Errorf("marshal %q: %w", m.Key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: m.Key},
			&val,
		)
	}
	return node, nil
}

// nodeValue converts a yaml node into plain values, using Object for
// mappings. Aliases are followed up to a fixed depth.
func nodeValue(n *yaml.Node) any {
	return nodeValueDepth(n, 0)
}

const maxNodeDepth = 256

func nodeValueDepth(n *yaml.Node, depth int) any {
	if n == nil || depth > maxNodeDepth {
		return nil
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return nodeValueDepth(n.Content[0], depth+1)
	case yaml.AliasNode:
		return nodeValueDepth(n.Alias, depth+1)
	case yaml.MappingNode:
		obj := make(Object, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			obj = append(obj, Member{Key: n.Content[i].Value, Value: nodeValueDepth(n.Content[i+1], depth+1)})
		}
		return obj
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			list = append(list, nodeValueDepth(c, depth+1))
		}
		return list
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return n.Value
		}
		return v
	}
	return nil
}

// plainValue is like nodeValue but produces map[string]any for mappings, the
// shape encoding/json based decoders expect.
func plainValue(v any) any {
	switch t := v.(type) {
	case Object:
		m := make(map[string]any, len(t))
		for _, member := range t {
			m[member.Key] = plainValue(member.Value)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	default:
		return v
	}
}
