package spec

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxExpandedNodes caps the size of a document once every alias is expanded
// in place. Decoding, validation and raw schema values all walk the expanded
// tree, so this also bounds their work.
const maxExpandedNodes = 1 << 20

// checkExpansion measures root with aliases expanded. Each node is measured
// once and its size reused at every alias that points to it, so the check is
// linear in the parsed node count.
func checkExpansion(root *yaml.Node, limit int) error {
	sizes := make(map[*yaml.Node]int)
	active := make(map[*yaml.Node]bool)
	var measure func(n *yaml.Node) (int, error)
	measure = func(n *yaml.Node) (int, error) {
		if n == nil {
			return 0, nil
		}
		if size, ok := sizes[n]; ok {
			return size, nil
		}
		if active[n] {
			return 0, fmt.Errorf("alias at line %d refers to a node that contains it", n.Line)
		}
		active[n] = true
		defer delete(active, n)

		children := n.Content
		if n.Kind == yaml.AliasNode {
			children = []*yaml.Node{n.Alias}
		}
		total := 1
		for _, c := range children {
			size, err := measure(c)
			if err != nil {
				return 0, err
			}
			total += size
			if total > limit {
				return 0, fmt.Errorf("document expands to more than %d nodes through aliases", limit)
			}
		}
		sizes[n] = total
		return total, nil
	}
	_, err := measure(root)
	return err
}

func deref(n *yaml.Node) *yaml.Node {
	for i := 0; n != nil && n.Kind == yaml.AliasNode && i < maxNodeDepth; i++ {
		n = n.Alias
	}
	return n
}

func isMapping(n *yaml.Node) bool {
	n = deref(n)
	return n != nil && n.Kind == yaml.MappingNode
}

func isSequence(n *yaml.Node) bool {
	n = deref(n)
	return n != nil && n.Kind == yaml.SequenceNode
}

// mapGet returns the value stored under key in a mapping node.
func mapGet(n *yaml.Node, key string) *yaml.Node {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return deref(n.Content[i+1])
		}
	}
	return nil
}

// eachPair walks a mapping node in document order.
func eachPair(n *yaml.Node, fn func(key string, value *yaml.Node)) {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		fn(n.Content[i].Value, deref(n.Content[i+1]))
	}
}

func items(n *yaml.Node) []*yaml.Node {
	n = deref(n)
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]*yaml.Node, 0, len(n.Content))
	for _, c := range n.Content {
		out = append(out, deref(c))
	}
	return out
}

// scalar returns the trimmed text of a scalar node, or "".
func scalar(n *yaml.Node) string {
	n = deref(n)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}
	return strings.TrimSpace(n.Value)
}

func boolean(n *yaml.Node) bool {
	n = deref(n)
	if n == nil || n.Kind != yaml.ScalarNode {
		return false
	}
	var b bool
	if err := n.Decode(&b); err != nil {
		return false
	}
	return b
}

func stringList(n *yaml.Node) []string {
	var out []string
	for _, c := range items(n) {
		if s := scalar(c); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func kindName(n *yaml.Node) string {
	n = deref(n)
	if n == nil {
		return "nothing"
	}
	switch n.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	}
	return "node"
}

// escapePointer encodes one JSON Pointer segment.
func escapePointer(s string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(s)
}

func unescapePointer(s string) string {
	return strings.NewReplacer("~1", "/", "~0", "~").Replace(s)
}
