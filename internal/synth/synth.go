// Package synth produces representative example values from schema graphs.
//
// Synthesis is pure and deterministic: the same schema and components always
// give the same value. Reference cycles are cut by tracking the names on the
// current root-to-node path, so a self-referencing schema such as a linked
// list node yields a finite value with {} where the cycle would close.
package synth

import (
	"errors"
	"fmt"

	"github.com/mark3labs/specimport/internal/spec"
)

// DefaultMaxDepth bounds nesting of properties, items and composition
// branches within one call. Following a reference does not add a level.
const DefaultMaxDepth = 64

// DefaultMaxNodes bounds how many schema nodes one call may visit. Shared
// references are expanded at every use, so a shallow graph can still fan out.
const DefaultMaxNodes = 10000

// ErrSynthesisDegraded matches every DegradedError.
var ErrSynthesisDegraded = errors.New("synthesis degraded")

// DegradedError reports a schema node that could not be synthesized.
type DegradedError struct {
	Pointer string // location relative to the schema root, e.g. "#/properties/tags/items"
	Reason  string
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("synthesize %s: %s", e.Pointer, e.Reason)
}

func (e *DegradedError) Is(target error) bool { return target == ErrSynthesisDegraded }

// Synthesizer builds example values against one components mapping.
type Synthesizer struct {
	resolver *Resolver
	maxDepth int
	maxNodes int
}

type Option func(*Synthesizer)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.maxDepth = n
		}
	}
}

// WithMaxNodes overrides DefaultMaxNodes.
func WithMaxNodes(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.maxNodes = n
		}
	}
}

func New(schemas *spec.SchemaSet, opts ...Option) *Synthesizer {
	s := &Synthesizer{resolver: NewResolver(schemas), maxDepth: DefaultMaxDepth, maxNodes: DefaultMaxNodes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Example returns a sample value for schema. Every call starts with an empty
// reference path. Objects are returned as spec.Object in declaration order.
func (s *Synthesizer) Example(schema *spec.Schema) (any, error) {
	w := &walk{Synthesizer: s}
	return w.example(schema, nil, "#", 0)
}

// walk is the state of one Example call.
type walk struct {
	*Synthesizer
	visited int
}

func (s *walk) example(node *spec.Schema, path *refPath, pointer string, depth int) (any, error) {
	if node == nil {
		return nil, nil
	}
	if depth > s.maxDepth {
		return nil, &DegradedError{Pointer: pointer, Reason: fmt.Sprintf("nesting exceeds %d levels", s.maxDepth)}
	}
	s.visited++
	if s.visited > s.maxNodes {
		return nil, &DegradedError{Pointer: pointer, Reason: fmt.Sprintf("example exceeds %d schema nodes", s.maxNodes)}
	}
	if node.IsRef() {
		resolved, next, ok := s.resolver.resolve(node, path)
		if !ok {
			return spec.Object{}, nil
		}
		return s.example(resolved, next, pointer, depth)
	}
	if node.Invalid != "" {
		return nil, &DegradedError{Pointer: pointer, Reason: node.Invalid}
	}
	if node.HasExample {
		return node.Example, nil
	}

	switch node.Type {
	case "string":
		if len(node.Enum) > 0 {
			return node.Enum[0], nil
		}
		return "string", nil
	case "number", "integer":
		if len(node.Enum) > 0 {
			return node.Enum[0], nil
		}
		return 0, nil
	case "boolean":
		return true, nil
	case "array":
		if node.Items == nil {
			return []any{}, nil
		}
		v, err := s.example(node.Items, path, pointer+"/items", depth+1)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	case "object":
		obj := make(spec.Object, 0, len(node.Properties))
		for _, p := range node.Properties {
			v, err := s.example(p.Schema, path, pointer+"/properties/"+p.Name, depth+1)
			if err != nil {
				return nil, err
			}
			obj = append(obj, spec.Member{Key: p.Name, Value: v})
		}
		return s.mergeAllOf(obj, node, path, pointer, depth)
	case "":
		return s.composition(node, path, pointer, depth)
	}
	return nil, nil
}

// composition handles untyped nodes built from allOf, oneOf or anyOf. Nodes
// with none of them have no example.
func (s *walk) composition(node *spec.Schema, path *refPath, pointer string, depth int) (any, error) {
	switch {
	case len(node.AllOf) > 0:
		return s.mergeAllOf(nil, node, path, pointer, depth)
	case len(node.OneOf) > 0:
		return s.example(node.OneOf[0], path, pointer+"/oneOf/0", depth+1)
	case len(node.AnyOf) > 0:
		return s.example(node.AnyOf[0], path, pointer+"/anyOf/0", depth+1)
	}
	return nil, nil
}

// mergeAllOf folds the object examples of every allOf branch into base, in
// order, later keys replacing earlier ones. A branch that is not an object
// wins outright when base is still nil.
func (s *walk) mergeAllOf(base spec.Object, node *spec.Schema, path *refPath, pointer string, depth int) (any, error) {
	var scalar any
	for i, branch := range node.AllOf {
		v, err := s.example(branch, path, fmt.Sprintf("%s/allOf/%d", pointer, i), depth+1)
		if err != nil {
			return nil, err
		}
		obj, ok := v.(spec.Object)
		if !ok {
			if scalar == nil {
				scalar = v
			}
			continue
		}
		for _, m := range obj {
			base = base.Set(m.Key, m.Value)
		}
	}
	if base == nil && scalar != nil {
		return scalar, nil
	}
	if base == nil {
		return spec.Object{}, nil
	}
	return base, nil
}
