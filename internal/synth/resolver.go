package synth

import "github.com/mark3labs/specimport/internal/spec"

// refPath is the chain of reference names on the way from the root of one
// synthesis call to the current node. It is immutable: push returns a new
// head that shares its parent, so sibling branches never observe each
// other's references.
type refPath struct {
	name   string
	parent *refPath
}

func (p *refPath) contains(name string) bool {
	for n := p; n != nil; n = n.parent {
		if n.name == name {
			return true
		}
	}
	return false
}

func (p *refPath) push(name string) *refPath {
	return &refPath{name: name, parent: p}
}

// Resolver looks up named schemas in a components mapping.
type Resolver struct {
	schemas *spec.SchemaSet
}

func NewResolver(schemas *spec.SchemaSet) *Resolver {
	return &Resolver{schemas: schemas}
}

// Resolve follows node to a concrete schema starting from an empty path.
func (r *Resolver) Resolve(node *spec.Schema) (*spec.Schema, bool) {
	resolved, _, ok := r.resolve(node, nil)
	return resolved, ok
}

// resolve follows node through any chain of references until it reaches a
// concrete schema. It returns the resolved node and the path extended with
// every name it passed. ok is false when a name is already on the path or is
// missing from components; callers substitute an empty object.
func (r *Resolver) resolve(node *spec.Schema, path *refPath) (resolved *spec.Schema, next *refPath, ok bool) {
	for node.IsRef() {
		if path.contains(node.Ref) {
			return nil, path, false
		}
		target, found := r.schemas.Get(node.Ref)
		if !found || target == nil {
			return nil, path, false
		}
		path = path.push(node.Ref)
		node = target
	}
	return node, path, true
}
