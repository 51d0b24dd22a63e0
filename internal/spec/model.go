package spec

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Source document model. Everything here is produced by Decode and is
// read-only afterwards; slices keep the order keys had in the document.

type HttpMethod string

const (
	GET     HttpMethod = "get"
	POST    HttpMethod = "post"
	PUT     HttpMethod = "put"
	DELETE  HttpMethod = "delete"
	PATCH   HttpMethod = "patch"
	HEAD    HttpMethod = "head"
	OPTIONS HttpMethod = "options"
)

// Methods lists the verbs eligible for import.
var Methods = []HttpMethod{GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS}

// IsMethod reports whether key names an importable verb.
func IsMethod(key string) bool {
	for _, m := range Methods {
		if string(m) == key {
			return true
		}
	}
	return false
}

type SourceDocument struct {
	Marker  string // "openapi" or "swagger"
	Version string
	Info    Info
	Servers []Server
	Tags    []Tag
	Paths   []PathItem
	Schemas *SchemaSet

	// Warnings collects parts of the document that were skipped while decoding.
	Warnings []string
}

// IsSwagger2 reports whether the document declared a swagger marker.
func (d *SourceDocument) IsSwagger2() bool { return d.Marker == "swagger" }

// TagDescription returns the description of a top-level tag object, if declared.
func (d *SourceDocument) TagDescription(name string) string {
	for _, t := range d.Tags {
		if t.Name == name {
			return t.Description
		}
	}
	return ""
}

type Info struct {
	Title       string
	Version     string
	Description string
}

type Server struct {
	URL         string
	Description string
}

type Tag struct {
	Name        string
	Description string
}

type PathItem struct {
	Path       string
	Operations []Operation
}

type Operation struct {
	Method      HttpMethod
	Summary     string
	Description string
	OperationID string
	Tags        []string
	Parameters  []Parameter
	RequestBody *RequestBody
	Responses   []Response
}

type Parameter struct {
	Name        string
	In          string // raw value; may be empty or unknown
	Required    bool
	Description string
	Schema      *Schema
	Example     any
	HasExample  bool
}

type RequestBody struct {
	Description string
	Required    bool
	Content     []MediaType
}

type Response struct {
	Status      string // 200, 4XX, default
	Description string
	Content     []MediaType
}

type MediaType struct {
	Mime       string
	Schema     *Schema
	Example    any
	HasExample bool
}

// Schema is one node of a schema graph. Reference nodes only carry Ref;
// graphs may be cyclic through references but never through pointers.
type Schema struct {
	Type        string
	Format      string
	Description string
	Ref         string // component name, or the raw pointer when it is not local
	Properties  []Property
	Required    []string
	Items       *Schema
	Enum        []any
	Example     any
	HasExample  bool
	AllOf       []*Schema
	OneOf       []*Schema
	AnyOf       []*Schema

	// Invalid holds the reason the node could not be decoded, if any.
	Invalid string

	raw *yaml.Node
}

// RawValue returns the node as written, with mappings as Object so key
// order survives serialization. Schemas not produced by Decode return nil.
func (s *Schema) RawValue() any {
	if s == nil {
		return nil
	}
	if s.raw != nil {
		return nodeValue(s.raw)
	}
	return s.structValue()
}

// structValue rebuilds a raw value from the decoded fields, for schemas
// assembled in code (Swagger 2.0 form fields, merged body parameters).
func (s *Schema) structValue() any {
	if s.Ref != "" {
		ref := s.Ref
		if !strings.HasPrefix(ref, "#") && !strings.Contains(ref, "/") {
			ref = componentSchemaPrefix + escapePointer(ref)
		}
		return Object{{Key: "$ref", Value: ref}}
	}
	var obj Object
	if s.Type != "" {
		obj = append(obj, Member{Key: "type", Value: s.Type})
	}
	if s.Format != "" {
		obj = append(obj, Member{Key: "format", Value: s.Format})
	}
	if s.Description != "" {
		obj = append(obj, Member{Key: "description", Value: s.Description})
	}
	if len(s.Enum) > 0 {
		obj = append(obj, Member{Key: "enum", Value: s.Enum})
	}
	if s.Items != nil {
		obj = append(obj, Member{Key: "items", Value: s.Items.RawValue()})
	}
	if len(s.Properties) > 0 {
		props := make(Object, 0, len(s.Properties))
		for _, p := range s.Properties {
			props = append(props, Member{Key: p.Name, Value: p.Schema.RawValue()})
		}
		obj = append(obj, Member{Key: "properties", Value: props})
	}
	if len(s.Required) > 0 {
		obj = append(obj, Member{Key: "required", Value: s.Required})
	}
	if s.HasExample {
		obj = append(obj, Member{Key: "example", Value: s.Example})
	}
	return obj
}

// IsRef reports whether the node is a reference.
func (s *Schema) IsRef() bool { return s != nil && s.Ref != "" }

type Property struct {
	Name   string
	Schema *Schema
}

// SchemaSet is the ordered components.schemas (or definitions) mapping.
type SchemaSet struct {
	names  []string
	byName map[string]*Schema
}

func NewSchemaSet() *SchemaSet {
	return &SchemaSet{byName: make(map[string]*Schema)}
}

// Add appends or replaces a named schema, keeping first-seen order.
func (s *SchemaSet) Add(name string, schema *Schema) {
	if _, ok := s.byName[name]; !ok {
		s.names = append(s.names, name)
	}
	s.byName[name] = schema
}

// Get returns the schema registered under name. A nil set has no entries.
func (s *SchemaSet) Get(name string) (*Schema, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.byName[name]
	return v, ok
}

func (s *SchemaSet) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

func (s *SchemaSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}
