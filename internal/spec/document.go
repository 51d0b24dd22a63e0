package spec

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	componentSchemaPrefix = "#/components/schemas/"
	definitionsPrefix     = "#/definitions/"
)

// maxSchemaDepth bounds how deep inline (non-reference) schema nesting is
// decoded; deeper nodes are marked invalid.
const maxSchemaDepth = 128

// Decode validates raw JSON or YAML text and returns the typed source
// document. It fails with a MalformedDocument SpecError when the root is not
// a mapping, when neither an openapi nor a swagger marker is declared, when
// paths is missing or empty, or when aliases expand the document beyond
// maxExpandedNodes. Nothing past that point is fatal: parts
// that do not have the expected shape are skipped and noted in Warnings.
func Decode(data []byte) (*SourceDocument, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, malformed("#", "document is empty")
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse spec: %v", err), Cause: err}
	}
	if err := checkExpansion(&root, maxExpandedNodes); err != nil {
		return nil, malformed("#", err.Error())
	}
	top := deref(&root)
	if top != nil && top.Kind == yaml.DocumentNode && len(top.Content) > 0 {
		top = deref(top.Content[0])
	}
	if !isMapping(top) {
		return nil, malformed("#", fmt.Sprintf("document root must be a mapping, got %s", kindName(top)))
	}

	doc := &SourceDocument{}
	switch {
	case scalar(mapGet(top, "openapi")) != "":
		doc.Marker, doc.Version = "openapi", scalar(mapGet(top, "openapi"))
	case scalar(mapGet(top, "swagger")) != "":
		doc.Marker, doc.Version = "swagger", scalar(mapGet(top, "swagger"))
	default:
		return nil, malformed("#", "missing version marker (expected 'openapi' or 'swagger')")
	}

	paths := mapGet(top, "paths")
	if !isMapping(paths) || len(paths.Content) == 0 {
		return nil, malformed("#/paths", "document has no paths")
	}

	d := &decoder{top: top, doc: doc}
	d.decodeInfo()
	d.decodeSchemas()
	eachPair(paths, func(path string, item *yaml.Node) {
		d.decodePathItem(path, item)
	})
	return doc, nil
}

type decoder struct {
	top *yaml.Node
	doc *SourceDocument
}

func (d *decoder) warnf(pointer, format string, args ...any) {
	d.doc.Warnings = append(d.doc.Warnings, pointer+": "+fmt.Sprintf(format, args...))
}

func (d *decoder) decodeInfo() {
	info := mapGet(d.top, "info")
	d.doc.Info = Info{
		Title:       scalar(mapGet(info, "title")),
		Version:     scalar(mapGet(info, "version")),
		Description: scalar(mapGet(info, "description")),
	}

	for _, s := range items(mapGet(d.top, "servers")) {
		if u := scalar(mapGet(s, "url")); u != "" {
			d.doc.Servers = append(d.doc.Servers, Server{URL: u, Description: scalar(mapGet(s, "description"))})
		}
	}
	if d.doc.IsSwagger2() {
		if srv, ok := swagger2Server(d.top); ok {
			d.doc.Servers = append(d.doc.Servers, srv)
		}
	}

	for _, t := range items(mapGet(d.top, "tags")) {
		if name := scalar(mapGet(t, "name")); name != "" {
			d.doc.Tags = append(d.doc.Tags, Tag{Name: name, Description: scalar(mapGet(t, "description"))})
		}
	}
}

func (d *decoder) decodeSchemas() {
	d.doc.Schemas = NewSchemaSet()
	defs := mapGet(mapGet(d.top, "components"), "schemas")
	if d.doc.IsSwagger2() {
		defs = mapGet(d.top, "definitions")
	}
	eachPair(defs, func(name string, node *yaml.Node) {
		d.doc.Schemas.Add(name, decodeSchema(node, 0))
	})
}

func (d *decoder) decodePathItem(path string, item *yaml.Node) {
	pointer := "#/paths/" + escapePointer(path)
	if !isMapping(item) {
		d.warnf(pointer, "path item must be a mapping, got %s", kindName(item))
		return
	}
	pi := PathItem{Path: path}
	// Path-level parameters and vendor keys are deliberately not merged.
	eachPair(item, func(key string, node *yaml.Node) {
		if !IsMethod(key) {
			return
		}
		if !isMapping(node) {
			d.warnf(pointer+"/"+key, "operation must be a mapping, got %s", kindName(node))
			return
		}
		pi.Operations = append(pi.Operations, d.decodeOperation(pointer+"/"+key, HttpMethod(key), node))
	})
	d.doc.Paths = append(d.doc.Paths, pi)
}

func (d *decoder) decodeOperation(pointer string, method HttpMethod, node *yaml.Node) Operation {
	op := Operation{
		Method:      method,
		Summary:     scalar(mapGet(node, "summary")),
		Description: scalar(mapGet(node, "description")),
		OperationID: scalar(mapGet(node, "operationId")),
		Tags:        operationTags(mapGet(node, "tags")),
	}

	var swaggerBody []*yaml.Node
	var formFields []*yaml.Node
	for i, pn := range items(mapGet(node, "parameters")) {
		pn = d.resolveComponent(pn, "parameters")
		if !isMapping(pn) {
			d.warnf(fmt.Sprintf("%s/parameters/%d", pointer, i), "parameter could not be resolved")
			continue
		}
		if d.doc.IsSwagger2() {
			switch scalar(mapGet(pn, "in")) {
			case "body":
				swaggerBody = append(swaggerBody, pn)
				continue
			case "formData":
				formFields = append(formFields, pn)
				continue
			}
		}
		op.Parameters = append(op.Parameters, d.decodeParameter(pn))
	}

	if d.doc.IsSwagger2() {
		op.RequestBody = swagger2RequestBody(d.top, node, swaggerBody, formFields)
	} else if rb := d.resolveComponent(mapGet(node, "requestBody"), "requestBodies"); isMapping(rb) {
		op.RequestBody = &RequestBody{
			Description: scalar(mapGet(rb, "description")),
			Required:    boolean(mapGet(rb, "required")),
			Content:     decodeContent(mapGet(rb, "content")),
		}
	}

	eachPair(mapGet(node, "responses"), func(status string, rn *yaml.Node) {
		rn = d.resolveComponent(rn, "responses")
		if !isMapping(rn) {
			d.warnf(pointer+"/responses/"+escapePointer(status), "response could not be resolved")
			return
		}
		resp := Response{Status: status, Description: scalar(mapGet(rn, "description"))}
		if d.doc.IsSwagger2() {
			resp.Content = swagger2ResponseContent(d.top, node, rn)
		} else {
			resp.Content = decodeContent(mapGet(rn, "content"))
		}
		op.Responses = append(op.Responses, resp)
	})
	return op
}

// operationTags accepts a list of strings, or a lone string as a single tag.
func operationTags(n *yaml.Node) []string {
	if s := scalar(n); s != "" {
		return []string{s}
	}
	return stringList(n)
}

func (d *decoder) decodeParameter(pn *yaml.Node) Parameter {
	p := Parameter{
		Name:        scalar(mapGet(pn, "name")),
		In:          scalar(mapGet(pn, "in")),
		Required:    boolean(mapGet(pn, "required")),
		Description: scalar(mapGet(pn, "description")),
	}
	if sn := mapGet(pn, "schema"); sn != nil {
		p.Schema = decodeSchema(sn, 0)
	} else if scalar(mapGet(pn, "type")) != "" {
		// Swagger 2.0 keeps type, format, items and enum on the parameter itself.
		p.Schema = decodeSchema(pn, 0)
		p.Schema.Description = ""
	}
	p.Example, p.HasExample = decodeExample(pn)
	return p
}

// resolveComponent follows a local $ref to a reusable parameter, request body
// or response. Only one level is followed; nil means unresolvable.
func (d *decoder) resolveComponent(n *yaml.Node, section string) *yaml.Node {
	ref := scalar(mapGet(n, "$ref"))
	if ref == "" {
		return n
	}
	var prefix string
	if d.doc.IsSwagger2() {
		prefix = "#/" + section + "/"
	} else {
		prefix = "#/components/" + section + "/"
	}
	if !strings.HasPrefix(ref, prefix) {
		return nil
	}
	name := unescapePointer(strings.TrimPrefix(ref, prefix))
	var container *yaml.Node
	if d.doc.IsSwagger2() {
		container = mapGet(d.top, section)
	} else {
		container = mapGet(mapGet(d.top, "components"), section)
	}
	target := mapGet(container, name)
	if scalar(mapGet(target, "$ref")) != "" {
		return nil
	}
	return target
}

func decodeContent(n *yaml.Node) []MediaType {
	var out []MediaType
	eachPair(n, func(mime string, mn *yaml.Node) {
		mt := MediaType{Mime: mime}
		if sn := mapGet(mn, "schema"); sn != nil {
			mt.Schema = decodeSchema(sn, 0)
		}
		mt.Example, mt.HasExample = decodeExample(mn)
		out = append(out, mt)
	})
	return out
}

// decodeExample reads `example`, or the value of the first entry of an
// `examples` mapping.
func decodeExample(n *yaml.Node) (any, bool) {
	if n = deref(n); n == nil || n.Kind != yaml.MappingNode {
		return nil, false
	}
	if ex := mapGet(n, "example"); ex != nil {
		return nodeValue(ex), true
	}
	examples := mapGet(n, "examples")
	if !isMapping(examples) || len(examples.Content) < 2 {
		return nil, false
	}
	first := deref(examples.Content[1])
	if v := mapGet(first, "value"); v != nil {
		return nodeValue(v), true
	}
	return nil, false
}

func decodeSchema(n *yaml.Node, depth int) *Schema {
	n = deref(n)
	if n == nil {
		return nil
	}
	s := &Schema{raw: n}
	if depth > maxSchemaDepth {
		s.Invalid = "schema nesting too deep"
		return s
	}
	if n.Kind != yaml.MappingNode {
		s.Invalid = fmt.Sprintf("schema must be a mapping, got %s", kindName(n))
		return s
	}
	if ref := mapGet(n, "$ref"); ref != nil {
		s.Ref = refName(scalar(ref))
		if s.Ref == "" {
			s.Invalid = "$ref must be a non-empty string"
		}
		return s
	}

	switch t := mapGet(n, "type"); {
	case t == nil:
	case t.Kind == yaml.ScalarNode:
		s.Type = scalar(t)
	case t.Kind == yaml.SequenceNode:
		for _, name := range stringList(t) {
			if name != "null" {
				s.Type = name
				break
			}
		}
	default:
		s.Invalid = fmt.Sprintf("type must be a string, got %s", kindName(t))
	}
	s.Format = scalar(mapGet(n, "format"))
	s.Description = scalar(mapGet(n, "description"))
	s.Required = stringList(mapGet(n, "required"))

	if props := mapGet(n, "properties"); props != nil {
		if !isMapping(props) {
			s.Invalid = fmt.Sprintf("properties must be a mapping, got %s", kindName(props))
		}
		eachPair(props, func(name string, pn *yaml.Node) {
			s.Properties = append(s.Properties, Property{Name: name, Schema: decodeSchema(pn, depth+1)})
		})
	}
	if it := mapGet(n, "items"); it != nil {
		s.Items = decodeSchema(it, depth+1)
	}
	for _, e := range items(mapGet(n, "enum")) {
		s.Enum = append(s.Enum, nodeValue(e))
	}
	if ex := mapGet(n, "example"); ex != nil {
		s.Example, s.HasExample = nodeValue(ex), true
	} else if exs := items(mapGet(n, "examples")); len(exs) > 0 {
		s.Example, s.HasExample = nodeValue(exs[0]), true
	}
	for _, c := range items(mapGet(n, "allOf")) {
		s.AllOf = append(s.AllOf, decodeSchema(c, depth+1))
	}
	for _, c := range items(mapGet(n, "oneOf")) {
		s.OneOf = append(s.OneOf, decodeSchema(c, depth+1))
	}
	for _, c := range items(mapGet(n, "anyOf")) {
		s.AnyOf = append(s.AnyOf, decodeSchema(c, depth+1))
	}
	return s
}

// refName turns a local schema pointer into the component name. Anything
// else is returned unchanged and will not resolve.
func refName(ref string) string {
	for _, prefix := range []string{componentSchemaPrefix, definitionsPrefix} {
		if strings.HasPrefix(ref, prefix) {
			return unescapePointer(strings.TrimPrefix(ref, prefix))
		}
	}
	return ref
}
