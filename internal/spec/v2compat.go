package spec

import (
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	mimeJSON      = "application/json"
	mimeForm      = "application/x-www-form-urlencoded"
	mimeMultipart = "multipart/form-data"
)

// swagger2Server folds host, basePath and schemes into a single server.
func swagger2Server(top *yaml.Node) (Server, bool) {
	host := scalar(mapGet(top, "host"))
	if host == "" {
		return Server{}, false
	}
	scheme := "https"
	if schemes := stringList(mapGet(top, "schemes")); len(schemes) > 0 {
		scheme = schemes[0]
	}
	return Server{URL: scheme + "://" + host + scalar(mapGet(top, "basePath"))}, true
}

// mediaTypes returns the operation-level list when declared, otherwise the
// document-level one, otherwise application/json.
func mediaTypes(top, op *yaml.Node, key string) []string {
	if list := stringList(mapGet(op, key)); len(list) > 0 {
		return list
	}
	if list := stringList(mapGet(top, key)); len(list) > 0 {
		return list
	}
	return []string{mimeJSON}
}

// swagger2RequestBody builds a v3-style request body from Swagger 2.0 body
// and formData parameters. Non-compliant operations are folded the same way
// converters do: several body parameters are merged into one object schema
// with a property per parameter, and body parameters mixed with formData are
// treated as additional form fields.
func swagger2RequestBody(top, op *yaml.Node, body, form []*yaml.Node) *RequestBody {
	if len(body) == 0 && len(form) == 0 {
		return nil
	}

	if len(form) > 0 {
		form = append(form, body...)
		mime := mimeForm
		for _, c := range stringList(mapGet(op, "consumes")) {
			if c == mimeMultipart {
				mime = mimeMultipart
				break
			}
		}
		schema := &Schema{Type: "object"}
		required := false
		for _, f := range form {
			name := scalar(mapGet(f, "name"))
			if name == "" {
				name = "field"
			}
			schema.Properties = append(schema.Properties, Property{Name: name, Schema: formFieldSchema(f)})
			if boolean(mapGet(f, "required")) {
				schema.Required = append(schema.Required, name)
				required = true
			}
		}
		return &RequestBody{Required: required, Content: []MediaType{{Mime: mime, Schema: schema}}}
	}

	rb := &RequestBody{}
	var schema *Schema
	var example any
	var hasExample bool
	if len(body) == 1 {
		rb.Description = scalar(mapGet(body[0], "description"))
		rb.Required = boolean(mapGet(body[0], "required"))
		schema = bodySchema(body[0])
		example, hasExample = decodeExample(body[0])
	} else {
		schema = &Schema{Type: "object"}
		for _, b := range body {
			name := scalar(mapGet(b, "name"))
			if name == "" {
				name = "field"
			}
			schema.Properties = append(schema.Properties, Property{Name: name, Schema: bodySchema(b)})
			if boolean(mapGet(b, "required")) {
				schema.Required = append(schema.Required, name)
				rb.Required = true
			}
		}
	}
	for _, mime := range mediaTypes(top, op, "consumes") {
		rb.Content = append(rb.Content, MediaType{Mime: mime, Schema: schema, Example: example, HasExample: hasExample})
	}
	return rb
}

func bodySchema(param *yaml.Node) *Schema {
	if sn := mapGet(param, "schema"); sn != nil {
		return decodeSchema(sn, 0)
	}
	return &Schema{Type: "string"}
}

// formFieldSchema derives a schema from a formData parameter, or from a body
// parameter folded into a form. Referenced objects cannot be form fields and
// degrade to strings.
func formFieldSchema(param *yaml.Node) *Schema {
	if sn := mapGet(param, "schema"); sn != nil {
		s := decodeSchema(sn, 0)
		if s.IsRef() {
			return &Schema{Type: "string"}
		}
		return s
	}
	s := decodeSchema(param, 0)
	s.Description = scalar(mapGet(param, "description"))
	if s.Type == "" || s.Type == "file" {
		s.Type = "string"
		if scalar(mapGet(param, "type")) == "file" {
			s.Format = "binary"
		}
	}
	return s
}

// swagger2ResponseContent maps a response schema onto every produced media
// type. Entries of the response `examples` mapping override per media type.
func swagger2ResponseContent(top, op, resp *yaml.Node) []MediaType {
	sn := mapGet(resp, "schema")
	examples := mapGet(resp, "examples")
	if sn == nil && !isMapping(examples) {
		return nil
	}
	var schema *Schema
	if sn != nil {
		schema = decodeSchema(sn, 0)
	}
	produces := mediaTypes(top, op, "produces")
	eachPair(examples, func(mime string, _ *yaml.Node) {
		for _, p := range produces {
			if strings.EqualFold(p, mime) {
				return
			}
		}
		produces = append(produces, mime)
	})
	out := make([]MediaType, 0, len(produces))
	for _, mime := range produces {
		mt := MediaType{Mime: mime, Schema: schema}
		if ex := mapGet(examples, mime); ex != nil {
			mt.Example, mt.HasExample = nodeValue(ex), true
		}
		out = append(out, mt)
	}
	return out
}
