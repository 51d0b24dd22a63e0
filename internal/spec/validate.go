package spec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// Validate runs kin-openapi structural validation over the raw text of an
// already decoded document. Swagger 2.0 documents are converted to v3 first.
// OpenAPI 3.1 and later are not covered by the validator and always pass.
func Validate(ctx context.Context, raw []byte, doc *SourceDocument) error {
	if doc.IsSwagger2() {
		data, err := toJSON(raw)
		if err != nil {
			return err
		}
		var v2 openapi2.T
		if err := json.Unmarshal(data, &v2); err != nil {
			return fmt.Errorf("decode swagger 2.0: %w", err)
		}
		v3, err := openapi2conv.ToV3(&v2)
		if err != nil {
			return fmt.Errorf("convert v2→v3: %w", err)
		}
		return v3.Validate(ctx)
	}
	if !strings.HasPrefix(doc.Version, "3.0") {
		return nil
	}
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	t, err := loader.LoadFromData(raw)
	if err != nil {
		return err
	}
	return t.Validate(ctx)
}

func toJSON(raw []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	return json.Marshal(plainValue(nodeValue(&node)))
}

func mapValidateErr(err error, location string) error {
	return &SpecError{
		Code:        ValidationError,
		Message:     "spec: " + err.Error(),
		Location:    location,
		JSONPointer: extractJSONPointer(err),
		Cause:       err,
	}
}

var jsonPtrRe = regexp.MustCompile(`#/[^\s'\"]+`)

func extractJSONPointer(err error) string {
	if err == nil {
		return ""
	}
	// Unwrap MultiError and take the first for brevity.
	if me, ok := err.(openapi3.MultiError); ok {
		if len(me) > 0 {
			return extractJSONPointer(me[0])
		}
	}
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		if parts := se.JSONPointer(); len(parts) > 0 {
			return "#/" + strings.Join(parts, "/")
		}
		if se.SchemaField != "" {
			return se.SchemaField
		}
	}
	if m := jsonPtrRe.FindString(err.Error()); m != "" {
		return m
	}
	return ""
}
