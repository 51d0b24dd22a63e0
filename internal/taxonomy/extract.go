package taxonomy

import (
	"log/slog"
	"strings"

	"github.com/mark3labs/specimport/internal/spec"
	"github.com/mark3labs/specimport/internal/synth"
)

// Extractor converts source operations into ImportedEndpoints against one
// document.
type Extractor struct {
	synth    *synth.Synthesizer
	resolver *synth.Resolver
	logger   *slog.Logger
}

func NewExtractor(doc *spec.SourceDocument, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{
		synth:    synth.New(doc.Schemas),
		resolver: synth.NewResolver(doc.Schemas),
		logger:   logger,
	}
}

// Extract builds the endpoint for one path + verb. Folder is left empty; the
// builder assigns it. Synthesis failures only drop the affected example.
func (x *Extractor) Extract(path string, op spec.Operation) ImportedEndpoint {
	method := strings.ToUpper(string(op.Method))
	ep := ImportedEndpoint{
		Name:        endpointName(method, path, op),
		Description: op.Description,
		Method:      method,
		Path:        path,
	}
	logger := x.logger.With("method", method, "path", path)

	for _, p := range op.Parameters {
		ip := ImportedParameter{
			Name:        p.Name,
			Location:    locationOf(p.In),
			Required:    p.Required,
			Description: p.Description,
			Type:        x.typeOf(p.Schema),
		}
		if p.HasExample {
			ip.Example = p.Example
		} else {
			ip.Example = x.example(logger.With("parameter", p.Name), p.Schema)
		}
		ep.Parameters = append(ep.Parameters, ip)
	}

	if op.RequestBody != nil {
		if mt, ok := preferredMedia(op.RequestBody.Content); ok {
			ep.Body = &ImportedBody{
				ContentType: mt.Mime,
				Example:     x.mediaExample(logger.With("body", mt.Mime), mt),
			}
			if mt.Schema != nil {
				ep.Body.Schema = mt.Schema.RawValue()
			}
			ep.Headers = append(ep.Headers, ImportedHeader{
				Key:         "Content-Type",
				Value:       mt.Mime,
				Description: "Media type of the request body",
			})
		}
	}

	accept := ""
	for _, r := range op.Responses {
		ir := ImportedResponse{StatusCode: r.Status, Description: r.Description}
		if mt, ok := preferredMedia(r.Content); ok {
			ir.ContentType = mt.Mime
			ir.Example = x.mediaExample(logger.With("response", r.Status), mt)
			if accept == "" {
				accept = mt.Mime
			}
		}
		ep.Responses = append(ep.Responses, ir)
	}
	if accept != "" {
		ep.Headers = append(ep.Headers, ImportedHeader{
			Key:         "Accept",
			Value:       accept,
			Description: "Media type of the documented responses",
		})
	}
	return ep
}

// endpointName falls back from summary to operationId to "METHOD path".
func endpointName(method, path string, op spec.Operation) string {
	if op.Summary != "" {
		return op.Summary
	}
	if op.OperationID != "" {
		return op.OperationID
	}
	return method + " " + path
}

func (x *Extractor) typeOf(schema *spec.Schema) string {
	if resolved, ok := x.resolver.Resolve(schema); ok && resolved != nil && resolved.Type != "" {
		return resolved.Type
	}
	return "string"
}

func (x *Extractor) mediaExample(logger *slog.Logger, mt spec.MediaType) any {
	if mt.HasExample {
		return mt.Example
	}
	return x.example(logger, mt.Schema)
}

func (x *Extractor) example(logger *slog.Logger, schema *spec.Schema) any {
	v, err := x.synth.Example(schema)
	if err != nil {
		logger.Debug("example synthesis degraded", "error", err)
		return nil
	}
	return v
}
