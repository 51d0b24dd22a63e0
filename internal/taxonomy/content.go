package taxonomy

import (
	"mime"
	"strings"

	"github.com/mark3labs/specimport/internal/spec"
)

// preferredMedia picks the media type used for a body or response:
// application/json when declared, then the first JSON-structured type
// (application/json variants with parameters, */*+json), then the first
// declared type in document order.
func preferredMedia(content []spec.MediaType) (spec.MediaType, bool) {
	if len(content) == 0 {
		return spec.MediaType{}, false
	}
	for _, mt := range content {
		if strings.EqualFold(strings.TrimSpace(mt.Mime), "application/json") {
			return mt, true
		}
	}
	for _, mt := range content {
		if isJSON(mt.Mime) {
			return mt, true
		}
	}
	return content[0], true
}

func isJSON(raw string) bool {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(raw))
	}
	_, sub, ok := strings.Cut(mediaType, "/")
	if !ok {
		return false
	}
	return sub == "json" || strings.HasSuffix(sub, "+json")
}
