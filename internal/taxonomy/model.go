package taxonomy

// Location is where a parameter is sent.
type Location string

const (
	Query  Location = "QUERY"
	Path   Location = "PATH"
	Header Location = "HEADER"
	Cookie Location = "COOKIE"
)

// locationOf maps the source `in` value. Unknown or missing values are QUERY.
func locationOf(in string) Location {
	switch in {
	case "path":
		return Path
	case "header":
		return Header
	case "cookie":
		return Cookie
	default:
		return Query
	}
}

// Taxonomy is the parse result: folders in first-seen tag order, then the
// endpoints that carried no tag.
type Taxonomy struct {
	Title         string             `json:"title,omitempty" yaml:"title,omitempty"`
	Version       string             `json:"version,omitempty" yaml:"version,omitempty"`
	Folders       []*ImportedFolder  `json:"folders" yaml:"folders"`
	Uncategorized []ImportedEndpoint `json:"uncategorized" yaml:"uncategorized"`
}

type ImportedFolder struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Endpoints   []ImportedEndpoint `json:"endpoints" yaml:"endpoints"`
}

type ImportedEndpoint struct {
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Method      string              `json:"method" yaml:"method"` // upper case
	Path        string              `json:"path" yaml:"path"`
	Folder      string              `json:"folder,omitempty" yaml:"folder,omitempty"` // empty for uncategorized endpoints
	Parameters  []ImportedParameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Headers     []ImportedHeader    `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body        *ImportedBody       `json:"body,omitempty" yaml:"body,omitempty"`
	Responses   []ImportedResponse  `json:"responses,omitempty" yaml:"responses,omitempty"`
}

type ImportedParameter struct {
	Name        string   `json:"name" yaml:"name"`
	Location    Location `json:"location" yaml:"location"`
	Required    bool     `json:"required" yaml:"required"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Type        string   `json:"type,omitempty" yaml:"type,omitempty"`
	Example     any      `json:"example,omitempty" yaml:"example,omitempty"`
}

type ImportedHeader struct {
	Key         string `json:"key" yaml:"key"`
	Value       string `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type ImportedBody struct {
	ContentType string `json:"contentType" yaml:"contentType"`
	Example     any    `json:"example,omitempty" yaml:"example,omitempty"`
	Schema      any    `json:"schema,omitempty" yaml:"schema,omitempty"` // raw schema as written, nil when none was declared
}

type ImportedResponse struct {
	StatusCode  string `json:"statusCode" yaml:"statusCode"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	ContentType string `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	Example     any    `json:"example,omitempty" yaml:"example,omitempty"`
}

// Stats summarizes how many remote entities an import will create.
type Stats struct {
	Folders    int
	Endpoints  int
	Parameters int
	Headers    int
	Bodies     int
	Responses  int
}

// Total is the number of creation calls an import issues.
func (s Stats) Total() int {
	return s.Folders + s.Endpoints + s.Parameters + s.Headers + s.Bodies + s.Responses
}

func (t *Taxonomy) Stats() Stats {
	st := Stats{Folders: len(t.Folders)}
	count := func(eps []ImportedEndpoint) {
		for _, ep := range eps {
			st.Endpoints++
			st.Parameters += len(ep.Parameters)
			st.Headers += len(ep.Headers)
			st.Responses += len(ep.Responses)
			if ep.Body != nil {
				st.Bodies++
			}
		}
	}
	for _, f := range t.Folders {
		count(f.Endpoints)
	}
	count(t.Uncategorized)
	return st
}
