// Package remote defines the persistence boundary imports are written to,
// together with an HTTP client for it and an in-memory store.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// Kind names the entity a creation call produces.
type Kind string

const (
	KindFolder    Kind = "folder"
	KindEndpoint  Kind = "endpoint"
	KindParameter Kind = "parameter"
	KindHeader    Kind = "header"
	KindBody      Kind = "body"
	KindResponse  Kind = "response"
)

// Boundary creates entities on the system of record. Every call returns the
// identifier of the created entity; dependent calls take it as a foreign key.
type Boundary interface {
	CreateFolder(ctx context.Context, in FolderInput) (string, error)
	CreateEndpoint(ctx context.Context, in EndpointInput) (string, error)
	CreateParameter(ctx context.Context, in ParameterInput) (string, error)
	CreateHeader(ctx context.Context, in HeaderInput) (string, error)
	CreateBody(ctx context.Context, in BodyInput) (string, error)
	CreateResponse(ctx context.Context, in ResponseInput) (string, error)
}

type FolderInput struct {
	ProjectID   string `json:"projectId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// EndpointInput carries an empty FolderID for uncategorized endpoints.
type EndpointInput struct {
	ProjectID   string `json:"projectId"`
	FolderID    string `json:"folderId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Method      string `json:"method"`
	Path        string `json:"path"`
}

// Examples and schemas travel as JSON text; an empty string means none.

type ParameterInput struct {
	EndpointID  string `json:"endpointId"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Example     string `json:"example,omitempty"`
}

type HeaderInput struct {
	EndpointID  string `json:"endpointId"`
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

type BodyInput struct {
	EndpointID  string `json:"endpointId"`
	ContentType string `json:"contentType"`
	Schema      string `json:"schema,omitempty"`
	Example     string `json:"example,omitempty"`
}

type ResponseInput struct {
	EndpointID  string `json:"endpointId"`
	StatusCode  string `json:"statusCode"`
	Description string `json:"description,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Example     string `json:"example,omitempty"`
}

// ErrMissingID is returned when the remote side accepts a call but reports
// no identifier for the created entity.
var ErrMissingID = errors.New("remote: response carried no id")

// CallError is a creation call the remote side rejected. Status is zero when
// no HTTP response was received.
type CallError struct {
	Kind   Kind
	Status int
	Body   string
	Cause  error
}

func (e *CallError) Error() string {
	msg := "create " + string(e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(": http %d", e.Status)
	}
	switch {
	case e.Body != "":
		msg += ": " + e.Body
	case e.Cause != nil:
		msg += ": " + e.Cause.Error()
	case e.Status == 0:
		msg += " failed"
	}
	return msg
}

func (e *CallError) Unwrap() error { return e.Cause }

// Temporary reports whether retrying the same call may succeed.
func (e *CallError) Temporary() bool {
	return e.Status == 0 || e.Status >= 500 || e.Status == 429
}
