package spec

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const minimalSpec = `openapi: 3.0.0
info:
  title: Sample
  version: "1.0.0"
paths:
  /hello:
    get:
      responses:
        "200":
          description: ok
`

func TestLoad_BlocksFileURL(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), "file:///etc/hosts")
	if err == nil {
		t.Fatalf("expected error for file:// URL")
	}
	var se *SpecError
	if !errors.As(err, &se) {
		t.Fatalf("expected SpecError, got %T", err)
	}
	if se.Code != InputError {
		t.Fatalf("expected InputError, got %v", se.Code)
	}
}

func TestLoad_UnsupportedScheme(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), "ftp://example.com/spec.yaml")
	var se *SpecError
	if !errors.As(err, &se) || se.Code != InputError {
		t.Fatalf("expected InputError, got %v (%T)", err, err)
	}
}

func TestLoad_EmptyInput(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), "  ")
	if !errors.Is(err, ErrInput) {
		t.Fatalf("expected ErrInput, got %v", err)
	}
}

func TestLoad_NetworkError(t *testing.T) {
	t.Parallel()
	// Unused port to provoke a quick network failure.
	url := "http://127.0.0.1:1/spec.yaml"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Load(ctx, url, WithHTTPTimeout(200*time.Millisecond), WithMaxRetries(2), WithBackoffBase(10*time.Millisecond))
	var se *SpecError
	if !errors.As(err, &se) || se.Code != NetworkError {
		t.Fatalf("expected NetworkError, got %v (%T)", err, err)
	}
}

func TestLoad_URLRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(minimalSpec))
	}))
	defer srv.Close()

	doc, err := Load(context.Background(), srv.URL+"/openapi.yaml", WithBackoffBase(time.Millisecond))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Info.Title != "Sample" {
		t.Fatalf("title: got %q", doc.Info.Title)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", calls.Load())
	}
}

func TestLoad_URLClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Load(context.Background(), srv.URL, WithBackoffBase(time.Millisecond))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single request, got %d", calls.Load())
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "openapi.yaml")
	if err := os.WriteFile(path, []byte(minimalSpec), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(doc.Paths) != 1 || doc.Paths[0].Path != "/hello" {
		t.Fatalf("paths: got %+v", doc.Paths)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	var se *SpecError
	if !errors.As(err, &se) || se.Code != InputError {
		t.Fatalf("expected InputError, got %v", err)
	}
	if se.Location == "" {
		t.Fatalf("expected location to be set")
	}
}

func TestLoad_Stdin(t *testing.T) {
	t.Parallel()
	doc, err := Load(context.Background(), "-", WithStdin(strings.NewReader(minimalSpec)))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Marker != "openapi" {
		t.Fatalf("marker: got %q", doc.Marker)
	}
}

func TestLoadBytes_MalformedCarriesLocation(t *testing.T) {
	t.Parallel()
	_, err := LoadBytes(context.Background(), []byte("info: {title: x}\npaths: {/a: {get: {}}}\n"), "pasted")
	var se *SpecError
	if !errors.As(err, &se) {
		t.Fatalf("expected SpecError, got %T", err)
	}
	if se.Code != MalformedDocument || se.Location != "pasted" {
		t.Fatalf("got code=%v location=%q", se.Code, se.Location)
	}
}

func TestLoadBytes_StrictValidation(t *testing.T) {
	t.Parallel()
	// Responses must not be empty in OpenAPI 3.0.
	content := strings.TrimSpace(`openapi: 3.0.0
info:
  title: Bad
  version: "1.0.0"
paths:
  "/pet":
    get:
      responses: {}
`) + "\n"

	if _, err := LoadBytes(context.Background(), []byte(content), ""); err != nil {
		t.Fatalf("permissive load should succeed, got %v", err)
	}

	_, err := LoadBytes(context.Background(), []byte(content), "", WithStrict(true))
	var se *SpecError
	if !errors.As(err, &se) {
		t.Fatalf("expected SpecError, got %T (%v)", err, err)
	}
	if se.Code != ValidationError {
		t.Fatalf("expected ValidationError, got %v", se.Code)
	}
}

func TestLoadBytes_Swagger2StrictValidationPasses(t *testing.T) {
	t.Parallel()
	content := strings.TrimSpace(`swagger: "2.0"
info:
  title: Sample
  version: "1.0.0"
paths:
  "/hello":
    get:
      responses:
        "200":
          description: ok
`) + "\n"
	doc, err := LoadBytes(context.Background(), []byte(content), "", WithStrict(true))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !doc.IsSwagger2() {
		t.Fatalf("expected swagger marker")
	}
}
