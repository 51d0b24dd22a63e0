package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, h http.Handler, opts ...HTTPOption) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(srv.URL+"/api/", append([]HTTPOption{WithRetry(3, time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestHTTPClient_Routes(t *testing.T) {
	type seen struct {
		path string
		body map[string]any
	}
	var mu sync.Mutex
	var got []seen
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "batch-1", r.Header.Get("X-Import-Batch"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		got = append(got, seen{path: r.URL.EscapedPath(), body: body})
		mu.Unlock()
		_, _ = io.WriteString(w, `{"id":"x1"}`)
	}), WithToken("s3cret"), WithBatchID("batch-1"))

	ctx := context.Background()
	calls := []func() (string, error){
		func() (string, error) {
			return c.CreateFolder(ctx, FolderInput{ProjectID: "p/1", Name: "pets"})
		},
		func() (string, error) {
			return c.CreateEndpoint(ctx, EndpointInput{ProjectID: "p1", FolderID: "f1", Name: "List", Method: "GET", Path: "/pets"})
		},
		func() (string, error) {
			return c.CreateParameter(ctx, ParameterInput{EndpointID: "e1", Name: "limit", Location: "QUERY", Example: "10"})
		},
		func() (string, error) {
			return c.CreateHeader(ctx, HeaderInput{EndpointID: "e1", Key: "Accept", Value: "application/json"})
		},
		func() (string, error) {
			return c.CreateBody(ctx, BodyInput{EndpointID: "e1", ContentType: "application/json", Example: `{"a":1}`})
		},
		func() (string, error) {
			return c.CreateResponse(ctx, ResponseInput{EndpointID: "e1", StatusCode: "200"})
		},
	}
	for _, call := range calls {
		id, err := call()
		require.NoError(t, err)
		assert.Equal(t, "x1", id)
	}

	require.Len(t, got, 6)
	assert.Equal(t, "/api/projects/p%2F1/folders", got[0].path)
	assert.Equal(t, "pets", got[0].body["name"])
	assert.Equal(t, "/api/projects/p1/endpoints", got[1].path)
	assert.Equal(t, "f1", got[1].body["folderId"])
	assert.Equal(t, "/api/endpoints/e1/parameters", got[2].path)
	assert.Equal(t, "QUERY", got[2].body["location"])
	assert.Equal(t, false, got[2].body["required"])
	assert.Equal(t, "/api/endpoints/e1/headers", got[3].path)
	assert.Equal(t, "/api/endpoints/e1/body", got[4].path)
	assert.Equal(t, `{"a":1}`, got[4].body["example"])
	assert.Equal(t, "/api/endpoints/e1/responses", got[5].path)
	assert.NotContains(t, got[5].body, "example")
}

func TestHTTPClient_RetriesWithStableIdempotencyKey(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	keys := map[string]struct{}{}
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys[r.Header.Get("Idempotency-Key")] = struct{}{}
		mu.Unlock()
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = io.WriteString(w, `{"id":"folder-9"}`)
		}
	}))

	id, err := c.CreateFolder(context.Background(), FolderInput{ProjectID: "p", Name: "n"})
	require.NoError(t, err)
	assert.Equal(t, "folder-9", id)
	assert.EqualValues(t, 3, calls.Load())
	assert.Len(t, keys, 1)
}

func TestHTTPClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, "name is required\n")
	}))

	_, err := c.CreateEndpoint(context.Background(), EndpointInput{ProjectID: "p"})
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())

	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindEndpoint, ce.Kind)
	assert.Equal(t, http.StatusUnprocessableEntity, ce.Status)
	assert.Equal(t, "name is required", ce.Body)
	assert.False(t, ce.Temporary())
	assert.Equal(t, "create endpoint: http 422: name is required", err.Error())
}

func TestHTTPClient_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.CreateHeader(context.Background(), HeaderInput{EndpointID: "e"})
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusBadGateway, ce.Status)
	assert.EqualValues(t, 3, calls.Load())
}

func TestHTTPClient_MissingID(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	_, err := c.CreateBody(context.Background(), BodyInput{EndpointID: "e"})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestNewHTTPClient_RejectsBadTarget(t *testing.T) {
	for _, target := range []string{"", "ftp://example.com", "example.com/api", "http://"} {
		_, err := NewHTTPClient(target)
		assert.Error(t, err, target)
	}
}

func TestWithTimeout_KeepsDefaultWhenNotPositive(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		c, err := NewHTTPClient("https://api.example.com", WithTimeout(d))
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, c.client.Timeout, d.String())
	}

	c, err := NewHTTPClient("https://api.example.com", WithTimeout(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.client.Timeout)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	f, err := m.CreateFolder(ctx, FolderInput{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, "folder-1", f)
	e1, _ := m.CreateEndpoint(ctx, EndpointInput{FolderID: f})
	e2, _ := m.CreateEndpoint(ctx, EndpointInput{})
	assert.Equal(t, "endpoint-1", e1)
	assert.Equal(t, "endpoint-2", e2)

	boom := errors.New("boom")
	m.FailWhen(func(kind Kind, input any) error {
		if in, ok := input.(ParameterInput); ok && in.Name == "bad" {
			return boom
		}
		return nil
	})
	_, err = m.CreateParameter(ctx, ParameterInput{EndpointID: e1, Name: "bad"})
	assert.ErrorIs(t, err, boom)
	p, err := m.CreateParameter(ctx, ParameterInput{EndpointID: e1, Name: "good"})
	require.NoError(t, err)
	assert.Equal(t, "parameter-1", p)

	calls := m.Calls()
	require.Len(t, calls, 5)
	assert.Equal(t, KindParameter, calls[3].Kind)
	assert.Empty(t, calls[3].ID)
	assert.Equal(t, 1, m.Count(KindParameter))
	assert.Equal(t, 2, m.Count(KindEndpoint))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.CreateHeader(cancelled, HeaderInput{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, m.Calls(), 5)
}
