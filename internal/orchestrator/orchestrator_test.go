package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/specimport/internal/remote"
	"github.com/mark3labs/specimport/internal/spec"
	"github.com/mark3labs/specimport/internal/taxonomy"
)

const library = `openapi: 3.0.0
info: {title: Library, version: "1"}
paths:
  /books:
    get:
      summary: List books
      tags: [books]
      parameters:
        - {name: limit, in: query, schema: {type: integer}}
        - {name: q, in: query, example: "<tolkien & co>"}
      responses:
        '200':
          description: ok
          content:
            application/json:
              schema:
                type: array
                items: {$ref: '#/components/schemas/Book'}
    post:
      summary: Add book
      tags: [books]
      requestBody:
        content:
          application/json:
            schema: {$ref: '#/components/schemas/Book'}
      responses:
        '201': {description: created}
  /authors:
    get:
      summary: List authors
      tags: [authors]
  /health:
    get:
      summary: Health
components:
  schemas:
    Book:
      type: object
      properties:
        title: {type: string}
        pages: {type: integer}
`

func parse(t *testing.T, src string) *taxonomy.Taxonomy {
	t.Helper()
	tx, err := taxonomy.Parse([]byte(src))
	require.NoError(t, err)
	return tx
}

func callsOf[T any](store *remote.MemoryStore, kind remote.Kind) []T {
	var out []T
	for _, c := range store.Calls() {
		if c.Kind == kind {
			out = append(out, c.Input.(T))
		}
	}
	return out
}

func indexOf(calls []remote.Call, id string) int {
	for i, c := range calls {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func TestImport_CreatesEverything(t *testing.T) {
	tx := parse(t, library)
	store := remote.NewMemoryStore()

	rep, err := New(store, WithBatchID("b-1")).Import(context.Background(), "proj", tx)
	require.NoError(t, err)
	assert.True(t, rep.Succeeded())
	assert.Equal(t, "b-1", rep.BatchID)
	assert.Equal(t, "proj", rep.ProjectID)

	st := tx.Stats()
	assert.Len(t, rep.Created, st.Total())
	assert.Len(t, store.Calls(), st.Total())
	assert.Equal(t, 2, rep.Count(remote.KindFolder))
	assert.Equal(t, 4, rep.Count(remote.KindEndpoint))
	assert.Equal(t, 2, rep.Count(remote.KindParameter))
	assert.Equal(t, 1, rep.Count(remote.KindBody))
	assert.Equal(t, 2, rep.Count(remote.KindResponse))
	assert.Equal(t, st.Headers, rep.Count(remote.KindHeader))
}

func TestImport_EndpointsUseTheirFolderID(t *testing.T) {
	tx := parse(t, library)
	store := remote.NewMemoryStore()

	rep, err := New(store).Import(context.Background(), "proj", tx)
	require.NoError(t, err)

	folderIDs := map[string]string{}
	for _, e := range rep.Created {
		if e.Kind == remote.KindFolder {
			folderIDs[e.Name] = e.ID
		}
	}
	wantFolder := map[string]string{}
	for _, f := range tx.Folders {
		for _, ep := range f.Endpoints {
			wantFolder[ep.Name] = f.Name
		}
	}

	calls := store.Calls()
	for i, c := range calls {
		if c.Kind != remote.KindEndpoint {
			continue
		}
		in := c.Input.(remote.EndpointInput)
		assert.Equal(t, "proj", in.ProjectID)
		folder, tagged := wantFolder[in.Name]
		if !tagged {
			assert.Empty(t, in.FolderID, "uncategorized endpoint %q", in.Name)
			continue
		}
		require.NotEmpty(t, folderIDs[folder])
		assert.Equal(t, folderIDs[folder], in.FolderID, "endpoint %q", in.Name)
		assert.Less(t, indexOf(calls, in.FolderID), i, "folder must exist before endpoint %q", in.Name)
	}

	// every sub-resource call comes after, and references, its endpoint
	for i, c := range calls {
		var endpointID string
		switch in := c.Input.(type) {
		case remote.ParameterInput:
			endpointID = in.EndpointID
		case remote.HeaderInput:
			endpointID = in.EndpointID
		case remote.BodyInput:
			endpointID = in.EndpointID
		case remote.ResponseInput:
			endpointID = in.EndpointID
		default:
			continue
		}
		at := indexOf(calls, endpointID)
		require.GreaterOrEqual(t, at, 0)
		assert.Less(t, at, i)
	}
}

func TestImport_SubResourceGroupsKeepDocumentOrder(t *testing.T) {
	tx := parse(t, `openapi: 3.0.0
paths:
  /a:
    get:
      parameters:
        - {name: p1, in: query}
        - {name: p2, in: query}
        - {name: p3, in: query}
      responses:
        '200': {description: ok}
        '404': {description: missing}
        default: {description: error}
`)
	store := remote.NewMemoryStore()
	_, err := New(store).Import(context.Background(), "p", tx)
	require.NoError(t, err)

	var params []string
	for _, in := range callsOf[remote.ParameterInput](store, remote.KindParameter) {
		params = append(params, in.Name)
	}
	assert.Equal(t, []string{"p1", "p2", "p3"}, params)

	var statuses []string
	for _, in := range callsOf[remote.ResponseInput](store, remote.KindResponse) {
		statuses = append(statuses, in.StatusCode)
	}
	assert.Equal(t, []string{"200", "404", "default"}, statuses)
}

func TestImport_EncodesExamples(t *testing.T) {
	tx := parse(t, library)
	store := remote.NewMemoryStore()
	_, err := New(store).Import(context.Background(), "proj", tx)
	require.NoError(t, err)

	params := map[string]remote.ParameterInput{}
	for _, in := range callsOf[remote.ParameterInput](store, remote.KindParameter) {
		params[in.Name] = in
	}
	assert.Equal(t, "0", params["limit"].Example)
	assert.Equal(t, "integer", params["limit"].Type)
	assert.Equal(t, "QUERY", params["limit"].Location)
	assert.Equal(t, "<tolkien & co>", params["q"].Example, "string examples are sent verbatim")

	bodies := callsOf[remote.BodyInput](store, remote.KindBody)
	require.Len(t, bodies, 1)
	assert.Equal(t, "application/json", bodies[0].ContentType)
	assert.Equal(t, `{"title":"string","pages":0}`, bodies[0].Example)
	assert.Equal(t, `{"$ref":"#/components/schemas/Book"}`, bodies[0].Schema)

	examples := map[string]string{}
	for _, in := range callsOf[remote.ResponseInput](store, remote.KindResponse) {
		examples[in.StatusCode] = in.Example
	}
	assert.Equal(t, `[{"title":"string","pages":0}]`, examples["200"])
	assert.Empty(t, examples["201"])
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		verbatim bool
		want     string
	}{
		{name: "nil", in: nil, want: ""},
		{name: "quoted string", in: "a<b", want: `"a<b"`},
		{name: "verbatim string", in: "a<b", verbatim: true, want: "a<b"},
		{name: "number", in: 3, verbatim: true, want: "3"},
		{name: "ordered object", in: spec.Object{{Key: "z", Value: 1}, {Key: "a", Value: true}}, want: `{"z":1,"a":true}`},
		{name: "empty object", in: spec.Object{}, want: "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeValue(tt.in, tt.verbatim)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := encodeValue(make(chan int), false)
	assert.Error(t, err)
}

const threeFolders = `openapi: 3.0.0
paths:
  /a1: {get: {summary: a1, tags: [A]}}
  /a2: {get: {summary: a2, tags: [A]}}
  /b1: {get: {summary: b1, tags: [B]}}
  /b2: {get: {summary: b2, tags: [B]}}
  /c1: {get: {summary: c1, tags: [C]}}
  /u1: {get: {summary: u1}}
`

func TestImport_FolderFailureStopsDispatch(t *testing.T) {
	store := remote.NewMemoryStore()
	denied := errors.New("forbidden")
	store.FailWhen(func(kind remote.Kind, input any) error {
		if in, ok := input.(remote.FolderInput); ok && in.Name == "B" {
			return denied
		}
		return nil
	})

	rep, err := New(store, WithConcurrency(1)).Import(context.Background(), "p", parse(t, threeFolders))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteCreationFailed)
	assert.ErrorIs(t, err, denied)

	var ie *ImportError
	require.ErrorAs(t, err, &ie)
	require.Len(t, ie.Failures, 1)
	assert.Equal(t, remote.KindFolder, ie.Failures[0].Kind)
	assert.Equal(t, "B", ie.Failures[0].Name)
	assert.Contains(t, err.Error(), `folder "B"`)

	require.NotNil(t, rep)
	assert.False(t, rep.Succeeded())
	assert.Equal(t, 1, rep.Count(remote.KindFolder))
	assert.Equal(t, 2, rep.Count(remote.KindEndpoint))
	assert.Equal(t, 4, rep.Skipped)
	assert.Equal(t, 1, store.Count(remote.KindFolder), "only folder A exists remotely")
}

func TestImport_EndpointFailureSkipsItsChildren(t *testing.T) {
	store := remote.NewMemoryStore()
	store.FailWhen(func(kind remote.Kind, input any) error {
		if in, ok := input.(remote.EndpointInput); ok && in.Name == "Add book" {
			return &remote.CallError{Kind: remote.KindEndpoint, Status: 409, Body: "duplicate"}
		}
		return nil
	})

	rep, err := New(store, WithConcurrency(1)).Import(context.Background(), "p", parse(t, library))
	require.Error(t, err)
	var ce *remote.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 409, ce.Status)
	assert.Contains(t, err.Error(), `endpoint "Add book" in folder "books"`)

	for _, in := range callsOf[remote.BodyInput](store, remote.KindBody) {
		t.Errorf("unexpected body call %+v", in)
	}
	// the authors folder and the uncategorized unit are never dispatched
	assert.Equal(t, 1, rep.Count(remote.KindFolder))
	assert.Equal(t, 2, rep.Skipped)
}

func TestImport_SiblingsOfFailedCallStillComplete(t *testing.T) {
	store := remote.NewMemoryStore()
	store.FailWhen(func(kind remote.Kind, input any) error {
		if in, ok := input.(remote.ParameterInput); ok && in.Name == "limit" {
			return errors.New("invalid parameter")
		}
		return nil
	})

	rep, err := New(store, WithConcurrency(1)).Import(context.Background(), "p", parse(t, library))
	require.ErrorIs(t, err, ErrRemoteCreationFailed)

	// "List books" was created, so all of its other children are still sent
	assert.Equal(t, 1, rep.Count(remote.KindParameter))
	assert.Equal(t, 1, rep.Count(remote.KindResponse))
	assert.Equal(t, 1, rep.Count(remote.KindHeader))
	assert.Equal(t, 1, rep.Count(remote.KindEndpoint))
	assert.Equal(t, 3, rep.Skipped)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "List books", rep.Failures[0].Endpoint)
}

func TestImport_CancellationLetsInFlightCallsFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := remote.NewMemoryStore()
	store.FailWhen(func(kind remote.Kind, input any) error {
		if in, ok := input.(remote.EndpointInput); ok && in.Name == "List books" {
			cancel()
		}
		return nil
	})

	rep, err := New(store, WithConcurrency(1)).Import(ctx, "p", parse(t, library))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrRemoteCreationFailed)

	// the endpoint that was in flight still gets all of its children
	assert.Equal(t, 1, rep.Count(remote.KindEndpoint))
	assert.Equal(t, 2, rep.Count(remote.KindParameter))
	assert.Equal(t, 1, rep.Count(remote.KindResponse))
	assert.Equal(t, 3, rep.Skipped)
	assert.Empty(t, rep.Failures)
}

func TestImport_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := remote.NewMemoryStore()
	rep, err := New(store).Import(ctx, "p", parse(t, library))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.Calls())
	assert.Equal(t, 4, rep.Skipped)
}

func TestImportDocument_MalformedMakesNoCalls(t *testing.T) {
	store := remote.NewMemoryStore()
	_, err := New(store).ImportDocument(context.Background(), "p",
		[]byte("info: {title: no marker}\npaths:\n  /a:\n    get: {tags: [A]}\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, spec.ErrMalformedDocument)
	assert.Empty(t, store.Calls())
}

func TestImportDocument_AppliesFilters(t *testing.T) {
	store := remote.NewMemoryStore()
	rep, err := New(store).ImportDocument(context.Background(), "p", []byte(library),
		taxonomy.WithIncludeTags([]string{"authors"}))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(remote.KindFolder))
	assert.Equal(t, 1, rep.Count(remote.KindEndpoint))
}

func TestImport_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	store := remote.NewMemoryStore()
	store.FailWhen(func(kind remote.Kind, input any) error {
		if kind == remote.KindResponse {
			return errors.New("nope")
		}
		return nil
	})

	_, err := New(store, WithMetrics(m), WithConcurrency(1)).Import(context.Background(), "p", parse(t, threeFolders))
	require.NoError(t, err, "no responses are declared in this document")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues("folder", "ok")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues("endpoint", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportsTotal.WithLabelValues("ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.CallDuration))

	_, err = New(store, WithMetrics(m)).Import(context.Background(), "p", parse(t, library))
	require.Error(t, err)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.CallsTotal.WithLabelValues("response", "error")), 1.0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportsTotal.WithLabelValues("failed")))
}

func TestImport_RateLimit(t *testing.T) {
	store := remote.NewMemoryStore()
	tx := parse(t, threeFolders)

	started := time.Now()
	_, err := New(store, WithRateLimit(50, 1)).Import(context.Background(), "p", tx)
	require.NoError(t, err)

	// 9 calls, one token every 20ms after the first
	assert.GreaterOrEqual(t, time.Since(started), 140*time.Millisecond)
}

func TestImport_NilTaxonomy(t *testing.T) {
	_, err := New(remote.NewMemoryStore()).Import(context.Background(), "p", nil)
	assert.Error(t, err)
}
