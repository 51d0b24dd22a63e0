// Package orchestrator writes a taxonomy to a remote boundary.
//
// Folders and the uncategorized list are independent units and run
// concurrently up to a limit. Inside a unit the folder is created first and
// its ID is handed to every endpoint, which are created one after another.
// Once an endpoint exists its parameters, headers, body and responses are
// sent as four concurrent groups, each group in document order.
//
// The first failed call stops dispatch of further endpoints and units.
// Calls already running finish, and nothing that was created is rolled back:
// the Report lists what exists remotely and what failed.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mark3labs/specimport/internal/remote"
	"github.com/mark3labs/specimport/internal/taxonomy"
)

const DefaultConcurrency = 4

type Orchestrator struct {
	boundary    remote.Boundary
	concurrency int
	limiter     *rate.Limiter
	logger      *slog.Logger
	metrics     *Metrics
	batchID     string
}

type Option func(*Orchestrator)

// WithConcurrency bounds how many top-level units run at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithRateLimit caps remote calls per second across the whole batch. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *Orchestrator) {
		if rps <= 0 {
			o.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithBatchID fixes the batch identifier. By default each Import gets a new
// random one.
func WithBatchID(id string) Option { return func(o *Orchestrator) { o.batchID = id } }

func New(b remote.Boundary, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		boundary:    b,
		concurrency: DefaultConcurrency,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Import creates every folder and endpoint of t under projectID.
//
// The report is always returned. The error is an *ImportError when any call
// failed, or wraps ctx.Err() when cancellation left endpoints undispatched.
func (o *Orchestrator) Import(ctx context.Context, projectID string, t *taxonomy.Taxonomy) (*Report, error) {
	if t == nil {
		return nil, errors.New("orchestrator: nil taxonomy")
	}
	batch := o.batchID
	if batch == "" {
		batch = uuid.NewString()
	}
	r := &run{
		o:         o,
		projectID: projectID,
		ctx:       ctx,
		call:      context.WithoutCancel(ctx),
		logger:    o.logger.With("batch", batch, "project", projectID),
		report:    &Report{BatchID: batch, ProjectID: projectID, Started: time.Now()},
	}

	units := make([]unit, 0, len(t.Folders)+1)
	for _, f := range t.Folders {
		units = append(units, unit{folder: f, endpoints: f.Endpoints})
	}
	if len(t.Uncategorized) > 0 {
		units = append(units, unit{endpoints: t.Uncategorized})
	}
	st := t.Stats()
	r.logger.Info("import started", "folders", st.Folders, "endpoints", st.Endpoints, "calls", st.Total())

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, u := range units {
		if r.stopped() {
			for _, rest := range units[i:] {
				r.skip(len(rest.endpoints))
			}
			break
		}
		g.Go(func() error {
			r.unit(u)
			return nil
		})
	}
	_ = g.Wait()

	rep := r.report
	rep.Finished = time.Now()
	took := rep.Finished.Sub(rep.Started)
	switch {
	case len(rep.Failures) > 0:
		o.metrics.observeImport("failed")
		r.logger.Error("import failed",
			"created", len(rep.Created), "failed", len(rep.Failures), "skipped", rep.Skipped, "took", took)
		failures := make([]Failure, len(rep.Failures))
		copy(failures, rep.Failures)
		return rep, &ImportError{BatchID: batch, Failures: failures}
	case rep.Skipped > 0 && ctx.Err() != nil:
		o.metrics.observeImport("cancelled")
		r.logger.Warn("import cancelled", "created", len(rep.Created), "skipped", rep.Skipped, "took", took)
		return rep, fmt.Errorf("orchestrator: import cancelled: %w", ctx.Err())
	}
	o.metrics.observeImport("ok")
	r.logger.Info("import finished", "created", len(rep.Created), "took", took)
	return rep, nil
}

type unit struct {
	folder    *taxonomy.ImportedFolder // nil for the uncategorized list
	endpoints []taxonomy.ImportedEndpoint
}

// run is the state of one Import call.
type run struct {
	o         *Orchestrator
	projectID string
	ctx       context.Context // watched for cancellation only
	call      context.Context // passed to remote calls, never cancelled
	logger    *slog.Logger
	halted    atomic.Bool

	mu     sync.Mutex
	report *Report
}

func (r *run) stopped() bool { return r.halted.Load() || r.ctx.Err() != nil }

func (r *run) skip(n int) {
	if n == 0 {
		return
	}
	r.mu.Lock()
	r.report.Skipped += n
	r.mu.Unlock()
}

func (r *run) created(e Entity) {
	r.mu.Lock()
	r.report.Created = append(r.report.Created, e)
	r.mu.Unlock()
	r.logger.Debug("created", "kind", e.Kind, "id", e.ID, "name", e.Name)
}

func (r *run) failed(f Failure) {
	r.halted.Store(true)
	r.mu.Lock()
	r.report.Failures = append(r.report.Failures, f)
	r.mu.Unlock()
	r.logger.Warn("creation call failed",
		"kind", f.Kind, "name", f.Name, "folder", f.Folder, "endpoint", f.Endpoint, "error", f.Err)
}

// do issues one remote call on the detached context, after the rate limiter
// admits it.
func (r *run) do(kind remote.Kind, fn func(context.Context) (string, error)) (string, error) {
	if r.o.limiter != nil {
		if err := r.o.limiter.Wait(r.call); err != nil {
			return "", err
		}
	}
	started := time.Now()
	id, err := fn(r.call)
	r.o.metrics.observeCall(kind, started, err)
	return id, err
}

func (r *run) unit(u unit) {
	var folderID, folderName string
	if u.folder != nil {
		if r.stopped() {
			r.skip(len(u.endpoints))
			return
		}
		folderName = u.folder.Name
		id, err := r.do(remote.KindFolder, func(ctx context.Context) (string, error) {
			return r.o.boundary.CreateFolder(ctx, remote.FolderInput{
				ProjectID:   r.projectID,
				Name:        u.folder.Name,
				Description: u.folder.Description,
			})
		})
		if err != nil {
			r.failed(Failure{Kind: remote.KindFolder, Name: folderName, Err: err})
			r.skip(len(u.endpoints))
			return
		}
		folderID = id
		r.created(Entity{Kind: remote.KindFolder, ID: id, Name: folderName})
	}

	for i, ep := range u.endpoints {
		if r.stopped() {
			r.skip(len(u.endpoints) - i)
			return
		}
		r.endpoint(folderID, folderName, ep)
	}
}

func (r *run) endpoint(folderID, folderName string, ep taxonomy.ImportedEndpoint) {
	id, err := r.do(remote.KindEndpoint, func(ctx context.Context) (string, error) {
		return r.o.boundary.CreateEndpoint(ctx, remote.EndpointInput{
			ProjectID:   r.projectID,
			FolderID:    folderID,
			Name:        ep.Name,
			Description: ep.Description,
			Method:      ep.Method,
			Path:        ep.Path,
		})
	})
	if err != nil {
		r.failed(Failure{Kind: remote.KindEndpoint, Name: ep.Name, Folder: folderName, Endpoint: ep.Name, Err: err})
		return
	}
	r.created(Entity{Kind: remote.KindEndpoint, ID: id, Name: ep.Name, Folder: folderName})

	sub := subResources{run: r, endpointID: id, endpoint: ep.Name, folder: folderName}
	var g errgroup.Group
	if len(ep.Parameters) > 0 {
		g.Go(func() error {
			for _, p := range ep.Parameters {
				sub.parameter(p)
			}
			return nil
		})
	}
	if len(ep.Headers) > 0 {
		g.Go(func() error {
			for _, h := range ep.Headers {
				sub.header(h)
			}
			return nil
		})
	}
	if ep.Body != nil {
		g.Go(func() error {
			sub.body(*ep.Body)
			return nil
		})
	}
	if len(ep.Responses) > 0 {
		g.Go(func() error {
			for _, resp := range ep.Responses {
				sub.response(resp)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// subResources creates the children of one endpoint. They are sent even
// after the batch has halted so that no endpoint is left half populated.
type subResources struct {
	run        *run
	endpointID string
	endpoint   string
	folder     string
}

func (s subResources) record(kind remote.Kind, name string, id string, err error) {
	if err != nil {
		s.run.failed(Failure{Kind: kind, Name: name, Folder: s.folder, Endpoint: s.endpoint, Err: err})
		return
	}
	s.run.created(Entity{Kind: kind, ID: id, Name: name, Folder: s.folder, Endpoint: s.endpoint})
}

func (s subResources) parameter(p taxonomy.ImportedParameter) {
	in := remote.ParameterInput{
		EndpointID:  s.endpointID,
		Name:        p.Name,
		Location:    string(p.Location),
		Required:    p.Required,
		Description: p.Description,
		Type:        p.Type,
		Example:     s.text(p.Name, p.Example, true),
	}
	id, err := s.run.do(remote.KindParameter, func(ctx context.Context) (string, error) {
		return s.run.o.boundary.CreateParameter(ctx, in)
	})
	s.record(remote.KindParameter, p.Name, id, err)
}

func (s subResources) header(h taxonomy.ImportedHeader) {
	in := remote.HeaderInput{EndpointID: s.endpointID, Key: h.Key, Value: h.Value, Description: h.Description}
	id, err := s.run.do(remote.KindHeader, func(ctx context.Context) (string, error) {
		return s.run.o.boundary.CreateHeader(ctx, in)
	})
	s.record(remote.KindHeader, h.Key, id, err)
}

func (s subResources) body(b taxonomy.ImportedBody) {
	in := remote.BodyInput{
		EndpointID:  s.endpointID,
		ContentType: b.ContentType,
		Schema:      s.text("body schema", b.Schema, false),
		Example:     s.text("body", b.Example, false),
	}
	id, err := s.run.do(remote.KindBody, func(ctx context.Context) (string, error) {
		return s.run.o.boundary.CreateBody(ctx, in)
	})
	s.record(remote.KindBody, b.ContentType, id, err)
}

func (s subResources) response(resp taxonomy.ImportedResponse) {
	in := remote.ResponseInput{
		EndpointID:  s.endpointID,
		StatusCode:  resp.StatusCode,
		Description: resp.Description,
		ContentType: resp.ContentType,
		Example:     s.text("response "+resp.StatusCode, resp.Example, false),
	}
	id, err := s.run.do(remote.KindResponse, func(ctx context.Context) (string, error) {
		return s.run.o.boundary.CreateResponse(ctx, in)
	})
	s.record(remote.KindResponse, resp.StatusCode, id, err)
}

// text encodes v for the wire. Values that cannot be encoded are dropped
// with a warning; the call still goes out without them.
func (s subResources) text(what string, v any, verbatimStrings bool) string {
	out, err := encodeValue(v, verbatimStrings)
	if err != nil {
		s.run.logger.Warn("dropping value that cannot be encoded",
			"endpoint", s.endpoint, "value", what, "error", err)
		return ""
	}
	return out
}

// encodeValue renders v as JSON text. nil becomes the empty string; with
// verbatimStrings a string is returned as is instead of being quoted.
func encodeValue(v any, verbatimStrings bool) (string, error) {
	if v == nil {
		return "", nil
	}
	if s, ok := v.(string); ok && verbatimStrings {
		return s, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// ImportDocument parses raw document text and imports it. Malformed
// documents are rejected before any remote call is made.
func (o *Orchestrator) ImportDocument(ctx context.Context, projectID string, data []byte, opts ...taxonomy.Option) (*Report, error) {
	t, err := taxonomy.Parse(data, append([]taxonomy.Option{taxonomy.WithLogger(o.logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return o.Import(ctx, projectID, t)
}
