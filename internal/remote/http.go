package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPClient talks JSON to a remote project store.
//
//	POST {base}/projects/{projectId}/folders
//	POST {base}/projects/{projectId}/endpoints
//	POST {base}/endpoints/{endpointId}/{parameters|headers|body|responses}
//
// Successful responses carry {"id": "..."}.
type HTTPClient struct {
	base        string
	token       string
	batchID     string
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

type HTTPOption func(*HTTPClient)

func WithToken(token string) HTTPOption { return func(c *HTTPClient) { c.token = token } }

// WithBatchID tags every request with an X-Import-Batch header.
func WithBatchID(id string) HTTPOption { return func(c *HTTPClient) { c.batchID = id } }

func WithHTTPClient(hc *http.Client) HTTPOption { return func(c *HTTPClient) { c.client = hc } }

// WithTimeout sets the per-request timeout. Non-positive values keep the
// default.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithRetry sets the number of attempts per call and the first backoff delay.
func WithRetry(attempts int, backoff time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.maxAttempts = attempts
		c.backoff = backoff
	}
}

func WithHTTPLogger(l *slog.Logger) HTTPOption { return func(c *HTTPClient) { c.logger = l } }

func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("remote: parse target url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("remote: target must be an http(s) url, got %q", baseURL)
	}
	c := &HTTPClient{
		base:        strings.TrimRight(u.String(), "/"),
		client:      &http.Client{Timeout: 30 * time.Second},
		maxAttempts: 3,
		backoff:     200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 1
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

func (c *HTTPClient) CreateFolder(ctx context.Context, in FolderInput) (string, error) {
	return c.create(ctx, KindFolder, "/projects/"+url.PathEscape(in.ProjectID)+"/folders", in)
}

func (c *HTTPClient) CreateEndpoint(ctx context.Context, in EndpointInput) (string, error) {
	return c.create(ctx, KindEndpoint, "/projects/"+url.PathEscape(in.ProjectID)+"/endpoints", in)
}

func (c *HTTPClient) CreateParameter(ctx context.Context, in ParameterInput) (string, error) {
	return c.create(ctx, KindParameter, endpointRoute(in.EndpointID, "parameters"), in)
}

func (c *HTTPClient) CreateHeader(ctx context.Context, in HeaderInput) (string, error) {
	return c.create(ctx, KindHeader, endpointRoute(in.EndpointID, "headers"), in)
}

func (c *HTTPClient) CreateBody(ctx context.Context, in BodyInput) (string, error) {
	return c.create(ctx, KindBody, endpointRoute(in.EndpointID, "body"), in)
}

func (c *HTTPClient) CreateResponse(ctx context.Context, in ResponseInput) (string, error) {
	return c.create(ctx, KindResponse, endpointRoute(in.EndpointID, "responses"), in)
}

func endpointRoute(endpointID, sub string) string {
	return "/endpoints/" + url.PathEscape(endpointID) + "/" + sub
}

type createdResponse struct {
	ID string `json:"id"`
}

// create POSTs payload, retrying transient failures with exponential
// backoff. All attempts share one idempotency key so the remote side can
// drop duplicates of a call that succeeded but whose response was lost.
func (c *HTTPClient) create(ctx context.Context, kind Kind, route string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &CallError{Kind: kind, Cause: fmt.Errorf("encode request: %w", err)}
	}
	key := uuid.NewString()
	backoff := c.backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var lastErr *CallError
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		id, cerr := c.post(ctx, kind, route, key, body)
		if cerr == nil {
			return id, nil
		}
		lastErr = cerr
		if !cerr.Temporary() || ctx.Err() != nil || attempt == c.maxAttempts {
			break
		}
		c.logger.Debug("retrying creation call",
			"kind", kind, "attempt", attempt, "status", cerr.Status, "error", cerr)
		select {
		case <-ctx.Done():
			return "", &CallError{Kind: kind, Cause: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", lastErr
}

func (c *HTTPClient) post(ctx context.Context, kind Kind, route, key string, body []byte) (string, *CallError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+route, bytes.NewReader(body))
	if err != nil {
		return "", &CallError{Kind: kind, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", key)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.batchID != "" {
		req.Header.Set("X-Import-Batch", c.batchID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &CallError{Kind: kind, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &CallError{Kind: kind, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	var out createdResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return "", &CallError{Kind: kind, Status: resp.StatusCode, Cause: fmt.Errorf("decode response: %w", err)}
	}
	if out.ID == "" {
		return "", &CallError{Kind: kind, Status: resp.StatusCode, Cause: ErrMissingID}
	}
	return out.ID, nil
}
