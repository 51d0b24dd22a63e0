package spec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
	// Strict turns structural validation findings into ValidationError.
	// When false they are logged as warnings and loading proceeds.
	Strict bool
	// Stdin is read when the input is "-".
	Stdin io.Reader
	// Logger receives decode and validation warnings.
	Logger *slog.Logger
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 10 * time.Second,
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
		Stdin:       os.Stdin,
		Logger:      slog.New(slog.DiscardHandler),
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option  { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option             { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option  { return func(s *Settings) { s.BackoffBase = d } }
func WithStrict(strict bool) Option           { return func(s *Settings) { s.Strict = strict } }
func WithStdin(r io.Reader) Option            { return func(s *Settings) { s.Stdin = r } }
func WithLogger(l *slog.Logger) Option        { return func(s *Settings) { s.Logger = l } }

// Load reads input, decodes it into a SourceDocument and runs structural
// validation.
//
// input may be an http/https URL, "-" for standard input, or a filesystem
// path. file:// and any other URL scheme are rejected.
func Load(ctx context.Context, input string, opts ...Option) (*SourceDocument, error) {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	raw, location, err := read(ctx, input, settings)
	if err != nil {
		return nil, err
	}
	return LoadBytes(ctx, raw, location, opts...)
}

// LoadBytes is Load for text that is already in memory, such as an uploaded
// file or pasted content. location is only used in messages.
func LoadBytes(ctx context.Context, raw []byte, location string, opts ...Option) (*SourceDocument, error) {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	if location == "" {
		location = "<text>"
	}
	logger := settings.Logger.With("location", location)

	doc, err := Decode(raw)
	if err != nil {
		var se *SpecError
		if errors.As(err, &se) {
			se.Location = location
		}
		return nil, err
	}
	for _, w := range doc.Warnings {
		logger.Warn("skipped part of document", "detail", w)
	}

	if err := Validate(ctx, raw, doc); err != nil {
		if settings.Strict {
			return nil, mapValidateErr(err, location)
		}
		logger.Warn("document failed structural validation, continuing", "error", err)
	}
	logger.Debug("loaded document",
		"marker", doc.Marker, "version", doc.Version,
		"paths", len(doc.Paths), "schemas", doc.Schemas.Len())
	return doc, nil
}

func read(ctx context.Context, input string, settings Settings) ([]byte, string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, "", &SpecError{Code: InputError, Message: "spec: input is empty"}
	}
	if input == "-" {
		if settings.Stdin == nil {
			return nil, "", &SpecError{Code: InputError, Message: "spec: no standard input available", Location: "<stdin>"}
		}
		raw, err := io.ReadAll(settings.Stdin)
		if err != nil {
			return nil, "", &SpecError{Code: InputError, Message: fmt.Sprintf("read stdin: %v", err), Location: "<stdin>", Cause: err}
		}
		return raw, "<stdin>", nil
	}

	u, uerr := url.Parse(input)
	if uerr == nil && u.Scheme != "" && (u.Host != "" || u.Scheme == "file") {
		scheme := strings.ToLower(u.Scheme)
		if scheme == "file" {
			return nil, "", &SpecError{Code: InputError, Message: "spec: file:// URLs are not accepted, pass a path instead", Location: input}
		}
		if scheme != "http" && scheme != "https" {
			return nil, "", &SpecError{Code: InputError, Message: fmt.Sprintf("spec: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
		}
		raw, err := fetchWithRetry(ctx, input, settings)
		if err != nil {
			return nil, "", &SpecError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, err), Location: input, Cause: err}
		}
		return raw, input, nil
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, "", &SpecError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: input, Cause: err}
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, "", &SpecError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, err), Location: abs, Cause: err}
	}
	return raw, abs, nil
}

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := &http.Client{Timeout: settings.HTTPTimeout}
	var lastErr error
	backoff := settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	attempts := settings.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		body, retry, err := fetchOnce(ctx, client, rawURL)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if lastErr == nil {
		lastErr = errors.New("fetch failed")
	}
	return nil, lastErr
}

// fetchOnce performs one GET. retry reports whether the failure is transient.
func fetchOnce(ctx context.Context, client *http.Client, rawURL string) (body []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		return body, false, err
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("transient http error %d", resp.StatusCode)
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return nil, false, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
