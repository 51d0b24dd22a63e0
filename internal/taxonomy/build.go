// Package taxonomy turns a source document into folders and endpoints.
//
// Operations are visited path by path and verb by verb in document order.
// The first tag of an operation selects its folder; a folder is created the
// first time its tag is seen and is never merged or renamed afterwards.
// Operations without tags are collected as uncategorized.
package taxonomy

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mark3labs/specimport/internal/spec"
)

// Option configures which operations Build keeps.
type Option func(*buildConfig)

type buildConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[spec.HttpMethod]struct{}
	pathGlobs   []string
	badGlobs    []string
	logger      *slog.Logger
}

// WithIncludeTags keeps only operations that have at least one of the given tags.
func WithIncludeTags(tags []string) Option {
	return func(c *buildConfig) {
		for _, t := range tags {
			if t = strings.TrimSpace(t); t == "" {
				continue
			}
			if c.includeTags == nil {
				c.includeTags = make(map[string]struct{}, len(tags))
			}
			c.includeTags[t] = struct{}{}
		}
	}
}

// WithExcludeTags removes operations that have any of the given tags.
func WithExcludeTags(tags []string) Option {
	return func(c *buildConfig) {
		for _, t := range tags {
			if t = strings.TrimSpace(t); t == "" {
				continue
			}
			if c.excludeTags == nil {
				c.excludeTags = make(map[string]struct{}, len(tags))
			}
			c.excludeTags[t] = struct{}{}
		}
	}
}

// WithMethods keeps only operations using one of the provided verbs.
func WithMethods(methods []spec.HttpMethod) Option {
	return func(c *buildConfig) {
		for _, m := range methods {
			m = spec.HttpMethod(strings.ToLower(strings.TrimSpace(string(m))))
			if m == "" {
				continue
			}
			if c.methods == nil {
				c.methods = make(map[spec.HttpMethod]struct{}, len(methods))
			}
			c.methods[m] = struct{}{}
		}
	}
}

// WithPathGlobs keeps only operations whose path matches at least one
// doublestar pattern, e.g. "/users/**" or "/{pets,owners}/*".
func WithPathGlobs(patterns []string) Option {
	return func(c *buildConfig) {
		for _, p := range patterns {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			if !doublestar.ValidatePattern(p) {
				c.badGlobs = append(c.badGlobs, p)
				continue
			}
			c.pathGlobs = append(c.pathGlobs, p)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *buildConfig) { c.logger = l }
}

// Parse decodes raw document text and builds its taxonomy. Malformed
// documents are rejected before any extraction happens.
func Parse(data []byte, opts ...Option) (*Taxonomy, error) {
	doc, err := spec.Decode(data)
	if err != nil {
		return nil, err
	}
	return Build(doc, opts...)
}

// Build groups every eligible operation of doc in a single pass.
func Build(doc *spec.SourceDocument, opts ...Option) (*Taxonomy, error) {
	if doc == nil {
		return nil, errors.New("taxonomy: nil document")
	}
	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.badGlobs) > 0 {
		return nil, fmt.Errorf("taxonomy: invalid path pattern(s): %s", strings.Join(cfg.badGlobs, ", "))
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	x := NewExtractor(doc, cfg.logger)
	t := &Taxonomy{Title: doc.Info.Title, Version: doc.Info.Version}
	byTag := make(map[string]*ImportedFolder)

	for _, item := range doc.Paths {
		for _, op := range item.Operations {
			if !cfg.allow(item.Path, op) {
				continue
			}
			ep := x.Extract(item.Path, op)
			if len(op.Tags) == 0 {
				t.Uncategorized = append(t.Uncategorized, ep)
				continue
			}
			tag := op.Tags[0]
			folder, ok := byTag[tag]
			if !ok {
				folder = &ImportedFolder{Name: tag, Description: folderDescription(doc, tag)}
				byTag[tag] = folder
				t.Folders = append(t.Folders, folder)
			}
			ep.Folder = folder.Name
			folder.Endpoints = append(folder.Endpoints, ep)
		}
	}

	st := t.Stats()
	cfg.logger.Debug("built taxonomy",
		"folders", st.Folders, "endpoints", st.Endpoints, "uncategorized", len(t.Uncategorized))
	return t, nil
}

func folderDescription(doc *spec.SourceDocument, tag string) string {
	if d := doc.TagDescription(tag); d != "" {
		return d
	}
	return fmt.Sprintf("Endpoints tagged %q", tag)
}

func (c *buildConfig) allow(path string, op spec.Operation) bool {
	if len(c.methods) > 0 {
		if _, ok := c.methods[op.Method]; !ok {
			return false
		}
	}
	if len(c.pathGlobs) > 0 {
		matched := false
		for _, g := range c.pathGlobs {
			if ok, _ := doublestar.Match(g, path); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(c.includeTags) > 0 {
		ok := false
		for _, t := range op.Tags {
			if _, yes := c.includeTags[t]; yes {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, t := range op.Tags {
		if _, blocked := c.excludeTags[t]; blocked {
			return false
		}
	}
	return true
}
