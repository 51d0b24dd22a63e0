package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mark3labs/specimport/internal/config"
	"github.com/mark3labs/specimport/internal/spec"
	"github.com/mark3labs/specimport/internal/taxonomy"
)

// loadSettings merges defaults, the config file, SPECIMPORT_* variables and
// the flags that were explicitly set, in that order of precedence.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, newUsageError(err.Error())
	}

	flags := cmd.Flags()
	steps := []error{
		overrideBool(flags, "verbose", &cfg.Log.Verbose),
		overrideString(flags, "log-format", &cfg.Log.Format),
		overrideString(flags, "input", &cfg.Input),
		overrideBool(flags, "strict", &cfg.Import.Strict),
		overrideDuration(flags, "fetch-timeout", &cfg.Fetch.Timeout),
		overrideSlice(flags, "include-tags", &cfg.Filter.IncludeTags),
		overrideSlice(flags, "exclude-tags", &cfg.Filter.ExcludeTags),
		overrideSlice(flags, "methods", &cfg.Filter.Methods),
		overrideSlice(flags, "paths", &cfg.Filter.Paths),
	}
	if err := errors.Join(steps...); err != nil {
		return nil, err
	}
	normalizeFilters(&cfg.Filter)
	return cfg, nil
}

func normalizeFilters(f *config.FilterConfig) {
	f.IncludeTags = sanitizeTags(f.IncludeTags)
	f.ExcludeTags = sanitizeTags(f.ExcludeTags)
	f.Paths = sanitizeTags(f.Paths)
	methods := sanitizeTags(f.Methods)
	for i, m := range methods {
		methods[i] = strings.ToLower(m)
	}
	f.Methods = methods
}

func overrideString(flags *pflag.FlagSet, name string, dst *string) error {
	if flags.Lookup(name) == nil || !flags.Changed(name) {
		return nil
	}
	value, err := flags.GetString(name)
	if err != nil {
		return err
	}
	*dst = strings.TrimSpace(value)
	return nil
}

func overrideBool(flags *pflag.FlagSet, name string, dst *bool) error {
	if flags.Lookup(name) == nil || !flags.Changed(name) {
		return nil
	}
	value, err := flags.GetBool(name)
	if err != nil {
		return err
	}
	*dst = value
	return nil
}

func overrideInt(flags *pflag.FlagSet, name string, dst *int) error {
	if flags.Lookup(name) == nil || !flags.Changed(name) {
		return nil
	}
	value, err := flags.GetInt(name)
	if err != nil {
		return err
	}
	*dst = value
	return nil
}

func overrideFloat(flags *pflag.FlagSet, name string, dst *float64) error {
	if flags.Lookup(name) == nil || !flags.Changed(name) {
		return nil
	}
	value, err := flags.GetFloat64(name)
	if err != nil {
		return err
	}
	*dst = value
	return nil
}

func overrideDuration(flags *pflag.FlagSet, name string, dst *time.Duration) error {
	if flags.Lookup(name) == nil || !flags.Changed(name) {
		return nil
	}
	value, err := flags.GetDuration(name)
	if err != nil {
		return err
	}
	*dst = value
	return nil
}

func overrideSlice(flags *pflag.FlagSet, name string, dst *[]string) error {
	if flags.Lookup(name) == nil || !flags.Changed(name) {
		return nil
	}
	value, err := flags.GetStringSlice(name)
	if err != nil {
		return err
	}
	*dst = value
	return nil
}

// addDocumentFlags registers the flags shared by every command that reads a
// document.
func addDocumentFlags(flags *pflag.FlagSet) {
	flags.String("input", "", "Path, http(s) URL, or - for stdin, of the OpenAPI/Swagger document")
	flags.Bool("strict", false, "Fail when the document does not pass structural validation")
	flags.Duration("fetch-timeout", 0, "Timeout for fetching a document given as URL")
	flags.StringSlice("include-tags", nil, "Only include operations with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude operations with these tags")
	flags.StringSlice("methods", nil, "Only include these HTTP methods (get,post,...)")
	flags.StringSlice("paths", nil, "Only include paths matching these glob patterns (e.g. /users/**)")
}

// validateDocumentSettings checks what every document-reading command needs.
func validateDocumentSettings(command string, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return newUsageError(fmt.Sprintf("%s: %v", command, err))
	}
	if cfg.Input == "" {
		return newUsageError(fmt.Sprintf("%s: --input is required (set via flag, config file or SPECIMPORT_INPUT)", command))
	}
	if overlap := intersect(cfg.Filter.IncludeTags, cfg.Filter.ExcludeTags); len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("%s: include/exclude tags overlap: %s", command, strings.Join(overlap, ", ")))
	}
	return nil
}

// loadTaxonomy reads the document and builds the filtered taxonomy.
func loadTaxonomy(ctx context.Context, cfg *config.Config, stdin io.Reader, logger *slog.Logger) (*taxonomy.Taxonomy, error) {
	opts := []spec.Option{
		spec.WithStrict(cfg.Import.Strict),
		spec.WithLogger(logger),
		spec.WithStdin(stdin),
		spec.WithMaxRetries(cfg.Fetch.MaxRetries),
	}
	if cfg.Fetch.Timeout > 0 {
		opts = append(opts, spec.WithHTTPTimeout(cfg.Fetch.Timeout))
	}
	doc, err := spec.Load(ctx, cfg.Input, opts...)
	if err != nil {
		// Map structured spec errors into friendly messages
		var se *spec.SpecError
		if errors.As(err, &se) {
			msg := se.Message
			if se.Location != "" {
				msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
			}
			if se.JSONPointer != "" {
				msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
			}
			return nil, &documentError{msg: msg, cause: err}
		}
		return nil, err
	}

	methods := make([]spec.HttpMethod, 0, len(cfg.Filter.Methods))
	for _, m := range cfg.Filter.Methods {
		methods = append(methods, spec.HttpMethod(m))
	}
	t, err := taxonomy.Build(doc,
		taxonomy.WithIncludeTags(cfg.Filter.IncludeTags),
		taxonomy.WithExcludeTags(cfg.Filter.ExcludeTags),
		taxonomy.WithMethods(methods),
		taxonomy.WithPathGlobs(cfg.Filter.Paths),
		taxonomy.WithLogger(logger),
	)
	if err != nil {
		return nil, newUsageError(err.Error())
	}
	return t, nil
}

func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func sanitizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}
