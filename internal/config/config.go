// Package config loads specimport settings from defaults, an optional
// config file and SPECIMPORT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mark3labs/specimport/internal/spec"
)

// Config is the merged configuration before command-line overrides.
type Config struct {
	// Input is a file path, http(s) URL or "-" for stdin.
	Input string `mapstructure:"input" yaml:"input" json:"input"`

	// Project is the remote project the import is written to.
	Project string `mapstructure:"project" yaml:"project" json:"project"`

	Target TargetConfig `mapstructure:"target" yaml:"target" json:"target"`
	Fetch  FetchConfig  `mapstructure:"fetch" yaml:"fetch" json:"fetch"`
	Import ImportConfig `mapstructure:"import" yaml:"import" json:"import"`
	Filter FilterConfig `mapstructure:"filter" yaml:"filter" json:"filter"`
	Log    LogConfig    `mapstructure:"log" yaml:"log" json:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-" json:"-"`
}

// TargetConfig describes the remote persistence API.
type TargetConfig struct {
	URL        string        `mapstructure:"url" yaml:"url" json:"url"`
	Token      string        `mapstructure:"token" yaml:"token" json:"token"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MaxRetries int           `mapstructure:"maxRetries" yaml:"maxRetries" json:"maxRetries"`
}

// FetchConfig controls how documents given as URLs are downloaded.
type FetchConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MaxRetries int           `mapstructure:"maxRetries" yaml:"maxRetries" json:"maxRetries"`
}

type ImportConfig struct {
	Concurrency int     `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency"`
	RateLimit   float64 `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`
	Burst       int     `mapstructure:"burst" yaml:"burst" json:"burst"`
	DryRun      bool    `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`
	Strict      bool    `mapstructure:"strict" yaml:"strict" json:"strict"`
	MetricsFile string  `mapstructure:"metricsFile" yaml:"metricsFile" json:"metricsFile"`
}

// FilterConfig selects which operations are imported.
type FilterConfig struct {
	IncludeTags []string `mapstructure:"includeTags" yaml:"includeTags" json:"includeTags"`
	ExcludeTags []string `mapstructure:"excludeTags" yaml:"excludeTags" json:"excludeTags"`
	Methods     []string `mapstructure:"methods" yaml:"methods" json:"methods"`
	Paths       []string `mapstructure:"paths" yaml:"paths" json:"paths"`
}

type LogConfig struct {
	Format  string `mapstructure:"format" yaml:"format" json:"format"`
	Verbose bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
}

// EnvPrefix is prepended to every environment override, e.g.
// SPECIMPORT_TARGET_TOKEN for target.token.
const EnvPrefix = "SPECIMPORT"

// configFileNames is the list of config file names to search for (in order).
var configFileNames = []string{
	"specimport.yaml",
	"specimport.yml",
	"specimport.json",
	".specimport.yaml",
}

var supportedLogFormats = []string{"text", "json"}

// ErrConfigNotFound is returned when an explicitly named config file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("config validation errors:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Field)
		sb.WriteString(": ")
		sb.WriteString(err.Message)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Fetch: FetchConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Import: ImportConfig{
			Concurrency: 4,
			Burst:       1,
		},
		Log: LogConfig{Format: "text"},
	}
}

// Load reads configPath, or the first of the well-known file names found in
// the working directory, and applies environment overrides. With no file the
// defaults plus environment are returned.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := strings.TrimSpace(configPath)
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, file)
		}
	} else {
		file = findConfigFile()
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = file
	return &cfg, nil
}

func findConfigFile() string {
	for _, name := range configFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// setDefaults registers every key so environment overrides apply to all of
// them, including keys absent from the config file.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("input", d.Input)
	v.SetDefault("project", d.Project)
	v.SetDefault("target.url", d.Target.URL)
	v.SetDefault("target.token", d.Target.Token)
	v.SetDefault("target.timeout", d.Target.Timeout)
	v.SetDefault("target.maxRetries", d.Target.MaxRetries)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.maxRetries", d.Fetch.MaxRetries)
	v.SetDefault("import.concurrency", d.Import.Concurrency)
	v.SetDefault("import.rateLimit", d.Import.RateLimit)
	v.SetDefault("import.burst", d.Import.Burst)
	v.SetDefault("import.dryRun", d.Import.DryRun)
	v.SetDefault("import.strict", d.Import.Strict)
	v.SetDefault("import.metricsFile", d.Import.MetricsFile)
	v.SetDefault("filter.includeTags", []string{})
	v.SetDefault("filter.excludeTags", []string{})
	v.SetDefault("filter.methods", []string{})
	v.SetDefault("filter.paths", []string{})
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.verbose", d.Log.Verbose)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Target.URL != "" {
		u, err := url.Parse(c.Target.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "target.url",
				Message: fmt.Sprintf("must be an http or https URL, got %q", c.Target.URL),
			})
		}
	}
	// Remote calls are not cancelled by interrupts once sent, so the client
	// timeout is the only bound on a stalled call.
	if c.Target.Timeout <= 0 {
		errs = append(errs, ValidationError{Field: "target.timeout", Message: "timeout must be positive"})
	}
	if c.Target.MaxRetries < 0 {
		errs = append(errs, ValidationError{Field: "target.maxRetries", Message: "maxRetries must be non-negative"})
	}
	if c.Fetch.Timeout < 0 {
		errs = append(errs, ValidationError{Field: "fetch.timeout", Message: "timeout must be non-negative"})
	}
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, ValidationError{Field: "fetch.maxRetries", Message: "maxRetries must be non-negative"})
	}

	if c.Import.Concurrency < 1 {
		errs = append(errs, ValidationError{Field: "import.concurrency", Message: "concurrency must be at least 1"})
	}
	if c.Import.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "import.rateLimit", Message: "rateLimit must be non-negative"})
	}
	if c.Import.Burst < 0 {
		errs = append(errs, ValidationError{Field: "import.burst", Message: "burst must be non-negative"})
	}

	for _, m := range c.Filter.Methods {
		if !spec.IsMethod(strings.ToLower(strings.TrimSpace(m))) {
			errs = append(errs, ValidationError{
				Field:   "filter.methods",
				Message: fmt.Sprintf("unsupported method %q", m),
			})
		}
	}

	if c.Log.Format != "" && !contains(supportedLogFormats, c.Log.Format) {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("unsupported format %q, must be one of: %s", c.Log.Format, strings.Join(supportedLogFormats, ", ")),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
