package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Out        io.Writer
}

var initRunner = runInit

const defaultConfigFile = "specimport.yaml"

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample specimport configuration file",
		Long:  "Scaffold a commented specimport configuration file that documents available options.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			return initRunner(cmd.Context(), &InitConfig{
				OutputPath: out,
				Force:      force,
				Out:        cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().String("out", defaultConfigFile, "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = defaultConfigFile
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create parent directory: %v", err))
	}

	content := strings.TrimSpace(sampleConfigYAML) + "\n"

	// Atomic write via temp + rename
	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot write temp file: %v\nHint: choose a different --out or check directory permissions.", err))
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return newUsageError(fmt.Sprintf("init: cannot place file at %s: %v", absPath, err))
	}
	w := cfg.Out
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "Wrote sample config to %s\n", absPath)
	return nil
}

// sampleConfigYAML is a commented example config documenting available options.
const sampleConfigYAML = `# specimport configuration (YAML)
# All fields are optional. SPECIMPORT_* environment variables override the
# file (e.g. SPECIMPORT_TARGET_TOKEN) and command-line flags override both.

# Path, http(s) URL, or - for stdin, of the OpenAPI 3 / Swagger 2 document.
# input: ./openapi.yaml

# Remote project that receives the folders and endpoints.
# project: my-project

target:
  # Base URL of the persistence API.
  # url: https://api.example.com/v1
  # token: ""
  timeout: 30s
  # Attempts per creation call on 5xx, 429 and network errors.
  maxRetries: 3

fetch:
  # Applies when input is a URL.
  timeout: 30s
  maxRetries: 3

import:
  # Folders imported in parallel.
  concurrency: 4
  # Creation calls per second, 0 disables limiting.
  rateLimit: 0
  burst: 1
  # Plan against an in-memory store without remote calls.
  dryRun: false
  # Fail when the document does not pass structural validation.
  strict: false
  # Prometheus text file with call counters and latencies.
  # metricsFile: ./specimport.prom

filter:
  # e.g. [pets]
  includeTags: []
  # e.g. [internal]
  excludeTags: []
  # e.g. [get, post]
  methods: []
  # Glob patterns, e.g. ["/pets/**"]
  paths: []

log:
  # text or json, written to stderr.
  format: text
  verbose: false
`
