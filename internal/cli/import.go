package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mark3labs/specimport/internal/config"
	"github.com/mark3labs/specimport/internal/orchestrator"
	"github.com/mark3labs/specimport/internal/remote"
)

// ImportConfig captures all inputs that influence the import command after
// merging defaults, config file values, environment and CLI overrides.
type ImportConfig struct {
	config.Config

	Stdin io.Reader
	Out   io.Writer
	Err   io.Writer
}

var importRunner = runImport

const retryBackoff = 200 * time.Millisecond

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an OpenAPI/Swagger document into a remote project",
		Long: "Parse the document, group operations into folders by their first tag and create the folders, " +
			"endpoints, parameters, headers, bodies and responses through the persistence API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveImportConfig(cmd)
			if err != nil {
				return err
			}
			return importRunner(cmd.Context(), cfg)
		},
	}

	addDocumentFlags(cmd.Flags())
	cmd.Flags().String("project", "", "Remote project that receives the folders and endpoints")
	cmd.Flags().String("target", "", "Base URL of the persistence API")
	cmd.Flags().String("token", "", "Bearer token for the persistence API")
	cmd.Flags().Duration("timeout", 0, "Per-call timeout against the persistence API")
	cmd.Flags().Int("retries", 0, "Attempts per creation call on transient errors")
	cmd.Flags().Bool("dry-run", false, "Plan the import against an in-memory store without remote calls")
	cmd.Flags().Int("concurrency", 0, "Maximum folders imported in parallel")
	cmd.Flags().Float64("rate-limit", 0, "Maximum creation calls per second (0 = unlimited)")
	cmd.Flags().Int("burst", 0, "Burst size for --rate-limit")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics of the run to this file")

	return cmd
}

func resolveImportConfig(cmd *cobra.Command) (*ImportConfig, error) {
	base, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	steps := []error{
		overrideString(flags, "project", &base.Project),
		overrideString(flags, "target", &base.Target.URL),
		overrideString(flags, "token", &base.Target.Token),
		overrideDuration(flags, "timeout", &base.Target.Timeout),
		overrideInt(flags, "retries", &base.Target.MaxRetries),
		overrideBool(flags, "dry-run", &base.Import.DryRun),
		overrideInt(flags, "concurrency", &base.Import.Concurrency),
		overrideFloat(flags, "rate-limit", &base.Import.RateLimit),
		overrideInt(flags, "burst", &base.Import.Burst),
		overrideString(flags, "metrics-file", &base.Import.MetricsFile),
	}
	for _, err := range steps {
		if err != nil {
			return nil, err
		}
	}

	if err := validateDocumentSettings("import", base); err != nil {
		return nil, err
	}
	if base.Project == "" {
		return nil, newUsageError("import: --project is required (set via flag, config file or SPECIMPORT_PROJECT)")
	}
	if base.Target.URL == "" && !base.Import.DryRun {
		return nil, newUsageError("import: --target is required unless --dry-run is set")
	}

	return &ImportConfig{
		Config: *base,
		Stdin:  cmd.InOrStdin(),
		Out:    cmd.OutOrStdout(),
		Err:    cmd.ErrOrStderr(),
	}, nil
}

func runImport(ctx context.Context, cfg *ImportConfig) error {
	logger := newLogger(cfg.Err, cfg.Log.Format, cfg.Log.Verbose)
	if cfg.File != "" {
		logger.Debug("config loaded", "file", cfg.File)
	}

	t, err := loadTaxonomy(ctx, &cfg.Config, cfg.Stdin, logger)
	if err != nil {
		return err
	}

	batchID := uuid.NewString()
	boundary, err := newBoundary(cfg, batchID, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	orch := orchestrator.New(boundary,
		orchestrator.WithConcurrency(cfg.Import.Concurrency),
		orchestrator.WithRateLimit(cfg.Import.RateLimit, cfg.Import.Burst),
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(orchestrator.NewMetrics(reg)),
		orchestrator.WithBatchID(batchID),
	)

	rep, importErr := orch.Import(ctx, cfg.Project, t)
	if rep != nil {
		printReport(cfg.Out, rep, cfg.Import.DryRun)
	}

	if cfg.Import.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.Import.MetricsFile, reg); err != nil {
			logger.Warn("cannot write metrics file", "path", cfg.Import.MetricsFile, "error", err)
		}
	}
	return importErr
}

func newBoundary(cfg *ImportConfig, batchID string, logger *slog.Logger) (remote.Boundary, error) {
	if cfg.Import.DryRun {
		return remote.NewMemoryStore(), nil
	}
	client, err := remote.NewHTTPClient(cfg.Target.URL,
		remote.WithToken(cfg.Target.Token),
		remote.WithBatchID(batchID),
		remote.WithTimeout(cfg.Target.Timeout),
		remote.WithRetry(cfg.Target.MaxRetries, retryBackoff),
		remote.WithHTTPLogger(logger),
	)
	if err != nil {
		return nil, newUsageError(fmt.Sprintf("import: %v", err))
	}
	return client, nil
}

var reportKinds = []remote.Kind{
	remote.KindFolder,
	remote.KindEndpoint,
	remote.KindParameter,
	remote.KindHeader,
	remote.KindBody,
	remote.KindResponse,
}

func printReport(w io.Writer, rep *orchestrator.Report, dryRun bool) {
	if dryRun {
		fmt.Fprintln(w, "Dry run: no remote calls were made.")
	}
	fmt.Fprintf(w, "Batch %s -> project %s\n", rep.BatchID, rep.ProjectID)

	counts := make([]string, 0, len(reportKinds))
	for _, kind := range reportKinds {
		counts = append(counts, fmt.Sprintf("%d %s", rep.Count(kind), kind))
	}
	fmt.Fprintf(w, "Created: %s\n", strings.Join(counts, ", "))

	if len(rep.Failures) > 0 {
		fmt.Fprintf(w, "Failed: %d\n", len(rep.Failures))
		for _, f := range rep.Failures {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
	if rep.Skipped > 0 {
		fmt.Fprintf(w, "Skipped endpoints: %d\n", rep.Skipped)
	}
	fmt.Fprintf(w, "Took: %s\n", rep.Finished.Sub(rep.Started).Round(time.Millisecond))
}
