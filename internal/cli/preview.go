package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/specimport/internal/config"
)

// PreviewConfig captures the inputs of the preview command.
type PreviewConfig struct {
	config.Config

	Format string
	Stdin  io.Reader
	Out    io.Writer
	Err    io.Writer
}

var previewRunner = runPreview

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the folders and endpoints an import would create",
		Long:  "Parse the document and print the taxonomy, with synthesized examples, without contacting the persistence API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if err := validateDocumentSettings("preview", base); err != nil {
				return err
			}
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			if format != "yaml" && format != "json" {
				return newUsageError(fmt.Sprintf("preview: unsupported --format %q (use yaml or json)", format))
			}
			return previewRunner(cmd.Context(), &PreviewConfig{
				Config: *base,
				Format: format,
				Stdin:  cmd.InOrStdin(),
				Out:    cmd.OutOrStdout(),
				Err:    cmd.ErrOrStderr(),
			})
		},
	}

	addDocumentFlags(cmd.Flags())
	cmd.Flags().String("format", "yaml", "Output format (yaml|json)")

	return cmd
}

func runPreview(ctx context.Context, cfg *PreviewConfig) error {
	logger := newLogger(cfg.Err, cfg.Log.Format, cfg.Log.Verbose)
	t, err := loadTaxonomy(ctx, &cfg.Config, cfg.Stdin, logger)
	if err != nil {
		return err
	}
	st := t.Stats()
	logger.Info("taxonomy built",
		"folders", st.Folders, "endpoints", st.Endpoints, "uncategorized", len(t.Uncategorized), "calls", st.Total())

	if cfg.Format == "json" {
		enc := json.NewEncoder(cfg.Out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(t)
	}
	enc := yaml.NewEncoder(cfg.Out)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return err
	}
	return enc.Close()
}
