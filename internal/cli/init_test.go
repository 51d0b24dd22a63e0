package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/specimport/internal/config"
)

func TestInit_WritesSampleConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	var stdout bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path})

	if err := root.Execute(); err != nil {
		t.Fatalf("init execute: %v", err)
	}
	if !strings.Contains(stdout.String(), "Wrote sample config to") {
		t.Fatalf("unexpected output: %s", stdout.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(data), "specimport configuration") {
		t.Fatalf("unexpected config contents: %s", data)
	}
}

func TestInit_SampleConfigLoads(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "specimport.yaml")
	if err := runInit(t.Context(), &InitConfig{OutputPath: path, Out: io.Discard}); err != nil {
		t.Fatalf("init: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
	if cfg.Import.Concurrency != 4 || cfg.Log.Format != "text" {
		t.Fatalf("unexpected sample values: %+v", cfg.Import)
	}
}

func TestInit_ExistingWithoutForce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("prewrite: %v", err)
	}

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path})

	err := root.Execute()
	if err == nil {
		t.Fatalf("expected error for existing file without --force")
	}
	if _, ok := err.(usageError); !ok {
		t.Fatalf("expected usage error, got %T: %v", err, err)
	}

	root = NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path, "--force"})
	if err := root.Execute(); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}
