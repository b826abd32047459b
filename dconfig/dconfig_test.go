package dconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "droplet.yaml"))
	if err != nil {
		t.Fatalf("unexpected error for a missing file: %v", err)
	}
	if len(cfg.ModuleSearchRoots) != 0 || cfg.GCInitialThreshold != 0 {
		t.Fatalf("expected zero-value defaults, got %+v", cfg)
	}
}

func TestLoadParsesDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "droplet.yaml")
	doc := `
module_search_roots:
  - .
  - vendor/drop
ffi_search_roots:
  - ./wasm
gc_initial_threshold: 1024
max_steps: 5000000
max_stack_depth: 512
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("unexpected error writing fixture: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.ModuleSearchRoots) != 2 || cfg.ModuleSearchRoots[1] != "vendor/drop" {
		t.Fatalf("unexpected module search roots: %v", cfg.ModuleSearchRoots)
	}
	if cfg.GCInitialThreshold != 1024 {
		t.Fatalf("expected gc threshold 1024, got %d", cfg.GCInitialThreshold)
	}
	if cfg.MaxSteps != 5000000 {
		t.Fatalf("expected max steps 5000000, got %d", cfg.MaxSteps)
	}
	if cfg.MaxStackDepth != 512 {
		t.Fatalf("expected max stack depth 512, got %d", cfg.MaxStackDepth)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "droplet.yaml")
	if err := os.WriteFile(path, []byte("not: [valid"), 0o644); err != nil {
		t.Fatalf("unexpected error writing fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for malformed YAML")
	}
}
