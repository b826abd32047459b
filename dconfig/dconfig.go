// Package dconfig reads droplet.yaml, the project manifest that
// configures modloader's search roots (§4.3), the garbage collector's
// initial heap threshold (§4.9), and the VM's step/stack limits. It
// mirrors the teacher's conformance package's use of gopkg.in/yaml.v3 for
// small, read-once-at-startup YAML documents.
package dconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the decoded shape of droplet.yaml. Every field has a usable
// zero value, so a missing or partial file still produces a runnable
// configuration.
type Config struct {
	// ModuleSearchRoots is passed straight to modloader.NewLoader. An
	// empty slice lets modloader fall back to its own defaults
	// ("." and ".dp_modules").
	ModuleSearchRoots []string `yaml:"module_search_roots,omitempty"`

	// FFISearchRoots is passed to ffi.NewDispatcher for resolving
	// @ffi library names to .wasm modules. Defaults to the current
	// directory when empty.
	FFISearchRoots []string `yaml:"ffi_search_roots,omitempty"`

	// GCInitialThreshold seeds vm.NewAllocator's collection threshold.
	// Zero means "use the allocator's own default" (256, per §4.9).
	GCInitialThreshold int `yaml:"gc_initial_threshold,omitempty"`

	// MaxSteps and MaxStackDepth bound one vm.VM.CallByName invocation's
	// opcode count and call-frame depth; zero means unlimited in both
	// cases, matching vm.VM's own zero-value defaults.
	MaxSteps      int64 `yaml:"max_steps,omitempty"`
	MaxStackDepth int   `yaml:"max_stack_depth,omitempty"`
}

// Default returns the zero-value Config, which every consumer (modloader,
// vm.NewAllocator, vm.VM) already treats as "use my own built-in default."
func Default() Config {
	return Config{}
}

// Load reads and decodes path as a droplet.yaml document. A missing file
// is not an error: Load returns Default() so a project with no manifest
// still runs with the built-in defaults everywhere.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("dconfig: reading '%s': %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("dconfig: parsing '%s': %w", path, err)
	}
	return cfg, nil
}
