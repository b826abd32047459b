// Package ffi implements the foreign-function dispatcher the VM's
// CALL_FFI instruction delegates to (§6.4): each @ffi("libName", sig=...)
// declaration names a WebAssembly module (resolved under a configurable
// set of search roots, the same convention modloader uses for .drop
// imports) and an exported symbol inside it. Dispatch compiles and
// instantiates that module lazily with wazero, the only sandboxed,
// dependency-free way to run foreign code from within a Go process
// without binding to libdl or cgo.
package ffi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"droplet/vm"
)

// Dispatcher resolves @ffi library names to .wasm modules under searchRoots
// and satisfies vm.FFIDispatcher. One Dispatcher should be shared for the
// lifetime of a VM: it caches every module it compiles and instantiates.
type Dispatcher struct {
	runtime     wazero.Runtime
	searchRoots []string

	mu      sync.Mutex
	modules map[string]*loadedModule
}

type loadedModule struct {
	mod api.Module
	err error
}

// NewDispatcher creates a Dispatcher that resolves library names under
// searchRoots, in order, the first match wins. A nil or empty searchRoots
// falls back to the current directory.
func NewDispatcher(searchRoots []string) *Dispatcher {
	if len(searchRoots) == 0 {
		searchRoots = []string{"."}
	}
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	// Most guest modules only need memory and argument passing, but a
	// symbol that calls back into WASI (e.g. for its own diagnostics) must
	// not fail to instantiate just because the host never anticipated it.
	wasi_snapshot_preview1.MustInstantiate(ctx, r)
	return &Dispatcher{
		runtime:     r,
		searchRoots: searchRoots,
		modules:     make(map[string]*loadedModule),
	}
}

// Close releases every instantiated module and the underlying wazero
// runtime. Call it once, when the owning VM is torn down.
func (d *Dispatcher) Close() error {
	return d.runtime.Close(context.Background())
}

// Call implements vm.FFIDispatcher. It resolves libName to a .wasm module
// (compiling and instantiating it on first use), looks up symName as an
// exported function, marshals args according to signature's argument
// kinds, invokes it, and unmarshals the single return value. Any
// resolution failure degrades to the spec's documented policy (§7.4):
// CALL_FFI never aborts the VM, it returns an error that the VM turns into
// a pushed nil.
func (d *Dispatcher) Call(libName, symName, signature string, args []vm.Value) (vm.Value, error) {
	argKinds, retKind, err := parseSignature(signature)
	if err != nil {
		return vm.Nil(), fmt.Errorf("ffi: bad signature '%s' for %s::%s: %w", signature, libName, symName, err)
	}
	if len(argKinds) != len(args) {
		return vm.Nil(), fmt.Errorf("ffi: %s::%s expects %d args, got %d", libName, symName, len(argKinds), len(args))
	}

	mod, err := d.resolve(libName)
	if err != nil {
		return vm.Nil(), err
	}

	fn := mod.ExportedFunction(symName)
	if fn == nil {
		return vm.Nil(), fmt.Errorf("ffi: symbol '%s' not found in module '%s'", symName, libName)
	}

	params, err := marshalArgs(mod, argKinds, args)
	if err != nil {
		return vm.Nil(), fmt.Errorf("ffi: marshaling args for %s::%s: %w", libName, symName, err)
	}

	results, err := fn.Call(context.Background(), params...)
	if err != nil {
		return vm.Nil(), fmt.Errorf("ffi: calling %s::%s: %w", libName, symName, err)
	}

	return unmarshalResult(mod, retKind, results)
}

// resolve returns the cached instantiated module for libName, compiling
// and instantiating it on first use. A module that fails to load once is
// not retried on later calls from the same dispatcher — its error is
// cached too, so a missing library degrades at a predictable, bounded cost.
func (d *Dispatcher) resolve(libName string) (api.Module, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cached, ok := d.modules[libName]; ok {
		return cached.mod, cached.err
	}

	path, err := d.findModule(libName)
	if err != nil {
		d.modules[libName] = &loadedModule{err: err}
		return nil, err
	}

	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		wrapped := fmt.Errorf("ffi: reading wasm module '%s': %w", path, err)
		d.modules[libName] = &loadedModule{err: wrapped}
		return nil, wrapped
	}

	ctx := context.Background()
	compiled, err := d.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		wrapped := fmt.Errorf("ffi: compiling wasm module '%s': %w", path, err)
		d.modules[libName] = &loadedModule{err: wrapped}
		return nil, wrapped
	}

	cfg := wazero.NewModuleConfig().WithName(libName)
	mod, err := d.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		wrapped := fmt.Errorf("ffi: instantiating wasm module '%s': %w", path, err)
		d.modules[libName] = &loadedModule{err: wrapped}
		return nil, wrapped
	}

	d.modules[libName] = &loadedModule{mod: mod}
	return mod, nil
}

// findModule searches searchRoots in order for "<libName>.wasm".
func (d *Dispatcher) findModule(libName string) (string, error) {
	for _, root := range d.searchRoots {
		candidate := filepath.Join(root, libName+".wasm")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("ffi: no '%s.wasm' found under search roots %v", libName, d.searchRoots)
}
