// Package loader turns a parsed DLBC file (dlbc.Read's validated View)
// into a running vm.VM: the constant pool becomes vm.Values allocated
// through the VM's own collector, and each function header becomes a
// vm.Function sliced out of the unified code blob (§6.2).
package loader

import (
	"fmt"
	"os"

	"droplet/dlbc"
	"droplet/vm"
)

// FormatError reports a load/format-era failure (§7.3): a bad DLBC file,
// a truncated section, an out-of-range index, or a read failure before
// any of that could even be checked. It is never returned for a
// successfully loaded VM's own runtime anomalies — those are handled
// defensively inside vm, per §7.4.
type FormatError struct {
	Path    string // empty for LoadBytes, where there is no path
	Message string
	Err     error // the underlying dlbc.Read or os error, if any
}

func (e *FormatError) Error() string {
	suffix := ""
	if e.Err != nil {
		suffix = ": " + e.Err.Error()
	}
	if e.Path != "" {
		return fmt.Sprintf("loader: %s (%s)%s", e.Message, e.Path, suffix)
	}
	return fmt.Sprintf("loader: %s%s", e.Message, suffix)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Load reads path, validates it as a DLBC file, and installs every
// function into a fresh vm.VM. natives and ffi may be nil; when non-nil
// they are wired onto the VM before any static initializer or main runs.
func Load(path string, natives func(*vm.VM), ffi vm.FFIDispatcher) (*vm.VM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FormatError{Path: path, Message: "reading file", Err: err}
	}
	v, err := LoadBytes(data, natives, ffi)
	if fe, ok := err.(*FormatError); ok && fe.Path == "" {
		fe.Path = path
	}
	return v, err
}

// LoadBytes is Load without the filesystem round-trip, for embedders that
// already have the DLBC bytes in memory (tests, in-process compilation).
// It uses the VM's built-in GC threshold default; use LoadBytesWithThreshold
// to override it from a project configuration.
func LoadBytes(data []byte, natives func(*vm.VM), ffi vm.FFIDispatcher) (*vm.VM, error) {
	return LoadBytesWithThreshold(data, natives, ffi, 0)
}

// LoadBytesWithThreshold is LoadBytes with an explicit GC initial
// threshold (0 falls back to the allocator's own default), for callers
// that read gc_initial_threshold out of a droplet.yaml manifest.
func LoadBytesWithThreshold(data []byte, natives func(*vm.VM), ffi vm.FFIDispatcher, gcInitialThreshold int) (*vm.VM, error) {
	file, err := dlbc.Read(data)
	if err != nil {
		return nil, &FormatError{Message: "invalid DLBC file", Err: err}
	}

	v := vm.NewVMWithThreshold(gcInitialThreshold)
	if natives != nil {
		natives(v)
	}
	v.FFI = ffi

	constants, err := resolveConstants(v, file.Consts)
	if err != nil {
		return nil, &FormatError{Message: "resolving constant pool", Err: err}
	}
	v.Constants = constants

	for i, h := range file.Funcs {
		name := constants[h.NameIndex].String()
		if uint64(h.CodeStart)+uint64(h.CodeSize) > uint64(len(file.Code)) {
			return nil, &FormatError{Message: fmt.Sprintf("function %d ('%s') code region out of bounds", i, name)}
		}
		fn := &vm.Function{
			Name:       name,
			Code:       file.Code[h.CodeStart : h.CodeStart+h.CodeSize],
			ArgCount:   h.ArgCount,
			LocalCount: h.LocalCount,
		}
		v.Functions = append(v.Functions, fn)
		v.FuncNameIdx[name] = uint32(i)
	}

	return v, nil
}

// resolveConstants turns each dlbc.Const into a vm.Value, allocating
// string objects through the VM's tracked allocator so they participate
// in GC like any other heap value from the moment the program starts.
func resolveConstants(v *vm.VM, consts []dlbc.Const) ([]vm.Value, error) {
	out := make([]vm.Value, len(consts))
	for i, c := range consts {
		switch c.Type {
		case dlbc.ConstInt:
			out[i] = vm.IntVal(int64(c.I32))
		case dlbc.ConstF64:
			out[i] = vm.DoubleVal(c.F64)
		case dlbc.ConstStr:
			out[i] = vm.ObjectVal(v.NewString(c.Str))
		case dlbc.ConstNil:
			out[i] = vm.Nil()
		case dlbc.ConstBool:
			out[i] = vm.BoolVal(c.Bool)
		default:
			return nil, fmt.Errorf("loader: unknown constant type %d at index %d", c.Type, i)
		}
	}
	return out, nil
}

// AttachDebugInfo wires a decoded .ddbg sidecar (§6.5) onto the matching
// already-loaded functions, keyed by the same name dbg was recorded
// under during code generation. A name with no corresponding function is
// silently ignored — debug info is always optional and never changes
// execution, so a stale or partial sidecar degrades gracefully rather
// than failing the load.
func AttachDebugInfo(v *vm.VM, dbg map[string]*vm.DebugInfo) {
	for name, info := range dbg {
		if idx, ok := v.FuncNameIdx[name]; ok {
			v.Functions[idx].Debug = info
		}
	}
}

// RunStaticInits invokes each function named in order by calling it with
// zero arguments, in order, the way cmd/droplet's `run` subcommand
// bootstraps a program before invoking main (§4.5's synthesized
// ClassName$$field$init contract never specifies its own caller).
func RunStaticInits(v *vm.VM, order []string) error {
	for _, name := range order {
		if _, err := v.CallByName(name, nil); err != nil {
			return fmt.Errorf("loader: running static initializer '%s': %w", name, err)
		}
	}
	return nil
}
