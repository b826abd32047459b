// Package trace provides execution tracing for the virtual machine,
// wired in through vm.CallHooks rather than scattered through the
// dispatch loop.
package trace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"droplet/vm"
)

// Tracer logs function calls, returns, native dispatch, and runtime
// errors as they cross the VM's call boundaries.
type Tracer struct {
	enabled bool
	filters []string
	writer  io.Writer
	mu      sync.Mutex
}

// Global tracer instance
var globalTracer *Tracer

// Init initializes the global tracer
func Init(enabled bool, filters []string, writer io.Writer) {
	if writer == nil {
		writer = os.Stderr
	}
	globalTracer = &Tracer{
		enabled: enabled,
		filters: filters,
		writer:  writer,
	}
}

// IsEnabled returns whether tracing is enabled
func IsEnabled() bool {
	if globalTracer == nil {
		return false
	}
	return globalTracer.enabled
}

// matchesFilter checks if a function name matches any of the filter
// patterns
func (t *Tracer) matchesFilter(name string) bool {
	if len(t.filters) == 0 {
		return true // No filters = trace everything
	}

	for _, pattern := range t.filters {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// Call logs a function call
func (t *Tracer) Call(fn *vm.Function, argc int) {
	if !t.enabled || !t.matchesFilter(fn.Name) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.writer, "[TRACE] CALL %s argc=%d\n", fn.Name, argc)
}

// Return logs a function return
func (t *Tracer) Return(fn *vm.Function, results []vm.Value) {
	if !t.enabled || !t.matchesFilter(fn.Name) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	resultStrs := make([]string, len(results))
	for i, r := range results {
		resultStrs[i] = r.String()
	}

	fmt.Fprintf(t.writer, "[TRACE] RETURN %s => [%s]\n", fn.Name, strings.Join(resultStrs, ", "))
}

// NativeCall logs a call into a registered native function
func (t *Tracer) NativeCall(name string, argc int) {
	if !t.enabled || !t.matchesFilter(name) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.writer, "[TRACE]   NATIVE %s argc=%d\n", name, argc)
}

// Error logs a runtime error at the point it aborts the dispatch loop
func (t *Tracer) Error(frame *vm.CallFrame, err error) {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	name := "?"
	if frame != nil && frame.Fn != nil {
		name = frame.Fn.Name
	}
	fmt.Fprintf(t.writer, "[TRACE] ERROR in %s: %s\n", name, err.Error())
}

// Hooks returns a vm.CallHooks wired to this tracer's Call/Return/
// NativeCall/Error methods, ready to assign to a vm.VM's Hooks field.
func (t *Tracer) Hooks() *vm.CallHooks {
	return &vm.CallHooks{
		OnCall:       func(_ *vm.VM, fn *vm.Function, argc int) { t.Call(fn, argc) },
		OnReturn:     func(_ *vm.VM, fn *vm.Function, results []vm.Value) { t.Return(fn, results) },
		OnNativeCall: func(_ *vm.VM, name string, argc int) { t.NativeCall(name, argc) },
		OnError:      func(_ *vm.VM, frame *vm.CallFrame, err error) { t.Error(frame, err) },
	}
}

// Attach installs the global tracer's hooks onto v, a no-op if Init was
// never called.
func Attach(v *vm.VM) {
	if globalTracer == nil {
		return
	}
	v.Hooks = globalTracer.Hooks()
}
