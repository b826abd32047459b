package ffi

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"droplet/vm"
)

// parseSignature splits a §6.4 signature string "<argKinds>-><retKind>"
// into its argument-kind bytes and single return-kind byte. Each kind is
// one of i (int64), f (double), b (bool), s (string); an empty return is
// written v. "ii->i" takes two ints and returns an int; "->v" takes
// nothing and returns nothing.
func parseSignature(sig string) (argKinds []byte, retKind byte, err error) {
	parts := strings.SplitN(sig, "->", 2)
	if len(parts) != 2 {
		return nil, 0, fmt.Errorf("missing '->' in signature %q", sig)
	}
	for _, k := range []byte(parts[0]) {
		if !validKind(k) {
			return nil, 0, fmt.Errorf("unknown argument kind %q in signature %q", k, sig)
		}
		argKinds = append(argKinds, k)
	}
	switch {
	case parts[1] == "v":
		retKind = 'v'
	case len(parts[1]) == 1 && validKind(parts[1][0]):
		retKind = parts[1][0]
	default:
		return nil, 0, fmt.Errorf("invalid return kind %q in signature %q", parts[1], sig)
	}
	return argKinds, retKind, nil
}

func validKind(k byte) bool {
	switch k {
	case 'i', 'f', 'b', 's':
		return true
	}
	return false
}

// marshalArgs converts each Value to the uint64 wire encoding wazero's
// api.Function.Call expects, per its declared kind. Strings are written
// into the guest's linear memory through its exported "allocate" function
// and passed as a (ptr, len) pair of i64 params — the simplest calling
// convention a guest module can implement without a component-model
// toolchain, and the one the signature string already anticipates by
// reserving exactly one letter per logical argument rather than per wasm
// value type.
func marshalArgs(mod api.Module, kinds []byte, args []vm.Value) ([]uint64, error) {
	var out []uint64
	for i, k := range kinds {
		v := args[i]
		switch k {
		case 'i':
			out = append(out, api.EncodeI64(v.I))
		case 'f':
			out = append(out, api.EncodeF64(v.F))
		case 'b':
			b := int64(0)
			if v.B {
				b = 1
			}
			out = append(out, api.EncodeI64(b))
		case 's':
			ptr, length, err := writeString(mod, v.String())
			if err != nil {
				return nil, err
			}
			out = append(out, api.EncodeI64(int64(ptr)), api.EncodeI64(int64(length)))
		}
	}
	return out, nil
}

// writeString allocates length bytes in the guest's memory via its
// exported "allocate" symbol and copies s into it. Guests that don't
// export "allocate" cannot receive string arguments; the caller turns
// that into the documented nil-and-continue failure instead of a panic.
func writeString(mod api.Module, s string) (ptr, length uint32, err error) {
	alloc := mod.ExportedFunction("allocate")
	if alloc == nil {
		return 0, 0, fmt.Errorf("guest module exports no 'allocate' function, cannot pass string arguments")
	}
	length = uint32(len(s))
	results, err := alloc.Call(context.Background(), api.EncodeI64(int64(length)))
	if err != nil {
		return 0, 0, fmt.Errorf("calling guest 'allocate': %w", err)
	}
	if len(results) != 1 {
		return 0, 0, fmt.Errorf("guest 'allocate' returned %d results, expected 1", len(results))
	}
	ptr = uint32(int64(results[0]))
	if !mod.Memory().Write(ptr, []byte(s)) {
		return 0, 0, fmt.Errorf("writing %d bytes at offset %d exceeds guest memory", length, ptr)
	}
	return ptr, length, nil
}

// unmarshalResult decodes the single wasm return value (or reads a
// (ptr, len) pair out of guest memory for a string return) back into a
// vm.Value. A 'v' return kind always yields nil regardless of what the
// guest function returned.
func unmarshalResult(mod api.Module, kind byte, results []uint64) (vm.Value, error) {
	switch kind {
	case 'v':
		return vm.Nil(), nil
	case 'i':
		if len(results) != 1 {
			return vm.Nil(), fmt.Errorf("expected 1 result for int return, got %d", len(results))
		}
		return vm.IntVal(int64(results[0])), nil
	case 'f':
		if len(results) != 1 {
			return vm.Nil(), fmt.Errorf("expected 1 result for float return, got %d", len(results))
		}
		return vm.DoubleVal(api.DecodeF64(results[0])), nil
	case 'b':
		if len(results) != 1 {
			return vm.Nil(), fmt.Errorf("expected 1 result for bool return, got %d", len(results))
		}
		return vm.BoolVal(int64(results[0]) != 0), nil
	case 's':
		if len(results) != 2 {
			return vm.Nil(), fmt.Errorf("expected 2 results (ptr, len) for string return, got %d", len(results))
		}
		ptr := uint32(int64(results[0]))
		length := uint32(int64(results[1]))
		data, ok := mod.Memory().Read(ptr, length)
		if !ok {
			return vm.Nil(), fmt.Errorf("reading %d bytes at offset %d exceeds guest memory", length, ptr)
		}
		// Not allocated through a VM's Allocator: v.Constants already shows
		// the same pattern (vm_test.go builds constant strings with
		// vm.NewStringObject directly) since neither is reachable from the
		// root walker's stack/globals scan between collections anyway.
		return vm.ObjectVal(vm.NewStringObject(string(data))), nil
	default:
		return vm.Nil(), fmt.Errorf("unknown return kind %q", kind)
	}
}
