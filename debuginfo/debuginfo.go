// Package debuginfo writes and reads the .ddbg sidecar files described in
// §6.5: per-function IP→(file,line,column) tables and local-variable
// name→slot tables, CBOR-encoded alongside a .dlbc artifact. These tables
// are consumed only by an external debugger or loader.AttachDebugInfo;
// nothing about their presence or absence changes execution.
package debuginfo

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"droplet/vm"
)

// cborEncMode mirrors the canonical, deterministic CBOR encoding used
// elsewhere in the retrieval pack for data written to disk: the same
// input always produces the same bytes, which matters for a sidecar file
// a build pipeline might hash or diff.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("debuginfo: failed to create CBOR encode mode: %v", err))
	}
	cborEncMode = em
}

// location is the CBOR wire shape for a vm.SourceLocation, field-named
// independently of vm's Go struct tags so the sidecar format doesn't
// silently change if vm.SourceLocation's field order or names ever do.
type location struct {
	File   string `cbor:"file"`
	Line   int    `cbor:"line"`
	Column int    `cbor:"column"`
}

// function is the CBOR wire shape for one vm.DebugInfo.
type function struct {
	Locations map[int]location `cbor:"locations"`
	Locals    map[string]int   `cbor:"locals"`
}

// file is the top-level .ddbg document: one function entry per mangled
// function name, the same names codegen.Generator.DebugInfo() returns.
type file struct {
	Functions map[string]function `cbor:"functions"`
}

// Encode serializes dbg (as returned by codegen.Generator.DebugInfo) to
// CBOR bytes.
func Encode(dbg map[string]*vm.DebugInfo) ([]byte, error) {
	doc := file{Functions: make(map[string]function, len(dbg))}
	for name, info := range dbg {
		fn := function{
			Locations: make(map[int]location, len(info.Locations)),
			Locals:    info.Locals,
		}
		for ip, loc := range info.Locations {
			fn.Locations[ip] = location{File: loc.File, Line: loc.Line, Column: loc.Column}
		}
		doc.Functions[name] = fn
	}
	data, err := cborEncMode.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("debuginfo: encoding: %w", err)
	}
	return data, nil
}

// Decode parses CBOR bytes produced by Encode back into the
// name→*vm.DebugInfo shape loader.AttachDebugInfo expects.
func Decode(data []byte) (map[string]*vm.DebugInfo, error) {
	var doc file
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("debuginfo: decoding: %w", err)
	}
	out := make(map[string]*vm.DebugInfo, len(doc.Functions))
	for name, fn := range doc.Functions {
		info := &vm.DebugInfo{
			Locations: make(map[int]vm.SourceLocation, len(fn.Locations)),
			Locals:    fn.Locals,
		}
		for ip, loc := range fn.Locations {
			info.Locations[ip] = vm.SourceLocation{File: loc.File, Line: loc.Line, Column: loc.Column}
		}
		out[name] = info
	}
	return out, nil
}

// Write encodes dbg and writes it to path, the convention being
// "<program>.ddbg" next to "<program>.dlbc".
func Write(path string, dbg map[string]*vm.DebugInfo) error {
	data, err := Encode(dbg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("debuginfo: writing '%s': %w", path, err)
	}
	return nil
}

// Read reads and decodes a .ddbg sidecar from path.
func Read(path string) (map[string]*vm.DebugInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("debuginfo: reading '%s': %w", path, err)
	}
	return Decode(data)
}
