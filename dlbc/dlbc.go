// Package dlbc implements the DLBC bytecode container: the constant pool,
// function table, and the bit-exact binary file layout described in §6.1.
package dlbc

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Magic is the fixed 4-byte file signature.
var Magic = [4]byte{'D', 'L', 'B', 'C'}

// Version is the only file-format version this package accepts.
const Version = 1

// ConstType tags one constant-pool entry's encoding.
type ConstType uint8

const (
	ConstInt ConstType = 1
	ConstF64 ConstType = 2
	ConstStr ConstType = 3
	ConstNil ConstType = 4
	ConstBool ConstType = 5
)

// Const is one entry of the constant pool.
type Const struct {
	Type ConstType
	I32  int32
	F64  float64
	Str  string
	Bool bool
}

// FuncHeader is one entry of the function table.
type FuncHeader struct {
	NameIndex  uint32
	CodeStart  uint32
	CodeSize   uint32
	ArgCount   uint8
	LocalCount uint8
}

// Builder accumulates a program's constant pool and function table before
// serialization. It owns string-constant deduplication (§3: "same text
// produces the same index").
type Builder struct {
	consts    []Const
	stringIdx map[string]uint32

	funcs []FuncHeader
	code  bytes.Buffer
}

func NewBuilder() *Builder {
	return &Builder{stringIdx: make(map[string]uint32)}
}

// AddInt appends (or reuses, for strings) a constant and returns its index.
func (b *Builder) AddInt(v int32) uint32 {
	b.consts = append(b.consts, Const{Type: ConstInt, I32: v})
	return uint32(len(b.consts) - 1)
}

func (b *Builder) AddFloat(v float64) uint32 {
	b.consts = append(b.consts, Const{Type: ConstF64, F64: v})
	return uint32(len(b.consts) - 1)
}

// AddString deduplicates on exact text match: calling this twice with the
// same s returns the same index.
func (b *Builder) AddString(s string) uint32 {
	if idx, ok := b.stringIdx[s]; ok {
		return idx
	}
	b.consts = append(b.consts, Const{Type: ConstStr, Str: s})
	idx := uint32(len(b.consts) - 1)
	b.stringIdx[s] = idx
	return idx
}

func (b *Builder) AddNil() uint32 {
	b.consts = append(b.consts, Const{Type: ConstNil})
	return uint32(len(b.consts) - 1)
}

func (b *Builder) AddBool(v bool) uint32 {
	b.consts = append(b.consts, Const{Type: ConstBool, Bool: v})
	return uint32(len(b.consts) - 1)
}

// BeginFunction reserves a function-table slot and returns its index, to
// be used as the CALL target even before the body is emitted (§4.5
// "permitting forward references"). The header is finalized by
// FinishFunction.
func (b *Builder) BeginFunction(nameIdx uint32, argCount, localCount uint8) uint32 {
	b.funcs = append(b.funcs, FuncHeader{
		NameIndex:  nameIdx,
		CodeStart:  uint32(b.code.Len()),
		ArgCount:   argCount,
		LocalCount: localCount,
	})
	return uint32(len(b.funcs) - 1)
}

// EmitByte appends one byte to the unified code blob, returning its offset
// (relative to the start of the blob, not the function).
func (b *Builder) EmitByte(byteVal byte) uint32 {
	off := uint32(b.code.Len())
	b.code.WriteByte(byteVal)
	return off
}

// EmitU32 appends a little-endian u32 operand, returning the offset of its
// first byte (used as a jump-patch location).
func (b *Builder) EmitU32(v uint32) uint32 {
	off := uint32(b.code.Len())
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.code.Write(buf[:])
	return off
}

// PatchU32 overwrites the 4 bytes at off with v. Used by the code
// generator once a jump target is known.
func (b *Builder) PatchU32(off uint32, v uint32) {
	buf := b.code.Bytes()
	binary.LittleEndian.PutUint32(buf[off:off+4], v)
}

// CodeLen returns the current length of the unified code blob, i.e. the IP
// the next emitted byte will occupy.
func (b *Builder) CodeLen() uint32 { return uint32(b.code.Len()) }

// FinishFunction records the final code size for the function begun by
// BeginFunction(fnIdx's call).
func (b *Builder) FinishFunction(fnIdx uint32) {
	h := &b.funcs[fnIdx]
	h.CodeSize = uint32(b.code.Len()) - h.CodeStart
}

// Funcs exposes the accumulated function headers (read-only use by tests
// and the code generator).
func (b *Builder) Funcs() []FuncHeader { return b.funcs }

// Consts exposes the accumulated constant pool.
func (b *Builder) Consts() []Const { return b.consts }

// Write serializes the builder's state into the bit-exact DLBC layout.
func (b *Builder) Write() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.WriteByte(Version)

	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(b.consts))); err != nil {
		return nil, err
	}
	for _, c := range b.consts {
		buf.WriteByte(byte(c.Type))
		switch c.Type {
		case ConstInt:
			binary.Write(&buf, binary.LittleEndian, c.I32)
		case ConstF64:
			binary.Write(&buf, binary.LittleEndian, c.F64)
		case ConstStr:
			strBytes := []byte(c.Str)
			binary.Write(&buf, binary.LittleEndian, uint32(len(strBytes)))
			buf.Write(strBytes)
		case ConstNil:
			// no bytes
		case ConstBool:
			if c.Bool {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		default:
			return nil, fmt.Errorf("dlbc: unknown constant type %d", c.Type)
		}
	}

	binary.Write(&buf, binary.LittleEndian, uint32(len(b.funcs)))
	for _, f := range b.funcs {
		binary.Write(&buf, binary.LittleEndian, f.NameIndex)
		binary.Write(&buf, binary.LittleEndian, f.CodeStart)
		binary.Write(&buf, binary.LittleEndian, f.CodeSize)
		buf.WriteByte(f.ArgCount)
		buf.WriteByte(f.LocalCount)
	}

	codeBytes := b.code.Bytes()
	binary.Write(&buf, binary.LittleEndian, uint32(len(codeBytes)))
	buf.Write(codeBytes)

	return buf.Bytes(), nil
}

// File is the in-memory, already-validated view of a parsed DLBC file,
// returned by Read and consumed by package loader.
type File struct {
	Consts []Const
	Funcs  []FuncHeader
	Code   []byte
}

// Read parses and validates a DLBC byte stream per the §6.1 invariants.
func Read(data []byte) (*File, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := r.Read(magic[:]); err != nil {
		return nil, fmt.Errorf("dlbc: truncated magic: %w", err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("dlbc: bad magic %q", magic)
	}

	var version uint8
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("dlbc: truncated version: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("dlbc: unsupported version %d", version)
	}

	var constCount uint32
	if err := binary.Read(r, binary.LittleEndian, &constCount); err != nil {
		return nil, fmt.Errorf("dlbc: truncated constCount: %w", err)
	}
	consts := make([]Const, 0, constCount)
	for i := uint32(0); i < constCount; i++ {
		var typ uint8
		if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
			return nil, fmt.Errorf("dlbc: truncated constant %d: %w", i, err)
		}
		c := Const{Type: ConstType(typ)}
		switch c.Type {
		case ConstInt:
			if err := binary.Read(r, binary.LittleEndian, &c.I32); err != nil {
				return nil, fmt.Errorf("dlbc: truncated int constant %d: %w", i, err)
			}
		case ConstF64:
			if err := binary.Read(r, binary.LittleEndian, &c.F64); err != nil {
				return nil, fmt.Errorf("dlbc: truncated float constant %d: %w", i, err)
			}
		case ConstStr:
			var length uint32
			if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
				return nil, fmt.Errorf("dlbc: truncated string length for constant %d: %w", i, err)
			}
			strBytes := make([]byte, length)
			if _, err := r.Read(strBytes); err != nil {
				return nil, fmt.Errorf("dlbc: truncated string bytes for constant %d: %w", i, err)
			}
			c.Str = string(strBytes)
		case ConstNil:
			// no bytes
		case ConstBool:
			var bv uint8
			if err := binary.Read(r, binary.LittleEndian, &bv); err != nil {
				return nil, fmt.Errorf("dlbc: truncated bool constant %d: %w", i, err)
			}
			c.Bool = bv != 0
		default:
			return nil, fmt.Errorf("dlbc: unknown constant type %d at index %d", typ, i)
		}
		consts = append(consts, c)
	}

	var fnCount uint32
	if err := binary.Read(r, binary.LittleEndian, &fnCount); err != nil {
		return nil, fmt.Errorf("dlbc: truncated fnCount: %w", err)
	}
	funcs := make([]FuncHeader, 0, fnCount)
	for i := uint32(0); i < fnCount; i++ {
		var h FuncHeader
		if err := binary.Read(r, binary.LittleEndian, &h.NameIndex); err != nil {
			return nil, fmt.Errorf("dlbc: truncated function header %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &h.CodeStart); err != nil {
			return nil, fmt.Errorf("dlbc: truncated function header %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &h.CodeSize); err != nil {
			return nil, fmt.Errorf("dlbc: truncated function header %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &h.ArgCount); err != nil {
			return nil, fmt.Errorf("dlbc: truncated function header %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &h.LocalCount); err != nil {
			return nil, fmt.Errorf("dlbc: truncated function header %d: %w", i, err)
		}
		if h.NameIndex >= uint32(len(consts)) || consts[h.NameIndex].Type != ConstStr {
			return nil, fmt.Errorf("dlbc: function %d has out-of-range or non-string nameIndex %d", i, h.NameIndex)
		}
		funcs = append(funcs, h)
	}

	var codeSize uint32
	if err := binary.Read(r, binary.LittleEndian, &codeSize); err != nil {
		return nil, fmt.Errorf("dlbc: truncated codeSize: %w", err)
	}
	code := make([]byte, codeSize)
	if codeSize > 0 {
		if _, err := r.Read(code); err != nil {
			return nil, fmt.Errorf("dlbc: truncated code blob: %w", err)
		}
	}

	for i, h := range funcs {
		if uint64(h.CodeStart)+uint64(h.CodeSize) > uint64(codeSize) {
			return nil, fmt.Errorf("dlbc: function %d's code region [%d,%d) exceeds code blob of size %d", i, h.CodeStart, h.CodeStart+h.CodeSize, codeSize)
		}
	}

	return &File{Consts: consts, Funcs: funcs, Code: code}, nil
}
