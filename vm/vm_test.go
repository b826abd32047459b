package vm

import (
	"encoding/binary"
	"testing"
)

// buildAdderFunction assembles `fn f(a,b) { return a + b }` by hand:
// LOAD_LOCAL 0, LOAD_LOCAL 1, ADD, RETURN 1.
func buildAdderFunction() *Function {
	code := []byte{
		byte(OP_LOAD_LOCAL), 0,
		byte(OP_LOAD_LOCAL), 1,
		byte(OP_ADD),
		byte(OP_RETURN), 1,
	}
	return &Function{Name: "add", Code: code, ArgCount: 2, LocalCount: 2}
}

func newTestVM(fns ...*Function) *VM {
	v := NewVM()
	for i, fn := range fns {
		v.Functions = append(v.Functions, fn)
		v.FuncNameIdx[fn.Name] = uint32(i)
	}
	return v
}

func TestCallByNameAddsIntegers(t *testing.T) {
	v := newTestVM(buildAdderFunction())
	result, err := v.CallByName("add", []Value{IntVal(3), IntVal(4)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Tag != TagInt64 || result.I != 7 {
		t.Fatalf("expected int64 7, got %+v", result)
	}
}

func TestStackRestoresToLocalsBasePlusRetCount(t *testing.T) {
	v := newTestVM(buildAdderFunction())
	// Drive the call directly: CallByName would pop the returned value
	// before the stack pointer could be observed.
	v.push(IntVal(1))
	v.push(IntVal(2))
	if err := v.pushFrame(v.Functions[0], 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := v.run(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.StackPointer != 1 {
		t.Fatalf("expected stack pointer 1 after a single-value return, got %d", v.StackPointer)
	}
}

func TestUndefinedFunctionCallPushesNilDefensively(t *testing.T) {
	// fn f() { return undefinedFn() }
	v := NewVM()
	callCode := make([]byte, 0)
	callCode = append(callCode, byte(OP_CALL))
	var idxBuf [4]byte
	binary.LittleEndian.PutUint32(idxBuf[:], 999)
	callCode = append(callCode, idxBuf[:]...)
	callCode = append(callCode, 0) // argc
	callCode = append(callCode, byte(OP_RETURN), 1)

	fn := &Function{Name: "f", Code: callCode, ArgCount: 0, LocalCount: 0}
	v.Functions = append(v.Functions, fn)
	v.FuncNameIdx["f"] = 0

	result, err := v.CallByName("f", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsNil() {
		t.Fatalf("expected nil from calling an undefined function index, got %+v", result)
	}
}

func TestGCReclaimsUnreachableStrings(t *testing.T) {
	v := NewVM()
	v.Alloc = NewAllocator(4)
	v.Alloc.RootWalker = func(visit func(Value)) {
		for i := 0; i < v.StackPointer; i++ {
			visit(v.Stack[i])
		}
		for _, g := range v.Globals {
			visit(g)
		}
	}

	retained := v.Alloc.NewString("kept")
	v.Globals["g"] = ObjectVal(retained)

	for i := 0; i < 50; i++ {
		v.Alloc.NewString("transient")
	}
	v.Alloc.Collect()

	if v.Alloc.HeapLen() != 1 {
		t.Fatalf("expected exactly 1 surviving object, got %d", v.Alloc.HeapLen())
	}
}

func TestIsInstanceIsExactClassMatch(t *testing.T) {
	v := NewVM()
	v.Constants = []Value{ObjectVal(NewStringObject("Dog"))}
	code := []byte{
		byte(OP_NEW_OBJECT), 0, 0, 0, 0,
		byte(OP_IS_INSTANCE), 0, 0, 0, 0,
		byte(OP_RETURN), 1,
	}
	fn := &Function{Name: "f", Code: code, ArgCount: 0, LocalCount: 0}
	v.Constants[0] = ObjectVal(NewStringObject("Dog"))
	v.Functions = append(v.Functions, fn)
	v.FuncNameIdx["f"] = 0

	result, err := v.CallByName("f", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Tag != TagBool || !result.B {
		t.Fatalf("expected true for an exact class-name match, got %+v", result)
	}
}
