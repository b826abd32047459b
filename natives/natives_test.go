package natives

import (
	"bytes"
	"strings"
	"testing"

	"droplet/vm"
)

func newTestVM() (*vm.VM, *bytes.Buffer) {
	v := vm.NewVM()
	var out bytes.Buffer
	Register(v, &out, strings.NewReader(""))
	return v, &out
}

func TestPrintlnWritesJoinedArgsWithNewline(t *testing.T) {
	v, out := newTestVM()
	v.Push(vm.ObjectVal(v.NewString("hi")))
	v.Push(vm.IntVal(3))
	if err := v.Natives["println"](v, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.String(); got != "hi3\n" {
		t.Fatalf("expected %q, got %q", "hi3\n", got)
	}
	if result := v.Pop(); !result.IsNil() {
		t.Fatalf("expected println to push nil, got %+v", result)
	}
}

func TestIntParsesStringsLeniently(t *testing.T) {
	v, _ := newTestVM()
	v.Push(vm.ObjectVal(v.NewString("42")))
	if err := v.Natives["int"](v, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := v.Pop()
	if result.Tag != vm.TagInt64 || result.I != 42 {
		t.Fatalf("expected int64 42, got %+v", result)
	}

	v.Push(vm.ObjectVal(v.NewString("not a number")))
	if err := v.Natives["int"](v, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result = v.Pop()
	if result.Tag != vm.TagInt64 || result.I != 0 {
		t.Fatalf("expected int64 0 on unparseable input, got %+v", result)
	}
}

func TestLenCoversStringArrayAndMap(t *testing.T) {
	v, _ := newTestVM()

	v.Push(vm.ObjectVal(v.NewString("hello")))
	if err := v.Natives["len"](v, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r := v.Pop(); r.I != 5 {
		t.Fatalf("expected length 5, got %+v", r)
	}

	arr := v.Alloc.NewArray([]vm.Value{vm.IntVal(1), vm.IntVal(2), vm.IntVal(3)})
	v.Push(vm.ObjectVal(arr))
	if err := v.Natives["len"](v, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r := v.Pop(); r.I != 3 {
		t.Fatalf("expected length 3, got %+v", r)
	}
}

func TestStrOnIntProducesDecimalString(t *testing.T) {
	v, _ := newTestVM()
	v.Push(vm.IntVal(7))
	if err := v.Natives["str"](v, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := v.Pop()
	if result.Tag != vm.TagObject || result.Obj.Kind != vm.ObjString || result.Obj.Str != "7" {
		t.Fatalf("expected string \"7\", got %+v", result)
	}
}

func TestInputReadsOneLineAndEchoesPrompt(t *testing.T) {
	v := vm.NewVM()
	var out bytes.Buffer
	Register(v, &out, strings.NewReader("answer\n"))

	v.Push(vm.ObjectVal(v.NewString("prompt: ")))
	if err := v.Natives["input"](v, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "prompt: " {
		t.Fatalf("expected prompt echoed without the input line, got %q", out.String())
	}
	result := v.Pop()
	if result.Tag != vm.TagObject || result.Obj.Str != "answer" {
		t.Fatalf("expected string \"answer\", got %+v", result)
	}
}
