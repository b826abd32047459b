package loader

import (
	"testing"

	"droplet/check"
	"droplet/codegen"
	"droplet/natives"
	"droplet/parser"
	"droplet/vm"
)

func compileToBytes(t *testing.T, src string) []byte {
	t.Helper()
	p := parser.NewParser(src)
	prog, err := p.ParseProgram()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	result, err := check.NewChecker(nil).Check(prog)
	if err != nil {
		t.Fatalf("unexpected type error: %v", err)
	}
	g, err := codegen.Generate(nil, prog, result, "test.drop")
	if err != nil {
		t.Fatalf("unexpected codegen error: %v", err)
	}
	data, err := g.Builder().Write()
	if err != nil {
		t.Fatalf("unexpected serialization error: %v", err)
	}
	return data
}

func registerNatives(v *vm.VM) {
	natives.Register(v, nil, nil)
}

func TestLoadBytesInstallsFunctionsByName(t *testing.T) {
	data := compileToBytes(t, `
		fn add(a: int, b: int) -> int {
			return a + b;
		}
	`)
	v, err := LoadBytes(data, registerNatives, nil)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if _, ok := v.FuncNameIdx["add"]; !ok {
		t.Fatalf("expected 'add' to be installed, got %v", v.FuncNameIdx)
	}
}

func TestLoadBytesAndCallByNameExecutesArithmetic(t *testing.T) {
	data := compileToBytes(t, `
		fn add(a: int, b: int) -> int {
			return a + b;
		}
	`)
	v, err := LoadBytes(data, registerNatives, nil)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	result, err := v.CallByName("add", []vm.Value{vm.IntVal(2), vm.IntVal(3)})
	if err != nil {
		t.Fatalf("unexpected call error: %v", err)
	}
	if result.Tag != vm.TagInt64 || result.I != 5 {
		t.Fatalf("expected 5, got %v", result)
	}
}

func TestLoadBytesRejectsGarbageAsFormatError(t *testing.T) {
	_, err := LoadBytes([]byte("not a dlbc file"), nil, nil)
	if err == nil {
		t.Fatalf("expected an error for malformed input")
	}
	if _, ok := err.(*FormatError); !ok {
		t.Fatalf("expected a *FormatError, got %T: %v", err, err)
	}
}

func TestLoadReportsPathOnMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/program.dlbc", nil, nil)
	fe, ok := err.(*FormatError)
	if !ok {
		t.Fatalf("expected a *FormatError, got %T: %v", err, err)
	}
	if fe.Path != "/nonexistent/program.dlbc" {
		t.Fatalf("expected the path to be recorded, got %q", fe.Path)
	}
}
