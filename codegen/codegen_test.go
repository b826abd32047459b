package codegen

import (
	"testing"

	"droplet/ast"
	"droplet/check"
	"droplet/parser"
)

func mustCompile(t *testing.T, src string) (*ast.Program, *check.Result) {
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
	return prog, result
}

func TestGenerateSimpleFunctionProducesOneTableEntry(t *testing.T) {
	prog, result := mustCompile(t, `
		fn add(a: int, b: int) -> int {
			return a + b;
		}
	`)
	g, err := Generate(nil, prog, result, "add.drop")
	if err != nil {
		t.Fatalf("unexpected codegen error: %v", err)
	}
	if len(g.Builder().Funcs()) != 1 {
		t.Fatalf("expected 1 function in the table, got %d", len(g.Builder().Funcs()))
	}
	if _, err := g.Builder().Write(); err != nil {
		t.Fatalf("unexpected serialization error: %v", err)
	}
}

func TestGenerateClassPlansConstructorAndMethods(t *testing.T) {
	prog, result := mustCompile(t, `
		class Counter {
			count: int = 0;

			fn increment() -> int {
				self.count = self.count + 1;
				return self.count;
			}
		}
	`)
	g, err := Generate(nil, prog, result, "counter.drop")
	if err != nil {
		t.Fatalf("unexpected codegen error: %v", err)
	}
	ctorIdx, ok := g.funcIndex[mangleMember("", "Counter", "new")]
	if !ok {
		t.Fatalf("expected a synthesized constructor entry")
	}
	methodIdx, ok := g.funcIndex[mangleMember("", "Counter", "increment")]
	if !ok {
		t.Fatalf("expected an 'increment' method entry")
	}
	if ctorIdx == methodIdx {
		t.Fatalf("constructor and method must not share a table index")
	}
}

func TestGenerateOperatorOverloadUsesCanonicalName(t *testing.T) {
	prog, result := mustCompile(t, `
		class Vec {
			x: int = 0;

			op + (other: Vec) -> Vec {
				return other;
			}

			fn addSelf(other: Vec) -> Vec {
				return self + other;
			}
		}
	`)
	g, err := Generate(nil, prog, result, "vec.drop")
	if err != nil {
		t.Fatalf("unexpected codegen error: %v", err)
	}
	if _, ok := g.funcIndex[mangleMember("", "Vec", "op$add")]; !ok {
		t.Fatalf("expected the overload to be planned under its canonical op$add name")
	}
}

func TestGenerateWhileLoopProducesBalancedJumps(t *testing.T) {
	prog, result := mustCompile(t, `
		fn countDown(n: int) -> int {
			while n > 0 {
				n = n - 1;
			}
			return n;
		}
	`)
	g, err := Generate(nil, prog, result, "loop.drop")
	if err != nil {
		t.Fatalf("unexpected codegen error: %v", err)
	}
	if _, err := g.Builder().Write(); err != nil {
		t.Fatalf("unexpected serialization error: %v", err)
	}
}

func TestGenerateForInOverListCompiles(t *testing.T) {
	prog, result := mustCompile(t, `
		fn sum() -> int {
			let xs = [1, 2, 3];
			let total = 0;
			for x in xs {
				total = total + x;
			}
			return total;
		}
	`)
	if _, err := Generate(nil, prog, result, "sum.drop"); err != nil {
		t.Fatalf("unexpected codegen error: %v", err)
	}
}

func TestMangleFuncAndMangleMember(t *testing.T) {
	if got := mangleFunc("", "main"); got != "main" {
		t.Fatalf("mangleFunc with empty qualifier: got %q", got)
	}
	if got := mangleFunc("a.b", "helper"); got != "a.b::helper" {
		t.Fatalf("mangleFunc with qualifier: got %q", got)
	}
	if got := mangleMember("", "Shape", "area"); got != "Shape$$area" {
		t.Fatalf("mangleMember: got %q", got)
	}
}

func TestAssignTempCountVariesByTargetKind(t *testing.T) {
	ident := &ast.IdentifierExpr{Name: "x"}
	field := &ast.FieldAccessExpr{Field: "x"}
	index := &ast.IndexExpr{}

	if n := assignTempCount(ident); n != 1 {
		t.Fatalf("identifier target: expected 1 temp, got %d", n)
	}
	if n := assignTempCount(field); n != 2 {
		t.Fatalf("field target: expected 2 temps, got %d", n)
	}
	if n := assignTempCount(index); n != 3 {
		t.Fatalf("index target: expected 3 temps, got %d", n)
	}
}
