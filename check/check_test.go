package check

import (
	"testing"

	"droplet/ast"
	"droplet/parser"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := parser.NewParser(src)
	prog, err := p.ParseProgram()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return prog
}

func TestArithmeticExpressionTypesAsInt(t *testing.T) {
	prog := mustParse(t, `
		fn compute() -> int {
			return 1 + 2 * 3;
		}
	`)
	if _, err := NewChecker(nil).Check(prog); err != nil {
		t.Fatalf("unexpected type error: %v", err)
	}
}

func TestDivisionAlwaysPromotesToFloat(t *testing.T) {
	prog := mustParse(t, `
		fn compute() -> float {
			return 7 / 2;
		}
	`)
	if _, err := NewChecker(nil).Check(prog); err != nil {
		t.Fatalf("unexpected type error: %v", err)
	}
}

func TestClassFieldsMethodsAndConstructor(t *testing.T) {
	prog := mustParse(t, `
		class Counter {
			count: int;
			new(start: int) {
				self.count = start;
			}
			fn get() -> int {
				return self.count;
			}
		}
		fn main() -> int {
			let c = new Counter(5);
			return c.get();
		}
	`)
	if _, err := NewChecker(nil).Check(prog); err != nil {
		t.Fatalf("unexpected type error: %v", err)
	}
}

func TestOperatorOverloadAnnotatesBinaryExpr(t *testing.T) {
	prog := mustParse(t, `
		class Vec {
			x: int;
			new(x: int) {
				self.x = x;
			}
			op + (other: Vec) -> Vec {
				return new Vec(self.x + other.x);
			}
		}
		fn main() -> int {
			let a = new Vec(1);
			let b = new Vec(2);
			let c = a + b;
			return c.x;
		}
	`)
	if _, err := NewChecker(nil).Check(prog); err != nil {
		t.Fatalf("unexpected type error: %v", err)
	}

	var mainFn *ast.FunctionDecl
	for _, fn := range prog.Funcs {
		if fn.Name == "main" {
			mainFn = fn
		}
	}
	if mainFn == nil {
		t.Fatalf("main not found")
	}
	letC := mainFn.Body.Statements[2].(*ast.VarDeclStmt)
	bin := letC.Initializer.(*ast.BinaryExpr)
	if !bin.HasOverload || bin.OverloadName != "op$add" {
		t.Fatalf("expected the '+' expression to resolve to op$add, got HasOverload=%v OverloadName=%q", bin.HasOverload, bin.OverloadName)
	}
}

func TestFallibleReturnGuardPatternNarrowsAfterIf(t *testing.T) {
	prog := mustParse(t, `
		fn parse(s: str) -> int! {
			if s == "x" {
				return new Error();
			}
			return 42;
		}
		fn main() {
			let r = parse("x");
			if r is Error {
				println("bad");
				return;
			}
			println(r);
		}
	`)
	if _, err := NewChecker(nil).Check(prog); err != nil {
		t.Fatalf("unexpected type error: %v", err)
	}
}

func TestConsumingUnnarrowedFallibleValueIsRejected(t *testing.T) {
	prog := mustParse(t, `
		fn parse(s: str) -> int! {
			if s == "x" {
				return new Error();
			}
			return 42;
		}
		fn main() {
			let r = parse("x");
			println(r);
		}
	`)
	if _, err := NewChecker(nil).Check(prog); err == nil {
		t.Fatalf("expected an error consuming an unnarrowed fallible value")
	}
}

func TestForInBindsElementTypeOfList(t *testing.T) {
	prog := mustParse(t, `
		fn sumAll() -> int {
			let total = 0;
			for v in [1, 2, 3] {
				total += v;
			}
			return total;
		}
	`)
	if _, err := NewChecker(nil).Check(prog); err != nil {
		t.Fatalf("unexpected type error: %v", err)
	}
}

func TestPrivateFieldAccessFromOutsideClassIsRejected(t *testing.T) {
	prog := mustParse(t, `
		class Secret {
			priv value: int;
			new(v: int) {
				self.value = v;
			}
		}
		fn peek(s: Secret) -> int {
			return s.value;
		}
	`)
	if _, err := NewChecker(nil).Check(prog); err == nil {
		t.Fatalf("expected a visibility error reading a private field from outside its class")
	}
}

func TestDuplicateFieldInClassIsRejected(t *testing.T) {
	prog := mustParse(t, `
		class Dup {
			x: int;
			x: int;
		}
	`)
	if _, err := NewChecker(nil).Check(prog); err == nil {
		t.Fatalf("expected a duplicate-field error")
	}
}

func TestFieldShadowingParentIsRejected(t *testing.T) {
	prog := mustParse(t, `
		class Base {
			x: int;
		}
		class Derived: Base {
			x: int;
		}
	`)
	if _, err := NewChecker(nil).Check(prog); err == nil {
		t.Fatalf("expected a shadowing error from AnalyzeHierarchy")
	}
}
