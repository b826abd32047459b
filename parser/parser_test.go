package parser

import (
	"testing"

	"droplet/ast"
)

func parseOK(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := NewParser(src)
	prog, err := p.ParseProgram()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return prog
}

func TestParseArithmeticPrecedence(t *testing.T) {
	prog := parseOK(t, `fn f() { let x = 1 + 2 * 3; }`)
	if len(prog.Funcs) != 1 {
		t.Fatalf("expected 1 function, got %d", len(prog.Funcs))
	}
	body := prog.Funcs[0].Body.Statements
	decl, ok := body[0].(*ast.VarDeclStmt)
	if !ok {
		t.Fatalf("expected VarDeclStmt, got %T", body[0])
	}
	bin, ok := decl.Initializer.(*ast.BinaryExpr)
	if !ok {
		t.Fatalf("expected BinaryExpr at top, got %T", decl.Initializer)
	}
	// 1 + (2 * 3): top operator must be '+', right side the nested '*'.
	if _, ok := bin.Right.(*ast.BinaryExpr); !ok {
		t.Fatalf("expected multiplication nested on the right of addition, got %T", bin.Right)
	}
}

func TestParseClassWithConstructorAndOperator(t *testing.T) {
	src := `
class Vector {
	x: int;
	y: int;

	new(x: int, y: int) {
		self.x = x;
		self.y = y;
	}

	op + (other: Vector) -> Vector {
		return new Vector(self.x + other.x, self.y + other.y);
	}
}
`
	prog := parseOK(t, src)
	if len(prog.Classes) != 1 {
		t.Fatalf("expected 1 class, got %d", len(prog.Classes))
	}
	class := prog.Classes[0]
	if class.Constructor == nil {
		t.Fatal("expected constructor")
	}
	if len(class.Methods) != 1 || class.Methods[0].OperatorOp != "op$add" {
		t.Fatalf("expected one op$add method, got %+v", class.Methods)
	}
	if len(class.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(class.Fields))
	}
}

func TestParseFallibleReturnType(t *testing.T) {
	prog := parseOK(t, `fn divide(a: int, b: int) -> int! { return a; }`)
	fn := prog.Funcs[0]
	if !fn.CanFail {
		t.Fatal("expected CanFail = true for 'int!' return type")
	}
	if fn.ReturnType != "int" {
		t.Fatalf("expected return type 'int', got %q", fn.ReturnType)
	}
}

func TestParseForInAndLoop(t *testing.T) {
	src := `
fn f() {
	for item in items {
		print(item);
	}
	loop {
		break;
	}
}
`
	prog := parseOK(t, src)
	body := prog.Funcs[0].Body.Statements
	if _, ok := body[0].(*ast.ForInStmt); !ok {
		t.Fatalf("expected ForInStmt, got %T", body[0])
	}
	if _, ok := body[1].(*ast.LoopStmt); !ok {
		t.Fatalf("expected LoopStmt, got %T", body[1])
	}
}

func TestParseGuardPatternIsNarrowing(t *testing.T) {
	prog := parseOK(t, `
fn f(x: int!) {
	if x is Error {
		return;
	}
	let y = x + 1;
}
`)
	body := prog.Funcs[0].Body.Statements
	ifStmt, ok := body[0].(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected IfStmt, got %T", body[0])
	}
	if _, ok := ifStmt.Condition.(*ast.TypeTestExpr); !ok {
		t.Fatalf("expected TypeTestExpr condition, got %T", ifStmt.Condition)
	}
}

func TestParseSealedClassAndImport(t *testing.T) {
	src := `
mod shapes.basic;
import geometry.points { Point, Origin };

seal class Circle {
	radius: float;
}
`
	prog := parseOK(t, src)
	if prog.Module == nil || prog.Module.Path != "shapes.basic" {
		t.Fatalf("unexpected module decl: %+v", prog.Module)
	}
	if len(prog.Imports) != 1 || prog.Imports[0].ModulePath != "geometry.points" {
		t.Fatalf("unexpected imports: %+v", prog.Imports)
	}
	if len(prog.Imports[0].Symbols) != 2 {
		t.Fatalf("expected 2 imported symbols, got %d", len(prog.Imports[0].Symbols))
	}
	if !prog.Classes[0].Sealed {
		t.Fatal("expected Circle to be sealed")
	}
}

func TestParseFFIFunction(t *testing.T) {
	prog := parseOK(t, `@ffi("libm", sig="f->f") fn sqrt(x: float) -> float;`)
	if len(prog.Funcs) != 1 {
		t.Fatalf("expected 1 function, got %d", len(prog.Funcs))
	}
	fn := prog.Funcs[0]
	if fn.FFI == nil || fn.FFI.LibName != "libm" || fn.FFI.Signature != "f->f" {
		t.Fatalf("unexpected FFI info: %+v", fn.FFI)
	}
}

func TestParseErrorRecoversAtNextStatement(t *testing.T) {
	p := NewParser(`fn f() { let = ; } fn g() { return 1; }`)
	prog, err := p.ParseProgram()
	if err == nil {
		t.Fatal("expected a parse error from the malformed let statement")
	}
	// Recovery should still have produced a Program (possibly with the
	// first function's body incomplete); the second function's own
	// top-level parse should still succeed, via synchronization.
	if prog == nil {
		t.Fatal("expected a non-nil partial Program even after an error")
	}
}
