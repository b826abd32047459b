// Package codegen implements the code generator (§4.5): it walks a
// type-checked program and its import closure and emits DLBC bytecode
// through a dlbc.Builder, mangling class members, assigning local slots,
// and resolving operator overloads and fallible-return narrowing using the
// annotations the type checker left on the AST.
package codegen

import (
	"fmt"

	"droplet/ast"
	"droplet/check"
	"droplet/dlbc"
	"droplet/dptype"
	"droplet/modloader"
	"droplet/vm"
)

// nativeNames is the set of intrinsic function names natives.Register
// installs (§6.3); calls to these compile to CALL_NATIVE rather than CALL.
var nativeNames = map[string]bool{
	"print": true, "println": true, "input": true,
	"str": true, "int": true, "float": true, "len": true, "exit": true,
}

// Generator accumulates one compiled program across the main compilation
// unit and every module it transitively imports. Modules are emitted
// before the program that imports them (§4.5), so a unit's own functions
// can always reference an already-registered import by numeric index.
type Generator struct {
	b      *dlbc.Builder
	loader *modloader.Loader

	// funcIndex maps a mangled function name to its DLBC function-table
	// index, populated for every planned function before any body in its
	// unit is emitted, so forward references resolve immediately.
	funcIndex map[string]uint32

	// ffiFuncs maps a mangled call-target name to its @ffi declaration for
	// calls that must compile to CALL_FFI instead of CALL.
	ffiFuncs map[string]*ast.FFIInfo

	// staticInits records the mangled names of synthesized static-field
	// initializer functions, in emission order, for the embedder to invoke
	// once at program startup before calling main (§4.5's
	// "ClassName$$fieldName$init" contract doesn't specify a caller; the
	// loader/cmd layer owns running this list).
	staticInits []string

	emittedUnits map[string]bool

	dbg map[string]*vm.DebugInfo
}

// NewGenerator creates a Generator sharing one dlbc.Builder and function
// namespace across the whole import closure. loader may be nil only if the
// main program has no imports.
func NewGenerator(loader *modloader.Loader) *Generator {
	return &Generator{
		b:            dlbc.NewBuilder(),
		loader:       loader,
		funcIndex:    make(map[string]uint32),
		ffiFuncs:     make(map[string]*ast.FFIInfo),
		emittedUnits: make(map[string]bool),
		dbg:          make(map[string]*vm.DebugInfo),
	}
}

// Generate type-checks result must already describe prog (the checker's
// annotations on prog's AST are read back here); file names the source
// file for debug-info locations. It returns the finished builder.
func Generate(loader *modloader.Loader, prog *ast.Program, result *check.Result, file string) (*Generator, error) {
	g := NewGenerator(loader)
	if err := g.emitUnit("", file, prog, result); err != nil {
		return nil, err
	}
	return g, nil
}

// Builder exposes the accumulated dlbc.Builder, ready for Write.
func (g *Generator) Builder() *dlbc.Builder { return g.b }

// StaticInitOrder returns the mangled names of every synthesized static
// field initializer function, in declaration order. The embedder (loader
// or cmd/droplet) calls each of these exactly once, in this order, before
// invoking the program's main function.
func (g *Generator) StaticInitOrder() []string { return g.staticInits }

// DebugInfo returns the per-function debug records collected during
// emission, keyed by the same mangled name stored as the function's
// DLBC name constant.
func (g *Generator) DebugInfo() map[string]*vm.DebugInfo { return g.dbg }

// emitUnit emits modulePath's import closure (depth-first, so a module's
// own imports land in the function table before the module itself) and
// then the module's own functions and classes. qualifier is "" for the
// top-level program being compiled and modulePath for every import.
func (g *Generator) emitUnit(qualifier, file string, prog *ast.Program, result *check.Result) error {
	if qualifier != "" {
		if g.emittedUnits[qualifier] {
			return nil
		}
		g.emittedUnits[qualifier] = true
	}

	for _, imp := range prog.Imports {
		if g.loader == nil {
			return fmt.Errorf("codegen: module '%s' has imports but no loader was configured", qualifier)
		}
		mi, err := g.loader.Load(imp.ModulePath)
		if err != nil {
			return err
		}
		res, ok := mi.TypeCheckerCache.(*check.Result)
		if !ok {
			return fmt.Errorf("codegen: module '%s' was not type-checked before code generation", imp.ModulePath)
		}
		if err := g.emitUnit(imp.ModulePath, mi.FilePath, mi.AST, res); err != nil {
			return err
		}
	}

	return g.emitProgramUnit(qualifier, file, prog, result)
}

// emitProgramUnit plans every function the unit contributes to the
// function table, registers their indices up front, then emits each body
// in the same order.
func (g *Generator) emitProgramUnit(qualifier, file string, prog *ast.Program, result *check.Result) error {
	plan, err := g.planFunctions(qualifier, prog, result)
	if err != nil {
		return err
	}

	baseIdx := uint32(len(g.b.Funcs()))
	for i, pf := range plan {
		g.funcIndex[pf.mangled] = baseIdx + uint32(i)
	}

	for i, pf := range plan {
		if err := g.emitFunction(qualifier, file, prog, result, pf, baseIdx+uint32(i)); err != nil {
			return err
		}
	}
	return nil
}

type plannedKind int

const (
	plannedTopFunc plannedKind = iota
	plannedCtor
	plannedMethod
	plannedStaticInit
)

type plannedFunc struct {
	mangled   string
	kind      plannedKind
	decl      *ast.FunctionDecl // nil for plannedStaticInit
	className string            // plain (unqualified) class name; "" for plannedTopFunc
	ci        *dptype.ClassInfo // class the member belongs to; nil for plannedTopFunc
	field     *dptype.FieldSlot // for plannedStaticInit
}

// planFunctions builds the ordered list of functions this unit contributes
// to the shared function table: its own top-level functions (skipping
// @ffi declarations, which never get a table slot), then per class in
// declaration order its constructor (synthesizing a trivial default one if
// absent), its methods (including operator overloads, which collectClasses
// already stores under their canonical op$... key), and one synthesized
// initializer function per static field that declares a default value.
func (g *Generator) planFunctions(qualifier string, prog *ast.Program, result *check.Result) ([]*plannedFunc, error) {
	var plan []*plannedFunc

	for _, fn := range prog.Funcs {
		if fn.FFI != nil {
			g.ffiFuncs[mangleFunc(qualifier, fn.Name)] = fn.FFI
			continue
		}
		plan = append(plan, &plannedFunc{mangled: mangleFunc(qualifier, fn.Name), kind: plannedTopFunc, decl: fn})
	}

	for _, cls := range prog.Classes {
		ci, ok := result.Classes.Lookup(cls.Name)
		if !ok {
			return nil, fmt.Errorf("codegen: class '%s' missing from checked class table", cls.Name)
		}
		ctor := cls.Constructor
		if ctor == nil {
			ctor = syntheticDefaultConstructor(cls)
		}
		plan = append(plan, &plannedFunc{
			mangled:   mangleMember(qualifier, cls.Name, "new"),
			kind:      plannedCtor,
			decl:      ctor,
			className: cls.Name,
			ci:        ci,
		})

		for _, m := range cls.Methods {
			if m.FFI != nil {
				g.ffiFuncs[mangleMember(qualifier, cls.Name, m.Name)] = m.FFI
				continue
			}
			plan = append(plan, &plannedFunc{
				mangled:   mangleMember(qualifier, cls.Name, m.Name),
				kind:      plannedMethod,
				decl:      m,
				className: cls.Name,
				ci:        ci,
			})
		}

		// Only the declaring class gets a static-init function: FieldSlots
		// flattens parent fields in too (for instance-field prologue
		// ordering), but a static field lives in one global slot shared
		// with every subclass, not one per inheriting class.
		for i := range cls.Fields {
			f := &cls.Fields[i]
			if f.Static && f.Initializer != nil {
				mangled := mangleMember(qualifier, cls.Name, f.Name+"$init")
				fs := &dptype.FieldSlot{Name: f.Name, Type: ci.Fields[f.Name], Decl: f}
				plan = append(plan, &plannedFunc{mangled: mangled, kind: plannedStaticInit, className: cls.Name, ci: ci, field: fs})
				g.staticInits = append(g.staticInits, mangled)
			}
		}
	}

	return plan, nil
}

// syntheticDefaultConstructor produces a zero-argument constructor with an
// empty body for a class that declared none; field default initializers
// are still inlined into its prologue during emission (§4.5).
func syntheticDefaultConstructor(cls *ast.ClassDecl) *ast.FunctionDecl {
	return &ast.FunctionDecl{
		Base: cls.Base,
		Name: "new",
		Body: &ast.BlockStmt{Base: cls.Base},
	}
}

func mangleFunc(qualifier, name string) string {
	if qualifier == "" {
		return name
	}
	return qualifier + "::" + name
}

// mangleMember implements §4.5's ClassName$$MemberName contract: methods
// and the constructor (member name "new") use it directly; operator
// overloads use it with their canonical op$... name as the member.
func mangleMember(qualifier, className, member string) string {
	return mangleFunc(qualifier, className) + "$$" + member
}
