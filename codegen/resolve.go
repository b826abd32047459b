package codegen

import "droplet/ast"

// classQualifier returns the mangling qualifier for className as seen from
// unit (whose own qualifier is ownQualifier): the unit's own qualifier if
// it declares the class locally, or the module path of whichever direct
// import exports it. processImports only splices one level of imports
// (§4.4 phase 2 never re-exports a grandchild's classes), so a single scan
// of prog.Imports is always enough to find it.
func (g *Generator) classQualifier(ownQualifier string, prog *ast.Program, className string) string {
	for _, cls := range prog.Classes {
		if cls.Name == className {
			return ownQualifier
		}
	}
	for _, imp := range prog.Imports {
		if g.loader == nil {
			continue
		}
		mi, err := g.loader.Load(imp.ModulePath)
		if err != nil {
			continue
		}
		if _, ok := mi.ExportedClasses[className]; ok {
			return imp.ModulePath
		}
	}
	return ownQualifier
}

// callTarget is what a CallExpr's callee resolves to at code-generation
// time: exactly one of isNative, ffi, or mangled is meaningful.
type callTarget struct {
	isNative bool
	ffi      *ast.FFIInfo
	ffiName  string // the @ffi-declared function's own name, the CALL_FFI symbol
	mangled  string
}

// resolveFunctionCall mirrors check.checkCall's identifier-callee branch:
// natives first, then the current unit's own top-level functions, then
// each direct import's exported functions.
func (g *Generator) resolveFunctionCall(ownQualifier string, prog *ast.Program, name string) (callTarget, bool) {
	if nativeNames[name] {
		return callTarget{isNative: true}, true
	}
	for _, fn := range prog.Funcs {
		if fn.Name != name {
			continue
		}
		if fn.FFI != nil {
			return callTarget{ffi: fn.FFI, ffiName: fn.Name}, true
		}
		return callTarget{mangled: mangleFunc(ownQualifier, name)}, true
	}
	for _, imp := range prog.Imports {
		if g.loader == nil {
			continue
		}
		mi, err := g.loader.Load(imp.ModulePath)
		if err != nil {
			continue
		}
		fn, ok := mi.ExportedFunctions[name]
		if !ok {
			continue
		}
		if fn.FFI != nil {
			return callTarget{ffi: fn.FFI, ffiName: fn.Name}, true
		}
		return callTarget{mangled: mangleFunc(imp.ModulePath, name)}, true
	}
	return callTarget{}, false
}
