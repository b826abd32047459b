package check

import (
	"droplet/ast"
	"droplet/dptype"
)

// processImports implements §4.4 phase 2: resolve each import, recursively
// type-check the imported module if it hasn't been already, then splice
// its exported classes and function signatures into the global scope.
// Wildcard imports copy everything; named imports copy only the symbols
// listed (erroring if one is absent). A class already present in the
// current global scope is not redefined.
func (c *Checker) processImports(prog *ast.Program) error {
	for _, imp := range prog.Imports {
		if c.loader == nil {
			return errf("cannot resolve import '%s': no module loader configured", imp.ModulePath)
		}
		mi, err := c.loader.Load(imp.ModulePath)
		if err != nil {
			return err
		}
		if mi.TypeCheckerCache == nil {
			sub := NewChecker(c.loader)
			res, err := sub.Check(mi.AST)
			if err != nil {
				return err
			}
			mi.TypeCheckerCache = res
		}

		if imp.Wildcard {
			for name, fn := range mi.ExportedFunctions {
				c.defineImportedFunction(name, fn)
			}
			for name, cls := range mi.ExportedClasses {
				c.defineImportedClass(name, cls)
			}
			continue
		}
		for _, name := range imp.Symbols {
			if fn, ok := mi.ExportedFunctions[name]; ok {
				c.defineImportedFunction(name, fn)
				continue
			}
			if cls, ok := mi.ExportedClasses[name]; ok {
				c.defineImportedClass(name, cls)
				continue
			}
			return errf("module '%s' has no exported symbol '%s'", imp.ModulePath, name)
		}
	}
	return nil
}

func (c *Checker) defineImportedFunction(name string, fn *ast.FunctionDecl) {
	if _, exists := c.global.ResolveLocal(name); exists {
		return
	}
	c.global.Define(&dptype.Symbol{Name: name, Kind: dptype.SymFunction, Type: functionSignatureType(fn)})
}

func (c *Checker) defineImportedClass(name string, cls *ast.ClassDecl) {
	if _, exists := c.classes.Lookup(name); exists {
		return
	}
	ci := dptype.NewClassInfo(name)
	ci.ParentName = cls.ParentName
	ci.TypeParams = cls.TypeParams
	ci.Sealed = cls.Sealed
	for _, m := range cls.Methods {
		ci.Methods[m.Name] = m
	}
	ci.Constructor = cls.Constructor
	for _, f := range cls.Fields {
		ft := resolveFieldType(f.Type, ci.TypeParams)
		ft.Visibility = visibilityOf(f.Visibility)
		ci.Fields[f.Name] = ft
		fcopy := f
		ci.FieldDecls[f.Name] = &fcopy
		ci.FieldOrder = append(ci.FieldOrder, f.Name)
	}
	c.classes.Define(ci)
}

// functionSignatureType builds the FUNCTION type for fn's signature,
// without checking its body (imports only need the signature spliced in).
func functionSignatureType(fn *ast.FunctionDecl) *dptype.Type {
	params := make([]*dptype.Type, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = resolveFieldType(p.Type, nil)
		if p.CanFail {
			params[i] = dptype.Fallible(params[i])
		}
	}
	ret := resolveFieldType(fn.ReturnType, nil)
	if fn.CanFail {
		ret = dptype.Fallible(ret)
	}
	return dptype.FuncOf(params, ret)
}
