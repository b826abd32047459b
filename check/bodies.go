package check

import (
	"droplet/ast"
	"droplet/dptype"
)

// checkBodies implements §4.4 phase 5. Top-level function signatures are
// registered into the global scope first so functions may call each other
// regardless of declaration order, then every function, constructor, and
// method body is checked. `self` is implicitly bound in non-static
// methods and the constructor.
func (c *Checker) checkBodies(prog *ast.Program) error {
	for _, fn := range prog.Funcs {
		if _, exists := c.global.ResolveLocal(fn.Name); exists {
			return errf("function '%s' is already declared", fn.Name)
		}
		c.global.Define(&dptype.Symbol{Name: fn.Name, Kind: dptype.SymFunction, Type: functionSignatureType(fn)})
	}
	for _, fn := range prog.Funcs {
		if err := c.checkFunctionBody(nil, fn, false); err != nil {
			return err
		}
	}
	for _, cls := range prog.Classes {
		ci, _ := c.classes.Lookup(cls.Name)
		if cls.Constructor != nil {
			if err := c.checkFunctionBody(ci, cls.Constructor, true); err != nil {
				return err
			}
		}
		for _, m := range cls.Methods {
			if err := c.checkFunctionBody(ci, m, !m.Static); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Checker) checkFunctionBody(ci *dptype.ClassInfo, fn *ast.FunctionDecl, bindSelf bool) error {
	if fn.Body == nil {
		return nil // @ffi-declared function: no body to check
	}
	typeParams := classTypeParams(ci)

	fnScope := dptype.NewScope(c.global)
	if bindSelf && ci != nil {
		fnScope.Define(&dptype.Symbol{Name: "self", Kind: dptype.SymVariable, Type: dptype.ObjectOf(ci.Name)})
	}
	for _, p := range fn.Params {
		pt := resolveFieldType(p.Type, typeParams)
		if p.CanFail {
			pt = dptype.Fallible(pt)
		}
		fnScope.Define(&dptype.Symbol{Name: p.Name, Kind: dptype.SymParameter, Type: pt})
	}

	prevClass, prevRet, prevFail, prevLoop := c.currentClass, c.currentReturnType, c.currentReturnFail, c.loopDepth
	c.currentClass = ci
	c.currentReturnType = resolveFieldType(fn.ReturnType, typeParams)
	c.currentReturnFail = fn.CanFail
	c.loopDepth = 0

	err := c.checkBlock(fnScope, fn.Body)

	c.currentClass, c.currentReturnType, c.currentReturnFail, c.loopDepth = prevClass, prevRet, prevFail, prevLoop
	return err
}
