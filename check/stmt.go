package check

import (
	"droplet/ast"
	"droplet/dptype"
)

// checkBlock pushes one new scope for the block and checks every statement
// against it in sequence, so a narrowing re-definition (§4.4) made by one
// statement is visible to the statements that follow it in the same block.
func (c *Checker) checkBlock(parent *dptype.Scope, b *ast.BlockStmt) error {
	blockScope := dptype.NewScope(parent)
	for _, s := range b.Statements {
		if err := c.checkStmt(blockScope, s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkStmt(scope *dptype.Scope, s ast.Stmt) error {
	switch st := s.(type) {
	case *ast.BlockStmt:
		return c.checkBlock(scope, st)
	case *ast.VarDeclStmt:
		return c.checkVarDecl(scope, st)
	case *ast.IfStmt:
		return c.checkIf(scope, st)
	case *ast.WhileStmt:
		return c.checkWhile(scope, st)
	case *ast.ForInStmt:
		return c.checkForIn(scope, st)
	case *ast.LoopStmt:
		return c.checkLoop(scope, st)
	case *ast.ReturnStmt:
		return c.checkReturn(scope, st)
	case *ast.BreakStmt:
		if c.loopDepth == 0 {
			return errf("'break' used outside a loop")
		}
		return nil
	case *ast.ContinueStmt:
		if c.loopDepth == 0 {
			return errf("'continue' used outside a loop")
		}
		return nil
	case *ast.ExprStmt:
		_, err := c.checkExpr(scope, st.Expr)
		return err
	default:
		return nil
	}
}

func (c *Checker) checkVarDecl(scope *dptype.Scope, s *ast.VarDeclStmt) error {
	var t *dptype.Type
	if s.Initializer != nil {
		it, err := c.checkExpr(scope, s.Initializer)
		if err != nil {
			return err
		}
		t = it
		if s.Type != "" {
			declared := resolveFieldType(s.Type, classTypeParams(c.currentClass))
			if !assignable(c, it, declared) {
				return errf("cannot initialize '%s' of declared type %s with value of type %s", s.Name, declared, it)
			}
		}
	} else {
		if s.Type == "" {
			return errf("variable '%s' needs either a declared type or an initializer", s.Name)
		}
		t = resolveFieldType(s.Type, classTypeParams(c.currentClass))
	}
	scope.Define(&dptype.Symbol{Name: s.Name, Kind: dptype.SymVariable, Type: t})
	return nil
}

// assignable layers class-hierarchy awareness (subclass-to-ancestor) on top
// of dptype.Type.AssignableTo, which only covers the class-table-independent
// rules (§4.4).
func assignable(c *Checker, from, to *dptype.Type) bool {
	if from.AssignableTo(to) {
		return true
	}
	if from.Kind == dptype.OBJECT && to.Kind == dptype.OBJECT {
		return c.classes.IsSubclassOf(from.ClassName, to.ClassName)
	}
	return false
}

// checkIf implements the `is Error` narrowing and guard-pattern rules of
// §4.4. When the condition is not an `ident is Error` test, it behaves like
// an ordinary if with no narrowing.
func (c *Checker) checkIf(scope *dptype.Scope, s *ast.IfStmt) error {
	narrowName, narrowSym := detectErrorGuard(s.Condition, scope)

	condType, err := c.checkExpr(scope, s.Condition)
	if err != nil {
		return err
	}
	if condType.Kind != dptype.BOOL {
		return errf("if condition must be bool, got %s", condType)
	}

	thenScope := dptype.NewScope(scope)
	if narrowSym != nil {
		thenScope.Define(&dptype.Symbol{Name: narrowName, Kind: narrowSym.Kind, Type: dptype.ObjectOf("Error")})
	}
	if err := c.checkStmt(thenScope, s.Then); err != nil {
		return err
	}
	thenReturns := definitelyReturns(s.Then)

	if s.Else != nil {
		elseScope := dptype.NewScope(scope)
		if narrowSym != nil {
			elseScope.Define(&dptype.Symbol{Name: narrowName, Kind: narrowSym.Kind, Type: dptype.Narrowed(narrowSym.Type)})
		}
		if err := c.checkStmt(elseScope, s.Else); err != nil {
			return err
		}
	}

	if narrowSym != nil && thenReturns {
		scope.Define(&dptype.Symbol{Name: narrowName, Kind: narrowSym.Kind, Type: dptype.Narrowed(narrowSym.Type)})
	}
	return nil
}

// detectErrorGuard recognizes `ident is Error` and resolves ident's current
// symbol, or returns ("", nil) for any other condition shape.
func detectErrorGuard(cond ast.Expr, scope *dptype.Scope) (string, *dptype.Symbol) {
	tt, ok := cond.(*ast.TypeTestExpr)
	if !ok || tt.TypeName != "Error" {
		return "", nil
	}
	ident, ok := tt.Value.(*ast.IdentifierExpr)
	if !ok {
		return "", nil
	}
	sym, ok := scope.Resolve(ident.Name)
	if !ok {
		return "", nil
	}
	return ident.Name, sym
}

// definitelyReturns implements §4.4's "definitely returns" predicate: a
// return statement, an exit(...) call, or a block with any sub-statement
// that definitely returns.
func definitelyReturns(s ast.Stmt) bool {
	switch st := s.(type) {
	case *ast.ReturnStmt:
		return true
	case *ast.ExprStmt:
		call, ok := st.Expr.(*ast.CallExpr)
		if !ok {
			return false
		}
		ident, ok := call.Callee.(*ast.IdentifierExpr)
		return ok && ident.Name == "exit"
	case *ast.BlockStmt:
		for _, sub := range st.Statements {
			if definitelyReturns(sub) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (c *Checker) checkWhile(scope *dptype.Scope, s *ast.WhileStmt) error {
	condType, err := c.checkExpr(scope, s.Condition)
	if err != nil {
		return err
	}
	if condType.Kind != dptype.BOOL {
		return errf("while condition must be bool, got %s", condType)
	}
	c.loopDepth++
	defer func() { c.loopDepth-- }()
	return c.checkStmt(dptype.NewScope(scope), s.Body)
}

func (c *Checker) checkForIn(scope *dptype.Scope, s *ast.ForInStmt) error {
	iterType, err := c.checkExpr(scope, s.Iterable)
	if err != nil {
		return err
	}
	if iterType.Kind != dptype.LIST {
		return errf("'for...in' requires a list, got %s", iterType)
	}
	bodyScope := dptype.NewScope(scope)
	bodyScope.Define(&dptype.Symbol{Name: s.VarName, Kind: dptype.SymVariable, Type: iterType.Elem})
	c.loopDepth++
	defer func() { c.loopDepth-- }()
	return c.checkStmt(bodyScope, s.Body)
}

func (c *Checker) checkLoop(scope *dptype.Scope, s *ast.LoopStmt) error {
	c.loopDepth++
	defer func() { c.loopDepth-- }()
	return c.checkStmt(dptype.NewScope(scope), s.Body)
}

func (c *Checker) checkReturn(scope *dptype.Scope, s *ast.ReturnStmt) error {
	if s.Value == nil {
		if c.currentReturnType != nil && c.currentReturnType.Kind != dptype.VOID {
			return errf("missing return value, function returns %s", c.currentReturnType)
		}
		return nil
	}
	vt, err := c.checkExpr(scope, s.Value)
	if err != nil {
		return err
	}
	if c.currentReturnType == nil {
		return nil
	}
	if c.currentReturnFail && vt.Kind == dptype.OBJECT && c.classes.IsSubclassOf(vt.ClassName, "Error") {
		return nil // returning the Error side of a T! return is always permitted
	}
	if !assignable(c, vt, c.currentReturnType) {
		return errf("cannot return value of type %s from a function declared to return %s", vt, c.currentReturnType)
	}
	return nil
}
