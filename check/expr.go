package check

import (
	"droplet/ast"
	"droplet/dptype"
	"droplet/lexer"
)

// checkExpr type-checks expr within scope and records its computed type in
// c.exprTypes.
func (c *Checker) checkExpr(scope *dptype.Scope, expr ast.Expr) (*dptype.Type, error) {
	t, err := c.checkExprKind(scope, expr)
	if err != nil {
		return nil, err
	}
	c.exprTypes[expr] = t
	return t, nil
}

func (c *Checker) checkExprKind(scope *dptype.Scope, expr ast.Expr) (*dptype.Type, error) {
	switch e := expr.(type) {
	case *ast.LiteralExpr:
		return c.checkLiteral(e)
	case *ast.IdentifierExpr:
		return c.checkIdentifier(scope, e)
	case *ast.SelfExpr:
		return c.checkSelf(scope)
	case *ast.BinaryExpr:
		return c.checkBinary(scope, e)
	case *ast.UnaryExpr:
		return c.checkUnary(scope, e)
	case *ast.AssignExpr:
		return c.checkAssign(scope, e)
	case *ast.CompoundAssignExpr:
		return c.checkCompoundAssign(scope, e)
	case *ast.CallExpr:
		return c.checkCall(scope, e)
	case *ast.FieldAccessExpr:
		return c.checkFieldAccess(scope, e)
	case *ast.IndexExpr:
		return c.checkIndex(scope, e)
	case *ast.NewObjectExpr:
		return c.checkNewObject(scope, e)
	case *ast.ListLiteralExpr:
		return c.checkListLiteral(scope, e)
	case *ast.DictLiteralExpr:
		return c.checkDictLiteral(scope, e)
	case *ast.CastExpr:
		return c.checkCast(scope, e)
	case *ast.TypeTestExpr:
		return c.checkTypeTest(scope, e)
	default:
		return dptype.Unknown(), nil
	}
}

func (c *Checker) checkLiteral(e *ast.LiteralExpr) (*dptype.Type, error) {
	switch e.Kind {
	case ast.LitInt:
		return dptype.Int(), nil
	case ast.LitFloat:
		return dptype.Float(), nil
	case ast.LitBool:
		return dptype.Bool(), nil
	case ast.LitString:
		return dptype.Str(), nil
	default:
		return dptype.Null(), nil
	}
}

// checkIdentifier enforces the fallible-consumption rule: an identifier
// whose type is canFail && !isChecked may not be read here. The one
// exception — reading it as the direct subject of an `is Error` test — is
// handled by checkTypeTest, which resolves the symbol itself rather than
// calling checkExpr on it.
func (c *Checker) checkIdentifier(scope *dptype.Scope, e *ast.IdentifierExpr) (*dptype.Type, error) {
	sym, ok := scope.Resolve(e.Name)
	if !ok {
		return nil, errf("undefined name '%s'", e.Name)
	}
	if sym.Type.CanFail && !sym.Type.IsChecked {
		return nil, errf("Cannot use a possibly failing value of type %s without handling the Error first. Use 'if v is Error { … }' to check.", sym.Type)
	}
	return sym.Type, nil
}

func (c *Checker) checkSelf(scope *dptype.Scope) (*dptype.Type, error) {
	sym, ok := scope.Resolve("self")
	if !ok {
		return nil, errf("'self' is not available outside a method body")
	}
	return sym.Type, nil
}

func (c *Checker) checkBinary(scope *dptype.Scope, e *ast.BinaryExpr) (*dptype.Type, error) {
	lt, err := c.checkExpr(scope, e.Left)
	if err != nil {
		return nil, err
	}
	rt, err := c.checkExpr(scope, e.Right)
	if err != nil {
		return nil, err
	}

	if lt.Kind == dptype.OBJECT {
		if name, ok := overloadNames[e.Operator]; ok {
			if ci, found := c.classes.Lookup(lt.ClassName); found {
				if m, has := ci.Methods[name]; has && len(m.Params) == 1 {
					paramType := resolveFieldType(m.Params[0].Type, ci.TypeParams)
					if rt.AssignableTo(paramType) {
						e.HasOverload = true
						e.OverloadName = name
						return resolveFieldType(m.ReturnType, ci.TypeParams), nil
					}
				}
			}
		}
	}

	switch e.Operator {
	case lexer.TOKEN_EQ, lexer.TOKEN_NEQ, lexer.TOKEN_LT, lexer.TOKEN_LTE, lexer.TOKEN_GT, lexer.TOKEN_GTE:
		return dptype.Bool(), nil
	case lexer.TOKEN_AND, lexer.TOKEN_OR:
		return dptype.Bool(), nil
	}

	if e.Operator == lexer.TOKEN_PLUS && lt.Kind == dptype.STRING && rt.Kind == dptype.STRING {
		return dptype.Str(), nil
	}

	return numericPromotion(e.Operator, lt, rt)
}

// numericPromotion implements §4.4's arithmetic-promotion contract:
// (int,int) yields int except / which yields float; any float operand
// widens the result to float.
func numericPromotion(op lexer.TokenType, lt, rt *dptype.Type) (*dptype.Type, error) {
	if lt.Kind != dptype.INT && lt.Kind != dptype.FLOAT {
		return nil, errf("operator requires numeric operands, got %s", lt)
	}
	if rt.Kind != dptype.INT && rt.Kind != dptype.FLOAT {
		return nil, errf("operator requires numeric operands, got %s", rt)
	}
	if op == lexer.TOKEN_SLASH {
		return dptype.Float(), nil
	}
	if lt.Kind == dptype.FLOAT || rt.Kind == dptype.FLOAT {
		return dptype.Float(), nil
	}
	return dptype.Int(), nil
}

func (c *Checker) checkUnary(scope *dptype.Scope, e *ast.UnaryExpr) (*dptype.Type, error) {
	t, err := c.checkExpr(scope, e.Operand)
	if err != nil {
		return nil, err
	}
	if e.Operator == lexer.TOKEN_NOT {
		if t.Kind == dptype.OBJECT {
			if ci, found := c.classes.Lookup(t.ClassName); found {
				if m, has := ci.Methods["op$not"]; has {
					e.HasOverload = true
					e.OverloadName = "op$not"
					return resolveFieldType(m.ReturnType, ci.TypeParams), nil
				}
			}
		}
		return dptype.Bool(), nil
	}
	// unary minus
	if t.Kind != dptype.INT && t.Kind != dptype.FLOAT {
		return nil, errf("unary '-' requires a numeric operand, got %s", t)
	}
	return t, nil
}

func (c *Checker) checkAssign(scope *dptype.Scope, e *ast.AssignExpr) (*dptype.Type, error) {
	targetType, err := c.checkAssignTarget(scope, e.Target)
	if err != nil {
		return nil, err
	}
	valType, err := c.checkExpr(scope, e.Value)
	if err != nil {
		return nil, err
	}
	if !assignable(c, valType, targetType) {
		return nil, errf("cannot assign %s to %s", valType, targetType)
	}
	return targetType, nil
}

func (c *Checker) checkCompoundAssign(scope *dptype.Scope, e *ast.CompoundAssignExpr) (*dptype.Type, error) {
	targetType, err := c.checkAssignTarget(scope, e.Target)
	if err != nil {
		return nil, err
	}
	valType, err := c.checkExpr(scope, e.Value)
	if err != nil {
		return nil, err
	}
	op := lexer.TOKEN_PLUS
	if e.Operator == lexer.TOKEN_MINUS_ASSIGN {
		op = lexer.TOKEN_MINUS
	}
	if targetType.Kind == dptype.STRING && valType.Kind == dptype.STRING && op == lexer.TOKEN_PLUS {
		return dptype.Str(), nil
	}
	return numericPromotion(op, targetType, valType)
}

// checkAssignTarget resolves the static type of an assignable expression
// (identifier, field access, or index) without the fallible-consumption
// restriction on plain reads — assigning doesn't read the old value.
func (c *Checker) checkAssignTarget(scope *dptype.Scope, target ast.Expr) (*dptype.Type, error) {
	switch t := target.(type) {
	case *ast.IdentifierExpr:
		sym, ok := scope.Resolve(t.Name)
		if !ok {
			return nil, errf("undefined name '%s'", t.Name)
		}
		return sym.Type, nil
	case *ast.FieldAccessExpr:
		return c.checkFieldAccess(scope, t)
	case *ast.IndexExpr:
		return c.checkIndex(scope, t)
	default:
		return nil, errf("invalid assignment target")
	}
}

func (c *Checker) checkCall(scope *dptype.Scope, e *ast.CallExpr) (*dptype.Type, error) {
	switch callee := e.Callee.(type) {
	case *ast.IdentifierExpr:
		sym, ok := scope.Resolve(callee.Name)
		if !ok {
			return nil, errf("undefined function '%s'", callee.Name)
		}
		if sym.Type.Kind != dptype.FUNCTION {
			return nil, errf("'%s' is not callable", callee.Name)
		}
		return c.checkArgsAndReturn(scope, sym.Type, e.Args)
	case *ast.FieldAccessExpr:
		var className string
		if ident, ok := callee.Object.(*ast.IdentifierExpr); ok {
			if _, isClass := c.classes.Lookup(ident.Name); isClass {
				// Static method dispatch: `ClassName.method(...)`, no self
				// is pushed (§4.5). The identifier is the class name, not a
				// variable, so it is never passed through checkExpr.
				className = ident.Name
			}
		}
		if className == "" {
			recvType, err := c.checkExpr(scope, callee.Object)
			if err != nil {
				return nil, err
			}
			if recvType.Kind != dptype.OBJECT {
				return nil, errf("cannot call method '%s' on non-object type %s", callee.Field, recvType)
			}
			className = recvType.ClassName
		}
		ci, ok := c.classes.Lookup(className)
		if !ok {
			return nil, errf("unknown class '%s'", className)
		}
		m, ok := ci.Methods[callee.Field]
		if !ok {
			return nil, errf("class '%s' has no method '%s'", className, callee.Field)
		}
		if err := c.checkVisibility(m.Visibility, className); err != nil {
			return nil, err
		}
		for _, a := range e.Args {
			if _, err := c.checkExpr(scope, a); err != nil {
				return nil, err
			}
		}
		ret := resolveFieldType(m.ReturnType, ci.TypeParams)
		if m.CanFail {
			ret = dptype.Fallible(ret)
		}
		return ret, nil
	default:
		for _, a := range e.Args {
			if _, err := c.checkExpr(scope, a); err != nil {
				return nil, err
			}
		}
		return dptype.Unknown(), nil
	}
}

func (c *Checker) checkArgsAndReturn(scope *dptype.Scope, fnType *dptype.Type, args []ast.Expr) (*dptype.Type, error) {
	for _, a := range args {
		if _, err := c.checkExpr(scope, a); err != nil {
			return nil, err
		}
	}
	// Native/intrinsic signatures carry nil Params for variadic/polymorphic
	// arity (§4.4 phase 1); skip arity checking for those.
	if fnType.Params != nil && len(fnType.Params) != len(args) {
		return nil, errf("expected %d argument(s), got %d", len(fnType.Params), len(args))
	}
	return fnType.Return, nil
}

func (c *Checker) checkFieldAccess(scope *dptype.Scope, e *ast.FieldAccessExpr) (*dptype.Type, error) {
	objType, err := c.checkExpr(scope, e.Object)
	if err != nil {
		return nil, err
	}
	if objType.Kind != dptype.OBJECT {
		return nil, errf("cannot access field '%s' on non-object type %s", e.Field, objType)
	}
	ci, ok := c.classes.Lookup(objType.ClassName)
	if !ok {
		return nil, errf("unknown class '%s'", objType.ClassName)
	}
	ft, ok := ci.Fields[e.Field]
	if !ok {
		return nil, errf("class '%s' has no field '%s'", objType.ClassName, e.Field)
	}
	if err := c.checkVisibility(visOf(ft.Visibility), objType.ClassName); err != nil {
		return nil, err
	}
	return ft, nil
}

func visOf(v dptype.Visibility) ast.Visibility {
	switch v {
	case dptype.VisPrivate:
		return ast.VisPrivate
	case dptype.VisProtected:
		return ast.VisProtected
	default:
		return ast.VisPublic
	}
}

// checkVisibility implements §4.4's visibility contract: private requires
// currentClass == declaringClass; protected requires currentClass to be
// the declaring class or a descendant; public is unrestricted.
func (c *Checker) checkVisibility(vis ast.Visibility, declaringClass string) error {
	switch vis {
	case ast.VisPublic:
		return nil
	case ast.VisPrivate:
		if c.currentClass == nil || c.currentClass.Name != declaringClass {
			return errf("member of class '%s' is private", declaringClass)
		}
	case ast.VisProtected:
		if c.currentClass == nil || !c.classes.IsSubclassOf(c.currentClass.Name, declaringClass) {
			return errf("member of class '%s' is protected", declaringClass)
		}
	}
	return nil
}

func (c *Checker) checkIndex(scope *dptype.Scope, e *ast.IndexExpr) (*dptype.Type, error) {
	objType, err := c.checkExpr(scope, e.Object)
	if err != nil {
		return nil, err
	}
	if _, err := c.checkExpr(scope, e.Index); err != nil {
		return nil, err
	}
	switch objType.Kind {
	case dptype.LIST:
		return objType.Elem, nil
	case dptype.DICT:
		return objType.Val, nil
	case dptype.OBJECT:
		if ci, ok := c.classes.Lookup(objType.ClassName); ok {
			if m, has := ci.Methods[indexGetOverload]; has {
				return resolveFieldType(m.ReturnType, ci.TypeParams), nil
			}
		}
		return nil, errf("class '%s' does not support indexing", objType.ClassName)
	default:
		return nil, errf("cannot index type %s", objType)
	}
}

func (c *Checker) checkNewObject(scope *dptype.Scope, e *ast.NewObjectExpr) (*dptype.Type, error) {
	ci, ok := c.classes.Lookup(e.ClassName)
	if !ok {
		return nil, errf("unknown class '%s'", e.ClassName)
	}
	for _, a := range e.Args {
		if _, err := c.checkExpr(scope, a); err != nil {
			return nil, err
		}
	}
	if ci.Constructor != nil && ci.Constructor.Params != nil && len(ci.Constructor.Params) != len(e.Args) {
		return nil, errf("constructor of '%s' expects %d argument(s), got %d", e.ClassName, len(ci.Constructor.Params), len(e.Args))
	}
	return dptype.ObjectOf(e.ClassName), nil
}

func (c *Checker) checkListLiteral(scope *dptype.Scope, e *ast.ListLiteralExpr) (*dptype.Type, error) {
	elem := dptype.Unknown()
	for i, el := range e.Elements {
		t, err := c.checkExpr(scope, el)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			elem = t
		}
	}
	return dptype.ListOf(elem), nil
}

func (c *Checker) checkDictLiteral(scope *dptype.Scope, e *ast.DictLiteralExpr) (*dptype.Type, error) {
	key, val := dptype.Unknown(), dptype.Unknown()
	for i, ent := range e.Entries {
		kt, err := c.checkExpr(scope, ent.Key)
		if err != nil {
			return nil, err
		}
		vt, err := c.checkExpr(scope, ent.Value)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			key, val = kt, vt
		}
	}
	return dptype.DictOf(key, val), nil
}

func (c *Checker) checkCast(scope *dptype.Scope, e *ast.CastExpr) (*dptype.Type, error) {
	if _, err := c.checkExpr(scope, e.Value); err != nil {
		return nil, err
	}
	return resolveFieldType(e.TypeName, classTypeParams(c.currentClass)), nil
}

// checkTypeTest checks `value is TypeName`. When value is a plain
// identifier, it resolves the symbol directly rather than through
// checkExpr, which is how §4.4 suppresses the fallible-consumption check
// "inside the sub-expression of `x is Error`" — the identifier check would
// otherwise reject reading an unnarrowed `x` right here, defeating the
// narrowing construct itself.
func (c *Checker) checkTypeTest(scope *dptype.Scope, e *ast.TypeTestExpr) (*dptype.Type, error) {
	if ident, ok := e.Value.(*ast.IdentifierExpr); ok {
		if _, ok := scope.Resolve(ident.Name); !ok {
			return nil, errf("undefined name '%s'", ident.Name)
		}
		return dptype.Bool(), nil
	}
	if _, err := c.checkExpr(scope, e.Value); err != nil {
		return nil, err
	}
	return dptype.Bool(), nil
}

func classTypeParams(ci *dptype.ClassInfo) []string {
	if ci == nil {
		return nil
	}
	return ci.TypeParams
}
