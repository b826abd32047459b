package codegen

import (
	"droplet/ast"
	"droplet/dptype"
	"droplet/lexer"
	"droplet/vm"
)

// emitExpr lowers expr so that, after it runs, the value it computed sits
// on top of the operand stack exactly once.
func emitExpr(ctx *fnCtx, expr ast.Expr) {
	ctx.record(expr.Position())
	switch e := expr.(type) {
	case *ast.LiteralExpr:
		emitLiteral(ctx, e)
	case *ast.IdentifierExpr:
		emitIdentifierRead(ctx, e)
	case *ast.SelfExpr:
		emitLoadLocal(ctx, 0)
	case *ast.BinaryExpr:
		emitBinary(ctx, e)
	case *ast.UnaryExpr:
		emitUnary(ctx, e)
	case *ast.AssignExpr:
		emitAssign(ctx, e)
	case *ast.CompoundAssignExpr:
		emitCompoundAssign(ctx, e)
	case *ast.CallExpr:
		emitCall(ctx, e)
	case *ast.FieldAccessExpr:
		emitFieldRead(ctx, e)
	case *ast.IndexExpr:
		emitIndexRead(ctx, e)
	case *ast.NewObjectExpr:
		emitNewObject(ctx, e)
	case *ast.ListLiteralExpr:
		emitListLiteral(ctx, e)
	case *ast.DictLiteralExpr:
		emitDictLiteral(ctx, e)
	case *ast.CastExpr:
		// `as T` never changes the runtime representation (check.checkCast
		// only re-resolves the static type); emit just the inner value.
		emitExpr(ctx, e.Value)
	case *ast.TypeTestExpr:
		emitTypeTest(ctx, e)
	default:
		panic("codegen: unhandled expression node")
	}
}

func emitLiteral(ctx *fnCtx, e *ast.LiteralExpr) {
	var idx uint32
	switch e.Kind {
	case ast.LitInt:
		idx = ctx.g.b.AddInt(int32(e.Int))
	case ast.LitFloat:
		idx = ctx.g.b.AddFloat(e.Float)
	case ast.LitBool:
		idx = ctx.g.b.AddBool(e.Bool)
	case ast.LitString:
		idx = ctx.g.b.AddString(e.String)
	default:
		idx = ctx.g.b.AddNil()
	}
	ctx.g.b.EmitByte(byte(vm.OP_PUSH_CONST))
	ctx.g.b.EmitU32(idx)
}

// emitIdentifierRead resolves a name against the local-slot chain first;
// failing that, it must be a static field read, which check.checkFieldAccess
// has no special-case for today (see DESIGN.md's static-field-read gap), so
// this path is only reachable for identifiers the checker itself resolved —
// which, in practice, are always locals, parameters, or self.
func emitIdentifierRead(ctx *fnCtx, e *ast.IdentifierExpr) {
	if slot, ok := ctx.scope.resolve(e.Name); ok {
		emitLoadLocal(ctx, slot)
		return
	}
	nameIdx := ctx.g.b.AddString(e.Name)
	ctx.g.b.EmitByte(byte(vm.OP_LOAD_GLOBAL))
	ctx.g.b.EmitU32(nameIdx)
}

func emitLoadLocal(ctx *fnCtx, slot int) {
	ctx.g.b.EmitByte(byte(vm.OP_LOAD_LOCAL))
	ctx.g.b.EmitByte(byte(slot))
}

func emitStoreLocal(ctx *fnCtx, slot int) {
	ctx.g.b.EmitByte(byte(vm.OP_STORE_LOCAL))
	ctx.g.b.EmitByte(byte(slot))
}

func emitBinary(ctx *fnCtx, e *ast.BinaryExpr) {
	if e.HasOverload {
		emitExpr(ctx, e.Left)
		emitExpr(ctx, e.Right)
		emitOverloadCall(ctx, e.Left, e.OverloadName, 1)
		return
	}

	switch e.Operator {
	case lexer.TOKEN_AND:
		emitExpr(ctx, e.Left)
		emitExpr(ctx, e.Right)
		ctx.g.b.EmitByte(byte(vm.OP_AND))
		return
	case lexer.TOKEN_OR:
		emitExpr(ctx, e.Left)
		emitExpr(ctx, e.Right)
		ctx.g.b.EmitByte(byte(vm.OP_OR))
		return
	}

	lt := ctx.result.ExprTypes[e.Left]
	rt := ctx.result.ExprTypes[e.Right]
	if e.Operator == lexer.TOKEN_PLUS && lt != nil && rt != nil && lt.Kind == dptype.STRING && rt.Kind == dptype.STRING {
		emitExpr(ctx, e.Left)
		emitExpr(ctx, e.Right)
		ctx.g.b.EmitByte(byte(vm.OP_STRING_CONCAT))
		return
	}

	// binaryArith/compare both pop b then a and compute "a op b", so operand
	// order on the stack must be Left, then Right (§4.2).
	emitExpr(ctx, e.Left)
	emitExpr(ctx, e.Right)
	ctx.g.b.EmitByte(byte(binaryOpcode(e.Operator)))
}

func binaryOpcode(op lexer.TokenType) vm.OpCode {
	switch op {
	case lexer.TOKEN_PLUS:
		return vm.OP_ADD
	case lexer.TOKEN_MINUS:
		return vm.OP_SUB
	case lexer.TOKEN_STAR:
		return vm.OP_MUL
	case lexer.TOKEN_SLASH:
		return vm.OP_DIV
	case lexer.TOKEN_PERCENT:
		return vm.OP_MOD
	case lexer.TOKEN_EQ:
		return vm.OP_EQ
	case lexer.TOKEN_NEQ:
		return vm.OP_NEQ
	case lexer.TOKEN_LT:
		return vm.OP_LT
	case lexer.TOKEN_LTE:
		return vm.OP_LTE
	case lexer.TOKEN_GT:
		return vm.OP_GT
	case lexer.TOKEN_GTE:
		return vm.OP_GTE
	default:
		panic("codegen: unhandled binary operator")
	}
}

func emitUnary(ctx *fnCtx, e *ast.UnaryExpr) {
	if e.HasOverload {
		emitExpr(ctx, e.Operand)
		emitOverloadCall(ctx, e.Operand, e.OverloadName, 0)
		return
	}
	if e.Operator == lexer.TOKEN_NOT {
		emitExpr(ctx, e.Operand)
		ctx.g.b.EmitByte(byte(vm.OP_NOT))
		return
	}
	// Unary minus: no dedicated opcode exists, so synthesize `0 - operand`
	// (OP_SUB pops b,a and computes a-b, so 0 must go on the stack first).
	zeroIdx := ctx.g.b.AddInt(0)
	ctx.g.b.EmitByte(byte(vm.OP_PUSH_CONST))
	ctx.g.b.EmitU32(zeroIdx)
	emitExpr(ctx, e.Operand)
	ctx.g.b.EmitByte(byte(vm.OP_SUB))
}

// emitOverloadCall emits the CALL to an already-resolved operator-overload
// method: receiver (the left/only operand, whose value is already on the
// stack directly below the already-emitted argument(s)) becomes self,
// argc counts only the method's declared parameters.
func emitOverloadCall(ctx *fnCtx, receiver ast.Expr, overloadName string, argc int) {
	recvType := ctx.result.ExprTypes[receiver]
	className := recvType.ClassName
	qualifier := ctx.g.classQualifier(ctx.qualifier, ctx.prog, className)
	mangled := mangleMember(qualifier, className, overloadName)
	fnIdx, ok := ctx.g.funcIndex[mangled]
	if !ok {
		panic("codegen: operator overload '" + mangled + "' has no function-table entry")
	}
	ctx.g.b.EmitByte(byte(vm.OP_CALL))
	ctx.g.b.EmitU32(fnIdx)
	ctx.g.b.EmitByte(byte(argc + 1))
}

func emitAssign(ctx *fnCtx, e *ast.AssignExpr) {
	emitAssignment(ctx, e.Target, e.Value, nil)
}

func emitCompoundAssign(ctx *fnCtx, e *ast.CompoundAssignExpr) {
	op := lexer.TOKEN_PLUS
	if e.Operator == lexer.TOKEN_MINUS_ASSIGN {
		op = lexer.TOKEN_MINUS
	}
	emitAssignment(ctx, e.Target, e.Value, &op)
}

// emitAssignment implements `target = value` and `target += value` /
// `target -= value` uniformly. compoundOp is nil for a plain assignment.
//
// The staging technique: evaluate everything that needs evaluating once
// (the field/index receiver, the index), hold each in its own hidden local
// slot so a 3-operand opcode like ARRAY_SET/MAP_SET/SET_FIELD still has all
// its operands available in the right order, compute the new value, stash
// it in one more temp slot, perform the write, then reload the temp as the
// assignment expression's own result (§4.2's assignment-is-an-expression
// rule).
func emitAssignment(ctx *fnCtx, target ast.Expr, value ast.Expr, compoundOp *lexer.TokenType) {
	switch t := target.(type) {
	case *ast.IdentifierExpr:
		slot, ok := ctx.scope.resolve(t.Name)
		if !ok {
			// Static field write through a bare name never occurs today: the
			// checker only resolves identifiers against local scope.
			panic("codegen: assignment to unresolved identifier '" + t.Name + "'")
		}
		emitAssignValue(ctx, target, func() { emitLoadLocal(ctx, slot) }, value, compoundOp)
		temp := ctx.allocSlot("$asgn$")
		emitStoreLocal(ctx, temp)
		emitLoadLocal(ctx, temp)
		emitStoreLocal(ctx, slot)
		emitLoadLocal(ctx, temp)

	case *ast.FieldAccessExpr:
		objTemp := ctx.allocSlot("$asgn$obj$")
		emitExpr(ctx, t.Object)
		emitStoreLocal(ctx, objTemp)

		emitAssignValue(ctx, target, func() {
			emitLoadLocal(ctx, objTemp)
			emitGetField(ctx, t.Field)
		}, value, compoundOp)
		valTemp := ctx.allocSlot("$asgn$val$")
		emitStoreLocal(ctx, valTemp)

		emitLoadLocal(ctx, objTemp)
		emitLoadLocal(ctx, valTemp)
		emitSetField(ctx, t.Field)
		emitLoadLocal(ctx, valTemp)

	case *ast.IndexExpr:
		objTemp := ctx.allocSlot("$asgn$obj$")
		emitExpr(ctx, t.Object)
		emitStoreLocal(ctx, objTemp)

		idxTemp := ctx.allocSlot("$asgn$idx$")
		emitExpr(ctx, t.Index)
		emitStoreLocal(ctx, idxTemp)

		objType := ctx.result.ExprTypes[t.Object]
		isDict := objType != nil && objType.Kind == dptype.DICT

		emitAssignValue(ctx, target, func() {
			emitLoadLocal(ctx, objTemp)
			emitLoadLocal(ctx, idxTemp)
			if isDict {
				ctx.g.b.EmitByte(byte(vm.OP_MAP_GET))
			} else {
				ctx.g.b.EmitByte(byte(vm.OP_ARRAY_GET))
			}
		}, value, compoundOp)
		valTemp := ctx.allocSlot("$asgn$val$")
		emitStoreLocal(ctx, valTemp)

		emitLoadLocal(ctx, objTemp)
		emitLoadLocal(ctx, idxTemp)
		emitLoadLocal(ctx, valTemp)
		if isDict {
			ctx.g.b.EmitByte(byte(vm.OP_MAP_SET))
		} else {
			ctx.g.b.EmitByte(byte(vm.OP_ARRAY_SET))
		}
		emitLoadLocal(ctx, valTemp)

	default:
		panic("codegen: invalid assignment target")
	}
}

// emitAssignValue pushes the value the assignment will write: just `value`
// for a plain assignment, or `current() op value` for a compound
// assignment. current reads the target's already-staged receiver/index
// rather than re-evaluating the target's AST, so a field or index target
// with a side-effecting receiver expression is only ever evaluated once.
func emitAssignValue(ctx *fnCtx, target ast.Expr, current func(), value ast.Expr, compoundOp *lexer.TokenType) {
	if compoundOp == nil {
		emitExpr(ctx, value)
		return
	}
	current()
	emitExpr(ctx, value)
	targetType := ctx.result.ExprTypes[target]
	valueType := ctx.result.ExprTypes[value]
	if *compoundOp == lexer.TOKEN_PLUS && targetType != nil && valueType != nil &&
		targetType.Kind == dptype.STRING && valueType.Kind == dptype.STRING {
		ctx.g.b.EmitByte(byte(vm.OP_STRING_CONCAT))
		return
	}
	ctx.g.b.EmitByte(byte(binaryOpcode(*compoundOp)))
}

func emitSetField(ctx *fnCtx, field string) {
	nameIdx := ctx.g.b.AddString(field)
	ctx.g.b.EmitByte(byte(vm.OP_SET_FIELD))
	ctx.g.b.EmitU32(nameIdx)
}

func emitGetField(ctx *fnCtx, field string) {
	nameIdx := ctx.g.b.AddString(field)
	ctx.g.b.EmitByte(byte(vm.OP_GET_FIELD))
	ctx.g.b.EmitU32(nameIdx)
}

func emitFieldRead(ctx *fnCtx, e *ast.FieldAccessExpr) {
	emitExpr(ctx, e.Object)
	emitGetField(ctx, e.Field)
}

func emitIndexRead(ctx *fnCtx, e *ast.IndexExpr) {
	objType := ctx.result.ExprTypes[e.Object]
	if objType != nil && objType.Kind == dptype.OBJECT {
		// class with an op$index_get overload
		emitExpr(ctx, e.Object)
		emitExpr(ctx, e.Index)
		emitOverloadCall(ctx, e.Object, "op$index_get", 1)
		return
	}
	emitExpr(ctx, e.Object)
	emitExpr(ctx, e.Index)
	if objType != nil && objType.Kind == dptype.DICT {
		ctx.g.b.EmitByte(byte(vm.OP_MAP_GET))
	} else {
		ctx.g.b.EmitByte(byte(vm.OP_ARRAY_GET))
	}
}

func emitCall(ctx *fnCtx, e *ast.CallExpr) {
	switch callee := e.Callee.(type) {
	case *ast.IdentifierExpr:
		target, ok := ctx.g.resolveFunctionCall(ctx.qualifier, ctx.prog, callee.Name)
		if !ok {
			panic("codegen: unresolved call target '" + callee.Name + "'")
		}
		if target.isNative {
			for _, a := range e.Args {
				emitExpr(ctx, a)
			}
			nameIdx := ctx.g.b.AddString(callee.Name)
			ctx.g.b.EmitByte(byte(vm.OP_CALL_NATIVE))
			ctx.g.b.EmitU32(nameIdx)
			ctx.g.b.EmitByte(byte(len(e.Args)))
			return
		}
		for _, a := range e.Args {
			emitExpr(ctx, a)
		}
		emitDispatch(ctx, target, len(e.Args))

	case *ast.FieldAccessExpr:
		var className string
		if ident, ok := callee.Object.(*ast.IdentifierExpr); ok {
			if classDeclaredAnywhereVisible(ctx, ident.Name) {
				className = ident.Name
			}
		}
		if className == "" {
			// Instance dispatch: evaluate the receiver, it becomes self —
			// unless the method itself is @ffi, in which case there is no
			// object representation to hand to the foreign call and the
			// receiver is evaluated for its side effects only (§6.4; an
			// @ffi method has no practical use for `self` anyway).
			recvType := ctx.result.ExprTypes[callee.Object]
			qualifier := ctx.g.classQualifier(ctx.qualifier, ctx.prog, recvType.ClassName)
			mangled := mangleMember(qualifier, recvType.ClassName, callee.Field)
			if info, ok := ctx.g.ffiFuncs[mangled]; ok {
				emitExpr(ctx, callee.Object)
				ctx.g.b.EmitByte(byte(vm.OP_POP))
				for _, a := range e.Args {
					emitExpr(ctx, a)
				}
				emitFFICall(ctx, info, callee.Field, len(e.Args))
				return
			}
			emitExpr(ctx, callee.Object)
			for _, a := range e.Args {
				emitExpr(ctx, a)
			}
			fnIdx, ok := ctx.g.funcIndex[mangled]
			if !ok {
				panic("codegen: unresolved method '" + mangled + "'")
			}
			ctx.g.b.EmitByte(byte(vm.OP_CALL))
			ctx.g.b.EmitU32(fnIdx)
			ctx.g.b.EmitByte(byte(len(e.Args) + 1))
			return
		}
		// Static dispatch: no self pushed.
		qualifier := ctx.g.classQualifier(ctx.qualifier, ctx.prog, className)
		mangled := mangleMember(qualifier, className, callee.Field)
		if info, ok := ctx.g.ffiFuncs[mangled]; ok {
			for _, a := range e.Args {
				emitExpr(ctx, a)
			}
			emitFFICall(ctx, info, callee.Field, len(e.Args))
			return
		}
		for _, a := range e.Args {
			emitExpr(ctx, a)
		}
		fnIdx, ok := ctx.g.funcIndex[mangled]
		if !ok {
			panic("codegen: unresolved static method '" + mangled + "'")
		}
		ctx.g.b.EmitByte(byte(vm.OP_CALL))
		ctx.g.b.EmitU32(fnIdx)
		ctx.g.b.EmitByte(byte(len(e.Args)))

	default:
		panic("codegen: unsupported call-expression callee")
	}
}

// classDeclaredAnywhereVisible mirrors check.checkCall's class-name-vs-
// variable disambiguation for a field-access callee's object: the
// checker already spliced every visible import's classes into the same
// table used to check this unit, so one Lookup is enough.
func classDeclaredAnywhereVisible(ctx *fnCtx, name string) bool {
	_, ok := ctx.result.Classes.Lookup(name)
	return ok
}

func emitDispatch(ctx *fnCtx, target callTarget, argc int) {
	switch {
	case target.isNative:
		panic("codegen: native dispatch resolved through emitDispatch without a name")
	case target.ffi != nil:
		emitFFICall(ctx, target.ffi, target.ffiName, argc)
	default:
		fnIdx, ok := ctx.g.funcIndex[target.mangled]
		if !ok {
			panic("codegen: unresolved call target '" + target.mangled + "'")
		}
		ctx.g.b.EmitByte(byte(vm.OP_CALL))
		ctx.g.b.EmitU32(fnIdx)
		ctx.g.b.EmitByte(byte(argc))
	}
}

// emitFFICall emits OP_CALL_FFI libIdx, symIdx, argc, sigIdx: symIdx names
// the @ffi-declared function itself (the symbol wazero's FFIDispatcher
// looks up inside LibName), sigIdx is the "a->b"-style signature string
// parsed out of the declaration.
func emitFFICall(ctx *fnCtx, info *ast.FFIInfo, symbolName string, argc int) {
	libIdx := ctx.g.b.AddString(info.LibName)
	symIdx := ctx.g.b.AddString(symbolName)
	sigIdx := ctx.g.b.AddString(info.Signature)
	ctx.g.b.EmitByte(byte(vm.OP_CALL_FFI))
	ctx.g.b.EmitU32(libIdx)
	ctx.g.b.EmitU32(symIdx)
	ctx.g.b.EmitByte(byte(argc))
	ctx.g.b.EmitU32(sigIdx)
}

func emitNewObject(ctx *fnCtx, e *ast.NewObjectExpr) {
	classNameIdx := ctx.g.b.AddString(e.ClassName)
	ctx.g.b.EmitByte(byte(vm.OP_NEW_OBJECT))
	ctx.g.b.EmitU32(classNameIdx)
	ctx.g.b.EmitByte(byte(vm.OP_DUP))
	for _, a := range e.Args {
		emitExpr(ctx, a)
	}
	qualifier := ctx.g.classQualifier(ctx.qualifier, ctx.prog, e.ClassName)
	mangled := mangleMember(qualifier, e.ClassName, "new")
	fnIdx, ok := ctx.g.funcIndex[mangled]
	if !ok {
		panic("codegen: unresolved constructor '" + mangled + "'")
	}
	ctx.g.b.EmitByte(byte(vm.OP_CALL))
	ctx.g.b.EmitU32(fnIdx)
	ctx.g.b.EmitByte(byte(len(e.Args) + 1))
	ctx.g.b.EmitByte(byte(vm.OP_POP)) // discard the constructor's own nil return
}

func emitListLiteral(ctx *fnCtx, e *ast.ListLiteralExpr) {
	ctx.g.b.EmitByte(byte(vm.OP_NEW_ARRAY))
	for i, el := range e.Elements {
		ctx.g.b.EmitByte(byte(vm.OP_DUP))
		idxConst := ctx.g.b.AddInt(int32(i))
		ctx.g.b.EmitByte(byte(vm.OP_PUSH_CONST))
		ctx.g.b.EmitU32(idxConst)
		emitExpr(ctx, el)
		ctx.g.b.EmitByte(byte(vm.OP_ARRAY_SET))
	}
}

func emitDictLiteral(ctx *fnCtx, e *ast.DictLiteralExpr) {
	ctx.g.b.EmitByte(byte(vm.OP_NEW_MAP))
	for _, ent := range e.Entries {
		ctx.g.b.EmitByte(byte(vm.OP_DUP))
		emitExpr(ctx, ent.Key)
		emitExpr(ctx, ent.Value)
		ctx.g.b.EmitByte(byte(vm.OP_MAP_SET))
	}
}

func emitTypeTest(ctx *fnCtx, e *ast.TypeTestExpr) {
	emitExpr(ctx, e.Value)
	classNameIdx := ctx.g.b.AddString(e.TypeName)
	ctx.g.b.EmitByte(byte(vm.OP_IS_INSTANCE))
	ctx.g.b.EmitU32(classNameIdx)
}
