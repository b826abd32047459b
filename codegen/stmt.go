package codegen

import (
	"droplet/ast"
	"droplet/vm"
)

// localIP returns the in-function instruction pointer the next emitted
// byte will occupy — what frame.IP actually indexes at runtime, since
// Function.Code is sliced out of the shared blob starting at fnStart.
func (ctx *fnCtx) localIP() uint32 {
	return ctx.g.b.CodeLen() - ctx.fnStart
}

// emitJump emits op followed by a placeholder u32 target and returns the
// blob offset of that placeholder, to be resolved later with patchJump.
func emitJump(ctx *fnCtx, op vm.OpCode) uint32 {
	ctx.g.b.EmitByte(byte(op))
	return ctx.g.b.EmitU32(0)
}

func patchJump(ctx *fnCtx, placeholder uint32, targetLocalIP uint32) {
	ctx.g.b.PatchU32(placeholder, targetLocalIP)
}

func patchJumpHere(ctx *fnCtx, placeholder uint32) {
	patchJump(ctx, placeholder, ctx.localIP())
}

func emitStmt(ctx *fnCtx, s ast.Stmt) {
	ctx.record(s.Position())
	switch st := s.(type) {
	case *ast.BlockStmt:
		ctx.pushScope()
		for _, sub := range st.Statements {
			emitStmt(ctx, sub)
		}
		ctx.popScope()
	case *ast.VarDeclStmt:
		emitVarDecl(ctx, st)
	case *ast.IfStmt:
		emitIf(ctx, st)
	case *ast.WhileStmt:
		emitWhile(ctx, st)
	case *ast.ForInStmt:
		emitForIn(ctx, st)
	case *ast.LoopStmt:
		emitLoop(ctx, st)
	case *ast.ReturnStmt:
		emitReturn(ctx, st)
	case *ast.BreakStmt:
		lc := ctx.currentLoop()
		if lc == nil {
			panic("codegen: break outside a loop")
		}
		lc.breakOffsets = append(lc.breakOffsets, emitJump(ctx, vm.OP_JUMP))
	case *ast.ContinueStmt:
		lc := ctx.currentLoop()
		if lc == nil {
			panic("codegen: continue outside a loop")
		}
		lc.continueOffsets = append(lc.continueOffsets, emitJump(ctx, vm.OP_JUMP))
	case *ast.ExprStmt:
		emitExpr(ctx, st.Expr)
		ctx.g.b.EmitByte(byte(vm.OP_POP))
	default:
		panic("codegen: unhandled statement node")
	}
}

// emitReturn always leaves exactly one value for OP_RETURN to pop,
// matching the implicit-nil return every function falls off into at the
// end of its body (§4.5).
func emitReturn(ctx *fnCtx, st *ast.ReturnStmt) {
	if st.Value != nil {
		emitExpr(ctx, st.Value)
	} else {
		idx := ctx.g.b.AddNil()
		ctx.g.b.EmitByte(byte(vm.OP_PUSH_CONST))
		ctx.g.b.EmitU32(idx)
	}
	ctx.g.b.EmitByte(byte(vm.OP_RETURN))
	ctx.g.b.EmitByte(1)
}

func emitVarDecl(ctx *fnCtx, st *ast.VarDeclStmt) {
	slot := ctx.allocSlot(st.Name)
	if st.Initializer != nil {
		emitExpr(ctx, st.Initializer)
	} else {
		idx := ctx.g.b.AddNil()
		ctx.g.b.EmitByte(byte(vm.OP_PUSH_CONST))
		ctx.g.b.EmitU32(idx)
	}
	emitStoreLocal(ctx, slot)
}

func emitIf(ctx *fnCtx, st *ast.IfStmt) {
	emitExpr(ctx, st.Condition)
	falseJump := emitJump(ctx, vm.OP_JUMP_IF_FALSE)
	emitStmt(ctx, st.Then)
	if st.Else == nil {
		patchJumpHere(ctx, falseJump)
		return
	}
	endJump := emitJump(ctx, vm.OP_JUMP)
	patchJumpHere(ctx, falseJump)
	emitStmt(ctx, st.Else)
	patchJumpHere(ctx, endJump)
}

// emitWhile compiles `while cond { body }`: condition re-evaluated each
// iteration, continue jumps back to the condition, break jumps past the
// trailing unconditional jump that closes the loop.
func emitWhile(ctx *fnCtx, st *ast.WhileStmt) {
	lc := ctx.pushLoop()
	condStart := ctx.localIP()
	emitExpr(ctx, st.Condition)
	exitJump := emitJump(ctx, vm.OP_JUMP_IF_FALSE)
	emitStmt(ctx, st.Body)
	backJump := emitJump(ctx, vm.OP_JUMP)
	patchJump(ctx, backJump, condStart)
	patchJumpHere(ctx, exitJump)
	for _, off := range lc.breakOffsets {
		patchJumpHere(ctx, off)
	}
	for _, off := range lc.continueOffsets {
		patchJump(ctx, off, condStart)
	}
	ctx.popLoop()
}

// emitLoop compiles the bare `loop { body }` form: runs until a break,
// condition-free.
func emitLoop(ctx *fnCtx, st *ast.LoopStmt) {
	lc := ctx.pushLoop()
	bodyStart := ctx.localIP()
	emitStmt(ctx, st.Body)
	backJump := emitJump(ctx, vm.OP_JUMP)
	patchJump(ctx, backJump, bodyStart)
	for _, off := range lc.breakOffsets {
		patchJumpHere(ctx, off)
	}
	for _, off := range lc.continueOffsets {
		patchJump(ctx, off, bodyStart)
	}
	ctx.popLoop()
}

// emitForIn compiles `for x in iterable { body }` over a list: the
// iterable and its length (via the "len" native, §6.3) are each evaluated
// once into hidden slots, alongside a hidden integer index; each
// iteration reads iterable[index] into the bound loop variable before
// running the body and incrementing the index. There is no separate
// iterator protocol (§4.2 types ForInStmt.VarName directly as the
// iterable's Elem type).
func emitForIn(ctx *fnCtx, st *ast.ForInStmt) {
	iterTemp := ctx.allocSlot("$for$iter$")
	emitExpr(ctx, st.Iterable)
	emitStoreLocal(ctx, iterTemp)

	lenTemp := ctx.allocSlot("$for$len$")
	emitLoadLocal(ctx, iterTemp)
	nameIdx := ctx.g.b.AddString("len")
	ctx.g.b.EmitByte(byte(vm.OP_CALL_NATIVE))
	ctx.g.b.EmitU32(nameIdx)
	ctx.g.b.EmitByte(1)
	emitStoreLocal(ctx, lenTemp)

	idxTemp := ctx.allocSlot("$for$idx$")
	zeroIdx := ctx.g.b.AddInt(0)
	ctx.g.b.EmitByte(byte(vm.OP_PUSH_CONST))
	ctx.g.b.EmitU32(zeroIdx)
	emitStoreLocal(ctx, idxTemp)

	ctx.pushScope()
	varSlot := ctx.allocSlot(st.VarName)

	lc := ctx.pushLoop()
	condStart := ctx.localIP()

	emitLoadLocal(ctx, idxTemp)
	emitLoadLocal(ctx, lenTemp)
	ctx.g.b.EmitByte(byte(vm.OP_LT))
	exitJump := emitJump(ctx, vm.OP_JUMP_IF_FALSE)

	emitLoadLocal(ctx, iterTemp)
	emitLoadLocal(ctx, idxTemp)
	ctx.g.b.EmitByte(byte(vm.OP_ARRAY_GET))
	emitStoreLocal(ctx, varSlot)

	emitStmt(ctx, st.Body)

	continueTarget := ctx.localIP()
	emitLoadLocal(ctx, idxTemp)
	oneIdx := ctx.g.b.AddInt(1)
	ctx.g.b.EmitByte(byte(vm.OP_PUSH_CONST))
	ctx.g.b.EmitU32(oneIdx)
	ctx.g.b.EmitByte(byte(vm.OP_ADD))
	emitStoreLocal(ctx, idxTemp)
	backJump := emitJump(ctx, vm.OP_JUMP)
	patchJump(ctx, backJump, condStart)

	patchJumpHere(ctx, exitJump)
	for _, off := range lc.breakOffsets {
		patchJumpHere(ctx, off)
	}
	for _, off := range lc.continueOffsets {
		patchJump(ctx, off, continueTarget)
	}
	ctx.popLoop()
	ctx.popScope()
}
