package codegen

import (
	"droplet/ast"
	"droplet/check"
	"droplet/dptype"
	"droplet/lexer"
	"droplet/vm"
)

// fnCtx carries everything expression and statement emission need for the
// one function currently being generated.
type fnCtx struct {
	g         *Generator
	qualifier string
	file      string
	prog      *ast.Program
	result    *check.Result

	className string // plain class name; "" outside a class member
	ci        *dptype.ClassInfo

	scope    *localScope
	nextSlot int
	locals   map[string]int // flattened name→slot, for the debug record

	loops []*loopCtx

	dbgInto  *vm.DebugInfo
	fnStart  uint32
	lastLine int
	lastCol  int
	haveLast bool
}

// record notes the current bytecode offset's source position into the
// function's debug record, coalescing runs that share a line:column so the
// table doesn't carry one entry per instruction.
func (ctx *fnCtx) record(pos lexer.Position) {
	if ctx.dbgInto == nil {
		return
	}
	if ctx.haveLast && ctx.lastLine == pos.Line && ctx.lastCol == pos.Column {
		return
	}
	ctx.lastLine, ctx.lastCol, ctx.haveLast = pos.Line, pos.Column, true
	ip := int(ctx.g.b.CodeLen() - ctx.fnStart)
	ctx.dbgInto.Locations[ip] = vm.SourceLocation{File: ctx.file, Line: pos.Line, Column: pos.Column}
}

// loopCtx records the JUMP placeholders a break/continue inside the loop
// body leaves behind, patched once the loop's exit and continue targets
// are known (§4.5).
type loopCtx struct {
	breakOffsets    []uint32
	continueOffsets []uint32
}

func (g *Generator) newFnCtx(qualifier, file string, prog *ast.Program, result *check.Result, className string, ci *dptype.ClassInfo) *fnCtx {
	return &fnCtx{
		g: g, qualifier: qualifier, file: file, prog: prog, result: result,
		className: className, ci: ci,
		scope:  newLocalScope(nil),
		locals: make(map[string]int),
	}
}

func (ctx *fnCtx) allocSlot(name string) int {
	slot := ctx.nextSlot
	ctx.nextSlot++
	ctx.scope.define(name, slot)
	ctx.locals[name] = slot
	return slot
}

func (ctx *fnCtx) pushScope() { ctx.scope = newLocalScope(ctx.scope) }
func (ctx *fnCtx) popScope()  { ctx.scope = ctx.scope.parent }

func (ctx *fnCtx) pushLoop() *loopCtx {
	lc := &loopCtx{}
	ctx.loops = append(ctx.loops, lc)
	return lc
}

func (ctx *fnCtx) popLoop() { ctx.loops = ctx.loops[:len(ctx.loops)-1] }

func (ctx *fnCtx) currentLoop() *loopCtx {
	if len(ctx.loops) == 0 {
		return nil
	}
	return ctx.loops[len(ctx.loops)-1]
}

// emitFunction lowers one planned function into the shared builder at
// fnIdx (already reserved for it by planFunctions), leaving the builder's
// BeginFunction/FinishFunction pair bracketing the emitted body.
func (g *Generator) emitFunction(qualifier, file string, prog *ast.Program, result *check.Result, pf *plannedFunc, fnIdx uint32) error {
	switch pf.kind {
	case plannedStaticInit:
		return g.emitStaticInit(qualifier, file, prog, result, pf, fnIdx)
	default:
		return g.emitMemberOrTopFunc(qualifier, file, prog, result, pf, fnIdx)
	}
}

func (g *Generator) emitMemberOrTopFunc(qualifier, file string, prog *ast.Program, result *check.Result, pf *plannedFunc, fnIdx uint32) error {
	fn := pf.decl
	hasSelf := pf.kind == plannedCtor || (pf.kind == plannedMethod && !fn.Static)

	ctx := g.newFnCtx(qualifier, file, prog, result, pf.className, pf.ci)
	if hasSelf {
		ctx.allocSlot("self")
	}
	for _, p := range fn.Params {
		ctx.allocSlot(p.Name)
	}
	startSlot := ctx.nextSlot

	localCount := startSlot
	if fn.Body != nil {
		localCount = countLocals(fn.Body, startSlot)
	}
	if pf.kind == plannedCtor {
		// Field-default-initializer prologue statements each need their own
		// temp slot the same way any other assignment does.
		for i := range pf.ci.FieldSlots {
			fs := &pf.ci.FieldSlots[i]
			if fs.Decl != nil && !fs.Decl.Static && fs.Decl.Initializer != nil {
				localCount++ // one temp slot for the SET_FIELD staging value
			}
		}
	}

	nameIdx := g.b.AddString(pf.mangled)
	got := g.b.BeginFunction(nameIdx, uint8(len(fn.Params))+boolToUint8(hasSelf), uint8(localCount))
	if got != fnIdx {
		panic("codegen: function table index drifted from its planned position")
	}

	dbg := &vm.DebugInfo{Locations: make(map[int]vm.SourceLocation), Locals: make(map[string]int)}
	ctx.dbgInto = dbg
	ctx.fnStart = g.b.Funcs()[fnIdx].CodeStart

	if pf.kind == plannedCtor {
		for i := range pf.ci.FieldSlots {
			fs := &pf.ci.FieldSlots[i]
			if fs.Decl != nil && !fs.Decl.Static && fs.Decl.Initializer != nil {
				emitFieldDefaultInit(ctx, fs)
			}
		}
	}

	if fn.Body != nil {
		for _, s := range fn.Body.Statements {
			emitStmt(ctx, s)
		}
	}
	// Falling off the end of a body returns nil implicitly (§4.8); pushing
	// nil and emitting RETURN 1 here keeps the code blob self-terminating rather
	// than relying on the caller to never execute past the function body.
	ctx.g.b.EmitByte(byte(vm.OP_PUSH_CONST))
	ctx.g.b.EmitU32(ctx.g.b.AddNil())
	ctx.g.b.EmitByte(byte(vm.OP_RETURN))
	ctx.g.b.EmitByte(1)

	g.b.FinishFunction(fnIdx)
	for k, v := range ctx.locals {
		dbg.Locals[k] = v
	}
	g.dbg[pf.mangled] = dbg
	return nil
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// emitFieldDefaultInit compiles `self.field = <initializer>` for one field
// slot, as part of a constructor's prologue, before the explicit
// constructor body runs.
func emitFieldDefaultInit(ctx *fnCtx, fs *dptype.FieldSlot) {
	temp := ctx.allocSlot("$fieldinit$" + fs.Name)
	emitExpr(ctx, fs.Decl.Initializer)
	emitStoreLocal(ctx, temp)
	emitLoadLocal(ctx, 0) // self
	emitLoadLocal(ctx, temp)
	emitSetField(ctx, fs.Name)
}

// emitStaticInit compiles the synthesized ClassName$$field$init function:
// evaluate the initializer and store it into the global slot the field's
// mangled name occupies.
func (g *Generator) emitStaticInit(qualifier, file string, prog *ast.Program, result *check.Result, pf *plannedFunc, fnIdx uint32) error {
	ctx := g.newFnCtx(qualifier, file, prog, result, pf.className, pf.ci)
	nameIdx := g.b.AddString(pf.mangled)
	got := g.b.BeginFunction(nameIdx, 0, 0)
	if got != fnIdx {
		panic("codegen: function table index drifted from its planned position")
	}
	dbg := &vm.DebugInfo{Locations: make(map[int]vm.SourceLocation), Locals: make(map[string]int)}
	ctx.dbgInto = dbg
	ctx.fnStart = g.b.Funcs()[fnIdx].CodeStart

	emitExpr(ctx, pf.field.Decl.Initializer)
	globalNameIdx := g.b.AddString(staticFieldGlobalName(qualifier, pf.className, pf.field.Name))
	g.b.EmitByte(byte(vm.OP_STORE_GLOBAL))
	g.b.EmitU32(globalNameIdx)
	g.b.EmitByte(byte(vm.OP_PUSH_CONST))
	g.b.EmitU32(g.b.AddNil())
	g.b.EmitByte(byte(vm.OP_RETURN))
	g.b.EmitByte(1)

	g.b.FinishFunction(fnIdx)
	g.dbg[pf.mangled] = dbg
	return nil
}

// staticFieldGlobalName is the vm.VM.Globals key a static field's value
// lives under. Reading it back (e.g. via `ClassName.field`) is not wired
// into check.checkFieldAccess yet — see DESIGN.md.
func staticFieldGlobalName(qualifier, className, field string) string {
	return mangleMember(qualifier, className, field)
}

var _ = lexer.TOKEN_PLUS // silence unused import if emitStmt/expr move later
