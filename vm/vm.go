// Package vm implements the stack-based bytecode interpreter: Value,
// Object, CallFrame, the dispatch loop, and the mark-sweep collector.
package vm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// NativeFunc is a host-provided intrinsic. It receives the VM and the
// argument count pushed by CALL_NATIVE; it is responsible for popping
// exactly argc values and pushing exactly one result (§4.8).
type NativeFunc func(v *VM, argc int) error

// FFIDispatcher routes a CALL_FFI instruction to an embedder-provided
// mechanism. If no dispatcher is installed, CALL_FFI pushes nil and
// continues per §7's defensive runtime-anomaly policy.
type FFIDispatcher interface {
	Call(libName, symName, signature string, args []Value) (Value, error)
}

// BreakpointHook runs once per dispatch-loop safepoint, before the opcode
// is executed (§4.8's "cooperative breakpoint check").
type BreakpointHook func(v *VM, frame *CallFrame)

// CallHooks lets an embedder (package trace's Tracer, a profiler, a
// debugger front end) observe function entry/exit and native/FFI
// dispatch without the dispatch loop itself knowing anything about
// logging. Any field left nil is simply not called.
type CallHooks struct {
	OnCall       func(v *VM, fn *Function, argc int)
	OnReturn     func(v *VM, fn *Function, results []Value)
	OnNativeCall func(v *VM, name string, argc int)
	OnError      func(v *VM, frame *CallFrame, err error)
}

// VM is one interpreter instance. It owns its heap, function table,
// constant pool, and globals (§5: destroying it releases all objects).
type VM struct {
	Stack        []Value
	StackPointer int

	Frames []CallFrame

	Globals map[string]Value

	Functions    []*Function
	FuncNameIdx  map[string]uint32

	Constants []Value

	Natives map[string]NativeFunc

	FFI FFIDispatcher

	Alloc *Allocator

	Breakpoint BreakpointHook

	// Hooks observes function/native call boundaries; nil means no
	// tracing overhead at all beyond the nil check itself.
	Hooks *CallHooks

	// Stdout is not read by the VM or by package natives: print/println
	// write to the writer passed to natives.Register.
	Stdout interface {
		WriteString(string) (int, error)
	}

	// MaxSteps bounds the number of opcodes a single run() may dispatch
	// before it aborts with a RuntimeError; zero means unlimited. This is
	// the cooperative-scheduling equivalent of the teacher's TickLimit
	// (vm.TickLimit in barn/vm/vm.go) — a single-threaded interpreter's
	// only defense against a runaway program (e.g. an infinite loop) when
	// the host wants an upper bound on one call's wall-clock cost.
	MaxSteps int64
	Steps    int64

	// MaxStackDepth bounds len(Frames); zero means unlimited. Exceeding it
	// surfaces as a RuntimeError rather than a Go stack overflow from an
	// unbounded recursive Droplet program.
	MaxStackDepth int
}

// RuntimeError is returned when execution cannot continue: an undefined
// entry function, an exceeded step or call-depth limit, or an unknown
// opcode. Load/format failures are reported by package loader instead, and
// runtime anomalies (unknown global, OOB array read, etc.) never reach this
// type — they are handled defensively in place.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string { return e.Message }

// NewVM creates an empty VM with its allocator wired to walk the operand
// stack and globals as GC roots, using the allocator's own default
// initial collection threshold.
func NewVM() *VM {
	return NewVMWithThreshold(0)
}

// NewVMWithThreshold is NewVM with an explicit GC initial threshold
// (0 falls back to NewAllocator's own default of 256), for embedders
// that read a threshold from a project configuration file.
func NewVMWithThreshold(initialThreshold int) *VM {
	v := &VM{
		Globals:     make(map[string]Value),
		FuncNameIdx: make(map[string]uint32),
		Natives:     make(map[string]NativeFunc),
		Alloc:       NewAllocator(initialThreshold),
	}
	v.Alloc.RootWalker = func(visit func(Value)) {
		for i := 0; i < v.StackPointer; i++ {
			visit(v.Stack[i])
		}
		for _, g := range v.Globals {
			visit(g)
		}
	}
	return v
}

func (v *VM) push(val Value) {
	if v.StackPointer < len(v.Stack) {
		v.Stack[v.StackPointer] = val
	} else {
		v.Stack = append(v.Stack, val)
	}
	v.StackPointer++
}

func (v *VM) pop() Value {
	v.StackPointer--
	return v.Stack[v.StackPointer]
}

func (v *VM) peek(depthFromTop int) Value {
	return v.Stack[v.StackPointer-1-depthFromTop]
}

// Push and Pop expose the operand stack to a NativeFunc, which must pop
// exactly argc values and push exactly one result (§4.8).
func (v *VM) Push(val Value) { v.push(val) }
func (v *VM) Pop() Value     { return v.pop() }

// NewString allocates a tracked string object through the VM's allocator,
// for use by natives that produce string results.
func (v *VM) NewString(s string) *Object { return v.Alloc.NewString(s) }

// CallByName looks up fn by name, pushes args onto the stack and invokes
// it, running the dispatch loop until that call (and everything it
// transitively calls) returns. It then pops and returns the top of the
// stack, or nil if the stack is empty. It is the entry point used by
// cmd/droplet's `run` subcommand.
func (v *VM) CallByName(name string, args []Value) (Value, error) {
	idx, ok := v.FuncNameIdx[name]
	if !ok {
		return Nil(), &RuntimeError{Message: fmt.Sprintf("undefined function '%s'", name)}
	}
	for _, a := range args {
		v.push(a)
	}
	if err := v.pushFrame(v.Functions[idx], len(args)); err != nil {
		return Nil(), err
	}
	baseFrameDepth := len(v.Frames)
	if err := v.run(baseFrameDepth); err != nil {
		return Nil(), err
	}
	if v.StackPointer == 0 {
		return Nil(), nil
	}
	return v.pop(), nil
}

func (v *VM) pushFrame(fn *Function, argc int) error {
	if v.MaxStackDepth > 0 && len(v.Frames) >= v.MaxStackDepth {
		return &RuntimeError{Message: fmt.Sprintf("call stack exceeded limit of %d frames", v.MaxStackDepth)}
	}
	if v.Hooks != nil && v.Hooks.OnCall != nil {
		v.Hooks.OnCall(v, fn, argc)
	}
	localsBase := v.StackPointer - argc
	for i := argc; i < int(fn.LocalCount); i++ {
		v.push(Nil())
	}
	v.Frames = append(v.Frames, CallFrame{Fn: fn, IP: 0, LocalsBase: localsBase})
	return nil
}

// run executes the dispatch loop until the frame stack's depth drops below
// untilDepth (so a nested CallByName-style invocation returns control to
// its caller without unwinding frames that predate it).
func (v *VM) run(untilDepth int) error {
	for len(v.Frames) >= untilDepth && len(v.Frames) > 0 {
		if v.MaxSteps > 0 && v.Steps >= v.MaxSteps {
			return &RuntimeError{Message: fmt.Sprintf("step limit of %d exceeded", v.MaxSteps)}
		}
		v.Steps++
		frame := &v.Frames[len(v.Frames)-1]
		v.Alloc.MaybeCollect()
		if v.Breakpoint != nil {
			v.Breakpoint(v, frame)
		}
		if err := v.step(frame); err != nil {
			if v.Hooks != nil && v.Hooks.OnError != nil {
				v.Hooks.OnError(v, frame, err)
			}
			return err
		}
	}
	return nil
}

func (v *VM) readByte(frame *CallFrame) byte {
	b := frame.Fn.Code[frame.IP]
	frame.IP++
	return b
}

func (v *VM) readU32(frame *CallFrame) uint32 {
	val := binary.LittleEndian.Uint32(frame.Fn.Code[frame.IP : frame.IP+4])
	frame.IP += 4
	return val
}

func (v *VM) constant(idx uint32) Value {
	if int(idx) >= len(v.Constants) {
		return Nil()
	}
	return v.Constants[idx]
}

func (v *VM) step(frame *CallFrame) error {
	op := OpCode(v.readByte(frame))
	switch op {
	case OP_PUSH_CONST:
		v.push(v.constant(v.readU32(frame)))
	case OP_POP:
		v.pop()
	case OP_LOAD_LOCAL:
		slot := v.readByte(frame)
		v.push(v.Stack[frame.LocalsBase+int(slot)])
	case OP_STORE_LOCAL:
		slot := v.readByte(frame)
		v.Stack[frame.LocalsBase+int(slot)] = v.pop()
	case OP_DUP:
		v.push(v.peek(0))
	case OP_SWAP:
		a, b := v.pop(), v.pop()
		v.push(a)
		v.push(b)
	case OP_ROT:
		a, b, c := v.pop(), v.pop(), v.pop()
		v.push(a)
		v.push(c)
		v.push(b)

	case OP_ADD:
		return v.binaryArith(op)
	case OP_SUB, OP_MUL, OP_DIV, OP_MOD:
		return v.binaryArith(op)

	case OP_AND:
		b, a := v.pop(), v.pop()
		v.push(BoolVal(a.Truthy() && b.Truthy()))
	case OP_OR:
		b, a := v.pop(), v.pop()
		v.push(BoolVal(a.Truthy() || b.Truthy()))
	case OP_NOT:
		a := v.pop()
		v.push(BoolVal(!a.Truthy()))

	case OP_EQ:
		b, a := v.pop(), v.pop()
		v.push(BoolVal(a.Equal(b)))
	case OP_NEQ:
		b, a := v.pop(), v.pop()
		v.push(BoolVal(!a.Equal(b)))
	case OP_LT, OP_LTE, OP_GT, OP_GTE:
		return v.compare(op)
	case OP_IS_INSTANCE:
		nameIdx := v.readU32(frame)
		obj := v.pop()
		name := v.constant(nameIdx).String()
		v.push(BoolVal(obj.Tag == TagObject && obj.Obj.Kind == ObjInstance && obj.Obj.ClassName == name))

	case OP_JUMP:
		target := v.readU32(frame)
		frame.IP = int(target)
	case OP_JUMP_IF_FALSE:
		target := v.readU32(frame)
		if !v.pop().Truthy() {
			frame.IP = int(target)
		}
	case OP_JUMP_IF_TRUE:
		target := v.readU32(frame)
		if v.pop().Truthy() {
			frame.IP = int(target)
		}

	case OP_CALL:
		fnIdx := v.readU32(frame)
		argc := int(v.readByte(frame))
		if int(fnIdx) >= len(v.Functions) {
			// Undefined function index: defensive nil result (§7.4).
			v.StackPointer -= argc
			v.push(Nil())
			return nil
		}
		if err := v.pushFrame(v.Functions[fnIdx], argc); err != nil {
			return err
		}
	case OP_RETURN:
		retCount := int(v.readByte(frame))
		var returns []Value
		for i := 0; i < retCount; i++ {
			returns = append(returns, v.pop())
		}
		if v.Hooks != nil && v.Hooks.OnReturn != nil {
			v.Hooks.OnReturn(v, frame.Fn, returns)
		}
		v.Frames = v.Frames[:len(v.Frames)-1]
		v.StackPointer = frame.LocalsBase
		for i := retCount - 1; i >= 0; i-- {
			v.push(returns[i])
		}
		if retCount == 0 {
			v.push(Nil())
		}
	case OP_CALL_NATIVE:
		nameIdx := v.readU32(frame)
		argc := int(v.readByte(frame))
		name := v.constant(nameIdx).String()
		if v.Hooks != nil && v.Hooks.OnNativeCall != nil {
			v.Hooks.OnNativeCall(v, name, argc)
		}
		fn, ok := v.Natives[name]
		if !ok {
			v.StackPointer -= argc
			v.push(Nil())
			return nil
		}
		if err := fn(v, argc); err != nil {
			return err
		}
	case OP_CALL_FFI:
		return v.callFFI(frame)

	case OP_NEW_OBJECT:
		nameIdx := v.readU32(frame)
		className := v.constant(nameIdx).String()
		v.push(ObjectVal(v.Alloc.NewInstance(className)))
	case OP_GET_FIELD:
		nameIdx := v.readU32(frame)
		fieldName := v.constant(nameIdx).String()
		obj := v.pop()
		if obj.Tag != TagObject || obj.Obj.Kind != ObjInstance {
			v.push(Nil())
			return nil
		}
		if val, ok := obj.Obj.Fields[fieldName]; ok {
			v.push(val)
		} else {
			v.push(Nil())
		}
	case OP_SET_FIELD:
		nameIdx := v.readU32(frame)
		fieldName := v.constant(nameIdx).String()
		val := v.pop()
		obj := v.pop()
		if obj.Tag == TagObject && obj.Obj.Kind == ObjInstance {
			obj.Obj.Fields[fieldName] = val
		}
		// field write on a non-object is a no-op (§7.4)
	case OP_NEW_ARRAY:
		v.push(ObjectVal(v.Alloc.NewArray(nil)))
	case OP_NEW_MAP:
		v.push(ObjectVal(v.Alloc.NewMap()))
	case OP_ARRAY_GET:
		idx, arr := v.pop(), v.pop()
		if arr.Tag != TagObject || arr.Obj.Kind != ObjArray {
			v.push(Nil())
			return nil
		}
		i := int(idx.I)
		if i < 0 || i >= len(arr.Obj.Elements) {
			v.push(Nil())
			return nil
		}
		v.push(arr.Obj.Elements[i])
	case OP_ARRAY_SET:
		val, idx, arr := v.pop(), v.pop(), v.pop()
		if arr.Tag != TagObject || arr.Obj.Kind != ObjArray {
			return nil
		}
		i := int(idx.I)
		if i < 0 {
			return nil
		}
		for len(arr.Obj.Elements) <= i {
			arr.Obj.Elements = append(arr.Obj.Elements, Nil())
		}
		arr.Obj.Elements[i] = val
	case OP_MAP_GET:
		key, m := v.pop(), v.pop()
		if m.Tag != TagObject || m.Obj.Kind != ObjMap {
			v.push(Nil())
			return nil
		}
		v.push(m.Obj.MapGet(key.String()))
	case OP_MAP_SET:
		val, key, m := v.pop(), v.pop(), v.pop()
		if m.Tag == TagObject && m.Obj.Kind == ObjMap {
			m.Obj.MapSet(key.String(), val)
		}

	case OP_STRING_CONCAT:
		b, a := v.pop(), v.pop()
		v.push(ObjectVal(v.Alloc.NewString(a.String() + b.String())))
	case OP_STRING_LENGTH:
		s := v.pop()
		v.push(IntVal(int64(len(s.String()))))
	case OP_STRING_EQ:
		b, a := v.pop(), v.pop()
		v.push(BoolVal(a.String() == b.String()))
	case OP_STRING_GET_CHAR:
		idx, s := v.pop(), v.pop()
		str := s.String()
		i := int(idx.I)
		if i < 0 || i >= len(str) {
			v.push(Nil())
			return nil
		}
		v.push(ObjectVal(v.Alloc.NewString(string(str[i]))))
	case OP_STRING_SUBSTR:
		length, start, s := v.pop(), v.pop(), v.pop()
		str := s.String()
		lo, hi := int(start.I), int(start.I)+int(length.I)
		if lo < 0 {
			lo = 0
		}
		if hi > len(str) {
			hi = len(str)
		}
		if lo > hi {
			lo = hi
		}
		v.push(ObjectVal(v.Alloc.NewString(str[lo:hi])))

	case OP_LOAD_GLOBAL:
		nameIdx := v.readU32(frame)
		name := v.constant(nameIdx).String()
		if val, ok := v.Globals[name]; ok {
			v.push(val)
		} else {
			v.push(Nil())
		}
	case OP_STORE_GLOBAL:
		nameIdx := v.readU32(frame)
		name := v.constant(nameIdx).String()
		v.Globals[name] = v.pop()

	default:
		return &RuntimeError{Message: fmt.Sprintf("unknown opcode %d at ip %d", op, frame.IP-1)}
	}
	return nil
}

func (v *VM) callFFI(frame *CallFrame) error {
	libIdx := v.readU32(frame)
	symIdx := v.readU32(frame)
	argc := int(v.readByte(frame))
	sigIdx := v.readU32(frame)

	args := make([]Value, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = v.pop()
	}

	if v.FFI == nil {
		v.push(Nil()) // §7.4: absent dispatcher pushes nil and continues
		return nil
	}
	libName := v.constant(libIdx).String()
	symName := v.constant(symIdx).String()
	sig := v.constant(sigIdx).String()
	result, err := v.FFI.Call(libName, symName, sig, args)
	if err != nil {
		v.push(Nil())
		return nil
	}
	v.push(result)
	return nil
}

func (v *VM) binaryArith(op OpCode) error {
	b, a := v.pop(), v.pop()

	// String concatenation is routed through OP_STRING_CONCAT by the code
	// generator when both static operand types are string; ADD on two
	// runtime string objects reaching here (e.g. via a native call) is
	// treated the same way defensively.
	if op == OP_ADD && a.Tag == TagObject && a.Obj.Kind == ObjString && b.Tag == TagObject && b.Obj.Kind == ObjString {
		v.push(ObjectVal(v.Alloc.NewString(a.Obj.Str + b.Obj.Str)))
		return nil
	}

	if a.Tag == TagInt64 && b.Tag == TagInt64 && op != OP_DIV {
		var r int64
		switch op {
		case OP_ADD:
			r = a.I + b.I
		case OP_SUB:
			r = a.I - b.I
		case OP_MUL:
			r = a.I * b.I
		case OP_MOD:
			if b.I == 0 {
				r = 0 // implementation-defined per §7.4; must not crash
			} else {
				r = a.I % b.I
			}
		}
		v.push(IntVal(r))
		return nil
	}

	af, bf := numericValue(a), numericValue(b)
	var r float64
	switch op {
	case OP_ADD:
		r = af + bf
	case OP_SUB:
		r = af - bf
	case OP_MUL:
		r = af * bf
	case OP_DIV:
		r = af / bf // IEEE-754 inf/NaN on divide-by-zero, per §7.4
	case OP_MOD:
		r = math.Mod(af, bf)
	}
	v.push(DoubleVal(r))
	return nil
}

func (v *VM) compare(op OpCode) error {
	b, a := v.pop(), v.pop()

	if a.Tag == TagObject && a.Obj.Kind == ObjString && b.Tag == TagObject && b.Obj.Kind == ObjString {
		var result bool
		switch op {
		case OP_LT:
			result = a.Obj.Str < b.Obj.Str
		case OP_LTE:
			result = a.Obj.Str <= b.Obj.Str
		case OP_GT:
			result = a.Obj.Str > b.Obj.Str
		case OP_GTE:
			result = a.Obj.Str >= b.Obj.Str
		}
		v.push(BoolVal(result))
		return nil
	}

	af, bf := numericValue(a), numericValue(b)
	var result bool
	switch op {
	case OP_LT:
		result = af < bf
	case OP_LTE:
		result = af <= bf
	case OP_GT:
		result = af > bf
	case OP_GTE:
		result = af >= bf
	}
	v.push(BoolVal(result))
	return nil
}
