package vm

import "strings"

// ObjKind tags the variant of a heap Object (§3 Heap Object).
type ObjKind uint8

const (
	ObjString ObjKind = iota
	ObjArray
	ObjMap
	ObjInstance
	ObjFunctionHandle
	ObjBoundMethod
)

// Object is a GC-managed heap value. Every field set is valid only for the
// corresponding Kind; this mirrors the re-architecture guidance in §9
// ("heap objects as tagged enum") rather than the teacher's virtual-base
// style.
type Object struct {
	Kind ObjKind
	mark bool

	Str string // ObjString

	Elements []Value // ObjArray

	MapKeys   []string        // ObjMap, insertion order is irrelevant but kept for deterministic String()
	MapValues map[string]Value // ObjMap

	ClassName string           // ObjInstance
	Fields    map[string]Value // ObjInstance

	FuncIndex uint32 // ObjFunctionHandle, ObjBoundMethod

	BoundSelf Value // ObjBoundMethod
}

func NewStringObject(s string) *Object {
	return &Object{Kind: ObjString, Str: s}
}

func NewArrayObject(elems []Value) *Object {
	return &Object{Kind: ObjArray, Elements: elems}
}

func NewMapObject() *Object {
	return &Object{Kind: ObjMap, MapValues: make(map[string]Value)}
}

func NewInstanceObject(className string) *Object {
	return &Object{Kind: ObjInstance, ClassName: className, Fields: make(map[string]Value)}
}

func NewFunctionHandleObject(fnIdx uint32) *Object {
	return &Object{Kind: ObjFunctionHandle, FuncIndex: fnIdx}
}

func NewBoundMethodObject(self Value, fnIdx uint32) *Object {
	return &Object{Kind: ObjBoundMethod, BoundSelf: self, FuncIndex: fnIdx}
}

// MapSet inserts or updates key, recording insertion order for String().
func (o *Object) MapSet(key string, v Value) {
	if _, exists := o.MapValues[key]; !exists {
		o.MapKeys = append(o.MapKeys, key)
	}
	o.MapValues[key] = v
}

// MapGet returns the value for key, or Nil() if absent.
func (o *Object) MapGet(key string) Value {
	if v, ok := o.MapValues[key]; ok {
		return v
	}
	return Nil()
}

// String renders o per the §6.3 stringification rules. Instance formatting
// ("<object:ClassName>") is grounded on the source's
// ObjInstance::get_representor (see DESIGN.md).
func (o *Object) String() string {
	switch o.Kind {
	case ObjString:
		return o.Str
	case ObjArray:
		parts := make([]string, len(o.Elements))
		for i, e := range o.Elements {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ObjMap:
		parts := make([]string, 0, len(o.MapKeys))
		for _, k := range o.MapKeys {
			parts = append(parts, k+": "+o.MapValues[k].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ObjInstance:
		return "<object:" + o.ClassName + ">"
	case ObjFunctionHandle, ObjBoundMethod:
		return "<function>"
	default:
		return "<object>"
	}
}

// Traverse invokes mark on every Value directly reachable from o (its
// children), per §4.9's mark-phase traversal contract. Strings have no
// children.
func (o *Object) Traverse(mark func(Value)) {
	switch o.Kind {
	case ObjArray:
		for _, e := range o.Elements {
			mark(e)
		}
	case ObjMap:
		for _, v := range o.MapValues {
			mark(v)
		}
	case ObjInstance:
		for _, v := range o.Fields {
			mark(v)
		}
	case ObjBoundMethod:
		mark(o.BoundSelf)
	}
}
