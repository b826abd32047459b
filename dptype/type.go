// Package dptype defines the static type lattice, class table, and scope
// chain consumed by the type checker and code generator.
package dptype

import "fmt"

// Kind tags the variant of a Type.
type Kind int

const (
	INT Kind = iota
	FLOAT
	BOOL
	STRING
	NULL
	VOID
	LIST
	DICT
	OBJECT
	FUNCTION
	GENERIC
	UNKNOWN
)

func (k Kind) String() string {
	switch k {
	case INT:
		return "int"
	case FLOAT:
		return "float"
	case BOOL:
		return "bool"
	case STRING:
		return "str"
	case NULL:
		return "null"
	case VOID:
		return "void"
	case LIST:
		return "list"
	case DICT:
		return "dict"
	case OBJECT:
		return "object"
	case FUNCTION:
		return "function"
	case GENERIC:
		return "generic"
	default:
		return "unknown"
	}
}

// Visibility mirrors ast.Visibility for field/method type entries, kept as
// its own type so dptype has no dependency on ast.
type Visibility int

const (
	VisPublic Visibility = iota
	VisPrivate
	VisProtected
)

// Type is the tagged union over Droplet's static types. Two orthogonal
// flags (CanFail, IsChecked) ride on top of any Type to encode the
// fallible-return discipline described in §4.4: a value typed T! is either
// an ordinary T or the sentinel Error instance, and must be narrowed by an
// `is Error` test before use.
type Type struct {
	Kind Kind

	// LIST
	Elem *Type
	// DICT
	Key *Type
	Val *Type
	// OBJECT
	ClassName string
	// FUNCTION
	Params []*Type
	Return *Type
	// GENERIC
	GenericName string

	CanFail   bool
	IsChecked bool

	Visibility Visibility
}

func Int() *Type    { return &Type{Kind: INT} }
func Float() *Type  { return &Type{Kind: FLOAT} }
func Bool() *Type   { return &Type{Kind: BOOL} }
func Str() *Type    { return &Type{Kind: STRING} }
func Null() *Type   { return &Type{Kind: NULL} }
func Void() *Type   { return &Type{Kind: VOID} }
func Unknown() *Type { return &Type{Kind: UNKNOWN} }

func ListOf(elem *Type) *Type        { return &Type{Kind: LIST, Elem: elem} }
func DictOf(key, val *Type) *Type    { return &Type{Kind: DICT, Key: key, Val: val} }
func ObjectOf(className string) *Type { return &Type{Kind: OBJECT, ClassName: className} }
func FuncOf(params []*Type, ret *Type) *Type {
	return &Type{Kind: FUNCTION, Params: params, Return: ret}
}
func GenericOf(name string) *Type { return &Type{Kind: OBJECT, ClassName: name, GenericName: name} }

// Fallible returns a copy of t tagged CanFail, matching a `T!` declaration.
func Fallible(t *Type) *Type {
	cp := *t
	cp.CanFail = true
	return &cp
}

// Narrowed returns a copy of t with CanFail cleared and IsChecked set,
// representing the non-error side of an `is Error` narrowing.
func Narrowed(t *Type) *Type {
	cp := *t
	cp.CanFail = false
	cp.IsChecked = true
	return &cp
}

func (t *Type) String() string {
	if t == nil {
		return "<nil type>"
	}
	suffix := ""
	if t.CanFail {
		suffix = "!"
	}
	switch t.Kind {
	case LIST:
		return fmt.Sprintf("list<%s>%s", t.Elem, suffix)
	case DICT:
		return fmt.Sprintf("dict<%s,%s>%s", t.Key, t.Val, suffix)
	case OBJECT:
		return t.ClassName + suffix
	case FUNCTION:
		return fmt.Sprintf("fn(...)->%s%s", t.Return, suffix)
	default:
		return t.Kind.String() + suffix
	}
}

// Equal reports structural equality, ignoring CanFail/IsChecked/Visibility
// (those are discipline bookkeeping, not part of the type's identity).
func (t *Type) Equal(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case LIST:
		return t.Elem.Equal(other.Elem)
	case DICT:
		return t.Key.Equal(other.Key) && t.Val.Equal(other.Val)
	case OBJECT:
		return t.ClassName == other.ClassName
	case FUNCTION:
		if len(t.Params) != len(other.Params) || !t.Return.Equal(other.Return) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(other.Params[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// IsReference reports whether null is assignable to t (object/list/dict).
func (t *Type) IsReference() bool {
	switch t.Kind {
	case OBJECT, LIST, DICT:
		return true
	default:
		return false
	}
}

// AssignableTo implements the §4.4 assignability contract: identical
// types, null-to-reference, int-to-float widening, and subclass-to-
// ancestor (the latter requires a ClassTable, so it is handled by the
// caller in check/ which has access to one; this method covers the
// class-table-independent rules).
func (from *Type) AssignableTo(to *Type) bool {
	if from.Equal(to) {
		return true
	}
	if from.Kind == NULL && to.IsReference() {
		return true
	}
	if from.Kind == INT && to.Kind == FLOAT {
		return true
	}
	return false
}
