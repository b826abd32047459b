package check

import "droplet/dptype"

// seedBuiltins implements §4.4 phase 1: register the intrinsic type names
// and the intrinsic function signatures into the global scope.
func seedBuiltins(global *dptype.Scope) {
	// Intrinsic type names, registered as symbols so `x: list` / `x: dict`
	// / `x: str` resolve; their Kind carries the actual primitive, since
	// list/dict/str are not user classes.
	global.Define(&dptype.Symbol{Name: "list", Kind: dptype.SymClass, Type: dptype.ListOf(dptype.Unknown())})
	global.Define(&dptype.Symbol{Name: "dict", Kind: dptype.SymClass, Type: dptype.DictOf(dptype.Unknown(), dptype.Unknown())})
	global.Define(&dptype.Symbol{Name: "str", Kind: dptype.SymClass, Type: dptype.Str()})

	any := dptype.Unknown()
	define := func(name string, params []*dptype.Type, ret *dptype.Type) {
		global.Define(&dptype.Symbol{Name: name, Kind: dptype.SymFunction, Type: dptype.FuncOf(params, ret)})
	}

	// print/println accept any number of arguments of any type; arity and
	// element typing are not checked here (polymorphic, per §4.4 phase 1).
	define("print", nil, dptype.Void())
	define("println", nil, dptype.Void())
	define("len", []*dptype.Type{any}, dptype.Int())
	define("str", []*dptype.Type{any}, dptype.Str())
	define("int", []*dptype.Type{any}, dptype.Int())
	define("float", []*dptype.Type{any}, dptype.Float())
	define("input", nil, dptype.Str())
	define("exit", []*dptype.Type{dptype.Int()}, dptype.Void())
}
