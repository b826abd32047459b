package vm

// OpCode identifies one VM instruction. Opcodes are byte-valued and
// grouped by section below purely for diagnostic clarity; the numeric
// values are not meaningful individually.
type OpCode byte

// Stack operations
const (
	OP_PUSH_CONST OpCode = iota // u32 index; push constantPool[index]
	OP_POP                      // pop
	OP_LOAD_LOCAL               // u8 slot; push frame.localsBase+slot
	OP_STORE_LOCAL              // u8 slot; write top to slot, pop
	OP_DUP                      // duplicate top
	OP_SWAP                     // swap top two
	OP_ROT                      // rotate top three
)

// Arithmetic (numeric, with int/float promotion per §4.4)
const (
	OP_ADD OpCode = OP_ROT + 1 + iota
	OP_SUB
	OP_MUL
	OP_DIV
	OP_MOD
)

// Logic (truthy semantics)
const (
	OP_AND OpCode = OP_MOD + 1 + iota
	OP_OR
	OP_NOT
)

// Comparison
const (
	OP_EQ OpCode = OP_NOT + 1 + iota
	OP_NEQ
	OP_LT
	OP_LTE
	OP_GT
	OP_GTE
	OP_IS_INSTANCE // u32 classNameIdx; pop object, push bool of exact class-name match
)

// Control flow
const (
	OP_JUMP OpCode = OP_IS_INSTANCE + 1 + iota // u32 target; unconditional
	OP_JUMP_IF_FALSE                           // u32 target; pop, jump if falsy
	OP_JUMP_IF_TRUE                            // u32 target; pop, jump if truthy
)

// Calls
const (
	OP_CALL OpCode = OP_JUMP_IF_TRUE + 1 + iota // u32 fnIdx, u8 argc
	OP_RETURN                                   // u8 retCount
	OP_CALL_NATIVE                              // u32 nameIdx, u8 argc
	OP_CALL_FFI                                 // u32 libIdx, u32 symIdx, u8 argc, u32 sigIdx
)

// Objects
const (
	OP_NEW_OBJECT OpCode = OP_CALL_FFI + 1 + iota // u32 classNameIdx
	OP_GET_FIELD                                  // u32 fieldNameIdx
	OP_SET_FIELD                                  // u32 fieldNameIdx
	OP_NEW_ARRAY                                  // push new empty Array
	OP_NEW_MAP                                    // push new empty Map
	OP_ARRAY_GET                                  // pop idx, arr; push arr[idx] or nil if OOB
	OP_ARRAY_SET                                  // pop val, idx, arr; auto-grow with nils
	OP_MAP_GET                                    // pop key, map; key coerced to string
	OP_MAP_SET                                    // pop val, key, map
)

// Strings
const (
	OP_STRING_CONCAT OpCode = OP_MAP_SET + 1 + iota
	OP_STRING_LENGTH
	OP_STRING_EQ
	OP_STRING_GET_CHAR
	OP_STRING_SUBSTR
)

// Globals
const (
	OP_LOAD_GLOBAL OpCode = OP_STRING_SUBSTR + 1 + iota // u32 nameIdx
	OP_STORE_GLOBAL                                     // u32 nameIdx
)

var opcodeNames = map[OpCode]string{
	OP_PUSH_CONST: "PUSH_CONST", OP_POP: "POP", OP_LOAD_LOCAL: "LOAD_LOCAL",
	OP_STORE_LOCAL: "STORE_LOCAL", OP_DUP: "DUP", OP_SWAP: "SWAP", OP_ROT: "ROT",
	OP_ADD: "ADD", OP_SUB: "SUB", OP_MUL: "MUL", OP_DIV: "DIV", OP_MOD: "MOD",
	OP_AND: "AND", OP_OR: "OR", OP_NOT: "NOT",
	OP_EQ: "EQ", OP_NEQ: "NEQ", OP_LT: "LT", OP_LTE: "LTE", OP_GT: "GT", OP_GTE: "GTE",
	OP_IS_INSTANCE: "IS_INSTANCE",
	OP_JUMP: "JUMP", OP_JUMP_IF_FALSE: "JUMP_IF_FALSE", OP_JUMP_IF_TRUE: "JUMP_IF_TRUE",
	OP_CALL: "CALL", OP_RETURN: "RETURN", OP_CALL_NATIVE: "CALL_NATIVE", OP_CALL_FFI: "CALL_FFI",
	OP_NEW_OBJECT: "NEW_OBJECT", OP_GET_FIELD: "GET_FIELD", OP_SET_FIELD: "SET_FIELD",
	OP_NEW_ARRAY: "NEW_ARRAY", OP_NEW_MAP: "NEW_MAP",
	OP_ARRAY_GET: "ARRAY_GET", OP_ARRAY_SET: "ARRAY_SET", OP_MAP_GET: "MAP_GET", OP_MAP_SET: "MAP_SET",
	OP_STRING_CONCAT: "STRING_CONCAT", OP_STRING_LENGTH: "STRING_LENGTH", OP_STRING_EQ: "STRING_EQ",
	OP_STRING_GET_CHAR: "STRING_GET_CHAR", OP_STRING_SUBSTR: "STRING_SUBSTR",
	OP_LOAD_GLOBAL: "LOAD_GLOBAL", OP_STORE_GLOBAL: "STORE_GLOBAL",
}

func (op OpCode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN_OP"
}
