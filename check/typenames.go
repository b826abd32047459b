package check

import "droplet/dptype"

// resolveFieldType maps a parsed type-name string to a static Type,
// substituting typeParams occurrences with GENERIC (§4.4's "type
// parameters appear as OBJECT kind tagged GENERIC" and are substituted
// "when resolving field and method signatures at their use site"). Class
// names that are not (yet) registered resolve to an OBJECT type anyway;
// AnalyzeHierarchy and body-checking are what surface an unknown-class
// error, not this lookup.
func resolveFieldType(typeName string, typeParams []string) *dptype.Type {
	for _, p := range typeParams {
		if p == typeName {
			return dptype.GenericOf(p)
		}
	}
	switch typeName {
	case "", "void":
		return dptype.Void()
	case "int":
		return dptype.Int()
	case "float":
		return dptype.Float()
	case "bool":
		return dptype.Bool()
	case "str":
		return dptype.Str()
	case "null":
		return dptype.Null()
	case "list":
		return dptype.ListOf(dptype.Unknown())
	case "dict":
		return dptype.DictOf(dptype.Unknown(), dptype.Unknown())
	default:
		return dptype.ObjectOf(typeName)
	}
}
