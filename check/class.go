package check

import (
	"droplet/ast"
	"droplet/dptype"
)

// collectClasses implements §4.4 phase 3: populate the class table with
// every declared class's fields and methods, resolving field types eagerly
// (substituting the class's own type parameters) and rejecting duplicate
// field names within a single class. Field-slot computation and cycle/
// sealed-parent checks are phase 4's job (AnalyzeHierarchy).
func (c *Checker) collectClasses(prog *ast.Program) error {
	for _, cls := range prog.Classes {
		if _, exists := c.classes.Lookup(cls.Name); exists {
			return errf("class '%s' is already declared", cls.Name)
		}
		ci := dptype.NewClassInfo(cls.Name)
		ci.ParentName = cls.ParentName
		ci.TypeParams = cls.TypeParams
		ci.Sealed = cls.Sealed
		ci.Constructor = cls.Constructor

		for _, f := range cls.Fields {
			if _, dup := ci.Fields[f.Name]; dup {
				return errf("duplicate field '%s' in class '%s'", f.Name, cls.Name)
			}
			ft := resolveFieldType(f.Type, ci.TypeParams)
			ft.Visibility = visibilityOf(f.Visibility)
			ci.Fields[f.Name] = ft
			fcopy := f
			ci.FieldDecls[f.Name] = &fcopy
			ci.FieldOrder = append(ci.FieldOrder, f.Name)
		}
		for _, m := range cls.Methods {
			if _, dup := ci.Methods[m.Name]; dup {
				return errf("duplicate method '%s' in class '%s'", m.Name, cls.Name)
			}
			ci.Methods[m.Name] = m
		}
		c.classes.Define(ci)
	}
	return nil
}

func visibilityOf(v ast.Visibility) dptype.Visibility {
	switch v {
	case ast.VisPrivate:
		return dptype.VisPrivate
	case ast.VisProtected:
		return dptype.VisProtected
	default:
		return dptype.VisPublic
	}
}
