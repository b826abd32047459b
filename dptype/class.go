package dptype

import (
	"fmt"

	"droplet/ast"
)

// FieldSlot is one entry of a class's field-slot table: stable indexing
// with parent slots first, then the class's own fields in declaration
// order (§3 ClassInfo, §4.4 hierarchy analysis).
type FieldSlot struct {
	Name string
	Type *Type
	Decl *ast.Field
}

// ClassInfo is the type checker's registered view of one class
// declaration.
type ClassInfo struct {
	Name       string
	ParentName string // empty if no parent
	TypeParams []string
	Sealed     bool

	Fields      map[string]*Type
	FieldDecls  map[string]*ast.Field
	FieldOrder  []string // declaration order, since Fields is a map
	Methods     map[string]*ast.FunctionDecl
	Constructor *ast.FunctionDecl

	FieldSlots []FieldSlot // parent slots first, then own; populated by AnalyzeHierarchy
}

func NewClassInfo(name string) *ClassInfo {
	return &ClassInfo{
		Name:       name,
		Fields:     make(map[string]*Type),
		FieldDecls: make(map[string]*ast.Field),
		Methods:    make(map[string]*ast.FunctionDecl),
	}
}

// ClassTable is the global registry of classes, keyed by name.
type ClassTable struct {
	classes map[string]*ClassInfo
}

func NewClassTable() *ClassTable {
	return &ClassTable{classes: make(map[string]*ClassInfo)}
}

func (t *ClassTable) Define(ci *ClassInfo) { t.classes[ci.Name] = ci }

func (t *ClassTable) Lookup(name string) (*ClassInfo, bool) {
	ci, ok := t.classes[name]
	return ci, ok
}

// IsSubclassOf walks the parent chain of className looking for ancestorName
// (a class is considered a subclass of itself).
func (t *ClassTable) IsSubclassOf(className, ancestorName string) bool {
	seen := make(map[string]bool)
	for className != "" {
		if className == ancestorName {
			return true
		}
		if seen[className] {
			return false // cycle guard; AnalyzeHierarchy should have rejected this already
		}
		seen[className] = true
		ci, ok := t.classes[className]
		if !ok {
			return false
		}
		className = ci.ParentName
	}
	return false
}

// AnalyzeHierarchy implements §4.4 phase 4: cycle detection, sealed-parent
// rejection, and field-slot table computation (parent slots first, reject
// shadowing).
func (t *ClassTable) AnalyzeHierarchy() error {
	for _, ci := range t.classes {
		if err := t.checkAcyclic(ci); err != nil {
			return err
		}
	}
	for _, ci := range t.classes {
		if ci.ParentName != "" {
			parent, ok := t.classes[ci.ParentName]
			if !ok {
				return fmt.Errorf("class '%s' inherits from unknown class '%s'", ci.Name, ci.ParentName)
			}
			if parent.Sealed {
				return fmt.Errorf("class '%s' cannot inherit from sealed class '%s'", ci.Name, ci.ParentName)
			}
		}
	}
	for _, ci := range t.classes {
		if err := t.computeFieldSlots(ci); err != nil {
			return err
		}
	}
	return nil
}

func (t *ClassTable) checkAcyclic(ci *ClassInfo) error {
	seen := map[string]bool{ci.Name: true}
	cur := ci.ParentName
	for cur != "" {
		if seen[cur] {
			return fmt.Errorf("inheritance cycle detected involving class '%s'", ci.Name)
		}
		seen[cur] = true
		parent, ok := t.classes[cur]
		if !ok {
			return nil // unknown-parent error is reported by the sealed-parent pass
		}
		cur = parent.ParentName
	}
	return nil
}

func (t *ClassTable) computeFieldSlots(ci *ClassInfo) error {
	if ci.FieldSlots != nil {
		return nil // memoized; parent may have been computed already via a sibling visit
	}
	var slots []FieldSlot
	if ci.ParentName != "" {
		parent := t.classes[ci.ParentName]
		if err := t.computeFieldSlots(parent); err != nil {
			return err
		}
		slots = append(slots, parent.FieldSlots...)
	}
	seen := make(map[string]bool)
	for _, s := range slots {
		seen[s.Name] = true
	}
	for _, name := range ci.FieldOrder {
		if seen[name] {
			return fmt.Errorf("field '%s' shadows parent field in class '%s'", name, ci.Name)
		}
		slots = append(slots, FieldSlot{Name: name, Type: ci.Fields[name], Decl: ci.FieldDecls[name]})
	}
	ci.FieldSlots = slots
	return nil
}
