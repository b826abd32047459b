// Package check implements the five-phase type checker (§4.4): it seeds
// built-ins, splices in imported exports, collects class declarations,
// analyzes the class hierarchy, and checks every function/method/
// constructor body, annotating the AST as it goes (operator-overload
// resolution, fallible-return narrowing) for the code generator to read
// back.
package check

import (
	"fmt"

	"droplet/ast"
	"droplet/dptype"
	"droplet/modloader"
)

// TypeError is raised for any semantic violation; message wording follows
// §4.4's examples closely enough for tooling to grep on them.
type TypeError struct {
	Message string
}

func (e *TypeError) Error() string { return e.Message }

// Result is what a successful Check leaves behind for the code generator.
type Result struct {
	Classes *dptype.ClassTable

	// ExprTypes records the computed static type of every expression node
	// the checker visited, keyed by node identity. The code generator
	// consults it to pick, e.g., STRING_CONCAT vs ADD, or int-fast-path vs
	// float-promoted arithmetic.
	ExprTypes map[ast.Expr]*dptype.Type
}

// Checker runs the five phases over one compilation unit. A Checker may be
// reused across modules in a single compilation so that the global scope
// and class table accumulate imported symbols.
type Checker struct {
	loader *modloader.Loader

	classes *dptype.ClassTable
	global  *dptype.Scope

	exprTypes map[ast.Expr]*dptype.Type

	currentClass *dptype.ClassInfo // class whose body is being checked, nil at top level

	currentReturnType *dptype.Type // declared return type of the function/method body being checked
	currentReturnFail bool         // true if that return type was written T!
	loopDepth         int
}

// NewChecker creates a Checker with the built-ins already seeded (phase 1).
// loader may be nil if the program has no imports.
func NewChecker(loader *modloader.Loader) *Checker {
	c := &Checker{
		loader:    loader,
		classes:   dptype.NewClassTable(),
		global:    dptype.NewScope(nil),
		exprTypes: make(map[ast.Expr]*dptype.Type),
	}
	seedBuiltins(c.global)
	// Error is always available as the sentinel class backing `is Error`
	// narrowing (§4.4), whether or not the program declares it itself.
	c.classes.Define(dptype.NewClassInfo("Error"))
	return c
}

// Check runs phases 2 through 5 over prog and returns the annotated result.
func (c *Checker) Check(prog *ast.Program) (*Result, error) {
	if err := c.processImports(prog); err != nil {
		return nil, err
	}
	if err := c.collectClasses(prog); err != nil {
		return nil, err
	}
	if err := c.classes.AnalyzeHierarchy(); err != nil {
		return nil, &TypeError{Message: err.Error()}
	}
	if err := c.checkBodies(prog); err != nil {
		return nil, err
	}
	return &Result{Classes: c.classes, ExprTypes: c.exprTypes}, nil
}

func errf(format string, args ...interface{}) error {
	return &TypeError{Message: fmt.Sprintf(format, args...)}
}
