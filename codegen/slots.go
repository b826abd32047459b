package codegen

import "droplet/ast"

// localScope is the compile-time name→slot chain used to resolve
// identifiers during emission (§4.5: exiting a block pops its names off
// this chain but never emits a runtime pop and never reclaims the slot
// number itself).
type localScope struct {
	parent *localScope
	slots  map[string]int
}

func newLocalScope(parent *localScope) *localScope {
	return &localScope{parent: parent, slots: make(map[string]int)}
}

func (s *localScope) define(name string, slot int) { s.slots[name] = slot }

func (s *localScope) resolve(name string) (int, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if slot, ok := sc.slots[name]; ok {
			return slot, true
		}
	}
	return 0, false
}

// countLocals computes how many local slots a function body needs beyond
// startSlot (self, if any, plus parameters), by structurally walking every
// statement unconditionally — both branches of an if, every loop body —
// exactly as emission later will, so the two counts always agree. Slot
// numbers are never reused, so this is an exact count, not an estimate.
func countLocals(body *ast.BlockStmt, startSlot int) int {
	n := startSlot
	walkStmtCount(body, &n)
	return n
}

func walkStmtCount(s ast.Stmt, n *int) {
	switch st := s.(type) {
	case *ast.BlockStmt:
		for _, sub := range st.Statements {
			walkStmtCount(sub, n)
		}
	case *ast.VarDeclStmt:
		*n++
		if st.Initializer != nil {
			walkExprCount(st.Initializer, n)
		}
	case *ast.IfStmt:
		walkExprCount(st.Condition, n)
		walkStmtCount(st.Then, n)
		if st.Else != nil {
			walkStmtCount(st.Else, n)
		}
	case *ast.WhileStmt:
		walkExprCount(st.Condition, n)
		walkStmtCount(st.Body, n)
	case *ast.ForInStmt:
		walkExprCount(st.Iterable, n)
		// hidden iterable-holder, hidden length, hidden index, and the
		// bound loop variable.
		*n += 4
		walkStmtCount(st.Body, n)
	case *ast.LoopStmt:
		walkStmtCount(st.Body, n)
	case *ast.ReturnStmt:
		if st.Value != nil {
			walkExprCount(st.Value, n)
		}
	case *ast.ExprStmt:
		walkExprCount(st.Expr, n)
	}
}

func walkExprCount(e ast.Expr, n *int) {
	switch ex := e.(type) {
	case *ast.BinaryExpr:
		walkExprCount(ex.Left, n)
		walkExprCount(ex.Right, n)
	case *ast.UnaryExpr:
		walkExprCount(ex.Operand, n)
	case *ast.AssignExpr:
		*n += assignTempCount(ex.Target)
		walkAssignTargetCount(ex.Target, n)
		walkExprCount(ex.Value, n)
	case *ast.CompoundAssignExpr:
		*n += assignTempCount(ex.Target)
		walkAssignTargetCount(ex.Target, n)
		walkExprCount(ex.Value, n)
	case *ast.CallExpr:
		walkExprCount(ex.Callee, n)
		for _, a := range ex.Args {
			walkExprCount(a, n)
		}
	case *ast.FieldAccessExpr:
		walkExprCount(ex.Object, n)
	case *ast.IndexExpr:
		walkExprCount(ex.Object, n)
		walkExprCount(ex.Index, n)
	case *ast.NewObjectExpr:
		for _, a := range ex.Args {
			walkExprCount(a, n)
		}
	case *ast.ListLiteralExpr:
		for _, el := range ex.Elements {
			walkExprCount(el, n)
		}
	case *ast.DictLiteralExpr:
		for _, ent := range ex.Entries {
			walkExprCount(ent.Key, n)
			walkExprCount(ent.Value, n)
		}
	case *ast.CastExpr:
		walkExprCount(ex.Value, n)
	case *ast.TypeTestExpr:
		walkExprCount(ex.Value, n)
	}
}

// walkAssignTargetCount walks the sub-expressions of an assignment target
// that themselves need evaluating (the receiver of a field or index
// target); a bare identifier target has nothing further to walk.
func walkAssignTargetCount(target ast.Expr, n *int) {
	switch t := target.(type) {
	case *ast.FieldAccessExpr:
		walkExprCount(t.Object, n)
	case *ast.IndexExpr:
		walkExprCount(t.Object, n)
		walkExprCount(t.Index, n)
	}
}

// assignTempCount returns how many hidden temp slots an assignment needs:
// an identifier target needs one (the staged value, reloaded as the
// assignment expression's result); a field target needs two (the receiver
// plus the staged value, since OP_SET_FIELD pops both in one instruction
// and the receiver must still be live when the staged value is reloaded);
// an index target needs three (the receiver, the index, and the staged
// value), since OP_ARRAY_SET/OP_MAP_SET pop all three operands at once.
func assignTempCount(target ast.Expr) int {
	switch target.(type) {
	case *ast.IndexExpr:
		return 3
	case *ast.FieldAccessExpr:
		return 2
	default:
		return 1
	}
}
