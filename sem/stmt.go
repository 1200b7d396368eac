package sem

import (
	"github.com/gogpu/wgslinterp/eval"
	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

// blockStmts resolves the statements of a block in the current scope.
func (r *resolver) blockStmts(id wgsl.StmtID) {
	b, ok := r.m.Stmt(id).(*wgsl.BlockStmt)
	if !ok {
		r.stmt(id)
		return
	}
	for _, s := range b.Stmts {
		r.stmt(s)
	}
}

// scopedBlock resolves a block in a new scope.
func (r *resolver) scopedBlock(id wgsl.StmtID) {
	r.pushScope()
	r.blockStmts(id)
	r.popScope()
}

func (r *resolver) stmt(id wgsl.StmtID) {
	switch s := r.m.Stmt(id).(type) {
	case *wgsl.BlockStmt:
		r.scopedBlock(id)
	case *wgsl.DeclStmt:
		r.localDecl(s.Var)
	case *wgsl.AssignStmt:
		r.assign(s)
	case *wgsl.IncDecStmt:
		r.incDec(s)
	case *wgsl.CallStmt:
		if _, ok := r.m.Expr(s.Call).(*wgsl.Call); !ok {
			r.errorf(s.Span, "expression statement must be a function call")
			return
		}
		r.expr(s.Call)
	case *wgsl.IfStmt:
		r.condition(s.Cond, "if")
		r.scopedBlock(s.Body)
		if s.Else != wgsl.NoStmt {
			r.stmt(s.Else)
		}
	case *wgsl.ForStmt:
		r.pushScope()
		if s.Init != wgsl.NoStmt {
			r.stmt(s.Init)
		}
		if s.Cond != wgsl.NoExpr {
			r.condition(s.Cond, "for")
		}
		if s.Update != wgsl.NoStmt {
			r.stmt(s.Update)
		}
		r.scopedBlock(s.Body)
		r.popScope()
	case *wgsl.WhileStmt:
		r.condition(s.Cond, "while")
		r.scopedBlock(s.Body)
	case *wgsl.LoopStmt:
		// The continuing block sees the declarations of the loop body.
		r.pushScope()
		r.blockStmts(s.Body)
		if s.Continuing != wgsl.NoStmt {
			r.scopedBlock(s.Continuing)
		}
		r.popScope()
	case *wgsl.BreakIfStmt:
		r.condition(s.Cond, "break if")
	case *wgsl.SwitchStmt:
		r.switchStmt(s)
	case *wgsl.ReturnStmt:
		r.returnStmt(s)
	case *wgsl.DiscardStmt:
		r.errorf(s.Span, "discard is only valid in fragment shaders")
	case *wgsl.ConstAssertStmt:
		r.constAssert(s.Cond, s.Span)
	case *wgsl.BreakStmt, *wgsl.ContinueStmt:
	}
}

func (r *resolver) condition(id wgsl.ExprID, what string) {
	t := r.value(id)
	if t == nil {
		return
	}
	if t != types.Type(types.Bool) {
		r.errorf(r.m.ExprSpan(id), "%s condition must be bool, not '%s'", what, t)
	}
}

func (r *resolver) localDecl(d *wgsl.Variable) {
	v := &Variable{Name: d.Name, Decl: d, Init: d.Init, Span: d.Span, Index: -1}
	r.p.locals[d] = v

	var declared types.Type
	if d.Type != wgsl.NoExpr {
		if declared = r.resolveType(d.Type); declared == nil {
			r.declare(v)
			return
		}
	}

	switch d.Kind {
	case wgsl.VarConst:
		v.Kind = VarConst
		v.Type, v.Value = r.constInit(d, declared)
	case wgsl.VarOverride:
		v.Kind = VarOverride
		r.errorf(d.Span, "override declarations are only allowed at module scope")
	case wgsl.VarLet:
		v.Kind = VarLet
		if d.Init == wgsl.NoExpr {
			r.errorf(d.Span, "let declaration '%s' requires an initializer", d.Name)
			break
		}
		v.Type = r.initializer(d.Init, declared)
		if v.Type != nil && !types.IsConstructible(v.Type) {
			if _, ptr := v.Type.(*types.Pointer); !ptr {
				r.errorf(d.Span, "let '%s' cannot hold a value of type '%s'", d.Name, v.Type)
			}
		}
	case wgsl.VarVar:
		v.Kind = VarVar
		v.Space, v.Access = types.SpaceFunction, types.AccessReadWrite
		if d.Space != "" && d.Space != "function" {
			r.errorf(d.Span, "function-scope var must be in the function address space")
		}
		if d.Init == wgsl.NoExpr {
			if declared == nil {
				r.errorf(d.Span, "var '%s' requires a type or an initializer", d.Name)
			}
			v.Type = declared
		} else {
			v.Type = r.initializer(d.Init, declared)
		}
		if v.Type != nil && !types.IsConstructible(v.Type) {
			r.errorf(d.Span, "function-scope var '%s' cannot have type '%s'", d.Name, v.Type)
		}
	}
	// The initializer is resolved before the name comes into scope.
	r.declare(v)
}

// initializer resolves the initializer of a let or var and returns the
// variable type: the declared type, or the materialized initializer type.
func (r *resolver) initializer(init wgsl.ExprID, declared types.Type) types.Type {
	t := r.value(init)
	if t == nil {
		return declared
	}
	if declared != nil {
		r.convertTo(init, declared)
		return declared
	}
	r.concretize(init)
	return r.p.Exprs[init].ValueType()
}

// storeTarget resolves the left side of an assignment and returns the store
// type, or nil.
func (r *resolver) storeTarget(lhs wgsl.ExprID) types.Type {
	info := r.expr(lhs)
	if info.Type == nil {
		return nil
	}
	ref, ok := info.Type.(*types.Reference)
	if !ok {
		r.errorf(r.m.ExprSpan(lhs), "cannot assign to value of type '%s'", info.Type)
		return nil
	}
	if ref.Access == types.AccessRead {
		r.errorf(r.m.ExprSpan(lhs), "cannot store into a read-only %s variable", ref.Space)
		return nil
	}
	if !types.IsConstructible(ref.Elem) {
		r.errorf(r.m.ExprSpan(lhs), "cannot assign a value of type '%s'", ref.Elem)
		return nil
	}
	return ref.Elem
}

func (r *resolver) assign(s *wgsl.AssignStmt) {
	if _, phony := r.m.Expr(s.LHS).(*wgsl.Phony); phony {
		if s.Compound {
			r.errorf(s.Span, "compound assignment to '_' is not allowed")
			return
		}
		if r.value(s.RHS) != nil {
			r.concretize(s.RHS)
		}
		return
	}
	store := r.storeTarget(s.LHS)
	rt := r.value(s.RHS)
	if store == nil || rt == nil {
		return
	}
	if !s.Compound {
		r.convertTo(s.RHS, store)
		return
	}
	r.compoundOperand(s.Span, s.Op, store, s.RHS, rt)
}

// compoundOperand checks `x op= y` for store type store.
func (r *resolver) compoundOperand(span wgsl.Span, op wgsl.BinaryOp, store types.Type, rhs wgsl.ExprID, rt types.Type) {
	want := rt
	if rs := types.ScalarOf(rt); rs != nil && rs.IsAbstract() {
		target := types.ScalarOf(store)
		if op == wgsl.OpShl || op == wgsl.OpShr {
			target = types.U32
		}
		if target != nil {
			want = types.WithScalar(rt, target)
			if !r.convertTo(rhs, want) {
				return
			}
		}
	}
	result := binaryResult(op, store, want)
	if result == nil || !types.Equal(result, store) {
		r.errorf(span, "no matching overload for operator %s= (%s, %s)", op, store, want)
	}
}

func (r *resolver) incDec(s *wgsl.IncDecStmt) {
	store := r.storeTarget(s.LHS)
	if store == nil {
		return
	}
	if sc, ok := store.(*types.Scalar); !ok || sc.Kind != types.KindI32 && sc.Kind != types.KindU32 {
		r.errorf(s.Span, "increment and decrement require an i32 or u32 reference, not '%s'", store)
	}
}

func (r *resolver) returnStmt(s *wgsl.ReturnStmt) {
	if r.fn == nil {
		return
	}
	want := r.fn.Result
	switch {
	case s.Value == wgsl.NoExpr && want != nil:
		r.errorf(s.Span, "missing return value of type '%s'", want)
	case s.Value != wgsl.NoExpr && want == nil:
		r.errorf(s.Span, "function '%s' does not return a value", r.fn.Name)
	case s.Value != wgsl.NoExpr:
		if r.value(s.Value) != nil {
			r.convertTo(s.Value, want)
		}
	}
}

func (r *resolver) switchStmt(s *wgsl.SwitchStmt) {
	st := r.value(s.Selector)
	if st == nil {
		return
	}
	sel, ok := st.(*types.Scalar)
	if !ok || !sel.IsInteger() {
		r.errorf(r.m.ExprSpan(s.Selector), "switch selector must be an integer, not '%s'", st)
		return
	}

	// The selector and case values share a concrete integer type.
	common := sel
	var cases []wgsl.ExprID
	defaults := 0
	for _, c := range s.Cases {
		for _, e := range c.Selectors {
			if e == wgsl.NoExpr {
				defaults++
				continue
			}
			cases = append(cases, e)
			t := r.value(e)
			if t == nil {
				continue
			}
			cs, ok := t.(*types.Scalar)
			if !ok || !cs.IsInteger() {
				r.errorf(r.m.ExprSpan(e), "case selector must be an integer, not '%s'", t)
				continue
			}
			if r.p.Exprs[e].Stage != StageConst {
				r.errorf(r.m.ExprSpan(e), "case selector must be a const-expression")
				continue
			}
			if common.IsAbstract() && !cs.IsAbstract() {
				common = cs
			}
		}
	}
	if common.IsAbstract() {
		common = types.I32
	}
	r.convertTo(s.Selector, common)

	seen := make(map[int64]wgsl.Span)
	for _, e := range cases {
		if r.p.Exprs[e].Value == nil || !r.convertTo(e, common) {
			continue
		}
		n, _ := eval.AsInt64(r.p.Exprs[e].Value)
		if prev, dup := seen[n]; dup {
			r.errorf(r.m.ExprSpan(e), "duplicate switch case value %d (previous at %d:%d)", n, prev.Start.Line, prev.Start.Column)
			continue
		}
		seen[n] = r.m.ExprSpan(e)
	}
	if defaults != 1 {
		r.errorf(s.Span, "switch statement must have exactly one default clause")
	}

	for _, c := range s.Cases {
		r.scopedBlock(c.Body)
	}
}
