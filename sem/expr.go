package sem

import (
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/wgslinterp/eval"
	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

// expr resolves an expression and returns its annotation. A nil Type marks
// an expression that failed to resolve; the error has been reported.
func (r *resolver) expr(id wgsl.ExprID) *ExprInfo {
	info := &r.p.Exprs[id]
	switch e := r.m.Expr(id).(type) {
	case *wgsl.Literal:
		r.literal(id, info, e)
	case *wgsl.Ident:
		r.ident(info, e)
	case *wgsl.Paren:
		x := r.expr(e.X)
		info.Type, info.Stage, info.Value = x.Type, x.Stage, x.Value
	case *wgsl.Unary:
		r.unary(info, e)
	case *wgsl.Binary:
		r.binary(id, info, e)
	case *wgsl.Index:
		r.index(info, e)
	case *wgsl.Member:
		r.member(info, e)
	case *wgsl.Call:
		r.call(id, info, e)
	case *wgsl.Phony:
		r.errorf(e.Span, "'_' can only be used on the left of an assignment")
	}
	return info
}

// value resolves an expression used as a value and applies the load rule.
// It returns the value type, or nil on error.
func (r *resolver) value(id wgsl.ExprID) types.Type {
	info := r.expr(id)
	if info.Type == nil {
		if r.void[id] {
			r.errorf(r.m.ExprSpan(id), "function call does not return a value")
		}
		return nil
	}
	r.load(id)
	return info.ValueType()
}

// load applies the load rule to a reference-typed expression.
func (r *resolver) load(id wgsl.ExprID) {
	info := &r.p.Exprs[id]
	ref, ok := info.Type.(*types.Reference)
	if !ok {
		return
	}
	if ref.Access == types.AccessWrite {
		r.errorf(r.m.ExprSpan(id), "cannot read from a write-only reference")
	}
	if _, atomic := ref.Elem.(*types.Atomic); atomic {
		r.errorf(r.m.ExprSpan(id), "atomic values can only be accessed through atomic builtins")
	}
	info.Load = true
}

func maxStage(a, b Stage) Stage {
	if a > b {
		return a
	}
	return b
}

func (r *resolver) literal(id wgsl.ExprID, info *ExprInfo, e *wgsl.Literal) {
	info.Stage = StageConst
	switch e.Kind {
	case wgsl.LitBool:
		info.Value = eval.Bool(e.Text == "true")
	case wgsl.LitInt:
		v, suffix, err := parseIntLiteral(e.Text)
		switch {
		case err != nil:
			r.errorf(e.Span, "value %s cannot be represented as 'abstract-int'", e.Text)
			return
		case suffix == 'i':
			if v > math.MaxInt32 {
				r.errorf(e.Span, "value %d cannot be represented as 'i32'", v)
				return
			}
			info.Value = eval.I32(v)
		case suffix == 'u':
			if v > math.MaxUint32 {
				r.errorf(e.Span, "value %d cannot be represented as 'u32'", v)
				return
			}
			info.Value = eval.U32(v)
		default:
			info.Value = eval.AbstractInt(v)
		}
	case wgsl.LitFloat:
		text := e.Text
		var suffix byte
		if n := len(text); n > 0 && (text[n-1] == 'f' || text[n-1] == 'h') {
			suffix, text = text[n-1], text[:n-1]
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			r.errorf(e.Span, "value %s cannot be represented as 'abstract-float'", e.Text)
			return
		}
		switch suffix {
		case 'f':
			info.Value = eval.Convert(eval.AbstractFloat(v), types.F32, r.warner(id))
		case 'h':
			info.Value = eval.Convert(eval.AbstractFloat(v), types.F16, r.warner(id))
		default:
			info.Value = eval.AbstractFloat(v)
		}
	}
	info.Type = info.Value.Type()
}

func (r *resolver) ident(info *ExprInfo, e *wgsl.Ident) {
	v := r.lookup(e.Name)
	if v == nil {
		switch {
		case r.isTypeName(e.Name):
			r.errorf(e.Span, "cannot use type '%s' as a value", e.Name)
		case r.decls[e.Name] != nil || isBuiltinFunction(e.Name):
			r.errorf(e.Span, "cannot use function '%s' as a value", e.Name)
		default:
			r.errorf(e.Span, "unresolved identifier '%s'", e.Name)
		}
		return
	}
	if v.Type == nil {
		return
	}
	if len(e.Args) != 0 {
		r.errorf(e.Span, "'%s' does not take template arguments", e.Name)
	}
	info.Var = v
	switch v.Kind {
	case VarConst:
		info.Stage, info.Type, info.Value = StageConst, v.Type, v.Value
	case VarOverride:
		info.Stage, info.Type = StageOverride, v.Type
	case VarLet, VarParam:
		info.Stage, info.Type = StageRuntime, v.Type
	case VarVar:
		info.Stage = StageRuntime
		info.Type = &types.Reference{Space: v.Space, Elem: v.Type, Access: v.Access}
	}
}

func (r *resolver) unary(info *ExprInfo, e *wgsl.Unary) {
	switch e.Op {
	case wgsl.OpAddrOf:
		x := r.expr(e.X)
		if x.Type == nil {
			return
		}
		ref, ok := x.Type.(*types.Reference)
		if !ok {
			r.errorf(e.Span, "cannot take the address of a value of type '%s'", x.Type)
			return
		}
		if len(x.Swizzle) != 0 {
			r.errorf(e.Span, "cannot take the address of a vector component")
			return
		}
		if ref.Space == types.SpaceHandle {
			r.errorf(e.Span, "cannot take the address of a handle")
			return
		}
		info.Stage = StageRuntime
		info.Type = &types.Pointer{Space: ref.Space, Elem: ref.Elem, Access: ref.Access}
		return
	case wgsl.OpDeref:
		t := r.value(e.X)
		if t == nil {
			return
		}
		ptr, ok := t.(*types.Pointer)
		if !ok {
			r.errorf(e.Span, "cannot dereference a value of type '%s'", t)
			return
		}
		info.Stage = StageRuntime
		info.Type = &types.Reference{Space: ptr.Space, Elem: ptr.Elem, Access: ptr.Access}
		return
	}

	t := r.value(e.X)
	if t == nil {
		return
	}
	s := types.ScalarOf(t)
	if _, isMat := t.(*types.Matrix); isMat && e.Op != wgsl.OpNeg {
		s = nil
	}
	ok := s != nil
	switch {
	case !ok:
	case e.Op == wgsl.OpNeg:
		ok = s.IsNumeric() && (s.IsSigned() || s.IsFloat())
	case e.Op == wgsl.OpNot:
		ok = s == types.Bool
	case e.Op == wgsl.OpCompl:
		ok = s.IsInteger()
	}
	if !ok {
		r.errorf(e.Span, "no matching overload for operator %s (%s)", e.Op, t)
		return
	}
	x := &r.p.Exprs[e.X]
	info.Type, info.Stage = t, x.Stage
	if x.Stage == StageConst {
		v, err := eval.Unary(e.Op, x.Value, constWarner{r, e.Span})
		if err != nil {
			r.errorf(e.Span, "%v", err)
			info.Type = nil
			return
		}
		info.Value, info.Type = v, v.Type()
	}
}

// unifyScalars returns the scalar both operands convert to, or nil.
func unifyScalars(a, b *types.Scalar) *types.Scalar {
	switch {
	case a == nil || b == nil:
		return nil
	case a.Kind == b.Kind:
		return a
	case a.IsAbstract() && b.IsAbstract():
		return types.AbstractFloat
	case a.IsAbstract():
		if a.Kind == types.KindAbstractFloat && !b.IsFloat() {
			return nil
		}
		return b
	case b.IsAbstract():
		if b.Kind == types.KindAbstractFloat && !a.IsFloat() {
			return nil
		}
		return a
	}
	return nil
}

func (r *resolver) binary(id wgsl.ExprID, info *ExprInfo, e *wgsl.Binary) {
	lt, rt := r.value(e.X), r.value(e.Y)
	if lt == nil || rt == nil {
		return
	}
	x, y := &r.p.Exprs[e.X], &r.p.Exprs[e.Y]
	ls, rs := types.ScalarOf(lt), types.ScalarOf(rt)

	if ls == nil || rs == nil {
		r.errorf(e.Span, "no matching overload for operator %s (%s, %s)", e.Op, lt, rt)
		return
	}

	// Operand types after abstract conversion.
	var lu, ru *types.Scalar
	if e.Op == wgsl.OpShl || e.Op == wgsl.OpShr {
		lu, ru = ls, rs
		if ru.IsAbstract() {
			ru = types.U32
		}
		if lu.IsAbstract() && y.Stage != StageConst {
			lu = types.I32
		}
	} else {
		u := unifyScalars(ls, rs)
		if u == nil {
			r.errorf(e.Span, "no matching overload for operator %s (%s, %s)", e.Op, lt, rt)
			return
		}
		lu, ru = u, u
	}
	lt, rt = types.WithScalar(lt, lu), types.WithScalar(rt, ru)

	result := binaryResult(e.Op, lt, rt)
	if result == nil {
		r.errorf(e.Span, "no matching overload for operator %s (%s, %s)", e.Op, lt, rt)
		return
	}
	info.Stage = maxStage(x.Stage, y.Stage)

	if info.Stage == StageConst {
		v, err := eval.Binary(e.Op, x.Value, y.Value, r.warner(id))
		if err != nil {
			r.errorf(e.Span, "%v", err)
			return
		}
		info.Value, info.Type = v, v.Type()
		return
	}
	if !r.convertTo(e.X, lt) || !r.convertTo(e.Y, rt) {
		return
	}
	info.Type = result
}

// binaryResult returns the result type of a binary operator over operands
// that already share a scalar type, or nil when no overload matches.
func binaryResult(op wgsl.BinaryOp, l, r types.Type) types.Type {
	ls, rs := types.ScalarOf(l), types.ScalarOf(r)
	_, lmat := l.(*types.Matrix)
	_, rmat := r.(*types.Matrix)
	lv, lvec := l.(*types.Vector)
	rv, rvec := r.(*types.Vector)
	_, lsc := l.(*types.Scalar)
	_, rsc := r.(*types.Scalar)

	boolOf := func(t types.Type) types.Type {
		if v, ok := t.(*types.Vector); ok {
			return &types.Vector{N: v.N, Elem: types.Bool}
		}
		return types.Bool
	}

	switch op {
	case wgsl.OpLogicalAnd, wgsl.OpLogicalOr:
		if ls == types.Bool && rs == types.Bool && lsc && rsc {
			return types.Bool
		}
		return nil

	case wgsl.OpEq, wgsl.OpNe, wgsl.OpLt, wgsl.OpLe, wgsl.OpGt, wgsl.OpGe:
		if lmat || rmat || !types.Equal(l, r) {
			return nil
		}
		if ls == types.Bool && op != wgsl.OpEq && op != wgsl.OpNe {
			return nil
		}
		return boolOf(l)

	case wgsl.OpShl, wgsl.OpShr:
		if lmat || !ls.IsInteger() || rs != types.U32 {
			return nil
		}
		if lvec != rvec || (lvec && lv.N != rv.N) {
			return nil
		}
		return l

	case wgsl.OpAnd, wgsl.OpOr, wgsl.OpXor:
		if lmat || !types.Equal(l, r) {
			return nil
		}
		if ls.IsInteger() || ls == types.Bool {
			return l
		}
		return nil
	}

	// Arithmetic.
	if !ls.IsNumeric() || ls.Kind != rs.Kind {
		return nil
	}
	switch {
	case lmat || rmat:
		return matrixResult(op, l, r)
	case types.Equal(l, r):
		return l
	case lvec && rsc:
		return l
	case lsc && rvec:
		return r
	}
	return nil
}

func matrixResult(op wgsl.BinaryOp, l, r types.Type) types.Type {
	lm, lmat := l.(*types.Matrix)
	rm, rmat := r.(*types.Matrix)
	if !types.ScalarOf(l).IsFloat() {
		return nil
	}
	switch op {
	case wgsl.OpAdd, wgsl.OpSub:
		if lmat && rmat && types.Equal(l, r) {
			return l
		}
		return nil
	case wgsl.OpMul:
	default:
		return nil
	}
	switch r := r.(type) {
	case *types.Scalar:
		return l
	case *types.Vector:
		if lmat && lm.Cols == r.N {
			return &types.Vector{N: lm.Rows, Elem: lm.Elem}
		}
		return nil
	}
	switch l := l.(type) {
	case *types.Scalar:
		return r
	case *types.Vector:
		if l.N == rm.Rows {
			return &types.Vector{N: rm.Cols, Elem: rm.Elem}
		}
		return nil
	}
	if lm.Cols == rm.Rows {
		return &types.Matrix{Cols: rm.Cols, Rows: lm.Rows, Elem: lm.Elem}
	}
	return nil
}

func (r *resolver) index(info *ExprInfo, e *wgsl.Index) {
	x := r.expr(e.X)
	it := r.value(e.Index)
	if x.Type == nil || it == nil {
		return
	}
	if s, ok := it.(*types.Scalar); !ok || !s.IsInteger() {
		r.errorf(r.m.ExprSpan(e.Index), "index must be an integer, not '%s'", it)
		return
	}
	r.concretize(e.Index)
	idx := &r.p.Exprs[e.Index]

	var store types.Type
	var ref *types.Reference
	switch t := x.Type.(type) {
	case *types.Reference:
		store, ref = t.Elem, t
	case *types.Pointer:
		store, ref = t.Elem, &types.Reference{Space: t.Space, Elem: t.Elem, Access: t.Access}
	default:
		store = t
	}
	elem := types.Element(store)
	if elem == nil {
		r.errorf(e.Span, "cannot index a value of type '%s'", store)
		return
	}
	if ref == nil && types.IsAbstract(store) && idx.Stage != StageConst {
		r.concretize(e.X)
		store = x.Type
		elem = types.Element(store)
	}

	if idx.Stage == StageConst {
		n, _ := eval.AsInt64(idx.Value)
		if count := staticCount(store); n < 0 || (count > 0 && n >= int64(count)) {
			r.errorf(r.m.ExprSpan(e.Index), "index %d is out of bounds for '%s'", n, store)
			return
		}
	}

	if ref != nil {
		info.Stage = StageRuntime
		info.Type = &types.Reference{Space: ref.Space, Elem: elem, Access: ref.Access}
		return
	}
	info.Stage = maxStage(x.Stage, idx.Stage)
	info.Type = elem
	if info.Stage == StageConst {
		n, _ := eval.AsInt64(idx.Value)
		info.Value = eval.Index(x.Value, int(n))
		info.Type = info.Value.Type()
	} else if info.Stage == StageOverride {
		info.Stage = StageRuntime
	}
}

// staticCount returns the element count of a vector, matrix or fixed-size
// array, or 0.
func staticCount(t types.Type) int {
	switch t := t.(type) {
	case *types.Vector:
		return t.N
	case *types.Matrix:
		return t.Cols
	case *types.Array:
		if t.Size == types.ArrayFixed {
			return int(t.Count)
		}
	}
	return 0
}

func (r *resolver) member(info *ExprInfo, e *wgsl.Member) {
	x := r.expr(e.X)
	if x.Type == nil {
		return
	}
	var store types.Type
	var ref *types.Reference
	switch t := x.Type.(type) {
	case *types.Reference:
		store, ref = t.Elem, t
	case *types.Pointer:
		store, ref = t.Elem, &types.Reference{Space: t.Space, Elem: t.Elem, Access: t.Access}
	default:
		store = t
	}

	var elem types.Type
	switch st := store.(type) {
	case *types.Struct:
		m := st.Member(e.Name)
		if m == nil {
			r.errorf(e.Span, "struct '%s' has no member named '%s'", st, e.Name)
			return
		}
		info.Member = m
		elem = m.Type
	case *types.Vector:
		idx, ok := swizzle(e.Name, st.N)
		if !ok {
			r.errorf(e.Span, "invalid vector swizzle '%s'", e.Name)
			return
		}
		info.Swizzle = idx
		elem = st.Elem
		if len(idx) > 1 {
			elem = &types.Vector{N: len(idx), Elem: st.Elem}
			if ref != nil {
				if ref.Access == types.AccessWrite {
					r.errorf(e.Span, "cannot read from a write-only reference")
				}
				// A multi-component swizzle of a memory view loads it.
				info.Stage, info.Type = StageRuntime, elem
				return
			}
		}
	default:
		r.errorf(e.Span, "type '%s' has no members", store)
		return
	}

	if ref != nil {
		info.Stage = StageRuntime
		info.Type = &types.Reference{Space: ref.Space, Elem: elem, Access: ref.Access}
		return
	}
	info.Stage, info.Type = x.Stage, elem
	if x.Stage == StageConst {
		if info.Member != nil {
			info.Value = eval.Index(x.Value, info.Member.Index)
		} else {
			info.Value = eval.Swizzle(x.Value, info.Swizzle)
		}
		info.Type = info.Value.Type()
	}
}

// swizzle parses a vector swizzle from one of the xyzw or rgba sets.
func swizzle(name string, n int) ([]int, bool) {
	if len(name) == 0 || len(name) > 4 {
		return nil, false
	}
	set := "xyzw"
	if strings.ContainsAny(name[:1], "rgba") {
		set = "rgba"
	}
	idx := make([]int, len(name))
	for i := range len(name) {
		c := strings.IndexByte(set, name[i])
		if c < 0 || c >= n {
			return nil, false
		}
		idx[i] = c
	}
	return idx, true
}

func (r *resolver) call(id wgsl.ExprID, info *ExprInfo, e *wgsl.Call) {
	callee, ok := r.m.Expr(e.Callee).(*wgsl.Ident)
	if !ok {
		r.errorf(e.Span, "expression is not callable")
		return
	}
	name := callee.Name

	switch {
	case name == "bitcast":
		r.bitcast(id, info, e, callee)
	case r.isTypeName(name):
		r.construct(id, info, e, callee)
	default:
		if d, ok := r.decls[name].(*wgsl.FuncDecl); ok {
			r.userCall(id, info, e, d)
			return
		}
		if isBuiltinFunction(name) {
			r.builtinCall(id, info, e, name)
			return
		}
		if r.lookup(name) != nil {
			r.errorf(callee.Span, "'%s' is not a function", name)
			return
		}
		r.errorf(callee.Span, "unresolved function '%s'", name)
	}
}

func (r *resolver) bitcast(id wgsl.ExprID, info *ExprInfo, e *wgsl.Call, callee *wgsl.Ident) {
	if len(callee.Args) != 1 || len(e.Args) != 1 {
		r.errorf(e.Span, "bitcast expects one template argument and one argument")
		return
	}
	to := r.resolveType(callee.Args[0])
	from := r.value(e.Args[0])
	if to == nil || from == nil {
		return
	}
	r.concretize(e.Args[0])
	from = r.p.Exprs[e.Args[0]].ValueType()
	if !bitcastable(from) || !bitcastable(to) || types.Size(from) != types.Size(to) {
		r.errorf(e.Span, "cannot bitcast from '%s' to '%s'", from, to)
		return
	}
	arg := &r.p.Exprs[e.Args[0]]
	info.Call = CallBitcast
	info.Type, info.Stage = to, arg.Stage
	if arg.Stage == StageConst {
		v, err := eval.Bitcast(arg.Value, to, r.warner(id))
		if err != nil {
			r.errorf(e.Span, "%v", err)
			return
		}
		info.Value = v
	}
}

func bitcastable(t types.Type) bool {
	s := types.ScalarOf(t)
	if _, isMat := t.(*types.Matrix); isMat || s == nil {
		return false
	}
	return s.IsNumeric() && !s.IsAbstract()
}

func (r *resolver) construct(id wgsl.ExprID, info *ExprInfo, e *wgsl.Call, callee *wgsl.Ident) {
	t := r.typeIdent(callee, true)
	argTypes := make([]types.Type, len(e.Args))
	stage := StageConst
	for i, a := range e.Args {
		if argTypes[i] = r.value(a); argTypes[i] == nil {
			return
		}
		stage = maxStage(stage, r.p.Exprs[a].Stage)
	}
	if t == nil {
		if t = r.inferConstructor(callee, argTypes); t == nil {
			return
		}
	}
	if !types.IsConstructible(t) {
		r.errorf(e.Span, "type '%s' is not constructible", t)
		return
	}
	if !r.checkConstructorArgs(e, t, argTypes) {
		return
	}

	info.Call = CallConstruct
	info.Type, info.Stage = t, stage
	if stage == StageConst {
		vals := make([]eval.Value, len(e.Args))
		for i, a := range e.Args {
			vals[i] = r.p.Exprs[a].Value
		}
		v, err := eval.Construct(t, vals, r.warner(id))
		if err != nil {
			r.errorf(e.Span, "%v", err)
			info.Type = nil
			return
		}
		info.Value = v
	}
}

// inferConstructor infers the element type of vecN(...), matCxR(...) and
// array(...) from the arguments.
func (r *resolver) inferConstructor(callee *wgsl.Ident, args []types.Type) types.Type {
	cols, rows, _ := genericType(callee.Name)
	if len(args) == 0 {
		r.errorf(callee.Span, "cannot infer the element type of '%s' without arguments", callee.Name)
		return nil
	}
	if callee.Name == "array" {
		elem := args[0]
		for _, a := range args[1:] {
			u := unifyTypes(elem, a)
			if u == nil {
				r.errorf(callee.Span, "array elements have mismatched types '%s' and '%s'", elem, a)
				return nil
			}
			elem = u
		}
		return &types.Array{Elem: elem, Count: uint32(len(args))}
	}
	var s *types.Scalar
	for _, a := range args {
		as := types.ScalarOf(a)
		if as == nil {
			r.errorf(callee.Span, "invalid argument of type '%s' for '%s'", a, callee.Name)
			return nil
		}
		if s == nil {
			s = as
		} else if s = unifyScalars(s, as); s == nil {
			r.errorf(callee.Span, "mismatched argument types for '%s'", callee.Name)
			return nil
		}
	}
	if rows == 0 {
		return &types.Vector{N: cols, Elem: s}
	}
	if s == types.AbstractInt {
		s = types.AbstractFloat
	}
	if !s.IsFloat() {
		r.errorf(callee.Span, "matrix element type must be a float, not '%s'", s)
		return nil
	}
	return &types.Matrix{Cols: cols, Rows: rows, Elem: s}
}

// unifyTypes returns the common type of a and b after abstract conversion.
func unifyTypes(a, b types.Type) types.Type {
	if types.Equal(a, b) {
		return a
	}
	as, bs := types.ScalarOf(a), types.ScalarOf(b)
	if aa, ok := a.(*types.Array); ok {
		ba, ok := b.(*types.Array)
		if !ok || aa.Count != ba.Count || aa.Size != types.ArrayFixed || ba.Size != types.ArrayFixed {
			return nil
		}
		e := unifyTypes(aa.Elem, ba.Elem)
		if e == nil {
			return nil
		}
		return &types.Array{Elem: e, Count: aa.Count}
	}
	u := unifyScalars(as, bs)
	if u == nil || !types.Equal(types.WithScalar(a, u), types.WithScalar(b, u)) {
		return nil
	}
	return types.WithScalar(a, u)
}

// checkConstructorArgs validates arguments of a constructor of type t and
// converts abstract ones.
func (r *resolver) checkConstructorArgs(e *wgsl.Call, t types.Type, args []types.Type) bool {
	if len(args) == 0 {
		return true
	}
	bad := func() bool {
		list := make([]string, len(args))
		for i, a := range args {
			list[i] = a.String()
		}
		r.errorf(e.Span, "no matching constructor for %s(%s)", t, strings.Join(list, ", "))
		return false
	}
	switch t := t.(type) {
	case *types.Scalar:
		if len(args) != 1 {
			return bad()
		}
		s, ok := args[0].(*types.Scalar)
		return ok && (s.IsNumeric() || s == types.Bool) || bad()

	case *types.Vector:
		if len(args) == 1 {
			if s, ok := args[0].(*types.Scalar); ok && s != nil {
				return r.convertElem(e.Args[0], args[0], t.Elem) || bad()
			}
			if v, ok := args[0].(*types.Vector); ok && v.N == t.N {
				return r.convertElem(e.Args[0], args[0], t.Elem) || bad()
			}
			return bad()
		}
		n := 0
		for i, a := range args {
			switch a := a.(type) {
			case *types.Scalar:
				n++
			case *types.Vector:
				n += a.N
			default:
				return bad()
			}
			if types.ScalarOf(a).Kind != t.Elem.Kind && !types.ScalarOf(a).IsAbstract() {
				return bad()
			}
			if !r.convertElem(e.Args[i], a, t.Elem) {
				return false
			}
		}
		return n == t.N || bad()

	case *types.Matrix:
		if len(args) == 1 {
			if m, ok := args[0].(*types.Matrix); ok && m.Cols == t.Cols && m.Rows == t.Rows {
				return r.convertElem(e.Args[0], args[0], t.Elem) || bad()
			}
		}
		col := t.Column()
		switch {
		case len(args) == t.Cols:
			for i, a := range args {
				if !r.convertElem(e.Args[i], a, t.Elem) || !types.Equal(r.p.Exprs[e.Args[i]].ValueType(), col) {
					return bad()
				}
			}
		case len(args) == t.Cols*t.Rows:
			for i, a := range args {
				if !r.convertElem(e.Args[i], a, t.Elem) || !types.Equal(r.p.Exprs[e.Args[i]].ValueType(), t.Elem) {
					return bad()
				}
			}
		default:
			return bad()
		}
		return true

	case *types.Array:
		if len(args) != int(t.Count) {
			return bad()
		}
		for _, a := range e.Args {
			if !r.convertTo(a, t.Elem) {
				return false
			}
		}
		return true

	case *types.Struct:
		if len(args) != len(t.Members) {
			return bad()
		}
		for i, a := range e.Args {
			if !r.convertTo(a, t.Members[i].Type) {
				return false
			}
		}
		return true
	}
	return bad()
}

// convertElem converts an abstract argument to the element scalar of a
// vector or matrix constructor. Concrete arguments are left for the
// constructor to convert.
func (r *resolver) convertElem(id wgsl.ExprID, t types.Type, elem *types.Scalar) bool {
	s := types.ScalarOf(t)
	if s == nil {
		return false
	}
	if !s.IsAbstract() {
		return true
	}
	if s.Kind == types.KindAbstractFloat && !elem.IsFloat() {
		return false
	}
	if elem.IsAbstract() || elem == types.Bool {
		return elem.IsAbstract()
	}
	return r.convertTo(id, types.WithScalar(t, elem))
}

func (r *resolver) userCall(id wgsl.ExprID, info *ExprInfo, e *wgsl.Call, d *wgsl.FuncDecl) {
	if r.state[d] == resolving {
		r.errorf(e.Span, "recursive call to '%s' is not allowed", d.Name)
		return
	}
	if r.fn == nil {
		r.errorf(e.Span, "function '%s' cannot be called in a module-scope expression", d.Name)
		return
	}
	r.resolveDecl(d)
	f := r.p.functions[d.Name]
	if f == nil {
		return
	}
	if f.Compute {
		r.errorf(e.Span, "entry point '%s' cannot be called", d.Name)
		return
	}
	if len(e.Args) != len(f.Params) {
		r.errorf(e.Span, "'%s' expects %d arguments, got %d", d.Name, len(f.Params), len(e.Args))
		return
	}
	for i, a := range e.Args {
		if r.value(a) == nil || !r.convertTo(a, f.Params[i].Type) {
			return
		}
	}
	r.fn.callees[f] = true
	info.Call, info.Function = CallFunction, f
	info.Stage = StageRuntime
	info.Type = f.Result
	if f.Result == nil {
		r.void[id] = true
	}
}
