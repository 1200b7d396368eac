package sem

import (
	"strings"

	"github.com/gogpu/wgslinterp/eval"
	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

// builtinCall is a builtin call being resolved.
type builtinCall struct {
	name  string
	e     *wgsl.Call
	args  []wgsl.ExprID
	types []types.Type
}

// builtinCheck validates the arguments of a builtin call, converts abstract
// arguments and returns the result type. A nil result with ok set means the
// builtin returns nothing.
type builtinCheck func(r *resolver, c *builtinCall) (ret types.Type, ok bool)

// memoryBuiltins are evaluated by the interpreter against memory views.
var memoryBuiltins = map[string]builtinCheck{
	"arrayLength":               arrayLength,
	"atomicLoad":                atomicOp(0),
	"atomicStore":               atomicOp(1),
	"atomicAdd":                 atomicOp(1),
	"atomicSub":                 atomicOp(1),
	"atomicMax":                 atomicOp(1),
	"atomicMin":                 atomicOp(1),
	"atomicAnd":                 atomicOp(1),
	"atomicOr":                  atomicOp(1),
	"atomicXor":                 atomicOp(1),
	"atomicExchange":            atomicOp(1),
	"atomicCompareExchangeWeak": atomicOp(2),
	"workgroupBarrier":          barrier,
	"storageBarrier":            barrier,
	"workgroupUniformLoad":      workgroupUniformLoad,
}

var valueBuiltins map[string]builtinCheck

func init() {
	valueBuiltins = map[string]builtinCheck{
		"abs":   same(1, classNumeric),
		"min":   same(2, classNumeric),
		"max":   same(2, classNumeric),
		"clamp": same(3, classNumeric),
		"sign":  same(1, classSigned),

		"fma":        same(3, classFloat),
		"step":       same(2, classFloat),
		"smoothstep": same(3, classFloat),
		"atan2":      same(2, classFloat),
		"pow":        same(2, classFloat),
		"mix":        mix,
		"ldexp":      ldexp,

		"select": selectCheck,
		"all":    allAny,
		"any":    allAny,

		"dot":         dot,
		"cross":       cross,
		"length":      toScalar(1),
		"distance":    toScalar(2),
		"normalize":   vectorOnly(1),
		"faceForward": vectorOnly(3),
		"reflect":     vectorOnly(2),
		"refract":     refract,
		"transpose":   transpose,
		"determinant": determinant,

		"quantizeToF16": quantizeToF16,
		"modf":          splitResult("modf"),
		"frexp":         splitResult("frexp"),

		"countOneBits":       same(1, classInt),
		"countLeadingZeros":  same(1, classInt),
		"countTrailingZeros": same(1, classInt),
		"reverseBits":        same(1, classInt),
		"firstLeadingBit":    same(1, classInt),
		"firstTrailingBit":   same(1, classInt),
		"extractBits":        extractBits,
		"insertBits":         insertBits,

		"pack4x8snorm":    pack(4),
		"pack4x8unorm":    pack(4),
		"pack2x16snorm":   pack(2),
		"pack2x16unorm":   pack(2),
		"pack2x16float":   pack(2),
		"unpack4x8snorm":  unpack(4),
		"unpack4x8unorm":  unpack(4),
		"unpack2x16snorm": unpack(2),
		"unpack2x16unorm": unpack(2),
		"unpack2x16float": unpack(2),
	}
	for _, name := range []string{
		"ceil", "floor", "round", "trunc", "fract", "saturate", "degrees", "radians",
		"exp", "exp2", "log", "log2", "sqrt", "inverseSqrt",
		"sin", "cos", "tan", "sinh", "cosh", "tanh",
		"asin", "acos", "atan", "asinh", "acosh", "atanh",
	} {
		valueBuiltins[name] = same(1, classFloat)
	}
}

func isBuiltinFunction(name string) bool {
	if _, ok := valueBuiltins[name]; ok {
		return true
	}
	_, ok := memoryBuiltins[name]
	return ok || name == "bitcast"
}

// IsMemoryBuiltin reports whether name is a builtin that accesses memory or
// synchronizes invocations.
func IsMemoryBuiltin(name string) bool {
	_, ok := memoryBuiltins[name]
	return ok
}

func (r *resolver) builtinCall(id wgsl.ExprID, info *ExprInfo, e *wgsl.Call, name string) {
	c := &builtinCall{name: name, e: e, args: e.Args, types: make([]types.Type, len(e.Args))}
	stage := StageConst
	for i, a := range e.Args {
		if c.types[i] = r.value(a); c.types[i] == nil {
			return
		}
		stage = maxStage(stage, r.p.Exprs[a].Stage)
	}

	check, memory := memoryBuiltins[name]
	if !memory {
		check = valueBuiltins[name]
	}
	ret, ok := check(r, c)
	if !ok {
		return
	}
	info.Call, info.Builtin = CallBuiltin, name
	info.Type = ret
	if ret == nil {
		r.void[id] = true
	}
	if memory {
		info.Stage = StageRuntime
		return
	}
	info.Stage = stage
	if stage == StageConst {
		vals := make([]eval.Value, len(e.Args))
		for i, a := range e.Args {
			vals[i] = r.p.Exprs[a].Value
		}
		v, err := eval.Call(name, vals, ret, r.warner(id))
		if err != nil {
			r.errorf(e.Span, "%v", err)
			info.Type = nil
			return
		}
		info.Value = v
	}
}

func (r *resolver) noOverload(c *builtinCall) (types.Type, bool) {
	list := make([]string, len(c.types))
	for i, t := range c.types {
		list[i] = t.String()
	}
	r.errorf(c.e.Span, "no matching overload for %s(%s)", c.name, strings.Join(list, ", "))
	return nil, false
}

type argClass uint8

const (
	classNumeric argClass = iota
	classSigned
	classFloat
	classInt
)

func (c argClass) accepts(s *types.Scalar) bool {
	switch c {
	case classNumeric:
		return s.IsNumeric()
	case classSigned:
		return s.IsNumeric() && s.IsSigned()
	case classFloat:
		return s.IsFloat()
	case classInt:
		return s.IsInteger() && !s.IsAbstract()
	}
	return false
}

// unify converts the arguments at idx to one scalar or vector type of the
// given class and returns it.
func (r *resolver) unify(c *builtinCall, class argClass, idx ...int) (types.Type, bool) {
	var s *types.Scalar
	for _, i := range idx {
		t := c.types[i]
		switch t.(type) {
		case *types.Scalar, *types.Vector:
		default:
			return nil, false
		}
		if s == nil {
			s = types.ScalarOf(t)
		} else if s = unifyScalars(s, types.ScalarOf(t)); s == nil {
			return nil, false
		}
	}
	switch {
	case class == classFloat && s == types.AbstractInt:
		s = types.AbstractFloat
	case class == classInt && s == types.AbstractInt:
		s = types.I32
	}
	if !class.accepts(s) {
		return nil, false
	}
	want := types.WithScalar(c.types[idx[0]], s)
	for _, i := range idx {
		if !types.Equal(types.WithScalar(c.types[i], s), want) {
			return nil, false
		}
	}
	for _, i := range idx {
		if !r.convertTo(c.args[i], want) {
			return nil, false
		}
		c.types[i] = want
	}
	return want, true
}

// convertScalar converts argument i to scalar s when it is abstract.
func (r *resolver) convertScalar(c *builtinCall, i int, s *types.Scalar) bool {
	t, ok := c.types[i].(*types.Scalar)
	if !ok {
		return false
	}
	if t.Kind == s.Kind {
		return true
	}
	if !t.IsAbstract() || !abstractConvertible(t, s) {
		return false
	}
	if !r.convertTo(c.args[i], s) {
		return false
	}
	c.types[i] = s
	return true
}

func arity(c *builtinCall, n int) bool { return len(c.args) == n }

// same is the common form: n arguments of one type, returning that type.
func same(n int, class argClass) builtinCheck {
	return func(r *resolver, c *builtinCall) (types.Type, bool) {
		if !arity(c, n) {
			return r.noOverload(c)
		}
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		t, ok := r.unify(c, class, idx...)
		if !ok {
			return r.noOverload(c)
		}
		return t, true
	}
}

func toScalar(n int) builtinCheck {
	inner := same(n, classFloat)
	return func(r *resolver, c *builtinCall) (types.Type, bool) {
		t, ok := inner(r, c)
		if !ok {
			return nil, false
		}
		return types.ScalarOf(t), true
	}
}

func vectorOnly(n int) builtinCheck {
	return func(r *resolver, c *builtinCall) (types.Type, bool) {
		if !arity(c, n) {
			return r.noOverload(c)
		}
		if _, ok := c.types[0].(*types.Vector); !ok {
			return r.noOverload(c)
		}
		return same(n, classFloat)(r, c)
	}
}

func mix(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 3) {
		return r.noOverload(c)
	}
	if _, ok := c.types[2].(*types.Vector); ok {
		return same(3, classFloat)(r, c)
	}
	t, ok := r.unify(c, classFloat, 0, 1)
	if !ok || !r.convertScalar(c, 2, types.ScalarOf(t)) {
		return r.noOverload(c)
	}
	return t, true
}

func refract(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 3) {
		return r.noOverload(c)
	}
	if _, ok := c.types[0].(*types.Vector); !ok {
		return r.noOverload(c)
	}
	t, ok := r.unify(c, classFloat, 0, 1)
	if !ok || !r.convertScalar(c, 2, types.ScalarOf(t)) {
		return r.noOverload(c)
	}
	return t, true
}

func ldexp(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 2) {
		return r.noOverload(c)
	}
	t, ok := r.unify(c, classFloat, 0)
	if !ok {
		return r.noOverload(c)
	}
	es := types.ScalarOf(c.types[1])
	if es == nil || !es.IsInteger() || !types.Equal(types.WithScalar(c.types[1], types.I32), types.WithScalar(t, types.I32)) {
		return r.noOverload(c)
	}
	if !types.ScalarOf(t).IsAbstract() || !es.IsAbstract() {
		if es.IsAbstract() {
			r.convertTo(c.args[1], types.WithScalar(c.types[1], types.I32))
		} else if es != types.I32 {
			return r.noOverload(c)
		}
		if types.ScalarOf(t).IsAbstract() {
			t = types.WithScalar(t, types.F32)
			r.convertTo(c.args[0], t)
		}
	}
	return t, true
}

func selectCheck(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 3) {
		return r.noOverload(c)
	}
	t, ok := r.unifyAny(c, 0, 1)
	if !ok {
		return r.noOverload(c)
	}
	switch cond := c.types[2].(type) {
	case *types.Scalar:
		if cond == types.Bool {
			return t, true
		}
	case *types.Vector:
		if v, ok := t.(*types.Vector); ok && cond.Elem == types.Bool && cond.N == v.N {
			return t, true
		}
	}
	return r.noOverload(c)
}

// unifyAny unifies two scalar or vector arguments of any scalar type,
// bool included.
func (r *resolver) unifyAny(c *builtinCall, i, j int) (types.Type, bool) {
	if types.ScalarOf(c.types[i]) == types.Bool {
		return c.types[i], types.Equal(c.types[i], c.types[j])
	}
	return r.unify(c, classNumeric, i, j)
}

func allAny(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 1) || types.ScalarOf(c.types[0]) != types.Bool {
		return r.noOverload(c)
	}
	if _, isMat := c.types[0].(*types.Matrix); isMat {
		return r.noOverload(c)
	}
	return types.Bool, true
}

func dot(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 2) {
		return r.noOverload(c)
	}
	if _, ok := c.types[0].(*types.Vector); !ok {
		return r.noOverload(c)
	}
	t, ok := r.unify(c, classNumeric, 0, 1)
	if !ok {
		return r.noOverload(c)
	}
	return types.ScalarOf(t), true
}

func cross(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 2) {
		return r.noOverload(c)
	}
	if v, ok := c.types[0].(*types.Vector); !ok || v.N != 3 {
		return r.noOverload(c)
	}
	return same(2, classFloat)(r, c)
}

func transpose(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 1) {
		return r.noOverload(c)
	}
	m, ok := c.types[0].(*types.Matrix)
	if !ok {
		return r.noOverload(c)
	}
	return &types.Matrix{Cols: m.Rows, Rows: m.Cols, Elem: m.Elem}, true
}

func determinant(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 1) {
		return r.noOverload(c)
	}
	m, ok := c.types[0].(*types.Matrix)
	if !ok || m.Cols != m.Rows {
		return r.noOverload(c)
	}
	return m.Elem, true
}

func quantizeToF16(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 1) {
		return r.noOverload(c)
	}
	t, ok := r.unify(c, classFloat, 0)
	if !ok {
		return r.noOverload(c)
	}
	if s := types.ScalarOf(t); s.IsAbstract() {
		t = types.WithScalar(t, types.F32)
		r.convertTo(c.args[0], t)
	} else if s != types.F32 {
		return r.noOverload(c)
	}
	return t, true
}

// splitResult resolves modf and frexp, which return a two-member structure.
func splitResult(name string) builtinCheck {
	return func(r *resolver, c *builtinCall) (types.Type, bool) {
		if !arity(c, 1) {
			return r.noOverload(c)
		}
		t, ok := r.unify(c, classFloat, 0)
		if !ok {
			return r.noOverload(c)
		}
		first, second := "fract", "whole"
		secondType := t
		if name == "frexp" {
			second = "exp"
			exp := types.I32
			if types.ScalarOf(t).IsAbstract() {
				exp = types.AbstractInt
			}
			secondType = types.WithScalar(t, exp)
		}
		structName := "__" + name + "_result_" + strings.NewReplacer("<", "_", ">", "").Replace(t.String())
		return r.resultStruct(structName,
			types.MemberSpec{Name: first, Type: t},
			types.MemberSpec{Name: second, Type: secondType},
		), true
	}
}

// resultStruct returns the builtin result structure with the given name,
// creating it on first use.
func (r *resolver) resultStruct(name string, members ...types.MemberSpec) *types.Struct {
	if st, ok := r.builtinStructs[name]; ok {
		return st
	}
	st := types.NewAnonymousStruct(name, members...)
	r.builtinStructs[name] = st
	return st
}

func extractBits(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 3) {
		return r.noOverload(c)
	}
	t, ok := r.unify(c, classInt, 0)
	if !ok || !r.convertScalar(c, 1, types.U32) || !r.convertScalar(c, 2, types.U32) {
		return r.noOverload(c)
	}
	return t, true
}

func insertBits(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 4) {
		return r.noOverload(c)
	}
	t, ok := r.unify(c, classInt, 0, 1)
	if !ok || !r.convertScalar(c, 2, types.U32) || !r.convertScalar(c, 3, types.U32) {
		return r.noOverload(c)
	}
	return t, true
}

func pack(n int) builtinCheck {
	return func(r *resolver, c *builtinCall) (types.Type, bool) {
		want := &types.Vector{N: n, Elem: types.F32}
		if !arity(c, 1) || !types.Equal(types.WithScalar(c.types[0], types.F32), want) {
			return r.noOverload(c)
		}
		if !r.convertTo(c.args[0], want) {
			return nil, false
		}
		return types.U32, true
	}
}

func unpack(n int) builtinCheck {
	return func(r *resolver, c *builtinCall) (types.Type, bool) {
		if !arity(c, 1) || !r.convertScalar(c, 0, types.U32) {
			return r.noOverload(c)
		}
		return &types.Vector{N: n, Elem: types.F32}, true
	}
}

// Memory builtins.

// pointerArg returns the pointer type of argument i.
func pointerArg(c *builtinCall, i int) (*types.Pointer, bool) {
	p, ok := c.types[i].(*types.Pointer)
	return p, ok
}

func arrayLength(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 1) {
		return r.noOverload(c)
	}
	p, ok := pointerArg(c, 0)
	if !ok {
		return r.noOverload(c)
	}
	if a, ok := p.Elem.(*types.Array); !ok || !a.IsRuntime() || p.Space != types.SpaceStorage {
		return r.noOverload(c)
	}
	return types.U32, true
}

// atomicOp resolves an atomic builtin taking a pointer and n more values.
func atomicOp(n int) builtinCheck {
	return func(r *resolver, c *builtinCall) (types.Type, bool) {
		if !arity(c, n+1) {
			return r.noOverload(c)
		}
		p, ok := pointerArg(c, 0)
		if !ok {
			return r.noOverload(c)
		}
		a, ok := p.Elem.(*types.Atomic)
		if !ok || (p.Space != types.SpaceStorage && p.Space != types.SpaceWorkgroup) {
			return r.noOverload(c)
		}
		if c.name != "atomicLoad" && p.Access == types.AccessRead {
			r.errorf(c.e.Span, "%s requires a read_write pointer", c.name)
			return nil, false
		}
		for i := 1; i <= n; i++ {
			if !r.convertScalar(c, i, a.Elem) {
				return r.noOverload(c)
			}
		}
		switch c.name {
		case "atomicStore":
			return nil, true
		case "atomicCompareExchangeWeak":
			return r.resultStruct("__atomic_compare_exchange_result_"+a.Elem.String(),
				types.MemberSpec{Name: "old_value", Type: a.Elem},
				types.MemberSpec{Name: "exchanged", Type: types.Bool},
			), true
		}
		return a.Elem, true
	}
}

func barrier(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 0) {
		return r.noOverload(c)
	}
	return nil, true
}

func workgroupUniformLoad(r *resolver, c *builtinCall) (types.Type, bool) {
	if !arity(c, 1) {
		return r.noOverload(c)
	}
	p, ok := pointerArg(c, 0)
	if !ok || p.Space != types.SpaceWorkgroup || !types.IsConstructible(p.Elem) {
		return r.noOverload(c)
	}
	return p.Elem, true
}
