package eval

import (
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

// builtinFunc evaluates a builtin over already evaluated arguments. ret is
// the resolved result type.
type builtinFunc func(args []Value, ret types.Type, w Warner) (Value, error)

// HasBuiltin reports whether name is a value builtin implemented here.
// Memory, atomic and synchronization builtins are implemented by the
// interpreter.
func HasBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// Call evaluates the value builtin name.
func Call(name string, args []Value, ret types.Type, w Warner) (Value, error) {
	fn, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin function '%s'", name)
	}
	return fn(args, ret, w)
}

var builtins = map[string]builtinFunc{
	"abs":   abs,
	"min":   minMax(false),
	"max":   minMax(true),
	"clamp": clamp,
	"sign":  signBuiltin,

	"ceil":  floatFn("ceil", math.Ceil),
	"floor": floatFn("floor", math.Floor),
	"round": floatFn("round", math.RoundToEven),
	"trunc": floatFn("trunc", math.Trunc),
	"fract": floatFn("fract", func(x float64) float64 { return x - math.Floor(x) }),
	"saturate": floatFn("saturate", func(x float64) float64 {
		return math.Max(0, math.Min(1, x))
	}),
	"degrees": floatFn("degrees", func(x float64) float64 { return x * 180 / math.Pi }),
	"radians": floatFn("radians", func(x float64) float64 { return x * math.Pi / 180 }),

	"exp":  floatFn("exp", math.Exp),
	"exp2": floatFn("exp2", math.Exp2),
	"log": domainFn(math.Log, func(x float64) bool { return x > 0 },
		"log must be called with a value > 0"),
	"log2": domainFn(math.Log2, func(x float64) bool { return x > 0 },
		"log2 must be called with a value > 0"),
	"sqrt": domainFn(math.Sqrt, func(x float64) bool { return x >= 0 },
		"sqrt must be called with a value >= 0"),
	"inverseSqrt": domainFn(func(x float64) float64 { return 1 / math.Sqrt(x) },
		func(x float64) bool { return x > 0 },
		"inverseSqrt must be called with a value > 0"),

	"sin":  floatFn("sin", math.Sin),
	"cos":  floatFn("cos", math.Cos),
	"tan":  floatFn("tan", math.Tan),
	"sinh": floatFn("sinh", math.Sinh),
	"cosh": floatFn("cosh", math.Cosh),
	"tanh": floatFn("tanh", math.Tanh),
	"atan": floatFn("atan", math.Atan),
	"asin": domainFn(math.Asin, unitRange,
		"asin must be called with a value in the range [-1 .. 1] (inclusive)"),
	"acos": domainFn(math.Acos, unitRange,
		"acos must be called with a value in the range [-1 .. 1] (inclusive)"),
	"asinh": floatFn("asinh", math.Asinh),
	"acosh": domainFn(math.Acosh, func(x float64) bool { return x >= 1 },
		"acosh must be called with a value >= 1.0"),
	"atanh": domainFn(math.Atanh, func(x float64) bool { return x > -1 && x < 1 },
		"atanh must be called with a value in the range (-1 .. 1) (exclusive)"),

	"atan2": floatFnN("atan2", func(x []float64) float64 { return math.Atan2(x[0], x[1]) }),
	"pow":   floatFnN("pow", func(x []float64) float64 { return math.Pow(x[0], x[1]) }),
	"step": floatFnN("step", func(x []float64) float64 {
		if x[1] >= x[0] {
			return 1
		}
		return 0
	}),
	"fma": floatFnN("fma", func(x []float64) float64 { return x[0]*x[1] + x[2] }),
	"mix": floatFnN("mix", func(x []float64) float64 { return x[0]*(1-x[2]) + x[1]*x[2] }),
	"smoothstep": floatFnN("smoothstep", func(x []float64) float64 {
		t := math.Max(0, math.Min(1, (x[2]-x[0])/(x[1]-x[0])))
		return t * t * (3 - 2*t)
	}),
	"ldexp": ldexp,

	"quantizeToF16": quantizeToF16,
	"modf":          modf,
	"frexp":         frexp,

	"select": selectBuiltin,
	"all":    allAny(true),
	"any":    allAny(false),

	"dot":         dot,
	"cross":       cross,
	"length":      length,
	"distance":    distance,
	"normalize":   normalize,
	"faceForward": faceForward,
	"reflect":     reflect,
	"refract":     refract,
	"transpose":   transpose,
	"determinant": determinant,

	"countOneBits":       bitFn(func(u uint32, _ bool) uint32 { return uint32(bits.OnesCount32(u)) }),
	"countLeadingZeros":  bitFn(func(u uint32, _ bool) uint32 { return uint32(bits.LeadingZeros32(u)) }),
	"countTrailingZeros": bitFn(func(u uint32, _ bool) uint32 { return uint32(bits.TrailingZeros32(u)) }),
	"reverseBits":        bitFn(func(u uint32, _ bool) uint32 { return bits.Reverse32(u) }),
	"firstLeadingBit":    bitFn(firstLeadingBit),
	"firstTrailingBit": bitFn(func(u uint32, _ bool) uint32 {
		if u == 0 {
			return math.MaxUint32
		}
		return uint32(bits.TrailingZeros32(u))
	}),
	"extractBits": extractBits,
	"insertBits":  insertBits,

	"pack4x8snorm":    packNorm(4, 8, true),
	"pack4x8unorm":    packNorm(4, 8, false),
	"pack2x16snorm":   packNorm(2, 16, true),
	"pack2x16unorm":   packNorm(2, 16, false),
	"unpack4x8snorm":  unpackNorm(4, 8, true),
	"unpack4x8unorm":  unpackNorm(4, 8, false),
	"unpack2x16snorm": unpackNorm(2, 16, true),
	"unpack2x16unorm": unpackNorm(2, 16, false),
	"pack2x16float":   pack2x16float,
	"unpack2x16float": unpack2x16float,
}

func unitRange(x float64) bool { return x >= -1 && x <= 1 }

// argList renders arguments for warning messages.
func argList(args []Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = Literal(a)
	}
	return strings.Join(parts, ", ")
}

// floatResult builds a float of the same kind as like, reporting results
// that overflow the type when every input was finite.
func floatResult(name string, like Value, in []Value, r float64, w Warner) Value {
	res := scalarFromFloat(kindOf(like), r)
	if isFinite(AsFloat64(res)) {
		return res
	}
	for _, v := range in {
		if !isFinite(AsFloat64(v)) {
			return res
		}
	}
	warnf(w, "'%s(%s)' cannot be represented as '%s'", name, argList(in), like.Type())
	return scalarFromFloat(kindOf(like), 0)
}

func floatFn(name string, f func(float64) float64) builtinFunc {
	return func(args []Value, _ types.Type, w Warner) (Value, error) {
		return map1(args[0], func(v Value) Value {
			return floatResult(name, v, []Value{v}, f(AsFloat64(v)), w)
		}), nil
	}
}

// domainFn evaluates f when ok accepts the input, otherwise it reports msg
// and yields zero.
func domainFn(f func(float64) float64, ok func(float64) bool, msg string) builtinFunc {
	return func(args []Value, _ types.Type, w Warner) (Value, error) {
		return map1(args[0], func(v Value) Value {
			x := AsFloat64(v)
			if isFinite(x) && !ok(x) {
				warnf(w, "%s", msg)
				return scalarFromFloat(kindOf(v), 0)
			}
			return scalarFromFloat(kindOf(v), f(x))
		}), nil
	}
}

func floatFnN(name string, f func([]float64) float64) builtinFunc {
	return func(args []Value, _ types.Type, w Warner) (Value, error) {
		return mapN(args, func(xs []Value) Value {
			fs := make([]float64, len(xs))
			for i, x := range xs {
				fs[i] = AsFloat64(x)
			}
			in := append([]Value(nil), xs...)
			return floatResult(name, xs[0], in, f(fs), w)
		}), nil
	}
}

func abs(args []Value, _ types.Type, _ Warner) (Value, error) {
	return map1(args[0], func(v Value) Value {
		switch v := v.(type) {
		case I32:
			if v < 0 {
				return -v
			}
			return v
		case AbstractInt:
			if v < 0 {
				return -v
			}
			return v
		case U32:
			return v
		}
		return scalarFromFloat(kindOf(v), math.Abs(AsFloat64(v)))
	}), nil
}

func less(a, b Value) bool {
	if ia, ok := AsInt64(a); ok {
		ib, _ := AsInt64(b)
		return ia < ib
	}
	return AsFloat64(a) < AsFloat64(b)
}

func minMax(isMax bool) builtinFunc {
	return func(args []Value, _ types.Type, _ Warner) (Value, error) {
		return mapN(args, func(xs []Value) Value {
			if less(xs[0], xs[1]) != isMax {
				return xs[0]
			}
			return xs[1]
		}), nil
	}
}

func clamp(args []Value, _ types.Type, _ Warner) (Value, error) {
	return mapN(args, func(xs []Value) Value {
		v := xs[0]
		if less(v, xs[1]) {
			v = xs[1]
		}
		if less(xs[2], v) {
			v = xs[2]
		}
		return v
	}), nil
}

func signBuiltin(args []Value, _ types.Type, _ Warner) (Value, error) {
	return map1(args[0], func(v Value) Value {
		if i, ok := AsInt64(v); ok {
			return scalarFromInt(kindOf(v), int64(sign(float64(i))))
		}
		return scalarFromFloat(kindOf(v), sign(AsFloat64(v)))
	}), nil
}

func ldexp(args []Value, _ types.Type, w Warner) (Value, error) {
	return mapN(args, func(xs []Value) Value {
		e, _ := AsInt64(xs[1])
		if e > 1<<16 {
			e = 1 << 16
		}
		return floatResult("ldexp", xs[0], []Value{xs[0], xs[1]}, math.Ldexp(AsFloat64(xs[0]), int(e)), w)
	}), nil
}

func quantizeToF16(args []Value, _ types.Type, w Warner) (Value, error) {
	return map1(args[0], func(v Value) Value {
		x := AsFloat64(v)
		if !fitsF16(x) {
			warnf(w, "value %s cannot be represented as 'f16'", Literal(v))
			return F32(0)
		}
		return F32(QuantizeF16(float32(x)))
	}), nil
}

// splitStruct builds a two-member result structure from component-wise
// results.
func splitStruct(ret types.Type, arg Value, f func(Value) (Value, Value)) (Value, error) {
	st, ok := ret.(*types.Struct)
	if !ok || len(st.Members) != 2 {
		return nil, fmt.Errorf("unexpected result type %s", ret)
	}
	c, isVec := arg.(*Composite)
	if !isVec {
		a, b := f(arg)
		return &Composite{T: st, Elems: []Value{a, b}}, nil
	}
	as := make([]Value, len(c.Elems))
	bs := make([]Value, len(c.Elems))
	for i, e := range c.Elems {
		as[i], bs[i] = f(e)
	}
	return &Composite{T: st, Elems: []Value{
		&Composite{T: st.Members[0].Type, Elems: as},
		&Composite{T: st.Members[1].Type, Elems: bs},
	}}, nil
}

func modf(args []Value, ret types.Type, _ Warner) (Value, error) {
	return splitStruct(ret, args[0], func(v Value) (Value, Value) {
		x := AsFloat64(v)
		whole := math.Trunc(x)
		return scalarFromFloat(kindOf(v), x-whole), scalarFromFloat(kindOf(v), whole)
	})
}

func frexp(args []Value, ret types.Type, _ Warner) (Value, error) {
	return splitStruct(ret, args[0], func(v Value) (Value, Value) {
		frac, exp := math.Frexp(AsFloat64(v))
		var e Value = I32(int32(exp))
		if kindOf(v) == types.KindAbstractFloat {
			e = AbstractInt(exp)
		}
		return scalarFromFloat(kindOf(v), frac), e
	})
}

func selectBuiltin(args []Value, _ types.Type, _ Warner) (Value, error) {
	f, t, cond := args[0], args[1], args[2]
	if _, ok := cond.(Bool); ok {
		if AsBool(cond) {
			return t, nil
		}
		return f, nil
	}
	return mapN(args, func(xs []Value) Value {
		if AsBool(xs[2]) {
			return xs[1]
		}
		return xs[0]
	}), nil
}

func allAny(isAll bool) builtinFunc {
	return func(args []Value, _ types.Type, _ Warner) (Value, error) {
		c, ok := args[0].(*Composite)
		if !ok {
			return args[0], nil
		}
		for _, e := range c.Elems {
			if AsBool(e) != isAll {
				return Bool(!isAll), nil
			}
		}
		return Bool(isAll), nil
	}
}

func floats(v Value) []float64 {
	es := Elements(v)
	out := make([]float64, len(es))
	for i, e := range es {
		out[i] = AsFloat64(e)
	}
	return out
}

func vectorOf(like Value, xs []float64) *Composite {
	kind := types.ScalarOf(like.Type()).Kind
	elems := make([]Value, len(xs))
	for i, x := range xs {
		elems[i] = scalarFromFloat(kind, x)
	}
	return &Composite{T: like.Type(), Elems: elems}
}

func dot(args []Value, _ types.Type, w Warner) (Value, error) {
	return dotValues(args[0].(*Composite), args[1].(*Composite), w)
}

func cross(args []Value, _ types.Type, _ Warner) (Value, error) {
	a, b := floats(args[0]), floats(args[1])
	return vectorOf(args[0], []float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}), nil
}

func norm(v Value) float64 {
	if _, ok := v.(*Composite); !ok {
		return math.Abs(AsFloat64(v))
	}
	var sum float64
	for _, x := range floats(v) {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func scalarLike(v Value, x float64) Value {
	return scalarFromFloat(types.ScalarOf(v.Type()).Kind, x)
}

func length(args []Value, _ types.Type, _ Warner) (Value, error) {
	return scalarLike(args[0], norm(args[0])), nil
}

func distance(args []Value, _ types.Type, w Warner) (Value, error) {
	d, err := Binary(wgsl.OpSub, args[0], args[1], w)
	if err != nil {
		return nil, err
	}
	return scalarLike(args[0], norm(d)), nil
}

func normalize(args []Value, _ types.Type, w Warner) (Value, error) {
	n := norm(args[0])
	if n == 0 {
		warnf(w, "zero length vector can not be normalized")
		return Zero(args[0].Type()), nil
	}
	xs := floats(args[0])
	for i := range xs {
		xs[i] /= n
	}
	return vectorOf(args[0], xs), nil
}

func faceForward(args []Value, _ types.Type, _ Warner) (Value, error) {
	n, i, ref := floats(args[0]), floats(args[1]), floats(args[2])
	if dotf(i, ref) < 0 {
		return args[0], nil
	}
	for k := range n {
		n[k] = -n[k]
	}
	return vectorOf(args[0], n), nil
}

func dotf(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func reflect(args []Value, _ types.Type, _ Warner) (Value, error) {
	i, n := floats(args[0]), floats(args[1])
	d := dotf(n, i)
	out := make([]float64, len(i))
	for k := range i {
		out[k] = i[k] - 2*d*n[k]
	}
	return vectorOf(args[0], out), nil
}

func refract(args []Value, _ types.Type, _ Warner) (Value, error) {
	i, n := floats(args[0]), floats(args[1])
	eta := AsFloat64(args[2])
	d := dotf(n, i)
	k := 1 - eta*eta*(1-d*d)
	out := make([]float64, len(i))
	if k >= 0 {
		for j := range i {
			out[j] = eta*i[j] - (eta*d+math.Sqrt(k))*n[j]
		}
	}
	return vectorOf(args[0], out), nil
}

func transpose(args []Value, _ types.Type, _ Warner) (Value, error) {
	m := args[0].(*Composite)
	mt := m.T.(*types.Matrix)
	rt := &types.Matrix{Cols: mt.Rows, Rows: mt.Cols, Elem: mt.Elem}
	cols := make([]Value, rt.Cols)
	for c := range cols {
		elems := make([]Value, rt.Rows)
		for r := range elems {
			elems[r] = column(m, r).Elems[c]
		}
		cols[c] = &Composite{T: rt.Column(), Elems: elems}
	}
	return &Composite{T: rt, Elems: cols}, nil
}

func determinant(args []Value, _ types.Type, _ Warner) (Value, error) {
	m := args[0].(*Composite)
	n := len(m.Elems)
	a := make([][]float64, n)
	for c := range a {
		a[c] = floats(m.Elems[c])
	}
	return scalarLike(m, det(a)), nil
}

// det computes the determinant by cofactor expansion along the first column.
func det(a [][]float64) float64 {
	n := len(a)
	if n == 1 {
		return a[0][0]
	}
	if n == 2 {
		return a[0][0]*a[1][1] - a[1][0]*a[0][1]
	}
	var sum float64
	for r := range n {
		minor := make([][]float64, n-1)
		for c := 1; c < n; c++ {
			col := make([]float64, 0, n-1)
			for rr := range n {
				if rr != r {
					col = append(col, a[c][rr])
				}
			}
			minor[c-1] = col
		}
		s := 1.0
		if r%2 == 1 {
			s = -1
		}
		sum += s * a[0][r] * det(minor)
	}
	return sum
}

// bitFn applies f to the 32-bit pattern of each integer component. signed
// tells f whether the component is i32.
func bitFn(f func(u uint32, signed bool) uint32) builtinFunc {
	return func(args []Value, _ types.Type, _ Warner) (Value, error) {
		return map1(args[0], func(v Value) Value {
			signed := kindOf(v) != types.KindU32
			return fromBits(v, f(AsU32(v), signed))
		}), nil
	}
}

func fromBits(like Value, u uint32) Value {
	if kindOf(like) == types.KindU32 {
		return U32(u)
	}
	return I32(int32(u))
}

func firstLeadingBit(u uint32, signed bool) uint32 {
	if signed && int32(u) < 0 {
		u = ^u
	}
	if u == 0 {
		return math.MaxUint32
	}
	return uint32(31 - bits.LeadingZeros32(u))
}

func extractBits(args []Value, _ types.Type, _ Warner) (Value, error) {
	offset, count := AsU32(args[1]), AsU32(args[2])
	o := min(offset, 32)
	c := min(count, 32-o)
	return map1(args[0], func(v Value) Value {
		if c == 0 {
			return fromBits(v, 0)
		}
		u := AsU32(v) >> o
		if c < 32 {
			u &= 1<<c - 1
		}
		if kindOf(v) != types.KindU32 && c < 32 && u&(1<<(c-1)) != 0 {
			u |= ^uint32(0) << c
		}
		return fromBits(v, u)
	}), nil
}

func insertBits(args []Value, _ types.Type, _ Warner) (Value, error) {
	offset, count := AsU32(args[2]), AsU32(args[3])
	o := min(offset, 32)
	c := min(count, 32-o)
	var mask uint32
	if c == 32 {
		mask = math.MaxUint32
	} else if c > 0 {
		mask = (1<<c - 1) << o
	}
	return mapN(args[:2], func(xs []Value) Value {
		e, nb := AsU32(xs[0]), AsU32(xs[1])
		return fromBits(xs[0], e&^mask|(nb<<o)&mask)
	}), nil
}

func packNorm(n, width int, signed bool) builtinFunc {
	scale := float64(uint32(1)<<width - 1)
	if signed {
		scale = float64(uint32(1)<<(width-1) - 1)
	}
	return func(args []Value, _ types.Type, _ Warner) (Value, error) {
		xs := floats(args[0])
		var out uint32
		for i := range n {
			var bitsVal uint32
			if signed {
				v := math.RoundToEven(math.Max(-1, math.Min(1, xs[i])) * scale)
				bitsVal = uint32(int32(v)) & (1<<width - 1)
			} else {
				bitsVal = uint32(math.RoundToEven(math.Max(0, math.Min(1, xs[i])) * scale))
			}
			out |= bitsVal << (i * width)
		}
		return U32(out), nil
	}
}

func unpackNorm(n, width int, signed bool) builtinFunc {
	scale := float64(uint32(1)<<width - 1)
	if signed {
		scale = float64(uint32(1)<<(width-1) - 1)
	}
	return func(args []Value, _ types.Type, _ Warner) (Value, error) {
		u := AsU32(args[0])
		elems := make([]Value, n)
		for i := range elems {
			field := u >> (i * width) & (1<<width - 1)
			var x float64
			if signed {
				// Sign-extend the field.
				s := int32(field<<(32-width)) >> (32 - width)
				x = math.Max(float64(s)/scale, -1)
			} else {
				x = float64(field) / scale
			}
			elems[i] = F32(float32(x))
		}
		return &Composite{T: &types.Vector{N: n, Elem: types.F32}, Elems: elems}, nil
	}
}

func pack2x16float(args []Value, _ types.Type, w Warner) (Value, error) {
	xs := floats(args[0])
	var out uint32
	for i, x := range xs {
		if !fitsF16(x) {
			warnf(w, "value %s cannot be represented as 'f16'", Literal(F32(float32(x))))
		}
		out |= uint32(F16Bits(float32(x))) << (16 * i)
	}
	return U32(out), nil
}

func unpack2x16float(args []Value, _ types.Type, _ Warner) (Value, error) {
	u := AsU32(args[0])
	return &Composite{T: &types.Vector{N: 2, Elem: types.F32}, Elems: []Value{
		F32(F16FromBits(uint16(u))),
		F32(F16FromBits(uint16(u >> 16))),
	}}, nil
}
