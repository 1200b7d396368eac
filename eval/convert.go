package eval

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/wgslinterp/types"
)

// Convert converts v to type to component-wise. Scalars follow the WGSL
// value conversion rules: floats truncate toward zero and clamp when
// converted to integers, integers reinterpret bits between i32 and u32.
// Values that cannot be represented in the target type are reported to w
// and the wrapped or infinite result is kept.
func Convert(v Value, to types.Type, w Warner) Value {
	switch to := to.(type) {
	case *types.Scalar:
		return convertScalar(v, to, w)
	case *types.Vector, *types.Matrix:
		s := types.ScalarOf(to)
		c, ok := v.(*Composite)
		if !ok {
			return Splat(to.(*types.Vector), convertScalar(v, s, w))
		}
		elems := make([]Value, len(c.Elems))
		for i, e := range c.Elems {
			if _, isMat := to.(*types.Matrix); isMat {
				elems[i] = Convert(e, to.(*types.Matrix).Column(), w)
			} else {
				elems[i] = convertScalar(e, s, w)
			}
		}
		return &Composite{T: to, Elems: elems}
	case *types.Array:
		c := v.(*Composite)
		elems := make([]Value, len(c.Elems))
		for i, e := range c.Elems {
			elems[i] = Convert(e, to.Elem, w)
		}
		return &Composite{T: to, Elems: elems}
	}
	return v
}

// Materialize converts an abstract value to its default concrete type:
// abstract-int becomes i32 and abstract-float becomes f32.
func Materialize(v Value, w Warner) Value {
	t := v.Type()
	if !types.IsAbstract(t) {
		return v
	}
	return Convert(v, ConcreteType(t), w)
}

// ConcreteType maps abstract scalars in t to their default concrete types.
func ConcreteType(t types.Type) types.Type {
	if a, ok := t.(*types.Array); ok {
		return &types.Array{Elem: ConcreteType(a.Elem), Count: a.Count, Size: a.Size, CountExpr: a.CountExpr}
	}
	s := types.ScalarOf(t)
	if s == nil {
		return t
	}
	switch s.Kind {
	case types.KindAbstractInt:
		return types.WithScalar(t, types.I32)
	case types.KindAbstractFloat:
		return types.WithScalar(t, types.F32)
	}
	return t
}

func unrepresentable(w Warner, v Value, to *types.Scalar) {
	warnf(w, "value %s cannot be represented as '%s'", Literal(v), to)
}

func convertScalar(v Value, to *types.Scalar, w Warner) Value {
	if v.Type() == types.Type(to) {
		return v
	}
	from := types.ScalarOf(v.Type())
	switch to.Kind {
	case types.KindBool:
		return Bool(AsFloat64(v) != 0)

	case types.KindI32:
		switch v := v.(type) {
		case Bool:
			return scalarFromInt(to.Kind, int64(AsFloat64(v)))
		case U32:
			return I32(int32(v))
		case AbstractInt:
			if v < math.MinInt32 || v > math.MaxInt32 {
				unrepresentable(w, v, to)
			}
			return I32(int32(v))
		}
		return I32(int32(clampFloat(AsFloat64(v), math.MinInt32, math.MaxInt32)))

	case types.KindU32:
		switch v := v.(type) {
		case Bool:
			return scalarFromInt(to.Kind, int64(AsFloat64(v)))
		case I32:
			return U32(uint32(v))
		case AbstractInt:
			if v < 0 || v > math.MaxUint32 {
				unrepresentable(w, v, to)
			}
			return U32(uint32(v))
		}
		return U32(uint32(clampFloat(AsFloat64(v), 0, math.MaxUint32)))

	case types.KindF32:
		x := AsFloat64(v)
		f := float32(x)
		if from.Kind == types.KindAbstractFloat && !math.IsInf(x, 0) && math.IsInf(float64(f), 0) {
			unrepresentable(w, v, to)
		}
		return F32(f)

	case types.KindF16:
		x := AsFloat64(v)
		if !fitsF16(x) {
			unrepresentable(w, v, to)
			return F16(float32(math.Inf(int(sign(x)))))
		}
		return F16(QuantizeF16(float32(x)))

	case types.KindAbstractFloat:
		return AbstractFloat(AsFloat64(v))

	case types.KindAbstractInt:
		if i, ok := AsInt64(v); ok {
			return AbstractInt(i)
		}
		return AbstractInt(int64(AsFloat64(v)))
	}
	return v
}

func sign(x float64) float64 {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	}
	return 0
}

// clampFloat truncates x toward zero and clamps it to [lo, hi]. NaN maps to
// zero.
func clampFloat(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	x = math.Trunc(x)
	return math.Max(lo, math.Min(hi, x))
}

// Bitcast reinterprets the bits of v as type to. The source and target must
// have the same byte size; vectors of f16 may be reinterpreted as 32-bit
// scalars and back. A float result that is not finite is reported to w.
func Bitcast(v Value, to types.Type, w Warner) (Value, error) {
	buf := packedBytes(v)
	if uint64(len(buf)) != packedSize(to) {
		return nil, fmt.Errorf("bitcast from %s to %s: size mismatch", v.Type(), to)
	}
	out := decodePacked(to, buf)
	s := types.ScalarOf(to)
	if s.IsFloat() {
		for _, e := range append([]Value{out}, Elements(out)...) {
			if _, ok := e.(*Composite); ok {
				continue
			}
			if x := AsFloat64(e); math.IsNaN(x) || math.IsInf(x, 0) {
				unrepresentable(w, e, s)
				break
			}
		}
	}
	return out, nil
}

// packedBytes writes the scalar components of v back to back.
func packedBytes(v Value) []byte {
	var buf []byte
	for _, e := range flatten(v) {
		switch e := e.(type) {
		case I32:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(e))
		case U32:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(e))
		case F32:
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(e)))
		case F16:
			buf = binary.LittleEndian.AppendUint16(buf, F16Bits(float32(e)))
		case AbstractInt:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(e))
		case AbstractFloat:
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(e)))
		}
	}
	return buf
}

func packedSize(t types.Type) uint64 {
	s := types.ScalarOf(t)
	n := uint64(1)
	if v, ok := t.(*types.Vector); ok {
		n = uint64(v.N)
	}
	if s.Kind == types.KindF16 {
		return 2 * n
	}
	return 4 * n
}

func decodePacked(t types.Type, buf []byte) Value {
	s := types.ScalarOf(t)
	width := 4
	if s.Kind == types.KindF16 {
		width = 2
	}
	scalar := func(b []byte) Value {
		switch s.Kind {
		case types.KindI32:
			return I32(int32(binary.LittleEndian.Uint32(b)))
		case types.KindU32:
			return U32(binary.LittleEndian.Uint32(b))
		case types.KindF16:
			return F16(F16FromBits(binary.LittleEndian.Uint16(b)))
		}
		return F32(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	vec, ok := t.(*types.Vector)
	if !ok {
		return scalar(buf)
	}
	elems := make([]Value, vec.N)
	for i := range elems {
		elems[i] = scalar(buf[i*width:])
	}
	return &Composite{T: vec, Elems: elems}
}

// flatten returns the scalar leaves of v in order.
func flatten(v Value) []Value {
	c, ok := v.(*Composite)
	if !ok {
		return []Value{v}
	}
	var out []Value
	for _, e := range c.Elems {
		out = append(out, flatten(e)...)
	}
	return out
}
