// Package eval implements WGSL values and the semantics of operators,
// conversions and builtin functions on them.
//
// The same code folds constant expressions in the resolver and evaluates
// runtime expressions in the interpreter. Conditions that WGSL leaves as
// undefined or that cannot be represented are reported through a Warner and
// replaced by a defined fallback value.
package eval

import (
	"github.com/gogpu/wgslinterp/types"
)

// Value is a WGSL value.
type Value interface {
	Type() types.Type
}

// Scalar values.
type (
	Bool          bool
	I32           int32
	U32           uint32
	F32           float32
	F16           float32 // always exactly representable as a binary16
	AbstractInt   int64
	AbstractFloat float64
)

func (Bool) Type() types.Type          { return types.Bool }
func (I32) Type() types.Type           { return types.I32 }
func (U32) Type() types.Type           { return types.U32 }
func (F32) Type() types.Type           { return types.F32 }
func (F16) Type() types.Type           { return types.F16 }
func (AbstractInt) Type() types.Type   { return types.AbstractInt }
func (AbstractFloat) Type() types.Type { return types.AbstractFloat }

// Composite is a vector, matrix (columns), array or structure value.
// Composites are immutable once built.
type Composite struct {
	T     types.Type
	Elems []Value
}

// Type returns the composite type.
func (c *Composite) Type() types.Type { return c.T }

// Warner receives non-fatal evaluation diagnostics.
type Warner interface {
	Warnf(format string, args ...any)
}

// Strict is implemented by Warners that fold constant expressions. Under a
// Strict warner, i32 and u32 arithmetic that would wrap is reported like
// any other unrepresentable result; at runtime it wraps silently.
type Strict interface {
	Warner
	Strict() bool
}

func isStrict(w Warner) bool {
	s, ok := w.(Strict)
	return ok && s.Strict()
}

func warnf(w Warner, format string, args ...any) {
	if w != nil {
		w.Warnf(format, args...)
	}
}

// Zero returns the zero value of t. Runtime-sized arrays have no elements.
func Zero(t types.Type) Value {
	switch t := t.(type) {
	case *types.Scalar:
		return scalarFromFloat(t.Kind, 0)
	case *types.Vector:
		return Splat(t, Zero(t.Elem))
	case *types.Matrix:
		col := t.Column()
		elems := make([]Value, t.Cols)
		for i := range elems {
			elems[i] = Zero(col)
		}
		return &Composite{T: t, Elems: elems}
	case *types.Array:
		elems := make([]Value, t.Count)
		for i := range elems {
			elems[i] = Zero(t.Elem)
		}
		return &Composite{T: t, Elems: elems}
	case *types.Struct:
		elems := make([]Value, len(t.Members))
		for i, m := range t.Members {
			elems[i] = Zero(m.Type)
		}
		return &Composite{T: t, Elems: elems}
	case *types.Atomic:
		return Zero(t.Elem)
	}
	return nil
}

// Splat builds a vector with every component set to s.
func Splat(t *types.Vector, s Value) *Composite {
	elems := make([]Value, t.N)
	for i := range elems {
		elems[i] = s
	}
	return &Composite{T: t, Elems: elems}
}

// Elements returns the elements of a composite, or nil for a scalar.
func Elements(v Value) []Value {
	if c, ok := v.(*Composite); ok {
		return c.Elems
	}
	return nil
}

// Index returns element i of a composite value.
func Index(v Value, i int) Value {
	return v.(*Composite).Elems[i]
}

// Len returns the number of elements of a composite value.
func Len(v Value) int {
	return len(Elements(v))
}

// AsBool returns a bool scalar's value.
func AsBool(v Value) bool {
	b, _ := v.(Bool)
	return bool(b)
}

// AsU32 returns an integer scalar reinterpreted as u32. Negative i32 values
// wrap, so they index far out of bounds.
func AsU32(v Value) uint32 {
	switch v := v.(type) {
	case U32:
		return uint32(v)
	case I32:
		return uint32(v)
	case AbstractInt:
		return uint32(v)
	case Bool:
		if v {
			return 1
		}
	}
	return 0
}

// AsInt64 returns an integer scalar's value.
func AsInt64(v Value) (int64, bool) {
	switch v := v.(type) {
	case I32:
		return int64(v), true
	case U32:
		return int64(v), true
	case AbstractInt:
		return int64(v), true
	}
	return 0, false
}

// AsFloat64 returns a numeric scalar's value as float64.
func AsFloat64(v Value) float64 {
	switch v := v.(type) {
	case I32:
		return float64(v)
	case U32:
		return float64(v)
	case AbstractInt:
		return float64(v)
	case F32:
		return float64(v)
	case F16:
		return float64(v)
	case AbstractFloat:
		return float64(v)
	case Bool:
		if v {
			return 1
		}
	}
	return 0
}

// Equal reports whether two values have equal types and components.
func Equal(a, b Value) bool {
	ca, aok := a.(*Composite)
	cb, bok := b.(*Composite)
	if aok != bok {
		return false
	}
	if !aok {
		return a == b
	}
	if len(ca.Elems) != len(cb.Elems) || !types.Equal(ca.T, cb.T) {
		return false
	}
	for i := range ca.Elems {
		if !Equal(ca.Elems[i], cb.Elems[i]) {
			return false
		}
	}
	return true
}

// scalarFromFloat builds a scalar of the given kind from a float64.
func scalarFromFloat(kind types.ScalarKind, x float64) Value {
	switch kind {
	case types.KindBool:
		return Bool(x != 0)
	case types.KindI32:
		return I32(int32(x))
	case types.KindU32:
		return U32(uint32(x))
	case types.KindF32:
		return F32(float32(x))
	case types.KindF16:
		return F16(QuantizeF16(float32(x)))
	case types.KindAbstractInt:
		return AbstractInt(int64(x))
	default:
		return AbstractFloat(x)
	}
}

// scalarFromInt builds an integer scalar, wrapping to the width of kind.
func scalarFromInt(kind types.ScalarKind, x int64) Value {
	switch kind {
	case types.KindI32:
		return I32(int32(x))
	case types.KindU32:
		return U32(uint32(x))
	case types.KindAbstractInt:
		return AbstractInt(x)
	case types.KindBool:
		return Bool(x != 0)
	}
	return scalarFromFloat(kind, float64(x))
}

// FromInt64 builds a scalar of type t from an integer.
func FromInt64(t *types.Scalar, x int64) Value { return scalarFromInt(t.Kind, x) }

// FromFloat64 builds a scalar of type t from a float.
func FromFloat64(t *types.Scalar, x float64) Value { return scalarFromFloat(t.Kind, x) }

func kindOf(v Value) types.ScalarKind {
	return types.ScalarOf(v.Type()).Kind
}

// map1 applies f to every scalar component of v.
func map1(v Value, f func(Value) Value) Value {
	c, ok := v.(*Composite)
	if !ok {
		return f(v)
	}
	elems := make([]Value, len(c.Elems))
	for i, e := range c.Elems {
		elems[i] = map1(e, f)
	}
	return &Composite{T: c.T, Elems: elems}
}

// mapN applies f component-wise over args. Scalar arguments are splatted
// against vector arguments. The result type follows the first vector
// argument, rebuilt with the scalar type of the results.
func mapN(args []Value, f func([]Value) Value) Value {
	var shape *Composite
	for _, a := range args {
		if c, ok := a.(*Composite); ok {
			shape = c
			break
		}
	}
	if shape == nil {
		return f(args)
	}
	elems := make([]Value, len(shape.Elems))
	xs := make([]Value, len(args))
	for i := range elems {
		for j, a := range args {
			if c, ok := a.(*Composite); ok {
				xs[j] = c.Elems[i]
			} else {
				xs[j] = a
			}
		}
		elems[i] = mapN(xs, f)
	}
	return &Composite{T: rebuildType(shape.T, elems), Elems: elems}
}

// rebuildType returns t with its scalar replaced by the scalar type of
// the (first) result element.
func rebuildType(t types.Type, elems []Value) types.Type {
	if len(elems) == 0 {
		return t
	}
	s := types.ScalarOf(elems[0].Type())
	if s == nil {
		return t
	}
	if types.ScalarOf(t) == s {
		return t
	}
	return types.WithScalar(t, s)
}
