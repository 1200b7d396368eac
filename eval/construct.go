package eval

import (
	"fmt"

	"github.com/gogpu/wgslinterp/types"
)

// Construct evaluates a value constructor or conversion of type t.
// With no arguments it yields the zero value. A single scalar splats over a
// vector; vector arguments are flattened into their components.
func Construct(t types.Type, args []Value, w Warner) (Value, error) {
	if len(args) == 0 {
		return Zero(t), nil
	}
	switch t := t.(type) {
	case *types.Scalar:
		return Convert(args[0], t, w), nil

	case *types.Vector:
		if len(args) == 1 {
			return Convert(args[0], t, w), nil
		}
		var elems []Value
		for _, a := range args {
			elems = append(elems, flatten(a)...)
		}
		if len(elems) != t.N {
			return nil, fmt.Errorf("%s constructor expects %d components, got %d", t, t.N, len(elems))
		}
		for i, e := range elems {
			elems[i] = Convert(e, t.Elem, w)
		}
		return &Composite{T: t, Elems: elems}, nil

	case *types.Matrix:
		if len(args) == 1 {
			if _, ok := args[0].Type().(*types.Matrix); ok {
				return Convert(args[0], t, w), nil
			}
		}
		var scalars []Value
		for _, a := range args {
			scalars = append(scalars, flatten(a)...)
		}
		if len(scalars) != t.Cols*t.Rows {
			return nil, fmt.Errorf("%s constructor expects %d components, got %d", t, t.Cols*t.Rows, len(scalars))
		}
		col := t.Column()
		cols := make([]Value, t.Cols)
		for c := range cols {
			elems := make([]Value, t.Rows)
			for r := range elems {
				elems[r] = Convert(scalars[c*t.Rows+r], t.Elem, w)
			}
			cols[c] = &Composite{T: col, Elems: elems}
		}
		return &Composite{T: t, Elems: cols}, nil

	case *types.Array:
		elems := make([]Value, len(args))
		for i, a := range args {
			elems[i] = Convert(a, t.Elem, w)
		}
		return &Composite{T: t, Elems: elems}, nil

	case *types.Struct:
		if len(args) != len(t.Members) {
			return nil, fmt.Errorf("%s constructor expects %d arguments, got %d", t, len(t.Members), len(args))
		}
		elems := make([]Value, len(args))
		for i, a := range args {
			elems[i] = Convert(a, t.Members[i].Type, w)
		}
		return &Composite{T: t, Elems: elems}, nil
	}
	return nil, fmt.Errorf("cannot construct a value of type %s", t)
}

// Swizzle selects vector components by index.
func Swizzle(v Value, indices []int) Value {
	c := v.(*Composite)
	if len(indices) == 1 {
		return c.Elems[indices[0]]
	}
	vt := c.T.(*types.Vector)
	elems := make([]Value, len(indices))
	for i, idx := range indices {
		elems[i] = c.Elems[idx]
	}
	return &Composite{T: &types.Vector{N: len(indices), Elem: vt.Elem}, Elems: elems}
}

// With returns a copy of the composite v with element i replaced.
func With(v Value, i int, e Value) Value {
	c := v.(*Composite)
	elems := append([]Value(nil), c.Elems...)
	elems[i] = e
	return &Composite{T: c.T, Elems: elems}
}
