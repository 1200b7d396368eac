package eval

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

// Unary applies a value operator (-, ! or ~) component-wise.
func Unary(op wgsl.UnaryOp, x Value, w Warner) (Value, error) {
	switch op {
	case wgsl.OpNeg:
		return map1(x, func(v Value) Value {
			switch v := v.(type) {
			case I32:
				return -v
			case AbstractInt:
				if v == math.MinInt64 {
					warnf(w, "'-%s' cannot be represented as 'abstract-int'", Literal(v))
				}
				return -v
			case F32:
				return -v
			case F16:
				return -v
			case AbstractFloat:
				return -v
			}
			return v
		}), nil
	case wgsl.OpNot:
		return map1(x, func(v Value) Value { return !v.(Bool) }), nil
	case wgsl.OpCompl:
		return map1(x, func(v Value) Value {
			switch v := v.(type) {
			case I32:
				return ^v
			case U32:
				return ^v
			case AbstractInt:
				return ^v
			}
			return v
		}), nil
	}
	return nil, fmt.Errorf("unsupported unary operator '%s'", op)
}

// Binary applies an infix operator. Scalars are broadcast against vectors,
// and the linear algebra forms of * are supported for matrices. Arithmetic
// that cannot be represented is reported to w: division falls back to its
// left operand and every other operation to zero.
func Binary(op wgsl.BinaryOp, a, b Value, w Warner) (Value, error) {
	a, b = unifyAbstract(a, b, op)
	ma, aIsMat := a.Type().(*types.Matrix)
	mb, bIsMat := b.Type().(*types.Matrix)
	if op == wgsl.OpMul && (aIsMat || bIsMat) {
		_, aIsVec := a.Type().(*types.Vector)
		_, bIsVec := b.Type().(*types.Vector)
		switch {
		case aIsMat && bIsMat:
			return matMul(a.(*Composite), ma, b.(*Composite), mb, w)
		case aIsMat && bIsVec:
			return matVec(a.(*Composite), ma, b.(*Composite), w)
		case aIsVec && bIsMat:
			return vecMat(a.(*Composite), b.(*Composite), mb, w)
		}
	}
	if op == wgsl.OpEq || op == wgsl.OpNe {
		if _, ok := a.(*Composite); ok && !isVector(a) {
			return nil, fmt.Errorf("operator '%s' is not defined for %s", op, a.Type())
		}
	}

	var err error
	res := mapN([]Value{a, b}, func(xs []Value) Value {
		r, e := scalarBinary(op, xs[0], xs[1], w)
		if e != nil && err == nil {
			err = e
		}
		return r
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func isVector(v Value) bool {
	_, ok := v.Type().(*types.Vector)
	return ok
}

// unifyAbstract converts an abstract operand to the concrete scalar type of
// the other operand. Shift amounts are always u32.
func unifyAbstract(a, b Value, op wgsl.BinaryOp) (Value, Value) {
	sa, sb := types.ScalarOf(a.Type()), types.ScalarOf(b.Type())
	if sa == nil || sb == nil || sa == sb {
		return a, b
	}
	if op == wgsl.OpShl || op == wgsl.OpShr {
		if sb.IsAbstract() && !sa.IsAbstract() {
			b = Convert(b, types.WithScalar(b.Type(), types.U32), nil)
		}
		return a, b
	}
	switch {
	case sa.IsAbstract() && !sb.IsAbstract():
		a = Convert(a, types.WithScalar(a.Type(), sb), nil)
	case sb.IsAbstract() && !sa.IsAbstract():
		b = Convert(b, types.WithScalar(b.Type(), sa), nil)
	case sa.Kind == types.KindAbstractInt && sb.Kind == types.KindAbstractFloat:
		a = Convert(a, types.WithScalar(a.Type(), sb), nil)
	case sb.Kind == types.KindAbstractInt && sa.Kind == types.KindAbstractFloat:
		b = Convert(b, types.WithScalar(b.Type(), sa), nil)
	}
	return a, b
}

func scalarBinary(op wgsl.BinaryOp, x, y Value, w Warner) (Value, error) {
	kind := kindOf(x)
	switch {
	case kind == types.KindBool:
		return boolBinary(op, bool(x.(Bool)), bool(y.(Bool)))
	case op == wgsl.OpShl || op == wgsl.OpShr:
		return shift(op, x, y), nil
	case types.ScalarOf(x.Type()).IsInteger():
		return intBinary(op, x, y, w)
	default:
		return floatBinary(op, x, y, w)
	}
}

func boolBinary(op wgsl.BinaryOp, x, y bool) (Value, error) {
	switch op {
	case wgsl.OpLogicalAnd, wgsl.OpAnd:
		return Bool(x && y), nil
	case wgsl.OpLogicalOr, wgsl.OpOr:
		return Bool(x || y), nil
	case wgsl.OpXor, wgsl.OpNe:
		return Bool(x != y), nil
	case wgsl.OpEq:
		return Bool(x == y), nil
	}
	return nil, fmt.Errorf("operator '%s' is not defined for bool", op)
}

// shift masks the shift amount to the bit width of the left operand.
func shift(op wgsl.BinaryOp, x, y Value) Value {
	n := AsU32(y)
	switch x := x.(type) {
	case I32:
		n &= 31
		if op == wgsl.OpShl {
			return x << n
		}
		return x >> n
	case U32:
		n &= 31
		if op == wgsl.OpShl {
			return x << n
		}
		return x >> n
	case AbstractInt:
		n &= 63
		if op == wgsl.OpShl {
			return x << n
		}
		return x >> n
	}
	return x
}

func intBinary(op wgsl.BinaryOp, x, y Value, w Warner) (Value, error) {
	kind := kindOf(x)
	a, _ := AsInt64(x)
	b, _ := AsInt64(y)
	t := types.ScalarOf(x.Type())
	fail := func(fallback Value) (Value, error) {
		warnf(w, "'%s %s %s' cannot be represented as '%s'", Literal(x), op, Literal(y), t)
		return fallback, nil
	}

	switch op {
	case wgsl.OpEq:
		return Bool(a == b), nil
	case wgsl.OpNe:
		return Bool(a != b), nil
	case wgsl.OpLt:
		return Bool(a < b), nil
	case wgsl.OpLe:
		return Bool(a <= b), nil
	case wgsl.OpGt:
		return Bool(a > b), nil
	case wgsl.OpGe:
		return Bool(a >= b), nil
	case wgsl.OpAnd:
		return scalarFromInt(kind, a&b), nil
	case wgsl.OpOr:
		return scalarFromInt(kind, a|b), nil
	case wgsl.OpXor:
		return scalarFromInt(kind, a^b), nil
	}

	if kind == types.KindAbstractInt {
		return abstractIntBinary(op, a, b, fail)
	}

	minSigned := kind == types.KindI32 && a == math.MinInt32 && b == -1
	switch op {
	case wgsl.OpAdd, wgsl.OpSub, wgsl.OpMul:
		r, exact := exactIntOp(op, a, b)
		if isStrict(w) && (!exact || !fitsInt(kind, r)) {
			return fail(scalarFromInt(kind, r))
		}
		return scalarFromInt(kind, r), nil
	case wgsl.OpDiv:
		if b == 0 || minSigned {
			return fail(x)
		}
		return scalarFromInt(kind, a/b), nil
	case wgsl.OpMod:
		if b == 0 || minSigned {
			return fail(scalarFromInt(kind, 0))
		}
		return scalarFromInt(kind, a%b), nil
	}
	return nil, fmt.Errorf("operator '%s' is not defined for %s", op, t)
}

// exactIntOp computes a op b in 64 bits for operands that fit in 32 bits.
// exact is false when the product of two u32 values leaves int64.
func exactIntOp(op wgsl.BinaryOp, a, b int64) (r int64, exact bool) {
	switch op {
	case wgsl.OpAdd:
		return a + b, true
	case wgsl.OpSub:
		return a - b, true
	}
	hi, lo := bits.Mul64(uint64(abs64(a)), uint64(abs64(b)))
	return a * b, hi == 0 && lo <= math.MaxInt64
}

// fitsInt reports whether x is a value of the 32-bit integer kind.
func fitsInt(kind types.ScalarKind, x int64) bool {
	if kind == types.KindU32 {
		return x >= 0 && x <= math.MaxUint32
	}
	return x >= math.MinInt32 && x <= math.MaxInt32
}

func abstractIntBinary(op wgsl.BinaryOp, a, b int64, fail func(Value) (Value, error)) (Value, error) {
	switch op {
	case wgsl.OpAdd:
		r := a + b
		if (a >= 0) == (b >= 0) && (r >= 0) != (a >= 0) {
			return fail(AbstractInt(0))
		}
		return AbstractInt(r), nil
	case wgsl.OpSub:
		r := a - b
		if (a >= 0) != (b >= 0) && (r >= 0) != (a >= 0) {
			return fail(AbstractInt(0))
		}
		return AbstractInt(r), nil
	case wgsl.OpMul:
		hi, lo := bits.Mul64(uint64(abs64(a)), uint64(abs64(b)))
		if hi != 0 || lo > math.MaxInt64 {
			return fail(AbstractInt(0))
		}
		return AbstractInt(a * b), nil
	case wgsl.OpDiv:
		if b == 0 || (a == math.MinInt64 && b == -1) {
			return fail(AbstractInt(a))
		}
		return AbstractInt(a / b), nil
	case wgsl.OpMod:
		if b == 0 || (a == math.MinInt64 && b == -1) {
			return fail(AbstractInt(0))
		}
		return AbstractInt(a % b), nil
	}
	return nil, fmt.Errorf("operator '%s' is not defined for abstract-int", op)
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

func floatBinary(op wgsl.BinaryOp, x, y Value, w Warner) (Value, error) {
	kind := kindOf(x)
	a, b := AsFloat64(x), AsFloat64(y)
	switch op {
	case wgsl.OpEq:
		return Bool(a == b), nil
	case wgsl.OpNe:
		return Bool(a != b), nil
	case wgsl.OpLt:
		return Bool(a < b), nil
	case wgsl.OpLe:
		return Bool(a <= b), nil
	case wgsl.OpGt:
		return Bool(a > b), nil
	case wgsl.OpGe:
		return Bool(a >= b), nil
	}

	var r float64
	switch op {
	case wgsl.OpAdd:
		r = a + b
	case wgsl.OpSub:
		r = a - b
	case wgsl.OpMul:
		r = a * b
	case wgsl.OpDiv:
		r = a / b
	case wgsl.OpMod:
		r = a - b*math.Trunc(a/b)
	default:
		return nil, fmt.Errorf("operator '%s' is not defined for %s", op, x.Type())
	}
	res := scalarFromFloat(kind, r)
	if isFinite(a) && isFinite(b) && !isFinite(AsFloat64(res)) {
		warnf(w, "'%s %s %s' cannot be represented as '%s'", Literal(x), op, Literal(y), x.Type())
		if op == wgsl.OpDiv {
			return x, nil
		}
		return scalarFromFloat(kind, 0), nil
	}
	return res, nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func column(m *Composite, i int) *Composite { return m.Elems[i].(*Composite) }

// dotValues sums the products of two equally long vectors.
func dotValues(a, b *Composite, w Warner) (Value, error) {
	var sum Value
	for i := range a.Elems {
		p, err := scalarBinary(wgsl.OpMul, a.Elems[i], b.Elems[i], w)
		if err != nil {
			return nil, err
		}
		if sum == nil {
			sum = p
			continue
		}
		if sum, err = scalarBinary(wgsl.OpAdd, sum, p, w); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

// matVec multiplies a matrix by a column vector.
func matVec(m *Composite, mt *types.Matrix, v *Composite, w Warner) (Value, error) {
	elems := make([]Value, mt.Rows)
	for r := range elems {
		row := make([]Value, mt.Cols)
		for c := range row {
			row[c] = column(m, c).Elems[r]
		}
		d, err := dotValues(&Composite{Elems: row}, v, w)
		if err != nil {
			return nil, err
		}
		elems[r] = d
	}
	return &Composite{T: &types.Vector{N: mt.Rows, Elem: mt.Elem}, Elems: elems}, nil
}

// vecMat multiplies a row vector by a matrix.
func vecMat(v, m *Composite, mt *types.Matrix, w Warner) (Value, error) {
	elems := make([]Value, mt.Cols)
	for c := range elems {
		d, err := dotValues(v, column(m, c), w)
		if err != nil {
			return nil, err
		}
		elems[c] = d
	}
	return &Composite{T: &types.Vector{N: mt.Cols, Elem: mt.Elem}, Elems: elems}, nil
}

func matMul(a *Composite, at *types.Matrix, b *Composite, bt *types.Matrix, w Warner) (Value, error) {
	if at.Cols != bt.Rows {
		return nil, fmt.Errorf("cannot multiply %s by %s", at, bt)
	}
	rt := &types.Matrix{Cols: bt.Cols, Rows: at.Rows, Elem: at.Elem}
	cols := make([]Value, bt.Cols)
	for c := range cols {
		col, err := matVec(a, at, column(b, c), w)
		if err != nil {
			return nil, err
		}
		cols[c] = col
	}
	return &Composite{T: rt, Elems: cols}, nil
}
