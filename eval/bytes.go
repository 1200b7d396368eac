package eval

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/wgslinterp/types"
)

// Encode writes v into dst using the host-shareable layout of its type.
// dst must be at least types.Size(v.Type()) bytes long, or hold every
// element of a runtime-sized array.
func Encode(v Value, dst []byte) {
	switch v := v.(type) {
	case Bool:
		var u uint32
		if v {
			u = 1
		}
		binary.LittleEndian.PutUint32(dst, u)
	case I32:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case U32:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case F32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
	case F16:
		binary.LittleEndian.PutUint16(dst, F16Bits(float32(v)))
	case AbstractInt:
		binary.LittleEndian.PutUint64(dst, uint64(v))
	case AbstractFloat:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(float64(v)))
	case *Composite:
		for i, e := range v.Elems {
			Encode(e, dst[elementOffset(v.T, i):])
		}
	}
}

// Decode reads a value of type t from src. Runtime-sized arrays take as many
// elements as fit in src.
func Decode(t types.Type, src []byte) Value {
	switch t := t.(type) {
	case *types.Scalar:
		switch t.Kind {
		case types.KindBool:
			return Bool(binary.LittleEndian.Uint32(src) != 0)
		case types.KindI32:
			return I32(int32(binary.LittleEndian.Uint32(src)))
		case types.KindU32:
			return U32(binary.LittleEndian.Uint32(src))
		case types.KindF32:
			return F32(math.Float32frombits(binary.LittleEndian.Uint32(src)))
		case types.KindF16:
			return F16(F16FromBits(binary.LittleEndian.Uint16(src)))
		case types.KindAbstractInt:
			return AbstractInt(int64(binary.LittleEndian.Uint64(src)))
		case types.KindAbstractFloat:
			return AbstractFloat(math.Float64frombits(binary.LittleEndian.Uint64(src)))
		}
	case *types.Atomic:
		return Decode(t.Elem, src)
	case *types.Vector:
		return decodeElems(t, t.N, src)
	case *types.Matrix:
		return decodeElems(t, t.Cols, src)
	case *types.Array:
		n := int(t.Count)
		if t.Size != types.ArrayFixed {
			n = int(uint64(len(src)) / types.Stride(t))
		}
		return decodeElems(t, n, src)
	case *types.Struct:
		return decodeElems(t, len(t.Members), src)
	}
	return nil
}

func decodeElems(t types.Type, n int, src []byte) *Composite {
	elems := make([]Value, n)
	for i := range elems {
		elems[i] = Decode(elementType(t, i), src[elementOffset(t, i):])
	}
	return &Composite{T: t, Elems: elems}
}

func elementType(t types.Type, i int) types.Type {
	if s, ok := t.(*types.Struct); ok {
		return s.Members[i].Type
	}
	return types.Element(t)
}

func elementOffset(t types.Type, i int) uint64 {
	if s, ok := t.(*types.Struct); ok {
		return s.Members[i].Offset
	}
	return uint64(i) * types.ElementStride(t)
}
