package types

import (
	"fmt"

	"github.com/gogpu/wgslinterp/wgsl"
)

// RoundUp rounds n up to a multiple of align.
func RoundUp(align, n uint64) uint64 {
	if align == 0 {
		return n
	}
	return (n + align - 1) / align * align
}

// Size returns the byte size of t in host-shareable memory. Runtime-sized
// and override-sized arrays report zero; their size comes from the memory
// they live in.
func Size(t Type) uint64 {
	switch t := t.(type) {
	case *Scalar:
		switch t.Kind {
		case KindF16:
			return 2
		case KindAbstractInt, KindAbstractFloat:
			return 8
		}
		return 4
	case *Vector:
		return uint64(t.N) * Size(t.Elem)
	case *Matrix:
		return uint64(t.Cols) * ColumnStride(t)
	case *Array:
		if t.Size != ArrayFixed {
			return 0
		}
		return uint64(t.Count) * Stride(t)
	case *Struct:
		return t.size
	case *Atomic:
		return Size(t.Elem)
	}
	return 0
}

// Align returns the alignment of t.
func Align(t Type) uint64 {
	switch t := t.(type) {
	case *Scalar:
		return Size(t)
	case *Vector:
		if t.N == 2 {
			return 2 * Size(t.Elem)
		}
		return 4 * Size(t.Elem)
	case *Matrix:
		return Align(t.Column())
	case *Array:
		return Align(t.Elem)
	case *Struct:
		return t.align
	case *Atomic:
		return Size(t.Elem)
	}
	return 1
}

// Stride returns the distance between consecutive array elements.
func Stride(a *Array) uint64 {
	return RoundUp(Align(a.Elem), Size(a.Elem))
}

// ColumnStride returns the distance between consecutive matrix columns.
func ColumnStride(m *Matrix) uint64 {
	col := m.Column()
	return RoundUp(Align(col), Size(col))
}

// ElementStride returns the distance between elements of an indexable type.
func ElementStride(t Type) uint64 {
	switch t := t.(type) {
	case *Array:
		return Stride(t)
	case *Matrix:
		return ColumnStride(t)
	case *Vector:
		return Size(t.Elem)
	}
	return 0
}

// MemberSpec describes a member before layout. Zero Align and Size mean the
// natural values of the member type.
type MemberSpec struct {
	Name    string
	Type    Type
	Align   uint64
	Size    uint64
	Builtin string
	Span    wgsl.Span
}

// NewStruct lays out members in declaration order. Each member starts at the
// next multiple of its alignment; the structure size is rounded up to the
// largest member alignment.
func NewStruct(name string, specs []MemberSpec) (*Struct, error) {
	s := &Struct{Name: name, align: 1}
	var offset uint64
	for i, spec := range specs {
		align := spec.Align
		if align == 0 {
			align = Align(spec.Type)
		}
		if align&(align-1) != 0 {
			return nil, fmt.Errorf("member '%s': alignment %d is not a power of two", spec.Name, align)
		}
		size := spec.Size
		if size == 0 {
			size = Size(spec.Type)
		} else if size < Size(spec.Type) {
			return nil, fmt.Errorf("member '%s': size %d is smaller than the type size %d", spec.Name, size, Size(spec.Type))
		}
		if a, ok := spec.Type.(*Array); ok && a.IsRuntime() && i != len(specs)-1 {
			return nil, fmt.Errorf("runtime-sized array member '%s' must be the last member", spec.Name)
		}
		offset = RoundUp(align, offset)
		s.Members = append(s.Members, &Member{
			Name:    spec.Name,
			Type:    spec.Type,
			Index:   i,
			Offset:  offset,
			Size:    size,
			Align:   align,
			Builtin: spec.Builtin,
			Span:    spec.Span,
		})
		offset += size
		s.align = max(s.align, align)
	}
	s.size = RoundUp(s.align, offset)
	return s, nil
}

// NewAnonymousStruct builds a struct without validation. It is used for
// builtin result types.
func NewAnonymousStruct(name string, members ...MemberSpec) *Struct {
	s, err := NewStruct(name, members)
	if err != nil {
		panic(err)
	}
	return s
}
