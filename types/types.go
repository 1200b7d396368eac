// Package types is the WGSL type model used by the resolver and the
// interpreter, together with the host-shareable memory layout rules.
package types

import (
	"fmt"
	"strings"

	"github.com/gogpu/wgslinterp/wgsl"
)

// Type is a WGSL type. Scalars are canonical singletons, so they can be
// compared with ==. Use Equal for everything else.
type Type interface {
	String() string
	typ()
}

// ScalarKind enumerates the scalar types, including the abstract numeric
// types of constant expressions.
type ScalarKind uint8

const (
	KindBool ScalarKind = iota
	KindI32
	KindU32
	KindF32
	KindF16
	KindAbstractInt
	KindAbstractFloat
)

// Scalar is a scalar type.
type Scalar struct {
	Kind ScalarKind
}

// Canonical scalar types.
var (
	Bool          = &Scalar{KindBool}
	I32           = &Scalar{KindI32}
	U32           = &Scalar{KindU32}
	F32           = &Scalar{KindF32}
	F16           = &Scalar{KindF16}
	AbstractInt   = &Scalar{KindAbstractInt}
	AbstractFloat = &Scalar{KindAbstractFloat}
)

var scalarNames = [...]string{
	KindBool:          "bool",
	KindI32:           "i32",
	KindU32:           "u32",
	KindF32:           "f32",
	KindF16:           "f16",
	KindAbstractInt:   "abstract-int",
	KindAbstractFloat: "abstract-float",
}

func (s *Scalar) String() string { return scalarNames[s.Kind] }
func (*Scalar) typ()             {}

// IsFloat reports whether s is f32, f16 or abstract-float.
func (s *Scalar) IsFloat() bool {
	return s.Kind == KindF32 || s.Kind == KindF16 || s.Kind == KindAbstractFloat
}

// IsInteger reports whether s is i32, u32 or abstract-int.
func (s *Scalar) IsInteger() bool {
	return s.Kind == KindI32 || s.Kind == KindU32 || s.Kind == KindAbstractInt
}

// IsSigned reports whether s holds negative values.
func (s *Scalar) IsSigned() bool {
	return s.Kind != KindU32 && s.Kind != KindBool
}

// IsAbstract reports whether s is one of the abstract numeric types.
func (s *Scalar) IsAbstract() bool {
	return s.Kind == KindAbstractInt || s.Kind == KindAbstractFloat
}

// IsNumeric reports whether s is any non-bool scalar.
func (s *Scalar) IsNumeric() bool { return s.Kind != KindBool }

// Vector is vecN<T>.
type Vector struct {
	N    int
	Elem *Scalar
}

func (v *Vector) String() string { return fmt.Sprintf("vec%d<%s>", v.N, v.Elem) }
func (*Vector) typ()             {}

// Matrix is matCxR<T>, stored as Cols column vectors of Rows elements.
type Matrix struct {
	Cols, Rows int
	Elem       *Scalar
}

func (m *Matrix) String() string { return fmt.Sprintf("mat%dx%d<%s>", m.Cols, m.Rows, m.Elem) }
func (*Matrix) typ()             {}

// Column returns the column vector type.
func (m *Matrix) Column() *Vector { return &Vector{N: m.Rows, Elem: m.Elem} }

// ArraySize describes how the element count of an array is known.
type ArraySize uint8

const (
	// ArrayFixed has a creation-time constant count.
	ArrayFixed ArraySize = iota
	// ArrayRuntime is sized by the buffer it is bound to.
	ArrayRuntime
	// ArrayOverride has a count given by a pipeline-override expression.
	ArrayOverride
)

// Array is array<E, N>, array<E> or array<E, override-expr>.
type Array struct {
	Elem  Type
	Count uint32
	Size  ArraySize
	// CountExpr is the count expression of an override-sized array.
	CountExpr wgsl.ExprID
}

func (a *Array) String() string {
	switch a.Size {
	case ArrayRuntime:
		return fmt.Sprintf("array<%s>", a.Elem)
	case ArrayOverride:
		return fmt.Sprintf("array<%s, [override]>", a.Elem)
	default:
		return fmt.Sprintf("array<%s, %d>", a.Elem, a.Count)
	}
}
func (*Array) typ() {}

// IsRuntime reports whether the array is runtime-sized.
func (a *Array) IsRuntime() bool { return a.Size == ArrayRuntime }

// Member is a structure member with its resolved layout.
type Member struct {
	Name   string
	Type   Type
	Index  int
	Offset uint64
	Size   uint64
	Align  uint64
	// Builtin names the @builtin attribute of an entry point input member.
	Builtin string
	Span    wgsl.Span
}

// Struct is a named structure type. Structs compare by identity.
type Struct struct {
	Name    string
	Members []*Member
	size    uint64
	align   uint64
}

func (s *Struct) String() string { return s.Name }
func (*Struct) typ()             {}

// Member returns the member with the given name, or nil.
func (s *Struct) Member(name string) *Member {
	for _, m := range s.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Atomic is atomic<T> for i32 or u32.
type Atomic struct {
	Elem *Scalar
}

func (a *Atomic) String() string { return fmt.Sprintf("atomic<%s>", a.Elem) }
func (*Atomic) typ()             {}

// AddressSpace is a WGSL address space.
type AddressSpace uint8

const (
	SpaceNone AddressSpace = iota
	SpaceFunction
	SpacePrivate
	SpaceWorkgroup
	SpaceUniform
	SpaceStorage
	SpaceHandle
)

var spaceNames = [...]string{
	SpaceNone:      "none",
	SpaceFunction:  "function",
	SpacePrivate:   "private",
	SpaceWorkgroup: "workgroup",
	SpaceUniform:   "uniform",
	SpaceStorage:   "storage",
	SpaceHandle:    "handle",
}

func (s AddressSpace) String() string {
	if int(s) < len(spaceNames) {
		return spaceNames[s]
	}
	return "unknown"
}

// ParseAddressSpace maps a WGSL address space keyword to its value.
func ParseAddressSpace(name string) (AddressSpace, bool) {
	for i, n := range spaceNames {
		if n == name && AddressSpace(i) != SpaceNone && AddressSpace(i) != SpaceHandle {
			return AddressSpace(i), true
		}
	}
	return SpaceNone, false
}

// Access is a memory access mode.
type Access uint8

const (
	AccessNone Access = iota
	AccessRead
	AccessWrite
	AccessReadWrite
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "read_write"
	default:
		return ""
	}
}

// ParseAccess maps an access mode keyword to its value.
func ParseAccess(name string) (Access, bool) {
	switch name {
	case "read":
		return AccessRead, true
	case "write":
		return AccessWrite, true
	case "read_write":
		return AccessReadWrite, true
	}
	return AccessNone, false
}

// Pointer is ptr<S, T, A>.
type Pointer struct {
	Space  AddressSpace
	Elem   Type
	Access Access
}

func (p *Pointer) String() string { return memoryTypeString("ptr", p.Space, p.Elem, p.Access) }
func (*Pointer) typ()             {}

// Reference is the type of an expression that names memory. It never
// appears in source.
type Reference struct {
	Space  AddressSpace
	Elem   Type
	Access Access
}

func (r *Reference) String() string { return memoryTypeString("ref", r.Space, r.Elem, r.Access) }
func (*Reference) typ()             {}

func memoryTypeString(kind string, space AddressSpace, elem Type, access Access) string {
	var sb strings.Builder
	sb.WriteString(kind)
	sb.WriteByte('<')
	sb.WriteString(space.String())
	sb.WriteString(", ")
	sb.WriteString(elem.String())
	if access != AccessNone && space == SpaceStorage {
		sb.WriteString(", ")
		sb.WriteString(access.String())
	}
	sb.WriteByte('>')
	return sb.String()
}

// Sampler is sampler or sampler_comparison. Handle types can be declared
// but not bound.
type Sampler struct {
	Comparison bool
}

func (s *Sampler) String() string {
	if s.Comparison {
		return "sampler_comparison"
	}
	return "sampler"
}
func (*Sampler) typ() {}

// Texture is any texture type, kept by name only.
type Texture struct {
	Name string
}

func (t *Texture) String() string { return t.Name }
func (*Texture) typ()             {}

// Equal reports whether a and b denote the same type.
func Equal(a, b Type) bool {
	if a == b {
		return true
	}
	switch a := a.(type) {
	case *Scalar:
		b, ok := b.(*Scalar)
		return ok && a.Kind == b.Kind
	case *Vector:
		b, ok := b.(*Vector)
		return ok && a.N == b.N && a.Elem.Kind == b.Elem.Kind
	case *Matrix:
		b, ok := b.(*Matrix)
		return ok && a.Cols == b.Cols && a.Rows == b.Rows && a.Elem.Kind == b.Elem.Kind
	case *Array:
		b, ok := b.(*Array)
		if !ok || a.Size != b.Size || !Equal(a.Elem, b.Elem) {
			return false
		}
		switch a.Size {
		case ArrayFixed:
			return a.Count == b.Count
		case ArrayOverride:
			return a.CountExpr == b.CountExpr
		}
		return true
	case *Atomic:
		b, ok := b.(*Atomic)
		return ok && a.Elem.Kind == b.Elem.Kind
	case *Pointer:
		b, ok := b.(*Pointer)
		return ok && a.Space == b.Space && a.Access == b.Access && Equal(a.Elem, b.Elem)
	case *Reference:
		b, ok := b.(*Reference)
		return ok && a.Space == b.Space && a.Access == b.Access && Equal(a.Elem, b.Elem)
	case *Sampler:
		b, ok := b.(*Sampler)
		return ok && a.Comparison == b.Comparison
	case *Texture:
		b, ok := b.(*Texture)
		return ok && a.Name == b.Name
	}
	return false
}

// ScalarOf returns the scalar element of a scalar, vector, matrix or atomic
// type, or nil.
func ScalarOf(t Type) *Scalar {
	switch t := t.(type) {
	case *Scalar:
		return t
	case *Vector:
		return t.Elem
	case *Matrix:
		return t.Elem
	case *Atomic:
		return t.Elem
	}
	return nil
}

// WithScalar rebuilds a scalar, vector or matrix type over a new scalar.
// Arrays are rebuilt element-wise so abstract constants can be materialized.
func WithScalar(t Type, s *Scalar) Type {
	switch t := t.(type) {
	case *Scalar:
		return s
	case *Vector:
		return &Vector{N: t.N, Elem: s}
	case *Matrix:
		return &Matrix{Cols: t.Cols, Rows: t.Rows, Elem: s}
	case *Array:
		return &Array{Elem: WithScalar(t.Elem, s), Count: t.Count, Size: t.Size, CountExpr: t.CountExpr}
	}
	return t
}

// IsAbstract reports whether t is built from an abstract numeric scalar.
func IsAbstract(t Type) bool {
	switch t := t.(type) {
	case *Array:
		return IsAbstract(t.Elem)
	default:
		s := ScalarOf(t)
		return s != nil && s.IsAbstract()
	}
}

// Unref strips a reference, returning the store type.
func Unref(t Type) Type {
	if r, ok := t.(*Reference); ok {
		return r.Elem
	}
	return t
}

// Element returns the type produced by indexing t, or nil when t is not
// indexable.
func Element(t Type) Type {
	switch t := t.(type) {
	case *Vector:
		return t.Elem
	case *Matrix:
		return t.Column()
	case *Array:
		return t.Elem
	}
	return nil
}

// IsConstructible reports whether values of t can be created, copied and
// compared as a whole.
func IsConstructible(t Type) bool {
	switch t := t.(type) {
	case *Scalar, *Vector, *Matrix:
		return true
	case *Array:
		return t.Size == ArrayFixed && IsConstructible(t.Elem)
	case *Struct:
		for _, m := range t.Members {
			if !IsConstructible(m.Type) {
				return false
			}
		}
		return true
	}
	return false
}

// IsHandle reports whether t is a sampler or texture.
func IsHandle(t Type) bool {
	switch t.(type) {
	case *Sampler, *Texture:
		return true
	}
	return false
}
