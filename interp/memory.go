package interp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/wgslinterp/diag"
	"github.com/gogpu/wgslinterp/eval"
	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

// Memory is a fixed-size byte allocation: a bound buffer, a workgroup
// variable, or the storage of a private or function-scope variable.
type Memory struct {
	data []byte
}

// NewMemory allocates size zeroed bytes.
func NewMemory(size uint64) *Memory {
	return &Memory{data: make([]byte, size)}
}

// NewMemoryFrom wraps b without copying it.
func NewMemoryFrom(b []byte) *Memory {
	return &Memory{data: b}
}

// Size returns the allocation size in bytes.
func (m *Memory) Size() uint64 { return uint64(len(m.data)) }

// Bytes returns the allocation contents. The slice aliases the memory.
func (m *Memory) Bytes() []byte { return m.data }

// Load copies len(dst) bytes starting at offset into dst.
func (m *Memory) Load(dst []byte, offset uint64) error {
	if !m.fits(offset, uint64(len(dst))) {
		return ErrOutOfBounds
	}
	copy(dst, m.data[offset:])
	return nil
}

// Store copies src into the allocation starting at offset.
func (m *Memory) Store(src []byte, offset uint64) error {
	if !m.fits(offset, uint64(len(src))) {
		return ErrOutOfBounds
	}
	copy(m.data[offset:], src)
	return nil
}

func (m *Memory) fits(offset, size uint64) bool {
	return offset <= m.Size() && size <= m.Size()-offset
}

// CreateView creates a root view of size bytes at offset, holding a value
// of type t in the given address space. It fails with ErrOutOfBounds when
// the range does not fit the allocation.
func (m *Memory) CreateView(e *Executor, space types.AddressSpace, t types.Type, offset, size uint64, span wgsl.Span) (*MemoryView, error) {
	if !m.fits(offset, size) {
		return nil, ErrOutOfBounds
	}
	return e.newView(&MemoryView{
		mem:    m,
		parent: NoView,
		space:  space,
		access: types.AccessReadWrite,
		typ:    types.Unref(t),
		offset: offset,
		size:   size,
		span:   span,
		valid:  true,
	}), nil
}

// CreateRootView creates a view spanning the whole allocation.
func (m *Memory) CreateRootView(e *Executor, space types.AddressSpace, t types.Type, span wgsl.Span) *MemoryView {
	v, _ := m.CreateView(e, space, t, 0, m.Size(), span)
	return v
}

// ViewID identifies a MemoryView in its executor's view arena.
type ViewID int32

// NoView is the parent of a root view.
const NoView ViewID = -1

// MemoryView is a typed window onto a Memory. Views nest: indexing and
// member access create sub-views whose parent is the view they were created
// from. A sub-view that does not fit its parent is still created, but
// marked invalid; accessing it reports an out-of-bounds diagnostic.
type MemoryView struct {
	id     ViewID
	exec   *Executor
	mem    *Memory
	parent ViewID
	root   ViewID
	space  types.AddressSpace
	access types.Access
	typ    types.Type
	offset uint64 // absolute, within mem
	size   uint64
	span   wgsl.Span
	valid  bool
}

// ID returns the arena index of the view.
func (v *MemoryView) ID() ViewID { return v.id }

// Memory returns the allocation the view points into.
func (v *MemoryView) Memory() *Memory { return v.mem }

// Parent returns the view this one was created from, or nil for a root.
func (v *MemoryView) Parent() *MemoryView {
	if v.parent == NoView {
		return nil
	}
	return v.exec.View(v.parent)
}

// Root returns the view at the top of the parent chain.
func (v *MemoryView) Root() *MemoryView { return v.exec.View(v.root) }

// AddressSpace returns the address space of the viewed memory.
func (v *MemoryView) AddressSpace() types.AddressSpace { return v.space }

// Access returns the access mode of the viewed memory.
func (v *MemoryView) Access() types.Access { return v.access }

// Type returns the store type of the view.
func (v *MemoryView) Type() types.Type { return v.typ }

// Offset returns the byte offset of the view within its Memory.
func (v *MemoryView) Offset() uint64 { return v.offset }

// Size returns the byte size of the view.
func (v *MemoryView) Size() uint64 { return v.size }

// Span returns the source location that created the view.
func (v *MemoryView) Span() wgsl.Span { return v.span }

// Valid reports whether the view lies within its parent.
func (v *MemoryView) Valid() bool { return v.valid }

// Subview creates a view of type t, size bytes at offset relative to v.
func (v *MemoryView) Subview(t types.Type, offset, size uint64, span wgsl.Span) *MemoryView {
	return v.exec.newView(&MemoryView{
		mem:    v.mem,
		parent: v.id,
		root:   v.root,
		space:  v.space,
		access: v.access,
		typ:    types.Unref(t),
		offset: v.offset + offset,
		size:   size,
		span:   span,
		valid:  v.valid && offset <= v.size && size <= v.size-offset,
	})
}

func (v *MemoryView) bytes() []byte {
	return v.mem.data[v.offset : v.offset+v.size]
}

// zero returns the zero value of the view type, sized to the view when the
// type is a runtime or override-sized array.
func (v *MemoryView) zero() eval.Value {
	return eval.Decode(v.typ, make([]byte, v.size))
}

// Load reads the value held by the view.
func (v *MemoryView) Load() eval.Value {
	if !v.valid {
		v.reportOutOfBounds("loading from an out-of-bounds memory view")
		return v.zero()
	}
	val := eval.Decode(v.typ, v.bytes())
	v.checkFinite(val)
	v.exec.reportMemoryLoad(v)
	return val
}

// Store writes val through the view.
func (v *MemoryView) Store(val eval.Value) {
	if !v.valid {
		v.reportOutOfBounds("storing to an out-of-bounds memory view")
		return
	}
	eval.Encode(val, v.bytes())
	v.exec.reportMemoryStore(v)
}

// checkFinite warns about every non-finite float component of val. The
// value is kept as loaded.
func (v *MemoryView) checkFinite(val eval.Value) {
	switch x := val.(type) {
	case eval.F32, eval.F16:
		if f := eval.AsFloat64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			v.exec.warnf("loading a non-finite %s value (%s)", x.Type(), eval.String(x))
		}
	case *eval.Composite:
		for _, el := range x.Elems {
			v.checkFinite(el)
		}
	}
}

// AtomicOp is a read-modify-write atomic operation.
type AtomicOp uint8

const (
	AtomicAdd AtomicOp = iota
	AtomicSub
	AtomicMax
	AtomicMin
	AtomicAnd
	AtomicOr
	AtomicXor
	AtomicExchange
)

func (op AtomicOp) String() string {
	return [...]string{"add", "sub", "max", "min", "and", "or", "xor", "exchange"}[op]
}

// atomicElem returns the scalar type held by an atomic view.
func (v *MemoryView) atomicElem() *types.Scalar {
	if a, ok := v.typ.(*types.Atomic); ok {
		return a.Elem
	}
	return types.ScalarOf(v.typ)
}

func (v *MemoryView) atomicValid() bool {
	if !v.valid || v.size < 4 {
		v.reportOutOfBounds("atomic operation on an out-of-bounds memory view")
		return false
	}
	return true
}

func (v *MemoryView) loadBits() uint32 { return binary.LittleEndian.Uint32(v.bytes()) }

func (v *MemoryView) storeBits(u uint32) { binary.LittleEndian.PutUint32(v.bytes(), u) }

func (v *MemoryView) fromBits(u uint32) eval.Value {
	if v.atomicElem().Kind == types.KindI32 {
		return eval.I32(int32(u))
	}
	return eval.U32(u)
}

// AtomicLoad atomically reads the value. Atomic accesses do not fire the
// memory load and store callbacks.
func (v *MemoryView) AtomicLoad() eval.Value {
	if !v.atomicValid() {
		return eval.Zero(v.atomicElem())
	}
	return v.fromBits(v.loadBits())
}

// AtomicStore atomically writes val.
func (v *MemoryView) AtomicStore(val eval.Value) {
	if !v.atomicValid() {
		return
	}
	v.storeBits(eval.AsU32(val))
}

// AtomicRMW applies op with operand val and returns the previous value.
func (v *MemoryView) AtomicRMW(op AtomicOp, val eval.Value) eval.Value {
	if !v.atomicValid() {
		return eval.Zero(v.atomicElem())
	}
	old := v.loadBits()
	b := eval.AsU32(val)
	signed := v.atomicElem().Kind == types.KindI32
	var result uint32
	switch op {
	case AtomicAdd:
		result = old + b
	case AtomicSub:
		result = old - b
	case AtomicMax:
		result = old
		if signed && int32(b) > int32(old) || !signed && b > old {
			result = b
		}
	case AtomicMin:
		result = old
		if signed && int32(b) < int32(old) || !signed && b < old {
			result = b
		}
	case AtomicAnd:
		result = old & b
	case AtomicOr:
		result = old | b
	case AtomicXor:
		result = old ^ b
	case AtomicExchange:
		result = b
	default:
		panic(fmt.Sprintf("interp: unknown atomic op %d", op))
	}
	v.storeBits(result)
	return v.fromBits(old)
}

// AtomicCompareExchange stores val when the current value equals cmp. It
// returns the previous value and whether the exchange happened.
func (v *MemoryView) AtomicCompareExchange(cmp, val eval.Value) (eval.Value, bool) {
	if !v.atomicValid() {
		return eval.Zero(v.atomicElem()), false
	}
	old := v.loadBits()
	exchanged := old == eval.AsU32(cmp)
	if exchanged {
		v.storeBits(eval.AsU32(val))
	}
	return v.fromBits(old), exchanged
}

// reportOutOfBounds reports an access through an invalid view, with notes
// pointing at the allocation and at the first view in the chain that did
// not fit its parent.
func (v *MemoryView) reportOutOfBounds(msg string) {
	root, firstInvalid := v, v
	for root.parent != NoView {
		if !root.valid {
			firstInvalid = root
		}
		root = root.Parent()
	}

	e := v.exec
	src := e.program.Source()
	var l diag.List
	l.Add(diag.Warning, e.currentSpan(), src, "%s", msg)
	l.Add(diag.Note, root.span, src, "accessing %d byte allocation in the %s address space", root.size, root.space)
	l.Add(diag.Note, firstInvalid.span, src, "created a %d byte memory view at an offset of %d bytes",
		firstInvalid.size, firstInvalid.offset)
	e.reportOnce(l)
}

// peek decodes the view without firing load callbacks or diagnostics.
func (v *MemoryView) peek() eval.Value {
	if !v.valid {
		return v.zero()
	}
	return eval.Decode(v.typ, v.bytes())
}
