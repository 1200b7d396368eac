// Package race detects data races between the invocations of a compute
// shader dispatch.
//
// A Detector observes every non-atomic load and store an executor makes to
// storage buffers and workgroup variables. Accesses are tracked per byte.
// Two accesses race when they touch the same byte from different
// invocations, at least one of them is a store, and no barrier orders them.
// Accesses from different workgroups are never ordered.
package race

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/gogpu/wgslinterp/diag"
	"github.com/gogpu/wgslinterp/interp"
	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

// Kind is the kind of a memory access.
type Kind uint8

const (
	Load Kind = iota
	Store
)

func (k Kind) String() string {
	if k == Store {
		return "stored"
	}
	return "loaded"
}

// Access is one load or store made by an invocation.
type Access struct {
	Workgroup  interp.UVec3
	Invocation interp.UVec3
	// CauseExpr is the expression that made the access, or NoExpr when
	// the statement CauseStmt made it directly. Cause is the span of that
	// node.
	CauseExpr wgsl.ExprID
	CauseStmt wgsl.StmtID
	Cause     wgsl.Span
	Kind      Kind
	Offset    uint64
	Size      uint64
	// VectorComponentWrite marks a store to a single vector component
	// that is tracked as a store to the whole vector.
	VectorComponentWrite bool
}

// Race is a pair of conflicting accesses to the same allocation. A is a
// store; when both are stores, A comes from the lower workgroup id, then
// the lower invocation id.
type Race struct {
	Root *interp.MemoryView
	A, B Access
}

type byteKey struct {
	root   interp.ViewID
	offset uint64
}

type accessMap map[byteKey]Access

type invocationState struct {
	workgroup accessMap
	storage   accessMap
}

type workgroupState struct {
	invocations []*invocationState
	storage     accessMap
}

// causeKey identifies the node that made an access.
type causeKey struct {
	expr wgsl.ExprID
	stmt wgsl.StmtID
}

func (a Access) causeKey() causeKey {
	return causeKey{expr: a.CauseExpr, stmt: a.CauseStmt}
}

type raceKey struct {
	decl wgsl.Span
	a, b causeKey
}

// Detector records races for one executor.
type Detector struct {
	exec       *interp.Executor
	groups     map[interp.UVec3]*workgroupState
	interGroup accessMap

	races   []Race
	seen    map[raceKey]bool
	emitted int
}

// New creates a detector and registers it on exec. Races are reported
// through exec's error callbacks as each workgroup completes.
func New(exec *interp.Executor) *Detector {
	d := &Detector{
		exec:       exec,
		groups:     make(map[interp.UVec3]*workgroupState),
		interGroup: make(accessMap),
		seen:       make(map[raceKey]bool),
	}
	exec.AddBarrierCallback(d.barrier)
	exec.AddMemoryLoadCallback(func(v *interp.MemoryView) { d.RegisterAccess(v, Load) })
	exec.AddMemoryStoreCallback(func(v *interp.MemoryView) { d.RegisterAccess(v, Store) })
	exec.AddWorkgroupBeginCallback(d.workgroupBegin)
	exec.AddWorkgroupCompleteCallback(d.workgroupComplete)
	return d
}

// Races returns every race recorded so far, in the order found.
func (d *Detector) Races() []Race { return slices.Clone(d.races) }

func (d *Detector) barrier(wg *interp.Workgroup, call wgsl.ExprID) {
	switch d.exec.Program().Expr(call).Builtin {
	case "storageBarrier":
		d.sync(wg.ID(), types.SpaceStorage)
	case "workgroupBarrier", "workgroupUniformLoad":
		d.sync(wg.ID(), types.SpaceWorkgroup)
	}
}

func (d *Detector) workgroupBegin(wg *interp.Workgroup) {
	state := &workgroupState{
		invocations: make([]*invocationState, wg.Size().Volume()),
		storage:     make(accessMap),
	}
	for i := range state.invocations {
		state.invocations[i] = &invocationState{workgroup: make(accessMap), storage: make(accessMap)}
	}
	d.groups[wg.ID()] = state
}

func (d *Detector) workgroupComplete(wg *interp.Workgroup) {
	id := wg.ID()
	d.sync(id, types.SpaceWorkgroup)
	d.sync(id, types.SpaceStorage)
	if state := d.groups[id]; state != nil {
		d.mergeAll(d.interGroup, state.storage, true)
	}
	d.emit()
	delete(d.groups, id)
}

// RegisterAccess records a non-atomic access made through v by the current
// invocation.
func (d *Detector) RegisterAccess(v *interp.MemoryView, kind Kind) {
	switch v.AddressSpace() {
	case types.SpaceStorage:
		if v.Access() == types.AccessRead {
			return
		}
	case types.SpaceWorkgroup:
	default:
		return
	}
	inv := d.exec.CurrentInvocation()
	if inv == nil {
		return
	}
	state := d.groups[inv.WorkgroupID()]
	if state == nil {
		return
	}

	m := d.exec.Program().Module
	stmt, expr := inv.CurrentStatement(0), inv.CurrentExpression(0)
	cause := m.StmtSpan(stmt)
	if expr != wgsl.NoExpr {
		cause = m.ExprSpan(expr)
	}

	root := v.Root()
	a := Access{
		Workgroup:  inv.WorkgroupID(),
		Invocation: inv.LocalInvocationID(),
		CauseExpr:  expr,
		CauseStmt:  stmt,
		Cause:      cause,
		Kind:       kind,
		Offset:     v.Offset(),
		Size:       v.Size(),
	}
	if parent := v.Parent(); kind == Store && parent != nil {
		if _, scalar := v.Type().(*types.Scalar); scalar {
			if _, vec := parent.Type().(*types.Vector); vec {
				a.Offset, a.Size = parent.Offset(), parent.Size()
				a.VectorComponentWrite = true
			}
		}
	}

	is := state.invocations[inv.LocalInvocationIndex()]
	target := is.storage
	if v.AddressSpace() == types.SpaceWorkgroup {
		target = is.workgroup
	}
	for b := a.Offset; b < a.Offset+a.Size; b++ {
		d.merge(target, byteKey{root: root.ID(), offset: b}, a, false)
	}
}

// merge adds a to m. With check set, an access from another invocation or
// workgroup that conflicts with the existing one is recorded as a race.
// A recorded store is never replaced.
func (d *Detector) merge(m accessMap, key byteKey, a Access, check bool) {
	if prev, ok := m[key]; ok {
		other := prev.Invocation != a.Invocation || prev.Workgroup != a.Workgroup
		if check && other && (prev.Kind == Store || a.Kind == Store) {
			d.record(key.root, prev, a)
		}
		if prev.Kind == Store {
			return
		}
	}
	m[key] = a
}

// mergeAll merges src into dst in (root, offset) order.
func (d *Detector) mergeAll(dst, src accessMap, check bool) {
	for _, k := range sortedKeys(src) {
		d.merge(dst, k, src[k], check)
	}
}

func sortedKeys(m accessMap) []byteKey {
	return slices.SortedFunc(maps.Keys(m), func(a, b byteKey) int {
		if c := cmp.Compare(a.root, b.root); c != 0 {
			return c
		}
		return cmp.Compare(a.offset, b.offset)
	})
}

// sync checks the accesses every invocation of the workgroup made to space
// since the last barrier against each other, then forgets them. Storage
// accesses are kept at workgroup level for the check against other
// workgroups.
func (d *Detector) sync(id interp.UVec3, space types.AddressSpace) {
	state := d.groups[id]
	if state == nil {
		return
	}
	merged := make(accessMap)
	for _, is := range state.invocations {
		m := &is.workgroup
		if space == types.SpaceStorage {
			m = &is.storage
		}
		d.mergeAll(merged, *m, true)
		*m = make(accessMap)
	}
	if space == types.SpaceStorage {
		d.mergeAll(state.storage, merged, false)
	}
}

func (d *Detector) record(root interp.ViewID, a, b Access) {
	if a.Kind != Store || b.Kind == Store && laterThan(a, b) {
		a, b = b, a
	}
	view := d.exec.View(root)
	// Root views differ per workgroup for workgroup variables; the
	// declaration span names the variable.
	key := raceKey{decl: view.Span(), a: a.causeKey(), b: b.causeKey()}
	if d.seen[key] {
		return
	}
	d.seen[key] = true
	d.races = append(d.races, Race{Root: view, A: a, B: b})
	interp.Logger().Debug("race: recorded",
		"space", view.AddressSpace().String(),
		"a", a.Invocation.String(),
		"b", b.Invocation.String())
}

// laterThan reports whether a is ordered after b by workgroup id, then
// invocation id.
func laterThan(a, b Access) bool {
	if a.Workgroup != b.Workgroup {
		return b.Workgroup.Less(a.Workgroup)
	}
	return b.Invocation.Less(a.Invocation)
}

// emit reports every race not reported yet.
func (d *Detector) emit() {
	p := d.exec.Program()
	src := p.Source()
	for _, r := range d.races[d.emitted:] {
		what := "storage buffer"
		if r.Root.AddressSpace() == types.SpaceWorkgroup {
			what = "workgroup variable"
		}
		var l diag.List
		l.Add(diag.Warning, r.Root.Span(), src, "data race detected on accesses to %s", what)
		for _, a := range []Access{r.A, r.B} {
			l.Add(diag.Note, a.Cause, src, "%s", describe(r.Root, a))
		}
		if r.A.VectorComponentWrite || r.B.VectorComponentWrite {
			l.Add(diag.Note, wgsl.Span{}, src, "writing to a component of a vector may write to every component of that vector")
		}
		d.exec.ReportError(l)
	}
	d.emitted = len(d.races)
}

func describe(root *interp.MemoryView, a Access) string {
	return fmt.Sprintf("%s %d bytes at offset %d\nwhile running local_invocation_id%s workgroup_id%s",
		a.Kind, a.Size, a.Offset-root.Offset(), a.Invocation, a.Workgroup)
}
