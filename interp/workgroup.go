package interp

import (
	"fmt"
	"slices"

	"github.com/gogpu/wgslinterp/diag"
	"github.com/gogpu/wgslinterp/eval"
	"github.com/gogpu/wgslinterp/sem"
	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

// Workgroup schedules the invocations of one workgroup. A single invocation
// runs until it finishes or reaches a barrier; the next one is then taken
// in (z, y, x) order. When every remaining invocation waits at a barrier,
// they are all released together.
type Workgroup struct {
	exec *Executor
	id   UVec3
	size UVec3

	views map[*sem.Variable]*MemoryView

	// ready is sorted by local id.
	ready    []*Invocation
	parked   []*Invocation
	current  *Invocation
	finished int
	done     bool
}

func newWorkgroup(e *Executor, id UVec3) *Workgroup {
	wg := &Workgroup{
		exec:  e,
		id:    id,
		size:  e.workgroupSize,
		views: make(map[*sem.Variable]*MemoryView),
	}

	for _, g := range e.entry.Globals {
		if g.Kind != sem.VarVar || g.Space != types.SpaceWorkgroup {
			continue
		}
		size, ok := wg.allocationSize(g)
		if !ok {
			return wg
		}
		wg.views[g] = NewMemory(size).CreateRootView(e, types.SpaceWorkgroup, g.Type, g.Span)
	}

	for z := uint32(0); z < wg.size[2]; z++ {
		for y := uint32(0); y < wg.size[1]; y++ {
			for x := uint32(0); x < wg.size[0]; x++ {
				inv := newInvocation(e, id, UVec3{x, y, z}, wg.views)
				if e.fatal != nil {
					return wg
				}
				wg.ready = append(wg.ready, inv)
			}
		}
	}

	wg.current = wg.ready[0]
	wg.ready = wg.ready[1:]
	Logger().Debug("interp: workgroup begin", "id", id.String(), "invocations", wg.size.Volume())
	e.reportWorkgroupBegin(wg)
	return wg
}

// allocationSize returns the byte size of a workgroup variable. An array
// sized by an override expression takes its count from the resolved
// overrides.
func (wg *Workgroup) allocationSize(g *sem.Variable) (uint64, bool) {
	arr, ok := g.Type.(*types.Array)
	if !ok || arr.Size != types.ArrayOverride {
		return types.Size(g.Type), true
	}
	e := wg.exec
	var count eval.Value
	if info := e.program.Expr(arr.CountExpr); info.Var != nil && info.Var.Kind == sem.VarOverride {
		count = e.overrideValues[info.Var]
	}
	if count == nil {
		count = e.evaluateOverrideExpression(arr.CountExpr)
	}
	if count == nil {
		return 0, false
	}
	return uint64(eval.AsU32(count)) * types.Stride(arr), true
}

// ID returns the workgroup id.
func (wg *Workgroup) ID() UVec3 { return wg.id }

// Size returns the workgroup size.
func (wg *Workgroup) Size() UVec3 { return wg.size }

// CurrentInvocation returns the invocation the next Step advances, or nil.
func (wg *Workgroup) CurrentInvocation() *Invocation { return wg.current }

// Finished reports whether every invocation has run to completion.
func (wg *Workgroup) Finished() bool { return wg.done }

// View returns the root view of a workgroup variable, or nil once the
// workgroup has finished.
func (wg *Workgroup) View(v *sem.Variable) *MemoryView { return wg.views[v] }

// SelectInvocation makes the ready invocation with the given local id
// current. It reports false when no ready invocation has that id.
func (wg *Workgroup) SelectInvocation(localID UVec3) bool {
	if wg.current != nil && wg.current.localID == localID {
		return true
	}
	i, found := wg.findReady(localID)
	if !found {
		return false
	}
	target := wg.ready[i]
	wg.ready = slices.Delete(wg.ready, i, i+1)
	if wg.current != nil {
		wg.insertReady(wg.current)
	}
	wg.current = target
	return true
}

func (wg *Workgroup) findReady(localID UVec3) (int, bool) {
	return slices.BinarySearchFunc(wg.ready, localID, func(inv *Invocation, id UVec3) int {
		switch {
		case inv.localID.Less(id):
			return -1
		case id.Less(inv.localID):
			return 1
		}
		return 0
	})
}

func (wg *Workgroup) insertReady(inv *Invocation) {
	i, _ := wg.findReady(inv.localID)
	wg.ready = slices.Insert(wg.ready, i, inv)
}

// Step advances the current invocation by one step and schedules the next
// one when it finishes or parks at a barrier.
func (wg *Workgroup) Step() {
	if wg.done {
		return
	}
	if wg.current == nil {
		wg.schedule()
		if wg.current == nil {
			return
		}
	}

	inv := wg.current
	e := wg.exec
	e.reportPreStep(inv)
	state := inv.Step()
	e.reportPostStep(inv)

	switch state {
	case StateFinished:
		wg.finished++
		wg.current = nil
	case StateWaitingAtBarrier:
		wg.parked = append(wg.parked, inv)
		wg.current = nil
	}
	if wg.current == nil && e.fatal == nil {
		wg.schedule()
	}
}

// schedule picks the next invocation, resolving barriers as needed, and
// completes the workgroup once nothing is left to run.
func (wg *Workgroup) schedule() {
	for {
		if len(wg.ready) > 0 {
			wg.current = wg.ready[0]
			wg.ready = wg.ready[1:]
			return
		}
		if len(wg.parked) == 0 {
			break
		}
		wg.releaseBarrier()
	}

	wg.done = true
	Logger().Debug("interp: workgroup complete", "id", wg.id.String())
	wg.exec.reportWorkgroupComplete(wg)
	wg.views = nil
}

// releaseBarrier moves every parked invocation back to ready. Invocations
// that did not all reach the same barrier are reported as an error.
func (wg *Workgroup) releaseBarrier() {
	first := wg.parked[0]
	firstCall := first.Barrier()
	firstCount := 0

	var second *Invocation
	secondCall := wgsl.NoExpr
	secondCount, otherCount := 0, 0
	for _, inv := range wg.parked {
		switch call := inv.Barrier(); {
		case call == firstCall:
			firstCount++
		case second == nil || call == secondCall:
			if second == nil {
				second, secondCall = inv, call
			}
			secondCount++
		default:
			otherCount++
		}
	}

	for _, inv := range wg.parked {
		inv.ClearBarrier()
		wg.insertReady(inv)
	}
	wg.parked = wg.parked[:0]

	if firstCount != int(wg.size.Volume()) {
		wg.reportNonUniformBarrier(first, firstCall, firstCount, second, secondCall, secondCount, otherCount)
	}

	Logger().Debug("interp: barrier released", "workgroup", wg.id.String(), "invocations", len(wg.ready))
	wg.exec.reportBarrier(wg, firstCall)
}

func (wg *Workgroup) reportNonUniformBarrier(first *Invocation, firstCall wgsl.ExprID, firstCount int,
	second *Invocation, secondCall wgsl.ExprID, secondCount, otherCount int) {
	e := wg.exec
	m := e.program.Module
	src := e.program.Source()
	waiting := func(inv *Invocation, n int) string {
		return fmt.Sprintf("invocation%s and %d other invocations waiting here", inv.localID, n-1)
	}

	var l diag.List
	l.Add(diag.Error, m.ExprSpan(firstCall), src, "barrier not reached by all invocations in the workgroup")
	l.Add(diag.Note, m.ExprSpan(firstCall), src, "%s", waiting(first, firstCount))
	if second != nil {
		l.Add(diag.Note, m.ExprSpan(secondCall), src, "%s", waiting(second, secondCount))
	}
	if otherCount > 0 {
		l.Add(diag.Note, wgsl.Span{}, src, "%d invocations are waiting at other barriers", otherCount)
	}
	if wg.finished > 0 {
		l.Add(diag.Note, wgsl.Span{}, src, "%d invocations have finished running the shader", wg.finished)
	}

	Logger().Warn("interp: non-uniform barrier", "workgroup", wg.id.String(), "waiting", firstCount)
	e.ReportError(l)
}
