package interp

import (
	"github.com/gogpu/wgslinterp/diag"
	"github.com/gogpu/wgslinterp/wgsl"
)

// callbacks holds the listeners registered on an executor, per event kind,
// in registration order.
type callbacks struct {
	barrier           []func(*Workgroup, wgsl.ExprID)
	dispatchBegin     []func()
	dispatchComplete  []func()
	errors            []func(diag.List)
	memoryLoad        []func(*MemoryView)
	memoryStore       []func(*MemoryView)
	preStep           []func(*Invocation)
	postStep          []func(*Invocation)
	workgroupBegin    []func(*Workgroup)
	workgroupComplete []func(*Workgroup)
}

// AddBarrierCallback registers f to run when a workgroup releases its
// invocations from a barrier. call is the barrier call expression the
// first waiting invocation reached.
func (e *Executor) AddBarrierCallback(f func(wg *Workgroup, call wgsl.ExprID)) {
	e.cb.barrier = append(e.cb.barrier, f)
}

// AddDispatchBeginCallback registers f to run when Run starts executing.
func (e *Executor) AddDispatchBeginCallback(f func()) {
	e.cb.dispatchBegin = append(e.cb.dispatchBegin, f)
}

// AddDispatchCompleteCallback registers f to run when every workgroup has
// finished.
func (e *Executor) AddDispatchCompleteCallback(f func()) {
	e.cb.dispatchComplete = append(e.cb.dispatchComplete, f)
}

// AddErrorCallback registers f to receive runtime diagnostics. When no
// error callback is registered, diagnostics are written to stderr.
func (e *Executor) AddErrorCallback(f func(diag.List)) {
	e.cb.errors = append(e.cb.errors, f)
}

// AddMemoryLoadCallback registers f to run after every non-atomic load.
func (e *Executor) AddMemoryLoadCallback(f func(*MemoryView)) {
	e.cb.memoryLoad = append(e.cb.memoryLoad, f)
}

// AddMemoryStoreCallback registers f to run after every non-atomic store.
func (e *Executor) AddMemoryStoreCallback(f func(*MemoryView)) {
	e.cb.memoryStore = append(e.cb.memoryStore, f)
}

// AddPreStepCallback registers f to run before each invocation step.
func (e *Executor) AddPreStepCallback(f func(*Invocation)) {
	e.cb.preStep = append(e.cb.preStep, f)
}

// AddPostStepCallback registers f to run after each invocation step.
func (e *Executor) AddPostStepCallback(f func(*Invocation)) {
	e.cb.postStep = append(e.cb.postStep, f)
}

// AddWorkgroupBeginCallback registers f to run when a workgroup is created.
func (e *Executor) AddWorkgroupBeginCallback(f func(*Workgroup)) {
	e.cb.workgroupBegin = append(e.cb.workgroupBegin, f)
}

// AddWorkgroupCompleteCallback registers f to run when every invocation of
// a workgroup has finished.
func (e *Executor) AddWorkgroupCompleteCallback(f func(*Workgroup)) {
	e.cb.workgroupComplete = append(e.cb.workgroupComplete, f)
}

func (e *Executor) reportBarrier(wg *Workgroup, call wgsl.ExprID) {
	for _, f := range e.cb.barrier {
		f(wg, call)
	}
}

func (e *Executor) reportDispatchBegin() {
	for _, f := range e.cb.dispatchBegin {
		f()
	}
}

func (e *Executor) reportDispatchComplete() {
	for _, f := range e.cb.dispatchComplete {
		f()
	}
}

func (e *Executor) reportMemoryLoad(v *MemoryView) {
	for _, f := range e.cb.memoryLoad {
		f(v)
	}
}

func (e *Executor) reportMemoryStore(v *MemoryView) {
	for _, f := range e.cb.memoryStore {
		f(v)
	}
}

func (e *Executor) reportPreStep(inv *Invocation) {
	for _, f := range e.cb.preStep {
		f(inv)
	}
}

func (e *Executor) reportPostStep(inv *Invocation) {
	for _, f := range e.cb.postStep {
		f(inv)
	}
}

func (e *Executor) reportWorkgroupBegin(wg *Workgroup) {
	for _, f := range e.cb.workgroupBegin {
		f(wg)
	}
}

func (e *Executor) reportWorkgroupComplete(wg *Workgroup) {
	for _, f := range e.cb.workgroupComplete {
		f(wg)
	}
}
