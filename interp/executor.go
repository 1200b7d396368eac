// Package interp executes WGSL compute shaders on the CPU.
//
// An Executor runs one dispatch of a compute entry point. Workgroups run one
// after another in (z, y, x) order. Within a workgroup, invocations run one
// at a time, each until it finishes or reaches a barrier, so every run of
// the same program over the same inputs performs the same steps in the same
// order.
//
// Runtime problems do not stop the dispatch: out-of-bounds accesses,
// non-finite values and non-uniform barriers are reported as diagnostics
// through the error callbacks and execution carries on with a defined
// fallback. Only conditions the interpreter cannot continue from end Run
// with an error.
//
// Tools observe execution through callbacks registered on the executor:
// the data race detector in package race is one such tool.
package interp

import (
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgslinterp/diag"
	"github.com/gogpu/wgslinterp/eval"
	"github.com/gogpu/wgslinterp/sem"
	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

// BindingPoint identifies a resource binding.
type BindingPoint struct {
	Group   uint32
	Binding uint32
}

func (p BindingPoint) String() string {
	return fmt.Sprintf("@group(%d) @binding(%d)", p.Group, p.Binding)
}

// Binding is a buffer range bound to a BindingPoint. A Size of 0 binds
// everything from Offset to the end of the buffer.
type Binding struct {
	Buffer *Memory
	Offset uint64
	Size   uint64
}

// Executor runs a dispatch of a compute shader.
type Executor struct {
	program    *sem.Program
	entry      *sem.Function
	entryPoint string
	limits     gputypes.Limits

	workgroupSize  UVec3
	workgroupCount UVec3

	overrideValues map[*sem.Variable]eval.Value
	namedOverrides map[string]eval.Value

	bindings     map[BindingPoint]*MemoryView
	bindingViews map[*sem.Variable]*MemoryView

	views   []*MemoryView
	current *Workgroup
	pending []pendingGroup

	cb       callbacks
	warner   runtimeWarner
	diags    []diag.List
	reported map[string]bool
	stderr   io.Writer
	fatal    *Error
	ran      bool
}

// Create prepares an executor for the named compute entry point of
// program. overrides supplies pipeline-override values, keyed by override
// name or by the decimal @id when one is declared.
func Create(program *sem.Program, entryPoint string, overrides map[string]float64) (*Executor, error) {
	return CreateWithLimits(program, entryPoint, overrides, gputypes.DefaultLimits())
}

// CreateWithLimits is Create with explicit device limits. The workgroup
// size and buffer bindings are checked against them.
func CreateWithLimits(program *sem.Program, entryPoint string, overrides map[string]float64,
	limits gputypes.Limits) (*Executor, error) {
	fn := program.Function(entryPoint)
	if fn == nil {
		return nil, newError(ErrEntryPointNotFound, "entry point '%s' not found in module", entryPoint)
	}
	if !fn.Compute {
		return nil, newErrorAt(ErrNotAComputeEntryPoint, fn.Decl.Span, "function '%s' is not a compute shader", entryPoint)
	}

	e := &Executor{
		program:        program,
		entry:          fn,
		entryPoint:     entryPoint,
		limits:         limits,
		overrideValues: make(map[*sem.Variable]eval.Value),
		namedOverrides: make(map[string]eval.Value),
		bindings:       make(map[BindingPoint]*MemoryView),
		bindingViews:   make(map[*sem.Variable]*MemoryView),
		reported:       make(map[string]bool),
		stderr:         os.Stderr,
	}
	e.warner = runtimeWarner{e}

	if err := e.resolveOverrides(overrides); err != nil {
		return nil, err
	}
	if err := e.resolveWorkgroupSize(); err != nil {
		return nil, err
	}

	Logger().Debug("interp: executor created",
		"entry", entryPoint,
		"workgroup_size", e.workgroupSize.String(),
		"overrides", len(e.overrideValues))
	return e, nil
}

// resolveOverrides computes the value of every override the entry point
// uses, in declaration order, so initializers can refer to earlier ones.
func (e *Executor) resolveOverrides(supplied map[string]float64) error {
	for _, v := range e.entry.Overrides() {
		var val eval.Value
		if x, ok := supplied[v.OverrideKey()]; ok {
			var err error
			if val, err = overrideFromFloat(v, x); err != nil {
				return err
			}
		} else if v.Init != wgsl.NoExpr {
			val = e.evaluateOverrideExpression(v.Init)
			if val == nil {
				return e.setupError(ErrInvalidOverride, v.Span, "failed to evaluate the initializer of override '%s'", v.Name)
			}
			if types.IsAbstract(val.Type()) {
				val = eval.Convert(val, v.Type, e.warner)
			}
		} else {
			return newErrorAt(ErrMissingOverrideValue, v.Span, "missing pipeline-override value for '%s'", v.Name)
		}
		e.overrideValues[v] = val
		e.namedOverrides[v.Name] = val
	}
	return nil
}

// overrideFromFloat converts a supplied override value to the override
// type. Integer overrides reject fractional and out-of-range values.
func overrideFromFloat(v *sem.Variable, x float64) (eval.Value, error) {
	s := types.ScalarOf(v.Type)
	if s == nil {
		return nil, newErrorAt(ErrInvalidOverride, v.Span, "override '%s' has non-scalar type '%s'", v.Name, v.Type)
	}
	switch s.Kind {
	case types.KindI32:
		if x != math.Trunc(x) || x < math.MinInt32 || x > math.MaxInt32 {
			return nil, newErrorAt(ErrInvalidOverride, v.Span, "value %v for override '%s' is not representable as 'i32'", x, v.Name)
		}
	case types.KindU32:
		if x != math.Trunc(x) || x < 0 || x > math.MaxUint32 {
			return nil, newErrorAt(ErrInvalidOverride, v.Span, "value %v for override '%s' is not representable as 'u32'", x, v.Name)
		}
	}
	return eval.FromFloat64(s, x), nil
}

func (e *Executor) resolveWorkgroupSize() error {
	limits := [3]uint32{
		e.limits.MaxComputeWorkgroupSizeX,
		e.limits.MaxComputeWorkgroupSizeY,
		e.limits.MaxComputeWorkgroupSizeZ,
	}
	for i, id := range e.entry.WorkgroupSize {
		if id == wgsl.NoExpr {
			e.workgroupSize[i] = 1
			continue
		}
		v, ok := e.program.ConstValue(id)
		if !ok {
			if v = e.evaluateOverrideExpression(id); v == nil {
				return e.setupError(ErrInvalidWorkgroupSize, e.program.Module.ExprSpan(id), "failed to evaluate the workgroup size")
			}
		}
		n, _ := eval.AsInt64(v)
		if n < 1 || uint64(n) > uint64(limits[i]) {
			return newErrorAt(ErrInvalidWorkgroupSize, e.program.Module.ExprSpan(id),
				"workgroup size %d in dimension %d must be between 1 and %d", n, i, limits[i])
		}
		e.workgroupSize[i] = uint32(n)
	}
	if total := e.workgroupSize.Volume(); total > uint64(e.limits.MaxComputeInvocationsPerWorkgroup) {
		return newErrorAt(ErrInvalidWorkgroupSize, e.entry.Decl.Span,
			"workgroup size %s has %d invocations, more than the limit of %d",
			e.workgroupSize, total, e.limits.MaxComputeInvocationsPerWorkgroup)
	}
	return nil
}

// setupError returns the fatal error raised while evaluating an
// expression during setup, or a new error of the given kind.
func (e *Executor) setupError(kind ErrorKind, span wgsl.Span, format string, args ...any) *Error {
	if e.fatal != nil {
		err := *e.fatal
		err.Kind = kind
		return &err
	}
	return newErrorAt(kind, span, format, args...)
}

// Run executes count workgroups with the given buffer bindings. It returns
// an error when setup fails or execution hits a fatal condition; runtime
// diagnostics are reported through the error callbacks instead.
func (e *Executor) Run(count UVec3, bindings map[BindingPoint]Binding) error {
	if e.ran {
		return newError(ErrAlreadyRun, "the shader has already been run")
	}
	e.ran = true
	e.workgroupCount = count

	if err := e.bind(bindings); err != nil {
		return err
	}

	for z := uint32(0); z < count[2]; z++ {
		for y := uint32(0); y < count[1]; y++ {
			for x := uint32(0); x < count[0]; x++ {
				e.pending = append(e.pending, pendingGroup{id: UVec3{x, y, z}})
			}
		}
	}

	Logger().Info("interp: dispatch begin",
		"entry", e.entryPoint,
		"workgroups", count.String(),
		"workgroup_size", e.workgroupSize.String())
	e.reportDispatchBegin()

	steps := 0
	for len(e.pending) > 0 || e.current != nil {
		if e.current == nil {
			e.SelectWorkgroup(e.pending[0].id)
		}
		if e.fatal != nil {
			return e.fatal
		}
		e.current.Step()
		steps++
		if e.fatal != nil {
			return e.fatal
		}
		if e.current.Finished() {
			e.current = nil
		}
	}

	Logger().Info("interp: dispatch complete",
		"entry", e.entryPoint,
		"steps", steps,
		"diagnostics", len(e.diags))
	e.reportDispatchComplete()
	return nil
}

// pendingGroup is a workgroup that has not finished. wg is nil until the
// workgroup is first selected.
type pendingGroup struct {
	id UVec3
	wg *Workgroup
}

// SelectWorkgroup makes the workgroup with the given id current, pausing
// the current one. A workgroup that has not started yet is created. It
// reports false when the id is outside the dispatch or the workgroup has
// already finished.
func (e *Executor) SelectWorkgroup(id UVec3) bool {
	if e.current != nil && e.current.id == id {
		return true
	}
	i, found := slices.BinarySearchFunc(e.pending, id, comparePending)
	if !found {
		return false
	}
	target := e.pending[i]
	e.pending = slices.Delete(e.pending, i, i+1)
	if e.current != nil && !e.current.Finished() {
		e.pause(e.current)
	}

	if target.wg == nil {
		e.current = nil
		target.wg = newWorkgroup(e, id)
		if e.current != nil {
			// A workgroup-begin callback selected another workgroup.
			e.pause(target.wg)
			return true
		}
	}
	e.current = target.wg
	return true
}

func (e *Executor) pause(wg *Workgroup) {
	i, _ := slices.BinarySearchFunc(e.pending, wg.id, comparePending)
	e.pending = slices.Insert(e.pending, i, pendingGroup{id: wg.id, wg: wg})
}

func comparePending(p pendingGroup, id UVec3) int {
	switch {
	case p.id.Less(id):
		return -1
	case id.Less(p.id):
		return 1
	}
	return 0
}

// bind creates the root views of every buffer the entry point uses.
func (e *Executor) bind(bindings map[BindingPoint]Binding) error {
	for _, g := range e.entry.Globals {
		if !g.HasBinding {
			continue
		}
		point := BindingPoint{Group: g.Group, Binding: g.Binding}
		if types.IsHandle(g.Type) {
			return newErrorAt(ErrInvalidBindingResource, g.Span, "invalid binding resource for %s", point)
		}
		b, ok := bindings[point]
		if !ok {
			return newErrorAt(ErrMissingBufferBinding, g.Span, "missing buffer binding for %s", point)
		}
		if b.Buffer == nil || b.Offset > b.Buffer.Size() {
			return newErrorAt(ErrInvalidBindingResource, g.Span, "invalid binding resource for %s", point)
		}
		size := b.Size
		if size == 0 {
			size = b.Buffer.Size() - b.Offset
		}
		limit := e.limits.MaxStorageBufferBindingSize
		if g.Space == types.SpaceUniform {
			limit = e.limits.MaxUniformBufferBindingSize
		}
		if size > limit {
			return newErrorAt(ErrInvalidBindingResource, g.Span,
				"invalid binding resource for %s: %d bytes exceeds the binding size limit of %d", point, size, limit)
		}
		view, err := b.Buffer.CreateView(e, g.Space, g.Type, b.Offset, size, g.Span)
		if err != nil {
			return newErrorAt(ErrInvalidBindingResource, g.Span, "invalid binding resource for %s", point)
		}
		view.access = g.Access
		e.bindings[point] = view
		e.bindingViews[g] = view
	}
	return nil
}

// BindingLayout describes the buffers the entry point expects in the given
// bind group, ordered by binding number.
func (e *Executor) BindingLayout(group uint32) []gputypes.BindGroupLayoutEntry {
	var entries []gputypes.BindGroupLayoutEntry
	for _, g := range e.entry.Globals {
		if !g.HasBinding || g.Group != group || types.IsHandle(g.Type) {
			continue
		}
		typ := gputypes.BufferBindingTypeStorage
		switch {
		case g.Space == types.SpaceUniform:
			typ = gputypes.BufferBindingTypeUniform
		case g.Access == types.AccessRead:
			typ = gputypes.BufferBindingTypeReadOnlyStorage
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    g.Binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ, MinBindingSize: minBindingSize(g.Type)},
		})
	}
	slices.SortFunc(entries, func(a, b gputypes.BindGroupLayoutEntry) int { return int(a.Binding) - int(b.Binding) })
	return entries
}

// BindGroups returns the sorted bind group numbers the entry point uses.
func (e *Executor) BindGroups() []uint32 {
	var groups []uint32
	for _, g := range e.entry.Globals {
		if g.HasBinding && !slices.Contains(groups, g.Group) {
			groups = append(groups, g.Group)
		}
	}
	slices.Sort(groups)
	return groups
}

// minBindingSize is the size of the fixed part of a buffer type; a runtime
// array needs room for at least one element.
func minBindingSize(t types.Type) uint64 {
	switch t := t.(type) {
	case *types.Array:
		if t.IsRuntime() {
			return types.Stride(t)
		}
	case *types.Struct:
		if n := len(t.Members); n > 0 {
			last := t.Members[n-1]
			if arr, ok := last.Type.(*types.Array); ok && arr.IsRuntime() {
				return types.RoundUp(types.Align(t), last.Offset+types.Stride(arr))
			}
		}
	}
	return types.Size(t)
}

// Program returns the program being executed.
func (e *Executor) Program() *sem.Program { return e.program }

// EntryPoint returns the entry point function.
func (e *Executor) EntryPoint() *sem.Function { return e.entry }

// WorkgroupSize returns the resolved workgroup size.
func (e *Executor) WorkgroupSize() UVec3 { return e.workgroupSize }

// WorkgroupCount returns the number of workgroups of the dispatch.
func (e *Executor) WorkgroupCount() UVec3 { return e.workgroupCount }

// Bindings returns the root views of the bound buffers.
func (e *Executor) Bindings() map[BindingPoint]*MemoryView { return e.bindings }

// GetNamedOverride returns the resolved value of the override with the
// given name.
func (e *Executor) GetNamedOverride(name string) (eval.Value, bool) {
	v, ok := e.namedOverrides[name]
	return v, ok
}

// CurrentWorkgroup returns the workgroup being executed, or nil.
func (e *Executor) CurrentWorkgroup() *Workgroup { return e.current }

// CurrentInvocation returns the invocation being executed, or nil.
func (e *Executor) CurrentInvocation() *Invocation {
	if e.current == nil {
		return nil
	}
	return e.current.CurrentInvocation()
}

// View returns the memory view with the given id.
func (e *Executor) View(id ViewID) *MemoryView {
	if id < 0 || int(id) >= len(e.views) {
		return nil
	}
	return e.views[id]
}

func (e *Executor) newView(v *MemoryView) *MemoryView {
	v.id = ViewID(len(e.views))
	v.exec = e
	if v.parent == NoView {
		v.root = v.id
	}
	e.views = append(e.views, v)
	return v
}

// SetDiagnosticOutput sets where diagnostics go when no error callback is
// registered. The default is os.Stderr.
func (e *Executor) SetDiagnosticOutput(w io.Writer) { e.stderr = w }

// Diagnostics returns every diagnostic reported so far.
func (e *Executor) Diagnostics() []diag.List { return e.diags }

// ReportError delivers a runtime diagnostic to the error callbacks, or
// writes it to the diagnostic output when there are none.
func (e *Executor) ReportError(l diag.List) {
	if len(l) == 0 {
		return
	}
	e.diags = append(e.diags, l)
	if len(e.cb.errors) > 0 {
		for _, f := range e.cb.errors {
			f(l)
		}
		return
	}

	out := slices.Clone(l)
	if inv := e.CurrentInvocation(); inv != nil {
		out[0].Message += fmt.Sprintf("\nwhile running local_invocation_id%s workgroup_id%s",
			inv.LocalInvocationID(), inv.WorkgroupID())
	}
	fmt.Fprintln(e.stderr, out.String())
}

// reportOnce reports l unless an identical report was already made.
func (e *Executor) reportOnce(l diag.List) {
	key := l.Key()
	if e.reported[key] {
		return
	}
	e.reported[key] = true
	e.ReportError(l)
}

// ReportFatalError records a condition execution cannot continue from. Run
// stops and returns the first such error.
func (e *Executor) ReportFatalError(msg string, span wgsl.Span) {
	if e.fatal != nil {
		return
	}
	if span.Start.Line > 0 {
		e.fatal = newErrorAt(ErrFatal, span, "%s", msg)
	} else {
		e.fatal = newError(ErrFatal, "%s", msg)
	}
	Logger().Warn("interp: fatal error", "err", e.fatal.Error())
}

// currentSpan locates the current expression, or else the current
// statement, of the current invocation.
func (e *Executor) currentSpan() wgsl.Span {
	inv := e.CurrentInvocation()
	if inv == nil {
		return wgsl.Span{}
	}
	m := e.program.Module
	if expr := inv.CurrentExpression(0); expr != wgsl.NoExpr {
		return m.ExprSpan(expr)
	}
	return m.StmtSpan(inv.CurrentStatement(0))
}

// warnf reports a value warning at the current location.
func (e *Executor) warnf(format string, args ...any) {
	var l diag.List
	l.Add(diag.Warning, e.currentSpan(), e.program.Source(), format, args...)
	e.reportOnce(l)
}

// runtimeWarner routes value warnings raised by eval to the executor.
type runtimeWarner struct{ e *Executor }

func (w runtimeWarner) Warnf(format string, args ...any) { w.e.warnf(format, args...) }

// evaluateOverrideExpression evaluates a const or override expression with
// a scratch invocation. It returns nil after a fatal error.
func (e *Executor) evaluateOverrideExpression(id wgsl.ExprID) eval.Value {
	if v, ok := e.program.ConstValue(id); ok {
		return v
	}
	inv := &Invocation{
		exec:    e,
		prog:    e.program,
		m:       e.program.Module,
		barrier: wgsl.NoExpr,
		values:  make(map[*sem.Variable]result),
		globals: make(map[string]*sem.Variable),
	}
	return inv.evaluateOverride(id)
}
