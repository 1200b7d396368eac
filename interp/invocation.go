package interp

import (
	"fmt"

	"github.com/gogpu/wgslinterp/eval"
	"github.com/gogpu/wgslinterp/sem"
	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

// UVec3 is a three-component id or size.
type UVec3 [3]uint32

// String formats the vector as (x,y,z).
func (v UVec3) String() string { return fmt.Sprintf("(%d,%d,%d)", v[0], v[1], v[2]) }

// Less orders ids by z, then y, then x.
func (v UVec3) Less(o UVec3) bool {
	for i := 2; i >= 0; i-- {
		if v[i] != o[i] {
			return v[i] < o[i]
		}
	}
	return false
}

// Volume returns x*y*z.
func (v UVec3) Volume() uint64 { return uint64(v[0]) * uint64(v[1]) * uint64(v[2]) }

// State is the scheduling state of an invocation.
type State uint8

const (
	// StateReady invocations can be stepped.
	StateReady State = iota
	// StateWaitingAtBarrier invocations are parked until the workgroup
	// releases the barrier.
	StateWaitingAtBarrier
	// StateFinished invocations have returned from the entry point.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateWaitingAtBarrier:
		return "barrier"
	default:
		return "finished"
	}
}

type resultKind uint8

const (
	resultInvalid resultKind = iota
	resultValue
	resultReference
	resultPointer
)

// result is what evaluating an expression produces: a value, or a memory
// view reached through a reference or a pointer.
type result struct {
	kind  resultKind
	value eval.Value
	view  *MemoryView
}

func valueResult(v eval.Value) result       { return result{kind: resultValue, value: v} }
func referenceResult(v *MemoryView) result  { return result{kind: resultReference, view: v} }
func pointerResult(v *MemoryView) result    { return result{kind: resultPointer, view: v} }
func (r result) isMemory() bool             { return r.kind == resultReference || r.kind == resultPointer }

type blockEnd uint8

const (
	endRegular blockEnd = iota
	endBreak
	endContinue
)

// queuedExpr is an expression waiting in a block's evaluation queue.
type queuedExpr struct {
	expr wgsl.ExprID
	eval func() result
}

// blockEntry is the execution state of one block: the statement cursor and
// the expression queue of the statement being executed.
type blockEntry struct {
	block   wgsl.StmtID
	stmts   []wgsl.StmtID
	pc      int
	current wgsl.StmtID

	queue []queuedExpr
	next  int
	// shortCircuit maps the queue index where the right operand of a
	// logical operator starts to the queue indices of the operators.
	shortCircuit map[int][]int
	results      map[wgsl.ExprID]result
	exec         func()
	// resume replaces the advance to the next statement once, after a
	// sub-statement such as a for-loop initializer has run.
	resume func()
}

func (b *blockEntry) done() bool { return b.pc >= len(b.stmts) }

type frame struct {
	fn     *sem.Function
	blocks []*blockEntry
	scopes []map[string]*sem.Variable
}

// Invocation is one logical thread of a workgroup. It executes by discrete
// steps over an explicit stack of call frames and blocks, so it can be
// suspended at any point.
type Invocation struct {
	exec       *Executor
	prog       *sem.Program
	m          *wgsl.Module
	groupID    UVec3
	localID    UVec3
	localIndex uint32

	frames  []*frame
	barrier wgsl.ExprID
	values  map[*sem.Variable]result
	globals map[string]*sem.Variable
}

// newInvocation creates an invocation of the executor's entry point.
// workgroupViews holds the root views of the workgroup's allocations.
func newInvocation(e *Executor, groupID, localID UVec3, workgroupViews map[*sem.Variable]*MemoryView) *Invocation {
	size := e.workgroupSize
	inv := &Invocation{
		exec:       e,
		prog:       e.program,
		m:          e.program.Module,
		groupID:    groupID,
		localID:    localID,
		localIndex: localID[0] + size[0]*(localID[1]+size[1]*localID[2]),
		barrier:    wgsl.NoExpr,
		values:     make(map[*sem.Variable]result),
		globals:    make(map[string]*sem.Variable),
	}

	fn := e.entry
	for _, g := range fn.Globals {
		inv.globals[g.Name] = g
		if g.Kind != sem.VarVar {
			continue
		}
		var view *MemoryView
		switch g.Space {
		case types.SpaceStorage, types.SpaceUniform:
			view = e.bindingViews[g]
			if view == nil {
				e.ReportFatalError("missing resource binding", g.Span)
				return inv
			}
		case types.SpaceWorkgroup:
			view = workgroupViews[g]
		case types.SpacePrivate:
			view = NewMemory(types.Size(g.Type)).CreateRootView(e, types.SpacePrivate, g.Type, g.Span)
			init := eval.Zero(g.Type)
			if g.Init != wgsl.NoExpr {
				if init = e.evaluateOverrideExpression(g.Init); init == nil {
					return inv
				}
				if types.IsAbstract(init.Type()) {
					init = eval.Convert(init, g.Type, e.warner)
				}
			}
			view.Store(init)
		default:
			e.ReportFatalError("unhandled global variable address space", g.Span)
			return inv
		}
		inv.values[g] = referenceResult(view)
	}

	args := make([]result, len(fn.Params))
	for i, p := range fn.Params {
		if st, ok := p.Type.(*types.Struct); ok {
			elems := make([]eval.Value, len(st.Members))
			for j, m := range st.Members {
				if elems[j] = inv.builtinValue(m.Builtin, m.Span); elems[j] == nil {
					return inv
				}
			}
			args[i] = valueResult(&eval.Composite{T: st, Elems: elems})
			continue
		}
		v := inv.builtinValue(p.Builtin, p.Span)
		if v == nil {
			return inv
		}
		args[i] = valueResult(v)
	}

	inv.startFunction(fn, args)
	return inv
}

var uvec3Type = &types.Vector{N: 3, Elem: types.U32}

func uvec3(x, y, z uint32) eval.Value {
	return &eval.Composite{T: uvec3Type, Elems: []eval.Value{eval.U32(x), eval.U32(y), eval.U32(z)}}
}

func (inv *Invocation) builtinValue(name string, span wgsl.Span) eval.Value {
	size, count := inv.exec.workgroupSize, inv.exec.workgroupCount
	l, g := inv.localID, inv.groupID
	switch name {
	case "global_invocation_id":
		return uvec3(l[0]+g[0]*size[0], l[1]+g[1]*size[1], l[2]+g[2]*size[2])
	case "local_invocation_id":
		return uvec3(l[0], l[1], l[2])
	case "local_invocation_index":
		return eval.U32(inv.localIndex)
	case "num_workgroups":
		return uvec3(count[0], count[1], count[2])
	case "workgroup_id":
		return uvec3(g[0], g[1], g[2])
	case "":
		inv.exec.ReportFatalError("unhandled entry point parameter", span)
	default:
		inv.exec.ReportFatalError(fmt.Sprintf("unhandled entry point builtin '%s'", name), span)
	}
	return nil
}

// LocalInvocationID returns the id of the invocation within its workgroup.
func (inv *Invocation) LocalInvocationID() UVec3 { return inv.localID }

// LocalInvocationIndex returns the linearized local id.
func (inv *Invocation) LocalInvocationIndex() uint32 { return inv.localIndex }

// WorkgroupID returns the id of the invocation's workgroup.
func (inv *Invocation) WorkgroupID() UVec3 { return inv.groupID }

// State returns the scheduling state.
func (inv *Invocation) State() State {
	switch {
	case len(inv.frames) == 0:
		return StateFinished
	case inv.barrier != wgsl.NoExpr:
		return StateWaitingAtBarrier
	}
	return StateReady
}

// Barrier returns the barrier call the invocation waits at, or NoExpr.
func (inv *Invocation) Barrier() wgsl.ExprID { return inv.barrier }

func (inv *Invocation) top() *frame { return inv.frames[len(inv.frames)-1] }

func (inv *Invocation) block() *blockEntry {
	f := inv.top()
	return f.blocks[len(f.blocks)-1]
}

// Step advances the invocation by one unit of work: the evaluation of one
// queued expression or, once the queue is drained, the execution of the
// current statement. It returns the state the invocation is left in.
func (inv *Invocation) Step() State {
	inv.step()
	return inv.State()
}

func (inv *Invocation) step() {
	if len(inv.frames) == 0 {
		Logger().Warn("interp: stepping a finished invocation", "local_id", inv.localID.String())
		return
	}
	f := inv.top()
	b := inv.block()
	if b.done() {
		inv.endBlock(endRegular)
		return
	}

	if b.next < len(b.queue) {
		// Skip the right operand of a logical operator when the left
		// operand decides the result.
		for _, op := range reverse(b.shortCircuit[b.next]) {
			bin := inv.m.Expr(b.queue[op].expr).(*wgsl.Binary)
			lhs := inv.valueOf(bin.X)
			if lhs != nil && eval.AsBool(lhs) == (bin.Op == wgsl.OpLogicalOr) {
				b.next = op
				break
			}
		}

		q := b.queue[b.next]
		r := q.eval()
		if len(inv.frames) == 0 || inv.top() != f {
			// A call switched to another function.
			return
		}

		info := inv.prog.Expr(q.expr)
		if info.Load && r.isMemory() {
			r = valueResult(r.view.Load())
		}
		b.results[q.expr] = inv.concretize(r, info)
		b.next++
		return
	}

	exec := b.exec
	b.exec = nil
	if exec == nil {
		inv.exec.ReportFatalError("no statement to execute", inv.m.StmtSpan(b.current))
		return
	}
	exec()
}

// concretize converts an abstract value to the concrete type the
// expression was materialized to.
func (inv *Invocation) concretize(r result, info *sem.ExprInfo) result {
	if r.kind != resultValue || r.value == nil || !types.IsAbstract(r.value.Type()) {
		return r
	}
	if want := info.ValueType(); want != nil && !types.IsAbstract(want) {
		r.value = eval.Convert(r.value, want, inv.exec.warner)
	}
	return r
}

func reverse(s []int) []int {
	out := make([]int, len(s))
	for i, x := range s {
		out[len(s)-1-i] = x
	}
	return out
}

// ClearBarrier releases the invocation from its barrier. For
// workgroupUniformLoad the value is loaded through the pointer argument and
// becomes the result of the call.
func (inv *Invocation) ClearBarrier() {
	if inv.barrier == wgsl.NoExpr {
		return
	}
	if inv.prog.Expr(inv.barrier).Builtin == "workgroupUniformLoad" {
		call := inv.m.Expr(inv.barrier).(*wgsl.Call)
		b := inv.block()
		if ptr := b.results[call.Args[0]]; ptr.isMemory() {
			b.results[inv.barrier] = valueResult(ptr.view.Load())
		}
	}
	inv.barrier = wgsl.NoExpr
}

func (inv *Invocation) frameAt(depth int) *frame {
	if depth < 0 || depth >= len(inv.frames) {
		return nil
	}
	f := inv.frames[len(inv.frames)-1-depth]
	if len(f.blocks) == 0 {
		return nil
	}
	return f
}

// CurrentBlock returns the innermost block of the given call frame, where
// frame 0 is the innermost call. It returns NoStmt when there is none.
func (inv *Invocation) CurrentBlock(depth int) wgsl.StmtID {
	f := inv.frameAt(depth)
	if f == nil {
		return wgsl.NoStmt
	}
	return f.blocks[len(f.blocks)-1].block
}

// CurrentStatement returns the statement being executed in the given call
// frame, or NoStmt.
func (inv *Invocation) CurrentStatement(depth int) wgsl.StmtID {
	f := inv.frameAt(depth)
	if f == nil {
		return wgsl.NoStmt
	}
	b := f.blocks[len(f.blocks)-1]
	if b.done() {
		return wgsl.NoStmt
	}
	return b.current
}

// CurrentExpression returns the next expression to be evaluated in the
// given call frame, or NoExpr when the statement itself is next.
func (inv *Invocation) CurrentExpression(depth int) wgsl.ExprID {
	f := inv.frameAt(depth)
	if f == nil {
		return wgsl.NoExpr
	}
	b := f.blocks[len(f.blocks)-1]
	if b.next < len(b.queue) {
		return b.queue[b.next].expr
	}
	return wgsl.NoExpr
}

// CurrentFunction returns the function executing in the given call frame,
// or nil.
func (inv *Invocation) CurrentFunction(depth int) *sem.Function {
	if f := inv.frameAt(depth); f != nil {
		return f.fn
	}
	return nil
}

// CallDepth returns the number of active call frames.
func (inv *Invocation) CallDepth() int { return len(inv.frames) }

// GetValue formats the value of the named variable as seen from the
// innermost scope of the invocation.
func (inv *Invocation) GetValue(name string) string {
	if len(inv.frames) == 0 {
		return "<invocation not running>"
	}
	v := inv.lookup(name)
	if v == nil {
		return "<identifier not found>"
	}

	switch v.Kind {
	case sem.VarConst:
		return eval.String(v.Value)
	case sem.VarOverride:
		return eval.String(inv.exec.overrideValues[v])
	}
	r, ok := inv.values[v]
	if !ok {
		return "<missing variable value>"
	}
	switch r.kind {
	case resultReference:
		return eval.String(r.view.peek())
	case resultValue:
		return eval.String(r.value)
	case resultPointer:
		return fmt.Sprintf("ptr<%s, %s>", r.view.space, r.view.typ)
	}
	return "<expression produced invalid result>"
}

func (inv *Invocation) lookup(name string) *sem.Variable {
	f := inv.top()
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if v, ok := f.scopes[i][name]; ok {
			return v
		}
	}
	return inv.globals[name]
}

func (inv *Invocation) declare(v *sem.Variable) {
	f := inv.top()
	f.scopes[len(f.scopes)-1][v.Name] = v
}

func (inv *Invocation) startFunction(fn *sem.Function, args []result) {
	f := &frame{fn: fn, scopes: []map[string]*sem.Variable{{}}}
	inv.frames = append(inv.frames, f)
	for i, p := range fn.Params {
		inv.values[p] = args[i]
		f.scopes[0][p.Name] = p
	}
	inv.startBlock(fn.Decl.Body)
}

func (inv *Invocation) startBlock(id wgsl.StmtID) {
	f := inv.top()
	b := &blockEntry{block: id, current: wgsl.NoStmt, results: make(map[wgsl.ExprID]result)}
	if blk, ok := inv.m.Stmt(id).(*wgsl.BlockStmt); ok {
		b.stmts = blk.Stmts
	}
	f.blocks = append(f.blocks, b)
	f.scopes = append(f.scopes, map[string]*sem.Variable{})
	if len(b.stmts) > 0 {
		b.current = b.stmts[0]
		b.exec = inv.prepare(b.current)
	}
}

// endBlock leaves the current block. Break and continue keep unwinding
// until they reach the loop or switch that handles them.
func (inv *Invocation) endBlock(kind blockEnd) {
	f := inv.top()
	prev := f.blocks[len(f.blocks)-1].block
	f.blocks = f.blocks[:len(f.blocks)-1]
	f.scopes = f.scopes[:len(f.scopes)-1]
	if len(f.blocks) == 0 {
		inv.returnFromFunction(result{})
		return
	}

	parent := inv.block()
	switch s := inv.m.Stmt(parent.current).(type) {
	case *wgsl.ForStmt:
		switch {
		case kind == endBreak:
			inv.nextStatement()
		case s.Update != wgsl.NoStmt:
			loop := parent.current
			parent.current = s.Update
			parent.exec = inv.prepare(s.Update)
			parent.resume = func() {
				parent.current = loop
				inv.resetQueue(parent)
				parent.exec = inv.loopCondition(s.Cond, s.Body)
			}
		default:
			inv.resetQueue(parent)
			parent.exec = inv.loopCondition(s.Cond, s.Body)
		}
	case *wgsl.LoopStmt:
		switch {
		case kind == endBreak:
			inv.nextStatement()
		case s.Continuing != wgsl.NoStmt && s.Continuing != prev && !inv.emptyBlock(s.Continuing):
			inv.startBlock(s.Continuing)
		default:
			inv.startBlock(s.Body)
		}
	case *wgsl.WhileStmt:
		if kind == endBreak {
			inv.nextStatement()
			return
		}
		inv.resetQueue(parent)
		parent.exec = inv.loopCondition(s.Cond, s.Body)
	case *wgsl.SwitchStmt:
		if kind == endContinue {
			inv.endBlock(kind)
			return
		}
		inv.nextStatement()
	default:
		if kind != endRegular {
			inv.endBlock(kind)
			return
		}
		inv.nextStatement()
	}
}

func (inv *Invocation) emptyBlock(id wgsl.StmtID) bool {
	b, ok := inv.m.Stmt(id).(*wgsl.BlockStmt)
	return ok && len(b.Stmts) == 0
}

// returnFromFunction pops the current call frame and hands ret to the
// caller as the result of the call expression.
func (inv *Invocation) returnFromFunction(ret result) {
	inv.frames = inv.frames[:len(inv.frames)-1]
	if len(inv.frames) == 0 {
		return
	}
	b := inv.block()
	if ret.kind != resultInvalid {
		b.results[b.queue[b.next].expr] = ret
	}
	b.next++
}

func (inv *Invocation) nextStatement() {
	b := inv.block()
	if b.resume != nil {
		resume := b.resume
		b.resume = nil
		resume()
		return
	}
	b.pc++
	if b.pc < len(b.stmts) {
		b.current = b.stmts[b.pc]
		b.exec = inv.prepare(b.current)
	}
}

func (inv *Invocation) resetQueue(b *blockEntry) {
	b.queue = b.queue[:0]
	b.next = 0
	b.shortCircuit = nil
	clear(b.results)
}

// prepare enqueues the expressions a statement depends on and returns the
// function that executes the statement once they are evaluated.
func (inv *Invocation) prepare(id wgsl.StmtID) func() {
	inv.resetQueue(inv.block())
	switch s := inv.m.Stmt(id).(type) {
	case *wgsl.BlockStmt:
		return func() { inv.startBlock(id) }
	case *wgsl.DeclStmt:
		return inv.declStmt(s)
	case *wgsl.AssignStmt:
		return inv.assign(s)
	case *wgsl.IncDecStmt:
		return inv.incDec(s)
	case *wgsl.CallStmt:
		inv.enqueue(s.Call)
		return inv.nextStatement
	case *wgsl.IfStmt:
		return inv.ifStmt(id, s)
	case *wgsl.ForStmt:
		return inv.forStmt(id, s)
	case *wgsl.WhileStmt:
		return inv.loopCondition(s.Cond, s.Body)
	case *wgsl.LoopStmt:
		return func() { inv.startBlock(s.Body) }
	case *wgsl.BreakIfStmt:
		inv.enqueue(s.Cond)
		return func() {
			if cond := inv.valueOf(s.Cond); cond != nil {
				if eval.AsBool(cond) {
					inv.endBlock(endBreak)
				} else {
					inv.nextStatement()
				}
			}
		}
	case *wgsl.SwitchStmt:
		return inv.switchStmt(s)
	case *wgsl.BreakStmt:
		return func() { inv.endBlock(endBreak) }
	case *wgsl.ContinueStmt:
		return func() { inv.endBlock(endContinue) }
	case *wgsl.ReturnStmt:
		inv.enqueue(s.Value)
		return func() {
			var ret result
			if s.Value != wgsl.NoExpr {
				v := inv.valueOf(s.Value)
				if v == nil {
					return
				}
				ret = valueResult(v)
			}
			inv.returnFromFunction(ret)
		}
	case *wgsl.ConstAssertStmt:
		return inv.nextStatement
	}
	span := inv.m.StmtSpan(id)
	return func() { inv.exec.ReportFatalError("unhandled statement type", span) }
}

func (inv *Invocation) declStmt(s *wgsl.DeclStmt) func() {
	inv.enqueue(s.Var.Init)
	return func() {
		v := inv.prog.Local(s.Var)
		if v == nil {
			inv.exec.ReportFatalError("unresolved variable declaration", s.Var.Span)
			return
		}
		switch v.Kind {
		case sem.VarConst:
			// Uses read the folded value.
		case sem.VarLet:
			r := inv.getResult(s.Var.Init)
			if r.kind == resultInvalid {
				return
			}
			inv.values[v] = r
		case sem.VarVar:
			init := eval.Zero(v.Type)
			if s.Var.Init != wgsl.NoExpr {
				if init = inv.valueOf(s.Var.Init); init == nil {
					return
				}
				if types.IsAbstract(init.Type()) {
					init = eval.Convert(init, v.Type, inv.exec.warner)
				}
			}
			view := NewMemory(types.Size(v.Type)).CreateRootView(inv.exec, types.SpaceFunction, v.Type, s.Var.Span)
			view.Store(init)
			inv.values[v] = referenceResult(view)
		default:
			inv.exec.ReportFatalError("unhandled variable declaration type", s.Var.Span)
			return
		}
		inv.declare(v)
		inv.nextStatement()
	}
}

func (inv *Invocation) assign(s *wgsl.AssignStmt) func() {
	_, phony := inv.m.Expr(s.LHS).(*wgsl.Phony)
	if !phony {
		inv.enqueue(s.LHS)
	}
	inv.enqueue(s.RHS)
	return func() {
		rhs := inv.valueOf(s.RHS)
		if rhs == nil {
			return
		}
		if phony {
			inv.nextStatement()
			return
		}
		lhs := inv.viewOf(s.LHS)
		if lhs == nil {
			return
		}
		if s.Compound {
			v, err := eval.Binary(s.Op, lhs.Load(), rhs, inv.exec.warner)
			if err != nil {
				inv.exec.ReportFatalError(err.Error(), s.Span)
				return
			}
			rhs = v
		}
		lhs.Store(rhs)
		inv.nextStatement()
	}
}

func (inv *Invocation) incDec(s *wgsl.IncDecStmt) func() {
	inv.enqueue(s.LHS)
	return func() {
		lhs := inv.viewOf(s.LHS)
		if lhs == nil {
			return
		}
		op := wgsl.OpAdd
		if !s.Increment {
			op = wgsl.OpSub
		}
		v, err := eval.Binary(op, lhs.Load(), eval.AbstractInt(1), inv.exec.warner)
		if err != nil {
			inv.exec.ReportFatalError(err.Error(), s.Span)
			return
		}
		lhs.Store(v)
		inv.nextStatement()
	}
}

func (inv *Invocation) ifStmt(id wgsl.StmtID, s *wgsl.IfStmt) func() {
	inv.enqueue(s.Cond)
	return func() {
		cond := inv.valueOf(s.Cond)
		if cond == nil {
			return
		}
		switch {
		case eval.AsBool(cond):
			inv.startBlock(s.Body)
		case s.Else != wgsl.NoStmt:
			// The else branch runs with the if as the current statement, so
			// the block it enters returns to the statement after the if.
			b := inv.block()
			b.current = s.Else
			execElse := inv.prepare(s.Else)
			b.exec = func() {
				b.current = id
				execElse()
			}
		default:
			inv.nextStatement()
		}
	}
}

func (inv *Invocation) forStmt(id wgsl.StmtID, s *wgsl.ForStmt) func() {
	if s.Init == wgsl.NoStmt {
		return inv.loopCondition(s.Cond, s.Body)
	}
	return func() {
		b := inv.block()
		b.current = s.Init
		b.exec = inv.prepare(s.Init)
		b.resume = func() {
			b.current = id
			inv.resetQueue(b)
			b.exec = inv.loopCondition(s.Cond, s.Body)
		}
	}
}

// loopCondition enqueues a loop condition and returns the statement
// executor that enters the body or leaves the loop. A missing condition
// is always true.
func (inv *Invocation) loopCondition(cond wgsl.ExprID, body wgsl.StmtID) func() {
	inv.enqueue(cond)
	return func() {
		if cond != wgsl.NoExpr {
			v := inv.valueOf(cond)
			if v == nil {
				return
			}
			if !eval.AsBool(v) {
				inv.nextStatement()
				return
			}
		}
		inv.startBlock(body)
	}
}

func (inv *Invocation) switchStmt(s *wgsl.SwitchStmt) func() {
	inv.enqueue(s.Selector)
	return func() {
		sel := inv.valueOf(s.Selector)
		if sel == nil {
			return
		}
		want := eval.AsU32(sel)
		var selected, def *wgsl.CaseClause
	cases:
		for _, c := range s.Cases {
			for _, e := range c.Selectors {
				if e == wgsl.NoExpr {
					def = c
					continue
				}
				if v, ok := inv.prog.ConstValue(e); ok && eval.AsU32(v) == want {
					selected = c
					break cases
				}
			}
		}
		if selected == nil {
			selected = def
		}
		if selected == nil {
			inv.exec.ReportFatalError("switch statement has no default clause", s.Span)
			return
		}
		inv.startBlock(selected.Body)
	}
}

// enqueue adds an expression and its runtime sub-expressions to the
// current block's queue, operands first. Constant expressions produce
// their folded value without being queued.
func (inv *Invocation) enqueue(id wgsl.ExprID) {
	if id == wgsl.NoExpr {
		return
	}
	b := inv.block()
	info := inv.prog.Expr(id)
	if info.Stage == sem.StageConst && info.Value != nil {
		b.results[id] = inv.concretize(valueResult(info.Value), info)
		return
	}

	var fn func() result
	switch e := inv.m.Expr(id).(type) {
	case *wgsl.Ident:
		fn = inv.identExpr(id, e, info)
	case *wgsl.Paren:
		inv.enqueue(e.X)
		fn = func() result { return inv.getResult(e.X) }
	case *wgsl.Unary:
		fn = inv.unaryExpr(e)
	case *wgsl.Binary:
		fn = inv.binaryExpr(id, e)
	case *wgsl.Index:
		fn = inv.indexExpr(e, info)
	case *wgsl.Member:
		fn = inv.memberExpr(e, info)
	case *wgsl.Call:
		fn = inv.callExpr(id, e, info)
	case *wgsl.Phony:
		fn = func() result { return result{} }
	default:
		span := inv.m.ExprSpan(id)
		fn = func() result {
			inv.exec.ReportFatalError("unhandled expression type", span)
			return result{}
		}
	}
	b.queue = append(b.queue, queuedExpr{expr: id, eval: fn})
}

func (inv *Invocation) getResult(id wgsl.ExprID) result {
	if len(inv.frames) == 0 {
		inv.exec.ReportFatalError("getting expression result outside of a function", inv.m.ExprSpan(id))
		return result{}
	}
	r, ok := inv.block().results[id]
	if !ok {
		inv.exec.ReportFatalError("expression result not found", inv.m.ExprSpan(id))
	}
	return r
}

// valueOf returns the value an evaluated expression produced, or nil after
// reporting a fatal error.
func (inv *Invocation) valueOf(id wgsl.ExprID) eval.Value {
	r := inv.getResult(id)
	switch r.kind {
	case resultValue:
		return r.value
	case resultInvalid:
		return nil
	}
	inv.exec.ReportFatalError("expression did not produce a value", inv.m.ExprSpan(id))
	return nil
}

// viewOf returns the memory view a reference or pointer expression
// produced, or nil after reporting a fatal error.
func (inv *Invocation) viewOf(id wgsl.ExprID) *MemoryView {
	r := inv.getResult(id)
	if r.isMemory() {
		return r.view
	}
	if r.kind != resultInvalid {
		inv.exec.ReportFatalError("expression did not produce a memory view", inv.m.ExprSpan(id))
	}
	return nil
}

func (inv *Invocation) identExpr(id wgsl.ExprID, e *wgsl.Ident, info *sem.ExprInfo) func() result {
	return func() result {
		v := info.Var
		if v == nil {
			inv.exec.ReportFatalError(fmt.Sprintf("unresolved identifier '%s'", e.Name), e.Span)
			return result{}
		}
		switch v.Kind {
		case sem.VarOverride:
			val := inv.exec.overrideValues[v]
			if val == nil {
				inv.exec.ReportFatalError("missing named pipeline-override value", e.Span)
				return result{}
			}
			return valueResult(val)
		case sem.VarConst:
			return valueResult(v.Value)
		}
		r, ok := inv.values[v]
		if !ok {
			inv.exec.ReportFatalError("missing variable value", inv.m.ExprSpan(id))
			return result{}
		}
		return r
	}
}

func (inv *Invocation) unaryExpr(e *wgsl.Unary) func() result {
	inv.enqueue(e.X)
	return func() result {
		switch e.Op {
		case wgsl.OpAddrOf:
			if v := inv.viewOf(e.X); v != nil {
				return pointerResult(v)
			}
			return result{}
		case wgsl.OpDeref:
			if v := inv.viewOf(e.X); v != nil {
				return referenceResult(v)
			}
			return result{}
		}
		x := inv.valueOf(e.X)
		if x == nil {
			return result{}
		}
		v, err := eval.Unary(e.Op, x, inv.exec.warner)
		if err != nil {
			inv.exec.ReportFatalError(err.Error(), e.Span)
			return result{}
		}
		return valueResult(v)
	}
}

func (inv *Invocation) binaryExpr(id wgsl.ExprID, e *wgsl.Binary) func() result {
	b := inv.block()
	inv.enqueue(e.X)
	rhsStart := len(b.queue)
	inv.enqueue(e.Y)

	if e.Op.IsLogical() {
		if b.shortCircuit == nil {
			b.shortCircuit = make(map[int][]int)
		}
		b.shortCircuit[rhsStart] = append(b.shortCircuit[rhsStart], len(b.queue))
		return func() result {
			lhs := inv.valueOf(e.X)
			if lhs == nil {
				return result{}
			}
			if eval.AsBool(lhs) == (e.Op == wgsl.OpLogicalOr) {
				return valueResult(lhs)
			}
			rhs := inv.valueOf(e.Y)
			if rhs == nil {
				return result{}
			}
			return valueResult(rhs)
		}
	}

	return func() result {
		x, y := inv.valueOf(e.X), inv.valueOf(e.Y)
		if x == nil || y == nil {
			return result{}
		}
		v, err := eval.Binary(e.Op, x, y, inv.exec.warner)
		if err != nil {
			inv.exec.ReportFatalError(err.Error(), inv.m.ExprSpan(id))
			return result{}
		}
		return valueResult(v)
	}
}

func (inv *Invocation) indexExpr(e *wgsl.Index, info *sem.ExprInfo) func() result {
	inv.enqueue(e.X)
	inv.enqueue(e.Index)
	return func() result {
		obj := inv.getResult(e.X)
		iv := inv.valueOf(e.Index)
		if iv == nil {
			return result{}
		}
		idx := uint64(eval.AsU32(iv))
		elem := types.Unref(info.Type)

		switch obj.kind {
		case resultReference, resultPointer:
			stride := types.ElementStride(obj.view.typ)
			return referenceResult(obj.view.Subview(elem, idx*stride, types.Size(elem), e.Span))
		case resultValue:
			if idx >= uint64(eval.Len(obj.value)) {
				inv.exec.warnf("index %d is out of bounds", idx)
				return valueResult(eval.Zero(elem))
			}
			return valueResult(eval.Index(obj.value, int(idx)))
		}
		if obj.kind != resultInvalid {
			inv.exec.ReportFatalError("unhandled index accessor object kind", e.Span)
		}
		return result{}
	}
}

func (inv *Invocation) memberExpr(e *wgsl.Member, info *sem.ExprInfo) func() result {
	inv.enqueue(e.X)
	return func() result {
		obj := inv.getResult(e.X)
		if obj.kind == resultInvalid {
			return result{}
		}

		if m := info.Member; m != nil {
			if obj.kind == resultValue {
				return valueResult(eval.Index(obj.value, m.Index))
			}
			size := types.Size(m.Type)
			if arr, ok := m.Type.(*types.Array); ok && arr.IsRuntime() {
				// A runtime-sized member takes the rest of the structure.
				size = 0
				if obj.view.size > m.Offset {
					size = obj.view.size - m.Offset
				}
			}
			return referenceResult(obj.view.Subview(m.Type, m.Offset, size, e.Span))
		}

		idx := info.Swizzle
		if obj.isMemory() {
			if len(idx) == 1 {
				elem := types.Unref(info.Type)
				size := types.Size(elem)
				return referenceResult(obj.view.Subview(elem, uint64(idx[0])*size, size, e.Span))
			}
			// Multi-component swizzles are values: load the vector first.
			return valueResult(eval.Swizzle(obj.view.Load(), idx))
		}
		return valueResult(eval.Swizzle(obj.value, idx))
	}
}

func (inv *Invocation) callExpr(id wgsl.ExprID, e *wgsl.Call, info *sem.ExprInfo) func() result {
	for _, a := range e.Args {
		inv.enqueue(a)
	}
	return func() result {
		switch info.Call {
		case sem.CallFunction:
			args := make([]result, len(e.Args))
			for i, a := range e.Args {
				if args[i] = inv.getResult(a); args[i].kind == resultInvalid {
					return result{}
				}
			}
			inv.startFunction(info.Function, args)
			// Placeholder: the callee stores the result on return.
			return result{}
		case sem.CallConstruct, sem.CallBitcast:
			args, ok := inv.argValues(e)
			if !ok {
				return result{}
			}
			var v eval.Value
			var err error
			if info.Call == sem.CallBitcast {
				v, err = eval.Bitcast(args[0], info.Type, inv.exec.warner)
			} else {
				v, err = eval.Construct(info.Type, args, inv.exec.warner)
			}
			if err != nil {
				inv.exec.ReportFatalError(err.Error(), e.Span)
				return result{}
			}
			return valueResult(v)
		case sem.CallBuiltin:
			return inv.builtinCall(id, e, info)
		}
		inv.exec.ReportFatalError("unhandled call expression target", e.Span)
		return result{}
	}
}

func (inv *Invocation) argValues(e *wgsl.Call) ([]eval.Value, bool) {
	args := make([]eval.Value, len(e.Args))
	for i, a := range e.Args {
		if args[i] = inv.valueOf(a); args[i] == nil {
			return nil, false
		}
	}
	return args, true
}

var atomicOps = map[string]AtomicOp{
	"atomicAdd":      AtomicAdd,
	"atomicSub":      AtomicSub,
	"atomicMax":      AtomicMax,
	"atomicMin":      AtomicMin,
	"atomicAnd":      AtomicAnd,
	"atomicOr":       AtomicOr,
	"atomicXor":      AtomicXor,
	"atomicExchange": AtomicExchange,
}

func (inv *Invocation) builtinCall(id wgsl.ExprID, e *wgsl.Call, info *sem.ExprInfo) result {
	name := info.Builtin
	switch name {
	case "workgroupBarrier", "storageBarrier", "workgroupUniformLoad":
		// workgroupUniformLoad gets its value when the barrier is cleared.
		inv.barrier = id
		return result{}
	case "arrayLength":
		ptr := inv.viewOf(e.Args[0])
		if ptr == nil {
			return result{}
		}
		arr, ok := ptr.typ.(*types.Array)
		if !ok {
			inv.exec.ReportFatalError("arrayLength of a non-array", e.Span)
			return result{}
		}
		return valueResult(eval.U32(uint32(ptr.size / types.Stride(arr))))
	case "atomicLoad", "atomicStore", "atomicCompareExchangeWeak":
		return inv.atomicCall(name, e, info)
	}
	if _, ok := atomicOps[name]; ok {
		return inv.atomicCall(name, e, info)
	}

	args, ok := inv.argValues(e)
	if !ok {
		return result{}
	}
	v, err := eval.Call(name, args, info.Type, inv.exec.warner)
	if err != nil {
		inv.exec.ReportFatalError(fmt.Sprintf("builtin call evaluation failed: %v", err), e.Span)
		return result{}
	}
	return valueResult(v)
}

func (inv *Invocation) atomicCall(name string, e *wgsl.Call, info *sem.ExprInfo) result {
	ptr := inv.viewOf(e.Args[0])
	if ptr == nil {
		return result{}
	}
	operands := make([]eval.Value, len(e.Args)-1)
	for i, a := range e.Args[1:] {
		if operands[i] = inv.valueOf(a); operands[i] == nil {
			return result{}
		}
	}

	switch name {
	case "atomicLoad":
		return valueResult(ptr.AtomicLoad())
	case "atomicStore":
		ptr.AtomicStore(operands[0])
		return result{}
	case "atomicCompareExchangeWeak":
		old, exchanged := ptr.AtomicCompareExchange(operands[0], operands[1])
		return valueResult(&eval.Composite{T: info.Type, Elems: []eval.Value{old, eval.Bool(exchanged)}})
	}
	return valueResult(ptr.AtomicRMW(atomicOps[name], operands[0]))
}

// evaluateOverride evaluates a const or override-stage expression outside
// of any function, using this invocation as a scratch evaluator.
func (inv *Invocation) evaluateOverride(id wgsl.ExprID) eval.Value {
	if inv.prog.Expr(id).Stage == sem.StageRuntime {
		inv.exec.ReportFatalError("attempting to evaluate a non-override expression", inv.m.ExprSpan(id))
		return nil
	}
	b := &blockEntry{block: wgsl.NoStmt, current: wgsl.NoStmt, results: make(map[wgsl.ExprID]result)}
	inv.frames = append(inv.frames, &frame{blocks: []*blockEntry{b}, scopes: []map[string]*sem.Variable{{}}})
	defer func() { inv.frames = inv.frames[:len(inv.frames)-1] }()

	inv.enqueue(id)
	for ; b.next < len(b.queue); b.next++ {
		q := b.queue[b.next]
		b.results[q.expr] = inv.concretize(q.eval(), inv.prog.Expr(q.expr))
		if inv.exec.fatal != nil {
			return nil
		}
	}
	return inv.valueOf(id)
}
