package sem

import (
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/wgslinterp/eval"
	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

// Resolve resolves m. The returned error, if any, is a wgsl.SourceErrors.
// The program is returned even on error so callers can inspect what did
// resolve.
func Resolve(m *wgsl.Module) (*Program, error) {
	r := newResolver(m)
	r.run()
	if r.errs.HasErrors() {
		return r.p, r.errs
	}
	return r.p, nil
}

type declState uint8

const (
	unresolved declState = iota
	resolving
	resolved
)

type resolver struct {
	m    *wgsl.Module
	p    *Program
	errs wgsl.SourceErrors

	decls     map[string]wgsl.Decl
	declIndex map[wgsl.Decl]int
	state     map[wgsl.Decl]declState
	named     map[string]types.Type

	// Per-context state, saved and restored around nested declarations.
	scopes []map[string]*Variable
	fn     *Function
	uses   map[*Variable]bool

	void           map[wgsl.ExprID]bool
	builtinStructs map[string]*types.Struct
}

type resolverContext struct {
	scopes []map[string]*Variable
	fn     *Function
	uses   map[*Variable]bool
}

func newResolver(m *wgsl.Module) *resolver {
	return &resolver{
		m: m,
		p: &Program{
			Module:    m,
			Exprs:     make([]ExprInfo, len(m.Exprs)),
			globals:   make(map[string]*Variable),
			functions: make(map[string]*Function),
			locals:    make(map[*wgsl.Variable]*Variable),
		},
		decls:          make(map[string]wgsl.Decl),
		declIndex:      make(map[wgsl.Decl]int),
		state:          make(map[wgsl.Decl]declState),
		named:          make(map[string]types.Type),
		void:           make(map[wgsl.ExprID]bool),
		builtinStructs: make(map[string]*types.Struct),
	}
}

func (r *resolver) errorf(span wgsl.Span, format string, args ...any) {
	r.errs.Add(wgsl.NewSourceErrorf(span, r.m.Source, format, args...))
}

// constWarner turns evaluation warnings of constant expressions into
// errors: a constant that cannot be represented is a shader-creation error.
type constWarner struct {
	r    *resolver
	span wgsl.Span
}

func (w constWarner) Warnf(format string, args ...any) {
	w.r.errorf(w.span, format, args...)
}

func (constWarner) Strict() bool { return true }

func (r *resolver) warner(id wgsl.ExprID) eval.Warner {
	return constWarner{r: r, span: r.m.ExprSpan(id)}
}

func declName(d wgsl.Decl) string {
	switch d := d.(type) {
	case *wgsl.Variable:
		return d.Name
	case *wgsl.StructDecl:
		return d.Name
	case *wgsl.AliasDecl:
		return d.Name
	case *wgsl.FuncDecl:
		return d.Name
	}
	return ""
}

func (r *resolver) run() {
	for i, d := range r.m.Decls {
		r.declIndex[d] = i
		name := declName(d)
		if name == "" {
			continue
		}
		if _, dup := r.decls[name]; dup {
			r.errorf(d.Pos(), "redeclaration of '%s'", name)
			continue
		}
		if isBuiltinTypeName(name) || isBuiltinFunction(name) {
			r.errorf(d.Pos(), "'%s' shadows a builtin and cannot be redeclared", name)
			continue
		}
		r.decls[name] = d
	}
	for _, d := range r.m.Decls {
		if name := declName(d); name != "" && r.decls[name] != d {
			continue
		}
		r.resolveDecl(d)
	}

	slices.SortFunc(r.p.Globals, func(a, b *Variable) int { return a.Index - b.Index })
	slices.SortFunc(r.p.Functions, func(a, b *Function) int {
		return r.declIndex[a.Decl] - r.declIndex[b.Decl]
	})
	memo := make(map[*Function]map[*Variable]bool)
	for _, f := range r.p.Functions {
		set := r.globalsOf(f, memo)
		f.Globals = make([]*Variable, 0, len(set))
		for v := range set {
			f.Globals = append(f.Globals, v)
		}
		slices.SortFunc(f.Globals, func(a, b *Variable) int { return a.Index - b.Index })
	}
}

// globalsOf returns the module-scope variables f refers to, including the
// ones referenced by their initializers and types, and by callees.
func (r *resolver) globalsOf(f *Function, memo map[*Function]map[*Variable]bool) map[*Variable]bool {
	if set, ok := memo[f]; ok {
		return set
	}
	set := make(map[*Variable]bool)
	memo[f] = set
	var add func(v *Variable)
	add = func(v *Variable) {
		if set[v] {
			return
		}
		set[v] = true
		for _, ref := range v.refs {
			add(ref)
		}
	}
	for v := range f.uses {
		add(v)
	}
	for callee := range f.callees {
		for v := range r.globalsOf(callee, memo) {
			set[v] = true
		}
	}
	return set
}

func (r *resolver) save() resolverContext {
	return resolverContext{scopes: r.scopes, fn: r.fn, uses: r.uses}
}

func (r *resolver) restore(c resolverContext) {
	r.scopes, r.fn, r.uses = c.scopes, c.fn, c.uses
}

// resolveDecl resolves a module-scope declaration on first use.
func (r *resolver) resolveDecl(d wgsl.Decl) {
	switch r.state[d] {
	case resolved:
		return
	case resolving:
		r.errorf(d.Pos(), "cyclic dependency involving '%s'", declName(d))
		return
	}
	r.state[d] = resolving
	ctx := r.save()
	r.scopes, r.fn, r.uses = nil, nil, nil

	switch d := d.(type) {
	case *wgsl.StructDecl:
		r.resolveStruct(d)
	case *wgsl.AliasDecl:
		if t := r.resolveType(d.Type); t != nil {
			r.named[d.Name] = t
		}
	case *wgsl.Variable:
		r.resolveGlobalVar(d)
	case *wgsl.FuncDecl:
		r.resolveFunc(d)
	case *wgsl.ConstAssertDecl:
		r.constAssert(d.Cond, d.Span)
	}

	r.restore(ctx)
	r.state[d] = resolved
}

func (r *resolver) resolveStruct(d *wgsl.StructDecl) {
	specs := make([]types.MemberSpec, 0, len(d.Members))
	for _, m := range d.Members {
		t := r.resolveType(m.Type)
		if t == nil {
			return
		}
		spec := types.MemberSpec{Name: m.Name, Type: t, Span: m.Span}
		if a, ok := wgsl.FindAttr(m.Attrs, "align"); ok {
			spec.Align, _ = r.attrUint(a)
		}
		if a, ok := wgsl.FindAttr(m.Attrs, "size"); ok {
			spec.Size, _ = r.attrUint(a)
		}
		if a, ok := wgsl.FindAttr(m.Attrs, "builtin"); ok {
			spec.Builtin = r.attrName(a)
		}
		specs = append(specs, spec)
	}
	st, err := types.NewStruct(d.Name, specs)
	if err != nil {
		r.errorf(d.Span, "%v", err)
		return
	}
	r.named[d.Name] = st
}

// attrUint evaluates a constant non-negative integer attribute argument.
func (r *resolver) attrUint(a wgsl.Attribute) (uint64, bool) {
	if len(a.Args) != 1 {
		r.errorf(a.Span, "@%s expects one argument", a.Name)
		return 0, false
	}
	info := r.expr(a.Args[0])
	if info.Type == nil {
		return 0, false
	}
	if info.Stage != StageConst {
		r.errorf(a.Span, "@%s argument must be a const-expression", a.Name)
		return 0, false
	}
	n, ok := eval.AsInt64(info.Value)
	if !ok || n < 0 {
		r.errorf(a.Span, "@%s argument must be a non-negative integer", a.Name)
		return 0, false
	}
	return uint64(n), true
}

// attrName returns the identifier argument of an attribute such as
// @builtin(local_invocation_index).
func (r *resolver) attrName(a wgsl.Attribute) string {
	if len(a.Args) == 1 {
		if id, ok := r.m.Expr(a.Args[0]).(*wgsl.Ident); ok {
			return id.Name
		}
	}
	r.errorf(a.Span, "@%s expects an identifier argument", a.Name)
	return ""
}

func (r *resolver) resolveGlobalVar(d *wgsl.Variable) {
	v := &Variable{
		Name:   d.Name,
		Decl:   d,
		Init:   d.Init,
		Span:   d.Span,
		Global: true,
		Index:  r.declIndex[d],
	}
	r.uses = make(map[*Variable]bool)
	defer func() {
		for ref := range r.uses {
			v.refs = append(v.refs, ref)
		}
		r.p.globals[d.Name] = v
		r.p.Globals = append(r.p.Globals, v)
	}()

	var declared types.Type
	if d.Type != wgsl.NoExpr {
		if declared = r.resolveType(d.Type); declared == nil {
			return
		}
	}

	switch d.Kind {
	case wgsl.VarConst:
		v.Kind = VarConst
		v.Type, v.Value = r.constInit(d, declared)
	case wgsl.VarOverride:
		v.Kind = VarOverride
		r.overrideDecl(v, d, declared)
	case wgsl.VarLet:
		v.Kind = VarLet
		r.errorf(d.Span, "module-scope 'let' is not allowed, use 'const'")
	case wgsl.VarVar:
		v.Kind = VarVar
		r.globalVar(v, d, declared)
	}
}

// constInit resolves the initializer of a const declaration.
func (r *resolver) constInit(d *wgsl.Variable, declared types.Type) (types.Type, eval.Value) {
	if d.Init == wgsl.NoExpr {
		r.errorf(d.Span, "const declaration '%s' requires an initializer", d.Name)
		return declared, nil
	}
	t := r.value(d.Init)
	if t == nil {
		return declared, nil
	}
	if r.p.Exprs[d.Init].Stage != StageConst {
		r.errorf(r.m.ExprSpan(d.Init), "const initializer must be a const-expression")
		return declared, nil
	}
	if declared != nil {
		if !r.convertTo(d.Init, declared) {
			return declared, nil
		}
		t = declared
	}
	return t, r.p.Exprs[d.Init].Value
}

func (r *resolver) overrideDecl(v *Variable, d *wgsl.Variable, declared types.Type) {
	if a, ok := wgsl.FindAttr(d.Attrs, "id"); ok {
		if id, ok := r.attrUint(a); ok {
			v.HasID, v.OverrideID = true, uint32(id)
		}
	}
	t := declared
	if d.Init != wgsl.NoExpr {
		it := r.value(d.Init)
		if it == nil {
			return
		}
		if r.p.Exprs[d.Init].Stage == StageRuntime {
			r.errorf(r.m.ExprSpan(d.Init), "override initializer must be an override-expression")
			return
		}
		if t == nil {
			r.concretize(d.Init)
			t = r.p.Exprs[d.Init].ValueType()
		} else if !r.convertTo(d.Init, t) {
			return
		}
	}
	if t == nil {
		r.errorf(d.Span, "override '%s' requires a type or an initializer", d.Name)
		return
	}
	s, ok := t.(*types.Scalar)
	if !ok || s.IsAbstract() {
		r.errorf(d.Span, "override '%s' must have a concrete scalar type, not '%s'", d.Name, t)
		return
	}
	v.Type = t
}

func (r *resolver) globalVar(v *Variable, d *wgsl.Variable, declared types.Type) {
	if declared == nil {
		if d.Init == wgsl.NoExpr {
			r.errorf(d.Span, "var '%s' requires a type or an initializer", d.Name)
			return
		}
		if t := r.value(d.Init); t == nil {
			return
		}
		r.concretize(d.Init)
		declared = r.p.Exprs[d.Init].ValueType()
	} else if d.Init != wgsl.NoExpr {
		if t := r.value(d.Init); t == nil || !r.convertTo(d.Init, declared) {
			return
		}
	}
	v.Type = declared

	switch {
	case d.Space != "":
		space, ok := types.ParseAddressSpace(d.Space)
		if !ok || space == types.SpaceFunction {
			r.errorf(d.Span, "invalid address space '%s' for module-scope var", d.Space)
			return
		}
		v.Space = space
	case types.IsHandle(declared):
		v.Space = types.SpaceHandle
	default:
		r.errorf(d.Span, "module-scope var '%s' requires an address space", d.Name)
		return
	}

	v.Access = types.AccessReadWrite
	switch v.Space {
	case types.SpaceUniform, types.SpaceHandle:
		v.Access = types.AccessRead
	case types.SpaceStorage:
		v.Access = types.AccessRead
		if d.Access != "" {
			acc, ok := types.ParseAccess(d.Access)
			if !ok {
				r.errorf(d.Span, "invalid access mode '%s'", d.Access)
				return
			}
			v.Access = acc
		}
	}
	if d.Access != "" && v.Space != types.SpaceStorage {
		r.errorf(d.Span, "access mode is only allowed for the storage address space")
	}

	if d.Init != wgsl.NoExpr && v.Space != types.SpacePrivate {
		r.errorf(d.Span, "var in the %s address space cannot have an initializer", v.Space)
	}
	if d.Init != wgsl.NoExpr && r.p.Exprs[d.Init].Stage == StageRuntime {
		r.errorf(r.m.ExprSpan(d.Init), "module-scope initializer must be an override-expression")
	}

	switch v.Space {
	case types.SpaceStorage, types.SpaceUniform, types.SpaceHandle:
		g, gok := wgsl.FindAttr(d.Attrs, "group")
		b, bok := wgsl.FindAttr(d.Attrs, "binding")
		if !gok || !bok {
			r.errorf(d.Span, "resource variable '%s' requires @group and @binding", d.Name)
			return
		}
		group, ok1 := r.attrUint(g)
		binding, ok2 := r.attrUint(b)
		if ok1 && ok2 {
			v.HasBinding, v.Group, v.Binding = true, uint32(group), uint32(binding)
		}
	case types.SpacePrivate, types.SpaceWorkgroup:
		if a, ok := declared.(*types.Array); ok && a.IsRuntime() {
			r.errorf(d.Span, "runtime-sized arrays are only allowed in the storage address space")
		}
	}
}

func (r *resolver) resolveFunc(d *wgsl.FuncDecl) {
	f := &Function{
		Name:          d.Name,
		Decl:          d,
		WorkgroupSize: [3]wgsl.ExprID{wgsl.NoExpr, wgsl.NoExpr, wgsl.NoExpr},
		uses:          make(map[*Variable]bool),
		callees:       make(map[*Function]bool),
	}
	r.p.functions[d.Name] = f
	r.p.Functions = append(r.p.Functions, f)
	r.fn = f
	r.uses = f.uses
	r.scopes = []map[string]*Variable{{}}

	_, f.Compute = wgsl.FindAttr(d.Attrs, "compute")
	if ws, ok := wgsl.FindAttr(d.Attrs, "workgroup_size"); ok {
		r.workgroupSize(f, ws)
	} else if f.Compute {
		r.errorf(d.Span, "@compute entry point '%s' requires @workgroup_size", d.Name)
	}

	for _, param := range d.Params {
		t := r.resolveType(param.Type)
		v := &Variable{Name: param.Name, Kind: VarParam, Type: t, Span: param.Span, Init: wgsl.NoExpr}
		if a, ok := wgsl.FindAttr(param.Attrs, "builtin"); ok {
			v.Builtin = r.attrName(a)
			if f.Compute && !isComputeBuiltin(v.Builtin) {
				r.errorf(a.Span, "builtin '%s' is not available in compute shaders", v.Builtin)
			}
		}
		r.declare(v)
		f.Params = append(f.Params, v)
	}
	if d.Result != wgsl.NoExpr {
		f.Result = r.resolveType(d.Result)
		if f.Compute {
			r.errorf(d.Span, "compute entry point '%s' cannot return a value", d.Name)
		}
	}

	if d.Body != wgsl.NoStmt {
		r.blockStmts(d.Body)
	}
}

func (r *resolver) workgroupSize(f *Function, a wgsl.Attribute) {
	if len(a.Args) == 0 || len(a.Args) > 3 {
		r.errorf(a.Span, "@workgroup_size expects one to three arguments")
		return
	}
	var scalar *types.Scalar
	for i, arg := range a.Args {
		t := r.value(arg)
		if t == nil {
			continue
		}
		s, ok := t.(*types.Scalar)
		if !ok || !s.IsInteger() {
			r.errorf(r.m.ExprSpan(arg), "workgroup size must be an integer, not '%s'", t)
			continue
		}
		if r.p.Exprs[arg].Stage == StageRuntime {
			r.errorf(r.m.ExprSpan(arg), "workgroup size must be a const or override expression")
			continue
		}
		if !s.IsAbstract() {
			if scalar != nil && scalar != s {
				r.errorf(r.m.ExprSpan(arg), "workgroup size arguments must have the same type")
			}
			scalar = s
		}
		if v, ok := r.p.ConstValue(arg); ok {
			if n, _ := eval.AsInt64(v); n < 1 {
				r.errorf(r.m.ExprSpan(arg), "workgroup size must be at least 1")
			}
		}
		f.WorkgroupSize[i] = arg
	}
	if scalar == nil {
		scalar = types.I32
	}
	for _, arg := range a.Args {
		if t := r.p.Exprs[arg].ValueType(); t != nil && types.IsAbstract(t) {
			r.convertTo(arg, scalar)
		}
	}
}

func isComputeBuiltin(name string) bool {
	switch name {
	case "local_invocation_id", "local_invocation_index", "global_invocation_id",
		"workgroup_id", "num_workgroups":
		return true
	}
	return false
}

// Scopes.

func (r *resolver) pushScope() { r.scopes = append(r.scopes, map[string]*Variable{}) }
func (r *resolver) popScope()  { r.scopes = r.scopes[:len(r.scopes)-1] }

func (r *resolver) declare(v *Variable) {
	scope := r.scopes[len(r.scopes)-1]
	if _, dup := scope[v.Name]; dup {
		r.errorf(v.Span, "redeclaration of '%s'", v.Name)
		return
	}
	scope[v.Name] = v
}

// lookup finds a variable by name, innermost scope first, then at module
// scope.
func (r *resolver) lookup(name string) *Variable {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if v, ok := r.scopes[i][name]; ok {
			return v
		}
	}
	d, ok := r.decls[name].(*wgsl.Variable)
	if !ok {
		return nil
	}
	r.resolveDecl(d)
	v := r.p.globals[name]
	if v != nil && r.uses != nil {
		r.uses[v] = true
	}
	return v
}

// Types.

var scalarTypes = map[string]*types.Scalar{
	"bool": types.Bool,
	"i32":  types.I32,
	"u32":  types.U32,
	"f32":  types.F32,
	"f16":  types.F16,
}

var aliasSuffix = map[byte]*types.Scalar{
	'i': types.I32,
	'u': types.U32,
	'f': types.F32,
	'h': types.F16,
}

// predeclaredAlias resolves vec3f, mat4x4h and friends.
func predeclaredAlias(name string) types.Type {
	if len(name) == 5 && strings.HasPrefix(name, "vec") {
		n := int(name[3] - '0')
		s := aliasSuffix[name[4]]
		if n >= 2 && n <= 4 && s != nil {
			return &types.Vector{N: n, Elem: s}
		}
	}
	if len(name) == 7 && strings.HasPrefix(name, "mat") && name[4] == 'x' {
		c, rows := int(name[3]-'0'), int(name[5]-'0')
		s := aliasSuffix[name[6]]
		if c >= 2 && c <= 4 && rows >= 2 && rows <= 4 && (s == types.F32 || s == types.F16) {
			return &types.Matrix{Cols: c, Rows: rows, Elem: s}
		}
	}
	return nil
}

// genericType reports the dimensions of a templated type name without its
// element type: vecN, matCxR or array.
func genericType(name string) (cols, rows int, ok bool) {
	if len(name) == 4 && strings.HasPrefix(name, "vec") {
		n := int(name[3] - '0')
		return n, 0, n >= 2 && n <= 4
	}
	if len(name) == 6 && strings.HasPrefix(name, "mat") && name[4] == 'x' {
		c, r := int(name[3]-'0'), int(name[5]-'0')
		return c, r, c >= 2 && c <= 4 && r >= 2 && r <= 4
	}
	return 0, 0, name == "array"
}

func isBuiltinTypeName(name string) bool {
	if _, ok := scalarTypes[name]; ok {
		return true
	}
	if _, _, ok := genericType(name); ok {
		return true
	}
	switch name {
	case "atomic", "ptr", "sampler", "sampler_comparison":
		return true
	}
	return predeclaredAlias(name) != nil || strings.HasPrefix(name, "texture_")
}

// isTypeName reports whether name denotes a type at module scope.
func (r *resolver) isTypeName(name string) bool {
	if isBuiltinTypeName(name) {
		return true
	}
	switch r.decls[name].(type) {
	case *wgsl.StructDecl, *wgsl.AliasDecl:
		return true
	}
	return false
}

// resolveType resolves a type expression. It reports an error and returns
// nil when id does not name a type.
func (r *resolver) resolveType(id wgsl.ExprID) types.Type {
	e, ok := r.m.Expr(id).(*wgsl.Ident)
	if !ok {
		r.errorf(r.m.ExprSpan(id), "expected a type")
		return nil
	}
	t := r.typeIdent(e, false)
	if t != nil {
		r.p.Exprs[id].Type = t
	}
	return t
}

// typeIdent resolves a type name with its template arguments. When infer is
// set, a generic vector, matrix or array name without arguments returns nil
// without reporting an error.
func (r *resolver) typeIdent(e *wgsl.Ident, infer bool) types.Type {
	name, args := e.Name, e.Args
	if s, ok := scalarTypes[name]; ok {
		if len(args) != 0 {
			r.errorf(e.Span, "type '%s' does not take template arguments", name)
			return nil
		}
		return s
	}
	if t := predeclaredAlias(name); t != nil {
		return t
	}
	if cols, rows, ok := genericType(name); ok {
		if len(args) == 0 {
			if !infer {
				r.errorf(e.Span, "missing template arguments for '%s'", name)
			}
			return nil
		}
		if name == "array" {
			return r.arrayType(e)
		}
		elem, ok := r.resolveType(args[0]).(*types.Scalar)
		if !ok || len(args) != 1 {
			r.errorf(e.Span, "'%s' expects a single scalar template argument", name)
			return nil
		}
		if rows == 0 {
			return &types.Vector{N: cols, Elem: elem}
		}
		if !elem.IsFloat() {
			r.errorf(e.Span, "matrix element type must be f32 or f16, not '%s'", elem)
			return nil
		}
		return &types.Matrix{Cols: cols, Rows: rows, Elem: elem}
	}

	switch name {
	case "atomic":
		if len(args) != 1 {
			r.errorf(e.Span, "atomic expects one template argument")
			return nil
		}
		s, ok := r.resolveType(args[0]).(*types.Scalar)
		if !ok || (s != types.I32 && s != types.U32) {
			r.errorf(e.Span, "atomic element type must be i32 or u32")
			return nil
		}
		return &types.Atomic{Elem: s}
	case "ptr":
		return r.pointerType(e)
	case "sampler":
		return &types.Sampler{}
	case "sampler_comparison":
		return &types.Sampler{Comparison: true}
	}
	if strings.HasPrefix(name, "texture_") {
		return &types.Texture{Name: name}
	}

	switch d := r.decls[name].(type) {
	case *wgsl.StructDecl, *wgsl.AliasDecl:
		r.resolveDecl(d)
		if t := r.named[name]; t != nil {
			return t
		}
		return nil
	}
	r.errorf(e.Span, "unknown type '%s'", name)
	return nil
}

func (r *resolver) arrayType(e *wgsl.Ident) types.Type {
	if len(e.Args) > 2 {
		r.errorf(e.Span, "array expects one or two template arguments")
		return nil
	}
	elem := r.resolveType(e.Args[0])
	if elem == nil {
		return nil
	}
	if a, ok := elem.(*types.Array); ok && a.IsRuntime() {
		r.errorf(e.Span, "array element type cannot be a runtime-sized array")
		return nil
	}
	if len(e.Args) == 1 {
		return &types.Array{Elem: elem, Size: types.ArrayRuntime}
	}
	count := e.Args[1]
	t := r.value(count)
	if t == nil {
		return nil
	}
	if s, ok := t.(*types.Scalar); !ok || !s.IsInteger() {
		r.errorf(r.m.ExprSpan(count), "array count must be an integer, not '%s'", t)
		return nil
	}
	switch r.p.Exprs[count].Stage {
	case StageConst:
		n, _ := eval.AsInt64(r.p.Exprs[count].Value)
		if n < 1 || n > 1<<32-1 {
			r.errorf(r.m.ExprSpan(count), "array count (%d) must be greater than 0", n)
			return nil
		}
		return &types.Array{Elem: elem, Count: uint32(n)}
	case StageOverride:
		r.concretize(count)
		return &types.Array{Elem: elem, Size: types.ArrayOverride, CountExpr: count}
	}
	r.errorf(r.m.ExprSpan(count), "array count must be a const or override expression")
	return nil
}

func (r *resolver) pointerType(e *wgsl.Ident) types.Type {
	if len(e.Args) < 2 || len(e.Args) > 3 {
		r.errorf(e.Span, "ptr expects two or three template arguments")
		return nil
	}
	spaceName := r.identName(e.Args[0])
	space, ok := types.ParseAddressSpace(spaceName)
	if !ok {
		r.errorf(r.m.ExprSpan(e.Args[0]), "invalid address space '%s'", spaceName)
		return nil
	}
	elem := r.resolveType(e.Args[1])
	if elem == nil {
		return nil
	}
	access := types.AccessReadWrite
	switch space {
	case types.SpaceUniform:
		access = types.AccessRead
	case types.SpaceStorage:
		access = types.AccessRead
	}
	if len(e.Args) == 3 {
		name := r.identName(e.Args[2])
		if access, ok = types.ParseAccess(name); !ok {
			r.errorf(r.m.ExprSpan(e.Args[2]), "invalid access mode '%s'", name)
			return nil
		}
	}
	return &types.Pointer{Space: space, Elem: elem, Access: access}
}

func (r *resolver) identName(id wgsl.ExprID) string {
	if e, ok := r.m.Expr(id).(*wgsl.Ident); ok && len(e.Args) == 0 {
		return e.Name
	}
	return ""
}

// Conversions of abstract constants.

// convertTo makes expression id have value type want. Abstract constants are
// converted in place; any other mismatch is an error.
func (r *resolver) convertTo(id wgsl.ExprID, want types.Type) bool {
	info := &r.p.Exprs[id]
	have := info.ValueType()
	if have == nil || want == nil {
		return false
	}
	if types.Equal(have, want) {
		return true
	}
	if info.Stage == StageConst && types.IsAbstract(have) && abstractConvertible(have, want) {
		info.Value = eval.Convert(info.Value, want, r.warner(id))
		info.Type = want
		info.Load = false
		return true
	}
	r.errorf(r.m.ExprSpan(id), "cannot use value of type '%s' as '%s'", have, want)
	return false
}

// concretize converts an abstract constant to its default concrete type.
func (r *resolver) concretize(id wgsl.ExprID) {
	info := &r.p.Exprs[id]
	t := info.ValueType()
	if t == nil || !types.IsAbstract(t) {
		return
	}
	r.convertTo(id, eval.ConcreteType(t))
}

// abstractConvertible reports whether an abstract type converts to want
// automatically: same shape, and abstract-int to any numeric scalar or
// abstract-float to a float scalar.
func abstractConvertible(have, want types.Type) bool {
	switch h := have.(type) {
	case *types.Scalar:
		w, ok := want.(*types.Scalar)
		if !ok || !w.IsNumeric() {
			return false
		}
		if h.Kind == types.KindAbstractFloat {
			return w.IsFloat()
		}
		return true
	case *types.Vector:
		w, ok := want.(*types.Vector)
		return ok && w.N == h.N && abstractConvertible(h.Elem, w.Elem)
	case *types.Matrix:
		w, ok := want.(*types.Matrix)
		return ok && w.Cols == h.Cols && w.Rows == h.Rows && abstractConvertible(h.Elem, w.Elem)
	case *types.Array:
		w, ok := want.(*types.Array)
		return ok && w.Size == types.ArrayFixed && w.Count == h.Count && abstractConvertible(h.Elem, w.Elem)
	}
	return false
}

func (r *resolver) constAssert(cond wgsl.ExprID, span wgsl.Span) {
	t := r.value(cond)
	if t == nil {
		return
	}
	v, ok := r.p.ConstValue(cond)
	if !ok || t != types.Type(types.Bool) {
		r.errorf(span, "const_assert condition must be a const bool expression")
		return
	}
	if !eval.AsBool(v) {
		r.errorf(span, "const assertion failed")
	}
}

// parseIntLiteral parses an integer literal lexeme with an optional i or u
// suffix.
func parseIntLiteral(text string) (int64, byte, error) {
	var suffix byte
	if n := len(text); n > 0 && (text[n-1] == 'i' || text[n-1] == 'u') {
		suffix = text[n-1]
		text = text[:n-1]
	}
	v, err := strconv.ParseInt(text, 0, 64)
	return v, suffix, err
}
