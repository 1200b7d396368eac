package sem

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/wgslinterp/eval"
	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

func resolveSource(t *testing.T, source string) *Program {
	t.Helper()
	m, err := wgsl.Parse("test.wgsl", source)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	p, err := Resolve(m)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	return p
}

func resolveError(t *testing.T, source string) string {
	t.Helper()
	m, err := wgsl.Parse("test.wgsl", source)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	_, err = Resolve(m)
	if err == nil {
		t.Fatalf("Resolve succeeded, want error")
	}
	var errs wgsl.SourceErrors
	if !errors.As(err, &errs) {
		t.Fatalf("Resolve error type = %T, want wgsl.SourceErrors", err)
	}
	return err.Error()
}

// declStmts returns the statements of a function body.
func declStmts(p *Program, name string) []wgsl.StmtID {
	fn := p.Function(name)
	return p.Module.Stmt(fn.Decl.Body).(*wgsl.BlockStmt).Stmts
}

func localInit(p *Program, s wgsl.StmtID) *ExprInfo {
	d := p.Module.Stmt(s).(*wgsl.DeclStmt)
	return p.Expr(d.Var.Init)
}

func TestResolveEntryPoint(t *testing.T) {
	p := resolveSource(t, `
override count : u32 = 4u;
@group(0) @binding(0) var<storage, read_write> data : array<u32>;
@group(0) @binding(1) var<uniform> params : vec4<f32>;
var<workgroup> scratch : array<u32, count>;
var<private> unused : i32;
const scale = 2;

fn store(i : u32) {
  data[i] = scratch[i] * scale;
}

@compute @workgroup_size(8, 2)
fn main(@builtin(local_invocation_index) idx : u32) {
  store(idx);
}
`)
	main := p.Function("main")
	if main == nil || !main.Compute {
		t.Fatalf("main is not a compute entry point")
	}
	if len(main.Params) != 1 || main.Params[0].Builtin != "local_invocation_index" {
		t.Errorf("main params = %v, want one local_invocation_index builtin", main.Params)
	}
	x, _ := p.ConstValue(main.WorkgroupSize[0])
	y, _ := p.ConstValue(main.WorkgroupSize[1])
	if !eval.Equal(x, eval.I32(8)) || !eval.Equal(y, eval.I32(2)) {
		t.Errorf("workgroup size = (%v, %v), want (8, 2)", x, y)
	}
	if main.WorkgroupSize[2] != wgsl.NoExpr {
		t.Errorf("workgroup size z = %d, want NoExpr", main.WorkgroupSize[2])
	}

	var names []string
	for _, v := range main.Globals {
		names = append(names, v.Name)
	}
	if got, want := strings.Join(names, ","), "count,data,scratch,scale"; got != want {
		t.Errorf("main globals = %s, want %s", got, want)
	}
	if got := main.Overrides(); len(got) != 1 || got[0].Name != "count" {
		t.Errorf("main overrides = %v, want [count]", got)
	}

	data := p.Global("data")
	if !data.HasBinding || data.Group != 0 || data.Binding != 0 {
		t.Errorf("data binding = %v %d/%d, want 0/0", data.HasBinding, data.Group, data.Binding)
	}
	if data.Space != types.SpaceStorage || data.Access != types.AccessReadWrite {
		t.Errorf("data space/access = %s/%s, want storage/read_write", data.Space, data.Access)
	}
	if params := p.Global("params"); params.Access != types.AccessRead {
		t.Errorf("params access = %s, want read", params.Access)
	}
	arr, ok := p.Global("scratch").Type.(*types.Array)
	if !ok || arr.Size != types.ArrayOverride {
		t.Errorf("scratch type = %v, want override-sized array", p.Global("scratch").Type)
	}
}

func TestResolveConstFolding(t *testing.T) {
	p := resolveSource(t, `
const a = 1 + 2;
const b : f32 = 1;
const c = vec3(1, 2, 3).y;
const d = array(1.5, 2, 3)[1];
const e = -0x10;
const f = 1u << 3;
const g = max(2, 7.5);
const h = bitcast<u32>(1.0f);
const i = 5i % 3i;
const j = mat2x2(1.0, 2.0, 3.0, 4.0) * vec2(1.0, 1.0);
`)
	tests := []struct {
		name string
		want eval.Value
	}{
		{"a", eval.AbstractInt(3)},
		{"b", eval.F32(1)},
		{"c", eval.AbstractInt(2)},
		{"d", eval.AbstractFloat(2)},
		{"e", eval.AbstractInt(-16)},
		{"f", eval.U32(8)},
		{"g", eval.AbstractFloat(7.5)},
		{"h", eval.U32(0x3f800000)},
		{"i", eval.I32(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Global(tt.name).Value
			if !eval.Equal(got, tt.want) {
				t.Errorf("%s = %v (%s), want %v (%s)", tt.name, got, got.Type(), tt.want, tt.want.Type())
			}
		})
	}

	j := p.Global("j").Value
	if got := eval.String(j); got != "vec2<abstract-float>{4.000000, 6.000000}" {
		t.Errorf("j = %s, want vec2<abstract-float>{4.000000, 6.000000}", got)
	}
}

func TestResolveMaterialization(t *testing.T) {
	p := resolveSource(t, `
var<private> v : vec3<f32>;
fn f() {
  let a = 1;
  let b = 1.5;
  var c = vec2(1, 2);
  let d = v.x + 1;
  let e = v.zy;
  let x = v;
}
`)
	stmts := declStmts(p, "f")
	tests := []struct {
		stmt int
		want string
	}{
		{0, "i32"},
		{1, "f32"},
		{2, "vec2<i32>"},
		{3, "f32"},
		{4, "vec2<f32>"},
		{5, "vec3<f32>"},
	}
	for _, tt := range tests {
		info := localInit(p, stmts[tt.stmt])
		if got := info.ValueType().String(); got != tt.want {
			t.Errorf("stmt %d type = %s, want %s", tt.stmt, got, tt.want)
		}
	}

	x := localInit(p, stmts[5])
	if !x.Load {
		t.Error("identifier of a var used as a value is not marked Load")
	}
	if _, ok := x.Type.(*types.Reference); !ok {
		t.Errorf("var identifier type = %s, want a reference", x.Type)
	}
	d := p.Module.Stmt(stmts[3]).(*wgsl.DeclStmt)
	if local := p.Local(d.Var); local == nil || local.Kind != VarLet {
		t.Errorf("Local(d) = %v, want a let", local)
	}
}

func TestResolveBuiltinStructs(t *testing.T) {
	p := resolveSource(t, `
@group(0) @binding(0) var<storage, read_write> counter : atomic<u32>;
fn f() {
  let m = modf(1.5f);
  let r = atomicCompareExchangeWeak(&counter, 0u, 1u);
  let n = arrayLength(&data);
}
@group(0) @binding(1) var<storage> data : array<f32>;
`)
	stmts := declStmts(p, "f")
	m := localInit(p, stmts[0]).ValueType().(*types.Struct)
	if m.Member("fract") == nil || m.Member("whole") == nil {
		t.Errorf("modf result members = %v, want fract and whole", m.Members)
	}
	r := localInit(p, stmts[1]).ValueType().(*types.Struct)
	if r.Member("old_value") == nil || r.Member("exchanged").Type != types.Type(types.Bool) {
		t.Errorf("compare exchange result = %v, want old_value and exchanged", r.Members)
	}
	n := localInit(p, stmts[2])
	if n.Call != CallBuiltin || n.Builtin != "arrayLength" || n.Stage != StageRuntime {
		t.Errorf("arrayLength call = %+v, want a runtime builtin call", n)
	}
}

func TestResolveOverrideKeys(t *testing.T) {
	p := resolveSource(t, `
@id(7) override scale : f32 = 2.0;
override n = 4u;
override w : i32;
`)
	tests := []struct {
		name string
		key  string
		typ  string
	}{
		{"scale", "7", "f32"},
		{"n", "n", "u32"},
		{"w", "w", "i32"},
	}
	for _, tt := range tests {
		v := p.Global(tt.name)
		if v.OverrideKey() != tt.key || v.Type.String() != tt.typ {
			t.Errorf("%s key/type = %s/%s, want %s/%s", tt.name, v.OverrideKey(), v.Type, tt.key, tt.typ)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			"unresolved",
			"fn f() { let x = y; }",
			"unresolved identifier 'y'",
		},
		{
			"redeclaration",
			"const a = 1;\nconst a = 2;",
			"redeclaration of 'a'",
		},
		{
			"const overflow",
			"const x = 2147483647i + 1i;",
			"cannot be represented as 'i32'",
		},
		{
			"const u32 overflow",
			"const y = 4294967295u * 2u;",
			"cannot be represented as 'u32'",
		},
		{
			"const assert",
			"const_assert 1 > 2;",
			"const assertion failed",
		},
		{
			"recursion",
			"fn f() { f(); }",
			"recursive call to 'f'",
		},
		{
			"missing binding",
			"var<storage> d : u32;",
			"requires @group and @binding",
		},
		{
			"index out of bounds",
			"var<private> a : array<i32, 4>;\nfn f() { let x = a[4]; }",
			"index 4 is out of bounds",
		},
		{
			"abstract float to int",
			"fn f() { let x : i32 = 1.5; }",
			"cannot use value of type 'abstract-float' as 'i32'",
		},
		{
			"missing default",
			"fn f() { switch 1 { case 1: {} } }",
			"exactly one default",
		},
		{
			"store to read-only",
			"@group(0) @binding(0) var<storage> d : u32;\nfn f() { d = 1u; }",
			"read-only",
		},
		{
			"mismatched operands",
			"fn f() { let a = 1i + 1u; }",
			"no matching overload for operator +",
		},
		{
			"bad condition",
			"fn f() { if 1 { } }",
			"if condition must be bool",
		},
		{
			"builtin overload",
			"fn f() { let a = sqrt(true); }",
			"no matching overload for sqrt(bool)",
		},
		{
			"cycle",
			"const a = b;\nconst b = a;",
			"cyclic dependency",
		},
		{
			"void value",
			"fn g() {}\nfn f() { let a = g(); }",
			"does not return a value",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveError(t, tt.source)
			if !strings.Contains(got, tt.want) {
				t.Errorf("error = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
