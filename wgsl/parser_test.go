package wgsl

import (
	"errors"
	"strings"
	"testing"
)

func parseSource(t *testing.T, source string) *Module {
	t.Helper()
	module, err := Parse("test.wgsl", source)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return module
}

func findFunc(t *testing.T, m *Module, name string) *FuncDecl {
	t.Helper()
	for _, d := range m.Decls {
		if fn, ok := d.(*FuncDecl); ok && fn.Name == name {
			return fn
		}
	}
	t.Fatalf("function %q not found", name)
	return nil
}

func bodyStmts(m *Module, fn *FuncDecl) []StmtID {
	return m.Stmt(fn.Body).(*BlockStmt).Stmts
}

func TestParseComputeShader(t *testing.T) {
	source := `@group(0) @binding(1) var<storage, read_write> data : array<u32>;
var<workgroup> wgvar : i32;

@compute @workgroup_size(4)
fn main(@builtin(local_invocation_index) idx : u32) {
  let x = wgvar;
  if (idx == 0) {
    wgvar = 42;
  }
}
`
	m := parseSource(t, source)
	if len(m.Decls) != 3 {
		t.Fatalf("len(Decls) = %d, want 3", len(m.Decls))
	}

	data := m.Decls[0].(*Variable)
	if data.Space != "storage" || data.Access != "read_write" {
		t.Errorf("data space/access = %q/%q, want storage/read_write", data.Space, data.Access)
	}
	if _, ok := FindAttr(data.Attrs, "binding"); !ok {
		t.Error("data has no @binding attribute")
	}
	ty := m.Expr(data.Type).(*Ident)
	if ty.Name != "array" || len(ty.Args) != 1 {
		t.Errorf("data type = %s with %d args, want array with 1", ty.Name, len(ty.Args))
	}

	fn := findFunc(t, m, "main")
	if _, ok := FindAttr(fn.Attrs, "compute"); !ok {
		t.Error("main has no @compute attribute")
	}
	if len(fn.Params) != 1 || fn.Params[0].Name != "idx" {
		t.Fatalf("main params = %v, want [idx]", fn.Params)
	}
	stmts := bodyStmts(m, fn)
	if len(stmts) != 2 {
		t.Fatalf("len(body) = %d, want 2", len(stmts))
	}
	decl := m.Stmt(stmts[0]).(*DeclStmt)
	if decl.Var.Kind != VarLet || decl.Var.Name != "x" {
		t.Errorf("first stmt = %s %s, want let x", decl.Var.Kind, decl.Var.Name)
	}
	ifs := m.Stmt(stmts[1]).(*IfStmt)
	if ifs.Else != NoStmt {
		t.Error("if has unexpected else branch")
	}
	assign := m.Stmt(m.Stmt(ifs.Body).(*BlockStmt).Stmts[0]).(*AssignStmt)
	if got := assign.Span.Start; got.Line != 8 || got.Column != 11 {
		t.Errorf("assignment span start = %d:%d, want 8:11", got.Line, got.Column)
	}
}

func TestParseNestedTemplates(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"shift close", "var<private> a : array<vec4<f32>>;"},
		{"shift close sized", "var<private> a : array<vec4<f32>, 4>;"},
		{"ge close", "var<private> a : vec2<i32>= vec2<i32>(1, 2);"},
		{"pointer", "fn f(p : ptr<function, array<i32, 2>>) {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse("test.wgsl", tt.source); err != nil {
				t.Errorf("Parse(%q) error: %v", tt.source, err)
			}
		})
	}
}

func TestParsePrecedence(t *testing.T) {
	m := parseSource(t, "fn f() { let v = 1 + 2 * 3 < 4 && true; }")
	decl := m.Stmt(bodyStmts(m, findFunc(t, m, "f"))[0]).(*DeclStmt)

	and := m.Expr(decl.Var.Init).(*Binary)
	if and.Op != OpLogicalAnd {
		t.Fatalf("root op = %s, want &&", and.Op)
	}
	lt := m.Expr(and.X).(*Binary)
	if lt.Op != OpLt {
		t.Fatalf("lhs op = %s, want <", lt.Op)
	}
	add := m.Expr(lt.X).(*Binary)
	if add.Op != OpAdd {
		t.Fatalf("comparison lhs op = %s, want +", add.Op)
	}
	if mul := m.Expr(add.Y).(*Binary); mul.Op != OpMul {
		t.Errorf("addition rhs op = %s, want *", mul.Op)
	}
}

func TestParseExpressionTemplates(t *testing.T) {
	m := parseSource(t, "fn f(a : i32, b : i32) { let c = a < b; let d = a > (b); let e = bitcast<u32>(a); }")
	stmts := bodyStmts(m, findFunc(t, m, "f"))

	if cmp := m.Expr(m.Stmt(stmts[0]).(*DeclStmt).Var.Init).(*Binary); cmp.Op != OpLt {
		t.Errorf("a < b op = %s, want <", cmp.Op)
	}
	if cmp := m.Expr(m.Stmt(stmts[1]).(*DeclStmt).Var.Init).(*Binary); cmp.Op != OpGt {
		t.Errorf("a > (b) op = %s, want >", cmp.Op)
	}
	call := m.Expr(m.Stmt(stmts[2]).(*DeclStmt).Var.Init).(*Call)
	callee := m.Expr(call.Callee).(*Ident)
	if callee.Name != "bitcast" || len(callee.Args) != 1 {
		t.Errorf("callee = %s with %d args, want bitcast with 1", callee.Name, len(callee.Args))
	}
}

func TestParseStatements(t *testing.T) {
	source := `fn f() {
  var i = 0;
  loop {
    i++;
    if (i > 3) { break; }
    continuing {
      i += 1;
      break if i > 10;
    }
  }
  for (var j = 0u; j < 4u; j++) { continue; }
  while (i < 20) { i = i + 1; }
  switch (i) {
    case 1, 2: { i = 0; }
    default { }
  }
  _ = i;
}`
	m := parseSource(t, source)
	stmts := bodyStmts(m, findFunc(t, m, "f"))
	if len(stmts) != 6 {
		t.Fatalf("len(body) = %d, want 6", len(stmts))
	}

	loop := m.Stmt(stmts[1]).(*LoopStmt)
	if loop.Continuing == NoStmt {
		t.Fatal("loop has no continuing block")
	}
	cont := m.Stmt(loop.Continuing).(*BlockStmt)
	if len(cont.Stmts) != 2 {
		t.Fatalf("len(continuing) = %d, want 2", len(cont.Stmts))
	}
	if as := m.Stmt(cont.Stmts[0]).(*AssignStmt); !as.Compound || as.Op != OpAdd {
		t.Errorf("continuing[0] = compound %v op %s, want compound +", as.Compound, as.Op)
	}
	if _, ok := m.Stmt(cont.Stmts[1]).(*BreakIfStmt); !ok {
		t.Errorf("continuing[1] = %T, want *BreakIfStmt", m.Stmt(cont.Stmts[1]))
	}
	if body := m.Stmt(loop.Body).(*BlockStmt); len(body.Stmts) != 2 {
		t.Errorf("len(loop body) = %d, want 2", len(body.Stmts))
	}

	forStmt := m.Stmt(stmts[2]).(*ForStmt)
	if forStmt.Init == NoStmt || forStmt.Cond == NoExpr || forStmt.Update == NoStmt {
		t.Error("for header is missing a clause")
	}
	if _, ok := m.Stmt(forStmt.Update).(*IncDecStmt); !ok {
		t.Errorf("for update = %T, want *IncDecStmt", m.Stmt(forStmt.Update))
	}

	sw := m.Stmt(stmts[4]).(*SwitchStmt)
	if len(sw.Cases) != 2 {
		t.Fatalf("len(cases) = %d, want 2", len(sw.Cases))
	}
	if len(sw.Cases[0].Selectors) != 2 || sw.Cases[0].IsDefault() {
		t.Errorf("case 0 selectors = %d default=%v, want 2 non-default", len(sw.Cases[0].Selectors), sw.Cases[0].IsDefault())
	}
	if !sw.Cases[1].IsDefault() {
		t.Error("case 1 is not default")
	}

	phony := m.Stmt(stmts[5]).(*AssignStmt)
	if _, ok := m.Expr(phony.LHS).(*Phony); !ok {
		t.Errorf("phony lhs = %T, want *Phony", m.Expr(phony.LHS))
	}
}

func TestParseSpans(t *testing.T) {
	source := "fn f() {\n  workgroupBarrier();\n  let v = arr[2].x;\n}"
	m := parseSource(t, source)
	stmts := bodyStmts(m, findFunc(t, m, "f"))

	call := m.Stmt(stmts[0]).(*CallStmt)
	span := m.ExprSpan(call.Call)
	if span.Start.Line != 2 || span.Start.Column != 3 || span.End.Column != 19 {
		t.Errorf("call span = %d:%d-%d, want 2:3-19", span.Start.Line, span.Start.Column, span.End.Column)
	}
	if got, want := Snippet(source, span), "  workgroupBarrier();\n  ^^^^^^^^^^^^^^^^"; got != want {
		t.Errorf("Snippet =\n%s\nwant\n%s", got, want)
	}
	if span.Start.Offset != strings.Index(source, "workgroupBarrier") {
		t.Errorf("call offset = %d, want %d", span.Start.Offset, strings.Index(source, "workgroupBarrier"))
	}

	member := m.Expr(m.Stmt(stmts[1]).(*DeclStmt).Var.Init).(*Member)
	if member.Span.Start.Column != 11 || member.Span.End.Column != 19 {
		t.Errorf("member span = %d-%d, want 11-19", member.Span.Start.Column, member.Span.End.Column)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"missing semicolon", "fn f() {\n  let x = 1\n}", "test.wgsl:3:1: unexpected '}', expected ';'"},
		{"bad declaration", "let = 4;", "test.wgsl:1:5: unexpected '=', expected identifier"},
		{"unclosed template", "var<private> a : array<i32;", "test.wgsl:1:27: unexpected ';', expected '>'"},
		{"missing expression", "fn f() { let x = ; }", "test.wgsl:1:18: unexpected ';', expected an expression"},
		{"invalid character", "fn f() { let x = $; }", `test.wgsl:1:18: invalid character "$"`},
		{"unterminated comment", "fn f() {}\n/* open", "test.wgsl:2:1: unterminated block comment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test.wgsl", tt.source)
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			var errs SourceErrors
			if !errors.As(err, &errs) {
				t.Fatalf("error type = %T, want SourceErrors", err)
			}
			if got := errs[0].Error(); got != tt.want {
				t.Errorf("error = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRecoversAfterError(t *testing.T) {
	source := "fn a() { let = 1; }\nfn b() { let = 2; }\n"
	_, err := Parse("test.wgsl", source)
	var errs SourceErrors
	if !errors.As(err, &errs) {
		t.Fatalf("error type = %T, want SourceErrors", err)
	}
	if len(errs) != 2 {
		t.Errorf("len(errors) = %d, want 2", len(errs))
	}
}
