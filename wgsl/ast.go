package wgsl

// Span is a source range.
type Span struct {
	Start  Position
	End    Position
	Source string // source file name
}

// Position is a position in source code. Line and Column are 1-based and
// Column counts runes; Offset is in bytes.
type Position struct {
	Line   int
	Column int
	Offset int
}

// ExprID indexes Module.Exprs.
type ExprID int32

// StmtID indexes Module.Stmts.
type StmtID int32

const (
	// NoExpr marks an absent expression (no initializer, no type, ...).
	NoExpr ExprID = -1
	// NoStmt marks an absent statement (no else branch, no continuing, ...).
	NoStmt StmtID = -1
)

// Module is a parsed WGSL translation unit.
//
// Expressions and statements live in flat arenas and refer to each other by
// index. Declarations are kept in source order.
type Module struct {
	File    string
	Source  string
	Enables []string
	Decls   []Decl
	Exprs   []Expr
	Stmts   []Stmt
}

// Expr returns the expression with the given id.
func (m *Module) Expr(id ExprID) Expr { return m.Exprs[id] }

// Stmt returns the statement with the given id.
func (m *Module) Stmt(id StmtID) Stmt { return m.Stmts[id] }

// ExprSpan returns the span of an expression, or the zero span for NoExpr.
func (m *Module) ExprSpan(id ExprID) Span {
	if id == NoExpr {
		return Span{}
	}
	return m.Exprs[id].Pos()
}

// StmtSpan returns the span of a statement, or the zero span for NoStmt.
func (m *Module) StmtSpan(id StmtID) Span {
	if id == NoStmt {
		return Span{}
	}
	return m.Stmts[id].Pos()
}

func (m *Module) addExpr(e Expr) ExprID {
	m.Exprs = append(m.Exprs, e)
	return ExprID(len(m.Exprs) - 1)
}

func (m *Module) addStmt(s Stmt) StmtID {
	m.Stmts = append(m.Stmts, s)
	return StmtID(len(m.Stmts) - 1)
}

// Node is implemented by every AST node.
type Node interface {
	Pos() Span
}

// Decl is a module-scope declaration.
type Decl interface {
	Node
	declNode()
}

// Stmt is a statement.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression. Type references are expressions too: `array<u32, 4>`
// parses as a templated Ident.
type Expr interface {
	Node
	exprNode()
}

// Attribute is an @name(args...) annotation.
type Attribute struct {
	Name string
	Args []ExprID
	Span Span
}

// FindAttr returns the first attribute with the given name.
func FindAttr(attrs []Attribute, name string) (Attribute, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// VarKind distinguishes the four value-declaration keywords.
type VarKind uint8

const (
	VarVar VarKind = iota
	VarLet
	VarConst
	VarOverride
)

func (k VarKind) String() string {
	switch k {
	case VarVar:
		return "var"
	case VarLet:
		return "let"
	case VarConst:
		return "const"
	case VarOverride:
		return "override"
	default:
		return "unknown"
	}
}

// Variable is a var/let/const/override declaration at module or function
// scope. Span covers the declared name.
type Variable struct {
	Kind   VarKind
	Name   string
	Type   ExprID
	Init   ExprID
	Space  string // var only: "private", "workgroup", "storage", "uniform", "function" or ""
	Access string // var only: "read", "write", "read_write" or ""
	Attrs  []Attribute
	Span   Span
}

func (v *Variable) Pos() Span { return v.Span }
func (v *Variable) declNode()  {}

// StructDecl declares a structure type.
type StructDecl struct {
	Name    string
	Members []*StructMember
	Span    Span
}

func (s *StructDecl) Pos() Span { return s.Span }
func (s *StructDecl) declNode()  {}

// StructMember is one member of a structure.
type StructMember struct {
	Name  string
	Type  ExprID
	Attrs []Attribute
	Span  Span
}

// AliasDecl declares a type alias.
type AliasDecl struct {
	Name string
	Type ExprID
	Span Span
}

func (a *AliasDecl) Pos() Span { return a.Span }
func (a *AliasDecl) declNode()  {}

// FuncDecl declares a function.
type FuncDecl struct {
	Name        string
	Params      []*Param
	Result      ExprID
	ResultAttrs []Attribute
	Attrs       []Attribute
	Body        StmtID
	Span        Span
}

func (f *FuncDecl) Pos() Span { return f.Span }
func (f *FuncDecl) declNode()  {}

// Param is a formal function parameter.
type Param struct {
	Name  string
	Type  ExprID
	Attrs []Attribute
	Span  Span
}

// ConstAssertDecl is a module-scope const_assert.
type ConstAssertDecl struct {
	Cond ExprID
	Span Span
}

func (c *ConstAssertDecl) Pos() Span { return c.Span }
func (c *ConstAssertDecl) declNode()  {}

// Expressions.

// LiteralKind classifies literal tokens.
type LiteralKind uint8

const (
	LitBool LiteralKind = iota
	LitInt
	LitFloat
)

// Literal is a bool, integer or float literal. Text keeps the lexeme,
// including any suffix, so the resolver can type it.
type Literal struct {
	Kind LiteralKind
	Text string
	Span Span
}

// Ident names a value or a type. Args holds template arguments:
// `vec3<f32>` is Ident{Name: "vec3", Args: [f32]}.
type Ident struct {
	Name string
	Args []ExprID
	Span Span
}

// UnaryOp is a prefix operator.
type UnaryOp uint8

const (
	OpNeg UnaryOp = iota
	OpNot
	OpCompl
	OpAddrOf
	OpDeref
)

func (op UnaryOp) String() string {
	switch op {
	case OpNeg:
		return "-"
	case OpNot:
		return "!"
	case OpCompl:
		return "~"
	case OpAddrOf:
		return "&"
	case OpDeref:
		return "*"
	default:
		return "?"
	}
}

// Unary is a prefix operation.
type Unary struct {
	Op   UnaryOp
	X    ExprID
	Span Span
}

// BinaryOp is an infix operator.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpLogicalAnd
	OpLogicalOr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var binaryOpNames = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpAnd: "&", OpOr: "|", OpXor: "^", OpShl: "<<", OpShr: ">>",
	OpLogicalAnd: "&&", OpLogicalOr: "||",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return "?"
}

// IsLogical reports whether op short-circuits.
func (op BinaryOp) IsLogical() bool { return op == OpLogicalAnd || op == OpLogicalOr }

// IsComparison reports whether op yields bool from two comparable operands.
func (op BinaryOp) IsComparison() bool { return op >= OpEq }

// Binary is an infix operation.
type Binary struct {
	Op   BinaryOp
	X, Y ExprID
	Span Span
}

// Index is `X[Index]`.
type Index struct {
	X     ExprID
	Index ExprID
	Span  Span
}

// Member is `X.Name`: a structure member or a swizzle.
type Member struct {
	X    ExprID
	Name string
	Span Span
}

// Call is a function call, type constructor, conversion or builtin call.
// Callee is always an *Ident. Span covers the whole call, or only the callee
// name when the call is a statement.
type Call struct {
	Callee ExprID
	Args   []ExprID
	Span   Span
}

// Paren is a parenthesized expression. It is kept so spans match the source.
type Paren struct {
	X    ExprID
	Span Span
}

// Phony is the `_` on the left of a phony assignment.
type Phony struct {
	Span Span
}

func (e *Literal) Pos() Span { return e.Span }
func (e *Ident) Pos() Span   { return e.Span }
func (e *Unary) Pos() Span   { return e.Span }
func (e *Binary) Pos() Span  { return e.Span }
func (e *Index) Pos() Span   { return e.Span }
func (e *Member) Pos() Span  { return e.Span }
func (e *Call) Pos() Span    { return e.Span }
func (e *Paren) Pos() Span   { return e.Span }
func (e *Phony) Pos() Span   { return e.Span }

func (*Literal) exprNode() {}
func (*Ident) exprNode()   {}
func (*Unary) exprNode()   {}
func (*Binary) exprNode()  {}
func (*Index) exprNode()   {}
func (*Member) exprNode()  {}
func (*Call) exprNode()    {}
func (*Paren) exprNode()   {}
func (*Phony) exprNode()   {}

// Statements.

// BlockStmt is a brace-delimited statement list.
type BlockStmt struct {
	Stmts []StmtID
	Span  Span
}

// DeclStmt declares a function-scope var, let or const.
type DeclStmt struct {
	Var  *Variable
	Span Span
}

// AssignStmt is `LHS = RHS` or a compound assignment when Compound is set.
// Span covers the operator token.
type AssignStmt struct {
	LHS      ExprID
	RHS      ExprID
	Compound bool
	Op       BinaryOp
	Span     Span
}

// IncDecStmt is `LHS++` or `LHS--`. Span covers the operator token.
type IncDecStmt struct {
	LHS       ExprID
	Increment bool
	Span      Span
}

// CallStmt evaluates a call for its side effects.
type CallStmt struct {
	Call ExprID
	Span Span
}

// IfStmt is an if with an optional else (a block or another if).
type IfStmt struct {
	Cond ExprID
	Body StmtID
	Else StmtID
	Span Span
}

// ForStmt is a C-style for loop. Init, Cond and Update are optional.
type ForStmt struct {
	Init   StmtID
	Cond   ExprID
	Update StmtID
	Body   StmtID
	Span   Span
}

// WhileStmt is a while loop.
type WhileStmt struct {
	Cond ExprID
	Body StmtID
	Span Span
}

// LoopStmt is `loop { ... continuing { ... } }`.
type LoopStmt struct {
	Body       StmtID
	Continuing StmtID
	Span       Span
}

// BreakIfStmt is the `break if` at the end of a continuing block.
type BreakIfStmt struct {
	Cond ExprID
	Span Span
}

// SwitchStmt is a switch statement.
type SwitchStmt struct {
	Selector ExprID
	Cases    []*CaseClause
	Span     Span
}

// CaseClause is one clause of a switch. A NoExpr selector is `default`.
type CaseClause struct {
	Selectors []ExprID
	Body      StmtID
	Span      Span
}

// IsDefault reports whether the clause contains the default selector.
func (c *CaseClause) IsDefault() bool {
	for _, s := range c.Selectors {
		if s == NoExpr {
			return true
		}
	}
	return false
}

// BreakStmt is `break`.
type BreakStmt struct{ Span Span }

// ContinueStmt is `continue`.
type ContinueStmt struct{ Span Span }

// ReturnStmt is `return` with an optional value.
type ReturnStmt struct {
	Value ExprID
	Span  Span
}

// DiscardStmt is `discard`. It is only valid in fragment shaders.
type DiscardStmt struct{ Span Span }

// ConstAssertStmt is a function-scope const_assert.
type ConstAssertStmt struct {
	Cond ExprID
	Span Span
}

func (s *BlockStmt) Pos() Span       { return s.Span }
func (s *DeclStmt) Pos() Span        { return s.Span }
func (s *AssignStmt) Pos() Span      { return s.Span }
func (s *IncDecStmt) Pos() Span      { return s.Span }
func (s *CallStmt) Pos() Span        { return s.Span }
func (s *IfStmt) Pos() Span          { return s.Span }
func (s *ForStmt) Pos() Span         { return s.Span }
func (s *WhileStmt) Pos() Span       { return s.Span }
func (s *LoopStmt) Pos() Span        { return s.Span }
func (s *BreakIfStmt) Pos() Span     { return s.Span }
func (s *SwitchStmt) Pos() Span      { return s.Span }
func (s *BreakStmt) Pos() Span       { return s.Span }
func (s *ContinueStmt) Pos() Span    { return s.Span }
func (s *ReturnStmt) Pos() Span      { return s.Span }
func (s *DiscardStmt) Pos() Span     { return s.Span }
func (s *ConstAssertStmt) Pos() Span { return s.Span }

func (*BlockStmt) stmtNode()       {}
func (*DeclStmt) stmtNode()        {}
func (*AssignStmt) stmtNode()      {}
func (*IncDecStmt) stmtNode()      {}
func (*CallStmt) stmtNode()        {}
func (*IfStmt) stmtNode()          {}
func (*ForStmt) stmtNode()         {}
func (*WhileStmt) stmtNode()       {}
func (*LoopStmt) stmtNode()        {}
func (*BreakIfStmt) stmtNode()     {}
func (*SwitchStmt) stmtNode()      {}
func (*BreakStmt) stmtNode()       {}
func (*ContinueStmt) stmtNode()    {}
func (*ReturnStmt) stmtNode()      {}
func (*DiscardStmt) stmtNode()     {}
func (*ConstAssertStmt) stmtNode() {}
