package wgsl

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gogpu/wgslinterp/wgsl/internal/lex"
)

// Parse tokenizes and parses source. file names the source in spans and
// diagnostics. The returned error, if any, is a SourceErrors.
func Parse(file, source string) (*Module, error) {
	tokens, err := lex.NewLexer(source).Tokenize()
	if err != nil {
		var lexErr *lex.Error
		if !errors.As(err, &lexErr) {
			return nil, fmt.Errorf("tokenize: %w", err)
		}
		pos := Position{Line: lexErr.Line, Column: lexErr.Column, Offset: lexErr.Offset}
		span := Span{Start: pos, End: pos, Source: file}
		return nil, SourceErrors{NewSourceErrorf(span, source, "%s", lexErr.Msg)}
	}
	return NewParser(file, source, tokens).Parse()
}

// Parser builds a Module from naga lexer tokens.
type Parser struct {
	file       string
	source     string
	tokens     []lex.Token
	current    int
	lineStarts []int
	module     *Module
	errors     SourceErrors
}

// NewParser creates a parser over tokens produced from source.
func NewParser(file, source string, tokens []lex.Token) *Parser {
	starts := []int{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Parser{
		file:       file,
		source:     source,
		tokens:     tokens,
		lineStarts: starts,
		module:     &Module{File: file, Source: source},
	}
}

// Parse parses every declaration in the token stream.
func (p *Parser) Parse() (*Module, error) {
	for !p.isAtEnd() {
		decl, err := p.declaration()
		if err != nil {
			p.errors.Add(err)
			p.synchronize()
			continue
		}
		if decl != nil {
			p.module.Decls = append(p.module.Decls, decl)
		}
	}
	if p.errors.HasErrors() {
		return p.module, p.errors
	}
	return p.module, nil
}

func (p *Parser) declaration() (Decl, *SourceError) {
	attrs, err := p.attributes()
	if err != nil {
		return nil, err
	}

	switch p.peek().Kind {
	case lex.TokenFn:
		return p.funcDecl(attrs)
	case lex.TokenStruct:
		return p.structDecl()
	case lex.TokenVar:
		return p.globalVariable(VarVar, attrs)
	case lex.TokenConst:
		return p.globalVariable(VarConst, attrs)
	case lex.TokenOverride:
		return p.globalVariable(VarOverride, attrs)
	case lex.TokenLet:
		return p.globalVariable(VarLet, attrs)
	case lex.TokenAlias:
		return p.aliasDecl()
	case lex.TokenConstAssert:
		start := p.advance()
		cond, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.expectErr(lex.TokenSemicolon, "';'"); err != nil {
			return nil, err
		}
		return &ConstAssertDecl{Cond: cond, Span: p.tokSpan(start)}, nil
	case lex.TokenEnable:
		p.advance()
		for !p.check(lex.TokenSemicolon) && !p.isAtEnd() {
			if tok := p.advance(); tok.Kind == lex.TokenIdent {
				p.module.Enables = append(p.module.Enables, tok.Lexeme)
			}
		}
		p.match(lex.TokenSemicolon)
		return nil, nil
	case lex.TokenDiagnostic:
		p.skipPast(lex.TokenSemicolon)
		return nil, nil
	case lex.TokenSemicolon:
		p.advance()
		return nil, nil
	case lex.TokenEOF:
		return nil, nil
	}
	if tok := p.peek(); tok.Kind == lex.TokenIdent && tok.Lexeme == "requires" {
		p.skipPast(lex.TokenSemicolon)
		return nil, nil
	}
	return nil, p.errorAt(p.peek(), "unexpected %s, expected a declaration", describe(p.peek()))
}

// attributes parses a run of @name or @name(args) attributes.
func (p *Parser) attributes() ([]Attribute, *SourceError) {
	var attrs []Attribute
	for p.check(lex.TokenAt) {
		at := p.advance()
		name := p.advance()
		if name.Lexeme == "" {
			return nil, p.errorAt(name, "expected attribute name")
		}
		attr := Attribute{Name: name.Lexeme, Span: p.join(p.tokSpan(at), p.tokSpan(name))}
		if p.match(lex.TokenLeftParen) {
			for !p.check(lex.TokenRightParen) && !p.isAtEnd() {
				arg, err := p.expression()
				if err != nil {
					return nil, err
				}
				attr.Args = append(attr.Args, arg)
				if !p.match(lex.TokenComma) {
					break
				}
			}
			if err := p.expectErr(lex.TokenRightParen, "')'"); err != nil {
				return nil, err
			}
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func (p *Parser) funcDecl(attrs []Attribute) (*FuncDecl, *SourceError) {
	p.advance() // fn
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	fn := &FuncDecl{Name: name.Lexeme, Attrs: attrs, Result: NoExpr, Span: p.tokSpan(name)}

	if err := p.expectErr(lex.TokenLeftParen, "'('"); err != nil {
		return nil, err
	}
	for !p.check(lex.TokenRightParen) && !p.isAtEnd() {
		pattrs, err := p.attributes()
		if err != nil {
			return nil, err
		}
		pname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectErr(lex.TokenColon, "':'"); err != nil {
			return nil, err
		}
		ty, err := p.typeExpr()
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, &Param{Name: pname.Lexeme, Type: ty, Attrs: pattrs, Span: p.tokSpan(pname)})
		if !p.match(lex.TokenComma) {
			break
		}
	}
	if err := p.expectErr(lex.TokenRightParen, "')'"); err != nil {
		return nil, err
	}

	if p.match(lex.TokenArrow) {
		rattrs, err := p.attributes()
		if err != nil {
			return nil, err
		}
		fn.ResultAttrs = rattrs
		if fn.Result, err = p.typeExpr(); err != nil {
			return nil, err
		}
	}

	body, err := p.block()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func (p *Parser) structDecl() (*StructDecl, *SourceError) {
	p.advance() // struct
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	decl := &StructDecl{Name: name.Lexeme, Span: p.tokSpan(name)}
	if err := p.expectErr(lex.TokenLeftBrace, "'{'"); err != nil {
		return nil, err
	}
	for !p.check(lex.TokenRightBrace) && !p.isAtEnd() {
		attrs, err := p.attributes()
		if err != nil {
			return nil, err
		}
		mname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectErr(lex.TokenColon, "':'"); err != nil {
			return nil, err
		}
		ty, err := p.typeExpr()
		if err != nil {
			return nil, err
		}
		decl.Members = append(decl.Members, &StructMember{Name: mname.Lexeme, Type: ty, Attrs: attrs, Span: p.tokSpan(mname)})
		if !p.match(lex.TokenComma) && !p.match(lex.TokenSemicolon) {
			break
		}
	}
	if err := p.expectErr(lex.TokenRightBrace, "'}'"); err != nil {
		return nil, err
	}
	p.match(lex.TokenSemicolon)
	return decl, nil
}

func (p *Parser) aliasDecl() (*AliasDecl, *SourceError) {
	p.advance() // alias
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectErr(lex.TokenEqual, "'='"); err != nil {
		return nil, err
	}
	ty, err := p.typeExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectErr(lex.TokenSemicolon, "';'"); err != nil {
		return nil, err
	}
	return &AliasDecl{Name: name.Lexeme, Type: ty, Span: p.tokSpan(name)}, nil
}

func (p *Parser) globalVariable(kind VarKind, attrs []Attribute) (*Variable, *SourceError) {
	v, err := p.variable(kind, attrs)
	if err != nil {
		return nil, err
	}
	if err := p.expectErr(lex.TokenSemicolon, "';'"); err != nil {
		return nil, err
	}
	return v, nil
}

// variable parses `var<space, access> name : T = init` and the let, const and
// override forms, without the trailing semicolon.
func (p *Parser) variable(kind VarKind, attrs []Attribute) (*Variable, *SourceError) {
	p.advance() // keyword
	v := &Variable{Kind: kind, Attrs: attrs, Type: NoExpr, Init: NoExpr}

	if kind == VarVar && p.match(lex.TokenLess) {
		space, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		v.Space = space.Lexeme
		if p.match(lex.TokenComma) {
			access, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			v.Access = access.Lexeme
		}
		if err := p.expectTemplateClose(); err != nil {
			return nil, err
		}
	}

	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	v.Name = name.Lexeme
	v.Span = p.tokSpan(name)

	if p.match(lex.TokenColon) {
		if v.Type, err = p.typeExpr(); err != nil {
			return nil, err
		}
	}
	if p.match(lex.TokenEqual) {
		if v.Init, err = p.expression(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// typeExpr parses a possibly templated type name.
func (p *Parser) typeExpr() (ExprID, *SourceError) {
	tok := p.peek()
	if tok.Kind != lex.TokenIdent && !isTypeKeyword(tok.Kind) {
		return NoExpr, p.errorAt(tok, "unexpected %s, expected a type", describe(tok))
	}
	return p.templatedIdent(true)
}

// templatedIdent parses an identifier and, when allowed, its template list.
func (p *Parser) templatedIdent(allowTemplate bool) (ExprID, *SourceError) {
	tok := p.advance()
	id := &Ident{Name: tok.Lexeme, Span: p.tokSpan(tok)}
	if allowTemplate && p.check(lex.TokenLess) {
		p.advance()
		for !p.isTemplateClose() && !p.isAtEnd() {
			arg, err := p.templateArg()
			if err != nil {
				return NoExpr, err
			}
			id.Args = append(id.Args, arg)
			if !p.match(lex.TokenComma) {
				break
			}
		}
		end := p.peek()
		if err := p.expectTemplateClose(); err != nil {
			return NoExpr, err
		}
		id.Span = p.join(id.Span, Span{End: p.position(end.Line, end.Column+1)})
	}
	return p.module.addExpr(id), nil
}

// templateArg parses a template argument. Arguments stop below the shift
// level so that a closing '>' is never taken as an operator.
func (p *Parser) templateArg() (ExprID, *SourceError) {
	return p.additive()
}

func (p *Parser) isTemplateClose() bool {
	switch p.peek().Kind {
	case lex.TokenGreater, lex.TokenGreaterGreater, lex.TokenGreaterEqual, lex.TokenGreaterGreaterEqual:
		return true
	}
	return false
}

// expectTemplateClose consumes one '>' and splits the compound tokens the
// lexer produces for nested templates (`>>`, `>=`, `>>=`).
func (p *Parser) expectTemplateClose() *SourceError {
	tok := &p.tokens[p.current]
	switch tok.Kind {
	case lex.TokenGreater:
		p.advance()
		return nil
	case lex.TokenGreaterGreater:
		tok.Kind, tok.Lexeme = lex.TokenGreater, ">"
	case lex.TokenGreaterEqual:
		tok.Kind, tok.Lexeme = lex.TokenEqual, "="
	case lex.TokenGreaterGreaterEqual:
		tok.Kind, tok.Lexeme = lex.TokenGreaterEqual, ">="
	default:
		return p.errorAt(*tok, "unexpected %s, expected '>'", describe(*tok))
	}
	tok.Column++
	tok.Offset++
	return nil
}

// Statements.

func (p *Parser) block() (StmtID, *SourceError) {
	open := p.peek()
	if err := p.expectErr(lex.TokenLeftBrace, "'{'"); err != nil {
		return NoStmt, err
	}
	blk := &BlockStmt{Span: p.tokSpan(open)}
	for !p.check(lex.TokenRightBrace) && !p.isAtEnd() {
		s, err := p.statement()
		if err != nil {
			return NoStmt, err
		}
		if s != NoStmt {
			blk.Stmts = append(blk.Stmts, s)
		}
	}
	if err := p.expectErr(lex.TokenRightBrace, "'}'"); err != nil {
		return NoStmt, err
	}
	return p.module.addStmt(blk), nil
}

func (p *Parser) statement() (StmtID, *SourceError) {
	if _, err := p.attributes(); err != nil {
		return NoStmt, err
	}
	tok := p.peek()
	switch tok.Kind {
	case lex.TokenSemicolon:
		p.advance()
		return NoStmt, nil
	case lex.TokenLeftBrace:
		return p.block()
	case lex.TokenReturn:
		return p.returnStmt()
	case lex.TokenIf:
		return p.ifStmt()
	case lex.TokenSwitch:
		return p.switchStmt()
	case lex.TokenLoop:
		return p.loopStmt()
	case lex.TokenFor:
		return p.forStmt()
	case lex.TokenWhile:
		return p.whileStmt()
	case lex.TokenBreak:
		p.advance()
		if p.match(lex.TokenIf) {
			cond, err := p.expression()
			if err != nil {
				return NoStmt, err
			}
			if err := p.expectErr(lex.TokenSemicolon, "';'"); err != nil {
				return NoStmt, err
			}
			return p.module.addStmt(&BreakIfStmt{Cond: cond, Span: p.tokSpan(tok)}), nil
		}
		if err := p.expectErr(lex.TokenSemicolon, "';'"); err != nil {
			return NoStmt, err
		}
		return p.module.addStmt(&BreakStmt{Span: p.tokSpan(tok)}), nil
	case lex.TokenContinue:
		p.advance()
		if err := p.expectErr(lex.TokenSemicolon, "';'"); err != nil {
			return NoStmt, err
		}
		return p.module.addStmt(&ContinueStmt{Span: p.tokSpan(tok)}), nil
	case lex.TokenDiscard:
		p.advance()
		if err := p.expectErr(lex.TokenSemicolon, "';'"); err != nil {
			return NoStmt, err
		}
		return p.module.addStmt(&DiscardStmt{Span: p.tokSpan(tok)}), nil
	case lex.TokenConstAssert:
		p.advance()
		cond, err := p.expression()
		if err != nil {
			return NoStmt, err
		}
		if err := p.expectErr(lex.TokenSemicolon, "';'"); err != nil {
			return NoStmt, err
		}
		return p.module.addStmt(&ConstAssertStmt{Cond: cond, Span: p.tokSpan(tok)}), nil
	}

	s, err := p.simpleStmt()
	if err != nil {
		return NoStmt, err
	}
	if err := p.expectErr(lex.TokenSemicolon, "';'"); err != nil {
		return NoStmt, err
	}
	return s, nil
}

// simpleStmt parses a declaration, assignment, increment/decrement or call
// without its terminating semicolon. These are the forms allowed in a for
// loop header.
func (p *Parser) simpleStmt() (StmtID, *SourceError) {
	tok := p.peek()
	var kind VarKind
	switch tok.Kind {
	case lex.TokenVar:
		kind = VarVar
	case lex.TokenLet:
		kind = VarLet
	case lex.TokenConst:
		kind = VarConst
	default:
		return p.assignOrCall()
	}
	v, err := p.variable(kind, nil)
	if err != nil {
		return NoStmt, err
	}
	return p.module.addStmt(&DeclStmt{Var: v, Span: p.tokSpan(tok)}), nil
}

func (p *Parser) assignOrCall() (StmtID, *SourceError) {
	var lhs ExprID
	if tok := p.peek(); tok.Kind == lex.TokenIdent && tok.Lexeme == "_" {
		p.advance()
		lhs = p.module.addExpr(&Phony{Span: p.tokSpan(tok)})
	} else {
		var err *SourceError
		if lhs, err = p.unary(); err != nil {
			return NoStmt, err
		}
	}

	op := p.peek()
	switch {
	case op.Kind == lex.TokenEqual:
		p.advance()
		rhs, err := p.expression()
		if err != nil {
			return NoStmt, err
		}
		return p.module.addStmt(&AssignStmt{LHS: lhs, RHS: rhs, Span: p.tokSpan(op)}), nil
	case isCompoundAssign(op.Kind):
		p.advance()
		rhs, err := p.expression()
		if err != nil {
			return NoStmt, err
		}
		return p.module.addStmt(&AssignStmt{
			LHS: lhs, RHS: rhs, Compound: true, Op: compoundOps[op.Kind], Span: p.tokSpan(op),
		}), nil
	case op.Kind == lex.TokenPlusPlus || op.Kind == lex.TokenMinusMinus:
		p.advance()
		return p.module.addStmt(&IncDecStmt{LHS: lhs, Increment: op.Kind == lex.TokenPlusPlus, Span: p.tokSpan(op)}), nil
	}

	if call, ok := p.module.Exprs[lhs].(*Call); ok {
		// A call statement is located at its callee name.
		call.Span = p.module.ExprSpan(call.Callee)
		return p.module.addStmt(&CallStmt{Call: lhs, Span: call.Span}), nil
	}
	return NoStmt, p.errorAt(op, "unexpected %s, expected assignment or function call", describe(op))
}

func (p *Parser) returnStmt() (StmtID, *SourceError) {
	tok := p.advance()
	ret := &ReturnStmt{Value: NoExpr, Span: p.tokSpan(tok)}
	if !p.check(lex.TokenSemicolon) {
		value, err := p.expression()
		if err != nil {
			return NoStmt, err
		}
		ret.Value = value
	}
	if err := p.expectErr(lex.TokenSemicolon, "';'"); err != nil {
		return NoStmt, err
	}
	return p.module.addStmt(ret), nil
}

func (p *Parser) ifStmt() (StmtID, *SourceError) {
	tok := p.advance()
	cond, err := p.expression()
	if err != nil {
		return NoStmt, err
	}
	body, err := p.block()
	if err != nil {
		return NoStmt, err
	}
	stmt := &IfStmt{Cond: cond, Body: body, Else: NoStmt, Span: p.tokSpan(tok)}
	if p.match(lex.TokenElse) {
		if p.check(lex.TokenIf) {
			stmt.Else, err = p.ifStmt()
		} else {
			stmt.Else, err = p.block()
		}
		if err != nil {
			return NoStmt, err
		}
	}
	return p.module.addStmt(stmt), nil
}

func (p *Parser) forStmt() (StmtID, *SourceError) {
	tok := p.advance()
	stmt := &ForStmt{Init: NoStmt, Cond: NoExpr, Update: NoStmt, Span: p.tokSpan(tok)}
	if err := p.expectErr(lex.TokenLeftParen, "'('"); err != nil {
		return NoStmt, err
	}
	var err *SourceError
	if !p.check(lex.TokenSemicolon) {
		if stmt.Init, err = p.simpleStmt(); err != nil {
			return NoStmt, err
		}
	}
	if err := p.expectErr(lex.TokenSemicolon, "';'"); err != nil {
		return NoStmt, err
	}
	if !p.check(lex.TokenSemicolon) {
		if stmt.Cond, err = p.expression(); err != nil {
			return NoStmt, err
		}
	}
	if err := p.expectErr(lex.TokenSemicolon, "';'"); err != nil {
		return NoStmt, err
	}
	if !p.check(lex.TokenRightParen) {
		if stmt.Update, err = p.simpleStmt(); err != nil {
			return NoStmt, err
		}
	}
	if err := p.expectErr(lex.TokenRightParen, "')'"); err != nil {
		return NoStmt, err
	}
	if stmt.Body, err = p.block(); err != nil {
		return NoStmt, err
	}
	return p.module.addStmt(stmt), nil
}

func (p *Parser) whileStmt() (StmtID, *SourceError) {
	tok := p.advance()
	cond, err := p.expression()
	if err != nil {
		return NoStmt, err
	}
	body, err := p.block()
	if err != nil {
		return NoStmt, err
	}
	return p.module.addStmt(&WhileStmt{Cond: cond, Body: body, Span: p.tokSpan(tok)}), nil
}

// loopStmt parses `loop { body... continuing { ... } }`. The continuing block
// is split out of the body.
func (p *Parser) loopStmt() (StmtID, *SourceError) {
	tok := p.advance()
	open := p.peek()
	if err := p.expectErr(lex.TokenLeftBrace, "'{'"); err != nil {
		return NoStmt, err
	}
	body := &BlockStmt{Span: p.tokSpan(open)}
	stmt := &LoopStmt{Continuing: NoStmt, Span: p.tokSpan(tok)}
	for !p.check(lex.TokenRightBrace) && !p.isAtEnd() {
		if p.check(lex.TokenContinuing) {
			p.advance()
			cont, err := p.block()
			if err != nil {
				return NoStmt, err
			}
			stmt.Continuing = cont
			break
		}
		s, err := p.statement()
		if err != nil {
			return NoStmt, err
		}
		if s != NoStmt {
			body.Stmts = append(body.Stmts, s)
		}
	}
	if err := p.expectErr(lex.TokenRightBrace, "'}'"); err != nil {
		return NoStmt, err
	}
	stmt.Body = p.module.addStmt(body)
	return p.module.addStmt(stmt), nil
}

func (p *Parser) switchStmt() (StmtID, *SourceError) {
	tok := p.advance()
	sel, err := p.expression()
	if err != nil {
		return NoStmt, err
	}
	if _, err := p.attributes(); err != nil {
		return NoStmt, err
	}
	if err := p.expectErr(lex.TokenLeftBrace, "'{'"); err != nil {
		return NoStmt, err
	}
	stmt := &SwitchStmt{Selector: sel, Span: p.tokSpan(tok)}
	for !p.check(lex.TokenRightBrace) && !p.isAtEnd() {
		clause := &CaseClause{Span: p.tokSpan(p.peek())}
		switch {
		case p.match(lex.TokenCase):
			for !p.check(lex.TokenColon) && !p.check(lex.TokenLeftBrace) && !p.isAtEnd() {
				if p.match(lex.TokenDefault) {
					clause.Selectors = append(clause.Selectors, NoExpr)
				} else {
					e, err := p.expression()
					if err != nil {
						return NoStmt, err
					}
					clause.Selectors = append(clause.Selectors, e)
				}
				if !p.match(lex.TokenComma) {
					break
				}
			}
		case p.match(lex.TokenDefault):
			clause.Selectors = append(clause.Selectors, NoExpr)
		default:
			return NoStmt, p.errorAt(p.peek(), "unexpected %s, expected 'case' or 'default'", describe(p.peek()))
		}
		p.match(lex.TokenColon)
		body, err := p.block()
		if err != nil {
			return NoStmt, err
		}
		clause.Body = body
		stmt.Cases = append(stmt.Cases, clause)
	}
	if err := p.expectErr(lex.TokenRightBrace, "'}'"); err != nil {
		return NoStmt, err
	}
	return p.module.addStmt(stmt), nil
}

// Expressions, lowest precedence first.

func (p *Parser) expression() (ExprID, *SourceError) {
	return p.logicalOr()
}

// binaryLevel parses a left-associative chain of operators at one level.
func (p *Parser) binaryLevel(next func() (ExprID, *SourceError), ops map[lex.TokenKind]BinaryOp) (ExprID, *SourceError) {
	left, err := next()
	if err != nil {
		return NoExpr, err
	}
	for {
		op, ok := ops[p.peek().Kind]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := next()
		if err != nil {
			return NoExpr, err
		}
		span := p.join(p.module.ExprSpan(left), p.module.ExprSpan(right))
		left = p.module.addExpr(&Binary{Op: op, X: left, Y: right, Span: span})
	}
}

var (
	logicalOrOps  = map[lex.TokenKind]BinaryOp{lex.TokenPipePipe: OpLogicalOr}
	logicalAndOps = map[lex.TokenKind]BinaryOp{lex.TokenAmpAmp: OpLogicalAnd}
	bitOrOps      = map[lex.TokenKind]BinaryOp{lex.TokenPipe: OpOr}
	bitXorOps     = map[lex.TokenKind]BinaryOp{lex.TokenCaret: OpXor}
	bitAndOps     = map[lex.TokenKind]BinaryOp{lex.TokenAmpersand: OpAnd}
	equalityOps   = map[lex.TokenKind]BinaryOp{lex.TokenEqualEqual: OpEq, lex.TokenBangEqual: OpNe}
	relationalOps = map[lex.TokenKind]BinaryOp{
		lex.TokenLess: OpLt, lex.TokenLessEqual: OpLe, lex.TokenGreater: OpGt, lex.TokenGreaterEqual: OpGe,
	}
	shiftOps    = map[lex.TokenKind]BinaryOp{lex.TokenLessLess: OpShl, lex.TokenGreaterGreater: OpShr}
	additiveOps = map[lex.TokenKind]BinaryOp{lex.TokenPlus: OpAdd, lex.TokenMinus: OpSub}
	multOps     = map[lex.TokenKind]BinaryOp{lex.TokenStar: OpMul, lex.TokenSlash: OpDiv, lex.TokenPercent: OpMod}

	compoundOps = map[lex.TokenKind]BinaryOp{
		lex.TokenPlusEqual: OpAdd, lex.TokenMinusEqual: OpSub, lex.TokenStarEqual: OpMul,
		lex.TokenSlashEqual: OpDiv, lex.TokenPercentEqual: OpMod, lex.TokenAmpEqual: OpAnd,
		lex.TokenPipeEqual: OpOr, lex.TokenCaretEqual: OpXor,
		lex.TokenLessLessEqual: OpShl, lex.TokenGreaterGreaterEqual: OpShr,
	}
)

func (p *Parser) logicalOr() (ExprID, *SourceError) { return p.binaryLevel(p.logicalAnd, logicalOrOps) }
func (p *Parser) logicalAnd() (ExprID, *SourceError) {
	return p.binaryLevel(p.bitwiseOr, logicalAndOps)
}
func (p *Parser) bitwiseOr() (ExprID, *SourceError)  { return p.binaryLevel(p.bitwiseXor, bitOrOps) }
func (p *Parser) bitwiseXor() (ExprID, *SourceError) { return p.binaryLevel(p.bitwiseAnd, bitXorOps) }
func (p *Parser) bitwiseAnd() (ExprID, *SourceError) { return p.binaryLevel(p.equality, bitAndOps) }
func (p *Parser) equality() (ExprID, *SourceError)   { return p.binaryLevel(p.relational, equalityOps) }
func (p *Parser) relational() (ExprID, *SourceError) { return p.binaryLevel(p.shift, relationalOps) }
func (p *Parser) shift() (ExprID, *SourceError)      { return p.binaryLevel(p.additive, shiftOps) }
func (p *Parser) additive() (ExprID, *SourceError) {
	return p.binaryLevel(p.multiplicative, additiveOps)
}
func (p *Parser) multiplicative() (ExprID, *SourceError) { return p.binaryLevel(p.unary, multOps) }

var unaryOps = map[lex.TokenKind]UnaryOp{
	lex.TokenMinus: OpNeg, lex.TokenBang: OpNot, lex.TokenTilde: OpCompl,
	lex.TokenAmpersand: OpAddrOf, lex.TokenStar: OpDeref,
}

func (p *Parser) unary() (ExprID, *SourceError) {
	tok := p.peek()
	if op, ok := unaryOps[tok.Kind]; ok {
		p.advance()
		x, err := p.unary()
		if err != nil {
			return NoExpr, err
		}
		span := p.join(p.tokSpan(tok), p.module.ExprSpan(x))
		return p.module.addExpr(&Unary{Op: op, X: x, Span: span}), nil
	}
	// `&&x` is two address-of operators, `--x` is two negations.
	if tok.Kind == lex.TokenAmpAmp || tok.Kind == lex.TokenMinusMinus {
		op := OpAddrOf
		if tok.Kind == lex.TokenMinusMinus {
			op = OpNeg
		}
		p.advance()
		x, err := p.unary()
		if err != nil {
			return NoExpr, err
		}
		span := p.join(p.tokSpan(tok), p.module.ExprSpan(x))
		inner := p.module.addExpr(&Unary{Op: op, X: x, Span: span})
		return p.module.addExpr(&Unary{Op: op, X: inner, Span: span}), nil
	}
	return p.postfix()
}

func (p *Parser) postfix() (ExprID, *SourceError) {
	expr, err := p.primary()
	if err != nil {
		return NoExpr, err
	}
	for {
		switch {
		case p.check(lex.TokenLeftBracket):
			p.advance()
			idx, err := p.expression()
			if err != nil {
				return NoExpr, err
			}
			closing := p.peek()
			if err := p.expectErr(lex.TokenRightBracket, "']'"); err != nil {
				return NoExpr, err
			}
			span := p.join(p.module.ExprSpan(expr), p.tokSpan(closing))
			expr = p.module.addExpr(&Index{X: expr, Index: idx, Span: span})
		case p.check(lex.TokenDot):
			p.advance()
			name := p.advance()
			if name.Kind != lex.TokenIdent {
				return NoExpr, p.errorAt(name, "unexpected %s, expected member name", describe(name))
			}
			span := p.join(p.module.ExprSpan(expr), p.tokSpan(name))
			expr = p.module.addExpr(&Member{X: expr, Name: name.Lexeme, Span: span})
		default:
			return expr, nil
		}
	}
}

func (p *Parser) primary() (ExprID, *SourceError) {
	tok := p.peek()
	switch tok.Kind {
	case lex.TokenIntLiteral:
		p.advance()
		return p.module.addExpr(&Literal{Kind: LitInt, Text: tok.Lexeme, Span: p.tokSpan(tok)}), nil
	case lex.TokenFloatLiteral:
		p.advance()
		return p.module.addExpr(&Literal{Kind: LitFloat, Text: tok.Lexeme, Span: p.tokSpan(tok)}), nil
	case lex.TokenTrue, lex.TokenFalse, lex.TokenBoolLiteral:
		p.advance()
		return p.module.addExpr(&Literal{Kind: LitBool, Text: tok.Lexeme, Span: p.tokSpan(tok)}), nil
	case lex.TokenLeftParen:
		p.advance()
		x, err := p.expression()
		if err != nil {
			return NoExpr, err
		}
		closing := p.peek()
		if err := p.expectErr(lex.TokenRightParen, "')'"); err != nil {
			return NoExpr, err
		}
		return p.module.addExpr(&Paren{X: x, Span: p.join(p.tokSpan(tok), p.tokSpan(closing))}), nil
	case lex.TokenError:
		return NoExpr, p.errorAt(tok, "invalid character %q", tok.Lexeme)
	}

	if tok.Kind != lex.TokenIdent && !isTypeKeyword(tok.Kind) {
		return NoExpr, p.errorAt(tok, "unexpected %s, expected an expression", describe(tok))
	}
	allowTemplate := isTypeKeyword(tok.Kind) || tok.Lexeme == "bitcast"
	callee, err := p.templatedIdent(allowTemplate)
	if err != nil {
		return NoExpr, err
	}
	if !p.check(lex.TokenLeftParen) {
		return callee, nil
	}

	p.advance()
	call := &Call{Callee: callee, Span: p.module.ExprSpan(callee)}
	for !p.check(lex.TokenRightParen) && !p.isAtEnd() {
		arg, err := p.expression()
		if err != nil {
			return NoExpr, err
		}
		call.Args = append(call.Args, arg)
		if !p.match(lex.TokenComma) {
			break
		}
	}
	closing := p.peek()
	if err := p.expectErr(lex.TokenRightParen, "')'"); err != nil {
		return NoExpr, err
	}
	call.Span = p.join(call.Span, p.tokSpan(closing))
	return p.module.addExpr(call), nil
}

// Token helpers.

func (p *Parser) advance() lex.Token {
	tok := p.tokens[p.current]
	if !p.isAtEnd() {
		p.current++
	}
	return tok
}

func (p *Parser) peek() lex.Token {
	return p.tokens[p.current]
}

func (p *Parser) isAtEnd() bool {
	return p.current >= len(p.tokens)-1 || p.tokens[p.current].Kind == lex.TokenEOF
}

func (p *Parser) check(kind lex.TokenKind) bool {
	return p.tokens[p.current].Kind == kind
}

func (p *Parser) match(kind lex.TokenKind) bool {
	if p.check(kind) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expectErr(kind lex.TokenKind, what string) *SourceError {
	if p.match(kind) {
		return nil
	}
	return p.errorAt(p.peek(), "unexpected %s, expected %s", describe(p.peek()), what)
}

func (p *Parser) expectIdent() (lex.Token, *SourceError) {
	tok := p.peek()
	if tok.Kind != lex.TokenIdent {
		return tok, p.errorAt(tok, "unexpected %s, expected identifier", describe(tok))
	}
	return p.advance(), nil
}

func (p *Parser) skipPast(kind lex.TokenKind) {
	for !p.isAtEnd() && !p.check(kind) {
		p.advance()
	}
	p.match(kind)
}

// synchronize skips to the next token that can start a declaration after a
// statement or block boundary.
func (p *Parser) synchronize() {
	for !p.isAtEnd() {
		prev := p.tokens[max(p.current-1, 0)].Kind
		if prev == lex.TokenSemicolon || prev == lex.TokenRightBrace {
			switch p.peek().Kind {
			case lex.TokenFn, lex.TokenStruct, lex.TokenVar, lex.TokenConst,
				lex.TokenOverride, lex.TokenAlias, lex.TokenAt, lex.TokenConstAssert:
				return
			}
		}
		p.advance()
	}
}

func (p *Parser) errorAt(tok lex.Token, format string, args ...any) *SourceError {
	return NewSourceErrorf(p.tokSpan(tok), p.source, format, args...)
}

// Span helpers.

func (p *Parser) position(line, col int) Position {
	off := 0
	if line >= 1 && line <= len(p.lineStarts) {
		off = p.lineStarts[line-1] + col - 1
	}
	return Position{Line: line, Column: col, Offset: off}
}

func (p *Parser) tokSpan(tok lex.Token) Span {
	n := utf8.RuneCountInString(tok.Lexeme)
	return Span{
		Start:  Position{Line: tok.Line, Column: tok.Column, Offset: tok.Offset},
		End:    Position{Line: tok.Line, Column: tok.Column + n, Offset: tok.Offset + len(tok.Lexeme)},
		Source: p.file,
	}
}

func (p *Parser) join(a, b Span) Span {
	return Span{Start: a.Start, End: b.End, Source: p.file}
}

func isTypeKeyword(kind lex.TokenKind) bool {
	return kind >= lex.TokenBool && kind <= lex.TokenTextureDepthMultisampled2d
}

func isCompoundAssign(kind lex.TokenKind) bool {
	_, ok := compoundOps[kind]
	return ok
}

func describe(tok lex.Token) string {
	switch tok.Kind {
	case lex.TokenEOF:
		return "end of file"
	case lex.TokenIdent:
		return fmt.Sprintf("identifier '%s'", tok.Lexeme)
	}
	if tok.Lexeme != "" {
		return "'" + strings.TrimSpace(tok.Lexeme) + "'"
	}
	return tok.Kind.String()
}
