package lex

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Error is a tokenization failure at a source position.
type Error struct {
	Line   int
	Column int
	Offset int
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}

// Lexer tokenizes WGSL source code.
type Lexer struct {
	source string
	pos    int
	line   int
	column int

	// position of the token being scanned
	start     int
	startLine int
	startCol  int

	tokens []Token
}

// NewLexer creates a lexer over source.
func NewLexer(source string) *Lexer {
	// Roughly one token per 6 bytes of source.
	est := max(len(source)/6, 16)
	return &Lexer{
		source: source,
		line:   1,
		column: 1,
		tokens: make([]Token, 0, est),
	}
}

// Tokenize returns every token of the source, ending with TokenEOF.
// Characters that start no token become TokenError tokens so the parser
// can report them in context; only an unterminated block comment fails
// tokenization.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		l.skipBlank()
		l.mark()
		if l.isAtEnd() {
			break
		}
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}
	l.emit(TokenEOF)
	return l.tokens, nil
}

func (l *Lexer) mark() {
	l.start, l.startLine, l.startCol = l.pos, l.line, l.column
}

func (l *Lexer) emit(kind TokenKind) {
	l.tokens = append(l.tokens, Token{
		Kind:   kind,
		Lexeme: l.source[l.start:l.pos],
		Line:   l.startLine,
		Column: l.startCol,
		Offset: l.start,
	})
}

// skipBlank skips blankspace and comments. A block comment that is not
// closed is left unconsumed for scanToken to report.
func (l *Lexer) skipBlank() {
	for !l.isAtEnd() {
		rest := l.source[l.pos:]
		switch {
		case unicode.IsSpace(l.peek()):
			l.advance()
		case strings.HasPrefix(rest, "//"):
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		case strings.HasPrefix(rest, "/*"):
			save, line, col := l.pos, l.line, l.column
			if !l.blockComment() {
				l.pos, l.line, l.column = save, line, col
				return
			}
		default:
			return
		}
	}
}

// blockComment consumes a possibly nested block comment and reports
// whether it was closed.
func (l *Lexer) blockComment() bool {
	l.advance()
	l.advance()
	for depth := 1; depth > 0; {
		rest := l.source[l.pos:]
		switch {
		case rest == "":
			return false
		case strings.HasPrefix(rest, "/*"):
			l.advance()
			l.advance()
			depth++
		case strings.HasPrefix(rest, "*/"):
			l.advance()
			l.advance()
			depth--
		default:
			l.advance()
		}
	}
	return true
}

func (l *Lexer) scanToken() error {
	rest := l.source[l.pos:]
	if strings.HasPrefix(rest, "/*") {
		return &Error{Line: l.line, Column: l.column, Offset: l.pos, Msg: "unterminated block comment"}
	}

	r := l.peek()
	switch {
	case isDigit(r):
		l.emit(l.number())
		return nil
	case isIdentStart(r):
		for isIdentStart(l.peek()) || isDigit(l.peek()) {
			l.advance()
		}
		l.emit(lookupKeyword(l.source[l.start:l.pos]))
		return nil
	}

	for _, p := range punctuators {
		if strings.HasPrefix(rest, p.text) {
			for range len(p.text) {
				l.advance()
			}
			l.emit(p.kind)
			return nil
		}
	}

	l.advance()
	l.emit(TokenError)
	return nil
}

// number scans a numeric literal. "1." and "1.5" are floats, but in
// "1.x" the dot starts a member access.
func (l *Lexer) number() TokenKind {
	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X') {
		l.advance()
		l.advance()
		l.skipWhile(isHexDigit)
		l.skipOneOf("iu")
		return TokenIntLiteral
	}

	l.skipWhile(isDigit)
	switch {
	case l.peek() == '.' && !isIdentStart(l.peekNext()):
		l.advance()
		l.skipWhile(isDigit)
		l.exponent()
		l.skipOneOf("fh")
		return TokenFloatLiteral
	case l.exponent():
		l.skipOneOf("fh")
		return TokenFloatLiteral
	case l.skipOneOf("fh"):
		return TokenFloatLiteral
	}
	l.skipOneOf("iu")
	return TokenIntLiteral
}

// exponent consumes an exponent part such as e10 or E-3. An 'e' not
// followed by digits is left alone.
func (l *Lexer) exponent() bool {
	if r := l.peek(); r != 'e' && r != 'E' {
		return false
	}
	n := 1
	if s := l.peekNext(); s == '+' || s == '-' {
		n = 2
	}
	if l.pos+n >= len(l.source) || !isDigit(rune(l.source[l.pos+n])) {
		return false
	}
	for range n {
		l.advance()
	}
	l.skipWhile(isDigit)
	return true
}

func lookupKeyword(text string) TokenKind {
	if kind, ok := keywords[text]; ok {
		return kind
	}
	return TokenIdent
}

func (l *Lexer) skipWhile(pred func(rune) bool) {
	for !l.isAtEnd() && pred(l.peek()) {
		l.advance()
	}
}

func (l *Lexer) skipOneOf(chars string) bool {
	if l.isAtEnd() || !strings.ContainsRune(chars, l.peek()) {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.source[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return r
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.source[l.pos:])
	return r
}

func (l *Lexer) peekNext() rune {
	if l.isAtEnd() {
		return 0
	}
	_, size := utf8.DecodeRuneInString(l.source[l.pos:])
	if l.pos+size >= len(l.source) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.source[l.pos+size:])
	return r
}

func (l *Lexer) isAtEnd() bool {
	return l.pos >= len(l.source)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}
