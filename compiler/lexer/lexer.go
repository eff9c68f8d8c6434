// Package lexer turns a byte stream into a token stream.
package lexer

import (
	"context"
	"strconv"

	"github.com/TrueDoctor/c/compiler/diag"
	"github.com/TrueDoctor/c/compiler/token"
	"tlog.app/go/tlog"
)

// Lexer holds the lexing state of a single program.
type Lexer struct {
	src  []byte
	i    int
	pos  diag.Position
	done bool
}

// New creates a Lexer over src.
func New(src []byte) *Lexer {
	return &Lexer{
		src: src,
		pos: diag.Start(),
	}
}

// Tokenize lexes the whole of src including the trailing Eof token.
func Tokenize(ctx context.Context, src []byte) (toks []token.Token, err error) {
	l := New(src)

	for {
		t, err := l.Next()
		if err != nil {
			return nil, err
		}

		toks = append(toks, t)

		if t.Kind == token.Eof {
			break
		}
	}

	tlog.SpanFromContext(ctx).Printw("tokenized", "tokens", len(toks), "bytes", len(src))

	return toks, nil
}

func (l *Lexer) peek() (byte, bool) {
	if l.i < len(l.src) {
		return l.src[l.i], true
	}

	return 0, false
}

func (l *Lexer) next() (byte, bool) {
	c, ok := l.peek()
	if ok {
		l.i++
	}

	return c, ok
}

// matches consumes the next byte if it equals c.
func (l *Lexer) matches(c byte) bool {
	if x, ok := l.peek(); ok && x == c {
		l.i++
		return true
	}

	return false
}

// consumeWhile consumes bytes while they satisfy pred and
// returns the index after the last consumed byte.
func (l *Lexer) consumeWhile(pred func(byte) bool) int {
	for l.i < len(l.src) && pred(l.src[l.i]) {
		l.i++
	}

	return l.i
}

func (l *Lexer) token(k token.Kind) (token.Token, error) {
	return token.Token{Kind: k, Pos: l.pos}, nil
}

func (l *Lexer) error(format string, args ...interface{}) (token.Token, error) {
	l.done = true
	return token.Token{}, diag.Errorf(l.pos, format, args...)
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdent(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}

	return false
}

// consumeChar consumes one byte of a char or string literal,
// resolving escape sequences. c is the first byte, already consumed.
func (l *Lexer) consumeChar(c byte) (byte, error) {
	if c != '\\' {
		if c >= 0x80 {
			return 0, diag.Errorf(l.pos, "expected ASCII character, got %q", c)
		}

		if c == '\n' {
			l.pos.Inc()
		}

		return c, nil
	}

	esc, ok := l.next()
	if !ok {
		return 0, diag.Errorf(l.pos, "unterminated escape sequence")
	}

	switch esc {
	case 'a':
		return 0x07, nil
	case 'b':
		return 0x08, nil
	case 'f':
		return 0x0C, nil
	case 'n':
		return 0x0A, nil
	case 'r':
		return 0x0D, nil
	case 't':
		return 0x09, nil
	case 'v':
		return 0x0B, nil
	case '\'':
		return 0x27, nil
	case '"':
		return 0x22, nil
	case '\\':
		return 0x5C, nil
	case 'x':
		hi, ok1 := l.next()
		lo, ok2 := l.next()
		if ok1 && ok2 {
			a, okA := hexDigit(hi)
			b, okB := hexDigit(lo)
			if okA && okB {
				return a<<4 | b, nil
			}
		}
	}

	return 0, diag.Errorf(l.pos, "invalid escape sequence: '\\%c'", esc)
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}

	return 0, false
}

// Next returns the next token. After an error or the end of
// the input it keeps returning Eof.
func (l *Lexer) Next() (token.Token, error) {
	if l.done {
		return l.token(token.Eof)
	}

	for {
		start := l.i

		c, ok := l.next()
		if !ok {
			break
		}

		switch {
		case c == '\n':
			l.pos.Inc()
		case isSpace(c):
		case c == '#':
			if err := l.comment(); err != nil {
				l.done = true
				return token.Token{}, err
			}
		case isIdentStart(c):
			end := l.consumeWhile(isIdent)
			return l.ident(string(l.src[start:end]))
		case isDigit(c):
			end := l.consumeWhile(isDigit)
			lexeme := string(l.src[start:end])

			v, err := strconv.ParseUint(lexeme, 10, 8)
			if err != nil {
				return l.error("integer literal too big: %s", lexeme)
			}

			t, _ := l.token(token.IntLit)
			t.Value = byte(v)
			return t, nil
		case c == '\'':
			return l.charLiteral()
		case c == '"':
			return l.stringLiteral()
		case c == '(':
			return l.token(token.LeftParen)
		case c == ')':
			return l.token(token.RightParen)
		case c == '{':
			return l.token(token.LeftBrace)
		case c == '}':
			return l.token(token.RightBrace)
		case c == ',':
			return l.token(token.Comma)
		case c == ';':
			return l.token(token.Semicolon)
		case c == '=':
			return l.operator(token.EqEq, token.Eq)
		case c == '+':
			return l.operator(token.PlusEq, token.Plus)
		case c == '-':
			return l.operator(token.MinusEq, token.Minus)
		case c == '*':
			return l.operator(token.StarEq, token.Star)
		case c == '/':
			return l.operator(token.SlashEq, token.Slash)
		case c == '%':
			return l.operator(token.PercentEq, token.Percent)
		case c == '>':
			return l.operator(token.GreaterEq, token.Greater)
		case c == '<':
			return l.operator(token.LessEq, token.Less)
		case c == '!':
			if l.matches('=') {
				return l.token(token.NotEq)
			}

			return l.error("unexpected character, expected `!=`")
		default:
			return l.error("invalid token")
		}
	}

	l.done = true

	return l.token(token.Eof)
}

// operator returns the compound kind if the next byte is `=`, the plain kind otherwise.
func (l *Lexer) operator(compound, plain token.Kind) (token.Token, error) {
	if l.matches('=') {
		return l.token(compound)
	}

	return l.token(plain)
}

var keywords = map[string]token.Kind{
	"if":     token.If,
	"else":   token.Else,
	"while":  token.While,
	"repeat": token.Repeat,
	"return": token.Return,
	"inline": token.Inline,
	"and":    token.And,
	"or":     token.Or,
	"not":    token.Not,
	"true":   token.True,
	"false":  token.False,
}

func (l *Lexer) ident(name string) (token.Token, error) {
	if k, ok := keywords[name]; ok {
		return l.token(k)
	}

	t, _ := l.token(token.Identifier)

	if name == "void" || name == "int" {
		t.Kind = token.Type
	}

	t.Name = name

	return t, nil
}

// comment skips a line comment or a nesting block comment.
// The leading `#` is already consumed.
func (l *Lexer) comment() error {
	if !l.matches('[') {
		l.consumeWhile(func(c byte) bool { return c != '\n' })
		return nil
	}

	depth := 1

	for {
		c, ok := l.next()
		if !ok {
			return diag.Errorf(l.pos, "unterminated block comment")
		}

		switch {
		case c == '\n':
			l.pos.Inc()
		case c == ']' && l.matches('#'):
			depth--
			if depth == 0 {
				return nil
			}
		case c == '#' && l.matches('['):
			depth++
		}
	}
}

func (l *Lexer) charLiteral() (token.Token, error) {
	c, ok := l.next()
	if !ok {
		return l.error("unterminated char literal")
	}

	if c == '\'' || c == '\n' {
		return l.error("invalid char literal")
	}

	v, err := l.consumeChar(c)
	if err != nil {
		l.done = true
		return token.Token{}, err
	}

	if !l.matches('\'') {
		return l.error("unterminated char literal")
	}

	t, _ := l.token(token.CharLit)
	t.Value = v

	return t, nil
}

func (l *Lexer) stringLiteral() (token.Token, error) {
	buf := []byte{}

	for {
		c, ok := l.next()
		if !ok {
			return l.error("unterminated string literal")
		}

		if c == '"' {
			t, _ := l.token(token.StringLit)
			t.Bytes = buf
			return t, nil
		}

		v, err := l.consumeChar(c)
		if err != nil {
			l.done = true
			return token.Token{}, err
		}

		buf = append(buf, v)
	}
}
