// Package parser builds the AST from a token stream
// using Pratt-style precedence climbing.
package parser

import (
	"context"

	"github.com/TrueDoctor/c/compiler/ast"
	"github.com/TrueDoctor/c/compiler/diag"
	"github.com/TrueDoctor/c/compiler/token"
	"tlog.app/go/tlog"
)

// Binding powers, low to high: or, and, not, comparisons,
// additive, multiplicative, unary. All infix operators are
// left-associative.
func binaryBP(k token.Kind) (op ast.BinaryOpKind, l, r int, ok bool) {
	switch k {
	case token.Plus:
		return ast.Add, 9, 10, true
	case token.Minus:
		return ast.Sub, 9, 10, true
	case token.Star:
		return ast.Mul, 11, 12, true
	case token.Slash:
		return ast.Div, 11, 12, true
	case token.Percent:
		return ast.Mod, 11, 12, true
	case token.EqEq:
		return ast.Eq, 7, 8, true
	case token.NotEq:
		return ast.Ne, 7, 8, true
	case token.Greater:
		return ast.Gt, 7, 8, true
	case token.GreaterEq:
		return ast.Ge, 7, 8, true
	case token.Less:
		return ast.Lt, 7, 8, true
	case token.LessEq:
		return ast.Le, 7, 8, true
	case token.And:
		return ast.And, 3, 4, true
	case token.Or:
		return ast.Or, 1, 2, true
	}

	return 0, 0, 0, false
}

func unaryBP(k token.Kind) (op ast.UnaryOpKind, r int, ok bool) {
	switch k {
	case token.Plus:
		return ast.UnaryPlus, 13, true
	case token.Minus:
		return ast.UnaryMinus, 13, true
	case token.Not:
		return ast.UnaryNot, 5, true
	}

	return 0, 0, false
}

// Parser consumes a token stream ending in an Eof token.
type Parser struct {
	toks []token.Token
	i    int
}

// New creates a Parser. toks must end with an Eof token.
func New(toks []token.Token) *Parser {
	return &Parser{toks: toks}
}

// Parse parses a whole program named name.
func Parse(ctx context.Context, toks []token.Token, name string) (p *ast.Program, err error) {
	tr := tlog.SpanFromContext(ctx)
	defer func() {
		tr.Printw("parsed program", "name", name, "err", err)
	}()

	return New(toks).Program(name)
}

func (p *Parser) next() token.Token {
	t := p.toks[p.i]

	if t.Kind != token.Eof {
		p.i++
	}

	return t
}

func (p *Parser) peek() token.Token {
	return p.toks[p.i]
}

func errExpected(msg interface{}, got token.Token) error {
	return diag.Errorf(got.Pos, "expected %v, got %v", msg, got)
}

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	t := p.next()
	if t.Kind != k {
		return t, errExpected(k, t)
	}

	return t, nil
}

func (p *Parser) expectIdentifier() (ast.Ident, error) {
	t := p.next()
	if t.Kind != token.Identifier {
		return ast.Ident{}, errExpected("identifier", t)
	}

	return ast.Ident{Pos: t.Pos, Name: t.Name}, nil
}

func (p *Parser) expectType() (ast.Type, error) {
	t := p.next()
	if t.Kind != token.Type {
		return ast.Type{}, errExpected("type", t)
	}

	return ast.Type{Pos: t.Pos, Name: t.Name}, nil
}

// optional consumes the next token if it is of kind k.
func (p *Parser) optional(k token.Kind) bool {
	if p.peek().Kind == k {
		p.next()
		return true
	}

	return false
}

// Program parses items until end of file.
func (p *Parser) Program(name string) (*ast.Program, error) {
	prog := &ast.Program{Name: name}

	for {
		var item ast.Item

		switch p.peek().Kind {
		case token.Eof:
			return prog, nil
		case token.Type:
			decl, err := p.parseDeclaration()
			if err != nil {
				return nil, err
			}

			t := p.next()
			switch t.Kind {
			case token.LeftParen:
				// function definition
				params, err := parseList(p, (*Parser).parseDeclaration, token.RightParen)
				if err != nil {
					return nil, err
				}

				body, err := p.parseBlock()
				if err != nil {
					return nil, err
				}

				item = &ast.Function{
					Name:       decl.Name,
					ReturnType: decl.Type,
					Params:     params,
					Body:       body,
				}
			case token.Eq:
				// declaration with initialization
				decl.Init, err = p.parseExpr()
				if err != nil {
					return nil, err
				}

				if _, err = p.expect(token.Semicolon); err != nil {
					return nil, err
				}

				item = &ast.DeclStmt{Declaration: decl}
			case token.Semicolon:
				item = &ast.DeclStmt{Declaration: decl}
			default:
				return nil, errExpected("function definition or declaration", t)
			}
		default:
			stmt, err := p.parseStatement()
			if err != nil {
				return nil, err
			}

			item = stmt.(ast.Item)
		}

		prog.Items = append(prog.Items, item)
	}
}

// parseList parses a comma separated list terminated by end.
// A trailing comma is permitted.
func parseList[T any](p *Parser, elem func(*Parser) (T, error), end token.Kind) ([]T, error) {
	var elems []T

	for p.peek().Kind != end {
		e, err := elem(p)
		if err != nil {
			return nil, err
		}

		elems = append(elems, e)

		if !p.optional(token.Comma) {
			break
		}
	}

	if _, err := p.expect(end); err != nil {
		return nil, err
	}

	return elems, nil
}

func (p *Parser) parseDeclaration() (ast.Declaration, error) {
	typ, err := p.expectType()
	if err != nil {
		return ast.Declaration{}, err
	}

	name, err := p.expectIdentifier()
	if err != nil {
		return ast.Declaration{}, err
	}

	return ast.Declaration{Type: typ, Name: name}, nil
}

// parseBlock parses `{ ... }`. Declarations are only valid
// inside blocks and at top level.
func (p *Parser) parseBlock() ([]ast.Stmt, error) {
	if _, err := p.expect(token.LeftBrace); err != nil {
		return nil, err
	}

	var stmts []ast.Stmt

	for {
		switch p.peek().Kind {
		case token.RightBrace, token.Eof:
			_, err := p.expect(token.RightBrace)
			return stmts, err
		case token.Type:
			decl, err := p.parseDeclaration()
			if err != nil {
				return nil, err
			}

			if p.optional(token.Eq) {
				decl.Init, err = p.parseExpr()
				if err != nil {
					return nil, err
				}
			}

			if _, err := p.expect(token.Semicolon); err != nil {
				return nil, err
			}

			stmts = append(stmts, &ast.DeclStmt{Declaration: decl})
		default:
			stmt, err := p.parseStatement()
			if err != nil {
				return nil, err
			}

			stmts = append(stmts, stmt)
		}
	}
}

func (p *Parser) parseStatement() (ast.Stmt, error) {
	pos := p.peek().Pos

	switch p.peek().Kind {
	case token.LeftBrace:
		stmts, err := p.parseBlock()
		if err != nil {
			return nil, err
		}

		return &ast.Block{Stmts: stmts}, nil
	case token.If:
		p.next()

		cond, err := p.parenExpr()
		if err != nil {
			return nil, err
		}

		then, err := p.parseStatement()
		if err != nil {
			return nil, err
		}

		var els ast.Stmt
		if p.optional(token.Else) {
			els, err = p.parseStatement()
			if err != nil {
				return nil, err
			}
		}

		return &ast.If{Pos: pos, Cond: cond, Then: then, Else: els}, nil
	case token.While:
		p.next()

		cond, err := p.parenExpr()
		if err != nil {
			return nil, err
		}

		body, err := p.parseStatement()
		if err != nil {
			return nil, err
		}

		return &ast.While{Pos: pos, Cond: cond, Body: body}, nil
	case token.Repeat:
		p.next()

		count, err := p.parenExpr()
		if err != nil {
			return nil, err
		}

		body, err := p.parseStatement()
		if err != nil {
			return nil, err
		}

		return &ast.RepeatStmt{Pos: pos, Count: count, Body: body}, nil
	case token.Return:
		p.next()

		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		if _, err := p.expect(token.Semicolon); err != nil {
			return nil, err
		}

		return &ast.ReturnStmt{Pos: pos, Expr: expr}, nil
	case token.Inline:
		p.next()

		t := p.next()
		if t.Kind != token.StringLit {
			return nil, errExpected("string literal", t)
		}

		if _, err := p.expect(token.Semicolon); err != nil {
			return nil, err
		}

		if err := checkBrackets(pos, t.Bytes); err != nil {
			return nil, err
		}

		return &ast.InlineStmt{Pos: pos, Code: t.Bytes}, nil
	case token.Identifier:
		name, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}

		if p.optional(token.LeftParen) {
			// function call
			args, err := parseList(p, (*Parser).parseExpr, token.RightParen)
			if err != nil {
				return nil, err
			}

			if _, err := p.expect(token.Semicolon); err != nil {
				return nil, err
			}

			return &ast.CallStmt{Name: name, Args: args}, nil
		}

		// assignment
		t := p.next()

		var kind ast.AssignOpKind
		switch t.Kind {
		case token.Eq:
			kind = ast.AssignEq
		case token.PlusEq:
			kind = ast.AssignAdd
		case token.MinusEq:
			kind = ast.AssignSub
		case token.StarEq:
			kind = ast.AssignMul
		case token.SlashEq:
			kind = ast.AssignDiv
		case token.PercentEq:
			kind = ast.AssignMod
		default:
			return nil, errExpected("function call or assignment", t)
		}

		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		if _, err := p.expect(token.Semicolon); err != nil {
			return nil, err
		}

		return &ast.Assign{Name: name, Op: ast.AssignOp{Pos: t.Pos, Kind: kind}, Expr: expr}, nil
	default:
		return nil, errExpected("statement", p.next())
	}
}

// checkBrackets validates that inline code has balanced `[` and `]`.
func checkBrackets(pos diag.Position, code []byte) error {
	depth := 0

	for _, c := range code {
		switch c {
		case '[':
			depth++
		case ']':
			if depth == 0 {
				return diag.Errorf(pos, "unexpected ']' in inline code")
			}

			depth--
		}
	}

	if depth > 0 {
		return diag.Errorf(pos, "missing ']' in inline code")
	}

	return nil
}

// parenExpr parses `( expr )`.
func (p *Parser) parenExpr() (ast.Expr, error) {
	if _, err := p.expect(token.LeftParen); err != nil {
		return nil, err
	}

	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(token.RightParen); err != nil {
		return nil, err
	}

	return expr, nil
}

func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parseExprBP(0)
}

// parseExprBP is the Pratt parsing loop.
// See https://matklad.github.io/2020/04/13/simple-but-powerful-pratt-parsing.html
func (p *Parser) parseExprBP(minBP int) (ast.Expr, error) {
	var lhs ast.Expr

	// prefix operators
	if op, rbp, ok := unaryBP(p.peek().Kind); ok {
		t := p.next()

		right, err := p.parseExprBP(rbp)
		if err != nil {
			return nil, err
		}

		lhs = &ast.Unary{
			Op:    ast.UnaryOp{Pos: t.Pos, Kind: op},
			Right: right,
		}
	} else {
		var err error

		lhs, err = p.parsePrimary()
		if err != nil {
			return nil, err
		}
	}

	// infix operators
	for {
		op, lbp, rbp, ok := binaryBP(p.peek().Kind)
		if !ok || lbp < minBP {
			return lhs, nil
		}

		t := p.next()

		rhs, err := p.parseExprBP(rbp)
		if err != nil {
			return nil, err
		}

		lhs = &ast.Binary{
			Left:  lhs,
			Op:    ast.BinaryOp{Pos: t.Pos, Kind: op},
			Right: rhs,
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	t := p.next()

	switch t.Kind {
	case token.Identifier:
		name := ast.Ident{Pos: t.Pos, Name: t.Name}

		if p.optional(token.LeftParen) {
			args, err := parseList(p, (*Parser).parseExpr, token.RightParen)
			if err != nil {
				return nil, err
			}

			return &ast.Call{Name: name, Args: args}, nil
		}

		return &ast.Var{Name: name}, nil
	case token.LeftParen:
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		if _, err := p.expect(token.RightParen); err != nil {
			return nil, err
		}

		return expr, nil
	case token.IntLit, token.CharLit:
		return &ast.Int{Pos: t.Pos, Value: t.Value}, nil
	case token.True:
		return &ast.Int{Pos: t.Pos, Value: 1}, nil
	case token.False:
		return &ast.Int{Pos: t.Pos, Value: 0}, nil
	default:
		return nil, errExpected("expression", t)
	}
}
