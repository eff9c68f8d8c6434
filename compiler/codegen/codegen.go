// Package codegen translates the AST into brainfuck, doing all
// semantic analysis along the way.
//
// The generator keeps a stack machine view of the tape: every
// variable lives at a fixed cell, expressions leave their result at
// the cell the stack pointer names, and between statements the head
// sits at the stack pointer. Cells assume an unsigned 8-bit wrapping
// brainfuck implementation.
package codegen

import (
	"context"
	"strings"

	"github.com/TrueDoctor/c/bf"
	"github.com/TrueDoctor/c/compiler/ast"
	"github.com/TrueDoctor/c/compiler/diag"
	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"
)

type (
	// Program is a compiled program.
	Program struct {
		Name      string
		Functions map[string]Function
		Code      string
	}

	// Function is a compiled function. Its code assumes the head is
	// at the first parameter cell on entry and restores it there,
	// with the return value in that cell for non-void functions.
	Function struct {
		Void  bool
		Arity int
		Code  string
	}

	gen struct {
		scopes   []map[string]int
		funcs    map[string]Function
		stackPtr int
		code     []byte
		current  string // enclosing function, for recursion detection
	}
)

// Operator templates. On entry the left operand is one cell left of
// the head, the right operand under the head. They leave the result
// in the left cell with the head unmoved, scratch cells to the right
// are left zero.
var binTemplates = map[ast.BinaryOpKind]string{
	ast.Add: "[-<+>]",
	ast.Sub: "[-<->]",
	ast.Mul: ">[-]>[-]<<<[->>+<<]>[->[->+<<<+>>]>[-<+>]<<]>[-]<",
	ast.Div: ">[-]+>[-]>[-]>[-]<<<<<[->-[>+>>]>[[-<+>]+>+>>]<<<<<]>>>[-<<<+>>>]<<[-]>[-]<",
	ast.Mod: ">[-]+>[-]>[-]>[-]<<<<<[->-[>+>>]>[[-<+>]+>>>]<<<<<]>>-[-<<+>>]<[-]",
	ast.Eq:  "<[->-<]+>[<->[-]]",
	ast.Ne:  "<[->-<]>[<+>[-]]",
	ast.Gt:  ">[-]>[-]<<[-<[->>+>+<<<]>>[-<<+>>]>[<<<->>>[-]]<<]<[>+<[-]]>[-<+>]",
	ast.Ge:  ">[-]>[-]<<<[->[->+>+<<]>[-<+>]>[<<->>[-]]<<<]+>[<->[-]]",
	ast.Lt:  ">[-]>[-]<<<[->[->+>+<<]>[-<+>]>[<<->>[-]]<<<]>[<+>[-]]",
	ast.Le:  ">[-]>[-]<<[-<[->>+>+<<<]>>[-<<+>>]>[<<<->>>[-]]<<]<[>+<[-]]+>[-<->]",
	ast.And: ">[-]<[<[>>+<<[-]]>[-]]<[-]>>[-<<+>>]<",
	ast.Or:  ">[-]<[>+<[-]]<[>>[-]+<<[-]]>>[-<<+>>]<",
}

// Generate compiles prog, seeding the function table from std when
// it is non-nil. With optimize set every function body and the
// top-level code are run through the peephole optimizer.
func Generate(ctx context.Context, prog *ast.Program, std *Program, optimize bool) (_ *Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "generate code", "name", prog.Name, "caller", loc.Caller(1))
	defer tr.Finish("err", &err)

	g := &gen{
		scopes: []map[string]int{{}},
		funcs:  map[string]Function{},
	}

	if std != nil {
		for name, f := range std.Functions {
			g.funcs[name] = f
		}
	}

	for _, item := range prog.Items {
		switch item := item.(type) {
		case *ast.Function:
			err = g.function(item)
		case ast.Stmt:
			err = g.statement(item)
		default:
			return nil, errors.New("unsupported item: %T", item)
		}

		if err != nil {
			return nil, err
		}
	}

	code := string(g.code)

	if optimize {
		for name, f := range g.funcs {
			f.Code, err = bf.Optimize(f.Code)
			if err != nil {
				return nil, errors.Wrap(err, "optimize function %v", name)
			}

			g.funcs[name] = f
		}

		code, err = bf.Optimize(code)
		if err != nil {
			return nil, errors.Wrap(err, "optimize")
		}
	}

	tr.Printw("generated", "functions", len(g.funcs), "code_bytes", len(code))

	return &Program{
		Name:      prog.Name,
		Functions: g.funcs,
		Code:      code,
	}, nil
}

// variables

func (g *gen) emit(s string) {
	g.code = append(g.code, s...)
}

// declared reports whether name is declared in the innermost scope.
func (g *gen) declared(name string) bool {
	_, ok := g.scopes[len(g.scopes)-1][name]
	return ok
}

// defineVar binds name to the current stack cell and allocates it.
func (g *gen) defineVar(name string) {
	g.scopes[len(g.scopes)-1][name] = g.stackPtr
	g.stackPtr++
	g.emit(">")
}

// lookupVar searches scopes innermost to outermost.
func (g *gen) lookupVar(name string) (int, bool) {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if addr, ok := g.scopes[i][name]; ok {
			return addr, true
		}
	}

	return 0, false
}

func (g *gen) enterScope() {
	g.scopes = append(g.scopes, map[string]int{})
}

// exitScope deallocates the innermost scope, moving the head back
// one cell per local declared in it.
func (g *gen) exitScope() {
	n := len(g.scopes[len(g.scopes)-1])
	g.scopes = g.scopes[:len(g.scopes)-1]
	g.stackPtr -= n
	g.emit(strings.Repeat("<", n))
}

// generate

// function compiles a function definition into a self-contained
// snippet and stores it in the function table. Statements after a
// `return` are not compiled.
func (g *gen) function(f *ast.Function) error {
	name := f.Name.Name
	if _, ok := g.funcs[name]; ok {
		return diag.Errorf(f.Name.Pos, "function `%s` is defined multiple times", name)
	}

	oldScopes, oldCode := g.scopes, g.code
	g.scopes = []map[string]int{{}}
	g.code = nil

	for _, param := range f.Params {
		if param.Type.Name == "void" {
			return diag.Errorf(param.Type.Pos, "parameter `%s` has type `void`", param.Name.Name)
		}

		if g.declared(param.Name.Name) {
			return diag.Errorf(param.Type.Pos, "parameter `%s` is declared multiple times", param.Name.Name)
		}

		g.defineVar(param.Name.Name)
	}

	g.current = name
	void := f.ReturnType.Name == "void"
	hasReturn := false

	for _, stmt := range f.Body {
		ret, ok := stmt.(*ast.ReturnStmt)
		if !ok {
			if err := g.statement(stmt); err != nil {
				return err
			}

			continue
		}

		if void {
			return diag.Errorf(ret.Pos, "unexpected `return` statement in function returning `void`")
		}

		if err := g.expr(ret.Expr); err != nil {
			return err
		}

		// move the return value down to the first frame cell
		if n := len(g.scopes[len(g.scopes)-1]); n > 0 {
			left := strings.Repeat("<", n)
			right := strings.Repeat(">", n)
			g.emit(left + "[-]" + right + "[-" + left + "+" + right + "]")
		}

		hasReturn = true

		break
	}

	g.current = ""

	if !hasReturn && !void {
		return diag.Errorf(f.Name.Pos, "function `%s` has no `return` statement", name)
	}

	g.exitScope()

	g.funcs[name] = Function{Void: void, Arity: len(f.Params), Code: string(g.code)}
	g.scopes, g.code = oldScopes, oldCode

	return nil
}

func (g *gen) statement(stmt ast.Stmt) error {
	switch stmt := stmt.(type) {
	case *ast.DeclStmt:
		if stmt.Type.Name == "void" {
			return diag.Errorf(stmt.Type.Pos, "variable `%s` has type `void`", stmt.Name.Name)
		}

		if g.declared(stmt.Name.Name) {
			return diag.Errorf(stmt.Type.Pos, "variable `%s` is declared multiple times", stmt.Name.Name)
		}

		if stmt.Init != nil {
			if err := g.expr(stmt.Init); err != nil {
				return err
			}
		}

		g.defineVar(stmt.Name.Name)
	case *ast.Block:
		g.enterScope()

		for _, s := range stmt.Stmts {
			if err := g.statement(s); err != nil {
				return err
			}
		}

		g.exitScope()
	case *ast.If:
		if stmt.Else == nil {
			// {condition}[{statement}[-]]
			if err := g.expr(stmt.Cond); err != nil {
				return err
			}

			g.emit("[")

			if err := g.statement(stmt.Then); err != nil {
				return err
			}

			g.emit("[-]]")

			break
		}

		// [-]+>{condition}[{statement}<->[-]]<[{else_statement}[-]]
		g.emit("[-]+>")
		g.stackPtr++

		if err := g.expr(stmt.Cond); err != nil {
			return err
		}

		g.emit("[")

		if err := g.statement(stmt.Then); err != nil {
			return err
		}

		g.stackPtr--
		g.emit("<->[-]]<[")

		if err := g.statement(stmt.Else); err != nil {
			return err
		}

		g.emit("[-]]")
	case *ast.While:
		// {condition}[{statement}{condition}]
		//
		// The condition is generated once into a side buffer and
		// spliced in twice.
		oldCode := g.code
		g.code = nil

		if err := g.expr(stmt.Cond); err != nil {
			return err
		}

		cond := string(g.code)
		g.code = oldCode

		g.emit(cond)
		g.emit("[")

		if err := g.statement(stmt.Body); err != nil {
			return err
		}

		g.emit(cond)
		g.emit("]")
	case *ast.RepeatStmt:
		// {expr}[>{statement}<-]
		if err := g.expr(stmt.Count); err != nil {
			return err
		}

		g.emit("[>")
		g.stackPtr++

		if err := g.statement(stmt.Body); err != nil {
			return err
		}

		g.stackPtr--
		g.emit("<-]")
	case *ast.ReturnStmt:
		return diag.Errorf(stmt.Pos, "invalid `return` statement")
	case *ast.InlineStmt:
		g.emit(string(stmt.Code))
	case *ast.Assign:
		addr, ok := g.lookupVar(stmt.Name.Name)
		if !ok {
			return diag.Errorf(stmt.Name.Pos, "undeclared variable `%s`", stmt.Name.Name)
		}

		left := strings.Repeat("<", g.stackPtr-addr)
		right := strings.Repeat(">", g.stackPtr-addr)

		if err := g.expr(stmt.Expr); err != nil {
			return err
		}

		switch stmt.Op.Kind {
		case ast.AssignEq:
			g.emit(left + "[-]" + right + "[-" + left + "+" + right + "]")
		case ast.AssignAdd:
			g.emit("[-" + left + "+" + right + "]")
		case ast.AssignSub:
			g.emit("[-" + left + "-" + right + "]")
		case ast.AssignMul:
			g.emit(">[-]>[-]<<" + left + "[-" + right + ">+<" + left + "]" + right +
				"[->[->+<<" + left + "+" + right + ">]>[-<+>]<<]")
		case ast.AssignDiv:
			g.emit(">[-]+>[-]>[-]>[-]<<<<" + left + "[-" + right + "-[>+>>]>[[-<+>]+>+>>]<<<<" +
				left + "]" + right + ">>[-<<" + left + "+" + right + ">>]<<")
		case ast.AssignMod:
			g.emit(">[-]+>[-]>[-]>[-]<<<<" + left + "[-" + right + "-[>+>>]>[[-<+>]+>>>]<<<<" +
				left + "]" + right + ">-[-<" + left + "+" + right + ">]<")
		}
	case *ast.CallStmt:
		return g.call(stmt.Name, stmt.Args, false)
	default:
		return errors.New("unsupported statement: %T", stmt)
	}

	return nil
}

func (g *gen) expr(e ast.Expr) error {
	switch e := e.(type) {
	case *ast.Binary:
		if err := g.expr(e.Left); err != nil {
			return err
		}

		g.emit(">")
		g.stackPtr++

		if err := g.expr(e.Right); err != nil {
			return err
		}

		g.stackPtr--
		g.emit(binTemplates[e.Op.Kind])
		g.emit("<")
	case *ast.Unary:
		switch e.Op.Kind {
		case ast.UnaryPlus:
			return g.expr(e.Right)
		case ast.UnaryMinus:
			// [-]>{right}[-<->]<
			g.emit("[-]>")
			g.stackPtr++

			if err := g.expr(e.Right); err != nil {
				return err
			}

			g.stackPtr--
			g.emit("[-<->]<")
		case ast.UnaryNot:
			// [-]+>{right}[<->[-]]<
			g.emit("[-]+>")
			g.stackPtr++

			if err := g.expr(e.Right); err != nil {
				return err
			}

			g.stackPtr--
			g.emit("[<->[-]]<")
		}
	case *ast.Call:
		return g.call(e.Name, e.Args, true)
	case *ast.Var:
		addr, ok := g.lookupVar(e.Name.Name)
		if !ok {
			return diag.Errorf(e.Name.Pos, "undeclared variable `%s`", e.Name.Name)
		}

		left := strings.Repeat("<", g.stackPtr-addr)
		right := strings.Repeat(">", g.stackPtr-addr)

		// copy the variable through the cell above the stack top,
		// restoring the source
		g.emit("[-]>[-]<" + left + "[-" + right + "+>+<" + left + "]" + right +
			">[-<" + left + "+" + right + ">]<")
	case *ast.Int:
		g.emit("[-]")
		g.emit(strings.Repeat("+", int(e.Value)))
	default:
		return errors.New("unsupported expr: %T", e)
	}

	return nil
}

// call emits argument evaluation and splices the callee body. The
// callee consumes its parameter cells and leaves the head, and for
// non-void functions the return value, at the first of them.
func (g *gen) call(name ast.Ident, args []ast.Expr, asExpr bool) error {
	if g.current != "" && g.current == name.Name {
		return diag.Errorf(name.Pos, "recursive function `%s`", name.Name)
	}

	fn, ok := g.funcs[name.Name]
	if !ok {
		return diag.Errorf(name.Pos, "undefined function `%s`", name.Name)
	}

	if asExpr && fn.Void {
		return diag.Errorf(name.Pos, "function `%s` has return type void", name.Name)
	}

	if len(args) != fn.Arity {
		return diag.Errorf(name.Pos, "expected %d arguments, got %d", fn.Arity, len(args))
	}

	for _, arg := range args {
		if err := g.expr(arg); err != nil {
			return err
		}

		g.emit(">")
		g.stackPtr++
	}

	g.emit(strings.Repeat("<", len(args)))
	g.stackPtr -= len(args)

	g.emit(fn.Code)

	return nil
}
