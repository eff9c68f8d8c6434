package codegen

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/TrueDoctor/c/bf"
	"github.com/TrueDoctor/c/compiler/lexer"
	"github.com/TrueDoctor/c/compiler/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compile runs src through the whole pipeline without the prelude.
func compile(src string, optimize bool) (*Program, error) {
	ctx := context.Background()

	toks, err := lexer.Tokenize(ctx, []byte(src))
	if err != nil {
		return nil, err
	}

	tree, err := parser.Parse(ctx, toks, "test")
	if err != nil {
		return nil, err
	}

	return Generate(ctx, tree, nil, optimize)
}

func mustCompile(t *testing.T, src string) *Program {
	t.Helper()

	prog, err := compile(src, false)
	require.NoError(t, err, "%s", src)

	return prog
}

// runSrc compiles src and executes the result on a zero tape.
func runSrc(t *testing.T, src, input string) string {
	t.Helper()

	prog := mustCompile(t, src)

	var out bytes.Buffer

	err := bf.Run(context.Background(), prog.Code, strings.NewReader(input), &out)
	require.NoError(t, err, "%s", src)

	return out.String()
}

// raw converts a cell value to the exact byte the interpreter writes.
// string(v) would encode values >= 128 as two byte runes.
func raw(v byte) string {
	return string([]byte{v})
}

func TestIntLiteral(t *testing.T) {
	for _, v := range []byte{0, 1, 42, 255} {
		src := fmt.Sprintf(`int c = %d; inline "<.>";`, v)
		assert.Equal(t, raw(v), runSrc(t, src, ""), "%d", v)
	}
}

var sampleBytes = []byte{0, 1, 2, 3, 5, 7, 10, 17, 42, 99, 100, 127, 128, 200, 254, 255}

func TestBinaryOperators(t *testing.T) {
	ops := []struct {
		op   string
		eval func(a, b byte) byte
	}{
		{"+", func(a, b byte) byte { return a + b }},
		{"-", func(a, b byte) byte { return a - b }},
		{"*", func(a, b byte) byte { return a * b }},
		{"/", func(a, b byte) byte { return a / b }},
		{"%", func(a, b byte) byte { return a % b }},
		{"==", func(a, b byte) byte { return boolByte(a == b) }},
		{"!=", func(a, b byte) byte { return boolByte(a != b) }},
		{"<", func(a, b byte) byte { return boolByte(a < b) }},
		{"<=", func(a, b byte) byte { return boolByte(a <= b) }},
		{">", func(a, b byte) byte { return boolByte(a > b) }},
		{">=", func(a, b byte) byte { return boolByte(a >= b) }},
		{"and", func(a, b byte) byte { return boolByte(a != 0 && b != 0) }},
		{"or", func(a, b byte) byte { return boolByte(a != 0 || b != 0) }},
	}

	for _, op := range ops {
		op := op

		t.Run(op.op, func(t *testing.T) {
			t.Parallel()

			for _, a := range sampleBytes {
				for _, b := range sampleBytes {
					if b == 0 && (op.op == "/" || op.op == "%") {
						continue
					}

					src := fmt.Sprintf(`int c = %d %s %d; inline "<.>";`, a, op.op, b)
					want := op.eval(a, b)

					got := runSrc(t, src, "")
					require.Equal(t, raw(want), got, "%d %s %d", a, op.op, b)
				}
			}
		})
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}

	return 0
}

func TestUnaryOperators(t *testing.T) {
	for _, tc := range []struct {
		src  string
		want byte
	}{
		{"+7", 7},
		{"-0", 0},
		{"-1", 255},
		{"-5", 251},
		{"not 0", 1},
		{"not 1", 0},
		{"not 5", 0},
		{"not not 42", 1},
		{"- -3", 3},
	} {
		src := fmt.Sprintf(`int c = %s; inline "<.>";`, tc.src)
		assert.Equal(t, raw(tc.want), runSrc(t, src, ""), "%s", tc.src)
	}
}

func TestCompoundAssign(t *testing.T) {
	ops := []struct {
		op   string
		eval func(a, b byte) byte
	}{
		{"=", func(a, b byte) byte { return b }},
		{"+=", func(a, b byte) byte { return a + b }},
		{"-=", func(a, b byte) byte { return a - b }},
		{"*=", func(a, b byte) byte { return a * b }},
		{"/=", func(a, b byte) byte { return a / b }},
		{"%=", func(a, b byte) byte { return a % b }},
	}

	for _, op := range ops {
		op := op

		t.Run(op.op, func(t *testing.T) {
			t.Parallel()

			for _, a := range sampleBytes {
				for _, b := range sampleBytes {
					if b == 0 && (op.op == "/=" || op.op == "%=") {
						continue
					}

					src := fmt.Sprintf(`int a = %d; a %s %d; inline "<.>";`, a, op.op, b)
					want := op.eval(a, b)

					got := runSrc(t, src, "")
					require.Equal(t, raw(want), got, "a = %d; a %s %d", a, op.op, b)
				}
			}
		})
	}
}

// Distant variables exercise the pointer runs in the assignment
// templates.
func TestAssignToDistantVariable(t *testing.T) {
	src := `
		int a = 3;
		int b = 0;
		int c = 0;
		int d = 0;
		a *= 5;
		a += 27;
		inline "<<<<.>>>>";
	`
	assert.Equal(t, raw(42), runSrc(t, src, ""))
}

func TestVariableRead(t *testing.T) {
	// reading must not destroy the source
	src := `
		int a = 42;
		int b = a;
		int c = a;
		inline "<<<.>.>.>";
	`
	assert.Equal(t, "\x2a\x2a\x2a", runSrc(t, src, ""))
}

// After an expression statement the result sits at the head cell and
// every scratch cell to the right is zero again.
func TestTapeDiscipline(t *testing.T) {
	for _, expr := range []string{
		"5 * 7",
		"255 / 7",
		"200 % 11",
		"3 < 7",
		"12 and 0",
		"not 3",
		"-(2 * 3)",
		"(1 + 2) * (3 + 4)",
	} {
		src := fmt.Sprintf(`int r = %s; inline "<.>.>.>.>.>.<<<<<";`, expr)
		out := runSrc(t, src, "")

		require.Len(t, out, 6, "%s", expr)
		assert.Equal(t, "\x00\x00\x00\x00\x00", out[1:], "%s leaks scratch cells", expr)
	}
}

// netMove is the sum of `>` and `<` outside of loops.
func netMove(code string) int {
	depth, net := 0, 0

	for _, c := range code {
		switch c {
		case '[':
			depth++
		case ']':
			depth--
		case '>':
			if depth == 0 {
				net++
			}
		case '<':
			if depth == 0 {
				net--
			}
		}
	}

	return net
}

// Function bodies deallocate everything they allocate; top level
// keeps one cell per declared variable.
func TestScopeBalance(t *testing.T) {
	prog := mustCompile(t, `
		int add(int a, int b) {
			int c = a + b;
			return c;
		}
		void noop() {}
		int x = add(1, 2);
		{
			int y = x;
			int z = y * 2;
		}
		if (x) { x += 1; } else { x -= 1; }
		while (x > 100) x -= 1;
	`)

	for name, f := range prog.Functions {
		assert.Equal(t, 0, netMove(f.Code), "function %s", name)
	}

	// one top-level declaration stays allocated
	assert.Equal(t, 1, netMove(prog.Code))
}

func TestIf(t *testing.T) {
	for _, tc := range []struct {
		cond string
		want byte
	}{
		{"1", 1},
		{"0", 0},
		{"200", 1},
	} {
		src := fmt.Sprintf(`int x = 0; if (%s) { x = 1; } inline "<.>";`, tc.cond)
		assert.Equal(t, raw(tc.want), runSrc(t, src, ""), "if (%s)", tc.cond)
	}
}

func TestIfElse(t *testing.T) {
	for _, tc := range []struct {
		cond string
		want byte
	}{
		{"1", 10},
		{"0", 20},
		{"42", 10},
	} {
		src := fmt.Sprintf(`int x = 0; if (%s) { x = 10; } else { x = 20; } inline "<.>";`, tc.cond)
		assert.Equal(t, raw(tc.want), runSrc(t, src, ""), "if (%s)", tc.cond)
	}
}

func TestWhile(t *testing.T) {
	src := `
		int x = 5;
		int y = 0;
		while (x) {
			x -= 1;
			y += 10;
		}
		inline "<.>";
	`
	assert.Equal(t, raw(50), runSrc(t, src, ""))

	// condition false on entry
	src = `int y = 9; while (y < 9) { y += 1; } inline "<.>";`
	assert.Equal(t, raw(9), runSrc(t, src, ""))
}

func TestRepeat(t *testing.T) {
	src := `int x; x = 5; repeat (3) { x -= 1; } inline "<.>";`
	assert.Equal(t, raw(2), runSrc(t, src, ""))

	src = `int x = 7; repeat (0) { x = 0; } inline "<.>";`
	assert.Equal(t, raw(7), runSrc(t, src, ""))

	src = `int n = 4; int x = 0; repeat (n + 1) { x += 2; } inline "<.>";`
	assert.Equal(t, raw(10), runSrc(t, src, ""))
}

func TestShadowing(t *testing.T) {
	src := `
		void emit(int c) { inline "<.>"; }
		int x = 1;
		{
			int x = 2;
			emit(x);
		}
		emit(x);
	`
	assert.Equal(t, "\x02\x01", runSrc(t, src, ""))
}

func TestCalls(t *testing.T) {
	src := `
		int double(int a) { return a + a; }
		int r = double(21);
		inline "<.>";
	`
	assert.Equal(t, raw(42), runSrc(t, src, ""))

	src = `
		int sub(int a, int b) { return a - b; }
		int r = sub(50, 8);
		inline "<.>";
	`
	assert.Equal(t, raw(42), runSrc(t, src, ""))

	// nested calls
	src = `
		int inc(int a) { return a + 1; }
		int double(int a) { return a + a; }
		int r = double(inc(inc(19)));
		inline "<.>";
	`
	assert.Equal(t, raw(42), runSrc(t, src, ""))

	// functions calling functions
	src = `
		void emit(int c) { inline "<.>"; }
		void twice(int c) { emit(c); emit(c); }
		twice(65);
	`
	assert.Equal(t, "AA", runSrc(t, src, ""))
}

func TestReturnShortCircuits(t *testing.T) {
	// statements after a return are not compiled, undeclared
	// variables after it are never reached
	src := `
		int f() {
			return 3;
			undeclared = 1;
		}
		int r = f();
		inline "<.>";
	`
	assert.Equal(t, "\x03", runSrc(t, src, ""))
}

func TestInlineVerbatim(t *testing.T) {
	prog := mustCompile(t, `inline "+++.";`)
	assert.Contains(t, prog.Code, "+++.")
	assert.Equal(t, "\x03", runSrc(t, `inline "+++.";`, ""))
}

func TestGetChar(t *testing.T) {
	assert.Equal(t, "A", runSrc(t, `inline ",.";`, "A"))
}

func TestSemanticErrors(t *testing.T) {
	for _, tc := range []struct {
		src string
		msg string
	}{
		{"int f() {}", "function `f` has no `return` statement"},
		{"void f(){} void f(){}", "function `f` is defined multiple times"},
		{"int f(int a){ return f(1); }", "recursive function `f`"},
		{"void f(void x) {}", "parameter `x` has type `void`"},
		{"void f(int a, int a) {}", "parameter `a` is declared multiple times"},
		{"void x;", "variable `x` has type `void`"},
		{"int x; int x;", "variable `x` is declared multiple times"},
		{"x = 1;", "undeclared variable `x`"},
		{"int y = x;", "undeclared variable `x`"},
		{"f();", "undefined function `f`"},
		{"void f(int a){} f();", "expected 1 arguments, got 0"},
		{"void f(){} int x = f();", "function `f` has return type void"},
		{"return 1;", "invalid `return` statement"},
		{"int f() { if (1) { return 1; } }", "invalid `return` statement"},
		{"void f() { return 1; }", "unexpected `return` statement in function returning `void`"},
	} {
		_, err := compile(tc.src, false)
		require.Error(t, err, "%s", tc.src)
		assert.Contains(t, err.Error(), tc.msg, "%s", tc.src)
	}
}

func TestVoidFunctionCompiles(t *testing.T) {
	prog := mustCompile(t, "void f() {}")
	f, ok := prog.Functions["f"]
	require.True(t, ok)
	assert.True(t, f.Void)
	assert.Equal(t, 0, f.Arity)
}

// Shadowing in an inner scope is not a redeclaration, redeclaring in
// the same scope is.
func TestScopedRedeclaration(t *testing.T) {
	_, err := compile("int x; { int x; }", false)
	assert.NoError(t, err)

	_, err = compile("{ int x; int x; }", false)
	assert.Error(t, err)
}

func TestOptimizedEquivalence(t *testing.T) {
	srcs := []string{
		`int x = 5; int y = 0; while (x) { x -= 1; y += 7; } inline "<.>";`,
		`int r = 17 * 11 % 100; inline "<.>";`,
		`int inc(int a) { return a + 1; } int r = inc(41); inline "<.>";`,
		`int x = 0; if (3 > 2) { x = 1; } else { x = 2; } inline "<.>";`,
	}

	for _, src := range srcs {
		plain := mustCompile(t, src)

		optimized, err := compile(src, true)
		require.NoError(t, err)

		var a, b bytes.Buffer

		require.NoError(t, bf.Run(context.Background(), plain.Code, strings.NewReader(""), &a))
		require.NoError(t, bf.Run(context.Background(), optimized.Code, strings.NewReader(""), &b))

		assert.Equal(t, a.String(), b.String(), "%s", src)
		assert.LessOrEqual(t, len(optimized.Code), len(plain.Code), "%s", src)
	}
}

func TestStdSeedsFunctionTable(t *testing.T) {
	std := mustCompile(t, `void emit(int c) { inline "<.>"; }`)

	ctx := context.Background()

	toks, err := lexer.Tokenize(ctx, []byte("emit(66);"))
	require.NoError(t, err)

	tree, err := parser.Parse(ctx, toks, "user")
	require.NoError(t, err)

	prog, err := Generate(ctx, tree, std, false)
	require.NoError(t, err)

	var out bytes.Buffer

	require.NoError(t, bf.Run(ctx, prog.Code, strings.NewReader(""), &out))
	assert.Equal(t, "B", out.String())
}
