// Package compiler wires the pipeline together:
// lexer -> parser -> code generator.
package compiler

import (
	"context"
	_ "embed"
	"os"

	"github.com/TrueDoctor/c/compiler/codegen"
	"github.com/TrueDoctor/c/compiler/lexer"
	"github.com/TrueDoctor/c/compiler/parser"
	"github.com/sanity-io/litter"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// std is the standard prelude, compiled before user code.
//
//go:embed std.cmm
var std []byte

// Options control a single compilation.
type Options struct {
	// Debug prints the AST and the compiled program structure.
	Debug bool
	// Optimize runs the peephole optimizer over the generated code.
	Optimize bool
	// Run executes the compiled program.
	Run bool
	// NoStd compiles without the standard prelude.
	NoStd bool
}

// CompileFile reads and compiles a source file.
func CompileFile(ctx context.Context, name string, opts Options) (*codegen.Program, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Compile(ctx, name, text, opts)
}

// Compile compiles a program named name. The prelude is compiled
// first by a recursive invocation with NoStd forced on and its
// function table seeds the main compilation.
func Compile(ctx context.Context, name string, text []byte, opts Options) (_ *codegen.Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile program", "name", name)
	defer tr.Finish("err", &err)

	toks, err := lexer.Tokenize(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "tokenize")
	}

	tree, err := parser.Parse(ctx, toks, name)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	if opts.Debug {
		litter.Dump(tree)
	}

	var prelude *codegen.Program

	if !opts.NoStd {
		prelude, err = Compile(ctx, "std", std, Options{NoStd: true})
		if err != nil {
			return nil, errors.Wrap(err, "compile std")
		}
	}

	prog, err := codegen.Generate(ctx, tree, prelude, opts.Optimize)
	if err != nil {
		return nil, errors.Wrap(err, "generate code")
	}

	if opts.Debug {
		litter.Dump(prog)
	}

	return prog, nil
}
