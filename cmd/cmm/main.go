package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/TrueDoctor/c/bf"
	"github.com/TrueDoctor/c/compiler"
	"github.com/TrueDoctor/c/compiler/codegen"
	"github.com/TrueDoctor/c/compiler/diag"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

func main() {
	app := &cli.Command{
		Name:        "cmm",
		Description: "cmm compiles a small C-like language to brainfuck",
		Action:      run,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("debug", false, "print the ast and the compiled program"),
			cli.NewFlag("optimize,o", false, "optimize the generated code"),
			cli.NewFlag("run,r", false, "run the compiled program"),
			cli.NewFlag("no-std", false, "compile without the standard prelude"),

			cli.HelpFlag,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func run(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	opts := compiler.Options{
		Debug:    c.Bool("debug"),
		Optimize: c.Bool("optimize"),
		Run:      c.Bool("run"),
		NoStd:    c.Bool("no-std"),
	}

	if len(c.Args) == 0 {
		return repl(ctx, opts)
	}

	for _, a := range c.Args {
		prog, err := compiler.CompileFile(ctx, a, opts)
		if err != nil {
			// compile errors are reported and yield no program,
			// only io failures change the exit code
			var ce diag.Error
			if errors.As(err, &ce) {
				fmt.Fprintf(os.Stderr, "[Error] %v\n", ce)
				continue
			}

			return errors.Wrap(err, "compile %v", a)
		}

		err = execute(ctx, prog, opts)
		if err != nil {
			return errors.Wrap(err, "run %v", a)
		}
	}

	return nil
}

// execute runs the compiled program, or prints the brainfuck text
// when running was not requested.
func execute(ctx context.Context, prog *codegen.Program, opts compiler.Options) error {
	if !opts.Run {
		fmt.Printf("%s\n", prog.Code)
		return nil
	}

	return bf.Run(ctx, prog.Code, os.Stdin, os.Stdout)
}

// repl compiles one line at a time as a program named `<repl>`.
// It keeps looping on compile errors.
func repl(ctx context.Context, opts compiler.Options) error {
	sc := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		if !sc.Scan() {
			break
		}

		prog, err := compiler.Compile(ctx, "<repl>", sc.Bytes(), opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[Error] %v\n", err)
			continue
		}

		err = execute(ctx, prog, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[Error] %v\n", err)
		}
	}

	return sc.Err()
}
