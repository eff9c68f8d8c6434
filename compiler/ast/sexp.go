package ast

import (
	"fmt"
	"strings"
)

// Sexp renders an expression as an S-expression, for example
// `(+ a (* 2 b))`. It is the compact oracle used by parser tests.
func Sexp(e Expr) string {
	var b strings.Builder

	sexp(&b, e)

	return b.String()
}

func sexp(b *strings.Builder, e Expr) {
	switch e := e.(type) {
	case *Binary:
		list(b, e.Op.Kind.String(), e.Left, e.Right)
	case *Unary:
		list(b, e.Op.Kind.String(), e.Right)
	case *Call:
		list(b, e.Name.Name, e.Args...)
	case *Var:
		b.WriteString(e.Name.Name)
	case *Int:
		fmt.Fprintf(b, "%d", e.Value)
	default:
		panic(fmt.Sprintf("unsupported expr: %T", e))
	}
}

func list(b *strings.Builder, head string, args ...Expr) {
	b.WriteByte('(')
	b.WriteString(head)

	for _, a := range args {
		b.WriteByte(' ')
		sexp(b, a)
	}

	b.WriteByte(')')
}
