// Package token defines the lexical tokens of the language.
package token

import (
	"fmt"

	"github.com/TrueDoctor/c/compiler/diag"
)

type (
	// Kind enumerates the token kinds.
	Kind int

	// Token is a lexical token. Literal payloads live in Name, Value and
	// Bytes depending on the Kind; equality of tokens is by Kind only.
	Token struct {
		Kind Kind
		Pos  diag.Position

		Name  string // Identifier, Type
		Value byte   // IntLit, CharLit
		Bytes []byte // StringLit
	}
)

const (
	Identifier Kind = iota
	Type
	IntLit
	CharLit
	StringLit

	// keywords

	If
	Else
	While
	Repeat
	Return
	Inline
	And
	Or
	Not
	True
	False

	// separators

	LeftParen
	RightParen
	LeftBrace
	RightBrace
	Comma
	Semicolon

	// operators

	Plus
	Minus
	Star
	Slash
	Percent
	Eq
	PlusEq
	MinusEq
	StarEq
	SlashEq
	PercentEq
	EqEq
	NotEq
	Greater
	GreaterEq
	Less
	LessEq

	Eof
)

var kindNames = map[Kind]string{
	Identifier: "identifier",
	Type:       "type",
	IntLit:     "integer literal",
	CharLit:    "char literal",
	StringLit:  "string literal",
	If:         "`if`",
	Else:       "`else`",
	While:      "`while`",
	Repeat:     "`repeat`",
	Return:     "`return`",
	Inline:     "`inline`",
	And:        "`and`",
	Or:         "`or`",
	Not:        "`not`",
	True:       "`true`",
	False:      "`false`",
	LeftParen:  "`(`",
	RightParen: "`)`",
	LeftBrace:  "`{`",
	RightBrace: "`}`",
	Comma:      "`,`",
	Semicolon:  "`;`",
	Plus:       "`+`",
	Minus:      "`-`",
	Star:       "`*`",
	Slash:      "`/`",
	Percent:    "`%`",
	Eq:         "`=`",
	PlusEq:     "`+=`",
	MinusEq:    "`-=`",
	StarEq:     "`*=`",
	SlashEq:    "`/=`",
	PercentEq:  "`%=`",
	EqEq:       "`==`",
	NotEq:      "`!=`",
	Greater:    "`>`",
	GreaterEq:  "`>=`",
	Less:       "`<`",
	LessEq:     "`<=`",
	Eof:        "end of file",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

func (t Token) String() string {
	switch t.Kind {
	case Identifier:
		return fmt.Sprintf("identifier `%s`", t.Name)
	case Type:
		return fmt.Sprintf("type `%s`", t.Name)
	case IntLit, CharLit:
		return fmt.Sprintf("%v %d", t.Kind, t.Value)
	case StringLit:
		return fmt.Sprintf("%v %q", t.Kind, t.Bytes)
	default:
		return t.Kind.String()
	}
}
