// Package interp is a small restricted statement/expression interpreter
// standing in for an embedded scripting engine. No embeddable engine
// (goja/starlark/yaegi/tengo/lua) was available to build on, so this
// package implements, on the standard library only, a DSL whose surface
// matches what the generated analysis fragments actually need: variable
// assignment, arithmetic/string/collection expressions, indexing and
// slicing, if/for control flow, and a handful of allowlisted "module"
// namespaces (re, json, math, string, collections, functools, itertools)
// backed by regexp/encoding/json/math/strings. It is not a Python
// implementation; it accepts the subset of Python-like syntax the
// policy's generated fragments use.
package interp

import "fmt"

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokNewline
	TokIdent
	TokNumber
	TokString
	TokFString
	TokOp
	TokIndent
	TokDedent
	TokKeyword
)

// Token is one lexical unit with its source line for error messages.
type Token struct {
	Kind  TokenKind
	Text  string
	Line  int
	Col   int
}

func (t Token) String() string {
	return fmt.Sprintf("%v(%q)@%d", t.Kind, t.Text, t.Line)
}

var keywords = map[string]bool{
	"if": true, "elif": true, "else": true, "for": true, "in": true,
	"while": true, "and": true, "or": true, "not": true, "True": true,
	"False": true, "None": true, "def": true, "return": true, "break": true,
	"continue": true, "import": true, "from": true, "as": true, "pass": true,
}
