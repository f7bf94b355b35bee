// Package parser compiles query strings into an abstract syntax tree over a
// closed set of node variants. Grammar, lowest precedence first:
//
//	query    := orExpr
//	orExpr   := andExpr (OR andExpr)*
//	andExpr  := notExpr (AND? notExpr)*     adjacency is an implicit AND
//	notExpr  := [NOT] atom
//	atom     := field ':' value | value | '(' query ')'
//	value    := "quoted phrase" | prefix* | term
//
// Keywords are case-insensitive. Only trailing '*' wildcards are supported.
package parser

import "github.com/inboxforge/inboxforge/internal/index"

// Node is one query AST node: Term, Phrase, Wildcard, And, Or, Not, or
// FieldScope.
type Node interface {
	isNode()
}

// Term matches documents containing one analyzed term.
type Term struct {
	Value string
}

// Phrase matches documents where Terms appear contiguously, in order,
// within a single field.
type Phrase struct {
	Terms []string
}

// Wildcard matches every dictionary term starting with Prefix.
type Wildcard struct {
	Prefix string
}

type And struct {
	Children []Node
}

type Or struct {
	Children []Node
}

type Not struct {
	Expr Node
}

// FieldScope restricts its subtree to one field, overriding any outer
// field filter.
type FieldScope struct {
	Field index.Field
	Expr  Node
}

func (Term) isNode()       {}
func (Phrase) isNode()     {}
func (Wildcard) isNode()   {}
func (And) isNode()        {}
func (Or) isNode()         {}
func (Not) isNode()        {}
func (FieldScope) isNode() {}
