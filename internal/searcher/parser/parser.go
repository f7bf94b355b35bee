package parser

import (
	"strings"

	"github.com/inboxforge/inboxforge/internal/analyzer"
	"github.com/inboxforge/inboxforge/internal/index"
	apperrors "github.com/inboxforge/inboxforge/pkg/errors"
)

// Parse compiles a query string into its AST. Malformed input returns
// ErrQuerySyntax carrying the byte offset of the offending character;
// scoping to a field outside the indexed set returns ErrUnknownField.
func Parse(query string) (Node, error) {
	tokens, err := lex(query)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	if p.peek().kind == tkEOF {
		return nil, apperrors.Syntax(0, "empty query")
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tkEOF {
		return nil, apperrors.Syntax(tok.offset, "unexpected %q", tok.text)
	}
	return node, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tkEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.peek().isKeyword("OR") {
		op := p.next()
		if !p.startsAtom(p.peek()) {
			return nil, apperrors.Syntax(op.offset, "OR is missing a right operand")
		}
		child, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 1 {
		return first, nil
	}
	return Or{Children: children}, nil
}

func (p *parser) parseAnd() (Node, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for {
		tok := p.peek()
		switch {
		case tok.isKeyword("AND"):
			op := p.next()
			if !p.startsAtom(p.peek()) {
				return nil, apperrors.Syntax(op.offset, "AND is missing a right operand")
			}
		case tok.isKeyword("OR"), !p.startsAtom(tok):
			if len(children) == 1 {
				return first, nil
			}
			return And{Children: children}, nil
		}
		child, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
}

func (p *parser) parseNot() (Node, error) {
	if p.peek().isKeyword("NOT") {
		op := p.next()
		if !p.startsAtom(p.peek()) {
			return nil, apperrors.Syntax(op.offset, "NOT is missing an operand")
		}
		expr, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		return Not{Expr: expr}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tkLParen:
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tkRParen {
			return nil, apperrors.Syntax(tok.offset, "unbalanced parenthesis")
		}
		return node, nil
	case tkWord:
		if tok.isKeyword("AND") || tok.isKeyword("OR") {
			return nil, apperrors.Syntax(tok.offset, "%s is missing a left operand",
				strings.ToUpper(tok.text))
		}
		if p.peek().kind == tkColon {
			return p.parseFieldScope(tok)
		}
		return wordValue(tok)
	case tkPhrase:
		return phraseValue(tok)
	default:
		return nil, apperrors.Syntax(tok.offset, "expected a term, phrase, or group")
	}
}

func (p *parser) parseFieldScope(name token) (Node, error) {
	field, ok := index.ParseField(name.text)
	if !ok {
		return nil, &apperrors.UnknownFieldError{Name: name.text, Offset: name.offset}
	}
	p.next() // colon
	tok := p.next()
	var value Node
	var err error
	switch tok.kind {
	case tkWord:
		value, err = wordValue(tok)
	case tkPhrase:
		value, err = phraseValue(tok)
	default:
		return nil, apperrors.Syntax(tok.offset, "%s: expects a term or phrase", field)
	}
	if err != nil {
		return nil, err
	}
	return FieldScope{Field: field, Expr: value}, nil
}

// startsAtom reports whether tok can begin an atom, which drives implicit
// AND on adjacency.
func (p *parser) startsAtom(tok token) bool {
	switch tok.kind {
	case tkLParen, tkPhrase:
		return true
	case tkWord:
		return !tok.isKeyword("AND") && !tok.isKeyword("OR")
	}
	return false
}

// wordValue turns a bare word into a Term, Wildcard, or Phrase node. A word
// that analysis splits into several terms (e.g. "mary-jane") behaves as a
// phrase so the pieces must stay adjacent.
func wordValue(tok token) (Node, error) {
	if star := strings.IndexByte(tok.text, '*'); star >= 0 {
		prefix := tok.text[:star]
		if strings.Trim(tok.text[star:], "*") != "" {
			return nil, apperrors.Syntax(tok.offset+star, "only trailing wildcards are supported")
		}
		if prefix == "" {
			return nil, apperrors.Syntax(tok.offset, "wildcard needs a literal prefix")
		}
		return Wildcard{Prefix: strings.ToLower(prefix)}, nil
	}
	terms := analyzer.Terms(tok.text)
	switch len(terms) {
	case 0:
		return nil, apperrors.Syntax(tok.offset, "%q contains no searchable text", tok.text)
	case 1:
		return Term{Value: terms[0]}, nil
	default:
		return Phrase{Terms: terms}, nil
	}
}

func phraseValue(tok token) (Node, error) {
	terms := analyzer.Terms(tok.text)
	if len(terms) == 0 {
		return nil, apperrors.Syntax(tok.offset, "empty phrase")
	}
	if len(terms) == 1 {
		return Term{Value: terms[0]}, nil
	}
	return Phrase{Terms: terms}, nil
}
