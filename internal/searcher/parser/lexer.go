package parser

import (
	"strings"
	"unicode/utf8"

	apperrors "github.com/inboxforge/inboxforge/pkg/errors"
)

type tokenKind int

const (
	tkEOF tokenKind = iota
	tkWord
	tkPhrase
	tkLParen
	tkRParen
	tkColon
)

type token struct {
	kind   tokenKind
	text   string
	offset int
}

// lex splits the query into tokens, recording each token's byte offset for
// error reporting. Quoted phrases keep their raw inner text.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			i += size
		case r == '(':
			tokens = append(tokens, token{tkLParen, "(", i})
			i += size
		case r == ')':
			tokens = append(tokens, token{tkRParen, ")", i})
			i += size
		case r == ':':
			tokens = append(tokens, token{tkColon, ":", i})
			i += size
		case r == '"':
			end := strings.IndexByte(input[i+size:], '"')
			if end < 0 {
				return nil, apperrors.Syntax(i, "unterminated phrase")
			}
			tokens = append(tokens, token{tkPhrase, input[i+size : i+size+end], i})
			i += size + end + 1
		default:
			start := i
			for i < len(input) && !isBoundary(input[i]) {
				i++
			}
			tokens = append(tokens, token{tkWord, input[start:i], start})
		}
	}
	tokens = append(tokens, token{tkEOF, "", len(input)})
	return tokens, nil
}

func isBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '(', ')', ':', '"':
		return true
	}
	return false
}

func (t token) isKeyword(word string) bool {
	return t.kind == tkWord && strings.EqualFold(t.text, word)
}
