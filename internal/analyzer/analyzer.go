// Package analyzer normalises raw field text into searchable terms. It
// lower-cases input and splits on non-alphanumeric boundaries. There is
// deliberately no stemming and no stop-word removal: phrase matching and
// wildcard prefix expansion both require that indexed terms round-trip
// verbatim through query parsing.
package analyzer

import (
	"strings"
	"unicode"
)

// Token is a single normalised term and its zero-based position within the
// field's token stream.
type Token struct {
	Term     string
	Position int
}

// Analyze tokenizes text into lowercased terms with positions. It is
// deterministic and side-effect-free; the indexer and the query parser must
// use it identically or term lookups will silently miss.
func Analyze(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	for i, word := range words {
		tokens = append(tokens, Token{Term: word, Position: i})
	}
	return tokens
}

// Terms is Analyze stripped of positions, for callers that only need the
// normalised term sequence (query literals, phrase bodies).
func Terms(text string) []string {
	tokens := Analyze(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}
