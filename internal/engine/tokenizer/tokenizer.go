// Package tokenizer provides text tokenisation for the search engine.
// It lower-cases input and splits on maximal runs of characters that are
// neither Unicode letters nor digits. The same function is used for both
// indexing and query analysis, so the two sides always agree.
package tokenizer

import (
	"strings"
	"unicode"
)

// Token is a single normalised term and its zero-based position within the
// tokenised text.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into lowercased tokens. There is no stemming, no
// stop-word removal, and no accent folding; empty tokens never occur because
// FieldsFunc drops empty fields.
func Tokenize(text string) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
	}
	return tokens
}

// Terms returns just the term strings of Tokenize(text), in order.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}
