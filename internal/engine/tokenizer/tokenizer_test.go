package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeLowercasesAndSplits(t *testing.T) {
	tokens := Tokenize("Laptop Pro, 16-inch!")
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	assert.Equal(t, []string{"laptop", "pro", "16", "inch"}, terms)
}

func TestTokenizePositionsAreDense(t *testing.T) {
	tokens := Tokenize("the quick   brown -- fox")
	for i, tok := range tokens {
		assert.Equal(t, i, tok.Position)
	}
	assert.Len(t, tokens, 4)
}

func TestTokenizeUnicode(t *testing.T) {
	tokens := Tokenize("Caffè Münchner Straße №42")
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	assert.Equal(t, []string{"caffè", "münchner", "straße", "42"}, terms)
}

func TestTokenizeEmptyAndPunctuationOnly(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("!!! --- ..."))
}

func TestTokenizeNoStopWordsNoStemming(t *testing.T) {
	terms := Terms("the running dogs are jumping")
	assert.Equal(t, []string{"the", "running", "dogs", "are", "jumping"}, terms)
}

// Re-tokenizing the joined output yields the same multiset of terms.
func TestTokenizeIdempotentModuloJoining(t *testing.T) {
	inputs := []string{
		"Hello, World!",
		"BM25 is a ranking-function",
		"Çok güzel bir gün",
	}
	for _, input := range inputs {
		first := Terms(input)
		second := Terms(strings.Join(first, " "))
		assert.Equal(t, first, second, "input %q", input)
	}
}
