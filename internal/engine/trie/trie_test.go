package trie

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matchTokens(matches []Match) []string {
	tokens := make([]string, len(matches))
	for i, m := range matches {
		tokens[i] = m.Token
	}
	sort.Strings(tokens)
	return tokens
}

func TestInsertAndContains(t *testing.T) {
	tr := New()
	tr.Insert("laptop")
	tr.Insert("lap")

	assert.True(t, tr.Contains("laptop"))
	assert.True(t, tr.Contains("lap"))
	assert.False(t, tr.Contains("lapt"))
	assert.False(t, tr.Contains(""))
	assert.Equal(t, 2, tr.Len())
}

func TestInsertIdempotent(t *testing.T) {
	tr := New()
	tr.Insert("word")
	tr.Insert("word")
	assert.Equal(t, 1, tr.Len())
}

func TestDeletePrunesNodes(t *testing.T) {
	tr := New()
	tr.Insert("car")
	tr.Insert("cart")

	tr.Delete("cart")
	assert.True(t, tr.Contains("car"))
	assert.False(t, tr.Contains("cart"))

	tr.Delete("car")
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, tr.root.children, "all nodes should be pruned back to the root")
}

func TestDeleteKeepsPrefixWord(t *testing.T) {
	tr := New()
	tr.Insert("car")
	tr.Insert("cart")

	tr.Delete("car")
	assert.False(t, tr.Contains("car"))
	assert.True(t, tr.Contains("cart"))
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	tr := New()
	tr.Insert("car")
	tr.Delete("card")
	tr.Delete("ca")
	assert.True(t, tr.Contains("car"))
	assert.Equal(t, 1, tr.Len())
}

func TestSearchFuzzyExact(t *testing.T) {
	tr := New()
	tr.Insert("laptop")

	matches := tr.SearchFuzzy("laptop", 0)
	require.Len(t, matches, 1)
	assert.Equal(t, "laptop", matches[0].Token)
	assert.Equal(t, 0, matches[0].Distance)
}

func TestSearchFuzzyWithinDistance(t *testing.T) {
	tr := New()
	for _, w := range []string{"laptop", "laptops", "lactose", "desktop"} {
		tr.Insert(w)
	}

	matches := tr.SearchFuzzy("laptob", 1)
	assert.Equal(t, []string{"laptop"}, matchTokens(matches))

	matches = tr.SearchFuzzy("laptob", 2)
	assert.Equal(t, []string{"laptop", "laptops"}, matchTokens(matches))
}

func TestSearchFuzzyDistances(t *testing.T) {
	tr := New()
	tr.Insert("kitten")
	tr.Insert("sitting")

	matches := tr.SearchFuzzy("kitten", 3)
	byToken := make(map[string]int)
	for _, m := range matches {
		byToken[m.Token] = m.Distance
	}
	assert.Equal(t, 0, byToken["kitten"])
	assert.Equal(t, 3, byToken["sitting"])
}

func TestSearchFuzzyNoMatches(t *testing.T) {
	tr := New()
	tr.Insert("laptop")
	assert.Empty(t, tr.SearchFuzzy("zzz", 1))
}

func TestSearchFuzzyUnicode(t *testing.T) {
	tr := New()
	tr.Insert("café")

	matches := tr.SearchFuzzy("cafe", 1)
	require.Len(t, matches, 1)
	assert.Equal(t, "café", matches[0].Token)
	assert.Equal(t, 1, matches[0].Distance)
}

func TestSearchFuzzyAfterDelete(t *testing.T) {
	tr := New()
	tr.Insert("laptop")
	tr.Insert("laptops")
	tr.Delete("laptop")

	matches := tr.SearchFuzzy("laptop", 1)
	assert.Equal(t, []string{"laptops"}, matchTokens(matches))
}

func TestTokensEnumeratesAll(t *testing.T) {
	tr := New()
	words := []string{"a", "ab", "abc", "b"}
	for _, w := range words {
		tr.Insert(w)
	}
	got := tr.Tokens()
	sort.Strings(got)
	assert.Equal(t, words, got)
}
