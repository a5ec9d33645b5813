// Package index holds the three leaf index structures of a collection: the
// positional inverted index, the facet index, and the sorted numeric index.
package index

// Inverted is a positional inverted index: token → docID → ascending list of
// absolute token positions within that document.
//
// Within a single document add, positions arrive already ascending because
// tokenisation is left-to-right and the document's position counter only
// grows, so Append never has to sort.
type Inverted struct {
	postings map[string]map[string][]int
}

// NewInverted creates an empty inverted index.
func NewInverted() *Inverted {
	return &Inverted{postings: make(map[string]map[string][]int)}
}

// Append records one occurrence of token in docID at the given position.
// It returns true when this is the first posting ever recorded for the token,
// which is the caller's cue to insert the token into the vocabulary trie.
func (iv *Inverted) Append(token, docID string, position int) bool {
	docs, ok := iv.postings[token]
	if !ok {
		docs = make(map[string][]int)
		iv.postings[token] = docs
	}
	docs[docID] = append(docs[docID], position)
	return !ok
}

// RemoveDoc removes docID from the token's posting entry. It returns true
// when the entry became empty and was deleted, which is the caller's cue to
// delete the token from the vocabulary trie.
func (iv *Inverted) RemoveDoc(token, docID string) bool {
	docs, ok := iv.postings[token]
	if !ok {
		return false
	}
	if _, ok := docs[docID]; !ok {
		return false
	}
	delete(docs, docID)
	if len(docs) == 0 {
		delete(iv.postings, token)
		return true
	}
	return false
}

// Postings returns the docID → positions map for a token, or nil when the
// token is unknown. The returned map is live; callers must not mutate it.
func (iv *Inverted) Postings(token string) map[string][]int {
	return iv.postings[token]
}

// Positions returns the position list of token within docID, or nil.
func (iv *Inverted) Positions(token, docID string) []int {
	if docs, ok := iv.postings[token]; ok {
		return docs[docID]
	}
	return nil
}

// Contains reports whether the token has at least one posting.
func (iv *Inverted) Contains(token string) bool {
	_, ok := iv.postings[token]
	return ok
}

// DocFreq returns the number of documents containing the token.
func (iv *Inverted) DocFreq(token string) int {
	return len(iv.postings[token])
}

// Len returns the vocabulary size.
func (iv *Inverted) Len() int {
	return len(iv.postings)
}

// Walk calls fn for every (token, docID, positions) triple. Iteration order
// is map order; callers that need determinism must sort.
func (iv *Inverted) Walk(fn func(token, docID string, positions []int)) {
	for token, docs := range iv.postings {
		for docID, positions := range docs {
			fn(token, docID, positions)
		}
	}
}

// Tokens calls fn once per live token.
func (iv *Inverted) Tokens(fn func(token string)) {
	for token := range iv.postings {
		fn(token)
	}
}
