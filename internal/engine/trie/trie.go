// Package trie implements the vocabulary trie used for fuzzy term expansion.
// It holds exactly the set of live index tokens and enumerates, for a query
// token and an edit-distance bound, every vocabulary token within that bound.
//
// The fuzzy walk computes one Levenshtein DP row per trie edge and abandons a
// subtree as soon as the minimum of the current row exceeds the bound, so the
// cost is proportional to the number of reachable nodes rather than the size
// of the whole vocabulary.
package trie

type node struct {
	children map[rune]*node
	terminal bool
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

// Trie is an ordered character tree over the index vocabulary.
type Trie struct {
	root *node
	size int
}

// Match is a vocabulary token found within the requested edit distance.
type Match struct {
	Token    string `json:"token"`
	Distance int    `json:"distance"`
}

// New creates an empty Trie.
func New() *Trie {
	return &Trie{root: newNode()}
}

// Len returns the number of tokens in the trie.
func (t *Trie) Len() int {
	return t.size
}

// Insert adds a token. Inserting a token that is already present is a no-op.
func (t *Trie) Insert(token string) {
	if token == "" {
		return
	}
	cur := t.root
	for _, r := range token {
		next, ok := cur.children[r]
		if !ok {
			next = newNode()
			cur.children[r] = next
		}
		cur = next
	}
	if !cur.terminal {
		cur.terminal = true
		t.size++
	}
}

// Contains reports whether the exact token is in the trie.
func (t *Trie) Contains(token string) bool {
	cur := t.root
	for _, r := range token {
		next, ok := cur.children[r]
		if !ok {
			return false
		}
		cur = next
	}
	return cur.terminal
}

// Delete removes a token, pruning every node on its path that ends up with
// no children and no terminal marker. Deleting an absent token is a no-op.
func (t *Trie) Delete(token string) {
	if token == "" {
		return
	}
	runes := []rune(token)
	path := make([]*node, 0, len(runes)+1)
	cur := t.root
	path = append(path, cur)
	for _, r := range runes {
		next, ok := cur.children[r]
		if !ok {
			return
		}
		cur = next
		path = append(path, cur)
	}
	if !cur.terminal {
		return
	}
	cur.terminal = false
	t.size--
	for i := len(runes) - 1; i >= 0; i-- {
		child := path[i+1]
		if child.terminal || len(child.children) > 0 {
			break
		}
		delete(path[i].children, runes[i])
	}
}

// SearchFuzzy returns every token within maxDistance Levenshtein edits of
// query. The enumeration order is tree order; callers must not rely on it.
func (t *Trie) SearchFuzzy(query string, maxDistance int) []Match {
	if maxDistance < 0 {
		return nil
	}
	q := []rune(query)

	// Row for the empty prefix: distance to each query prefix.
	row := make([]int, len(q)+1)
	for i := range row {
		row[i] = i
	}

	var results []Match
	prefix := make([]rune, 0, len(q)+maxDistance)
	for r, child := range t.root.children {
		t.descend(child, append(prefix, r), q, row, maxDistance, &results)
	}
	return results
}

// descend computes the DP row for the node reached via the last rune of
// prefix and recurses while any cell stays within the bound.
func (t *Trie) descend(n *node, prefix []rune, q []rune, prevRow []int, maxDistance int, results *[]Match) {
	edge := prefix[len(prefix)-1]
	row := make([]int, len(q)+1)
	row[0] = prevRow[0] + 1
	minInRow := row[0]
	for j := 1; j <= len(q); j++ {
		insertCost := row[j-1] + 1
		deleteCost := prevRow[j] + 1
		replaceCost := prevRow[j-1]
		if q[j-1] != edge {
			replaceCost++
		}
		row[j] = min(insertCost, deleteCost, replaceCost)
		if row[j] < minInRow {
			minInRow = row[j]
		}
	}

	if n.terminal && row[len(q)] <= maxDistance {
		*results = append(*results, Match{Token: string(prefix), Distance: row[len(q)]})
	}
	if minInRow > maxDistance {
		return
	}
	for r, child := range n.children {
		t.descend(child, append(prefix, r), q, row, maxDistance, results)
	}
}

// Tokens returns every token in the trie, in tree order. Intended for
// diagnostics and tests.
func (t *Trie) Tokens() []string {
	var out []string
	var walk func(n *node, prefix []rune)
	walk = func(n *node, prefix []rune) {
		if n.terminal {
			out = append(out, string(prefix))
		}
		for r, child := range n.children {
			walk(child, append(prefix, r))
		}
	}
	walk(t.root, nil)
	return out
}
