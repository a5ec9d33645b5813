package engine

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/searchlite/searchlite/internal/engine/index"
	"github.com/searchlite/searchlite/internal/engine/tokenizer"
	"github.com/searchlite/searchlite/internal/engine/trie"
)

// phraseBonus multiplies the BM25 sum of a verified phrase match.
const phraseBonus = 1.5

const defaultLimit = 10

// Query is one search request. Filters map field names either to an exact
// value or to a range object with gte/lte/gt/lt bounds.
type Query struct {
	Q         string         `json:"q"`
	Tolerance int            `json:"tolerance"`
	Limit     int            `json:"limit"`
	Facets    []string       `json:"facets"`
	Filters   map[string]any `json:"filters"`
}

// Hit is one ranked result.
type Hit struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Document Document `json:"document"`
}

// Result is the response of a search: the top hits, the total number of
// scored documents, facet counts over the whole scored set, and the elapsed
// query time in microseconds.
type Result struct {
	Hits    []Hit                     `json:"hits"`
	Count   int                       `json:"count"`
	Facets  map[string]map[string]int `json:"facets,omitempty"`
	Elapsed int64                     `json:"elapsed"`
}

// Search runs the three-stage query pipeline: filter, score, facet-count.
func (e *Engine) Search(q Query) Result {
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	allowed, emptied := e.applyFilters(q.Filters)
	if emptied {
		return Result{Hits: []Hit{}, Elapsed: time.Since(start).Microseconds()}
	}

	scores := e.score(q, allowed)

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	ranked := make([]Hit, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, Hit{ID: id, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})

	facets := e.countFacets(q.Facets, ranked)

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].Document = deepCopy(e.docs[ranked[i].ID])
	}

	return Result{
		Hits:    ranked,
		Count:   len(scores),
		Facets:  facets,
		Elapsed: time.Since(start).Microseconds(),
	}
}

// applyFilters computes the allowed docID set. A nil set means unrestricted.
// emptied is true when the intersection became provably empty, in which case
// the whole search short-circuits to zero hits.
func (e *Engine) applyFilters(filters map[string]any) (map[string]struct{}, bool) {
	var allowed map[string]struct{}

	for field, raw := range filters {
		spec, known := e.schema[field]
		if !known {
			continue
		}

		var set map[string]struct{}
		if bounds, isRange := parseRange(raw); isRange {
			set = e.numeric.Range(field, bounds)
		} else if obj, isObj := raw.(map[string]any); isObj {
			// Range object with no recognised bound keys: best-effort
			// filtering ignores it.
			_ = obj
			continue
		} else {
			value, ok := coerceValue(spec.Type, raw)
			if !ok {
				continue
			}
			set = e.facets.DocsFor(field, value)
		}

		if len(set) == 0 {
			return nil, true
		}
		if allowed == nil {
			allowed = make(map[string]struct{}, len(set))
			for id := range set {
				allowed[id] = struct{}{}
			}
			continue
		}
		for id := range allowed {
			if _, ok := set[id]; !ok {
				delete(allowed, id)
			}
		}
		if len(allowed) == 0 {
			return nil, true
		}
	}
	return allowed, false
}

// parseRange interprets a filter value as a numeric range when it is an
// object carrying at least one of gte/lte/gt/lt with a numeric value.
func parseRange(raw any) (index.RangeBounds, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return index.RangeBounds{}, false
	}
	var bounds index.RangeBounds
	found := false
	bound := func(key string) *float64 {
		v, present := obj[key]
		if !present {
			return nil
		}
		n, ok := coerceValue(FieldNumber, v)
		if !ok {
			return nil
		}
		found = true
		f := n.(float64)
		return &f
	}
	bounds.GTE = bound("gte")
	bounds.LTE = bound("lte")
	bounds.GT = bound("gt")
	bounds.LT = bound("lt")
	return bounds, found
}

// score dispatches to the phrase, term, or empty-query branch and returns
// the raw score per docID.
func (e *Engine) score(q Query, allowed map[string]struct{}) map[string]float64 {
	query := q.Q
	if len(query) > 2 && strings.HasPrefix(query, `"`) && strings.HasSuffix(query, `"`) {
		return e.scorePhrase(query[1:len(query)-1], allowed)
	}
	if query != "" {
		return e.scoreTerms(query, q.Tolerance, allowed)
	}
	// Empty query: with filters every allowed document scores uniformly;
	// without filters there is deliberately no unbounded match-all.
	scores := make(map[string]float64, len(allowed))
	for id := range allowed {
		scores[id] = 1.0
	}
	return scores
}

// scorePhrase finds documents containing every phrase token, verifies strict
// consecutiveness, and scores survivors with a boosted BM25 sum.
func (e *Engine) scorePhrase(phrase string, allowed map[string]struct{}) map[string]float64 {
	terms := queryTerms(phrase)
	scores := make(map[string]float64)
	if len(terms) == 0 {
		return scores
	}

	candidates := e.phraseCandidates(terms, allowed)
	avgLen := e.avgDocLength()
	for id := range candidates {
		if !e.phraseMatches(terms, id) {
			continue
		}
		var sum float64
		for _, term := range terms {
			tf := len(e.inverted.Positions(term, id))
			sum += e.bm25(term, tf, e.lengths[id], avgLen)
		}
		scores[id] = sum * phraseBonus
	}
	return scores
}

// phraseCandidates intersects the posting docID sets of all phrase terms
// with the allowed set.
func (e *Engine) phraseCandidates(terms []string, allowed map[string]struct{}) map[string]struct{} {
	candidates := make(map[string]struct{})
	for id := range e.inverted.Postings(terms[0]) {
		if allowed == nil {
			candidates[id] = struct{}{}
		} else if _, ok := allowed[id]; ok {
			candidates[id] = struct{}{}
		}
	}
	for _, term := range terms[1:] {
		if len(candidates) == 0 {
			break
		}
		docs := e.inverted.Postings(term)
		for id := range candidates {
			if _, ok := docs[id]; !ok {
				delete(candidates, id)
			}
		}
	}
	return candidates
}

// phraseMatches verifies that the terms occur at strictly consecutive
// positions in the document, in order. For every start position of the first
// term it binary-searches each subsequent term's position list for start+i.
func (e *Engine) phraseMatches(terms []string, docID string) bool {
	lists := make([][]int, len(terms))
	for i, term := range terms {
		lists[i] = e.inverted.Positions(term, docID)
		if len(lists[i]) == 0 {
			return false
		}
	}
	for _, start := range lists[0] {
		matched := true
		for i := 1; i < len(lists); i++ {
			want := start + i
			positions := lists[i]
			j := sort.SearchInts(positions, want)
			if j >= len(positions) || positions[j] != want {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// scoreTerms runs the term branch: each query token is expanded to matching
// index tokens (exact or fuzzy), and every posting of every match
// contributes a penalised BM25 term to its document's score.
func (e *Engine) scoreTerms(query string, tolerance int, allowed map[string]struct{}) map[string]float64 {
	scores := make(map[string]float64)
	avgLen := e.avgDocLength()

	for _, queryTerm := range queryTerms(query) {
		queryLen := utf8.RuneCountInString(queryTerm)
		for _, match := range e.findMatchingTokens(queryTerm, tolerance) {
			penalty := 1.0
			if match.Distance > 0 {
				penalty = 1.0 - float64(match.Distance)/float64(queryLen)
			}
			for id, positions := range e.inverted.Postings(match.Token) {
				if allowed != nil {
					if _, ok := allowed[id]; !ok {
						continue
					}
				}
				scores[id] += e.bm25(match.Token, len(positions), e.lengths[id], avgLen) * penalty
			}
		}
	}
	return scores
}

// findMatchingTokens expands one query token to index tokens. An exact
// vocabulary hit preempts fuzzy expansion regardless of tolerance.
func (e *Engine) findMatchingTokens(queryTerm string, tolerance int) []trie.Match {
	if e.inverted.Contains(queryTerm) {
		return []trie.Match{{Token: queryTerm, Distance: 0}}
	}
	if tolerance > 0 {
		return e.vocab.SearchFuzzy(queryTerm, tolerance)
	}
	return nil
}

// bm25 computes one Okapi BM25 term contribution.
func (e *Engine) bm25(term string, tf, docLen int, avgLen float64) float64 {
	df := float64(e.inverted.DocFreq(term))
	n := float64(len(e.docs))
	idf := math.Log(1 + (n-df+0.5)/(df+0.5))

	norm := 0.0
	if avgLen > 0 {
		norm = float64(docLen) / avgLen
	}
	freq := float64(tf)
	return idf * (freq * (bm25K1 + 1)) / (freq + bm25K1*(1-bm25B+bm25B*norm))
}

// countFacets counts (field, value) occurrences over the whole scored set
// for every requested field that exists in the facet index. Unknown fields
// are skipped silently.
func (e *Engine) countFacets(fields []string, ranked []Hit) map[string]map[string]int {
	if len(fields) == 0 {
		return nil
	}
	facets := make(map[string]map[string]int)
	for _, field := range fields {
		if !e.facets.HasField(field) {
			continue
		}
		spec := e.schema[field]
		counts := make(map[string]int)
		for _, hit := range ranked {
			raw, present := e.docs[hit.ID][field]
			if !present || raw == nil {
				continue
			}
			value, ok := coerceValue(spec.Type, raw)
			if !ok {
				continue
			}
			counts[formatFacetValue(value)]++
		}
		facets[field] = counts
	}
	if len(facets) == 0 {
		return nil
	}
	return facets
}

// queryTerms tokenises query text with the same tokenizer used for
// indexing, keeping the two sides symmetric.
func queryTerms(text string) []string {
	return tokenizer.Terms(text)
}
