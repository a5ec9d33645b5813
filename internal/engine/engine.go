// Package engine implements a single-collection full-text search engine:
// a positional inverted index with a vocabulary trie for fuzzy expansion,
// facet and sorted numeric indexes for filtering, BM25 ranking with phrase
// proximity verification, and a binary snapshot codec for persistence.
package engine

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/searchlite/searchlite/internal/engine/index"
	"github.com/searchlite/searchlite/internal/engine/tokenizer"
	"github.com/searchlite/searchlite/internal/engine/trie"
	"github.com/searchlite/searchlite/pkg/errors"
)

// BM25 parameters. Not persisted in snapshots; every engine starts with the
// defaults.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Document is an open mapping from field name to value, as decoded from
// JSON. Fields outside the schema are stored verbatim but never indexed.
type Document = map[string]any

// Engine is one collection's search engine. All mutations and reads are
// serialised through an RWMutex; a search observes exactly the state left by
// the mutations that completed before it acquired the read lock.
type Engine struct {
	mu sync.RWMutex

	schema    Schema
	strFields []string

	docs        map[string]Document
	lengths     map[string]int
	totalLength int

	inverted *index.Inverted
	facets   *index.Facet
	numeric  *index.Numeric
	vocab    *trie.Trie

	logger *slog.Logger
}

// Stats is a read-only summary of an engine's indexed state.
type Stats struct {
	DocCount       int `json:"doc_count"`
	TotalDocLength int `json:"total_doc_length"`
	VocabularySize int `json:"vocabulary_size"`
}

// New creates an empty engine for the given schema.
func New(schema Schema) (*Engine, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		schema:    schema,
		strFields: schema.stringFields(),
		docs:      make(map[string]Document),
		lengths:   make(map[string]int),
		inverted:  index.NewInverted(),
		facets:    index.NewFacet(),
		numeric:   index.NewNumeric(),
		vocab:     trie.New(),
		logger:    slog.Default().With("component", "engine"),
	}, nil
}

// Schema returns the engine's schema. The returned map must not be mutated.
func (e *Engine) Schema() Schema {
	return e.schema
}

// Add stores and indexes a document. When id is empty a fresh UUID is
// generated. Adding an id that already exists fails with ErrDuplicateID and
// leaves the engine untouched.
func (e *Engine) Add(doc Document, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.docs[id]; exists {
		return "", errors.Newf(errors.ErrDuplicateID, 409, "id %q", id)
	}

	stored := deepCopy(doc)
	stored["id"] = id
	e.indexDocument(id, stored)

	e.logger.Debug("document added", "id", id, "length", e.lengths[id])
	return id, nil
}

// Delete removes a document and every trace of it from the indexes. It
// returns false when the id is unknown.
func (e *Engine) Delete(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleteLocked(id)
}

// Update overlays partial onto the stored document and re-indexes the merge
// under the same id. It returns false when the id is unknown. The update is
// deliberately a delete followed by an add: correctness over cleverness.
func (e *Engine) Update(id string, partial Document) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	stored, exists := e.docs[id]
	if !exists {
		return false
	}

	merged := deepCopy(stored)
	for field, value := range partial {
		if field == "id" {
			continue
		}
		merged[field] = copyValue(value)
	}
	merged["id"] = id

	e.deleteLocked(id)
	e.indexDocument(id, merged)
	e.logger.Debug("document updated", "id", id)
	return true
}

// Get returns the stored document for id, or nil. The caller receives a
// copy and may mutate it freely.
func (e *Engine) Get(id string) Document {
	e.mu.RLock()
	defer e.mu.RUnlock()

	doc, exists := e.docs[id]
	if !exists {
		return nil
	}
	return deepCopy(doc)
}

// DocCount returns the number of stored documents.
func (e *Engine) DocCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

// Stats returns a summary of the engine's indexed state.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		DocCount:       len(e.docs),
		TotalDocLength: e.totalLength,
		VocabularySize: e.vocab.Len(),
	}
}

// indexDocument routes every schema field of the stored document into the
// indexes and updates the length table. Caller holds the write lock and has
// verified the id is free.
func (e *Engine) indexDocument(id string, stored Document) {
	position := 0
	for _, field := range e.strFields {
		raw, present := stored[field]
		if !present || raw == nil {
			continue
		}
		text, ok := raw.(string)
		if !ok {
			continue
		}
		tokens := tokenizer.Tokenize(text)
		for _, tok := range tokens {
			if e.inverted.Append(tok.Term, id, position+tok.Position) {
				e.vocab.Insert(tok.Term)
			}
		}
		position += len(tokens)
	}

	for field, spec := range e.schema {
		raw, present := stored[field]
		if !present || raw == nil {
			continue
		}
		value, ok := coerceValue(spec.Type, raw)
		if !ok {
			continue
		}
		if spec.Facetable {
			e.facets.Add(field, value, id)
		}
		if spec.Sortable && spec.Type == FieldNumber {
			e.numeric.Add(field, value.(float64), id)
		}
	}

	e.docs[id] = stored
	e.lengths[id] = position
	e.totalLength += position
}

// deleteLocked un-indexes and removes a document. Caller holds the write
// lock.
func (e *Engine) deleteLocked(id string) bool {
	stored, exists := e.docs[id]
	if !exists {
		return false
	}

	for _, field := range e.strFields {
		raw, present := stored[field]
		if !present || raw == nil {
			continue
		}
		text, ok := raw.(string)
		if !ok {
			continue
		}
		seen := make(map[string]struct{})
		for _, tok := range tokenizer.Tokenize(text) {
			if _, dup := seen[tok.Term]; dup {
				continue
			}
			seen[tok.Term] = struct{}{}
			if e.inverted.RemoveDoc(tok.Term, id) {
				e.vocab.Delete(tok.Term)
			}
		}
	}

	for field, spec := range e.schema {
		raw, present := stored[field]
		if !present || raw == nil {
			continue
		}
		value, ok := coerceValue(spec.Type, raw)
		if !ok {
			continue
		}
		if spec.Facetable {
			e.facets.Remove(field, value, id)
		}
		if spec.Sortable && spec.Type == FieldNumber {
			e.numeric.Remove(field, id)
		}
	}

	e.totalLength -= e.lengths[id]
	delete(e.lengths, id)
	delete(e.docs, id)
	e.logger.Debug("document deleted", "id", id)
	return true
}

// avgDocLength returns the mean token count per document. Caller holds at
// least the read lock.
func (e *Engine) avgDocLength() float64 {
	if len(e.docs) == 0 {
		return 0
	}
	return float64(e.totalLength) / float64(len(e.docs))
}

// deepCopy clones a document so later caller mutation cannot corrupt the
// stored copy or the derived indexes.
func deepCopy(doc Document) Document {
	out := make(Document, len(doc))
	for field, value := range doc {
		out[field] = copyValue(value)
	}
	return out
}

func copyValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = copyValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = copyValue(inner)
		}
		return out
	default:
		return v
	}
}
