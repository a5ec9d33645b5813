package index

// Facet maps facetable field → observed value → set of docIDs whose document
// carries exactly that value. Values are compared with Go equality on the raw
// (pre-tokenisation) value, so "10" (string) and 10.0 (number) are distinct.
type Facet struct {
	fields map[string]map[any]map[string]struct{}
}

// NewFacet creates an empty facet index.
func NewFacet() *Facet {
	return &Facet{fields: make(map[string]map[any]map[string]struct{})}
}

// Add registers docID under (field, value).
func (f *Facet) Add(field string, value any, docID string) {
	values, ok := f.fields[field]
	if !ok {
		values = make(map[any]map[string]struct{})
		f.fields[field] = values
	}
	docs, ok := values[value]
	if !ok {
		docs = make(map[string]struct{})
		values[value] = docs
	}
	docs[docID] = struct{}{}
}

// Remove drops docID from (field, value), garbage-collecting the value entry
// when its last docID goes away.
func (f *Facet) Remove(field string, value any, docID string) {
	values, ok := f.fields[field]
	if !ok {
		return
	}
	docs, ok := values[value]
	if !ok {
		return
	}
	delete(docs, docID)
	if len(docs) == 0 {
		delete(values, value)
	}
}

// HasField reports whether the field has at least one indexed value.
func (f *Facet) HasField(field string) bool {
	return len(f.fields[field]) > 0
}

// DocsFor returns the docID set for an exact (field, value) pair, or nil.
// The returned set is live; callers must not mutate it.
func (f *Facet) DocsFor(field string, value any) map[string]struct{} {
	if values, ok := f.fields[field]; ok {
		return values[value]
	}
	return nil
}

// Walk calls fn for every (field, value, docIDs) triple.
func (f *Facet) Walk(fn func(field string, value any, docIDs map[string]struct{})) {
	for field, values := range f.fields {
		for value, docs := range values {
			fn(field, value, docs)
		}
	}
}
