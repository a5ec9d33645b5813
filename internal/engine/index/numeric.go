package index

import "sort"

// NumericEntry is one (value, docID) pair in a sortable field's list.
type NumericEntry struct {
	Value float64
	DocID string
}

// RangeBounds holds the recognised bounds of a numeric range filter. Nil
// means the bound is absent. All present bounds must hold simultaneously.
type RangeBounds struct {
	GTE *float64
	LTE *float64
	GT  *float64
	LT  *float64
}

// Numeric maps each sortable numeric field to a list of (value, docID) pairs
// kept sorted ascending by value. Equal values keep insertion order.
type Numeric struct {
	fields map[string][]NumericEntry
}

// NewNumeric creates an empty numeric index.
func NewNumeric() *Numeric {
	return &Numeric{fields: make(map[string][]NumericEntry)}
}

// Add inserts (value, docID) at its sorted position. Insertion is by binary
// search for the upper bound of value, so ties land after existing equal
// values and insertion order is preserved.
func (n *Numeric) Add(field string, value float64, docID string) {
	entries := n.fields[field]
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].Value > value
	})
	entries = append(entries, NumericEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = NumericEntry{Value: value, DocID: docID}
	n.fields[field] = entries
}

// Remove deletes every entry for docID from the field's list.
func (n *Numeric) Remove(field, docID string) {
	entries, ok := n.fields[field]
	if !ok {
		return
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.DocID != docID {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(n.fields, field)
		return
	}
	n.fields[field] = kept
}

// HasField reports whether the field has at least one entry.
func (n *Numeric) HasField(field string) bool {
	return len(n.fields[field]) > 0
}

// Range returns the set of docIDs whose value satisfies every present bound.
// The list is value-sorted, so the scan starts at the first candidate via
// binary search and stops as soon as the cursor leaves the range.
func (n *Numeric) Range(field string, bounds RangeBounds) map[string]struct{} {
	entries, ok := n.fields[field]
	if !ok {
		return map[string]struct{}{}
	}

	lower := func(v float64) bool {
		if bounds.GTE != nil && v < *bounds.GTE {
			return false
		}
		if bounds.GT != nil && v <= *bounds.GT {
			return false
		}
		return true
	}
	upper := func(v float64) bool {
		if bounds.LTE != nil && v > *bounds.LTE {
			return false
		}
		if bounds.LT != nil && v >= *bounds.LT {
			return false
		}
		return true
	}

	start := sort.Search(len(entries), func(i int) bool {
		return lower(entries[i].Value)
	})
	out := make(map[string]struct{})
	for _, e := range entries[start:] {
		if !upper(e.Value) {
			break
		}
		out[e.DocID] = struct{}{}
	}
	return out
}

// Walk calls fn for every field's sorted entry list.
func (n *Numeric) Walk(fn func(field string, entries []NumericEntry)) {
	for field, entries := range n.fields {
		fn(field, entries)
	}
}
