package engine

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/searchlite/searchlite/pkg/errors"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "boolean"
)

// Field describes how one document field is indexed. Facetable is legal on
// any type; Sortable only on number.
type Field struct {
	Type      FieldType `json:"type" yaml:"type"`
	Facetable bool      `json:"facetable,omitempty" yaml:"facetable,omitempty"`
	Sortable  bool      `json:"sortable,omitempty" yaml:"sortable,omitempty"`
}

// Schema maps field names to their index descriptors. It is fixed at
// collection creation and never mutated afterwards.
type Schema map[string]Field

// Validate checks the schema for emptiness, unknown types, and sortable
// flags on non-numeric fields.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return errors.Newf(errors.ErrInvalidInput, 400, "schema must declare at least one field")
	}
	for name, field := range s {
		if name == "" {
			return errors.Newf(errors.ErrInvalidInput, 400, "schema field name must be non-empty")
		}
		switch field.Type {
		case FieldString, FieldNumber, FieldBool:
		default:
			return errors.Newf(errors.ErrInvalidInput, 400, "field %q: unknown type %q", name, field.Type)
		}
		if field.Sortable && field.Type != FieldNumber {
			return errors.Newf(errors.ErrInvalidInput, 400, "field %q: sortable is only legal on number fields", name)
		}
	}
	return nil
}

// stringFields returns the names of string-typed fields in sorted order.
// The global position counter walks fields in this order, so it must be
// deterministic across processes.
func (s Schema) stringFields() []string {
	var names []string
	for name, field := range s {
		if field.Type == FieldString {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// coerceValue converts a raw document value to the canonical Go value for
// the declared type: string, float64, or bool. It returns false when the
// runtime type disagrees with the schema, in which case the field is stored
// verbatim but not indexed.
func coerceValue(ft FieldType, raw any) (any, bool) {
	switch ft {
	case FieldString:
		v, ok := raw.(string)
		return v, ok
	case FieldNumber:
		switch v := raw.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		}
		return nil, false
	case FieldBool:
		v, ok := raw.(bool)
		return v, ok
	}
	return nil, false
}

// formatFacetValue renders a canonical facet value as the string key used in
// facet count responses.
func formatFacetValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return formatFloat(v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	}
	return fmt.Sprintf("%v", v)
}

// formatFloat renders a float64 without trailing zeros, so 10.0 prints as
// "10" and 10.5 as "10.5".
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
