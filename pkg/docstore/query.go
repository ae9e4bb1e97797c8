package docstore

import (
	"encoding/json"
	"strings"
)

// QueryParameter is one named parameter of a parameterized query.
type QueryParameter struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// QueryDefinition describes a query over a feed. It is immutable once
// handed to an iterator.
type QueryDefinition struct {
	// Text is the query text.
	Text string `json:"query"`

	// Parameters bound into the query.
	Parameters []QueryParameter `json:"parameters,omitempty"`

	// OrderBy names the item field establishing a global order across
	// partition ranges. Empty means no global order is required and
	// cross-range output order is undefined. Order keys are compared as
	// JSON scalars: null < bool < number < string.
	OrderBy string `json:"-"`

	// Descending inverts the OrderBy direction.
	Descending bool `json:"-"`
}

// NewQuery creates a query definition.
func NewQuery(text string) *QueryDefinition {
	return &QueryDefinition{Text: text}
}

// WithParameter binds a named parameter.
func (q *QueryDefinition) WithParameter(name string, value interface{}) *QueryDefinition {
	q.Parameters = append(q.Parameters, QueryParameter{Name: name, Value: value})

	return q
}

// WithOrderBy declares the globally-ordering field of the query.
func (q *QueryDefinition) WithOrderBy(field string, descending bool) *QueryDefinition {
	q.OrderBy = field
	q.Descending = descending

	return q
}

// Ordered reports whether the query requires a global order.
func (q *QueryDefinition) Ordered() bool {
	return q != nil && q.OrderBy != ""
}

// Order key comparison for the cross-partition merge.

const (
	orderKindMissing = iota
	orderKindNull
	orderKindBool
	orderKindNumber
	orderKindString
)

// orderKey is the comparable projection of one item's ordering field.
type orderKey struct {
	kind int
	b    bool
	num  float64
	str  string
}

// orderKeyOf extracts the ordering field from an item. Items missing the
// field sort first.
func orderKeyOf(item json.RawMessage, field string) orderKey {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(item, &doc); err != nil {
		return orderKey{kind: orderKindMissing}
	}

	raw, ok := doc[field]
	if !ok {
		return orderKey{kind: orderKindMissing}
	}

	text := strings.TrimSpace(string(raw))
	if text == "null" {
		return orderKey{kind: orderKindNull}
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil && (text == "true" || text == "false") {
		return orderKey{kind: orderKindBool, b: b}
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil && !strings.HasPrefix(text, "\"") {
		return orderKey{kind: orderKindNumber, num: num}
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return orderKey{kind: orderKindString, str: str}
	}

	return orderKey{kind: orderKindMissing}
}

// compareOrderKeys returns -1, 0, or 1. Mixed types compare by type rank.
func compareOrderKeys(a, b orderKey) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}

		return 1
	}

	switch a.kind {
	case orderKindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case orderKindNumber:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		default:
			return 0
		}
	case orderKindString:
		return strings.Compare(a.str, b.str)
	default:
		return 0
	}
}
