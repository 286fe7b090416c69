package docindex

import (
	"fmt"
	"strconv"
	"strings"
)

// FilterOperator is a comparison in the filter DSL.
type FilterOperator string

// Supported filter operators. Anything else is a hard error at
// query-build time.
const (
	OpEq       FilterOperator = "eq"
	OpNe       FilterOperator = "ne"
	OpGt       FilterOperator = "gt"
	OpLt       FilterOperator = "lt"
	OpContains FilterOperator = "contains"
)

// Filter is one (field, operator, value) condition. Filters on a query are
// combined with logical AND.
type Filter struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value"`
}

// Validate rejects unknown operators and empty fields.
func (f Filter) Validate() error {
	if f.Field == "" {
		return fmt.Errorf("%w: missing filter field", ErrInvalidQuery)
	}
	switch f.Operator {
	case OpEq, OpNe, OpGt, OpLt, OpContains:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedOperator, f.Operator)
	}
}

// Matches evaluates the filter against a document. Ordering comparisons are
// numeric when both sides parse as numbers, lexicographic otherwise.
func (f Filter) Matches(doc *Document) bool {
	value := doc.fieldValue(f.Field)
	switch f.Operator {
	case OpEq:
		return value == f.Value
	case OpNe:
		return value != f.Value
	case OpGt:
		return compareValues(value, f.Value) > 0
	case OpLt:
		return compareValues(value, f.Value) < 0
	case OpContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(f.Value))
	default:
		return false
	}
}

// matchesAll reports whether a document satisfies every filter (AND).
func matchesAll(doc *Document, filters []Filter) bool {
	for _, f := range filters {
		if !f.Matches(doc) {
			return false
		}
	}
	return true
}

func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
