// Package plistval evaluates compliance predicates against property-list
// files. Five predicate kinds are supported:
//
//   - equals: the value matches the expected value exactly
//   - booleanTrue: the value is boolean true (or integer 1)
//   - exists: the key is present, whatever its value
//   - contains: a string value contains the expected substring, or a list
//     value contains an equal element
//   - range: a numeric value falls inside inclusive expected bounds
package plistval

import (
	"fmt"
	"strings"
)

// PredicateKind names a comparison rule applied to a plist value.
type PredicateKind string

const (
	KindEquals      PredicateKind = "equals"
	KindBooleanTrue PredicateKind = "booleanTrue"
	KindExists      PredicateKind = "exists"
	KindContains    PredicateKind = "contains"
	KindRange       PredicateKind = "range"
)

// ParsePredicateKind parses a predicate kind string, returning an error for
// invalid values. Accepts the spellings found in configuration files.
func ParsePredicateKind(s string) (PredicateKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equals", "equal", "eq":
		return KindEquals, nil
	case "booleantrue", "boolean_true", "boolean-true", "true":
		return KindBooleanTrue, nil
	case "exists", "exist", "present":
		return KindExists, nil
	case "contains", "include", "includes":
		return KindContains, nil
	case "range", "between":
		return KindRange, nil
	default:
		return "", fmt.Errorf("unknown evaluation kind: %q (valid: equals, booleanTrue, exists, contains, range)", s)
	}
}

// Description returns a human-readable summary of what the kind checks.
func (k PredicateKind) Description() string {
	switch k {
	case KindEquals:
		return "value equals the expected value"
	case KindBooleanTrue:
		return "value is boolean true"
	case KindExists:
		return "key is present"
	case KindContains:
		return "value contains the expected substring or element"
	case KindRange:
		return "numeric value falls inside the expected bounds"
	default:
		return "unknown evaluation kind"
	}
}
