package plistval

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"howett.net/plist"
)

// MaxPlistSize bounds how large a property-list file may be before it is
// rejected unread.
const MaxPlistSize = 10 << 20 // 10 MiB

// findingKey is the sub-key used by compliance databases that wrap each
// result value in a one-entry dictionary.
const findingKey = "finding"

// Reason classifies why an evaluation could not produce a verdict.
type Reason string

const (
	ReasonNotFound   Reason = "not_found"
	ReasonUnreadable Reason = "unreadable"
	ReasonMalformed  Reason = "malformed"
	ReasonOversize   Reason = "oversize"
)

// ValidationError is a structured evaluation failure. Callers treat any
// failure as "not valid" but may surface the reason.
type ValidationError struct {
	Path   string
	Key    string
	Reason Reason
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plist %s key %q: %s: %v", e.Path, e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("plist %s key %q: %s", e.Path, e.Key, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Outcome is the tri-state verdict of one evaluation. NoResult means the
// value's type is not comparable under the requested predicate: not an
// error, not a match.
type Outcome string

const (
	OutcomeValid    Outcome = "valid"
	OutcomeInvalid  Outcome = "invalid"
	OutcomeNoResult Outcome = "no_result"
)

// Result carries the verdict and the normalized value that produced it.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Value   any     `json:"value,omitempty"`
}

// Valid reports whether the evaluation produced a positive verdict.
func (r Result) Valid() bool { return r.Outcome == OutcomeValid }

// CheckSpec bundles the four evaluation inputs the way configuration
// carries them.
type CheckSpec struct {
	Path     string
	Key      string
	Kind     PredicateKind
	Expected any
}

// EvaluateSpec evaluates a bundled check.
func EvaluateSpec(c CheckSpec) (Result, error) {
	return Evaluate(c.Path, c.Key, c.Kind, c.Expected)
}

// Evaluate reads the property-list file at path, looks up key (dot-separated
// nested traversal through dictionaries) and compares the value against
// expected according to kind. Failures come back as *ValidationError; the
// caller degrades them to "not valid" rather than aborting.
func Evaluate(path, key string, kind PredicateKind, expected any) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{Outcome: OutcomeInvalid}, &ValidationError{Path: path, Key: key, Reason: ReasonUnreadable, Err: err}
	}
	if info.Size() > MaxPlistSize {
		return Result{Outcome: OutcomeInvalid}, &ValidationError{
			Path: path, Key: key, Reason: ReasonOversize,
			Err: fmt.Errorf("%d bytes exceeds %d byte limit", info.Size(), MaxPlistSize),
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Outcome: OutcomeInvalid}, &ValidationError{Path: path, Key: key, Reason: ReasonUnreadable, Err: err}
	}

	var root map[string]any
	if _, err := plist.Unmarshal(data, &root); err != nil {
		return Result{Outcome: OutcomeInvalid}, &ValidationError{Path: path, Key: key, Reason: ReasonMalformed, Err: err}
	}

	value, ok := lookup(root, key)
	if !ok {
		return Result{Outcome: OutcomeInvalid}, &ValidationError{Path: path, Key: key, Reason: ReasonNotFound}
	}
	return apply(kind, unwrapFinding(value), expected), nil
}

// lookup traverses nested dictionaries along dot-separated key segments.
func lookup(root map[string]any, key string) (any, bool) {
	var cur any = root
	for _, seg := range strings.Split(key, ".") {
		dict, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = dict[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// unwrapFinding unwraps the compliance-database convention of storing each
// result as a dictionary with a "finding" sub-key.
func unwrapFinding(v any) any {
	if dict, ok := v.(map[string]any); ok {
		if f, ok := dict[findingKey]; ok {
			return f
		}
	}
	return v
}

func apply(kind PredicateKind, value, expected any) Result {
	value = normalize(value)
	expected = normalize(expected)
	switch kind {
	case KindExists:
		return Result{Outcome: OutcomeValid, Value: value}
	case KindBooleanTrue:
		return applyBooleanTrue(value)
	case KindEquals:
		return applyEquals(value, expected)
	case KindContains:
		return applyContains(value, expected)
	case KindRange:
		return applyRange(value, expected)
	default:
		return Result{Outcome: OutcomeNoResult, Value: value}
	}
}

func applyBooleanTrue(value any) Result {
	switch v := value.(type) {
	case bool:
		return verdict(v, value)
	case int64:
		// plists frequently store booleans as 0/1 integers
		switch v {
		case 1:
			return verdict(true, value)
		case 0:
			return verdict(false, value)
		}
	}
	return Result{Outcome: OutcomeNoResult, Value: value}
}

func applyEquals(value, expected any) Result {
	if vf, ok := toFloat(value); ok {
		ef, ok := toFloat(expected)
		return verdict(ok && vf == ef, value)
	}
	switch v := value.(type) {
	case string:
		e, ok := expected.(string)
		return verdict(ok && v == e, value)
	case bool:
		e, ok := expected.(bool)
		return verdict(ok && v == e, value)
	default:
		return Result{Outcome: OutcomeNoResult, Value: value}
	}
}

func applyContains(value, expected any) Result {
	switch v := value.(type) {
	case string:
		e, ok := expected.(string)
		if !ok {
			return Result{Outcome: OutcomeNoResult, Value: value}
		}
		return verdict(strings.Contains(v, e), value)
	case []any:
		for _, el := range v {
			if applyEquals(normalize(el), expected).Valid() {
				return verdict(true, value)
			}
		}
		return verdict(false, value)
	default:
		return Result{Outcome: OutcomeNoResult, Value: value}
	}
}

func applyRange(value, expected any) Result {
	v, ok := toFloat(value)
	if !ok {
		return Result{Outcome: OutcomeNoResult, Value: value}
	}
	lo, hi, err := parseRange(expected)
	if err != nil {
		return Result{Outcome: OutcomeNoResult, Value: value}
	}
	return verdict(v >= lo && v <= hi, value)
}

// parseRange accepts "min-max", "min..max", or a two-element numeric list.
// Bounds are inclusive.
func parseRange(expected any) (lo, hi float64, err error) {
	switch e := expected.(type) {
	case string:
		var parts []string
		if strings.Contains(e, "..") {
			parts = strings.SplitN(e, "..", 2)
		} else {
			parts = strings.SplitN(e, "-", 2)
		}
		if len(parts) != 2 {
			return 0, 0, fmt.Errorf("range operand %q: want min-max", e)
		}
		if lo, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
			return 0, 0, fmt.Errorf("range operand %q: %w", e, err)
		}
		if hi, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
			return 0, 0, fmt.Errorf("range operand %q: %w", e, err)
		}
	case []any:
		if len(e) != 2 {
			return 0, 0, fmt.Errorf("range operand: want two elements, got %d", len(e))
		}
		var ok bool
		if lo, ok = toFloat(normalize(e[0])); !ok {
			return 0, 0, fmt.Errorf("range operand: non-numeric minimum")
		}
		if hi, ok = toFloat(normalize(e[1])); !ok {
			return 0, 0, fmt.Errorf("range operand: non-numeric maximum")
		}
	default:
		return 0, 0, fmt.Errorf("range operand: unsupported type %T", expected)
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi, nil
}

func verdict(ok bool, value any) Result {
	if ok {
		return Result{Outcome: OutcomeValid, Value: value}
	}
	return Result{Outcome: OutcomeInvalid, Value: value}
}

// normalize folds the integer widths produced by the plist and yaml decoders
// into int64, and float32 into float64, so values from different layers
// compare equal.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
