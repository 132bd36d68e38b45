package prefs

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Kind names the type a Rule expects its value to have.
type Kind string

// Supported rule kinds.
const (
	KindString  Kind = "string"
	KindBoolean Kind = "boolean"
	KindNumber  Kind = "number"
	KindObject  Kind = "object"
)

// Rule describes the constraints on a single field. Rules are purely
// declarative; Check interprets them.
type Rule struct {
	// Kind is the expected type. An empty Kind skips type checks.
	Kind Kind

	// Required reports a missing or nil value as a violation.
	Required bool

	// Min and Max bound KindNumber values. Nil means unbounded.
	Min *float64
	Max *float64

	// OneOf restricts the value to a fixed set, independent of Kind.
	OneOf []any

	// Properties describes nested fields of a KindObject value.
	Properties Schema
}

// Field binds a Rule to a property name.
type Field struct {
	Name string
	Rule Rule
}

// Schema is an ordered list of field rules. Declaration order is the order
// in which violations are reported.
type Schema []Field

// Lookup returns the rule declared for name.
func (s Schema) Lookup(name string) (Rule, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Rule, true
		}
	}
	return Rule{}, false
}

// Result is the outcome of validating a value against a Schema.
type Result struct {
	Valid  bool
	Errors []string
}

// Bound returns a pointer to v for use as Rule.Min or Rule.Max.
func Bound(v float64) *float64 {
	return &v
}

// Validate checks value against schema and collects every violation.
// value must be a plain object (map[string]any); anything else yields a
// single "value must be an object" error.
func Validate(value any, schema Schema) Result {
	obj, ok := asObject(value)
	if !ok {
		return Result{Errors: []string{"value must be an object"}}
	}

	var errs []string
	for _, f := range schema {
		errs = append(errs, f.Rule.Check(f.Name, obj[f.Name])...)
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Check validates a single value found at path and returns its violations.
// Nested object properties are reported with dotted paths.
func (r Rule) Check(path string, value any) []string {
	if value == nil {
		if r.Required {
			return []string{path + " is required"}
		}
		return nil
	}

	var errs []string
	switch r.Kind {
	case KindString:
		if !IsNonEmptyString(value) {
			errs = append(errs, path+" must be a non-empty string")
		}
	case KindBoolean:
		if !IsBoolean(value) {
			errs = append(errs, path+" must be a boolean")
		}
	case KindNumber:
		if !IsNumberInRange(value, r.Min, r.Max) {
			errs = append(errs, numberViolation(path, r.Min, r.Max))
		}
	case KindObject:
		obj, ok := asObject(value)
		if !ok {
			errs = append(errs, path+" must be an object")
			break
		}
		for _, f := range r.Properties {
			errs = append(errs, f.Rule.Check(path+"."+f.Name, obj[f.Name])...)
		}
	}

	if len(r.OneOf) > 0 && !IsOneOf(value, r.OneOf) {
		errs = append(errs, fmt.Sprintf("%s must be one of: %s", path, joinValues(r.OneOf)))
	}
	return errs
}

// IsNonEmptyString reports whether v is a string with non-whitespace content.
func IsNonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

// IsBoolean reports whether v is a bool. No coercion is applied.
func IsBoolean(v any) bool {
	_, ok := v.(bool)
	return ok
}

// IsNumberInRange reports whether v is a finite number within [min, max].
// Nil bounds are treated as negative and positive infinity.
func IsNumberInRange(v any, min, max *float64) bool {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	if min != nil && f < *min {
		return false
	}
	if max != nil && f > *max {
		return false
	}
	return true
}

// IsOneOf reports whether v equals one of allowed. Numbers compare by value
// regardless of their Go type.
func IsOneOf(v any, allowed []any) bool {
	for _, a := range allowed {
		if valuesEqual(v, a) {
			return true
		}
	}
	return false
}

// IsPlainObject reports whether v is a decoded JSON object.
func IsPlainObject(v any) bool {
	_, ok := asObject(v)
	return ok
}

func asObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return nil, false
	}
	return obj, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func valuesEqual(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func numberViolation(path string, min, max *float64) string {
	var b strings.Builder
	b.WriteString(path)
	b.WriteString(" must be a valid number")
	if min != nil {
		b.WriteString(" >= ")
		b.WriteString(strconv.FormatFloat(*min, 'f', -1, 64))
	}
	if max != nil {
		b.WriteString(" <= ")
		b.WriteString(strconv.FormatFloat(*max, 'f', -1, 64))
	}
	return b.String()
}

func joinValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
