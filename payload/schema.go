// Package payload checks JSON responses of remote proof-provider APIs against
// the fields the engine reads from them.
//
// Provider APIs change without notice: a field is renamed, or a number turns
// into a string.  Decoding such a response into a Go struct silently yields
// zero values, which then surface much later as a confusing "empty token"
// failure.  Check catches the drift at the boundary instead and reports every
// structural difference at once.
//
// Nested fields are addressed with dot-separated paths (e.g. "solution.token").
package payload

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// JSON type names used in a Schema.
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeBool   = "bool"
	TypeArray  = "array"
	TypeObject = "object"
	TypeNull   = "null"

	// TypeAny accepts any type, including null, as long as the field is
	// present.
	TypeAny = "any"
)

// Schema maps dot-separated field paths to their expected JSON type.
type Schema map[string]string

// MismatchKind classifies a structural difference.
type MismatchKind string

const (
	// MismatchKindMissing means an expected field is absent.
	MismatchKindMissing MismatchKind = "MISSING_FIELD"

	// MismatchKindTypeChange means a field is present with another type.
	MismatchKindTypeChange MismatchKind = "TYPE_CHANGE"
)

// Mismatch describes one difference between a Schema and a response.
type Mismatch struct {
	Kind     MismatchKind
	Field    string
	Expected string
	// Actual is empty for MismatchKindMissing.
	Actual string
}

// String returns a one-line human-readable description.
func (m Mismatch) String() string {
	switch m.Kind {
	case MismatchKindMissing:
		return fmt.Sprintf("field %q missing (want %s)", m.Field, m.Expected)
	case MismatchKindTypeChange:
		return fmt.Sprintf("field %q is %s, want %s", m.Field, m.Actual, m.Expected)
	default:
		return fmt.Sprintf("field %q: %s", m.Field, m.Kind)
	}
}

// DriftError is returned by Require when a response does not match.
type DriftError struct {
	Mismatches []Mismatch
}

func (e *DriftError) Error() string {
	return "payload drift: " + FormatMismatches(e.Mismatches, "; ")
}

// Check parses data as a JSON object and compares it against want.  The
// returned mismatches are sorted by field path.  Fields not named in want are
// ignored.
func Check(data []byte, want Schema) ([]Mismatch, error) {
	current, err := extractSchema(data)
	if err != nil {
		return nil, fmt.Errorf("payload: check: %w", err)
	}

	var mismatches []Mismatch
	for field, expected := range want {
		actual, ok := current[field]
		switch {
		case !ok:
			mismatches = append(mismatches, Mismatch{Kind: MismatchKindMissing, Field: field, Expected: expected})
		case expected != TypeAny && actual != expected:
			mismatches = append(mismatches, Mismatch{Kind: MismatchKindTypeChange, Field: field, Expected: expected, Actual: actual})
		}
	}
	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].Field < mismatches[j].Field })
	return mismatches, nil
}

// Require is Check that folds any mismatch into a *DriftError.
func Require(data []byte, want Schema) error {
	mismatches, err := Check(data, want)
	if err != nil {
		return err
	}
	if len(mismatches) > 0 {
		return &DriftError{Mismatches: mismatches}
	}
	return nil
}

// extractSchema walks a JSON object and returns its dot-separated paths
// mapped to JSON type names.
func extractSchema(data []byte) (Schema, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", raw)
	}
	s := make(Schema)
	flatten(obj, "", s)
	return s, nil
}

func flatten(obj map[string]any, prefix string, s Schema) {
	for k, v := range obj {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			s[path] = TypeObject
			flatten(val, path, s)
		case []any:
			s[path] = TypeArray
		case string:
			s[path] = TypeString
		case float64:
			s[path] = TypeNumber
		case bool:
			s[path] = TypeBool
		case nil:
			s[path] = TypeNull
		}
	}
}

// FormatMismatches joins the descriptions of mismatches with sep.
func FormatMismatches(mismatches []Mismatch, sep string) string {
	lines := make([]string, len(mismatches))
	for i, m := range mismatches {
		lines[i] = m.String()
	}
	return strings.Join(lines, sep)
}
