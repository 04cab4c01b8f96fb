package jschallenge

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// valueKind is the dynamic type of a value in the obfuscation language.  Only
// the types the literal alphabet can produce exist.
type valueKind uint8

const (
	kindNumber valueKind = iota
	kindString
	kindBool
	kindArray
)

// value follows JavaScript coercion rules so that idioms like !+[] or
// (+!![]+[]) behave exactly as in a browser.
type value struct {
	kind  valueKind
	num   float64
	str   string
	b     bool
	elems []value
}

func numberValue(f float64) value { return value{kind: kindNumber, num: f} }
func stringValue(s string) value  { return value{kind: kindString, str: s} }
func boolValue(b bool) value      { return value{kind: kindBool, b: b} }

// toPrimitive converts arrays to their joined string form.  Other kinds are
// already primitive.
func (v value) toPrimitive() value {
	if v.kind != kindArray {
		return v
	}
	parts := make([]string, len(v.elems))
	for i, e := range v.elems {
		parts[i] = e.toString()
	}
	return stringValue(strings.Join(parts, ","))
}

var reNumeric = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*(?:[eE][+-]?\d+)?|\.\d+(?:[eE][+-]?\d+)?)$`)

func (v value) toNumber() float64 {
	switch v.kind {
	case kindNumber:
		return v.num
	case kindBool:
		if v.b {
			return 1
		}
		return 0
	case kindArray:
		return v.toPrimitive().toNumber()
	}
	s := strings.TrimSpace(v.str)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if !reNumeric.MatchString(s) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func (v value) toString() string {
	switch v.kind {
	case kindString:
		return v.str
	case kindBool:
		return strconv.FormatBool(v.b)
	case kindArray:
		return v.toPrimitive().str
	}
	return formatNumber(v.num)
}

func (v value) toBool() bool {
	switch v.kind {
	case kindNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case kindString:
		return v.str != ""
	case kindBool:
		return v.b
	}
	return true
}

// formatNumber renders f the way Number.prototype.toString does for the
// magnitudes the challenge produces.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// Go pads the exponent to two digits; JavaScript does not.
		s = strings.Replace(s, "e+0", "e+", 1)
		return strings.Replace(s, "e-0", "e-", 1)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func add(l, r value) value {
	lp, rp := l.toPrimitive(), r.toPrimitive()
	if lp.kind == kindString || rp.kind == kindString {
		return stringValue(lp.toString() + rp.toString())
	}
	return numberValue(lp.toNumber() + rp.toNumber())
}

func arith(op byte, l, r value) value {
	if op == '+' {
		return add(l, r)
	}
	a, b := l.toNumber(), r.toNumber()
	switch op {
	case '-':
		return numberValue(a - b)
	case '*':
		return numberValue(a * b)
	}
	return numberValue(a / b)
}

// parseIntBase10 mirrors parseInt(String(v), 10).
func parseIntBase10(v value) float64 {
	s := strings.TrimSpace(v.toString())
	sign := 1.0
	if s != "" && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return math.NaN()
	}
	return sign * f
}
