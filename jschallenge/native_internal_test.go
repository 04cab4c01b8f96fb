package jschallenge

import (
	"math"
	"testing"
)

func evalExpr(t *testing.T, src string) value {
	t.Helper()
	n, err := parseExpression(src)
	if err != nil {
		t.Fatalf("parseExpression(%q): %v", src, err)
	}
	v, err := (&evalContext{domain: "example-site.dev"}).eval(n)
	if err != nil {
		t.Fatalf("eval(%q): %v", src, err)
	}
	return v
}

func TestCoercion(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"+[]", "0"},
		{"!+[]", "true"},
		{"!![]", "true"},
		{"+!![]", "1"},
		{"!+[]+!![]", "2"},
		{"!+[]+!![]+[]", "2"},
		{"(!+[]+[])", "true"},
		{"[]+[]", ""},
		{"+((!+[]+!![]+[])+(+!![]))", "21"},
		{"-(+!![])", "-1"},
		{"+[+!![]]", "1"},
		{"+[[]]", "0"},
		{"+((+!![]+[])+(+[]))/+((!+[]+!![]+!![]+!![]+[])+(+[]))", "0.25"},
		{"+((!+[]+!![]+!![]+[])+(!+[]+!![]))*+((+!![]+[])+(+[]))", "320"},
	}
	for _, tc := range tests {
		if got := evalExpr(t, tc.src).toString(); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestCharCodeLookup(t *testing.T) {
	src := `+(function(p){return eval((true+"")[0]+".ch"+(false+"")[1]+(true+"")[1]+Function("return escape")()(("")["italics"]())[2]+"o"+(undefined+"")[2]+(true+"")[3]+"A"+(true+"")[0]+"("+p+")")}(+((!+[]+!![]+!![]+[]))))`
	// "example-site.dev"[3] == 'm'
	if got := evalExpr(t, src).toNumber(); got != 109 {
		t.Errorf("char code: got %v, want 109", got)
	}
}

func TestLexRejectsOutsideAlphabet(t *testing.T) {
	for _, src := range []string{"1+2", "+x", "+[]+'a'", "+[];", "+[]+\"\""} {
		if _, err := parseExpression(src); err == nil {
			t.Errorf("parseExpression(%q): expected error", src)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, src := range []string{"", "+((!+[]+!![]", "+[]]", "()", "+[]+", "function(p){return p}"} {
		if _, err := parseExpression(src); err == nil {
			t.Errorf("parseExpression(%q): expected error", src)
		}
	}
}

func TestUnsupportedFunctionLiteral(t *testing.T) {
	n, err := parseExpression("function(p){return p}(+[])")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := (&evalContext{}).eval(n); err == nil {
		t.Error("expected error for unknown function shape")
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{6648, "6648"},
		{-1.5, "-1.5"},
		{0.25, "0.25"},
		{1e21, "1e+21"},
		{1.5e-7, "1.5e-7"},
		{math.Inf(1), "Infinity"},
	}
	for _, tc := range tests {
		if got := formatNumber(tc.in); got != tc.want {
			t.Errorf("formatNumber(%v): got %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := formatNumber(math.NaN()); got != "NaN" {
		t.Errorf("formatNumber(NaN): got %q", got)
	}
}

func TestParseIntBase10(t *testing.T) {
	tests := []struct {
		in   value
		want float64
	}{
		{numberValue(6632.25), 6632},
		{numberValue(-5.9), -5},
		{stringValue("  42px"), 42},
	}
	for _, tc := range tests {
		if got := parseIntBase10(tc.in); got != tc.want {
			t.Errorf("parseInt(%v): got %v, want %v", tc.in.toString(), got, tc.want)
		}
	}
	if got := parseIntBase10(stringValue("abc")); !math.IsNaN(got) {
		t.Errorf("parseInt(abc): got %v, want NaN", got)
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements(`a;b(function(){x;y});"c;d";`)
	want := []string{"a", "b(function(){x;y})", `"c;d"`, ""}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("statement %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
