package jschallenge

import (
	"fmt"
	"strings"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokBang
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokFunc
)

var tokenNames = [...]string{
	tokEOF: "end of input", tokPlus: "'+'", tokMinus: "'-'", tokStar: "'*'",
	tokSlash: "'/'", tokBang: "'!'", tokLParen: "'('", tokRParen: "')'",
	tokLBracket: "'['", tokRBracket: "']'", tokFunc: "function literal",
}

func (k tokenKind) String() string { return tokenNames[k] }

// token is a lexeme of the obfuscation alphabet.  Function literals are kept
// opaque: only their parameter name and body text are recorded.
type token struct {
	kind  tokenKind
	pos   int
	param string
	body  string
}

var punct = map[byte]tokenKind{
	'+': tokPlus, '-': tokMinus, '*': tokStar, '/': tokSlash, '!': tokBang,
	'(': tokLParen, ')': tokRParen, '[': tokLBracket, ']': tokRBracket,
}

// lex splits src into tokens.  Anything outside the alphabet, including
// plain digits and identifiers, is rejected.
func lex(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		if isSpace(c) {
			i++
			continue
		}
		if k, ok := punct[c]; ok {
			toks = append(toks, token{kind: k, pos: i})
			i++
			continue
		}
		if strings.HasPrefix(src[i:], "function") {
			tok, n, err := lexFunc(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = n
			continue
		}
		return nil, fmt.Errorf("unexpected %q at offset %d", c, i)
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

// lexFunc reads "function(p){...}" starting at i and returns the token and
// the offset just past the closing brace.
func lexFunc(src string, i int) (token, int, error) {
	start := i
	i += len("function")
	i = skipSpace(src, i)
	if i >= len(src) || src[i] != '(' {
		return token{}, 0, fmt.Errorf("malformed function literal at offset %d", start)
	}
	closeParen := strings.IndexByte(src[i:], ')')
	if closeParen < 0 {
		return token{}, 0, fmt.Errorf("unterminated parameter list at offset %d", start)
	}
	param := strings.TrimSpace(src[i+1 : i+closeParen])
	i = skipSpace(src, i+closeParen+1)
	if i >= len(src) || src[i] != '{' {
		return token{}, 0, fmt.Errorf("function literal without body at offset %d", start)
	}
	end, err := matchBrace(src, i)
	if err != nil {
		return token{}, 0, err
	}
	return token{kind: tokFunc, pos: start, param: param, body: src[i+1 : end]}, end + 1, nil
}

// matchBrace returns the index of the brace closing the one at open,
// skipping quoted strings.
func matchBrace(src string, open int) (int, error) {
	depth := 0
	for i := open; i < len(src); i++ {
		switch c := src[i]; c {
		case '"', '\'':
			j := skipString(src, i)
			if j < 0 {
				return 0, fmt.Errorf("unterminated string at offset %d", i)
			}
			i = j
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced braces from offset %d", open)
}

// skipString returns the index of the quote closing the string at i, or -1.
func skipString(src string, i int) int {
	q := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case q:
			return j
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func skipSpace(src string, i int) int {
	for i < len(src) && isSpace(src[i]) {
		i++
	}
	return i
}
